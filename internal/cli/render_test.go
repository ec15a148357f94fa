package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeRequest writes a request YAML to a temp file and returns its path.
func writeRequest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "request.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestRenderBasicRequest(t *testing.T) {
	dir := writeDoctypesDir(t)
	request := writeRequest(t, `
query:
  doctype: ToDo
  fields: [name, status]
  filters:
    status: Open
  ignore_permissions: true
`)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text", Dialect: "mariadb"}
	cmd := NewRenderCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{dir, request})

	err := cmd.Execute()
	require.NoError(t, err)

	output := buf.String()
	assert.Contains(t, output, "SELECT `tabToDo`.`name`, `tabToDo`.`status` FROM `tabToDo` WHERE `tabToDo`.`status` = ?")
	assert.Contains(t, output, "ORDER BY `tabToDo`.`modified` DESC")
	assert.Contains(t, output, "-- params\n[\"Open\"]")
}

func TestRenderJSON(t *testing.T) {
	dir := writeDoctypesDir(t)
	request := writeRequest(t, `
query:
  doctype: ToDo
  fields: [name]
  ignore_permissions: true
`)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "json", Dialect: "postgres"}
	cmd := NewRenderCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{dir, request})

	err := cmd.Execute()
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)

	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ToDo", data["doctype"])
	assert.Contains(t, data["sql"], `SELECT "tabToDo"."name" FROM "tabToDo"`)
	assert.Equal(t, []any{}, data["params"])
}

func TestRenderLinkJoin(t *testing.T) {
	dir := writeDoctypesDir(t)
	request := writeRequest(t, `
query:
  doctype: ToDo
  fields:
    - name
    - allocated_to.full_name as assignee
  ignore_permissions: true
`)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text", Dialect: "mariadb"}
	cmd := NewRenderCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{dir, request})

	err := cmd.Execute()
	require.NoError(t, err)

	output := buf.String()
	assert.Contains(t, output, "LEFT JOIN `tabUser` ON `tabUser`.`name` = `tabToDo`.`allocated_to`")
	assert.Contains(t, output, "`tabUser`.`full_name` AS `assignee`")
}

func TestRenderPermissionDenied(t *testing.T) {
	dir := writeDoctypesDir(t)
	request := writeRequest(t, `
query:
  doctype: ToDo
  user: alice@example.com
permissions:
  roles:
    - doctype: ToDo
      user: someone-else@example.com
      read: true
`)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text", Dialect: "mariadb"}
	cmd := NewRenderCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{dir, request})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, buf.String(), "PERMISSION_DENIED")
}

func TestRenderRejectsUnknownRequestFields(t *testing.T) {
	dir := writeDoctypesDir(t)
	request := writeRequest(t, `
query:
  doctype: ToDo
  ignore_permissions: true
assertion: oops
`)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text", Dialect: "mariadb"}
	cmd := NewRenderCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{dir, request})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "load request")
}

func TestRenderRequiresPermissionsOrBypass(t *testing.T) {
	_, err := LoadRequest(writeRequest(t, `
query:
  doctype: ToDo
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ignore_permissions")
}

func TestRenderInvalidDialect(t *testing.T) {
	dir := writeDoctypesDir(t)
	request := writeRequest(t, `
query:
  doctype: ToDo
  ignore_permissions: true
`)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text", Dialect: "oracle"}
	cmd := NewRenderCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{dir, request})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "unknown dialect")
}

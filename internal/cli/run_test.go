package cli

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedTestDB creates a file-backed SQLite database with a few todos and
// returns its path. The sqlite3 driver is registered by the exec package.
func seedTestDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec("CREATE TABLE `tabToDo` (name TEXT PRIMARY KEY, status TEXT, description TEXT, modified TEXT, allocated_to TEXT)")
	require.NoError(t, err)

	todos := [][]any{
		{"TODO-1", "Open", "Write docs", "2024-06-01 09:00:00", "alice@example.com"},
		{"TODO-2", "Open", "Fix tests", "2024-06-02 09:00:00", "bob@example.com"},
		{"TODO-3", "Closed", "Ship it", "2024-06-03 09:00:00", "alice@example.com"},
	}
	for _, row := range todos {
		_, err = db.Exec("INSERT INTO `tabToDo` VALUES (?, ?, ?, ?, ?)", row...)
		require.NoError(t, err)
	}
	return path
}

func TestRunExecutesQuery(t *testing.T) {
	dir := writeDoctypesDir(t)
	dbPath := seedTestDB(t)
	request := writeRequest(t, `
query:
  doctype: ToDo
  fields: [name, status]
  filters:
    status: Open
  order_by: name asc
  ignore_permissions: true
`)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text", Dialect: "sqlite"}
	cmd := NewRunCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{dir, request, "--dsn", dbPath})

	err := cmd.Execute()
	require.NoError(t, err)

	output := buf.String()
	assert.Contains(t, output, "2 rows")
	assert.Contains(t, output, "TODO-1")
	assert.Contains(t, output, "TODO-2")
	assert.NotContains(t, output, "TODO-3")
}

func TestRunJSON(t *testing.T) {
	dir := writeDoctypesDir(t)
	dbPath := seedTestDB(t)
	request := writeRequest(t, `
query:
  doctype: ToDo
  fields: [name]
  filters:
    status: Closed
  ignore_permissions: true
`)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "json", Dialect: "sqlite"}
	cmd := NewRunCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{dir, request, "--dsn", dbPath})

	err := cmd.Execute()
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)

	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ToDo", data["doctype"])

	rows, ok := data["rows"].([]any)
	require.True(t, ok)
	require.Len(t, rows, 1)
	row, ok := rows[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "TODO-3", row["name"])
}

func TestRunRequiresDSN(t *testing.T) {
	dir := writeDoctypesDir(t)
	request := writeRequest(t, `
query:
  doctype: ToDo
  ignore_permissions: true
`)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text", Dialect: "sqlite"}
	cmd := NewRunCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{dir, request})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dsn")
}

func TestRunPermissionDenied(t *testing.T) {
	dir := writeDoctypesDir(t)
	dbPath := seedTestDB(t)
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
	rootOpts := &RootOptions{Format: "text", Dialect: "sqlite"}
	cmd := NewRunCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{dir, request, "--dsn", dbPath})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, buf.String(), "PERMISSION_DENIED")
}

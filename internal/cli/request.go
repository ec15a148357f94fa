package cli

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/docquery/internal/harness"
)

// Request is the YAML payload for render and run: one query plus an
// optional permission fixture. Doctype metadata comes from the CUE
// directory given alongside it, not from the request file.
type Request struct {
	Query       harness.QueryDef       `yaml:"query"`
	Permissions *harness.PermissionDef `yaml:"permissions,omitempty"`
}

// LoadRequest reads and parses a request YAML file. Unknown fields are
// rejected so typos fail loudly instead of silently changing the query.
func LoadRequest(path string) (*Request, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read request file: %w", err)
	}

	var req Request
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&req); err != nil {
		return nil, fmt.Errorf("parse request YAML: %w", err)
	}

	if req.Query.Doctype == "" {
		return nil, fmt.Errorf("invalid request: query.doctype is required")
	}
	if req.Permissions == nil && !req.Query.IgnorePermissions {
		return nil, fmt.Errorf("invalid request: query needs ignore_permissions when no permissions fixture is given")
	}
	return &req, nil
}

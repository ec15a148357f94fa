package perms

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// ScriptStore holds per-doctype permission query scripts: small
// expressions evaluated at assembly time that return a raw SQL fragment
// to AND into the permission conditions. Scripts see two variables,
// `user` and `doctype`, and must evaluate to a string (empty string
// contributes nothing).
//
// Scripts are compiled once at registration and type-checked to return
// a string, so a malformed script fails at Set time rather than at
// query time.
type ScriptStore struct {
	mu       sync.RWMutex
	programs map[string]*vm.Program
}

// NewScriptStore returns an empty store.
func NewScriptStore() *ScriptStore {
	return &ScriptStore{programs: map[string]*vm.Program{}}
}

func scriptEnv(doctype, user string) map[string]any {
	return map[string]any{"user": user, "doctype": doctype}
}

// Set compiles and registers the script for doctype, replacing any
// existing one.
func (s *ScriptStore) Set(doctype, source string) error {
	program, err := expr.Compile(source,
		expr.Env(scriptEnv("", "")),
		expr.AsKind(reflect.String),
	)
	if err != nil {
		return fmt.Errorf("compiling permission script for %s: %w", doctype, err)
	}
	s.mu.Lock()
	s.programs[doctype] = program
	s.mu.Unlock()
	return nil
}

// Has reports whether a script is registered for doctype.
func (s *ScriptStore) Has(doctype string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.programs[doctype]
	return ok
}

// Condition evaluates the script registered for doctype, if any, and
// returns the resulting SQL fragment. A script evaluation error aborts
// the query.
func (s *ScriptStore) Condition(doctype, user string) (string, error) {
	s.mu.RLock()
	program, ok := s.programs[doctype]
	s.mu.RUnlock()
	if !ok {
		return "", nil
	}

	out, err := expr.Run(program, scriptEnv(doctype, user))
	if err != nil {
		return "", fmt.Errorf("permission script for %s: %w", doctype, err)
	}
	fragment, ok := out.(string)
	if !ok {
		return "", fmt.Errorf("permission script for %s returned %T, want string", doctype, out)
	}
	return fragment, nil
}

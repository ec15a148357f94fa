package perms

import (
	"fmt"
	"sort"
	"sync"
)

// ConditionHook contributes a raw SQL fragment to the permission WHERE
// clause for the acting user. An empty return contributes nothing; an
// error aborts the whole query assembly.
type ConditionHook func(user string) (string, error)

// HookRegistry holds permission-query-condition hooks keyed by doctype.
// The wildcard key "*" registers a hook consulted for every doctype.
type HookRegistry struct {
	mu    sync.RWMutex
	hooks map[string][]ConditionHook
}

// NewHookRegistry returns an empty registry.
func NewHookRegistry() *HookRegistry {
	return &HookRegistry{hooks: map[string][]ConditionHook{}}
}

// Register adds a hook for the given doctype ("*" for all doctypes).
func (r *HookRegistry) Register(doctype string, hook ConditionHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks[doctype] = append(r.hooks[doctype], hook)
}

// Conditions runs every hook registered for doctype plus every wildcard
// hook and returns the non-empty fragments. Hook errors propagate
// unwrapped in spirit: a failing hook fails the query.
func (r *HookRegistry) Conditions(doctype, user string) ([]string, error) {
	r.mu.RLock()
	hooks := make([]ConditionHook, 0, len(r.hooks[doctype])+len(r.hooks["*"]))
	hooks = append(hooks, r.hooks[doctype]...)
	hooks = append(hooks, r.hooks["*"]...)
	r.mu.RUnlock()

	var fragments []string
	for _, hook := range hooks {
		fragment, err := hook(user)
		if err != nil {
			return nil, fmt.Errorf("permission condition hook for %s: %w", doctype, err)
		}
		if fragment != "" {
			fragments = append(fragments, fragment)
		}
	}
	return fragments, nil
}

// Doctypes lists the doctypes with registered hooks, sorted, wildcard
// included. Mainly for diagnostics.
func (r *HookRegistry) Doctypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.hooks))
	for name := range r.hooks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

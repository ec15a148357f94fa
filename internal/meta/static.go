package meta

import "fmt"

// StaticProvider serves doctype metadata from an in-memory map.
// It is the provider used by tests, fixtures, and the CLI after loading
// definitions from CUE files. Safe for concurrent reads once built.
type StaticProvider struct {
	doctypes map[string]*Doctype
}

// NewStaticProvider builds a provider over the given doctypes.
func NewStaticProvider(doctypes ...*Doctype) *StaticProvider {
	m := make(map[string]*Doctype, len(doctypes))
	for _, dt := range doctypes {
		m[dt.Name] = dt
	}
	return &StaticProvider{doctypes: m}
}

// Add registers another doctype. Not safe to call concurrently with reads.
func (p *StaticProvider) Add(dt *Doctype) {
	p.doctypes[dt.Name] = dt
}

// Doctype implements Provider.
func (p *StaticProvider) Doctype(name string) (*Doctype, error) {
	dt, ok := p.doctypes[name]
	if !ok {
		return nil, fmt.Errorf("doctype not found: %s", name)
	}
	return dt, nil
}

// Names returns the registered doctype names (unordered).
func (p *StaticProvider) Names() []string {
	out := make([]string, 0, len(p.doctypes))
	for name := range p.doctypes {
		out = append(out, name)
	}
	return out
}

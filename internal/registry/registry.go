// Package registry holds the table of dashboard modules under test: which
// spec file exercises which page, and which modules are already known to be
// implemented. A Registry is loaded once per run and never mutated.
package registry

import (
	"fmt"
	"net/url"
	"strings"
)

// ModuleDescriptor maps one test-spec file to the dashboard page it exercises.
type ModuleDescriptor struct {
	// ID is the spec file name, e.g. "json-formatter.spec.ts".
	ID  string `json:"id" yaml:"id" toml:"id"`
	URL string `json:"url" yaml:"url" toml:"url"`
}

// OverrideSet is the set of module IDs known to be implemented regardless of
// what a live probe would report.
type OverrideSet map[string]struct{}

// NewOverrideSet builds an OverrideSet from a list of IDs. Blank IDs are dropped.
func NewOverrideSet(ids ...string) OverrideSet {
	set := make(OverrideSet, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			set[id] = struct{}{}
		}
	}
	return set
}

// Contains reports whether id is overridden as implemented.
func (s OverrideSet) Contains(id string) bool {
	_, ok := s[id]
	return ok
}

// Registry is the ordered module table plus its OverrideSet.
type Registry struct {
	baseURL   string
	modules   []ModuleDescriptor
	index     map[string]int
	overrides OverrideSet
	warnings  []string
}

// New validates modules and builds a Registry. Module order is preserved.
func New(modules []ModuleDescriptor, implemented []string) (*Registry, error) {
	r := &Registry{
		modules:   make([]ModuleDescriptor, 0, len(modules)),
		index:     make(map[string]int, len(modules)),
		overrides: NewOverrideSet(implemented...),
	}

	for i, m := range modules {
		m.ID = strings.TrimSpace(m.ID)
		m.URL = strings.TrimSpace(m.URL)
		if err := validateID(m.ID); err != nil {
			return nil, fmt.Errorf("module %d: %w", i, err)
		}
		if m.URL == "" {
			return nil, fmt.Errorf("module %q: url is empty", m.ID)
		}
		if _, dup := r.index[m.ID]; dup {
			return nil, fmt.Errorf("module %q: duplicate id", m.ID)
		}
		r.index[m.ID] = len(r.modules)
		r.modules = append(r.modules, m)
	}

	for _, id := range implemented {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := r.index[id]; !ok {
			r.warnings = append(r.warnings, fmt.Sprintf("implemented override %q does not match any module", id))
		}
	}

	return r, nil
}

func validateID(id string) error {
	switch {
	case id == "":
		return fmt.Errorf("id is empty")
	case id == "." || id == "..":
		return fmt.Errorf("id %q is not a file name", id)
	case strings.ContainsAny(id, `/\`):
		return fmt.Errorf("id %q must be a file name without directories", id)
	}
	return nil
}

// Modules returns the descriptors in registry order.
func (r *Registry) Modules() []ModuleDescriptor {
	out := make([]ModuleDescriptor, len(r.modules))
	copy(out, r.modules)
	return out
}

// Len returns the number of modules.
func (r *Registry) Len() int {
	return len(r.modules)
}

// Lookup returns the descriptor for id.
func (r *Registry) Lookup(id string) (ModuleDescriptor, bool) {
	i, ok := r.index[id]
	if !ok {
		return ModuleDescriptor{}, false
	}
	return r.modules[i], true
}

// Overrides returns the OverrideSet.
func (r *Registry) Overrides() OverrideSet {
	return r.overrides
}

// IsOverridden reports whether id is in the OverrideSet.
func (r *Registry) IsOverridden(id string) bool {
	return r.overrides.Contains(id)
}

// BaseURL returns the base URL declared by the registry file, if any.
func (r *Registry) BaseURL() string {
	return r.baseURL
}

// Warnings returns non-fatal problems found while building the registry.
func (r *Registry) Warnings() []string {
	return append([]string(nil), r.warnings...)
}

// Resolve returns a copy of the registry whose module URLs are absolute.
// base is used when non-empty, otherwise the registry's own base URL.
// Relative URLs without any base are an error.
func (r *Registry) Resolve(base string) (*Registry, error) {
	if base == "" {
		base = r.baseURL
	}

	var baseURL *url.URL
	if base != "" {
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("parse base url %q: %w", base, err)
		}
		if !u.IsAbs() {
			return nil, fmt.Errorf("base url %q is not absolute", base)
		}
		baseURL = u
	}

	out := &Registry{
		baseURL:   base,
		modules:   make([]ModuleDescriptor, len(r.modules)),
		index:     r.index,
		overrides: r.overrides,
		warnings:  r.warnings,
	}
	for i, m := range r.modules {
		u, err := url.Parse(m.URL)
		if err != nil {
			return nil, fmt.Errorf("module %q: parse url: %w", m.ID, err)
		}
		if !u.IsAbs() {
			if baseURL == nil {
				return nil, fmt.Errorf("module %q: relative url %q needs a base_url", m.ID, m.URL)
			}
			u = baseURL.ResolveReference(u)
		}
		out.modules[i] = ModuleDescriptor{ID: m.ID, URL: u.String()}
	}
	return out, nil
}

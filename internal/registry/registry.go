// Package registry holds the immutable model table loaded at startup: which
// models exist, which provider family speaks their wire format, what they are
// capable of, and where quota-exhausted traffic falls back to.
package registry

import (
	"fmt"
	"sort"
)

// Family identifies the wire format a model speaks.
type Family string

const (
	FamilyClaude Family = "claude"
	FamilyGemini Family = "gemini"
	FamilyOther  Family = "other"

	// FamilyUnknown marks history blocks whose origin was not recorded,
	// e.g. because an intermediate client stripped it.
	FamilyUnknown Family = ""
)

// Valid reports whether f is a family this proxy can route to.
func (f Family) Valid() bool {
	return f == FamilyClaude || f == FamilyGemini || f == FamilyOther
}

// DefaultMaxFallbackHops bounds fallback chain length during validation.
const DefaultMaxFallbackHops = 5

// ModelDescriptor describes a single routable model. Descriptors are built
// once from configuration and never mutated.
type ModelDescriptor struct {
	ID               string
	Family           Family
	SupportsThinking bool
	SupportsToolUse  bool
	MaxTokens        int
}

// UnknownModelError is returned when a model id is not present in the
// registry. It is a configuration error: registries are validated at startup,
// so hitting this per-request means the caller asked for a model the
// deployment does not know.
type UnknownModelError struct {
	ID string
}

func (e *UnknownModelError) Error() string {
	return fmt.Sprintf("model %q is not in the registry", e.ID)
}

// Registry is a read-only lookup of model descriptors plus the fallback map.
// Safe for unlimited concurrent readers.
type Registry struct {
	models    map[string]ModelDescriptor
	fallbacks map[string]string
	maxHops   int
}

// New builds a registry and validates it: every descriptor must carry a valid
// family, every fallback target must exist, and every fallback chain must
// terminate within maxHops. Validation failures are fatal configuration
// errors, surfaced here rather than per-request.
func New(models []ModelDescriptor, fallbacks map[string]string, maxHops int) (*Registry, error) {
	if maxHops <= 0 {
		maxHops = DefaultMaxFallbackHops
	}

	r := &Registry{
		models:    make(map[string]ModelDescriptor, len(models)),
		fallbacks: make(map[string]string, len(fallbacks)),
		maxHops:   maxHops,
	}

	for _, m := range models {
		if m.ID == "" {
			return nil, fmt.Errorf("model descriptor with empty id")
		}

		if !m.Family.Valid() {
			return nil, fmt.Errorf("model %q has unknown provider family %q", m.ID, m.Family)
		}

		if _, dup := r.models[m.ID]; dup {
			return nil, fmt.Errorf("duplicate model id %q", m.ID)
		}

		r.models[m.ID] = m
	}

	for from, to := range fallbacks {
		if _, ok := r.models[from]; !ok {
			return nil, fmt.Errorf("fallback source %q is not a registered model", from)
		}

		if _, ok := r.models[to]; !ok {
			return nil, fmt.Errorf("fallback target %q for model %q is not a registered model", to, from)
		}

		r.fallbacks[from] = to
	}

	if err := r.validateChains(); err != nil {
		return nil, err
	}

	return r, nil
}

// Describe returns the descriptor for a model id.
func (r *Registry) Describe(id string) (ModelDescriptor, error) {
	desc, ok := r.models[id]
	if !ok {
		return ModelDescriptor{}, &UnknownModelError{ID: id}
	}

	return desc, nil
}

// NextFallback returns the one-hop fallback for a model. Unknown model ids
// behave identically to "no fallback": exhausted-quota handling must never
// itself fail a request before the real upstream error is surfaced.
func (r *Registry) NextFallback(id string) (string, bool) {
	next, ok := r.fallbacks[id]
	return next, ok
}

// HasFallback reports whether a model has a fallback target.
func (r *Registry) HasFallback(id string) bool {
	_, ok := r.fallbacks[id]
	return ok
}

// MaxFallbackHops returns the validated chain length bound.
func (r *Registry) MaxFallbackHops() int {
	return r.maxHops
}

// Models returns all descriptors sorted by id.
func (r *Registry) Models() []ModelDescriptor {
	out := make([]ModelDescriptor, 0, len(r.models))
	for _, m := range r.models {
		out = append(out, m)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out
}

// validateChains follows NextFallback from every model and rejects chains
// that do not reach a terminal model within maxHops. A cycle necessarily
// exceeds the bound, so this also rejects cycles.
func (r *Registry) validateChains() error {
	for start := range r.models {
		current := start

		for hop := 0; ; hop++ {
			next, ok := r.fallbacks[current]
			if !ok {
				break
			}

			if hop+1 > r.maxHops {
				return fmt.Errorf("fallback chain from %q exceeds %d hops (cycle or over-long chain)", start, r.maxHops)
			}

			current = next
		}
	}

	return nil
}

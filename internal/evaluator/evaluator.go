// Package evaluator holds the candidate evaluators a worker runs over its range.
// An evaluator is a deterministic, stateless function of the counter; the
// scheduler never looks inside it.
package evaluator

import (
	"fmt"
	"sort"
	"strings"
)

// Evaluator scores one counter value.
type Evaluator interface {
	// Name returns the registry name of the evaluator.
	Name() string

	// Evaluate reports whether counter produces a match and, if so, the
	// opaque payload to surface to the operator.
	Evaluate(counter uint64) (matched bool, payload string, err error)
}

// Config selects and parameterises an evaluator.
type Config struct {
	Name   string // registry key: "sha256" or "js"
	Target string // hex fingerprint (or prefix) to look for
	Seed   string // hex seed mixed into each candidate
	Script string // path to a JavaScript file (js evaluator)
}

// Factory builds an evaluator from configuration.
type Factory func(cfg Config) (Evaluator, error)

// Registry maps evaluator names to their factories.
// Registration happens at startup before concurrent access, so no mutex is needed.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// DefaultRegistry returns a registry with the built-in evaluators.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(SHA256Name, NewSHA256)
	r.Register(JSName, NewJS)
	return r
}

// Register adds a factory under name.
func (r *Registry) Register(name string, f Factory) {
	r.factories[strings.ToLower(name)] = f
}

// Names returns the registered evaluator names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Build returns the evaluator for cfg.Name or an error if none is registered.
func (r *Registry) Build(cfg Config) (Evaluator, error) {
	f, ok := r.factories[strings.ToLower(cfg.Name)]
	if !ok {
		return nil, fmt.Errorf("no evaluator registered for %q (have %s)", cfg.Name, strings.Join(r.Names(), ", "))
	}
	ev, err := f(cfg)
	if err != nil {
		return nil, fmt.Errorf("evaluator %s: %w", cfg.Name, err)
	}
	return ev, nil
}

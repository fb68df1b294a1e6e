package provider

import (
	"context"
	"errors"
)

// Kind identifies the class of asset a backend produces.
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

// GenerateParams carries backend-agnostic generation parameters. Fields a
// backend does not understand are ignored by it.
type GenerateParams struct {
	DurationSec  float64
	Width        int
	Height       int
	Resolution   string
	ReferenceURL string
}

// GenerateInput captures one generation call.
type GenerateInput struct {
	Kind   Kind
	Prompt string
	Params GenerateParams
}

// GenerateResult is the successful outcome of a generation call. Providers may
// silently substitute duration or resolution, so the measured fields reflect
// what was actually produced, not what was requested.
type GenerateResult struct {
	AssetURL            string
	Width               int
	Height              int
	MeasuredDurationSec float64
}

// Generator abstracts a single generation backend.
type Generator interface {
	Generate(ctx context.Context, input GenerateInput) (GenerateResult, error)
}

// ErrNotImplemented is returned by the placeholder generator.
var ErrNotImplemented = errors.New("generation backend not implemented")

// PlaceholderGenerator is a stub implementation until provider wiring is added.
type PlaceholderGenerator struct{}

// Generate returns ErrNotImplemented.
func (PlaceholderGenerator) Generate(ctx context.Context, input GenerateInput) (GenerateResult, error) {
	_ = ctx
	_ = input
	return GenerateResult{}, ErrNotImplemented
}

// ErrUnknownBackend is returned when a backend ID has no registered generator.
var ErrUnknownBackend = errors.New("unknown generation backend")

// Registry maps backend identifiers to their generator implementations. It is
// built once at startup and read-only afterwards.
type Registry struct {
	backends map[string]Generator
}

// NewRegistry constructs a Registry from the given backend map.
func NewRegistry(backends map[string]Generator) *Registry {
	copied := make(map[string]Generator, len(backends))
	for id, gen := range backends {
		copied[id] = gen
	}
	return &Registry{backends: copied}
}

// Lookup returns the generator for a backend ID.
func (r *Registry) Lookup(backendID string) (Generator, error) {
	gen, ok := r.backends[backendID]
	if !ok || gen == nil {
		return nil, ErrUnknownBackend
	}
	return gen, nil
}

// Backends returns the registered backend IDs.
func (r *Registry) Backends() []string {
	out := make([]string, 0, len(r.backends))
	for id := range r.backends {
		out = append(out, id)
	}
	return out
}

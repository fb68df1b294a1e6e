package router

import (
	"context"
	"errors"
	"fmt"

	"appgen-backend/internal/provider"
	"appgen-backend/internal/shared/metrics"
	"appgen-backend/internal/shared/telemetry"
)

// ErrRouteExhausted marks a routed call that failed on the primary and every
// configured fallback.
var ErrRouteExhausted = errors.New("all route backends exhausted")

// ErrNoRoute marks a lookup for an unconfigured (operation, tier) pair.
var ErrNoRoute = errors.New("no route configured")

// ExhaustedError carries the ordered list of backends attempted before the
// router gave up, for diagnostics.
type ExhaustedError struct {
	Operation Operation
	Tier      Tier
	Attempted []string
	LastErr   error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("route %s/%s exhausted after %v: %v", e.Operation, e.Tier, e.Attempted, e.LastErr)
}

func (e *ExhaustedError) Is(target error) bool { return target == ErrRouteExhausted }

func (e *ExhaustedError) Unwrap() error { return e.LastErr }

// Result is a successful routed generation: which backend served it, the
// ordered attempt list, and the cost incurred based on the attempt's actual
// parameters.
type Result struct {
	BackendID    string
	UsedFallback bool
	Attempted    []string
	Asset        provider.GenerateResult
	Cost         Estimate
}

// Router resolves abstract operations to concrete backends and walks the
// fallback chain on failure.
type Router struct {
	table    Table
	registry *provider.Registry
}

// New constructs a Router over an immutable route table and backend registry.
func New(table Table, registry *provider.Registry) *Router {
	return &Router{table: table, registry: registry}
}

// Resolve returns the route for an (operation, tier) pair. Pure lookup, no
// side effects.
func (r *Router) Resolve(op Operation, tier Tier) (RouteConfig, error) {
	tiers, ok := r.table.Routes[op]
	if !ok {
		return RouteConfig{}, fmt.Errorf("%w: operation %s", ErrNoRoute, op)
	}
	cfg, ok := tiers[tier]
	if !ok {
		return RouteConfig{}, fmt.Errorf("%w: %s/%s", ErrNoRoute, op, tier)
	}
	return cfg, nil
}

// Execute routes a generation call: primary first, then each fallback in list
// order, stopping at the first success. The full chain is always attempted
// before giving up.
func (r *Router) Execute(ctx context.Context, op Operation, tier Tier, input provider.GenerateInput) (Result, error) {
	cfg, err := r.Resolve(op, tier)
	if err != nil {
		return Result{}, err
	}

	entries := make([]RouteEntry, 0, 1+len(cfg.Fallbacks))
	entries = append(entries, cfg.Primary)
	entries = append(entries, cfg.Fallbacks...)

	attempted := make([]string, 0, len(entries))
	var lastErr error
	for i, entry := range entries {
		attempted = append(attempted, entry.Backend)
		result, err := r.attempt(ctx, entry, input)
		if err != nil {
			lastErr = err
			telemetry.Warn("router.attempt_failed", map[string]any{
				"operation": string(op),
				"tier":      string(tier),
				"backend":   entry.Backend,
				"attempt":   i + 1,
				"error":     err.Error(),
			})
			continue
		}
		result.UsedFallback = i > 0
		result.Attempted = attempted
		if result.UsedFallback {
			metrics.IncRouteFallback()
		}
		return result, nil
	}

	return Result{}, &ExhaustedError{Operation: op, Tier: tier, Attempted: attempted, LastErr: lastErr}
}

// ExecuteDirect calls a named backend with no fallback. Callers that pin a
// backend opt out of the route chain entirely.
func (r *Router) ExecuteDirect(ctx context.Context, backendID string, input provider.GenerateInput) (Result, error) {
	entry := RouteEntry{Backend: backendID}
	result, err := r.attempt(ctx, entry, input)
	if err != nil {
		return Result{}, err
	}
	result.Attempted = []string{backendID}
	return result, nil
}

func (r *Router) attempt(ctx context.Context, entry RouteEntry, input provider.GenerateInput) (Result, error) {
	gen, err := r.registry.Lookup(entry.Backend)
	if err != nil {
		return Result{}, fmt.Errorf("backend %s: %w", entry.Backend, err)
	}

	merged := input
	merged.Params = mergeParams(entry.Params, input.Params)

	asset, err := gen.Generate(ctx, merged)
	if err != nil {
		return Result{}, err
	}

	// Cost is estimated from what the backend actually produced, not what was
	// requested: providers may substitute duration or resolution silently.
	durationSec := asset.MeasuredDurationSec
	if durationSec == 0 {
		durationSec = merged.Params.DurationSec
	}
	resolution := resolutionLabel(asset.Height)
	if resolution == "" {
		resolution = merged.Params.Resolution
	}
	est, err := EstimateCost(entry.Backend, durationSec, resolution)
	if err != nil {
		telemetry.Warn("router.cost_unknown", map[string]any{
			"backend": entry.Backend,
			"error":   err.Error(),
		})
		est = Estimate{}
	}

	return Result{BackendID: entry.Backend, Asset: asset, Cost: est}, nil
}

// resolutionLabel maps an asset's produced height to the resolution label the
// pricing tables key on. Zero height (image backends, or providers that omit
// dimensions) yields "" so the caller can fall back to the requested label.
func resolutionLabel(height int) string {
	if height <= 0 {
		return ""
	}
	return fmt.Sprintf("%dp", height)
}

func mergeParams(defaults RouteParams, explicit provider.GenerateParams) provider.GenerateParams {
	merged := explicit
	if merged.DurationSec == 0 {
		merged.DurationSec = defaults.DurationSec
	}
	if merged.Width == 0 {
		merged.Width = defaults.Width
	}
	if merged.Height == 0 {
		merged.Height = defaults.Height
	}
	if merged.Resolution == "" {
		merged.Resolution = defaults.Resolution
	}
	return merged
}

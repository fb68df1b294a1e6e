package router

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"appgen-backend/internal/provider"
)

type scriptedGenerator struct {
	calls  int
	err    error
	result provider.GenerateResult
}

func (g *scriptedGenerator) Generate(ctx context.Context, input provider.GenerateInput) (provider.GenerateResult, error) {
	_ = ctx
	_ = input
	g.calls++
	if g.err != nil {
		return provider.GenerateResult{}, g.err
	}
	return g.result, nil
}

func testTable() Table {
	return Table{
		Routes: map[Operation]map[Tier]RouteConfig{
			OpTextToImage: {
				TierDefault: {
					Primary: RouteEntry{Backend: "flux-pro", Params: RouteParams{Width: 1024, Height: 1024}},
					Fallbacks: []RouteEntry{
						{Backend: "sdxl", Params: RouteParams{Width: 1024, Height: 1024}},
						{Backend: "flux-schnell", Params: RouteParams{Width: 768, Height: 768}},
					},
				},
			},
		},
	}
}

func TestExecuteFallsBackInOrder(t *testing.T) {
	primary := &scriptedGenerator{err: errors.New("capacity")}
	fallback := &scriptedGenerator{result: provider.GenerateResult{AssetURL: "https://cdn.example/img.png"}}
	never := &scriptedGenerator{result: provider.GenerateResult{AssetURL: "https://cdn.example/other.png"}}
	registry := provider.NewRegistry(map[string]provider.Generator{
		"flux-pro":     primary,
		"sdxl":         fallback,
		"flux-schnell": never,
	})
	r := New(testTable(), registry)

	result, err := r.Execute(context.Background(), OpTextToImage, TierDefault, provider.GenerateInput{
		Kind:   provider.KindImage,
		Prompt: "home screen",
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.BackendID != "sdxl" {
		t.Fatalf("expected success attributed to sdxl, got %s", result.BackendID)
	}
	if !result.UsedFallback {
		t.Fatal("expected UsedFallback")
	}
	if len(result.Attempted) != 2 || result.Attempted[0] != "flux-pro" || result.Attempted[1] != "sdxl" {
		t.Fatalf("expected attempted [flux-pro sdxl], got %v", result.Attempted)
	}
	if never.calls != 0 {
		t.Fatalf("expected later fallback untouched, got %d calls", never.calls)
	}
}

func TestExecuteExhaustsFullChain(t *testing.T) {
	registry := provider.NewRegistry(map[string]provider.Generator{
		"flux-pro":     &scriptedGenerator{err: errors.New("down")},
		"sdxl":         &scriptedGenerator{err: errors.New("down")},
		"flux-schnell": &scriptedGenerator{err: errors.New("down")},
	})
	r := New(testTable(), registry)

	_, err := r.Execute(context.Background(), OpTextToImage, TierDefault, provider.GenerateInput{Kind: provider.KindImage})
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, ErrRouteExhausted) {
		t.Fatalf("expected ErrRouteExhausted, got %v", err)
	}
	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected ExhaustedError, got %T", err)
	}
	want := []string{"flux-pro", "sdxl", "flux-schnell"}
	if fmt.Sprint(exhausted.Attempted) != fmt.Sprint(want) {
		t.Fatalf("expected attempted %v, got %v", want, exhausted.Attempted)
	}
	seen := map[string]int{}
	for _, id := range exhausted.Attempted {
		seen[id]++
	}
	for id, n := range seen {
		if n != 1 {
			t.Fatalf("backend %s attempted %d times", id, n)
		}
	}
}

func TestExecuteDirectSkipsFallback(t *testing.T) {
	direct := &scriptedGenerator{err: errors.New("down")}
	fallback := &scriptedGenerator{result: provider.GenerateResult{AssetURL: "https://cdn.example/img.png"}}
	registry := provider.NewRegistry(map[string]provider.Generator{
		"flux-pro": direct,
		"sdxl":     fallback,
	})
	r := New(testTable(), registry)

	_, err := r.ExecuteDirect(context.Background(), "flux-pro", provider.GenerateInput{Kind: provider.KindImage})
	if err == nil {
		t.Fatal("expected direct failure to propagate")
	}
	if errors.Is(err, ErrRouteExhausted) {
		t.Fatal("direct execution must not report route exhaustion")
	}
	if fallback.calls != 0 {
		t.Fatalf("expected no fallback attempt, got %d calls", fallback.calls)
	}
}

func TestExecuteMergesRouteParams(t *testing.T) {
	var got provider.GenerateInput
	capture := &scriptedGenerator{result: provider.GenerateResult{AssetURL: "u"}}
	registry := provider.NewRegistry(map[string]provider.Generator{
		"flux-pro":     &capturingGenerator{inner: capture, captured: &got},
		"sdxl":         &scriptedGenerator{err: errors.New("unused")},
		"flux-schnell": &scriptedGenerator{err: errors.New("unused")},
	})
	r := New(testTable(), registry)

	_, err := r.Execute(context.Background(), OpTextToImage, TierDefault, provider.GenerateInput{
		Kind:   provider.KindImage,
		Prompt: "p",
		Params: provider.GenerateParams{Width: 512},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got.Params.Width != 512 {
		t.Fatalf("explicit width must win, got %d", got.Params.Width)
	}
	if got.Params.Height != 1024 {
		t.Fatalf("route default height must fill in, got %d", got.Params.Height)
	}
}

type capturingGenerator struct {
	inner    provider.Generator
	captured *provider.GenerateInput
}

func (g *capturingGenerator) Generate(ctx context.Context, input provider.GenerateInput) (provider.GenerateResult, error) {
	*g.captured = input
	return g.inner.Generate(ctx, input)
}

func TestExecuteCostUsesProducedResolution(t *testing.T) {
	// The backend upgrades a 720p request to 1080p; cost must follow the
	// produced combo, not the requested one.
	gen := &scriptedGenerator{result: provider.GenerateResult{
		AssetURL:            "https://cdn.example/clip.mp4",
		Width:               1920,
		Height:              1080,
		MeasuredDurationSec: 5,
	}}
	registry := provider.NewRegistry(map[string]provider.Generator{"kling-v2": gen})
	table := Table{Routes: map[Operation]map[Tier]RouteConfig{
		OpImageToVideo: {
			TierDefault: {Primary: RouteEntry{Backend: "kling-v2", Params: RouteParams{DurationSec: 5, Resolution: "720p"}}},
		},
	}}
	r := New(table, registry)

	result, err := r.Execute(context.Background(), OpImageToVideo, TierDefault, provider.GenerateInput{Kind: provider.KindVideo})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Cost.CostUSD != 0.45 {
		t.Fatalf("expected 5s/1080p combo price 0.45, got %v", result.Cost.CostUSD)
	}
}

func TestExecuteCostFallsBackToRequestedResolution(t *testing.T) {
	// No produced dimensions reported; the requested label prices the call.
	gen := &scriptedGenerator{result: provider.GenerateResult{
		AssetURL:            "https://cdn.example/clip.mp4",
		MeasuredDurationSec: 5,
	}}
	registry := provider.NewRegistry(map[string]provider.Generator{"kling-v2": gen})
	table := Table{Routes: map[Operation]map[Tier]RouteConfig{
		OpImageToVideo: {
			TierDefault: {Primary: RouteEntry{Backend: "kling-v2", Params: RouteParams{DurationSec: 5, Resolution: "1080p"}}},
		},
	}}
	r := New(table, registry)

	result, err := r.Execute(context.Background(), OpImageToVideo, TierDefault, provider.GenerateInput{Kind: provider.KindVideo})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Cost.CostUSD != 0.45 {
		t.Fatalf("expected 5s/1080p combo price 0.45, got %v", result.Cost.CostUSD)
	}
}

func TestResolveUnknownRoute(t *testing.T) {
	r := New(testTable(), provider.NewRegistry(nil))
	if _, err := r.Resolve(OpImageToVideo, TierDefault); !errors.Is(err, ErrNoRoute) {
		t.Fatalf("expected ErrNoRoute, got %v", err)
	}
	if _, err := r.Resolve(OpTextToImage, TierFast); !errors.Is(err, ErrNoRoute) {
		t.Fatalf("expected ErrNoRoute for missing tier, got %v", err)
	}
}

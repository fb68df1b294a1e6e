package router

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Operation names an abstract generation capability routed to concrete backends.
type Operation string

const (
	OpTextToImage  Operation = "text-to-image"
	OpImageToVideo Operation = "image-to-video"
)

// Tier names a quality/speed/cost preference.
type Tier string

const (
	TierQuality Tier = "quality"
	TierDefault Tier = "default"
	TierFast    Tier = "fast"
)

// RouteParams are per-entry generation defaults merged under the caller's
// explicit parameters.
type RouteParams struct {
	DurationSec float64 `yaml:"durationSec,omitempty" json:"durationSec,omitempty"`
	Width       int     `yaml:"width,omitempty" json:"width,omitempty"`
	Height      int     `yaml:"height,omitempty" json:"height,omitempty"`
	Resolution  string  `yaml:"resolution,omitempty" json:"resolution,omitempty"`
}

// RouteEntry names one backend with its default parameters.
type RouteEntry struct {
	Backend string      `yaml:"backend" json:"backend"`
	Params  RouteParams `yaml:"params,omitempty" json:"params,omitempty"`
}

// RouteConfig is the resolved route for one (operation, tier) pair: a primary
// backend and an ordered fallback list. Immutable after load.
type RouteConfig struct {
	Primary   RouteEntry   `yaml:"primary" json:"primary"`
	Fallbacks []RouteEntry `yaml:"fallbacks,omitempty" json:"fallbacks,omitempty"`
}

// Table holds every configured route.
type Table struct {
	Routes map[Operation]map[Tier]RouteConfig `yaml:"routes"`
}

// DefaultTable returns the built-in route table used when no config file is
// provided.
func DefaultTable() Table {
	return Table{
		Routes: map[Operation]map[Tier]RouteConfig{
			OpTextToImage: {
				TierQuality: {
					Primary:   RouteEntry{Backend: "flux-pro", Params: RouteParams{Width: 1024, Height: 1024}},
					Fallbacks: []RouteEntry{{Backend: "sdxl", Params: RouteParams{Width: 1024, Height: 1024}}},
				},
				TierDefault: {
					Primary: RouteEntry{Backend: "flux-pro", Params: RouteParams{Width: 1024, Height: 1024}},
					Fallbacks: []RouteEntry{
						{Backend: "sdxl", Params: RouteParams{Width: 1024, Height: 1024}},
						{Backend: "flux-schnell", Params: RouteParams{Width: 1024, Height: 1024}},
					},
				},
				TierFast: {
					Primary:   RouteEntry{Backend: "flux-schnell", Params: RouteParams{Width: 768, Height: 768}},
					Fallbacks: []RouteEntry{{Backend: "sdxl", Params: RouteParams{Width: 768, Height: 768}}},
				},
			},
			OpImageToVideo: {
				TierQuality: {
					Primary:   RouteEntry{Backend: "kling-v2", Params: RouteParams{DurationSec: 5, Resolution: "1080p"}},
					Fallbacks: []RouteEntry{{Backend: "wan-2.1", Params: RouteParams{DurationSec: 5, Resolution: "720p"}}},
				},
				TierDefault: {
					Primary: RouteEntry{Backend: "wan-2.1", Params: RouteParams{DurationSec: 5, Resolution: "720p"}},
					Fallbacks: []RouteEntry{
						{Backend: "kling-v2", Params: RouteParams{DurationSec: 5, Resolution: "720p"}},
						{Backend: "ltx-video", Params: RouteParams{DurationSec: 5, Resolution: "720p"}},
					},
				},
				TierFast: {
					Primary:   RouteEntry{Backend: "ltx-video", Params: RouteParams{DurationSec: 5, Resolution: "512p"}},
					Fallbacks: []RouteEntry{{Backend: "hailuo-video", Params: RouteParams{DurationSec: 5, Resolution: "512p"}}},
				},
			},
		},
	}
}

// LoadTable reads a route table from a YAML file.
func LoadTable(path string) (Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Table{}, fmt.Errorf("read route config: %w", err)
	}
	var table Table
	if err := yaml.Unmarshal(data, &table); err != nil {
		return Table{}, fmt.Errorf("parse route config: %w", err)
	}
	if err := table.Validate(); err != nil {
		return Table{}, err
	}
	return table, nil
}

// BackendIDs returns every backend named anywhere in the table, sorted and
// de-duplicated. Used to build the provider registry at startup.
func (t Table) BackendIDs() []string {
	seen := make(map[string]struct{})
	for _, tiers := range t.Routes {
		for _, cfg := range tiers {
			seen[cfg.Primary.Backend] = struct{}{}
			for _, fb := range cfg.Fallbacks {
				seen[fb.Backend] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Validate checks every route names a backend.
func (t Table) Validate() error {
	if len(t.Routes) == 0 {
		return fmt.Errorf("route config has no routes")
	}
	for op, tiers := range t.Routes {
		for tier, cfg := range tiers {
			if cfg.Primary.Backend == "" {
				return fmt.Errorf("route %s/%s has no primary backend", op, tier)
			}
			for i, fb := range cfg.Fallbacks {
				if fb.Backend == "" {
					return fmt.Errorf("route %s/%s fallback %d has no backend", op, tier, i)
				}
			}
		}
	}
	return nil
}

package router

import "fmt"

// SpeedBand is a coarse latency expectation for a backend.
type SpeedBand string

const (
	SpeedFast   SpeedBand = "fast"
	SpeedMedium SpeedBand = "medium"
	SpeedSlow   SpeedBand = "slow"
)

// Estimate is the expected cost and latency band for one generation call.
type Estimate struct {
	CostUSD   float64   `json:"costUsd"`
	SpeedBand SpeedBand `json:"speedBand"`
}

type costFamily int

const (
	// Flat per-second rate; duration drives the price.
	costPerSecond costFamily = iota
	// Fixed price per (duration, resolution) combination; off-table combos
	// fall back to the canonical combo's price.
	costFixedCombo
	// Per-second base rate scaled by a resolution multiplier.
	costResolutionTiered
)

type comboKey struct {
	durationSec float64
	resolution  string
}

type backendPricing struct {
	family      costFamily
	perSecond   float64
	fixedCombos map[comboKey]float64
	canonical   comboKey
	multipliers map[string]float64
	perCall     float64
	speed       SpeedBand
}

// pricing is keyed by backend ID. Image backends price per call, video
// backends per second or per combo.
var pricing = map[string]backendPricing{
	"flux-pro":     {family: costPerSecond, perCall: 0.05, speed: SpeedMedium},
	"flux-schnell": {family: costPerSecond, perCall: 0.003, speed: SpeedFast},
	"sdxl":         {family: costPerSecond, perCall: 0.01, speed: SpeedFast},

	"wan-2.1": {family: costPerSecond, perSecond: 0.05, speed: SpeedMedium},
	"kling-v2": {
		family: costFixedCombo,
		fixedCombos: map[comboKey]float64{
			{durationSec: 5, resolution: "720p"}:   0.25,
			{durationSec: 5, resolution: "1080p"}:  0.45,
			{durationSec: 10, resolution: "720p"}:  0.50,
			{durationSec: 10, resolution: "1080p"}: 0.90,
		},
		canonical: comboKey{durationSec: 5, resolution: "720p"},
		speed:     SpeedSlow,
	},
	"hailuo-video": {
		family:    costResolutionTiered,
		perSecond: 0.045,
		multipliers: map[string]float64{
			"512p":  0.5,
			"720p":  1.0,
			"1080p": 1.6,
		},
		speed: SpeedMedium,
	},
	"ltx-video": {family: costPerSecond, perSecond: 0.02, speed: SpeedFast},
}

// EstimateCost maps a backend and its actual generation parameters to an
// expected cost and speed band. It is deterministic and side-effect-free;
// unknown backends are an error so misconfigured routes surface early.
func EstimateCost(backendID string, durationSec float64, resolution string) (Estimate, error) {
	p, ok := pricing[backendID]
	if !ok {
		return Estimate{}, fmt.Errorf("no pricing for backend %s", backendID)
	}

	switch p.family {
	case costFixedCombo:
		if price, ok := p.fixedCombos[comboKey{durationSec: durationSec, resolution: resolution}]; ok {
			return Estimate{CostUSD: price, SpeedBand: p.speed}, nil
		}
		return Estimate{CostUSD: p.fixedCombos[p.canonical], SpeedBand: p.speed}, nil
	case costResolutionTiered:
		mult, ok := p.multipliers[resolution]
		if !ok {
			mult = 1.0
		}
		return Estimate{CostUSD: p.perSecond * durationSec * mult, SpeedBand: p.speed}, nil
	default:
		if p.perCall > 0 {
			return Estimate{CostUSD: p.perCall, SpeedBand: p.speed}, nil
		}
		return Estimate{CostUSD: p.perSecond * durationSec, SpeedBand: p.speed}, nil
	}
}

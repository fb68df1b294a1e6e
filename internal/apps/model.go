package apps

import (
	"time"

	"appgen-backend/internal/provider"
)

// Screen is one generated screen attached to an app, keyed by its position in
// the planned structure.
type Screen struct {
	Name       string `json:"name"`
	StorageKey string `json:"storageKey"`
}

// App is the target artifact a generation job builds: concept text plus the
// storage keys of every generated asset.
type App struct {
	ID           string                      `json:"id"`
	OwnerID      string                      `json:"ownerId"`
	Name         string                      `json:"name"`
	Description  string                      `json:"description"`
	Concept      *provider.ConceptDescriptor `json:"concept,omitempty"`
	IconKey      string                      `json:"iconKey,omitempty"`
	CoverKey     string                      `json:"coverKey,omitempty"`
	CoverBackend string                      `json:"coverBackend,omitempty"`
	CoverCostUSD *float64                    `json:"coverCostUsd,omitempty"`
	CoverSpeed   string                      `json:"coverSpeed,omitempty"`
	Screens      map[int]Screen              `json:"screens,omitempty"`
	CreatedAt    time.Time                   `json:"createdAt"`
	UpdatedAt    time.Time                   `json:"updatedAt"`
}

// OrderedScreens returns the app's screens sorted by position, skipping gaps
// left by failed units.
func (a App) OrderedScreens() []Screen {
	if len(a.Screens) == 0 {
		return nil
	}
	maxPos := -1
	for pos := range a.Screens {
		if pos > maxPos {
			maxPos = pos
		}
	}
	out := make([]Screen, 0, len(a.Screens))
	for pos := 0; pos <= maxPos; pos++ {
		if screen, ok := a.Screens[pos]; ok {
			out = append(out, screen)
		}
	}
	return out
}

package apps

import (
	"context"
	"sync"
	"time"

	"appgen-backend/internal/provider"
)

// MemoryRepo stores apps in memory and is safe for concurrent use.
type MemoryRepo struct {
	mu   sync.RWMutex
	byID map[string]App
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{byID: make(map[string]App)}
}

// Create stores the app.
func (r *MemoryRepo) Create(ctx context.Context, app App) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[app.ID] = app
	return nil
}

// GetByID returns an app by its ID.
func (r *MemoryRepo) GetByID(ctx context.Context, appID string) (App, error) {
	if err := ctx.Err(); err != nil {
		return App{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	app, ok := r.byID[appID]
	if !ok {
		return App{}, ErrNotFound
	}
	if len(app.Screens) > 0 {
		copied := make(map[int]Screen, len(app.Screens))
		for pos, screen := range app.Screens {
			copied[pos] = screen
		}
		app.Screens = copied
	}
	return app, nil
}

// SetConcept records the planned concept and display name.
func (r *MemoryRepo) SetConcept(ctx context.Context, appID, name string, concept provider.ConceptDescriptor) error {
	return r.patch(ctx, appID, func(app *App) {
		if name != "" {
			app.Name = name
		}
		c := concept
		app.Concept = &c
	})
}

// SetIcon records the icon asset key.
func (r *MemoryRepo) SetIcon(ctx context.Context, appID, storageKey string) error {
	return r.patch(ctx, appID, func(app *App) {
		app.IconKey = storageKey
	})
}

// UpsertScreen records one generated screen at its planned position.
func (r *MemoryRepo) UpsertScreen(ctx context.Context, appID string, position int, screen Screen) error {
	return r.patch(ctx, appID, func(app *App) {
		if app.Screens == nil {
			app.Screens = make(map[int]Screen)
		}
		app.Screens[position] = screen
	})
}

// SetCover records the cover asset key and its incurred cost metadata.
func (r *MemoryRepo) SetCover(ctx context.Context, appID, storageKey, backend string, costUSD float64, speedBand string) error {
	return r.patch(ctx, appID, func(app *App) {
		app.CoverKey = storageKey
		app.CoverBackend = backend
		cost := costUSD
		app.CoverCostUSD = &cost
		app.CoverSpeed = speedBand
	})
}

func (r *MemoryRepo) patch(ctx context.Context, appID string, apply func(*App)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	app, ok := r.byID[appID]
	if !ok {
		return ErrNotFound
	}
	apply(&app)
	app.UpdatedAt = time.Now().UTC()
	r.byID[appID] = app
	return nil
}

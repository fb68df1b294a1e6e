package apps

import (
	"context"

	"appgen-backend/internal/provider"
)

// Repo defines persistence operations for apps. Mutations are small
// field-subset patches so concurrent pipeline branches never clobber each
// other's writes.
type Repo interface {
	Create(ctx context.Context, app App) error
	GetByID(ctx context.Context, appID string) (App, error)
	SetConcept(ctx context.Context, appID, name string, concept provider.ConceptDescriptor) error
	SetIcon(ctx context.Context, appID, storageKey string) error
	UpsertScreen(ctx context.Context, appID string, position int, screen Screen) error
	SetCover(ctx context.Context, appID, storageKey, backend string, costUSD float64, speedBand string) error
}

package apps

import (
	"context"
	"errors"
	"testing"
	"time"

	"appgen-backend/internal/provider"
)

func TestMemoryRepoScreenUpsertAndOrdering(t *testing.T) {
	repo := NewMemoryRepo()
	app := App{ID: "app-1", OwnerID: "user-1", Description: "demo", CreatedAt: time.Now().UTC()}
	if err := repo.Create(context.Background(), app); err != nil {
		t.Fatalf("create: %v", err)
	}

	// Units land out of order; position 1 never lands (failed unit).
	if err := repo.UpsertScreen(context.Background(), "app-1", 2, Screen{Name: "Settings", StorageKey: "k2"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := repo.UpsertScreen(context.Background(), "app-1", 0, Screen{Name: "Home", StorageKey: "k0"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := repo.GetByID(context.Background(), "app-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	ordered := got.OrderedScreens()
	if len(ordered) != 2 {
		t.Fatalf("expected 2 screens, got %d", len(ordered))
	}
	if ordered[0].Name != "Home" || ordered[1].Name != "Settings" {
		t.Fatalf("expected position order, got %+v", ordered)
	}
}

func TestMemoryRepoPatchesMissingApp(t *testing.T) {
	repo := NewMemoryRepo()
	err := repo.SetIcon(context.Background(), "nope", "key")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryRepoSetConceptKeepsNameWhenEmpty(t *testing.T) {
	repo := NewMemoryRepo()
	if err := repo.Create(context.Background(), App{ID: "app-1", OwnerID: "u", Name: "Original"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	concept := provider.ConceptDescriptor{Name: "Planned", Tagline: "t"}
	if err := repo.SetConcept(context.Background(), "app-1", "", concept); err != nil {
		t.Fatalf("set concept: %v", err)
	}
	got, err := repo.GetByID(context.Background(), "app-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "Original" {
		t.Fatalf("expected name preserved, got %q", got.Name)
	}
	if got.Concept == nil || got.Concept.Name != "Planned" {
		t.Fatalf("expected concept stored, got %+v", got.Concept)
	}
}

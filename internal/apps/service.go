package apps

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Service contains business logic for apps.
type Service struct {
	Repo Repo
}

// Create registers a new app shell to generate assets for.
func (s *Service) Create(ctx context.Context, ownerID, name, description string) (App, error) {
	if strings.TrimSpace(ownerID) == "" {
		return App{}, errors.New("ownerID is required")
	}
	if strings.TrimSpace(description) == "" {
		return App{}, errors.New("description is required")
	}

	app := App{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		Name:        strings.TrimSpace(name),
		Description: strings.TrimSpace(description),
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.Repo.Create(ctx, app); err != nil {
		return App{}, err
	}
	return app, nil
}

// Get returns an app by ID.
func (s *Service) Get(ctx context.Context, appID string) (App, error) {
	if appID == "" {
		return App{}, errors.New("appID is required")
	}
	return s.Repo.GetByID(ctx, appID)
}

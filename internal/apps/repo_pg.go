package apps

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"appgen-backend/internal/provider"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

// Create inserts a new app.
func (r *PGRepo) Create(ctx context.Context, app App) error {
	const query = `
INSERT INTO apps (id, owner_id, name, description, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $5)`
	_, err := r.DB.ExecContext(ctx, query,
		app.ID,
		app.OwnerID,
		app.Name,
		app.Description,
		app.CreatedAt,
	)
	return err
}

// GetByID returns an app by ID.
func (r *PGRepo) GetByID(ctx context.Context, appID string) (App, error) {
	const query = `
SELECT id, owner_id, name, description, concept, icon_key, cover_key,
       cover_backend, cover_cost_usd, cover_speed, screens, created_at, updated_at
FROM apps
WHERE id = $1
LIMIT 1`
	var a App
	var concept sql.NullString
	var iconKey sql.NullString
	var coverKey sql.NullString
	var coverBackend sql.NullString
	var coverCost sql.NullFloat64
	var coverSpeed sql.NullString
	var screens sql.NullString

	err := r.DB.QueryRowContext(ctx, query, appID).Scan(
		&a.ID,
		&a.OwnerID,
		&a.Name,
		&a.Description,
		&concept,
		&iconKey,
		&coverKey,
		&coverBackend,
		&coverCost,
		&coverSpeed,
		&screens,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return App{}, ErrNotFound
	}
	if err != nil {
		return App{}, err
	}

	if concept.Valid && concept.String != "" {
		var parsed provider.ConceptDescriptor
		if err := json.Unmarshal([]byte(concept.String), &parsed); err != nil {
			return App{}, fmt.Errorf("app %s concept parse: %w", appID, err)
		}
		a.Concept = &parsed
	}
	a.IconKey = iconKey.String
	a.CoverKey = coverKey.String
	a.CoverBackend = coverBackend.String
	if coverCost.Valid {
		cost := coverCost.Float64
		a.CoverCostUSD = &cost
	}
	a.CoverSpeed = coverSpeed.String
	if screens.Valid && screens.String != "" {
		parsed, err := unmarshalScreens([]byte(screens.String))
		if err != nil {
			return App{}, fmt.Errorf("app %s screens parse: %w", appID, err)
		}
		a.Screens = parsed
	}
	return a, nil
}

// SetConcept records the planned concept and display name.
func (r *PGRepo) SetConcept(ctx context.Context, appID, name string, concept provider.ConceptDescriptor) error {
	payload, err := json.Marshal(concept)
	if err != nil {
		return err
	}
	const query = `
UPDATE apps
SET name = CASE WHEN $2 = '' THEN name ELSE $2 END, concept = $3, updated_at = $4
WHERE id = $1`
	return r.exec(ctx, appID, query, appID, name, string(payload), time.Now().UTC())
}

// SetIcon records the icon asset key.
func (r *PGRepo) SetIcon(ctx context.Context, appID, storageKey string) error {
	const query = `UPDATE apps SET icon_key = $2, updated_at = $3 WHERE id = $1`
	return r.exec(ctx, appID, query, appID, storageKey, time.Now().UTC())
}

// UpsertScreen records one generated screen at its planned position using a
// keyed JSONB patch, so concurrent unit writes never overwrite each other.
func (r *PGRepo) UpsertScreen(ctx context.Context, appID string, position int, screen Screen) error {
	payload, err := json.Marshal(screen)
	if err != nil {
		return err
	}
	const query = `
UPDATE apps
SET screens = jsonb_set(COALESCE(screens, '{}'::jsonb), ARRAY[$2::text], $3::jsonb),
    updated_at = $4
WHERE id = $1`
	return r.exec(ctx, appID, query, appID, strconv.Itoa(position), string(payload), time.Now().UTC())
}

// SetCover records the cover asset key and its incurred cost metadata.
func (r *PGRepo) SetCover(ctx context.Context, appID, storageKey, backend string, costUSD float64, speedBand string) error {
	const query = `
UPDATE apps
SET cover_key = $2, cover_backend = $3, cover_cost_usd = $4, cover_speed = $5, updated_at = $6
WHERE id = $1`
	return r.exec(ctx, appID, query, appID, storageKey, backend, costUSD, speedBand, time.Now().UTC())
}

func (r *PGRepo) exec(ctx context.Context, appID, query string, args ...any) error {
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func unmarshalScreens(raw []byte) (map[int]Screen, error) {
	var byKey map[string]Screen
	if err := json.Unmarshal(raw, &byKey); err != nil {
		return nil, err
	}
	out := make(map[int]Screen, len(byKey))
	for key, screen := range byKey {
		pos, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("screen position %q: %w", key, err)
		}
		out[pos] = screen
	}
	return out, nil
}

var _ Repo = (*PGRepo)(nil)

package generation

import (
	"context"
	"time"
)

// Repo persists generation jobs. Mutations are small field-subset patches so
// concurrent branch writers never need a read-modify-write cycle against a
// full job snapshot.
type Repo interface {
	Create(ctx context.Context, job Job) error
	GetByID(ctx context.Context, jobID string) (Job, error)
	ListByApp(ctx context.Context, appID string, limit, offset int) ([]Job, error)

	SetStatus(ctx context.Context, jobID, status, currentStep string, startedAt *time.Time) error
	SetProgress(ctx context.Context, jobID string, percentage int, currentStep string) error
	SetScreensTotal(ctx context.Context, jobID string, total int) error
	IncScreensGenerated(ctx context.Context, jobID string) error
	AppendFailedScreen(ctx context.Context, jobID string, failed FailedScreen) error
	MarkTerminal(ctx context.Context, jobID, status string, errorMessage *string, completedAt time.Time) error

	// ListStale returns non-terminal jobs whose last update is older than
	// cutoff. Used by the sweeper, never by the orchestrator.
	ListStale(ctx context.Context, cutoff time.Time, limit int) ([]Job, error)
}

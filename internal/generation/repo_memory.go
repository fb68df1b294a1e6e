package generation

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repo for tests and local development.
type MemoryRepo struct {
	mu   sync.Mutex
	jobs map[string]Job
}

// NewMemoryRepo builds an empty in-memory repo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{jobs: make(map[string]Job)}
}

// Create stores a new job.
func (r *MemoryRepo) Create(ctx context.Context, job Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if job.UpdatedAt.IsZero() {
		job.UpdatedAt = job.CreatedAt
	}
	r.jobs[job.ID] = job
	return nil
}

// GetByID returns a job by ID.
func (r *MemoryRepo) GetByID(ctx context.Context, jobID string) (Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return Job{}, ErrNotFound
	}
	return cloneJob(job), nil
}

// ListByApp returns jobs for an app ordered newest-first.
func (r *MemoryRepo) ListByApp(ctx context.Context, appID string, limit, offset int) ([]Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Job
	for _, job := range r.jobs {
		if job.AppID == appID {
			out = append(out, cloneJob(job))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

// SetStatus patches the status and step label.
func (r *MemoryRepo) SetStatus(ctx context.Context, jobID, status, currentStep string, startedAt *time.Time) error {
	return r.patch(jobID, func(job *Job) {
		job.Status = status
		job.CurrentStep = currentStep
		if startedAt != nil {
			job.StartedAt = startedAt
		}
	})
}

// SetProgress patches the progress percentage and step label.
func (r *MemoryRepo) SetProgress(ctx context.Context, jobID string, percentage int, currentStep string) error {
	return r.patch(jobID, func(job *Job) {
		job.ProgressPercentage = percentage
		if currentStep != "" {
			job.CurrentStep = currentStep
		}
	})
}

// SetScreensTotal patches the planned unit count.
func (r *MemoryRepo) SetScreensTotal(ctx context.Context, jobID string, total int) error {
	return r.patch(jobID, func(job *Job) { job.ScreensTotal = total })
}

// IncScreensGenerated adds one to the generated-unit counter.
func (r *MemoryRepo) IncScreensGenerated(ctx context.Context, jobID string) error {
	return r.patch(jobID, func(job *Job) { job.ScreensGenerated++ })
}

// AppendFailedScreen appends one failed-unit entry.
func (r *MemoryRepo) AppendFailedScreen(ctx context.Context, jobID string, failed FailedScreen) error {
	return r.patch(jobID, func(job *Job) {
		job.FailedScreens = append(job.FailedScreens, failed)
	})
}

// MarkTerminal writes the terminal status, error, and completion time.
func (r *MemoryRepo) MarkTerminal(ctx context.Context, jobID, status string, errorMessage *string, completedAt time.Time) error {
	return r.patch(jobID, func(job *Job) {
		job.Status = status
		job.ErrorMessage = errorMessage
		job.CompletedAt = &completedAt
	})
}

// ListStale returns non-terminal jobs last updated before cutoff.
func (r *MemoryRepo) ListStale(ctx context.Context, cutoff time.Time, limit int) ([]Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Job
	for _, job := range r.jobs {
		if IsTerminal(job.Status) {
			continue
		}
		if job.UpdatedAt.Before(cutoff) {
			out = append(out, cloneJob(job))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepo) patch(jobID string, apply func(*Job)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return ErrNotFound
	}
	apply(&job)
	job.UpdatedAt = time.Now().UTC()
	r.jobs[jobID] = job
	return nil
}

func cloneJob(job Job) Job {
	if job.FailedScreens != nil {
		job.FailedScreens = append([]FailedScreen(nil), job.FailedScreens...)
	}
	return job
}

var _ Repo = (*MemoryRepo)(nil)

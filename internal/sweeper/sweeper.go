// Package sweeper marks jobs stuck in a generating state as failed after a
// timeout. Mid-job cancellation is not part of the orchestrator's contract, so
// a crashed process can leave jobs non-terminal; the sweep is the operational
// backstop that keeps pollers from waiting forever.
package sweeper

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"appgen-backend/internal/generation"
	"appgen-backend/internal/shared/metrics"
	"appgen-backend/internal/shared/telemetry"
)

// Sweeper periodically fails stale generation jobs.
type Sweeper struct {
	Jobs     generation.Repo
	StaleAge time.Duration
	Schedule string

	cron *cron.Cron
}

// New constructs a sweeper over the job repo.
func New(jobs generation.Repo, staleAge time.Duration, schedule string) *Sweeper {
	if staleAge <= 0 {
		staleAge = 30 * time.Minute
	}
	if schedule == "" {
		schedule = "@every 5m"
	}
	return &Sweeper{Jobs: jobs, StaleAge: staleAge, Schedule: schedule}
}

// Start schedules the sweep. Returns an error only for an invalid schedule.
func (s *Sweeper) Start() error {
	s.cron = cron.New()
	if _, err := s.cron.AddFunc(s.Schedule, func() {
		s.Sweep(context.Background())
	}); err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts scheduling and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
	}
}

// Sweep fails every non-terminal job whose last update is older than StaleAge.
// Returns the number of jobs swept.
func (s *Sweeper) Sweep(ctx context.Context) int {
	cutoff := time.Now().UTC().Add(-s.StaleAge)
	stale, err := s.Jobs.ListStale(ctx, cutoff, 100)
	if err != nil {
		telemetry.Error("sweeper.list_failed", map[string]any{"error": err.Error()})
		return 0
	}

	swept := 0
	for _, job := range stale {
		msg := "job timed out while generating"
		if err := s.Jobs.MarkTerminal(ctx, job.ID, generation.StatusFailed, &msg, time.Now().UTC()); err != nil {
			telemetry.Error("sweeper.mark_failed", map[string]any{"job_id": job.ID, "error": err.Error()})
			continue
		}
		metrics.IncJobFailed()
		telemetry.Info("sweeper.job_failed", map[string]any{
			"job_id":       job.ID,
			"app_id":       job.AppID,
			"stale_status": job.Status,
			"updated_at":   job.UpdatedAt,
		})
		swept++
	}
	return swept
}

package generation

import (
	"context"
	"testing"
	"time"
)

func createTrackedJob(t *testing.T, repo *MemoryRepo) string {
	t.Helper()
	job := Job{ID: "job-1", AppID: "app-1", OwnerID: "user-1", Status: StatusPending, CreatedAt: time.Now().UTC()}
	if err := repo.Create(context.Background(), job); err != nil {
		t.Fatalf("create job: %v", err)
	}
	return job.ID
}

func progressOf(t *testing.T, repo *MemoryRepo, jobID string) int {
	t.Helper()
	job, err := repo.GetByID(context.Background(), jobID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	return job.ProgressPercentage
}

func TestPhaseBudgetSumsTo100(t *testing.T) {
	if got := DefaultPhaseBudget.Total(); got != 100 {
		t.Fatalf("expected budget total 100, got %d", got)
	}
}

func TestTrackerMilestonesAccumulate(t *testing.T) {
	repo := NewMemoryRepo()
	jobID := createTrackedJob(t, repo)
	tracker := NewTracker(repo, DefaultPhaseBudget)
	tracker.SetUnitCount(jobID, 5)
	ctx := context.Background()

	if err := tracker.ApplyConcept(ctx, jobID, "Concept ready"); err != nil {
		t.Fatalf("apply concept: %v", err)
	}
	if got := progressOf(t, repo, jobID); got != 15 {
		t.Fatalf("after concept: expected 15, got %d", got)
	}

	if err := tracker.ApplyIcon(ctx, jobID, "App icon ready"); err != nil {
		t.Fatalf("apply icon: %v", err)
	}
	if got := progressOf(t, repo, jobID); got != 30 {
		t.Fatalf("after icon: expected 30, got %d", got)
	}

	if err := tracker.ApplyFirstScreen(ctx, jobID, "First screen ready"); err != nil {
		t.Fatalf("apply first screen: %v", err)
	}
	if got := progressOf(t, repo, jobID); got != 50 {
		t.Fatalf("after first screen: expected 50, got %d", got)
	}
}

func TestTrackerMilestoneIdempotent(t *testing.T) {
	repo := NewMemoryRepo()
	jobID := createTrackedJob(t, repo)
	tracker := NewTracker(repo, DefaultPhaseBudget)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := tracker.ApplyConcept(ctx, jobID, ""); err != nil {
			t.Fatalf("apply concept: %v", err)
		}
	}
	if got := progressOf(t, repo, jobID); got != 15 {
		t.Fatalf("repeat concept milestones must not double-count: got %d", got)
	}
}

func TestTrackerUnitCreditSumsToPhaseWeight(t *testing.T) {
	for _, total := range []int{2, 3, 5, 7, 11} {
		repo := NewMemoryRepo()
		jobID := createTrackedJob(t, repo)
		tracker := NewTracker(repo, DefaultPhaseBudget)
		tracker.SetUnitCount(jobID, total)
		ctx := context.Background()

		if err := tracker.ApplyConcept(ctx, jobID, ""); err != nil {
			t.Fatalf("apply concept: %v", err)
		}
		if err := tracker.ApplyIcon(ctx, jobID, ""); err != nil {
			t.Fatalf("apply icon: %v", err)
		}
		if err := tracker.ApplyFirstScreen(ctx, jobID, ""); err != nil {
			t.Fatalf("apply first screen: %v", err)
		}
		for i := 0; i < total-1; i++ {
			if err := tracker.ApplyUnit(ctx, jobID, i, ""); err != nil {
				t.Fatalf("apply unit %d: %v", i, err)
			}
			if got := progressOf(t, repo, jobID); got > 100 {
				t.Fatalf("total=%d unit=%d: progress exceeded 100: %d", total, i, got)
			}
		}
		got := progressOf(t, repo, jobID)
		if got < 99 || got > 100 {
			t.Fatalf("total=%d: expected final progress 100 within rounding, got %d", total, got)
		}
	}
}

func TestTrackerSingleUnitPlanAwardsDivisibleWeight(t *testing.T) {
	repo := NewMemoryRepo()
	jobID := createTrackedJob(t, repo)
	tracker := NewTracker(repo, DefaultPhaseBudget)
	tracker.SetUnitCount(jobID, 1)
	ctx := context.Background()

	if err := tracker.ApplyFirstScreen(ctx, jobID, ""); err != nil {
		t.Fatalf("apply first screen: %v", err)
	}
	// First-screen weight plus the full remaining-screens weight.
	if got := progressOf(t, repo, jobID); got != 70 {
		t.Fatalf("expected 70, got %d", got)
	}
}

func TestTrackerUnitCreditToleratesOutOfOrderCompletion(t *testing.T) {
	repo := NewMemoryRepo()
	jobID := createTrackedJob(t, repo)
	tracker := NewTracker(repo, DefaultPhaseBudget)
	tracker.SetUnitCount(jobID, 5)
	ctx := context.Background()

	// Highest index lands first; later lower-index completions must not
	// shrink the divisible-phase credit.
	if err := tracker.ApplyUnit(ctx, jobID, 3, ""); err != nil {
		t.Fatalf("apply unit: %v", err)
	}
	high := progressOf(t, repo, jobID)
	if err := tracker.ApplyUnit(ctx, jobID, 0, ""); err != nil {
		t.Fatalf("apply unit: %v", err)
	}
	if got := progressOf(t, repo, jobID); got < high {
		t.Fatalf("credit regressed from %d to %d", high, got)
	}
}

package generation

import (
	"context"
	"math"
	"sync"
)

// PhaseBudget allocates 100 progress points across the pipeline phases. The
// RemainingScreens weight is divided evenly across the units that follow the
// first one once structure planning fixes the unit count.
type PhaseBudget struct {
	Concept          int
	Icon             int
	FirstScreen      int
	RemainingScreens int
}

// DefaultPhaseBudget is the standard split.
var DefaultPhaseBudget = PhaseBudget{
	Concept:          15,
	Icon:             15,
	FirstScreen:      20,
	RemainingScreens: 50,
}

// Total returns the sum of all phase weights.
func (b PhaseBudget) Total() int {
	return b.Concept + b.Icon + b.FirstScreen + b.RemainingScreens
}

// Tracker computes and writes a job's progress percentage from phase
// milestones. Each milestone is a set-to-value operation, so re-applying the
// same milestone never double-counts.
//
// The tracker serializes its own bookkeeping per job, but the resulting
// SetProgress writes from concurrent branches are not ordered at the store: a
// late write computed from an older milestone set can land after a higher
// value and transiently lower the stored percentage. Progress is advisory, so
// this is accepted rather than serializing otherwise-independent branches.
type Tracker struct {
	Repo   Repo
	Budget PhaseBudget

	mu   sync.Mutex
	jobs map[string]*jobProgress
}

type jobProgress struct {
	concept     bool
	icon        bool
	firstScreen bool
	// unitCredit holds points earned in the divisible phase. Per-unit credit
	// is perUnit × (unitIndex+1), applied as a max so out-of-order unit
	// completions and repeats are both safe.
	unitCredit     float64
	remainingUnits int
}

// NewTracker builds a tracker writing through repo with the given budget.
func NewTracker(repo Repo, budget PhaseBudget) *Tracker {
	if budget.Total() == 0 {
		budget = DefaultPhaseBudget
	}
	return &Tracker{Repo: repo, Budget: budget, jobs: make(map[string]*jobProgress)}
}

// SetUnitCount records the planned unit count so per-unit credit can be
// computed. Must be called before ApplyUnit.
func (t *Tracker) SetUnitCount(jobID string, screensTotal int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	state := t.state(jobID)
	state.remainingUnits = screensTotal - 1
	if state.remainingUnits < 0 {
		state.remainingUnits = 0
	}
}

// ApplyConcept awards the concept phase weight.
func (t *Tracker) ApplyConcept(ctx context.Context, jobID, step string) error {
	return t.apply(ctx, jobID, step, func(state *jobProgress) { state.concept = true })
}

// ApplyIcon awards the icon phase weight.
func (t *Tracker) ApplyIcon(ctx context.Context, jobID, step string) error {
	return t.apply(ctx, jobID, step, func(state *jobProgress) { state.icon = true })
}

// ApplyFirstScreen awards the first-screen phase weight. When the plan has no
// remaining units the divisible weight is awarded in full here too.
func (t *Tracker) ApplyFirstScreen(ctx context.Context, jobID, step string) error {
	return t.apply(ctx, jobID, step, func(state *jobProgress) {
		state.firstScreen = true
		if state.remainingUnits == 0 {
			state.unitCredit = float64(t.Budget.RemainingScreens)
		}
	})
}

// ApplyUnit awards credit for one remaining unit. unitIndex is 0-based within
// the remaining units; credit is cumulative, so index k sets the divisible
// phase to (k+1)/remaining of its weight.
func (t *Tracker) ApplyUnit(ctx context.Context, jobID string, unitIndex int, step string) error {
	return t.apply(ctx, jobID, step, func(state *jobProgress) {
		if state.remainingUnits <= 0 {
			return
		}
		perUnit := float64(t.Budget.RemainingScreens) / float64(state.remainingUnits)
		credit := perUnit * float64(unitIndex+1)
		if credit > float64(t.Budget.RemainingScreens) {
			credit = float64(t.Budget.RemainingScreens)
		}
		if credit > state.unitCredit {
			state.unitCredit = credit
		}
	})
}

// Forget drops per-job bookkeeping once the job reaches a terminal status.
func (t *Tracker) Forget(jobID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.jobs, jobID)
}

func (t *Tracker) apply(ctx context.Context, jobID, step string, mutate func(*jobProgress)) error {
	t.mu.Lock()
	state := t.state(jobID)
	mutate(state)
	value := t.valueLocked(state)
	t.mu.Unlock()
	return t.Repo.SetProgress(ctx, jobID, value, step)
}

func (t *Tracker) state(jobID string) *jobProgress {
	state, ok := t.jobs[jobID]
	if !ok {
		state = &jobProgress{}
		t.jobs[jobID] = state
	}
	return state
}

func (t *Tracker) valueLocked(state *jobProgress) int {
	total := state.unitCredit
	if state.concept {
		total += float64(t.Budget.Concept)
	}
	if state.icon {
		total += float64(t.Budget.Icon)
	}
	if state.firstScreen {
		total += float64(t.Budget.FirstScreen)
	}
	value := int(math.Round(total))
	if value > 100 {
		value = 100
	}
	return value
}

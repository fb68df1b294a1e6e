package generation

import "time"

// Job statuses. A job is created pending, moves through the generating states,
// and ends in exactly one terminal status.
const (
	StatusPending           = "pending"
	StatusGeneratingConcept = "generating_concept"
	StatusGeneratingScreens = "generating_screens"
	StatusCompleted         = "completed"
	StatusPartial           = "partial"
	StatusFailed            = "failed"
)

// IsTerminal reports whether a status permits no further transitions.
func IsTerminal(status string) bool {
	switch status {
	case StatusCompleted, StatusPartial, StatusFailed:
		return true
	default:
		return false
	}
}

// FailedScreen records one fan-out unit that failed after exhausting its
// retries and fallbacks.
type FailedScreen struct {
	UnitName     string `json:"unitName"`
	ErrorMessage string `json:"errorMessage"`
}

// Job is the poll-able progress record for one generation run. It is written
// only by the orchestrator and its stage callbacks; callers read it.
//
// ProgressPercentage is advisory: concurrent branch milestones may land out of
// order at the store, so a reader can transiently observe a lower value than
// one it already saw. See Tracker for why this is accepted.
type Job struct {
	ID                 string         `json:"id"`
	AppID              string         `json:"appId"`
	OwnerID            string         `json:"ownerId"`
	Status             string         `json:"status"`
	CurrentStep        string         `json:"currentStep"`
	ProgressPercentage int            `json:"progressPercentage"`
	ScreensTotal       int            `json:"screensTotal"`
	ScreensGenerated   int            `json:"screensGenerated"`
	FailedScreens      []FailedScreen `json:"failedScreens,omitempty"`
	ErrorMessage       *string        `json:"error,omitempty"`
	StartedAt          *time.Time     `json:"startedAt,omitempty"`
	CompletedAt        *time.Time     `json:"completedAt,omitempty"`
	CreatedAt          time.Time      `json:"createdAt"`
	UpdatedAt          time.Time      `json:"updatedAt"`
}

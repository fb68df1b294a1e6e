package generation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"appgen-backend/internal/apps"
	"appgen-backend/internal/provider"
	"appgen-backend/internal/router"
	"appgen-backend/internal/shared/metrics"
	"appgen-backend/internal/shared/storage/object"
	"appgen-backend/internal/shared/telemetry"
	"appgen-backend/internal/shared/util"
)

// Input selects the generation starting point. Exactly one variant exists per
// request; the type makes "exactly one of" structural rather than a runtime
// check over optional fields.
type Input interface {
	isInput()
}

// DescriptionInput starts from a free-text product description; the concept is
// planned as the first pipeline phase.
type DescriptionInput struct {
	Description string
}

func (DescriptionInput) isInput() {}

// ConceptInput reuses the concept already stored on the app record, skipping
// concept planning.
type ConceptInput struct{}

func (ConceptInput) isInput() {}

// Service is the job orchestrator: it creates the job record, spawns the
// asynchronous pipeline run, and owns every terminal-status write.
type Service struct {
	Repo    Repo
	Apps    apps.Repo
	Planner provider.Planner
	Router  *router.Router
	Fetcher *Fetcher
	Store   object.ObjectStore
	Tracker *Tracker

	ScreenCount int
}

// Start creates a pending job and schedules its asynchronous execution. The
// returned job is the only handle the caller gets; all further communication
// happens through the job record.
func (s *Service) Start(ctx context.Context, appID, ownerID string, input Input, tier router.Tier) (Job, error) {
	if appID == "" || ownerID == "" {
		return Job{}, errors.New("appID and ownerID are required")
	}
	if tier == "" {
		tier = router.TierDefault
	}

	pipeline := PipelineInput{AppID: appID, OwnerID: ownerID, Tier: tier}
	switch v := input.(type) {
	case DescriptionInput:
		if strings.TrimSpace(v.Description) == "" {
			return Job{}, errors.New("description is required")
		}
		pipeline.Description = strings.TrimSpace(v.Description)
	case ConceptInput:
		app, err := s.Apps.GetByID(ctx, appID)
		if err != nil {
			return Job{}, err
		}
		if app.Concept == nil {
			return Job{}, errors.New("app has no stored concept")
		}
		pipeline.Concept = app.Concept
	default:
		return Job{}, fmt.Errorf("unsupported input variant %T", input)
	}

	job := Job{
		ID:          uuid.NewString(),
		AppID:       appID,
		OwnerID:     ownerID,
		Status:      StatusPending,
		CurrentStep: "Queued",
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.Repo.Create(ctx, job); err != nil {
		return Job{}, err
	}
	pipeline.JobID = job.ID

	go s.runJob(backgroundWithRequestID(ctx), pipeline)

	return job, nil
}

// Get returns a job by ID.
func (s *Service) Get(ctx context.Context, jobID string) (Job, error) {
	if jobID == "" {
		return Job{}, errors.New("jobID is required")
	}
	return s.Repo.GetByID(ctx, jobID)
}

// List returns jobs for an app ordered newest-first.
func (s *Service) List(ctx context.Context, appID string, limit, offset int) ([]Job, error) {
	if appID == "" {
		return nil, errors.New("appID is required")
	}
	return s.Repo.ListByApp(ctx, appID, limit, offset)
}

func (s *Service) runJob(ctx context.Context, in PipelineInput) {
	startedAt := time.Now().UTC()
	defer func() {
		if r := recover(); r != nil {
			s.failJob(ctx, in, fmt.Errorf("panic: %v", r), &startedAt)
		}
	}()

	if err := s.Repo.SetStatus(ctx, in.JobID, StatusGeneratingConcept, "Planning concept", &startedAt); err != nil {
		s.failJob(ctx, in, fmt.Errorf("set generating_concept failed: %w", err), &startedAt)
		return
	}
	metrics.IncJobStarted()
	telemetry.Info("generation.status", map[string]any{
		"request_id":        requestIDFromContext(ctx),
		"owner_id":          in.OwnerID,
		"app_id":            in.AppID,
		"job_id":            in.JobID,
		"status":            StatusGeneratingConcept,
		"status_transition": "pending->generating_concept",
	})

	exec := &Executor{
		Planner:     s.Planner,
		Router:      s.Router,
		Fetcher:     s.Fetcher,
		Store:       s.Store,
		Apps:        s.Apps,
		Jobs:        s.Repo,
		Tracker:     s.Tracker,
		ScreenCount: s.ScreenCount,
	}
	outcome, err := exec.Run(ctx, in)
	if err != nil {
		s.failJob(ctx, in, err, &startedAt)
		return
	}

	status := terminalStatus(outcome)
	var errorMessage *string
	if status == StatusFailed {
		msg := "no units succeeded"
		errorMessage = &msg
	}
	completedAt := time.Now().UTC()
	if err := s.Repo.MarkTerminal(ctx, in.JobID, status, errorMessage, completedAt); err != nil {
		s.failJob(ctx, in, fmt.Errorf("set terminal status failed: %w", err), &startedAt)
		return
	}
	s.Tracker.Forget(in.JobID)

	switch status {
	case StatusCompleted:
		metrics.IncJobCompleted()
	case StatusPartial:
		metrics.IncJobPartial()
	case StatusFailed:
		metrics.IncJobFailed()
	}
	metrics.ObserveJobDurationMs(durationMs(&startedAt, &completedAt))
	telemetry.Info("generation.status", map[string]any{
		"request_id":        requestIDFromContext(ctx),
		"owner_id":          in.OwnerID,
		"app_id":            in.AppID,
		"job_id":            in.JobID,
		"status":            status,
		"status_transition": "generating_screens->" + status,
		"screens_total":     outcome.ScreensTotal,
		"units_succeeded":   outcome.Successful,
		"units_failed":      len(outcome.Failed),
		"duration_ms":       durationMs(&startedAt, &completedAt),
	})
}

// terminalStatus maps the fan-in tally to the job's terminal status: completed
// when every unit succeeded, partial when results are mixed, failed when
// nothing succeeded.
func terminalStatus(outcome PipelineOutcome) string {
	switch {
	case len(outcome.Failed) == 0 && outcome.Successful > 0:
		return StatusCompleted
	case outcome.Successful > 0:
		return StatusPartial
	default:
		return StatusFailed
	}
}

func (s *Service) failJob(ctx context.Context, in PipelineInput, err error, startedAt *time.Time) {
	code := classifyFailure(err)
	msg := sanitizeError(err)
	completedAt := time.Now().UTC()
	if updateErr := s.Repo.MarkTerminal(context.Background(), in.JobID, StatusFailed, &msg, completedAt); updateErr != nil {
		telemetry.Error("generation.fail_write_failed", map[string]any{
			"job_id": in.JobID,
			"error":  sanitizeError(updateErr),
			"orig":   msg,
		})
	}
	s.Tracker.Forget(in.JobID)
	metrics.IncJobFailed()
	if startedAt != nil {
		metrics.ObserveJobDurationMs(durationMs(startedAt, &completedAt))
	}
	telemetry.Info("generation.status", map[string]any{
		"request_id": requestIDFromContext(ctx),
		"owner_id":   in.OwnerID,
		"app_id":     in.AppID,
		"job_id":     in.JobID,
		"status":     StatusFailed,
		"error_code": code,
		"error":      msg,
	})
}

// CoverResult reports a completed cover generation: where the asset landed and
// what it actually cost.
type CoverResult struct {
	StorageKey string           `json:"storageKey"`
	URL        string           `json:"url"`
	BackendID  string           `json:"backendId"`
	CostUSD    float64          `json:"costUsd"`
	SpeedBand  router.SpeedBand `json:"speedBand"`
	Attempted  []string         `json:"attempted"`
}

// CreateCover generates promotional cover media for an app by animating its
// first screen (or icon) through the image-to-video route. Synchronous: the
// caller waits for the routed call chain.
func (s *Service) CreateCover(ctx context.Context, appID string, tier router.Tier, backendID string) (CoverResult, error) {
	if appID == "" {
		return CoverResult{}, errors.New("appID is required")
	}
	if tier == "" {
		tier = router.TierDefault
	}

	app, err := s.Apps.GetByID(ctx, appID)
	if err != nil {
		return CoverResult{}, err
	}
	referenceKey := ""
	if screens := app.OrderedScreens(); len(screens) > 0 {
		referenceKey = screens[0].StorageKey
	} else if app.IconKey != "" {
		referenceKey = app.IconKey
	}
	if referenceKey == "" {
		return CoverResult{}, errors.New("app has no generated assets to animate")
	}
	if app.Concept == nil {
		return CoverResult{}, errors.New("app has no stored concept")
	}

	input := provider.GenerateInput{
		Kind:   provider.KindVideo,
		Prompt: coverPrompt(*app.Concept),
		Params: provider.GenerateParams{ReferenceURL: s.Store.URLFor(referenceKey)},
	}
	var result router.Result
	if backendID != "" {
		result, err = s.Router.ExecuteDirect(ctx, backendID, input)
	} else {
		result, err = s.Router.Execute(ctx, router.OpImageToVideo, tier, input)
	}
	if err != nil {
		return CoverResult{}, err
	}

	payload, contentType, err := s.Fetcher.Fetch(ctx, result.Asset.AssetURL)
	if err != nil {
		return CoverResult{}, err
	}
	fileName, err := util.SanitizeFileName("cover" + extensionFor(contentType))
	if err != nil {
		return CoverResult{}, err
	}
	key, _, _, err := s.Store.Save(ctx, appID, fileName, bytes.NewReader(payload))
	if err != nil {
		return CoverResult{}, fmt.Errorf("asset store: %w", err)
	}
	if err := s.Apps.SetCover(ctx, appID, key, result.BackendID, result.Cost.CostUSD, string(result.Cost.SpeedBand)); err != nil {
		return CoverResult{}, fmt.Errorf("cover persistence: %w", err)
	}

	telemetry.Info("generation.cover", map[string]any{
		"request_id": requestIDFromContext(ctx),
		"app_id":     appID,
		"backend":    result.BackendID,
		"fallback":   result.UsedFallback,
		"cost_usd":   result.Cost.CostUSD,
		"speed_band": string(result.Cost.SpeedBand),
	})
	return CoverResult{
		StorageKey: key,
		URL:        s.Store.URLFor(key),
		BackendID:  result.BackendID,
		CostUSD:    result.Cost.CostUSD,
		SpeedBand:  result.Cost.SpeedBand,
		Attempted:  result.Attempted,
	}, nil
}

func coverPrompt(concept provider.ConceptDescriptor) string {
	prompt := "Subtle promotional motion pass over the app interface for \"" + concept.Name + "\""
	if concept.VisualStyle != "" {
		prompt += ". Style: " + concept.VisualStyle
	}
	return prompt
}

func durationMs(startedAt, completedAt *time.Time) float64 {
	if startedAt == nil || completedAt == nil {
		return 0
	}
	return float64(completedAt.Sub(*startedAt).Microseconds()) / 1000.0
}

func classifyFailure(err error) string {
	if err == nil {
		return ErrorCodeInternal
	}
	var sErr *StructuralError
	if errors.As(err, &sErr) {
		switch sErr.Step {
		case "concept planning", "structure planning":
			return ErrorCodePlanner
		}
	}
	if errors.Is(err, ErrFetchExhausted) || errors.Is(err, router.ErrRouteExhausted) {
		return ErrorCodeGeneration
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "persistence") || strings.Contains(msg, "storage") || strings.Contains(msg, "status") || strings.Contains(msg, "store") {
		return ErrorCodeStorage
	}
	return ErrorCodeInternal
}

func sanitizeError(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.ReplaceAll(err.Error(), "\n", " ")
	msg = strings.ReplaceAll(msg, "\r", " ")
	msg = strings.TrimSpace(msg)
	const maxLen = 500
	if len(msg) > maxLen {
		msg = msg[:maxLen]
	}
	return msg
}

package generation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"appgen-backend/internal/apps"
	"appgen-backend/internal/provider"
	"appgen-backend/internal/router"
	"appgen-backend/internal/shared/metrics"
	"appgen-backend/internal/shared/storage/object"
	"appgen-backend/internal/shared/telemetry"
	"appgen-backend/internal/shared/util"
)

// iconUnitName is the failed-unit label for the icon branch.
const iconUnitName = "app icon"

// PipelineInput carries one generation run's parameters into the executor.
// Exactly one of Description or Concept is set; the service enforces this at
// the input boundary.
type PipelineInput struct {
	JobID       string
	AppID       string
	OwnerID     string
	Description string
	Concept     *provider.ConceptDescriptor
	Tier        router.Tier
}

// PipelineOutcome is the fan-in tally the orchestrator turns into a terminal
// status. Successful and Failed cover all fan-out units: the icon plus every
// planned screen.
type PipelineOutcome struct {
	ScreensTotal int
	Successful   int
	Failed       []FailedScreen
}

// Executor runs the generation pipeline: concept sequentially, then the icon
// branch and the screens branch concurrently. Unit failures are collected
// without cancelling sibling work; only concept or structure planning failures
// abort the run.
type Executor struct {
	Planner provider.Planner
	Router  *router.Router
	Fetcher *Fetcher
	Store   object.ObjectStore
	Apps    apps.Repo
	Jobs    Repo
	Tracker *Tracker

	// ScreenCount is the unit count requested from structure planning. The
	// plan's actual unit list is authoritative.
	ScreenCount int
}

// Run executes the pipeline for one job. The returned error is non-nil only
// for structural failures; per-unit failures are reported in the outcome.
func (e *Executor) Run(ctx context.Context, in PipelineInput) (PipelineOutcome, error) {
	concept := in.Concept
	if concept == nil {
		planned, err := e.Planner.PlanConcept(ctx, in.Description, nil)
		if err != nil {
			return PipelineOutcome{}, structural("concept planning", err)
		}
		concept = &planned
	}
	if err := e.Apps.SetConcept(ctx, in.AppID, concept.Name, *concept); err != nil {
		return PipelineOutcome{}, structural("concept persistence", err)
	}
	if err := e.Tracker.ApplyConcept(ctx, in.JobID, "Concept ready"); err != nil {
		telemetry.Warn("generation.progress_write_failed", map[string]any{"job_id": in.JobID, "error": sanitizeError(err)})
	}

	if err := e.Jobs.SetStatus(ctx, in.JobID, StatusGeneratingScreens, "Generating assets", nil); err != nil {
		return PipelineOutcome{}, structural("status update", err)
	}

	tally := newTally(e.Jobs, in.JobID)
	var structuralErr error

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer recoverAsUnitFailure(ctx, tally, iconUnitName)
		e.runIconBranch(ctx, in, *concept, tally)
	}()
	go func() {
		defer wg.Done()
		defer func() {
			if r := recover(); r != nil {
				structuralErr = structural("screens branch", fmt.Errorf("panic: %v", r))
			}
		}()
		structuralErr = e.runScreensBranch(ctx, in, *concept, tally)
	}()
	wg.Wait()

	outcome := tally.outcome()
	if structuralErr != nil {
		return outcome, structuralErr
	}
	return outcome, nil
}

func (e *Executor) runIconBranch(ctx context.Context, in PipelineInput, concept provider.ConceptDescriptor, tally *pipelineTally) {
	input := provider.GenerateInput{
		Kind:   provider.KindImage,
		Prompt: iconPrompt(concept),
	}
	key, err := e.generateAndStore(ctx, in, input, "icon")
	if err != nil {
		tally.fail(ctx, iconUnitName, err)
		return
	}
	if err := e.Apps.SetIcon(ctx, in.AppID, key); err != nil {
		tally.fail(ctx, iconUnitName, fmt.Errorf("icon persistence: %w", err))
		return
	}
	if err := e.Tracker.ApplyIcon(ctx, in.JobID, "App icon ready"); err != nil {
		telemetry.Warn("generation.progress_write_failed", map[string]any{"job_id": in.JobID, "error": sanitizeError(err)})
	}
	tally.succeed()
}

func (e *Executor) runScreensBranch(ctx context.Context, in PipelineInput, concept provider.ConceptDescriptor, tally *pipelineTally) error {
	targetCount := e.ScreenCount
	if targetCount <= 0 {
		targetCount = 5
	}
	plan, err := e.Planner.PlanStructure(ctx, concept, targetCount)
	if err != nil {
		return structural("structure planning", err)
	}
	if len(plan.Units) == 0 {
		return structural("structure planning", errors.New("plan has no units"))
	}

	if err := e.Jobs.SetScreensTotal(ctx, in.JobID, len(plan.Units)); err != nil {
		return structural("screens total update", err)
	}
	e.Tracker.SetUnitCount(in.JobID, len(plan.Units))
	tally.setScreensTotal(len(plan.Units))

	// The first unit is generated ahead of the rest; its stored asset becomes
	// the style reference for every later screen. If it fails, the remaining
	// units proceed without a reference rather than all failing with it.
	referenceURL := ""
	if key, err := e.generateScreen(ctx, in, concept, plan, 0, ""); err != nil {
		tally.fail(ctx, plan.Units[0].Name, err)
	} else {
		referenceURL = e.Store.URLFor(key)
		metrics.IncScreenGenerated()
		if err := e.Jobs.IncScreensGenerated(ctx, in.JobID); err != nil {
			telemetry.Warn("generation.counter_write_failed", map[string]any{"job_id": in.JobID, "error": sanitizeError(err)})
		}
		if err := e.Tracker.ApplyFirstScreen(ctx, in.JobID, "First screen ready"); err != nil {
			telemetry.Warn("generation.progress_write_failed", map[string]any{"job_id": in.JobID, "error": sanitizeError(err)})
		}
		tally.succeed()
	}

	var unitWG sync.WaitGroup
	for i := 1; i < len(plan.Units); i++ {
		unitWG.Add(1)
		go func(idx int) {
			defer unitWG.Done()
			defer recoverAsUnitFailure(ctx, tally, plan.Units[idx].Name)
			if _, err := e.generateScreen(ctx, in, concept, plan, idx, referenceURL); err != nil {
				tally.fail(ctx, plan.Units[idx].Name, err)
				return
			}
			metrics.IncScreenGenerated()
			if err := e.Jobs.IncScreensGenerated(ctx, in.JobID); err != nil {
				telemetry.Warn("generation.counter_write_failed", map[string]any{"job_id": in.JobID, "error": sanitizeError(err)})
			}
			step := fmt.Sprintf("Screen %d of %d ready", idx+1, len(plan.Units))
			if err := e.Tracker.ApplyUnit(ctx, in.JobID, idx-1, step); err != nil {
				telemetry.Warn("generation.progress_write_failed", map[string]any{"job_id": in.JobID, "error": sanitizeError(err)})
			}
			tally.succeed()
		}(i)
	}
	unitWG.Wait()
	return nil
}

func (e *Executor) generateScreen(ctx context.Context, in PipelineInput, concept provider.ConceptDescriptor, plan provider.StructurePlan, idx int, referenceURL string) (string, error) {
	unit := plan.Units[idx]
	input := provider.GenerateInput{
		Kind:   provider.KindImage,
		Prompt: screenPrompt(concept, plan, unit),
		Params: provider.GenerateParams{ReferenceURL: referenceURL},
	}
	key, err := e.generateAndStore(ctx, in, input, fmt.Sprintf("screen-%02d", idx))
	if err != nil {
		return "", err
	}
	if err := e.Apps.UpsertScreen(ctx, in.AppID, idx, apps.Screen{Name: unit.Name, StorageKey: key}); err != nil {
		return "", fmt.Errorf("screen persistence: %w", err)
	}
	return key, nil
}

// generateAndStore routes one generation call, downloads the produced asset,
// and persists it under the app's scope. Returns the storage key.
func (e *Executor) generateAndStore(ctx context.Context, in PipelineInput, input provider.GenerateInput, baseName string) (string, error) {
	result, err := e.Router.Execute(ctx, router.OpTextToImage, in.Tier, input)
	if err != nil {
		return "", err
	}
	payload, contentType, err := e.Fetcher.Fetch(ctx, result.Asset.AssetURL)
	if err != nil {
		return "", err
	}
	fileName, err := util.SanitizeFileName(baseName + extensionFor(contentType))
	if err != nil {
		return "", err
	}
	key, _, _, err := e.Store.Save(ctx, in.AppID, fileName, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("asset store: %w", err)
	}
	return key, nil
}

// pipelineTally collects branch results under one lock and mirrors failures
// onto the job record as they happen.
type pipelineTally struct {
	jobs  Repo
	jobID string

	mu           sync.Mutex
	screensTotal int
	successful   int
	failed       []FailedScreen
}

func newTally(jobs Repo, jobID string) *pipelineTally {
	return &pipelineTally{jobs: jobs, jobID: jobID}
}

func (t *pipelineTally) setScreensTotal(total int) {
	t.mu.Lock()
	t.screensTotal = total
	t.mu.Unlock()
}

func (t *pipelineTally) succeed() {
	t.mu.Lock()
	t.successful++
	t.mu.Unlock()
}

func (t *pipelineTally) fail(ctx context.Context, unitName string, err error) {
	entry := FailedScreen{UnitName: unitName, ErrorMessage: sanitizeError(err)}
	t.mu.Lock()
	t.failed = append(t.failed, entry)
	t.mu.Unlock()
	metrics.IncScreenFailed()
	if repoErr := t.jobs.AppendFailedScreen(ctx, t.jobID, entry); repoErr != nil {
		telemetry.Warn("generation.failure_write_failed", map[string]any{"job_id": t.jobID, "error": sanitizeError(repoErr)})
	}
	telemetry.Warn("generation.unit_failed", map[string]any{
		"job_id": t.jobID,
		"unit":   unitName,
		"error":  entry.ErrorMessage,
	})
}

func (t *pipelineTally) outcome() PipelineOutcome {
	t.mu.Lock()
	defer t.mu.Unlock()
	return PipelineOutcome{
		ScreensTotal: t.screensTotal,
		Successful:   t.successful,
		Failed:       append([]FailedScreen(nil), t.failed...),
	}
}

func recoverAsUnitFailure(ctx context.Context, tally *pipelineTally, unitName string) {
	if r := recover(); r != nil {
		tally.fail(ctx, unitName, fmt.Errorf("panic: %v", r))
	}
}

func iconPrompt(concept provider.ConceptDescriptor) string {
	var b strings.Builder
	b.WriteString("App icon for \"")
	b.WriteString(concept.Name)
	b.WriteString("\": ")
	b.WriteString(concept.Tagline)
	if concept.VisualStyle != "" {
		b.WriteString(". Style: ")
		b.WriteString(concept.VisualStyle)
	}
	if len(concept.ColorHints) > 0 {
		b.WriteString(". Colors: ")
		b.WriteString(strings.Join(concept.ColorHints, ", "))
	}
	return b.String()
}

func screenPrompt(concept provider.ConceptDescriptor, plan provider.StructurePlan, unit provider.UnitDescriptor) string {
	var b strings.Builder
	b.WriteString(unit.Prompt)
	if concept.VisualStyle != "" {
		b.WriteString(". Style: ")
		b.WriteString(concept.VisualStyle)
	}
	if plan.SharedLayoutNotes != "" {
		b.WriteString(". Layout: ")
		b.WriteString(plan.SharedLayoutNotes)
	}
	return b.String()
}

func extensionFor(contentType string) string {
	switch {
	case strings.HasPrefix(contentType, "image/png"):
		return ".png"
	case strings.HasPrefix(contentType, "image/jpeg"):
		return ".jpg"
	case strings.HasPrefix(contentType, "image/webp"):
		return ".webp"
	case strings.HasPrefix(contentType, "video/mp4"):
		return ".mp4"
	default:
		return ".bin"
	}
}

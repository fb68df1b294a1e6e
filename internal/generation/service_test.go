package generation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"appgen-backend/internal/apps"
	"appgen-backend/internal/provider"
	"appgen-backend/internal/router"
	"appgen-backend/internal/shared/storage/object/local"
)

type stubPlanner struct {
	unitCount    int
	conceptErr   error
	structureErr error
	conceptCalls int32
	planCalls    int32
}

func (p *stubPlanner) PlanConcept(ctx context.Context, description string, hints []string) (provider.ConceptDescriptor, error) {
	atomic.AddInt32(&p.conceptCalls, 1)
	if p.conceptErr != nil {
		return provider.ConceptDescriptor{}, p.conceptErr
	}
	return provider.ConceptDescriptor{
		Name:        "Plantly",
		Tagline:     "Care for every plant",
		Description: description,
		VisualStyle: "soft gradients",
	}, nil
}

func (p *stubPlanner) PlanStructure(ctx context.Context, concept provider.ConceptDescriptor, targetCount int) (provider.StructurePlan, error) {
	atomic.AddInt32(&p.planCalls, 1)
	if p.structureErr != nil {
		return provider.StructurePlan{}, p.structureErr
	}
	count := p.unitCount
	if count == 0 {
		count = targetCount
	}
	units := make([]provider.UnitDescriptor, count)
	for i := range units {
		units[i] = provider.UnitDescriptor{
			Name:   fmt.Sprintf("Screen %d", i+1),
			Prompt: fmt.Sprintf("unit-%d layout", i),
		}
	}
	return provider.StructurePlan{Units: units, SharedLayoutNotes: "rounded cards"}, nil
}

// stubGenerator fails any prompt containing one of failMarkers and otherwise
// returns an asset hosted by the test server.
type stubGenerator struct {
	assetURL    string
	failMarkers []string
	calls       int32
}

func (g *stubGenerator) Generate(ctx context.Context, input provider.GenerateInput) (provider.GenerateResult, error) {
	atomic.AddInt32(&g.calls, 1)
	for _, marker := range g.failMarkers {
		if strings.Contains(input.Prompt, marker) {
			return provider.GenerateResult{}, errors.New("backend rejected prompt")
		}
	}
	return provider.GenerateResult{
		AssetURL:            g.assetURL,
		Width:               input.Params.Width,
		Height:              input.Params.Height,
		MeasuredDurationSec: input.Params.DurationSec,
	}, nil
}

type serviceFixture struct {
	svc     *Service
	jobs    *MemoryRepo
	apps    *apps.MemoryRepo
	planner *stubPlanner
	image   *stubGenerator
	video   *stubGenerator
}

func setupService(t *testing.T, planner *stubPlanner, failMarkers []string) *serviceFixture {
	t.Helper()
	assetSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("asset-bytes"))
	}))
	t.Cleanup(assetSrv.Close)

	image := &stubGenerator{assetURL: assetSrv.URL + "/asset.png", failMarkers: failMarkers}
	video := &stubGenerator{assetURL: assetSrv.URL + "/cover.mp4"}
	registry := provider.NewRegistry(map[string]provider.Generator{
		"flux-pro": image,
		"wan-2.1":  video,
	})
	table := router.Table{Routes: map[router.Operation]map[router.Tier]router.RouteConfig{
		router.OpTextToImage: {
			router.TierDefault: {Primary: router.RouteEntry{Backend: "flux-pro"}},
		},
		router.OpImageToVideo: {
			router.TierDefault: {Primary: router.RouteEntry{Backend: "wan-2.1", Params: router.RouteParams{DurationSec: 5, Resolution: "720p"}}},
		},
	}}

	jobsRepo := NewMemoryRepo()
	appsRepo := apps.NewMemoryRepo()
	fetcher := &Fetcher{
		Client: assetSrv.Client(),
		Policy: RetryPolicy{MaxAttempts: 3, BackoffUnit: time.Millisecond, Sleep: func(time.Duration) {}},
	}
	svc := &Service{
		Repo:        jobsRepo,
		Apps:        appsRepo,
		Planner:     planner,
		Router:      router.New(table, registry),
		Fetcher:     fetcher,
		Store:       local.New(t.TempDir(), "/assets"),
		Tracker:     NewTracker(jobsRepo, DefaultPhaseBudget),
		ScreenCount: 5,
	}
	return &serviceFixture{svc: svc, jobs: jobsRepo, apps: appsRepo, planner: planner, image: image, video: video}
}

func (f *serviceFixture) createApp(t *testing.T) apps.App {
	t.Helper()
	app := apps.App{ID: "app-1", OwnerID: "user-1", Description: "plant care tracker", CreatedAt: time.Now().UTC()}
	if err := f.apps.Create(context.Background(), app); err != nil {
		t.Fatalf("create app: %v", err)
	}
	return app
}

func (f *serviceFixture) runToCompletion(t *testing.T, input Input) Job {
	t.Helper()
	app := f.createApp(t)
	job, err := f.svc.Start(context.Background(), app.ID, app.OwnerID, input, router.TierDefault)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if job.Status != StatusPending {
		t.Fatalf("expected pending job, got %s", job.Status)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		got, err := f.jobs.GetByID(context.Background(), job.ID)
		if err != nil {
			t.Fatalf("get job: %v", err)
		}
		if IsTerminal(got.Status) {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("job never reached a terminal status")
	return Job{}
}

func TestRunJobFullSuccess(t *testing.T) {
	fixture := setupService(t, &stubPlanner{unitCount: 3}, nil)
	job := fixture.runToCompletion(t, DescriptionInput{Description: "plant care tracker"})

	if job.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s (%v)", job.Status, job.ErrorMessage)
	}
	if job.ProgressPercentage != 100 {
		t.Fatalf("expected progress 100, got %d", job.ProgressPercentage)
	}
	if job.ScreensTotal != 3 || job.ScreensGenerated != 3 {
		t.Fatalf("expected 3/3 screens, got %d/%d", job.ScreensGenerated, job.ScreensTotal)
	}
	if len(job.FailedScreens) != 0 {
		t.Fatalf("expected no failed screens, got %v", job.FailedScreens)
	}

	app, err := fixture.apps.GetByID(context.Background(), "app-1")
	if err != nil {
		t.Fatalf("get app: %v", err)
	}
	if app.IconKey == "" {
		t.Fatal("expected icon key on app")
	}
	if app.Concept == nil || app.Name != "Plantly" {
		t.Fatalf("expected planned concept applied, got name %q", app.Name)
	}
	if got := len(app.OrderedScreens()); got != 3 {
		t.Fatalf("expected 3 screens on app, got %d", got)
	}
}

func TestRunJobPartialFailure(t *testing.T) {
	// Unit index 3 (the fourth screen) fails every attempt.
	fixture := setupService(t, &stubPlanner{unitCount: 5}, []string{"unit-3"})
	job := fixture.runToCompletion(t, DescriptionInput{Description: "plant care tracker"})

	if job.Status != StatusPartial {
		t.Fatalf("expected partial, got %s", job.Status)
	}
	if job.ScreensGenerated != 4 {
		t.Fatalf("expected 4 screens generated, got %d", job.ScreensGenerated)
	}
	if len(job.FailedScreens) != 1 {
		t.Fatalf("expected exactly one failed screen, got %v", job.FailedScreens)
	}
	if job.FailedScreens[0].UnitName != "Screen 4" {
		t.Fatalf("expected failed unit Screen 4, got %q", job.FailedScreens[0].UnitName)
	}
	if job.FailedScreens[0].ErrorMessage == "" {
		t.Fatal("expected an error message on the failed unit")
	}
}

func TestRunJobStructuralFailure(t *testing.T) {
	planner := &stubPlanner{conceptErr: errors.New("planner unavailable")}
	fixture := setupService(t, planner, nil)
	job := fixture.runToCompletion(t, DescriptionInput{Description: "plant care tracker"})

	if job.Status != StatusFailed {
		t.Fatalf("expected failed, got %s", job.Status)
	}
	if job.ErrorMessage == nil || !strings.Contains(*job.ErrorMessage, "concept planning") {
		t.Fatalf("expected concept planning error, got %v", job.ErrorMessage)
	}
	if got := atomic.LoadInt32(&fixture.image.calls); got != 0 {
		t.Fatalf("expected no generation calls after structural failure, got %d", got)
	}
	if got := atomic.LoadInt32(&planner.planCalls); got != 0 {
		t.Fatalf("expected no structure planning after concept failure, got %d", got)
	}
}

func TestRunJobIconFailureDegradesToPartial(t *testing.T) {
	// Icon prompts carry the concept name; screen prompts do not.
	fixture := setupService(t, &stubPlanner{unitCount: 2}, []string{"App icon"})
	job := fixture.runToCompletion(t, DescriptionInput{Description: "plant care tracker"})

	if job.Status != StatusPartial {
		t.Fatalf("expected partial, got %s", job.Status)
	}
	if len(job.FailedScreens) != 1 || job.FailedScreens[0].UnitName != "app icon" {
		t.Fatalf("expected failed icon unit, got %v", job.FailedScreens)
	}
	if job.ScreensGenerated != 2 {
		t.Fatalf("expected both screens generated, got %d", job.ScreensGenerated)
	}
}

func TestStartConceptInputRequiresStoredConcept(t *testing.T) {
	fixture := setupService(t, &stubPlanner{}, nil)
	app := fixture.createApp(t)

	_, err := fixture.svc.Start(context.Background(), app.ID, app.OwnerID, ConceptInput{}, router.TierDefault)
	if err == nil {
		t.Fatal("expected error for app without stored concept")
	}
}

func TestStartConceptInputSkipsConceptPlanning(t *testing.T) {
	planner := &stubPlanner{unitCount: 2}
	fixture := setupService(t, planner, nil)
	app := fixture.createApp(t)
	concept := provider.ConceptDescriptor{Name: "Plantly", Tagline: "t", VisualStyle: "flat"}
	if err := fixture.apps.SetConcept(context.Background(), app.ID, concept.Name, concept); err != nil {
		t.Fatalf("set concept: %v", err)
	}

	job, err := fixture.svc.Start(context.Background(), app.ID, app.OwnerID, ConceptInput{}, router.TierDefault)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		got, err := fixture.jobs.GetByID(context.Background(), job.ID)
		if err != nil {
			t.Fatalf("get job: %v", err)
		}
		if IsTerminal(got.Status) {
			if got.Status != StatusCompleted {
				t.Fatalf("expected completed, got %s", got.Status)
			}
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := atomic.LoadInt32(&planner.conceptCalls); got != 0 {
		t.Fatalf("expected concept planning skipped, got %d calls", got)
	}
}

func TestCreateCoverAnimatesFirstScreen(t *testing.T) {
	fixture := setupService(t, &stubPlanner{unitCount: 2}, nil)
	fixture.runToCompletion(t, DescriptionInput{Description: "plant care tracker"})

	result, err := fixture.svc.CreateCover(context.Background(), "app-1", router.TierDefault, "")
	if err != nil {
		t.Fatalf("CreateCover: %v", err)
	}
	if result.BackendID != "wan-2.1" {
		t.Fatalf("expected wan-2.1 backend, got %s", result.BackendID)
	}
	// wan-2.1 prices per second: 5s at $0.05/s.
	if result.CostUSD != 0.25 {
		t.Fatalf("expected cost 0.25, got %v", result.CostUSD)
	}
	if result.SpeedBand != router.SpeedMedium {
		t.Fatalf("expected medium speed band, got %s", result.SpeedBand)
	}

	app, err := fixture.apps.GetByID(context.Background(), "app-1")
	if err != nil {
		t.Fatalf("get app: %v", err)
	}
	if app.CoverKey == "" || app.CoverBackend != "wan-2.1" {
		t.Fatalf("expected cover recorded on app, got key=%q backend=%q", app.CoverKey, app.CoverBackend)
	}
	if app.CoverCostUSD == nil || *app.CoverCostUSD != 0.25 {
		t.Fatalf("expected cover cost persisted, got %v", app.CoverCostUSD)
	}
}

func TestCreateCoverWithoutAssetsFails(t *testing.T) {
	fixture := setupService(t, &stubPlanner{}, nil)
	fixture.createApp(t)

	_, err := fixture.svc.CreateCover(context.Background(), "app-1", router.TierDefault, "")
	if err == nil {
		t.Fatal("expected error for app without generated assets")
	}
}

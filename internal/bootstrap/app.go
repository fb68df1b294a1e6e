package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"appgen-backend/internal/apps"
	"appgen-backend/internal/generation"
	"appgen-backend/internal/provider"
	"appgen-backend/internal/provider/httpgen"
	openaiplanner "appgen-backend/internal/provider/openai"
	"appgen-backend/internal/router"
	"appgen-backend/internal/shared/config"
	"appgen-backend/internal/shared/server"
	"appgen-backend/internal/shared/storage/db"
	"appgen-backend/internal/shared/storage/object"
	localstore "appgen-backend/internal/shared/storage/object/local"
	s3store "appgen-backend/internal/shared/storage/object/s3"
	"appgen-backend/internal/sweeper"
)

// App holds shared dependencies.
type App struct {
	Config config.Config
	Router *gin.Engine
	DB     *sql.DB
	Store  object.ObjectStore

	AppsRepo apps.Repo
	JobsRepo generation.Repo

	AppsService       *apps.Service
	GenerationService *generation.Service
	Sweeper           *sweeper.Sweeper

	AppHandler        *apps.Handler
	GenerationHandler *generation.Handler
}

// Build prepares shared dependencies and wires routes.
func Build(cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	ctx := context.Background()

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store, assetDir, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	table, err := buildRouteTable(cfg)
	if err != nil {
		return nil, err
	}
	registry := buildRegistry(table)
	modelRouter := router.New(table, registry)

	planner, err := buildPlanner(cfg)
	if err != nil {
		return nil, err
	}

	app := &App{Config: cfg, DB: sqlDB, Store: store}

	if sqlDB != nil {
		app.AppsRepo = &apps.PGRepo{DB: sqlDB}
		app.JobsRepo = &generation.PGRepo{DB: sqlDB}
	} else {
		app.AppsRepo = apps.NewMemoryRepo()
		app.JobsRepo = generation.NewMemoryRepo()
	}

	app.AppsService = &apps.Service{Repo: app.AppsRepo}
	app.GenerationService = &generation.Service{
		Repo:        app.JobsRepo,
		Apps:        app.AppsRepo,
		Planner:     planner,
		Router:      modelRouter,
		Fetcher:     generation.NewFetcher(&http.Client{Timeout: 120 * time.Second}),
		Store:       store,
		Tracker:     generation.NewTracker(app.JobsRepo, generation.DefaultPhaseBudget),
		ScreenCount: cfg.ScreenCount,
	}
	app.Sweeper = sweeper.New(app.JobsRepo, cfg.StaleJobAfter, cfg.SweepSchedule)

	app.AppHandler = apps.NewHandler(app.AppsService, store)
	app.GenerationHandler = generation.NewHandler(app.GenerationService, app.AppsRepo)

	app.Router = server.NewRouter(server.RouterDeps{
		Config:            cfg,
		AppHandler:        app.AppHandler,
		GenerationHandler: app.GenerationHandler,
		AssetDir:          assetDir,
	})

	return app, nil
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: DATABASE_URL empty; using in-memory repositories")
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	opts := db.OptionsFromEnv(db.DefaultServerOptions())
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: database connect failed; using in-memory repositories: %v", err)
			return nil, nil
		}
		return nil, err
	}
	if err := db.RunMigrations(ctx, sqlDB); err != nil {
		return nil, fmt.Errorf("migrations: %w", err)
	}
	return sqlDB, nil
}

// buildStore returns the object store plus, for the local store, the directory
// the router serves static assets from.
func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, string, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		if strings.TrimSpace(cfg.AWSRegion) == "" || strings.TrimSpace(cfg.S3Bucket) == "" {
			return nil, "", fmt.Errorf("OBJECT_STORE=s3 requires AWS_REGION and S3_BUCKET")
		}
		store, err := s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
		return store, "", err
	default:
		return localstore.New(cfg.LocalStoreDir, cfg.PublicAssetBase), cfg.LocalStoreDir, nil
	}
}

func buildRouteTable(cfg config.Config) (router.Table, error) {
	if strings.TrimSpace(cfg.RouteConfigPath) == "" {
		return router.DefaultTable(), nil
	}
	table, err := router.LoadTable(cfg.RouteConfigPath)
	if err != nil {
		return router.Table{}, fmt.Errorf("route config %s: %w", cfg.RouteConfigPath, err)
	}
	return table, nil
}

func buildPlanner(cfg config.Config) (provider.Planner, error) {
	switch cfg.PlannerProvider {
	case "openai":
		apiKey := strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
		if apiKey == "" {
			log.Printf("bootstrap: OPENAI_API_KEY empty; planner calls will fail until configured")
			return provider.PlaceholderPlanner{}, nil
		}
		return openaiplanner.NewClient(apiKey, cfg.PlannerModel)
	default:
		return provider.PlaceholderPlanner{}, nil
	}
}

// buildRegistry builds one generation client per backend named anywhere in the
// route table. Backend connection details come from env vars derived from the
// backend id: GEN_FLUX_PRO_ENDPOINT, GEN_FLUX_PRO_API_KEY, and so on. A
// backend with no endpoint configured gets a placeholder that fails fast,
// which the router treats like any other backend failure.
func buildRegistry(table router.Table) *provider.Registry {
	backends := make(map[string]provider.Generator)
	for _, id := range table.BackendIDs() {
		gen, err := buildBackend(id)
		if err != nil {
			log.Printf("bootstrap: backend %s: %v; using placeholder", id, err)
			gen = provider.PlaceholderGenerator{}
		}
		backends[id] = gen
	}
	return provider.NewRegistry(backends)
}

func buildBackend(backendID string) (provider.Generator, error) {
	prefix := "GEN_" + envKey(backendID)
	endpoint := strings.TrimSpace(os.Getenv(prefix + "_ENDPOINT"))
	if endpoint == "" {
		return provider.PlaceholderGenerator{}, nil
	}
	model := strings.TrimSpace(os.Getenv(prefix + "_MODEL"))

	tokenURL := strings.TrimSpace(os.Getenv(prefix + "_OAUTH_TOKEN_URL"))
	if tokenURL != "" {
		clientID := strings.TrimSpace(os.Getenv(prefix + "_OAUTH_CLIENT_ID"))
		clientSecret := strings.TrimSpace(os.Getenv(prefix + "_OAUTH_CLIENT_SECRET"))
		scopes := splitScopes(os.Getenv(prefix + "_OAUTH_SCOPES"))
		return httpgen.NewOAuthClient(backendID, endpoint, model, tokenURL, clientID, clientSecret, scopes)
	}

	apiKey := strings.TrimSpace(os.Getenv(prefix + "_API_KEY"))
	return httpgen.NewClient(backendID, endpoint, apiKey, model)
}

func envKey(backendID string) string {
	key := strings.ToUpper(backendID)
	key = strings.ReplaceAll(key, "-", "_")
	key = strings.ReplaceAll(key, ".", "_")
	return key
}

func splitScopes(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}

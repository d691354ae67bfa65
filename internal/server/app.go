// Package server assembles the import service from its configuration.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/rodforge/supplier-import/internal/api"
	"github.com/rodforge/supplier-import/internal/clock/system"
	"github.com/rodforge/supplier-import/internal/config"
	"github.com/rodforge/supplier-import/internal/fetch"
	"github.com/rodforge/supplier-import/internal/fetch/headless"
	"github.com/rodforge/supplier-import/internal/id/uuid"
	"github.com/rodforge/supplier-import/internal/importer"
	"github.com/rodforge/supplier-import/internal/job"
	"github.com/rodforge/supplier-import/internal/logging"
	"github.com/rodforge/supplier-import/internal/metrics"
	memorypublisher "github.com/rodforge/supplier-import/internal/publisher/memory"
	gcppublisher "github.com/rodforge/supplier-import/internal/publisher/pubsub"
	"github.com/rodforge/supplier-import/internal/sink"
	gcsstorage "github.com/rodforge/supplier-import/internal/storage/gcs"
	localstorage "github.com/rodforge/supplier-import/internal/storage/local"
	memorystorage "github.com/rodforge/supplier-import/internal/storage/memory"
	pgstore "github.com/rodforge/supplier-import/internal/storage/postgres"

	"github.com/jackc/pgx/v5/pgxpool"
)

// App contains the application's dependencies.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	apiServer *api.Server
	orch      *job.Orchestrator

	pgPool          *pgxpool.Pool
	storageClient   *storage.Client
	pubsubClient    *pubsub.Client
	pubsubPublisher *pubsub.Publisher
	renderer        *headless.Renderer
}

// Build wires every dependency from the configuration.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	metrics.Init()

	app := &App{cfg: cfg, logger: logger}
	logger.Info("building application dependencies")

	jobs, aliases, err := app.setupStores(ctx)
	if err != nil {
		return nil, err
	}
	templates, err := app.setupTemplates()
	if err != nil {
		return nil, err
	}
	blobs, err := app.setupBlobStore(ctx)
	if err != nil {
		return nil, err
	}
	publisher, err := app.setupPublisher(ctx)
	if err != nil {
		return nil, err
	}

	idGen := uuid.NewUUIDGenerator()
	fetcher := fetch.New(fetch.Config{
		UserAgent:     cfg.Fetch.UserAgent,
		Timeout:       cfg.FetchTimeout(),
		MaxBytes:      cfg.Fetch.MaxPageBytes,
		RespectRobots: cfg.Fetch.RespectRobots,
	},
		fetch.NewRobotsGate(cfg.Fetch.UserAgent, logger.Named("robots")),
		fetch.NewThrottle(fetch.ThrottleConfig{
			TokensPerSecond: cfg.Fetch.TokensPerSecond,
			BucketCapacity:  cfg.Fetch.BucketCapacity,
		}),
		logger.Named("fetch"),
	)

	var renderer importer.Renderer
	var detector *headless.Heuristic
	if cfg.Headless.Enabled {
		r, err := headless.NewChromedp(headless.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			UserAgent:         cfg.Fetch.UserAgent,
			NavigationTimeout: time.Duration(cfg.Headless.NavTimeoutSec) * time.Second,
		})
		if err != nil {
			logger.Warn("headless renderer init failed", zap.Error(err))
		} else {
			app.renderer = r
			renderer = r
			detector = headless.NewHeuristic(cfg.Headless.PromotionThresh)
		}
	}

	createSink, err := sink.NewLogSink(logger.Named("sink"), idGen)
	if err != nil {
		return nil, fmt.Errorf("sink init failed: %w", err)
	}

	orch, err := job.New(job.Deps{
		Jobs:      jobs,
		Aliases:   aliases,
		Templates: templates,
		Blobs:     blobs,
		Publisher: publisher,
		Sink:      createSink,
		Fetcher:   fetcher,
		Renderer:  renderer,
		Detector:  detector,
		Clock:     system.New(),
		IDs:       idGen,
		Logger:    logger.Named("job"),
	}, job.Config{
		Topic:       cfg.PubSub.TopicName,
		BlobPrefix:  cfg.Storage.Prefix,
		ContentType: cfg.Storage.ContentType,
	})
	if err != nil {
		return nil, fmt.Errorf("orchestrator init failed: %w", err)
	}
	app.orch = orch
	app.apiServer = api.NewServer(orch, logger.Named("api"), cfg)
	return app, nil
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	return a.Close(shutdownCtx)
}

// Close releases every held client.
func (a *App) Close(_ context.Context) error {
	if a.renderer != nil {
		a.renderer.Close()
	}
	if a.pubsubPublisher != nil {
		a.pubsubPublisher.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storageClient != nil {
		if err := a.storageClient.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.pgPool != nil {
		a.pgPool.Close()
	}
	if err := a.logger.Sync(); err != nil {
		a.logger.Warn("logger sync failed", zap.Error(err))
	}
	a.logger.Info("shutdown complete")
	return nil
}

func (a *App) setupStores(ctx context.Context) (importer.JobStore, importer.AliasStore, error) {
	if a.cfg.DB.DSN == "" {
		a.logger.Info("using in-memory job and alias stores")
		return memorystorage.NewJobStore(), memorystorage.NewAliasStore(), nil
	}
	pool, err := pgstore.NewPool(ctx, pgstore.Config{
		DSN:      a.cfg.DB.DSN,
		MaxConns: a.cfg.DB.MaxConns,
		MinConns: a.cfg.DB.MinConns,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("postgres pool init failed: %w", err)
	}
	a.pgPool = pool
	jobs, err := pgstore.NewJobStore(pool)
	if err != nil {
		return nil, nil, fmt.Errorf("job store init failed: %w", err)
	}
	aliases, err := pgstore.NewAliasStore(pool)
	if err != nil {
		return nil, nil, fmt.Errorf("alias store init failed: %w", err)
	}
	a.logger.Info("using postgres job and alias stores")
	return jobs, aliases, nil
}

func (a *App) setupTemplates() (importer.TemplateStore, error) {
	if a.cfg.Templates.Path == "" {
		a.logger.Info("registering built-in rod template")
		return memorystorage.NewTemplateStore(defaultTemplate()), nil
	}
	data, err := os.ReadFile(a.cfg.Templates.Path)
	if err != nil {
		return nil, fmt.Errorf("read templates: %w", err)
	}
	var templates []importer.Template
	if err := json.Unmarshal(data, &templates); err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	if len(templates) == 0 {
		return nil, fmt.Errorf("templates file %s defines no templates", a.cfg.Templates.Path)
	}
	a.logger.Info("templates loaded",
		zap.String("path", a.cfg.Templates.Path),
		zap.Int("count", len(templates)),
	)
	return memorystorage.NewTemplateStore(templates...), nil
}

func (a *App) setupBlobStore(ctx context.Context) (importer.BlobStore, error) {
	switch {
	case a.cfg.Storage.GCSBucket != "":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		a.storageClient = client
		blobs, err := gcsstorage.New(client, gcsstorage.Config{Bucket: a.cfg.Storage.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.logger.Info("using GCS blob store", zap.String("bucket", a.cfg.Storage.GCSBucket))
		return blobs, nil
	case a.cfg.Storage.LocalDir != "":
		blobs, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Storage.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		a.logger.Info("using local blob store", zap.String("dir", a.cfg.Storage.LocalDir))
		return blobs, nil
	default:
		a.logger.Info("using in-memory blob store")
		return memorystorage.NewBlobStore(), nil
	}
}

func (a *App) setupPublisher(ctx context.Context) (importer.Publisher, error) {
	if a.cfg.PubSub.ProjectID == "" || a.cfg.PubSub.TopicName == "" {
		a.logger.Info("no Pub/Sub project configured, using in-memory publisher")
		return memorypublisher.New(), nil
	}
	client, err := pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	a.pubsubClient = client
	a.pubsubPublisher = client.Publisher(a.cfg.PubSub.TopicName)
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName),
	)
	return gcppublisher.New(a.pubsubPublisher), nil
}

// defaultTemplate is registered when no templates file is configured.
func defaultTemplate() importer.Template {
	return importer.Template{
		ID:   "rods-v1",
		Name: "Fishing Rods",
		Fields: []importer.TemplateField{
			{Key: "rods_length", Label: "Length", Synonyms: []string{"Rod Length", "Overall Length"}, Type: importer.FieldTypeFeetInches, Required: true},
			{Key: "rods_power", Label: "Power", Synonyms: []string{"Rod Power"}, Type: importer.FieldTypeText, Required: true},
			{Key: "rods_action", Label: "Action", Synonyms: []string{"Rod Action", "Taper"}, Type: importer.FieldTypeText, Required: true},
			{Key: "rods_pieces", Label: "Pieces", Synonyms: []string{"Piece Count", "Sections"}, Type: importer.FieldTypeNumber},
			{Key: "rods_line_weight", Label: "Line Weight", Synonyms: []string{"Line Rating", "Line Wt"}, Type: importer.FieldTypeRangeLb},
			{Key: "rods_lure_weight", Label: "Lure Weight", Synonyms: []string{"Lure Rating", "Lure Wt"}, Type: importer.FieldTypeRangeOz},
			{Key: "rods_price", Label: "Price", Synonyms: []string{"MSRP"}, Type: importer.FieldTypeCurrency},
		},
	}
}

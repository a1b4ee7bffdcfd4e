// Package bootstrap builds the services shared by the server and worker
// binaries from configuration.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/cesargomez89/etude/internal/app"
	"github.com/cesargomez89/etude/internal/config"
	"github.com/cesargomez89/etude/internal/constants"
	"github.com/cesargomez89/etude/internal/domain"
	"github.com/cesargomez89/etude/internal/fingering"
	"github.com/cesargomez89/etude/internal/httpclient"
	httpapp "github.com/cesargomez89/etude/internal/http"
	"github.com/cesargomez89/etude/internal/ir"
	"github.com/cesargomez89/etude/internal/logger"
	"github.com/cesargomez89/etude/internal/observability"
	"github.com/cesargomez89/etude/internal/omr"
	"github.com/cesargomez89/etude/internal/pipeline"
	"github.com/cesargomez89/etude/internal/queue"
	"github.com/cesargomez89/etude/internal/renderer"
	"github.com/cesargomez89/etude/internal/storage"
	"github.com/cesargomez89/etude/internal/store"
	"github.com/cesargomez89/etude/internal/worker"
)

type App struct {
	Config    *config.Config
	Logger    *logger.Logger
	DB        *store.DB
	Objects   storage.ObjectStore
	Queue     queue.TaskQueue
	Artifacts *app.ArtifactService
	Jobs      *app.JobService
	IR        *app.IRService

	shutdownTracing func(context.Context) error
}

// Open connects every backend named in cfg.
func Open(ctx context.Context, cfg *config.Config, service string) (*App, error) {
	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	})

	shutdown, err := observability.Init(ctx, log, observability.Config{
		ServiceName: service,
		Enabled:     cfg.OTelEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init tracing: %w", err)
	}

	db, err := store.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}

	objects, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	q, err := openQueue(ctx, cfg.Queue, consumerName(cfg.Worker.Name, service))
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	artifacts := app.NewArtifactService(db, objects, app.Buckets{
		PDF:     cfg.Storage.PDFBucket,
		Derived: cfg.Storage.DerivedBucket,
	}, log)
	jobs := app.NewJobService(db, artifacts, q, log)

	return &App{
		Config:          cfg,
		Logger:          log,
		DB:              db,
		Objects:         objects,
		Queue:           q,
		Artifacts:       artifacts,
		Jobs:            jobs,
		IR:              app.NewIRService(artifacts),
		shutdownTracing: shutdown,
	}, nil
}

func openQueue(ctx context.Context, cfg config.QueueConfig, consumer string) (queue.TaskQueue, error) {
	if cfg.Backend != constants.QueueBackendRedis {
		return queue.NewMemoryQueue(), nil
	}
	rq, err := queue.NewRedisQueue(ctx, queue.RedisOptions{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		Consumer: consumer,
	})
	if err != nil {
		return nil, err
	}
	return rq, nil
}

// consumerName is the configured worker name, or host and service. Both are
// stable across restarts, so a restarted worker recovers its own reserved
// tasks.
func consumerName(name, service string) string {
	if name != "" {
		return name
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}
	return host + "-" + service
}

// Router builds the stage handlers and registers those named in queues.
func (a *App) Router(queues []string) (*pipeline.Router, error) {
	cfg := a.Config
	policy := httpclient.DefaultRetryPolicy()

	deps := pipeline.NewDeps(a.Jobs, a.Artifacts, a.Queue, cfg.Services.HealthRetries)

	var cache renderer.Cache = store.NewSQLCache(a.DB)
	if rq, ok := a.Queue.(*queue.RedisQueue); ok {
		cache = renderer.NewRedisCache(rq.Client())
	}
	render := renderer.NewCachedClient(
		renderer.NewClient(cfg.Services.RendererURL, httpclient.NewClient("renderer", nil, policy)),
		cache, cfg.Resolution.CacheTTL, a.Logger,
	)
	rendering := pipeline.NewRenderingHandler(deps, render)
	rendering.Quantizer = ir.NewQuantizer(cfg.Resolution.QuantizeTolerance, cfg.Resolution.MinDuration)
	rendering.Voices = ir.NewVoiceResolver(cfg.Resolution.MaxVoices)

	handlers := map[domain.Stage]pipeline.Handler{
		domain.StageOMR: pipeline.NewOMRHandler(deps,
			omr.NewClient(cfg.Services.OMRURL, httpclient.NewClient("omr", nil, policy))),
		domain.StageFingering: pipeline.NewFingeringHandler(deps,
			fingering.NewClient(cfg.Services.FingeringURL, httpclient.NewClient("fingering", nil, policy))),
		domain.StageRendering: rendering,
	}

	router := pipeline.NewRouter()
	for _, name := range queues {
		stage, err := domain.ParseStage(name)
		if err != nil {
			return nil, err
		}
		router.Register(stage, handlers[stage])
	}
	return router, nil
}

// Worker builds a worker consuming the queues in cfg.Worker.Queues.
func (a *App) Worker() (*worker.Worker, error) {
	router, err := a.Router(a.Config.Worker.Queues)
	if err != nil {
		return nil, err
	}
	if len(router.Stages()) == 0 {
		return nil, errors.New("no worker queues configured")
	}
	wc := a.Config.Worker
	return worker.NewWorker(a.Queue, router, worker.Options{
		Queues:          router.Stages(),
		Concurrency:     wc.Concurrency,
		MaxTasksPerSlot: wc.MaxTasksPerSlot,
		SoftTimeLimit:   wc.SoftTimeLimit,
		HardTimeLimit:   wc.HardTimeLimit,
		DequeueWait:     constants.DefaultDequeueWait,
	}, a.Logger), nil
}

// HTTPHandler builds the API handler with health probes for every backend.
func (a *App) HTTPHandler() *httpapp.Handler {
	pdfBucket := a.Config.Storage.PDFBucket
	health := httpapp.NewHealthChecker().
		Add("database", a.DB.Ping).
		Add("object_store", func(ctx context.Context) error {
			ok, err := a.Objects.BucketExists(ctx, pdfBucket)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("bucket %s does not exist", pdfBucket)
			}
			return nil
		}).
		Add("queue", a.Queue.Ping)
	return httpapp.NewHandler(a.Jobs, a.Artifacts, a.IR, health, a.Logger)
}

func (a *App) Close(ctx context.Context) error {
	var objErr error
	if c, ok := a.Objects.(io.Closer); ok {
		objErr = c.Close()
	}
	return errors.Join(
		a.Queue.Close(),
		objErr,
		a.DB.Close(),
		a.shutdownTracing(ctx),
	)
}

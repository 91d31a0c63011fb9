package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/sync/errgroup"

	httpadapter "github.com/kirillkom/chapterflow/internal/adapters/http"
	mcpadapter "github.com/kirillkom/chapterflow/internal/adapters/mcp"
	"github.com/kirillkom/chapterflow/internal/config"
	"github.com/kirillkom/chapterflow/internal/core/ports"
	"github.com/kirillkom/chapterflow/internal/core/usecase"
	"github.com/kirillkom/chapterflow/internal/infrastructure/charset"
	"github.com/kirillkom/chapterflow/internal/infrastructure/chunking"
	"github.com/kirillkom/chapterflow/internal/infrastructure/linesource"
	"github.com/kirillkom/chapterflow/internal/infrastructure/progress"
	"github.com/kirillkom/chapterflow/internal/infrastructure/queue/memory"
	"github.com/kirillkom/chapterflow/internal/infrastructure/queue/nats"
	"github.com/kirillkom/chapterflow/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/chapterflow/internal/infrastructure/resilience"
	"github.com/kirillkom/chapterflow/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/chapterflow/internal/observability/metrics"
)

const (
	QueueDriverNATS   = "nats"
	QueueDriverMemory = "memory"

	ProgressRelayRedis = "redis"
)

// App holds the wired components of one process. The API role serves HTTP
// and websocket sessions; the worker role consumes ingestion jobs. With the
// memory queue the API also runs the ingestion pipeline in-process.
type App struct {
	Config config.Config

	Ingestor ports.DocumentIngestor
	Reader   ports.DocumentReader
	Runner   ports.JobProcessor
	Queue    ports.JobQueue

	HTTPMetrics   *metrics.HTTPServerMetrics
	WorkerMetrics *metrics.WorkerMetrics

	hub        *progress.Hub
	background []func(context.Context) error
	closers    []func()
}

type shared struct {
	db        *sql.DB
	documents *postgres.DocumentRepository
	chapters  *postgres.ChapterRepository
	storage   *localfs.Storage
}

func openShared(ctx context.Context, cfg config.Config) (*shared, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	documents := postgres.NewDocumentRepository(db)
	if err := documents.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init object storage: %w", err)
	}
	return &shared{
		db:        db,
		documents: documents,
		chapters:  postgres.NewChapterRepository(db),
		storage:   storage,
	}, nil
}

func newExecutor(progressMetrics *metrics.ProgressMetrics) *resilience.Executor {
	cfg := resilience.DefaultConfig()
	cfg.OnStateChange = progressMetrics.BreakerStateChanged
	return resilience.NewExecutor(cfg)
}

func newNATSQueue(ctx context.Context, cfg config.Config, executor *resilience.Executor) (*nats.Queue, error) {
	queue, err := nats.NewWithOptions(ctx, cfg.NATSURL, cfg.NATSSubject, nats.Options{
		Stream:             cfg.NATSStream,
		Consumer:           cfg.NATSConsumer,
		Concurrency:        cfg.WorkerConcurrency,
		ResilienceExecutor: executor,
	})
	if err != nil {
		return nil, fmt.Errorf("init job queue: %w", err)
	}
	return queue, nil
}

func newRunner(cfg config.Config, s *shared, notifier ports.ProgressNotifier, observer ports.JobObserver) *usecase.IngestionRunner {
	opener := linesource.NewOpener(charset.NewDetector(cfg.IngestSampleBytes), cfg.IngestSampleBytes)
	return usecase.NewIngestionRunner(
		s.documents,
		s.chapters,
		opener,
		chunking.NewSegmenter(cfg.IngestHeadingMaxRunes),
		s.storage,
		notifier,
		observer,
		usecase.RunnerOptions{
			BatchSize:  cfg.IngestBatchSize,
			JobTimeout: cfg.IngestJobTimeout,
		},
	)
}

// NewAPI wires the front door: upload intake, read endpoints, MCP tools and
// the websocket hub.
func NewAPI(ctx context.Context, cfg config.Config) (*App, error) {
	s, err := openShared(ctx, cfg)
	if err != nil {
		return nil, err
	}
	app := &App{Config: cfg, HTTPMetrics: metrics.NewHTTPServerMetrics("api")}
	app.closers = append(app.closers, func() { _ = s.db.Close() })

	progressMetrics := metrics.NewProgressMetrics("api", app.HTTPMetrics.Registerer())
	app.hub = progress.NewHub(cfg.WSSendBuffer, progressMetrics)
	app.closers = append(app.closers, app.hub.Close)
	executor := newExecutor(progressMetrics)

	switch cfg.QueueDriver {
	case QueueDriverMemory:
		queue := memory.New(cfg.NotifyBuffer, cfg.WorkerConcurrency)
		dispatcher := progress.NewDispatcher(app.hub, cfg.NotifyBuffer, progressMetrics)
		app.WorkerMetrics = metrics.NewWorkerMetrics("api")
		runner := newRunner(cfg, s, dispatcher, app.WorkerMetrics)

		app.Queue = queue
		app.Runner = runner
		app.background = append(app.background,
			func(ctx context.Context) error {
				dispatcher.Run(ctx)
				return nil
			},
			func(ctx context.Context) error {
				return queue.Consume(ctx, runner.Process)
			},
		)
		app.closers = append(app.closers, queue.Close)
		slog.Info("standalone_mode", "queue_driver", cfg.QueueDriver)
	case QueueDriverNATS:
		queue, err := newNATSQueue(ctx, cfg, executor)
		if err != nil {
			app.Close()
			return nil, err
		}
		app.Queue = queue
		app.closers = append(app.closers, queue.Close)

		if cfg.ProgressRelay == ProgressRelayRedis {
			client, err := progress.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
			if err != nil {
				app.Close()
				return nil, fmt.Errorf("init progress relay: %w", err)
			}
			relay := progress.NewRedisRelay(client, cfg.RedisProgressChannel, app.hub)
			app.background = append(app.background, relay.Run)
			app.closers = append(app.closers, func() { _ = client.Close() })
		} else {
			slog.Warn("progress_relay_disabled", "relay", cfg.ProgressRelay)
		}
	default:
		app.Close()
		return nil, fmt.Errorf("unknown queue driver %q", cfg.QueueDriver)
	}

	app.Ingestor = usecase.NewIngestDocumentUseCase(s.documents, s.storage, app.Queue, linesource.SupportedExtension)
	app.Reader = usecase.NewDocumentQueryUseCase(s.documents, s.chapters)
	return app, nil
}

// NewWorker wires the ingestion pipeline behind the shared job queue. Progress
// events leave the process through the Redis relay.
func NewWorker(ctx context.Context, cfg config.Config) (*App, error) {
	if cfg.QueueDriver != QueueDriverNATS {
		return nil, fmt.Errorf("worker requires queue driver %q, got %q", QueueDriverNATS, cfg.QueueDriver)
	}
	s, err := openShared(ctx, cfg)
	if err != nil {
		return nil, err
	}
	app := &App{Config: cfg, WorkerMetrics: metrics.NewWorkerMetrics("worker")}
	app.closers = append(app.closers, func() { _ = s.db.Close() })

	progressMetrics := metrics.NewProgressMetrics("worker", app.WorkerMetrics.Registerer())
	executor := newExecutor(progressMetrics)

	queue, err := newNATSQueue(ctx, cfg, executor)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Queue = queue
	app.closers = append(app.closers, queue.Close)

	var notifier ports.ProgressNotifier
	if cfg.ProgressRelay == ProgressRelayRedis {
		client, err := progress.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("init progress relay: %w", err)
		}
		publisher := progress.NewRedisPublisher(client, cfg.RedisProgressChannel, executor)
		dispatcher := progress.NewDispatcher(publisher, cfg.NotifyBuffer, progressMetrics)
		notifier = dispatcher
		app.background = append(app.background, func(ctx context.Context) error {
			dispatcher.Run(ctx)
			return nil
		})
		app.closers = append(app.closers, func() { _ = client.Close() })
	} else {
		slog.Warn("progress_relay_disabled", "relay", cfg.ProgressRelay)
	}

	runner := newRunner(cfg, s, notifier, app.WorkerMetrics)
	app.Runner = runner
	app.background = append(app.background, func(ctx context.Context) error {
		return queue.Consume(ctx, runner.Process)
	})
	return app, nil
}

// HTTPHandler builds the API handler with the websocket hub, metrics and MCP
// tools mounted.
func (a *App) HTTPHandler() (http.Handler, error) {
	opts := []httpadapter.Option{
		httpadapter.WithMetrics(a.HTTPMetrics),
		httpadapter.WithMount("/mcp", mcpadapter.NewHTTPHandler(a.Reader)),
	}
	if a.hub != nil {
		opts = append(opts, httpadapter.WithSessions(a.hub))
	}
	if a.WorkerMetrics != nil {
		opts = append(opts, httpadapter.WithMount("GET /metrics/worker", a.WorkerMetrics.Handler()))
	}
	return httpadapter.NewRouter(a.Config, a.Ingestor, a.Reader, opts...).Handler()
}

// Run blocks until ctx is done or a background loop fails.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, fn := range a.background {
		g.Go(func() error { return fn(gctx) })
	}
	return g.Wait()
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/document-intelligence/internal/adapters/worker"
	"github.com/kirillkom/document-intelligence/internal/config"
	"github.com/kirillkom/document-intelligence/internal/core/ports"
	"github.com/kirillkom/document-intelligence/internal/core/pricing"
	"github.com/kirillkom/document-intelligence/internal/core/usecase"
	"github.com/kirillkom/document-intelligence/internal/infrastructure/extractor/pdftext"
	"github.com/kirillkom/document-intelligence/internal/infrastructure/graph/neo4j"
	"github.com/kirillkom/document-intelligence/internal/infrastructure/llm/openai"
	"github.com/kirillkom/document-intelligence/internal/infrastructure/queue/inproc"
	"github.com/kirillkom/document-intelligence/internal/infrastructure/queue/nats"
	"github.com/kirillkom/document-intelligence/internal/infrastructure/renderer/fitz"
	"github.com/kirillkom/document-intelligence/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/document-intelligence/internal/infrastructure/resilience"
	"github.com/kirillkom/document-intelligence/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/document-intelligence/internal/observability/metrics"
)

// Queue is the task queue as the binaries use it.
type Queue interface {
	ports.MessageQueue
	Close()
}

type App struct {
	Config config.Config
	Logger *slog.Logger

	Queue         Queue
	IngestUC      ports.DocumentIngestor
	ProcessUC     ports.DocumentProcessor
	ReaderUC      ports.DocumentReader
	FeedbackUC    ports.FeedbackService
	WorkerHandler *worker.Handler
	WorkerMetrics *metrics.WorkerMetrics

	db      *sql.DB
	healthy func() bool
	closers []func()
}

// New wires every client once. Nothing is constructed lazily afterwards.
func New(ctx context.Context, cfg config.Config, service string, logger *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	workerMetrics := metrics.NewWorkerMetrics(service)
	exec := newExecutors(workerMetrics)

	app := &App{Config: cfg, Logger: logger, WorkerMetrics: workerMetrics}
	stores, err := app.openStores(ctx, cfg, exec.graph)
	if err != nil {
		app.Close()
		return nil, err
	}

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	queue, healthy, err := newQueue(cfg, exec.queue, workerMetrics, logger)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}
	app.Queue = queue
	app.healthy = healthy
	app.closers = append(app.closers, queue.Close)

	table, err := pricing.LoadTableFile(cfg.PricingFile)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("load pricing table: %w", err)
	}
	calculator := pricing.NewCalculator(table)

	client := openai.New(openai.Config{
		BaseURL:           cfg.OpenAIBaseURL,
		APIKey:            cfg.OpenAIAPIKey,
		HTTPTimeout:       cfg.OpenAIHTTPTimeout(),
		RequestsPerSecond: cfg.OpenAIRequestsPerSecond,
		Burst:             cfg.OpenAIBurst,
	}, exec.provider)
	textProvider := openai.NewTextProvider(client, cfg.OpenAITextModel,
		displayName(cfg.OpenAITextModel, openai.DefaultTextModelID, openai.DefaultTextModelName), calculator)
	visionProvider := openai.NewVisionProvider(client, cfg.OpenAIVisionModel,
		displayName(cfg.OpenAIVisionModel, openai.DefaultVisionModelID, openai.DefaultVisionModelName), calculator)

	runner := usecase.NewStrategyRunner(
		stores.summaries,
		stores.evaluations,
		stores.tags,
		workerMetrics,
		cfg.StrategyTimeout(),
	)
	processUC := usecase.NewProcessDocumentUseCase(
		stores.documents,
		pdftext.NewExtractor(storage),
		fitz.NewRenderer(storage, cfg.RenderDPI),
		textProvider,
		visionProvider,
		runner,
		usecase.ProcessOptions{
			MaxRenderPages: cfg.MaxRenderPages,
			Execution:      usecase.StrategyExecution(cfg.StrategyExecution),
		},
	)

	app.ProcessUC = processUC
	app.IngestUC = usecase.NewIngestDocumentUseCase(stores.documents, storage, queue, cfg.MaxUploadBytes())
	app.ReaderUC = stores.reader
	app.FeedbackUC = usecase.NewFeedbackUseCase(stores.summaries, stores.feedback)
	app.WorkerHandler = worker.NewHandler(processUC, queue, workerMetrics, cfg.ProcessTimeout(), logger)

	logger.Info("bootstrap_complete",
		"queue_driver", cfg.QueueDriver,
		"strategy_execution", cfg.StrategyExecution,
		"text_model", textProvider.Model().ID,
		"vision_model", visionProvider.Model().ID,
		"tag_graph", cfg.TagGraphEnabled(),
	)
	return app, nil
}

// NewReadOnly wires only the read model. It opens no queue and no provider
// client.
func NewReadOnly(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	app := &App{Config: cfg, Logger: logger}
	stores, err := app.openStores(ctx, cfg, newExecutors(nil).graph)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.ReaderUC = stores.reader
	app.FeedbackUC = usecase.NewFeedbackUseCase(stores.summaries, stores.feedback)
	return app, nil
}

// executors holds one retry/breaker policy per dependency class.
type executors struct {
	provider *resilience.Executor
	queue    *resilience.Executor
	graph    *resilience.Executor
}

func newExecutors(m *metrics.WorkerMetrics) executors {
	build := func(policy resilience.Config) *resilience.Executor {
		exec := resilience.NewExecutor(policy)
		if m != nil {
			exec.WithRetryHook(m.RecordRetry).WithCircuitHook(m.SetCircuitOpen)
		}
		return exec
	}
	return executors{
		provider: build(resilience.ProviderPolicy()),
		queue:    build(resilience.QueuePolicy()),
		graph:    build(resilience.GraphPolicy()),
	}
}

type stores struct {
	documents   *postgres.DocumentRepository
	summaries   *postgres.SummaryRepository
	evaluations *postgres.EvaluationRepository
	feedback    *postgres.FeedbackRepository
	tags        ports.TagIndexer
	reader      *usecase.DocumentQueryUseCase
}

func (a *App) openStores(ctx context.Context, cfg config.Config, executor *resilience.Executor) (stores, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return stores{}, fmt.Errorf("open postgres: %w", err)
	}
	a.db = db
	a.closers = append(a.closers, func() { _ = db.Close() })

	documents := postgres.NewDocumentRepository(db)
	if err := documents.EnsureSchema(ctx); err != nil {
		return stores{}, fmt.Errorf("ensure schema: %w", err)
	}

	s := stores{
		documents:   documents,
		summaries:   postgres.NewSummaryRepository(db),
		evaluations: postgres.NewEvaluationRepository(db),
		feedback:    postgres.NewFeedbackRepository(db),
	}

	if cfg.TagGraphEnabled() {
		index, err := neo4j.New(ctx, neo4j.Config{
			URI:      cfg.Neo4jURI,
			Username: cfg.Neo4jUser,
			Password: cfg.Neo4jPassword,
			Database: cfg.Neo4jDatabase,
		}, executor)
		if err != nil {
			return stores{}, fmt.Errorf("init tag graph: %w", err)
		}
		a.closers = append(a.closers, func() { _ = index.Close(context.Background()) })
		s.tags = index
	}

	s.reader = usecase.NewDocumentQueryUseCase(s.documents, s.summaries, s.evaluations, s.feedback, s.tags)
	return s, nil
}

func newQueue(
	cfg config.Config,
	executor *resilience.Executor,
	workerMetrics *metrics.WorkerMetrics,
	logger *slog.Logger,
) (Queue, func() bool, error) {
	switch cfg.QueueDriver {
	case config.QueueDriverInproc:
		q := inproc.New(logger,
			inproc.WithWorkers(cfg.InprocWorkers),
			inproc.WithQueueSize(cfg.InprocQueueSize),
			inproc.WithProcessTimeout(cfg.ProcessTimeout()),
			inproc.WithLagObserver(workerMetrics.ObserveQueueLag),
		)
		return q, func() bool { return true }, nil
	default:
		retry := cfg.NATSRetryConnect
		q, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			DeadLetterSubject:    cfg.NATSDeadLetterSubject,
			RetryOnFailedConnect: &retry,
			ResilienceExecutor:   executor,
			LagObserver:          workerMetrics.ObserveQueueLag,
			DrainTimeout:         cfg.ProcessTimeout() + 30*time.Second,
		})
		if err != nil {
			return nil, nil, err
		}
		return q, q.Healthy, nil
	}
}

// RunWorker consumes processing tasks until ctx is cancelled.
func (a *App) RunWorker(ctx context.Context) error {
	if a.Queue == nil || a.WorkerHandler == nil {
		return errors.New("worker is not configured")
	}
	return a.Queue.SubscribeDocumentUploaded(ctx, a.WorkerHandler.Handle)
}

// Health pings the database and checks the queue connection.
func (a *App) Health(ctx context.Context) error {
	if a.db != nil {
		if err := a.db.PingContext(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	}
	if a.healthy != nil && !a.healthy() {
		return errors.New("queue: not connected")
	}
	return nil
}

// Close releases clients in reverse construction order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func displayName(modelID, defaultID, defaultName string) string {
	if modelID == defaultID {
		return defaultName
	}
	return modelID
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/net/netutil"

	httpadapter "github.com/kirillkom/document-intelligence/internal/adapters/http"
	"github.com/kirillkom/document-intelligence/internal/bootstrap"
	"github.com/kirillkom/document-intelligence/internal/config"
	"github.com/kirillkom/document-intelligence/internal/observability/logging"
	"github.com/kirillkom/document-intelligence/internal/observability/metrics"
)

const serviceName = "api"

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger(serviceName, cfg.LogLevel)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("api_exit", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, serviceName, logger)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer app.Close()

	var (
		gatherers  []prometheus.Gatherer
		workerDone chan error
	)
	// The in-process queue has no other consumer, so the API runs the pool.
	if cfg.QueueDriver == config.QueueDriverInproc {
		gatherers = append(gatherers, app.WorkerMetrics.Registry())
		workerDone = make(chan error, 1)
		go func() {
			workerDone <- app.RunWorker(ctx)
		}()
	}

	router, err := httpadapter.NewRouter(
		cfg,
		app.IngestUC,
		app.ReaderUC,
		app.FeedbackUC,
		httpadapter.WithMetrics(metrics.NewHTTPServerMetrics(serviceName), gatherers...),
		httpadapter.WithHealthCheck(app.Health),
	)
	if err != nil {
		return fmt.Errorf("build router: %w", err)
	}

	listener, err := net.Listen("tcp", ":"+cfg.APIPort)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	if cfg.APIMaxConns > 0 {
		listener = netutil.LimitListener(listener, cfg.APIMaxConns)
	}

	server := &http.Server{
		Handler:           router.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("api_listening", "port", cfg.APIPort, "max_conns", cfg.APIMaxConns, "queue_driver", cfg.QueueDriver)
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("api_shutdown_failed", "error", err)
	}

	if workerDone != nil {
		stop()
		if err := <-workerDone; err != nil {
			logger.Warn("inproc_worker_stopped", "error", err)
		}
	}
	logger.Info("api_stopped")
	return nil
}

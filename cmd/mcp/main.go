package main

import (
	"context"
	"log/slog"
	"os"

	mcpadapter "github.com/kirillkom/document-intelligence/internal/adapters/mcp"
	"github.com/kirillkom/document-intelligence/internal/bootstrap"
	"github.com/kirillkom/document-intelligence/internal/config"
	"github.com/kirillkom/document-intelligence/internal/observability/logging"
)

// version is set with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg := config.Load()
	// stdout carries the protocol.
	logger := logging.New(os.Stderr, "mcp", cfg.LogLevel)
	slog.SetDefault(logger)

	app, err := bootstrap.NewReadOnly(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	logger.Info("mcp_serving_stdio", "version", version)
	if err := mcpadapter.NewServer(app.ReaderUC, version).ServeStdio(); err != nil {
		logger.Error("mcp_server_failed", "error", err)
		app.Close()
		os.Exit(1)
	}
}

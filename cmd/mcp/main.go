package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/server"

	mcpadapter "github.com/kirillkom/contract-orchestrator/internal/adapters/mcp"
	"github.com/kirillkom/contract-orchestrator/internal/bootstrap"
	"github.com/kirillkom/contract-orchestrator/internal/config"
	"github.com/kirillkom/contract-orchestrator/internal/observability/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_load_failed", "error", err)
		os.Exit(1)
	}
	// stdout carries the protocol; logs go to stderr.
	slog.SetDefault(logging.New(os.Stderr, "mcp", cfg.LogLevel))

	app, err := bootstrap.New(context.Background(), cfg, bootstrap.Options{})
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	tools, err := mcpadapter.NewTools(mcpadapter.Services{
		Contracts: app.Contracts,
		Approvals: app.Approvals,
		Audit:     app.Audit,
		Verifier:  app.Attestor,
		Chat:      app.Chat,
	}, cfg.MCPActorID)
	if err != nil {
		slog.Error("mcp_tools_init_failed", "error", err)
		os.Exit(1)
	}

	if err := server.ServeStdio(tools.Server("contract-orchestrator", "1.0.0")); err != nil {
		slog.Error("mcp_server_failed", "error", err)
		os.Exit(1)
	}
}

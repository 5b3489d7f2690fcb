// Package main runs the knowledge engine server: REST API and MCP over
// HTTP, or MCP over stdio for local clients.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/relaydesk/knowledge-engine/internal/config"
	"github.com/relaydesk/knowledge-engine/internal/engine"
	"github.com/relaydesk/knowledge-engine/internal/httpapi"
	mcpserver "github.com/relaydesk/knowledge-engine/internal/mcp"
)

func main() {
	// Load .env if present (local development), ignore if missing.
	if err := godotenv.Load(); err == nil {
		slog.Info("loaded .env file")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}

	eng, err := engine.FromConfig(ctx, cfg, logger)
	if err != nil {
		logger.Error("build engine", "error", err)
		os.Exit(1)
	}
	defer eng.Close()

	server := mcpserver.NewServer(eng)

	mux := http.NewServeMux()
	httpapi.New(eng, logger).Register(mux)
	mux.Handle("/mcp", mcpserver.NewHTTPHandler(server, nil))

	if os.Getenv("STDIO_MODE") == "true" {
		// Stdio mode: MCP over stdin/stdout, HTTP in the background.
		go serveHTTP(cfg.Server.Port, mux, logger)

		logger.Info("starting MCP server (stdio mode)")
		if err := server.Run(ctx); err != nil {
			logger.Error("mcp server", "error", err)
			os.Exit(1)
		}
		return
	}

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
	}()
	serveHTTP(cfg.Server.Port, mux, logger)
}

func serveHTTP(port int, mux *http.ServeMux, logger *slog.Logger) {
	addr := fmt.Sprintf("0.0.0.0:%d", port)
	logger.Info("starting HTTP server", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("http server", "error", err)
		os.Exit(1)
	}
}

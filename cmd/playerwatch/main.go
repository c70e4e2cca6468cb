// Command playerwatch keeps an annotation widget attached to the visible
// media player of an LMS page.
//
// Usage:
//
//	playerwatch -config playerwatch.yaml
//	playerwatch -config playerwatch.yaml -url https://lms.example/course/view.php?id=2
//	playerwatch -config playerwatch.yaml -mcp    # also serve MCP on stdio
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hazyhaar/playerwatch/metrics"
	"github.com/hazyhaar/playerwatch/playerwatch"
)

func main() {
	configPath := flag.String("config", "", "path to playerwatch.yaml config file")
	pageURL := flag.String("url", "", "page to open, overrides page.url")
	formatTag := flag.String("format", "", "force a course format, overrides page.format")
	addr := flag.String("addr", "", "HTTP listen address, overrides http.addr")
	serveMCP := flag.Bool("mcp", false, "serve MCP tools on stdio")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		logger.Error("playerwatch: fatal", "error", err)
		os.Exit(1)
	}
	if *pageURL != "" {
		cfg.Page.URL = *pageURL
	}
	if *formatTag != "" {
		cfg.Page.Format = *formatTag
	}
	if *addr != "" {
		cfg.HTTP.Addr = *addr
	}
	if cfg.Page.URL == "" {
		fmt.Fprintln(os.Stderr, "usage: playerwatch -config <file> [-url <page>] [-format <tag>] [-addr <host:port>] [-mcp]")
		os.Exit(1)
	}

	if err := run(ctx, logger, cfg, *serveMCP); err != nil {
		logger.Error("playerwatch: fatal", "error", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*playerwatch.Config, error) {
	if path == "" {
		return playerwatch.DefaultConfig(), nil
	}
	cfg, err := playerwatch.LoadConfigFile(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func run(ctx context.Context, logger *slog.Logger, cfg *playerwatch.Config, serveMCP bool) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.Register(reg)

	sess := playerwatch.NewSession(cfg, logger)
	defer sess.Close()
	if err := sess.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	engine := sess.Engine()

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           engine.Handler(reg),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("playerwatch: http listening", "addr", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("playerwatch: http", "error", err)
		}
	}()

	if serveMCP {
		mcpSrv := mcp.NewServer(&mcp.Implementation{
			Name:    "playerwatch",
			Version: "1.0.0",
		}, nil)
		engine.RegisterMCP(mcpSrv)
		go func() {
			if err := mcpSrv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
				logger.Error("playerwatch: mcp", "error", err)
			}
		}()
	}

	<-ctx.Done()

	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

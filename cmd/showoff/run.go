package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/sync/errgroup"

	"showoff/internal/infra/config"
	"showoff/internal/infra/logger"
	"showoff/internal/infra/tracer"
)

// env holds the process-wide infrastructure built before the app.
type env struct {
	cfg    *config.Config
	logger *slog.Logger
	close  func()
}

// setupRuntime loads config and starts logging and tracing. With stdio set,
// log and trace output bound for stdout goes to stderr instead so the MCP
// stream stays clean.
func setupRuntime(ctx context.Context, configPath string, stdio bool) (*env, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if stdio && strings.EqualFold(cfg.Logger.Output, "stdout") {
		cfg.Logger.Output = "stderr"
	}

	log, closeLog, err := logger.New(cfg.Logger, logger.WithService(cfg.MCP.Name, version))
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	slog.SetDefault(log)

	tracerOpts := []tracer.Option{tracer.WithService(cfg.MCP.Name, version)}
	if stdio {
		tracerOpts = append(tracerOpts, tracer.WithStdoutWriter(os.Stderr))
	}
	shutdownTracer, err := tracer.Setup(ctx, cfg.Tracer, tracerOpts...)
	if err != nil {
		closeLog()
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	return &env{
		cfg:    cfg,
		logger: log,
		close: func() {
			if err := shutdownTracer(context.Background()); err != nil {
				log.Warn("tracer shutdown failed", "error", err)
			}
			closeLog()
		},
	}, nil
}

func runServe(ctx context.Context, configPath string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := setupRuntime(ctx, configPath, false)
	if err != nil {
		return err
	}
	defer rt.close()

	a, err := newApp(ctx, rt.cfg, rt.logger)
	if err != nil {
		return err
	}
	defer a.close()

	rt.logger.Info("showoff starting", "addr", rt.cfg.Gateway.Addr, "tools", len(a.tools.List()))
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.gateway.Start(gctx) })
	err = g.Wait()
	rt.logger.Info("showoff stopped")
	return err
}

func runMCP(ctx context.Context, configPath string, in io.Reader, out io.Writer) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := setupRuntime(ctx, configPath, true)
	if err != nil {
		return err
	}
	defer rt.close()

	a, err := newApp(ctx, rt.cfg, rt.logger)
	if err != nil {
		return err
	}
	defer a.close()

	return serveMCP(ctx, a, in, out)
}

// serveMCP runs the gateway alongside the stdio MCP server. The process
// ends when the MCP client closes its stream.
func serveMCP(ctx context.Context, a *app, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.gateway.Start(gctx) })
	g.Go(func() error {
		defer cancel()
		err := a.mcpServer().ServeStdio(gctx, in, out)
		if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("mcp stdio: %w", err)
	})
	return g.Wait()
}

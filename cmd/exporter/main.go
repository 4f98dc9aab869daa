// Package main is the entry point for the Aria Operations exporter.
// It loads configuration, wires the session manager, API client, collector,
// scheduler, and HTTP server together, and runs until signalled.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ariaops/aria-exporter/internal/aria"
	"github.com/ariaops/aria-exporter/internal/collector"
	"github.com/ariaops/aria-exporter/internal/config"
	"github.com/ariaops/aria-exporter/internal/exporter"
	"github.com/ariaops/aria-exporter/internal/scheduler"
	"github.com/ariaops/aria-exporter/internal/server"
)

var (
	// version is set at build time via -ldflags.
	version = "dev"

	configPath  = flag.String("config", "config.yaml", "Path to configuration file")
	host        = flag.String("host", "", "Aria Operations host (overrides config)")
	username    = flag.String("username", "", "Username for authentication (overrides config)")
	password    = flag.String("password", "", "Password for authentication (overrides config)")
	port        = flag.Int("port", 0, "Port for the metrics endpoint (overrides config)")
	interval    = flag.Duration("interval", 0, "Collection interval (overrides config)")
	verifySSL   = flag.Bool("verify-ssl", false, "Verify upstream TLS certificates")
	logLevel    = flag.String("log-level", "", "Log level: debug, info, warn, error")
	showVersion = flag.Bool("version", false, "Show version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("aria-exporter %s\n", version)
		os.Exit(0)
	}

	cli := config.CLIOverrides{
		Host:     *host,
		Username: *username,
		Password: *password,
		Port:     *port,
		Interval: *interval,
		LogLevel: *logLevel,
	}
	// Only treat -verify-ssl as set when it appears on the command line, so
	// it cannot silently override the config file default.
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "verify-ssl" {
			cli.VerifySSL = verifySSL
		}
	})

	cfg, err := config.Load(*configPath, cli)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg)
	defer logger.Sync()

	logger.Info("Starting Aria Operations exporter",
		zap.String("version", version),
		zap.String("target", cfg.Aria.Host),
		zap.Duration("interval", cfg.Exporter.Interval.Duration))

	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("Received signal, shutting down", zap.String("signal", sig.String()))
		cancel()
	}()

	run(ctx, cfg, logger)
	logger.Info("Exporter stopped")
}

// run wires all components and blocks until the context is cancelled.
func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) {
	httpClient := aria.NewHTTPClient(cfg.Aria.VerifySSL)
	baseURL := aria.BaseURL(cfg.Aria.Host)

	sess := aria.NewSessionManager(httpClient, baseURL, cfg.Aria.Username, cfg.Aria.Password, logger)
	client := aria.NewClient(httpClient, sess, baseURL, cfg.Metrics, logger)

	store := collector.NewStore()
	coll := collector.New(client, sess, store, cfg.Metrics, logger)

	exp := exporter.New(store, cfg.Metrics.ResourceTypes, cfg.Labels.Static)
	registry := exporter.NewRegistry(exp)

	srv := server.New(cfg.Exporter.Port, registry, store, server.Info{
		Name:    "aria-exporter",
		Version: version,
		Target:  cfg.Aria.Host,
	}, logger)

	sched := scheduler.New(cfg.Exporter.Interval.Duration, func(ctx context.Context) {
		coll.Run(ctx)
	}, logger)

	go sched.Start(ctx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Run()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			logger.Error("HTTP server failed", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown failed", zap.Error(err))
	}
	sess.Release(shutdownCtx)
}

// initLogger creates a zap logger based on the configured level.
func initLogger(cfg *config.Config) *zap.Logger {
	var level zapcore.Level
	switch cfg.Exporter.LogLevel {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "time"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.AddSync(os.Stdout),
		level,
	)
	return zap.New(core)
}

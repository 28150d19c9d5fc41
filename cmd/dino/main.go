// Package main implements the entry point for the dino chat server: a
// websocket gateway whose every inbound event passes through attribute-based
// authorization before it is acted on and published.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/torocatala/dino/acl"
	"github.com/torocatala/dino/config"
	"github.com/torocatala/dino/gateway"
	"github.com/torocatala/dino/hooks"
	"github.com/torocatala/dino/metric"
	"github.com/torocatala/dino/natsclient"
	"github.com/torocatala/dino/pipeline"
	"github.com/torocatala/dino/publisher"
	"github.com/torocatala/dino/store"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "dino"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	// Parse and validate CLI flags
	cliCfg, logger, shouldExit, err := initializeCLI()
	if shouldExit || err != nil {
		return err
	}

	// Load configuration. Validation includes an eager check of the ACL rule
	// document: a bad rule document must stop startup, not surface at runtime.
	registry := acl.NewRegistry()
	cfg, err := initializeConfiguration(cliCfg, registry)
	if err != nil {
		return err
	}

	if cliCfg.Validate {
		slog.Info("Configuration is valid", "environment", cfg.Environment)
		return nil
	}

	ctx := context.Background()

	// Connect NATS. Publishing always goes through NATS; the storage mode only
	// selects the data-access facade.
	natsClient, err := connectNATS(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer natsClient.Close(ctx)

	facade, creator, err := buildStore(ctx, cfg, natsClient, logger)
	if err != nil {
		return err
	}

	metricsRegistry := metric.NewMetricsRegistry()
	core := metricsRegistry.CoreMetrics()

	pipe, handlers, err := buildPipeline(cfg, registry, facade, creator, natsClient, metricsRegistry, logger)
	if err != nil {
		return err
	}

	gatewayServer := gateway.New(gateway.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	}, pipe, core, logger)

	metricsServer := metric.NewServer(cfg.Server.MetricsPort, cfg.Server.MetricsPath, metricsRegistry)

	return runWithSignalHandling(ctx, cfg, gatewayServer, metricsServer, handlers, cliCfg.ShutdownTimeout)
}

// initializeCLI parses flags and sets up logging
func initializeCLI() (*CLIConfig, *slog.Logger, bool, error) {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return nil, nil, false, fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil, nil, true, nil
	}

	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil, nil, true, nil
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	slog.Info("Starting dino (chat authorization server)",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath)

	return cliCfg, logger, false, nil
}

// initializeConfiguration loads and validates configuration
func initializeConfiguration(cliCfg *CLIConfig, registry *acl.Registry) (*config.Config, error) {
	loader := config.NewLoader()
	cfg, err := loader.LoadFile(cliCfg.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if _, err := cfg.Validate(registry); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	slog.Info("Configuration loaded", "config", cfg.String())
	return cfg, nil
}

// connectNATS creates and connects the NATS client
func connectNATS(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*natsclient.Client, error) {
	opts := []natsclient.Option{
		natsclient.WithName(appName),
		natsclient.WithReconnect(cfg.NATS.MaxReconnects, cfg.NATS.ReconnectWait),
	}
	if cfg.NATS.Username != "" {
		opts = append(opts, natsclient.WithCredentials(cfg.NATS.Username, cfg.NATS.Password))
	}
	if cfg.NATS.Token != "" {
		opts = append(opts, natsclient.WithToken(cfg.NATS.Token))
	}

	client := natsclient.New(strings.Join(cfg.NATS.URLs, ","), logger, opts...)

	slog.Info("Connecting to NATS", "urls", cfg.NATS.URLs)
	if err := client.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	return client, nil
}

// buildStore selects the data-access facade from the storage mode
func buildStore(
	ctx context.Context,
	cfg *config.Config,
	natsClient *natsclient.Client,
	logger *slog.Logger,
) (store.Facade, hooks.RoomCreator, error) {
	switch cfg.Storage.Mode {
	case config.StorageModeKV:
		kv, err := store.NewKV(ctx, natsClient, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("open KV store: %w", err)
		}
		slog.Info("Storage ready", "mode", cfg.Storage.Mode)
		return kv, kv, nil
	default:
		m := store.NewMemory()
		slog.Info("Storage ready", "mode", config.StorageModeMemory)
		return m, m, nil
	}
}

// buildPipeline wires validators and handlers for every supported event kind
func buildPipeline(
	cfg *config.Config,
	registry *acl.Registry,
	facade store.Facade,
	creator hooks.RoomCreator,
	natsClient *natsclient.Client,
	metricsRegistry *metric.MetricsRegistry,
	logger *slog.Logger,
) (*pipeline.Pipeline, *hooks.Handlers, error) {
	engine := acl.NewEngine(facade, registry, logger)
	validator := pipeline.NewRequestValidator(facade, engine, logger)

	pub := publisher.NewNATS(natsClient, logger,
		publisher.WithSubjects(cfg.NATS.InternalSubject, cfg.NATS.ExternalSubject))
	handlers := hooks.New(facade, creator, pub, logger)

	pipe := pipeline.New(facade, pipeline.NewMetrics(metricsRegistry), nil, logger)

	events := []*pipeline.Event{
		{Name: pipeline.ActionLogin, PreAuth: true, Validate: validator.OnLogin, Handle: handlers.OnLogin},
		{Name: pipeline.ActionMessage, Validate: validator.OnMessage, Handle: handlers.OnMessage},
		{Name: pipeline.ActionJoin, Validate: validator.OnJoin, Handle: handlers.OnJoin},
		{Name: pipeline.ActionKick, Validate: validator.OnKick, Handle: handlers.OnKick},
		{Name: pipeline.ActionBan, Validate: validator.OnBan, Handle: handlers.OnBan},
		{Name: pipeline.ActionCreate, Validate: validator.OnCreate, Handle: handlers.OnCreate},
	}
	for _, event := range events {
		if err := pipe.Register(event); err != nil {
			return nil, nil, fmt.Errorf("register event %q: %w", event.Name, err)
		}
	}

	return pipe, handlers, nil
}

// runWithSignalHandling starts the listeners and handles shutdown signals
func runWithSignalHandling(
	ctx context.Context,
	cfg *config.Config,
	gatewayServer *gateway.Server,
	metricsServer *metric.Server,
	handlers *hooks.Handlers,
	shutdownTimeout time.Duration,
) error {
	signalCtx, signalCancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	errCh := make(chan error, 2)
	go func() {
		if err := metricsServer.Start(); err != nil {
			errCh <- fmt.Errorf("metrics server: %w", err)
		}
	}()
	go func() {
		if err := gatewayServer.Start(); err != nil {
			errCh <- fmt.Errorf("gateway: %w", err)
		}
	}()

	// Announce the restart so other nodes can invalidate cached sessions.
	handlers.PublishStartup(signalCtx, cfg.Environment)

	slog.Info("dino started", "environment", cfg.Environment,
		"addr", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		"metrics_port", cfg.Server.MetricsPort)

	select {
	case err := <-errCh:
		return err
	case <-signalCtx.Done():
		slog.Info("Received shutdown signal")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := gatewayServer.Stop(shutdownCtx); err != nil {
		slog.Error("Error stopping gateway", "error", err)
		return err
	}
	if err := metricsServer.Stop(); err != nil {
		slog.Error("Error stopping metrics server", "error", err)
		return err
	}

	slog.Info("dino shutdown complete")
	return nil
}

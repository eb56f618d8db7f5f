// Package main implements the entry point for the rulescope orchestrator.
// Rulescope routes asset facts to rule-evaluation engines across the global,
// tenant and asset scope levels and keeps engine membership synchronized with
// ruleset, tenant and asset changes.
package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/c360/rulescope/engine"
	"github.com/c360/rulescope/health"
	"github.com/c360/rulescope/metric"
	"github.com/c360/rulescope/natsclient"
	"github.com/c360/rulescope/rules"
	"github.com/c360/rulescope/storage"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "rulescope"
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
	cliCfg, shouldExit, err := initializeCLI()
	if shouldExit || err != nil {
		return err
	}

	cfg := buildConfig(cliCfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if cliCfg.Validate {
		slog.Info("Configuration is valid")
		return nil
	}

	ctx := context.Background()
	signalCtx, signalCancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	metricsRegistry := metric.NewMetricsRegistry()
	metricsServer := startMetricsServer(cliCfg, metricsRegistry)
	if metricsServer != nil {
		defer func() { _ = metricsServer.Stop() }()
	}

	monitor := health.NewMonitor()
	natsClient, err := connectNATS(ctx, cliCfg, metricsRegistry, monitor)
	if err != nil {
		return err
	}
	defer func() { _ = natsClient.Close(ctx) }()

	service, err := buildService(ctx, cfg, cliCfg, natsClient, metricsRegistry)
	if err != nil {
		return err
	}

	if metricsServer != nil {
		metricsServer.SetHealthProvider(func() health.Status {
			return health.Aggregate(appName, []health.Status{
				monitor.Aggregate("transport"),
				service.Health(),
			})
		})
	}

	if err := service.Start(signalCtx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}

	transport := rules.NewTransport(natsClient, service, cfg)
	if err := transport.Start(signalCtx); err != nil {
		_ = service.Stop(cliCfg.ShutdownTimeout)
		return fmt.Errorf("start transport: %w", err)
	}

	metricsRegistry.CoreMetrics().RecordServiceStatus(appName, 2)
	global, tenants, assets := service.DeploymentCounts()
	slog.Info("Rulescope started",
		"globalDeployments", global,
		"tenantDeployments", tenants,
		"assetDeployments", assets,
		"factsIndexed", service.FactCount())

	<-signalCtx.Done()
	slog.Info("Received shutdown signal")

	metricsRegistry.CoreMetrics().RecordServiceStatus(appName, 3)
	if err := service.Stop(cliCfg.ShutdownTimeout); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	metricsRegistry.CoreMetrics().RecordServiceStatus(appName, 0)

	slog.Info("Rulescope shutdown complete")
	return nil
}

// initializeCLI parses flags and sets up logging
func initializeCLI() (*CLIConfig, bool, error) {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return nil, false, fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil, true, nil
	}

	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil, true, nil
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	slog.Info("Starting rulescope (rule-deployment orchestration)",
		"version", Version,
		"build_time", BuildTime,
		"engine", cliCfg.EngineMode,
		"nats_url", cliCfg.NATSURL)

	return cliCfg, false, nil
}

// buildConfig maps CLI flags onto the orchestrator configuration
func buildConfig(cliCfg *CLIConfig) *rules.Config {
	cfg := rules.DefaultConfig()
	cfg.EventExpires = cliCfg.EventExpires
	cfg.ChangeStream = cliCfg.ChangeStream
	cfg.ChangeSubject = cliCfg.ChangeSubject
	cfg.ChangeConsumer = cliCfg.ChangeConsumer
	cfg.FactSubject = cliCfg.FactSubject
	cfg.EngineSubjectPrefix = cliCfg.EnginePrefix
	return cfg
}

// startMetricsServer starts the Prometheus endpoint unless disabled
func startMetricsServer(cliCfg *CLIConfig, registry *metric.MetricsRegistry) *metric.Server {
	if cliCfg.MetricsPort == 0 {
		slog.Info("Metrics server disabled")
		return nil
	}

	server := metric.NewServer(cliCfg.MetricsPort, "/metrics", registry)
	go func() {
		if err := server.Start(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server failed", "error", err)
		}
	}()
	slog.Info("Metrics server started", "address", server.Address())
	return server
}

// connectNATS establishes the NATS connection and waits for it to be ready
func connectNATS(
	ctx context.Context,
	cliCfg *CLIConfig,
	metricsRegistry *metric.MetricsRegistry,
	monitor *health.Monitor,
) (*natsclient.Client, error) {
	var natsClient *natsclient.Client
	natsClient, err := natsclient.NewClient(cliCfg.NATSURL,
		natsclient.WithName(appName),
		natsclient.WithCoreMetrics(metricsRegistry.CoreMetrics()),
		// The callback fires on connection transitions, always after
		// Connect, so the client captured here is assigned by then.
		natsclient.WithHealthChangeCallback(func(healthy bool) {
			if healthy {
				monitor.UpdateHealthy("nats", natsStatusMessage(natsClient))
			} else {
				monitor.UpdateUnhealthy("nats", natsStatusMessage(natsClient))
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("create NATS client: %w", err)
	}

	slog.Info("Connecting to NATS")
	if err := natsClient.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := natsClient.WaitForConnection(connCtx); err != nil {
		return nil, fmt.Errorf("NATS connection timeout: %w", err)
	}
	monitor.UpdateHealthy("nats", natsStatusMessage(natsClient))

	return natsClient, nil
}

// natsStatusMessage summarizes the connection state for the health endpoint.
func natsStatusMessage(client *natsclient.Client) string {
	status := client.GetStatus()
	return fmt.Sprintf("status=%s failures=%d rtt=%s",
		status.Status, status.FailureCount, status.RTT)
}

// buildService wires storage, the engine factory and the orchestrator
func buildService(
	ctx context.Context,
	cfg *rules.Config,
	cliCfg *CLIConfig,
	natsClient *natsclient.Client,
	metricsRegistry *metric.MetricsRegistry,
) (*rules.Service, error) {
	store, err := storage.NewKVStore(ctx, natsClient)
	if err != nil {
		return nil, fmt.Errorf("create KV store: %w", err)
	}

	var factory rules.EngineFactory
	switch cliCfg.EngineMode {
	case "memory":
		factory = engine.NewMemoryFactory()
	default:
		factory = engine.NewNATSFactory(natsClient, cfg.EngineSubjectPrefix)
	}

	service, err := rules.NewService(cfg, factory, store, store, store, metricsRegistry)
	if err != nil {
		return nil, fmt.Errorf("create service: %w", err)
	}
	if err := service.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize service: %w", err)
	}

	return service, nil
}

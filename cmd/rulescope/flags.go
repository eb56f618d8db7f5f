package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	NATSURL         string
	EngineMode      string
	EventExpires    string
	ChangeStream    string
	ChangeSubject   string
	ChangeConsumer  string
	FactSubject     string
	EnginePrefix    string
	LogLevel        string
	LogFormat       string
	Debug           bool
	MetricsPort     int
	ShutdownTimeout time.Duration
	ShowVersion     bool
	ShowHelp        bool
	Validate        bool
}

func parseFlags() *CLIConfig {
	cfg := &CLIConfig{}

	// Define flags with environment variable fallback
	flag.StringVar(&cfg.NATSURL, "nats-url",
		getEnv("RULESCOPE_NATS_URL", "nats://localhost:4222"),
		"NATS server URL (env: RULESCOPE_NATS_URL)")

	flag.StringVar(&cfg.EngineMode, "engine",
		getEnv("RULESCOPE_ENGINE", "nats"),
		"Engine backend: nats, memory (env: RULESCOPE_ENGINE)")

	flag.StringVar(&cfg.EventExpires, "event-expires",
		getEnv("RULESCOPE_EVENT_EXPIRES", "1h"),
		"Default event fact expiry, e.g. 30m, 1h, 2d (env: RULESCOPE_EVENT_EXPIRES)")

	flag.StringVar(&cfg.ChangeStream, "change-stream",
		getEnv("RULESCOPE_CHANGE_STREAM", "PERSISTENCE"),
		"JetStream stream carrying change notifications (env: RULESCOPE_CHANGE_STREAM)")

	flag.StringVar(&cfg.ChangeSubject, "change-subject",
		getEnv("RULESCOPE_CHANGE_SUBJECT", "persistence.events.>"),
		"Change notification subject filter (env: RULESCOPE_CHANGE_SUBJECT)")

	flag.StringVar(&cfg.ChangeConsumer, "change-consumer",
		getEnv("RULESCOPE_CHANGE_CONSUMER", "rulescope"),
		"Durable consumer name for the change feed (env: RULESCOPE_CHANGE_CONSUMER)")

	flag.StringVar(&cfg.FactSubject, "fact-subject",
		getEnv("RULESCOPE_FACT_SUBJECT", "assets.state.>"),
		"Subject the attribute pipeline publishes facts on (env: RULESCOPE_FACT_SUBJECT)")

	flag.StringVar(&cfg.EnginePrefix, "engine-prefix",
		getEnv("RULESCOPE_ENGINE_PREFIX", "rules.engine"),
		"Subject prefix for engine operation fan-out (env: RULESCOPE_ENGINE_PREFIX)")

	flag.StringVar(&cfg.LogLevel, "log-level",
		getEnv("RULESCOPE_LOG_LEVEL", "info"),
		"Log level: debug, info, warn, error (env: RULESCOPE_LOG_LEVEL)")

	flag.StringVar(&cfg.LogFormat, "log-format",
		getEnv("RULESCOPE_LOG_FORMAT", "json"),
		"Log format: json, text (env: RULESCOPE_LOG_FORMAT)")

	flag.BoolVar(&cfg.Debug, "debug",
		getEnvBool("RULESCOPE_DEBUG", false),
		"Enable debug mode (env: RULESCOPE_DEBUG)")

	flag.IntVar(&cfg.MetricsPort, "metrics-port",
		getEnvInt("RULESCOPE_METRICS_PORT", 9090),
		"Prometheus metrics port, 0 to disable (env: RULESCOPE_METRICS_PORT)")

	flag.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout",
		getEnvDuration("RULESCOPE_SHUTDOWN_TIMEOUT", 30*time.Second),
		"Graceful shutdown timeout (env: RULESCOPE_SHUTDOWN_TIMEOUT)")

	flag.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	flag.BoolVar(&cfg.ShowVersion, "v", false, "Show version information")
	flag.BoolVar(&cfg.ShowHelp, "help", false, "Show help information")
	flag.BoolVar(&cfg.ShowHelp, "h", false, "Show help information")
	flag.BoolVar(&cfg.Validate, "validate", false, "Validate configuration and exit")

	flag.Usage = func() {
		printDetailedHelp()
	}

	flag.Parse()

	// Override log level if debug is set
	if cfg.Debug {
		cfg.LogLevel = "debug"
	}

	return cfg
}

func validateFlags(cfg *CLIConfig) error {
	// Skip validation for special flags
	if cfg.ShowVersion || cfg.ShowHelp {
		return nil
	}

	if cfg.NATSURL == "" {
		return fmt.Errorf("nats-url must not be empty")
	}

	validEngines := []string{"nats", "memory"}
	if !contains(validEngines, cfg.EngineMode) {
		return fmt.Errorf("invalid engine backend: %s", cfg.EngineMode)
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLevels, cfg.LogLevel) {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}

	validFormats := []string{"json", "text"}
	if !contains(validFormats, cfg.LogFormat) {
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}

	if cfg.MetricsPort < 0 || cfg.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", cfg.MetricsPort)
	}

	return nil
}

func printDetailedHelp() {
	_, _ = fmt.Fprintf(os.Stderr, `%s - Hierarchical Rule-Deployment Orchestrator

Usage: %s [options]

Options:
`, appName, os.Args[0])
	flag.PrintDefaults()
	_, _ = fmt.Fprintf(os.Stderr, `
Examples:
  # Run against a local NATS server
  %s --nats-url=nats://localhost:4222

  # Run with debug logging and in-memory engines
  %s --engine=memory --log-level=debug --log-format=text

  # Run with environment variables
  export RULESCOPE_NATS_URL=nats://nats.internal:4222
  export RULESCOPE_EVENT_EXPIRES=30m
  %s

  # Validate configuration only
  %s --validate

Version: %s
Build: %s
`, os.Args[0], os.Args[0], os.Args[0], os.Args[0], Version, BuildTime)
}

// Environment variable helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// Utility function to check if slice contains string
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

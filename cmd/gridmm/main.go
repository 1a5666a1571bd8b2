// Command gridmm runs one or more grid market-making bots from a single
// YAML configuration, the way live_server's main wired one configured
// pipeline end to end: load config, bring up logging and metrics, build the
// running components, and block until a shutdown signal arrives.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"gridmm/internal/adminapi"
	"gridmm/internal/bootstrap"
	inframetrics "gridmm/internal/infrastructure/metrics"
	"gridmm/internal/registry"
	"gridmm/pkg/logging"
	"gridmm/pkg/telemetry"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "configs/gridmm.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("gridmm version %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	cfg, err := bootstrap.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewZapLogger(cfg.System.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}

	var metricsServer *inframetrics.Server
	var tel *telemetry.Telemetry
	if cfg.Telemetry.EnableMetrics {
		tel, err = telemetry.Setup("gridmm")
		if err != nil {
			logger.Warn("failed to initialize telemetry providers", "error", err)
		} else {
			metricsServer = inframetrics.NewServer(cfg.Telemetry.MetricsPort, logger)
			logger.Info("telemetry providers initialized", "port", cfg.Telemetry.MetricsPort)
		}
	}

	logger.Info("starting gridmm", "version", version, "bots", len(cfg.Bots), "engine_type", cfg.App.EngineType)

	reg, err := registry.New(context.Background(), cfg, logger, registry.Options{
		MetricsInterval: 15 * time.Second,
	})
	if err != nil {
		logger.Fatal("failed to build bot registry", "error", err)
		os.Exit(1)
	}

	if err := reg.StartAll(context.Background()); err != nil {
		logger.Fatal("one or more bots failed to start", "error", err)
		os.Exit(1)
	}
	logger.Info("all bots started")

	runners := reg.Runners()
	if cfg.App.AdminPort != 0 {
		runners = append(runners, adminapi.NewServer(fmt.Sprintf(":%d", cfg.App.AdminPort), reg, logger))
	}
	if metricsServer != nil {
		runners = append(runners, metricsServer)
	}

	// The process-level App handles signal.NotifyContext and the errgroup
	// fan-out over every Runner; gridmm's own domain events go through the
	// zap-backed ILogger above instead of App's plain slog logger.
	app := &bootstrap.App{Cfg: cfg, Logger: bootstrap.InitLogger(cfg)}

	runErr := app.Run(runners...)
	if closeErr := reg.Close(); closeErr != nil {
		logger.Error("error during shutdown", "error", closeErr)
	}
	if tel != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if telErr := tel.Shutdown(shutdownCtx); telErr != nil {
			logger.Error("error during telemetry shutdown", "error", telErr)
		}
		cancel()
	}
	if runErr != nil {
		logger.Error("gridmm stopped with error", "error", runErr)
		os.Exit(1)
	}
	logger.Info("gridmm stopped")
}

// Package main provides the entry point for the promotion control plane.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/tradeguard/internal/backup"
	"github.com/yourusername/tradeguard/internal/canary"
	"github.com/yourusername/tradeguard/internal/config"
	"github.com/yourusername/tradeguard/internal/database"
	"github.com/yourusername/tradeguard/internal/excursion"
	"github.com/yourusername/tradeguard/internal/health"
	"github.com/yourusername/tradeguard/internal/ledger"
	"github.com/yourusername/tradeguard/internal/logger"
	"github.com/yourusername/tradeguard/internal/metrics"
	"github.com/yourusername/tradeguard/internal/optimizer"
	"github.com/yourusername/tradeguard/internal/pipeline"
	"github.com/yourusername/tradeguard/internal/promotion"
	"github.com/yourusername/tradeguard/internal/scheduler"
	"github.com/yourusername/tradeguard/internal/service"
	"github.com/yourusername/tradeguard/internal/stats"
	"github.com/yourusername/tradeguard/internal/stream"
)

func main() {
	cfg, err := config.LoadWithDefaults(os.Getenv("TRADEGUARD_CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Load AWS secrets if enabled
	if os.Getenv("AWS_SECRETS_ENABLED") == "true" {
		region := os.Getenv("AWS_REGION")
		secretName := os.Getenv("AWS_SECRET_NAME")
		if region == "" || secretName == "" {
			log.Fatalf("AWS_REGION and AWS_SECRET_NAME environment variables must be set when AWS_SECRETS_ENABLED is true")
		}
		if err := config.LoadSecretsFromAWS(cfg, region, secretName); err != nil {
			log.Fatalf("Failed to load secrets: %v", err)
		}
	}

	if err := config.Validate(cfg); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	appLog := logger.NewLogger(cfg.App.LogLevel)
	appLog.WithFields(logrus.Fields{
		"environment": cfg.App.Environment,
		"log_level":   cfg.App.LogLevel,
	}).Info("TradeGuard control plane starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Outcome ledger: durable when the persistent ledger is enabled,
	// in-process otherwise.
	var (
		outcomes ledger.OutcomeLedger
		db       *database.DB
	)
	if cfg.Features.PersistentLedgerEnabled {
		db, err = database.NewDB(ctx, &cfg.Database)
		if err != nil {
			appLog.WithError(err).Fatal("Failed to connect to database")
		}
		defer db.Close()

		pgLedger := ledger.NewPostgresLedger(db)
		if err := pgLedger.EnsureSchema(ctx); err != nil {
			appLog.WithError(err).Fatal("Failed to ensure ledger schema")
		}
		outcomes = pgLedger
		appLog.Info("Durable outcome ledger ready")
	} else {
		outcomes = ledger.NewMemoryLedger(appLog)
		appLog.Info("In-memory outcome ledger ready")
	}

	estimator := stats.NewEstimator(statsConfig(cfg))
	analyzer := excursion.NewAnalyzer(excursionConfig(cfg), outcomes, estimator, appLog)
	opt := optimizer.NewOptimizer(optimizerConfig(cfg), outcomes, estimator, appLog)

	store, err := backup.NewStore(backup.Config{
		RootDir:      cfg.Backup.RootDir,
		MaxSnapshots: cfg.Backup.MaxSnapshots,
	}, appLog)
	if err != nil {
		appLog.WithError(err).Fatal("Failed to open artifact store")
	}

	monitor := canary.NewMonitor(canaryConfig(cfg), appLog)
	gate := promotion.NewGate(cfg.Features.AutoPromotionEnabled && cfg.Promotion.Enabled)

	controller, err := promotion.NewController(promotion.Config{
		BaselineWindow: cfg.BaselineWindow(),
	}, gate, store, monitor, outcomes, appLog)
	if err != nil {
		appLog.WithError(err).Fatal("Failed to initialize promotion controller")
	}

	audit := logger.NewAuditLogger(appLog)
	controller.AddEmitter(audit)
	controller.SetHaltSignaler(audit)

	var broadcaster *stream.Broadcaster
	if cfg.Stream.Enabled {
		broadcaster = stream.NewBroadcaster(appLog)
		controller.AddEmitter(broadcaster)
		defer broadcaster.Close()

		mux := http.NewServeMux()
		mux.HandleFunc("/events", broadcaster.HandleWS)
		streamServer := &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Stream.Port),
			Handler: mux,
		}
		go func() {
			appLog.WithField("port", cfg.Stream.Port).Info("Event stream listening")
			if err := streamServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				appLog.WithError(err).Error("Event stream server error")
			}
		}()
		defer streamServer.Shutdown(context.Background())
	}

	cycles := service.NewLearningCycleService(
		outcomes, estimator, analyzer, opt, controller, gate, audit, appLog,
		cfg.Features.AutoPromotionEnabled,
	)

	sched := scheduler.NewScheduler(cycles, appLog)
	if err := sched.ScheduleLearningCycle(cfg.Promotion.RecommendationSchedule); err != nil {
		appLog.WithError(err).Fatal("Failed to schedule learning cycle")
	}
	if err := sched.ScheduleCanaryEvaluation(cfg.Promotion.EvaluationSchedule); err != nil {
		appLog.WithError(err).Fatal("Failed to schedule canary evaluation")
	}
	if err := sched.Start(); err != nil {
		appLog.WithError(err).Fatal("Failed to start scheduler")
	}
	defer sched.Stop()

	if cfg.Pipeline.Enabled && cfg.Features.ArtifactIntakeEnabled {
		client := pipeline.NewRateLimitedHTTPClient(pipeline.HTTPClientConfig{
			Timeout:      time.Duration(cfg.Pipeline.TimeoutSeconds) * time.Second,
			MaxRetries:   cfg.Pipeline.RetryAttempts,
			RetryWaitMin: 100 * time.Millisecond,
			RetryWaitMax: 10 * time.Second,
			RateLimit:    cfg.Pipeline.RateLimitPerSecond,
			AuthToken:    cfg.Pipeline.AuthToken,
		}, appLog)
		defer client.Close()

		poller := pipeline.NewPoller(pipeline.Config{
			URL:          cfg.Pipeline.URL,
			PollInterval: time.Duration(cfg.Pipeline.PollIntervalSeconds) * time.Second,
			DownloadDir:  cfg.Pipeline.DownloadDir,
		}, client, controller, appLog)
		go poller.Run(ctx)
	}

	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		metricsMux := http.NewServeMux()
		metricsMux.Handle(cfg.Metrics.Path, metrics.Handler())
		metricsServer := &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
			Handler: metricsMux,
		}
		go func() {
			appLog.WithField("port", cfg.Metrics.Port).Info("Metrics endpoint listening")
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				appLog.WithError(err).Error("Metrics server error")
			}
		}()
		defer metricsServer.Shutdown(context.Background())
	}

	healthCfg := health.Config{
		ServiceName: cfg.App.Name,
		Logger:      appLog,
		Status:      cycles,
	}
	if db != nil {
		healthCfg.DB = db
	}
	healthServer := health.NewServer(healthCfg)
	if err := healthServer.Start(ctx); err != nil {
		appLog.WithError(err).Fatal("Failed to start health server")
	}
	healthServer.SetReady(true)

	appLog.Info("Control plane running")
	<-ctx.Done()
	appLog.Info("Shutdown signal received")
}

func statsConfig(cfg *config.Config) stats.Config {
	c := stats.DefaultConfig()
	c.LowSampleFloor = cfg.Learning.LowSampleFloor
	c.MediumSampleFloor = cfg.Learning.MediumSampleFloor
	c.HighSampleFloor = cfg.Learning.HighSampleFloor
	c.BlendLowWeight = cfg.Learning.LowBlendWeight
	c.BlendMediumWeight = cfg.Learning.MediumBlendWeight
	c.BlendHighWeight = cfg.Learning.HighBlendWeight
	return c
}

func excursionConfig(cfg *config.Config) excursion.Config {
	return excursion.Config{
		Checkpoint:      cfg.ExcursionCheckpoint(),
		BucketEdges:     cfg.Excursion.BucketEdges,
		StopOutFloor:    cfg.Excursion.StopOutFloor,
		SampleSizeFloor: cfg.Excursion.SampleSizeFloor,
	}
}

func optimizerConfig(cfg *config.Config) optimizer.Config {
	return optimizer.Config{
		ImprovementMargin: cfg.Optimizer.ImprovementMargin,
		CacheTTL:          time.Duration(cfg.Optimizer.CacheTTLSeconds) * time.Second,
	}
}

func canaryConfig(cfg *config.Config) canary.Config {
	return canary.Config{
		MinTrades:                cfg.Canary.MinTrades,
		MinElapsed:               time.Duration(cfg.Canary.MinElapsedMinutes) * time.Minute,
		ObservationWindow:        time.Duration(cfg.Canary.ObservationWindowHours) * time.Hour,
		WinRateDropTrigger:       cfg.Canary.WinRateDropTrigger,
		DrawdownFloor:            cfg.Canary.DrawdownFloor,
		SharpeDropTrigger:        cfg.Canary.SharpeDropTrigger,
		CatastrophicWinRateFloor: cfg.Canary.CatastrophicWinRateFloor,
		CatastrophicDrawdown:     cfg.Canary.CatastrophicDrawdown,
	}
}

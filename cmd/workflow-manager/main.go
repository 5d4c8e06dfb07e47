// cmd/workflow-manager/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"license-workflow/internal/assignment"
	"license-workflow/internal/audit"
	"license-workflow/internal/common/config"
	"license-workflow/internal/common/database"
	"license-workflow/internal/common/logger"
	"license-workflow/internal/common/observability"
	"license-workflow/internal/directory"
	"license-workflow/internal/notify"
	"license-workflow/internal/sweep"
	"license-workflow/internal/workflow"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	zapLog := logger.New("info", "console")
	defer zapLog.Sync()

	// Wrap zap logger with our logger interface
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting workflow manager...")

	cfg, err := config.Load()
	if err != nil {
		zapLog.Fatal("config load failed", zap.Error(err))
	}

	obs := observability.New("workflow-manager")
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		// Test the connection with context
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")

	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Elasticsearch with retry (audit mirror only) ---
	var recorder audit.Recorder = audit.NopRecorder{}
	if cfg.Audit.Enabled {
		var esClient *database.ElasticsearchClient
		err = retryWithBackoff(func() error {
			var err error
			esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			// Test the connection
			return esClient.Ping()
		}, 15, 2*time.Second, zapLog, "Elasticsearch connection")

		if err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}
		recorder = audit.NewESRecorder(esClient.Client, log)
		zapLog.Info("Elasticsearch connected successfully")
	}

	// --- Init Redis with retry (sweep lease only) ---
	var redis *database.RedisClient
	if cfg.Sweep.Enabled {
		err = retryWithBackoff(func() error {
			var err error
			redis, err = database.NewRedis(cfg.Database.Redis)
			if err != nil {
				return err
			}
			// Test the connection with context
			return redis.Ping(ctx)
		}, 10, 2*time.Second, zapLog, "Redis connection")

		if err != nil {
			zapLog.Fatal("redis failed after retries", zap.Error(err))
		}
		defer redis.Close()
		zapLog.Info("Redis connected successfully")
	}

	// --- Notification service ---
	notifier, err := notify.NewService(&notify.Config{
		EmailEnabled: cfg.Notifications.Email.Enabled,
		SMSEnabled:   cfg.Notifications.SMS.Enabled,
		FromEmail:    cfg.Notifications.Email.FromEmail,
		AWSRegion:    cfg.Notifications.AWS.Region,
		Timeout:      30 * time.Second,
	}, pg.DB, log)
	if err != nil {
		zapLog.Fatal("notification service init failed", zap.Error(err))
	}

	// --- Core engines ---
	store := workflow.NewStore(pg.DB)
	dir := directory.NewPostgresDirectory(pg.DB)

	engine := assignment.NewEngine(store, dir, notifier, recorder, log)

	ladder := assignment.DefaultLadder()
	if cfg.Workflow.EscalationLadderPath != "" {
		ladder, err = assignment.LoadLadder(cfg.Workflow.EscalationLadderPath)
		if err != nil {
			zapLog.Fatal("escalation ladder load failed", zap.Error(err))
		}
	}
	escalator := assignment.NewEscalator(engine, ladder, store, log)

	orchestrator := workflow.NewOrchestrator(store, dir, engine, notifier, recorder, log, cfg.Workflow.AdminOverrideReassign)

	zapLog.Info("Workflow engines initialized",
		zap.Strings("ladder", ladderTiers(ladder)),
		zap.Int("maxReassignments", ladder.MaxReassignments),
		zap.Int("stallDays", ladder.StallDays),
	)

	// --- Stall sweep ---
	var sweeper *sweep.Sweeper
	if cfg.Sweep.Enabled {
		sweeper = sweep.NewSweeper(&sweep.Config{
			Schedule: cfg.Sweep.Schedule,
			LeaseTTL: config.GetDuration(cfg.Sweep.LeaseTTL),
		}, escalator, redis.Client, obs, log)

		if err := sweeper.Start(ctx); err != nil {
			zapLog.Fatal("sweep start failed", zap.Error(err))
		}
	}

	// --- Health & Metrics Server ---
	go func() {
		http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "healthy",
				"time":   time.Now().Format(time.RFC3339),
			})
		})
		http.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "ready",
				"time":   time.Now().Format(time.RFC3339),
			})
		})
		http.Handle("/metrics", promhttp.Handler())
		http.Handle("/api/transitions", transitionHandler(orchestrator))
		zapLog.Info("Health/Metrics server listening", zap.String("address", cfg.Server.Address))
		if err := http.ListenAndServe(cfg.Server.Address, nil); err != nil {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping...")
	if sweeper != nil {
		sweeper.Stop()
	}

	zapLog.Info("Workflow manager stopped gracefully")
}

func ladderTiers(l *assignment.Ladder) []string {
	out := make([]string, len(l.Tiers))
	for i, t := range l.Tiers {
		out[i] = string(t)
	}
	return out
}

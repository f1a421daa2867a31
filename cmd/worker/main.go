package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/wastewise/taskcore/config"
	"github.com/wastewise/taskcore/internal/domain"
	"github.com/wastewise/taskcore/internal/health"
	"github.com/wastewise/taskcore/internal/infrastructure/postgres"
	"github.com/wastewise/taskcore/internal/infrastructure/redis"
	ctxlog "github.com/wastewise/taskcore/internal/log"
	"github.com/wastewise/taskcore/internal/metrics"
	"github.com/wastewise/taskcore/internal/notify"
	"github.com/wastewise/taskcore/internal/retry"
	"github.com/wastewise/taskcore/internal/usecase"
	"github.com/wastewise/taskcore/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := newLogger(cfg.Env, cfg.SlogLevel())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		stop()
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	logger.Info("db connected")

	policy := retry.NewPolicy()
	jobRepo := postgres.NewJobRepository(pool)
	outboxRepo := postgres.NewOutboxRepository(pool, policy)
	jobUsecase := usecase.NewJobUsecase(jobRepo)

	metrics.Register()

	// Claim loop
	executor := worker.NewExecutor(cfg.ForecastURL, time.Duration(cfg.ForecastTimeout)*time.Second)
	w := worker.New(
		jobRepo,
		executor,
		policy,
		logger,
		time.Duration(cfg.PollIntervalSec)*time.Second,
		cfg.WorkerCount,
	)
	go w.Start(ctx)

	// Lease recovery
	reaper := worker.NewReaper(
		jobRepo,
		logger,
		time.Duration(cfg.ReapIntervalSec)*time.Second,
		time.Duration(cfg.LeaseTimeoutSec)*time.Second,
	)
	go reaper.Start(ctx)

	// Daily T+1 submission
	submitter, err := worker.NewSubmitter(jobUsecase, logger, cfg.DailySubmitCron, cfg.DailySubmitType)
	if err != nil {
		stop()
		log.Fatalf("submitter: %v", err)
	}
	go submitter.Start(ctx)

	// Notification dispatch
	var (
		limiter     notify.RateLimiter
		redisHealth health.Pinger
	)
	if cfg.RedisURL != "" {
		client, err := redis.NewClient(cfg.RedisURL)
		if err != nil {
			stop()
			log.Fatalf("redis: %v", err)
		}
		defer func() { _ = client.Close() }()

		rl, err := redis.NewRateLimiter(client, cfg.SendRatePerSec)
		if err != nil {
			stop()
			log.Fatalf("rate limiter: %v", err)
		}
		limiter = rl
		redisHealth = redis.Health{Client: client}
	}

	var (
		resolver notify.RecipientResolver
		prefs    notify.PreferencePort
	)
	if cfg.ProfileURL != "" {
		profile := notify.NewProfileClient(cfg.ProfileURL, time.Duration(cfg.ProfileTimeoutSec)*time.Second)
		resolver = profile
		prefs = profile
	} else {
		logger.Warn("PROFILE_URL not set, recipient keys are used as addresses")
		resolver = notify.KeyResolver{}
	}

	dispatcher := notify.NewDispatcher(
		outboxRepo,
		resolver,
		prefs,
		newSender(cfg, logger),
		limiter,
		cfg.DispatchMaxAttempts,
		time.Duration(cfg.DispatchIntervalSec)*time.Second,
		cfg.DispatchBatchLimit,
		logger,
	)
	go dispatcher.Start(ctx)

	checker := health.NewChecker(pool, redisHealth, logger, prometheus.DefaultRegisterer)
	metricsSrv := metrics.NewServer(":"+cfg.MetricsPort, checker)
	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	<-ctx.Done()
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}

	logger.Info("worker shut down")
}

// newSender builds the channel routing: every channel logs locally, email
// goes through resend elsewhere, everything else is an HTTP handoff.
func newSender(cfg *config.Config, logger *slog.Logger) notify.ChannelSender {
	if cfg.Env == "local" {
		return notify.NewLogSender(logger)
	}

	mux := notify.NewSenderMux(notify.NewWebhookSender(time.Duration(cfg.WebhookTimeoutSec) * time.Second))
	mux.Register(domain.ChannelEmail, notify.NewEmailSender(cfg.ResendAPIKey, cfg.ResendFrom))
	return mux
}

func newLogger(env string, level slog.Level) *slog.Logger {
	var inner slog.Handler
	if env == "local" {
		inner = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	} else {
		inner = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}
	return slog.New(ctxlog.NewContextHandler(inner))
}

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"messaging-platform/internal/account"
	"messaging-platform/internal/audit"
	"messaging-platform/internal/auth"
	"messaging-platform/internal/config"
	"messaging-platform/internal/delivery"
	"messaging-platform/internal/dispatch"
	"messaging-platform/internal/health"
	"messaging-platform/internal/httpapi"
	"messaging-platform/internal/message"
	"messaging-platform/internal/ratelimit"
	"messaging-platform/internal/routing"
	"messaging-platform/internal/whatsapp"
	"messaging-platform/pkg/logger"
	"messaging-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	// Storage
	accounts := account.NewPostgresRepo(db)
	healthStore := health.NewRedisStore(rdb, log)
	deliveries := delivery.NewService(delivery.NewPostgresRepo(db), log)
	auditSvc := audit.NewService(audit.NewPostgresRepo(db))

	// Routing core
	limiter := ratelimit.NewRedisLimiter(rdb, ratelimit.Config{
		Points: cfg.RateLimit.Points,
		Window: cfg.RateLimit.Window,
	}, log)
	engine := routing.NewEngine(accounts, limiter, log)

	sender, err := whatsapp.NewCloudAPI(whatsapp.Config{
		BaseURL:     cfg.WhatsApp.BaseURL,
		APIVersion:  cfg.WhatsApp.APIVersion,
		AccessToken: cfg.WhatsApp.AccessToken,
	}, nil, log)
	if err != nil {
		log.Error("whatsapp init failed", "err", err)
		os.Exit(1)
	}

	// Dispatch pipeline: queue -> dispatcher -> outcomes -> feedback + delivery log
	outcomes := make(chan message.Outcome, 256)
	dispatcher := dispatch.NewDispatcher(engine, sender, outcomes, log)
	queue := dispatch.NewQueue(dispatch.Config{
		Workers:     cfg.Queue.Workers,
		MaxAttempts: cfg.Queue.MaxAttempts,
		BackoffBase: cfg.Queue.BackoffBase,
	}, dispatcher, log)
	feedback := dispatch.NewFeedbackProcessor(healthStore, accounts, nil, log)

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	queue.Start(workerCtx)

	outcomesDone := make(chan struct{})
	go func() {
		defer close(outcomesDone)
		// Runs past shutdown until the channel closes, so buffered
		// outcomes still reach storage; hence the fresh context.
		ctx := context.Background()
		for out := range outcomes {
			feedback.Handle(ctx, out)
			deliveries.ApplyOutcome(ctx, out)
		}
	}()

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, cfg, httpapi.Handlers{
		Auth:       authManager,
		Accounts:   accounts,
		Health:     healthStore,
		Queue:      queue,
		Deliveries: deliveries,
		Audit:      auditSvc,
		Log:        log,
	}, httpapi.WebhookHandlers{
		AppSecret:   cfg.WhatsApp.AppSecret,
		VerifyToken: cfg.WhatsApp.HubVerifyToken,
		Deliveries:  deliveries,
		Log:         log,
	}, auth.RequireAccessToken(authManager))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}

	// Drain in-flight jobs, then close the outcome stream so feedback and
	// the delivery log see every resolved send.
	queue.Stop()
	close(outcomes)
	<-outcomesDone
	stopWorkers()

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}

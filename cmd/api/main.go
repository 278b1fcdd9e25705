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

	"dialer-engine/internal/agents"
	"dialer-engine/internal/audit"
	"dialer-engine/internal/auth"
	"dialer-engine/internal/config"
	"dialer-engine/internal/contacts"
	"dialer-engine/internal/dialqueue"
	"dialer-engine/internal/disposition"
	"dialer-engine/internal/gateway"
	"dialer-engine/internal/records"
	"dialer-engine/internal/session"
	"dialer-engine/pkg/logger"
	"dialer-engine/pkg/utils"

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

	// Persistence
	contactRepo := contacts.NewPostgresRepo(db)
	recordStore := records.NewPostgresStore(db)
	auditSvc := audit.NewService(audit.NewPostgresRepo(db))

	// Dial plumbing
	caps := make([]gateway.Capability, 0, len(cfg.Gateway.Capabilities))
	for _, c := range cfg.Gateway.Capabilities {
		caps = append(caps, gateway.Capability(c))
	}
	dialer := gateway.NewHTTPDialer(cfg.Gateway.BaseURL, cfg.Gateway.CallerID, cfg.Gateway.DialTimeout, gateway.NewCapabilities(caps...))
	lockManager := contacts.NewLockManager(contactRepo, nil, auditSvc, cfg.Dialer.LockTTL, cfg.Dialer.SweepInterval, log)
	scheduler := dialqueue.NewScheduler(contactRepo, lockManager, dialqueue.Policy{
		Base:        cfg.Dialer.RetryBackoffBase,
		Cap:         cfg.Dialer.RetryBackoffCap,
		MaxAttempts: cfg.Dialer.MaxAttempts,
	}, log)

	sessionManager := session.NewManager(dialer, lockManager, scheduler, auditSvc, cfg.Dialer.RingTimeout, log)
	lockManager.SetGuard(sessionManager)

	slotLimiter := agents.NewRedisSlotLimiter(rdb, cfg.Dialer.MaxConcurrentCalls, cfg.Dialer.LockTTL)
	agentController := agents.NewController(scheduler, sessionManager, slotLimiter, auditSvc,
		cfg.Dialer.MaxConcurrentCalls, cfg.Dialer.PullMinInterval, cfg.Dialer.PullMaxInterval, log)
	sessionManager.SetNotifier(agentController)
	agentController.Start(rootCtx)

	finalizer := disposition.NewFinalizer(sessionManager, recordStore, disposition.DefaultCatalog(), auditSvc, log)

	go lockManager.RunSweeper(rootCtx)

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, routeDeps{
		authMW:     auth.RequireAccessToken(authManager),
		agents:     agentController,
		sessions:   sessionManager,
		finalizer:  finalizer,
		webhookCfg: cfg.Gateway,
		db:         db,
		dialer:     dialer,
		transfer:   dialer,
	})

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
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sanuda/internal/app/registry"
	"sanuda/internal/app/server"
	"sanuda/internal/app/worker"
	"sanuda/internal/config"
	"sanuda/internal/core/services"
	"sanuda/internal/platform/logger"
	"sanuda/internal/platform/telemetry"
	"sanuda/internal/plugins/postgres"
	redisplugin "sanuda/internal/plugins/redis"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	log := logger.NewLogger(*cfg)

	if cfg.SecretToken == "" {
		log.Error("JWT_SECRET is required")
		os.Exit(1)
	}

	shutdownTelemetry, err := telemetry.InitTelemetry(ctx, *cfg)
	if err != nil {
		log.Error("telemetry init failed", "err", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			log.Error("telemetry shutdown failed", "err", err)
		}
	}()

	db, err := postgres.New(ctx, *cfg.Postgres)
	if err != nil {
		log.Error("postgres connect failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	redisClient, err := redisplugin.New(ctx, *cfg.Redis)
	if err != nil {
		log.Error("redis connect failed", "err", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	txManager := services.NewTxManager(db)
	userRepo := postgres.NewUserRepo(db)
	convRepo := postgres.NewConversationRepo(db)
	msgRepo := postgres.NewMessageRepo(db, txManager)
	cursorRepo := postgres.NewCursorRepo(db)

	hostname, _ := os.Hostname()
	consumer := fmt.Sprintf("%s-%d", hostname, os.Getpid())
	presenceMirror := redisplugin.NewPresenceMirror(redisClient, cfg.Presence.OnlineTTL)
	streamQueue := redisplugin.NewStreamQueue(redisClient, log, consumer)
	notifier := redisplugin.NewStreamNotifier(streamQueue, cfg.Worker.NotifyStream)

	reg := registry.NewRegistry()
	tokenSvc := services.NewTokenService(cfg.SecretToken)
	userSvc := services.NewUserService(log, userRepo)
	cursorSvc := services.NewCursorService(log, cursorRepo, msgRepo)
	roomSvc := services.NewRoomService(log, reg, convRepo, cursorSvc)
	typingSvc := services.NewTypingService(reg)
	receiptSvc := services.NewReceiptService(log, reg, msgRepo, convRepo)
	fanoutSvc := services.NewFanoutService(log, reg, roomSvc, msgRepo, convRepo, notifier)
	presenceTracker := services.NewPresenceTracker(
		log, reg, userRepo, convRepo, msgRepo,
		presenceMirror, receiptSvc, cfg.Presence.DebounceWindow,
	)
	defer presenceTracker.Close()

	managerSvc := services.NewManagerService(
		log, reg, roomSvc, typingSvc, fanoutSvc,
		receiptSvc, cursorSvc, presenceTracker,
	)

	pushClient := worker.NewPushClient(*cfg.Push)
	notifyWorker := worker.NewNotificationWorker(log, streamQueue, presenceMirror, pushClient, cfg.Worker.NotifyGroup)
	if err := notifyWorker.Run(ctx, cfg.Worker.NotifyStream); err != nil {
		log.Error("notification worker start failed", "err", err)
		os.Exit(1)
	}

	srv := server.NewServer(log, cfg.Service.Name, cfg.Service.Addr, userSvc, tokenSvc, managerSvc)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		log.Error("server stopped", "err", err)
	}
}

package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/example/pharmacy-storefront/internal/activity"
	"github.com/example/pharmacy-storefront/internal/api"
	"github.com/example/pharmacy-storefront/internal/auth"
	"github.com/example/pharmacy-storefront/internal/chat"
	"github.com/example/pharmacy-storefront/internal/config"
	"github.com/example/pharmacy-storefront/internal/domain/cart"
	"github.com/example/pharmacy-storefront/internal/domain/checkout"
	"github.com/example/pharmacy-storefront/internal/infrastructure/kafka"
	"github.com/example/pharmacy-storefront/internal/infrastructure/remote"
	"github.com/example/pharmacy-storefront/internal/infrastructure/storage"
	"github.com/example/pharmacy-storefront/internal/logging"
	"github.com/example/pharmacy-storefront/internal/pricing"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := config.FromEnv()

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("[Storefront] %v", err)
	}
	defer logger.Sync()

	logger.Info("starting storefront",
		zap.String("addr", cfg.HTTPAddr),
		zap.String("backend", cfg.BackendURL),
		zap.String("chat", cfg.ChatURL),
		zap.String("storage", cfg.StorageDriver),
		zap.Strings("kafka_brokers", cfg.KafkaBrokers),
	)

	// Local state (session, chat history, chat queue)
	kv, closeStore, err := storage.Open(ctx, storage.Options{
		Driver:      cfg.StorageDriver,
		SQLitePath:  cfg.SQLitePath,
		PostgresURL: cfg.DatabaseURL,
		DynamoTable: cfg.DynamoTable,
	})
	if err != nil {
		logger.Fatal("failed to open storage", zap.Error(err))
	}
	defer closeStore()

	sessionKV := kv
	if cfg.SessionSecret != "" {
		sessionKV = auth.NewSealedKV(kv, cfg.SessionSecret)
	} else {
		logger.Warn("SESSION_SECRET not set, session is stored unsealed")
	}

	// Session
	authAPI := remote.NewAuthClient(remote.NewClient(cfg.BackendURL, cfg.HTTPTimeout, nil, logger))
	manager := auth.NewManager(authAPI, sessionKV, auth.Options{
		Lifetime:      cfg.TokenLifetime,
		RefreshMargin: cfg.TokenRefreshMargin,
		Logger:        logger.Named("auth"),
	})
	defer manager.Close()

	// Activity stream, optional
	var publisher activity.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer producer.Close()
		publisher = producer
	}
	recorder := activity.NewRecorder(publisher, manager, logger.Named("activity"))

	backend := remote.NewClient(cfg.BackendURL, cfg.HTTPTimeout, manager, logger.Named("remote"))

	cartStore := cart.NewStore(remote.NewCartClient(backend), manager, cart.Options{
		UndoWindow: cfg.CartUndoWindow,
		Recorder:   recorder,
		Logger:     logger.Named("cart"),
	})
	calculator := pricing.NewCalculator()
	workflow := checkout.NewWorkflow(remote.NewOrderClient(backend), recorder, logger.Named("checkout"))

	chatClient := chat.NewClient(chat.NewWebSocketDialer(cfg.ChatURL, manager), manager, kv, chat.Options{
		AdminID:     cfg.ChatAdminID,
		ReplayDelay: cfg.ChatReplayDelay,
		Reconnect: chat.ReconnectPolicy{
			MaxAttempts: cfg.ChatReconnectAttempts,
			Delay:       cfg.ChatReconnectDelay,
		},
		Logger: logger.Named("chat"),
	})
	defer chatClient.Close()

	manager.OnLogout(func() {
		cartStore.Discard()
		calculator.RemoveCoupon()
		workflow.Reset()
		chatClient.Reset(context.Background())
	})

	// Hooks are in place first so an expired stored session clears everything.
	manager.Hydrate(ctx)

	if manager.IsAuthenticated() {
		if err := cartStore.Hydrate(ctx); err != nil {
			logger.Warn("failed to load cart for restored session", zap.Error(err))
		}
	}

	handlers := api.NewHandlers(manager, cartStore, calculator, workflow, chatClient, logger.Named("api"))
	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: api.NewRouter(handlers, cfg.WebDir, logger.Named("http")),
	}

	go func() {
		logger.Info("server started", zap.String("addr", cfg.HTTPAddr))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
	}
}

// Package main provides the frame service entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/R3E-Network/frame_layer/internal/config"
	"github.com/R3E-Network/frame_layer/internal/middleware"
	"github.com/R3E-Network/frame_layer/manifest"
	"github.com/R3E-Network/frame_layer/pkg/logger"
	framemarble "github.com/R3E-Network/frame_layer/services/frame/marble"
	"github.com/R3E-Network/frame_layer/services/frame/store"
	"github.com/R3E-Network/frame_layer/services/frame/store/memory"
	"github.com/R3E-Network/frame_layer/services/frame/store/postgres"
	"github.com/R3E-Network/frame_layer/services/frame/store/redis"
	"github.com/R3E-Network/frame_layer/services/frame/wallet"
	"github.com/R3E-Network/frame_layer/services/frame/webhook"
)

const (
	startupTimeout  = 30 * time.Second
	shutdownTimeout = 30 * time.Second
)

func main() {
	envFile := flag.String("env", ".env", "Optional env file loaded before reading the environment")
	issueToken := flag.String("issue-token", "", "Print an operator token for this subject and exit")
	tokenTTL := flag.Duration("token-ttl", 24*time.Hour, "Lifetime of a token printed by -issue-token")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if *issueToken != "" {
		token, err := middleware.IssueToken([]byte(cfg.AdminJWTSecret), *issueToken, *tokenTTL)
		if err != nil {
			log.Fatalf("Failed to issue operator token: %v", err)
		}
		fmt.Println(token)
		return
	}

	appLog := logger.New(logger.Config{
		Component: framemarble.ServiceID,
		Level:     cfg.LogLevel,
		Format:    cfg.LogFormat,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Manifest overrides
	var overrides *manifest.Overrides
	if cfg.ManifestFile != "" {
		overrides, err = manifest.Load(cfg.ManifestFile)
		if err != nil {
			appLog.WithError(err).Fatal("Failed to load manifest overrides")
		}
	}
	provider := manifest.NewProvider(cfg.BaseURL(), overrides)

	startCtx, startCancel := context.WithTimeout(ctx, startupTimeout)
	defer startCancel()

	notifications, closeStore, err := openStore(startCtx, cfg)
	if err != nil {
		appLog.WithError(err).WithField("store", cfg.Store).Fatal("Failed to open notification store")
	}
	defer func() {
		if err := closeStore(); err != nil {
			appLog.WithError(err).Warn("Closing notification store failed")
		}
	}()

	// Optional chain RPC for receipts
	var receipts wallet.ReceiptSource
	if cfg.RPCURL != "" {
		client, err := wallet.DialReceiptSource(startCtx, cfg.RPCURL)
		if err != nil {
			appLog.WithError(err).Warn("Chain RPC unavailable; receipts are read through the host wallet")
		} else {
			defer client.Close()
			receipts = client
		}
	}

	// App key registry
	var keyVerifier webhook.KeyVerifier
	if !cfg.WebhookSkipVerify {
		registry, err := webhook.NewRegistryVerifier(webhook.RegistryConfig{
			URL:    cfg.KeyRegistryURL,
			APIKey: cfg.KeyRegistryAPIKey,
		})
		if err != nil {
			appLog.WithError(err).Fatal("Failed to configure webhook key registry")
		}
		keyVerifier = registry
	}
	if cfg.AdminJWTSecret == "" {
		appLog.Warn("FRAME_ADMIN_JWT_SECRET not set; operator routes are disabled")
	}

	svc, err := framemarble.New(framemarble.Config{
		Manifest:         provider,
		Store:            notifications,
		Logger:           appLog,
		KeyVerifier:      keyVerifier,
		SkipVerify:       cfg.WebhookSkipVerify,
		AdminJWTSecret:   cfg.AdminJWTSecret,
		ReceiptSource:    receipts,
		ReceiptPoll:      cfg.ReceiptPoll,
		WebhookRateLimit: cfg.WebhookRateLimit,
		WebhookRateBurst: cfg.WebhookRateBurst,
		AllowedOrigins:   cfg.AllowedOrigins(),
		SweepSchedule:    cfg.SessionSweepSchedule,
	})
	if err != nil {
		appLog.WithError(err).Fatal("Failed to create service")
	}
	if cfg.WebhookSkipVerify {
		appLog.Warn("Webhook signature verification disabled")
	}

	if err := svc.Start(ctx); err != nil {
		appLog.WithError(err).Fatal("Failed to start service")
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           svc.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		appLog.WithField("port", cfg.Port).WithField("base_url", provider.BaseURL()).Info("Frame service listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.WithError(err).Fatal("Server error")
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	appLog.Info("Shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, shutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		appLog.WithError(err).Warn("Shutdown error")
	}
	if err := svc.Stop(); err != nil {
		appLog.WithError(err).Warn("Service stop error")
	}
}

// openStore opens the configured notification store and returns its closer.
func openStore(ctx context.Context, cfg *config.Config) (store.NotificationStore, func() error, error) {
	switch cfg.Store {
	case config.StoreRedis:
		s, err := redis.Open(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case config.StorePostgres:
		s, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return memory.New(), func() error { return nil }, nil
	}
}

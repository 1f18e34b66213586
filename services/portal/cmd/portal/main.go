package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"teamhub/internal/metrics"
	"teamhub/internal/util"
	"teamhub/pkg/auth"
	"teamhub/pkg/storage"
	"teamhub/pkg/store"
	"teamhub/services/portal/internal/app"
	"teamhub/services/portal/internal/config"
	"teamhub/services/portal/internal/security"
	"teamhub/services/portal/internal/server"
)

func main() {
	if err := run(); err != nil {
		slog.Error("portal exited", "err", err)
		os.Exit(1)
	}
}

// run owns every resource so deferred cleanup completes before main exits.
func run() error {
	cfg, err := config.Load(config.ResolvePath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	tokenTTL, err := config.ParseTokenTTL(cfg.TokenTTL)
	if err != nil {
		return fmt.Errorf("parse token TTL: %w", err)
	}
	leeway, err := config.ParseJWTLeeway(cfg.JWTLeeway)
	if err != nil {
		return fmt.Errorf("parse jwt leeway: %w", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	db, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()

	blobs, err := newObjectStore(cfg)
	if err != nil {
		return fmt.Errorf("init blob storage: %w", err)
	}

	tokens, err := auth.NewTokenService(cfg.JWTSecret, auth.TokenOptions{
		TTL:    tokenTTL,
		Issuer: cfg.JWTIssuer,
		Leeway: leeway,
	})
	if err != nil {
		return fmt.Errorf("init token service: %w", err)
	}

	appCore, err := app.New(app.Config{
		Store:              db,
		Blobs:              blobs,
		Tokens:             tokens,
		AdminCode:          cfg.AdminCode,
		Topics:             cfg.Topics,
		PasswordCost:       cfg.PasswordCost,
		DocumentMaxBytes:   cfg.DocumentMaxBytes,
		DocumentExtensions: cfg.DocumentAllowedExtensions,
	})
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	defer rdb.Close()

	trusted, err := util.NewTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return fmt.Errorf("invalid trustedProxies: %w", err)
	}

	httpServer, err := server.New(server.Config{
		App:                        appCore,
		Redis:                      rdb,
		Metrics:                    metrics.New("teamhub"),
		Alerter:                    security.NewAuditAlerter(rdb, "teamhub:portal:alerts"),
		TrustedProxies:             trusted,
		CORSOrigins:                cfg.CORSOrigins,
		RegisterRateLimitPerMinute: cfg.RegisterRateLimitPerMinute,
		LoginRateLimitPerMinute:    cfg.LoginRateLimitPerMinute,
	})
	if err != nil {
		return fmt.Errorf("init server: %w", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server listening", "addr", addr, "storage", cfg.StorageBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

func newObjectStore(cfg config.FileConfig) (storage.ObjectStore, error) {
	if cfg.StorageBackend == config.StorageFilesystem {
		return storage.NewFileStore(cfg.StorageDir)
	}
	return storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
}

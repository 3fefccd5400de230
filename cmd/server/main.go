package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"minishelf/internal/admintoken"
	"minishelf/internal/app"
	"minishelf/internal/config"
	"minishelf/internal/lookup"
	"minishelf/internal/server"
	"minishelf/internal/store"
	"minishelf/internal/util"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	tokenTTL, err := config.ParseAdminTokenTTL(cfg.AdminTokenTTL)
	if err != nil {
		log.Fatalf("failed to parse admin token TTL: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	appCfg := app.Config{
		DatabaseURL: cfg.DatabaseURL,
		Lookup:      lookup.NewClient(cfg.GoogleBooksBaseURL, cfg.GoogleBooksAPIKey),
	}
	if cfg.UseMemoryStore {
		appCfg.Store = store.NewMemoryStore()
	}
	appCore, err := app.New(appCfg)
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	adminTokens, err := admintoken.New(cfg.AdminTokenSecret, tokenTTL)
	if err != nil {
		log.Fatalf("failed to init admin tokens: %v", err)
	}

	httpServer, err := server.New(server.Config{
		App:                          appCore,
		AdminPasswordHash:            cfg.AdminPasswordHash,
		AdminTokens:                  adminTokens,
		RedisAddr:                    cfg.RedisAddr,
		RedisPassword:                cfg.RedisPassword,
		AdminLoginRateLimitPerMinute: cfg.AdminLoginRateLimitPerMinute,
		ScanConfirmReads:             cfg.ScanConfirmReads,
		TrustedProxyCIDRs:            cfg.TrustedProxyCIDRs,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
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

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		logger.Error("server error", "err", err)
		os.Exit(1)
	}
}

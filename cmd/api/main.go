package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cadence/api/internal/app"
	"cadence/api/internal/archive"
	"cadence/api/internal/assets"
	"cadence/api/internal/config"
	"cadence/api/internal/email"
	"cadence/api/internal/search"
	"cadence/api/internal/session"
	"cadence/api/internal/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	if err := os.MkdirAll(cfg.ArchivesDir, 0o755); err != nil {
		log.Fatalf("failed to create archives dir: %v", err)
	}

	dataStore := store.NewPostgresStore(db)

	opts := app.Options{
		Archive: archive.New(cfg.ArchivesDir),
		Mail: email.NewService(email.Config{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			FromName: cfg.SMTPFromName,
		}),
	}

	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	opts.Search = search.NewService(meiliClient, pgfts)

	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisStore, err := session.NewRedisStore(cfg.RedisURL, cfg.RoleCacheTTL)
		if err != nil {
			log.Printf("redis unavailable, refresh tokens fall back to Postgres: %v", err)
		} else {
			pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			err = redisStore.Ping(pingCtx)
			cancel()
			if err != nil {
				log.Printf("redis unreachable, refresh tokens fall back to Postgres: %v", err)
				redisStore.Close()
			} else {
				log.Printf("using Redis for refresh tokens and the role cache")
				defer redisStore.Close()
				opts.Sessions = redisStore
			}
		}
	}

	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		assetService, err := assets.NewService(ctx, assets.Config{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			log.Printf("object storage unavailable, asset uploads disabled: %v", err)
		} else {
			opts.Assets = assetService
		}
	}

	service := app.New(cfg, dataStore, opts)
	if err := service.Bootstrap(ctx); err != nil {
		log.Printf("WARNING: bootstrap error (will retry on next restart): %v", err)
	}

	if service.SMTPConfigured() {
		go func() {
			ticker := time.NewTicker(24 * time.Hour)
			defer ticker.Stop()
			for range ticker.C {
				if err := service.SendDeadlineReminders(ctx); err != nil {
					log.Printf("deadline reminder sweep: %v", err)
				}
			}
		}()
	}

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Cadence API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

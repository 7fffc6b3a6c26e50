package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/znz-systems/formdrop/internal/blob"
	"github.com/znz-systems/formdrop/internal/config"
	"github.com/znz-systems/formdrop/internal/database"
	"github.com/znz-systems/formdrop/internal/fanout"
	"github.com/znz-systems/formdrop/internal/intake"
	"github.com/znz-systems/formdrop/internal/mail"
	"github.com/znz-systems/formdrop/internal/ratelimit"
	"github.com/znz-systems/formdrop/internal/relay"
	"github.com/znz-systems/formdrop/internal/sheets"
	"github.com/znz-systems/formdrop/internal/ssrf"
	"github.com/znz-systems/formdrop/internal/store/postgres"
	"github.com/znz-systems/formdrop/internal/submission"
	"github.com/znz-systems/formdrop/internal/web"
	"github.com/znz-systems/formdrop/internal/web/handlers"
	"github.com/znz-systems/formdrop/migrations"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Database
	db, err := postgres.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Migrations
	if err := database.RunMigrations(migrations.FS, cfg.DatabaseURL); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Blob storage
	blobs, err := blob.NewFromConfig(ctx, cfg.Blob())
	if err != nil {
		slog.Error("failed to initialise blob storage", "error", err)
		os.Exit(1)
	}

	// Stores
	endpointStore := postgres.NewEndpointStore(db)
	submissionStore := postgres.NewSubmissionStore(db)
	fileUploadStore := postgres.NewFileUploadStore(db)
	subscriptionStore := postgres.NewSubscriptionStore(db)
	deliveryLogStore := postgres.NewDeliveryLogStore(db)
	sheetsConnStore := postgres.NewSheetsConnectionStore(db)

	// Outbound HTTP for webhooks, Zapier, the relay and Sheets
	outbound := ssrf.NewClient(ssrf.Options{
		Timeout:      cfg.OutboundTimeout,
		AllowPrivate: cfg.OutboundAllowPrivate,
	})

	deps := fanout.Deps{
		Subscriptions: subscriptionStore,
		Logs:          deliveryLogStore,
		Submissions:   submissionStore,
		HTTP:          outbound,
		Concurrency:   cfg.FanoutConcurrency,
		DefaultFrom:   cfg.SMTPFrom,
	}
	if cfg.RelayEnabled() {
		deps.Relay = relay.NewClient(cfg.RelayAPIURL, cfg.RelayAuthToken, outbound)
	} else {
		slog.Warn("RELAY_AUTH_TOKEN not set, relay deliveries will be recorded as failed")
	}
	if cfg.SMTPEnabled() {
		smtpClient := mail.NewSMTPClient(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom)
		deps.Sender = smtpClient
		deps.Notifier = mail.NewService(smtpClient)
	} else {
		slog.Warn("SMTP_HOST not set, email notifications and autoresponses are disabled")
	}
	if cfg.SheetsEnabled() {
		deps.Sheets = sheets.NewWriter(sheetsConnStore, cfg.GoogleClientID, cfg.GoogleClientSecret, outbound)
	}

	persister := submission.NewService(submissionStore, fileUploadStore, blobs)
	dispatcher := fanout.NewDispatcher(deps)

	// Rate limiter
	var limiter ratelimit.Allower
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			slog.Warn("redis unreachable at startup, rate limiting fails open until it recovers", "error", err)
		}
		limiter = ratelimit.NewRedisLimiter(rdb, cfg.RateLimitRPS, cfg.RateLimitBurst)
	} else {
		memLimiter := ratelimit.NewLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
		defer memLimiter.Close()
		limiter = memLimiter
	}

	// Handlers
	submitHandler := handlers.NewSubmitHandler(endpointStore, persister, dispatcher, blobs, intake.DefaultLimits())
	var filesHandler *handlers.FilesHandler
	if _, ok := blobs.(*blob.FilesystemStore); ok {
		filesHandler = handlers.NewFilesHandler(blobs)
	}

	// Router
	router := web.NewRouter(web.RouterDeps{
		SubmitHandler: submitHandler,
		FilesHandler:  filesHandler,
		HealthHandler: handlers.NewHealthHandler(db),
		Limiter:       limiter,
	})

	// Server
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		// Fan-out runs before the response is written.
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("FormDrop starting", "addr", addr, "blob_backend", cfg.BlobBackend)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}

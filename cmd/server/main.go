package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"securesend/internal/server/accesslog"
	"securesend/internal/server/api"
	"securesend/internal/server/config"
	"securesend/internal/server/crypto"
	"securesend/internal/server/database"
	"securesend/internal/server/mail"
	"securesend/internal/server/service"
	"securesend/internal/server/session"
	"securesend/internal/server/storage"
)

func main() {
	// Structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load config
	cfg := config.Load()
	slog.Info("configuration loaded",
		"port", cfg.Port,
		"storage_path", cfg.StoragePath,
		"otp_ttl", cfg.OTPTTL,
		"session_ttl", cfg.SessionTTL,
	)

	// Connect to database
	ctx := context.Background()
	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Run migrations
	if err := db.RunMigrations(ctx); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("database migrations complete")

	// Initialize storage
	store := storage.NewFileSystemStore(cfg.StoragePath)
	if err := store.EnsureDir(); err != nil {
		slog.Error("failed to initialize storage", "error", err)
		os.Exit(1)
	}
	slog.Info("file storage initialized", "path", cfg.StoragePath)

	// At-rest encryption and session sealing
	vault, err := crypto.NewVault(cfg.FileEncryptionKey)
	if err != nil {
		slog.Error("failed to initialize file encryption", "error", err)
		os.Exit(1)
	}
	sessions, err := session.NewCodec(cfg.SessionKey, cfg.SessionTTL)
	if err != nil {
		slog.Error("failed to initialize session codec", "error", err)
		os.Exit(1)
	}

	// Outbound mail
	var mailer mail.Mailer = mail.NewSMTPMailer(cfg.SMTPAddr, cfg.MailFrom)
	if cfg.SMTPAddr == "" {
		mailer = mail.NopMailer{}
		slog.Warn("no SMTP relay configured, mail delivery disabled")
	}

	// Wire up the engine
	repo := database.NewRepository(db)
	otp := service.NewOTPEngine(repo, cfg.OTPTTL)
	gate := service.NewGuestGate(repo, otp, mailer)
	uploads := service.NewUploadService(repo, store, vault)
	downloads := service.NewDownloadService(repo, store, vault)
	life := service.NewLifecycle(repo, store)
	users := service.NewUserService(repo, nil)
	recorder := accesslog.NewRecorder(repo)

	// Prune dead OTP challenges in the background
	janitorCtx, janitorCancel := context.WithCancel(context.Background())
	janitor := service.NewJanitor(repo, cfg.JanitorInterval, 24*time.Hour)
	janitor.Start(janitorCtx)

	// Setup HTTP router
	handler := api.NewHandler(gate, uploads, downloads, life, users, sessions, db)
	e := api.SetupRouter(handler, recorder, cfg)

	// Start server in a goroutine
	go func() {
		addr := fmt.Sprintf(":%s", cfg.Port)
		slog.Info("starting server", "addr", addr, "base_url", cfg.BaseURL)
		if err := e.Start(addr); err != nil {
			slog.Info("server stopped", "reason", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutting down", "signal", sig)

	// Stop accepting new requests, finish in-flight with 30s timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	// Stop the janitor
	janitorCancel()
	janitor.Wait()

	slog.Info("server exited cleanly")
}

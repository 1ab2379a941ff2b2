package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"grammardesk/internal/app"
	"grammardesk/internal/authpw"
	"grammardesk/internal/config"
	"grammardesk/internal/reconcile"
	"grammardesk/internal/rowstore"
	"grammardesk/internal/session"
	"grammardesk/internal/snapshot"
	"grammardesk/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	source, err := openSource(ctx, cfg)
	if err != nil {
		return err
	}
	reconciler, err := reconcile.New(reconcile.Options{StageMax: cfg.StageMax, Location: loc})
	if err != nil {
		return err
	}

	deps := app.Deps{
		Source:     source,
		Reconciler: reconciler,
		Logger:     logger,
		Secret:     []byte(cfg.Secrets.Cookie.Key),
		SessionTTL: cfg.SessionTTL,
		Location:   loc,
	}

	var accounts authpw.AccountStore
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		db, err := store.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("database connection failed: %w", err)
		}
		defer db.Close()
		deps.Journal = db
		deps.Sessions = db
		accounts = db
		logger.Info("save journal enabled")
	}

	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisStore, err := session.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}
		defer redisStore.Close()
		deps.Sessions = redisStore
		logger.Info("using redis for sessions")
	} else if deps.Sessions == nil {
		logger.Warn("no redis or database configured; sessions are kept in memory")
	}

	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		archiver, err := snapshot.NewMinioArchiver(ctx, snapshot.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			return fmt.Errorf("minio connection failed: %w", err)
		}
		deps.Archiver = archiver
		logger.Info("row snapshots enabled", zap.String("bucket", cfg.MinioBucket))
	}

	deps.Auth = authpw.NewService(cfg.Secrets.Credentials.Usernames, cfg.Secrets.Preauthorized.Emails, accounts)
	service := app.New(deps)

	httpServer := app.NewHTTPServer(service, app.ServerOptions{
		CORSOrigin:   cfg.CORSOrigin,
		CookieName:   cfg.CookieName(),
		SecureCookie: cfg.CORSOrigin != "*",
		Logger:       logger,
	})
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("grammardesk listening",
			zap.String("addr", cfg.Addr),
			zap.String("backend", cfg.Backend),
			zap.Strings("areas", source.Areas()),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
	return nil
}

// loadConfig reads and validates configuration, logging any warnings.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	warnings, err := cfg.Validate()
	for _, warning := range warnings {
		logger.Warn("config", zap.String("warning", warning))
	}
	if err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func openSource(ctx context.Context, cfg config.Config) (rowstore.Source, error) {
	areas, err := cfg.Areas()
	if err != nil {
		return nil, err
	}
	switch cfg.Backend {
	case config.BackendWorkbook:
		return rowstore.NewWorkbookSource(cfg.Worksheet, areas), nil
	default:
		source, err := rowstore.NewSheetsSource(ctx, []byte(cfg.Secrets.GoogleServiceAccount.CredsJSON), cfg.Worksheet, areas)
		if err != nil {
			return nil, fmt.Errorf("google sheets client: %w", err)
		}
		return source, nil
	}
}

// Archivist
//
// A chat-driven file manager: users browse, upload and delete files in
// a folder tree over Telegram, gated by a role-based access layer.
// Ships with Prometheus metrics, structured logging (zap), signed
// share links and an SSE feed of tree changes.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/archivist/archivist/internal/access"
	"github.com/archivist/archivist/internal/bot"
	"github.com/archivist/archivist/internal/chat/telegram"
	"github.com/archivist/archivist/internal/config"
	"github.com/archivist/archivist/internal/events"
	"github.com/archivist/archivist/internal/fileops"
	"github.com/archivist/archivist/internal/logging"
	"github.com/archivist/archivist/internal/metadata/postgres"
	"github.com/archivist/archivist/internal/metrics"
	"github.com/archivist/archivist/internal/paths"
	"github.com/archivist/archivist/internal/session"
	"github.com/archivist/archivist/internal/share"
	"github.com/archivist/archivist/internal/storage/disk"
	"github.com/archivist/archivist/internal/web"
)

func main() {
	// .env is a development convenience; absence is not an error.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		// Can't use structured logging yet
		panic("configuration error: " + err.Error())
	}

	if err := logging.Init(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	}); err != nil {
		panic("logging init error: " + err.Error())
	}
	defer logging.Sync()

	logging.Info("Archivist starting...",
		zap.String("listen", cfg.ListenAddr),
		zap.String("metrics", cfg.MetricsAddr),
		zap.String("files_root", cfg.FilesRoot))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logging.Info("connecting to PostgreSQL...")
	metaStore, err := postgres.New(cfg.DatabaseURL)
	if err != nil {
		logging.Fatal("database connection failed", zap.Error(err))
	}
	defer metaStore.Close()

	if err := metaStore.EnsureSchema(ctx); err != nil {
		logging.Fatal("schema bootstrap failed", zap.Error(err))
	}

	resolver, err := paths.NewResolver(cfg.FilesRoot)
	if err != nil {
		logging.Fatal("files root resolution failed", zap.Error(err))
	}
	diskStore, err := disk.New(resolver.Root())
	if err != nil {
		logging.Fatal("files root init failed", zap.Error(err))
	}

	broadcaster := events.NewBroadcaster()
	mutator := fileops.New(resolver, metaStore, diskStore, broadcaster)
	acl := access.NewController(metaStore, cfg.SuperAdminID)
	sessions := session.NewStore()
	signer := share.NewSigner(cfg.ShareSecret, cfg.PublicBaseURL, cfg.ShareTTL)
	if !signer.Enabled() {
		logging.Info("share links disabled (no SHARE_SECRET)")
	}

	transport := telegram.New(cfg.TelegramToken, cfg.PollTimeout)
	handler := bot.New(transport, metaStore, acl, sessions, resolver, diskStore, mutator, signer)

	// Metrics server
	metricsServer := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: metrics.Handler(),
	}
	go func() {
		logging.Info("metrics server listening", zap.String("addr", cfg.MetricsAddr))
		if err := metricsServer.ListenAndServe(); err != http.ErrServerClosed {
			logging.Error("metrics server error", zap.Error(err))
		}
	}()

	// Liveness, share downloads and SSE
	webServer := web.NewServer(resolver, metaStore, diskStore, signer, broadcaster)
	go func() {
		if err := webServer.Start(cfg.ListenAddr); err != nil {
			logging.Error("http server error", zap.Error(err))
		}
	}()

	// Periodic connection-pool metrics
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				metaStore.UpdateConnectionMetrics()
			}
		}
	}()

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logging.Info("shutting down...")
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := webServer.Shutdown(shutdownCtx); err != nil {
			logging.Error("http shutdown error", zap.Error(err))
		}
		metricsServer.Close()
	}()

	logging.Info("polling for updates")
	if err := transport.Poll(ctx, handler); err != nil && !errors.Is(err, context.Canceled) {
		logging.Fatal("update polling failed", zap.Error(err))
	}
	logging.Info("stopped")
}

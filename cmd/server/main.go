// EduCrate NoteHub Server
//
// Features:
// - Folder, file and search listings backed by Google Drive or S3
// - PDF proxying with redirect to the provider for large files
// - Per-client rate limiting
// - Prometheus metrics & structured logging (zap)
// - Embedded single-page web app
package main

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/MabelMoncy/EduCrateNoteHub/internal/api"
	"github.com/MabelMoncy/EduCrateNoteHub/internal/config"
	"github.com/MabelMoncy/EduCrateNoteHub/internal/logging"
	"github.com/MabelMoncy/EduCrateNoteHub/internal/metrics"
	"github.com/MabelMoncy/EduCrateNoteHub/internal/provider/factory"
	"github.com/MabelMoncy/EduCrateNoteHub/internal/ratelimit"
	"github.com/MabelMoncy/EduCrateNoteHub/internal/serving"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Can't use structured logging yet
		panic(err.Error())
	}

	// Initialize structured logging
	if err := logging.Init(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	}); err != nil {
		panic("logging init error: " + err.Error())
	}
	defer logging.Sync()

	logging.Info("NoteHub server starting...",
		zap.String("listen", cfg.ListenAddr),
		zap.String("metrics", cfg.MetricsAddr),
		zap.String("provider", cfg.Provider))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize storage provider
	client, err := factory.New(ctx, cfg)
	if err != nil {
		logging.Fatal("provider init failed", zap.Error(err))
	}
	defer client.Close()
	logging.Info("provider initialized", zap.String("type", client.Type()))

	engine := serving.New(client, serving.Config{
		Threshold:   cfg.ProxyThreshold,
		SearchLimit: cfg.SearchLimit,
	})
	logging.Info("serving engine initialized",
		zap.Int64("proxy_threshold", engine.Threshold()),
		zap.String("proxy_threshold_human", serving.FormatSize(engine.Threshold())))

	limiter := ratelimit.New(cfg.RateLimitStrategy, cfg.RateLimitRequests, cfg.RateLimitWindow)
	logging.Info("rate limiter initialized",
		zap.String("strategy", cfg.RateLimitStrategy),
		zap.Int("requests", cfg.RateLimitRequests),
		zap.Duration("window", cfg.RateLimitWindow))

	srv := api.NewServer(engine, limiter, api.Options{
		ProviderType:      client.Type(),
		FolderCacheMaxAge: cfg.FolderCacheMaxAge,
		AllowedOrigins:    cfg.AllowedOrigins,
		FrameSources:      factory.FrameSources(cfg),
		WebappDir:         cfg.WebappDir,
	})

	// Start metrics server
	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           metrics.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logging.Info("metrics server listening", zap.String("addr", cfg.MetricsAddr))
			if err := metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				logging.Error("metrics server error", zap.Error(err))
			}
		}()
	}

	// Start HTTP(S) server
	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	if cfg.TLSEnabled() {
		httpServer.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS13,
		}
	}

	// Start periodic cleanup of rate limiter state
	go func() {
		ticker := time.NewTicker(cfg.RateLimitWindow)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				limiter.Cleanup(cfg.RateLimitWindow)
			}
		}
	}()

	// Graceful shutdown
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		logging.Info("shutting down...")
		shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
		defer done()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logging.Warn("http shutdown", zap.Error(err))
		}
		if metricsServer != nil {
			metricsServer.Close()
		}
	}()

	if cfg.TLSEnabled() {
		logging.Info("server listening (TLS 1.3)",
			zap.String("addr", cfg.ListenAddr),
			zap.String("cert", cfg.TLSCertFile))
		err = httpServer.ListenAndServeTLS(cfg.TLSCertFile, cfg.TLSKeyFile)
	} else {
		logging.Info("server listening (HTTP)", zap.String("addr", cfg.ListenAddr))
		err = httpServer.ListenAndServe()
	}
	if !errors.Is(err, http.ErrServerClosed) {
		logging.Fatal("server error", zap.Error(err))
	}

	// ListenAndServe returns as soon as Shutdown starts; wait for in-flight
	// streams to drain.
	<-stopped
}

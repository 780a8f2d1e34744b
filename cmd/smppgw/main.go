package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/teleforge/smppgw/internal/auth"
	"github.com/teleforge/smppgw/internal/cdr"
	"github.com/teleforge/smppgw/internal/config"
	"github.com/teleforge/smppgw/internal/egress"
	"github.com/teleforge/smppgw/internal/httpserver"
	"github.com/teleforge/smppgw/internal/logging"
	"github.com/teleforge/smppgw/internal/metrics"
	"github.com/teleforge/smppgw/internal/notification"
	"github.com/teleforge/smppgw/internal/peer"
	"github.com/teleforge/smppgw/internal/smppserver"
)

func main() {
	appCtx, rootCancel := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer rootCancel()

	// --- Configuration ---
	cfg, err := config.Load()
	if err != nil {
		// Use standard log before slog is configured
		log.Printf("Failed to load configuration: %v", err)
		os.Exit(1)
	}

	// --- Logging ---
	logging.Setup(cfg.Logging)
	slog.Info("Logging initialized", slog.String("level", cfg.Logging.LogLevel))

	// --- CDR sink (optional) ---
	var recorder cdr.Recorder = cdr.Nop{}
	var pgRecorder *cdr.PGRecorder
	if cfg.Database.URL != "" {
		pgRecorder, err = cdr.NewPGRecorder(appCtx, cfg.Database.URL)
		if err != nil {
			slog.Error("Failed to initialize CDR recorder", slog.Any("error", err))
			os.Exit(1)
		}
		recorder = pgRecorder
		defer pgRecorder.Close()
		slog.Info("CDR recorder enabled")
	}

	// --- Core services ---
	notifier := notification.NewLogNotifier()
	forwarder := cdr.NewRecordingForwarder(
		egress.NewForwarder(egress.Config{URL: cfg.HTTPServer.KamailioURL}),
		recorder,
	)

	pool := peer.NewPool(cfg.SMPPPeers, forwarder, notifier, uint32(cfg.MaxPDUSize))
	router := peer.NewRouter(pool)
	metrics.Register(pool)

	credStore := auth.NewStore(cfg.SMPPServer.Auth)
	smppSrv := smppserver.NewServer(cfg.SMPPServer, credStore, forwarder, uint32(cfg.MaxPDUSize))
	httpSrv := httpserver.NewServer(cfg.HTTPServer, pool, router, recorder)

	// --- Start components ---
	var wg sync.WaitGroup
	slog.Info("Starting gateway components...")

	pool.Start(appCtx)

	if pgRecorder != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pgRecorder.Run(appCtx)
			slog.Info("CDR recorder stopped.")
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := smppSrv.ListenAndServe(); err != nil {
			slog.Error("SMPP server failed", slog.Any("error", err))
			rootCancel()
		}
		slog.Info("SMPP server stopped.")
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server failed", slog.Any("error", err))
			rootCancel()
		}
		slog.Info("HTTP server stopped.")
	}()

	// --- Wait for shutdown signal ---
	<-appCtx.Done()
	slog.Info("Shutdown signal received, initiating graceful shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer shutdownCancel()

	var shutdownWg sync.WaitGroup
	shutdownWg.Add(1)
	go func() {
		defer shutdownWg.Done()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("Error during HTTP server shutdown", slog.Any("error", err))
		}
	}()
	shutdownWg.Add(1)
	go func() {
		defer shutdownWg.Done()
		if err := smppSrv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("Error during SMPP server shutdown", slog.Any("error", err))
		}
	}()
	shutdownWg.Wait()

	wg.Wait()
	slog.Info("Gateway gracefully stopped.")
}

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/skypro1111/sos-alert-service/internal/alert"
	"github.com/skypro1111/sos-alert-service/internal/capture"
	"github.com/skypro1111/sos-alert-service/internal/config"
	"github.com/skypro1111/sos-alert-service/internal/location"
	"github.com/skypro1111/sos-alert-service/internal/reconcile"
	"github.com/skypro1111/sos-alert-service/internal/server"
)

func newServeCmd(configPath *string) *cobra.Command {
	var offline bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the alert daemon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), *configPath, offline)
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "Treat the network as unreachable; alerts are queued and sent by native SMS")

	return cmd
}

func runServe(parent context.Context, configPath string, offline bool) error {
	if parent == nil {
		parent = context.Background()
	}

	cfg, logger, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return err
	}

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", version),
		slog.String("config_path", configPath),
	)

	logger.Info("Configuration loaded",
		slog.Float64("countdown", cfg.Countdown.Duration),
		slog.Float64("max_recording", cfg.Recording.MaxDuration),
		slog.Float64("silence_timeout", cfg.Recording.SilenceTimeout),
		slog.String("queue_path", cfg.Queue.Path),
		slog.String("analysis_endpoint", cfg.Analysis.Endpoint),
		slog.String("records_url", cfg.Records.BaseURL),
		slog.String("log_level", cfg.Logging.Level),
	)

	a, err := buildApp(cfg, logger, offline)
	if err != nil {
		logger.Error("Failed to initialize service", slog.String("error", err.Error()))
		return err
	}
	defer a.Close()

	mic, err := capture.NewPCMMicrophone(cfg.UDP.SampleRate, cfg.Recording.SilenceThreshold, logger)
	if err != nil {
		logger.Error("Failed to create microphone", slog.String("error", err.Error()))
		return err
	}
	engine := capture.NewEngine(mic, a.clock, logger, a.metrics)

	locations := location.NewLastKnown(a.clock, cfg.Location.GetMaxAgeDuration(), fallbackLocation(cfg.Location))

	machine, err := alert.NewMachine(alert.Config{
		Countdown: cfg.Countdown.GetCountdownDuration(),
		Recording: recordingConfig(cfg.Recording),
		QueueSize: cfg.Countdown.EventQueueSize,
	}, a.coordinator, engine, locations, a.clock, logger, a.metrics)
	if err != nil {
		logger.Error("Failed to create alert machine", slog.String("error", err.Error()))
		return err
	}

	reconciler := reconcile.New(a.store, a.coordinator, a.clock, reconcile.Config{
		RecordTimeout: cfg.Queue.GetSyncRecordTimeout(),
		RetryInterval: cfg.Queue.GetRetryInterval(),
	}, logger, a.metrics)
	reconciler.SetExclude(machine.Busy)

	var udpServer *server.UDPServer
	if cfg.UDP.Enabled {
		udpServer = server.NewUDPServer(&cfg.UDP, logger, machine, mic, locations, a.metrics)
	}

	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		stats := map[string]func() any{
			"analysis":   func() any { return a.analysis.GetStats() },
			"microphone": func() any { return mic.GetStats() },
		}
		if a.native != nil {
			stats["native_sms"] = func() any { return map[string]bool{"available": a.native.Available()} }
		}
		httpServer = server.NewHTTPServer(cfg.HTTP, logger, cfg, server.HTTPDeps{
			Machine:      machine,
			Locations:    locations,
			Queue:        a.store,
			Sync:         reconciler,
			Connectivity: a.connectivity,
			UDP:          udpServer,
			Stats:        stats,
			Gatherer:     a.registry,
		}, a.metrics, version)
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return machine.Run(gctx) })
	g.Go(func() error { return reconciler.Watch(gctx, a.connectivity) })
	if a.prober != nil {
		g.Go(func() error { return a.prober.Run(gctx) })
	}
	g.Go(func() error { return purgeLoop(gctx, a, cfg.Queue.GetRetention()) })

	if udpServer != nil {
		if err := udpServer.Start(); err != nil {
			logger.Error("Failed to start UDP server", slog.String("error", err.Error()))
			stop()
			g.Wait()
			return err
		}
	}

	if httpServer != nil {
		if err := httpServer.Start(); err != nil {
			logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
			stop()
			g.Wait()
			return err
		}
	}

	logger.Info("Service started successfully, waiting for signals...",
		slog.Bool("udp", udpServer != nil),
		slog.Bool("http", httpServer != nil),
	)

	<-gctx.Done()
	logger.Info("Starting graceful shutdown...")

	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		}
	}

	if udpServer != nil {
		if err := udpServer.Stop(); err != nil {
			logger.Error("Error stopping UDP server", slog.String("error", err.Error()))
		}
	}

	if err := g.Wait(); err != nil {
		logger.Error("Background task failed", slog.String("error", err.Error()))
	}

	if pending, err := a.store.CountPending(context.Background()); err == nil {
		logger.Info("Service stopped", slog.Int("pending_alerts", pending))
	}

	return nil
}

// purgeLoop removes synced records older than retention every hour
func purgeLoop(ctx context.Context, a *app, retention time.Duration) error {
	purge := func() {
		removed, err := a.store.PurgeSynced(ctx, a.clock.Now().Add(-retention))
		if err != nil {
			a.logger.Error("Failed to purge synced alerts", slog.String("error", err.Error()))
			return
		}
		if removed > 0 {
			a.logger.Info("Purged synced alerts", slog.Int64("removed", removed))
		}
	}

	purge()
	ticker := a.clock.Every(time.Hour, func() {
		if ctx.Err() == nil {
			purge()
		}
	})
	defer ticker.Stop()

	<-ctx.Done()
	return nil
}

func recordingConfig(cfg config.RecordingConfig) capture.Config {
	return capture.Config{
		MaxDuration:      cfg.GetMaxDuration(),
		SilenceThreshold: cfg.SilenceThreshold,
		SilenceTimeout:   cfg.GetSilenceTimeout(),
		Grace:            cfg.GetGrace(),
		ChunkInterval:    cfg.GetChunkInterval(),
		SampleInterval:   cfg.GetSampleInterval(),
		Options: capture.Options{
			EchoCancellation: cfg.EchoCancellation,
			NoiseSuppression: cfg.NoiseSuppression,
			AutoGainControl:  cfg.AutoGainControl,
		},
	}
}

func fallbackLocation(cfg config.LocationConfig) *location.Location {
	if cfg.Fallback == nil {
		return nil
	}
	return &location.Location{
		Latitude:  cfg.Fallback.Latitude,
		Longitude: cfg.Fallback.Longitude,
		Accuracy:  cfg.Fallback.Accuracy,
	}
}

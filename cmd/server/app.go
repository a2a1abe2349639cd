package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/skypro1111/sos-alert-service/internal/analysis"
	"github.com/skypro1111/sos-alert-service/internal/clock"
	"github.com/skypro1111/sos-alert-service/internal/config"
	"github.com/skypro1111/sos-alert-service/internal/connectivity"
	"github.com/skypro1111/sos-alert-service/internal/dispatch"
	"github.com/skypro1111/sos-alert-service/internal/geocode"
	"github.com/skypro1111/sos-alert-service/internal/metrics"
	"github.com/skypro1111/sos-alert-service/internal/nativesms"
	"github.com/skypro1111/sos-alert-service/internal/notify"
	"github.com/skypro1111/sos-alert-service/internal/queue"
	"github.com/skypro1111/sos-alert-service/internal/records"
)

// app holds the components shared by serve and the maintenance commands
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	clock    clock.Clock
	registry *prometheus.Registry
	metrics  *metrics.Metrics

	store        *queue.Store
	connectivity connectivity.Monitor
	prober       *connectivity.Prober
	analysis     *analysis.Client
	native       *nativesms.Sender
	geocoder     *geocode.Client
	coordinator  *dispatch.Coordinator
}

// loadConfig reads the configuration and builds the logger
func loadConfig(path string) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	return cfg, initLogger(cfg.Logging), nil
}

// openStore opens the offline queue, creating its directory
func openStore(cfg *config.Config, clk clock.Clock) (*queue.Store, error) {
	if dir := filepath.Dir(cfg.Queue.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create queue directory: %w", err)
		}
	}
	return queue.Open(cfg.Queue.Path, clk)
}

// buildApp wires the dispatch pipeline. forceOffline overrides the configured
// connectivity mode
func buildApp(cfg *config.Config, logger *slog.Logger, forceOffline bool) (*app, error) {
	a := &app{
		cfg:      cfg,
		logger:   logger,
		clock:    clock.New(),
		registry: prometheus.NewRegistry(),
	}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics = metrics.NewMetrics(a.registry)

	store, err := openStore(cfg, a.clock)
	if err != nil {
		return nil, fmt.Errorf("failed to open offline queue: %w", err)
	}
	a.store = store

	mode := cfg.Connectivity.Mode
	if forceOffline {
		mode = "offline"
	}
	switch mode {
	case "probe":
		a.prober, err = connectivity.NewProber(connectivity.ProberConfig{
			URL:              cfg.Connectivity.ProbeURL,
			Interval:         cfg.Connectivity.GetIntervalDuration(),
			Timeout:          cfg.Connectivity.GetTimeoutDuration(),
			FailureThreshold: cfg.Connectivity.FailureThreshold,
		}, a.clock, logger, a.metrics)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to create connectivity prober: %w", err)
		}
		a.connectivity = a.prober
	default:
		a.connectivity = connectivity.NewManual(mode == "online", a.metrics)
	}

	a.analysis, err = analysis.NewClient(analysis.Config{
		Endpoint:      cfg.Analysis.Endpoint,
		APIKey:        cfg.Analysis.APIKey,
		Timeout:       cfg.Analysis.GetTimeoutDuration(),
		MaxRetries:    cfg.Analysis.MaxRetries,
		MaxConcurrent: cfg.Analysis.MaxConcurrent,
		Backoff:       cfg.Analysis.GetBackoffDuration(),
		MaxBackoff:    cfg.Analysis.GetMaxBackoffDuration(),
		ServiceName:   serviceName,
		Version:       version,
	}, logger, a.metrics)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create analysis client: %w", err)
	}

	notifier, err := notify.New(notify.Config{
		Provider:         cfg.Notify.Provider,
		Timeout:          cfg.Notify.GetTimeoutDuration(),
		GatewayURL:       cfg.Notify.GatewayURL,
		APIKey:           cfg.Notify.APIKey,
		TwilioBaseURL:    cfg.Notify.Twilio.BaseURL,
		TwilioAccountSID: cfg.Notify.Twilio.AccountSID,
		TwilioAuthToken:  cfg.Notify.Twilio.AuthToken,
		TwilioFrom:       cfg.Notify.Twilio.From,
	}, logger, a.metrics)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create notifier: %w", err)
	}

	recordStore, err := records.NewClient(records.Config{
		BaseURL: cfg.Records.BaseURL,
		APIKey:  cfg.Records.APIKey,
		Timeout: cfg.Records.GetTimeoutDuration(),
	}, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create record store client: %w", err)
	}

	deps := dispatch.Deps{
		Records:      recordStore,
		Queue:        store,
		Analyzer:     a.analysis,
		Notifier:     notifier,
		Contacts:     contactsFrom(cfg.Contacts),
		Connectivity: a.connectivity,
		Clock:        a.clock,
		Logger:       logger,
		Metrics:      a.metrics,
	}

	if cfg.Geocode.Enabled {
		a.geocoder = geocode.NewClient(geocode.Config{
			BaseURL:   cfg.Geocode.BaseURL,
			UserAgent: cfg.Geocode.UserAgent,
			Language:  cfg.Geocode.Language,
			Timeout:   cfg.Geocode.GetTimeoutDuration(),
			CacheSize: cfg.Geocode.CacheSize,
			CacheTTL:  cfg.Geocode.GetCacheTTLDuration(),
		}, a.clock, logger, a.metrics)
		deps.Geocoder = a.geocoder
	}

	if cfg.NativeSMS.Enabled {
		a.native = nativesms.NewSender(nativesms.Config{
			Command: cfg.NativeSMS.Command,
			Args:    cfg.NativeSMS.Args,
			Timeout: cfg.NativeSMS.GetTimeoutDuration(),
		}, logger)
		deps.Native = a.native
		deps.Capabilities.NativeSMS = a.native.Probe()
	}

	a.coordinator, err = dispatch.NewCoordinator(cfg.Service.UserName, deps)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create dispatch coordinator: %w", err)
	}

	if len(cfg.Contacts) == 0 {
		logger.Warn("No emergency contacts configured, alerts will only be recorded")
	}

	logger.Info("Dispatch pipeline initialized",
		slog.String("connectivity_mode", mode),
		slog.String("notify_provider", cfg.Notify.Provider),
		slog.Bool("native_sms", deps.Capabilities.NativeSMS),
		slog.Bool("geocode", cfg.Geocode.Enabled),
		slog.Int("contacts", len(cfg.Contacts)),
	)

	return a, nil
}

// refreshConnectivity checks reachability once when probing
func (a *app) refreshConnectivity(ctx context.Context) bool {
	if a.prober != nil {
		return a.prober.Check(ctx)
	}
	return a.connectivity.Online()
}

// Close releases the queue and the analysis client
func (a *app) Close() {
	if a.analysis != nil {
		if err := a.analysis.Close(); err != nil {
			a.logger.Warn("Error closing analysis client", slog.String("error", err.Error()))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("Error closing offline queue", slog.String("error", err.Error()))
		}
	}
}

func contactsFrom(cfg []config.ContactConfig) dispatch.StaticContacts {
	contacts := make(dispatch.StaticContacts, 0, len(cfg))
	for _, c := range cfg {
		contacts = append(contacts, notify.Contact{Name: c.Name, Phone: c.Phone})
	}
	return contacts
}

package connectivity

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/skypro1111/sos-alert-service/internal/clock"
	"github.com/skypro1111/sos-alert-service/internal/metrics"
)

// ProberConfig configures the reachability probe
type ProberConfig struct {
	URL      string
	Interval time.Duration
	Timeout  time.Duration
	// FailureThreshold consecutive failed probes are needed to go offline
	FailureThreshold int
}

// Prober polls a URL and tracks reachability
type Prober struct {
	*state
	config     ProberConfig
	httpClient *http.Client
	clk        clock.Clock
	logger     *slog.Logger

	failures int
}

// NewProber creates a prober. It starts offline until the first probe
// succeeds
func NewProber(cfg ProberConfig, clk clock.Clock, logger *slog.Logger, m *metrics.Metrics) (*Prober, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("probe url cannot be empty")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 1
	}
	return &Prober{
		state:      newState(false, m),
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		clk:        clk,
		logger:     logger,
	}, nil
}

// Check runs one probe and updates the state
func (p *Prober) Check(ctx context.Context) bool {
	err := p.probe(ctx)

	p.mu.Lock()
	if err == nil {
		p.failures = 0
	} else {
		p.failures++
	}
	failures := p.failures
	p.mu.Unlock()

	switch {
	case err == nil:
		if p.set(true) {
			p.logger.Info("Connectivity restored", slog.String("url", p.config.URL))
		}
	case failures >= p.config.FailureThreshold:
		if p.set(false) {
			p.logger.Warn("Connectivity lost",
				slog.String("url", p.config.URL),
				slog.String("error", err.Error()),
			)
		}
	default:
		p.logger.Debug("Probe failed",
			slog.Int("failures", failures),
			slog.String("error", err.Error()),
		)
	}
	return p.Online()
}

// Run probes immediately and then every interval until ctx is done
func (p *Prober) Run(ctx context.Context) error {
	p.Check(ctx)

	ticker := p.clk.Every(p.config.Interval, func() {
		if ctx.Err() == nil {
			p.Check(ctx)
		}
	})
	defer ticker.Stop()

	<-ctx.Done()
	return nil
}

func (p *Prober) probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.config.URL, nil)
	if err != nil {
		return err
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("probe returned HTTP %d", resp.StatusCode)
	}
	return nil
}

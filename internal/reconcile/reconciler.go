package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/skypro1111/sos-alert-service/internal/clock"
	"github.com/skypro1111/sos-alert-service/internal/connectivity"
	"github.com/skypro1111/sos-alert-service/internal/metrics"
	"github.com/skypro1111/sos-alert-service/internal/queue"
)

// Queue is the part of the offline queue the reconciler drives
type Queue interface {
	ListPending(ctx context.Context) ([]queue.Record, error)
	MarkSynced(ctx context.Context, id string) error
	Update(ctx context.Context, id string, patch queue.Patch) error
	CountPending(ctx context.Context) (int, error)
}

// Replayer runs the online path for one queued record
type Replayer interface {
	Replay(ctx context.Context, rec queue.Record) error
}

// Result summarises one pass
type Result struct {
	Pending        int  `json:"pending"`
	Synced         int  `json:"synced"`
	Failed         int  `json:"failed"`
	Skipped        int  `json:"skipped"`
	AlreadyRunning bool `json:"already_running"`
}

// Stats are cumulative reconciler statistics
type Stats struct {
	Runs          uint64    `json:"runs"`
	SkippedRuns   uint64    `json:"skipped_runs"`
	RecordsSynced uint64    `json:"records_synced"`
	RecordsFailed uint64    `json:"records_failed"`
	Running       bool      `json:"running"`
	LastRun       time.Time `json:"last_run"`
	LastError     string    `json:"last_error,omitempty"`
}

// Config controls the reconciler
type Config struct {
	// RecordTimeout bounds the replay of one record
	RecordTimeout time.Duration
	// RetryInterval is how often Watch retries pending records while online.
	// Zero disables the retry
	RetryInterval time.Duration
}

// Reconciler replays pending queue records
type Reconciler struct {
	queue    Queue
	replayer Replayer
	cfg      Config
	clock    clock.Clock
	logger   *slog.Logger
	metrics  *metrics.Metrics

	running atomic.Bool
	exclude atomic.Pointer[func(id string) bool]

	mu    sync.RWMutex
	stats Stats
}

// New creates a reconciler
func New(q Queue, r Replayer, clk clock.Clock, cfg Config, logger *slog.Logger, m *metrics.Metrics) *Reconciler {
	if cfg.RecordTimeout <= 0 {
		cfg.RecordTimeout = 2 * time.Minute
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Reconciler{
		queue:    q,
		replayer: r,
		cfg:      cfg,
		clock:    clk,
		logger:   logger,
		metrics:  m,
	}
}

// SetExclude installs a predicate naming records that are still owned by a
// live alert session. Those records are skipped until a later pass
func (r *Reconciler) SetExclude(fn func(id string) bool) {
	r.exclude.Store(&fn)
}

func (r *Reconciler) excluded(id string) bool {
	if fn := r.exclude.Load(); fn != nil && *fn != nil {
		return (*fn)(id)
	}
	return false
}

// Run performs one pass over the pending records
func (r *Reconciler) Run(ctx context.Context) (Result, error) {
	if !r.running.CompareAndSwap(false, true) {
		r.metrics.RecordSyncRun("skipped")
		r.mu.Lock()
		r.stats.SkippedRuns++
		r.mu.Unlock()
		return Result{AlreadyRunning: true}, nil
	}
	defer r.running.Store(false)

	pending, err := r.queue.ListPending(ctx)
	if err != nil {
		r.metrics.RecordSyncRun("error")
		r.finishRun(Result{}, err)
		return Result{}, fmt.Errorf("list pending: %w", err)
	}

	res := Result{Pending: len(pending)}

	r.logger.Info("Sync started", slog.Int("pending", len(pending)))

	for _, rec := range pending {
		if ctx.Err() != nil {
			break
		}
		if r.excluded(rec.ID) {
			res.Skipped++
			continue
		}

		if err := r.syncOne(ctx, rec); err != nil {
			res.Failed++
			r.metrics.RecordSyncRecord(false)
			r.logger.Warn("Failed to sync queued alert",
				slog.String("alert_id", rec.ID),
				slog.Int("attempts", rec.Attempts+1),
				slog.String("error", err.Error()),
			)
			lastErr := err.Error()
			if uerr := r.queue.Update(ctx, rec.ID, queue.Patch{LastError: &lastErr, IncrementAttempts: true}); uerr != nil {
				r.logger.Debug("Failed to record sync error",
					slog.String("alert_id", rec.ID),
					slog.String("error", uerr.Error()),
				)
			}
			continue
		}

		res.Synced++
		r.metrics.RecordSyncRecord(true)
	}

	if depth, err := r.queue.CountPending(ctx); err == nil {
		r.metrics.SetOfflineQueueDepth(depth)
	}

	result := "ok"
	if res.Failed > 0 {
		result = "partial"
	}
	r.metrics.RecordSyncRun(result)
	r.finishRun(res, nil)

	r.logger.Info("Sync finished",
		slog.Int("synced", res.Synced),
		slog.Int("failed", res.Failed),
		slog.Int("skipped", res.Skipped),
	)
	return res, ctx.Err()
}

func (r *Reconciler) syncOne(ctx context.Context, rec queue.Record) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.RecordTimeout)
	defer cancel()

	if err := r.replayer.Replay(ctx, rec); err != nil {
		return err
	}
	if err := r.queue.MarkSynced(ctx, rec.ID); err != nil {
		return fmt.Errorf("mark synced: %w", err)
	}
	return nil
}

func (r *Reconciler) finishRun(res Result, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.Runs++
	r.stats.RecordsSynced += uint64(res.Synced)
	r.stats.RecordsFailed += uint64(res.Failed)
	r.stats.LastRun = r.clock.Now()
	r.stats.LastError = ""
	if err != nil {
		r.stats.LastError = err.Error()
	}
}

// Watch runs a pass whenever the monitor reports a transition to online and
// the queue is not empty. It also checks once at startup, and every
// RetryInterval while online, which picks up records skipped for a live
// session and deliveries that failed while connected
func (r *Reconciler) Watch(ctx context.Context, mon connectivity.Monitor) error {
	transitions, unsubscribe := mon.Subscribe()
	defer unsubscribe()

	retry := make(chan struct{}, 1)
	if r.cfg.RetryInterval > 0 {
		ticker := r.clock.Every(r.cfg.RetryInterval, func() {
			select {
			case retry <- struct{}{}:
			default:
			}
		})
		defer ticker.Stop()
	}

	if mon.Online() {
		r.runIfPending(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case online := <-transitions:
			if online {
				r.runIfPending(ctx)
			}
		case <-retry:
			if mon.Online() {
				r.runIfPending(ctx)
			}
		}
	}
}

func (r *Reconciler) runIfPending(ctx context.Context) {
	count, err := r.queue.CountPending(ctx)
	if err != nil {
		r.logger.Error("Failed to count pending alerts", slog.String("error", err.Error()))
		return
	}
	r.metrics.SetOfflineQueueDepth(count)
	if count == 0 {
		return
	}
	if _, err := r.Run(ctx); err != nil && ctx.Err() == nil {
		r.logger.Error("Sync failed", slog.String("error", err.Error()))
	}
}

// Running reports whether a pass is in progress
func (r *Reconciler) Running() bool {
	return r.running.Load()
}

// GetStats returns cumulative statistics
func (r *Reconciler) GetStats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stats := r.stats
	stats.Running = r.running.Load()
	return stats
}

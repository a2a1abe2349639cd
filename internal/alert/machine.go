package alert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skypro1111/sos-alert-service/internal/capture"
	"github.com/skypro1111/sos-alert-service/internal/clock"
	"github.com/skypro1111/sos-alert-service/internal/dispatch"
	"github.com/skypro1111/sos-alert-service/internal/location"
	"github.com/skypro1111/sos-alert-service/internal/metrics"
	"github.com/skypro1111/sos-alert-service/internal/notify"
	"github.com/skypro1111/sos-alert-service/internal/trigger"
)

// ErrQueueFull is returned by Submit when the event queue has no room
var ErrQueueFull = errors.New("alert: event queue full")

// Dispatcher carries out the record keeping and delivery for a session
type Dispatcher interface {
	Trigger(ctx context.Context, a dispatch.Alert) (dispatch.Outcome, error)
	Complete(ctx context.Context, a dispatch.Alert, out dispatch.Outcome, result capture.Result) error
	Analyze(ctx context.Context, a dispatch.Alert, audio []byte, mimeType string) dispatch.Analysis
	Notify(ctx context.Context, a dispatch.Alert, summary string) (*notify.Result, error)
	Resolve(ctx context.Context, a dispatch.Alert, out dispatch.Outcome, note string) error
}

// Recorder starts audio capture
type Recorder interface {
	Start(ctx context.Context, cfg capture.Config, listener capture.Listener) (*capture.Recording, error)
}

// Config controls the machine
type Config struct {
	Countdown time.Duration
	Recording capture.Config
	QueueSize int
}

// Validate checks the machine configuration
func (c Config) Validate() error {
	if c.Countdown < 0 {
		return fmt.Errorf("countdown must not be negative, got %v", c.Countdown)
	}
	return c.Recording.Validate()
}

// Machine is the alert state machine
type Machine struct {
	cfg        Config
	dispatcher Dispatcher
	recorder   Recorder
	locations  location.Provider
	clock      clock.Clock
	logger     *slog.Logger
	metrics    *metrics.Metrics

	events chan Event
	ctx    context.Context

	// owned by the loop
	current *session
	orphans map[string]*session

	mu       sync.RWMutex
	snapshot Session
	level    *RecordingStatus
	levelID  string
	inflight map[string]int
	pending  map[string]bool
	subs     map[int]chan Session
	nextSub  int
}

// NewMachine creates a machine. Call Run to start processing events
func NewMachine(cfg Config, d Dispatcher, r Recorder, locations location.Provider, clk clock.Clock, logger *slog.Logger, m *metrics.Metrics) (*Machine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	return &Machine{
		cfg:        cfg,
		dispatcher: d,
		recorder:   r,
		locations:  locations,
		clock:      clk,
		logger:     logger,
		metrics:    m,
		events:     make(chan Event, cfg.QueueSize),
		ctx:        context.Background(),
		orphans:    make(map[string]*session),
		snapshot:   Session{State: Idle},
		inflight:   make(map[string]int),
		pending:    make(map[string]bool),
		subs:       make(map[int]chan Session),
	}, nil
}

// Submit queues an event without blocking
func (m *Machine) Submit(ev Event) error {
	select {
	case m.events <- ev:
		return nil
	default:
		return ErrQueueFull
	}
}

// Trigger signals an emergency. While a session is in progress it cancels it
func (m *Machine) Trigger(t trigger.Type, hint string) error {
	return m.Submit(TriggerEvent{Type: t, Hint: hint})
}

// Cancel cancels the current session
func (m *Machine) Cancel() error {
	return m.Submit(CancelEvent{})
}

// Approve approves the summary, optionally replacing it
func (m *Machine) Approve(summary string) error {
	return m.Submit(ApproveEvent{Summary: summary})
}

// Decline ends the session without notification
func (m *Machine) Decline() error {
	return m.Submit(DeclineEvent{})
}

// Run processes events until ctx is done. Any recording in progress is
// stopped on return
func (m *Machine) Run(ctx context.Context) error {
	m.ctx = ctx
	m.logger.Info("Alert machine started", slog.Duration("countdown", m.cfg.Countdown))

	for {
		select {
		case <-ctx.Done():
			m.shutdown()
			return nil
		case ev := <-m.events:
			m.handle(ev)
		}
	}
}

func (m *Machine) handle(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Panic while handling alert event",
				slog.String("event", fmt.Sprintf("%T", ev)),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
		}
		m.publish()
	}()
	ev.handle(m)
}

func (m *Machine) shutdown() {
	s := m.current
	if s == nil || s.view.State.Terminal() {
		return
	}
	if s.countdown != nil {
		s.countdown.Stop()
	}
	if s.recording != nil {
		s.recording.Stop(capture.ReasonCancelled)
	}
	m.logger.Warn("Alert machine stopped with a session in progress",
		slog.String("alert_id", s.view.ID),
		slog.String("state", string(s.view.State)),
	)
}

// post delivers a result event to the loop
func (m *Machine) post(ev Event) {
	select {
	case m.events <- ev:
	case <-m.ctx.Done():
	}
}

// spawn runs fn on its own goroutine and tracks it as work for id
func (m *Machine) spawn(id string, fn func(ctx context.Context)) {
	m.mu.Lock()
	m.inflight[id]++
	m.mu.Unlock()

	ctx := m.ctx
	go func() {
		defer func() {
			if r := recover(); r != nil {
				m.logger.Error("Panic in alert task",
					slog.String("alert_id", id),
					slog.Any("panic", r),
				)
			}
			m.mu.Lock()
			if m.inflight[id]--; m.inflight[id] <= 0 {
				delete(m.inflight, id)
			}
			m.mu.Unlock()
		}()
		fn(ctx)
	}()
}

func (m *Machine) lookup(id string) *session {
	if m.current != nil && m.current.view.ID == id {
		return m.current
	}
	return m.orphans[id]
}

func (m *Machine) onTrigger(e TriggerEvent) {
	if m.current != nil && !m.current.view.State.Terminal() {
		m.logger.Info("Trigger during active session, cancelling",
			slog.String("alert_id", m.current.view.ID),
			slog.String("trigger", string(e.Type)),
		)
		m.onCancel()
		return
	}
	if !e.Type.Valid() {
		m.logger.Warn("Ignoring trigger with unknown type", slog.String("trigger", string(e.Type)))
		return
	}

	if prev := m.current; prev != nil && prev.unfinished() {
		m.orphans[prev.view.ID] = prev
	}

	id := uuid.NewString()
	now := m.clock.Now()
	s := &session{
		view: Session{
			ID:          id,
			State:       Countdown,
			TriggerType: e.Type,
			CreatedAt:   timePtr(now),
			Status:      statusCountdown,
		},
		alert: dispatch.Alert{ID: id, TriggerType: e.Type, TranscriptHint: e.Hint},
	}
	s.countdown = m.clock.AfterFunc(m.cfg.Countdown, func() {
		m.post(countdownElapsed{id: id})
	})
	m.current = s

	m.metrics.RecordSessionTriggered(string(e.Type))
	m.logger.Info("Alert triggered",
		slog.String("alert_id", id),
		slog.String("trigger", string(e.Type)),
		slog.Duration("countdown", m.cfg.Countdown),
	)
}

func (m *Machine) onCountdownElapsed(id string) {
	s := m.current
	if s == nil || s.view.ID != id || s.view.State != Countdown {
		return
	}

	now := m.clock.Now()
	s.view.State = Active
	s.view.TriggeredAt = timePtr(now)
	s.alert.TriggeredAt = now
	if m.locations != nil {
		s.view.Location = m.locations.Current()
	}
	s.alert.Location = s.view.Location
	s.activated = true

	m.logger.Info("Alert active",
		slog.String("alert_id", id),
		slog.Bool("location_known", s.view.Location != nil),
	)

	a := s.alert
	m.spawn(id, func(ctx context.Context) {
		out, err := m.dispatcher.Trigger(ctx, a)
		m.post(dispatched{id: id, outcome: out, err: err})
	})
	m.spawn(id, func(ctx context.Context) {
		rec, err := m.recorder.Start(ctx, m.cfg.Recording, &listener{m: m, id: id})
		m.post(recordingStarted{id: id, recording: rec, err: err})
	})
}

func (m *Machine) onDispatched(e dispatched) {
	s := m.lookup(e.id)
	if s == nil {
		return
	}
	out := e.outcome
	s.outcome = &out
	s.view.Path = out.Path
	if e.err != nil {
		m.logger.Error("Alert dispatch failed",
			slog.String("alert_id", e.id),
			slog.String("error", e.err.Error()),
		)
	}

	if s.view.State.Terminal() {
		s.view.Status = statusResolved
		m.finalize(s)
		return
	}
	s.view.Status = out.Status
	m.advance(s)
}

func (m *Machine) onRecordingStarted(e recordingStarted) {
	s := m.lookup(e.id)
	if e.err != nil {
		m.logger.Warn("Recorder unavailable, continuing without audio",
			slog.String("alert_id", e.id),
			slog.String("error", e.err.Error()),
		)
		if s != nil && s.result == nil {
			m.onRecordingDone(recordingDone{id: e.id, result: capture.Result{Reason: capture.ReasonError}})
		}
		return
	}

	if s == nil || s.view.State.Terminal() || s.result != nil {
		e.recording.Stop(capture.ReasonCancelled)
		return
	}
	s.recording = e.recording
	m.setLevel(e.id, &RecordingStatus{})
}

func (m *Machine) onRecordingDone(e recordingDone) {
	s := m.lookup(e.id)
	if s == nil || s.result != nil {
		return
	}
	result := e.result
	s.result = &result
	s.recording = nil
	s.view.StopReason = result.Reason
	m.setLevel("", nil)

	if s.view.State.Terminal() {
		m.finalize(s)
		return
	}
	m.advance(s)
}

// advance leaves Active once both the dispatch outcome and the recording are in
func (m *Machine) advance(s *session) {
	if s.view.State != Active || s.outcome == nil || s.result == nil {
		return
	}

	id := s.view.ID
	a, out, result := s.alert, *s.outcome, *s.result

	if out.Path == dispatch.PathOffline {
		s.completeIssued = true
		m.spawn(id, func(ctx context.Context) {
			if err := m.dispatcher.Complete(ctx, a, out, result); err != nil {
				m.logger.Error("Failed to store recording",
					slog.String("alert_id", id),
					slog.String("error", err.Error()),
				)
			}
			m.post(completed{id: id})
		})
		return
	}

	s.view.State = Analyzing
	s.view.Status = statusAnalyzing
	m.spawn(id, func(ctx context.Context) {
		an := m.dispatcher.Analyze(ctx, a, result.Payload, result.MimeType)
		m.post(analyzed{id: id, analysis: an})
	})
}

func (m *Machine) onCompleted(id string) {
	s := m.lookup(id)
	if s == nil || s.view.State != Active {
		return
	}
	s.view.State = Resolved
	s.view.ResolvedAt = timePtr(m.clock.Now())
	s.view.Status = s.outcome.Status
	m.ended(s)
}

func (m *Machine) onAnalyzed(e analyzed) {
	s := m.lookup(e.id)
	if s == nil || s.view.State != Analyzing {
		return
	}
	s.view.State = AwaitingApproval
	s.view.Status = statusApproval
	s.view.Summary = e.analysis.Summary
	s.view.AudioURL = e.analysis.AudioURL

	m.logger.Info("Summary ready for approval",
		slog.String("alert_id", e.id),
		slog.Bool("fallback", e.analysis.Fallback),
	)
}

func (m *Machine) onApprove(summary string) {
	s := m.current
	if s == nil || s.view.State != AwaitingApproval {
		m.logger.Warn("Approve ignored, no summary awaiting approval")
		return
	}
	if summary != "" {
		s.view.Summary = summary
	}
	s.view.State = Notifying
	s.view.Status = statusNotifying
	s.notifying = true

	id, a, text := s.view.ID, s.alert, s.view.Summary
	m.spawn(id, func(ctx context.Context) {
		res, err := m.dispatcher.Notify(ctx, a, text)
		m.post(notified{id: id, result: res, err: err})
	})
}

func (m *Machine) onDecline() {
	s := m.current
	if s == nil || s.view.State != AwaitingApproval {
		m.logger.Warn("Decline ignored, no summary awaiting approval")
		return
	}
	s.note = "declined"
	s.view.State = Resolved
	s.view.ResolvedAt = timePtr(m.clock.Now())
	s.view.Status = statusDeclined
	m.ended(s)
	m.finalize(s)
}

func (m *Machine) onNotified(e notified) {
	s := m.lookup(e.id)
	if s == nil || !s.notifying {
		return
	}
	s.notifying = false

	if s.view.State != Notifying {
		// cancelled during delivery; the resolve waited for this
		if e.err != nil {
			s.view.Status = statusResolvedNotDelivered
		} else {
			s.view.Status = statusResolved + "; " + dispatch.NotifiedStatus(e.result.SuccessCount, e.result.TotalContacts)
		}
		m.logger.Info("Delivery finished after cancel",
			slog.String("alert_id", e.id),
			slog.String("status", s.view.Status),
		)
		m.finalize(s)
		return
	}

	s.view.State = Resolved
	s.view.ResolvedAt = timePtr(m.clock.Now())
	if e.err != nil {
		m.logger.Error("Notification failed",
			slog.String("alert_id", e.id),
			slog.String("error", e.err.Error()),
		)
		s.view.Status = dispatch.StatusNotifyRetry
	} else {
		s.view.Status = dispatch.NotifiedStatus(e.result.SuccessCount, e.result.TotalContacts)
	}
	m.ended(s)
}

func (m *Machine) onCancel() {
	s := m.current
	if s == nil || s.view.State.Terminal() {
		m.logger.Debug("Cancel ignored, no session in progress")
		return
	}

	now := m.clock.Now()
	if s.view.State == Countdown {
		s.countdown.Stop()
		s.view.State = Cancelled
		s.view.CancelledAt = timePtr(now)
		s.view.Status = statusCancelled
		m.ended(s)
		return
	}

	if s.recording != nil {
		// OnComplete posts the result asynchronously
		s.recording.Stop(capture.ReasonCancelled)
	}
	s.note = "cancelled"
	s.view.State = Resolved
	s.view.ResolvedAt = timePtr(now)
	s.view.Status = statusResolved
	m.ended(s)
	m.finalize(s)
}

// finalize issues the record updates for a session ended by the user. It runs
// again as late results arrive
func (m *Machine) finalize(s *session) {
	if s.outcome == nil {
		m.orphans[s.view.ID] = s
		return
	}

	id, a, out := s.view.ID, s.alert, *s.outcome
	if !s.resolveIssued && !s.notifying {
		s.resolveIssued = true
		note := s.note
		m.spawn(id, func(ctx context.Context) {
			if err := m.dispatcher.Resolve(ctx, a, out, note); err != nil {
				m.logger.Error("Failed to resolve alert record",
					slog.String("alert_id", id),
					slog.String("error", err.Error()),
				)
			}
		})
	}
	if s.result != nil && !s.completeIssued {
		s.completeIssued = true
		result := *s.result
		m.spawn(id, func(ctx context.Context) {
			if err := m.dispatcher.Complete(ctx, a, out, result); err != nil {
				m.logger.Error("Failed to store recording",
					slog.String("alert_id", id),
					slog.String("error", err.Error()),
				)
			}
		})
	}

	if s.unfinished() {
		m.orphans[id] = s
	} else {
		delete(m.orphans, id)
	}
}

func (m *Machine) ended(s *session) {
	m.metrics.RecordSessionEnded(string(s.view.State))
	m.logger.Info("Alert session ended",
		slog.String("alert_id", s.view.ID),
		slog.String("state", string(s.view.State)),
		slog.String("status", s.view.Status),
	)
}

// publish copies the current session for readers and subscribers
func (m *Machine) publish() {
	view := Session{State: Idle}
	if m.current != nil {
		view = m.current.view
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.pending)
	for id := range m.orphans {
		m.pending[id] = true
	}
	if view == m.snapshot {
		return
	}
	m.snapshot = view
	for _, ch := range m.subs {
		select {
		case <-ch:
		default:
		}
		ch <- m.withLevel(view)
	}
}

func (m *Machine) setLevel(id string, status *RecordingStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.levelID = id
	m.level = status
}

// withLevel attaches live recording telemetry. Callers hold mu
func (m *Machine) withLevel(s Session) Session {
	if m.level != nil && m.levelID == s.ID {
		level := *m.level
		s.Recording = &level
	}
	return s
}

// Snapshot returns the current session, or an Idle view
func (m *Machine) Snapshot() Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.withLevel(m.snapshot)
}

// Subscribe returns a channel receiving the session after every change and an
// unsubscribe function. A slow subscriber only sees the latest session
func (m *Machine) Subscribe() (<-chan Session, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextSub
	m.nextSub++
	ch := make(chan Session, 1)
	m.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			delete(m.subs, id)
		})
	}
}

// Busy reports whether the alert with the given id is still owned by the
// machine: in progress, waiting on late results, or with updates in flight
func (m *Machine) Busy(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.snapshot.ID == id && !m.snapshot.State.Terminal() {
		return true
	}
	return m.pending[id] || m.inflight[id] > 0
}

// listener forwards capture callbacks for one session
type listener struct {
	m  *Machine
	id string
}

func (l *listener) OnSilenceTick(level float32, isSilent bool, silentFor time.Duration) {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	if l.m.levelID != l.id || l.m.level == nil {
		return
	}
	l.m.level.Level = level
	l.m.level.Silent = isSilent
	l.m.level.SilentFor = silentFor
}

func (l *listener) OnComplete(result capture.Result) {
	go l.m.post(recordingDone{id: l.id, result: result})
}

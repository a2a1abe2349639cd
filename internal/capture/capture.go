package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/skypro1111/sos-alert-service/internal/clock"
	"github.com/skypro1111/sos-alert-service/internal/metrics"
)

// ErrAlreadyRecording is returned by Start while another recording is active
var ErrAlreadyRecording = errors.New("capture: recording already in progress")

// StopReason explains why a recording ended
type StopReason string

const (
	ReasonSilence     StopReason = "silence"
	ReasonMaxDuration StopReason = "max_duration"
	ReasonCancelled   StopReason = "cancelled"
	ReasonError       StopReason = "error"
)

// Options are the input processing features requested from the device
type Options struct {
	EchoCancellation bool `json:"echo_cancellation"`
	NoiseSuppression bool `json:"noise_suppression"`
	AutoGainControl  bool `json:"auto_gain_control"`
}

// Config controls one recording
type Config struct {
	MaxDuration      time.Duration
	SilenceThreshold float32 // normalized level 0..1
	SilenceTimeout   time.Duration
	Grace            time.Duration
	ChunkInterval    time.Duration
	SampleInterval   time.Duration
	Options          Options
}

// DefaultConfig returns the mobile defaults
func DefaultConfig() Config {
	return Config{
		MaxDuration:      180 * time.Second,
		SilenceThreshold: 0.03,
		SilenceTimeout:   30 * time.Second,
		Grace:            15 * time.Second,
		ChunkInterval:    time.Second,
		SampleInterval:   200 * time.Millisecond,
		Options: Options{
			EchoCancellation: true,
			NoiseSuppression: true,
			AutoGainControl:  true,
		},
	}
}

// Validate checks the recording configuration
func (c Config) Validate() error {
	if c.MaxDuration < time.Second {
		return fmt.Errorf("max duration must be at least 1s, got %v", c.MaxDuration)
	}
	if c.SilenceThreshold < 0 || c.SilenceThreshold > 1 {
		return fmt.Errorf("silence threshold must be between 0 and 1, got %f", c.SilenceThreshold)
	}
	if c.SilenceTimeout <= 0 {
		return fmt.Errorf("silence timeout must be positive, got %v", c.SilenceTimeout)
	}
	if c.Grace < 0 {
		return fmt.Errorf("grace must not be negative, got %v", c.Grace)
	}
	if c.ChunkInterval <= 0 || c.SampleInterval <= 0 {
		return fmt.Errorf("chunk and sample intervals must be positive")
	}
	return nil
}

// Stream is an open microphone stream
type Stream interface {
	// ReadChunk returns the encoded audio produced since the previous call
	ReadChunk() ([]byte, error)
	// Level returns the normalized signal level over the current sampling window
	Level() float32
	// Flush returns audio still held by the encoder
	Flush() ([]byte, error)
	// Encode assembles recorded chunks into the final payload
	Encode(chunks [][]byte) ([]byte, error)
	MimeType() string
	Close() error
}

// Microphone opens input streams
type Microphone interface {
	Open(ctx context.Context, opts Options) (Stream, error)
}

// Result is delivered once when a recording ends
type Result struct {
	Payload  []byte
	MimeType string
	Elapsed  time.Duration
	Reason   StopReason
	Chunks   int
}

// Listener receives recording progress. Callbacks run on clock timer
// goroutines and must not block
type Listener interface {
	OnSilenceTick(level float32, isSilent bool, silentFor time.Duration)
	OnComplete(result Result)
}

// Engine owns the microphone and allows one recording at a time
type Engine struct {
	mic     Microphone
	clock   clock.Clock
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu     sync.Mutex
	active *Recording
}

// NewEngine creates a capture engine
func NewEngine(mic Microphone, clk clock.Clock, logger *slog.Logger, m *metrics.Metrics) *Engine {
	return &Engine{
		mic:     mic,
		clock:   clk,
		logger:  logger,
		metrics: m,
	}
}

// Start opens the microphone and begins recording. Cancelling ctx stops the
// recording with ReasonCancelled
func (e *Engine) Start(ctx context.Context, cfg Config, listener Listener) (*Recording, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid recording config: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.active != nil {
		return nil, ErrAlreadyRecording
	}

	stream, err := e.mic.Open(ctx, cfg.Options)
	if err != nil {
		return nil, fmt.Errorf("open microphone: %w", err)
	}

	now := e.clock.Now()
	r := &Recording{
		engine:    e,
		cfg:       cfg,
		stream:    stream,
		listener:  listener,
		startedAt: now,
		tracker:   newSilenceTracker(cfg, now),
		done:      make(chan struct{}),
	}

	r.mu.Lock()
	r.timers = []clock.Timer{
		e.clock.Every(cfg.ChunkInterval, r.encodeTick),
		e.clock.Every(cfg.SampleInterval, r.sampleTick),
		e.clock.Every(time.Second, r.durationTick),
	}
	r.mu.Unlock()

	e.active = r

	go func() {
		select {
		case <-ctx.Done():
			r.Stop(ReasonCancelled)
		case <-r.done:
		}
	}()

	e.logger.Info("Recording started",
		slog.Duration("max_duration", cfg.MaxDuration),
		slog.Duration("silence_timeout", cfg.SilenceTimeout),
		slog.Duration("grace", cfg.Grace),
	)

	return r, nil
}

// Active reports whether a recording is in progress
func (e *Engine) Active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active != nil
}

func (e *Engine) release(r *Recording) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active == r {
		e.active = nil
	}
}

// Recording is one in-progress capture
type Recording struct {
	engine   *Engine
	cfg      Config
	stream   Stream
	listener Listener

	mu             sync.Mutex
	timers         []clock.Timer
	chunks         [][]byte
	startedAt      time.Time
	elapsedSeconds int
	silentFor      time.Duration
	tracker        *silenceTracker
	stopped        bool
	result         Result

	done chan struct{}
}

// encodeTick appends the audio produced since the last tick
func (r *Recording) encodeTick() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	chunk, err := r.stream.ReadChunk()
	if err == nil && len(chunk) > 0 {
		r.chunks = append(r.chunks, chunk)
	}
	r.mu.Unlock()

	if err != nil {
		r.engine.logger.Error("Failed to read audio chunk", slog.String("error", err.Error()))
		r.Stop(ReasonError)
	}
}

// sampleTick measures the signal level and applies the silence policy
func (r *Recording) sampleTick() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	level := r.stream.Level()
	isSilent, silentFor, stop := r.tracker.observe(level, r.engine.clock.Now())
	r.silentFor = silentFor
	r.mu.Unlock()

	r.engine.metrics.RecordLevelSample(!isSilent)
	r.listener.OnSilenceTick(level, isSilent, silentFor)

	if stop {
		r.Stop(ReasonSilence)
	}
}

// durationTick advances the elapsed counter and enforces the cap
func (r *Recording) durationTick() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.elapsedSeconds++
	capped := time.Duration(r.elapsedSeconds)*time.Second >= r.cfg.MaxDuration
	r.mu.Unlock()

	if capped {
		r.Stop(ReasonMaxDuration)
	}
}

// Stop ends the recording and returns the final result. Only the first call
// has an effect; later calls return the same result
func (r *Recording) Stop(reason StopReason) Result {
	r.mu.Lock()
	if r.stopped {
		result := r.result
		r.mu.Unlock()
		return result
	}
	r.stopped = true
	for _, t := range r.timers {
		t.Stop()
	}
	r.result = r.finish(reason)
	result := r.result
	r.mu.Unlock()

	r.engine.release(r)
	r.engine.metrics.RecordRecordingStopped(string(result.Reason), result.Elapsed.Seconds(), len(result.Payload))
	r.engine.logger.Info("Recording stopped",
		slog.String("reason", string(result.Reason)),
		slog.Duration("elapsed", result.Elapsed),
		slog.Int("chunks", result.Chunks),
		slog.Int("payload_bytes", len(result.Payload)),
	)

	r.listener.OnComplete(result)
	close(r.done)

	return result
}

// finish flushes the encoder, assembles the payload and releases the stream
func (r *Recording) finish(reason StopReason) Result {
	logger := r.engine.logger

	defer func() {
		if err := r.stream.Close(); err != nil {
			logger.Warn("Failed to close audio stream", slog.String("error", err.Error()))
		}
	}()

	tail, err := r.stream.Flush()
	if err != nil {
		logger.Warn("Failed to flush audio encoder", slog.String("error", err.Error()))
	} else if len(tail) > 0 {
		r.chunks = append(r.chunks, tail)
	}

	var payload []byte
	if recordedBytes(r.chunks) > 0 {
		payload, err = r.stream.Encode(r.chunks)
		if err != nil {
			logger.Error("Failed to encode recording", slog.String("error", err.Error()))
			payload = nil
		}
	}

	result := Result{
		Reason:  reason,
		Elapsed: r.engine.clock.Now().Sub(r.startedAt),
		Chunks:  len(r.chunks),
	}
	if result.Elapsed > r.cfg.MaxDuration {
		result.Elapsed = r.cfg.MaxDuration
	}

	if len(payload) == 0 {
		// Nothing was captured; a cancel stays a cancel
		if reason != ReasonCancelled {
			result.Reason = ReasonError
		}
		return result
	}

	result.Payload = payload
	result.MimeType = r.stream.MimeType()
	return result
}

// Done is closed after OnComplete has returned
func (r *Recording) Done() <-chan struct{} {
	return r.done
}

// Chunks returns the number of chunks recorded so far
func (r *Recording) Chunks() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.chunks)
}

// Elapsed returns the value of the duration counter
func (r *Recording) Elapsed() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return time.Duration(r.elapsedSeconds) * time.Second
}

// SilentFor returns the current run of silence
func (r *Recording) SilentFor() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.silentFor
}

func recordedBytes(chunks [][]byte) int {
	total := 0
	for _, c := range chunks {
		total += len(c)
	}
	return total
}

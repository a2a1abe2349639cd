package capture

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skypro1111/sos-alert-service/internal/clock"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeStream struct {
	clock     *clock.Fake
	start     time.Time
	level     func(elapsed time.Duration) float32
	chunkSize int
	readErr   error

	mu     sync.Mutex
	reads  int
	closed int
}

func (s *fakeStream) ReadChunk() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	if s.readErr != nil {
		return nil, s.readErr
	}
	if s.chunkSize == 0 {
		return nil, nil
	}
	return bytes.Repeat([]byte{0x01}, s.chunkSize), nil
}

func (s *fakeStream) Level() float32 {
	return s.level(s.clock.Now().Sub(s.start))
}

func (s *fakeStream) Flush() ([]byte, error) {
	return nil, nil
}

func (s *fakeStream) Encode(chunks [][]byte) ([]byte, error) {
	return bytes.Join(chunks, nil), nil
}

func (s *fakeStream) MimeType() string {
	return "audio/test"
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

func (s *fakeStream) stats() (reads, closed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads, s.closed
}

type fakeMic struct {
	newStream func() *fakeStream
	err       error
	streams   []*fakeStream
}

func (m *fakeMic) Open(ctx context.Context, opts Options) (Stream, error) {
	if m.err != nil {
		return nil, m.err
	}
	s := m.newStream()
	m.streams = append(m.streams, s)
	return s, nil
}

type recordingListener struct {
	mu        sync.Mutex
	ticks     int
	completed []Result
}

func (l *recordingListener) OnSilenceTick(level float32, isSilent bool, silentFor time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ticks++
}

func (l *recordingListener) OnComplete(result Result) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.completed = append(l.completed, result)
}

func (l *recordingListener) results() []Result {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Result(nil), l.completed...)
}

func constantLevel(level float32) func(time.Duration) float32 {
	return func(time.Duration) float32 { return level }
}

func newTestEngine(t *testing.T, level func(time.Duration) float32, chunkSize int) (*Engine, *fakeMic, *clock.Fake) {
	t.Helper()
	clk := clock.NewFake(time.Unix(1700000000, 0))
	mic := &fakeMic{}
	mic.newStream = func() *fakeStream {
		return &fakeStream{clock: clk, start: clk.Now(), level: level, chunkSize: chunkSize}
	}
	return NewEngine(mic, clk, testLogger(), nil), mic, clk
}

func TestSilenceFromStartStopsAtTimeout(t *testing.T) {
	engine, mic, clk := newTestEngine(t, constantLevel(0), 100)
	listener := &recordingListener{}

	_, err := engine.Start(context.Background(), DefaultConfig(), listener)
	require.NoError(t, err)

	clk.Advance(29800 * time.Millisecond)
	require.Empty(t, listener.results(), "grace must not stop a quiet start before the timeout")

	clk.Advance(200 * time.Millisecond)
	results := listener.results()
	require.Len(t, results, 1)
	assert.Equal(t, ReasonSilence, results[0].Reason)
	assert.Equal(t, 30*time.Second, results[0].Elapsed)
	assert.Equal(t, "audio/test", results[0].MimeType)
	assert.Len(t, results[0].Payload, 30*100)

	_, closed := mic.streams[0].stats()
	assert.Equal(t, 1, closed)
	assert.False(t, engine.Active())
}

func TestSoundThenSilenceStopsAfterTimeout(t *testing.T) {
	level := func(elapsed time.Duration) float32 {
		if elapsed <= 5*time.Second {
			return 0.5
		}
		return 0.01
	}
	engine, _, clk := newTestEngine(t, level, 100)
	listener := &recordingListener{}

	_, err := engine.Start(context.Background(), DefaultConfig(), listener)
	require.NoError(t, err)

	clk.Advance(34800 * time.Millisecond)
	require.Empty(t, listener.results())

	clk.Advance(200 * time.Millisecond)
	results := listener.results()
	require.Len(t, results, 1)
	assert.Equal(t, ReasonSilence, results[0].Reason)
	assert.Equal(t, 35*time.Second, results[0].Elapsed)
}

func TestContinuousSoundStopsAtMaxDuration(t *testing.T) {
	engine, _, clk := newTestEngine(t, constantLevel(0.4), 100)
	listener := &recordingListener{}

	rec, err := engine.Start(context.Background(), DefaultConfig(), listener)
	require.NoError(t, err)

	clk.Advance(179 * time.Second)
	require.Empty(t, listener.results())
	assert.Equal(t, 179*time.Second, rec.Elapsed())

	clk.Advance(time.Second)
	results := listener.results()
	require.Len(t, results, 1)
	assert.Equal(t, ReasonMaxDuration, results[0].Reason)
	assert.Equal(t, 180*time.Second, results[0].Elapsed)
	assert.Equal(t, 180, results[0].Chunks)
	assert.Equal(t, 0, clk.Pending())
}

func TestCancelStopsChunkProduction(t *testing.T) {
	engine, mic, clk := newTestEngine(t, constantLevel(0.4), 100)
	listener := &recordingListener{}

	rec, err := engine.Start(context.Background(), DefaultConfig(), listener)
	require.NoError(t, err)

	clk.Advance(3 * time.Second)
	result := rec.Stop(ReasonCancelled)
	assert.Equal(t, ReasonCancelled, result.Reason)
	assert.Equal(t, 3, result.Chunks)

	readsAtStop, _ := mic.streams[0].stats()
	clk.Advance(10 * time.Second)

	readsAfter, closed := mic.streams[0].stats()
	assert.Equal(t, readsAtStop, readsAfter, "no chunks may be read after stop")
	assert.Equal(t, 3, rec.Chunks())
	assert.Equal(t, 1, closed)
	assert.Equal(t, 0, clk.Pending())

	again := rec.Stop(ReasonSilence)
	assert.Equal(t, ReasonCancelled, again.Reason)
	assert.Len(t, listener.results(), 1, "OnComplete must fire exactly once")

	select {
	case <-rec.Done():
	default:
		t.Fatal("expected Done to be closed after stop")
	}
}

func TestEmptyPayloadReportsError(t *testing.T) {
	engine, mic, clk := newTestEngine(t, constantLevel(0.4), 0)
	listener := &recordingListener{}

	cfg := DefaultConfig()
	cfg.MaxDuration = 5 * time.Second

	_, err := engine.Start(context.Background(), cfg, listener)
	require.NoError(t, err)

	clk.Advance(5 * time.Second)
	results := listener.results()
	require.Len(t, results, 1)
	assert.Equal(t, ReasonError, results[0].Reason)
	assert.Empty(t, results[0].Payload)
	assert.Empty(t, results[0].MimeType)

	_, closed := mic.streams[0].stats()
	assert.Equal(t, 1, closed)
}

func TestReadErrorStopsRecording(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	mic := &fakeMic{newStream: func() *fakeStream {
		return &fakeStream{clock: clk, start: clk.Now(), level: constantLevel(0.4), readErr: errors.New("device lost")}
	}}
	engine := NewEngine(mic, clk, testLogger(), nil)
	listener := &recordingListener{}

	_, err := engine.Start(context.Background(), DefaultConfig(), listener)
	require.NoError(t, err)

	clk.Advance(time.Second)
	results := listener.results()
	require.Len(t, results, 1)
	assert.Equal(t, ReasonError, results[0].Reason)
	assert.False(t, engine.Active())
}

func TestSingleRecordingAtATime(t *testing.T) {
	engine, _, _ := newTestEngine(t, constantLevel(0.4), 10)

	rec, err := engine.Start(context.Background(), DefaultConfig(), &recordingListener{})
	require.NoError(t, err)
	assert.True(t, engine.Active())

	_, err = engine.Start(context.Background(), DefaultConfig(), &recordingListener{})
	assert.ErrorIs(t, err, ErrAlreadyRecording)

	rec.Stop(ReasonCancelled)

	_, err = engine.Start(context.Background(), DefaultConfig(), &recordingListener{})
	assert.NoError(t, err)
}

func TestMicrophoneOpenFailure(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	mic := &fakeMic{err: errors.New("permission denied")}
	engine := NewEngine(mic, clk, testLogger(), nil)

	_, err := engine.Start(context.Background(), DefaultConfig(), &recordingListener{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")
	assert.False(t, engine.Active())
	assert.Equal(t, 0, clk.Pending())
}

func TestContextCancelStopsRecording(t *testing.T) {
	engine, _, _ := newTestEngine(t, constantLevel(0.4), 10)
	listener := &recordingListener{}

	ctx, cancel := context.WithCancel(context.Background())
	rec, err := engine.Start(ctx, DefaultConfig(), listener)
	require.NoError(t, err)

	cancel()

	require.Eventually(t, func() bool {
		select {
		case <-rec.Done():
			return true
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)

	results := listener.results()
	require.Len(t, results, 1)
	assert.Equal(t, ReasonCancelled, results[0].Reason)
}

func TestInvalidConfig(t *testing.T) {
	engine, _, _ := newTestEngine(t, constantLevel(0), 10)

	cfg := DefaultConfig()
	cfg.SilenceThreshold = 2
	_, err := engine.Start(context.Background(), cfg, &recordingListener{})
	assert.Error(t, err)
	assert.False(t, engine.Active())
}

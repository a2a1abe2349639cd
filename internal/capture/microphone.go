package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/skypro1111/sos-alert-service/internal/audio"
	"github.com/skypro1111/sos-alert-service/internal/vad"
)

// ErrDeviceBusy is returned when the microphone already has an open stream
var ErrDeviceBusy = errors.New("capture: microphone busy")

// PCMMicrophone is fed PCM-16 frames by the native audio layer over UDP. Frames
// that arrive while no stream is open are dropped
type PCMMicrophone struct {
	sampleRate int
	threshold  float32
	logger     *slog.Logger

	mu            sync.RWMutex
	current       *pcmStream
	framesDropped uint64
}

// MicrophoneStats represents microphone state for monitoring
type MicrophoneStats struct {
	Open          bool                `json:"open"`
	SampleRate    int                 `json:"sample_rate"`
	FramesDropped uint64              `json:"frames_dropped"`
	Buffer        *audio.BufferStats  `json:"buffer,omitempty"`
	Level         *vad.ProcessorStats `json:"level,omitempty"`
}

// NewPCMMicrophone creates a microphone for frames at sampleRate. threshold
// only affects the loud/quiet statistics
func NewPCMMicrophone(sampleRate int, threshold float32, logger *slog.Logger) (*PCMMicrophone, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}
	if _, err := vad.NewProcessor(threshold); err != nil {
		return nil, err
	}

	return &PCMMicrophone{
		sampleRate: sampleRate,
		threshold:  threshold,
		logger:     logger,
	}, nil
}

// Open starts buffering incoming frames into a new stream
func (m *PCMMicrophone) Open(ctx context.Context, opts Options) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		return nil, ErrDeviceBusy
	}

	meter, err := vad.NewProcessor(m.threshold)
	if err != nil {
		return nil, err
	}

	m.current = &pcmStream{
		mic:    m,
		buffer: audio.NewBuffer(m.sampleRate),
		meter:  meter,
	}

	m.logger.Debug("Microphone stream opened",
		slog.Int("sample_rate", m.sampleRate),
		slog.Bool("echo_cancellation", opts.EchoCancellation),
		slog.Bool("noise_suppression", opts.NoiseSuppression),
		slog.Bool("auto_gain_control", opts.AutoGainControl),
	)

	return m.current, nil
}

// Feed delivers one sequenced PCM frame from the device
func (m *PCMMicrophone) Feed(sequence uint32, pcm []byte) error {
	m.mu.Lock()
	stream := m.current
	if stream == nil {
		m.framesDropped++
	}
	m.mu.Unlock()

	if stream == nil {
		return nil
	}
	return stream.buffer.AddAudioData(sequence, pcm)
}

// GetStats returns current microphone statistics
func (m *PCMMicrophone) GetStats() MicrophoneStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := MicrophoneStats{
		Open:          m.current != nil,
		SampleRate:    m.sampleRate,
		FramesDropped: m.framesDropped,
	}
	if m.current != nil {
		bufferStats := m.current.buffer.GetStats()
		levelStats := m.current.meter.GetStats()
		stats.Buffer = &bufferStats
		stats.Level = &levelStats
	}
	return stats
}

func (m *PCMMicrophone) release(s *pcmStream) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == s {
		m.current = nil
	}
}

// pcmStream reads raw PCM chunks and encodes the final payload as WAV
type pcmStream struct {
	mic    *PCMMicrophone
	buffer *audio.Buffer
	meter  *vad.Processor
	once   sync.Once
}

func (s *pcmStream) ReadChunk() ([]byte, error) {
	return s.buffer.NextChunk(), nil
}

func (s *pcmStream) Level() float32 {
	return s.meter.Process(s.buffer.NextWindow()).Level
}

func (s *pcmStream) Flush() ([]byte, error) {
	return s.buffer.Flush(), nil
}

func (s *pcmStream) Encode(chunks [][]byte) ([]byte, error) {
	return audio.EncodeWAV(chunks, s.buffer.SampleRate())
}

func (s *pcmStream) MimeType() string {
	return audio.MimeTypeWAV
}

func (s *pcmStream) Close() error {
	s.once.Do(func() {
		stats := s.buffer.GetStats()
		s.mic.logger.Debug("Microphone stream closed",
			slog.Int("recorded_bytes", stats.RecordedBytes),
			slog.Uint64("lost_packets", uint64(stats.LostPackets)),
		)
		s.mic.release(s)
	})
	return nil
}

package audio

import (
	"encoding/binary"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Buffer accumulates PCM-16 frames for one recording with sequence
// reordering and packet loss detection. Two independent cursors read from it:
// the encoder takes chunks, the level sampler takes windows
type Buffer struct {
	sampleRate int

	// Ordered PCM bytes not yet consumed by both readers
	rawAudioData []byte
	chunkOffset  int // bytes already handed out as encoder chunks
	levelOffset  int // bytes already handed out as level windows
	consumed     int // total bytes trimmed from the front

	// Sequence tracking
	started      bool
	lastSeq      uint32
	expectedSeq  uint32
	rawSeqBuffer map[uint32][]byte

	// Packet loss tracking
	lostPackets map[uint32]bool
	maxGap      uint32

	lastUpdate   time.Time
	totalPackets uint32
	lostCount    uint32

	mu sync.RWMutex
}

// BufferStats represents buffer statistics for monitoring
type BufferStats struct {
	TotalPackets  uint32  `json:"total_packets"`
	LostPackets   uint32  `json:"lost_packets"`
	LossRate      float64 `json:"loss_rate"`
	RecordedBytes int     `json:"recorded_bytes"`
	PendingSeqs   int     `json:"pending_sequences"`
	LastSequence  uint32  `json:"last_sequence"`
}

// NewBuffer creates an empty recording buffer
func NewBuffer(sampleRate int) *Buffer {
	return &Buffer{
		sampleRate:   sampleRate,
		rawAudioData: make([]byte, 0, sampleRate*2), // one second of 16-bit samples
		rawSeqBuffer: make(map[uint32][]byte),
		lostPackets:  make(map[uint32]bool),
		maxGap:       20, // Wait for up to 20 missing frames
	}
}

// AddAudioData adds a PCM frame to the buffer with sequence handling
func (b *Buffer) AddAudioData(sequence uint32, rawData []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(rawData)%2 != 0 {
		return fmt.Errorf("audio data length must be even (got %d bytes)", len(rawData))
	}

	b.lastUpdate = time.Now()
	b.totalPackets++

	if !b.started {
		b.started = true
		b.expectedSeq = sequence
		b.lastSeq = sequence - 1
	}

	switch {
	case sequence == b.expectedSeq:
		b.rawAudioData = append(b.rawAudioData, rawData...)
		b.lastSeq = sequence
		b.expectedSeq = sequence + 1
		b.processBufferedRawPackets()

	case sequence > b.expectedSeq:
		b.rawSeqBuffer[sequence] = append([]byte(nil), rawData...)

		// Give up on missing frames once the gap is too large
		if sequence-b.expectedSeq > b.maxGap {
			b.markMissingAsLost(b.expectedSeq, sequence-1)
			b.expectedSeq = sequence
			b.processBufferedRawPackets()
		}

	default:
		return fmt.Errorf("ignoring old/duplicate packet: seq=%d, lastSeq=%d", sequence, b.lastSeq)
	}

	b.cleanupOldLostPackets()
	return nil
}

// markMissingAsLost marks a range of sequence numbers as lost
func (b *Buffer) markMissingAsLost(start, end uint32) {
	for seq := start; seq <= end; seq++ {
		if _, buffered := b.rawSeqBuffer[seq]; !buffered {
			b.lostPackets[seq] = true
			b.lostCount++
		}
	}
}

// cleanupOldLostPackets removes very old lost packet tracking
func (b *Buffer) cleanupOldLostPackets() {
	if b.lastSeq < 100 {
		return
	}
	cutoff := b.lastSeq - 100
	for seq := range b.lostPackets {
		if seq < cutoff {
			delete(b.lostPackets, seq)
		}
	}
}

// processBufferedRawPackets appends any consecutive buffered frames
func (b *Buffer) processBufferedRawPackets() {
	for {
		rawData, exists := b.rawSeqBuffer[b.expectedSeq]
		if !exists {
			break
		}

		b.rawAudioData = append(b.rawAudioData, rawData...)
		delete(b.rawSeqBuffer, b.expectedSeq)
		delete(b.lostPackets, b.expectedSeq)

		b.lastSeq = b.expectedSeq
		b.expectedSeq++
	}
}

// NextChunk returns the ordered PCM bytes recorded since the previous call
func (b *Buffer) NextChunk() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.takeChunk()
}

func (b *Buffer) takeChunk() []byte {
	if b.chunkOffset >= len(b.rawAudioData) {
		return nil
	}

	chunk := make([]byte, len(b.rawAudioData)-b.chunkOffset)
	copy(chunk, b.rawAudioData[b.chunkOffset:])
	b.chunkOffset = len(b.rawAudioData)
	b.trim()

	return chunk
}

// NextWindow returns the samples recorded since the previous call
func (b *Buffer) NextWindow() []int16 {
	b.mu.Lock()
	defer b.mu.Unlock()

	samples := BytesToSamples(b.rawAudioData[b.levelOffset:])
	b.levelOffset = len(b.rawAudioData)
	b.trim()

	return samples
}

// Flush drains frames still waiting on missing predecessors, in sequence
// order, and returns the final encoder chunk
func (b *Buffer) Flush() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	pending := make([]uint32, 0, len(b.rawSeqBuffer))
	for seq := range b.rawSeqBuffer {
		pending = append(pending, seq)
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i] < pending[j] })

	for _, seq := range pending {
		if seq > b.expectedSeq {
			b.markMissingAsLost(b.expectedSeq, seq-1)
		}
		b.rawAudioData = append(b.rawAudioData, b.rawSeqBuffer[seq]...)
		delete(b.rawSeqBuffer, seq)
		b.lastSeq = seq
		b.expectedSeq = seq + 1
	}

	return b.takeChunk()
}

// trim drops bytes both readers have consumed
func (b *Buffer) trim() {
	done := b.chunkOffset
	if b.levelOffset < done {
		done = b.levelOffset
	}
	if done == 0 {
		return
	}

	remaining := copy(b.rawAudioData, b.rawAudioData[done:])
	b.rawAudioData = b.rawAudioData[:remaining]
	b.chunkOffset -= done
	b.levelOffset -= done
	b.consumed += done
}

// GetStats returns current buffer statistics
func (b *Buffer) GetStats() BufferStats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	lossRate := float64(0)
	if b.totalPackets > 0 {
		lossRate = float64(b.lostCount) / float64(b.totalPackets) * 100
	}

	return BufferStats{
		TotalPackets:  b.totalPackets,
		LostPackets:   b.lostCount,
		LossRate:      lossRate,
		RecordedBytes: b.consumed + len(b.rawAudioData),
		PendingSeqs:   len(b.rawSeqBuffer),
		LastSequence:  b.lastSeq,
	}
}

// GetLastSequence returns the last processed sequence number
func (b *Buffer) GetLastSequence() uint32 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastSeq
}

// GetLastUpdate returns the time of the last buffer update
func (b *Buffer) GetLastUpdate() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastUpdate
}

// SampleRate returns the PCM sample rate of the buffer
func (b *Buffer) SampleRate() int {
	return b.sampleRate
}

// BytesToSamples converts little-endian PCM-16 bytes to samples. A trailing
// odd byte is ignored
func BytesToSamples(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return samples
}

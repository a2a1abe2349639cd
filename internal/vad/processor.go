package vad

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// fullScale is the RMS of a full-amplitude PCM-16 signal
const fullScale = 32768.0

// Processor classifies audio windows as sound or silence by RMS energy
type Processor struct {
	threshold float32

	// Statistics
	totalWindows  uint64
	loudWindows   uint64
	peakLevel     float32
	lastLevel     float32
	lastProcessed time.Time

	mu sync.RWMutex
}

// Result represents the measurement of one window
type Result struct {
	Level       float32 `json:"level"`        // Normalized RMS level (0.0 - 1.0)
	HasSound    bool    `json:"has_sound"`    // Level reached the threshold
	WindowIndex int     `json:"window_index"` // Window index processed
}

// ProcessorStats represents level meter statistics
type ProcessorStats struct {
	TotalWindows   uint64    `json:"total_windows"`
	LoudWindows    uint64    `json:"loud_windows"`
	LoudPercentage float64   `json:"loud_percentage"`
	PeakLevel      float32   `json:"peak_level"`
	LastLevel      float32   `json:"last_level"`
	LastProcessed  time.Time `json:"last_processed"`
	Threshold      float32   `json:"threshold"`
}

// NewProcessor creates a level meter with the given silence threshold
func NewProcessor(threshold float32) (*Processor, error) {
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("threshold must be between 0 and 1, got %f", threshold)
	}

	return &Processor{threshold: threshold}, nil
}

// Level returns the RMS level of samples normalized to 0..1
func Level(samples []int16) float32 {
	if len(samples) == 0 {
		return 0
	}

	var energy float64
	for _, sample := range samples {
		energy += float64(sample) * float64(sample)
	}
	rms := math.Sqrt(energy/float64(len(samples))) / fullScale
	if rms > 1.0 {
		rms = 1.0
	}
	return float32(rms)
}

// Process measures a window of samples. An empty window counts as silence
func (p *Processor) Process(samples []int16) *Result {
	level := Level(samples)

	p.mu.Lock()
	defer p.mu.Unlock()

	hasSound := len(samples) > 0 && level >= p.threshold

	p.totalWindows++
	if hasSound {
		p.loudWindows++
	}
	if level > p.peakLevel {
		p.peakLevel = level
	}
	p.lastLevel = level
	p.lastProcessed = time.Now()

	return &Result{
		Level:       level,
		HasSound:    hasSound,
		WindowIndex: int(p.totalWindows - 1),
	}
}

// GetStats returns current processor statistics
func (p *Processor) GetStats() ProcessorStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	loudPercentage := float64(0)
	if p.totalWindows > 0 {
		loudPercentage = float64(p.loudWindows) / float64(p.totalWindows) * 100
	}

	return ProcessorStats{
		TotalWindows:   p.totalWindows,
		LoudWindows:    p.loudWindows,
		LoudPercentage: loudPercentage,
		PeakLevel:      p.peakLevel,
		LastLevel:      p.lastLevel,
		LastProcessed:  p.lastProcessed,
		Threshold:      p.threshold,
	}
}

// UpdateThreshold updates the sound detection threshold
func (p *Processor) UpdateThreshold(threshold float32) error {
	if threshold < 0 || threshold > 1 {
		return fmt.Errorf("threshold must be between 0 and 1, got %f", threshold)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.threshold = threshold
	return nil
}

// Reset resets the processor statistics
func (p *Processor) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.totalWindows = 0
	p.loudWindows = 0
	p.peakLevel = 0
	p.lastLevel = 0
	p.lastProcessed = time.Time{}
}

// GetThreshold returns the current sound detection threshold
func (p *Processor) GetThreshold() float32 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.threshold
}

package vad

import (
	"testing"
)

func constantSamples(n int, value int16) []int16 {
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = value
	}
	return samples
}

func TestNewProcessorValidation(t *testing.T) {
	tests := []struct {
		name      string
		threshold float32
		expectErr bool
	}{
		{name: "valid threshold", threshold: 0.03, expectErr: false},
		{name: "zero threshold", threshold: 0, expectErr: false},
		{name: "threshold too low", threshold: -0.1, expectErr: true},
		{name: "threshold too high", threshold: 1.1, expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewProcessor(tt.threshold)
			if tt.expectErr && err == nil {
				t.Error("Expected error but got none")
			}
			if !tt.expectErr && err != nil {
				t.Errorf("Expected no error but got: %v", err)
			}
		})
	}
}

func TestLevel(t *testing.T) {
	tests := []struct {
		name     string
		samples  []int16
		expected float32
	}{
		{name: "empty", samples: nil, expected: 0},
		{name: "silence", samples: make([]int16, 512), expected: 0},
		{name: "half scale", samples: constantSamples(512, 16384), expected: 0.5},
		{name: "alternating", samples: []int16{-16384, 16384, -16384, 16384}, expected: 0.5},
		{name: "full scale negative", samples: constantSamples(8, -32768), expected: 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Level(tt.samples)
			if diff := got - tt.expected; diff > 0.0001 || diff < -0.0001 {
				t.Errorf("Expected level %f, got %f", tt.expected, got)
			}
		})
	}
}

func TestSoundDetection(t *testing.T) {
	processor, err := NewProcessor(0.03)
	if err != nil {
		t.Fatalf("Failed to create processor: %v", err)
	}

	tests := []struct {
		name        string
		samples     []int16
		expectSound bool
	}{
		{name: "silence", samples: make([]int16, 512), expectSound: false},
		{name: "noise floor", samples: constantSamples(512, 300), expectSound: false},
		{name: "speech", samples: constantSamples(512, 4000), expectSound: true},
		{name: "empty window", samples: []int16{}, expectSound: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := processor.Process(tt.samples)
			if result.HasSound != tt.expectSound {
				t.Errorf("Expected hasSound=%v, got %v (level %.4f)", tt.expectSound, result.HasSound, result.Level)
			}
		})
	}
}

func TestProcessorStats(t *testing.T) {
	processor, err := NewProcessor(0.1)
	if err != nil {
		t.Fatalf("Failed to create processor: %v", err)
	}

	loud := constantSamples(512, 8000)
	quiet := make([]int16, 512)

	for i := 0; i < 10; i++ {
		if i%2 == 0 {
			processor.Process(loud)
		} else {
			processor.Process(quiet)
		}
	}

	stats := processor.GetStats()

	if stats.TotalWindows != 10 {
		t.Errorf("Expected 10 total windows, got %d", stats.TotalWindows)
	}
	if stats.LoudWindows != 5 {
		t.Errorf("Expected 5 loud windows, got %d", stats.LoudWindows)
	}
	if stats.LoudPercentage != 50 {
		t.Errorf("Expected 50%% loud windows, got %f", stats.LoudPercentage)
	}
	if stats.PeakLevel < stats.LastLevel {
		t.Errorf("Peak level %f below last level %f", stats.PeakLevel, stats.LastLevel)
	}
	if stats.LastProcessed.IsZero() {
		t.Error("Expected non-zero last processed time")
	}
}

func TestUpdateThreshold(t *testing.T) {
	processor, err := NewProcessor(0.03)
	if err != nil {
		t.Fatalf("Failed to create processor: %v", err)
	}

	if err := processor.UpdateThreshold(0.01); err != nil {
		t.Errorf("Failed to update threshold: %v", err)
	}
	if processor.GetThreshold() != 0.01 {
		t.Errorf("Expected threshold 0.01, got %f", processor.GetThreshold())
	}

	if err := processor.UpdateThreshold(-0.1); err == nil {
		t.Error("Expected error for negative threshold")
	}
	if err := processor.UpdateThreshold(1.1); err == nil {
		t.Error("Expected error for threshold > 1")
	}
	if processor.GetThreshold() != 0.01 {
		t.Errorf("Threshold changed after invalid update: %f", processor.GetThreshold())
	}
}

func TestProcessorReset(t *testing.T) {
	processor, err := NewProcessor(0.03)
	if err != nil {
		t.Fatalf("Failed to create processor: %v", err)
	}

	processor.Process(constantSamples(512, 5000))
	processor.Process(constantSamples(512, 5000))

	processor.Reset()

	stats := processor.GetStats()
	if stats.TotalWindows != 0 || stats.LoudWindows != 0 {
		t.Errorf("Expected counters cleared, got %+v", stats)
	}
	if stats.PeakLevel != 0 {
		t.Errorf("Expected peak level cleared, got %f", stats.PeakLevel)
	}
	if !stats.LastProcessed.IsZero() {
		t.Error("Expected zero last processed time after reset")
	}
}

func TestConcurrentProcessing(t *testing.T) {
	processor, err := NewProcessor(0.03)
	if err != nil {
		t.Fatalf("Failed to create processor: %v", err)
	}

	done := make(chan bool)
	numGoroutines := 5
	numProcessPerGoroutine := 20

	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer func() { done <- true }()

			samples := constantSamples(512, int16(id*1000))
			for j := 0; j < numProcessPerGoroutine; j++ {
				processor.Process(samples)
			}
		}(i)
	}

	for i := 0; i < numGoroutines; i++ {
		<-done
	}

	stats := processor.GetStats()
	expectedWindows := uint64(numGoroutines * numProcessPerGoroutine)
	if stats.TotalWindows != expectedWindows {
		t.Errorf("Expected %d total windows, got %d", expectedWindows, stats.TotalWindows)
	}
}

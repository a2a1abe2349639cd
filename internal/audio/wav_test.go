package audio

import (
	"encoding/binary"
	"math"
	"testing"
)

func sinePCM(numSamples, sampleRate int, frequency float64) []byte {
	pcm := make([]byte, numSamples*2)
	for i := 0; i < numSamples; i++ {
		t := float64(i) / float64(sampleRate)
		sample := int16(16383.0 * math.Sin(2*math.Pi*frequency*t))
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(sample))
	}
	return pcm
}

func TestEncodeWAV(t *testing.T) {
	sampleRate := 16000
	pcm := sinePCM(sampleRate, sampleRate, 440)

	// Split one second of audio into uneven chunks
	chunks := [][]byte{pcm[:1000], pcm[1000:20000], pcm[20000:]}

	wavData, err := EncodeWAV(chunks, sampleRate)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	expectedSize := wavHeaderSize + len(pcm)
	if len(wavData) != expectedSize {
		t.Errorf("Expected WAV size %d, got %d", expectedSize, len(wavData))
	}

	info, err := GetWAVInfo(wavData)
	if err != nil {
		t.Fatalf("Failed to get WAV info: %v", err)
	}

	if info.SampleRate != uint32(sampleRate) {
		t.Errorf("Expected sample rate %d, got %d", sampleRate, info.SampleRate)
	}
	if info.Channels != 1 {
		t.Errorf("Expected 1 channel, got %d", info.Channels)
	}
	if info.BitsPerSample != 16 {
		t.Errorf("Expected 16 bits per sample, got %d", info.BitsPerSample)
	}
	if math.Abs(info.Duration-1.0) > 0.001 {
		t.Errorf("Expected duration 1.0s, got %f", info.Duration)
	}

	// Data section must be the chunks in order
	for i, b := range pcm {
		if wavData[wavHeaderSize+i] != b {
			t.Fatalf("Data mismatch at byte %d", i)
		}
	}
}

func TestEncodeWAVErrors(t *testing.T) {
	tests := []struct {
		name       string
		chunks     [][]byte
		sampleRate int
	}{
		{name: "no chunks", chunks: nil, sampleRate: 16000},
		{name: "empty chunks", chunks: [][]byte{{}, {}}, sampleRate: 16000},
		{name: "odd length", chunks: [][]byte{{1, 2, 3}}, sampleRate: 16000},
		{name: "zero sample rate", chunks: [][]byte{{1, 2}}, sampleRate: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := EncodeWAV(tt.chunks, tt.sampleRate); err == nil {
				t.Error("Expected error but got none")
			}
		})
	}
}

func TestGetWAVInfoInvalid(t *testing.T) {
	if _, err := GetWAVInfo([]byte("short")); err == nil {
		t.Error("Expected error for short data")
	}

	data := make([]byte, wavHeaderSize)
	copy(data, "JUNK")
	if _, err := GetWAVInfo(data); err == nil {
		t.Error("Expected error for missing RIFF header")
	}
}

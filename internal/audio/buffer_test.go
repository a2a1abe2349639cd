package audio

import (
	"testing"
)

func frame(value byte, size int) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = value
	}
	return data
}

func TestAddAudioDataInOrder(t *testing.T) {
	buffer := NewBuffer(16000)

	for seq := uint32(100); seq < 105; seq++ {
		if err := buffer.AddAudioData(seq, frame(byte(seq), 320)); err != nil {
			t.Fatalf("Failed to add frame %d: %v", seq, err)
		}
	}

	if buffer.GetLastSequence() != 104 {
		t.Errorf("Expected last sequence 104, got %d", buffer.GetLastSequence())
	}

	chunk := buffer.NextChunk()
	if len(chunk) != 5*320 {
		t.Fatalf("Expected %d bytes, got %d", 5*320, len(chunk))
	}
	if chunk[0] != 100 || chunk[len(chunk)-1] != 104 {
		t.Errorf("Unexpected chunk ordering: first=%d last=%d", chunk[0], chunk[len(chunk)-1])
	}

	if next := buffer.NextChunk(); next != nil {
		t.Errorf("Expected no new data, got %d bytes", len(next))
	}
}

func TestAddAudioDataOddLength(t *testing.T) {
	buffer := NewBuffer(16000)
	if err := buffer.AddAudioData(1, []byte{1, 2, 3}); err == nil {
		t.Error("Expected error for odd-length frame")
	}
}

func TestSequenceReordering(t *testing.T) {
	buffer := NewBuffer(16000)

	order := []uint32{10, 12, 11, 13}
	for _, seq := range order {
		if err := buffer.AddAudioData(seq, frame(byte(seq), 4)); err != nil {
			t.Fatalf("Failed to add frame %d: %v", seq, err)
		}
	}

	chunk := buffer.NextChunk()
	expected := []byte{10, 10, 10, 10, 11, 11, 11, 11, 12, 12, 12, 12, 13, 13, 13, 13}
	if len(chunk) != len(expected) {
		t.Fatalf("Expected %d bytes, got %d", len(expected), len(chunk))
	}
	for i := range expected {
		if chunk[i] != expected[i] {
			t.Fatalf("Expected %v, got %v", expected, chunk)
		}
	}

	if err := buffer.AddAudioData(11, frame(11, 4)); err == nil {
		t.Error("Expected error for duplicate frame")
	}
}

func TestLargeGapMarksLost(t *testing.T) {
	buffer := NewBuffer(16000)

	buffer.AddAudioData(1, frame(1, 4))
	buffer.AddAudioData(30, frame(30, 4))

	stats := buffer.GetStats()
	if stats.LostPackets != 28 {
		t.Errorf("Expected 28 lost packets, got %d", stats.LostPackets)
	}
	if buffer.GetLastSequence() != 30 {
		t.Errorf("Expected last sequence 30, got %d", buffer.GetLastSequence())
	}
	if stats.PendingSeqs != 0 {
		t.Errorf("Expected no pending sequences, got %d", stats.PendingSeqs)
	}
}

func TestFlushDrainsPending(t *testing.T) {
	buffer := NewBuffer(16000)

	buffer.AddAudioData(1, frame(1, 2))
	buffer.AddAudioData(3, frame(3, 2))
	buffer.AddAudioData(5, frame(5, 2))

	first := buffer.NextChunk()
	if len(first) != 2 {
		t.Fatalf("Expected only the in-order frame before flush, got %d bytes", len(first))
	}

	final := buffer.Flush()
	expected := []byte{3, 3, 5, 5}
	if len(final) != len(expected) {
		t.Fatalf("Expected %v, got %v", expected, final)
	}
	for i := range expected {
		if final[i] != expected[i] {
			t.Fatalf("Expected %v, got %v", expected, final)
		}
	}

	stats := buffer.GetStats()
	if stats.LostPackets != 2 {
		t.Errorf("Expected 2 lost packets after flush, got %d", stats.LostPackets)
	}
	if stats.RecordedBytes != 6 {
		t.Errorf("Expected 6 recorded bytes, got %d", stats.RecordedBytes)
	}
}

func TestIndependentReaders(t *testing.T) {
	buffer := NewBuffer(16000)

	// Two samples: 0x0100 and 0xFF7F
	buffer.AddAudioData(0, []byte{0x00, 0x01, 0xFF, 0x7F})

	window := buffer.NextWindow()
	if len(window) != 2 || window[0] != 256 || window[1] != 32767 {
		t.Fatalf("Unexpected window: %v", window)
	}
	if again := buffer.NextWindow(); len(again) != 0 {
		t.Errorf("Expected empty window, got %v", again)
	}

	// The encoder cursor is unaffected by the sampler
	chunk := buffer.NextChunk()
	if len(chunk) != 4 {
		t.Fatalf("Expected 4 bytes for encoder, got %d", len(chunk))
	}

	buffer.AddAudioData(1, []byte{0x00, 0x80})
	window = buffer.NextWindow()
	if len(window) != 1 || window[0] != -32768 {
		t.Errorf("Unexpected window after second frame: %v", window)
	}

	if stats := buffer.GetStats(); stats.RecordedBytes != 6 {
		t.Errorf("Expected 6 recorded bytes, got %d", stats.RecordedBytes)
	}
}

func TestBytesToSamples(t *testing.T) {
	samples := BytesToSamples([]byte{0x01, 0x00, 0xFF, 0xFF, 0x09})
	if len(samples) != 2 {
		t.Fatalf("Expected 2 samples, got %d", len(samples))
	}
	if samples[0] != 1 || samples[1] != -1 {
		t.Errorf("Unexpected samples: %v", samples)
	}
}

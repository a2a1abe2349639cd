package protocol

import (
	"strings"
	"testing"
	"time"

	"github.com/skypro1111/sos-alert-service/internal/trigger"
)

func TestParseHeader(t *testing.T) {
	tests := []struct {
		name        string
		data        []byte
		expected    *Header
		expectError bool
	}{
		{
			name: "valid trigger header",
			data: []byte{
				0x01,       // PacketType: Trigger
				0x00, 0x0D, // PacketLen: 13 (8 + 5)
				0x00, 0x00, 0x30, 0x39, // DeviceID: 12345
				0x01, // Version
			},
			expected: &Header{
				PacketType: PacketTypeTrigger,
				PacketLen:  13,
				DeviceID:   12345,
				Version:    Version,
			},
		},
		{
			name: "valid audio header",
			data: []byte{
				0x02,       // PacketType: Audio
				0x01, 0x00, // PacketLen: 256
				0x12, 0x34, 0x56, 0x78, // DeviceID: 305419896
				0x01, // Version
			},
			expected: &Header{
				PacketType: PacketTypeAudio,
				PacketLen:  256,
				DeviceID:   305419896,
				Version:    Version,
			},
		},
		{
			name:        "header too short",
			data:        []byte{0x01, 0x00},
			expectError: true,
		},
		{
			name:        "empty data",
			data:        []byte{},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseHeader(tt.data)

			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected no error but got: %v", err)
			}
			if *result != *tt.expected {
				t.Errorf("Expected header %+v, got %+v", tt.expected, result)
			}
		})
	}
}

func TestTriggerPacketRoundTrip(t *testing.T) {
	ts := time.Unix(1700000000, 0)

	for _, tt := range []trigger.Type{trigger.Button, trigger.Voice, trigger.Hardware} {
		t.Run(string(tt), func(t *testing.T) {
			data, err := BuildTriggerPacket(7, tt, ts)
			if err != nil {
				t.Fatalf("BuildTriggerPacket failed: %v", err)
			}

			packet, err := ParsePacket(data)
			if err != nil {
				t.Fatalf("ParsePacket failed: %v", err)
			}
			if packet.Trigger == nil {
				t.Fatal("Expected trigger payload")
			}
			got, err := packet.Trigger.Type()
			if err != nil {
				t.Fatalf("Type failed: %v", err)
			}
			if got != tt {
				t.Errorf("Expected %s, got %s", tt, got)
			}
			if packet.Trigger.Timestamp != uint32(ts.Unix()) {
				t.Errorf("Expected timestamp %d, got %d", ts.Unix(), packet.Trigger.Timestamp)
			}
			if packet.Header.DeviceID != 7 {
				t.Errorf("Expected device 7, got %d", packet.Header.DeviceID)
			}
		})
	}

	if _, err := BuildTriggerPacket(1, trigger.Type("shake"), ts); err == nil {
		t.Error("Expected error for unknown trigger type")
	}
}

func TestAudioPacket(t *testing.T) {
	pcm := []byte{1, 2, 3, 4, 5, 6}
	data, err := BuildAudioPacket(3, 42, pcm)
	if err != nil {
		t.Fatalf("BuildAudioPacket failed: %v", err)
	}

	packet, err := ParsePacket(data)
	if err != nil {
		t.Fatalf("ParsePacket failed: %v", err)
	}
	if packet.Audio == nil {
		t.Fatal("Expected audio payload")
	}
	if packet.Audio.Sequence != 42 {
		t.Errorf("Expected sequence 42, got %d", packet.Audio.Sequence)
	}
	if string(packet.Audio.AudioData) != string(pcm) {
		t.Errorf("Expected audio %v, got %v", pcm, packet.Audio.AudioData)
	}

	if _, err := BuildAudioPacket(3, 1, make([]byte, 70000)); err == nil {
		t.Error("Expected error for oversized frame")
	}
}

func TestLocationPacket(t *testing.T) {
	data := BuildLocationPacket(9, LocationPayload{
		Latitude:  -33.8688,
		Longitude: 151.2093,
		Accuracy:  12.5,
		Timestamp: 1700000000,
	})

	packet, err := ParsePacket(data)
	if err != nil {
		t.Fatalf("ParsePacket failed: %v", err)
	}
	loc := packet.Location
	if loc == nil {
		t.Fatal("Expected location payload")
	}
	if loc.Latitude != -33.8688 || loc.Longitude != 151.2093 || loc.Accuracy != 12.5 {
		t.Errorf("Unexpected location: %+v", loc)
	}
	if !loc.Time().Equal(time.Unix(1700000000, 0)) {
		t.Errorf("Unexpected time: %v", loc.Time())
	}
}

func TestParsePacketErrors(t *testing.T) {
	valid, _ := BuildTriggerPacket(1, trigger.Button, time.Unix(0, 0))

	badVersion := append([]byte(nil), valid...)
	badVersion[7] = 0x09

	badSource := append([]byte(nil), valid...)
	badSource[HeaderSize] = 0x7F

	lengthMismatch := append(append([]byte(nil), valid...), 0x00)

	unknownType := append([]byte(nil), valid...)
	unknownType[0] = 0x05

	tests := []struct {
		name     string
		data     []byte
		errorMsg string
	}{
		{name: "bad version", data: badVersion, errorMsg: "unsupported version"},
		{name: "bad trigger source", data: badSource, errorMsg: "unknown trigger source"},
		{name: "length mismatch", data: lengthMismatch, errorMsg: "packet length mismatch"},
		{name: "unknown type", data: unknownType, errorMsg: "invalid packet type"},
		{name: "too short", data: []byte{0x01}, errorMsg: "header too short"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePacket(tt.data)
			if err == nil {
				t.Fatal("Expected error but got none")
			}
			if !strings.Contains(err.Error(), tt.errorMsg) {
				t.Errorf("Expected error to contain '%s', got '%s'", tt.errorMsg, err.Error())
			}
		})
	}
}

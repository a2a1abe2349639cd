package protocol

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/skypro1111/sos-alert-service/internal/trigger"
)

const (
	// Packet types
	PacketTypeTrigger  = 0x01
	PacketTypeAudio    = 0x02
	PacketTypeLocation = 0x03

	// Version is the only supported protocol version
	Version = 0x01

	// Trigger sources
	TriggerButton   = 0x01
	TriggerVoice    = 0x02
	TriggerHardware = 0x03

	// Packet structure sizes
	HeaderSize             = 8  // 1 + 2 + 4 + 1 bytes
	TriggerPayloadSize     = 5  // 1 + 4 bytes
	AudioPayloadHeaderSize = 4  // Sequence number (4 bytes)
	LocationPayloadSize    = 28 // 8 + 8 + 8 + 4 bytes
)

// Header represents the 8-byte TLV packet header
// Layout: [PacketType:1][PacketLen:2][DeviceID:4][Version:1]
type Header struct {
	PacketType uint8  // 0x01=Trigger, 0x02=Audio, 0x03=Location
	PacketLen  uint16 // Total packet size (header + payload)
	DeviceID   uint32 // Identifier of the sending daemon
	Version    uint8
}

// TriggerPayload represents the trigger packet payload
// Layout: [Source:1][Timestamp:4]
type TriggerPayload struct {
	Source    uint8
	Timestamp uint32 // Unix timestamp
}

// AudioPayload represents the audio packet payload
// Layout: [Sequence:4][AudioData:N]
type AudioPayload struct {
	Sequence  uint32 // Frame sequence number
	AudioData []byte // PCM-16 little-endian audio data
}

// LocationPayload represents the location packet payload
// Layout: [Latitude:8][Longitude:8][Accuracy:8][Timestamp:4], IEEE-754 doubles
type LocationPayload struct {
	Latitude  float64
	Longitude float64
	Accuracy  float64
	Timestamp uint32
}

// ParsedPacket represents a fully parsed TLV packet
type ParsedPacket struct {
	Header   *Header
	Trigger  *TriggerPayload  // Only set for trigger packets
	Audio    *AudioPayload    // Only set for audio packets
	Location *LocationPayload // Only set for location packets
}

// ParseHeader parses the 8-byte TLV packet header
func ParseHeader(data []byte) (*Header, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("header too short: expected %d bytes, got %d", HeaderSize, len(data))
	}

	return &Header{
		PacketType: data[0],
		PacketLen:  binary.BigEndian.Uint16(data[1:3]),
		DeviceID:   binary.BigEndian.Uint32(data[3:7]),
		Version:    data[7],
	}, nil
}

// ParseTriggerPayload parses the 5-byte trigger payload
func ParseTriggerPayload(data []byte) (*TriggerPayload, error) {
	if len(data) < TriggerPayloadSize {
		return nil, fmt.Errorf("trigger payload too short: expected %d bytes, got %d",
			TriggerPayloadSize, len(data))
	}

	payload := &TriggerPayload{
		Source:    data[0],
		Timestamp: binary.BigEndian.Uint32(data[1:5]),
	}
	if _, err := payload.Type(); err != nil {
		return nil, err
	}
	return payload, nil
}

// ParseAudioPayload parses the audio packet payload (4-byte sequence + audio data)
func ParseAudioPayload(data []byte) (*AudioPayload, error) {
	if len(data) < AudioPayloadHeaderSize {
		return nil, fmt.Errorf("audio payload too short: expected at least %d bytes, got %d",
			AudioPayloadHeaderSize, len(data))
	}

	payload := &AudioPayload{
		Sequence: binary.BigEndian.Uint32(data[0:4]),
	}
	if len(data) > AudioPayloadHeaderSize {
		payload.AudioData = make([]byte, len(data)-AudioPayloadHeaderSize)
		copy(payload.AudioData, data[AudioPayloadHeaderSize:])
	}

	return payload, nil
}

// ParseLocationPayload parses the 28-byte location payload
func ParseLocationPayload(data []byte) (*LocationPayload, error) {
	if len(data) < LocationPayloadSize {
		return nil, fmt.Errorf("location payload too short: expected %d bytes, got %d",
			LocationPayloadSize, len(data))
	}

	return &LocationPayload{
		Latitude:  math.Float64frombits(binary.BigEndian.Uint64(data[0:8])),
		Longitude: math.Float64frombits(binary.BigEndian.Uint64(data[8:16])),
		Accuracy:  math.Float64frombits(binary.BigEndian.Uint64(data[16:24])),
		Timestamp: binary.BigEndian.Uint32(data[24:28]),
	}, nil
}

// ParsePacket parses a complete TLV packet (header + payload)
func ParsePacket(data []byte) (*ParsedPacket, error) {
	header, err := ParseHeader(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse header: %w", err)
	}

	if int(header.PacketLen) != len(data) {
		return nil, fmt.Errorf("packet length mismatch: header says %d bytes, got %d bytes",
			header.PacketLen, len(data))
	}

	if err := ValidateHeader(header); err != nil {
		return nil, fmt.Errorf("invalid header: %w", err)
	}

	packet := &ParsedPacket{Header: header}
	payloadData := data[HeaderSize:]

	switch header.PacketType {
	case PacketTypeTrigger:
		payload, err := ParseTriggerPayload(payloadData)
		if err != nil {
			return nil, fmt.Errorf("failed to parse trigger payload: %w", err)
		}
		packet.Trigger = payload

	case PacketTypeAudio:
		payload, err := ParseAudioPayload(payloadData)
		if err != nil {
			return nil, fmt.Errorf("failed to parse audio payload: %w", err)
		}
		packet.Audio = payload

	case PacketTypeLocation:
		payload, err := ParseLocationPayload(payloadData)
		if err != nil {
			return nil, fmt.Errorf("failed to parse location payload: %w", err)
		}
		packet.Location = payload

	default:
		return nil, fmt.Errorf("unknown packet type: 0x%02x", header.PacketType)
	}

	return packet, nil
}

// ValidateHeader validates the packet header fields
func ValidateHeader(header *Header) error {
	if !IsValidPacketType(header.PacketType) {
		return fmt.Errorf("invalid packet type: 0x%02x", header.PacketType)
	}

	if header.Version != Version {
		return fmt.Errorf("unsupported version: 0x%02x", header.Version)
	}

	if header.PacketLen < HeaderSize {
		return fmt.Errorf("packet length too small: %d (minimum %d)", header.PacketLen, HeaderSize)
	}

	payloadSize := int(header.PacketLen) - HeaderSize
	switch header.PacketType {
	case PacketTypeTrigger:
		if payloadSize != TriggerPayloadSize {
			return fmt.Errorf("trigger packet payload size mismatch: expected %d, got %d",
				TriggerPayloadSize, payloadSize)
		}
	case PacketTypeAudio:
		if payloadSize < AudioPayloadHeaderSize {
			return fmt.Errorf("audio packet payload too small: expected at least %d, got %d",
				AudioPayloadHeaderSize, payloadSize)
		}
	case PacketTypeLocation:
		if payloadSize != LocationPayloadSize {
			return fmt.Errorf("location packet payload size mismatch: expected %d, got %d",
				LocationPayloadSize, payloadSize)
		}
	}

	return nil
}

// IsValidPacketType checks if the packet type is valid
func IsValidPacketType(ptype uint8) bool {
	return ptype == PacketTypeTrigger || ptype == PacketTypeAudio || ptype == PacketTypeLocation
}

// Type maps the wire source code to a trigger type
func (p *TriggerPayload) Type() (trigger.Type, error) {
	switch p.Source {
	case TriggerButton:
		return trigger.Button, nil
	case TriggerVoice:
		return trigger.Voice, nil
	case TriggerHardware:
		return trigger.Hardware, nil
	default:
		return "", fmt.Errorf("unknown trigger source: 0x%02x", p.Source)
	}
}

// Time returns the payload timestamp, or zero when unset
func (p *LocationPayload) Time() time.Time {
	if p.Timestamp == 0 {
		return time.Time{}
	}
	return time.Unix(int64(p.Timestamp), 0)
}

// BuildTriggerPacket encodes a trigger packet
func BuildTriggerPacket(deviceID uint32, t trigger.Type, ts time.Time) ([]byte, error) {
	var source uint8
	switch t {
	case trigger.Button:
		source = TriggerButton
	case trigger.Voice:
		source = TriggerVoice
	case trigger.Hardware:
		source = TriggerHardware
	default:
		return nil, fmt.Errorf("unknown trigger type %q", t)
	}

	packet := make([]byte, HeaderSize+TriggerPayloadSize)
	putHeader(packet, PacketTypeTrigger, deviceID)
	packet[HeaderSize] = source
	binary.BigEndian.PutUint32(packet[HeaderSize+1:], uint32(ts.Unix()))
	return packet, nil
}

// BuildAudioPacket encodes an audio frame
func BuildAudioPacket(deviceID, sequence uint32, pcm []byte) ([]byte, error) {
	size := HeaderSize + AudioPayloadHeaderSize + len(pcm)
	if size > math.MaxUint16 {
		return nil, fmt.Errorf("audio frame too large: %d bytes", len(pcm))
	}

	packet := make([]byte, size)
	putHeader(packet, PacketTypeAudio, deviceID)
	binary.BigEndian.PutUint32(packet[HeaderSize:], sequence)
	copy(packet[HeaderSize+AudioPayloadHeaderSize:], pcm)
	return packet, nil
}

// BuildLocationPacket encodes a location fix
func BuildLocationPacket(deviceID uint32, payload LocationPayload) []byte {
	packet := make([]byte, HeaderSize+LocationPayloadSize)
	putHeader(packet, PacketTypeLocation, deviceID)
	body := packet[HeaderSize:]
	binary.BigEndian.PutUint64(body[0:8], math.Float64bits(payload.Latitude))
	binary.BigEndian.PutUint64(body[8:16], math.Float64bits(payload.Longitude))
	binary.BigEndian.PutUint64(body[16:24], math.Float64bits(payload.Accuracy))
	binary.BigEndian.PutUint32(body[24:28], payload.Timestamp)
	return packet
}

func putHeader(packet []byte, packetType uint8, deviceID uint32) {
	packet[0] = packetType
	binary.BigEndian.PutUint16(packet[1:3], uint16(len(packet)))
	binary.BigEndian.PutUint32(packet[3:7], deviceID)
	packet[7] = Version
}

// String returns a human-readable representation of the header
func (h *Header) String() string {
	var packetType string

	switch h.PacketType {
	case PacketTypeTrigger:
		packetType = "Trigger"
	case PacketTypeAudio:
		packetType = "Audio"
	case PacketTypeLocation:
		packetType = "Location"
	default:
		packetType = fmt.Sprintf("Unknown(0x%02x)", h.PacketType)
	}

	return fmt.Sprintf("Header{Type:%s, Len:%d, DeviceID:%d, Version:%d}",
		packetType, h.PacketLen, h.DeviceID, h.Version)
}

// String returns a human-readable representation of the audio payload
func (a *AudioPayload) String() string {
	return fmt.Sprintf("AudioPayload{Sequence:%d, AudioDataLen:%d}", a.Sequence, len(a.AudioData))
}

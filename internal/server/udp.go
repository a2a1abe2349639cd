package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/skypro1111/sos-alert-service/internal/config"
	"github.com/skypro1111/sos-alert-service/internal/location"
	"github.com/skypro1111/sos-alert-service/internal/metrics"
	"github.com/skypro1111/sos-alert-service/internal/protocol"
	"github.com/skypro1111/sos-alert-service/internal/trigger"
)

// TriggerSink receives triggers from button and wake-word daemons
type TriggerSink interface {
	Trigger(t trigger.Type, hint string) error
}

// AudioSink receives PCM frames from the native audio layer
type AudioSink interface {
	Feed(sequence uint32, pcm []byte) error
}

// LocationSink receives position fixes
type LocationSink interface {
	Update(loc location.Location) error
}

// UDPServer handles datagrams from the device daemons
type UDPServer struct {
	conn      *net.UDPConn
	config    *config.UDPConfig
	logger    *slog.Logger
	metrics   *metrics.Metrics
	triggers  TriggerSink
	audio     AudioSink
	locations LocationSink

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	packetChan chan *incomingPacket

	packetsReceived  uint64
	packetsProcessed uint64
	parseErrors      uint64
	triggersAccepted uint64
	framesAccepted   uint64
	mu               sync.RWMutex
}

// incomingPacket represents a received UDP packet with metadata
type incomingPacket struct {
	data       []byte
	remoteAddr *net.UDPAddr
	timestamp  time.Time
}

// NewUDPServer creates a new UDP server instance
func NewUDPServer(cfg *config.UDPConfig, logger *slog.Logger, triggers TriggerSink, audio AudioSink,
	locations LocationSink, m *metrics.Metrics) *UDPServer {
	ctx, cancel := context.WithCancel(context.Background())

	return &UDPServer{
		config:     cfg,
		logger:     logger,
		metrics:    m,
		triggers:   triggers,
		audio:      audio,
		locations:  locations,
		ctx:        ctx,
		cancel:     cancel,
		packetChan: make(chan *incomingPacket, 1000),
	}
}

// Start begins listening for UDP packets
func (s *UDPServer) Start() error {
	addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", s.config.BindAddress, s.config.Port))
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP: %w", err)
	}

	s.conn = conn

	if err := s.conn.SetReadBuffer(s.config.BufferSize); err != nil {
		s.logger.Warn("Failed to set UDP read buffer size",
			slog.Int("buffer_size", s.config.BufferSize),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("UDP server started",
		slog.String("address", conn.LocalAddr().String()),
		slog.Int("buffer_size", s.config.BufferSize),
	)

	// audio frames may be handled out of order, the microphone buffer
	// reorders them by sequence
	numWorkers := 4
	for i := 0; i < numWorkers; i++ {
		s.wg.Add(1)
		go s.packetProcessor(i)
	}

	s.wg.Add(1)
	go s.receiveLoop()

	return nil
}

// Addr returns the bound address, or nil before Start
func (s *UDPServer) Addr() net.Addr {
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// Stop gracefully stops the UDP server
func (s *UDPServer) Stop() error {
	s.logger.Info("Stopping UDP server...")

	s.cancel()

	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			s.logger.Warn("Error closing UDP connection", slog.String("error", err.Error()))
		}
	}

	// the receive loop is the only sender
	s.wg.Wait()

	stats := s.GetStatistics()
	s.logger.Info("UDP server stopped",
		slog.Uint64("packets_received", stats.PacketsReceived),
		slog.Uint64("packets_processed", stats.PacketsProcessed),
		slog.Uint64("parse_errors", stats.ParseErrors),
	)

	return nil
}

// receiveLoop is the main packet receiving loop
func (s *UDPServer) receiveLoop() {
	defer s.wg.Done()
	defer close(s.packetChan)

	buffer := make([]byte, s.config.BufferSize)

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		if err := s.conn.SetReadDeadline(time.Now().Add(1 * time.Second)); err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
			}
			s.logger.Error("Failed to set read deadline", slog.String("error", err.Error()))
			continue
		}

		n, remoteAddr, err := s.conn.ReadFromUDP(buffer)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}

			select {
			case <-s.ctx.Done():
				return
			default:
				s.logger.Error("Failed to read UDP packet", slog.String("error", err.Error()))
				continue
			}
		}

		s.mu.Lock()
		s.packetsReceived++
		s.mu.Unlock()
		s.metrics.RecordPacketReceived()

		// buffer is reused
		packetData := make([]byte, n)
		copy(packetData, buffer[:n])

		packet := &incomingPacket{
			data:       packetData,
			remoteAddr: remoteAddr,
			timestamp:  time.Now(),
		}

		select {
		case s.packetChan <- packet:
			s.metrics.SetQueueSize(len(s.packetChan))
		default:
			s.logger.Warn("Packet processing queue full, dropping packet",
				slog.String("remote_addr", remoteAddr.String()),
				slog.Int("packet_size", n),
			)
		}
	}
}

// packetProcessor processes packets from the packet channel
func (s *UDPServer) packetProcessor(workerID int) {
	defer s.wg.Done()

	s.logger.Debug("Packet processor started", slog.Int("worker_id", workerID))

	for packet := range s.packetChan {
		s.handlePacket(packet, workerID)
	}

	s.logger.Debug("Packet processor stopped", slog.Int("worker_id", workerID))
}

// handlePacket processes a single incoming packet
func (s *UDPServer) handlePacket(packet *incomingPacket, workerID int) {
	parsedPacket, err := protocol.ParsePacket(packet.data)
	if err != nil {
		s.mu.Lock()
		s.parseErrors++
		s.mu.Unlock()
		s.metrics.RecordParseError()

		s.logger.Error("Failed to parse packet",
			slog.String("remote_addr", packet.remoteAddr.String()),
			slog.Int("packet_size", len(packet.data)),
			slog.String("error", err.Error()),
			slog.Int("worker_id", workerID),
		)
		return
	}

	s.mu.Lock()
	s.packetsProcessed++
	s.mu.Unlock()
	s.metrics.RecordPacketProcessed()

	switch parsedPacket.Header.PacketType {
	case protocol.PacketTypeTrigger:
		s.processTriggerPacket(parsedPacket.Header, parsedPacket.Trigger, workerID)
	case protocol.PacketTypeAudio:
		s.processAudioPacket(parsedPacket.Header, parsedPacket.Audio, workerID)
	case protocol.PacketTypeLocation:
		s.processLocationPacket(parsedPacket.Header, parsedPacket.Location, workerID)
	default:
		s.logger.Error("Unknown packet type",
			slog.Uint64("device_id", uint64(parsedPacket.Header.DeviceID)),
			slog.Int("packet_type", int(parsedPacket.Header.PacketType)),
			slog.Int("worker_id", workerID),
		)
	}
}

// processTriggerPacket forwards a trigger to the alert machine
func (s *UDPServer) processTriggerPacket(header *protocol.Header, payload *protocol.TriggerPayload, workerID int) {
	t, err := payload.Type()
	if err != nil {
		s.logger.Warn("Ignoring trigger packet",
			slog.Uint64("device_id", uint64(header.DeviceID)),
			slog.String("error", err.Error()),
		)
		return
	}

	if err := s.triggers.Trigger(t, ""); err != nil {
		s.logger.Error("Failed to submit trigger",
			slog.Uint64("device_id", uint64(header.DeviceID)),
			slog.String("trigger", string(t)),
			slog.String("error", err.Error()),
		)
		return
	}

	s.mu.Lock()
	s.triggersAccepted++
	s.mu.Unlock()

	s.logger.Info("Trigger packet processed",
		slog.Uint64("device_id", uint64(header.DeviceID)),
		slog.String("trigger", string(t)),
		slog.Int("worker_id", workerID),
	)
}

// processAudioPacket hands a PCM frame to the microphone
func (s *UDPServer) processAudioPacket(header *protocol.Header, payload *protocol.AudioPayload, workerID int) {
	if err := s.audio.Feed(payload.Sequence, payload.AudioData); err != nil {
		s.logger.Debug("Audio frame not accepted",
			slog.Uint64("device_id", uint64(header.DeviceID)),
			slog.Uint64("sequence", uint64(payload.Sequence)),
			slog.String("error", err.Error()),
			slog.Int("worker_id", workerID),
		)
		return
	}

	s.mu.Lock()
	s.framesAccepted++
	s.mu.Unlock()
}

// processLocationPacket records a position fix
func (s *UDPServer) processLocationPacket(header *protocol.Header, payload *protocol.LocationPayload, workerID int) {
	loc := location.Location{
		Latitude:  payload.Latitude,
		Longitude: payload.Longitude,
		Accuracy:  payload.Accuracy,
		Timestamp: payload.Time(),
	}

	if err := s.locations.Update(loc); err != nil {
		s.logger.Warn("Rejected location packet",
			slog.Uint64("device_id", uint64(header.DeviceID)),
			slog.String("error", err.Error()),
			slog.Int("worker_id", workerID),
		)
		return
	}

	s.logger.Debug("Location packet processed",
		slog.Uint64("device_id", uint64(header.DeviceID)),
		slog.Float64("accuracy", payload.Accuracy),
	)
}

// GetStatistics returns current server statistics
func (s *UDPServer) GetStatistics() ServerStatistics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return ServerStatistics{
		PacketsReceived:  s.packetsReceived,
		PacketsProcessed: s.packetsProcessed,
		ParseErrors:      s.parseErrors,
		TriggersAccepted: s.triggersAccepted,
		FramesAccepted:   s.framesAccepted,
		QueueSize:        uint64(len(s.packetChan)),
		QueueCapacity:    uint64(cap(s.packetChan)),
	}
}

// ServerStatistics represents server performance metrics
type ServerStatistics struct {
	PacketsReceived  uint64 `json:"packets_received"`
	PacketsProcessed uint64 `json:"packets_processed"`
	ParseErrors      uint64 `json:"parse_errors"`
	TriggersAccepted uint64 `json:"triggers_accepted"`
	FramesAccepted   uint64 `json:"frames_accepted"`
	QueueSize        uint64 `json:"queue_size"`
	QueueCapacity    uint64 `json:"queue_capacity"`
}

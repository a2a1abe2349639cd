package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/skypro1111/sos-alert-service/internal/metrics"
)

// GatewayClient posts alerts to a notification gateway that handles fan-out
type GatewayClient struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

type gatewayRequest struct {
	AlertID   string    `json:"alertId"`
	Message   string    `json:"message"`
	Latitude  *float64  `json:"latitude,omitempty"`
	Longitude *float64  `json:"longitude,omitempty"`
	Contacts  []Contact `json:"contacts"`
}

// NewGatewayClient creates a gateway client
func NewGatewayClient(cfg Config, logger *slog.Logger, m *metrics.Metrics) (*GatewayClient, error) {
	if cfg.GatewayURL == "" {
		return nil, fmt.Errorf("gateway url cannot be empty")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &GatewayClient{
		endpoint:   cfg.GatewayURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		metrics:    m,
	}, nil
}

// Send delivers msg to contacts through the gateway
func (g *GatewayClient) Send(ctx context.Context, contacts []Contact, msg Message) (*Result, error) {
	req := gatewayRequest{
		AlertID:  msg.AlertID,
		Message:  msg.Body,
		Contacts: make([]Contact, 0, len(contacts)),
	}
	for _, c := range contacts {
		req.Contacts = append(req.Contacts, Contact{Name: c.Name, Phone: NormalizePhone(c.Phone)})
	}
	if msg.Location != nil {
		lat, lng := msg.Location.Latitude, msg.Location.Longitude
		req.Latitude, req.Longitude = &lat, &lng
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode gateway request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read gateway response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("gateway HTTP error %d: %s", resp.StatusCode, string(respBody))
	}

	var res Result
	if err := json.Unmarshal(respBody, &res); err != nil {
		return nil, fmt.Errorf("failed to parse gateway response: %w", err)
	}
	if res.TotalContacts == 0 {
		res.TotalContacts = len(contacts)
	}

	g.logger.Info("Notification sent via gateway",
		slog.String("alert_id", msg.AlertID),
		slog.Int("success", res.SuccessCount),
		slog.Int("total", res.TotalContacts),
	)
	return finish(&res, g.metrics)
}

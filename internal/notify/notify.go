package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/skypro1111/sos-alert-service/internal/location"
	"github.com/skypro1111/sos-alert-service/internal/metrics"
)

// ErrNotDelivered is returned when no contact could be reached
var ErrNotDelivered = errors.New("notification not delivered to any contact")

// Contact is an emergency contact
type Contact struct {
	Name  string `json:"name" yaml:"name"`
	Phone string `json:"phone" yaml:"phone"`
}

// Message is one alert notification addressed to every contact
type Message struct {
	AlertID  string
	Body     string
	Location *location.Location
}

// ContactResult is the delivery outcome for one contact
type ContactResult struct {
	Contact string `json:"contact"`
	Success bool   `json:"success"`
	SID     string `json:"sid,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Result summarises a delivery
type Result struct {
	TotalContacts int             `json:"totalContacts"`
	SuccessCount  int             `json:"successCount"`
	Results       []ContactResult `json:"results,omitempty"`
}

// Sender delivers a message to a set of contacts
type Sender interface {
	Send(ctx context.Context, contacts []Contact, msg Message) (*Result, error)
}

// Config selects and configures a transport
type Config struct {
	Provider string // "gateway" or "twilio"
	Timeout  time.Duration

	GatewayURL string
	APIKey     string

	TwilioBaseURL    string
	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFrom       string
}

// New builds the Sender named by cfg.Provider
func New(cfg Config, logger *slog.Logger, m *metrics.Metrics) (Sender, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "gateway":
		return NewGatewayClient(cfg, logger, m)
	case "twilio":
		return NewTwilioClient(cfg, logger, m)
	default:
		return nil, fmt.Errorf("unknown notify provider %q", cfg.Provider)
	}
}

// NormalizePhone strips whitespace and assumes a +1 country code when none is
// given
func NormalizePhone(phone string) string {
	p := strings.Join(strings.Fields(phone), "")
	if p != "" && !strings.HasPrefix(p, "+") {
		p = "+1" + p
	}
	return p
}

func finish(res *Result, m *metrics.Metrics) (*Result, error) {
	m.RecordNotifications(res.SuccessCount, res.TotalContacts)
	if res.TotalContacts > 0 && res.SuccessCount == 0 {
		return res, ErrNotDelivered
	}
	return res, nil
}

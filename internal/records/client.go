package records

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/skypro1111/sos-alert-service/internal/location"
)

// ErrConflict is returned when an alert with the same id already exists
var ErrConflict = errors.New("alert record already exists")

// Remote alert statuses
const (
	StatusActive        = "active"
	StatusSyncedOffline = "synced_offline"
	StatusNotified      = "notified"
	StatusResolved      = "resolved"
)

// Alert is the remote alert record
type Alert struct {
	ID          string     `json:"id"`
	UserName    string     `json:"user_name,omitempty"`
	TriggerType string     `json:"trigger_type"`
	Status      string     `json:"status"`
	TriggeredAt time.Time  `json:"triggered_at"`
	Latitude    *float64   `json:"latitude,omitempty"`
	Longitude   *float64   `json:"longitude,omitempty"`
	Address     string     `json:"address,omitempty"`
	Notes       string     `json:"notes,omitempty"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
}

// SetLocation copies coordinates from loc, if any
func (a *Alert) SetLocation(loc *location.Location) {
	if loc == nil {
		return
	}
	lat, lng := loc.Latitude, loc.Longitude
	a.Latitude, a.Longitude = &lat, &lng
}

// Update is a partial update; nil fields are left unchanged
type Update struct {
	Status     *string    `json:"status,omitempty"`
	Notes      *string    `json:"notes,omitempty"`
	AudioURL   *string    `json:"audio_url,omitempty"`
	Address    *string    `json:"address,omitempty"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// Notification is a notification log entry for one contact
type Notification struct {
	ContactName  string     `json:"contact_name"`
	Phone        string     `json:"phone"`
	Type         string     `json:"notification_type"`
	Status       string     `json:"status"`
	ErrorMessage string     `json:"error_message,omitempty"`
	SentAt       *time.Time `json:"sent_at,omitempty"`
}

type locationRow struct {
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Accuracy   float64   `json:"accuracy"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Config contains record store client configuration
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client talks to the record store
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a record store client
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url cannot be empty")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}, nil
}

// CreateAlert inserts a new alert. ErrConflict means the id is already taken
func (c *Client) CreateAlert(ctx context.Context, alert Alert) error {
	if alert.ID == "" {
		return fmt.Errorf("alert id cannot be empty")
	}
	err := c.do(ctx, http.MethodPost, "/alerts", alert)
	if err == nil {
		c.logger.Debug("Alert record created",
			slog.String("alert_id", alert.ID),
			slog.String("status", alert.Status),
		)
	}
	return err
}

// UpdateAlert applies a partial update to an alert
func (c *Client) UpdateAlert(ctx context.Context, id string, update Update) error {
	return c.do(ctx, http.MethodPatch, "/alerts/"+url.PathEscape(id), update)
}

// AddLocation records a location snapshot for an alert
func (c *Client) AddLocation(ctx context.Context, id string, loc location.Location) error {
	row := locationRow{
		Latitude:   loc.Latitude,
		Longitude:  loc.Longitude,
		Accuracy:   loc.Accuracy,
		RecordedAt: loc.Timestamp,
	}
	return c.do(ctx, http.MethodPost, "/alerts/"+url.PathEscape(id)+"/locations", row)
}

// AddNotifications records notification log entries for an alert
func (c *Client) AddNotifications(ctx context.Context, id string, entries []Notification) error {
	if len(entries) == 0 {
		return nil
	}
	return c.do(ctx, http.MethodPost, "/alerts/"+url.PathEscape(id)+"/notifications", entries)
}

func (c *Client) do(ctx context.Context, method, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		return ErrConflict
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%s %s: HTTP error %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/skypro1111/sos-alert-service/internal/metrics"
)

const defaultTwilioBaseURL = "https://api.twilio.com"

// TwilioClient sends one SMS per contact through the Twilio Messages API
type TwilioClient struct {
	baseURL    string
	accountSID string
	authToken  string
	from       string
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

type twilioResponse struct {
	SID     string `json:"sid"`
	Message string `json:"message"`
}

// NewTwilioClient creates a Twilio client
func NewTwilioClient(cfg Config, logger *slog.Logger, m *metrics.Metrics) (*TwilioClient, error) {
	if cfg.TwilioAccountSID == "" || cfg.TwilioAuthToken == "" || cfg.TwilioFrom == "" {
		return nil, fmt.Errorf("twilio credentials not configured")
	}
	base := cfg.TwilioBaseURL
	if base == "" {
		base = defaultTwilioBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &TwilioClient{
		baseURL:    strings.TrimRight(base, "/"),
		accountSID: cfg.TwilioAccountSID,
		authToken:  cfg.TwilioAuthToken,
		from:       cfg.TwilioFrom,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		metrics:    m,
	}, nil
}

// Send delivers msg to each contact in turn. One contact failing does not stop
// the others
func (t *TwilioClient) Send(ctx context.Context, contacts []Contact, msg Message) (*Result, error) {
	res := &Result{TotalContacts: len(contacts)}

	for _, c := range contacts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sid, err := t.sendOne(ctx, NormalizePhone(c.Phone), msg.Body)
		if err != nil {
			t.logger.Warn("SMS delivery failed",
				slog.String("alert_id", msg.AlertID),
				slog.String("contact", c.Name),
				slog.String("error", err.Error()),
			)
			res.Results = append(res.Results, ContactResult{Contact: c.Name, Error: err.Error()})
			continue
		}
		res.SuccessCount++
		res.Results = append(res.Results, ContactResult{Contact: c.Name, Success: true, SID: sid})
	}

	t.logger.Info("SMS sending complete",
		slog.String("alert_id", msg.AlertID),
		slog.Int("success", res.SuccessCount),
		slog.Int("total", res.TotalContacts),
	)
	return finish(res, t.metrics)
}

func (t *TwilioClient) sendOne(ctx context.Context, to, body string) (string, error) {
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", t.baseURL, url.PathEscape(t.accountSID))
	form := url.Values{
		"To":   {to},
		"From": {t.from},
		"Body": {body},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.SetBasicAuth(t.accountSID, t.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("twilio request failed: %w", err)
	}
	defer resp.Body.Close()

	var tr twilioResponse
	_ = json.NewDecoder(resp.Body).Decode(&tr)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if tr.Message == "" {
			tr.Message = "Twilio error"
		}
		return "", fmt.Errorf("twilio HTTP error %d: %s", resp.StatusCode, tr.Message)
	}
	return tr.SID, nil
}

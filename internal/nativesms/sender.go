package nativesms

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/skypro1111/sos-alert-service/internal/notify"
)

// Placeholders substituted in Config.Args
const (
	PhonePlaceholder   = "{phone}"
	MessagePlaceholder = "{message}"
)

// Config describes the command used to send one SMS
type Config struct {
	Command string
	Args    []string
	Timeout time.Duration
}

// DefaultConfig targets termux-sms-send on Android
func DefaultConfig() Config {
	return Config{
		Command: "termux-sms-send",
		Args:    []string{"-n", PhonePlaceholder, MessagePlaceholder},
		Timeout: 20 * time.Second,
	}
}

// PhoneResult is the outcome for one recipient
type PhoneResult struct {
	Phone   string `json:"phone"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Result summarises a multi-recipient send
type Result struct {
	SuccessCount int           `json:"success_count"`
	FailedCount  int           `json:"failed_count"`
	Results      []PhoneResult `json:"results"`
}

// runFunc executes a command and returns its combined output
type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// Sender runs the configured SMS command
type Sender struct {
	config    Config
	logger    *slog.Logger
	run       runFunc
	lookPath  func(string) (string, error)
	available bool
}

// NewSender creates a sender. Call Probe before use
func NewSender(cfg Config, logger *slog.Logger) *Sender {
	if cfg.Command == "" {
		cfg = DefaultConfig()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	return &Sender{
		config: cfg,
		logger: logger,
		run: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).CombinedOutput()
		},
		lookPath: exec.LookPath,
	}
}

// Probe checks whether the SMS command is installed and caches the answer
func (s *Sender) Probe() bool {
	path, err := s.lookPath(s.config.Command)
	s.available = err == nil
	if s.available {
		s.logger.Info("Native SMS available", slog.String("command", path))
	} else {
		s.logger.Warn("Native SMS unavailable",
			slog.String("command", s.config.Command),
			slog.String("error", err.Error()),
		)
	}
	return s.available
}

// Available reports the result of the last Probe
func (s *Sender) Available() bool {
	return s.available
}

// SendMultiple sends message to every contact, one command per recipient
func (s *Sender) SendMultiple(ctx context.Context, contacts []notify.Contact, message string) (*Result, error) {
	if !s.available {
		return nil, fmt.Errorf("native SMS not available")
	}
	if len(contacts) == 0 {
		return nil, fmt.Errorf("no emergency contacts configured")
	}

	res := &Result{Results: make([]PhoneResult, 0, len(contacts))}
	for _, c := range contacts {
		phone := strings.Join(strings.Fields(c.Phone), "")
		if err := s.sendOne(ctx, phone, message); err != nil {
			s.logger.Warn("Native SMS failed",
				slog.String("contact", c.Name),
				slog.String("error", err.Error()),
			)
			res.FailedCount++
			res.Results = append(res.Results, PhoneResult{Phone: phone, Error: err.Error()})
			continue
		}
		res.SuccessCount++
		res.Results = append(res.Results, PhoneResult{Phone: phone, Success: true})
	}

	s.logger.Info("Native SMS sending complete",
		slog.Int("success", res.SuccessCount),
		slog.Int("failed", res.FailedCount),
	)
	return res, nil
}

func (s *Sender) sendOne(ctx context.Context, phone, message string) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	args := make([]string, len(s.config.Args))
	for i, a := range s.config.Args {
		a = strings.ReplaceAll(a, PhonePlaceholder, phone)
		args[i] = strings.ReplaceAll(a, MessagePlaceholder, message)
	}

	out, err := s.run(ctx, s.config.Command, args...)
	if err != nil {
		if msg := strings.TrimSpace(string(out)); msg != "" {
			return fmt.Errorf("%s: %w: %s", s.config.Command, err, msg)
		}
		return fmt.Errorf("%s: %w", s.config.Command, err)
	}
	return nil
}

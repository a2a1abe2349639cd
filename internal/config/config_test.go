package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	c := Config{
		HTTP: HTTPConfig{Enabled: true},
		UDP:  UDPConfig{Enabled: true},
		Connectivity: ConnectivityConfig{
			ProbeURL: "https://api.example.com/health",
		},
		Analysis: AnalysisConfig{
			Endpoint:   "https://api.example.com/analyze",
			APIKey:     "analysis-key",
			MaxRetries: 3,
		},
		Notify: NotifyConfig{
			GatewayURL: "https://api.example.com/notify",
			APIKey:     "notify-key",
		},
		Records: RecordsConfig{
			BaseURL: "https://api.example.com",
			APIKey:  "records-key",
		},
		Contacts: []ContactConfig{{Name: "Sam", Phone: "+15550100"}},
	}
	c.applyDefaults()
	return c
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name        string
		modify      func(c *Config)
		expectError bool
		errorMsg    string
	}{
		{
			name:   "valid configuration",
			modify: func(c *Config) {},
		},
		{
			name:        "invalid udp port",
			modify:      func(c *Config) { c.UDP.Port = 70000 },
			expectError: true,
			errorMsg:    "port must be between 1 and 65535",
		},
		{
			name:   "disabled udp is not checked",
			modify: func(c *Config) { c.UDP.Enabled = false; c.UDP.Port = 70000 },
		},
		{
			name:        "unsupported sample rate",
			modify:      func(c *Config) { c.UDP.SampleRate = 22050 },
			expectError: true,
			errorMsg:    "sample_rate must be one of",
		},
		{
			name:        "negative retry interval",
			modify:      func(c *Config) { c.Queue.RetryInterval = -5 },
			expectError: true,
			errorMsg:    "retry_interval must be at least 1 second",
		},
		{
			name:        "negative countdown",
			modify:      func(c *Config) { c.Countdown.Duration = -1 },
			expectError: true,
			errorMsg:    "countdown config",
		},
		{
			name:        "silence threshold above one",
			modify:      func(c *Config) { c.Recording.SilenceThreshold = 1.5 },
			expectError: true,
			errorMsg:    "silence_threshold must be between 0 and 1",
		},
		{
			name:        "sample interval longer than chunk interval",
			modify:      func(c *Config) { c.Recording.SampleInterval = 2 },
			expectError: true,
			errorMsg:    "sample_interval",
		},
		{
			name:        "probe mode without url",
			modify:      func(c *Config) { c.Connectivity.ProbeURL = "" },
			expectError: true,
			errorMsg:    "probe_url cannot be empty",
		},
		{
			name:   "offline mode needs no url",
			modify: func(c *Config) { c.Connectivity.Mode = "offline"; c.Connectivity.ProbeURL = "" },
		},
		{
			name:        "unknown connectivity mode",
			modify:      func(c *Config) { c.Connectivity.Mode = "maybe" },
			expectError: true,
			errorMsg:    "mode must be one of",
		},
		{
			name:        "missing analysis endpoint",
			modify:      func(c *Config) { c.Analysis.Endpoint = "" },
			expectError: true,
			errorMsg:    "endpoint cannot be empty",
		},
		{
			name:        "backoff above cap",
			modify:      func(c *Config) { c.Analysis.Backoff = 60 },
			expectError: true,
			errorMsg:    "max_backoff",
		},
		{
			name:        "twilio without credentials",
			modify:      func(c *Config) { c.Notify.Provider = "twilio" },
			expectError: true,
			errorMsg:    "account_sid and auth_token",
		},
		{
			name: "twilio with credentials",
			modify: func(c *Config) {
				c.Notify.Provider = "twilio"
				c.Notify.Twilio = TwilioConfig{AccountSID: "AC1", AuthToken: "tok", From: "+15550199"}
			},
		},
		{
			name:        "unknown notify provider",
			modify:      func(c *Config) { c.Notify.Provider = "pigeon" },
			expectError: true,
			errorMsg:    "provider must be",
		},
		{
			name:        "missing records url",
			modify:      func(c *Config) { c.Records.BaseURL = "" },
			expectError: true,
			errorMsg:    "records config",
		},
		{
			name:        "geocode enabled without url",
			modify:      func(c *Config) { c.Geocode.Enabled = true },
			expectError: true,
			errorMsg:    "geocode config",
		},
		{
			name: "fallback location out of range",
			modify: func(c *Config) {
				c.Location.Fallback = &FallbackPoint{Latitude: 91}
			},
			expectError: true,
			errorMsg:    "fallback coordinates out of range",
		},
		{
			name:        "contact without phone",
			modify:      func(c *Config) { c.Contacts = append(c.Contacts, ContactConfig{Name: "Kim"}) },
			expectError: true,
			errorMsg:    "contacts[1]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := validConfig()
			tt.modify(&config)
			err := config.Validate()
			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got none")
				} else if tt.errorMsg != "" && !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error to contain '%s', got '%s'", tt.errorMsg, err.Error())
				}
			} else {
				if err != nil {
					t.Errorf("Expected no error but got: %v", err)
				}
			}
		})
	}
}

func TestConfigLoad(t *testing.T) {
	tempDir := t.TempDir()

	tests := []struct {
		name        string
		configYAML  string
		expectError bool
		errorMsg    string
	}{
		{
			name: "valid config file",
			configYAML: `
service:
  user_name: "Alex"
http:
  enabled: true
  port: 8081
connectivity:
  probe_url: "https://api.example.com/health"
analysis:
  endpoint: "https://api.example.com/analyze"
  api_key: "test-key"
  max_retries: 3
notify:
  provider: gateway
  gateway_url: "https://api.example.com/notify"
records:
  base_url: "https://api.example.com"
contacts:
  - name: Sam
    phone: "+15550100"
`,
		},
		{
			name: "invalid YAML syntax",
			configYAML: `
udp:
  port: 4444
  buffer_size: invalid_number
`,
			expectError: true,
			errorMsg:    "failed to parse",
		},
		{
			name: "missing required fields",
			configYAML: `
connectivity:
  mode: offline
`,
			expectError: true,
			errorMsg:    "endpoint cannot be empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := filepath.Join(tempDir, "config.yaml")
			err := os.WriteFile(configPath, []byte(tt.configYAML), 0644)
			if err != nil {
				t.Fatalf("Failed to create test config file: %v", err)
			}

			config, err := Load(configPath)

			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got none")
				} else if tt.errorMsg != "" && !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error to contain '%s', got '%s'", tt.errorMsg, err.Error())
				}
			} else {
				if err != nil {
					t.Errorf("Expected no error but got: %v", err)
				} else if config == nil {
					t.Errorf("Expected config to be loaded but got nil")
				}
			}
		})
	}
}

func TestConfigLoadAppliesDefaults(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
connectivity:
  mode: online
analysis:
  endpoint: "https://api.example.com/analyze"
notify:
  gateway_url: "https://api.example.com/notify"
records:
  base_url: "https://api.example.com"
recording:
  silence_timeout: 20
`
	if err := os.WriteFile(configPath, []byte(yaml), 0644); err != nil {
		t.Fatalf("Failed to create test config file: %v", err)
	}

	config, err := Load(configPath)
	if err != nil {
		t.Fatalf("Expected no error but got: %v", err)
	}

	if config.Countdown.GetCountdownDuration() != 5*time.Second {
		t.Errorf("Expected 5s countdown, got %v", config.Countdown.GetCountdownDuration())
	}
	if config.Recording.GetMaxDuration() != 180*time.Second {
		t.Errorf("Expected 180s max duration, got %v", config.Recording.GetMaxDuration())
	}
	if config.Recording.GetSilenceTimeout() != 20*time.Second {
		t.Errorf("Expected explicit 20s silence timeout to be kept, got %v", config.Recording.GetSilenceTimeout())
	}
	if config.Recording.SilenceThreshold != 0.03 {
		t.Errorf("Expected 0.03 silence threshold, got %f", config.Recording.SilenceThreshold)
	}
	if config.Notify.Provider != "gateway" {
		t.Errorf("Expected gateway provider, got %s", config.Notify.Provider)
	}
	if config.Queue.Path == "" {
		t.Errorf("Expected a default queue path")
	}
	if config.Queue.GetRetryInterval() != time.Minute {
		t.Errorf("Expected 1 minute retry interval, got %v", config.Queue.GetRetryInterval())
	}
	if len(config.NativeSMS.Args) != 3 {
		t.Errorf("Expected default SMS args, got %v", config.NativeSMS.Args)
	}
}

func TestConfigLoadNonexistentFile(t *testing.T) {
	_, err := Load("nonexistent.yaml")
	if err == nil {
		t.Fatalf("Expected error for nonexistent file but got none")
	}
	if !strings.Contains(err.Error(), "failed to read config file") {
		t.Errorf("Expected error about reading file, got: %v", err)
	}
}

func TestDurationHelpers(t *testing.T) {
	recording := RecordingConfig{
		MaxDuration:    180,
		SilenceTimeout: 30,
		Grace:          15,
		ChunkInterval:  1,
		SampleInterval: 0.2,
	}

	if recording.GetMaxDuration() != 180*time.Second {
		t.Errorf("Expected 180 seconds, got %v", recording.GetMaxDuration())
	}

	if recording.GetGrace() != 15*time.Second {
		t.Errorf("Expected 15 seconds, got %v", recording.GetGrace())
	}

	if recording.GetSampleInterval() != 200*time.Millisecond {
		t.Errorf("Expected 200ms, got %v", recording.GetSampleInterval())
	}

	analysis := AnalysisConfig{Timeout: 30, Backoff: 0.5, MaxBackoff: 8}

	if analysis.GetTimeoutDuration() != 30*time.Second {
		t.Errorf("Expected 30 seconds, got %v", analysis.GetTimeoutDuration())
	}

	if analysis.GetBackoffDuration() != 500*time.Millisecond {
		t.Errorf("Expected 500ms, got %v", analysis.GetBackoffDuration())
	}

	queue := QueueConfig{RetentionHours: 72, SyncRecordTimeout: 120, RetryInterval: 30}

	if queue.GetRetention() != 72*time.Hour {
		t.Errorf("Expected 72 hours, got %v", queue.GetRetention())
	}

	if queue.GetSyncRecordTimeout() != 2*time.Minute {
		t.Errorf("Expected 2 minutes, got %v", queue.GetSyncRecordTimeout())
	}

	if queue.GetRetryInterval() != 30*time.Second {
		t.Errorf("Expected 30 seconds, got %v", queue.GetRetryInterval())
	}

	geocode := GeocodeConfig{CacheTTL: 3600}

	if geocode.GetCacheTTLDuration() != time.Hour {
		t.Errorf("Expected 1 hour, got %v", geocode.GetCacheTTLDuration())
	}
}

func TestRedacted(t *testing.T) {
	config := validConfig()
	config.Notify.Twilio.AuthToken = "secret-token"

	redacted := config.Redacted()

	for name, value := range map[string]string{
		"analysis.api_key":         redacted.Analysis.APIKey,
		"notify.api_key":           redacted.Notify.APIKey,
		"notify.twilio.auth_token": redacted.Notify.Twilio.AuthToken,
		"records.api_key":          redacted.Records.APIKey,
	} {
		if value != "***" {
			t.Errorf("Expected %s to be masked, got '%s'", name, value)
		}
	}

	if config.Analysis.APIKey != "analysis-key" {
		t.Errorf("Redacted modified the original config")
	}

	if redacted.Analysis.Endpoint != config.Analysis.Endpoint {
		t.Errorf("Expected non-secret fields to be kept")
	}
}

func TestUDPConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		config UDPConfig
		valid  bool
	}{
		{
			name:   "valid config",
			config: UDPConfig{Enabled: true, Port: 4444, BindAddress: "0.0.0.0", BufferSize: 65536, SampleRate: 16000},
			valid:  true,
		},
		{
			name:   "port too low",
			config: UDPConfig{Enabled: true, Port: 0, BindAddress: "0.0.0.0", BufferSize: 65536, SampleRate: 16000},
			valid:  false,
		},
		{
			name:   "empty bind address",
			config: UDPConfig{Enabled: true, Port: 4444, BindAddress: "", BufferSize: 65536, SampleRate: 16000},
			valid:  false,
		},
		{
			name:   "buffer too small",
			config: UDPConfig{Enabled: true, Port: 4444, BindAddress: "0.0.0.0", BufferSize: 512, SampleRate: 16000},
			valid:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.valid && err != nil {
				t.Errorf("Expected valid config but got error: %v", err)
			}
			if !tt.valid && err == nil {
				t.Errorf("Expected invalid config but got no error")
			}
		})
	}
}

func TestLoggingConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		config LoggingConfig
		valid  bool
	}{
		{
			name:   "valid json to stdout",
			config: LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
			valid:  true,
		},
		{
			name:   "valid text to file",
			config: LoggingConfig{Level: "debug", Format: "text", Output: "/var/log/sosd.log"},
			valid:  true,
		},
		{
			name:   "invalid log level",
			config: LoggingConfig{Level: "trace", Format: "json", Output: "stdout"},
			valid:  false,
		},
		{
			name:   "invalid format",
			config: LoggingConfig{Level: "info", Format: "xml", Output: "stdout"},
			valid:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.valid && err != nil {
				t.Errorf("Expected valid config but got error: %v", err)
			}
			if !tt.valid && err == nil {
				t.Errorf("Expected invalid config but got no error")
			}
		})
	}
}

func TestExampleConfigLoads(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "config.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(cfg.Contacts) != 2 {
		t.Errorf("len(Contacts) = %d, want 2", len(cfg.Contacts))
	}
	if got := cfg.Recording.GetSampleInterval(); got != 200*time.Millisecond {
		t.Errorf("GetSampleInterval() = %v, want 200ms", got)
	}
	if cfg.NativeSMS.Args[1] != "{phone}" {
		t.Errorf("NativeSMS.Args = %v", cfg.NativeSMS.Args)
	}
}

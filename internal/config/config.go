package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	Service      ServiceConfig      `yaml:"service" json:"service"`
	HTTP         HTTPConfig         `yaml:"http" json:"http"`
	UDP          UDPConfig          `yaml:"udp" json:"udp"`
	Logging      LoggingConfig      `yaml:"logging" json:"logging"`
	Countdown    CountdownConfig    `yaml:"countdown" json:"countdown"`
	Recording    RecordingConfig    `yaml:"recording" json:"recording"`
	Queue        QueueConfig        `yaml:"queue" json:"queue"`
	Connectivity ConnectivityConfig `yaml:"connectivity" json:"connectivity"`
	Analysis     AnalysisConfig     `yaml:"analysis" json:"analysis"`
	Notify       NotifyConfig       `yaml:"notify" json:"notify"`
	Records      RecordsConfig      `yaml:"records" json:"records"`
	Geocode      GeocodeConfig      `yaml:"geocode" json:"geocode"`
	NativeSMS    NativeSMSConfig    `yaml:"native_sms" json:"native_sms"`
	Location     LocationConfig     `yaml:"location" json:"location"`
	Contacts     []ContactConfig    `yaml:"contacts" json:"contacts"`
}

// ServiceConfig identifies the device owner and service
type ServiceConfig struct {
	Name     string `yaml:"name" json:"name"`
	UserName string `yaml:"user_name" json:"user_name"`
}

// HTTPConfig contains HTTP API server configuration
type HTTPConfig struct {
	Port    int    `yaml:"port" json:"port"`
	Address string `yaml:"address" json:"address"`
	Enabled bool   `yaml:"enabled" json:"enabled"`
}

// UDPConfig contains the listener for trigger, audio and location datagrams
type UDPConfig struct {
	Enabled     bool   `yaml:"enabled" json:"enabled"`
	Port        int    `yaml:"port" json:"port"`
	BindAddress string `yaml:"bind_address" json:"bind_address"`
	BufferSize  int    `yaml:"buffer_size" json:"buffer_size"`
	SampleRate  int    `yaml:"sample_rate" json:"sample_rate"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	Output string `yaml:"output" json:"output"`
}

// CountdownConfig controls the cancellable delay before an alert goes active
type CountdownConfig struct {
	Duration       float64 `yaml:"duration" json:"duration"` // seconds
	EventQueueSize int     `yaml:"event_queue_size" json:"event_queue_size"`
}

// RecordingConfig contains audio capture parameters
type RecordingConfig struct {
	MaxDuration      float64 `yaml:"max_duration" json:"max_duration"`       // seconds
	SilenceThreshold float32 `yaml:"silence_threshold" json:"silence_threshold"`
	SilenceTimeout   float64 `yaml:"silence_timeout" json:"silence_timeout"` // seconds
	Grace            float64 `yaml:"grace" json:"grace"`                     // seconds
	ChunkInterval    float64 `yaml:"chunk_interval" json:"chunk_interval"`   // seconds
	SampleInterval   float64 `yaml:"sample_interval" json:"sample_interval"` // seconds
	EchoCancellation bool    `yaml:"echo_cancellation" json:"echo_cancellation"`
	NoiseSuppression bool    `yaml:"noise_suppression" json:"noise_suppression"`
	AutoGainControl  bool    `yaml:"auto_gain_control" json:"auto_gain_control"`
}

// QueueConfig contains the offline queue database settings
type QueueConfig struct {
	Path              string `yaml:"path" json:"path"`
	RetentionHours    int    `yaml:"retention_hours" json:"retention_hours"`
	SyncRecordTimeout int    `yaml:"sync_record_timeout" json:"sync_record_timeout"` // seconds
	RetryInterval     int    `yaml:"retry_interval" json:"retry_interval"`           // seconds, while online
}

// ConnectivityConfig selects how reachability is determined
type ConnectivityConfig struct {
	Mode             string `yaml:"mode" json:"mode"` // probe, online or offline
	ProbeURL         string `yaml:"probe_url" json:"probe_url"`
	Interval         int    `yaml:"interval" json:"interval"` // seconds
	Timeout          int    `yaml:"timeout" json:"timeout"`   // seconds
	FailureThreshold int    `yaml:"failure_threshold" json:"failure_threshold"`
}

// AnalysisConfig contains analysis API configuration
type AnalysisConfig struct {
	Endpoint      string  `yaml:"endpoint" json:"endpoint"`
	APIKey        string  `yaml:"api_key" json:"api_key"`
	Timeout       int     `yaml:"timeout" json:"timeout"` // seconds
	MaxRetries    int     `yaml:"max_retries" json:"max_retries"`
	MaxConcurrent int     `yaml:"max_concurrent" json:"max_concurrent"`
	Backoff       float64 `yaml:"backoff" json:"backoff"`         // seconds
	MaxBackoff    float64 `yaml:"max_backoff" json:"max_backoff"` // seconds
}

// NotifyConfig contains notification provider configuration
type NotifyConfig struct {
	Provider   string       `yaml:"provider" json:"provider"`
	Timeout    int          `yaml:"timeout" json:"timeout"` // seconds
	GatewayURL string       `yaml:"gateway_url" json:"gateway_url"`
	APIKey     string       `yaml:"api_key" json:"api_key"`
	Twilio     TwilioConfig `yaml:"twilio" json:"twilio"`
}

// TwilioConfig contains Twilio credentials
type TwilioConfig struct {
	BaseURL    string `yaml:"base_url" json:"base_url"`
	AccountSID string `yaml:"account_sid" json:"account_sid"`
	AuthToken  string `yaml:"auth_token" json:"auth_token"`
	From       string `yaml:"from" json:"from"`
}

// RecordsConfig contains the record store API configuration
type RecordsConfig struct {
	BaseURL string `yaml:"base_url" json:"base_url"`
	APIKey  string `yaml:"api_key" json:"api_key"`
	Timeout int    `yaml:"timeout" json:"timeout"` // seconds
}

// GeocodeConfig contains reverse geocoding configuration
type GeocodeConfig struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	BaseURL   string `yaml:"base_url" json:"base_url"`
	UserAgent string `yaml:"user_agent" json:"user_agent"`
	Language  string `yaml:"language" json:"language"`
	Timeout   int    `yaml:"timeout" json:"timeout"` // seconds
	CacheSize int    `yaml:"cache_size" json:"cache_size"`
	CacheTTL  int    `yaml:"cache_ttl" json:"cache_ttl"` // seconds
}

// NativeSMSConfig contains the device SMS command
type NativeSMSConfig struct {
	Enabled bool     `yaml:"enabled" json:"enabled"`
	Command string   `yaml:"command" json:"command"`
	Args    []string `yaml:"args" json:"args"`
	Timeout int      `yaml:"timeout" json:"timeout"` // seconds
}

// LocationConfig controls the last known position
type LocationConfig struct {
	MaxAge   int            `yaml:"max_age" json:"max_age"` // seconds, 0 keeps positions forever
	Fallback *FallbackPoint `yaml:"fallback" json:"fallback,omitempty"`
}

// FallbackPoint is used when no fix has been reported
type FallbackPoint struct {
	Latitude  float64 `yaml:"latitude" json:"latitude"`
	Longitude float64 `yaml:"longitude" json:"longitude"`
	Accuracy  float64 `yaml:"accuracy" json:"accuracy"`
}

// ContactConfig is an emergency contact
type ContactConfig struct {
	Name  string `yaml:"name" json:"name"`
	Phone string `yaml:"phone" json:"phone"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// applyDefaults fills unset values with the mobile defaults
func (c *Config) applyDefaults() {
	if c.Service.Name == "" {
		c.Service.Name = "sos-alert-service"
	}
	if c.HTTP.Address == "" {
		c.HTTP.Address = "127.0.0.1"
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	if c.UDP.BindAddress == "" {
		c.UDP.BindAddress = "127.0.0.1"
	}
	if c.UDP.Port == 0 {
		c.UDP.Port = 4444
	}
	if c.UDP.BufferSize == 0 {
		c.UDP.BufferSize = 65536
	}
	if c.UDP.SampleRate == 0 {
		c.UDP.SampleRate = 16000
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stdout"
	}
	if c.Countdown.Duration == 0 {
		c.Countdown.Duration = 5
	}
	if c.Countdown.EventQueueSize == 0 {
		c.Countdown.EventQueueSize = 64
	}

	r := &c.Recording
	if r.MaxDuration == 0 {
		r.MaxDuration = 180
	}
	if r.SilenceThreshold == 0 {
		r.SilenceThreshold = 0.03
	}
	if r.SilenceTimeout == 0 {
		r.SilenceTimeout = 30
	}
	if r.Grace == 0 {
		r.Grace = 15
	}
	if r.ChunkInterval == 0 {
		r.ChunkInterval = 1
	}
	if r.SampleInterval == 0 {
		r.SampleInterval = 0.2
	}

	if c.Queue.Path == "" {
		c.Queue.Path = "./data/queue.db"
	}
	if c.Queue.RetentionHours == 0 {
		c.Queue.RetentionHours = 72
	}
	if c.Queue.SyncRecordTimeout == 0 {
		c.Queue.SyncRecordTimeout = 120
	}
	if c.Queue.RetryInterval == 0 {
		c.Queue.RetryInterval = 60
	}

	if c.Connectivity.Mode == "" {
		c.Connectivity.Mode = "probe"
	}
	if c.Connectivity.Interval == 0 {
		c.Connectivity.Interval = 15
	}
	if c.Connectivity.Timeout == 0 {
		c.Connectivity.Timeout = 5
	}
	if c.Connectivity.FailureThreshold == 0 {
		c.Connectivity.FailureThreshold = 2
	}

	if c.Analysis.Timeout == 0 {
		c.Analysis.Timeout = 60
	}
	if c.Analysis.MaxConcurrent == 0 {
		c.Analysis.MaxConcurrent = 2
	}
	if c.Analysis.Backoff == 0 {
		c.Analysis.Backoff = 1
	}
	if c.Analysis.MaxBackoff == 0 {
		c.Analysis.MaxBackoff = 30
	}

	if c.Notify.Provider == "" {
		c.Notify.Provider = "gateway"
	}
	if c.Notify.Timeout == 0 {
		c.Notify.Timeout = 15
	}
	if c.Records.Timeout == 0 {
		c.Records.Timeout = 15
	}

	if c.Geocode.Timeout == 0 {
		c.Geocode.Timeout = 5
	}
	if c.Geocode.CacheSize == 0 {
		c.Geocode.CacheSize = 256
	}
	if c.Geocode.CacheTTL == 0 {
		c.Geocode.CacheTTL = 86400
	}

	if c.NativeSMS.Command == "" {
		c.NativeSMS.Command = "termux-sms-send"
	}
	if len(c.NativeSMS.Args) == 0 {
		c.NativeSMS.Args = []string{"-n", "{phone}", "{message}"}
	}
	if c.NativeSMS.Timeout == 0 {
		c.NativeSMS.Timeout = 20
	}
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.UDP.Validate(); err != nil {
		return fmt.Errorf("udp config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	if err := c.Countdown.Validate(); err != nil {
		return fmt.Errorf("countdown config: %w", err)
	}

	if err := c.Recording.Validate(); err != nil {
		return fmt.Errorf("recording config: %w", err)
	}

	if err := c.Queue.Validate(); err != nil {
		return fmt.Errorf("queue config: %w", err)
	}

	if err := c.Connectivity.Validate(); err != nil {
		return fmt.Errorf("connectivity config: %w", err)
	}

	if err := c.Analysis.Validate(); err != nil {
		return fmt.Errorf("analysis config: %w", err)
	}

	if err := c.Notify.Validate(); err != nil {
		return fmt.Errorf("notify config: %w", err)
	}

	if err := c.Records.Validate(); err != nil {
		return fmt.Errorf("records config: %w", err)
	}

	if err := c.Geocode.Validate(); err != nil {
		return fmt.Errorf("geocode config: %w", err)
	}

	if err := c.NativeSMS.Validate(); err != nil {
		return fmt.Errorf("native_sms config: %w", err)
	}

	if err := c.Location.Validate(); err != nil {
		return fmt.Errorf("location config: %w", err)
	}

	for i, contact := range c.Contacts {
		if contact.Phone == "" {
			return fmt.Errorf("contacts[%d]: phone cannot be empty", i)
		}
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates UDP configuration
func (u *UDPConfig) Validate() error {
	if !u.Enabled {
		return nil
	}

	if u.Port < 1 || u.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", u.Port)
	}

	if u.BindAddress == "" {
		return fmt.Errorf("bind_address cannot be empty")
	}

	if u.BufferSize < 1024 {
		return fmt.Errorf("buffer_size must be at least 1024 bytes, got %d", u.BufferSize)
	}

	validRates := map[int]bool{8000: true, 16000: true, 44100: true, 48000: true}
	if !validRates[u.SampleRate] {
		return fmt.Errorf("sample_rate must be one of [8000, 16000, 44100, 48000], got %d", u.SampleRate)
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	// any other output is treated as a file path
	return nil
}

// Validate validates countdown configuration
func (c *CountdownConfig) Validate() error {
	if c.Duration < 0 || c.Duration > 60 {
		return fmt.Errorf("duration must be between 0 and 60 seconds, got %f", c.Duration)
	}

	if c.EventQueueSize < 1 {
		return fmt.Errorf("event_queue_size must be at least 1, got %d", c.EventQueueSize)
	}

	return nil
}

// Validate validates recording configuration
func (r *RecordingConfig) Validate() error {
	if r.MaxDuration < 1 {
		return fmt.Errorf("max_duration must be at least 1 second, got %f", r.MaxDuration)
	}

	if r.SilenceThreshold < 0 || r.SilenceThreshold > 1 {
		return fmt.Errorf("silence_threshold must be between 0 and 1, got %f", r.SilenceThreshold)
	}

	if r.SilenceTimeout <= 0 {
		return fmt.Errorf("silence_timeout must be positive, got %f", r.SilenceTimeout)
	}

	if r.Grace < 0 {
		return fmt.Errorf("grace cannot be negative, got %f", r.Grace)
	}

	if r.ChunkInterval <= 0 || r.SampleInterval <= 0 {
		return fmt.Errorf("chunk_interval and sample_interval must be positive")
	}

	if r.SampleInterval > r.ChunkInterval {
		return fmt.Errorf("sample_interval (%f) cannot exceed chunk_interval (%f)", r.SampleInterval, r.ChunkInterval)
	}

	return nil
}

// Validate validates queue configuration
func (q *QueueConfig) Validate() error {
	if q.Path == "" {
		return fmt.Errorf("path cannot be empty")
	}

	if q.RetentionHours < 1 {
		return fmt.Errorf("retention_hours must be at least 1, got %d", q.RetentionHours)
	}

	if q.SyncRecordTimeout < 1 {
		return fmt.Errorf("sync_record_timeout must be at least 1 second, got %d", q.SyncRecordTimeout)
	}

	if q.RetryInterval < 1 {
		return fmt.Errorf("retry_interval must be at least 1 second, got %d", q.RetryInterval)
	}

	return nil
}

// Validate validates connectivity configuration
func (c *ConnectivityConfig) Validate() error {
	switch c.Mode {
	case "online", "offline":
		return nil
	case "probe":
	default:
		return fmt.Errorf("mode must be one of [probe, online, offline], got '%s'", c.Mode)
	}

	if c.ProbeURL == "" {
		return fmt.Errorf("probe_url cannot be empty in probe mode")
	}

	if c.Interval < 1 {
		return fmt.Errorf("interval must be at least 1 second, got %d", c.Interval)
	}

	if c.Timeout < 1 || c.Timeout > c.Interval {
		return fmt.Errorf("timeout must be between 1 and interval (%d) seconds, got %d", c.Interval, c.Timeout)
	}

	if c.FailureThreshold < 1 {
		return fmt.Errorf("failure_threshold must be at least 1, got %d", c.FailureThreshold)
	}

	return nil
}

// Validate validates analysis configuration
func (a *AnalysisConfig) Validate() error {
	if a.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	if a.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", a.Timeout)
	}

	if a.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", a.MaxRetries)
	}

	if a.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", a.MaxConcurrent)
	}

	if a.MaxBackoff < a.Backoff {
		return fmt.Errorf("max_backoff (%f) must not be less than backoff (%f)", a.MaxBackoff, a.Backoff)
	}

	return nil
}

// Validate validates notification configuration
func (n *NotifyConfig) Validate() error {
	if n.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", n.Timeout)
	}

	switch n.Provider {
	case "gateway":
		if n.GatewayURL == "" {
			return fmt.Errorf("gateway_url cannot be empty for the gateway provider")
		}
	case "twilio":
		if n.Twilio.AccountSID == "" || n.Twilio.AuthToken == "" {
			return fmt.Errorf("twilio account_sid and auth_token are required")
		}
		if n.Twilio.From == "" {
			return fmt.Errorf("twilio from cannot be empty")
		}
	default:
		return fmt.Errorf("provider must be 'gateway' or 'twilio', got '%s'", n.Provider)
	}

	return nil
}

// Validate validates record store configuration
func (r *RecordsConfig) Validate() error {
	if r.BaseURL == "" {
		return fmt.Errorf("base_url cannot be empty")
	}

	if r.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", r.Timeout)
	}

	return nil
}

// Validate validates geocoding configuration
func (g *GeocodeConfig) Validate() error {
	if !g.Enabled {
		return nil
	}

	if g.BaseURL == "" {
		return fmt.Errorf("base_url cannot be empty when geocoding is enabled")
	}

	if g.CacheSize < 1 {
		return fmt.Errorf("cache_size must be at least 1, got %d", g.CacheSize)
	}

	if g.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", g.Timeout)
	}

	return nil
}

// Validate validates native SMS configuration
func (n *NativeSMSConfig) Validate() error {
	if !n.Enabled {
		return nil
	}

	if n.Command == "" {
		return fmt.Errorf("command cannot be empty when native SMS is enabled")
	}

	if n.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", n.Timeout)
	}

	return nil
}

// Validate validates location configuration
func (l *LocationConfig) Validate() error {
	if l.MaxAge < 0 {
		return fmt.Errorf("max_age cannot be negative, got %d", l.MaxAge)
	}

	if f := l.Fallback; f != nil {
		if f.Latitude < -90 || f.Latitude > 90 || f.Longitude < -180 || f.Longitude > 180 {
			return fmt.Errorf("fallback coordinates out of range: %f, %f", f.Latitude, f.Longitude)
		}
	}

	return nil
}

// Redacted returns a copy with credentials masked
func (c Config) Redacted() Config {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "***"
	}

	c.Analysis.APIKey = mask(c.Analysis.APIKey)
	c.Notify.APIKey = mask(c.Notify.APIKey)
	c.Notify.Twilio.AuthToken = mask(c.Notify.Twilio.AuthToken)
	c.Records.APIKey = mask(c.Records.APIKey)
	return c
}

// GetCountdownDuration returns the countdown as a time.Duration
func (c *CountdownConfig) GetCountdownDuration() time.Duration {
	return seconds(c.Duration)
}

// GetMaxDuration returns the recording cap as a time.Duration
func (r *RecordingConfig) GetMaxDuration() time.Duration {
	return seconds(r.MaxDuration)
}

// GetSilenceTimeout returns the silence timeout as a time.Duration
func (r *RecordingConfig) GetSilenceTimeout() time.Duration {
	return seconds(r.SilenceTimeout)
}

// GetGrace returns the initial grace period as a time.Duration
func (r *RecordingConfig) GetGrace() time.Duration {
	return seconds(r.Grace)
}

// GetChunkInterval returns the encoder chunk interval as a time.Duration
func (r *RecordingConfig) GetChunkInterval() time.Duration {
	return seconds(r.ChunkInterval)
}

// GetSampleInterval returns the level sampling interval as a time.Duration
func (r *RecordingConfig) GetSampleInterval() time.Duration {
	return seconds(r.SampleInterval)
}

// GetRetention returns how long synced records are kept
func (q *QueueConfig) GetRetention() time.Duration {
	return time.Duration(q.RetentionHours) * time.Hour
}

// GetSyncRecordTimeout returns the per-record sync timeout as a time.Duration
func (q *QueueConfig) GetSyncRecordTimeout() time.Duration {
	return time.Duration(q.SyncRecordTimeout) * time.Second
}

// GetRetryInterval returns how often pending records are retried while online
func (q *QueueConfig) GetRetryInterval() time.Duration {
	return time.Duration(q.RetryInterval) * time.Second
}

// GetIntervalDuration returns the probe interval as a time.Duration
func (c *ConnectivityConfig) GetIntervalDuration() time.Duration {
	return time.Duration(c.Interval) * time.Second
}

// GetTimeoutDuration returns the probe timeout as a time.Duration
func (c *ConnectivityConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

// GetTimeoutDuration returns the analysis timeout as a time.Duration
func (a *AnalysisConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(a.Timeout) * time.Second
}

// GetBackoffDuration returns the first retry delay as a time.Duration
func (a *AnalysisConfig) GetBackoffDuration() time.Duration {
	return seconds(a.Backoff)
}

// GetMaxBackoffDuration returns the retry delay cap as a time.Duration
func (a *AnalysisConfig) GetMaxBackoffDuration() time.Duration {
	return seconds(a.MaxBackoff)
}

// GetTimeoutDuration returns the notification timeout as a time.Duration
func (n *NotifyConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(n.Timeout) * time.Second
}

// GetTimeoutDuration returns the record store timeout as a time.Duration
func (r *RecordsConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(r.Timeout) * time.Second
}

// GetTimeoutDuration returns the geocoding timeout as a time.Duration
func (g *GeocodeConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(g.Timeout) * time.Second
}

// GetCacheTTLDuration returns the address cache TTL as a time.Duration
func (g *GeocodeConfig) GetCacheTTLDuration() time.Duration {
	return time.Duration(g.CacheTTL) * time.Second
}

// GetTimeoutDuration returns the SMS command timeout as a time.Duration
func (n *NativeSMSConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(n.Timeout) * time.Second
}

// GetMaxAgeDuration returns how long a reported position stays current
func (l *LocationConfig) GetMaxAgeDuration() time.Duration {
	return time.Duration(l.MaxAge) * time.Second
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/skypro1111/sos-alert-service/internal/clock"
	"github.com/skypro1111/sos-alert-service/internal/location"
	"github.com/skypro1111/sos-alert-service/internal/metrics"
)

// Config holds reverse geocoding settings
type Config struct {
	BaseURL   string
	UserAgent string
	Language  string
	Timeout   time.Duration
	CacheSize int
	CacheTTL  time.Duration
}

// Client resolves addresses over HTTP with caching
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics

	cache  *cache
	flight singleflight.Group
}

type reverseResponse struct {
	DisplayName string `json:"display_name"`
	Address     struct {
		HouseNumber   string `json:"house_number"`
		Road          string `json:"road"`
		City          string `json:"city"`
		Town          string `json:"town"`
		Village       string `json:"village"`
		Suburb        string `json:"suburb"`
		Neighbourhood string `json:"neighbourhood"`
		State         string `json:"state"`
		Country       string `json:"country"`
	} `json:"address"`
}

// NewClient creates a geocoding client
func NewClient(cfg Config, clk clock.Clock, logger *slog.Logger, m *metrics.Metrics) *Client {
	return &Client{
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
		metrics:    m,
		cache:      newCache(cfg.CacheSize, cfg.CacheTTL, clk.Now),
	}
}

// CacheKey rounds coordinates to five decimals
func CacheKey(lat, lng float64) string {
	return strconv.FormatFloat(lat, 'f', 5, 64) + "," + strconv.FormatFloat(lng, 'f', 5, 64)
}

// Resolve returns the address for loc, or "" when it cannot be determined
func (c *Client) Resolve(ctx context.Context, loc location.Location) string {
	key := CacheKey(loc.Latitude, loc.Longitude)

	if address, ok := c.cache.get(key); ok {
		c.metrics.RecordGeocodeLookup("hit")
		return address
	}

	value, err, _ := c.flight.Do(key, func() (any, error) {
		return c.fetch(ctx, loc)
	})
	if err != nil {
		c.metrics.RecordGeocodeLookup("error")
		c.logger.Warn("Reverse geocoding failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return ""
	}

	c.metrics.RecordGeocodeLookup("miss")
	address := value.(string)
	if address != "" {
		c.cache.put(key, address)
	}
	return address
}

func (c *Client) fetch(ctx context.Context, loc location.Location) (string, error) {
	params := url.Values{}
	params.Set("format", "json")
	params.Set("lat", strconv.FormatFloat(loc.Latitude, 'f', -1, 64))
	params.Set("lon", strconv.FormatFloat(loc.Longitude, 'f', -1, 64))
	params.Set("zoom", "18")
	params.Set("addressdetails", "1")

	endpoint := strings.TrimRight(c.config.BaseURL, "/") + "/reverse?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}
	if c.config.Language != "" {
		req.Header.Set("Accept-Language", c.config.Language)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("geocoding service returned status %d", resp.StatusCode)
	}

	var body reverseResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	return formatAddress(body), nil
}

// formatAddress builds "street, locality, state, country", falling back to
// the display name
func formatAddress(r reverseResponse) string {
	addr := r.Address
	var parts []string

	switch {
	case addr.HouseNumber != "" && addr.Road != "":
		parts = append(parts, addr.HouseNumber+" "+addr.Road)
	case addr.Road != "":
		parts = append(parts, addr.Road)
	}

	for _, locality := range []string{addr.City, addr.Town, addr.Village, addr.Suburb, addr.Neighbourhood} {
		if locality != "" {
			parts = append(parts, locality)
			break
		}
	}

	if addr.State != "" {
		parts = append(parts, addr.State)
	}
	if addr.Country != "" {
		parts = append(parts, addr.Country)
	}

	if len(parts) > 0 {
		return strings.Join(parts, ", ")
	}
	return r.DisplayName
}

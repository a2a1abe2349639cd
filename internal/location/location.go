// Package location holds position samples supplied by the device's location
// provider. Consumers read the most recent sample and never wait for one.
package location

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/skypro1111/sos-alert-service/internal/clock"
)

// Location is a single position sample
type Location struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Accuracy  float64   `json:"accuracy"`
	Timestamp time.Time `json:"timestamp"`
}

// Validate checks coordinate ranges
func (l Location) Validate() error {
	if l.Latitude < -90 || l.Latitude > 90 {
		return fmt.Errorf("latitude out of range: %f", l.Latitude)
	}
	if l.Longitude < -180 || l.Longitude > 180 {
		return fmt.Errorf("longitude out of range: %f", l.Longitude)
	}
	if l.Accuracy < 0 {
		return fmt.Errorf("accuracy must be non-negative: %f", l.Accuracy)
	}
	return nil
}

// Coordinates formats the pair as "lat,lng" with the shortest exact representation
func (l Location) Coordinates() string {
	return strconv.FormatFloat(l.Latitude, 'f', -1, 64) + "," +
		strconv.FormatFloat(l.Longitude, 'f', -1, 64)
}

// MapLink returns a maps URL pointing at the location
func (l Location) MapLink() string {
	return "https://maps.google.com/?q=" + l.Coordinates()
}

// Provider supplies the current position. Current returns nil when no
// position is known
type Provider interface {
	Current() *Location
}

// LastKnown keeps the most recent sample pushed by the device. Samples older
// than maxAge are treated as absent; the optional fallback is used then
type LastKnown struct {
	clock    clock.Clock
	maxAge   time.Duration
	fallback *Location

	latest *Location
	mu     sync.RWMutex
}

// NewLastKnown creates a provider. A zero maxAge keeps samples forever
func NewLastKnown(clk clock.Clock, maxAge time.Duration, fallback *Location) *LastKnown {
	return &LastKnown{
		clock:    clk,
		maxAge:   maxAge,
		fallback: fallback,
	}
}

// Update records a new sample. Samples without a timestamp are stamped now
func (p *LastKnown) Update(loc Location) error {
	if err := loc.Validate(); err != nil {
		return err
	}
	if loc.Timestamp.IsZero() {
		loc.Timestamp = p.clock.Now()
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.latest != nil && loc.Timestamp.Before(p.latest.Timestamp) {
		return nil
	}
	p.latest = &loc
	return nil
}

// Current returns a copy of the freshest usable sample
func (p *LastKnown) Current() *Location {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.latest != nil {
		if p.maxAge <= 0 || p.clock.Now().Sub(p.latest.Timestamp) <= p.maxAge {
			loc := *p.latest
			return &loc
		}
	}
	if p.fallback != nil {
		loc := *p.fallback
		return &loc
	}
	return nil
}

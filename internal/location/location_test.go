package location

import (
	"testing"
	"time"

	"github.com/skypro1111/sos-alert-service/internal/clock"
)

func TestMapLink(t *testing.T) {
	loc := Location{Latitude: 40.7128, Longitude: -74.006}
	expected := "https://maps.google.com/?q=40.7128,-74.006"
	if got := loc.MapLink(); got != expected {
		t.Errorf("Expected %s, got %s", expected, got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		loc       Location
		expectErr bool
	}{
		{"valid", Location{Latitude: 51.5, Longitude: -0.12, Accuracy: 10}, false},
		{"latitude too high", Location{Latitude: 91}, true},
		{"longitude too low", Location{Longitude: -181}, true},
		{"negative accuracy", Location{Accuracy: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.loc.Validate()
			if tt.expectErr && err == nil {
				t.Error("Expected error but got none")
			}
			if !tt.expectErr && err != nil {
				t.Errorf("Expected no error but got: %v", err)
			}
		})
	}
}

func TestLastKnown(t *testing.T) {
	clk := clock.NewFake(time.Unix(1000, 0))
	p := NewLastKnown(clk, time.Minute, nil)

	if p.Current() != nil {
		t.Fatal("Expected no location before any update")
	}

	if err := p.Update(Location{Latitude: 1, Longitude: 2, Accuracy: 5}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	loc := p.Current()
	if loc == nil {
		t.Fatal("Expected a location after update")
	}
	if loc.Latitude != 1 || loc.Longitude != 2 {
		t.Errorf("Unexpected location: %+v", loc)
	}
	if !loc.Timestamp.Equal(time.Unix(1000, 0)) {
		t.Errorf("Expected sample stamped with clock time, got %v", loc.Timestamp)
	}

	// Older samples never replace newer ones
	if err := p.Update(Location{Latitude: 9, Longitude: 9, Timestamp: time.Unix(500, 0)}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if p.Current().Latitude != 1 {
		t.Error("Expected stale sample to be ignored")
	}

	clk.Advance(2 * time.Minute)
	if p.Current() != nil {
		t.Error("Expected expired sample to be treated as absent")
	}
}

func TestLastKnownFallback(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	fallback := &Location{Latitude: 10, Longitude: 20}
	p := NewLastKnown(clk, 0, fallback)

	loc := p.Current()
	if loc == nil || loc.Latitude != 10 {
		t.Fatalf("Expected fallback location, got %+v", loc)
	}

	loc.Latitude = 99
	if p.Current().Latitude != 10 {
		t.Error("Expected Current to return a copy")
	}
}

package alert

import (
	"time"

	"github.com/skypro1111/sos-alert-service/internal/capture"
	"github.com/skypro1111/sos-alert-service/internal/clock"
	"github.com/skypro1111/sos-alert-service/internal/dispatch"
	"github.com/skypro1111/sos-alert-service/internal/location"
	"github.com/skypro1111/sos-alert-service/internal/trigger"
)

// State is the lifecycle state of a session
type State string

const (
	Idle             State = "idle"
	Countdown        State = "countdown"
	Active           State = "active"
	Analyzing        State = "analyzing"
	AwaitingApproval State = "awaiting_approval"
	Notifying        State = "notifying"
	Resolved         State = "resolved"
	Cancelled        State = "cancelled"
)

// Terminal reports whether a new trigger may start a session
func (s State) Terminal() bool {
	return s == Idle || s == Resolved || s == Cancelled
}

// Session statuses shown to the user besides the dispatch ones
const (
	statusCountdown = "countdown"
	statusCancelled = "cancelled"
	statusResolved  = "resolved by user"
	statusDeclined  = "declined, record kept"
	statusAnalyzing = "analyzing recording"
	statusApproval  = "awaiting approval"
	statusNotifying = "notifying contacts"

	// cancelled while a delivery was in flight
	statusResolvedNotDelivered = "resolved by user; notification not delivered"
)

// RecordingStatus is live capture telemetry
type RecordingStatus struct {
	Level     float32       `json:"level"`
	Silent    bool          `json:"silent"`
	SilentFor time.Duration `json:"silent_for"`
}

// Session is a read-only view of an alert session
type Session struct {
	ID          string             `json:"id,omitempty"`
	State       State              `json:"state"`
	TriggerType trigger.Type       `json:"trigger_type,omitempty"`
	CreatedAt   *time.Time         `json:"created_at,omitempty"`
	TriggeredAt *time.Time         `json:"triggered_at,omitempty"`
	Location    *location.Location `json:"location,omitempty"`
	Path        dispatch.Path      `json:"path,omitempty"`
	Status      string             `json:"status,omitempty"`
	Summary     string             `json:"summary,omitempty"`
	AudioURL    string             `json:"audio_url,omitempty"`
	StopReason  capture.StopReason `json:"stop_reason,omitempty"`
	Recording   *RecordingStatus   `json:"recording,omitempty"`
	ResolvedAt  *time.Time         `json:"resolved_at,omitempty"`
	CancelledAt *time.Time         `json:"cancelled_at,omitempty"`
}

// session is the loop-owned state of one alert
type session struct {
	view  Session
	alert dispatch.Alert

	countdown clock.Timer
	recording *capture.Recording
	outcome   *dispatch.Outcome
	result    *capture.Result

	activated      bool
	notifying      bool
	note           string
	resolveIssued  bool
	completeIssued bool
}

// unfinished reports whether background work for the session is outstanding
func (s *session) unfinished() bool {
	return s.notifying || s.activated && (s.outcome == nil || s.result == nil)
}

func timePtr(t time.Time) *time.Time {
	return &t
}

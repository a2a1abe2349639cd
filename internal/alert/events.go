package alert

import (
	"github.com/skypro1111/sos-alert-service/internal/capture"
	"github.com/skypro1111/sos-alert-service/internal/dispatch"
	"github.com/skypro1111/sos-alert-service/internal/notify"
	"github.com/skypro1111/sos-alert-service/internal/trigger"
)

// Event is a message handled by the machine loop
type Event interface {
	handle(m *Machine)
}

// TriggerEvent starts a session, or cancels the current one
type TriggerEvent struct {
	Type trigger.Type
	// Hint is optional text captured with the trigger, such as a wake phrase
	Hint string
}

// CancelEvent cancels the current session
type CancelEvent struct{}

// ApproveEvent approves the summary; an empty Summary keeps the generated one
type ApproveEvent struct {
	Summary string
}

// DeclineEvent ends the session without notifying contacts
type DeclineEvent struct{}

func (e TriggerEvent) handle(m *Machine) { m.onTrigger(e) }
func (CancelEvent) handle(m *Machine)    { m.onCancel() }
func (e ApproveEvent) handle(m *Machine) { m.onApprove(e.Summary) }
func (DeclineEvent) handle(m *Machine)   { m.onDecline() }

// Results posted by background work
type (
	countdownElapsed struct {
		id string
	}
	dispatched struct {
		id      string
		outcome dispatch.Outcome
		err     error
	}
	recordingStarted struct {
		id        string
		recording *capture.Recording
		err       error
	}
	recordingDone struct {
		id     string
		result capture.Result
	}
	analyzed struct {
		id       string
		analysis dispatch.Analysis
	}
	notified struct {
		id     string
		result *notify.Result
		err    error
	}
	completed struct {
		id string
	}
)

func (e countdownElapsed) handle(m *Machine) { m.onCountdownElapsed(e.id) }
func (e dispatched) handle(m *Machine)       { m.onDispatched(e) }
func (e recordingStarted) handle(m *Machine) { m.onRecordingStarted(e) }
func (e recordingDone) handle(m *Machine)    { m.onRecordingDone(e) }
func (e analyzed) handle(m *Machine)         { m.onAnalyzed(e) }
func (e notified) handle(m *Machine)         { m.onNotified(e) }
func (e completed) handle(m *Machine)        { m.onCompleted(e.id) }

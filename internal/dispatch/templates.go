package dispatch

import (
	"fmt"
	"strings"

	"github.com/skypro1111/sos-alert-service/internal/location"
)

// DegradedNotice marks messages sent without analysis
const DegradedNotice = "This is an automated alert. Audio recording will be analyzed when connection is restored."

const defaultUserName = "Your contact"

// User-facing status strings
const (
	StatusCached      = "cached, will send when online"
	StatusNativeSent  = "sent via native SMS"
	StatusActive      = "alert active"
	StatusLost        = "alert could not be recorded or sent"
	StatusNotifyRetry = "notification failed, will retry when online"
)

// NotifiedStatus reports a delivery count
func NotifiedStatus(succeeded, total int) string {
	return fmt.Sprintf("notified %d/%d contacts", succeeded, total)
}

// NativeMessage is the fixed template for the offline SMS fallback
func NativeMessage(userName string, loc *location.Location) string {
	var b strings.Builder
	b.WriteString("EMERGENCY ALERT: ")
	b.WriteString(displayName(userName))
	b.WriteString(" has triggered an SOS. ")
	b.WriteString(DegradedNotice)
	if loc != nil {
		b.WriteString(" Location: ")
		b.WriteString(loc.MapLink())
	}
	b.WriteString(" Please call immediately!")
	return b.String()
}

// OnlineMessage is the message sent to contacts after approval
func OnlineMessage(userName, summary string, loc *location.Location) string {
	var b strings.Builder
	b.WriteString("EMERGENCY ALERT from ")
	b.WriteString(displayName(userName))
	b.WriteString("!\n\n")
	b.WriteString(summary)
	if loc != nil {
		b.WriteString("\n\nLocation: ")
		b.WriteString(loc.MapLink())
	}
	b.WriteString("\n\nPlease respond immediately or contact emergency services.")
	return b.String()
}

func displayName(name string) string {
	if name = strings.TrimSpace(name); name == "" {
		return defaultUserName
	}
	return name
}

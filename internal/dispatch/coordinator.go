package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/skypro1111/sos-alert-service/internal/analysis"
	"github.com/skypro1111/sos-alert-service/internal/clock"
	"github.com/skypro1111/sos-alert-service/internal/location"
	"github.com/skypro1111/sos-alert-service/internal/metrics"
	"github.com/skypro1111/sos-alert-service/internal/nativesms"
	"github.com/skypro1111/sos-alert-service/internal/notify"
	"github.com/skypro1111/sos-alert-service/internal/queue"
	"github.com/skypro1111/sos-alert-service/internal/records"
	"github.com/skypro1111/sos-alert-service/internal/trigger"
)

// ErrAlertLost is returned when an offline alert could be neither queued nor
// sent through the native fallback
var ErrAlertLost = errors.New("dispatch: alert could not be recorded or sent")

// Path is the route chosen for an alert
type Path string

const (
	PathOnline  Path = "online"
	PathOffline Path = "offline"
)

// Alert is the dispatch view of one alert session
type Alert struct {
	ID             string
	UserName       string
	TriggerType    trigger.Type
	TriggeredAt    time.Time
	Location       *location.Location
	TranscriptHint string
}

// Outcome describes what Trigger did
type Outcome struct {
	AlertID            string `json:"alert_id"`
	Path               Path   `json:"path"`
	Queued             bool   `json:"queued"`
	NativeFallbackSent bool   `json:"native_fallback_sent"`
	PartialCapture     bool   `json:"partial_capture"`
	Status             string `json:"status"`
}

// RecordStore is the remote alert record store
type RecordStore interface {
	CreateAlert(ctx context.Context, alert records.Alert) error
	UpdateAlert(ctx context.Context, id string, update records.Update) error
	AddLocation(ctx context.Context, id string, loc location.Location) error
	AddNotifications(ctx context.Context, id string, entries []records.Notification) error
}

// Queue is the durable offline queue
type Queue interface {
	Enqueue(ctx context.Context, rec queue.Record) error
	Update(ctx context.Context, id string, patch queue.Patch) error
	CountPending(ctx context.Context) (int, error)
}

// Analyzer produces a summary from recorded audio
type Analyzer interface {
	Analyze(ctx context.Context, request *analysis.Request) (*analysis.Response, error)
}

// Notifier delivers the approved message to contacts
type Notifier interface {
	Send(ctx context.Context, contacts []notify.Contact, msg notify.Message) (*notify.Result, error)
}

// NativeSender sends SMS through the device itself
type NativeSender interface {
	SendMultiple(ctx context.Context, contacts []notify.Contact, message string) (*nativesms.Result, error)
}

// ContactDirectory lists the emergency contacts
type ContactDirectory interface {
	Contacts() []notify.Contact
}

// AddressResolver turns coordinates into a postal address, or ""
type AddressResolver interface {
	Resolve(ctx context.Context, loc location.Location) string
}

// Connectivity is a synchronous reachability read
type Connectivity interface {
	Online() bool
}

// Capabilities is resolved once at startup
type Capabilities struct {
	NativeSMS bool `json:"native_sms"`
}

// StaticContacts is a fixed contact list
type StaticContacts []notify.Contact

// Contacts returns the list
func (s StaticContacts) Contacts() []notify.Contact {
	return s
}

// Deps are the collaborators of a Coordinator. Native and Geocoder may be nil
type Deps struct {
	Records      RecordStore
	Queue        Queue
	Analyzer     Analyzer
	Notifier     Notifier
	Native       NativeSender
	Contacts     ContactDirectory
	Geocoder     AddressResolver
	Connectivity Connectivity
	Capabilities Capabilities
	Clock        clock.Clock
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
}

// Coordinator implements hybrid dispatch
type Coordinator struct {
	Deps
	userName string
}

// NewCoordinator creates a coordinator sending on behalf of userName
func NewCoordinator(userName string, deps Deps) (*Coordinator, error) {
	if deps.Records == nil || deps.Queue == nil || deps.Analyzer == nil || deps.Notifier == nil {
		return nil, fmt.Errorf("records, queue, analyzer and notifier are required")
	}
	if deps.Contacts == nil || deps.Connectivity == nil {
		return nil, fmt.Errorf("contacts and connectivity are required")
	}
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Capabilities.NativeSMS && deps.Native == nil {
		deps.Capabilities.NativeSMS = false
	}
	return &Coordinator{Deps: deps, userName: userName}, nil
}

// UserName is the reporter name used in messages
func (c *Coordinator) UserName() string {
	return c.userName
}

// reporter fills in the configured reporter name when the alert has none
func (c *Coordinator) reporter(a Alert) Alert {
	if a.UserName == "" {
		a.UserName = c.userName
	}
	return a
}

// Trigger establishes the alert record. Connectivity is read once, at call
// time. A remote failure falls back to the offline path
func (c *Coordinator) Trigger(ctx context.Context, a Alert) (Outcome, error) {
	a = c.reporter(a)

	if c.Connectivity.Online() {
		err := c.createRemote(ctx, a)
		if err == nil {
			c.Metrics.RecordDispatch(string(PathOnline))
			c.Logger.Info("Alert dispatched online",
				slog.String("alert_id", a.ID),
				slog.String("trigger", string(a.TriggerType)),
			)
			return Outcome{AlertID: a.ID, Path: PathOnline, Status: StatusActive}, nil
		}

		c.Metrics.RecordRemoteFailure()
		c.Logger.Warn("Remote record creation failed, queueing alert",
			slog.String("alert_id", a.ID),
			slog.String("error", err.Error()),
		)
	}

	return c.dispatchOffline(ctx, a)
}

func (c *Coordinator) createRemote(ctx context.Context, a Alert) error {
	remote := records.Alert{
		ID:          a.ID,
		UserName:    a.UserName,
		TriggerType: string(a.TriggerType),
		Status:      records.StatusActive,
		TriggeredAt: a.TriggeredAt,
	}
	remote.SetLocation(a.Location)

	if err := c.Records.CreateAlert(ctx, remote); err != nil && !errors.Is(err, records.ErrConflict) {
		return err
	}

	if a.Location != nil {
		if err := c.Records.AddLocation(ctx, a.ID, *a.Location); err != nil {
			c.Logger.Warn("Failed to record location snapshot",
				slog.String("alert_id", a.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	contacts := c.Contacts.Contacts()
	intents := make([]records.Notification, 0, len(contacts))
	for _, contact := range contacts {
		intents = append(intents, records.Notification{
			ContactName: contact.Name,
			Phone:       notify.NormalizePhone(contact.Phone),
			Type:        "sms",
			Status:      "pending",
		})
	}
	if err := c.Records.AddNotifications(ctx, a.ID, intents); err != nil {
		c.Logger.Warn("Failed to record notification intents",
			slog.String("alert_id", a.ID),
			slog.String("error", err.Error()),
		)
	}

	c.enrichAddress(ctx, a)
	return nil
}

// enrichAddress stores the resolved address on the remote record
func (c *Coordinator) enrichAddress(ctx context.Context, a Alert) {
	if c.Geocoder == nil || a.Location == nil {
		return
	}
	address := c.Geocoder.Resolve(ctx, *a.Location)
	if address == "" {
		return
	}
	if err := c.Records.UpdateAlert(ctx, a.ID, records.Update{Address: &address}); err != nil {
		c.Logger.Debug("Failed to store address",
			slog.String("alert_id", a.ID),
			slog.String("error", err.Error()),
		)
	}
}

// dispatchOffline writes the queue record and sends the native fallback
// concurrently. Neither waits on nor depends on the other
func (c *Coordinator) dispatchOffline(ctx context.Context, a Alert) (Outcome, error) {
	out := Outcome{AlertID: a.ID, Path: PathOffline}

	var queueErr, nativeErr error
	var g errgroup.Group

	g.Go(func() error {
		queueErr = c.Queue.Enqueue(ctx, queue.Record{
			ID:          a.ID,
			UserName:    a.UserName,
			TriggerType: a.TriggerType,
			TriggeredAt: a.TriggeredAt,
			Location:    a.Location,
		})
		return nil
	})

	if c.Capabilities.NativeSMS {
		g.Go(func() error {
			out.NativeFallbackSent, nativeErr = c.sendNative(ctx, a)
			return nil
		})
	}

	_ = g.Wait()
	c.Metrics.RecordDispatch(string(PathOffline))

	if nativeErr != nil {
		c.Logger.Warn("Native SMS fallback failed",
			slog.String("alert_id", a.ID),
			slog.String("error", nativeErr.Error()),
		)
	}

	if queueErr != nil {
		c.Metrics.RecordOfflineQueueError()
		c.Logger.Error("Failed to queue alert",
			slog.String("alert_id", a.ID),
			slog.String("error", queueErr.Error()),
		)
		out.PartialCapture = true
		if !out.NativeFallbackSent {
			out.Status = StatusLost
			return out, fmt.Errorf("%w: %v", ErrAlertLost, queueErr)
		}
		out.Status = StatusNativeSent
		return out, nil
	}

	out.Queued = true
	out.Status = StatusCached
	if out.NativeFallbackSent {
		out.Status = StatusNativeSent + "; " + StatusCached
		sent := true
		if err := c.Queue.Update(ctx, a.ID, queue.Patch{NativeFallbackSent: &sent}); err != nil {
			c.Logger.Warn("Failed to flag native fallback",
				slog.String("alert_id", a.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	c.refreshQueueDepth(ctx)

	c.Logger.Info("Alert queued offline",
		slog.String("alert_id", a.ID),
		slog.Bool("native_fallback_sent", out.NativeFallbackSent),
	)
	return out, nil
}

func (c *Coordinator) sendNative(ctx context.Context, a Alert) (bool, error) {
	res, err := c.Native.SendMultiple(ctx, c.Contacts.Contacts(), NativeMessage(a.UserName, a.Location))
	sent := err == nil && res != nil && res.SuccessCount > 0
	c.Metrics.RecordNativeFallback(sent)
	if err == nil && !sent {
		err = fmt.Errorf("native SMS reached no contacts")
	}
	return sent, err
}

func (c *Coordinator) refreshQueueDepth(ctx context.Context) {
	if depth, err := c.Queue.CountPending(ctx); err == nil {
		c.Metrics.SetOfflineQueueDepth(depth)
	}
}

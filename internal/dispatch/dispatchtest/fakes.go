// Package dispatchtest provides in-memory collaborators for exercising the
// dispatch coordinator and the components built on it.
package dispatchtest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/skypro1111/sos-alert-service/internal/analysis"
	"github.com/skypro1111/sos-alert-service/internal/location"
	"github.com/skypro1111/sos-alert-service/internal/nativesms"
	"github.com/skypro1111/sos-alert-service/internal/notify"
	"github.com/skypro1111/sos-alert-service/internal/records"
)

// ErrUnavailable is a generic transport failure
var ErrUnavailable = errors.New("service unavailable")

// Records is an in-memory record store
type Records struct {
	mu            sync.Mutex
	alerts        map[string]records.Alert
	locations     map[string][]location.Location
	notifications map[string][]records.Notification
	creates       int
	createErr     error
	updateErr     error
}

// NewRecords creates an empty store
func NewRecords() *Records {
	return &Records{
		alerts:        make(map[string]records.Alert),
		locations:     make(map[string][]location.Location),
		notifications: make(map[string][]records.Notification),
	}
}

// FailCreates makes CreateAlert return err until called with nil
func (r *Records) FailCreates(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.createErr = err
}

// FailUpdates makes UpdateAlert return err until called with nil
func (r *Records) FailUpdates(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updateErr = err
}

func (r *Records) CreateAlert(_ context.Context, a records.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	if _, ok := r.alerts[a.ID]; ok {
		return records.ErrConflict
	}
	r.creates++
	r.alerts[a.ID] = a
	return nil
}

func (r *Records) UpdateAlert(_ context.Context, id string, u records.Update) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return r.updateErr
	}
	a, ok := r.alerts[id]
	if !ok {
		return fmt.Errorf("alert %s not found", id)
	}
	if u.Status != nil {
		a.Status = *u.Status
	}
	if u.Notes != nil {
		a.Notes = *u.Notes
	}
	if u.Address != nil {
		a.Address = *u.Address
	}
	if u.ResolvedAt != nil {
		a.ResolvedAt = u.ResolvedAt
	}
	r.alerts[id] = a
	return nil
}

func (r *Records) AddLocation(_ context.Context, id string, loc location.Location) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.locations[id] = append(r.locations[id], loc)
	return nil
}

func (r *Records) AddNotifications(_ context.Context, id string, entries []records.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications[id] = append(r.notifications[id], entries...)
	return nil
}

// Alert returns the stored alert
func (r *Records) Alert(id string) (records.Alert, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.alerts[id]
	return a, ok
}

// Creates counts successful creates
func (r *Records) Creates() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.creates
}

// Locations returns the snapshots recorded for id
func (r *Records) Locations(id string) []location.Location {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]location.Location(nil), r.locations[id]...)
}

// Notifications returns the intents recorded for id
func (r *Records) Notifications(id string) []records.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]records.Notification(nil), r.notifications[id]...)
}

// Notifier records messages and reports every contact reached
type Notifier struct {
	mu       sync.Mutex
	messages []notify.Message
	err      error
	gate     chan struct{}
}

// Hold makes Send block until the returned function is called
func (n *Notifier) Hold() (release func()) {
	gate := make(chan struct{})
	n.mu.Lock()
	n.gate = gate
	n.mu.Unlock()

	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

// Fail makes Send return err until called with nil
func (n *Notifier) Fail(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.err = err
}

func (n *Notifier) Send(_ context.Context, contacts []notify.Contact, msg notify.Message) (*notify.Result, error) {
	n.mu.Lock()
	gate := n.gate
	n.mu.Unlock()
	if gate != nil {
		<-gate
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return nil, n.err
	}
	n.messages = append(n.messages, msg)
	return &notify.Result{TotalContacts: len(contacts), SuccessCount: len(contacts)}, nil
}

// Messages returns the delivered messages
func (n *Notifier) Messages() []notify.Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notify.Message(nil), n.messages...)
}

// Analyzer returns a fixed summary
type Analyzer struct {
	Summary  string
	AudioURL string

	mu       sync.Mutex
	requests []analysis.Request
	err      error
}

// Fail makes Analyze return err until called with nil
func (a *Analyzer) Fail(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.err = err
}

func (a *Analyzer) Analyze(_ context.Context, req *analysis.Request) (*analysis.Response, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.requests = append(a.requests, *req)
	if a.err != nil {
		return nil, a.err
	}
	return &analysis.Response{Summary: a.Summary, AudioURL: a.AudioURL}, nil
}

// Requests returns the analysis requests received
func (a *Analyzer) Requests() []analysis.Request {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]analysis.Request(nil), a.requests...)
}

// Native records fallback messages
type Native struct {
	mu       sync.Mutex
	messages []string
	err      error
}

// Fail makes SendMultiple return err until called with nil
func (n *Native) Fail(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.err = err
}

func (n *Native) SendMultiple(_ context.Context, contacts []notify.Contact, message string) (*nativesms.Result, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return nil, n.err
	}
	n.messages = append(n.messages, message)
	return &nativesms.Result{SuccessCount: len(contacts)}, nil
}

// Messages returns the fallback messages sent
func (n *Native) Messages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.messages...)
}

// Geocoder returns a fixed address
type Geocoder struct {
	Address string
}

func (g Geocoder) Resolve(context.Context, location.Location) string {
	return g.Address
}

package dispatch

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skypro1111/sos-alert-service/internal/capture"
	"github.com/skypro1111/sos-alert-service/internal/clock"
	"github.com/skypro1111/sos-alert-service/internal/connectivity"
	"github.com/skypro1111/sos-alert-service/internal/dispatch/dispatchtest"
	"github.com/skypro1111/sos-alert-service/internal/location"
	"github.com/skypro1111/sos-alert-service/internal/notify"
	"github.com/skypro1111/sos-alert-service/internal/queue"
	"github.com/skypro1111/sos-alert-service/internal/records"
	"github.com/skypro1111/sos-alert-service/internal/trigger"
)

type harness struct {
	coord    *Coordinator
	records  *dispatchtest.Records
	notifier *dispatchtest.Notifier
	analyzer *dispatchtest.Analyzer
	native   *dispatchtest.Native
	queue    *queue.Store
	conn     *connectivity.Manual
	clk      *clock.Fake
}

var testContacts = StaticContacts{
	{Name: "Alice", Phone: "555 0100"},
	{Name: "Bob", Phone: "+44 20 0000"},
}

func newHarness(t *testing.T, online, nativeSMS bool) *harness {
	t.Helper()
	clk := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	store, err := queue.Open(filepath.Join(t.TempDir(), "queue.db"), clk)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	h := &harness{
		records:  dispatchtest.NewRecords(),
		notifier: &dispatchtest.Notifier{},
		analyzer: &dispatchtest.Analyzer{Summary: "Caller reports chest pain.", AudioURL: "https://store/a.wav"},
		native:   &dispatchtest.Native{},
		queue:    store,
		conn:     connectivity.NewManual(online, nil),
		clk:      clk,
	}
	h.coord, err = NewCoordinator("Alex", Deps{
		Records:      h.records,
		Queue:        store,
		Analyzer:     h.analyzer,
		Notifier:     h.notifier,
		Native:       h.native,
		Contacts:     testContacts,
		Geocoder:     dispatchtest.Geocoder{Address: "1 Main St, Springfield"},
		Connectivity: h.conn,
		Capabilities: Capabilities{NativeSMS: nativeSMS},
		Clock:        clk,
		Logger:       slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})),
	})
	require.NoError(t, err)
	return h
}

func testAlert(id string) Alert {
	return Alert{
		ID:          id,
		TriggerType: trigger.Button,
		TriggeredAt: time.Date(2026, 3, 1, 11, 59, 0, 0, time.UTC),
		Location:    &location.Location{Latitude: 40.7128, Longitude: -74.006, Accuracy: 5},
	}
}

func TestNewCoordinatorRequiresCollaborators(t *testing.T) {
	_, err := NewCoordinator("x", Deps{})
	assert.Error(t, err)
}

func TestTriggerOnline(t *testing.T) {
	h := newHarness(t, true, true)
	ctx := context.Background()

	out, err := h.coord.Trigger(ctx, testAlert("a1"))
	require.NoError(t, err)
	assert.Equal(t, PathOnline, out.Path)
	assert.False(t, out.Queued)
	assert.Equal(t, StatusActive, out.Status)

	remote, ok := h.records.Alert("a1")
	require.True(t, ok)
	assert.Equal(t, records.StatusActive, remote.Status)
	assert.Equal(t, "Alex", remote.UserName)
	assert.Equal(t, "1 Main St, Springfield", remote.Address)
	assert.Len(t, h.records.Locations("a1"), 1)

	intents := h.records.Notifications("a1")
	require.Len(t, intents, 2)
	for _, n := range intents {
		assert.Equal(t, "pending", n.Status)
	}
	assert.Equal(t, "+15550100", intents[0].Phone)

	pending, err := h.queue.ListPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
	assert.Empty(t, h.native.Messages(), "online path does not use the native fallback")
}

func TestTriggerRemoteFailureQueues(t *testing.T) {
	h := newHarness(t, true, false)
	h.records.FailCreates(dispatchtest.ErrUnavailable)
	ctx := context.Background()

	out, err := h.coord.Trigger(ctx, testAlert("a1"))
	require.NoError(t, err)
	assert.Equal(t, PathOffline, out.Path)
	assert.True(t, out.Queued)
	assert.Equal(t, StatusCached, out.Status)

	pending, err := h.queue.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "a1", pending[0].ID)
	assert.False(t, pending[0].Synced)
}

func TestTriggerOfflineSendsNativeFallback(t *testing.T) {
	h := newHarness(t, false, true)
	ctx := context.Background()

	out, err := h.coord.Trigger(ctx, testAlert("a1"))
	require.NoError(t, err)
	assert.True(t, out.Queued)
	assert.True(t, out.NativeFallbackSent)
	assert.Contains(t, out.Status, StatusNativeSent)

	rec, err := h.queue.Get(ctx, "a1")
	require.NoError(t, err)
	assert.True(t, rec.NativeFallbackSent)
	assert.Equal(t, "Alex", rec.UserName)

	msgs := h.native.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, NativeMessage("Alex", testAlert("a1").Location), msgs[0])
	_, ok := h.records.Alert("a1")
	assert.False(t, ok)
}

func TestOfflineFallbackIndependence(t *testing.T) {
	ctx := context.Background()

	t.Run("native failure keeps queue write", func(t *testing.T) {
		h := newHarness(t, false, true)
		h.native.Fail(dispatchtest.ErrUnavailable)

		out, err := h.coord.Trigger(ctx, testAlert("a1"))
		require.NoError(t, err)
		assert.True(t, out.Queued)
		assert.False(t, out.NativeFallbackSent)

		rec, err := h.queue.Get(ctx, "a1")
		require.NoError(t, err)
		assert.False(t, rec.NativeFallbackSent)
	})

	t.Run("queue failure keeps native send", func(t *testing.T) {
		h := newHarness(t, false, true)
		require.NoError(t, h.queue.Close())

		out, err := h.coord.Trigger(ctx, testAlert("a1"))
		require.NoError(t, err)
		assert.False(t, out.Queued)
		assert.True(t, out.NativeFallbackSent)
		assert.True(t, out.PartialCapture)
		assert.Equal(t, StatusNativeSent, out.Status)
		assert.Len(t, h.native.Messages(), 1)
	})

	t.Run("both failing loses the alert loudly", func(t *testing.T) {
		h := newHarness(t, false, true)
		h.native.Fail(dispatchtest.ErrUnavailable)
		require.NoError(t, h.queue.Close())

		out, err := h.coord.Trigger(ctx, testAlert("a1"))
		assert.ErrorIs(t, err, ErrAlertLost)
		assert.Equal(t, StatusLost, out.Status)
	})

	t.Run("no native capability", func(t *testing.T) {
		h := newHarness(t, false, false)

		out, err := h.coord.Trigger(ctx, testAlert("a1"))
		require.NoError(t, err)
		assert.True(t, out.Queued)
		assert.Empty(t, h.native.Messages())
	})
}

func TestCompleteAttachesAudio(t *testing.T) {
	h := newHarness(t, false, false)
	ctx := context.Background()

	out, err := h.coord.Trigger(ctx, testAlert("a1"))
	require.NoError(t, err)

	require.NoError(t, h.coord.Complete(ctx, testAlert("a1"), out, capture.Result{
		Payload:  []byte("RIFF"),
		MimeType: "audio/wav",
		Reason:   capture.ReasonSilence,
	}))

	rec, err := h.queue.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, []byte("RIFF"), rec.Audio)
	assert.Equal(t, "audio/wav", rec.AudioMimeType)

	// nothing to attach for an empty payload or the online path
	assert.NoError(t, h.coord.Complete(ctx, testAlert("a1"), out, capture.Result{Reason: capture.ReasonError}))
	assert.NoError(t, h.coord.Complete(ctx, testAlert("x"), Outcome{Path: PathOnline}, capture.Result{Payload: []byte{1}}))
}

func TestAnalyze(t *testing.T) {
	h := newHarness(t, true, false)
	ctx := context.Background()
	a := testAlert("a1")
	a.TranscriptHint = "help me"

	_, err := h.coord.Trigger(ctx, a)
	require.NoError(t, err)

	an := h.coord.Analyze(ctx, a, []byte("RIFF"), "audio/wav")
	assert.False(t, an.Fallback)
	assert.Equal(t, "Caller reports chest pain.", an.Summary)
	assert.Equal(t, "https://store/a.wav", an.AudioURL)

	reqs := h.analyzer.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "help me", reqs[0].TranscriptHint)
	assert.Equal(t, "Alex", reqs[0].UserName)

	empty := h.coord.Analyze(ctx, a, nil, "")
	assert.True(t, empty.Fallback)
	assert.Len(t, h.analyzer.Requests(), 1, "empty audio is not sent for analysis")

	h.analyzer.Fail(dispatchtest.ErrUnavailable)
	failed := h.coord.Analyze(ctx, a, []byte("RIFF"), "audio/wav")
	assert.True(t, failed.Fallback)
	assert.Contains(t, failed.Summary, "40.7128, -74.006")
}

func TestNotifyOnline(t *testing.T) {
	h := newHarness(t, true, false)
	ctx := context.Background()
	a := testAlert("a1")

	_, err := h.coord.Trigger(ctx, a)
	require.NoError(t, err)

	res, err := h.coord.Notify(ctx, a, "Edited summary.")
	require.NoError(t, err)
	assert.Equal(t, 2, res.SuccessCount)

	msgs := h.notifier.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, OnlineMessage("Alex", "Edited summary.", a.Location), msgs[0].Body)

	remote, _ := h.records.Alert("a1")
	assert.Equal(t, records.StatusNotified, remote.Status)
	assert.Equal(t, "notified 2/2 contacts", remote.Notes)
}

func TestNotifyFailureQueuesForRetry(t *testing.T) {
	h := newHarness(t, true, false)
	ctx := context.Background()
	a := testAlert("a1")

	_, err := h.coord.Trigger(ctx, a)
	require.NoError(t, err)

	h.notifier.Fail(notify.ErrNotDelivered)
	_, err = h.coord.Notify(ctx, a, "Approved summary.")
	require.ErrorIs(t, err, notify.ErrNotDelivered)

	rec, err := h.queue.Get(ctx, "a1")
	require.NoError(t, err)
	assert.True(t, rec.RemoteCreated)
	assert.False(t, rec.Notified)
	assert.Equal(t, "Approved summary.", rec.Summary)
	assert.NotEmpty(t, rec.LastError)
}

func TestResolve(t *testing.T) {
	ctx := context.Background()

	t.Run("online", func(t *testing.T) {
		h := newHarness(t, true, false)
		a := testAlert("a1")
		out, err := h.coord.Trigger(ctx, a)
		require.NoError(t, err)

		require.NoError(t, h.coord.Resolve(ctx, a, out, "declined"))
		remote, _ := h.records.Alert("a1")
		assert.Equal(t, records.StatusResolved, remote.Status)
		assert.Equal(t, "declined", remote.Notes)
		require.NotNil(t, remote.ResolvedAt)
	})

	t.Run("online remote failure queues resolution", func(t *testing.T) {
		h := newHarness(t, true, false)
		a := testAlert("a1")
		out, err := h.coord.Trigger(ctx, a)
		require.NoError(t, err)

		h.records.FailUpdates(dispatchtest.ErrUnavailable)
		require.NoError(t, h.coord.Resolve(ctx, a, out, ""))

		rec, err := h.queue.Get(ctx, "a1")
		require.NoError(t, err)
		assert.True(t, rec.Resolved)
		assert.True(t, rec.RemoteCreated)
		assert.Equal(t, "Alex", rec.UserName)
	})

	t.Run("online resolve stops a queued notification retry", func(t *testing.T) {
		h := newHarness(t, true, false)
		a := testAlert("a1")
		out, err := h.coord.Trigger(ctx, a)
		require.NoError(t, err)

		h.notifier.Fail(dispatchtest.ErrUnavailable)
		_, err = h.coord.Notify(ctx, a, "Approved summary.")
		require.Error(t, err)
		h.notifier.Fail(nil)

		require.NoError(t, h.coord.Resolve(ctx, a, out, "cancelled"))
		rec, err := h.queue.Get(ctx, "a1")
		require.NoError(t, err)
		assert.True(t, rec.Resolved)
		assert.Equal(t, "Alex", rec.UserName)

		require.NoError(t, h.coord.Replay(ctx, *rec))
		assert.Empty(t, h.notifier.Messages())
		remote, _ := h.records.Alert("a1")
		assert.Equal(t, records.StatusResolved, remote.Status)
	})

	t.Run("offline keeps audio", func(t *testing.T) {
		h := newHarness(t, false, false)
		a := testAlert("a1")
		out, err := h.coord.Trigger(ctx, a)
		require.NoError(t, err)
		require.NoError(t, h.coord.Complete(ctx, a, out, capture.Result{Payload: []byte{1, 2}, MimeType: "audio/wav"}))

		require.NoError(t, h.coord.Resolve(ctx, a, out, ""))
		rec, err := h.queue.Get(ctx, "a1")
		require.NoError(t, err)
		assert.True(t, rec.Resolved)
		assert.Equal(t, []byte{1, 2}, rec.Audio)
		assert.False(t, rec.Synced)
	})
}

func TestReplayIsIdempotent(t *testing.T) {
	h := newHarness(t, false, false)
	ctx := context.Background()
	a := testAlert("a1")

	out, err := h.coord.Trigger(ctx, a)
	require.NoError(t, err)
	require.NoError(t, h.coord.Complete(ctx, a, out, capture.Result{Payload: []byte("RIFF"), MimeType: "audio/wav"}))

	h.conn.Set(true)
	rec, err := h.queue.Get(ctx, "a1")
	require.NoError(t, err)
	require.NoError(t, h.coord.Replay(ctx, *rec))

	remote, ok := h.records.Alert("a1")
	require.True(t, ok)
	assert.Equal(t, records.StatusNotified, remote.Status)
	assert.Equal(t, "1 Main St, Springfield", remote.Address)
	assert.Len(t, h.analyzer.Requests(), 1)
	require.Len(t, h.notifier.Messages(), 1)
	assert.Contains(t, h.notifier.Messages()[0].Body, "Caller reports chest pain.")

	rec, err = h.queue.Get(ctx, "a1")
	require.NoError(t, err)
	assert.True(t, rec.RemoteCreated)
	assert.True(t, rec.Notified)
	assert.Equal(t, "Caller reports chest pain.", rec.Summary)

	// a second pass over the same record repeats no side effect
	require.NoError(t, h.coord.Replay(ctx, *rec))
	assert.Equal(t, 1, h.records.Creates())
	assert.Len(t, h.notifier.Messages(), 1)
	assert.Len(t, h.analyzer.Requests(), 1)
}

func TestReplayRetriesAfterFailure(t *testing.T) {
	h := newHarness(t, false, false)
	ctx := context.Background()

	_, err := h.coord.Trigger(ctx, testAlert("a1"))
	require.NoError(t, err)

	h.notifier.Fail(dispatchtest.ErrUnavailable)
	rec, err := h.queue.Get(ctx, "a1")
	require.NoError(t, err)
	require.Error(t, h.coord.Replay(ctx, *rec))

	rec, err = h.queue.Get(ctx, "a1")
	require.NoError(t, err)
	assert.True(t, rec.RemoteCreated, "creation is remembered")
	assert.False(t, rec.Notified)

	h.notifier.Fail(nil)
	require.NoError(t, h.coord.Replay(ctx, *rec))
	assert.Equal(t, 1, h.records.Creates())
	assert.Len(t, h.notifier.Messages(), 1)

	// no audio: the fallback summary is sent
	assert.Contains(t, h.notifier.Messages()[0].Body, "Your contact has triggered an SOS alert")
}

func TestReplayResolvedRecordIsNotNotified(t *testing.T) {
	h := newHarness(t, false, false)
	ctx := context.Background()
	a := testAlert("a1")

	out, err := h.coord.Trigger(ctx, a)
	require.NoError(t, err)
	require.NoError(t, h.coord.Resolve(ctx, a, out, ""))

	rec, err := h.queue.Get(ctx, "a1")
	require.NoError(t, err)
	require.NoError(t, h.coord.Replay(ctx, *rec))

	remote, ok := h.records.Alert("a1")
	require.True(t, ok)
	assert.Equal(t, records.StatusResolved, remote.Status)
	assert.Empty(t, h.notifier.Messages())
	assert.Empty(t, h.analyzer.Requests())
}

func TestTemplates(t *testing.T) {
	loc := &location.Location{Latitude: 1.5, Longitude: 2.5}

	native := NativeMessage("Alex", loc)
	assert.Equal(t, "EMERGENCY ALERT: Alex has triggered an SOS. "+DegradedNotice+
		" Location: https://maps.google.com/?q=1.5,2.5 Please call immediately!", native)
	assert.NotContains(t, NativeMessage("", nil), "Location:")
	assert.True(t, strings.HasPrefix(NativeMessage(" ", nil), "EMERGENCY ALERT: Your contact has"))

	online := OnlineMessage("Alex", "Summary.", loc)
	assert.Equal(t, "EMERGENCY ALERT from Alex!\n\nSummary.\n\nLocation: https://maps.google.com/?q=1.5,2.5"+
		"\n\nPlease respond immediately or contact emergency services.", online)

	assert.Equal(t, "notified 1/3 contacts", NotifiedStatus(1, 3))
}

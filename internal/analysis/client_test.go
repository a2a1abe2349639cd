package analysis

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skypro1111/sos-alert-service/internal/location"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestClient(t *testing.T, url string, retries int) *Client {
	t.Helper()
	c, err := NewClient(Config{
		Endpoint:   url,
		APIKey:     "secret",
		Timeout:    2 * time.Second,
		MaxRetries: retries,
		Backoff:    time.Millisecond,
		Version:    "test",
	}, testLogger(), nil)
	require.NoError(t, err)
	return c
}

func TestNewClientRequiresEndpoint(t *testing.T) {
	_, err := NewClient(Config{}, testLogger(), nil)
	assert.Error(t, err)
}

func TestAnalyzeUploadsAudioAndFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseMultipartForm(1<<20))

		assert.Equal(t, "alert-1", r.FormValue("alert_id"))
		assert.Equal(t, "audio/wav", r.FormValue("mime_type"))
		assert.Equal(t, "50.45", r.FormValue("latitude"))
		assert.Equal(t, "30.52", r.FormValue("longitude"))
		assert.Equal(t, "help", r.FormValue("transcript_hint"))

		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		assert.Equal(t, "alert-1.wav", hdr.Filename)
		data, _ := io.ReadAll(f)
		assert.Equal(t, []byte("RIFFdata"), data)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"summary":       "Person reports a fall.",
			"audio_url":     "https://store/alert-1.wav",
			"transcription": "I fell",
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 0)
	resp, err := c.Analyze(context.Background(), &Request{
		AlertID:        "alert-1",
		Audio:          []byte("RIFFdata"),
		MimeType:       "audio/wav",
		TranscriptHint: "help",
		Location:       &location.Location{Latitude: 50.45, Longitude: 30.52},
	})
	require.NoError(t, err)
	assert.Equal(t, "Person reports a fall.", resp.Summary)
	assert.Equal(t, "https://store/alert-1.wav", resp.AudioURL)
	assert.Equal(t, "I fell", resp.Transcription)

	stats := c.GetStats()
	assert.Equal(t, uint64(1), stats.TotalRequests)
	assert.Equal(t, uint64(1), stats.SuccessRequests)
	assert.Equal(t, 100.0, stats.SuccessRate)
}

func TestAnalyzeRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"summary":"ok"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 3)
	resp, err := c.Analyze(context.Background(), &Request{AlertID: "a", Audio: []byte{1}, MimeType: "audio/wav"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Summary)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, uint64(2), c.GetStats().TotalRetries)
}

func TestAnalyzeDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad audio", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 3)
	_, err := c.Analyze(context.Background(), &Request{AlertID: "a", Audio: []byte{1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, uint64(1), c.GetStats().FailedRequests)
}

func TestAnalyzeRejectsEmptySummary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"summary":""}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 0)
	_, err := c.Analyze(context.Background(), &Request{AlertID: "a", Audio: []byte{1}})
	assert.Error(t, err)
}

func TestAnalyzeRequiresAudio(t *testing.T) {
	c := newTestClient(t, "http://127.0.0.1:1", 0)
	_, err := c.Analyze(context.Background(), &Request{AlertID: "a"})
	assert.Error(t, err)
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"rate limited", &statusError{code: 429}, true},
		{"server error", &statusError{code: 502}, true},
		{"bad request", &statusError{code: 400}, false},
		{"deadline", context.DeadlineExceeded, true},
		{"other", io.ErrUnexpectedEOF, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isRetryableError(tt.err))
		})
	}
}

func TestFallbackSummary(t *testing.T) {
	s := FallbackSummary(&location.Location{Latitude: 1.5, Longitude: -2.25})
	assert.True(t, strings.HasPrefix(s, "EMERGENCY ALERT"))
	assert.Contains(t, s, "Location: 1.5, -2.25.")

	assert.Contains(t, FallbackSummary(nil), "Location: Unknown.")
}

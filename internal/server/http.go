package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skypro1111/sos-alert-service/internal/alert"
	"github.com/skypro1111/sos-alert-service/internal/config"
	"github.com/skypro1111/sos-alert-service/internal/location"
	"github.com/skypro1111/sos-alert-service/internal/metrics"
	"github.com/skypro1111/sos-alert-service/internal/queue"
	"github.com/skypro1111/sos-alert-service/internal/reconcile"
	"github.com/skypro1111/sos-alert-service/internal/trigger"
)

const maxBodyBytes = 64 << 10

// Machine is the alert state machine as seen by the API
type Machine interface {
	Snapshot() alert.Session
	Trigger(t trigger.Type, hint string) error
	Cancel() error
	Approve(summary string) error
	Decline() error
}

// Locations accepts position reports
type Locations interface {
	Update(loc location.Location) error
	Current() *location.Location
}

// PendingQueue lists records waiting for sync
type PendingQueue interface {
	ListPending(ctx context.Context) ([]queue.Record, error)
}

// Syncer runs the reconciler on demand
type Syncer interface {
	Run(ctx context.Context) (reconcile.Result, error)
	GetStats() reconcile.Stats
}

// Connectivity reports reachability
type Connectivity interface {
	Online() bool
}

// HTTPDeps are the components served by the API
type HTTPDeps struct {
	Machine      Machine
	Locations    Locations
	Queue        PendingQueue
	Sync         Syncer
	Connectivity Connectivity
	UDP          *UDPServer
	// Stats adds named sections to /stats
	Stats    map[string]func() any
	Gatherer prometheus.Gatherer
}

// HTTPServer provides the alert API plus monitoring endpoints
type HTTPServer struct {
	server  *http.Server
	logger  *slog.Logger
	config  *config.Config
	deps    HTTPDeps
	metrics *metrics.Metrics
	version string

	startTime time.Time
}

// NewHTTPServer creates a new HTTP API server
func NewHTTPServer(cfg config.HTTPConfig, logger *slog.Logger,
	appConfig *config.Config, deps HTTPDeps, m *metrics.Metrics, version string) *HTTPServer {

	h := &HTTPServer{
		logger:    logger,
		config:    appConfig,
		deps:      deps,
		metrics:   m,
		version:   version,
		startTime: time.Now(),
	}

	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
		Handler:      h.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// Routes builds the API router
func (h *HTTPServer) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(h.recoverer)

	r.Get("/health", h.withMetrics("/health", h.handleHealth))
	r.Get("/config", h.withMetrics("/config", h.handleConfig))
	r.Get("/stats", h.withMetrics("/stats", h.handleStats))

	r.Route("/alert", func(r chi.Router) {
		r.Get("/", h.withMetrics("/alert", h.handleAlert))
		r.Post("/trigger", h.withMetrics("/alert/trigger", h.handleTrigger))
		r.Post("/cancel", h.withMetrics("/alert/cancel", h.handleCancel))
		r.Post("/approve", h.withMetrics("/alert/approve", h.handleApprove))
		r.Post("/decline", h.withMetrics("/alert/decline", h.handleDecline))
	})

	r.Post("/location", h.withMetrics("/location", h.handleLocation))
	r.Get("/queue", h.withMetrics("/queue", h.handleQueue))
	r.Post("/sync", h.withMetrics("/sync", h.handleSync))

	gatherer := h.deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Get("/", h.withMetrics("/", h.handleRoot))

	return r
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		statusCode := fmt.Sprintf("%d", ww.statusCode)

		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// recoverer turns a handler panic into a 500
func (h *HTTPServer) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				h.logger.Error("Panic in HTTP handler",
					slog.String("path", r.URL.Path),
					slog.Any("panic", rec),
					slog.String("stack", string(debug.Stack())),
				)
				writeError(w, http.StatusInternalServerError, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP API server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	return h.server.Shutdown(ctx)
}

func (h *HTTPServer) online() bool {
	return h.deps.Connectivity != nil && h.deps.Connectivity.Online()
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	session := h.deps.Machine.Snapshot()

	components := map[string]interface{}{
		"alert_machine": map[string]interface{}{
			"status": "running",
			"state":  session.State,
		},
		"connectivity": map[string]interface{}{
			"online": h.online(),
		},
	}
	if h.deps.Sync != nil {
		stats := h.deps.Sync.GetStats()
		components["sync"] = map[string]interface{}{
			"running":        stats.Running,
			"runs":           stats.Runs,
			"records_synced": stats.RecordsSynced,
			"records_failed": stats.RecordsFailed,
			"last_run":       stats.LastRun,
		}
	}
	if h.deps.UDP != nil {
		udpStats := h.deps.UDP.GetStatistics()
		components["udp_server"] = map[string]interface{}{
			"status":            "running",
			"packets_received":  udpStats.PacketsReceived,
			"packets_processed": udpStats.PacketsProcessed,
			"parse_errors":      udpStats.ParseErrors,
			"queue_size":        udpStats.QueueSize,
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"service": map[string]interface{}{
			"name":    h.config.Service.Name,
			"version": h.version,
		},
		"components": components,
	})
}

// handleConfig implements the /config endpoint with credentials masked
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.config.Redacted())
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{
		"uptime":    time.Since(h.startTime).String(),
		"timestamp": time.Now().UTC(),
		"online":    h.online(),
	}
	if h.deps.UDP != nil {
		stats["udp"] = h.deps.UDP.GetStatistics()
	}
	if h.deps.Sync != nil {
		stats["sync"] = h.deps.Sync.GetStats()
	}
	for name, source := range h.deps.Stats {
		stats[name] = source()
	}

	writeJSON(w, http.StatusOK, stats)
}

// handleAlert implements GET /alert
func (h *HTTPServer) handleAlert(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Machine.Snapshot())
}

type triggerRequest struct {
	Type string `json:"type"`
	Hint string `json:"hint"`
}

// handleTrigger implements POST /alert/trigger
func (h *HTTPServer) handleTrigger(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Type == "" {
		req.Type = string(trigger.Button)
	}

	t, err := trigger.Parse(req.Type)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.submit(w, h.deps.Machine.Trigger(t, req.Hint))
}

// handleCancel implements POST /alert/cancel
func (h *HTTPServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	h.submit(w, h.deps.Machine.Cancel())
}

type approveRequest struct {
	Summary string `json:"summary"`
}

// handleApprove implements POST /alert/approve. An empty summary keeps the
// analyzed one
func (h *HTTPServer) handleApprove(w http.ResponseWriter, r *http.Request) {
	var req approveRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.submit(w, h.deps.Machine.Approve(req.Summary))
}

// handleDecline implements POST /alert/decline
func (h *HTTPServer) handleDecline(w http.ResponseWriter, r *http.Request) {
	h.submit(w, h.deps.Machine.Decline())
}

// submit answers an accepted event with the session as it stands
func (h *HTTPServer) submit(w http.ResponseWriter, err error) {
	if errors.Is(err, alert.ErrQueueFull) {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, h.deps.Machine.Snapshot())
}

// handleLocation implements POST /location
func (h *HTTPServer) handleLocation(w http.ResponseWriter, r *http.Request) {
	var loc location.Location
	if !h.decode(w, r, &loc) {
		return
	}

	if err := h.deps.Locations.Update(loc); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, h.deps.Locations.Current())
}

// queuedAlert is a pending record without its audio
type queuedAlert struct {
	ID                 string             `json:"id"`
	TriggerType        trigger.Type       `json:"trigger_type"`
	TriggeredAt        time.Time          `json:"triggered_at"`
	Location           *location.Location `json:"location,omitempty"`
	Address            string             `json:"address,omitempty"`
	AudioBytes         int                `json:"audio_bytes"`
	NativeFallbackSent bool               `json:"native_fallback_sent"`
	Resolved           bool               `json:"resolved"`
	RemoteCreated      bool               `json:"remote_created"`
	Notified           bool               `json:"notified"`
	Attempts           int                `json:"attempts"`
	LastError          string             `json:"last_error,omitempty"`
}

// handleQueue implements GET /queue
func (h *HTTPServer) handleQueue(w http.ResponseWriter, r *http.Request) {
	records, err := h.deps.Queue.ListPending(r.Context())
	if err != nil {
		h.logger.Error("Failed to list queued alerts", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to read queue")
		return
	}

	pending := make([]queuedAlert, 0, len(records))
	for _, rec := range records {
		pending = append(pending, queuedAlert{
			ID:                 rec.ID,
			TriggerType:        rec.TriggerType,
			TriggeredAt:        rec.TriggeredAt,
			Location:           rec.Location,
			Address:            rec.Address,
			AudioBytes:         len(rec.Audio),
			NativeFallbackSent: rec.NativeFallbackSent,
			Resolved:           rec.Resolved,
			RemoteCreated:      rec.RemoteCreated,
			Notified:           rec.Notified,
			Attempts:           rec.Attempts,
			LastError:          rec.LastError,
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total_pending": len(pending),
		"timestamp":     time.Now().UTC(),
		"alerts":        pending,
	})
}

// handleSync implements POST /sync
func (h *HTTPServer) handleSync(w http.ResponseWriter, r *http.Request) {
	if !h.online() {
		writeError(w, http.StatusConflict, "offline")
		return
	}

	res, err := h.deps.Sync.Run(r.Context())
	if err != nil {
		h.logger.Error("Manual sync failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"service": h.config.Service.Name,
		"version": h.version,
		"endpoints": map[string]interface{}{
			"GET /":               "API documentation",
			"GET /health":         "Service health check",
			"GET /config":         "Service configuration, credentials masked",
			"GET /stats":          "Service statistics",
			"GET /alert":          "Current alert session",
			"POST /alert/trigger": "Start the countdown, or cancel a session in progress",
			"POST /alert/cancel":  "Cancel the current session",
			"POST /alert/approve": "Send the summary to contacts",
			"POST /alert/decline": "Close the session without notifying",
			"POST /location":      "Report the device position",
			"GET /queue":          "Alerts waiting for sync",
			"POST /sync":          "Sync queued alerts now",
			"GET /metrics":        "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	})
}

// decode reads an optional JSON body. An empty body leaves v untouched
func (h *HTTPServer) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	h.logger.Debug("Invalid request body",
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	writeError(w, http.StatusBadRequest, "invalid JSON body")
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

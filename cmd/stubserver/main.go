// Command stubserver stands in for the analysis service, the record store
// and the SMS gateway during local testing.
package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/skypro1111/sos-alert-service/internal/notify"
	"github.com/skypro1111/sos-alert-service/internal/records"
)

type analyzeResponse struct {
	Summary       string    `json:"summary"`
	AudioURL      string    `json:"audio_url"`
	Transcription string    `json:"transcription"`
	ProcessedAt   time.Time `json:"processed_at"`
}

type gatewayRequest struct {
	AlertID  string           `json:"alertId"`
	Message  string           `json:"message"`
	Contacts []notify.Contact `json:"contacts"`
}

type storedAlert struct {
	records.Alert
	AudioURL      string                 `json:"audio_url,omitempty"`
	Locations     []json.RawMessage      `json:"locations,omitempty"`
	Notifications []records.Notification `json:"notifications,omitempty"`
}

type stub struct {
	logger  *slog.Logger
	latency time.Duration
	offline bool

	mu     sync.Mutex
	alerts map[string]*storedAlert
	sent   []gatewayRequest
}

func main() {
	var addr string
	var latency time.Duration
	var offline bool

	cmd := &cobra.Command{
		Use:   "stubserver",
		Short: "Local stand-in for the analysis, record store and SMS gateway APIs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
			s := &stub{
				logger:  logger,
				latency: latency,
				offline: offline,
				alerts:  make(map[string]*storedAlert),
			}

			logger.Info("Stub server starting", slog.String("address", addr))
			return http.ListenAndServe(addr, s.routes())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":9000", "Listen address")
	cmd.Flags().DurationVar(&latency, "latency", 200*time.Millisecond, "Simulated analysis time")
	cmd.Flags().BoolVar(&offline, "offline", false, "Answer every request with 503")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func (s *stub) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.unavailable)

	r.Get("/health", s.handleHealth)
	r.Head("/health", s.handleHealth)
	r.Post("/analyze", s.handleAnalyze)
	r.Post("/notify", s.handleNotify)

	r.Route("/alerts", func(r chi.Router) {
		r.Get("/", s.handleListAlerts)
		r.Post("/", s.handleCreateAlert)
		r.Patch("/{id}", s.handleUpdateAlert)
		r.Post("/{id}/locations", s.handleAddLocation)
		r.Post("/{id}/notifications", s.handleAddNotifications)
	})

	return r
}

func (s *stub) unavailable(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.offline {
			http.Error(w, "service unavailable", http.StatusServiceUnavailable)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *stub) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *stub) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "Error getting audio file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	audio, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "Error reading audio file", http.StatusInternalServerError)
		return
	}

	alertID := r.FormValue("alert_id")
	s.logger.Info("Analysis request",
		slog.String("alert_id", alertID),
		slog.String("request_id", r.FormValue("request_id")),
		slog.String("user_name", r.FormValue("user_name")),
		slog.String("filename", header.Filename),
		slog.Int("audio_bytes", len(audio)),
		slog.String("mime_type", r.FormValue("mime_type")),
		slog.String("latitude", r.FormValue("latitude")),
		slog.String("longitude", r.FormValue("longitude")),
		slog.String("service", r.FormValue("service_name")+" "+r.FormValue("service_version")),
	)

	time.Sleep(s.latency)

	name := r.FormValue("user_name")
	if name == "" {
		name = "The caller"
	}
	writeJSON(w, http.StatusOK, analyzeResponse{
		Summary:       name + " sounds distressed and reports a fall at home. They are conscious but unable to stand.",
		AudioURL:      "https://storage.example.com/alerts/" + alertID + "/" + header.Filename,
		Transcription: "I fell and I can't get up. Please send help.",
		ProcessedAt:   time.Now().UTC(),
	})
}

func (s *stub) handleNotify(w http.ResponseWriter, r *http.Request) {
	var req gatewayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	res := notify.Result{TotalContacts: len(req.Contacts)}
	for _, c := range req.Contacts {
		res.SuccessCount++
		res.Results = append(res.Results, notify.ContactResult{
			Contact: c.Phone,
			Success: true,
			SID:     "SM" + uuid.NewString()[:8],
		})
	}

	s.mu.Lock()
	s.sent = append(s.sent, req)
	s.mu.Unlock()

	s.logger.Info("Notification",
		slog.String("alert_id", req.AlertID),
		slog.Int("contacts", len(req.Contacts)),
		slog.String("message", req.Message),
	)
	writeJSON(w, http.StatusOK, res)
}

func (s *stub) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	alerts := make([]*storedAlert, 0, len(s.alerts))
	for _, a := range s.alerts {
		alerts = append(alerts, a)
	}
	s.mu.Unlock()

	sort.Slice(alerts, func(i, j int) bool {
		return alerts[i].TriggeredAt.Before(alerts[j].TriggeredAt)
	})
	writeJSON(w, http.StatusOK, alerts)
}

func (s *stub) handleCreateAlert(w http.ResponseWriter, r *http.Request) {
	var a records.Alert
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil || a.ID == "" {
		http.Error(w, "invalid alert", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.alerts[a.ID]; ok {
		http.Error(w, "alert exists", http.StatusConflict)
		return
	}
	s.alerts[a.ID] = &storedAlert{Alert: a}

	s.logger.Info("Alert created",
		slog.String("alert_id", a.ID),
		slog.String("status", a.Status),
		slog.String("trigger", a.TriggerType),
	)
	writeJSON(w, http.StatusCreated, a)
}

func (s *stub) handleUpdateAlert(w http.ResponseWriter, r *http.Request) {
	var u records.Update
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		http.Error(w, "invalid update", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[chi.URLParam(r, "id")]
	if !ok {
		http.NotFound(w, r)
		return
	}
	if u.Status != nil {
		a.Status = *u.Status
	}
	if u.Notes != nil {
		a.Notes = *u.Notes
	}
	if u.AudioURL != nil {
		a.AudioURL = *u.AudioURL
	}
	if u.Address != nil {
		a.Address = *u.Address
	}
	if u.ResolvedAt != nil {
		a.ResolvedAt = u.ResolvedAt
	}

	s.logger.Info("Alert updated", slog.String("alert_id", a.ID), slog.String("status", a.Status))
	writeJSON(w, http.StatusOK, a)
}

func (s *stub) handleAddLocation(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil || !json.Valid(body) {
		http.Error(w, "invalid location", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[chi.URLParam(r, "id")]
	if !ok {
		http.NotFound(w, r)
		return
	}
	a.Locations = append(a.Locations, body)
	w.WriteHeader(http.StatusCreated)
}

func (s *stub) handleAddNotifications(w http.ResponseWriter, r *http.Request) {
	var entries []records.Notification
	if err := json.NewDecoder(r.Body).Decode(&entries); err != nil {
		http.Error(w, "invalid notifications", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[chi.URLParam(r, "id")]
	if !ok {
		http.NotFound(w, r)
		return
	}
	a.Notifications = append(a.Notifications, entries...)
	w.WriteHeader(http.StatusCreated)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

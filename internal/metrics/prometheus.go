package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the SOS alert service
type Metrics struct {
	// UDP packet metrics
	PacketsReceived  prometheus.Counter
	PacketsProcessed prometheus.Counter
	ParseErrors      prometheus.Counter
	QueueSize        prometheus.Gauge

	// Alert session metrics
	SessionsTriggered *prometheus.CounterVec
	SessionsEnded     *prometheus.CounterVec
	ActiveSessions    prometheus.Gauge

	// Recording metrics
	RecordingsStopped *prometheus.CounterVec
	RecordingDuration prometheus.Histogram
	RecordingSize     prometheus.Histogram
	LevelSamples      prometheus.Counter
	LoudSamples       prometheus.Counter

	// Dispatch metrics
	DispatchPaths      *prometheus.CounterVec
	RemoteFailures     prometheus.Counter
	NativeFallbacks    *prometheus.CounterVec
	OfflineQueueDepth  prometheus.Gauge
	OfflineQueueErrors prometheus.Counter

	// Sync metrics
	SyncRuns    *prometheus.CounterVec
	SyncRecords *prometheus.CounterVec

	// Analysis metrics
	AnalysisRequests  prometheus.Counter
	AnalysisSuccesses prometheus.Counter
	AnalysisFailures  prometheus.Counter
	AnalysisDuration  prometheus.Histogram
	AnalysisRetries   prometheus.Counter

	// Notification and enrichment metrics
	Notifications   *prometheus.CounterVec
	GeocodeLookups  *prometheus.CounterVec
	Online          prometheus.Gauge
	ConnTransitions *prometheus.CounterVec

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// UDP packet metrics
		PacketsReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "sos_packets_received_total",
			Help: "Total number of UDP packets received",
		}),
		PacketsProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "sos_packets_processed_total",
			Help: "Total number of UDP packets successfully processed",
		}),
		ParseErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "sos_parse_errors_total",
			Help: "Total number of packet parsing errors",
		}),
		QueueSize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "sos_packet_queue_size",
			Help: "Current number of packets in processing queue",
		}),

		// Alert session metrics
		SessionsTriggered: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sos_sessions_triggered_total",
			Help: "Total number of alert sessions started, by trigger type",
		}, []string{"trigger"}),
		SessionsEnded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sos_sessions_ended_total",
			Help: "Total number of alert sessions that reached a terminal state",
		}, []string{"state"}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "sos_active_sessions",
			Help: "Number of non-terminal alert sessions (0 or 1)",
		}),

		// Recording metrics
		RecordingsStopped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sos_recordings_stopped_total",
			Help: "Total number of recordings stopped, by reason",
		}, []string{"reason"}),
		RecordingDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "sos_recording_duration_seconds",
			Help:    "Duration of recordings",
			Buckets: prometheus.LinearBuckets(15, 15, 12), // 15s to 180s
		}),
		RecordingSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "sos_recording_size_bytes",
			Help:    "Size of final recording payloads",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 14), // 1KB to ~8MB
		}),
		LevelSamples: factory.NewCounter(prometheus.CounterOpts{
			Name: "sos_level_samples_total",
			Help: "Total number of audio level samples taken",
		}),
		LoudSamples: factory.NewCounter(prometheus.CounterOpts{
			Name: "sos_loud_samples_total",
			Help: "Total number of audio level samples above the silence threshold",
		}),

		// Dispatch metrics
		DispatchPaths: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sos_dispatch_total",
			Help: "Total number of dispatch decisions, by path",
		}, []string{"path"}),
		RemoteFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "sos_remote_record_failures_total",
			Help: "Total number of remote record operations that failed",
		}),
		NativeFallbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sos_native_fallback_total",
			Help: "Total number of native fallback sends, by result",
		}, []string{"result"}),
		OfflineQueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "sos_offline_queue_pending",
			Help: "Number of unsynced records in the offline queue",
		}),
		OfflineQueueErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "sos_offline_queue_errors_total",
			Help: "Total number of failed offline queue writes",
		}),

		// Sync metrics
		SyncRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sos_sync_runs_total",
			Help: "Total number of reconciliation runs, by result",
		}, []string{"result"}),
		SyncRecords: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sos_sync_records_total",
			Help: "Total number of queued records processed, by result",
		}, []string{"result"}),

		// Analysis metrics
		AnalysisRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "sos_analysis_requests_total",
			Help: "Total number of analysis requests sent",
		}),
		AnalysisSuccesses: factory.NewCounter(prometheus.CounterOpts{
			Name: "sos_analysis_successes_total",
			Help: "Total number of successful analysis requests",
		}),
		AnalysisFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "sos_analysis_failures_total",
			Help: "Total number of failed analysis requests",
		}),
		AnalysisDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "sos_analysis_duration_seconds",
			Help:    "Duration of analysis requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~1 minute
		}),
		AnalysisRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "sos_analysis_retries_total",
			Help: "Total number of analysis request retries",
		}),

		// Notification and enrichment metrics
		Notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sos_notifications_total",
			Help: "Total number of contact notifications, by result",
		}, []string{"result"}),
		GeocodeLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sos_geocode_lookups_total",
			Help: "Total number of reverse geocode lookups, by result",
		}, []string{"result"}),
		Online: factory.NewGauge(prometheus.GaugeOpts{
			Name: "sos_online",
			Help: "1 when the remote backend is reachable",
		}),
		ConnTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sos_connectivity_transitions_total",
			Help: "Total number of connectivity transitions, by new state",
		}, []string{"state"}),

		// HTTP API metrics
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sos_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sos_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sos_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordPacketReceived increments the packets received counter
func (m *Metrics) RecordPacketReceived() {
	if m == nil {
		return
	}
	m.PacketsReceived.Inc()
}

// RecordPacketProcessed increments the packets processed counter
func (m *Metrics) RecordPacketProcessed() {
	if m == nil {
		return
	}
	m.PacketsProcessed.Inc()
}

// RecordParseError increments the parse errors counter
func (m *Metrics) RecordParseError() {
	if m == nil {
		return
	}
	m.ParseErrors.Inc()
}

// SetQueueSize sets the current packet queue size
func (m *Metrics) SetQueueSize(size int) {
	if m == nil {
		return
	}
	m.QueueSize.Set(float64(size))
}

// RecordSessionTriggered counts a session entering countdown
func (m *Metrics) RecordSessionTriggered(triggerType string) {
	if m == nil {
		return
	}
	m.SessionsTriggered.WithLabelValues(triggerType).Inc()
	m.ActiveSessions.Set(1)
}

// RecordSessionEnded counts a session reaching a terminal state
func (m *Metrics) RecordSessionEnded(state string) {
	if m == nil {
		return
	}
	m.SessionsEnded.WithLabelValues(state).Inc()
	m.ActiveSessions.Set(0)
}

// RecordRecordingStopped records a finished recording
func (m *Metrics) RecordRecordingStopped(reason string, durationSeconds float64, sizeBytes int) {
	if m == nil {
		return
	}
	m.RecordingsStopped.WithLabelValues(reason).Inc()
	m.RecordingDuration.Observe(durationSeconds)
	m.RecordingSize.Observe(float64(sizeBytes))
}

// RecordLevelSample counts a level sample and whether it was loud
func (m *Metrics) RecordLevelSample(loud bool) {
	if m == nil {
		return
	}
	m.LevelSamples.Inc()
	if loud {
		m.LoudSamples.Inc()
	}
}

// RecordDispatch counts a dispatch decision
func (m *Metrics) RecordDispatch(path string) {
	if m == nil {
		return
	}
	m.DispatchPaths.WithLabelValues(path).Inc()
}

// RecordRemoteFailure counts a failed remote record operation
func (m *Metrics) RecordRemoteFailure() {
	if m == nil {
		return
	}
	m.RemoteFailures.Inc()
}

// RecordNativeFallback counts a native fallback send
func (m *Metrics) RecordNativeFallback(success bool) {
	if m == nil {
		return
	}
	m.NativeFallbacks.WithLabelValues(resultLabel(success)).Inc()
}

// SetOfflineQueueDepth sets the number of pending queued records
func (m *Metrics) SetOfflineQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.OfflineQueueDepth.Set(float64(depth))
}

// RecordOfflineQueueError counts a failed queue write
func (m *Metrics) RecordOfflineQueueError() {
	if m == nil {
		return
	}
	m.OfflineQueueErrors.Inc()
}

// RecordSyncRun counts a reconciliation run
func (m *Metrics) RecordSyncRun(result string) {
	if m == nil {
		return
	}
	m.SyncRuns.WithLabelValues(result).Inc()
}

// RecordSyncRecord counts one queued record processed by a run
func (m *Metrics) RecordSyncRecord(success bool) {
	if m == nil {
		return
	}
	m.SyncRecords.WithLabelValues(resultLabel(success)).Inc()
}

// RecordAnalysisRequest increments analysis requests counter
func (m *Metrics) RecordAnalysisRequest() {
	if m == nil {
		return
	}
	m.AnalysisRequests.Inc()
}

// RecordAnalysisSuccess records a successful analysis
func (m *Metrics) RecordAnalysisSuccess(durationSeconds float64) {
	if m == nil {
		return
	}
	m.AnalysisSuccesses.Inc()
	m.AnalysisDuration.Observe(durationSeconds)
}

// RecordAnalysisFailure records a failed analysis
func (m *Metrics) RecordAnalysisFailure(durationSeconds float64) {
	if m == nil {
		return
	}
	m.AnalysisFailures.Inc()
	m.AnalysisDuration.Observe(durationSeconds)
}

// RecordAnalysisRetry increments the retry counter
func (m *Metrics) RecordAnalysisRetry() {
	if m == nil {
		return
	}
	m.AnalysisRetries.Inc()
}

// RecordNotifications counts per-contact notification results
func (m *Metrics) RecordNotifications(succeeded, total int) {
	if m == nil {
		return
	}
	m.Notifications.WithLabelValues("success").Add(float64(succeeded))
	m.Notifications.WithLabelValues("failure").Add(float64(total - succeeded))
}

// RecordGeocodeLookup counts a reverse geocode lookup: hit, miss or error
func (m *Metrics) RecordGeocodeLookup(result string) {
	if m == nil {
		return
	}
	m.GeocodeLookups.WithLabelValues(result).Inc()
}

// SetOnline records the connectivity state
func (m *Metrics) SetOnline(online bool) {
	if m == nil {
		return
	}
	if online {
		m.Online.Set(1)
		m.ConnTransitions.WithLabelValues("online").Inc()
		return
	}
	m.Online.Set(0)
	m.ConnTransitions.WithLabelValues("offline").Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	if m == nil {
		return
	}
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

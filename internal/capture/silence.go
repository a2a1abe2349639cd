package capture

import "time"

// silenceTracker decides when sustained silence should end a recording.
// Silence alone stops a recording only after sound was heard at least once or
// the grace period has elapsed
type silenceTracker struct {
	threshold float32
	timeout   time.Duration
	grace     time.Duration

	startedAt    time.Time
	silenceSince time.Time
	hasHadSound  bool
}

func newSilenceTracker(cfg Config, start time.Time) *silenceTracker {
	return &silenceTracker{
		threshold:    cfg.SilenceThreshold,
		timeout:      cfg.SilenceTimeout,
		grace:        cfg.Grace,
		startedAt:    start,
		silenceSince: start,
	}
}

// observe records a level sample taken at now
func (s *silenceTracker) observe(level float32, now time.Time) (isSilent bool, silentFor time.Duration, stop bool) {
	if level >= s.threshold {
		s.hasHadSound = true
		s.silenceSince = now
		return false, 0, false
	}

	silentFor = now.Sub(s.silenceSince)
	elapsed := now.Sub(s.startedAt)
	stop = silentFor >= s.timeout && (s.hasHadSound || elapsed >= s.grace)

	return true, silentFor, stop
}

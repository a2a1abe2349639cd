package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/skypro1111/sos-alert-service/internal/analysis"
	"github.com/skypro1111/sos-alert-service/internal/capture"
	"github.com/skypro1111/sos-alert-service/internal/notify"
	"github.com/skypro1111/sos-alert-service/internal/queue"
	"github.com/skypro1111/sos-alert-service/internal/records"
)

// Analysis is the summary presented for approval
type Analysis struct {
	Summary       string `json:"summary"`
	AudioURL      string `json:"audio_url,omitempty"`
	Transcription string `json:"transcription,omitempty"`
	// Fallback is set when the summary is the fixed template
	Fallback bool `json:"fallback"`
}

// Complete handles the end of recording for an alert on the offline path:
// the payload is attached to the queued record. It is a no-op otherwise
func (c *Coordinator) Complete(ctx context.Context, a Alert, out Outcome, result capture.Result) error {
	if out.Path != PathOffline || !out.Queued || len(result.Payload) == 0 {
		return nil
	}
	err := c.Queue.Update(ctx, a.ID, queue.Patch{Audio: result.Payload, AudioMimeType: result.MimeType})
	if err != nil {
		c.Metrics.RecordOfflineQueueError()
		return fmt.Errorf("attach audio to %s: %w", a.ID, err)
	}
	c.Logger.Info("Audio attached to queued alert",
		slog.String("alert_id", a.ID),
		slog.Int("bytes", len(result.Payload)),
		slog.String("reason", string(result.Reason)),
	)
	return nil
}

// Analyze requests a summary for the recording. It never fails: without
// audio, or when the service fails, the fixed fallback summary is returned
func (c *Coordinator) Analyze(ctx context.Context, a Alert, audio []byte, mimeType string) Analysis {
	a = c.reporter(a)
	if len(audio) == 0 {
		return Analysis{Summary: analysis.FallbackSummary(a.Location), Fallback: true}
	}

	resp, err := c.Analyzer.Analyze(ctx, &analysis.Request{
		AlertID:        a.ID,
		UserName:       a.UserName,
		Audio:          audio,
		MimeType:       mimeType,
		TranscriptHint: a.TranscriptHint,
		Location:       a.Location,
	})
	if err != nil {
		c.Logger.Warn("Analysis failed, using fallback summary",
			slog.String("alert_id", a.ID),
			slog.String("error", err.Error()),
		)
		return Analysis{Summary: analysis.FallbackSummary(a.Location), Fallback: true}
	}

	if resp.AudioURL != "" {
		if err := c.Records.UpdateAlert(ctx, a.ID, records.Update{AudioURL: &resp.AudioURL}); err != nil {
			c.Logger.Warn("Failed to store audio url",
				slog.String("alert_id", a.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	return Analysis{Summary: resp.Summary, AudioURL: resp.AudioURL, Transcription: resp.Transcription}
}

// Notify sends the approved summary. When delivery fails the alert is queued
// so the reconciler retries it
func (c *Coordinator) Notify(ctx context.Context, a Alert, summary string) (*notify.Result, error) {
	a = c.reporter(a)
	res, err := c.deliver(ctx, a, summary)
	if err == nil {
		return res, nil
	}

	lastErr := err.Error()
	qerr := c.Queue.Enqueue(ctx, queue.Record{
		ID:            a.ID,
		UserName:      a.UserName,
		TriggerType:   a.TriggerType,
		TriggeredAt:   a.TriggeredAt,
		Location:      a.Location,
		Summary:       summary,
		RemoteCreated: true,
		LastError:     lastErr,
	})
	if qerr != nil {
		c.Metrics.RecordOfflineQueueError()
		c.Logger.Error("Failed to queue undelivered alert",
			slog.String("alert_id", a.ID),
			slog.String("error", qerr.Error()),
		)
	} else {
		c.refreshQueueDepth(ctx)
	}
	return res, err
}

// deliver sends the online message and marks the remote record notified
func (c *Coordinator) deliver(ctx context.Context, a Alert, summary string) (*notify.Result, error) {
	a = c.reporter(a)
	contacts := c.Contacts.Contacts()
	if len(contacts) == 0 {
		c.Logger.Warn("No emergency contacts configured", slog.String("alert_id", a.ID))
	}

	res, err := c.Notifier.Send(ctx, contacts, notify.Message{
		AlertID:  a.ID,
		Body:     OnlineMessage(a.UserName, summary, a.Location),
		Location: a.Location,
	})
	if err != nil {
		return res, fmt.Errorf("notify contacts for %s: %w", a.ID, err)
	}

	status := records.StatusNotified
	note := NotifiedStatus(res.SuccessCount, res.TotalContacts)
	if err := c.Records.UpdateAlert(ctx, a.ID, records.Update{Status: &status, Notes: &note}); err != nil {
		c.Logger.Warn("Failed to mark alert notified",
			slog.String("alert_id", a.ID),
			slog.String("error", err.Error()),
		)
	}

	c.Logger.Info("Contacts notified",
		slog.String("alert_id", a.ID),
		slog.Int("success", res.SuccessCount),
		slog.Int("total", res.TotalContacts),
	)
	return res, nil
}

// Resolve marks the alert resolved wherever it lives. note is stored on the
// remote record. A remote failure queues the resolution for the reconciler
func (c *Coordinator) Resolve(ctx context.Context, a Alert, out Outcome, note string) error {
	a = c.reporter(a)
	resolved := true

	if out.Path == PathOffline {
		if !out.Queued {
			return nil
		}
		if err := c.Queue.Update(ctx, a.ID, queue.Patch{Resolved: &resolved}); err != nil {
			return fmt.Errorf("resolve queued %s: %w", a.ID, err)
		}
		return nil
	}

	err := c.markRemoteResolved(ctx, a.ID, note)
	if err == nil {
		// a failed delivery may have queued a retry that must not notify
		err := c.Queue.Update(ctx, a.ID, queue.Patch{Resolved: &resolved})
		if err != nil && !errors.Is(err, queue.ErrNotFound) {
			return fmt.Errorf("resolve queued retry %s: %w", a.ID, err)
		}
		return nil
	}
	c.Logger.Warn("Failed to resolve remote record, queueing",
		slog.String("alert_id", a.ID),
		slog.String("error", err.Error()),
	)

	err = c.Queue.Enqueue(ctx, queue.Record{
		ID:            a.ID,
		UserName:      a.UserName,
		TriggerType:   a.TriggerType,
		TriggeredAt:   a.TriggeredAt,
		Location:      a.Location,
		RemoteCreated: true,
		Resolved:      true,
	})
	if err != nil {
		c.Metrics.RecordOfflineQueueError()
		return fmt.Errorf("queue resolution of %s: %w", a.ID, err)
	}
	return nil
}

func (c *Coordinator) markRemoteResolved(ctx context.Context, id, note string) error {
	status := records.StatusResolved
	now := c.Clock.Now()
	update := records.Update{Status: &status, ResolvedAt: &now}
	if note != "" {
		update.Notes = &note
	}
	return c.Records.UpdateAlert(ctx, id, update)
}

// Replay runs the online path for a queued record. Completed steps are
// recorded on the record so a retry skips them
func (c *Coordinator) Replay(ctx context.Context, rec queue.Record) error {
	a := c.reporter(Alert{
		ID:          rec.ID,
		UserName:    rec.UserName,
		TriggerType: rec.TriggerType,
		TriggeredAt: rec.TriggeredAt,
		Location:    rec.Location,
	})

	if rec.Address == "" && rec.Location != nil && c.Geocoder != nil {
		if address := c.Geocoder.Resolve(ctx, *rec.Location); address != "" {
			rec.Address = address
			if err := c.Queue.Update(ctx, rec.ID, queue.Patch{Address: &address}); err != nil {
				c.Logger.Debug("Failed to store address",
					slog.String("alert_id", rec.ID),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	createdNow := false
	if !rec.RemoteCreated {
		if err := c.createSynced(ctx, a, rec); err != nil {
			return err
		}
		createdNow = true
	}

	if rec.Resolved {
		if createdNow {
			return nil
		}
		if err := c.markRemoteResolved(ctx, rec.ID, ""); err != nil {
			return fmt.Errorf("resolve remote %s: %w", rec.ID, err)
		}
		return nil
	}

	if rec.Notified {
		return nil
	}

	summary := rec.Summary
	if summary == "" {
		an := c.Analyze(ctx, a, rec.Audio, rec.AudioMimeType)
		summary = an.Summary
		if !an.Fallback {
			if err := c.Queue.Update(ctx, rec.ID, queue.Patch{Summary: &summary}); err != nil {
				c.Logger.Debug("Failed to store summary",
					slog.String("alert_id", rec.ID),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	if _, err := c.deliver(ctx, a, summary); err != nil {
		return err
	}

	notified := true
	if err := c.Queue.Update(ctx, rec.ID, queue.Patch{Notified: &notified}); err != nil {
		return fmt.Errorf("flag %s notified: %w", rec.ID, err)
	}
	return nil
}

// createSynced creates the remote record for a queued alert. An existing
// record with the same id counts as success
func (c *Coordinator) createSynced(ctx context.Context, a Alert, rec queue.Record) error {
	remote := records.Alert{
		ID:          rec.ID,
		UserName:    a.UserName,
		TriggerType: string(rec.TriggerType),
		Status:      records.StatusSyncedOffline,
		TriggeredAt: rec.TriggeredAt,
		Address:     rec.Address,
	}
	remote.SetLocation(rec.Location)
	if rec.Resolved {
		now := c.Clock.Now()
		remote.Status = records.StatusResolved
		remote.ResolvedAt = &now
	}
	if rec.NativeFallbackSent {
		remote.Notes = StatusNativeSent
	}

	err := c.Records.CreateAlert(ctx, remote)
	switch {
	case errors.Is(err, records.ErrConflict):
		c.Logger.Debug("Remote record already exists", slog.String("alert_id", rec.ID))
	case err != nil:
		return fmt.Errorf("create remote %s: %w", rec.ID, err)
	default:
		if rec.Location != nil {
			if err := c.Records.AddLocation(ctx, rec.ID, *rec.Location); err != nil {
				c.Logger.Warn("Failed to record location snapshot",
					slog.String("alert_id", rec.ID),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	created := true
	if err := c.Queue.Update(ctx, rec.ID, queue.Patch{RemoteCreated: &created}); err != nil {
		return fmt.Errorf("flag %s created: %w", rec.ID, err)
	}
	return nil
}

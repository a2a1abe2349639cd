package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/skypro1111/sos-alert-service/internal/clock"
	"github.com/skypro1111/sos-alert-service/internal/location"
	"github.com/skypro1111/sos-alert-service/internal/trigger"
)

// ErrNotFound is returned when no record has the requested id
var ErrNotFound = errors.New("queue: record not found")

const schema = `
CREATE TABLE IF NOT EXISTS queued_alerts (
	id                   TEXT PRIMARY KEY,
	user_name            TEXT NOT NULL DEFAULT '',
	trigger_type         TEXT NOT NULL,
	triggered_at         INTEGER NOT NULL,
	latitude             REAL,
	longitude            REAL,
	accuracy             REAL,
	address              TEXT NOT NULL DEFAULT '',
	summary              TEXT NOT NULL DEFAULT '',
	audio                BLOB,
	audio_mime_type      TEXT NOT NULL DEFAULT '',
	native_fallback_sent INTEGER NOT NULL DEFAULT 0,
	partial_capture      INTEGER NOT NULL DEFAULT 0,
	resolved             INTEGER NOT NULL DEFAULT 0,
	remote_created       INTEGER NOT NULL DEFAULT 0,
	notified             INTEGER NOT NULL DEFAULT 0,
	synced               INTEGER NOT NULL DEFAULT 0,
	attempts             INTEGER NOT NULL DEFAULT 0,
	last_error           TEXT NOT NULL DEFAULT '',
	created_at           INTEGER NOT NULL,
	synced_at            INTEGER
);
CREATE INDEX IF NOT EXISTS idx_queued_alerts_pending ON queued_alerts (synced, triggered_at);
`

const selectColumns = `
	id, user_name, trigger_type, triggered_at, latitude, longitude, accuracy,
	address, summary, audio, audio_mime_type, native_fallback_sent, partial_capture,
	resolved, remote_created, notified, synced, attempts, last_error,
	created_at, synced_at`

// Record is one queued alert
type Record struct {
	ID                 string             `json:"id"`
	UserName           string             `json:"user_name"`
	TriggerType        trigger.Type       `json:"trigger_type"`
	TriggeredAt        time.Time          `json:"triggered_at"`
	Location           *location.Location `json:"location,omitempty"`
	Address            string             `json:"address,omitempty"`
	Summary            string             `json:"summary,omitempty"`
	Audio              []byte             `json:"-"`
	AudioMimeType      string             `json:"audio_mime_type,omitempty"`
	NativeFallbackSent bool               `json:"native_fallback_sent"`
	PartialCapture     bool               `json:"partial_capture"`
	Resolved           bool               `json:"resolved"`
	RemoteCreated      bool               `json:"remote_created"`
	Notified           bool               `json:"notified"`
	Synced             bool               `json:"synced"`
	Attempts           int                `json:"attempts"`
	LastError          string             `json:"last_error,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
	SyncedAt           *time.Time         `json:"synced_at,omitempty"`
}

// Patch lists the fields Update changes. Nil fields are left untouched.
// Synced changes only through MarkSynced
type Patch struct {
	Location           *location.Location
	Address            *string
	Summary            *string
	Audio              []byte // replaces audio and mime type when non-nil
	AudioMimeType      string
	NativeFallbackSent *bool
	PartialCapture     *bool
	Resolved           *bool
	RemoteCreated      *bool
	Notified           *bool
	LastError          *string
	IncrementAttempts  bool
}

// Store is the SQLite-backed offline queue
type Store struct {
	db    *sql.DB
	clock clock.Clock
}

// Open opens or creates the queue database at path
func Open(path string, clk clock.Clock) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db, clock: clk}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Enqueue inserts rec, or overwrites the record with the same id. An
// already-synced record stays synced
func (s *Store) Enqueue(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		return fmt.Errorf("enqueue: record id is required")
	}

	lat, lng, acc := locationColumns(rec.Location)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO queued_alerts (
			id, user_name, trigger_type, triggered_at, latitude, longitude, accuracy,
			address, summary, audio, audio_mime_type, native_fallback_sent, partial_capture,
			resolved, remote_created, notified, synced, attempts, last_error, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_name = excluded.user_name,
			trigger_type = excluded.trigger_type,
			triggered_at = excluded.triggered_at,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			accuracy = excluded.accuracy,
			address = excluded.address,
			summary = excluded.summary,
			audio = excluded.audio,
			audio_mime_type = excluded.audio_mime_type,
			native_fallback_sent = excluded.native_fallback_sent,
			partial_capture = excluded.partial_capture,
			resolved = excluded.resolved,
			remote_created = excluded.remote_created,
			notified = excluded.notified,
			attempts = excluded.attempts,
			last_error = excluded.last_error
	`,
		rec.ID, rec.UserName, string(rec.TriggerType), toMillis(rec.TriggeredAt), lat, lng, acc,
		rec.Address, rec.Summary, rec.Audio, rec.AudioMimeType, rec.NativeFallbackSent, rec.PartialCapture,
		rec.Resolved, rec.RemoteCreated, rec.Notified, rec.Attempts, rec.LastError,
		toMillis(s.clock.Now()),
	)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", rec.ID, err)
	}
	return nil
}

// Update applies patch to the record with the given id
func (s *Store) Update(ctx context.Context, id string, patch Patch) error {
	var sets []string
	var args []any

	set := func(column string, value any) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}

	if patch.Location != nil {
		lat, lng, acc := locationColumns(patch.Location)
		set("latitude", lat)
		set("longitude", lng)
		set("accuracy", acc)
	}
	if patch.Address != nil {
		set("address", *patch.Address)
	}
	if patch.Summary != nil {
		set("summary", *patch.Summary)
	}
	if patch.Audio != nil {
		set("audio", patch.Audio)
		set("audio_mime_type", patch.AudioMimeType)
	}
	if patch.NativeFallbackSent != nil {
		set("native_fallback_sent", *patch.NativeFallbackSent)
	}
	if patch.PartialCapture != nil {
		set("partial_capture", *patch.PartialCapture)
	}
	if patch.Resolved != nil {
		set("resolved", *patch.Resolved)
	}
	if patch.RemoteCreated != nil {
		set("remote_created", *patch.RemoteCreated)
	}
	if patch.Notified != nil {
		set("notified", *patch.Notified)
	}
	if patch.LastError != nil {
		set("last_error", *patch.LastError)
	}
	if patch.IncrementAttempts {
		sets = append(sets, "attempts = attempts + 1")
	}

	if len(sets) == 0 {
		_, err := s.Get(ctx, id)
		return err
	}

	args = append(args, id)
	query := "UPDATE queued_alerts SET " + strings.Join(sets, ", ") + " WHERE id = ?"

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update %s: %w", id, err)
	}
	return requireAffected(result, id)
}

// MarkSynced flags the record as delivered. Marking an already-synced record
// is a no-op
func (s *Store) MarkSynced(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE queued_alerts SET synced = 1, synced_at = ? WHERE id = ? AND synced = 0",
		toMillis(s.clock.Now()), id)
	if err != nil {
		return fmt.Errorf("mark synced %s: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark synced %s: %w", id, err)
	}
	if affected == 0 {
		if _, err := s.Get(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// ListPending returns unsynced records, oldest trigger first
func (s *Store) ListPending(ctx context.Context) ([]Record, error) {
	return s.query(ctx, `
		SELECT`+selectColumns+`
		FROM queued_alerts
		WHERE synced = 0
		ORDER BY triggered_at ASC, created_at ASC, id ASC
	`)
}

// List returns every record, oldest trigger first
func (s *Store) List(ctx context.Context) ([]Record, error) {
	return s.query(ctx, `
		SELECT`+selectColumns+`
		FROM queued_alerts
		ORDER BY triggered_at ASC, created_at ASC, id ASC
	`)
}

// Get returns the record with the given id
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	records, err := s.query(ctx, `
		SELECT`+selectColumns+`
		FROM queued_alerts
		WHERE id = ?
	`, id)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return &records[0], nil
}

// CountPending returns the number of unsynced records
func (s *Store) CountPending(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM queued_alerts WHERE synced = 0").Scan(&count); err != nil {
		return 0, fmt.Errorf("count pending: %w", err)
	}
	return count, nil
}

// PurgeSynced deletes synced records whose sync happened before cutoff
func (s *Store) PurgeSynced(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM queued_alerts WHERE synced = 1 AND synced_at < ?", toMillis(cutoff))
	if err != nil {
		return 0, fmt.Errorf("purge synced: %w", err)
	}
	return result.RowsAffected()
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func scanRecord(rows *sql.Rows) (Record, error) {
	var rec Record
	var triggerType string
	var triggeredAt, createdAt int64
	var lat, lng, acc sql.NullFloat64
	var syncedAt sql.NullInt64

	if err := rows.Scan(&rec.ID, &rec.UserName, &triggerType, &triggeredAt, &lat, &lng, &acc,
		&rec.Address, &rec.Summary, &rec.Audio, &rec.AudioMimeType, &rec.NativeFallbackSent, &rec.PartialCapture,
		&rec.Resolved, &rec.RemoteCreated, &rec.Notified, &rec.Synced, &rec.Attempts, &rec.LastError,
		&createdAt, &syncedAt); err != nil {
		return Record{}, fmt.Errorf("scan record: %w", err)
	}

	rec.TriggerType = trigger.Type(triggerType)
	rec.TriggeredAt = fromMillis(triggeredAt)
	rec.CreatedAt = fromMillis(createdAt)
	if lat.Valid && lng.Valid {
		rec.Location = &location.Location{
			Latitude:  lat.Float64,
			Longitude: lng.Float64,
			Accuracy:  acc.Float64,
		}
	}
	if syncedAt.Valid {
		t := fromMillis(syncedAt.Int64)
		rec.SyncedAt = &t
	}
	return rec, nil
}

func requireAffected(result sql.Result, id string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func locationColumns(loc *location.Location) (lat, lng, acc sql.NullFloat64) {
	if loc == nil {
		return
	}
	return sql.NullFloat64{Float64: loc.Latitude, Valid: true},
		sql.NullFloat64{Float64: loc.Longitude, Valid: true},
		sql.NullFloat64{Float64: loc.Accuracy, Valid: true}
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

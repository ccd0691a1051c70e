// Package deployevents accepts deployment webhooks from CI/CD
// providers, persists them idempotently, and correlates them against
// Drift Analyzer budget series by timestamp proximity and service
// identity.
package deployevents

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rsionnach/nthlayer/pkg/nthlayer"
)

const schema = `
CREATE TABLE IF NOT EXISTS deployment_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	provider TEXT NOT NULL,
	external_event_id TEXT NOT NULL,
	service TEXT NOT NULL,
	commit_sha TEXT,
	environment TEXT,
	author TEXT,
	started_at TIMESTAMP,
	finished_at TIMESTAMP,
	raw_payload_ref TEXT,
	persisted_at TIMESTAMP NOT NULL,
	UNIQUE(provider, external_event_id)
);
CREATE INDEX IF NOT EXISTS idx_deployment_events_service_time
	ON deployment_events(service, started_at);
`

// Store persists DeploymentEvents in SQLite, deduplicating on
// (provider, external_event_id) so a redelivered webhook is a no-op.
type Store struct {
	db *sql.DB
}

// Open creates (or attaches to) the SQLite database at path and
// ensures the schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("deployevents: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writers regardless

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("deployevents: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Insert persists ev, returning (id, true) on a fresh insert or
// (existingID, false) when (provider, external_event_id) already
// exists — the idempotency contract a redelivered webhook relies on.
func (s *Store) Insert(ctx context.Context, ev nthlayer.DeploymentEvent) (int64, bool, error) {
	ev.PersistedAt = time.Now()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO deployment_events
			(provider, external_event_id, service, commit_sha, environment, author, started_at, finished_at, raw_payload_ref, persisted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(provider, external_event_id) DO NOTHING`,
		ev.Provider, ev.ExternalEventID, ev.Service, ev.CommitSHA, ev.Environment, ev.Author,
		ev.StartedAt, ev.FinishedAt, ev.RawPayloadRef, ev.PersistedAt)
	if err != nil {
		return 0, false, fmt.Errorf("deployevents: insert: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, false, err
	}
	if affected == 0 {
		var existingID int64
		err := s.db.QueryRowContext(ctx,
			`SELECT id FROM deployment_events WHERE provider = ? AND external_event_id = ?`,
			ev.Provider, ev.ExternalEventID).Scan(&existingID)
		if err != nil {
			return 0, false, fmt.Errorf("deployevents: lookup existing: %w", err)
		}
		return existingID, false, nil
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// InWindow returns every event for service whose start time falls
// within [center-window, center+window], ordered by proximity to
// center — the candidate set the correlator scores against.
func (s *Store) InWindow(ctx context.Context, service string, center time.Time, window time.Duration) ([]nthlayer.DeploymentEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, provider, external_event_id, service, commit_sha, environment, author, started_at, finished_at, raw_payload_ref, persisted_at
		FROM deployment_events
		WHERE service = ? AND started_at BETWEEN ? AND ?
		ORDER BY ABS(strftime('%s', started_at) - strftime('%s', ?))`,
		service, center.Add(-window), center.Add(window), center)
	if err != nil {
		return nil, fmt.Errorf("deployevents: query window: %w", err)
	}
	defer rows.Close()

	var events []nthlayer.DeploymentEvent
	for rows.Next() {
		var ev nthlayer.DeploymentEvent
		if err := rows.Scan(&ev.ID, &ev.Provider, &ev.ExternalEventID, &ev.Service, &ev.CommitSHA,
			&ev.Environment, &ev.Author, &ev.StartedAt, &ev.FinishedAt, &ev.RawPayloadRef, &ev.PersistedAt); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

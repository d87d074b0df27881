// Package postgres stores reports in PostgreSQL. Events are kept per run date
// so re-running a day replaces that day's rows instead of duplicating them.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver

	"github.com/crimson-sun/auditor/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS audit_events (
	run_date    DATE    NOT NULL,
	position    INTEGER NOT NULL,
	run_id      TEXT    NOT NULL,
	event_type  TEXT    NOT NULL,
	created_at  TEXT    NOT NULL DEFAULT '',
	target_name TEXT    NOT NULL DEFAULT '',
	target_type TEXT    NOT NULL DEFAULT '',
	actor_name  TEXT    NOT NULL DEFAULT '',
	actor_type  TEXT    NOT NULL DEFAULT '',
	space_name  TEXT    NOT NULL DEFAULT '',
	org_name    TEXT    NOT NULL DEFAULT '',
	PRIMARY KEY (run_date, position)
);
CREATE TABLE IF NOT EXISTS audit_summaries (
	date                  DATE PRIMARY KEY,
	run_id                TEXT    NOT NULL,
	total_events          INTEGER NOT NULL,
	failed_logins         INTEGER NOT NULL,
	unauthorized_access   INTEGER NOT NULL,
	suspicious_activities INTEGER NOT NULL,
	status                TEXT    NOT NULL,
	dropped               INTEGER NOT NULL DEFAULT 0,
	updated_at            TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

const (
	deleteEventsSQL = `DELETE FROM audit_events WHERE run_date = $1`

	insertEventSQL = `INSERT INTO audit_events
	(run_date, position, run_id, event_type, created_at, target_name, target_type, actor_name, actor_type, space_name, org_name)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	upsertSummarySQL = `INSERT INTO audit_summaries
	(date, run_id, total_events, failed_logins, unauthorized_access, suspicious_activities, status, dropped)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (date) DO UPDATE SET
		run_id = EXCLUDED.run_id,
		total_events = EXCLUDED.total_events,
		failed_logins = EXCLUDED.failed_logins,
		unauthorized_access = EXCLUDED.unauthorized_access,
		suspicious_activities = EXCLUDED.suspicious_activities,
		status = EXCLUDED.status,
		dropped = EXCLUDED.dropped,
		updated_at = NOW()`
)

// Output writes reports into the audit_events and audit_summaries tables.
type Output struct {
	db    *sql.DB
	owned bool
}

// Open connects to databaseURL through the pgx driver and verifies the
// connection.
func Open(ctx context.Context, databaseURL string) (*Output, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return &Output{db: db, owned: true}, nil
}

// New wraps an existing handle. Close leaves it open.
func New(db *sql.DB) *Output {
	return &Output{db: db}
}

// EnsureSchema creates the tables if they do not exist.
func (o *Output) EnsureSchema(ctx context.Context) error {
	if _, err := o.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("postgres output: create schema: %w", err)
	}
	return nil
}

// Write replaces the day's events and upserts its summary in one transaction.
func (o *Output) Write(ctx context.Context, report model.Report) error {
	s := report.Summary
	if s.Date == "" {
		return fmt.Errorf("postgres output: report has no date")
	}

	tx, err := o.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres output: begin: %w", err)
	}
	defer tx.Rollback() // no-op after Commit

	if _, err := tx.ExecContext(ctx, deleteEventsSQL, s.Date); err != nil {
		return fmt.Errorf("postgres output: clear events: %w", err)
	}

	if len(report.Records) > 0 {
		stmt, err := tx.PrepareContext(ctx, insertEventSQL)
		if err != nil {
			return fmt.Errorf("postgres output: prepare: %w", err)
		}
		defer stmt.Close()

		for i, r := range report.Records {
			_, err := stmt.ExecContext(ctx, s.Date, i, report.RunID,
				r.EventType, r.CreatedAt, r.TargetName, r.TargetType,
				r.ActorName, r.ActorType, r.SpaceName, r.OrgName)
			if err != nil {
				return fmt.Errorf("postgres output: insert event %d: %w", i, err)
			}
		}
	}

	_, err = tx.ExecContext(ctx, upsertSummarySQL, s.Date, report.RunID,
		s.TotalEvents, s.FailedLogins, s.UnauthorizedAccess, s.SuspiciousActivities,
		string(s.Status), report.Dropped)
	if err != nil {
		return fmt.Errorf("postgres output: upsert summary: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres output: commit: %w", err)
	}
	return nil
}

// Close closes the database handle if Open created it.
func (o *Output) Close() error {
	if o.owned {
		return o.db.Close()
	}
	return nil
}

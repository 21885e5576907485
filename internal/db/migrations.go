package db

import (
	"context"
	"time"
)

type migration struct {
	name string
	sql  string
}

// Migrations are applied once, in order, and recorded in db_migrations.
var migrations = []migration{
	{
		name: "2026-05-11_create_users",
		sql: `
		CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			username TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			full_name TEXT NOT NULL DEFAULT '',
			avatar_url TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE TABLE IF NOT EXISTS refresh_tokens (
			id UUID PRIMARY KEY,
			user_id UUID NOT NULL REFERENCES users(id),
			token TEXT NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL,
			revoked_at TIMESTAMPTZ
		);`,
	},
	{
		name: "2026-05-11_create_run_sessions",
		sql: `
		CREATE TABLE IF NOT EXISTS run_sessions (
			id UUID PRIMARY KEY,
			inviter_id UUID NOT NULL REFERENCES users(id),
			invitee_id UUID NOT NULL REFERENCES users(id),
			status TEXT NOT NULL DEFAULT 'pending',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			expires_at TIMESTAMPTZ,
			started_at TIMESTAMPTZ,
			ended_at TIMESTAMPTZ,
			inviter_distance_m DOUBLE PRECISION,
			inviter_duration_sec BIGINT,
			inviter_avg_pace_sec DOUBLE PRECISION,
			inviter_avg_hr INT,
			invitee_distance_m DOUBLE PRECISION,
			invitee_duration_sec BIGINT,
			invitee_avg_pace_sec DOUBLE PRECISION,
			invitee_avg_hr INT,
			winner_id UUID,
			CONSTRAINT run_sessions_expiry_pending CHECK (
				(status = 'pending') = (expires_at IS NOT NULL)
			)
		);
		CREATE UNIQUE INDEX IF NOT EXISTS run_sessions_active_inviter
			ON run_sessions (inviter_id) WHERE status = 'active';
		CREATE UNIQUE INDEX IF NOT EXISTS run_sessions_active_invitee
			ON run_sessions (invitee_id) WHERE status = 'active';`,
	},
	{
		name: "2026-05-11_create_run_snapshots",
		sql: `
		CREATE TABLE IF NOT EXISTS run_snapshots (
			session_id UUID NOT NULL REFERENCES run_sessions(id),
			participant_id UUID NOT NULL REFERENCES users(id),
			distance_m DOUBLE PRECISION NOT NULL,
			duration_sec BIGINT NOT NULL,
			pace_sec_per_km DOUBLE PRECISION NOT NULL,
			heart_rate_bpm INT NOT NULL,
			calories_kcal DOUBLE PRECISION NOT NULL DEFAULT 0,
			seq BIGINT NOT NULL,
			paused BOOLEAN NOT NULL DEFAULT FALSE,
			client_recorded_at TIMESTAMPTZ NOT NULL,
			server_received_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (session_id, participant_id)
		);
		CREATE INDEX IF NOT EXISTS run_snapshots_received
			ON run_snapshots (session_id, server_received_at);`,
	},
	{
		name: "2026-05-11_create_run_routes",
		sql: `
		CREATE TABLE IF NOT EXISTS run_routes (
			session_id UUID NOT NULL REFERENCES run_sessions(id),
			participant_id UUID NOT NULL REFERENCES users(id),
			points JSONB NOT NULL,
			uploaded_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (session_id, participant_id)
		);`,
	},
	{
		name: "2026-05-11_create_run_events",
		sql: `
		CREATE TABLE IF NOT EXISTS run_events (
			id BIGSERIAL PRIMARY KEY,
			session_id UUID NOT NULL,
			participant_id UUID,
			event_type TEXT NOT NULL,
			payload JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS run_events_session
			ON run_events (session_id, created_at);`,
	},
}

// Migrate applies every unapplied migration. Safe to run on every boot.
func Migrate(ctx context.Context, q Querier) error {
	_, err := q.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS db_migrations (
			name TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL
		)
	`)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		var applied bool
		if err := q.QueryRow(ctx, `
			SELECT EXISTS (SELECT 1 FROM db_migrations WHERE name = $1)
		`, m.name).Scan(&applied); err != nil {
			return err
		}
		if applied {
			continue
		}
		if _, err := q.Exec(ctx, m.sql); err != nil {
			return err
		}
		if _, err := q.Exec(ctx, `
			INSERT INTO db_migrations (name, applied_at) VALUES ($1, $2)
		`, m.name, time.Now().UTC()); err != nil {
			return err
		}
	}
	return nil
}

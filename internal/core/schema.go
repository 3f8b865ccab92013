package core

import (
	"context"

	"github.com/jmoiron/sqlx"
)

const schema = `
CREATE EXTENSION IF NOT EXISTS pgcrypto;

CREATE TABLE IF NOT EXISTS users (
	id         TEXT PRIMARY KEY,
	uid        TEXT NOT NULL UNIQUE,
	email      TEXT NOT NULL DEFAULT '',
	name       TEXT NOT NULL DEFAULT '',
	password   TEXT,
	is_admin   BOOLEAN NOT NULL DEFAULT false,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS projects (
	id         TEXT PRIMARY KEY,
	owner_id   TEXT NOT NULL REFERENCES users (id),
	name       TEXT NOT NULL,
	storage    JSONB NOT NULL DEFAULT '{}',
	media_url  TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS sessions (
	id                TEXT PRIMARY KEY,
	project_id        TEXT NOT NULL REFERENCES projects (id) ON DELETE CASCADE,
	name              TEXT NOT NULL DEFAULT '',
	livekit_room_name TEXT NOT NULL UNIQUE,
	status            TEXT NOT NULL,
	max_participants  INTEGER NOT NULL,
	empty_timeout     INTEGER NOT NULL,
	auto_recording    BOOLEAN NOT NULL DEFAULT false,
	started_at        TIMESTAMPTZ,
	stopped_at        TIMESTAMPTZ,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_sessions_project_id ON sessions (project_id);

CREATE TABLE IF NOT EXISTS egress_jobs (
	egress_id        TEXT PRIMARY KEY,
	room_name        TEXT NOT NULL,
	track_id         TEXT NOT NULL DEFAULT '',
	status           TEXT NOT NULL,
	started_at       TIMESTAMPTZ NOT NULL,
	ended_at         TIMESTAMPTZ,
	destination_path TEXT NOT NULL DEFAULT '',
	error            TEXT NOT NULL DEFAULT '',
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE UNIQUE INDEX IF NOT EXISTS uniq_egress_jobs_active_track
	ON egress_jobs (room_name, track_id) WHERE status IN ('starting', 'active');

CREATE TABLE IF NOT EXISTS api_keys (
	key         TEXT PRIMARY KEY,
	secret_hash TEXT NOT NULL,
	comment     TEXT NOT NULL DEFAULT '',
	project_id  TEXT NOT NULL REFERENCES projects (id) ON DELETE CASCADE,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS project_devices (
	id         TEXT PRIMARY KEY,
	project_id TEXT NOT NULL REFERENCES projects (id) ON DELETE CASCADE,
	name       TEXT NOT NULL,
	kind       TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// Migrate creates the tables used by the repositories. It is idempotent.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, schema)
	return err
}

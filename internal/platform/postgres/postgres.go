// Package postgres opens the service database and owns its schema.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS rules (
    id              TEXT        NOT NULL,
    version         INTEGER     NOT NULL,
    description     TEXT        NOT NULL DEFAULT '',
    trigger_actions TEXT[]      NOT NULL,
    kind            TEXT        NOT NULL,
    check_name      TEXT        NOT NULL DEFAULT '',
    handler         TEXT        NOT NULL DEFAULT '',
    parameters      JSONB       NOT NULL DEFAULT '{}'::jsonb,
    action_on_fail  TEXT        NOT NULL,
    priority        INTEGER     NOT NULL,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (id, version)
);

CREATE TABLE IF NOT EXISTS rule_snapshots (
    version      BIGINT      PRIMARY KEY,
    published_at TIMESTAMPTZ NOT NULL,
    rule_refs    JSONB       NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_log (
    log_id               TEXT        PRIMARY KEY,
    ts                   TIMESTAMPTZ NOT NULL,
    actor_id             TEXT        NOT NULL,
    action_type          TEXT        NOT NULL,
    domain               TEXT        NOT NULL DEFAULT '',
    affected_object_type TEXT        NOT NULL DEFAULT '',
    affected_object_id   TEXT        NOT NULL,
    status               TEXT        NOT NULL,
    result               JSONB       NOT NULL,
    details              JSONB       NOT NULL DEFAULT '{}'::jsonb,
    audit_pending        BOOLEAN     NOT NULL DEFAULT false
);

CREATE INDEX IF NOT EXISTS idx_audit_log_object ON audit_log (affected_object_id, log_id);
CREATE INDEX IF NOT EXISTS idx_audit_log_ts ON audit_log (ts);
CREATE INDEX IF NOT EXISTS idx_audit_log_domain ON audit_log (domain, log_id);

CREATE TABLE IF NOT EXISTS algorithms (
    algorithm_id           TEXT        PRIMARY KEY,
    mode                   TEXT        NOT NULL,
    status                 TEXT        NOT NULL,
    last_verification_date TIMESTAMPTZ,
    updated_at             TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS algorithm_status_history (
    algorithm_id TEXT        NOT NULL REFERENCES algorithms (algorithm_id),
    seq          INTEGER     NOT NULL,
    from_status  TEXT        NOT NULL DEFAULT '',
    to_status    TEXT        NOT NULL,
    reason       TEXT        NOT NULL DEFAULT '',
    checks       JSONB       NOT NULL DEFAULT '[]'::jsonb,
    at           TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (algorithm_id, seq)
);
`

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// EnsureSchema creates the tables and indexes if they are missing.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// CLAUDE:SUMMARY SQL schema for users, ideas, the seen-listing ledger, competitors and scan runs.
package store

import "database/sql"

// Schema is the complete ideawatch schema.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
    id          TEXT PRIMARY KEY,
    email       TEXT NOT NULL UNIQUE,
    active      INTEGER NOT NULL DEFAULT 1,
    created_at  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS ideas (
    id               TEXT PRIMARY KEY,
    user_id          TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    description      TEXT NOT NULL,
    image            BLOB,
    image_mime       TEXT NOT NULL DEFAULT '',
    concepts_json    TEXT,
    monitoring       INTEGER NOT NULL DEFAULT 0,
    monitor_until    INTEGER,
    last_checked_at  INTEGER,
    created_at       INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ideas_user ON ideas(user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_ideas_monitoring ON ideas(monitoring, last_checked_at);

-- One row per (idea, url fingerprint) ever scored. Never deleted.
CREATE TABLE IF NOT EXISTS seen_listings (
    idea_id        TEXT NOT NULL REFERENCES ideas(id) ON DELETE CASCADE,
    fingerprint    TEXT NOT NULL,
    url            TEXT NOT NULL,
    relevant       INTEGER NOT NULL DEFAULT 0,
    first_seen_at  INTEGER NOT NULL,
    last_seen_at   INTEGER NOT NULL,
    PRIMARY KEY (idea_id, fingerprint)
);

CREATE TABLE IF NOT EXISTS competitors (
    id             TEXT PRIMARY KEY,
    idea_id        TEXT NOT NULL REFERENCES ideas(id) ON DELETE CASCADE,
    product_name   TEXT NOT NULL,
    source         TEXT NOT NULL,
    url            TEXT NOT NULL,
    price          REAL,
    score          INTEGER NOT NULL,
    reasoning      TEXT NOT NULL DEFAULT '',
    advantage      TEXT NOT NULL DEFAULT '',
    feedback       INTEGER,
    feedback_at    INTEGER,
    discovered_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_competitors_idea ON competitors(idea_id, score DESC);

-- Observability for the scan state machine.
CREATE TABLE IF NOT EXISTS scan_runs (
    id              TEXT PRIMARY KEY,
    idea_id         TEXT NOT NULL REFERENCES ideas(id) ON DELETE CASCADE,
    state           TEXT NOT NULL,
    query           TEXT NOT NULL DEFAULT '',
    raw_count       INTEGER NOT NULL DEFAULT 0,
    filtered_count  INTEGER NOT NULL DEFAULT 0,
    ledger_hits     INTEGER NOT NULL DEFAULT 0,
    scored_count    INTEGER NOT NULL DEFAULT 0,
    new_count       INTEGER NOT NULL DEFAULT 0,
    notified        INTEGER NOT NULL DEFAULT 0,
    error           TEXT NOT NULL DEFAULT '',
    started_at      INTEGER NOT NULL,
    finished_at     INTEGER
);
CREATE INDEX IF NOT EXISTS idx_scan_runs_idea ON scan_runs(idea_id, started_at DESC);
`

// ApplySchema creates all tables and indexes on the given database.
func ApplySchema(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}

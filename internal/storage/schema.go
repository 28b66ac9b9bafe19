// Package storage provides the core's local persistence using SQLite:
// onboarding completion flags, sync run history, and the cached session.
package storage

// Schema definitions for the local core database
const (
	// SchemaV1 is the initial database schema
	SchemaV1 = `
CREATE TABLE IF NOT EXISTS boot_flags (
	name TEXT PRIMARY KEY,
	value INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS sync_runs (
	id TEXT PRIMARY KEY,
	job_type TEXT NOT NULL,
	state TEXT NOT NULL,
	error_message TEXT,
	started_at INTEGER NOT NULL,
	completed_at INTEGER
);

CREATE INDEX IF NOT EXISTS idx_sync_runs_type ON sync_runs(job_type);
CREATE INDEX IF NOT EXISTS idx_sync_runs_state ON sync_runs(state);
CREATE INDEX IF NOT EXISTS idx_sync_runs_started_at ON sync_runs(started_at);

CREATE TABLE IF NOT EXISTS session (
	id TEXT PRIMARY KEY,
	token TEXT NOT NULL,
	account_id TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY,
	applied_at INTEGER NOT NULL
);
`
)

// Migrations represents all available migrations
var Migrations = []struct {
	Version int
	SQL     string
}{
	{
		Version: 1,
		SQL:     SchemaV1,
	},
}

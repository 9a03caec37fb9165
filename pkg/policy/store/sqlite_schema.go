package store

// SchemaVersion is the current policy store schema version.
const SchemaVersion = 1

// Schema creates the policy tables. Timestamps are stored as Unix
// nanoseconds; rule trees, ladders, and thresholds as JSON.
const Schema = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS policies (
	id                TEXT PRIMARY KEY,
	name              TEXT NOT NULL,
	rule_json         TEXT NOT NULL,
	version           INTEGER NOT NULL,
	stage             TEXT NOT NULL,
	tier_index        INTEGER NOT NULL,
	tier_ladder_json  TEXT NOT NULL,
	thresholds_json   TEXT NOT NULL,
	circuit_state     TEXT NOT NULL,
	circuit_opened_at INTEGER NOT NULL,
	cooldown_until    INTEGER NOT NULL,
	open_count        INTEGER NOT NULL,
	created_at        INTEGER NOT NULL,
	updated_at        INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS policy_versions (
	policy_id       TEXT NOT NULL,
	version         INTEGER NOT NULL,
	rule_json       TEXT NOT NULL,
	thresholds_json TEXT NOT NULL,
	created_at      INTEGER NOT NULL,
	PRIMARY KEY (policy_id, version)
);

CREATE INDEX IF NOT EXISTS idx_policies_stage ON policies(stage);
CREATE INDEX IF NOT EXISTS idx_policies_circuit ON policies(circuit_state);
`

// InsertSchemaVersion records the schema version on first open.
const InsertSchemaVersion = `INSERT OR IGNORE INTO schema_version (version) VALUES (?)`

// GetSchemaVersion reads back the recorded schema version.
const GetSchemaVersion = `SELECT version FROM schema_version LIMIT 1`

package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"veridion-hq/sentinel/pkg/policy"
)

// trailSchemaVersion is the current transition trail schema version.
const trailSchemaVersion = 1

const trailSchema = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS transitions (
	id             TEXT PRIMARY KEY,
	policy_id      TEXT NOT NULL,
	policy_version INTEGER NOT NULL,
	from_state     TEXT NOT NULL,
	to_state       TEXT NOT NULL,
	reason         TEXT NOT NULL,
	triggered_by   TEXT NOT NULL,
	timestamp      INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transitions_policy_time ON transitions(policy_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_transitions_time ON transitions(timestamp);
`

// SQLiteTrailConfig contains configuration for the SQLite trail.
type SQLiteTrailConfig struct {
	// Path is the database file path.
	Path string

	// WALMode enables Write-Ahead Logging for better concurrency.
	// Default: true
	WALMode bool

	// BusyTimeout is how long to wait when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// DefaultSQLiteTrailConfig returns the default trail configuration.
func DefaultSQLiteTrailConfig() *SQLiteTrailConfig {
	return &SQLiteTrailConfig{
		Path:        "data/audit.db",
		WALMode:     true,
		BusyTimeout: 5 * time.Second,
	}
}

// SQLiteTrail implements Trail using SQLite.
type SQLiteTrail struct {
	db     *sql.DB
	config *SQLiteTrailConfig
	append *sql.Stmt
	logger *slog.Logger
}

// NewSQLiteTrail opens (and if needed initializes) a SQLite trail.
func NewSQLiteTrail(config *SQLiteTrailConfig) (*SQLiteTrail, error) {
	if config == nil {
		config = DefaultSQLiteTrailConfig()
	}

	db, err := sql.Open("sqlite3", config.Path)
	if err != nil {
		return nil, policy.NewStoreError("sqlite", "open", err)
	}

	t := &SQLiteTrail{
		db:     db,
		config: config,
		logger: slog.Default().With("component", "audit.sqlite"),
	}
	if err := t.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	t.logger.Info("SQLite audit trail initialized", "path", config.Path)
	return t, nil
}

func (t *SQLiteTrail) initialize() error {
	if t.config.WALMode {
		if _, err := t.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			return policy.NewStoreError("sqlite", "enable_wal", err)
		}
	}
	if _, err := t.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", t.config.BusyTimeout.Milliseconds())); err != nil {
		return policy.NewStoreError("sqlite", "set_busy_timeout", err)
	}
	if _, err := t.db.Exec(trailSchema); err != nil {
		return policy.NewStoreError("sqlite", "create_schema", err)
	}
	if _, err := t.db.Exec(`INSERT OR IGNORE INTO schema_version (version) VALUES (?)`, trailSchemaVersion); err != nil {
		return policy.NewStoreError("sqlite", "insert_schema_version", err)
	}

	var version int
	if err := t.db.QueryRow(`SELECT version FROM schema_version LIMIT 1`).Scan(&version); err != nil && err != sql.ErrNoRows {
		return policy.NewStoreError("sqlite", "get_schema_version", err)
	}
	if version != trailSchemaVersion {
		return policy.NewStoreError("sqlite", "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", trailSchemaVersion, version))
	}

	stmt, err := t.db.Prepare(`
		INSERT INTO transitions (id, policy_id, policy_version, from_state, to_state, reason, triggered_by, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return policy.NewStoreError("sqlite", "prepare_append", err)
	}
	t.append = stmt
	return nil
}

// Append implements the Trail interface.
func (t *SQLiteTrail) Append(ctx context.Context, rec *policy.TransitionRecord) error {
	_, err := t.append.ExecContext(ctx,
		rec.ID, rec.PolicyID, rec.PolicyVersion, rec.FromState, rec.ToState,
		rec.Reason, string(rec.TriggeredBy), rec.Timestamp.UnixNano(),
	)
	if err != nil {
		return policy.NewStoreError("sqlite", "append", err)
	}
	return nil
}

func trailWhere(q Query) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if q.PolicyID != "" {
		conds = append(conds, "policy_id = ?")
		args = append(args, q.PolicyID)
	}
	if !q.Start.IsZero() {
		conds = append(conds, "timestamp >= ?")
		args = append(args, q.Start.UnixNano())
	}
	if !q.End.IsZero() {
		conds = append(conds, "timestamp < ?")
		args = append(args, q.End.UnixNano())
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// Scan implements the Trail interface.
func (t *SQLiteTrail) Scan(ctx context.Context, q Query, fn func(*policy.TransitionRecord) error) error {
	where, args := trailWhere(q)
	query := `SELECT id, policy_id, policy_version, from_state, to_state, reason, triggered_by, timestamp
		FROM transitions` + where + ` ORDER BY timestamp ASC`
	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", q.Limit)
	}

	rows, err := t.db.QueryContext(ctx, query, args...)
	if err != nil {
		return policy.NewStoreError("sqlite", "scan", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			rec         policy.TransitionRecord
			triggeredBy string
			ts          int64
		)
		if err := rows.Scan(&rec.ID, &rec.PolicyID, &rec.PolicyVersion, &rec.FromState,
			&rec.ToState, &rec.Reason, &triggeredBy, &ts); err != nil {
			return policy.NewStoreError("sqlite", "scan_row", err)
		}
		rec.TriggeredBy = policy.Trigger(triggeredBy)
		rec.Timestamp = time.Unix(0, ts).UTC()
		if err := fn(&rec); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return policy.NewStoreError("sqlite", "scan_rows", err)
	}
	return nil
}

// Count implements the Trail interface.
func (t *SQLiteTrail) Count(ctx context.Context, q Query) (int64, error) {
	where, args := trailWhere(q)
	var n int64
	if err := t.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transitions`+where, args...).Scan(&n); err != nil {
		return 0, policy.NewStoreError("sqlite", "count", err)
	}
	return n, nil
}

// Close closes the database.
func (t *SQLiteTrail) Close() error {
	if t.append != nil {
		t.append.Close()
	}
	return t.db.Close()
}

package outcome

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// sqliteSchema creates the outcome history table. Timestamps are Unix
// nanoseconds; the attribute map is JSON.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS outcomes (
	id              TEXT PRIMARY KEY,
	policy_id       TEXT NOT NULL,
	policy_version  INTEGER NOT NULL,
	agent_id        TEXT NOT NULL,
	timestamp       INTEGER NOT NULL,
	would_block     INTEGER NOT NULL,
	enforced_block  INTEGER NOT NULL,
	tier_percent    INTEGER NOT NULL,
	failed          INTEGER NOT NULL,
	error           TEXT NOT NULL DEFAULT '',
	latency_ns      INTEGER NOT NULL,
	attributes_json TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_outcomes_policy_time ON outcomes(policy_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_outcomes_time ON outcomes(timestamp);
`

// SQLiteConfig contains configuration for the SQLite outcome store.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string

	// MaxOpenConns is the maximum number of open connections.
	// Default: 10
	MaxOpenConns int

	// BusyTimeout is how long to wait when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// DefaultSQLiteConfig returns the default SQLite configuration.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		Path:         "data/outcomes.db",
		MaxOpenConns: 10,
		BusyTimeout:  5 * time.Second,
	}
}

// SQLiteStore implements Store using SQLite via the CGO-free driver.
// Writes come from a single aggregator goroutine; reads come from the
// simulator and are bounded by the caller's query limit.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger

	appendStmt *sql.Stmt
}

// NewSQLiteStore opens (and if needed initializes) a SQLite outcome store.
func NewSQLiteStore(config *SQLiteConfig) (*SQLiteStore, error) {
	if config == nil {
		config = DefaultSQLiteConfig()
	}

	db, err := sql.Open("sqlite", config.Path)
	if err != nil {
		return nil, NewStorageError("sqlite", "open", err)
	}
	db.SetMaxOpenConns(config.MaxOpenConns)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL;",
		fmt.Sprintf("PRAGMA busy_timeout=%d;", config.BusyTimeout.Milliseconds()),
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, NewStorageError("sqlite", "pragma", err)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, NewStorageError("sqlite", "create_schema", err)
	}

	appendStmt, err := db.Prepare(`
		INSERT INTO outcomes (
			id, policy_id, policy_version, agent_id, timestamp, would_block,
			enforced_block, tier_percent, failed, error, latency_ns, attributes_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		db.Close()
		return nil, NewStorageError("sqlite", "prepare_append", err)
	}

	logger := slog.Default().With("component", "outcome.store.sqlite")
	logger.Info("SQLite outcome store initialized", "path", config.Path)

	return &SQLiteStore{db: db, logger: logger, appendStmt: appendStmt}, nil
}

// Append persists one record.
func (s *SQLiteStore) Append(ctx context.Context, rec *Record) error {
	attrs, err := json.Marshal(rec.Attributes)
	if err != nil {
		return NewStorageError("sqlite", "append_marshal", err)
	}
	_, err = s.appendStmt.ExecContext(ctx,
		rec.ID, rec.PolicyID, rec.PolicyVersion, rec.AgentID, rec.Timestamp.UnixNano(),
		boolToInt(rec.WouldBlock), boolToInt(rec.EnforcedBlock), rec.TierPercent,
		boolToInt(rec.Failed), rec.Error, int64(rec.Latency), string(attrs),
	)
	if err != nil {
		return NewStorageError("sqlite", "append", err)
	}
	return nil
}

// Scan streams matching records in timestamp order.
func (s *SQLiteStore) Scan(ctx context.Context, q Query, fn func(*Record) error) error {
	query, args := buildScanQuery(q)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return NewStorageError("sqlite", "scan", err)
	}
	defer rows.Close()

	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return NewStorageError("sqlite", "scan_row", err)
		}
		if err := fn(rec); err != nil {
			if errors.Is(err, ErrStopScan) {
				return nil
			}
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return NewStorageError("sqlite", "scan_rows", err)
	}
	return nil
}

// Count returns the number of matching records.
func (s *SQLiteStore) Count(ctx context.Context, q Query) (int64, error) {
	var sb strings.Builder
	sb.WriteString("SELECT COUNT(*) FROM outcomes")
	where, args := buildWhere(q)
	sb.WriteString(where)

	var n int64
	if err := s.db.QueryRowContext(ctx, sb.String(), args...).Scan(&n); err != nil {
		return 0, NewStorageError("sqlite", "count", err)
	}
	return n, nil
}

// Prune deletes records older than cutoff.
func (s *SQLiteStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM outcomes WHERE timestamp < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, NewStorageError("sqlite", "prune", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, NewStorageError("sqlite", "prune_count", err)
	}
	return deleted, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	if s.appendStmt != nil {
		s.appendStmt.Close()
	}
	return s.db.Close()
}

func buildWhere(q Query) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if q.PolicyID != "" {
		clauses = append(clauses, "policy_id = ?")
		args = append(args, q.PolicyID)
	}
	if !q.Start.IsZero() {
		clauses = append(clauses, "timestamp >= ?")
		args = append(args, q.Start.UnixNano())
	}
	if !q.End.IsZero() {
		clauses = append(clauses, "timestamp < ?")
		args = append(args, q.End.UnixNano())
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func buildScanQuery(q Query) (string, []any) {
	var sb strings.Builder
	sb.WriteString(`SELECT id, policy_id, policy_version, agent_id, timestamp, would_block,
		enforced_block, tier_percent, failed, error, latency_ns, attributes_json FROM outcomes`)
	where, args := buildWhere(q)
	sb.WriteString(where)
	sb.WriteString(" ORDER BY timestamp ASC")
	if q.Limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, q.Limit)
	}
	return sb.String(), args
}

func scanRecord(rows *sql.Rows) (*Record, error) {
	var (
		rec                          Record
		ts, latency                  int64
		wouldBlock, enforced, failed int
		attrsJSON                    string
	)
	err := rows.Scan(
		&rec.ID, &rec.PolicyID, &rec.PolicyVersion, &rec.AgentID, &ts, &wouldBlock,
		&enforced, &rec.TierPercent, &failed, &rec.Error, &latency, &attrsJSON,
	)
	if err != nil {
		return nil, err
	}
	rec.Timestamp = time.Unix(0, ts).UTC()
	rec.WouldBlock = wouldBlock != 0
	rec.EnforcedBlock = enforced != 0
	rec.Failed = failed != 0
	rec.Latency = time.Duration(latency)
	if attrsJSON != "" && attrsJSON != "{}" && attrsJSON != "null" {
		if err := json.Unmarshal([]byte(attrsJSON), &rec.Attributes); err != nil {
			return nil, fmt.Errorf("decode attributes: %w", err)
		}
	}
	return &rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

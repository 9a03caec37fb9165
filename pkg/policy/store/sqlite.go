package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"veridion-hq/sentinel/pkg/policy"
	"veridion-hq/sentinel/pkg/policy/rule"
)

// SQLiteConfig contains configuration for the SQLite policy store.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string

	// MaxOpenConns is the maximum number of open connections.
	// Default: 10
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 5
	MaxIdleConns int

	// WALMode enables Write-Ahead Logging for better concurrency.
	// Default: true
	WALMode bool

	// BusyTimeout is how long to wait when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// DefaultSQLiteConfig returns the default SQLite configuration.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		Path:         "data/policies.db",
		MaxOpenConns: 10,
		MaxIdleConns: 5,
		WALMode:      true,
		BusyTimeout:  5 * time.Second,
	}
}

// SQLiteStore implements Store using SQLite. Compare-and-swap is a single
// conditional UPDATE on the version column, so two controllers racing on
// the same policy serialize at the database without any table lock.
type SQLiteStore struct {
	db     *sql.DB
	config *SQLiteConfig
	logger *slog.Logger
}

// NewSQLiteStore opens (and if needed initializes) a SQLite policy store.
func NewSQLiteStore(config *SQLiteConfig) (*SQLiteStore, error) {
	if config == nil {
		config = DefaultSQLiteConfig()
	}

	logger := slog.Default().With("component", "policy.store.sqlite")

	db, err := sql.Open("sqlite3", config.Path)
	if err != nil {
		return nil, policy.NewStoreError("sqlite", "open", err)
	}
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)

	s := &SQLiteStore{db: db, config: config, logger: logger}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("SQLite policy store initialized",
		"path", config.Path,
		"wal_mode", config.WALMode,
	)
	return s, nil
}

func (s *SQLiteStore) initialize() error {
	if s.config.WALMode {
		if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			return policy.NewStoreError("sqlite", "enable_wal", err)
		}
	}
	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", s.config.BusyTimeout.Milliseconds())); err != nil {
		return policy.NewStoreError("sqlite", "set_busy_timeout", err)
	}
	if _, err := s.db.Exec(Schema); err != nil {
		return policy.NewStoreError("sqlite", "create_schema", err)
	}
	if _, err := s.db.Exec(InsertSchemaVersion, SchemaVersion); err != nil {
		return policy.NewStoreError("sqlite", "insert_schema_version", err)
	}

	var version int
	if err := s.db.QueryRow(GetSchemaVersion).Scan(&version); err != nil && err != sql.ErrNoRows {
		return policy.NewStoreError("sqlite", "get_schema_version", err)
	}
	if version != SchemaVersion {
		return policy.NewStoreError("sqlite", "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version))
	}
	return nil
}

// Create inserts a new policy at version 1.
func (s *SQLiteStore) Create(ctx context.Context, p *policy.Policy) error {
	if err := p.Validate(); err != nil {
		return err
	}

	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	p.Version = 1

	ruleJSON, ladderJSON, thresholdsJSON, err := marshalPolicyFields(p)
	if err != nil {
		return policy.NewStoreError("sqlite", "create", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return policy.NewStoreError("sqlite", "create", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO policies (
			id, name, rule_json, version, stage, tier_index, tier_ladder_json,
			thresholds_json, circuit_state, circuit_opened_at, cooldown_until,
			open_count, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, ruleJSON, p.Version, string(p.Stage), p.TierIndex, ladderJSON,
		thresholdsJSON, string(p.CircuitState), p.CircuitOpenedAt.UnixNano(),
		p.CooldownUntil.UnixNano(), p.OpenCount, p.CreatedAt.UnixNano(), p.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return policy.NewStoreError("sqlite", "create", err)
	}

	if err := insertVersionTx(ctx, tx, p); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return policy.NewStoreError("sqlite", "create_commit", err)
	}
	return nil
}

// Get returns the policy with the given id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*policy.Policy, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, rule_json, version, stage, tier_index, tier_ladder_json,
		       thresholds_json, circuit_state, circuit_opened_at, cooldown_until,
		       open_count, created_at, updated_at
		FROM policies WHERE id = ?`, id)

	p, err := scanPolicy(row)
	if err == sql.ErrNoRows {
		return nil, policy.ErrNotFound
	}
	if err != nil {
		return nil, policy.NewStoreError("sqlite", "get", err)
	}
	return p, nil
}

// List returns all policies.
func (s *SQLiteStore) List(ctx context.Context) ([]*policy.Policy, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, rule_json, version, stage, tier_index, tier_ladder_json,
		       thresholds_json, circuit_state, circuit_opened_at, cooldown_until,
		       open_count, created_at, updated_at
		FROM policies ORDER BY id`)
	if err != nil {
		return nil, policy.NewStoreError("sqlite", "list", err)
	}
	defer rows.Close()

	var out []*policy.Policy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, policy.NewStoreError("sqlite", "list_scan", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, policy.NewStoreError("sqlite", "list_rows", err)
	}
	return out, nil
}

// CompareAndSwap writes p conditioned on the stored version.
func (s *SQLiteStore) CompareAndSwap(ctx context.Context, p *policy.Policy, expectedVersion int64) error {
	if err := p.Validate(); err != nil {
		return err
	}

	newVersion := expectedVersion + 1
	updatedAt := time.Now().UTC()

	ruleJSON, ladderJSON, thresholdsJSON, err := marshalPolicyFields(p)
	if err != nil {
		return policy.NewStoreError("sqlite", "cas", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return policy.NewStoreError("sqlite", "cas", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE policies SET
			name = ?, rule_json = ?, version = ?, stage = ?, tier_index = ?,
			tier_ladder_json = ?, thresholds_json = ?, circuit_state = ?,
			circuit_opened_at = ?, cooldown_until = ?, open_count = ?, updated_at = ?
		WHERE id = ? AND version = ?`,
		p.Name, ruleJSON, newVersion, string(p.Stage), p.TierIndex,
		ladderJSON, thresholdsJSON, string(p.CircuitState),
		p.CircuitOpenedAt.UnixNano(), p.CooldownUntil.UnixNano(), p.OpenCount,
		updatedAt.UnixNano(), p.ID, expectedVersion,
	)
	if err != nil {
		return policy.NewStoreError("sqlite", "cas", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return policy.NewStoreError("sqlite", "cas", err)
	}
	if affected == 0 {
		// Distinguish a lost race from a missing policy.
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM policies WHERE id = ?`, p.ID).Scan(&exists); err != nil {
			return policy.NewStoreError("sqlite", "cas_check", err)
		}
		if exists == 0 {
			return policy.ErrNotFound
		}
		return policy.ErrVersionConflict
	}

	p.Version = newVersion
	p.UpdatedAt = updatedAt
	if err := insertVersionTx(ctx, tx, p); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return policy.NewStoreError("sqlite", "cas_commit", err)
	}
	return nil
}

// Versions returns the snapshot history, oldest first.
func (s *SQLiteStore) Versions(ctx context.Context, id string) ([]*policy.PolicyVersion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT policy_id, version, rule_json, thresholds_json, created_at
		FROM policy_versions WHERE policy_id = ? ORDER BY version ASC`, id)
	if err != nil {
		return nil, policy.NewStoreError("sqlite", "versions", err)
	}
	defer rows.Close()

	var out []*policy.PolicyVersion
	for rows.Next() {
		var (
			pv             policy.PolicyVersion
			ruleJSON       string
			thresholdsJSON string
			createdAt      int64
		)
		if err := rows.Scan(&pv.PolicyID, &pv.Version, &ruleJSON, &thresholdsJSON, &createdAt); err != nil {
			return nil, policy.NewStoreError("sqlite", "versions_scan", err)
		}
		if err := json.Unmarshal([]byte(ruleJSON), &pv.Rule); err != nil {
			return nil, policy.NewStoreError("sqlite", "versions_rule", err)
		}
		if err := json.Unmarshal([]byte(thresholdsJSON), &pv.Thresholds); err != nil {
			return nil, policy.NewStoreError("sqlite", "versions_thresholds", err)
		}
		pv.CreatedAt = time.Unix(0, createdAt).UTC()
		out = append(out, &pv)
	}
	if err := rows.Err(); err != nil {
		return nil, policy.NewStoreError("sqlite", "versions_rows", err)
	}
	if len(out) == 0 {
		return nil, policy.ErrNotFound
	}
	return out, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func insertVersionTx(ctx context.Context, tx *sql.Tx, p *policy.Policy) error {
	ruleJSON, err := json.Marshal(p.Rule)
	if err != nil {
		return policy.NewStoreError("sqlite", "version_marshal", err)
	}
	thresholdsJSON, err := json.Marshal(p.Thresholds)
	if err != nil {
		return policy.NewStoreError("sqlite", "version_marshal", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO policy_versions (policy_id, version, rule_json, thresholds_json, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.Version, string(ruleJSON), string(thresholdsJSON), p.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return policy.NewStoreError("sqlite", "version_insert", err)
	}
	return nil
}

func marshalPolicyFields(p *policy.Policy) (ruleJSON, ladderJSON, thresholdsJSON string, err error) {
	r, err := json.Marshal(p.Rule)
	if err != nil {
		return "", "", "", err
	}
	l, err := json.Marshal(p.Ladder())
	if err != nil {
		return "", "", "", err
	}
	t, err := json.Marshal(p.Thresholds)
	if err != nil {
		return "", "", "", err
	}
	return string(r), string(l), string(t), nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for scanPolicy.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanPolicy(row rowScanner) (*policy.Policy, error) {
	var (
		p                       policy.Policy
		stage, circuitState     string
		ruleJSON, ladderJSON    string
		thresholdsJSON          string
		openedAt, cooldownUntil int64
		createdAt, updatedAt    int64
	)
	err := row.Scan(
		&p.ID, &p.Name, &ruleJSON, &p.Version, &stage, &p.TierIndex, &ladderJSON,
		&thresholdsJSON, &circuitState, &openedAt, &cooldownUntil,
		&p.OpenCount, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	var node *rule.Node
	if err := json.Unmarshal([]byte(ruleJSON), &node); err != nil {
		return nil, fmt.Errorf("decode rule: %w", err)
	}
	p.Rule = node
	if err := json.Unmarshal([]byte(ladderJSON), &p.TierLadder); err != nil {
		return nil, fmt.Errorf("decode tier ladder: %w", err)
	}
	if err := json.Unmarshal([]byte(thresholdsJSON), &p.Thresholds); err != nil {
		return nil, fmt.Errorf("decode thresholds: %w", err)
	}

	p.Stage = policy.Stage(stage)
	p.CircuitState = policy.CircuitState(circuitState)
	p.CircuitOpenedAt = fromUnixNano(openedAt)
	p.CooldownUntil = fromUnixNano(cooldownUntil)
	p.CreatedAt = time.Unix(0, createdAt).UTC()
	p.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return &p, nil
}

// fromUnixNano maps the zero time's sentinel back to a zero time.Time.
func fromUnixNano(n int64) time.Time {
	t := time.Unix(0, n).UTC()
	if n == zeroUnixNano {
		return time.Time{}
	}
	return t
}

// zeroUnixNano is what time.Time{}.UnixNano() stores.
var zeroUnixNano = time.Time{}.UnixNano()

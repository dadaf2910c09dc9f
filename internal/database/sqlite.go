package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"pv-go/internal/database/migrations"
	"pv-go/internal/model"
	"pv-go/internal/pv"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Audit writes come from many concurrent ingestion workers; the pool is
// sized independently of the worker pool so a burst of files cannot exhaust
// write capacity.
const (
	maxOpenConns    = 8
	maxIdleConns    = 4
	connMaxLifetime = time.Hour
)

// SQLiteStore implements the pv.Store interface using SQLite.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore creates a new SQLite store.
// path can be a file path or ":memory:" for an in-memory store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db, path: path}, nil
}

// NewSQLiteStoreFromDB wraps an existing database connection.
// The caller is responsible for ensuring the connection is properly configured.
func NewSQLiteStoreFromDB(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db, path: ""}
}

// OpenConnection opens and configures a SQLite connection with appropriate
// PRAGMAs and pool limits. Exported for tools and tests that need a properly
// configured connection. path can be a file path or ":memory:".
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign key constraints (SQLite default is OFF for backward compatibility)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// WAL lets concurrent filter workers read rules while audit writes land;
	// the busy timeout keeps brief lock contention from surfacing as errors.
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set journal mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if path == ":memory:" {
		// Every pooled connection to ":memory:" opens its own database;
		// a single connection keeps the schema visible to all queries.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(maxOpenConns)
		db.SetMaxIdleConns(maxIdleConns)
		db.SetConnMaxLifetime(connMaxLifetime)
	}

	return db, nil
}

// Rule operations

func (s *SQLiteStore) UpsertRule(rule *model.PrivacyRule) (string, error) {
	ctx := context.Background()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO privacy_rules (id, name, pattern, target_level, owner, enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			pattern = excluded.pattern,
			target_level = excluded.target_level,
			owner = excluded.owner,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at`,
		rule.ID, rule.Name, rule.Pattern, rule.TargetLevel, rule.Owner, rule.Enabled,
		rule.CreatedAt, rule.UpdatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("upserting rule: %w", err)
	}

	// An existing rule keeps its original ID; read it back by name.
	var id string
	err = s.db.QueryRowContext(ctx, `SELECT id FROM privacy_rules WHERE name = ?`, rule.Name).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("reading rule id: %w", err)
	}
	return id, nil
}

func (s *SQLiteStore) ListRules() ([]model.PrivacyRule, error) {
	return s.listRules(`SELECT id, name, pattern, target_level, owner, enabled, created_at, updated_at
		FROM privacy_rules ORDER BY name`)
}

func (s *SQLiteStore) ListEnabledRules() ([]model.PrivacyRule, error) {
	return s.listRules(`SELECT id, name, pattern, target_level, owner, enabled, created_at, updated_at
		FROM privacy_rules WHERE enabled ORDER BY name`)
}

func (s *SQLiteStore) listRules(query string) ([]model.PrivacyRule, error) {
	rows, err := s.db.QueryContext(context.Background(), query)
	if err != nil {
		return nil, fmt.Errorf("listing rules: %w", err)
	}
	defer rows.Close()

	var rules []model.PrivacyRule
	for rows.Next() {
		var r model.PrivacyRule
		if err := rows.Scan(&r.ID, &r.Name, &r.Pattern, &r.TargetLevel, &r.Owner, &r.Enabled, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning rule: %w", err)
		}
		rules = append(rules, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rules: %w", err)
	}
	return rules, nil
}

// Override operations

func (s *SQLiteStore) GetOverride(path string) (*model.FileOverride, error) {
	var o model.FileOverride
	err := s.db.QueryRowContext(context.Background(), `
		SELECT file_path, owner, level, reason, updated_at
		FROM file_overrides WHERE file_path = ?`, path,
	).Scan(&o.FilePath, &o.Owner, &o.Level, &o.Reason, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding override by path: %w", err)
	}
	return &o, nil
}

func (s *SQLiteStore) SetOverride(override *model.FileOverride) error {
	_, err := s.db.ExecContext(context.Background(), `
		INSERT INTO file_overrides (file_path, owner, level, reason, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(file_path) DO UPDATE SET
			owner = excluded.owner,
			level = excluded.level,
			reason = excluded.reason,
			updated_at = excluded.updated_at`,
		override.FilePath, override.Owner, override.Level, override.Reason, override.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("setting override: %w", err)
	}
	return nil
}

// Preference operations

func (s *SQLiteStore) GetPreference(username string) (*model.UserPreference, error) {
	var p model.UserPreference
	err := s.db.QueryRowContext(context.Background(), `
		SELECT username, default_level, auto_redact, notify_on_access, updated_at
		FROM user_preferences WHERE username = ?`, username,
	).Scan(&p.Username, &p.DefaultLevel, &p.AutoRedact, &p.NotifyOnAccess, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding preference: %w", err)
	}
	return &p, nil
}

func (s *SQLiteStore) SetPreference(pref *model.UserPreference) error {
	_, err := s.db.ExecContext(context.Background(), `
		INSERT INTO user_preferences (username, default_level, auto_redact, notify_on_access, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(username) DO UPDATE SET
			default_level = excluded.default_level,
			auto_redact = excluded.auto_redact,
			notify_on_access = excluded.notify_on_access,
			updated_at = excluded.updated_at`,
		pref.Username, pref.DefaultLevel, pref.AutoRedact, pref.NotifyOnAccess, pref.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("setting preference: %w", err)
	}
	return nil
}

// Audit operations

func (s *SQLiteStore) RecordAudit(record *model.AuditRecord) error {
	categories, err := json.Marshal(record.Categories)
	if err != nil {
		return fmt.Errorf("encoding categories: %w", err)
	}

	res, err := s.db.ExecContext(context.Background(), `
		INSERT INTO audit_records (created_at, file_path, owner, original_level, applied_level,
			categories, action, redaction_count, content_hash_before, content_hash_after, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.CreatedAt, record.FilePath, record.Owner, record.OriginalLevel, record.AppliedLevel,
		string(categories), record.Action, record.RedactionCount,
		record.ContentHashBefore, record.ContentHashAfter, record.Reason,
	)
	if err != nil {
		return fmt.Errorf("recording audit entry: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading audit record id: %w", err)
	}
	record.ID = id
	return nil
}

func (s *SQLiteStore) AuditStats(since time.Time) (*model.AuditStats, error) {
	ctx := context.Background()
	stats := &model.AuditStats{
		ByLevel:    make(map[string]int),
		ByOwner:    make(map[string]int),
		ByCategory: make(map[string]int),
	}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(redaction_count), 0)
		FROM audit_records WHERE created_at >= ?`, since,
	).Scan(&stats.TotalFiles, &stats.TotalRedactions)
	if err != nil {
		return nil, fmt.Errorf("aggregating audit totals: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT applied_level, COUNT(*) FROM audit_records
		WHERE created_at >= ? GROUP BY applied_level`, since)
	if err != nil {
		return nil, fmt.Errorf("aggregating by level: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var level, count int
		if err := rows.Scan(&level, &count); err != nil {
			return nil, fmt.Errorf("scanning level aggregate: %w", err)
		}
		stats.ByLevel[pv.PrivacyLevel(level).String()] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating level aggregates: %w", err)
	}

	ownerRows, err := s.db.QueryContext(ctx, `
		SELECT owner, COUNT(*) FROM audit_records
		WHERE created_at >= ? GROUP BY owner`, since)
	if err != nil {
		return nil, fmt.Errorf("aggregating by owner: %w", err)
	}
	defer ownerRows.Close()
	for ownerRows.Next() {
		var owner string
		var count int
		if err := ownerRows.Scan(&owner, &count); err != nil {
			return nil, fmt.Errorf("scanning owner aggregate: %w", err)
		}
		stats.ByOwner[owner] = count
	}
	if err := ownerRows.Err(); err != nil {
		return nil, fmt.Errorf("iterating owner aggregates: %w", err)
	}

	// Category counts live in a JSON column, so the windowed rows (bounded
	// by the created_at index) are summed here rather than in SQL.
	catRows, err := s.db.QueryContext(ctx, `
		SELECT categories FROM audit_records
		WHERE created_at >= ? AND categories != '{}'`, since)
	if err != nil {
		return nil, fmt.Errorf("aggregating by category: %w", err)
	}
	defer catRows.Close()
	for catRows.Next() {
		var raw string
		if err := catRows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scanning categories: %w", err)
		}
		var categories map[string]int
		if err := json.Unmarshal([]byte(raw), &categories); err != nil {
			return nil, fmt.Errorf("decoding categories: %w", err)
		}
		for c, n := range categories {
			stats.ByCategory[c] += n
		}
	}
	if err := catRows.Err(); err != nil {
		return nil, fmt.Errorf("iterating category aggregates: %w", err)
	}

	return stats, nil
}

func (s *SQLiteStore) ListAuditBefore(cutoff time.Time) ([]model.AuditRecord, error) {
	rows, err := s.db.QueryContext(context.Background(), `
		SELECT id, created_at, file_path, owner, original_level, applied_level,
			categories, action, redaction_count, content_hash_before, content_hash_after, reason
		FROM audit_records WHERE created_at < ? ORDER BY id`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("listing audit records: %w", err)
	}
	defer rows.Close()

	var records []model.AuditRecord
	for rows.Next() {
		var r model.AuditRecord
		var categories string
		err := rows.Scan(&r.ID, &r.CreatedAt, &r.FilePath, &r.Owner, &r.OriginalLevel, &r.AppliedLevel,
			&categories, &r.Action, &r.RedactionCount, &r.ContentHashBefore, &r.ContentHashAfter, &r.Reason)
		if err != nil {
			return nil, fmt.Errorf("scanning audit record: %w", err)
		}
		if err := json.Unmarshal([]byte(categories), &r.Categories); err != nil {
			return nil, fmt.Errorf("decoding categories: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit records: %w", err)
	}
	return records, nil
}

func (s *SQLiteStore) DeleteAuditBefore(cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(context.Background(),
		`DELETE FROM audit_records WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting audit records: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting deleted records: %w", err)
	}
	return deleted, nil
}

// Path returns the database file path (or ":memory:" for in-memory stores).
func (s *SQLiteStore) Path() string {
	return s.path
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteStore) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// MigrateUp brings the database schema to the latest version.
func (s *SQLiteStore) MigrateUp() error {
	return migrations.MigrateUp(s.db)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Compile-time check that SQLiteStore implements pv.Store interface
var _ pv.Store = (*SQLiteStore)(nil)

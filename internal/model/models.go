package model

import "time"

// PrivacyRule forces a minimum privacy level for any file whose path matches
// the rule's pattern (a doublestar glob or plain substring).
type PrivacyRule struct {
	ID          string // UUID
	Name        string // Unique rule name
	Pattern     string // Path glob or substring
	TargetLevel int    // pv.PrivacyLevel ordinal
	Owner       string // Optional owner the rule attributes matches to ("" = none)
	Enabled     bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// FileOverride pins the decision for one exact file path. It outranks all
// heuristics; a blocked override makes the file unreadable.
type FileOverride struct {
	FilePath  string // Exact path, primary key
	Owner     string
	Level     int // pv.PrivacyLevel ordinal
	Reason    string
	UpdatedAt time.Time
}

// UserPreference holds per-owner filtering defaults.
type UserPreference struct {
	Username       string // Primary key
	DefaultLevel   int    // pv.PrivacyLevel ordinal
	AutoRedact     bool
	NotifyOnAccess bool
	UpdatedAt      time.Time
}

// Audit actions.
const (
	ActionPassed   = "passed"
	ActionRedacted = "redacted"
	ActionBlocked  = "blocked"
)

// AuditRecord describes one filtering decision. Records are append-only and
// immutable; content itself is never stored, only SHA-256 hashes.
// JSON tags serve the archive export format (one record per line).
type AuditRecord struct {
	ID                int64          `json:"id"` // Auto-increment, assigned on insert
	CreatedAt         time.Time      `json:"created_at"`
	FilePath          string         `json:"file_path"`
	Owner             string         `json:"owner"`
	OriginalLevel     int            `json:"original_level"`
	AppliedLevel      int            `json:"applied_level"`
	Categories        map[string]int `json:"categories,omitempty"` // Detected category -> match count
	Action            string         `json:"action"`               // passed, redacted or blocked
	RedactionCount    int            `json:"redaction_count"`
	ContentHashBefore string         `json:"content_hash_before"`
	ContentHashAfter  string         `json:"content_hash_after,omitempty"`
	Reason            string         `json:"reason,omitempty"`
}

// FilterResult is what the engine returns for one file. When Blocked is
// true, Content is empty and must not be shown; callers distinguish a
// blocked file from an empty one through this flag.
type FilterResult struct {
	Blocked       bool
	Content       string
	Owner         string
	OriginalLevel int // pv.PrivacyLevel ordinal
	AppliedLevel  int // pv.PrivacyLevel ordinal
	Categories    map[string]int
	Modified      bool
	Reason        string
}

// AuditStats aggregates audit records over a time window.
type AuditStats struct {
	TotalFiles      int
	TotalRedactions int
	ByLevel         map[string]int // Applied level name -> decision count
	ByOwner         map[string]int
	ByCategory      map[string]int // Category -> summed match count
}

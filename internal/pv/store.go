package pv

import (
	"io"
	"time"

	"pv-go/internal/model"
)

// Store provides durable storage for rules, overrides, preferences and the
// audit trail. Implementations must be safe for concurrent use; "not found"
// is reported as (nil, nil), not as an error.
type Store interface {
	// Rule operations

	// UpsertRule creates or updates a rule by name and returns the rule ID.
	// An existing rule keeps its ID.
	UpsertRule(rule *model.PrivacyRule) (string, error)

	// ListRules returns all rules, enabled or not.
	ListRules() ([]model.PrivacyRule, error)

	// ListEnabledRules returns the rules considered at decision time.
	ListEnabledRules() ([]model.PrivacyRule, error)

	// Override operations

	// GetOverride returns the pinned decision for an exact path, if any.
	GetOverride(path string) (*model.FileOverride, error)

	// SetOverride creates or replaces the override for a path.
	SetOverride(override *model.FileOverride) error

	// Preference operations

	// GetPreference returns the stored preference for a username, if any.
	GetPreference(username string) (*model.UserPreference, error)

	// SetPreference creates or replaces a user preference.
	SetPreference(pref *model.UserPreference) error

	// Audit operations

	// RecordAudit appends one immutable audit record, assigning its ID.
	RecordAudit(record *model.AuditRecord) error

	// AuditStats aggregates records created at or after since.
	AuditStats(since time.Time) (*model.AuditStats, error)

	// ListAuditBefore returns records created before cutoff, oldest first.
	ListAuditBefore(cutoff time.Time) ([]model.AuditRecord, error)

	// DeleteAuditBefore removes records created before cutoff and returns
	// how many were removed. Only the archiver calls this.
	DeleteAuditBefore(cutoff time.Time) (int64, error)

	// Close closes the store.
	Close() error
}

// ArchiveVault stores encrypted audit archives offsite. Archives are
// write-once: putting the same archive ID twice is an error the caller
// avoids by generating fresh IDs.
type ArchiveVault interface {
	// PutArchive stores an archive of the given size under hostID/archiveID.
	PutArchive(hostID, archiveID string, r io.Reader, size int64) error

	// GetArchive retrieves an archive and writes it to w.
	GetArchive(hostID, archiveID string, w io.Writer) error

	// ListArchives returns the archive IDs stored for a host.
	ListArchives(hostID string) ([]string, error)

	// ValidateSetup verifies the vault is reachable and writable.
	ValidateSetup() error
}

// Encryptor seals audit archives before they leave the host.
type Encryptor interface {
	// Setup generates key material, protecting the private half with the
	// passphrase.
	Setup(passphrase string) error

	// Encrypt reads plaintext from r and writes ciphertext to w.
	Encrypt(r io.Reader, w io.Writer) error

	// Unlock decrypts the private key with the passphrase and returns a
	// context for decrypting archives.
	Unlock(passphrase string) (DecryptionContext, error)

	// IsConfigured reports whether key material exists.
	IsConfigured() bool
}

// DecryptionContext holds an unlocked identity for decrypting archives.
type DecryptionContext interface {
	Decrypt(r io.Reader, w io.Writer) error
}

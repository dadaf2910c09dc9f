package app

import (
	"fmt"
	"io"
	"os"
	"time"

	"pv-go/internal/config"
	"pv-go/internal/database"
	"pv-go/internal/encryption"
	"pv-go/internal/model"
	"pv-go/internal/pv"
	"pv-go/internal/vault"
)

// PVApp is the application layer between the CLI and the privacy engine.
// It constructs all dependencies from config, exposes the engine's
// operations, and manages store/logger lifecycle on Close.
type PVApp struct {
	cfg     *config.Config
	store   pv.Store
	engine  *pv.Engine
	logFile *os.File
}

// NewPVApp creates a fully wired PVApp from the given config.
// operation identifies the CLI command being run (e.g. "FilterContent",
// "UpsertRule"). The caller must call Close when done.
func NewPVApp(cfg *config.Config, operation string) (*PVApp, error) {
	store, err := database.NewStoreFromConfig(cfg.Database, cfg.HostID)
	if err != nil {
		return nil, fmt.Errorf("creating store: %w", err)
	}

	// File-backed stores must be migrated with `pv migrate` before use.
	if checker, ok := store.(interface{ CheckMigrations() error }); ok && cfg.Database.Type == "sqlite" {
		if err := checker.CheckMigrations(); err != nil {
			store.Close()
			return nil, fmt.Errorf("database schema out of date: %w", err)
		}
	}

	// Archiving is optional: an unset vault type leaves it unconfigured.
	var (
		archiveVault pv.ArchiveVault
		encryptor    pv.Encryptor
	)
	if cfg.Archive.Vault.Type != "" {
		archiveVault, err = vault.NewVaultFromConfig(cfg.Archive.Vault)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("creating archive vault: %w", err)
		}
		encryptor, err = encryption.NewEncryptorFromConfig(cfg.Archive.Encryption)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("creating encryptor: %w", err)
		}
	}

	opID := time.Now().UTC().Format("20060102T150405Z")
	logger, logFile, err := newLogger(cfg.LogDir, opID)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	resolver := pv.NewOwnershipResolver(ownerGroups(cfg.Owners))
	redactor := pv.NewRedactor(cfg.Engine.TruncateLimit)
	cache := pv.NewDecisionCache(cfg.Engine.CacheCapacity, cfg.Engine.CachePrefixBytes)

	engine := pv.NewEngine(store, archiveVault, encryptor, resolver, redactor, cache,
		&slogAdapter{l: logger}, pv.RealClock{}, pv.UUIDGenerator{})

	logger.Debug("app initialized", "operation", operation)

	return &PVApp{
		cfg:     cfg,
		store:   store,
		engine:  engine,
		logFile: logFile,
	}, nil
}

// ownerGroups converts configured groups, appending the built-in defaults
// so configured groups always win ties.
func ownerGroups(configured []config.OwnerGroupConfig) []pv.OwnerGroup {
	groups := make([]pv.OwnerGroup, 0, len(configured)+1)
	for _, g := range configured {
		groups = append(groups, pv.OwnerGroup{Name: g.Name, Patterns: g.Patterns})
	}
	return append(groups, pv.DefaultOwnerGroups()...)
}

// FilterContent filters one file's content through the engine.
func (a *PVApp) FilterContent(path, content string) *model.FilterResult {
	return a.engine.FilterContent(path, content)
}

// UpsertRule creates or updates a path rule and returns its ID.
func (a *PVApp) UpsertRule(name, pattern, levelName, owner string) (string, error) {
	level, err := pv.ParseLevel(levelName)
	if err != nil {
		return "", err
	}
	return a.engine.UpsertRule(name, pattern, level, owner)
}

// ListRules returns all configured rules.
func (a *PVApp) ListRules() ([]model.PrivacyRule, error) {
	return a.engine.ListRules()
}

// SetFileOverride pins the decision for one exact path.
func (a *PVApp) SetFileOverride(path, owner, levelName, reason string) error {
	level, err := pv.ParseLevel(levelName)
	if err != nil {
		return err
	}
	return a.engine.SetFileOverride(path, owner, level, reason)
}

// GetFileOverride returns the override for a path, or nil.
func (a *PVApp) GetFileOverride(path string) (*model.FileOverride, error) {
	return a.engine.GetFileOverride(path)
}

// GetUserPreference returns the preference for a username, stored or default.
func (a *PVApp) GetUserPreference(username string) (*model.UserPreference, error) {
	return a.engine.GetUserPreference(username)
}

// SetUserPreference creates or replaces a user preference.
func (a *PVApp) SetUserPreference(username, levelName string, autoRedact, notifyOnAccess bool) error {
	level, err := pv.ParseLevel(levelName)
	if err != nil {
		return err
	}
	return a.engine.SetUserPreference(username, level, autoRedact, notifyOnAccess)
}

// GetAuditWindowStats aggregates audit records from the last N hours.
func (a *PVApp) GetAuditWindowStats(hours int) (*model.AuditStats, error) {
	return a.engine.GetAuditWindowStats(hours)
}

// ClearCache drops every cached decision.
func (a *PVApp) ClearCache() {
	a.engine.ClearCache()
}

// SetupArchiveKeys generates the archive key pair, protecting the private
// key with the passphrase.
func (a *PVApp) SetupArchiveKeys(passphrase string) error {
	enc, err := encryption.NewEncryptorFromConfig(a.cfg.Archive.Encryption)
	if err != nil {
		return err
	}
	return enc.Setup(passphrase)
}

// ArchiveAudit exports audit records older than the given number of days.
func (a *PVApp) ArchiveAudit(olderThanDays int) (string, int, error) {
	return a.engine.ArchiveAudit(a.cfg.HostID, time.Duration(olderThanDays)*24*time.Hour)
}

// RestoreArchive decrypts a stored archive to w.
func (a *PVApp) RestoreArchive(archiveID, passphrase string, w io.Writer) error {
	return a.engine.RestoreArchive(a.cfg.HostID, archiveID, passphrase, w)
}

// ListArchives returns the archive IDs stored for this host.
func (a *PVApp) ListArchives() ([]string, error) {
	return a.engine.ListArchives(a.cfg.HostID)
}

// MigrateUp brings the store schema to the latest version.
func (a *PVApp) MigrateUp() error {
	migrator, ok := a.store.(interface{ MigrateUp() error })
	if !ok {
		return fmt.Errorf("store does not support migrations")
	}
	return migrator.MigrateUp()
}

// AuditWriteFailures reports audit records lost after exhausting retries.
func (a *PVApp) AuditWriteFailures() int64 {
	return a.engine.AuditWriteFailures()
}

// Close closes the store and the log file.
func (a *PVApp) Close() error {
	var firstErr error

	if err := a.store.Close(); err != nil {
		firstErr = fmt.Errorf("closing store: %w", err)
	}

	if a.logFile != nil {
		a.logFile.Close()
	}

	return firstErr
}

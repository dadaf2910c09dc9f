package pv

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"time"

	"pv-go/internal/model"
)

// auditWriteAttempts bounds retries for a failing audit write. Content
// availability takes priority over audit durability: after the last attempt
// the decision is still returned and the failure is counted.
const auditWriteAttempts = 3

const auditRetryBackoff = 50 * time.Millisecond

// Engine orchestrates ownership resolution, detection, policy, redaction,
// auditing and caching behind a single FilterContent call. It is the only
// type ingestion workers talk to and is safe for concurrent use: the cache
// and store guard their own state, everything else is stateless.
type Engine struct {
	store     Store
	vault     ArchiveVault
	encryptor Encryptor
	resolver  *OwnershipResolver
	detector  *PatternDetector
	policy    *PrivacyPolicy
	redactor  *Redactor
	cache     *DecisionCache
	logger    Logger
	clock     Clock
	idgen     IDGenerator

	auditFailures atomic.Int64
}

// NewEngine creates an Engine with the provided dependencies. vault and
// encryptor may be nil when audit archiving is not configured; everything
// else is required.
func NewEngine(store Store, vault ArchiveVault, encryptor Encryptor, resolver *OwnershipResolver, redactor *Redactor, cache *DecisionCache, logger Logger, clock Clock, idgen IDGenerator) *Engine {
	return &Engine{
		store:     store,
		vault:     vault,
		encryptor: encryptor,
		resolver:  resolver,
		detector:  NewPatternDetector(),
		policy:    NewPrivacyPolicy(),
		redactor:  redactor,
		cache:     cache,
		logger:    logger,
		clock:     clock,
		idgen:     idgen,
	}
}

// FilterContent decides who owns the file, how sensitive it is, and what the
// caller is allowed to see. It never fails: classification errors fail
// closed to a restricted result, and a lost audit write is surfaced on the
// side channel rather than to the caller. Each distinct (path, content)
// computes and audits exactly once; repeated calls are served from the
// cache without re-auditing.
func (e *Engine) FilterContent(path, content string) *model.FilterResult {
	key := e.cache.Key(path, content)
	if cached, ok := e.cache.Get(key); ok {
		return cached
	}

	result, record := e.computeDecision(path, content)
	e.recordAudit(record)
	e.cache.Put(key, result)

	e.logger.Debug("content filtered",
		"path", path,
		"owner", result.Owner,
		"level", PrivacyLevel(result.AppliedLevel).String(),
		"action", record.Action,
	)
	return result
}

// computeDecision runs the full pipeline for one cache miss.
func (e *Engine) computeDecision(path, content string) (*model.FilterResult, *model.AuditRecord) {
	hashBefore := contentHash(content)

	override, overrideErr := e.store.GetOverride(path)
	if overrideErr != nil {
		e.logger.Error("override read failed", "path", path, "error", overrideErr)
	}

	// A blocked override makes the file unreadable regardless of content;
	// nothing else is computed.
	if override != nil && PrivacyLevel(override.Level) >= LevelBlocked {
		return e.blockedDecision(path, override, hashBefore)
	}

	owner, signal, hasSignal, categories, failure := e.classify(path, content)
	if owner == "" {
		owner = OwnerUnknown
	}

	var decision Decision
	switch {
	case failure != "":
		// Fail closed: treat the file as maximally sensitive for this call
		// rather than passing content through unfiltered.
		decision = Decision{
			OriginalLevel: LevelRestricted,
			AppliedLevel:  LevelRestricted,
			Reason:        "classification failure: " + failure,
		}
		e.logger.Error("classification failed", "path", path, "error", failure)
	default:
		ownerDefault := e.ownerDefault(owner)

		rules, err := e.store.ListEnabledRules()
		if err != nil {
			// A rule read failure falls back to the most conservative
			// known default, never to public.
			e.logger.Error("rule read failed", "path", path, "error", err)
			ownerDefault = maxLevel(ownerDefault, LevelPrivate)
			rules = nil
		}
		if overrideErr != nil {
			ownerDefault = maxLevel(ownerDefault, LevelPrivate)
		}

		decision = e.policy.Decide(DecisionInput{
			Path:         path,
			Owner:        owner,
			Signal:       signal,
			HasSignal:    hasSignal,
			Categories:   categories,
			Override:     override,
			OwnerDefault: ownerDefault,
			Rules:        rules,
		})
	}

	blocked := decision.AppliedLevel >= LevelBlocked
	redacted, redactionCount := e.redactor.Redact(content, decision.AppliedLevel)
	modified := blocked || redacted != content

	action := model.ActionPassed
	switch {
	case blocked:
		action = model.ActionBlocked
	case modified:
		action = model.ActionRedacted
	}

	result := &model.FilterResult{
		Blocked:       blocked,
		Content:       redacted,
		Owner:         owner,
		OriginalLevel: int(decision.OriginalLevel),
		AppliedLevel:  int(decision.AppliedLevel),
		Categories:    categoryCounts(categories),
		Modified:      modified,
		Reason:        decision.Reason,
	}

	record := &model.AuditRecord{
		CreatedAt:         e.clock.Now(),
		FilePath:          path,
		Owner:             owner,
		OriginalLevel:     int(decision.OriginalLevel),
		AppliedLevel:      int(decision.AppliedLevel),
		Categories:        result.Categories,
		Action:            action,
		RedactionCount:    redactionCount,
		ContentHashBefore: hashBefore,
		Reason:            decision.Reason,
	}
	if !blocked {
		record.ContentHashAfter = contentHash(redacted)
	}

	return result, record
}

// blockedDecision short-circuits for a blocked override: no pattern scan,
// no redaction, no categories, but still exactly one audit record.
func (e *Engine) blockedDecision(path string, override *model.FileOverride, hashBefore string) (*model.FilterResult, *model.AuditRecord) {
	reason := "path override"
	if override.Reason != "" {
		reason = "path override: " + override.Reason
	}

	result := &model.FilterResult{
		Blocked:       true,
		Owner:         override.Owner,
		OriginalLevel: int(LevelBlocked),
		AppliedLevel:  int(LevelBlocked),
		Categories:    map[string]int{},
		Modified:      true,
		Reason:        reason,
	}
	record := &model.AuditRecord{
		CreatedAt:         e.clock.Now(),
		FilePath:          path,
		Owner:             override.Owner,
		OriginalLevel:     int(LevelBlocked),
		AppliedLevel:      int(LevelBlocked),
		Categories:        map[string]int{},
		Action:            model.ActionBlocked,
		ContentHashBefore: hashBefore,
		Reason:            reason,
	}
	return result, record
}

// classify runs the pure classification steps, converting a panic in any of
// them into a failure reason so the caller can fail closed.
func (e *Engine) classify(path, content string) (owner string, signal FileSignal, hasSignal bool, categories map[Category]int, failure string) {
	defer func() {
		if r := recover(); r != nil {
			failure = fmt.Sprintf("%v", r)
		}
	}()
	owner = e.resolver.Resolve(path)
	signal, hasSignal = e.detector.DetectFileSignal(path)
	categories = e.detector.Detect(content)
	return
}

// ownerDefault returns the stored default level for an owner, or the
// built-in default when none is stored. A preference read failure falls
// back to private, never public.
func (e *Engine) ownerDefault(owner string) PrivacyLevel {
	pref, err := e.store.GetPreference(owner)
	if err != nil {
		e.logger.Error("preference read failed", "owner", owner, "error", err)
		return LevelPrivate
	}
	if pref == nil {
		return DefaultOwnerLevel(owner)
	}
	return PrivacyLevel(pref.DefaultLevel)
}

// recordAudit writes one audit record, retrying with doubling backoff.
// The filtering decision is returned to the caller even if every attempt
// fails; terminal failures increment the side-channel counter.
func (e *Engine) recordAudit(record *model.AuditRecord) {
	var err error
	backoff := auditRetryBackoff
	for attempt := 1; attempt <= auditWriteAttempts; attempt++ {
		if err = e.store.RecordAudit(record); err == nil {
			return
		}
		if attempt < auditWriteAttempts {
			time.Sleep(backoff)
			backoff *= 2
		}
	}
	e.auditFailures.Add(1)
	e.logger.Error("audit write failed", "path", record.FilePath, "error", err)
}

// AuditWriteFailures reports how many audit records were lost after
// exhausting retries. This is the side channel for persistence failures.
func (e *Engine) AuditWriteFailures() int64 {
	return e.auditFailures.Load()
}

// Administrative surface. Every mutation clears the decision cache before
// returning so stale decisions are never served.

// UpsertRule creates or updates a path rule and returns its ID.
func (e *Engine) UpsertRule(name, pattern string, level PrivacyLevel, owner string) (string, error) {
	if !level.Valid() {
		return "", fmt.Errorf("invalid privacy level: %d", int(level))
	}
	if name == "" || pattern == "" {
		return "", fmt.Errorf("rule name and pattern are required")
	}

	now := e.clock.Now()
	id, err := e.store.UpsertRule(&model.PrivacyRule{
		ID:          e.idgen.New(),
		Name:        name,
		Pattern:     pattern,
		TargetLevel: int(level),
		Owner:       owner,
		Enabled:     true,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return "", fmt.Errorf("upserting rule: %w", err)
	}

	e.cache.Clear()
	e.logger.Info("rule upserted", "name", name, "level", level.String())
	return id, nil
}

// ListRules returns all configured rules.
func (e *Engine) ListRules() ([]model.PrivacyRule, error) {
	return e.store.ListRules()
}

// SetFileOverride pins the decision for one exact path.
func (e *Engine) SetFileOverride(path, owner string, level PrivacyLevel, reason string) error {
	if !level.Valid() {
		return fmt.Errorf("invalid privacy level: %d", int(level))
	}
	if path == "" {
		return fmt.Errorf("override path is required")
	}

	err := e.store.SetOverride(&model.FileOverride{
		FilePath:  path,
		Owner:     owner,
		Level:     int(level),
		Reason:    reason,
		UpdatedAt: e.clock.Now(),
	})
	if err != nil {
		return fmt.Errorf("setting override: %w", err)
	}

	e.cache.Clear()
	e.logger.Info("override set", "path", path, "level", level.String())
	return nil
}

// GetFileOverride returns the override for a path, or nil.
func (e *Engine) GetFileOverride(path string) (*model.FileOverride, error) {
	return e.store.GetOverride(path)
}

// GetUserPreference returns the stored preference for a username, or the
// built-in defaults when none is stored.
func (e *Engine) GetUserPreference(username string) (*model.UserPreference, error) {
	pref, err := e.store.GetPreference(username)
	if err != nil {
		return nil, fmt.Errorf("reading preference: %w", err)
	}
	if pref == nil {
		return &model.UserPreference{
			Username:     username,
			DefaultLevel: int(DefaultOwnerLevel(username)),
			AutoRedact:   true,
		}, nil
	}
	return pref, nil
}

// SetUserPreference creates or replaces a user preference.
func (e *Engine) SetUserPreference(username string, level PrivacyLevel, autoRedact, notifyOnAccess bool) error {
	if !level.Valid() {
		return fmt.Errorf("invalid privacy level: %d", int(level))
	}
	if username == "" {
		return fmt.Errorf("username is required")
	}

	err := e.store.SetPreference(&model.UserPreference{
		Username:       username,
		DefaultLevel:   int(level),
		AutoRedact:     autoRedact,
		NotifyOnAccess: notifyOnAccess,
		UpdatedAt:      e.clock.Now(),
	})
	if err != nil {
		return fmt.Errorf("setting preference: %w", err)
	}

	e.cache.Clear()
	return nil
}

// GetAuditWindowStats aggregates audit records from the last N hours.
func (e *Engine) GetAuditWindowStats(hours int) (*model.AuditStats, error) {
	if hours <= 0 {
		return nil, fmt.Errorf("hours must be positive")
	}
	since := e.clock.Now().Add(-time.Duration(hours) * time.Hour)
	return e.store.AuditStats(since)
}

// ClearCache drops every cached decision.
func (e *Engine) ClearCache() {
	e.cache.Clear()
}

// contentHash returns the SHA-256 of text as lowercase hex. The audit trail
// stores hashes, never the text itself.
func contentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func categoryCounts(categories map[Category]int) map[string]int {
	out := make(map[string]int, len(categories))
	for c, n := range categories {
		out[string(c)] = n
	}
	return out
}

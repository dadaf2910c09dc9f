package testutil

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"pv-go/internal/model"
	"pv-go/internal/pv"
)

// MemoryStore is an in-memory pv.Store for engine tests. Every read path
// can be made to fail to exercise the engine's conservative fallbacks.
type MemoryStore struct {
	mu        sync.Mutex
	rules     map[string]model.PrivacyRule // keyed by name
	overrides map[string]model.FileOverride
	prefs     map[string]model.UserPreference
	audit     []model.AuditRecord
	nextAudit int64

	FailAudit     bool
	FailRules     bool
	FailOverrides bool
	FailPrefs     bool
}

var _ pv.Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rules:     make(map[string]model.PrivacyRule),
		overrides: make(map[string]model.FileOverride),
		prefs:     make(map[string]model.UserPreference),
		nextAudit: 1,
	}
}

func (s *MemoryStore) UpsertRule(rule *model.PrivacyRule) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.rules[rule.Name]; ok {
		updated := *rule
		updated.ID = existing.ID
		updated.CreatedAt = existing.CreatedAt
		s.rules[rule.Name] = updated
		return existing.ID, nil
	}
	s.rules[rule.Name] = *rule
	return rule.ID, nil
}

func (s *MemoryStore) ListRules() ([]model.PrivacyRule, error) {
	return s.listRules(false)
}

func (s *MemoryStore) ListEnabledRules() ([]model.PrivacyRule, error) {
	if s.FailRules {
		return nil, fmt.Errorf("injected rule read failure")
	}
	return s.listRules(true)
}

func (s *MemoryStore) listRules(enabledOnly bool) ([]model.PrivacyRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var rules []model.PrivacyRule
	for _, r := range s.rules {
		if enabledOnly && !r.Enabled {
			continue
		}
		rules = append(rules, r)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].Name < rules[j].Name })
	return rules, nil
}

func (s *MemoryStore) GetOverride(path string) (*model.FileOverride, error) {
	if s.FailOverrides {
		return nil, fmt.Errorf("injected override read failure")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if o, ok := s.overrides[path]; ok {
		copied := o
		return &copied, nil
	}
	return nil, nil
}

func (s *MemoryStore) SetOverride(override *model.FileOverride) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrides[override.FilePath] = *override
	return nil
}

func (s *MemoryStore) GetPreference(username string) (*model.UserPreference, error) {
	if s.FailPrefs {
		return nil, fmt.Errorf("injected preference read failure")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.prefs[username]; ok {
		copied := p
		return &copied, nil
	}
	return nil, nil
}

func (s *MemoryStore) SetPreference(pref *model.UserPreference) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefs[pref.Username] = *pref
	return nil
}

func (s *MemoryStore) RecordAudit(record *model.AuditRecord) error {
	if s.FailAudit {
		return fmt.Errorf("injected audit write failure")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	record.ID = s.nextAudit
	s.nextAudit++
	s.audit = append(s.audit, *record)
	return nil
}

func (s *MemoryStore) AuditStats(since time.Time) (*model.AuditStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := &model.AuditStats{
		ByLevel:    make(map[string]int),
		ByOwner:    make(map[string]int),
		ByCategory: make(map[string]int),
	}
	for _, r := range s.audit {
		if r.CreatedAt.Before(since) {
			continue
		}
		stats.TotalFiles++
		stats.TotalRedactions += r.RedactionCount
		stats.ByLevel[pv.PrivacyLevel(r.AppliedLevel).String()]++
		stats.ByOwner[r.Owner]++
		for c, n := range r.Categories {
			stats.ByCategory[c] += n
		}
	}
	return stats, nil
}

func (s *MemoryStore) ListAuditBefore(cutoff time.Time) ([]model.AuditRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var records []model.AuditRecord
	for _, r := range s.audit {
		if r.CreatedAt.Before(cutoff) {
			records = append(records, r)
		}
	}
	return records, nil
}

func (s *MemoryStore) DeleteAuditBefore(cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []model.AuditRecord
	var deleted int64
	for _, r := range s.audit {
		if r.CreatedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	s.audit = kept
	return deleted, nil
}

func (s *MemoryStore) Close() error { return nil }

// AuditRecords returns a copy of all recorded audit entries, oldest first.
func (s *MemoryStore) AuditRecords() []model.AuditRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.AuditRecord, len(s.audit))
	copy(out, s.audit)
	return out
}

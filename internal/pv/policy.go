package pv

import (
	"path/filepath"
	"strings"

	doublestar "github.com/bmatcuk/doublestar/v4"

	"pv-go/internal/model"
)

// signalBaseLevels maps structural risk to the base level it implies.
// A password store is risky even when empty, so file signals outrank the
// owner's default.
var signalBaseLevels = map[FileSignal]PrivacyLevel{
	SignalBrowserHistory: LevelPrivate,
	SignalCookies:        LevelPrivate,
	SignalPasswordsStore: LevelPrivate,
	SignalKeys:           LevelRestricted,
	SignalConfig:         LevelRestricted,
}

// DefaultOwnerLevel is the built-in default for owners without a stored
// preference: shared files are public, personal and unknown owners get the
// stricter personal default.
func DefaultOwnerLevel(owner string) PrivacyLevel {
	if owner == OwnerShared {
		return LevelPublic
	}
	return LevelPersonal
}

// Decision is the outcome of one policy evaluation.
// AppliedLevel is never below OriginalLevel.
type Decision struct {
	OriginalLevel PrivacyLevel
	AppliedLevel  PrivacyLevel
	Reason        string
}

// DecisionInput carries everything Decide needs. The engine assembles it
// from the resolver, detector and store so the policy itself stays pure.
type DecisionInput struct {
	Path         string
	Owner        string
	Signal       FileSignal
	HasSignal    bool
	Categories   map[Category]int
	Override     *model.FileOverride
	OwnerDefault PrivacyLevel
	Rules        []model.PrivacyRule
}

// PrivacyPolicy computes the effective privacy level for one file.
// Precedence, strictest intent first: an exact-path override is operator
// intent and wins outright; a file signal sets the structural base; path
// rules and content detection only ever raise that base.
type PrivacyPolicy struct{}

func NewPrivacyPolicy() *PrivacyPolicy { return &PrivacyPolicy{} }

func (p *PrivacyPolicy) Decide(in DecisionInput) Decision {
	if in.Override != nil {
		level := PrivacyLevel(in.Override.Level)
		reason := "path override"
		if in.Override.Reason != "" {
			reason = "path override: " + in.Override.Reason
		}
		return Decision{OriginalLevel: level, AppliedLevel: level, Reason: reason}
	}

	base := in.OwnerDefault
	reason := "owner default"
	if in.HasSignal {
		base = signalBaseLevels[in.Signal]
		reason = "file signal " + string(in.Signal)
	}

	if level, name, ok := matchRules(in.Path, in.Rules); ok && level > base {
		base = level
		reason = "rule " + name
	}

	applied := base
	if len(in.Categories) > 0 && applied < LevelPrivate {
		applied = LevelPrivate
		reason = "sensitive content detected"
	}

	return Decision{OriginalLevel: base, AppliedLevel: maxLevel(base, applied), Reason: reason}
}

// matchRules returns the strictest target level among rules matching the
// path, with the winning rule's name. Patterns are tried as doublestar
// globs (against the full path and the base name) and fall back to
// case-insensitive substring matching.
func matchRules(path string, rules []model.PrivacyRule) (PrivacyLevel, string, bool) {
	var (
		best    PrivacyLevel
		name    string
		matched bool
	)
	lower := strings.ToLower(path)
	for _, r := range rules {
		if !r.Enabled {
			continue
		}
		if !ruleMatches(r.Pattern, path, lower) {
			continue
		}
		level := PrivacyLevel(r.TargetLevel)
		if !matched || level > best {
			best = level
			name = r.Name
		}
		matched = true
	}
	return best, name, matched
}

func ruleMatches(pattern, path, lowerPath string) bool {
	if ok, err := doublestar.Match(pattern, path); err == nil && ok {
		return true
	}
	if ok, err := doublestar.Match(pattern, filepath.Base(path)); err == nil && ok {
		return true
	}
	return strings.Contains(lowerPath, strings.ToLower(pattern))
}

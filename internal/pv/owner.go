package pv

import "strings"

// Well-known owners.
const (
	OwnerShared  = "shared"
	OwnerUnknown = "unknown"
)

// OwnerGroup maps an owner name to the path substrings that identify it.
// Patterns are matched case-insensitively against the whole path.
type OwnerGroup struct {
	Name     string
	Patterns []string
}

// DefaultOwnerGroups returns the built-in groups that apply when no
// site-specific groups are configured.
func DefaultOwnerGroups() []OwnerGroup {
	return []OwnerGroup{
		{Name: OwnerShared, Patterns: []string{"/shared/", "/public/", "/common/"}},
	}
}

// OwnershipResolver infers the logical owner of a file from its path.
// Resolution is pure and deterministic: the same path always yields the
// same owner, and absence of a match is not an error.
type OwnershipResolver struct {
	groups []OwnerGroup
}

// NewOwnershipResolver creates a resolver from an ordered list of owner
// groups. Earlier groups win ties. Patterns are normalized to lower case.
func NewOwnershipResolver(groups []OwnerGroup) *OwnershipResolver {
	normalized := make([]OwnerGroup, len(groups))
	for i, g := range groups {
		patterns := make([]string, len(g.Patterns))
		for j, p := range g.Patterns {
			patterns[j] = strings.ToLower(p)
		}
		normalized[i] = OwnerGroup{Name: g.Name, Patterns: patterns}
	}
	return &OwnershipResolver{groups: normalized}
}

// Resolve maps a file path to a logical owner. The first group with any
// matching pattern wins. If no group matches, a browser-profile directory
// in the path attributes the file to the user segment preceding it.
// Otherwise the owner is "unknown".
func (r *OwnershipResolver) Resolve(path string) string {
	lower := strings.ToLower(path)

	for _, g := range r.groups {
		for _, p := range g.Patterns {
			if strings.Contains(lower, p) {
				return g.Name
			}
		}
	}

	if owner := browserProfileOwner(lower); owner != "" {
		return owner
	}

	return OwnerUnknown
}

// browserStorageMarkers identify path segments that hold browser profile
// data (history, cookies, saved logins).
var browserStorageMarkers = []string{
	"firefox", "chrome", "chromium", "edge", "safari", "opera", "mozilla",
}

// containerSegments are generic directory names that never denote a user.
var containerSegments = map[string]bool{
	"":                 true,
	"users":            true,
	"home":             true,
	"appdata":          true,
	"application data": true,
	"local":            true,
	"roaming":          true,
	"library":          true,
	"data":             true,
}

// browserProfileOwner returns the owner implied by a browser-profile storage
// segment, or "" if the path has none. For "/backup/Tanasi/Firefox Data/..."
// the owner is "tanasi": the nearest non-generic segment before the browser
// segment.
func browserProfileOwner(lowerPath string) string {
	segments := strings.FieldsFunc(lowerPath, func(r rune) bool {
		return r == '/' || r == '\\'
	})

	for i, seg := range segments {
		if !isBrowserSegment(seg) {
			continue
		}
		for j := i - 1; j >= 0; j-- {
			if !containerSegments[segments[j]] {
				return segments[j]
			}
		}
	}
	return ""
}

func isBrowserSegment(segment string) bool {
	for _, m := range browserStorageMarkers {
		if strings.Contains(segment, m) {
			return true
		}
	}
	return false
}

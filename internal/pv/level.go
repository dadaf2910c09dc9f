package pv

import "fmt"

// PrivacyLevel is an ordered sensitivity tier. Higher values hide more
// content. Comparisons between levels are meaningful: policy decisions
// only ever escalate (max), never downgrade within one decision.
type PrivacyLevel int

const (
	LevelPublic PrivacyLevel = iota
	LevelPersonal
	LevelPrivate
	LevelRestricted
	LevelBlocked
)

var levelNames = map[PrivacyLevel]string{
	LevelPublic:     "public",
	LevelPersonal:   "personal",
	LevelPrivate:    "private",
	LevelRestricted: "restricted",
	LevelBlocked:    "blocked",
}

func (l PrivacyLevel) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// Valid reports whether l is one of the defined levels.
func (l PrivacyLevel) Valid() bool {
	_, ok := levelNames[l]
	return ok
}

// ParseLevel converts a level name to a PrivacyLevel.
// Unknown names are an error - administrative callers validate input here.
func ParseLevel(name string) (PrivacyLevel, error) {
	for l, n := range levelNames {
		if n == name {
			return l, nil
		}
	}
	return LevelPublic, fmt.Errorf("unknown privacy level: %q", name)
}

// maxLevel returns the stricter of two levels.
func maxLevel(a, b PrivacyLevel) PrivacyLevel {
	if a > b {
		return a
	}
	return b
}

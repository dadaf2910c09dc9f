package pv

import (
	"regexp"
	"strings"
)

// Category identifies a kind of detectable sensitive content.
type Category string

const (
	CategorySSN         Category = "ssn"
	CategoryCreditCard  Category = "credit_card"
	CategoryEmail       Category = "email"
	CategoryPhone       Category = "phone"
	CategoryIPAddress   Category = "ip_address"
	CategoryPassword    Category = "password"
	CategoryAPIKey      Category = "api_key"
	CategoryPrivateKey  Category = "private_key"
	CategoryPersonalURL Category = "personal_url"
)

// One compiled pattern per category. Compilation happens at package load;
// a malformed pattern fails the process before any content is filtered.
var (
	reSSN        = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)
	reCreditCard = regexp.MustCompile(`\b(?:\d{4}[ -]?){3}\d{4}\b`)
	reEmail      = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	rePhone      = regexp.MustCompile(`\(?\b\d{3}\)?[-. ]\d{3}[-. ]?\d{4}\b`)
	reIPAddress  = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)
	rePassword   = regexp.MustCompile(`(?i)\bpassword\b\s*[:=]\s*\S+`)
	reAPIKey     = regexp.MustCompile(`(?i)\bapi[_-]?key\b\s*[:=]\s*\S+`)
	rePrivateKey = regexp.MustCompile(`-----BEGIN (?:[A-Z0-9]+ )*PRIVATE KEY-----`)
	rePersonalURL = regexp.MustCompile(
		`https?://(?:www\.)?(?:facebook|twitter|instagram|linkedin|tiktok|x)\.com/[^\s"'<>]+`)
)

// categoryPattern pairs a category with its detection pattern. Declaration
// order is the order categories are evaluated and reported in.
type categoryPattern struct {
	category Category
	re       *regexp.Regexp
}

var categoryPatterns = []categoryPattern{
	{CategorySSN, reSSN},
	{CategoryCreditCard, reCreditCard},
	{CategoryEmail, reEmail},
	{CategoryPhone, rePhone},
	{CategoryIPAddress, reIPAddress},
	{CategoryPassword, rePassword},
	{CategoryAPIKey, reAPIKey},
	{CategoryPrivateKey, rePrivateKey},
	{CategoryPersonalURL, rePersonalURL},
}

// PatternDetector scans text for sensitive-content categories and file paths
// for structural risk signals. It is stateless and safe for concurrent use.
type PatternDetector struct {
	patterns []categoryPattern
}

func NewPatternDetector() *PatternDetector {
	return &PatternDetector{patterns: categoryPatterns}
}

// Detect evaluates every category against content and returns the categories
// that matched, with match counts. Categories with zero matches are omitted.
// Detect never fails: patterns are validated at load time, and matching
// cannot error.
func (d *PatternDetector) Detect(content string) map[Category]int {
	found := make(map[Category]int)
	for _, p := range d.patterns {
		if n := len(p.re.FindAllStringIndex(content, -1)); n > 0 {
			found[p.category] = n
		}
	}
	return found
}

// FileSignal is a coarse risk classification of the file itself, derived
// from its path alone.
type FileSignal string

const (
	SignalBrowserHistory FileSignal = "browser_history"
	SignalCookies        FileSignal = "cookies"
	SignalPasswordsStore FileSignal = "passwords_store"
	SignalKeys           FileSignal = "keys"
	SignalConfig         FileSignal = "config"
)

// fileSignalMarkers maps lowercased path substrings to signals.
// Order matters: the first matching marker wins.
var fileSignalMarkers = []struct {
	marker string
	signal FileSignal
}{
	{"places.sqlite", SignalBrowserHistory},
	{"history", SignalBrowserHistory},
	{"cookies", SignalCookies},
	{"logins.json", SignalPasswordsStore},
	{"login data", SignalPasswordsStore},
	{"password", SignalPasswordsStore},
	{"keychain", SignalPasswordsStore},
	{"id_rsa", SignalKeys},
	{"id_ed25519", SignalKeys},
	{".pem", SignalKeys},
	{".ppk", SignalKeys},
	{"/keys/", SignalKeys},
	{".ssh/", SignalKeys},
	{".env", SignalConfig},
	{".conf", SignalConfig},
	{".ini", SignalConfig},
	{"config", SignalConfig},
}

// DetectFileSignal classifies the file by path substrings, independent of
// content scanning. The second return is false when the path carries no
// known signal.
func (d *PatternDetector) DetectFileSignal(path string) (FileSignal, bool) {
	lower := strings.ToLower(path)
	for _, m := range fileSignalMarkers {
		if strings.Contains(lower, m.marker) {
			return m.signal, true
		}
	}
	return "", false
}

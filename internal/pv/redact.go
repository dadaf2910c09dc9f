package pv

import (
	"regexp"
	"unicode/utf8"
)

// Placeholder tokens substituted for matched sensitive spans. None of them
// contain anything the detection patterns can match, which is what makes
// redaction idempotent.
var placeholders = map[Category]string{
	CategorySSN:         "[SSN_REDACTED]",
	CategoryCreditCard:  "[CREDIT_CARD_REDACTED]",
	CategoryEmail:       "[EMAIL_REDACTED]",
	CategoryPhone:       "[PHONE_REDACTED]",
	CategoryIPAddress:   "[IP_REDACTED]",
	CategoryPassword:    "[PASSWORD_REDACTED]",
	CategoryAPIKey:      "[API_KEY_REDACTED]",
	CategoryPrivateKey:  "[PRIVATE_KEY_REDACTED]",
	CategoryPersonalURL: "[PERSONAL_URL_REDACTED]",
}

// TruncationMarker is appended when restricted content is cut at the
// length cap.
const TruncationMarker = "\n[CONTENT_TRUNCATED]"

// DefaultTruncateLimit bounds how much restricted content downstream
// storage ever sees.
const DefaultTruncateLimit = 10000

// Redaction replaces whole private-key blocks, not just the header line.
// An unterminated block is consumed through end of input.
var rePrivateKeyBlock = regexp.MustCompile(
	`(?s)-----BEGIN (?:[A-Z0-9]+ )*PRIVATE KEY-----.*?(?:-----END (?:[A-Z0-9]+ )*PRIVATE KEY-----|\z)`)

// redactionSteps lists category replacements in the order they are applied.
// minLevel gates each step: a step runs only once the effective level has
// reached it. Password and API-key steps replace the whole label+value
// match; the others replace just the matched value.
var redactionSteps = []struct {
	minLevel PrivacyLevel
	category Category
	re       *regexp.Regexp
}{
	{LevelPersonal, CategoryEmail, reEmail},
	{LevelPersonal, CategoryPhone, rePhone},
	{LevelPrivate, CategorySSN, reSSN},
	{LevelPrivate, CategoryCreditCard, reCreditCard},
	{LevelPrivate, CategoryPassword, rePassword},
	{LevelPrivate, CategoryAPIKey, reAPIKey},
	{LevelPrivate, CategoryPersonalURL, rePersonalURL},
	{LevelRestricted, CategoryIPAddress, reIPAddress},
	{LevelRestricted, CategoryPrivateKey, rePrivateKeyBlock},
}

// Redactor rewrites content according to an effective privacy level.
// Stateless and safe for concurrent use.
type Redactor struct {
	truncateLimit int
}

// NewRedactor creates a Redactor. truncateLimit caps restricted output
// length; values too small to hold the truncation marker select
// DefaultTruncateLimit.
func NewRedactor(truncateLimit int) *Redactor {
	if truncateLimit < len(TruncationMarker) {
		truncateLimit = DefaultTruncateLimit
	}
	return &Redactor{truncateLimit: truncateLimit}
}

// Redact returns content rewritten for the given level and the number of
// spans replaced. LevelBlocked yields no content at all; callers signal
// "blocked" separately so an empty file stays distinguishable.
func (r *Redactor) Redact(content string, level PrivacyLevel) (string, int) {
	if level >= LevelBlocked {
		return "", 0
	}
	if level <= LevelPublic {
		return content, 0
	}

	redacted := content
	count := 0
	for _, step := range redactionSteps {
		if level < step.minLevel {
			continue
		}
		matches := len(step.re.FindAllStringIndex(redacted, -1))
		if matches == 0 {
			continue
		}
		redacted = step.re.ReplaceAllString(redacted, placeholders[step.category])
		count += matches
	}

	if level >= LevelRestricted && len(redacted) > r.truncateLimit {
		cut := r.truncateLimit - len(TruncationMarker)
		for cut > 0 && !utf8.RuneStart(redacted[cut]) {
			cut--
		}
		redacted = redacted[:cut] + TruncationMarker
	}

	return redacted, count
}

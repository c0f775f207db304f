package surface

import "strings"

// Heuristic vocabularies live here as named tables so they can be extended
// or tested without touching the matching logic.

// platformDomains are hosts treated as DM-only profiles. A listing whose
// website lives on one of these has no independent contact surface worth
// crawling.
var platformDomains = map[string]struct{}{
	"onlyfans.com":     {},
	"www.onlyfans.com": {},
	"linktr.ee":        {},
	"www.linktr.ee":    {},
	"bsky.app":         {},
	"www.bsky.app":     {},
	"fansly.com":       {},
	"www.fansly.com":   {},
	"t.me":             {},
	"telegram.me":      {},
}

// contactPathKeywords gate which same-site links count as contact-like
// pages. Substring match against the lower-cased path+query.
var contactPathKeywords = []string{
	"contact", "booking", "book", "inquir", "reach", "get-in-touch",
}

// captchaMarkers disqualify a form from automated submission.
var captchaMarkers = []string{"captcha", "g-recaptcha", "hcaptcha"}

// SuccessHints are response-body phrases treated as a delivered-form signal.
var SuccessHints = []string{
	"thank you", "thanks for", "message has been sent", "successfully sent",
	"we will get back", "submission received", "your message was sent",
	"inquiry received",
}

// Field-name vocabularies for best-effort form filling. Matched against the
// combined name/id/placeholder/aria-label text of each input.
var (
	MessageFieldPatterns = []string{"message", "inquir", "enquir", "comment"}
	NameFieldPatterns    = []string{"name"}
	EmailFieldPatterns   = []string{"email"}
	SubjectFieldPatterns = []string{"subject"}
)

// skippedInputTypes are never considered fillable fields.
var skippedInputTypes = map[string]struct{}{
	"hidden":   {},
	"submit":   {},
	"button":   {},
	"checkbox": {},
	"radio":    {},
	"file":     {},
}

// IsPlatformHost reports whether host is a known DM-only platform domain.
func IsPlatformHost(host string) bool {
	_, ok := platformDomains[strings.ToLower(host)]
	return ok
}

// ContainsCaptcha reports whether markup carries any CAPTCHA marker,
// case-insensitively.
func ContainsCaptcha(markup string) bool {
	return matchesAny(strings.ToLower(markup), captchaMarkers)
}

// HasSuccessHint reports whether a response body contains any of the
// delivered-form phrases.
func HasSuccessHint(body string) bool {
	return matchesAny(strings.ToLower(body), SuccessHints)
}

func matchesAny(haystack string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(haystack, p) {
			return true
		}
	}
	return false
}

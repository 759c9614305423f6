package fetcher

import (
	"regexp"
	"strconv"
	"strings"
)

// DefaultEnrollPhrases are the body-text phrases that indicate an open
// enrollment button.
var DefaultEnrollPhrases = []string{"Enroll Now"}

// DefaultFullPhrases are the body-text phrases that indicate the activity is
// full or closed.
var DefaultFullPhrases = []string{"Full", "currently full"}

var openingsPattern = regexp.MustCompile(`(?i)(\d+)\s+openings?\s+remaining`)

// Fields holds the structured values extracted from a rendered activity page.
type Fields struct {
	// HasEnrollIndicator reports whether an enroll phrase was found.
	HasEnrollIndicator bool

	// IsFull reports whether a full/closed phrase was found.
	IsFull bool

	// HasWaitlist reports whether the page mentions a waitlist.
	HasWaitlist bool

	// OpeningsCount is the parsed "<N> openings remaining" value, or nil if
	// the page does not state it.
	OpeningsCount *int

	// ActivityTitle is the first h1 heading, falling back to the document title.
	ActivityTitle string
}

// ExtractFields interprets page body text and title into [Fields].
//
// Phrase matching is case-sensitive, matching how the activity pages label
// their buttons. Nil phrase lists fall back to [DefaultEnrollPhrases] and
// [DefaultFullPhrases].
func ExtractFields(bodyText, title string, enrollPhrases, fullPhrases []string) Fields {
	if enrollPhrases == nil {
		enrollPhrases = DefaultEnrollPhrases
	}
	if fullPhrases == nil {
		fullPhrases = DefaultFullPhrases
	}

	return Fields{
		HasEnrollIndicator: containsAny(bodyText, enrollPhrases),
		IsFull:             containsAny(bodyText, fullPhrases),
		HasWaitlist:        strings.Contains(strings.ToLower(bodyText), "waitlist"),
		OpeningsCount:      ParseOpenings(bodyText),
		ActivityTitle:      strings.TrimSpace(title),
	}
}

// ParseOpenings finds an "<N> opening(s) remaining" phrase, case-insensitive.
//
// Returns nil when the phrase is absent. An absent phrase is not an error.
func ParseOpenings(text string) *int {
	m := openingsPattern.FindStringSubmatch(text)
	if len(m) < 2 {
		return nil
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return nil
	}
	return &n
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if p != "" && strings.Contains(s, p) {
			return true
		}
	}
	return false
}

package recwatch

import (
	"time"

	"github.com/recwatch/recwatch/internal/control"
)

const (
	// DefaultURL is the activity page watched when no URL is configured.
	DefaultURL = "https://anc.ca.apm.activecommunities.com/burnaby/activity/search/detail/70284?onlineSiteId=0&from_original_cui=true"

	// DefaultInterval is the time between checks when none is configured.
	DefaultInterval = 30 * time.Second
)

// Target is the activity page to watch and how often to check it.
//
// Target is immutable after creation via [NewTarget].
type Target struct {
	url      string
	interval time.Duration
}

// NewTarget creates a [Target].
//
// rawURL must be an absolute http or https URL. interval must be between
// 1 second and 24 hours.
//
// Example:
//
//	target, err := recwatch.NewTarget("https://example.com/activity/70284", time.Minute)
func NewTarget(rawURL string, interval time.Duration) (Target, error) {
	if err := control.ValidateURL(rawURL); err != nil {
		return Target{}, err
	}
	if err := control.ValidateInterval(interval); err != nil {
		return Target{}, err
	}
	return Target{url: rawURL, interval: interval}, nil
}

// DefaultTarget returns the target used when none is configured.
func DefaultTarget() Target {
	return Target{url: DefaultURL, interval: DefaultInterval}
}

// URL returns the activity page URL.
func (t Target) URL() string {
	return t.url
}

// Interval returns the time between checks.
func (t Target) Interval() time.Duration {
	return t.interval
}

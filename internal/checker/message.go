package checker

import (
	"fmt"
	"strings"
)

// DefaultAlertTitle is the desktop notification title.
const DefaultAlertTitle = "🏀 Rec Center Alert"

// FormatAlert returns the desktop notification body for an available result.
func FormatAlert(r Result) string {
	if r.OpeningsCount != nil {
		return fmt.Sprintf("%d spots available!", *r.OpeningsCount)
	}
	return "Spots available!"
}

// FormatBotMessage returns the chat message sent when spots open up.
func FormatBotMessage(r Result) string {
	var b strings.Builder

	title := r.ActivityTitle
	if title == "" {
		title = "Activity"
	}
	fmt.Fprintf(&b, "🏀 %s has open spots!\n", title)
	if r.OpeningsCount != nil {
		fmt.Fprintf(&b, "Openings remaining: %d\n", *r.OpeningsCount)
	}
	fmt.Fprintf(&b, "Enroll: %s", r.URL)
	return b.String()
}

// engine/internal/classify/relevance.go
package classify

import "strings"

// Relevant decides whether a classified message is persisted at all.
// Alerts are gated behind includeAlerts; interview hits additionally need
// role/context words somewhere in the text so a stray "interview" in a
// newsletter doesn't create a row.
func Relevant(res Result, subject, body string, includeAlerts bool) bool {
	switch res.Class {
	case "":
		return false
	case ClassJobAlert:
		return includeAlerts
	case ClassInterview:
		text := strings.ToLower(subject + " " + body)
		return containsAny(text, roleContextTerms)
	default:
		return true
	}
}

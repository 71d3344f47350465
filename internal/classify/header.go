// engine/internal/classify/header.go
package classify

import "strings"

// Header-only decisions for the backfill crawl.
const (
	DecisionRelevant  = "relevant"
	DecisionSkip      = "skip"
	DecisionAmbiguous = "ambiguous"
)

// HeaderResult is the cheap triage verdict for a message we only have
// envelope data for.
type HeaderResult struct {
	Decision string `json:"decision"`
	Score    int    `json:"score"`
	Reason   string `json:"reason"`
}

// ClassifyHeader scores subject+sender only, using the same rule table as
// the full classifier, collapsed into two buckets: lifecycle classes count
// toward "relevant", job_alert (plus alert subject/vendor signals) toward
// "skip". Used by backfill to avoid downloading bodies for historical mail.
func (c *Classifier) ClassifyHeader(subject, from string) HeaderResult {
	subj := strings.TrimSpace(subject)

	if reDateOnlySubject.MatchString(subj) {
		return HeaderResult{Decision: DecisionSkip, Reason: "date_only_subject"}
	}

	text := strings.ToLower(subj + " " + from)

	relevant := 0
	skip := 0
	var tags []string
	for _, g := range c.rules {
		for _, term := range g.terms {
			if !strings.Contains(text, term) {
				continue
			}
			if g.class == ClassJobAlert {
				skip += g.weight
			} else {
				relevant += g.weight
			}
			tags = append(tags, term)
		}
	}

	flags := subjectFlags(subj)
	if flags.AlertSubject {
		skip += 2
		tags = append(tags, "alert_subject_pattern")
	}
	if v := vendorFromAddress(from); v != "" && isAlertVendor(v) {
		skip += 2
		tags = append(tags, "alert_vendor:"+v)
	}

	res := HeaderResult{Reason: strings.Join(tags, ",")}
	switch {
	case relevant > skip && relevant >= 2:
		res.Decision = DecisionRelevant
		res.Score = relevant
	case skip > relevant && skip >= 2:
		res.Decision = DecisionSkip
		res.Score = skip
	default:
		res.Decision = DecisionAmbiguous
		res.Score = relevant - skip
		if res.Reason == "" {
			res.Reason = "no rule matched"
		}
	}
	return res
}

func isAlertVendor(v string) bool {
	for _, a := range alertVendors {
		if v == a {
			return true
		}
	}
	return false
}

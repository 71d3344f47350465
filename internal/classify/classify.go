// engine/internal/classify/classify.go
package classify

import (
	"regexp"
	"sort"
	"strings"

	"jobtrail-engine/internal/config"
)

// Result is the outcome of classifying one message. Deterministic for a
// given (subject, body) pair; no I/O.
type Result struct {
	Class      string         `json:"class"`
	Confidence float64        `json:"confidence"`
	Reason     string         `json:"reason"`
	Score      int            `json:"score"`
	RawScores  map[string]int `json:"raw_scores"`
	Flags      Flags          `json:"flags"`
}

// Flags are subject-level signals recorded before any class is assigned.
type Flags struct {
	AlertSubject bool   `json:"alert_subject"`
	AlertVendor  string `json:"alert_vendor,omitempty"`
	DateOnly     bool   `json:"date_only,omitempty"`
}

// Classifier scores messages against the shared rule table, optionally
// extended with config-supplied rules.
type Classifier struct {
	rules []ruleGroup
}

// New builds a classifier from the built-in table plus any extra rules
// supplied via config (same class/weight/any shape).
func New(extra []config.Rule) *Classifier {
	rules := make([]ruleGroup, len(defaultRules), len(defaultRules)+len(extra))
	copy(rules, defaultRules)
	for _, r := range extra {
		if r.Class == "" || len(r.Any) == 0 {
			continue
		}
		w := r.Weight
		if w <= 0 {
			w = 1
		}
		rules = append(rules, ruleGroup{class: r.Class, weight: w, terms: r.Any})
	}
	return &Classifier{rules: rules}
}

// Subjects that are just a bare date ("August 22, 2025") are calendar-digest
// noise and short-circuit classification.
var reDateOnlySubject = regexp.MustCompile(`(?i)^(january|february|march|april|may|june|july|august|september|october|november|december)\s+\d{1,2},\s*\d{4}$`)

// Classify runs the full-detail rule scoring over subject and body.
func (c *Classifier) Classify(subject, body string) Result {
	subj := strings.TrimSpace(subject)

	if reDateOnlySubject.MatchString(subj) {
		return Result{
			Confidence: 0.2,
			Reason:     "date_only_subject",
			RawScores:  map[string]int{},
			Flags:      Flags{DateOnly: true},
		}
	}

	flags := subjectFlags(subj)
	text := strings.ToLower(subj + " " + body)

	scores := map[string]int{}
	reasons := map[string][]string{}
	for _, g := range c.rules {
		hits := 0
		for _, term := range g.terms {
			if strings.Contains(text, term) {
				hits++
				reasons[g.class] = append(reasons[g.class], term)
			}
		}
		if hits > 0 {
			scores[g.class] += hits * g.weight
		}
	}

	// An alert-looking subject is evidence of job_alert even when no alert
	// body keyword fired.
	if flags.AlertSubject && scores[ClassJobAlert] == 0 {
		scores[ClassJobAlert] = 2
		reasons[ClassJobAlert] = append(reasons[ClassJobAlert], "alert_subject_pattern")
	}

	if len(scores) == 0 {
		return Result{
			Reason:    "no rule matched",
			RawScores: scores,
			Flags:     flags,
		}
	}

	classes := make([]string, 0, len(scores))
	for cls := range scores {
		classes = append(classes, cls)
	}
	sort.Slice(classes, func(i, j int) bool {
		if scores[classes[i]] != scores[classes[j]] {
			return scores[classes[i]] > scores[classes[j]]
		}
		return classes[i] < classes[j]
	})

	top := classes[0]
	topScore := scores[top]
	runnerUp := 0
	if len(classes) > 1 {
		runnerUp = scores[classes[1]]
	}

	// Confidence rewards a decisive winner (separation) and strong absolute
	// evidence, so a single low-weight hit never looks certain.
	separation := 0.0
	if topScore > 0 {
		separation = 1 - float64(runnerUp)/float64(topScore)
	}
	abs := float64(topScore) / 10
	if abs > 1 {
		abs = 1
	}
	confidence := 0.6*separation + 0.4*abs

	reason := strings.Join(reasons[top], ",")

	// Digests love the phrase "interview tips". Without real scheduling
	// language an alert-flagged "interview" winner is reclassified.
	if top == ClassInterview && flags.AlertSubject && !containsAny(text, schedulingTerms) {
		top = ClassJobAlert
		reason += ",downgraded_to_job_alert_digest"
	}

	return Result{
		Class:      top,
		Confidence: confidence,
		Reason:     reason,
		Score:      topScore,
		RawScores:  scores,
		Flags:      flags,
	}
}

func subjectFlags(subject string) Flags {
	ls := strings.ToLower(subject)
	var f Flags
	if containsAny(ls, alertSubjectPatterns) {
		f.AlertSubject = true
	}
	for _, v := range alertVendors {
		if strings.Contains(ls, v) {
			f.AlertSubject = true
			f.AlertVendor = v
			break
		}
	}
	return f
}

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}

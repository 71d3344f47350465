// engine/internal/classify/rules.go
package classify

// Lifecycle classes a message can be filed under.
const (
	ClassApplied   = "applied"
	ClassInterview = "interview"
	ClassOffer     = "offer"
	ClassRejection = "rejection"
	ClassJobAlert  = "job_alert"
)

// ruleGroup is one weighted keyword bucket. Every term hit contributes
// weight to the group's class; the matched term is recorded as a reason tag.
type ruleGroup struct {
	class  string
	weight int
	terms  []string
}

// defaultRules is the shared rule table. Both the full classifier and the
// header-only classifier score against the same table; they only differ in
// which signals (subject+body vs subject+from) are available.
var defaultRules = []ruleGroup{
	{
		class:  ClassRejection,
		weight: 3,
		terms: []string{
			"unfortunately",
			"not moving forward",
			"will not be moving forward",
			"other candidates",
			"we regret to inform",
			"not been selected",
			"decided to pursue",
			"decided not to move forward",
			"position has been filled",
		},
	},
	{
		class:  ClassOffer,
		weight: 4,
		terms: []string{
			"offer letter",
			"pleased to offer",
			"offer of employment",
			"extend an offer",
			"compensation package",
			"start date",
		},
	},
	{
		class:  ClassInterview,
		weight: 3,
		terms: []string{
			"interview",
			"phone screen",
			"technical screen",
			"schedule a call",
			"hiring manager",
			"onsite",
			"next round",
			"coding challenge",
		},
	},
	{
		class:  ClassApplied,
		weight: 2,
		terms: []string{
			"thank you for applying",
			"thanks for applying",
			"application received",
			"we received your application",
			"application has been received",
			"your application",
			"successfully submitted",
			"thank you for your interest",
		},
	},
	{
		class:  ClassJobAlert,
		weight: 1,
		terms: []string{
			"new jobs",
			"job alert",
			"jobs for you",
			"recommended jobs",
			"job recommendations",
			"apply now",
			"hiring now",
			"daily digest",
		},
	},
}

// alertSubjectPatterns tag bulk digest/alert mail by subject alone. A hit is
// recorded as a flag, not a class; the downgrade rule consumes it later.
var alertSubjectPatterns = []string{
	"new jobs",
	"job alert",
	"jobs for you",
	"recommended for you",
	"job recommendations",
	"jobs matching",
	"jobs you may be interested in",
}

// alertVendors are bulk job-board senders. A vendor name in the subject or
// sender tags the message as alert-flavored.
var alertVendors = []string{
	"linkedin",
	"indeed",
	"wellfound",
	"glassdoor",
	"ziprecruiter",
}

// schedulingTerms mark real interview logistics, as opposed to digests that
// merely mention the word "interview".
var schedulingTerms = []string{
	"schedule",
	"confirm",
	"availability",
	"zoom",
	"teams",
	"google meet",
	"calendar invite",
}

// roleContextTerms gate the interview class: without any of these around,
// an "interview" hit is considered unsupported.
var roleContextTerms = []string{
	"engineer",
	"engineering",
	"developer",
	"software",
	"position",
	"candidate",
	"role",
	"recruiter",
	"hiring",
	"application",
}

// engine/internal/classify/vendor.go
package classify

import "strings"

var vendorDomains = map[string]string{
	"linkedin.com":        "linkedin",
	"indeed.com":          "indeed",
	"wellfound.com":       "wellfound",
	"angel.co":            "wellfound",
	"glassdoor.com":       "glassdoor",
	"ziprecruiter.com":    "ziprecruiter",
	"greenhouse.io":       "greenhouse",
	"greenhouse-mail.io":  "greenhouse",
	"lever.co":            "lever",
	"hire.lever.co":       "lever",
	"myworkday.com":       "workday",
	"workday.com":         "workday",
	"smartrecruiters.com": "smartrecruiters",
	"ashbyhq.com":         "ashby",
}

// DetectVendor maps a sender address (and, as a fallback, the subject) to a
// known job-board or ATS vendor. Empty string when unknown.
func DetectVendor(from, subject string) string {
	if v := vendorFromAddress(from); v != "" {
		return v
	}
	ls := strings.ToLower(subject)
	for _, v := range alertVendors {
		if strings.Contains(ls, v) {
			return v
		}
	}
	return ""
}

func vendorFromAddress(from string) string {
	at := strings.LastIndex(from, "@")
	if at < 0 {
		return ""
	}
	domain := strings.ToLower(strings.Trim(from[at+1:], "> "))
	for suffix, vendor := range vendorDomains {
		if domain == suffix || strings.HasSuffix(domain, "."+suffix) {
			return vendor
		}
	}
	return ""
}

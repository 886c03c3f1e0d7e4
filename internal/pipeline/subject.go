package pipeline

import (
	"regexp"

	"procura/internal"
)

// MatchSubject returns the first candidate RFP, in list order, whose title
// occurs in the subject line, case-insensitively and with regex
// metacharacters in the title treated literally. Vendors replying in-thread
// keep the "RFP Invitation: <title>" subject intact, which makes this cheap
// check high-precision; the classifier only runs when it finds nothing.
//
// Substring semantics means a title that is a prefix of another ("Laptops"
// inside "Laptops Q3") can shadow it; candidate order decides, and candidate
// order is stable.
func MatchSubject(candidates []internal.RFP, subject string) (internal.RFP, bool) {
	for _, rfp := range candidates {
		if rfp.Title == "" {
			continue
		}
		re, err := regexp.Compile(`(?i)` + regexp.QuoteMeta(rfp.Title))
		if err != nil {
			continue
		}
		if re.MatchString(subject) {
			return rfp, true
		}
	}
	return internal.RFP{}, false
}

package pipeline

import (
	"sort"
	"time"

	"procura/internal"
	"procura/internal/util"
)

// EligibilityIndex is derived from the Sent-RFP set at the start of each
// ingestion run and thrown away afterwards: statuses and invitation lists can
// change between runs, so nothing here is ever cached.
type EligibilityIndex struct {
	// EarliestHorizon is the oldest point any participating RFP could have
	// received a reply.
	EarliestHorizon time.Time
	// AllowedSenders is the set of lower-cased invited vendor addresses.
	AllowedSenders map[string]struct{}
	// VendorByEmail resolves a sender address to its vendor record.
	VendorByEmail map[string]internal.Vendor
	// CandidateRFPs lists, per sender, the RFPs that vendor was invited to, in
	// RFP creation order. The subject matcher and the classifier both consult
	// this list in order, so it must be reproducible across runs.
	CandidateRFPs map[string][]internal.RFP
}

// BuildEligibilityIndex is a pure function of the Sent-RFP set, vendors
// populated. Input order does not matter; RFPs are iterated by creation time.
func BuildEligibilityIndex(sentRFPs []internal.RFP) EligibilityIndex {
	idx := EligibilityIndex{
		AllowedSenders: map[string]struct{}{},
		VendorByEmail:  map[string]internal.Vendor{},
		CandidateRFPs:  map[string][]internal.RFP{},
	}

	rfps := make([]internal.RFP, len(sentRFPs))
	copy(rfps, sentRFPs)
	sort.SliceStable(rfps, func(i, j int) bool {
		if !rfps[i].CreatedAt.Equal(rfps[j].CreatedAt) {
			return rfps[i].CreatedAt.Before(rfps[j].CreatedAt)
		}
		return rfps[i].ID < rfps[j].ID
	})

	for _, rfp := range rfps {
		start := rfp.EffectiveStart()
		if idx.EarliestHorizon.IsZero() || start.Before(idx.EarliestHorizon) {
			idx.EarliestHorizon = start
		}
		for _, vendor := range rfp.Vendors {
			email := util.NormalizeEmail(vendor.Email)
			if email == "" {
				continue
			}
			idx.AllowedSenders[email] = struct{}{}
			if _, ok := idx.VendorByEmail[email]; !ok {
				idx.VendorByEmail[email] = vendor
			}
			idx.CandidateRFPs[email] = append(idx.CandidateRFPs[email], rfp)
		}
	}

	return idx
}

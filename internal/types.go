package internal

import "time"

type RFPStatus string

const (
	StatusDraft  RFPStatus = "Draft"
	StatusSent   RFPStatus = "Sent"
	StatusClosed RFPStatus = "Closed"
)

type RequirementItem struct {
	Name     string  `json:"name"`
	Quantity float64 `json:"quantity"`
	Specs    *string `json:"specs,omitempty"`
}

type Requirements struct {
	Items        []RequirementItem `json:"items"`
	Budget       *float64          `json:"budget,omitempty"`
	Deadline     *string           `json:"deadline,omitempty"`
	PaymentTerms *string           `json:"paymentTerms,omitempty"`
	Warranty     *string           `json:"warranty,omitempty"`
}

type RFP struct {
	ID           string
	Title        string
	Description  string
	Requirements Requirements
	Status       RFPStatus
	Vendors      []Vendor
	CreatedAt    time.Time
	LastSentAt   *time.Time
}

// EffectiveStart is the floor of the mail fetch window for this RFP: replies
// can only arrive after the invitation went out.
func (r RFP) EffectiveStart() time.Time {
	if r.LastSentAt != nil {
		return *r.LastSentAt
	}
	return r.CreatedAt
}

type Vendor struct {
	ID            string
	Name          string
	Email         string
	ContactPerson *string
	Tags          []string
}

type ProposalItem struct {
	Name     string   `json:"name"`
	Price    *float64 `json:"price,omitempty"`
	Quantity *float64 `json:"quantity,omitempty"`
	Notes    *string  `json:"notes,omitempty"`
}

type ProposalFields struct {
	VendorName   *string        `json:"vendorName,omitempty"`
	TotalCost    *float64       `json:"totalCost,omitempty"`
	DeliveryTime *string        `json:"deliveryTime,omitempty"`
	Warranty     *string        `json:"warranty,omitempty"`
	PaymentTerms *string        `json:"paymentTerms,omitempty"`
	Items        []ProposalItem `json:"items,omitempty"`
	Summary      string         `json:"summary"`
}

type Proposal struct {
	ID         string
	RFPID      string
	VendorID   string
	RawContent string
	Fields     ProposalFields
	Analysis   string
	ReceivedAt time.Time
}

// RawEmail is one inbound message after MIME decoding. Sender holds the bare
// lower-cased address, From keeps the original header for reporting.
type RawEmail struct {
	Provider   string
	MessageID  string
	From       string
	Sender     string
	Subject    string
	Text       string
	ReceivedAt time.Time
	Raw        []byte
}

type SkipEntry struct {
	Subject string `json:"subject"`
	From    string `json:"from"`
	Reason  string `json:"reason"`
}

// IngestReport is the outcome of one ingestion run. Processed counts every
// message the pipeline looked at, so Processed == len(Created) + len(Skipped).
type IngestReport struct {
	Processed int
	Created   []Proposal
	Skipped   []SkipEntry
}

type ComparisonRow struct {
	Vendor    string   `json:"vendor"`
	TotalCost *float64 `json:"totalCost"`
	Delivery  string   `json:"delivery"`
	Warranty  string   `json:"warranty"`
	Score     *float64 `json:"score"`
	Pros      []string `json:"pros"`
	Cons      []string `json:"cons"`
}

type ComparisonResult struct {
	Matrix         []ComparisonRow `json:"matrix"`
	Recommendation string          `json:"recommendation"`
	Summary        string          `json:"summary"`
}

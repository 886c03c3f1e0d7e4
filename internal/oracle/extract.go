package oracle

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"procura/internal"
	"procura/internal/util"
)

// RFPDraft is the structured form of a free-text procurement request.
type RFPDraft struct {
	Title        string                     `json:"title"`
	Items        []internal.RequirementItem `json:"items"`
	Budget       *float64                   `json:"budget,omitempty"`
	Deadline     *string                    `json:"deadline,omitempty"`
	PaymentTerms *string                    `json:"paymentTerms,omitempty"`
	Warranty     *string                    `json:"warranty,omitempty"`
}

func (d RFPDraft) Requirements() internal.Requirements {
	return internal.Requirements{
		Items:        d.Items,
		Budget:       d.Budget,
		Deadline:     d.Deadline,
		PaymentTerms: d.PaymentTerms,
		Warranty:     d.Warranty,
	}
}

const rfpDraftPrompt = `You are an AI assistant for a procurement system.
Extract structured data from the following natural language procurement request.
Return ONLY a valid JSON object with the following fields:
- title: A short summary title
- items: Array of objects { name, quantity, specs }
- budget: Number (if mentioned)
- deadline: Date string (ISO 8601 format YYYY-MM-DD, calculate based on relative time like "in 30 days" from today's date %s. If specific date not mentioned, return null)
- paymentTerms: String
- warranty: String

Request: "%s"`

// ExtractRFPFields turns a free-text procurement request into an RFP draft.
// Failures propagate: drafting is a whole-operation call, there is no partial
// result worth keeping.
func (c *Client) ExtractRFPFields(ctx context.Context, text string) (RFPDraft, error) {
	prompt := fmt.Sprintf(rfpDraftPrompt, time.Now().UTC().Format("2006-01-02"), text)

	raw, err := c.Generate(ctx, prompt)
	if err != nil {
		return RFPDraft{}, err
	}
	c.logger.Debug("rfp draft response",
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", util.Truncate(raw, 200)),
	)

	var draft RFPDraft
	if err := decodeObject(raw, &draft); err != nil {
		return RFPDraft{}, err
	}
	if err := validateDraft(&draft); err != nil {
		return RFPDraft{}, err
	}
	return draft, nil
}

func validateDraft(d *RFPDraft) error {
	d.Title = strings.TrimSpace(d.Title)
	if d.Title == "" {
		return fmt.Errorf("%w: draft is missing a title", ErrMalformedOutput)
	}
	items := d.Items[:0]
	for _, item := range d.Items {
		item.Name = strings.TrimSpace(item.Name)
		if item.Name == "" {
			continue
		}
		if item.Quantity <= 0 {
			item.Quantity = 1
		}
		items = append(items, item)
	}
	d.Items = items
	return nil
}

const proposalPrompt = `You are an AI assistant for a procurement system.
Extract structured data from the following vendor email response to an RFP.
Return ONLY a valid JSON object with the following fields:
- vendorName: String (inferred from text if possible)
- totalCost: Number
- deliveryTime: String
- warranty: String
- paymentTerms: String
- items: Array of objects { name, price, quantity, notes }
- summary: Short summary of the proposal

Email Content: "%s"`

// ExtractProposalFields parses a vendor reply into structured proposal fields.
// The caller decides whether a failure is fatal; during ingestion it is not.
func (c *Client) ExtractProposalFields(ctx context.Context, emailText string) (internal.ProposalFields, error) {
	raw, err := c.Generate(ctx, fmt.Sprintf(proposalPrompt, emailText))
	if err != nil {
		return internal.ProposalFields{}, err
	}
	c.logger.Debug("proposal extraction response",
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", util.Truncate(raw, 200)),
	)

	var fields internal.ProposalFields
	if err := decodeObject(raw, &fields); err != nil {
		return internal.ProposalFields{}, err
	}
	fields.Summary = strings.TrimSpace(fields.Summary)
	return fields, nil
}

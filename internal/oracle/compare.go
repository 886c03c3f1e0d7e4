package oracle

import (
	"context"
	"encoding/json"
	"fmt"

	"procura/internal"
)

// VendorProposal pairs a vendor name with the parsed fields of their proposal,
// the shape the comparison prompt expects.
type VendorProposal struct {
	Vendor string                  `json:"vendor"`
	Data   internal.ProposalFields `json:"data"`
}

const comparePrompt = `You are an expert procurement analyst.
Compare the following vendor proposals against the RFP requirements.

RFP Requirements:
%s

Vendor Proposals:
%s

Return ONLY a valid JSON object with the following structure:
{
  "matrix": [
    { "vendor": "Vendor A", "totalCost": 1000, "delivery": "30 days", "warranty": "1 year", "score": 85, "pros": ["Cheap"], "cons": ["Slow delivery"] }
  ],
  "recommendation": "I recommend Vendor A because...",
  "summary": "Vendor A offers the best price while Vendor B has better terms..."
}`

// CompareProposals builds an AI comparison matrix over the received proposals.
// Like drafting, this is a whole-operation call: errors propagate.
func (c *Client) CompareProposals(ctx context.Context, requirements internal.Requirements, proposals []VendorProposal) (internal.ComparisonResult, error) {
	reqJSON, err := json.MarshalIndent(requirements, "", "  ")
	if err != nil {
		return internal.ComparisonResult{}, fmt.Errorf("marshal requirements: %w", err)
	}
	propJSON, err := json.MarshalIndent(proposals, "", "  ")
	if err != nil {
		return internal.ComparisonResult{}, fmt.Errorf("marshal proposals: %w", err)
	}

	raw, err := c.Generate(ctx, fmt.Sprintf(comparePrompt, string(reqJSON), string(propJSON)))
	if err != nil {
		return internal.ComparisonResult{}, err
	}

	var result internal.ComparisonResult
	if err := decodeObject(raw, &result); err != nil {
		return internal.ComparisonResult{}, err
	}
	return result, nil
}

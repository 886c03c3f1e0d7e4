package oracle

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"procura/internal/util"
)

// NoMatch is the classifier outcome for ambiguous, unrelated or failed
// classifications.
const NoMatch = -1

const classifyPrompt = `You are an intelligent email classifier for a procurement system.

Task: Identify which Request for Proposal (RFP) the following email is related to.

Available RFPs (indexed):
%s

Email Content:
"""
%s
"""

Instructions:
1. Analyze the email details (subject, body, items mentioned).
2. Match it to one of the provided RFPs.
3. If it matches, return the index (0, 1, 2...).
4. If it is ambiguous, unrelated, or spam, return -1.
5. Return ONLY a JSON object: { "rfpIndex": number }`

// ClassifyEmail asks the model which of the candidate titles the email belongs
// to. It never fails: malformed output, out-of-range indexes and model errors
// all collapse to NoMatch so a flaky oracle cannot abort a batch.
func (c *Client) ClassifyEmail(ctx context.Context, emailText string, candidateTitles []string) int {
	if len(candidateTitles) == 0 {
		return NoMatch
	}

	titlesJSON, err := json.MarshalIndent(candidateTitles, "", "  ")
	if err != nil {
		return NoMatch
	}
	prompt := fmt.Sprintf(classifyPrompt, string(titlesJSON), util.Truncate(emailText, c.inputLimit))

	raw, err := c.Generate(ctx, prompt)
	if err != nil {
		c.logger.Warn("classification failed", zap.Error(err))
		return NoMatch
	}

	var parsed struct {
		RFPIndex *float64 `json:"rfpIndex"`
	}
	if err := decodeObject(raw, &parsed); err != nil || parsed.RFPIndex == nil {
		c.logger.Warn("classification returned no usable index",
			zap.String("response_preview", util.Truncate(raw, 200)))
		return NoMatch
	}

	idx := int(*parsed.RFPIndex)
	if idx < 0 || idx >= len(candidateTitles) {
		return NoMatch
	}
	return idx
}

package connectors

import (
	"fmt"
	"strings"
	"time"

	"procura/internal"
)

const invitationSubjectPrefix = "RFP Invitation: "

// ComposeInvitation renders the invitation email for an RFP. The subject
// carries the RFP title verbatim; vendors replying in-thread keep it intact,
// which is what the deterministic subject matcher relies on.
func ComposeInvitation(rfp internal.RFP) (subject, body string) {
	subject = invitationSubjectPrefix + rfp.Title

	var b strings.Builder
	b.WriteString("Dear Vendor,\n\n")
	b.WriteString("You are invited to submit a proposal for the following RFP:\n\n")
	b.WriteString(rfp.Title + "\n\n")
	b.WriteString("--------------------------------------------------\n")
	b.WriteString("Requirements:\n\nItems:\n")
	for _, item := range rfp.Requirements.Items {
		fmt.Fprintf(&b, "- %s (Qty: %g)", item.Name, item.Quantity)
		if item.Specs != nil && *item.Specs != "" {
			fmt.Fprintf(&b, "\n  Specs: %s", *item.Specs)
		}
		b.WriteString("\n")
	}
	b.WriteString("\nAdditional Details:\n")
	fmt.Fprintf(&b, "- Budget: %s\n", budgetLine(rfp.Requirements.Budget))
	fmt.Fprintf(&b, "- Deadline: %s\n", deadlineLine(rfp.Requirements.Deadline))
	fmt.Fprintf(&b, "- Payment Terms: %s\n", orNotSpecified(rfp.Requirements.PaymentTerms))
	fmt.Fprintf(&b, "- Warranty: %s\n", orNotSpecified(rfp.Requirements.Warranty))
	b.WriteString("--------------------------------------------------\n\n")
	b.WriteString("Please reply to this email with your proposal attached or in the body.\n\n")
	b.WriteString("Best regards,\nProcurement Team\n")

	return subject, b.String()
}

func budgetLine(budget *float64) string {
	if budget == nil {
		return "Not specified"
	}
	return fmt.Sprintf("%g", *budget)
}

func deadlineLine(deadline *string) string {
	if deadline == nil || strings.TrimSpace(*deadline) == "" {
		return "Not specified"
	}
	if t, err := time.Parse("2006-01-02", *deadline); err == nil {
		return t.Format("Mon Jan 02 2006")
	}
	return *deadline
}

func orNotSpecified(v *string) string {
	if v == nil || strings.TrimSpace(*v) == "" {
		return "Not specified"
	}
	return *v
}

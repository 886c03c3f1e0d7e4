package connectors

import (
	"context"
	"time"
)

// Message is one raw message pulled from a provider, before MIME decoding.
type Message struct {
	Provider   string
	MessageID  string
	Subject    string
	From       string
	ReceivedAt time.Time
	Raw        []byte
}

type MailConnector interface {
	FetchSince(ctx context.Context, since time.Time, max int) ([]Message, error)
}

// Courier delivers outbound mail (RFP invitations).
type Courier interface {
	Send(ctx context.Context, to, subject, body string) error
}

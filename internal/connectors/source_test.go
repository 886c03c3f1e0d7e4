package connectors

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"go.uber.org/zap"
)

type fakeConnector struct {
	messages []Message
	err      error
}

func (f *fakeConnector) FetchSince(ctx context.Context, since time.Time, max int) ([]Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.messages, nil
}

func rawMessage(from, subject, body string) []byte {
	return []byte("From: " + from + "\r\nSubject: " + subject + "\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n" + body)
}

func TestFetchSinceTransportFailureIsEmptyBatch(t *testing.T) {
	src := NewSource(&fakeConnector{err: errors.New("connection refused")}, "", 10, zap.NewNop())

	emails := src.FetchSince(context.Background(), time.Now(), map[string]struct{}{"sales@acme.test": {}})
	if len(emails) != 0 {
		t.Fatalf("emails = %d", len(emails))
	}
}

func TestFetchSinceFiltersSenderAndHorizon(t *testing.T) {
	horizon := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	conn := &fakeConnector{messages: []Message{
		{
			Provider:   "imap",
			MessageID:  "<ok@acme>",
			From:       "Acme Sales <Sales@Acme.test>",
			Subject:    "Re: RFP Invitation: Laptops",
			ReceivedAt: horizon.Add(time.Hour),
			Raw:        rawMessage("Sales@Acme.test", "Re: RFP Invitation: Laptops", "Total 5000 USD"),
		},
		{
			// Allow-listed but received before the horizon; IMAP SINCE is
			// date-granular so this can come back from the server.
			Provider:   "imap",
			MessageID:  "<old@acme>",
			From:       "sales@acme.test",
			ReceivedAt: horizon.Add(-time.Hour),
			Raw:        rawMessage("sales@acme.test", "old", "old"),
		},
		{
			Provider:   "imap",
			MessageID:  "<spam@other>",
			From:       "noreply@other.test",
			ReceivedAt: horizon.Add(time.Hour),
			Raw:        rawMessage("noreply@other.test", "spam", "spam"),
		},
	}}

	src := NewSource(conn, "", 10, zap.NewNop())
	emails := src.FetchSince(context.Background(), horizon, map[string]struct{}{"sales@acme.test": {}})

	if len(emails) != 1 {
		t.Fatalf("emails = %d", len(emails))
	}
	got := emails[0]
	if got.Sender != "sales@acme.test" {
		t.Fatalf("sender = %q", got.Sender)
	}
	if got.Subject != "Re: RFP Invitation: Laptops" {
		t.Fatalf("subject = %q", got.Subject)
	}
	if got.Text != "Total 5000 USD" {
		t.Fatalf("text = %q", got.Text)
	}
}

func TestFetchSinceArchivesRaw(t *testing.T) {
	rawDir := t.TempDir()
	now := time.Now().UTC()
	conn := &fakeConnector{messages: []Message{{
		Provider:   "imap",
		MessageID:  "<ok@acme>",
		From:       "sales@acme.test",
		ReceivedAt: now,
		Raw:        rawMessage("sales@acme.test", "Quotation", "body"),
	}}}

	src := NewSource(conn, rawDir, 10, zap.NewNop())
	emails := src.FetchSince(context.Background(), now.Add(-time.Hour), map[string]struct{}{"sales@acme.test": {}})
	if len(emails) != 1 {
		t.Fatalf("emails = %d", len(emails))
	}

	entries, err := os.ReadDir(rawDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("archived files = %d", len(entries))
	}
}

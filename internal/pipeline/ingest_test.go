package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"procura/internal"
	"procura/internal/storage"
)

type fakeSource struct {
	emails     []internal.RawEmail
	fetchCalls int
	lastSince  time.Time
}

func (f *fakeSource) FetchSince(ctx context.Context, horizon time.Time, allowed map[string]struct{}) []internal.RawEmail {
	f.fetchCalls++
	f.lastSince = horizon
	return f.emails
}

type fakeOracle struct {
	classifyCalls  int
	classifyTitles []string
	classifyResult int
	extractErr     error
	extractFields  internal.ProposalFields
}

func (f *fakeOracle) ClassifyEmail(ctx context.Context, emailText string, candidateTitles []string) int {
	f.classifyCalls++
	f.classifyTitles = candidateTitles
	return f.classifyResult
}

func (f *fakeOracle) ExtractProposalFields(ctx context.Context, emailText string) (internal.ProposalFields, error) {
	if f.extractErr != nil {
		return internal.ProposalFields{}, f.extractErr
	}
	return f.extractFields, nil
}

func openTestDB(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "app.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// seedSentRFP creates an RFP, invites the vendors and flips it to Sent.
func seedSentRFP(t *testing.T, db *storage.DB, title string, createdAt, sentAt time.Time, vendors ...internal.Vendor) internal.RFP {
	t.Helper()
	rfp, err := db.CreateRFP(internal.RFP{Title: title, CreatedAt: createdAt})
	if err != nil {
		t.Fatal(err)
	}
	ids := make([]string, len(vendors))
	for i, v := range vendors {
		ids[i] = v.ID
	}
	if err := db.MarkRFPSent(rfp.ID, ids, sentAt); err != nil {
		t.Fatal(err)
	}
	return rfp
}

func seedVendor(t *testing.T, db *storage.DB, name, email string) internal.Vendor {
	t.Helper()
	v, err := db.CreateVendor(internal.Vendor{Name: name, Email: email})
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func reply(from, subject, body string) internal.RawEmail {
	return internal.RawEmail{
		Provider:   "imap",
		From:       from,
		Sender:     strings.ToLower(from),
		Subject:    subject,
		Text:       body,
		ReceivedAt: time.Now().UTC(),
	}
}

func TestRunNoSentRFPsSkipsFetch(t *testing.T) {
	db := openTestDB(t)
	source := &fakeSource{}
	oracle := &fakeOracle{}

	svc := NewIngestService(db, source, oracle, 0, zap.NewNop())
	report, err := svc.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if source.fetchCalls != 0 {
		t.Fatalf("fetch called %d times with no sent rfps", source.fetchCalls)
	}
	if report.Processed != 0 || len(report.Created) != 0 || len(report.Skipped) != 0 {
		t.Fatalf("expected empty report, got %+v", report)
	}
}

func TestRunSubjectMatchSkipsClassifier(t *testing.T) {
	db := openTestDB(t)
	now := time.Now().UTC().Truncate(time.Second)
	vendor := seedVendor(t, db, "Acme", "sales@acme.test")
	rfp := seedSentRFP(t, db, "Office Laptops", now.Add(-time.Hour), now.Add(-time.Hour), vendor)

	source := &fakeSource{emails: []internal.RawEmail{
		reply("sales@acme.test", "Re: RFP Invitation: Office Laptops", "Total cost 5000 USD"),
	}}
	oracle := &fakeOracle{extractFields: internal.ProposalFields{Summary: "5000 USD quote"}}

	svc := NewIngestService(db, source, oracle, 0, zap.NewNop())
	report, err := svc.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if oracle.classifyCalls != 0 {
		t.Fatalf("classifier called %d times despite a subject match", oracle.classifyCalls)
	}
	if len(report.Created) != 1 || len(report.Skipped) != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if report.Created[0].RFPID != rfp.ID || report.Created[0].VendorID != vendor.ID {
		t.Fatalf("proposal attached to wrong rfp/vendor: %+v", report.Created[0])
	}
	if report.Created[0].Fields.Summary != "5000 USD quote" {
		t.Fatalf("fields not persisted: %+v", report.Created[0].Fields)
	}
}

func TestRunClassifierFallback(t *testing.T) {
	db := openTestDB(t)
	now := time.Now().UTC().Truncate(time.Second)
	vendor := seedVendor(t, db, "Acme", "sales@acme.test")
	seedSentRFP(t, db, "Office Laptops", now.Add(-2*time.Hour), now.Add(-time.Hour), vendor)
	rfp2 := seedSentRFP(t, db, "Office Chairs", now.Add(-time.Hour), now.Add(-time.Hour), vendor)

	source := &fakeSource{emails: []internal.RawEmail{
		reply("sales@acme.test", "Our quotation", "Pricing for 40 chairs attached"),
	}}
	oracle := &fakeOracle{classifyResult: 1, extractFields: internal.ProposalFields{Summary: "chairs quote"}}

	svc := NewIngestService(db, source, oracle, 0, zap.NewNop())
	report, err := svc.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if oracle.classifyCalls != 1 {
		t.Fatalf("classifier calls = %d", oracle.classifyCalls)
	}
	// Candidate titles must be scoped to this vendor, in creation order.
	want := []string{"Office Laptops", "Office Chairs"}
	if len(oracle.classifyTitles) != 2 || oracle.classifyTitles[0] != want[0] || oracle.classifyTitles[1] != want[1] {
		t.Fatalf("candidate titles = %v", oracle.classifyTitles)
	}
	if len(report.Created) != 1 || report.Created[0].RFPID != rfp2.ID {
		t.Fatalf("unexpected report: %+v", report)
	}
}

func TestRunAmbiguousClassificationSkips(t *testing.T) {
	db := openTestDB(t)
	now := time.Now().UTC().Truncate(time.Second)
	vendor := seedVendor(t, db, "Acme", "sales@acme.test")
	seedSentRFP(t, db, "Office Laptops", now.Add(-time.Hour), now.Add(-time.Hour), vendor)

	source := &fakeSource{emails: []internal.RawEmail{
		reply("sales@acme.test", "Hello", "Unrelated newsletter"),
	}}
	oracle := &fakeOracle{classifyResult: -1}

	svc := NewIngestService(db, source, oracle, 0, zap.NewNop())
	report, err := svc.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Created) != 0 || len(report.Skipped) != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if !strings.Contains(report.Skipped[0].Reason, "no confident match") ||
		!strings.Contains(report.Skipped[0].Reason, "Office Laptops") {
		t.Fatalf("skip reason = %q", report.Skipped[0].Reason)
	}
}

func TestRunOutOfRangeClassificationSkips(t *testing.T) {
	db := openTestDB(t)
	now := time.Now().UTC().Truncate(time.Second)
	vendor := seedVendor(t, db, "Acme", "sales@acme.test")
	seedSentRFP(t, db, "Office Laptops", now.Add(-time.Hour), now.Add(-time.Hour), vendor)

	source := &fakeSource{emails: []internal.RawEmail{
		reply("sales@acme.test", "Quotation", "body"),
	}}
	oracle := &fakeOracle{classifyResult: 7}

	svc := NewIngestService(db, source, oracle, 0, zap.NewNop())
	report, err := svc.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Created) != 0 || len(report.Skipped) != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
}

func TestRunUnknownVendorSkips(t *testing.T) {
	db := openTestDB(t)
	now := time.Now().UTC().Truncate(time.Second)
	vendor := seedVendor(t, db, "Acme", "sales@acme.test")
	seedSentRFP(t, db, "Office Laptops", now.Add(-time.Hour), now.Add(-time.Hour), vendor)

	source := &fakeSource{emails: []internal.RawEmail{
		reply("stranger@elsewhere.test", "RFP Invitation: Office Laptops", "quote"),
	}}
	oracle := &fakeOracle{}

	svc := NewIngestService(db, source, oracle, 0, zap.NewNop())
	report, err := svc.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Skipped) != 1 || report.Skipped[0].Reason != "unknown vendor" {
		t.Fatalf("unexpected report: %+v", report)
	}
}

func TestRunDuplicateSkips(t *testing.T) {
	db := openTestDB(t)
	now := time.Now().UTC().Truncate(time.Second)
	vendor := seedVendor(t, db, "Acme", "sales@acme.test")
	rfp := seedSentRFP(t, db, "Office Laptops", now.Add(-time.Hour), now.Add(-time.Hour), vendor)

	if _, err := db.InsertProposal(internal.Proposal{
		RFPID:    rfp.ID,
		VendorID: vendor.ID,
		Fields:   internal.ProposalFields{Summary: "first"},
	}); err != nil {
		t.Fatal(err)
	}

	source := &fakeSource{emails: []internal.RawEmail{
		reply("sales@acme.test", "RFP Invitation: Office Laptops", "second quote"),
	}}
	oracle := &fakeOracle{extractFields: internal.ProposalFields{Summary: "second"}}

	svc := NewIngestService(db, source, oracle, 0, zap.NewNop())
	report, err := svc.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Created) != 0 || len(report.Skipped) != 1 || report.Skipped[0].Reason != "duplicate" {
		t.Fatalf("unexpected report: %+v", report)
	}

	proposals, err := db.ListProposalsByRFP(rfp.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(proposals) != 1 {
		t.Fatalf("proposals = %d", len(proposals))
	}
}

func TestRunExtractionFailureKeepsReply(t *testing.T) {
	db := openTestDB(t)
	now := time.Now().UTC().Truncate(time.Second)
	vendor := seedVendor(t, db, "Acme", "sales@acme.test")
	rfp := seedSentRFP(t, db, "Office Laptops", now.Add(-time.Hour), now.Add(-time.Hour), vendor)

	source := &fakeSource{emails: []internal.RawEmail{
		reply("sales@acme.test", "RFP Invitation: Office Laptops", "see scan attached"),
	}}
	oracle := &fakeOracle{extractErr: errors.New("all models exhausted")}

	svc := NewIngestService(db, source, oracle, 0, zap.NewNop())
	report, err := svc.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Created) != 1 || len(report.Skipped) != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if report.Created[0].Fields.Summary != placeholderSummary {
		t.Fatalf("summary = %q", report.Created[0].Fields.Summary)
	}
	if report.Created[0].RawContent != "see scan attached" {
		t.Fatalf("raw content not kept: %q", report.Created[0].RawContent)
	}

	proposals, err := db.ListProposalsByRFP(rfp.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(proposals) != 1 || proposals[0].Fields.Summary != placeholderSummary {
		t.Fatalf("placeholder not persisted: %+v", proposals)
	}
}

func TestRunAccountingIdentity(t *testing.T) {
	db := openTestDB(t)
	now := time.Now().UTC().Truncate(time.Second)
	vendor := seedVendor(t, db, "Acme", "sales@acme.test")
	seedSentRFP(t, db, "Office Laptops", now.Add(-time.Hour), now.Add(-time.Hour), vendor)

	source := &fakeSource{emails: []internal.RawEmail{
		reply("sales@acme.test", "RFP Invitation: Office Laptops", "quote one"),
		reply("stranger@elsewhere.test", "spam", "spam"),
		reply("sales@acme.test", "RFP Invitation: Office Laptops", "quote two"),
	}}
	oracle := &fakeOracle{extractFields: internal.ProposalFields{Summary: "ok"}}

	svc := NewIngestService(db, source, oracle, 0, zap.NewNop())
	report, err := svc.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Processed != 3 {
		t.Fatalf("processed = %d", report.Processed)
	}
	if report.Processed != len(report.Created)+len(report.Skipped) {
		t.Fatalf("accounting mismatch: processed=%d created=%d skipped=%d",
			report.Processed, len(report.Created), len(report.Skipped))
	}
	// Second reply from the same vendor to the same RFP is a duplicate.
	if len(report.Created) != 1 || len(report.Skipped) != 2 {
		t.Fatalf("unexpected report: %+v", report)
	}
}

func TestRunDeadlineFinalizesPartial(t *testing.T) {
	db := openTestDB(t)
	now := time.Now().UTC().Truncate(time.Second)
	vendor := seedVendor(t, db, "Acme", "sales@acme.test")
	seedSentRFP(t, db, "Office Laptops", now.Add(-time.Hour), now.Add(-time.Hour), vendor)

	source := &fakeSource{emails: []internal.RawEmail{
		reply("sales@acme.test", "RFP Invitation: Office Laptops", "quote"),
	}}
	oracle := &fakeOracle{extractFields: internal.ProposalFields{Summary: "ok"}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	svc := NewIngestService(db, source, oracle, 0, zap.NewNop())
	report, err := svc.Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if report.Processed != 0 || len(report.Created) != 0 {
		t.Fatalf("expected no messages visited, got %+v", report)
	}
}

func TestRunFetchHorizon(t *testing.T) {
	db := openTestDB(t)
	early := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	late := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	vendor := seedVendor(t, db, "Acme", "sales@acme.test")
	seedSentRFP(t, db, "Office Laptops", early, early, vendor)
	seedSentRFP(t, db, "Office Chairs", late, late, vendor)

	source := &fakeSource{}
	svc := NewIngestService(db, source, &fakeOracle{}, 0, zap.NewNop())
	if _, err := svc.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !source.lastSince.Equal(early) {
		t.Fatalf("fetch horizon = %v, want %v", source.lastSince, early)
	}
}

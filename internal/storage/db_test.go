package storage

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"procura/internal"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "app.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestVendorByEmailCaseInsensitive(t *testing.T) {
	db := openTestDB(t)
	created, err := db.CreateVendor(internal.Vendor{Name: "Acme", Email: "Sales@Acme.test"})
	if err != nil {
		t.Fatal(err)
	}

	got, err := db.VendorByEmail("sales@acme.test")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.ID != created.ID {
		t.Fatalf("lookup = %+v", got)
	}

	// Same mailbox with different casing must be rejected.
	if _, err := db.CreateVendor(internal.Vendor{Name: "Acme 2", Email: "SALES@ACME.TEST"}); err == nil {
		t.Fatal("duplicate vendor email accepted")
	}
}

func TestMarkRFPSentAndListOrder(t *testing.T) {
	db := openTestDB(t)

	acme, _ := db.CreateVendor(internal.Vendor{Name: "Acme", Email: "sales@acme.test"})
	globex, _ := db.CreateVendor(internal.Vendor{Name: "Globex", Email: "bids@globex.test"})

	early := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	late := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

	// Created out of order on purpose.
	second, err := db.CreateRFP(internal.RFP{Title: "Chairs", CreatedAt: late})
	if err != nil {
		t.Fatal(err)
	}
	first, err := db.CreateRFP(internal.RFP{Title: "Laptops", CreatedAt: early})
	if err != nil {
		t.Fatal(err)
	}
	// Stays a draft; must not show up in ListSentRFPs.
	if _, err := db.CreateRFP(internal.RFP{Title: "Desks", CreatedAt: early}); err != nil {
		t.Fatal(err)
	}

	if err := db.MarkRFPSent(first.ID, []string{globex.ID, acme.ID}, early); err != nil {
		t.Fatal(err)
	}
	if err := db.MarkRFPSent(second.ID, []string{acme.ID}, late); err != nil {
		t.Fatal(err)
	}

	sent, err := db.ListSentRFPs()
	if err != nil {
		t.Fatal(err)
	}
	if len(sent) != 2 {
		t.Fatalf("sent rfps = %d", len(sent))
	}
	if sent[0].ID != first.ID || sent[1].ID != second.ID {
		t.Fatalf("order = %s, %s", sent[0].Title, sent[1].Title)
	}
	if sent[0].LastSentAt == nil || !sent[0].LastSentAt.Equal(early) {
		t.Fatalf("lastSentAt = %v", sent[0].LastSentAt)
	}
	// Invited vendors come back in invitation order.
	if len(sent[0].Vendors) != 2 || sent[0].Vendors[0].ID != globex.ID || sent[0].Vendors[1].ID != acme.ID {
		t.Fatalf("vendors = %+v", sent[0].Vendors)
	}

	// Re-sending to an already invited vendor is a no-op, not an error.
	if err := db.MarkRFPSent(first.ID, []string{acme.ID}, late); err != nil {
		t.Fatal(err)
	}
	refreshed, err := db.GetRFP(first.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(refreshed.Vendors) != 2 {
		t.Fatalf("vendors after resend = %d", len(refreshed.Vendors))
	}
	if refreshed.LastSentAt == nil || !refreshed.LastSentAt.Equal(late) {
		t.Fatalf("lastSentAt not advanced: %v", refreshed.LastSentAt)
	}
}

func TestMarkRFPSentUnknownRFP(t *testing.T) {
	db := openTestDB(t)
	if err := db.MarkRFPSent("missing", nil, time.Now()); err == nil {
		t.Fatal("expected error for unknown rfp")
	}
}

func TestInsertProposalDuplicate(t *testing.T) {
	db := openTestDB(t)
	vendor, _ := db.CreateVendor(internal.Vendor{Name: "Acme", Email: "sales@acme.test"})
	rfp, err := db.CreateRFP(internal.RFP{Title: "Laptops"})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := db.InsertProposal(internal.Proposal{
		RFPID:    rfp.ID,
		VendorID: vendor.ID,
		Fields:   internal.ProposalFields{Summary: "first"},
	}); err != nil {
		t.Fatal(err)
	}

	exists, err := db.HasProposal(rfp.ID, vendor.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !exists {
		t.Fatal("HasProposal = false after insert")
	}

	_, err = db.InsertProposal(internal.Proposal{
		RFPID:    rfp.ID,
		VendorID: vendor.ID,
		Fields:   internal.ProposalFields{Summary: "second"},
	})
	if !errors.Is(err, ErrDuplicateProposal) {
		t.Fatalf("err = %v", err)
	}

	proposals, err := db.ListProposalsByRFP(rfp.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(proposals) != 1 || proposals[0].Fields.Summary != "first" {
		t.Fatalf("proposals = %+v", proposals)
	}
}

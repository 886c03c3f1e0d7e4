package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"procura/internal"
)

type DB struct {
	conn *sql.DB
}

// ErrDuplicateProposal reports a violation of the one-proposal-per-(rfp, vendor)
// constraint.
var ErrDuplicateProposal = errors.New("proposal already exists for this rfp and vendor")

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = conn.Close()
		return nil, err
	}
	if _, err := conn.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
		_ = conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS rfps (
  id TEXT PRIMARY KEY,
  title TEXT NOT NULL,
  description TEXT NOT NULL DEFAULT '',
  requirementsJson TEXT NOT NULL DEFAULT '{}',
  status TEXT NOT NULL DEFAULT 'Draft',
  createdAt TEXT NOT NULL,
  lastSentAt TEXT
);
CREATE INDEX IF NOT EXISTS idx_rfps_status ON rfps(status);

CREATE TABLE IF NOT EXISTS vendors (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  email TEXT NOT NULL UNIQUE COLLATE NOCASE,
  contactPerson TEXT,
  tagsJson TEXT NOT NULL DEFAULT '[]',
  createdAt TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS rfp_vendors (
  rfpId TEXT NOT NULL,
  vendorId TEXT NOT NULL,
  invitedAt TEXT NOT NULL,
  UNIQUE(rfpId, vendorId),
  FOREIGN KEY(rfpId) REFERENCES rfps(id),
  FOREIGN KEY(vendorId) REFERENCES vendors(id)
);

CREATE TABLE IF NOT EXISTS proposals (
  id TEXT PRIMARY KEY,
  rfpId TEXT NOT NULL,
  vendorId TEXT NOT NULL,
  rawContent TEXT NOT NULL DEFAULT '',
  fieldsJson TEXT NOT NULL DEFAULT '{}',
  analysis TEXT NOT NULL DEFAULT '',
  receivedAt TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(rfpId, vendorId),
  FOREIGN KEY(rfpId) REFERENCES rfps(id),
  FOREIGN KEY(vendorId) REFERENCES vendors(id)
);
`

	_, err := d.conn.Exec(schema)
	return err
}

func (d *DB) CreateVendor(v internal.Vendor) (internal.Vendor, error) {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	v.Email = strings.ToLower(strings.TrimSpace(v.Email))
	if v.Email == "" {
		return internal.Vendor{}, errors.New("vendor email is required")
	}
	tagsJSON, _ := json.Marshal(v.Tags)
	_, err := d.conn.Exec(`
INSERT INTO vendors (id, name, email, contactPerson, tagsJson, createdAt)
VALUES (?, ?, ?, ?, ?, ?)
`, v.ID, v.Name, v.Email, v.ContactPerson, string(tagsJSON), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return internal.Vendor{}, err
	}
	return v, nil
}

func (d *DB) VendorByEmail(email string) (*internal.Vendor, error) {
	return d.scanVendor(d.conn.QueryRow(`
SELECT id, name, email, contactPerson, tagsJson
FROM vendors WHERE email = ? COLLATE NOCASE
`, strings.TrimSpace(email)))
}

func (d *DB) VendorByID(id string) (*internal.Vendor, error) {
	return d.scanVendor(d.conn.QueryRow(`
SELECT id, name, email, contactPerson, tagsJson
FROM vendors WHERE id = ?
`, id))
}

func (d *DB) ListVendors() ([]internal.Vendor, error) {
	rows, err := d.conn.Query(`
SELECT id, name, email, contactPerson, tagsJson
FROM vendors ORDER BY createdAt ASC
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.Vendor
	for rows.Next() {
		var v internal.Vendor
		var tagsJSON string
		if err := rows.Scan(&v.ID, &v.Name, &v.Email, &v.ContactPerson, &tagsJSON); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(tagsJSON), &v.Tags)
		out = append(out, v)
	}
	return out, rows.Err()
}

func (d *DB) scanVendor(row *sql.Row) (*internal.Vendor, error) {
	var v internal.Vendor
	var tagsJSON string
	err := row.Scan(&v.ID, &v.Name, &v.Email, &v.ContactPerson, &tagsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	_ = json.Unmarshal([]byte(tagsJSON), &v.Tags)
	return &v, nil
}

func (d *DB) CreateRFP(r internal.RFP) (internal.RFP, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if strings.TrimSpace(r.Title) == "" {
		return internal.RFP{}, errors.New("rfp title is required")
	}
	if r.Status == "" {
		r.Status = internal.StatusDraft
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	reqJSON, _ := json.Marshal(r.Requirements)
	_, err := d.conn.Exec(`
INSERT INTO rfps (id, title, description, requirementsJson, status, createdAt, lastSentAt)
VALUES (?, ?, ?, ?, ?, ?, ?)
`, r.ID, r.Title, r.Description, string(reqJSON), string(r.Status),
		r.CreatedAt.UTC().Format(time.RFC3339), formatTimePtr(r.LastSentAt))
	if err != nil {
		return internal.RFP{}, err
	}
	return r, nil
}

func (d *DB) GetRFP(id string) (*internal.RFP, error) {
	rfps, err := d.queryRFPs(`WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(rfps) == 0 {
		return nil, nil
	}
	return &rfps[0], nil
}

// ListSentRFPs returns every RFP with status Sent, invited vendors populated in
// invitation order, RFPs ordered by creation time. The ingestion pipeline
// depends on this ordering being stable.
func (d *DB) ListSentRFPs() ([]internal.RFP, error) {
	return d.queryRFPs(`WHERE status = ?`, string(internal.StatusSent))
}

func (d *DB) ListRFPs() ([]internal.RFP, error) {
	return d.queryRFPs(``)
}

func (d *DB) queryRFPs(where string, args ...any) ([]internal.RFP, error) {
	rows, err := d.conn.Query(`
SELECT id, title, description, requirementsJson, status, createdAt, lastSentAt
FROM rfps `+where+` ORDER BY createdAt ASC, id ASC
`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.RFP
	for rows.Next() {
		var r internal.RFP
		var reqJSON, createdAt string
		var lastSentAt *string
		if err := rows.Scan(&r.ID, &r.Title, &r.Description, &reqJSON, (*string)(&r.Status), &createdAt, &lastSentAt); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(reqJSON), &r.Requirements)
		r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		if lastSentAt != nil {
			if t, err := time.Parse(time.RFC3339, *lastSentAt); err == nil {
				r.LastSentAt = &t
			}
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		vendors, err := d.invitedVendors(out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Vendors = vendors
	}
	return out, nil
}

func (d *DB) invitedVendors(rfpID string) ([]internal.Vendor, error) {
	rows, err := d.conn.Query(`
SELECT v.id, v.name, v.email, v.contactPerson, v.tagsJson
FROM rfp_vendors rv
JOIN vendors v ON v.id = rv.vendorId
WHERE rv.rfpId = ?
ORDER BY rv.rowid ASC
`, rfpID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.Vendor
	for rows.Next() {
		var v internal.Vendor
		var tagsJSON string
		if err := rows.Scan(&v.ID, &v.Name, &v.Email, &v.ContactPerson, &tagsJSON); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(tagsJSON), &v.Tags)
		out = append(out, v)
	}
	return out, rows.Err()
}

// MarkRFPSent flips the RFP to Sent, records the send time and registers the
// invitations. Re-sending to an already invited vendor is a no-op.
func (d *DB) MarkRFPSent(rfpID string, vendorIDs []string, sentAt time.Time) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.Exec(`UPDATE rfps SET status = ?, lastSentAt = ? WHERE id = ?`,
		string(internal.StatusSent), sentAt.UTC().Format(time.RFC3339), rfpID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("rfp not found: %s", rfpID)
	}

	for _, vendorID := range vendorIDs {
		if _, err := tx.Exec(`
INSERT INTO rfp_vendors (rfpId, vendorId, invitedAt)
VALUES (?, ?, ?)
ON CONFLICT(rfpId, vendorId) DO NOTHING
`, rfpID, vendorID, sentAt.UTC().Format(time.RFC3339)); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (d *DB) HasProposal(rfpID, vendorID string) (bool, error) {
	var one int
	err := d.conn.QueryRow(`SELECT 1 FROM proposals WHERE rfpId = ? AND vendorId = ?`, rfpID, vendorID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (d *DB) InsertProposal(p internal.Proposal) (internal.Proposal, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.ReceivedAt.IsZero() {
		p.ReceivedAt = time.Now().UTC()
	}
	fieldsJSON, _ := json.Marshal(p.Fields)
	_, err := d.conn.Exec(`
INSERT INTO proposals (id, rfpId, vendorId, rawContent, fieldsJson, analysis, receivedAt)
VALUES (?, ?, ?, ?, ?, ?, ?)
`, p.ID, p.RFPID, p.VendorID, p.RawContent, string(fieldsJSON), p.Analysis,
		p.ReceivedAt.UTC().Format(time.RFC3339))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return internal.Proposal{}, ErrDuplicateProposal
		}
		return internal.Proposal{}, err
	}
	return p, nil
}

func (d *DB) ListProposalsByRFP(rfpID string) ([]internal.Proposal, error) {
	rows, err := d.conn.Query(`
SELECT id, rfpId, vendorId, rawContent, fieldsJson, analysis, receivedAt
FROM proposals WHERE rfpId = ? ORDER BY receivedAt ASC
`, rfpID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.Proposal
	for rows.Next() {
		var p internal.Proposal
		var fieldsJSON, receivedAt string
		if err := rows.Scan(&p.ID, &p.RFPID, &p.VendorID, &p.RawContent, &fieldsJSON, &p.Analysis, &receivedAt); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(fieldsJSON), &p.Fields)
		p.ReceivedAt, _ = time.Parse(time.RFC3339, receivedAt)
		out = append(out, p)
	}
	return out, rows.Err()
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

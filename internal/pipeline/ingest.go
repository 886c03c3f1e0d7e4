package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"procura/internal"
	"procura/internal/storage"
)

// MailSource yields vendor replies received at or after the horizon from
// allow-listed senders. Transport failures degrade to an empty batch inside
// the source; the pipeline never sees them.
type MailSource interface {
	FetchSince(ctx context.Context, horizon time.Time, allowed map[string]struct{}) []internal.RawEmail
}

// Oracle is the AI side of ingestion. ClassifyEmail never fails (ambiguity and
// oracle errors both come back as a negative index); ExtractProposalFields can.
type Oracle interface {
	ClassifyEmail(ctx context.Context, emailText string, candidateTitles []string) int
	ExtractProposalFields(ctx context.Context, emailText string) (internal.ProposalFields, error)
}

// Summary recorded when the extractor gives up on a reply. The raw content is
// still persisted so an operator can review it by hand; a vendor reply is
// never silently dropped for being unparseable.
const placeholderSummary = "Failed to parse proposal automatically."

// IngestService runs the response-ingestion batch: build the eligibility
// index from Sent RFPs, fetch the mailbox once, and resolve every message to
// either a new proposal or a skip entry with a reason. Runs must not overlap;
// the duplicate check is read-then-write and relies on the caller holding the
// run lock.
type IngestService struct {
	db       *storage.DB
	source   MailSource
	oracle   Oracle
	deadline time.Duration
	logger   *zap.Logger
}

func NewIngestService(db *storage.DB, source MailSource, oracle Oracle, deadline time.Duration, logger *zap.Logger) *IngestService {
	return &IngestService{db: db, source: source, oracle: oracle, deadline: deadline, logger: logger}
}

// Run executes one ingestion batch. Per-message failures become skip entries;
// the only error Run itself returns is a failure to load the Sent-RFP set,
// since no work at all is possible without it.
func (s *IngestService) Run(ctx context.Context) (internal.IngestReport, error) {
	var report internal.IngestReport

	sent, err := s.db.ListSentRFPs()
	if err != nil {
		return report, fmt.Errorf("load sent rfps: %w", err)
	}
	if len(sent) == 0 {
		s.logger.Info("no sent rfps, skipping mail fetch")
		return report, nil
	}

	idx := BuildEligibilityIndex(sent)

	runCtx := ctx
	if s.deadline > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.deadline)
		defer cancel()
	}

	emails := s.source.FetchSince(runCtx, idx.EarliestHorizon, idx.AllowedSenders)
	for i, email := range emails {
		if runCtx.Err() != nil {
			s.logger.Warn("batch deadline exceeded, finalizing partial results",
				zap.Int("unvisited", len(emails)-i))
			break
		}
		report.Processed++
		s.processEmail(runCtx, idx, email, &report)
	}

	s.logger.Info("ingestion run complete",
		zap.Int("processed", report.Processed),
		zap.Int("created", len(report.Created)),
		zap.Int("skipped", len(report.Skipped)),
	)
	return report, nil
}

func (s *IngestService) processEmail(ctx context.Context, idx EligibilityIndex, email internal.RawEmail, report *internal.IngestReport) {
	skip := func(reason string) {
		s.logger.Debug("email skipped",
			zap.String("from", email.From),
			zap.String("subject", email.Subject),
			zap.String("reason", reason),
		)
		report.Skipped = append(report.Skipped, internal.SkipEntry{
			Subject: email.Subject,
			From:    email.From,
			Reason:  reason,
		})
	}

	// The source already filtered by allow-list; checked again so a source bug
	// cannot attach a proposal to the wrong vendor.
	vendor, ok := idx.VendorByEmail[email.Sender]
	if !ok {
		skip("unknown vendor")
		return
	}

	candidates := idx.CandidateRFPs[email.Sender]
	if len(candidates) == 0 {
		skip("no candidates")
		return
	}

	matched, ok := MatchSubject(candidates, email.Subject)
	if !ok {
		titles := make([]string, len(candidates))
		for i, rfp := range candidates {
			titles[i] = rfp.Title
		}
		n := s.oracle.ClassifyEmail(ctx, classifierInput(email), titles)
		if n < 0 || n >= len(candidates) {
			skip(fmt.Sprintf("no confident match (candidates: %s)", strings.Join(titles, "; ")))
			return
		}
		matched = candidates[n]
	}

	exists, err := s.db.HasProposal(matched.ID, vendor.ID)
	if err != nil {
		skip(fmt.Sprintf("duplicate check failed: %v", err))
		return
	}
	if exists {
		skip("duplicate")
		return
	}

	fields, err := s.oracle.ExtractProposalFields(ctx, email.Text)
	if err != nil {
		// Keep the reply anyway; the operator reviews the raw content.
		s.logger.Warn("proposal extraction failed, persisting placeholder",
			zap.String("rfp", matched.Title),
			zap.String("vendor", vendor.Email),
			zap.Error(err),
		)
		fields = internal.ProposalFields{Summary: placeholderSummary}
	}

	created, err := s.db.InsertProposal(internal.Proposal{
		RFPID:      matched.ID,
		VendorID:   vendor.ID,
		RawContent: email.Text,
		Fields:     fields,
		Analysis:   fields.Summary,
		ReceivedAt: email.ReceivedAt,
	})
	if err != nil {
		if errors.Is(err, storage.ErrDuplicateProposal) {
			skip("duplicate")
			return
		}
		skip(fmt.Sprintf("persist failed: %v", err))
		return
	}

	s.logger.Info("proposal ingested",
		zap.String("rfp", matched.Title),
		zap.String("vendor", vendor.Email),
	)
	report.Created = append(report.Created, created)
}

// The classifier sees subject and body together; the subject often carries the
// strongest signal once the deterministic match has failed.
func classifierInput(email internal.RawEmail) string {
	return "Subject: " + email.Subject + "\n\n" + email.Text
}

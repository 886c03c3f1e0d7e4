package connectors

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"procura/internal"
	"procura/internal/util"
)

// Source turns a provider connector into the mail feed the ingestion pipeline
// consumes: only messages at or after the horizon, only from allow-listed
// senders, already MIME-decoded. A transport failure degrades to an empty
// batch; ingestion is a background job and must treat "mail service down" the
// same as "no mail".
type Source struct {
	connector MailConnector
	rawDir    string
	fetchMax  int
	logger    *zap.Logger
}

func NewSource(connector MailConnector, rawDir string, fetchMax int, logger *zap.Logger) *Source {
	if fetchMax <= 0 {
		fetchMax = 50
	}
	return &Source{connector: connector, rawDir: rawDir, fetchMax: fetchMax, logger: logger}
}

func (s *Source) FetchSince(ctx context.Context, horizon time.Time, allowed map[string]struct{}) []internal.RawEmail {
	messages, err := s.connector.FetchSince(ctx, horizon, s.fetchMax)
	if err != nil {
		s.logger.Warn("mail fetch failed, treating as empty batch", zap.Error(err))
		return nil
	}

	out := make([]internal.RawEmail, 0, len(messages))
	for _, msg := range messages {
		sender := util.ExtractAddress(msg.From)
		if _, ok := allowed[sender]; !ok {
			continue
		}
		// IMAP SINCE is date-granular, so the exact cutoff is enforced here.
		if msg.ReceivedAt.Before(horizon) {
			continue
		}

		subject, text, err := decodeContent(msg.Raw)
		if err != nil {
			s.logger.Warn("undecodable message dropped",
				zap.String("message_id", msg.MessageID),
				zap.Error(err),
			)
			continue
		}

		s.archive(msg)

		out = append(out, internal.RawEmail{
			Provider:   msg.Provider,
			MessageID:  msg.MessageID,
			From:       msg.From,
			Sender:     sender,
			Subject:    util.FirstNonEmpty(subject, msg.Subject),
			Text:       text,
			ReceivedAt: msg.ReceivedAt,
			Raw:        msg.Raw,
		})
	}

	return out
}

// archive keeps the original .eml on disk so an operator can review replies
// the extractor could not parse. Best effort only.
func (s *Source) archive(msg Message) {
	if s.rawDir == "" {
		return
	}
	hashBytes := sha256.Sum256(msg.Raw)
	hash := hex.EncodeToString(hashBytes[:])

	if err := os.MkdirAll(s.rawDir, 0o755); err != nil {
		s.logger.Warn("raw mail archive unavailable", zap.Error(err))
		return
	}
	rawPath := filepath.Join(s.rawDir, hash+".eml")
	if _, err := os.Stat(rawPath); os.IsNotExist(err) {
		if err := os.WriteFile(rawPath, msg.Raw, 0o644); err != nil {
			s.logger.Warn("raw mail archive write failed", zap.Error(err))
		}
	}
}

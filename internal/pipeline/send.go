package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"procura/internal/connectors"
	"procura/internal/storage"
)

// InviteService emails an RFP to a set of vendors and flips it to Sent. The
// send timestamp becomes the RFP's fetch horizon floor, so it is recorded only
// after every invitation went out.
type InviteService struct {
	db      *storage.DB
	courier connectors.Courier
	logger  *zap.Logger
}

func NewInviteService(db *storage.DB, courier connectors.Courier, logger *zap.Logger) *InviteService {
	return &InviteService{db: db, courier: courier, logger: logger}
}

func (s *InviteService) Send(ctx context.Context, rfpID string, vendorIDs []string) (int, error) {
	rfp, err := s.db.GetRFP(rfpID)
	if err != nil {
		return 0, err
	}
	if rfp == nil {
		return 0, fmt.Errorf("rfp not found: %s", rfpID)
	}

	subject, body := connectors.ComposeInvitation(*rfp)

	sent := 0
	for _, vendorID := range vendorIDs {
		vendor, err := s.db.VendorByID(vendorID)
		if err != nil {
			return sent, err
		}
		if vendor == nil {
			return sent, fmt.Errorf("vendor not found: %s", vendorID)
		}
		if err := s.courier.Send(ctx, vendor.Email, subject, body); err != nil {
			return sent, err
		}
		s.logger.Info("invitation sent",
			zap.String("rfp", rfp.Title),
			zap.String("vendor", vendor.Email),
		)
		sent++
	}

	if err := s.db.MarkRFPSent(rfpID, vendorIDs, time.Now().UTC()); err != nil {
		return sent, err
	}
	return sent, nil
}

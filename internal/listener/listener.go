package listener

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"procura/internal/config"
	"procura/internal/pipeline"
)

// Service triggers ingestion on an interval. The run lock serializes batches:
// the duplicate check inside a run is read-then-write, so two overlapping runs
// could both admit the same (rfp, vendor) reply.
type Service struct {
	ingest *pipeline.IngestService
	cfg    config.Config
	logger *zap.Logger

	runMu sync.Mutex
}

func NewService(ingest *pipeline.IngestService, cfg config.Config, logger *zap.Logger) *Service {
	return &Service{ingest: ingest, cfg: cfg, logger: logger}
}

func (s *Service) Run(ctx context.Context) error {
	interval := time.Duration(s.cfg.IngestIntervalSec) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	for {
		s.RunOnce(ctx)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}
	}
}

// RunOnce executes a single ingestion batch unless one is already in flight.
func (s *Service) RunOnce(ctx context.Context) {
	if !s.runMu.TryLock() {
		s.logger.Warn("ingestion run already in flight, skipping trigger")
		return
	}
	defer s.runMu.Unlock()

	report, err := s.ingest.Run(ctx)
	if err != nil {
		s.logger.Error("ingestion run failed", zap.Error(err))
		return
	}
	s.logger.Info("listener cycle done",
		zap.Int("processed", report.Processed),
		zap.Int("created", len(report.Created)),
		zap.Int("skipped", len(report.Skipped)),
	)
}

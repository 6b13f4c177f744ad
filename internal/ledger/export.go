package ledger

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/mangaverse/backend/internal/models"
)

// Exporter receives ledger entries in commit order. Each exporter is
// retried from its own cursor, so a batch it accepted is not sent again
// because another exporter failed.
type Exporter interface {
	Name() string
	Export(ctx context.Context, entries []models.LedgerEntry) error
}

// Source is the ordered, replayable entry stream.
type Source interface {
	EntriesAfter(seq uint64, limit int) []models.LedgerEntry
}

// Shipper pushes newly committed entries to every exporter and tracks, per
// exporter, the last sequence it accepted.
type Shipper struct {
	source    Source
	exporters []Exporter
	batchSize int
	logger    *zap.Logger

	mu      sync.Mutex
	cursors []uint64
}

func NewShipper(source Source, batchSize int, logger *zap.Logger, exporters ...Exporter) *Shipper {
	if batchSize <= 0 {
		batchSize = 500
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Shipper{
		source:    source,
		exporters: exporters,
		batchSize: batchSize,
		logger:    logger,
		cursors:   make([]uint64, len(exporters)),
	}
}

// Flush brings every exporter up to date. A failing exporter stops at its
// last accepted batch while the others carry on. It returns how many
// entries became shipped to all exporters; sequences are dense.
func (s *Shipper) Flush(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := s.minCursorLocked()
	var errs error
	for i, exp := range s.exporters {
		if err := s.drainLocked(ctx, i, exp); err != nil {
			if ctx.Err() != nil {
				errs = multierr.Append(errs, err)
				break
			}
			s.logger.Error("ledger export failed",
				zap.String("exporter", exp.Name()),
				zap.Uint64("cursor", s.cursors[i]),
				zap.Error(err))
			errs = multierr.Append(errs, fmt.Errorf("export to %s: %w", exp.Name(), err))
		}
	}
	return int(s.minCursorLocked() - before), errs
}

func (s *Shipper) drainLocked(ctx context.Context, i int, exp Exporter) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		batch := s.source.EntriesAfter(s.cursors[i], s.batchSize)
		if len(batch) == 0 {
			return nil
		}
		if err := exp.Export(ctx, batch); err != nil {
			return err
		}

		s.cursors[i] = batch[len(batch)-1].Sequence
		s.logger.Debug("ledger entries exported",
			zap.String("exporter", exp.Name()),
			zap.Int("count", len(batch)),
			zap.Uint64("cursor", s.cursors[i]))
	}
}

func (s *Shipper) minCursorLocked() uint64 {
	if len(s.cursors) == 0 {
		return 0
	}
	low := s.cursors[0]
	for _, c := range s.cursors[1:] {
		if c < low {
			low = c
		}
	}
	return low
}

// Cursor returns the sequence every exporter has accepted.
func (s *Shipper) Cursor() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.minCursorLocked()
}

// Cursors returns the last accepted sequence per exporter name.
func (s *Shipper) Cursors() map[string]uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]uint64, len(s.exporters))
	for i, exp := range s.exporters {
		out[exp.Name()] = s.cursors[i]
	}
	return out
}

// Package scheduler runs the engine's periodic jobs: shipping new ledger
// entries to the export sinks and scanning for overdue dividend cycles.
package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mangaverse/backend/internal/services"
)

// LedgerShipper pushes committed entries to the export sinks.
type LedgerShipper interface {
	Flush(ctx context.Context) (int, error)
}

// DividendScanner reports works with dividends due.
type DividendScanner interface {
	AllDueDividends(ctx context.Context) ([]services.DividendNotice, error)
}

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	shipper LedgerShipper
	scanner DividendScanner
	logger  *zap.Logger
	timeout time.Duration
}

func NewJobs(shipper LedgerShipper, scanner DividendScanner, logger *zap.Logger) *Jobs {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Jobs{
		shipper: shipper,
		scanner: scanner,
		logger:  logger.Named("jobs"),
		timeout: 2 * time.Minute,
	}
}

// ExportLedger ships entries committed since the last run.
func (j *Jobs) ExportLedger() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	n, err := j.shipper.Flush(ctx)
	if err != nil {
		j.logger.Error("ledger export failed", zap.Int("shipped", n), zap.Error(err))
		return
	}
	if n > 0 {
		j.logger.Info("ledger export finished", zap.Int("shipped", n))
	}
}

// ScanDividends logs every work whose payout cycle has elapsed so creators
// can be reminded before their withdrawals are blocked.
func (j *Jobs) ScanDividends() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	due, err := j.scanner.AllDueDividends(ctx)
	if err != nil {
		j.logger.Error("dividend scan failed", zap.Error(err))
		return
	}
	for _, d := range due {
		j.logger.Warn("dividends due",
			zap.String("creator_id", d.CreatorID),
			zap.String("work_id", d.WorkID),
			zap.Time("due_at", d.DueAt),
			zap.String("potential_pool", d.PotentialPool.String()),
			zap.String("accrued_pool", d.AccruedPool.String()))
	}
	j.logger.Info("dividend scan finished", zap.Int("due", len(due)))
}

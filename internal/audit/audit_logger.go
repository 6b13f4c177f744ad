// Package audit writes the structured audit trail of engine operations.
package audit

import (
	"go.uber.org/zap"

	"github.com/mangaverse/backend/internal/apperrors"
	"github.com/mangaverse/backend/internal/models"
)

const (
	StatusSuccess  = "SUCCESS"
	StatusRejected = "REJECTED"
	StatusFatal    = "FATAL"
)

type AuditLogger struct {
	logger *zap.Logger
}

func NewAuditLogger(logger *zap.Logger) *AuditLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditLogger{logger: logger.Named("audit")}
}

// LogOperation records a committed operation and the entries it produced.
func (a *AuditLogger) LogOperation(operationID, operation string, entries []models.LedgerEntry) {
	fields := []zap.Field{
		zap.String("event_type", operation),
		zap.String("operation_id", operationID),
		zap.String("status", StatusSuccess),
		zap.Int("entries", len(entries)),
	}
	for _, e := range entries {
		fields = append(fields, zap.Int64(string(e.AccountID), int64(e.Amount)))
	}
	a.logger.Info("ledger operation committed", fields...)
}

// LogRejection records a validation failure. Imbalanced batches are engine
// defects and are logged at error level.
func (a *AuditLogger) LogRejection(operationID, operation, subject string, err error) {
	fields := []zap.Field{
		zap.String("event_type", operation),
		zap.String("operation_id", operationID),
		zap.String("subject", subject),
		zap.String("kind", string(apperrors.KindOf(err))),
		zap.Error(err),
	}

	if apperrors.IsFatal(err) {
		a.logger.Error("ledger batch refused: engine invariant violated",
			append(fields, zap.String("status", StatusFatal))...)
		return
	}
	a.logger.Info("ledger operation rejected", append(fields, zap.String("status", StatusRejected))...)
}

// LogFault records an unexpected failure after commit.
func (a *AuditLogger) LogFault(operationID, operation string, err error) {
	a.logger.Error("projection update failed after commit",
		zap.String("event_type", operation),
		zap.String("operation_id", operationID),
		zap.String("status", StatusFatal),
		zap.Error(err))
}

package ledger

import (
	"context"
	"database/sql"

	"github.com/mangaverse/backend/internal/models"
)

// PostgresExporter mirrors the ledger into the ledger_entries table for
// reporting dashboards.
type PostgresExporter struct {
	db *sql.DB
}

func NewPostgresExporter(db *sql.DB) *PostgresExporter {
	return &PostgresExporter{db: db}
}

func (e *PostgresExporter) Name() string { return "postgres" }

// Export writes the batch in a single transaction. Entries already present
// are skipped so a retried flush is harmless.
func (e *PostgresExporter) Export(ctx context.Context, entries []models.LedgerEntry) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, entry := range entries {
		if err := e.insertEntry(ctx, tx, entry); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (e *PostgresExporter) insertEntry(ctx context.Context, tx *sql.Tx, entry models.LedgerEntry) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO ledger_entries (id, sequence, operation_id, kind, amount, account_id, work_id, counterparty_account_id, description, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING`,
		entry.ID,
		int64(entry.Sequence),
		entry.OperationID,
		string(entry.Kind),
		int64(entry.Amount),
		string(entry.AccountID),
		entry.WorkID,
		string(entry.CounterpartyAccountID),
		entry.Description,
		entry.Metadata,
		entry.Timestamp,
	)
	return err
}

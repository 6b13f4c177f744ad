package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// EntryKind classifies a ledger movement.
type EntryKind string

const (
	EntryDeposit          EntryKind = "deposit"
	EntryWithdrawal       EntryKind = "withdrawal"
	EntryAccessPurchase   EntryKind = "access_purchase"
	EntryDonation         EntryKind = "donation"
	EntryInvestment       EntryKind = "investment"
	EntrySharePurchase    EntryKind = "share_purchase"
	EntryCreatorPayout    EntryKind = "creator_payout"
	EntrySellerProceeds   EntryKind = "seller_proceeds"
	EntryPlatformFee      EntryKind = "platform_fee"
	EntryDividendPayout   EntryKind = "dividend_payout"
	EntryDividendReceived EntryKind = "dividend_received"
)

// IsBoundary reports whether entries of this kind move money across the
// platform boundary and are therefore exempt from the zero-sum rule.
func (k EntryKind) IsBoundary() bool {
	return k == EntryDeposit || k == EntryWithdrawal
}

// LedgerEntry is an immutable record of a monetary movement against one account.
type LedgerEntry struct {
	ID                    string    `json:"id" db:"id"`
	Sequence              uint64    `json:"sequence" db:"sequence"`
	OperationID           string    `json:"operationId" db:"operation_id"`
	Timestamp             time.Time `json:"timestamp" db:"created_at"`
	Kind                  EntryKind `json:"kind" db:"kind"`
	Amount                Amount    `json:"amount" db:"amount"` // in cents, signed
	AccountID             AccountID `json:"accountId" db:"account_id"`
	WorkID                string    `json:"workId,omitempty" db:"work_id"`
	CounterpartyAccountID AccountID `json:"counterpartyAccountId,omitempty" db:"counterparty_account_id"`
	Description           string    `json:"description" db:"description"`
	Metadata              Metadata  `json:"metadata,omitempty" db:"metadata"`
}

// Metadata type for JSONB fields
type Metadata map[string]string

// Value implements driver.Valuer for Metadata
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner for Metadata
func (m *Metadata) Scan(value any) error {
	if value == nil {
		*m = nil
		return nil
	}

	b, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}

	return json.Unmarshal(b, m)
}

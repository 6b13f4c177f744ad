package models

import (
	"strings"
	"time"
)

// Role distinguishes regular user wallets from creator earnings accounts.
type Role string

const (
	RoleRegular Role = "regular"
	RoleCreator Role = "creator"
)

// AccountID identifies a balance holder in the ledger.
type AccountID string

const (
	walletPrefix   = "wallet:"
	earningsPrefix = "earnings:"

	// PlatformAccountID receives every platform fee.
	PlatformAccountID AccountID = "platform"
)

// WalletID returns the personal wallet account of a user.
func WalletID(userID string) AccountID { return AccountID(walletPrefix + userID) }

// EarningsID returns the creator-side earnings account, independent of the
// creator's personal wallet.
func EarningsID(creatorID string) AccountID { return AccountID(earningsPrefix + creatorID) }

// Owner returns the user or creator the account belongs to and its role.
func (id AccountID) Owner() (string, Role, bool) {
	s := string(id)
	switch {
	case strings.HasPrefix(s, walletPrefix):
		return strings.TrimPrefix(s, walletPrefix), RoleRegular, true
	case strings.HasPrefix(s, earningsPrefix):
		return strings.TrimPrefix(s, earningsPrefix), RoleCreator, true
	}
	return "", "", false
}

// Account is a read projection of a ledger balance.
type Account struct {
	ID        AccountID `json:"id"`
	OwnerID   string    `json:"ownerId"`
	Role      Role      `json:"role"`
	Balance   Amount    `json:"balance"`
	CreatedAt time.Time `json:"createdAt"`
}

// Package accounts is the read projection of wallet and earnings balances.
// Balances are never written here; they come from the ledger.
package accounts

import (
	"sync"
	"time"

	"github.com/mangaverse/backend/internal/apperrors"
	"github.com/mangaverse/backend/internal/models"
)

// BalanceSource supplies committed balances.
type BalanceSource interface {
	BalanceOf(id models.AccountID) models.Amount
}

// Store tracks which accounts exist and projects their balances.
type Store struct {
	mu       sync.RWMutex
	accounts map[models.AccountID]models.Account
	balances BalanceSource
	now      func() time.Time
}

func NewStore(balances BalanceSource) *Store {
	return &Store{
		accounts: make(map[models.AccountID]models.Account),
		balances: balances,
		now:      time.Now,
	}
}

// GetOrCreate returns the account of ownerID for the given role, registering
// it on first reference. Regular users get a wallet, creators an earnings account.
func (s *Store) GetOrCreate(ownerID string, role models.Role) models.Account {
	id := models.WalletID(ownerID)
	if role == models.RoleCreator {
		id = models.EarningsID(ownerID)
	}

	s.mu.Lock()
	acc, ok := s.accounts[id]
	if !ok {
		acc = models.Account{ID: id, OwnerID: ownerID, Role: role, CreatedAt: s.now()}
		s.accounts[id] = acc
	}
	s.mu.Unlock()

	acc.Balance = s.balances.BalanceOf(id)
	return acc
}

// Get returns a registered account with its current balance.
func (s *Store) Get(id models.AccountID) (models.Account, bool) {
	s.mu.RLock()
	acc, ok := s.accounts[id]
	s.mu.RUnlock()
	if !ok {
		return models.Account{}, false
	}
	acc.Balance = s.balances.BalanceOf(id)
	return acc, true
}

// Resolve returns the account behind id, registering it if the id names a
// wallet or earnings account that has not been referenced yet.
func (s *Store) Resolve(id models.AccountID) (models.Account, error) {
	if acc, ok := s.Get(id); ok {
		return acc, nil
	}
	owner, role, ok := id.Owner()
	if !ok {
		return models.Account{}, apperrors.New(apperrors.KindNotFound, apperrors.Details{"account": id}, "unknown account")
	}
	return s.GetOrCreate(owner, role), nil
}

// EnsureSufficientFunds fails when the account cannot cover amount.
func (s *Store) EnsureSufficientFunds(id models.AccountID, amount models.Amount) error {
	balance := s.balances.BalanceOf(id)
	if balance < amount {
		return apperrors.New(apperrors.KindInsufficientBalance,
			apperrors.Details{"account": id, "balance": balance.String(), "required": amount.String()},
			"balance cannot cover %s", amount)
	}
	return nil
}

package services

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mangaverse/backend/internal/apperrors"
	"github.com/mangaverse/backend/internal/models"
)

var hundred = decimal.NewFromInt(100)

// DividendNotice describes a work whose payout cycle has elapsed with a
// positive dividend pool.
type DividendNotice struct {
	WorkID    string    `json:"workId"`
	CreatorID string    `json:"creatorId"`
	DueAt     time.Time `json:"dueAt"`
	// PotentialPool is the revenue share of the work's lifetime revenue. A
	// positive value is what blocks the creator's withdrawals.
	PotentialPool models.Amount `json:"potentialPool"`
	// AccruedPool is what PayDividends would distribute now: the revenue
	// share of revenue since the last payout.
	AccruedPool models.Amount `json:"accruedPool"`
}

// DueDividends lists the creator's works whose dividends must be paid
// before the creator can withdraw earnings.
func (c *Coordinator) DueDividends(ctx context.Context, creatorID string) ([]DividendNotice, error) {
	works, err := c.catalogue.WorksByCreator(ctx, creatorID)
	if err != nil {
		return nil, err
	}
	return c.pendingDividends(works, c.now()), nil
}

// AllDueDividends scans every creator with an offer.
func (c *Coordinator) AllDueDividends(ctx context.Context) ([]DividendNotice, error) {
	seen := make(map[string]struct{})
	var out []DividendNotice
	for _, offer := range c.offers.AllOffers() {
		if _, ok := seen[offer.CreatorID]; ok {
			continue
		}
		seen[offer.CreatorID] = struct{}{}

		due, err := c.DueDividends(ctx, offer.CreatorID)
		if err != nil {
			return nil, err
		}
		out = append(out, due...)
	}
	return out, nil
}

func (c *Coordinator) pendingDividends(works []models.Work, now time.Time) []DividendNotice {
	var out []DividendNotice
	for _, w := range works {
		offer, ok := c.offers.Offer(w.ID)
		if !ok || !offer.IsActive {
			continue
		}
		dueAt, ok := offer.NextDividendDue()
		if !ok || now.Before(dueAt) {
			continue
		}
		pool := dividendPool(w.RevenueTotal, offer.RevenueSharePercent)
		if pool <= 0 {
			continue
		}
		out = append(out, DividendNotice{
			WorkID:        w.ID,
			CreatorID:     offer.CreatorID,
			DueAt:         dueAt,
			PotentialPool: pool,
			AccruedPool:   accruedPool(w, offer),
		})
	}
	return out
}

func dividendPool(revenue models.Amount, percent decimal.Decimal) models.Amount {
	return models.AmountFromDecimal(revenue.Decimal().Mul(percent).Div(hundred))
}

// accruedPool is the revenue share of revenue recorded since the last payout.
func accruedPool(w models.Work, offer models.InvestmentOffer) models.Amount {
	accrued := w.RevenueTotal - offer.RevenueAtLastPayout
	if accrued <= 0 {
		return 0
	}
	return dividendPool(accrued, offer.RevenueSharePercent)
}

// PayDividends distributes the revenue share accrued since the last payout
// from the creator's earnings to current shareholders, pro rata by shares
// owned. Cents lost to rounding down stay with the creator. No platform fee
// applies.
func (c *Coordinator) PayDividends(ctx context.Context, creatorID, workID string) (res *Result, err error) {
	opID := c.newID()
	defer func() { c.observe(opID, OpPayDividends, creatorID, res, err) }()

	work, err := c.ownedWork(ctx, creatorID, workID)
	if err != nil {
		return nil, err
	}

	unlock := c.locks.Lock(workKey(workID), earningsKey(creatorID))
	defer unlock()

	offer, ok := c.offers.Offer(workID)
	if !ok {
		return nil, apperrors.New(apperrors.KindNotFound, apperrors.Details{"workId": workID}, "work has no investment offer")
	}

	pool := accruedPool(work, offer)

	payouts, paid := prorate(pool, c.offers.PositionsForWork(workID))

	earnings := c.accounts.GetOrCreate(creatorID, models.RoleCreator)
	var entries []models.LedgerEntry
	if paid > 0 {
		if err := c.accounts.EnsureSufficientFunds(earnings.ID, paid); err != nil {
			return nil, err
		}
		entries, err = c.commit(opID, dividendBatch(earnings.ID, work, payouts, paid))
		if err != nil {
			return nil, err
		}
	}

	offer, err = c.offers.RecordDividends(workID, payouts, work.RevenueTotal, c.now())
	if err != nil {
		c.fault(opID, OpPayDividends, err)
		return nil, err
	}

	c.logger.Info("dividends paid",
		zap.String("operation_id", opID),
		zap.String("work_id", workID),
		zap.Int64("pool", int64(pool)),
		zap.Int64("paid", int64(paid)),
		zap.Int("holders", len(payouts)))

	return &Result{OperationID: opID, Entries: entries, Offer: &offer}, nil
}

// prorate splits pool across holders by shares owned, rounding each share
// down. It returns the per-user amounts and their sum.
func prorate(pool models.Amount, holders []models.InvestmentPosition) (map[string]models.Amount, models.Amount) {
	payouts := make(map[string]models.Amount)
	var totalShares int64
	for _, p := range holders {
		totalShares += p.SharesOwned
	}
	if pool <= 0 || totalShares == 0 {
		return payouts, 0
	}

	var paid models.Amount
	for _, p := range holders {
		if p.SharesOwned == 0 {
			continue
		}
		share := models.Amount(pool.Decimal().
			Mul(decimal.NewFromInt(p.SharesOwned)).
			Div(decimal.NewFromInt(totalShares)).
			Floor().IntPart())
		if share > 0 {
			payouts[p.UserID] = share
			paid += share
		}
	}
	return payouts, paid
}

func dividendBatch(earnings models.AccountID, work models.Work, payouts map[string]models.Amount, paid models.Amount) []models.LedgerEntry {
	users := make([]string, 0, len(payouts))
	for u := range payouts {
		users = append(users, u)
	}
	sort.Strings(users)

	batch := []models.LedgerEntry{{
		Kind:        models.EntryDividendPayout,
		Amount:      -paid,
		AccountID:   earnings,
		WorkID:      work.ID,
		Description: "dividends for " + work.Title,
	}}
	for _, u := range users {
		batch = append(batch, models.LedgerEntry{
			Kind:                  models.EntryDividendReceived,
			Amount:                payouts[u],
			AccountID:             models.WalletID(u),
			WorkID:                work.ID,
			CounterpartyAccountID: earnings,
			Description:           "dividend from " + work.Title,
		})
	}
	return batch
}

// Withdraw moves funds out of a wallet or creator earnings account. Creator
// withdrawals require approval and are blocked while any owned work has
// dividends due.
func (c *Coordinator) Withdraw(ctx context.Context, accountID models.AccountID, amount models.Amount) (res *Result, err error) {
	opID := c.newID()
	defer func() { c.observe(opID, OpWithdraw, string(accountID), res, err) }()

	if err := requirePositive("amount", amount); err != nil {
		return nil, err
	}
	account, err := c.accounts.Resolve(accountID)
	if err != nil {
		return nil, err
	}

	key := userKey(account.OwnerID)
	var (
		ident models.Identity
		works []models.Work
	)
	if account.Role == models.RoleCreator {
		key = earningsKey(account.OwnerID)
		if ident, err = c.identity.Identity(ctx, account.OwnerID); err != nil {
			return nil, err
		}
		if works, err = c.catalogue.WorksByCreator(ctx, account.OwnerID); err != nil {
			return nil, err
		}
	}

	unlock := c.locks.Lock(key)
	defer unlock()

	if err := c.accounts.EnsureSufficientFunds(account.ID, amount); err != nil {
		return nil, err
	}
	if account.Role == models.RoleCreator {
		if !ident.IsApprovedCreator {
			return nil, apperrors.New(apperrors.KindCreatorNotApproved,
				apperrors.Details{"creatorId": account.OwnerID}, "creator is not approved for payouts")
		}
		if due := c.pendingDividends(works, c.now()); len(due) > 0 {
			ids := make([]string, len(due))
			for i, d := range due {
				ids[i] = d.WorkID
			}
			return nil, apperrors.New(apperrors.KindDividendsPending,
				apperrors.Details{"creatorId": account.OwnerID, "works": ids, "dueSince": due[0].DueAt},
				"investor dividends must be paid before withdrawing")
		}
	}

	entries, err := c.commit(opID, []models.LedgerEntry{{
		Kind:        models.EntryWithdrawal,
		Amount:      -amount,
		AccountID:   account.ID,
		Description: "withdrawal",
	}})
	if err != nil {
		return nil, err
	}
	return &Result{OperationID: opID, Entries: entries}, nil
}

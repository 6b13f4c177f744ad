package services

import (
	"context"
	"fmt"
	"time"

	"github.com/mangaverse/backend/internal/apperrors"
	"github.com/mangaverse/backend/internal/models"
)

// PurchaseAccess sells a monthly subscription or a chapter of a work. The
// quoted price must match the catalogue price; the creator is paid the
// price less the platform fee.
func (c *Coordinator) PurchaseAccess(ctx context.Context, buyerID, workID string, kind models.EntitlementKind, chapterID string, priceQuoted models.Amount) (res *Result, err error) {
	opID := c.newID()
	defer func() { c.observe(opID, OpPurchaseAccess, buyerID, res, err) }()

	if _, err := c.regularUser(ctx, buyerID); err != nil {
		return nil, err
	}
	work, err := c.catalogue.Work(ctx, workID)
	if err != nil {
		return nil, err
	}

	price, ok := work.PriceFor(kind)
	switch {
	case !ok:
		return nil, apperrors.New(apperrors.KindInvalidRequest, apperrors.Details{"kind": kind}, "unknown entitlement kind")
	case kind == models.EntitlementChapter && chapterID == "":
		return nil, apperrors.New(apperrors.KindInvalidRequest, nil, "chapter purchase requires a chapter id")
	case price <= 0:
		return nil, apperrors.New(apperrors.KindInvalidAmount, apperrors.Details{"workId": workID, "kind": kind}, "work is not sold as %s access", kind)
	case priceQuoted != price:
		return nil, apperrors.New(apperrors.KindPriceMismatch,
			apperrors.Details{"quoted": priceQuoted.String(), "price": price.String()},
			"quoted price does not match the catalogue price")
	}

	res, err = c.purchaseAccess(opID, buyerID, work, kind, chapterID, price)
	if err != nil {
		return nil, err
	}
	c.recordRevenue(ctx, opID, workID, price)
	return res, nil
}

func (c *Coordinator) purchaseAccess(opID, buyerID string, work models.Work, kind models.EntitlementKind, chapterID string, price models.Amount) (*Result, error) {
	unlock := c.locks.Lock(userKey(buyerID))
	defer unlock()

	buyer := c.accounts.GetOrCreate(buyerID, models.RoleRegular)
	if err := c.accounts.EnsureSufficientFunds(buyer.ID, price); err != nil {
		return nil, err
	}

	creator := c.accounts.GetOrCreate(work.CreatorID, models.RoleCreator)
	split := SplitFee(price, c.cfg.FeeRate)
	batch := splitBatch(models.EntryAccessPurchase, models.EntryCreatorPayout, buyer.ID, creator.ID, work.ID,
		fmt.Sprintf("%s access to %s", kind, work.Title), split)
	batch[0].Metadata = models.Metadata{"entitlement": string(kind)}
	if chapterID != "" {
		batch[0].Metadata["chapter_id"] = chapterID
	}

	entries, err := c.commit(opID, batch)
	if err != nil {
		return nil, err
	}

	var expiresAt *time.Time
	if kind == models.EntitlementMonthly {
		exp := c.now().Add(c.cfg.SubscriptionPeriod)
		expiresAt = &exp
	}
	grant := c.entitlements.GrantSubscription(buyerID, work.ID, kind, price, expiresAt, chapterID)
	unlocked := c.entitlements.RecordSubscription(buyerID)

	return &Result{
		OperationID:           opID,
		Entries:               entries,
		OpportunitiesUnlocked: unlocked,
		Entitlement:           &grant,
	}, nil
}

// Donate sends money to a work's creator with the same fee split as a
// purchase. It counts toward investment opportunities but grants no access.
func (c *Coordinator) Donate(ctx context.Context, buyerID, workID string, amount models.Amount) (res *Result, err error) {
	opID := c.newID()
	defer func() { c.observe(opID, OpDonate, buyerID, res, err) }()

	if _, err := c.regularUser(ctx, buyerID); err != nil {
		return nil, err
	}
	if err := requirePositive("amount", amount); err != nil {
		return nil, err
	}
	work, err := c.catalogue.Work(ctx, workID)
	if err != nil {
		return nil, err
	}

	res, err = c.donate(opID, buyerID, work, amount)
	if err != nil {
		return nil, err
	}
	c.recordRevenue(ctx, opID, workID, amount)
	return res, nil
}

func (c *Coordinator) donate(opID, buyerID string, work models.Work, amount models.Amount) (*Result, error) {
	unlock := c.locks.Lock(userKey(buyerID))
	defer unlock()

	buyer := c.accounts.GetOrCreate(buyerID, models.RoleRegular)
	if err := c.accounts.EnsureSufficientFunds(buyer.ID, amount); err != nil {
		return nil, err
	}

	creator := c.accounts.GetOrCreate(work.CreatorID, models.RoleCreator)
	split := SplitFee(amount, c.cfg.FeeRate)
	entries, err := c.commit(opID, splitBatch(models.EntryDonation, models.EntryCreatorPayout, buyer.ID, creator.ID, work.ID,
		"donation to "+work.Title, split))
	if err != nil {
		return nil, err
	}

	return &Result{
		OperationID:           opID,
		Entries:               entries,
		OpportunitiesUnlocked: c.entitlements.RecordDonation(buyerID),
	}, nil
}

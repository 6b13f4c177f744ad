package services

import (
	"context"
	"fmt"

	"github.com/mangaverse/backend/internal/apperrors"
	"github.com/mangaverse/backend/internal/models"
	"github.com/mangaverse/backend/internal/offers"
)

// PublishOffer opens the primary share offer of a work owned by creatorID.
func (c *Coordinator) PublishOffer(ctx context.Context, creatorID, workID string, params models.OfferParams) (res *Result, err error) {
	opID := c.newID()
	defer func() { c.observe(opID, OpPublishOffer, creatorID, res, err) }()

	if _, err := c.ownedWork(ctx, creatorID, workID); err != nil {
		return nil, err
	}
	if err := offers.ValidateParams(params, c.cfg.MaxSharesPerOffer); err != nil {
		return nil, err
	}

	unlock := c.locks.Lock(creatorKey(creatorID), workKey(workID))
	defer unlock()

	if limit := c.cfg.MaxWorksPerCreator; limit > 0 {
		if n := len(c.offers.OffersByCreator(creatorID)); n >= limit {
			return nil, apperrors.New(apperrors.KindInvalidOffer,
				apperrors.Details{"creatorId": creatorID, "offers": n, "maxWorksPerCreator": limit},
				"creator has reached the offer limit")
		}
	}

	offer, err := c.offers.CreateOffer(workID, creatorID, params, c.now())
	if err != nil {
		return nil, err
	}
	return &Result{OperationID: opID, Offer: &offer}, nil
}

// SetOfferActive opens or closes a work's offer to new primary purchases.
func (c *Coordinator) SetOfferActive(ctx context.Context, creatorID, workID string, active bool) (res *Result, err error) {
	opID := c.newID()
	defer func() { c.observe(opID, OpSetOfferActive, creatorID, res, err) }()

	if _, err := c.ownedWork(ctx, creatorID, workID); err != nil {
		return nil, err
	}

	unlock := c.locks.Lock(workKey(workID))
	defer unlock()

	offer, err := c.offers.SetActive(workID, active)
	if err != nil {
		return nil, err
	}
	return &Result{OperationID: opID, Offer: &offer}, nil
}

// InvestPrimary buys newly issued shares of a work. The total is always
// recomputed as shares times the offer price; one opportunity is consumed.
func (c *Coordinator) InvestPrimary(ctx context.Context, buyerID, workID string, shares int64, pricePerShare models.Amount) (res *Result, err error) {
	opID := c.newID()
	defer func() { c.observe(opID, OpInvestPrimary, buyerID, res, err) }()

	if _, err := c.regularUser(ctx, buyerID); err != nil {
		return nil, err
	}
	if shares <= 0 {
		return nil, apperrors.New(apperrors.KindInvalidAmount, apperrors.Details{"shares": shares}, "must buy at least one share")
	}
	work, err := c.catalogue.Work(ctx, workID)
	if err != nil {
		return nil, err
	}

	unlock := c.locks.Lock(userKey(buyerID), workKey(workID))
	defer unlock()

	if err := c.requireOpportunity(buyerID); err != nil {
		return nil, err
	}

	offer, ok := c.offers.Offer(workID)
	if !ok {
		return nil, apperrors.New(apperrors.KindNotFound, apperrors.Details{"workId": workID}, "work has no investment offer")
	}
	if !offer.IsActive {
		return nil, apperrors.New(apperrors.KindInvalidOffer, apperrors.Details{"workId": workID, "isActive": false}, "offer is not accepting investments")
	}
	if offer.TotalSharesOffered > c.cfg.MaxSharesPerOffer {
		return nil, apperrors.New(apperrors.KindInvalidOffer,
			apperrors.Details{"totalSharesOffered": offer.TotalSharesOffered, "maxSharesPerOffer": c.cfg.MaxSharesPerOffer},
			"offer exceeds platform share cap")
	}
	if pricePerShare != offer.PricePerShare {
		return nil, apperrors.New(apperrors.KindPriceMismatch,
			apperrors.Details{"quoted": pricePerShare.String(), "price": offer.PricePerShare.String()},
			"quoted share price does not match the offer")
	}
	if req := offer.MinSubscriptionRequirement; req > 0 {
		if have := c.entitlements.ActiveMonthlyCount(buyerID, workID); have < req {
			return nil, apperrors.New(apperrors.KindSubscriptionRequirementNotMet,
				apperrors.Details{"workId": workID, "activeSubscriptions": have, "required": req},
				"not enough active subscriptions to this work")
		}
	}

	existing, _ := c.offers.Position(buyerID, workID)
	if limit := offer.MaxSharesPerInvestor; limit > 0 && existing.SharesOwned+shares > limit {
		return nil, apperrors.New(apperrors.KindShareCapExceeded,
			apperrors.Details{"scope": "investor", "owned": existing.SharesOwned, "requested": shares, "maxSharesPerInvestor": limit},
			"purchase exceeds per-investor share cap")
	}
	if sold := c.offers.SharesSoldPrimary(workID); sold+shares > offer.TotalSharesOffered {
		return nil, apperrors.New(apperrors.KindShareCapExceeded,
			apperrors.Details{"scope": "offer", "sold": sold, "requested": shares, "totalSharesOffered": offer.TotalSharesOffered},
			"offer has insufficient shares remaining")
	}

	total, err := offers.ShareCost(shares, offer.PricePerShare)
	if err != nil {
		return nil, err
	}
	buyer := c.accounts.GetOrCreate(buyerID, models.RoleRegular)
	if err := c.accounts.EnsureSufficientFunds(buyer.ID, total); err != nil {
		return nil, err
	}

	creator := c.accounts.GetOrCreate(offer.CreatorID, models.RoleCreator)
	batch := splitBatch(models.EntryInvestment, models.EntryCreatorPayout, buyer.ID, creator.ID, workID,
		fmt.Sprintf("%d shares of %s", shares, work.Title), SplitFee(total, c.cfg.FeeRate))
	batch[0].Metadata = models.Metadata{"shares": fmt.Sprint(shares), "price_per_share": fmt.Sprint(int64(offer.PricePerShare))}

	entries, err := c.commitPurchase(opID, buyerID, batch)
	if err != nil {
		return nil, err
	}

	pos, err := c.offers.RecordPrimaryPurchase(buyerID, workID, shares, total, c.now())
	if err != nil {
		c.fault(opID, OpInvestPrimary, err)
		return nil, err
	}

	return &Result{OperationID: opID, Entries: entries, Position: &pos}, nil
}

func (c *Coordinator) requireOpportunity(userID string) error {
	if c.entitlements.OpportunitiesAvailable(userID) > 0 {
		return nil
	}
	stats := c.entitlements.Stats(userID)
	return apperrors.New(apperrors.KindNoOpportunityAvailable,
		apperrors.Details{"combinedActionCount": stats.Combined, "consumed": stats.Consumed, "available": stats.Available},
		"no investment opportunity available")
}

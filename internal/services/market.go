package services

import (
	"context"
	"fmt"

	"github.com/mangaverse/backend/internal/apperrors"
	"github.com/mangaverse/backend/internal/models"
	"github.com/mangaverse/backend/internal/offers"
)

// ListShares puts part of the seller's position up for resale. A position
// carries at most one active listing.
func (c *Coordinator) ListShares(ctx context.Context, sellerID, workID string, shares int64, pricePerShare models.Amount, description string) (res *Result, err error) {
	opID := c.newID()
	defer func() { c.observe(opID, OpListShares, sellerID, res, err) }()

	if _, err := c.regularUser(ctx, sellerID); err != nil {
		return nil, err
	}

	unlock := c.locks.Lock(userKey(sellerID))
	defer unlock()

	listing, err := c.offers.CreateListing(sellerID, workID, shares, pricePerShare, description, c.now())
	if err != nil {
		return nil, err
	}
	pos, _ := c.offers.Position(sellerID, workID)
	return &Result{OperationID: opID, Listing: &listing, Position: &pos}, nil
}

// DelistShares withdraws the seller's active listing.
func (c *Coordinator) DelistShares(ctx context.Context, sellerID, listingID string) (res *Result, err error) {
	opID := c.newID()
	defer func() { c.observe(opID, OpDelistShares, sellerID, res, err) }()

	unlock := c.locks.Lock(userKey(sellerID), listingKey(listingID))
	defer unlock()

	listing, ok := c.offers.Listing(listingID)
	switch {
	case !ok:
		return nil, apperrors.New(apperrors.KindNotFound, apperrors.Details{"listingId": listingID}, "listing does not exist")
	case listing.SellerID != sellerID:
		return nil, apperrors.New(apperrors.KindListingUnavailable,
			apperrors.Details{"listingId": listingID, "sellerId": listing.SellerID},
			"listing belongs to another seller")
	case !listing.IsActive:
		return nil, apperrors.New(apperrors.KindListingUnavailable, apperrors.Details{"listingId": listingID, "isActive": false}, "listing is no longer active")
	}

	listing, err = c.offers.CloseListing(listingID)
	if err != nil {
		return nil, err
	}
	pos, _ := c.offers.Position(sellerID, listing.WorkID)
	return &Result{OperationID: opID, Listing: &listing, Position: &pos}, nil
}

// BuySecondary buys shares from a listing. The platform fee comes out of the
// transfer price and the rest goes to the seller's wallet.
func (c *Coordinator) BuySecondary(ctx context.Context, buyerID, listingID string, shares int64) (res *Result, err error) {
	opID := c.newID()
	defer func() { c.observe(opID, OpBuySecondary, buyerID, res, err) }()

	if _, err := c.regularUser(ctx, buyerID); err != nil {
		return nil, err
	}
	if shares <= 0 {
		return nil, apperrors.New(apperrors.KindInvalidAmount, apperrors.Details{"shares": shares}, "must buy at least one share")
	}

	// Seller and work never change for a listing, so they can pick the locks.
	snapshot, ok := c.offers.Listing(listingID)
	if !ok {
		return nil, listingUnavailable(listingID, "listing does not exist")
	}
	if snapshot.SellerID == buyerID {
		return nil, apperrors.New(apperrors.KindListingUnavailable,
			apperrors.Details{"listingId": listingID, "sellerId": snapshot.SellerID},
			"cannot buy from your own listing")
	}

	unlock := c.locks.Lock(userKey(buyerID), userKey(snapshot.SellerID), listingKey(listingID), workKey(snapshot.WorkID))
	defer unlock()

	if err := c.requireOpportunity(buyerID); err != nil {
		return nil, err
	}

	listing, _ := c.offers.Listing(listingID)
	if !listing.IsActive {
		return nil, listingUnavailable(listingID, "listing is no longer active")
	}
	if shares > listing.SharesOffered {
		return nil, apperrors.New(apperrors.KindListingUnavailable,
			apperrors.Details{"listingId": listingID, "requested": shares, "sharesOffered": listing.SharesOffered},
			"listing has fewer shares than requested")
	}

	cost, err := offers.ShareCost(shares, listing.PricePerShare)
	if err != nil {
		return nil, err
	}
	buyer := c.accounts.GetOrCreate(buyerID, models.RoleRegular)
	if err := c.accounts.EnsureSufficientFunds(buyer.ID, cost); err != nil {
		return nil, err
	}

	seller := c.accounts.GetOrCreate(listing.SellerID, models.RoleRegular)
	batch := splitBatch(models.EntrySharePurchase, models.EntrySellerProceeds, buyer.ID, seller.ID, listing.WorkID,
		fmt.Sprintf("%d shares from listing %s", shares, listingID), SplitFee(cost, c.cfg.FeeRate))
	batch[0].Metadata = models.Metadata{"listing_id": listingID, "shares": fmt.Sprint(shares)}

	entries, err := c.commitPurchase(opID, buyerID, batch)
	if err != nil {
		return nil, err
	}

	pos, listing, err := c.offers.TransferShares(listingID, buyerID, shares, cost, c.now())
	if err != nil {
		c.fault(opID, OpBuySecondary, err)
		return nil, err
	}

	return &Result{OperationID: opID, Entries: entries, Position: &pos, Listing: &listing}, nil
}

// FollowListing registers a user's interest in an active listing.
func (c *Coordinator) FollowListing(ctx context.Context, userID, listingID string) (res *Result, err error) {
	opID := c.newID()
	defer func() { c.observe(opID, OpFollowListing, userID, res, err) }()

	if _, err := c.identity.Identity(ctx, userID); err != nil {
		return nil, err
	}

	listing, err := c.offers.FollowListing(listingID, userID)
	if err != nil {
		return nil, err
	}
	return &Result{OperationID: opID, Listing: &listing}, nil
}

func listingUnavailable(listingID, msg string) error {
	return apperrors.New(apperrors.KindListingUnavailable, apperrors.Details{"listingId": listingID}, "%s", msg)
}

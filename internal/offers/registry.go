// Package offers holds each work's primary investment offer, the investment
// positions it produced and the secondary-market listings on those positions.
package offers

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mangaverse/backend/internal/apperrors"
	"github.com/mangaverse/backend/internal/models"
)

var oneHundred = decimal.NewFromInt(100)

// Registry is the owned store of offers, positions and listings. Callers get
// copies; all mutation goes through its methods.
type Registry struct {
	mu                sync.RWMutex
	maxSharesPerOffer int64
	offers            map[string]*models.InvestmentOffer
	primarySold       map[string]int64
	positions         map[string]map[string]*models.InvestmentPosition // work -> user
	listings          map[string]*models.ShareListing
	followers         map[string]map[string]struct{}
	newID             func() string
}

func NewRegistry(maxSharesPerOffer int64) *Registry {
	return &Registry{
		maxSharesPerOffer: maxSharesPerOffer,
		offers:            make(map[string]*models.InvestmentOffer),
		primarySold:       make(map[string]int64),
		positions:         make(map[string]map[string]*models.InvestmentPosition),
		listings:          make(map[string]*models.ShareListing),
		followers:         make(map[string]map[string]struct{}),
		newID:             uuid.NewString,
	}
}

// MaxSharesPerOffer is the platform-wide cap on a single offer.
func (r *Registry) MaxSharesPerOffer() int64 { return r.maxSharesPerOffer }

// ShareCost is shares times pricePerShare. Products that do not fit in an
// Amount are refused.
func ShareCost(shares int64, pricePerShare models.Amount) (models.Amount, error) {
	details := apperrors.Details{"shares": shares, "pricePerShare": int64(pricePerShare)}
	switch {
	case shares <= 0:
		return 0, apperrors.New(apperrors.KindInvalidAmount, details, "share count must be positive")
	case pricePerShare <= 0:
		return 0, apperrors.New(apperrors.KindInvalidAmount, details, "share price must be positive")
	case int64(pricePerShare) > math.MaxInt64/shares:
		return 0, apperrors.New(apperrors.KindInvalidAmount, details, "share cost out of range")
	}
	return models.Amount(shares) * pricePerShare, nil
}

// ValidateParams checks offer terms against the platform cap.
func ValidateParams(p models.OfferParams, maxSharesPerOffer int64) error {
	switch {
	case p.TotalSharesOffered <= 0:
		return apperrors.New(apperrors.KindInvalidOffer, apperrors.Details{"totalSharesOffered": p.TotalSharesOffered}, "offer must issue at least one share")
	case p.TotalSharesOffered > maxSharesPerOffer:
		return apperrors.New(apperrors.KindInvalidOffer,
			apperrors.Details{"totalSharesOffered": p.TotalSharesOffered, "maxSharesPerOffer": maxSharesPerOffer},
			"offer exceeds platform share cap")
	case !p.RevenueSharePercent.IsPositive() || p.RevenueSharePercent.GreaterThan(oneHundred):
		return apperrors.New(apperrors.KindInvalidOffer,
			apperrors.Details{"revenueSharePercent": p.RevenueSharePercent.String()},
			"revenue share must be in (0, 100]")
	case p.PricePerShare <= 0:
		return apperrors.New(apperrors.KindInvalidOffer, apperrors.Details{"pricePerShare": int64(p.PricePerShare)}, "share price must be positive")
	case p.MaxSharesPerInvestor < 0, p.MinSubscriptionRequirement < 0, p.DividendPayoutCycleMonths < 0:
		return apperrors.New(apperrors.KindInvalidOffer, nil, "limits must not be negative")
	}
	if _, err := ShareCost(p.TotalSharesOffered, p.PricePerShare); err != nil {
		return apperrors.New(apperrors.KindInvalidOffer,
			apperrors.Details{"totalSharesOffered": p.TotalSharesOffered, "pricePerShare": int64(p.PricePerShare)},
			"offer value out of range")
	}
	return nil
}

// CreateOffer registers the primary offer of a work. Offers start active.
func (r *Registry) CreateOffer(workID, creatorID string, p models.OfferParams, now time.Time) (models.InvestmentOffer, error) {
	if err := ValidateParams(p, r.maxSharesPerOffer); err != nil {
		return models.InvestmentOffer{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.offers[workID]; exists {
		return models.InvestmentOffer{}, apperrors.New(apperrors.KindInvalidOffer, apperrors.Details{"workId": workID}, "work already has an offer")
	}

	offer := &models.InvestmentOffer{
		WorkID:                     workID,
		CreatorID:                  creatorID,
		TotalSharesOffered:         p.TotalSharesOffered,
		PricePerShare:              p.PricePerShare,
		RevenueSharePercent:        p.RevenueSharePercent,
		MinSubscriptionRequirement: p.MinSubscriptionRequirement,
		MaxSharesPerInvestor:       p.MaxSharesPerInvestor,
		IsActive:                   true,
		DividendPayoutCycleMonths:  p.DividendPayoutCycleMonths,
		CreatedAt:                  now,
	}
	r.offers[workID] = offer
	return *offer, nil
}

// SetActive toggles whether new primary purchases are accepted. Shares
// already sold stay owned.
func (r *Registry) SetActive(workID string, active bool) (models.InvestmentOffer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	offer, ok := r.offers[workID]
	if !ok {
		return models.InvestmentOffer{}, offerNotFound(workID)
	}
	offer.IsActive = active
	return *offer, nil
}

func (r *Registry) Offer(workID string) (models.InvestmentOffer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	offer, ok := r.offers[workID]
	if !ok {
		return models.InvestmentOffer{}, false
	}
	return *offer, true
}

// OffersByCreator returns the creator's offers ordered by work id.
func (r *Registry) OffersByCreator(creatorID string) []models.InvestmentOffer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []models.InvestmentOffer
	for _, o := range r.offers {
		if o.CreatorID == creatorID {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WorkID < out[j].WorkID })
	return out
}

// AllOffers returns every offer ordered by work id.
func (r *Registry) AllOffers() []models.InvestmentOffer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.InvestmentOffer, 0, len(r.offers))
	for _, o := range r.offers {
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WorkID < out[j].WorkID })
	return out
}

// SharesSoldPrimary counts shares issued through primary purchases only;
// secondary trades move ownership without touching it.
func (r *Registry) SharesSoldPrimary(workID string) int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.primarySold[workID]
}

func (r *Registry) Position(userID, workID string) (models.InvestmentPosition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	pos, ok := r.positions[workID][userID]
	if !ok {
		return models.InvestmentPosition{}, false
	}
	return *pos, true
}

// PositionsForWork returns all positions in a work ordered by user id.
func (r *Registry) PositionsForWork(workID string) []models.InvestmentPosition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.InvestmentPosition, 0, len(r.positions[workID]))
	for _, p := range r.positions[workID] {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// Investors lists users currently holding shares of the work.
func (r *Registry) Investors(workID string) []string {
	var out []string
	for _, p := range r.PositionsForWork(workID) {
		if p.SharesOwned > 0 {
			out = append(out, p.UserID)
		}
	}
	return out
}

// RecordPrimaryPurchase issues shares from the offer to the user.
func (r *Registry) RecordPrimaryPurchase(userID, workID string, shares int64, cost models.Amount, now time.Time) (models.InvestmentPosition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	offer, ok := r.offers[workID]
	if !ok {
		return models.InvestmentPosition{}, offerNotFound(workID)
	}
	if sold := r.primarySold[workID]; sold+shares > offer.TotalSharesOffered {
		return models.InvestmentPosition{}, apperrors.New(apperrors.KindShareCapExceeded,
			apperrors.Details{"sold": sold, "requested": shares, "totalSharesOffered": offer.TotalSharesOffered},
			"offer has insufficient shares remaining")
	}

	pos := r.positionLocked(userID, workID, now)
	pos.SharesOwned += shares
	pos.AmountInvested += cost
	r.primarySold[workID] += shares
	offer.TotalCapitalRaised += cost
	return *pos, nil
}

// CheckListing validates a prospective listing without creating it.
func (r *Registry) CheckListing(sellerID, workID string, shares int64) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.checkListingLocked(sellerID, workID, shares)
}

func (r *Registry) checkListingLocked(sellerID, workID string, shares int64) error {
	if shares <= 0 {
		return apperrors.New(apperrors.KindInvalidAmount, apperrors.Details{"shares": shares}, "must list at least one share")
	}

	var owned, listed int64
	pos, ok := r.positions[workID][sellerID]
	if ok {
		if pos.ListingID != "" {
			return apperrors.New(apperrors.KindAlreadyListed,
				apperrors.Details{"listingId": pos.ListingID, "sharesListed": pos.SharesListed},
				"position already has an active listing")
		}
		owned, listed = pos.SharesOwned, pos.SharesListed
	}
	if shares > owned-listed {
		return apperrors.New(apperrors.KindInsufficientUnlistedShares,
			apperrors.Details{"requested": shares, "sharesOwned": owned, "sharesListed": listed},
			"not enough unlisted shares")
	}
	return nil
}

// CreateListing offers shares of the seller's position on the secondary market.
func (r *Registry) CreateListing(sellerID, workID string, shares int64, price models.Amount, description string, now time.Time) (models.ShareListing, error) {
	if price <= 0 {
		return models.ShareListing{}, apperrors.New(apperrors.KindInvalidAmount, apperrors.Details{"pricePerShare": int64(price)}, "listing price must be positive")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkListingLocked(sellerID, workID, shares); err != nil {
		return models.ShareListing{}, err
	}
	if _, err := ShareCost(shares, price); err != nil {
		return models.ShareListing{}, err
	}

	listing := &models.ShareListing{
		ID:              r.newID(),
		WorkID:          workID,
		SellerID:        sellerID,
		SellerAccountID: models.WalletID(sellerID),
		SharesOffered:   shares,
		PricePerShare:   price,
		Description:     description,
		ListedAt:        now,
		IsActive:        true,
	}
	r.listings[listing.ID] = listing

	pos := r.positions[workID][sellerID]
	pos.ListingID = listing.ID
	pos.SharesListed = shares
	pos.ListedPricePerShare = price

	return *listing, nil
}

func (r *Registry) Listing(id string) (models.ShareListing, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	l, ok := r.listings[id]
	if !ok {
		return models.ShareListing{}, false
	}
	return *l, true
}

// ActiveListings returns active listings, optionally filtered by work,
// oldest first.
func (r *Registry) ActiveListings(workID string) []models.ShareListing {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []models.ShareListing
	for _, l := range r.listings {
		if l.IsActive && (workID == "" || l.WorkID == workID) {
			out = append(out, *l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ListedAt.Equal(out[j].ListedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].ListedAt.Before(out[j].ListedAt)
	})
	return out
}

// CloseListing deactivates a listing and clears the seller's listing reference.
func (r *Registry) CloseListing(id string) (models.ShareListing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.listings[id]
	if !ok {
		return models.ShareListing{}, listingNotFound(id)
	}
	r.closeLocked(l)
	return *l, nil
}

// ReduceListing removes sold shares from a listing and the seller's listed
// count, closing the listing when nothing remains.
func (r *Registry) ReduceListing(id string, sharesSold int64) (models.ShareListing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.listings[id]
	if !ok {
		return models.ShareListing{}, listingNotFound(id)
	}
	if err := r.reduceLocked(l, sharesSold); err != nil {
		return models.ShareListing{}, err
	}
	return *l, nil
}

func (r *Registry) reduceLocked(l *models.ShareListing, sharesSold int64) error {
	if !l.IsActive || sharesSold <= 0 || sharesSold > l.SharesOffered {
		return apperrors.New(apperrors.KindListingUnavailable,
			apperrors.Details{"listingId": l.ID, "requested": sharesSold, "sharesOffered": l.SharesOffered, "isActive": l.IsActive},
			"listing cannot fill request")
	}

	l.SharesOffered -= sharesSold
	if pos, ok := r.positions[l.WorkID][l.SellerID]; ok {
		pos.SharesListed -= sharesSold
	}
	if l.SharesOffered == 0 {
		r.closeLocked(l)
	}
	return nil
}

func (r *Registry) closeLocked(l *models.ShareListing) {
	l.IsActive = false
	if pos, ok := r.positions[l.WorkID][l.SellerID]; ok && pos.ListingID == l.ID {
		pos.ListingID = ""
		pos.SharesListed = 0
		pos.ListedPricePerShare = 0
	}
}

// TransferShares fills part or all of a listing: ownership moves from the
// seller's position to the buyer's (created if absent), cost basis moves
// proportionally on the seller side, and the listing is reduced.
func (r *Registry) TransferShares(listingID, buyerID string, shares int64, cost models.Amount, now time.Time) (models.InvestmentPosition, models.ShareListing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.listings[listingID]
	if !ok {
		return models.InvestmentPosition{}, models.ShareListing{}, listingNotFound(listingID)
	}
	seller, ok := r.positions[l.WorkID][l.SellerID]
	if !ok || seller.SharesOwned < shares {
		return models.InvestmentPosition{}, models.ShareListing{}, apperrors.New(apperrors.KindListingUnavailable,
			apperrors.Details{"listingId": listingID}, "seller no longer holds the listed shares")
	}
	if err := r.reduceLocked(l, shares); err != nil {
		return models.InvestmentPosition{}, models.ShareListing{}, err
	}

	basis := models.AmountFromDecimal(seller.AmountInvested.Decimal().
		Mul(decimal.NewFromInt(shares)).
		Div(decimal.NewFromInt(seller.SharesOwned)))
	seller.SharesOwned -= shares
	seller.AmountInvested -= basis

	buyer := r.positionLocked(buyerID, l.WorkID, now)
	buyer.SharesOwned += shares
	buyer.AmountInvested += cost

	return *buyer, *l, nil
}

// FollowListing registers interest in a listing; repeated follows by the
// same user count once.
func (r *Registry) FollowListing(id, userID string) (models.ShareListing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.listings[id]
	if !ok || !l.IsActive {
		return models.ShareListing{}, apperrors.New(apperrors.KindListingUnavailable, apperrors.Details{"listingId": id}, "listing is not active")
	}
	if r.followers[id] == nil {
		r.followers[id] = make(map[string]struct{})
	}
	if _, seen := r.followers[id][userID]; !seen {
		r.followers[id][userID] = struct{}{}
		l.FollowerCount++
	}
	return *l, nil
}

// RecordDividends credits per-investor dividend totals and marks the offer
// as paid through now at the given revenue level.
func (r *Registry) RecordDividends(workID string, payouts map[string]models.Amount, revenueTotal models.Amount, now time.Time) (models.InvestmentOffer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	offer, ok := r.offers[workID]
	if !ok {
		return models.InvestmentOffer{}, offerNotFound(workID)
	}
	for userID, amount := range payouts {
		if pos, ok := r.positions[workID][userID]; ok {
			pos.DividendsReceivedTotal += amount
		}
	}
	paidAt := now
	offer.LastDividendPayoutAt = &paidAt
	offer.RevenueAtLastPayout = revenueTotal
	return *offer, nil
}

func (r *Registry) positionLocked(userID, workID string, now time.Time) *models.InvestmentPosition {
	if r.positions[workID] == nil {
		r.positions[workID] = make(map[string]*models.InvestmentPosition)
	}
	pos, ok := r.positions[workID][userID]
	if !ok {
		pos = &models.InvestmentPosition{UserID: userID, WorkID: workID, CreatedAt: now}
		r.positions[workID][userID] = pos
	}
	return pos
}

func offerNotFound(workID string) error {
	return apperrors.New(apperrors.KindNotFound, apperrors.Details{"workId": workID}, "work has no investment offer")
}

func listingNotFound(id string) error {
	return apperrors.New(apperrors.KindNotFound, apperrors.Details{"listingId": id}, "listing does not exist")
}

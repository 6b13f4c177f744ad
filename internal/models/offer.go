package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OfferParams are the creator-supplied terms of a primary investment offer.
type OfferParams struct {
	TotalSharesOffered         int64           `json:"totalSharesOffered" validate:"required,gt=0"`
	PricePerShare              Amount          `json:"pricePerShare" validate:"required,gt=0"`
	RevenueSharePercent        decimal.Decimal `json:"revenueSharePercent"`
	MinSubscriptionRequirement int             `json:"minSubscriptionRequirement" validate:"gte=0"`
	MaxSharesPerInvestor       int64           `json:"maxSharesPerInvestor" validate:"gte=0"`
	DividendPayoutCycleMonths  int             `json:"dividendPayoutCycleMonths" validate:"gte=0"`
}

// InvestmentOffer is the primary share issuance of a single work.
type InvestmentOffer struct {
	WorkID                     string          `json:"workId"`
	CreatorID                  string          `json:"creatorId"`
	TotalSharesOffered         int64           `json:"totalSharesOffered"`
	PricePerShare              Amount          `json:"pricePerShare"`
	RevenueSharePercent        decimal.Decimal `json:"revenueSharePercent"`
	MinSubscriptionRequirement int             `json:"minSubscriptionRequirement"`
	MaxSharesPerInvestor       int64           `json:"maxSharesPerInvestor"` // 0 means uncapped
	IsActive                   bool            `json:"isActive"`
	DividendPayoutCycleMonths  int             `json:"dividendPayoutCycleMonths"` // 0 means no cycle
	LastDividendPayoutAt       *time.Time      `json:"lastDividendPayoutAt,omitempty"`
	RevenueAtLastPayout        Amount          `json:"revenueAtLastPayout"`
	TotalCapitalRaised         Amount          `json:"totalCapitalRaised"`
	CreatedAt                  time.Time       `json:"createdAt"`
}

// NextDividendDue returns when the next payout cycle elapses, measured from
// the last payout or, before any payout, from the offer start.
func (o InvestmentOffer) NextDividendDue() (time.Time, bool) {
	if o.DividendPayoutCycleMonths <= 0 {
		return time.Time{}, false
	}
	from := o.CreatedAt
	if o.LastDividendPayoutAt != nil {
		from = *o.LastDividendPayoutAt
	}
	return from.AddDate(0, o.DividendPayoutCycleMonths, 0), true
}

// InvestmentPosition is a user's holding in one work.
type InvestmentPosition struct {
	UserID                 string    `json:"userId"`
	WorkID                 string    `json:"workId"`
	SharesOwned            int64     `json:"sharesOwned"`
	AmountInvested         Amount    `json:"amountInvested"`
	CreatedAt              time.Time `json:"createdAt"`
	DividendsReceivedTotal Amount    `json:"dividendsReceivedTotal"`
	ListingID              string    `json:"listingId,omitempty"`
	SharesListed           int64     `json:"sharesListed"`
	ListedPricePerShare    Amount    `json:"listedPricePerShare,omitempty"`
}

// UnlistedShares is the number of shares free to be listed.
func (p InvestmentPosition) UnlistedShares() int64 {
	return p.SharesOwned - p.SharesListed
}

// ShareListing is a secondary-market offer to sell shares of a work.
type ShareListing struct {
	ID              string    `json:"id"`
	WorkID          string    `json:"workId"`
	SellerID        string    `json:"sellerId"`
	SellerAccountID AccountID `json:"sellerAccountId"`
	SharesOffered   int64     `json:"sharesOffered"`
	PricePerShare   Amount    `json:"pricePerShare"`
	Description     string    `json:"description"`
	ListedAt        time.Time `json:"listedAt"`
	IsActive        bool      `json:"isActive"`
	FollowerCount   int       `json:"followerCount"`
}

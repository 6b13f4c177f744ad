package services

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mangaverse/backend/internal/accounts"
	"github.com/mangaverse/backend/internal/apperrors"
	"github.com/mangaverse/backend/internal/catalogue"
	"github.com/mangaverse/backend/internal/config"
	"github.com/mangaverse/backend/internal/entitlements"
	"github.com/mangaverse/backend/internal/ledger"
	"github.com/mangaverse/backend/internal/models"
	"github.com/mangaverse/backend/internal/offers"
)

var (
	ctx   = context.Background()
	start = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
)

type fixture struct {
	t   *testing.T
	c   *Coordinator
	l   *ledger.Ledger
	dir *catalogue.Directory
	now time.Time
}

type fixtureOption func(*config.EngineConfig, *Dependencies)

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	f := &fixture{t: t, now: start}
	clock := func() time.Time { return f.now }

	cfg := config.DefaultEngine()
	cfg.MaxSharesPerOffer = 1000

	f.dir = catalogue.NewDirectory()
	for _, u := range []string{"ana", "ben", "cai", "dee"} {
		f.dir.PutIdentity(models.Identity{UserID: u, Role: models.RoleRegular})
	}
	f.dir.PutIdentity(models.Identity{UserID: "mika", Role: models.RoleCreator, IsApprovedCreator: true})
	f.dir.PutIdentity(models.Identity{UserID: "rin", Role: models.RoleCreator})
	f.dir.PutWork(models.Work{ID: "w1", CreatorID: "mika", Title: "Paper Moon", MonthlyPrice: models.Dollars(30), ChapterPrice: models.Dollars(1)})
	f.dir.PutWork(models.Work{ID: "w2", CreatorID: "mika", Title: "Blue Hour", MonthlyPrice: models.Dollars(12)})
	f.dir.PutWork(models.Work{ID: "w3", CreatorID: "rin", Title: "Night Train", MonthlyPrice: models.Dollars(10)})

	f.l = ledger.New(ledger.WithClock(clock))
	deps := Dependencies{
		Ledger:       f.l,
		Accounts:     accounts.NewStore(f.l),
		Entitlements: entitlements.NewTracker(cfg.ActionsPerOpportunity, entitlements.WithClock(clock)),
		Catalogue:    f.dir,
		Identity:     f.dir,
		Logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&cfg, &deps)
	}
	deps.Offers = offers.NewRegistry(cfg.MaxSharesPerOffer)

	f.c = NewCoordinator(cfg, deps, WithClock(clock))
	return f
}

func (f *fixture) fund(user string, amount models.Amount) {
	f.t.Helper()
	_, err := f.c.Deposit(ctx, user, amount)
	require.NoError(f.t, err)
}

// earnOpportunities performs five $1 donations to w1 per opportunity.
func (f *fixture) earnOpportunities(user string, n int) {
	f.t.Helper()
	for i := 0; i < 5*n; i++ {
		_, err := f.c.Donate(ctx, user, "w1", models.Dollars(1))
		require.NoError(f.t, err)
	}
}

func (f *fixture) publish(workID string, p models.OfferParams) models.InvestmentOffer {
	f.t.Helper()
	res, err := f.c.PublishOffer(ctx, "mika", workID, p)
	require.NoError(f.t, err)
	return *res.Offer
}

func (f *fixture) balance(id models.AccountID) models.Amount {
	return f.l.BalanceOf(id)
}

func offerParams(total int64) models.OfferParams {
	return models.OfferParams{
		TotalSharesOffered:  total,
		PricePerShare:       models.Dollars(5),
		RevenueSharePercent: decimal.NewFromInt(20),
	}
}

func assertZeroSum(t *testing.T, res *Result) {
	t.Helper()
	require.NotNil(t, res)
	assert.Equal(t, models.Amount(0), ledger.Net(res.Entries))
}

func TestCoordinator_PurchaseAccess(t *testing.T) {
	t.Run("monthly subscription splits the price", func(t *testing.T) {
		f := newFixture(t)
		f.fund("ana", models.Dollars(100))

		res, err := f.c.PurchaseAccess(ctx, "ana", "w1", models.EntitlementMonthly, "", models.Dollars(30))
		require.NoError(t, err)
		assertZeroSum(t, res)

		assert.Equal(t, models.Dollars(70), f.balance(models.WalletID("ana")))
		assert.Equal(t, models.Dollars(27), f.balance(models.EarningsID("mika")))
		assert.Equal(t, models.Dollars(3), f.balance(models.PlatformAccountID))

		require.NotNil(t, res.Entitlement)
		require.NotNil(t, res.Entitlement.ExpiresAt)
		assert.Equal(t, start.Add(30*24*time.Hour), *res.Entitlement.ExpiresAt)
		assert.True(t, f.c.Entitlements().HasActiveMonthly("ana", "w1"))

		work, err := f.dir.Work(ctx, "w1")
		require.NoError(t, err)
		assert.Equal(t, models.Dollars(30), work.RevenueTotal)
	})

	t.Run("chapter purchase is permanent", func(t *testing.T) {
		f := newFixture(t)
		f.fund("ana", models.Dollars(5))

		res, err := f.c.PurchaseAccess(ctx, "ana", "w1", models.EntitlementChapter, "ch-12", models.Dollars(1))
		require.NoError(t, err)
		assertZeroSum(t, res)
		assert.Nil(t, res.Entitlement.ExpiresAt)
		assert.True(t, f.c.Entitlements().HasChapterAccess("ana", "w1", "ch-12"))
		assert.Equal(t, models.Amount(90), f.balance(models.EarningsID("mika")))
		assert.Equal(t, models.Amount(10), f.balance(models.PlatformAccountID))
	})

	t.Run("rejections leave no trace", func(t *testing.T) {
		f := newFixture(t)
		f.fund("ana", models.Dollars(20))
		before := f.l.Len()

		tests := []struct {
			name    string
			buyer   string
			work    string
			kind    models.EntitlementKind
			chapter string
			price   models.Amount
			want    error
		}{
			{name: "creator buyer", buyer: "mika", work: "w1", kind: models.EntitlementMonthly, price: models.Dollars(30), want: apperrors.ErrRoleNotPermitted},
			{name: "unknown work", buyer: "ana", work: "nope", kind: models.EntitlementMonthly, price: models.Dollars(30), want: apperrors.ErrNotFound},
			{name: "client supplied discount", buyer: "ana", work: "w1", kind: models.EntitlementMonthly, price: models.Dollars(3), want: apperrors.ErrPriceMismatch},
			{name: "chapter without id", buyer: "ana", work: "w1", kind: models.EntitlementChapter, price: models.Dollars(1), want: apperrors.ErrInvalidRequest},
			{name: "not sold per chapter", buyer: "ana", work: "w2", kind: models.EntitlementChapter, chapter: "c1", price: 0, want: apperrors.ErrInvalidAmount},
			{name: "insufficient balance", buyer: "ana", work: "w1", kind: models.EntitlementMonthly, price: models.Dollars(30), want: apperrors.ErrInsufficientBalance},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				res, err := f.c.PurchaseAccess(ctx, tt.buyer, tt.work, tt.kind, tt.chapter, tt.price)
				assert.ErrorIs(t, err, tt.want)
				assert.Nil(t, res)
			})
		}

		assert.Equal(t, before, f.l.Len())
		assert.Equal(t, models.Dollars(20), f.balance(models.WalletID("ana")))
		assert.Empty(t, f.c.Entitlements().Grants("ana"))
		assert.Zero(t, f.c.Opportunities("ana").Combined)
	})

	t.Run("insufficient balance reports amounts", func(t *testing.T) {
		f := newFixture(t)
		f.fund("ana", models.Dollars(10))

		_, err := f.c.PurchaseAccess(ctx, "ana", "w1", models.EntitlementMonthly, "", models.Dollars(30))
		require.ErrorIs(t, err, apperrors.ErrInsufficientBalance)
		details := apperrors.DetailsOf(err)
		assert.Equal(t, "$10.00", details["balance"])
		assert.Equal(t, "$30.00", details["required"])
	})

	t.Run("revenue callback failure does not undo the purchase", func(t *testing.T) {
		var cat *MockCatalogue
		f := newFixture(t, func(_ *config.EngineConfig, d *Dependencies) {
			cat = &MockCatalogue{Directory: d.Catalogue.(*catalogue.Directory)}
			d.Catalogue = cat
		})
		cat.On("RecordRevenue", ctx, "w1", models.Dollars(30)).Return(assert.AnError).Once()
		f.fund("ana", models.Dollars(30))

		res, err := f.c.PurchaseAccess(ctx, "ana", "w1", models.EntitlementMonthly, "", models.Dollars(30))
		require.NoError(t, err)
		assertZeroSum(t, res)
		assert.Zero(t, f.balance(models.WalletID("ana")))
		cat.AssertExpectations(t)
	})
}

func TestCoordinator_IdentityFailure(t *testing.T) {
	ident := &MockIdentity{}
	f := newFixture(t, func(_ *config.EngineConfig, d *Dependencies) {
		d.Identity = ident
	})
	ident.On("Identity", ctx, "ana").Return(nil, assert.AnError)

	f.fund("ana", models.Dollars(30))
	before := f.l.Len()

	_, err := f.c.PurchaseAccess(ctx, "ana", "w1", models.EntitlementMonthly, "", models.Dollars(30))
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, before, f.l.Len())
	ident.AssertExpectations(t)
}

func TestCoordinator_Donate(t *testing.T) {
	f := newFixture(t)
	f.fund("ana", models.Dollars(50))

	res, err := f.c.Donate(ctx, "ana", "w1", 1555)
	require.NoError(t, err)
	assertZeroSum(t, res)
	assert.Equal(t, models.Amount(156), f.balance(models.PlatformAccountID))
	assert.Equal(t, models.Amount(1399), f.balance(models.EarningsID("mika")))
	assert.Equal(t, 1, f.c.Opportunities("ana").Donations)
	assert.Empty(t, f.c.Entitlements().Grants("ana"))

	_, err = f.c.Donate(ctx, "ana", "w1", 0)
	assert.ErrorIs(t, err, apperrors.ErrInvalidAmount)
	_, err = f.c.Donate(ctx, "ana", "w1", models.Dollars(100))
	assert.ErrorIs(t, err, apperrors.ErrInsufficientBalance)
	_, err = f.c.Donate(ctx, "mika", "w1", models.Dollars(1))
	assert.ErrorIs(t, err, apperrors.ErrRoleNotPermitted)
}

func TestCoordinator_OpportunityUnlocksAtFifthAction(t *testing.T) {
	f := newFixture(t)
	f.fund("ana", models.Dollars(500))

	actions := []func() (*Result, error){
		func() (*Result, error) {
			return f.c.PurchaseAccess(ctx, "ana", "w1", models.EntitlementMonthly, "", models.Dollars(30))
		},
		func() (*Result, error) { return f.c.Donate(ctx, "ana", "w1", models.Dollars(2)) },
		func() (*Result, error) {
			return f.c.PurchaseAccess(ctx, "ana", "w1", models.EntitlementChapter, "ch-1", models.Dollars(1))
		},
		func() (*Result, error) { return f.c.Donate(ctx, "ana", "w2", models.Dollars(2)) },
		func() (*Result, error) {
			return f.c.PurchaseAccess(ctx, "ana", "w2", models.EntitlementMonthly, "", models.Dollars(12))
		},
	}

	for i, act := range actions {
		res, err := act()
		require.NoError(t, err)
		if i < 4 {
			assert.Zero(t, res.OpportunitiesUnlocked, "action %d", i+1)
			assert.Zero(t, f.c.Opportunities("ana").Available, "action %d", i+1)
			continue
		}
		assert.Equal(t, 1, res.OpportunitiesUnlocked)
	}

	stats := f.c.Opportunities("ana")
	assert.Equal(t, 1, stats.Available)
	assert.Equal(t, 3, stats.Subscriptions)
	assert.Equal(t, 2, stats.Donations)
}

func TestCoordinator_PublishOffer(t *testing.T) {
	t.Run("only the owning creator", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.c.PublishOffer(ctx, "rin", "w1", offerParams(100))
		assert.ErrorIs(t, err, apperrors.ErrRoleNotPermitted)
		_, err = f.c.PublishOffer(ctx, "ana", "w1", offerParams(100))
		assert.ErrorIs(t, err, apperrors.ErrRoleNotPermitted)
	})

	t.Run("respects platform caps", func(t *testing.T) {
		f := newFixture(t, func(cfg *config.EngineConfig, _ *Dependencies) {
			cfg.MaxWorksPerCreator = 1
		})
		_, err := f.c.PublishOffer(ctx, "mika", "w1", offerParams(1001))
		assert.ErrorIs(t, err, apperrors.ErrInvalidOffer)

		f.publish("w1", offerParams(100))
		_, err = f.c.PublishOffer(ctx, "mika", "w2", offerParams(100))
		require.ErrorIs(t, err, apperrors.ErrInvalidOffer)
		assert.Equal(t, 1, apperrors.DetailsOf(err)["maxWorksPerCreator"])
	})

	t.Run("deactivated offer refuses investment", func(t *testing.T) {
		f := newFixture(t)
		f.publish("w1", offerParams(100))
		f.fund("ana", models.Dollars(100))
		f.earnOpportunities("ana", 1)

		res, err := f.c.SetOfferActive(ctx, "mika", "w1", false)
		require.NoError(t, err)
		assert.False(t, res.Offer.IsActive)

		_, err = f.c.InvestPrimary(ctx, "ana", "w1", 1, models.Dollars(5))
		assert.ErrorIs(t, err, apperrors.ErrInvalidOffer)
		assert.Equal(t, 1, f.c.Opportunities("ana").Available)
	})
}

func TestCoordinator_InvestPrimary(t *testing.T) {
	t.Run("second purchase over the cap is rejected", func(t *testing.T) {
		f := newFixture(t)
		f.publish("w1", offerParams(100))
		for _, u := range []string{"ana", "ben"} {
			f.fund(u, models.Dollars(1000))
			f.earnOpportunities(u, 1)
		}

		res, err := f.c.InvestPrimary(ctx, "ana", "w1", 60, models.Dollars(5))
		require.NoError(t, err)
		assertZeroSum(t, res)
		assert.Equal(t, int64(60), res.Position.SharesOwned)

		before := f.l.Len()
		benBalance := f.balance(models.WalletID("ben"))

		_, err = f.c.InvestPrimary(ctx, "ben", "w1", 50, models.Dollars(5))
		require.ErrorIs(t, err, apperrors.ErrShareCapExceeded)
		assert.Equal(t, "offer", apperrors.DetailsOf(err)["scope"])

		assert.Equal(t, before, f.l.Len())
		assert.Equal(t, benBalance, f.balance(models.WalletID("ben")))
		assert.Equal(t, 1, f.c.Opportunities("ben").Available)
		assert.Equal(t, int64(60), f.c.Offers().SharesSoldPrimary("w1"))

		pos, ok := f.c.Offers().Position("ana", "w1")
		require.True(t, ok)
		assert.Equal(t, int64(60), pos.SharesOwned)
		_, ok = f.c.Offers().Position("ben", "w1")
		assert.False(t, ok)
	})

	t.Run("pays the creator and consumes an opportunity", func(t *testing.T) {
		f := newFixture(t)
		f.publish("w1", offerParams(100))
		f.fund("ana", models.Dollars(100))
		f.earnOpportunities("ana", 1)
		earnings := f.balance(models.EarningsID("mika"))

		res, err := f.c.InvestPrimary(ctx, "ana", "w1", 10, models.Dollars(5))
		require.NoError(t, err)
		assertZeroSum(t, res)

		assert.Equal(t, earnings+models.Dollars(45), f.balance(models.EarningsID("mika")))
		assert.Equal(t, models.Dollars(100)-models.Dollars(5)-models.Dollars(50), f.balance(models.WalletID("ana")))
		assert.Zero(t, f.c.Opportunities("ana").Available)
		assert.Equal(t, []string{"ana"}, f.c.Offers().Investors("w1"))

		offer, _ := f.c.Offers().Offer("w1")
		assert.Equal(t, models.Dollars(50), offer.TotalCapitalRaised)

		_, err = f.c.InvestPrimary(ctx, "ana", "w1", 1, models.Dollars(5))
		assert.ErrorIs(t, err, apperrors.ErrNoOpportunityAvailable)
	})

	t.Run("preconditions", func(t *testing.T) {
		tests := []struct {
			name   string
			params func(p *models.OfferParams)
			setup  func(f *fixture)
			buyer  string
			work   string
			shares int64
			price  models.Amount
			want   error
		}{
			{name: "creator cannot invest", buyer: "mika", shares: 1, price: models.Dollars(5), want: apperrors.ErrRoleNotPermitted},
			{name: "no opportunity", buyer: "ben", shares: 1, price: models.Dollars(5), want: apperrors.ErrNoOpportunityAvailable},
			{name: "zero shares", buyer: "ana", shares: 0, price: models.Dollars(5), want: apperrors.ErrInvalidAmount},
			{name: "quoted price differs", buyer: "ana", shares: 1, price: models.Dollars(1), want: apperrors.ErrPriceMismatch},
			{
				name:   "subscription requirement",
				params: func(p *models.OfferParams) { p.MinSubscriptionRequirement = 1 },
				buyer:  "ana", shares: 1, price: models.Dollars(5),
				want: apperrors.ErrSubscriptionRequirementNotMet,
			},
			{
				name:   "subscription requirement met",
				params: func(p *models.OfferParams) { p.MinSubscriptionRequirement = 1 },
				setup: func(f *fixture) {
					_, err := f.c.PurchaseAccess(ctx, "ana", "w1", models.EntitlementMonthly, "", models.Dollars(30))
					require.NoError(f.t, err)
				},
				buyer: "ana", shares: 1, price: models.Dollars(5),
			},
			{
				name:   "per investor cap",
				params: func(p *models.OfferParams) { p.MaxSharesPerInvestor = 10 },
				buyer:  "ana", shares: 11, price: models.Dollars(5),
				want: apperrors.ErrShareCapExceeded,
			},
			{name: "insufficient balance", buyer: "ana", shares: 100, price: models.Dollars(5), want: apperrors.ErrInsufficientBalance},
			{
				name:  "work without offer",
				setup: func(f *fixture) { f.dir.PutWork(models.Work{ID: "w9", CreatorID: "mika", Title: "Draft"}) },
				buyer: "ana", work: "w9", shares: 1, price: models.Dollars(5),
				want: apperrors.ErrNotFound,
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				f := newFixture(t)
				p := offerParams(100)
				if tt.params != nil {
					tt.params(&p)
				}
				f.publish("w1", p)
				f.fund("ana", models.Dollars(100))
				f.earnOpportunities("ana", 1)
				if tt.setup != nil {
					tt.setup(f)
				}

				work := tt.work
				if work == "" {
					work = "w1"
				}

				before := f.l.Len()
				res, err := f.c.InvestPrimary(ctx, tt.buyer, work, tt.shares, tt.price)
				if tt.want == nil {
					require.NoError(t, err)
					assertZeroSum(t, res)
					return
				}
				assert.ErrorIs(t, err, tt.want)
				assert.Equal(t, before, f.l.Len())
				assert.Equal(t, int64(0), f.c.Offers().SharesSoldPrimary("w1"))
			})
		}
	})
}

func TestCoordinator_SecondaryMarket(t *testing.T) {
	setup := func(t *testing.T) *fixture {
		f := newFixture(t)
		f.publish("w1", offerParams(100))
		f.fund("ana", models.Dollars(100))
		f.earnOpportunities("ana", 1)
		_, err := f.c.InvestPrimary(ctx, "ana", "w1", 10, models.Dollars(5))
		require.NoError(t, err)
		f.fund("ben", models.Dollars(200))
		f.earnOpportunities("ben", 1)
		return f
	}

	t.Run("buying the whole listing closes it", func(t *testing.T) {
		f := setup(t)

		listed, err := f.c.ListShares(ctx, "ana", "w1", 10, models.Dollars(8), "all of it")
		require.NoError(t, err)
		assert.Equal(t, int64(10), listed.Position.SharesListed)

		anaBefore := f.balance(models.WalletID("ana"))
		platformBefore := f.balance(models.PlatformAccountID)
		creatorBefore := f.balance(models.EarningsID("mika"))

		res, err := f.c.BuySecondary(ctx, "ben", listed.Listing.ID, 10)
		require.NoError(t, err)
		assertZeroSum(t, res)

		assert.False(t, res.Listing.IsActive)
		assert.Equal(t, int64(10), res.Position.SharesOwned)

		seller, _ := f.c.Offers().Position("ana", "w1")
		assert.Zero(t, seller.SharesListed)
		assert.Zero(t, seller.SharesOwned)
		assert.Empty(t, seller.ListingID)

		assert.Equal(t, anaBefore+models.Dollars(72), f.balance(models.WalletID("ana")))
		assert.Equal(t, platformBefore+models.Dollars(8), f.balance(models.PlatformAccountID))
		assert.Equal(t, creatorBefore, f.balance(models.EarningsID("mika")))
		assert.Zero(t, f.c.Opportunities("ben").Available)
		assert.Equal(t, int64(10), f.c.Offers().SharesSoldPrimary("w1"))
		assert.Equal(t, []string{"ben"}, f.c.Offers().Investors("w1"))
	})

	t.Run("partial fill keeps the listing open", func(t *testing.T) {
		f := setup(t)
		listed, err := f.c.ListShares(ctx, "ana", "w1", 6, models.Dollars(7), "")
		require.NoError(t, err)

		res, err := f.c.BuySecondary(ctx, "ben", listed.Listing.ID, 4)
		require.NoError(t, err)
		assert.True(t, res.Listing.IsActive)
		assert.Equal(t, int64(2), res.Listing.SharesOffered)

		seller, _ := f.c.Offers().Position("ana", "w1")
		assert.Equal(t, int64(6), seller.SharesOwned)
		assert.Equal(t, int64(2), seller.SharesListed)
	})

	t.Run("listing rules", func(t *testing.T) {
		f := setup(t)

		_, err := f.c.ListShares(ctx, "ana", "w1", 11, models.Dollars(7), "")
		assert.ErrorIs(t, err, apperrors.ErrInsufficientUnlistedShares)

		_, err = f.c.ListShares(ctx, "ben", "w1", 1, models.Dollars(7), "")
		assert.ErrorIs(t, err, apperrors.ErrInsufficientUnlistedShares)

		listed, err := f.c.ListShares(ctx, "ana", "w1", 3, models.Dollars(7), "")
		require.NoError(t, err)
		_, err = f.c.ListShares(ctx, "ana", "w1", 3, models.Dollars(7), "")
		assert.ErrorIs(t, err, apperrors.ErrAlreadyListed)

		_, err = f.c.DelistShares(ctx, "ben", listed.Listing.ID)
		assert.ErrorIs(t, err, apperrors.ErrListingUnavailable)

		res, err := f.c.DelistShares(ctx, "ana", listed.Listing.ID)
		require.NoError(t, err)
		assert.False(t, res.Listing.IsActive)
		assert.Zero(t, res.Position.SharesListed)
		assert.Empty(t, res.Entries)

		_, err = f.c.DelistShares(ctx, "ana", listed.Listing.ID)
		assert.ErrorIs(t, err, apperrors.ErrListingUnavailable)
		_, err = f.c.BuySecondary(ctx, "ben", listed.Listing.ID, 1)
		assert.ErrorIs(t, err, apperrors.ErrListingUnavailable)
	})

	t.Run("purchase rejections", func(t *testing.T) {
		f := setup(t)
		listed, err := f.c.ListShares(ctx, "ana", "w1", 5, models.Dollars(7), "")
		require.NoError(t, err)
		id := listed.Listing.ID
		before := f.l.Len()

		_, err = f.c.BuySecondary(ctx, "ana", id, 1)
		assert.ErrorIs(t, err, apperrors.ErrListingUnavailable)

		_, err = f.c.BuySecondary(ctx, "cai", id, 1)
		assert.ErrorIs(t, err, apperrors.ErrNoOpportunityAvailable)

		_, err = f.c.BuySecondary(ctx, "ben", id, 6)
		assert.ErrorIs(t, err, apperrors.ErrListingUnavailable)

		_, err = f.c.BuySecondary(ctx, "ben", "missing", 1)
		assert.ErrorIs(t, err, apperrors.ErrListingUnavailable)

		f.fund("dee", models.Dollars(10))
		f.earnOpportunities("dee", 1)
		_, err = f.c.BuySecondary(ctx, "dee", id, 5)
		assert.ErrorIs(t, err, apperrors.ErrInsufficientBalance)

		assert.Equal(t, before+16, f.l.Len(), "only dee's funding and donations were added")
		assert.Equal(t, 1, f.c.Opportunities("ben").Available)
		l, _ := f.c.Offers().Listing(id)
		assert.Equal(t, int64(5), l.SharesOffered)
	})

	t.Run("share cost beyond the amount range is refused", func(t *testing.T) {
		f := setup(t)
		before := f.l.Len()
		anaBefore := f.balance(models.WalletID("ana"))

		_, err := f.c.ListShares(ctx, "ana", "w1", 2, models.Amount(math.MaxInt64-49), "")
		assert.ErrorIs(t, err, apperrors.ErrInvalidAmount)

		pos, _ := f.c.Offers().Position("ana", "w1")
		assert.Zero(t, pos.SharesListed)
		assert.Empty(t, pos.ListingID)
		assert.Empty(t, f.c.Offers().ActiveListings("w1"))

		p := offerParams(100)
		p.PricePerShare = models.Amount(math.MaxInt64 / 50)
		_, err = f.c.PublishOffer(ctx, "mika", "w2", p)
		assert.ErrorIs(t, err, apperrors.ErrInvalidOffer)
		_, ok := f.c.Offers().Offer("w2")
		assert.False(t, ok)

		assert.Equal(t, before, f.l.Len())
		assert.Equal(t, anaBefore, f.balance(models.WalletID("ana")))
		assert.Equal(t, 1, f.c.Opportunities("ben").Available)
	})

	t.Run("refused batch returns the opportunity", func(t *testing.T) {
		f := setup(t)
		listed, err := f.c.ListShares(ctx, "ana", "w1", 5, models.Dollars(7), "")
		require.NoError(t, err)

		// Funds check passes against the original ledger; the empty one refuses the debit.
		f.c.ledger = ledger.New()

		_, err = f.c.BuySecondary(ctx, "ben", listed.Listing.ID, 5)
		assert.ErrorIs(t, err, apperrors.ErrInsufficientBalance)
		assert.Equal(t, 1, f.c.Opportunities("ben").Available)
		assert.Zero(t, f.c.Opportunities("ben").Consumed)

		l, _ := f.c.Offers().Listing(listed.Listing.ID)
		assert.True(t, l.IsActive)
		assert.Equal(t, int64(5), l.SharesOffered)
	})

	t.Run("follow", func(t *testing.T) {
		f := setup(t)
		listed, err := f.c.ListShares(ctx, "ana", "w1", 5, models.Dollars(7), "")
		require.NoError(t, err)

		for _, u := range []string{"ben", "cai", "ben"} {
			_, err := f.c.FollowListing(ctx, u, listed.Listing.ID)
			require.NoError(t, err)
		}
		l, _ := f.c.Offers().Listing(listed.Listing.ID)
		assert.Equal(t, 2, l.FollowerCount)
	})
}

func TestCoordinator_Withdraw(t *testing.T) {
	t.Run("wallet withdrawal leaves the platform", func(t *testing.T) {
		f := newFixture(t)
		f.fund("ana", models.Dollars(40))

		res, err := f.c.Withdraw(ctx, models.WalletID("ana"), models.Dollars(15))
		require.NoError(t, err)
		require.Len(t, res.Entries, 1)
		assert.Equal(t, models.EntryWithdrawal, res.Entries[0].Kind)
		assert.Equal(t, models.Dollars(25), f.balance(models.WalletID("ana")))

		_, err = f.c.Withdraw(ctx, models.WalletID("ana"), models.Dollars(26))
		assert.ErrorIs(t, err, apperrors.ErrInsufficientBalance)
		_, err = f.c.Withdraw(ctx, models.WalletID("ana"), 0)
		assert.ErrorIs(t, err, apperrors.ErrInvalidAmount)
		_, err = f.c.Withdraw(ctx, models.PlatformAccountID, 1)
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})

	t.Run("unapproved creator", func(t *testing.T) {
		f := newFixture(t)
		f.fund("ana", models.Dollars(10))
		_, err := f.c.PurchaseAccess(ctx, "ana", "w3", models.EntitlementMonthly, "", models.Dollars(10))
		require.NoError(t, err)

		_, err = f.c.Withdraw(ctx, models.EarningsID("rin"), models.Dollars(1))
		assert.ErrorIs(t, err, apperrors.ErrCreatorNotApproved)
		assert.Equal(t, models.Dollars(9), f.balance(models.EarningsID("rin")))
	})

	t.Run("balance is checked before approval", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.c.Withdraw(ctx, models.EarningsID("rin"), models.Dollars(1))
		assert.ErrorIs(t, err, apperrors.ErrInsufficientBalance)
	})

	t.Run("creator earnings without offers", func(t *testing.T) {
		f := newFixture(t)
		f.fund("ana", models.Dollars(30))
		_, err := f.c.PurchaseAccess(ctx, "ana", "w1", models.EntitlementMonthly, "", models.Dollars(30))
		require.NoError(t, err)

		_, err = f.c.Withdraw(ctx, models.EarningsID("mika"), models.Dollars(27))
		require.NoError(t, err)
		assert.Zero(t, f.balance(models.EarningsID("mika")))
	})
}

func TestCoordinator_Dividends(t *testing.T) {
	f := newFixture(t)
	p := offerParams(100)
	p.DividendPayoutCycleMonths = 3
	f.publish("w1", p)

	for _, u := range []string{"ana", "ben"} {
		f.fund(u, models.Dollars(1000))
		f.earnOpportunities(u, 1)
	}
	_, err := f.c.InvestPrimary(ctx, "ana", "w1", 30, models.Dollars(5))
	require.NoError(t, err)
	_, err = f.c.InvestPrimary(ctx, "ben", "w1", 10, models.Dollars(5))
	require.NoError(t, err)

	f.fund("cai", models.Dollars(100))
	_, err = f.c.PurchaseAccess(ctx, "cai", "w1", models.EntitlementMonthly, "", models.Dollars(30))
	require.NoError(t, err)

	work, _ := f.dir.Work(ctx, "w1")
	require.Equal(t, models.Dollars(40), work.RevenueTotal)
	earnings := models.EarningsID("mika")
	require.Equal(t, models.Amount(21600), f.balance(earnings))

	t.Run("not due before the cycle elapses", func(t *testing.T) {
		due, err := f.c.DueDividends(ctx, "mika")
		require.NoError(t, err)
		assert.Empty(t, due)

		_, err = f.c.Withdraw(ctx, earnings, models.Dollars(1))
		require.NoError(t, err)
	})

	f.now = start.AddDate(0, 3, 0)

	t.Run("due cycle blocks creator withdrawal", func(t *testing.T) {
		balance := f.balance(earnings)
		before := f.l.Len()

		_, err := f.c.Withdraw(ctx, earnings, models.Dollars(10))
		require.ErrorIs(t, err, apperrors.ErrDividendsPending)
		assert.Equal(t, []string{"w1"}, apperrors.DetailsOf(err)["works"])
		assert.Equal(t, balance, f.balance(earnings))
		assert.Equal(t, before, f.l.Len())

		due, err := f.c.AllDueDividends(ctx)
		require.NoError(t, err)
		require.Len(t, due, 1)
		assert.Equal(t, models.Amount(800), due[0].PotentialPool)
		assert.Equal(t, models.Amount(800), due[0].AccruedPool)
	})

	t.Run("the creator's wallet is not blocked", func(t *testing.T) {
		f.fund("mika", models.Dollars(5))
		_, err := f.c.Withdraw(ctx, models.WalletID("mika"), models.Dollars(5))
		assert.NoError(t, err)
	})

	t.Run("payout is pro rata and unblocks withdrawal", func(t *testing.T) {
		ana, ben := f.balance(models.WalletID("ana")), f.balance(models.WalletID("ben"))
		balance := f.balance(earnings)

		res, err := f.c.PayDividends(ctx, "mika", "w1")
		require.NoError(t, err)
		assertZeroSum(t, res)
		require.Len(t, res.Entries, 3)

		assert.Equal(t, ana+600, f.balance(models.WalletID("ana")))
		assert.Equal(t, ben+200, f.balance(models.WalletID("ben")))
		assert.Equal(t, balance-800, f.balance(earnings))

		require.NotNil(t, res.Offer.LastDividendPayoutAt)
		assert.Equal(t, f.now, *res.Offer.LastDividendPayoutAt)
		assert.Equal(t, models.Dollars(40), res.Offer.RevenueAtLastPayout)

		pos, _ := f.c.Offers().Position("ana", "w1")
		assert.Equal(t, models.Amount(600), pos.DividendsReceivedTotal)

		_, err = f.c.Withdraw(ctx, earnings, models.Dollars(10))
		assert.NoError(t, err)
	})

	t.Run("nothing accrued pays nothing", func(t *testing.T) {
		res, err := f.c.PayDividends(ctx, "mika", "w1")
		require.NoError(t, err)
		assert.Empty(t, res.Entries)
	})

	t.Run("next cycle reports only revenue since the payout", func(t *testing.T) {
		f.now = start.AddDate(0, 6, 0)
		f.fund("dee", models.Dollars(10))
		_, err := f.c.Donate(ctx, "dee", "w1", models.Dollars(10))
		require.NoError(t, err)

		due, err := f.c.DueDividends(ctx, "mika")
		require.NoError(t, err)
		require.Len(t, due, 1)
		assert.Equal(t, models.Dollars(10), due[0].PotentialPool)
		assert.Equal(t, models.Dollars(2), due[0].AccruedPool)

		ana := f.balance(models.WalletID("ana"))
		res, err := f.c.PayDividends(ctx, "mika", "w1")
		require.NoError(t, err)
		assert.Equal(t, ana+150, f.balance(models.WalletID("ana")))
		assert.Equal(t, models.Dollars(50), res.Offer.RevenueAtLastPayout)
	})

	t.Run("only the owner pays", func(t *testing.T) {
		_, err := f.c.PayDividends(ctx, "rin", "w1")
		assert.ErrorIs(t, err, apperrors.ErrRoleNotPermitted)
		_, err = f.c.PayDividends(ctx, "mika", "w2")
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})
}

func TestProrate(t *testing.T) {
	holders := []models.InvestmentPosition{
		{UserID: "ana", SharesOwned: 1},
		{UserID: "ben", SharesOwned: 1},
		{UserID: "cai", SharesOwned: 1},
		{UserID: "dee", SharesOwned: 0},
	}

	payouts, paid := prorate(100, holders)
	assert.Equal(t, models.Amount(99), paid)
	assert.Len(t, payouts, 3)
	assert.Equal(t, models.Amount(33), payouts["ana"])

	payouts, paid = prorate(0, holders)
	assert.Zero(t, paid)
	assert.Empty(t, payouts)

	_, paid = prorate(100, nil)
	assert.Zero(t, paid)
}

func TestCoordinator_LedgerReplaysToBalances(t *testing.T) {
	f := newFixture(t)
	f.publish("w1", offerParams(100))
	f.fund("ana", models.Dollars(300))
	f.fund("ben", models.Dollars(300))
	f.earnOpportunities("ana", 2)
	f.earnOpportunities("ben", 1)

	_, err := f.c.InvestPrimary(ctx, "ana", "w1", 20, models.Dollars(5))
	require.NoError(t, err)
	listed, err := f.c.ListShares(ctx, "ana", "w1", 5, models.Dollars(9), "")
	require.NoError(t, err)
	_, err = f.c.BuySecondary(ctx, "ben", listed.Listing.ID, 5)
	require.NoError(t, err)
	_, err = f.c.Withdraw(ctx, models.WalletID("ben"), models.Dollars(100))
	require.NoError(t, err)

	entries := f.l.EntriesAfter(0, 0)
	replayed := ledger.Replay(entries)

	var deposits, withdrawals, total models.Amount
	for id, amount := range replayed {
		assert.Equal(t, f.balance(id), amount, "account %s", id)
		assert.GreaterOrEqual(t, int64(amount), int64(0), "account %s", id)
		total += amount
	}
	byOp := make(map[string][]models.LedgerEntry)
	for _, e := range entries {
		switch e.Kind {
		case models.EntryDeposit:
			deposits += e.Amount
		case models.EntryWithdrawal:
			withdrawals += e.Amount
		}
		byOp[e.OperationID] = append(byOp[e.OperationID], e)
	}
	for op, batch := range byOp {
		assert.Equal(t, models.Amount(0), ledger.Net(batch), "operation %s", op)
	}
	assert.Equal(t, deposits+withdrawals, total)
}

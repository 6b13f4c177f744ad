package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mangaverse/backend/internal/accounts"
	"github.com/mangaverse/backend/internal/apperrors"
	"github.com/mangaverse/backend/internal/audit"
	"github.com/mangaverse/backend/internal/config"
	"github.com/mangaverse/backend/internal/entitlements"
	"github.com/mangaverse/backend/internal/ledger"
	"github.com/mangaverse/backend/internal/models"
	"github.com/mangaverse/backend/internal/offers"
)

// Operation names used in the audit trail.
const (
	OpDeposit        = "deposit"
	OpPurchaseAccess = "purchase_access"
	OpDonate         = "donate"
	OpPublishOffer   = "publish_offer"
	OpSetOfferActive = "set_offer_active"
	OpInvestPrimary  = "invest_primary"
	OpListShares     = "list_shares"
	OpDelistShares   = "delist_shares"
	OpBuySecondary   = "buy_secondary"
	OpFollowListing  = "follow_listing"
	OpPayDividends   = "pay_dividends"
	OpWithdraw       = "withdraw"
)

// CatalogueProvider supplies work metadata and receives revenue callbacks.
type CatalogueProvider interface {
	Work(ctx context.Context, workID string) (models.Work, error)
	WorksByCreator(ctx context.Context, creatorID string) ([]models.Work, error)
	RecordRevenue(ctx context.Context, workID string, amount models.Amount) error
}

// IdentityProvider supplies user roles and creator approval.
type IdentityProvider interface {
	Identity(ctx context.Context, userID string) (models.Identity, error)
}

// Result is what a committed operation produced.
type Result struct {
	OperationID           string                     `json:"operationId"`
	Entries               []models.LedgerEntry       `json:"entries"`
	OpportunitiesUnlocked int                        `json:"opportunitiesUnlocked,omitempty"`
	Entitlement           *models.EntitlementRecord  `json:"entitlement,omitempty"`
	Position              *models.InvestmentPosition `json:"position,omitempty"`
	Listing               *models.ShareListing       `json:"listing,omitempty"`
	Offer                 *models.InvestmentOffer    `json:"offer,omitempty"`
}

// Dependencies are the stores and collaborators a Coordinator works on.
type Dependencies struct {
	Ledger       *ledger.Ledger
	Accounts     *accounts.Store
	Offers       *offers.Registry
	Entitlements *entitlements.Tracker
	Catalogue    CatalogueProvider
	Identity     IdentityProvider
	Logger       *zap.Logger
}

// Coordinator runs every money-moving operation as one atomic transition:
// gather external inputs, lock the affected entities, validate, append a
// single ledger batch and update the projections.
type Coordinator struct {
	cfg          config.EngineConfig
	ledger       *ledger.Ledger
	accounts     *accounts.Store
	offers       *offers.Registry
	entitlements *entitlements.Tracker
	catalogue    CatalogueProvider
	identity     IdentityProvider
	logger       *zap.Logger
	audit        *audit.AuditLogger
	locks        *KeyedLocker
	now          func() time.Time
	newID        func() string
}

type Option func(*Coordinator)

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

func NewCoordinator(cfg config.EngineConfig, deps Dependencies, opts ...Option) *Coordinator {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Coordinator{
		cfg:          cfg,
		ledger:       deps.Ledger,
		accounts:     deps.Accounts,
		offers:       deps.Offers,
		entitlements: deps.Entitlements,
		catalogue:    deps.Catalogue,
		identity:     deps.Identity,
		logger:       logger.Named("coordinator"),
		audit:        audit.NewAuditLogger(logger),
		locks:        NewKeyedLocker(),
		now:          time.Now,
		newID:        uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Coordinator) Ledger() *ledger.Ledger              { return c.ledger }
func (c *Coordinator) Offers() *offers.Registry            { return c.offers }
func (c *Coordinator) Entitlements() *entitlements.Tracker { return c.entitlements }
func (c *Coordinator) Config() config.EngineConfig         { return c.cfg }

// Deposit credits a user's wallet with funds entering the platform.
func (c *Coordinator) Deposit(ctx context.Context, userID string, amount models.Amount) (res *Result, err error) {
	opID := c.newID()
	defer func() { c.observe(opID, OpDeposit, userID, res, err) }()

	if err := requirePositive("amount", amount); err != nil {
		return nil, err
	}

	unlock := c.locks.Lock(userKey(userID))
	defer unlock()

	wallet := c.accounts.GetOrCreate(userID, models.RoleRegular)
	entries, err := c.commit(opID, []models.LedgerEntry{{
		Kind:        models.EntryDeposit,
		Amount:      amount,
		AccountID:   wallet.ID,
		Description: "wallet top up",
	}})
	if err != nil {
		return nil, err
	}
	return &Result{OperationID: opID, Entries: entries}, nil
}

// Balance returns the account behind id with its ledger balance.
func (c *Coordinator) Balance(id models.AccountID) (models.Account, error) {
	return c.accounts.Resolve(id)
}

// Opportunities returns the user's action counters and available opportunities.
func (c *Coordinator) Opportunities(userID string) models.OpportunityStats {
	return c.entitlements.Stats(userID)
}

func (c *Coordinator) regularUser(ctx context.Context, userID string) (models.Identity, error) {
	ident, err := c.identity.Identity(ctx, userID)
	if err != nil {
		return models.Identity{}, err
	}
	if ident.Role != models.RoleRegular {
		return models.Identity{}, apperrors.New(apperrors.KindRoleNotPermitted,
			apperrors.Details{"userId": userID, "role": ident.Role, "required": models.RoleRegular},
			"operation requires a regular user account")
	}
	return ident, nil
}

// ownedWork loads the work and checks that creatorID is a creator who owns it.
func (c *Coordinator) ownedWork(ctx context.Context, creatorID, workID string) (models.Work, error) {
	ident, err := c.identity.Identity(ctx, creatorID)
	if err != nil {
		return models.Work{}, err
	}
	if ident.Role != models.RoleCreator {
		return models.Work{}, apperrors.New(apperrors.KindRoleNotPermitted,
			apperrors.Details{"userId": creatorID, "role": ident.Role, "required": models.RoleCreator},
			"operation requires a creator account")
	}
	work, err := c.catalogue.Work(ctx, workID)
	if err != nil {
		return models.Work{}, err
	}
	if work.CreatorID != creatorID {
		return models.Work{}, apperrors.New(apperrors.KindRoleNotPermitted,
			apperrors.Details{"workId": workID, "creatorId": creatorID},
			"work belongs to another creator")
	}
	return work, nil
}

func (c *Coordinator) commit(opID string, batch []models.LedgerEntry) ([]models.LedgerEntry, error) {
	entries, err := c.ledger.Append(opID, batch)
	if err != nil {
		return nil, fmt.Errorf("append ledger batch: %w", err)
	}
	return entries, nil
}

// commitPurchase spends one of the buyer's investment opportunities and
// commits the batch. The opportunity is returned when the batch is refused.
func (c *Coordinator) commitPurchase(opID, buyerID string, batch []models.LedgerEntry) ([]models.LedgerEntry, error) {
	if err := c.entitlements.ConsumeOpportunity(buyerID); err != nil {
		return nil, err
	}
	entries, err := c.commit(opID, batch)
	if err != nil {
		c.entitlements.ReleaseOpportunity(buyerID)
		return nil, err
	}
	return entries, nil
}

func (c *Coordinator) observe(opID, operation, subject string, res *Result, err error) {
	if err != nil {
		c.audit.LogRejection(opID, operation, subject, err)
		return
	}
	c.audit.LogOperation(opID, operation, res.Entries)
}

// fault reports a projection update that failed after its batch committed.
func (c *Coordinator) fault(opID, operation string, err error) {
	c.audit.LogFault(opID, operation, err)
}

func (c *Coordinator) recordRevenue(ctx context.Context, opID, workID string, amount models.Amount) {
	if err := c.catalogue.RecordRevenue(ctx, workID, amount); err != nil {
		c.logger.Warn("revenue callback failed",
			zap.String("operation_id", opID),
			zap.String("work_id", workID),
			zap.Int64("amount", int64(amount)),
			zap.Error(err))
	}
}

// splitBatch debits the payer the gross amount and credits the recipient and
// the platform with the fee split. Zero legs are omitted.
func splitBatch(payerKind, recipientKind models.EntryKind, payer, recipient models.AccountID, workID, description string, split FeeSplit) []models.LedgerEntry {
	batch := []models.LedgerEntry{{
		Kind:                  payerKind,
		Amount:                -split.Gross,
		AccountID:             payer,
		WorkID:                workID,
		CounterpartyAccountID: recipient,
		Description:           description,
	}}
	if split.Payout != 0 {
		batch = append(batch, models.LedgerEntry{
			Kind:                  recipientKind,
			Amount:                split.Payout,
			AccountID:             recipient,
			WorkID:                workID,
			CounterpartyAccountID: payer,
			Description:           description,
		})
	}
	if split.PlatformFee != 0 {
		batch = append(batch, models.LedgerEntry{
			Kind:                  models.EntryPlatformFee,
			Amount:                split.PlatformFee,
			AccountID:             models.PlatformAccountID,
			WorkID:                workID,
			CounterpartyAccountID: payer,
			Description:           "platform fee: " + description,
		})
	}
	return batch
}

func requirePositive[T ~int64](field string, v T) error {
	if v <= 0 {
		return apperrors.New(apperrors.KindInvalidAmount, apperrors.Details{field: int64(v)}, "%s must be positive", field)
	}
	return nil
}

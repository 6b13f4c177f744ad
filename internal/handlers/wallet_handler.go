package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mangaverse/backend/internal/models"
	"github.com/mangaverse/backend/internal/services"
)

// WalletHandler serves balances, deposits, withdrawals and statements.
type WalletHandler struct {
	engine    *services.Coordinator
	validator *services.ValidationHelper
}

func NewWalletHandler(engine *services.Coordinator) *WalletHandler {
	return &WalletHandler{
		engine:    engine,
		validator: services.NewValidationHelper(),
	}
}

func (h *WalletHandler) Routes(r chi.Router) {
	r.Get("/wallet", h.GetWallet)
	r.Post("/wallet/deposits", h.Deposit)
	r.Get("/earnings", h.GetEarnings)
	r.Post("/withdrawals", h.Withdraw)
	r.Get("/opportunities", h.GetOpportunities)
	r.Get("/statement", h.GetStatement)
}

type amountRequest struct {
	Amount models.Amount `json:"amount" validate:"required,gt=0"`
}

type withdrawRequest struct {
	Account string        `json:"account" validate:"required,oneof=wallet earnings"`
	Amount  models.Amount `json:"amount" validate:"required,gt=0"`
}

// GetWallet returns the caller's wallet balance
// @Summary Get wallet
// @Description Current wallet balance of the authenticated user, in cents
// @Tags Wallet
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.Account
// @Failure 401 {object} services.ErrorResponse
// @Router /wallet [get]
func (h *WalletHandler) GetWallet(w http.ResponseWriter, r *http.Request) {
	h.sendAccount(w, r, "wallet")
}

// GetEarnings returns the caller's earnings balance
// @Summary Get earnings
// @Description Current earnings balance of the authenticated creator, in cents
// @Tags Wallet
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.Account
// @Failure 401 {object} services.ErrorResponse
// @Router /earnings [get]
func (h *WalletHandler) GetEarnings(w http.ResponseWriter, r *http.Request) {
	h.sendAccount(w, r, "earnings")
}

func (h *WalletHandler) sendAccount(w http.ResponseWriter, r *http.Request, selector string) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	acc, err := h.engine.Balance(ownAccount(userID, selector))
	if err != nil {
		services.SendEngineError(w, err)
		return
	}
	services.WriteJSON(w, http.StatusOK, acc)
}

// Deposit tops up the caller's wallet
// @Summary Deposit funds
// @Description Credit external funds to the wallet of the authenticated user
// @Tags Wallet
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param Idempotency-Key header string false "Replay protection key"
// @Param request body amountRequest true "Amount in cents"
// @Success 201 {object} services.Result
// @Failure 400 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Router /wallet/deposits [post]
func (h *WalletHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req amountRequest
	if !h.validator.DecodeJSON(w, r, &req) {
		return
	}
	res, err := h.engine.Deposit(r.Context(), userID, req.Amount)
	writeResult(w, http.StatusCreated, res, err)
}

// Withdraw pays out from the caller's wallet or earnings account
// @Summary Withdraw funds
// @Description Withdraw from the wallet or, for approved creators with no dividends due, from earnings
// @Tags Wallet
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param Idempotency-Key header string false "Replay protection key"
// @Param request body withdrawRequest true "Withdrawal request"
// @Success 201 {object} services.Result
// @Failure 400 {object} services.ErrorResponse
// @Failure 402 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /withdrawals [post]
func (h *WalletHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req withdrawRequest
	if !h.validator.DecodeJSON(w, r, &req) {
		return
	}
	res, err := h.engine.Withdraw(r.Context(), ownAccount(userID, req.Account), req.Amount)
	writeResult(w, http.StatusCreated, res, err)
}

// GetOpportunities returns the caller's investment opportunity counters
// @Summary Get investment opportunities
// @Tags Wallet
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.OpportunityStats
// @Router /opportunities [get]
func (h *WalletHandler) GetOpportunities(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	services.WriteJSON(w, http.StatusOK, h.engine.Opportunities(userID))
}

// GetStatement lists the ledger entries of one of the caller's accounts
// @Summary Account statement
// @Tags Wallet
// @Produce json
// @Security BearerAuth
// @Param account query string false "wallet (default) or earnings"
// @Success 200 {array} models.LedgerEntry
// @Router /statement [get]
func (h *WalletHandler) GetStatement(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	entries := h.engine.Ledger().EntriesFor(ownAccount(userID, r.URL.Query().Get("account")))
	if entries == nil {
		entries = []models.LedgerEntry{}
	}
	services.WriteJSON(w, http.StatusOK, entries)
}

package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mangaverse/backend/internal/apperrors"
	"github.com/mangaverse/backend/internal/models"
	"github.com/mangaverse/backend/internal/services"
)

// WorkHandler serves everything scoped to a single work: access purchases,
// donations, the investment offer and dividends.
type WorkHandler struct {
	engine    *services.Coordinator
	validator *services.ValidationHelper
}

func NewWorkHandler(engine *services.Coordinator) *WorkHandler {
	return &WorkHandler{
		engine:    engine,
		validator: services.NewValidationHelper(),
	}
}

func (h *WorkHandler) Routes(r chi.Router) {
	r.Get("/entitlements", h.ListEntitlements)
	r.Get("/dividends/due", h.ListDueDividends)
	r.Route("/works/{workId}", func(r chi.Router) {
		r.Post("/access", h.PurchaseAccess)
		r.Post("/donations", h.Donate)
		r.Get("/offer", h.GetOffer)
		r.Post("/offer", h.PublishOffer)
		r.Put("/offer/status", h.SetOfferStatus)
		r.Post("/investments", h.Invest)
		r.Get("/position", h.GetPosition)
		r.Post("/dividends", h.PayDividends)
	})
}

type accessRequest struct {
	Kind        models.EntitlementKind `json:"kind" validate:"required"`
	ChapterID   string                 `json:"chapterId"`
	PriceQuoted models.Amount          `json:"priceQuoted" validate:"gte=0"`
}

type offerStatusRequest struct {
	Active *bool `json:"active" validate:"required"`
}

type investRequest struct {
	Shares        int64         `json:"shares" validate:"required,gt=0"`
	PricePerShare models.Amount `json:"pricePerShare" validate:"required,gt=0"`
}

// PurchaseAccess buys a monthly subscription or a chapter
// @Summary Purchase access
// @Description Buy monthly or chapter access to a work at its catalogue price. The creator receives the price less the platform fee.
// @Tags Works
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param Idempotency-Key header string false "Replay protection key"
// @Param workId path string true "Work ID"
// @Param request body accessRequest true "Access request"
// @Success 201 {object} services.Result
// @Failure 400 {object} services.ErrorResponse
// @Failure 402 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /works/{workId}/access [post]
func (h *WorkHandler) PurchaseAccess(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req accessRequest
	if !h.validator.DecodeJSON(w, r, &req) {
		return
	}
	res, err := h.engine.PurchaseAccess(r.Context(), userID, chi.URLParam(r, "workId"), req.Kind, req.ChapterID, req.PriceQuoted)
	writeResult(w, http.StatusCreated, res, err)
}

// Donate tips the creator of a work
// @Summary Donate
// @Tags Works
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param Idempotency-Key header string false "Replay protection key"
// @Param workId path string true "Work ID"
// @Param request body amountRequest true "Donation in cents"
// @Success 201 {object} services.Result
// @Failure 400 {object} services.ErrorResponse
// @Failure 402 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /works/{workId}/donations [post]
func (h *WorkHandler) Donate(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req amountRequest
	if !h.validator.DecodeJSON(w, r, &req) {
		return
	}
	res, err := h.engine.Donate(r.Context(), userID, chi.URLParam(r, "workId"), req.Amount)
	writeResult(w, http.StatusCreated, res, err)
}

// ListEntitlements returns the caller's access grants
// @Summary List entitlements
// @Tags Works
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.EntitlementRecord
// @Router /entitlements [get]
func (h *WorkHandler) ListEntitlements(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	grants := h.engine.Entitlements().Grants(userID)
	if grants == nil {
		grants = []models.EntitlementRecord{}
	}
	services.WriteJSON(w, http.StatusOK, grants)
}

// GetOffer returns the investment offer of a work
// @Summary Get investment offer
// @Tags Investments
// @Produce json
// @Security BearerAuth
// @Param workId path string true "Work ID"
// @Success 200 {object} models.InvestmentOffer
// @Failure 404 {object} services.ErrorResponse
// @Router /works/{workId}/offer [get]
func (h *WorkHandler) GetOffer(w http.ResponseWriter, r *http.Request) {
	workID := chi.URLParam(r, "workId")
	offer, ok := h.engine.Offers().Offer(workID)
	if !ok {
		services.SendEngineError(w, apperrors.New(apperrors.KindNotFound, apperrors.Details{"workId": workID}, "no investment offer for work"))
		return
	}
	services.WriteJSON(w, http.StatusOK, offer)
}

// PublishOffer opens primary share sales for a work
// @Summary Publish investment offer
// @Description Approved creators may publish one offer per owned work
// @Tags Investments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param workId path string true "Work ID"
// @Param request body models.OfferParams true "Offer terms"
// @Success 201 {object} services.Result
// @Failure 400 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Router /works/{workId}/offer [post]
func (h *WorkHandler) PublishOffer(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var params models.OfferParams
	if !h.validator.DecodeJSON(w, r, &params) {
		return
	}
	res, err := h.engine.PublishOffer(r.Context(), userID, chi.URLParam(r, "workId"), params)
	writeResult(w, http.StatusCreated, res, err)
}

// SetOfferStatus pauses or resumes primary sales
// @Summary Activate or deactivate offer
// @Tags Investments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param workId path string true "Work ID"
// @Param request body offerStatusRequest true "Desired status"
// @Success 200 {object} services.Result
// @Failure 403 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /works/{workId}/offer/status [put]
func (h *WorkHandler) SetOfferStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req offerStatusRequest
	if !h.validator.DecodeJSON(w, r, &req) {
		return
	}
	res, err := h.engine.SetOfferActive(r.Context(), userID, chi.URLParam(r, "workId"), *req.Active)
	writeResult(w, http.StatusOK, res, err)
}

// Invest buys shares from the creator's primary offer
// @Summary Invest in a work
// @Description Buy primary shares. Consumes one investment opportunity.
// @Tags Investments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param Idempotency-Key header string false "Replay protection key"
// @Param workId path string true "Work ID"
// @Param request body investRequest true "Shares and quoted price per share"
// @Success 201 {object} services.Result
// @Failure 400 {object} services.ErrorResponse
// @Failure 402 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /works/{workId}/investments [post]
func (h *WorkHandler) Invest(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req investRequest
	if !h.validator.DecodeJSON(w, r, &req) {
		return
	}
	res, err := h.engine.InvestPrimary(r.Context(), userID, chi.URLParam(r, "workId"), req.Shares, req.PricePerShare)
	writeResult(w, http.StatusCreated, res, err)
}

// GetPosition returns the caller's holding in a work
// @Summary Get investment position
// @Tags Investments
// @Produce json
// @Security BearerAuth
// @Param workId path string true "Work ID"
// @Success 200 {object} models.InvestmentPosition
// @Failure 404 {object} services.ErrorResponse
// @Router /works/{workId}/position [get]
func (h *WorkHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	workID := chi.URLParam(r, "workId")
	pos, found := h.engine.Offers().Position(userID, workID)
	if !found {
		services.SendEngineError(w, apperrors.New(apperrors.KindNotFound, apperrors.Details{"workId": workID}, "no position in work"))
		return
	}
	services.WriteJSON(w, http.StatusOK, pos)
}

// PayDividends distributes the revenue share of a work to its investors
// @Summary Pay dividends
// @Tags Investments
// @Produce json
// @Security BearerAuth
// @Param Idempotency-Key header string false "Replay protection key"
// @Param workId path string true "Work ID"
// @Success 201 {object} services.Result
// @Failure 402 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /works/{workId}/dividends [post]
func (h *WorkHandler) PayDividends(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	res, err := h.engine.PayDividends(r.Context(), userID, chi.URLParam(r, "workId"))
	writeResult(w, http.StatusCreated, res, err)
}

// ListDueDividends reports the caller's works whose payout cycle has elapsed
// @Summary List due dividends
// @Tags Investments
// @Produce json
// @Security BearerAuth
// @Success 200 {array} services.DividendNotice
// @Router /dividends/due [get]
func (h *WorkHandler) ListDueDividends(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	due, err := h.engine.DueDividends(r.Context(), userID)
	if err != nil {
		services.SendEngineError(w, err)
		return
	}
	if due == nil {
		due = []services.DividendNotice{}
	}
	services.WriteJSON(w, http.StatusOK, due)
}

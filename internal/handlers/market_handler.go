package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mangaverse/backend/internal/apperrors"
	"github.com/mangaverse/backend/internal/models"
	"github.com/mangaverse/backend/internal/services"
)

// MarketHandler serves the secondary share market.
type MarketHandler struct {
	engine    *services.Coordinator
	validator *services.ValidationHelper
}

func NewMarketHandler(engine *services.Coordinator) *MarketHandler {
	return &MarketHandler{
		engine:    engine,
		validator: services.NewValidationHelper(),
	}
}

func (h *MarketHandler) Routes(r chi.Router) {
	r.Get("/works/{workId}/listings", h.ListActive)
	r.Post("/works/{workId}/listings", h.ListShares)
	r.Route("/listings/{listingId}", func(r chi.Router) {
		r.Get("/", h.GetListing)
		r.Delete("/", h.Delist)
		r.Post("/purchases", h.Buy)
		r.Post("/follow", h.Follow)
	})
}

type listSharesRequest struct {
	Shares        int64         `json:"shares" validate:"required,gt=0"`
	PricePerShare models.Amount `json:"pricePerShare" validate:"required,gt=0"`
	Description   string        `json:"description" validate:"max=500"`
}

type buySharesRequest struct {
	Shares int64 `json:"shares" validate:"required,gt=0"`
}

// ListActive returns the open listings of a work
// @Summary List active listings
// @Tags Market
// @Produce json
// @Security BearerAuth
// @Param workId path string true "Work ID"
// @Success 200 {array} models.ShareListing
// @Router /works/{workId}/listings [get]
func (h *MarketHandler) ListActive(w http.ResponseWriter, r *http.Request) {
	listings := h.engine.Offers().ActiveListings(chi.URLParam(r, "workId"))
	if listings == nil {
		listings = []models.ShareListing{}
	}
	services.WriteJSON(w, http.StatusOK, listings)
}

// ListShares puts part of the caller's position up for sale
// @Summary List shares for sale
// @Description At most one active listing per position
// @Tags Market
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param workId path string true "Work ID"
// @Param request body listSharesRequest true "Listing terms"
// @Success 201 {object} services.Result
// @Failure 400 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /works/{workId}/listings [post]
func (h *MarketHandler) ListShares(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req listSharesRequest
	if !h.validator.DecodeJSON(w, r, &req) {
		return
	}
	res, err := h.engine.ListShares(r.Context(), userID, chi.URLParam(r, "workId"), req.Shares, req.PricePerShare, req.Description)
	writeResult(w, http.StatusCreated, res, err)
}

// GetListing returns a single listing
// @Summary Get listing
// @Tags Market
// @Produce json
// @Security BearerAuth
// @Param listingId path string true "Listing ID"
// @Success 200 {object} models.ShareListing
// @Failure 404 {object} services.ErrorResponse
// @Router /listings/{listingId} [get]
func (h *MarketHandler) GetListing(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "listingId")
	listing, ok := h.engine.Offers().Listing(id)
	if !ok {
		services.SendEngineError(w, apperrors.New(apperrors.KindNotFound, apperrors.Details{"listingId": id}, "listing not found"))
		return
	}
	services.WriteJSON(w, http.StatusOK, listing)
}

// Delist withdraws the caller's listing from the market
// @Summary Delist shares
// @Tags Market
// @Produce json
// @Security BearerAuth
// @Param listingId path string true "Listing ID"
// @Success 200 {object} services.Result
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /listings/{listingId} [delete]
func (h *MarketHandler) Delist(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	res, err := h.engine.DelistShares(r.Context(), userID, chi.URLParam(r, "listingId"))
	writeResult(w, http.StatusOK, res, err)
}

// Buy purchases shares from a listing
// @Summary Buy listed shares
// @Description Consumes one investment opportunity; the seller receives the price less the platform fee
// @Tags Market
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param Idempotency-Key header string false "Replay protection key"
// @Param listingId path string true "Listing ID"
// @Param request body buySharesRequest true "Shares to buy"
// @Success 201 {object} services.Result
// @Failure 400 {object} services.ErrorResponse
// @Failure 402 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /listings/{listingId}/purchases [post]
func (h *MarketHandler) Buy(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req buySharesRequest
	if !h.validator.DecodeJSON(w, r, &req) {
		return
	}
	res, err := h.engine.BuySecondary(r.Context(), userID, chi.URLParam(r, "listingId"), req.Shares)
	writeResult(w, http.StatusCreated, res, err)
}

// Follow subscribes the caller to a listing
// @Summary Follow listing
// @Tags Market
// @Produce json
// @Security BearerAuth
// @Param listingId path string true "Listing ID"
// @Success 200 {object} services.Result
// @Failure 409 {object} services.ErrorResponse
// @Router /listings/{listingId}/follow [post]
func (h *MarketHandler) Follow(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	res, err := h.engine.FollowListing(r.Context(), userID, chi.URLParam(r, "listingId"))
	writeResult(w, http.StatusOK, res, err)
}

package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mangaverse/backend/internal/models"
	"github.com/mangaverse/backend/internal/services"
)

const (
	defaultPageSize = 500
	maxPageSize     = 5000
)

// CatalogueWriter receives catalogue and identity updates from the content
// service.
type CatalogueWriter interface {
	PutWork(w models.Work)
	PutIdentity(id models.Identity)
}

// EntrySource is the ordered ledger stream.
type EntrySource interface {
	EntriesAfter(seq uint64, limit int) []models.LedgerEntry
}

// InternalHandler serves service-to-service routes: catalogue sync and the
// ledger export feed.
type InternalHandler struct {
	catalogue CatalogueWriter
	entries   EntrySource
	validator *services.ValidationHelper
}

func NewInternalHandler(catalogue CatalogueWriter, entries EntrySource) *InternalHandler {
	return &InternalHandler{
		catalogue: catalogue,
		entries:   entries,
		validator: services.NewValidationHelper(),
	}
}

func (h *InternalHandler) Routes(r chi.Router) {
	r.Put("/works/{workId}", h.PutWork)
	r.Put("/identities/{userId}", h.PutIdentity)
	r.Get("/ledger", h.ListEntries)
}

type putWorkRequest struct {
	CreatorID    string        `json:"creatorId" validate:"required"`
	Title        string        `json:"title" validate:"required"`
	MonthlyPrice models.Amount `json:"monthlyPrice" validate:"gte=0"`
	ChapterPrice models.Amount `json:"chapterPrice" validate:"gte=0"`
}

type putIdentityRequest struct {
	Role              models.Role `json:"role" validate:"required,oneof=regular creator"`
	IsApprovedCreator bool        `json:"isApprovedCreator"`
}

// PutWork registers or updates a work's catalogue entry
// @Summary Sync work
// @Tags Internal
// @Accept json
// @Produce json
// @Param X-Service-Token header string true "Service token"
// @Param workId path string true "Work ID"
// @Param request body putWorkRequest true "Work metadata"
// @Success 200 {object} models.Work
// @Failure 400 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Router /internal/works/{workId} [put]
func (h *InternalHandler) PutWork(w http.ResponseWriter, r *http.Request) {
	var req putWorkRequest
	if !h.validator.DecodeJSON(w, r, &req) {
		return
	}
	work := models.Work{
		ID:           chi.URLParam(r, "workId"),
		CreatorID:    req.CreatorID,
		Title:        req.Title,
		MonthlyPrice: req.MonthlyPrice,
		ChapterPrice: req.ChapterPrice,
	}
	h.catalogue.PutWork(work)
	services.WriteJSON(w, http.StatusOK, work)
}

// PutIdentity registers or updates a user's role
// @Summary Sync identity
// @Tags Internal
// @Accept json
// @Produce json
// @Param X-Service-Token header string true "Service token"
// @Param userId path string true "User ID"
// @Param request body putIdentityRequest true "Role and approval"
// @Success 200 {object} models.Identity
// @Failure 400 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Router /internal/identities/{userId} [put]
func (h *InternalHandler) PutIdentity(w http.ResponseWriter, r *http.Request) {
	var req putIdentityRequest
	if !h.validator.DecodeJSON(w, r, &req) {
		return
	}
	id := models.Identity{
		UserID:            chi.URLParam(r, "userId"),
		Role:              req.Role,
		IsApprovedCreator: req.Role == models.RoleCreator && req.IsApprovedCreator,
	}
	h.catalogue.PutIdentity(id)
	services.WriteJSON(w, http.StatusOK, id)
}

// ListEntries pages through the ledger in commit order
// @Summary Ledger feed
// @Description Entries with sequence greater than after, oldest first
// @Tags Internal
// @Produce json
// @Param X-Service-Token header string true "Service token"
// @Param after query int false "Last sequence already seen"
// @Param limit query int false "Page size (default 500, max 5000)"
// @Success 200 {array} models.LedgerEntry
// @Failure 400 {object} services.ErrorResponse
// @Router /internal/ledger [get]
func (h *InternalHandler) ListEntries(w http.ResponseWriter, r *http.Request) {
	after, ok := queryInt(r, "after", 0)
	if !ok {
		services.SendErrorResponse(w, "after must be a non-negative integer", http.StatusBadRequest, nil)
		return
	}
	limit, ok := queryInt(r, "limit", defaultPageSize)
	if !ok || limit == 0 {
		services.SendErrorResponse(w, "limit must be a positive integer", http.StatusBadRequest, nil)
		return
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	entries := h.entries.EntriesAfter(uint64(after), int(limit))
	if entries == nil {
		entries = []models.LedgerEntry{}
	}
	services.WriteJSON(w, http.StatusOK, entries)
}

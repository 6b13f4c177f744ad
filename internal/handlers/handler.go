// Package handlers exposes the ledger engine over HTTP.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/mangaverse/backend/internal/middleware"
	"github.com/mangaverse/backend/internal/models"
	"github.com/mangaverse/backend/internal/services"
)

// currentUser returns the authenticated caller or writes a 401.
func currentUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return "", false
	}
	return userID, true
}

// ownAccount maps the account selector of a request onto the caller's account.
func ownAccount(userID, selector string) models.AccountID {
	if selector == "earnings" {
		return models.EarningsID(userID)
	}
	return models.WalletID(userID)
}

// queryInt parses an optional non-negative integer query parameter.
func queryInt(r *http.Request, name string, def int64) (int64, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

// writeResult sends the outcome of an engine operation or its rejection.
func writeResult(w http.ResponseWriter, status int, res *services.Result, err error) {
	if err != nil {
		services.SendEngineError(w, err)
		return
	}
	services.WriteJSON(w, status, res)
}

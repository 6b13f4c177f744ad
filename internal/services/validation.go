package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/mangaverse/backend/internal/apperrors"
)

const maxBodyBytes = 1_048_576 // 1 MB

// ErrorResponse represents error response structure
type ErrorResponse struct {
	Error   string         `json:"error"`             // Error message
	Kind    string         `json:"kind,omitempty"`    // Engine error kind
	Details map[string]any `json:"details,omitempty"` // Validation or rejection details
}

// ValidationHelper provides shared validation functionality
type ValidationHelper struct {
	validator *validator.Validate
}

// NewValidationHelper creates a new validation helper
func NewValidationHelper() *ValidationHelper {
	return &ValidationHelper{
		validator: validator.New(),
	}
}

// ValidateStruct validates a struct and returns validation errors
func (vh *ValidationHelper) ValidateStruct(s any) error {
	return vh.validator.Struct(s)
}

// DecodeJSON reads a single JSON object into dst and validates it. It writes
// the error response itself and reports whether the handler may continue.
func (vh *ValidationHelper) DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return false
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return false
	}
	if err := vh.ValidateStruct(dst); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return false
	}
	return true
}

// SendErrorResponse sends a JSON error response
func SendErrorResponse(w http.ResponseWriter, message string, statusCode int, validationErr error) {
	errorResp := ErrorResponse{Error: message}

	var fieldErrs validator.ValidationErrors
	if errors.As(validationErr, &fieldErrs) {
		errorResp.Details = make(map[string]any, len(fieldErrs))
		for _, err := range fieldErrs {
			errorResp.Details[err.Field()] = fmt.Sprintf("Field Validation Failed on '%s' tag", err.Tag())
		}
	}

	writeJSON(w, statusCode, errorResp)
}

// SendEngineError maps an engine rejection to a status code and writes its
// kind and details.
func SendEngineError(w http.ResponseWriter, err error) {
	kind := apperrors.KindOf(err)
	status := StatusForKind(kind)

	resp := ErrorResponse{Error: err.Error(), Kind: string(kind)}
	if status == http.StatusInternalServerError {
		resp.Error = "Internal server error"
	}
	if details := apperrors.DetailsOf(err); len(details) > 0 {
		resp.Details = details
	}
	writeJSON(w, status, resp)
}

// StatusForKind maps engine error kinds to HTTP status codes.
func StatusForKind(kind apperrors.Kind) int {
	switch kind {
	case apperrors.KindNotFound:
		return http.StatusNotFound
	case apperrors.KindRoleNotPermitted, apperrors.KindCreatorNotApproved:
		return http.StatusForbidden
	case apperrors.KindInvalidOffer, apperrors.KindInvalidAmount, apperrors.KindInvalidRequest, apperrors.KindPriceMismatch:
		return http.StatusBadRequest
	case apperrors.KindInsufficientBalance:
		return http.StatusPaymentRequired
	case apperrors.KindAlreadyListed, apperrors.KindInsufficientUnlistedShares, apperrors.KindNoOpportunityAvailable,
		apperrors.KindShareCapExceeded, apperrors.KindSubscriptionRequirementNotMet, apperrors.KindListingUnavailable,
		apperrors.KindDividendsPending:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// WriteJSON sends v with the given status.
func WriteJSON(w http.ResponseWriter, statusCode int, v any) {
	writeJSON(w, statusCode, v)
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

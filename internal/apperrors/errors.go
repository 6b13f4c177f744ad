// Package apperrors defines the error kinds returned by the ledger and
// investment engine. Every validation failure is an *Error carrying a Kind
// and enough structured detail for a client to explain the rejection.
package apperrors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind identifies a class of engine failure.
type Kind string

const (
	KindInsufficientBalance           Kind = "insufficient_balance"
	KindInvalidOffer                  Kind = "invalid_offer"
	KindAlreadyListed                 Kind = "already_listed"
	KindInsufficientUnlistedShares    Kind = "insufficient_unlisted_shares"
	KindNoOpportunityAvailable        Kind = "no_opportunity_available"
	KindShareCapExceeded              Kind = "share_cap_exceeded"
	KindSubscriptionRequirementNotMet Kind = "subscription_requirement_not_met"
	KindListingUnavailable            Kind = "listing_unavailable"
	KindDividendsPending              Kind = "dividends_pending"
	KindCreatorNotApproved            Kind = "creator_not_approved"
	KindImbalancedBatch               Kind = "imbalanced_batch"
	KindRoleNotPermitted              Kind = "role_not_permitted"
	KindPriceMismatch                 Kind = "price_mismatch"
	KindInvalidAmount                 Kind = "invalid_amount"
	KindNotFound                      Kind = "not_found"
	KindInvalidRequest                Kind = "invalid_request"
)

// Sentinels for use with errors.Is. Matching is by Kind only.
var (
	ErrInsufficientBalance           = &Error{Kind: KindInsufficientBalance}
	ErrInvalidOffer                  = &Error{Kind: KindInvalidOffer}
	ErrAlreadyListed                 = &Error{Kind: KindAlreadyListed}
	ErrInsufficientUnlistedShares    = &Error{Kind: KindInsufficientUnlistedShares}
	ErrNoOpportunityAvailable        = &Error{Kind: KindNoOpportunityAvailable}
	ErrShareCapExceeded              = &Error{Kind: KindShareCapExceeded}
	ErrSubscriptionRequirementNotMet = &Error{Kind: KindSubscriptionRequirementNotMet}
	ErrListingUnavailable            = &Error{Kind: KindListingUnavailable}
	ErrDividendsPending              = &Error{Kind: KindDividendsPending}
	ErrCreatorNotApproved            = &Error{Kind: KindCreatorNotApproved}
	ErrImbalancedBatch               = &Error{Kind: KindImbalancedBatch}
	ErrRoleNotPermitted              = &Error{Kind: KindRoleNotPermitted}
	ErrPriceMismatch                 = &Error{Kind: KindPriceMismatch}
	ErrInvalidAmount                 = &Error{Kind: KindInvalidAmount}
	ErrNotFound                      = &Error{Kind: KindNotFound}
	ErrInvalidRequest                = &Error{Kind: KindInvalidRequest}
)

// Details is the structured payload attached to a rejection.
type Details map[string]any

// Error is a domain error with a kind, a human readable message and details.
type Error struct {
	Kind    Kind
	Message string
	Details Details
}

// New creates an error of the given kind.
func New(kind Kind, details Details, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Details: details}
}

// Error returns the formatted error string, details sorted by key.
func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}

	if len(e.Details) == 0 {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}

	keys := make([]string, 0, len(e.Details))
	for k := range e.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, e.Details[k]))
	}

	return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, strings.Join(parts, ", "))
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return ""
}

// DetailsOf returns the details of the first *Error in err's chain.
func DetailsOf(err error) Details {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Details
	}
	return nil
}

// IsFatal reports whether err signals an internal consistency defect that
// must abort the operation and be surfaced loudly.
func IsFatal(err error) bool {
	return errors.Is(err, ErrImbalancedBatch)
}

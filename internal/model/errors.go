package model

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the cart error taxonomy.
// Use errors.Is() to check against these.
var (
	ErrTransport        = errors.New("transport error")
	ErrRemoteValidation = errors.New("remote validation error")
	ErrNotFound         = errors.New("not found")
	ErrConsistency      = errors.New("consistency error")
	ErrNoCart           = errors.New("no cart")
	ErrInvalidRequest   = errors.New("invalid request")
	ErrInFlight         = errors.New("operation already in flight")
	ErrCallForPricing   = errors.New("call for pricing")
	ErrSelectionUnknown = errors.New("tree selection unknown")
)

// APIError is the structured error carried across the gateway, engine and
// HTTP layers. Implements error interface and supports unwrapping.
type APIError struct {
	Code       string   `json:"code"`
	Message    string   `json:"message"`
	Reasons    []string `json:"reasons,omitempty"` // Remote user-facing reasons, verbatim
	StatusCode int      `json:"-"`                 // HTTP status, not serialized
	Err        error    `json:"-"`                 // Wrapped error, not serialized
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// NewTransportError creates a 502 error for network failures and timeouts.
// reason is a short machine-readable cause such as "timeout" or "throttled".
func NewTransportError(reason string, err error) *APIError {
	wrapped := ErrTransport
	if err != nil {
		wrapped = fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return &APIError{
		Code:       "TRANSPORT_ERROR",
		Message:    reason,
		StatusCode: 502,
		Err:        wrapped,
	}
}

// NewRemoteValidationError creates a 422 error when the store rejected a mutation.
// Reasons are the store's own messages and are shown to the buyer unchanged.
func NewRemoteValidationError(reasons []string) *APIError {
	msg := "the store rejected the request"
	if len(reasons) > 0 {
		msg = strings.Join(reasons, "; ")
	}
	return &APIError{
		Code:       "REMOTE_VALIDATION",
		Message:    msg,
		Reasons:    reasons,
		StatusCode: 422,
		Err:        ErrRemoteValidation,
	}
}

// NewNotFoundError creates a 404 error for missing resources.
func NewNotFoundError(resource string) *APIError {
	return &APIError{
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: 404,
		Err:        ErrNotFound,
	}
}

// NewConsistencyError reports a write the store acknowledged but a later read
// did not reflect.
func NewConsistencyError(what string) *APIError {
	return &APIError{
		Code:       "CONSISTENCY_ERROR",
		Message:    fmt.Sprintf("%s not visible in cart after write", what),
		StatusCode: 503,
		Err:        ErrConsistency,
	}
}

// NewNoCartError creates a 409 error for line operations without a cart.
func NewNoCartError() *APIError {
	return &APIError{
		Code:       "NO_CART",
		Message:    "no cart available",
		StatusCode: 409,
		Err:        ErrNoCart,
	}
}

// NewValidationError creates a 400 error for invalid input.
func NewValidationError(field, reason string) *APIError {
	return &APIError{
		Code:       "VALIDATION_ERROR",
		Message:    fmt.Sprintf("invalid %s: %s", field, reason),
		StatusCode: 400,
		Err:        ErrInvalidRequest,
	}
}

// NewInFlightError creates a 409 error for a duplicate mutation.
func NewInFlightError(what string) *APIError {
	return &APIError{
		Code:       "IN_FLIGHT",
		Message:    fmt.Sprintf("%s is already being added", what),
		StatusCode: 409,
		Err:        ErrInFlight,
	}
}

// NewCallForPricingError marks a selection that can only be bought by phone.
func NewCallForPricingError(treeType, size string) *APIError {
	return &APIError{
		Code:       "CALL_FOR_PRICING",
		Message:    fmt.Sprintf("please contact us for pricing on %s %s", treeType, size),
		StatusCode: 422,
		Err:        ErrCallForPricing,
	}
}

// NewSelectionUnknownError is returned when no tree selection can be derived
// from the cart or the last-known selection.
func NewSelectionUnknownError() *APIError {
	return &APIError{
		Code:       "SELECTION_UNKNOWN",
		Message:    "tree selection unknown",
		StatusCode: 409,
		Err:        ErrSelectionUnknown,
	}
}

// NewInternalError creates a 500 error for unexpected failures.
func NewInternalError(err error) *APIError {
	return &APIError{
		Code:       "INTERNAL_ERROR",
		Message:    "an internal error occurred",
		StatusCode: 500,
		Err:        err,
	}
}

// Retryable reports whether the sync engine may retry after err.
// Only transport failures and unconfirmed writes qualify.
func Retryable(err error) bool {
	return errors.Is(err, ErrTransport) || errors.Is(err, ErrConsistency)
}

// UserMessage turns err into one short, actionable sentence for the buyer.
// Raw payloads never reach the UI.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var apiErr *APIError
	switch {
	case errors.Is(err, ErrRemoteValidation):
		if errors.As(err, &apiErr) && len(apiErr.Reasons) > 0 {
			return strings.Join(apiErr.Reasons, " ")
		}
		return "The store could not accept this selection. Please choose another option."
	case errors.Is(err, ErrTransport):
		return "We could not reach the store. Please check your connection and try again."
	case errors.Is(err, ErrConsistency):
		return "Your cart did not update in time. Please try again."
	case errors.Is(err, ErrNoCart):
		return "Your cart is empty. Please choose a tree first."
	case errors.Is(err, ErrNotFound):
		return "That item is no longer available. Please refresh and try again."
	case errors.Is(err, ErrInFlight):
		return "We are still adding that item. Please wait a moment."
	case errors.Is(err, ErrCallForPricing):
		if errors.As(err, &apiErr) {
			return strings.ToUpper(apiErr.Message[:1]) + apiErr.Message[1:] + "."
		}
		return "Please contact us for pricing on this size."
	case errors.Is(err, ErrSelectionUnknown):
		return "We could not find your tree in the cart. Please go back and choose your tree again."
	case errors.Is(err, ErrInvalidRequest):
		if errors.As(err, &apiErr) {
			return strings.ToUpper(apiErr.Message[:1]) + apiErr.Message[1:] + "."
		}
		return "That request was not valid."
	default:
		return "Something went wrong. Please try again."
	}
}

// Package errors provides common, reusable error values and helpers.
package errors

import (
	"errors"
	"fmt"
)

// Common errors
var (
	// Quote / routing errors
	ErrNoAnchorAvailable      = errors.New("no payout anchor available for corridor")
	ErrUnsupportedChain       = errors.New("settlement asset not available on source chain")
	ErrUnsupportedCurrency    = errors.New("no exchange rate configured for currency")
	ErrInvalidDeliveryMethod  = errors.New("invalid or unsupported delivery method")
	ErrAmountBelowMinimum     = errors.New("amount below delivery method minimum")
	ErrAmountAboveMaximum     = errors.New("amount above delivery method maximum")
	ErrInvalidRecipientFields = errors.New("recipient details failed validation")

	// Execution errors
	ErrInvalidAddress     = errors.New("address does not match expected format")
	ErrOrderNotFound      = errors.New("order not found")
	ErrOrderAlreadyExists = errors.New("order already exists")
	ErrOrderFinalized     = errors.New("order already in a terminal state")

	// Aggregator errors
	ErrAggregatorBadKey     = errors.New("aggregator rejected API key")
	ErrAggregatorRateLimit  = errors.New("aggregator rate limit exceeded")
	ErrAggregatorBadRequest = errors.New("aggregator rejected request parameters")
	ErrRouteNotFound        = errors.New("no swap route found for token pair")

	// Anchor errors
	ErrAnchorAuthFailed  = errors.New("anchor authentication failed")
	ErrAnchorUnsupported = errors.New("anchor does not support requested asset")
)

// CodedError carries a machine-readable code alongside the message. Outbound
// clients return these so the delivery-error classifier can match on codes
// like ECONNREFUSED or RATE_EXPIRED in addition to message text.
type CodedError struct {
	Code    string
	Message string
}

func (e *CodedError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewCoded builds a CodedError.
func NewCoded(code, format string, args ...interface{}) *CodedError {
	return &CodedError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Code extracts the machine code from err, or "" if it carries none.
func Code(err error) string {
	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code
	}
	return ""
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

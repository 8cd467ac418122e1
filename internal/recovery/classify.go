// Package recovery maps delivery failures into a closed error taxonomy and
// schedules bounded retries per classified kind.
package recovery

import (
	"context"
	stderrors "errors"
	"net"
	"strings"
	"time"

	"remit/pkg/errors"
)

// ErrorKind is the closed taxonomy every delivery failure folds into.
type ErrorKind string

const (
	KindInsufficientFunds ErrorKind = "INSUFFICIENT_FUNDS"
	KindInvalidRecipient  ErrorKind = "INVALID_RECIPIENT"
	KindKycRequired       ErrorKind = "KYC_REQUIRED"
	KindComplianceBlocked ErrorKind = "COMPLIANCE_BLOCKED"
	KindAnchorUnavailable ErrorKind = "ANCHOR_UNAVAILABLE"
	KindRateExpired       ErrorKind = "RATE_EXPIRED"
	KindLimitExceeded     ErrorKind = "LIMIT_EXCEEDED"
	KindTimeout           ErrorKind = "TIMEOUT"
	KindNetworkError      ErrorKind = "NETWORK_ERROR"
	KindTechnicalError    ErrorKind = "TECHNICAL_ERROR"
)

// DeliveryError is the classified form of a raw failure. Message keeps the
// internal detail for logs; UserMessage is the only text surfaced to callers.
type DeliveryError struct {
	Kind              ErrorKind
	Message           string
	Code              string
	Retryable         bool
	UserMessage       string
	UserAction        string
	ResolutionMinutes int
}

func (e *DeliveryError) Error() string {
	return string(e.Kind) + ": " + e.Message
}

// Fixed user-facing strings per kind. Raw internal error text never reaches
// the caller.
var userMessages = map[ErrorKind]string{
	KindInsufficientFunds: "Insufficient funds to complete the transfer.",
	KindInvalidRecipient:  "Recipient details are invalid. Please review and correct them.",
	KindKycRequired:       "Additional identity verification is required before this transfer can proceed.",
	KindComplianceBlocked: "This transfer was blocked by a compliance check and cannot be completed.",
	KindAnchorUnavailable: "The payout provider is temporarily unavailable. Your transfer will be retried.",
	KindRateExpired:       "The quoted exchange rate expired. Retrying with a fresh rate.",
	KindLimitExceeded:     "This transfer exceeds the allowed limit for the selected payout method.",
	KindTimeout:           "The transfer timed out while waiting for a confirmation. It will be retried.",
	KindNetworkError:      "A network problem interrupted the transfer. It will be retried.",
	KindTechnicalError:    "An unexpected technical problem occurred. Our team has been notified.",
}

var userActions = map[ErrorKind]string{
	KindInsufficientFunds: "Top up the source wallet and try again.",
	KindInvalidRecipient:  "Correct the recipient details and submit a new transfer.",
	KindKycRequired:       "Complete identity verification with the payout provider.",
	KindComplianceBlocked: "Contact support for a refund.",
	KindLimitExceeded:     "Split the transfer into smaller amounts or choose another payout method.",
}

// networkCodePrefixes cover the generic machine-code family that is network
// flavoured but not one of the specifically handled codes.
var networkCodePrefixes = []string{"ECONN", "ENET", "EHOST", "EAI_", "EPIPE", "ESERVER"}

// Classify folds an arbitrary failure into the taxonomy. Matching is
// deterministic and ordered; the first rule that hits wins, so an error whose
// message mentions "insufficient" classifies as InsufficientFunds even when
// it also carries a network code.
func Classify(err error) *DeliveryError {
	// Already-classified failures keep their original kind.
	var classified *DeliveryError
	if stderrors.As(err, &classified) {
		return classified
	}

	msg := err.Error()
	lower := strings.ToLower(msg)
	code := errors.Code(err)

	// Transport-level timeouts carry no code of their own.
	var netErr net.Error
	if code == "" {
		if stderrors.Is(err, context.DeadlineExceeded) || (stderrors.As(err, &netErr) && netErr.Timeout()) {
			code = "ETIMEDOUT"
		}
	}

	switch {
	case strings.Contains(lower, "insufficient") || code == "INSUFFICIENT_BALANCE":
		return build(KindInsufficientFunds, msg, code, true, 15)
	case strings.Contains(lower, "invalid recipient") || code == "INVALID_DEST":
		return build(KindInvalidRecipient, msg, code, false, 0)
	case strings.Contains(lower, "kyc") || code == "NEEDS_INFO":
		return build(KindKycRequired, msg, code, false, 0)
	case strings.Contains(lower, "compliance") || strings.Contains(lower, "blocked"):
		return build(KindComplianceBlocked, msg, code, false, 0)
	case code == "ECONNREFUSED" || code == "ENOTFOUND":
		return build(KindAnchorUnavailable, msg, code, true, 30)
	case strings.Contains(lower, "rate expired") || code == "RATE_EXPIRED":
		return build(KindRateExpired, msg, code, true, 0)
	case strings.Contains(lower, "limit exceeded") || code == "LIMIT_EXCEEDED":
		return build(KindLimitExceeded, msg, code, false, 0)
	case code == "ETIMEDOUT" || code == "ECONNABORTED":
		return build(KindTimeout, msg, code, true, 5)
	case hasNetworkPrefix(code):
		return build(KindNetworkError, msg, code, true, 10)
	default:
		return build(KindTechnicalError, msg, code, true, 60)
	}
}

func build(kind ErrorKind, msg, code string, retryable bool, resolutionMinutes int) *DeliveryError {
	return &DeliveryError{
		Kind:              kind,
		Message:           msg,
		Code:              code,
		Retryable:         retryable,
		UserMessage:       userMessages[kind],
		UserAction:        userActions[kind],
		ResolutionMinutes: resolutionMinutes,
	}
}

func hasNetworkPrefix(code string) bool {
	for _, p := range networkCodePrefixes {
		if strings.HasPrefix(code, p) {
			return true
		}
	}
	return false
}

// RetryPolicy bounds the retry schedule for one error kind.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Multiplier   int64
	MaxDelay     time.Duration
}

// DefaultPolicy is the backoff applied to retryable kinds without a
// kind-specific override: 3 attempts, 5s initial delay doubling up to 5m.
func DefaultPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: 5 * time.Second,
		Multiplier:   2,
		MaxDelay:     5 * time.Minute,
	}
}

// PolicyFor maps a classified kind to its retry policy. Non-retryable kinds
// get zero attempts; the caller routes those to the refund path instead.
func PolicyFor(kind ErrorKind, retryable bool) RetryPolicy {
	return policyFor(kind, retryable, DefaultPolicy())
}

func policyFor(kind ErrorKind, retryable bool, def RetryPolicy) RetryPolicy {
	switch {
	case kind == KindRateExpired:
		return RetryPolicy{MaxAttempts: 1, InitialDelay: 0, Multiplier: def.Multiplier, MaxDelay: def.MaxDelay}
	case kind == KindComplianceBlocked, kind == KindKycRequired, !retryable:
		return RetryPolicy{MaxAttempts: 0}
	default:
		return def
	}
}

// DelayFor returns the wait before the given attempt (1-based): initial delay
// doubled per prior attempt, capped at MaxDelay.
func (p RetryPolicy) DelayFor(attempt int) time.Duration {
	if attempt <= 1 {
		return p.InitialDelay
	}
	d := p.InitialDelay
	for i := 1; i < attempt; i++ {
		d *= time.Duration(p.Multiplier)
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	return d
}

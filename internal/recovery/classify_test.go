package recovery

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"remit/pkg/errors"
)

func TestClassify_PriorityOrder(t *testing.T) {
	// "insufficient" in the message must win over the network code.
	derr := Classify(errors.NewCoded("ECONNREFUSED", "insufficient balance on source wallet"))

	assert.Equal(t, KindInsufficientFunds, derr.Kind)
	assert.True(t, derr.Retryable)
	assert.Equal(t, 15, derr.ResolutionMinutes)
}

func TestClassify_ByMessageAndCode(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		kind      ErrorKind
		retryable bool
	}{
		{"insufficient by code", errors.NewCoded("INSUFFICIENT_BALANCE", "not enough"), KindInsufficientFunds, true},
		{"invalid recipient by message", fmt.Errorf("invalid recipient account number"), KindInvalidRecipient, false},
		{"invalid recipient by code", errors.NewCoded("INVALID_DEST", "account rejected"), KindInvalidRecipient, false},
		{"kyc by message", fmt.Errorf("KYC verification pending"), KindKycRequired, false},
		{"kyc by code", errors.NewCoded("NEEDS_INFO", "more documents required"), KindKycRequired, false},
		{"compliance", fmt.Errorf("transfer blocked by compliance screening"), KindComplianceBlocked, false},
		{"anchor down", errors.NewCoded("ECONNREFUSED", "connection refused"), KindAnchorUnavailable, true},
		{"anchor dns", errors.NewCoded("ENOTFOUND", "host not found"), KindAnchorUnavailable, true},
		{"rate expired by message", fmt.Errorf("quoted rate expired"), KindRateExpired, true},
		{"rate expired by code", errors.NewCoded("RATE_EXPIRED", "stale"), KindRateExpired, true},
		{"limit exceeded", errors.NewCoded("LIMIT_EXCEEDED", "daily cap reached"), KindLimitExceeded, false},
		{"aggregator rate limit sentinel", errors.ErrAggregatorRateLimit, KindLimitExceeded, false},
		{"timeout", errors.NewCoded("ETIMEDOUT", "deadline exceeded"), KindTimeout, true},
		{"aborted", errors.NewCoded("ECONNABORTED", "connection dropped"), KindTimeout, true},
		{"generic network", errors.NewCoded("ENETUNREACH", "network unreachable"), KindNetworkError, true},
		{"server error", errors.NewCoded("ESERVER", "status 502"), KindNetworkError, true},
		{"default", fmt.Errorf("something odd happened"), KindTechnicalError, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			derr := Classify(tt.err)
			assert.Equal(t, tt.kind, derr.Kind)
			assert.Equal(t, tt.retryable, derr.Retryable)
		})
	}
}

func TestClassify_PassesThroughClassifiedErrors(t *testing.T) {
	original := Classify(errors.NewCoded("ECONNREFUSED", "connection refused"))

	// Re-classifying must not degrade the kind to the technical default.
	assert.Same(t, original, Classify(original))

	wrapped := fmt.Errorf("retry attempt failed: %w", original)
	assert.Same(t, original, Classify(wrapped))
}

func TestClassify_UserMessageNeverLeaksInternalText(t *testing.T) {
	derr := Classify(errors.NewCoded("ECONNREFUSED", "dial tcp 10.0.0.7:443: connect: connection refused"))

	assert.Equal(t, userMessages[KindAnchorUnavailable], derr.UserMessage)
	assert.NotContains(t, derr.UserMessage, "10.0.0.7")
}

func TestPolicyFor_RateExpired(t *testing.T) {
	policy := PolicyFor(KindRateExpired, true)

	assert.Equal(t, 1, policy.MaxAttempts)
	assert.Equal(t, time.Duration(0), policy.DelayFor(1))
}

func TestPolicyFor_NoRetryKinds(t *testing.T) {
	assert.Equal(t, 0, PolicyFor(KindComplianceBlocked, false).MaxAttempts)
	assert.Equal(t, 0, PolicyFor(KindKycRequired, false).MaxAttempts)
	assert.Equal(t, 0, PolicyFor(KindInvalidRecipient, false).MaxAttempts)
	assert.Equal(t, 0, PolicyFor(KindLimitExceeded, false).MaxAttempts)
}

func TestPolicyFor_DefaultBackoffSequence(t *testing.T) {
	policy := PolicyFor(KindTechnicalError, true)

	assert.Equal(t, 3, policy.MaxAttempts)
	assert.Equal(t, int64(5000), policy.DelayFor(1).Milliseconds())
	assert.Equal(t, int64(10000), policy.DelayFor(2).Milliseconds())
	assert.Equal(t, int64(20000), policy.DelayFor(3).Milliseconds())
}

func TestRetryPolicy_DelayCap(t *testing.T) {
	policy := PolicyFor(KindAnchorUnavailable, true)

	assert.Equal(t, int64(300000), policy.DelayFor(12).Milliseconds())
}

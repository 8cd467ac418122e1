package recovery

import (
	"context"
	"sync"
	"time"

	"remit/pkg/logger"
)

// ResumeFunc re-runs the failed pipeline stage for an order. It returns nil
// when the order reached completion.
type ResumeFunc func(ctx context.Context) error

// ExhaustedFunc fires once when the attempt budget runs out.
type ExhaustedFunc func(lastErr *DeliveryError)

type retryState struct {
	attempt int
	policy  RetryPolicy
	timer   *time.Timer
}

// stopTimer is nil-safe: a zero-delay timer can fire and reach Cancel before
// arm has assigned the timer field.
func (st *retryState) stopTimer() {
	if st.timer != nil {
		st.timer.Stop()
	}
}

// Scheduler tracks per-order retry bookkeeping: attempt count, the pending
// timer, and the policy selected at classification time. One order has at
// most one pending retry; scheduling while one is pending replaces it.
type Scheduler struct {
	mu      sync.Mutex
	pending map[string]*retryState

	defaultPolicy RetryPolicy
	logger        logger.Logger

	// newTimer is swapped out in tests to fire deterministically.
	newTimer func(d time.Duration, f func()) *time.Timer
}

func NewScheduler(log logger.Logger) *Scheduler {
	return NewSchedulerWithPolicy(DefaultPolicy(), log)
}

// NewSchedulerWithPolicy overrides the default backoff, typically from
// config. Kind-specific policies (rate expired, compliance) still apply.
func NewSchedulerWithPolicy(def RetryPolicy, log logger.Logger) *Scheduler {
	return &Scheduler{
		pending:       make(map[string]*retryState),
		defaultPolicy: def,
		logger:        log,
		newTimer:      time.AfterFunc,
	}
}

// Schedule plans retries for a classified failure. It returns false when the
// policy allows no attempts, in which case nothing was scheduled and the
// caller should route the order to the refund path instead.
func (s *Scheduler) Schedule(orderID string, derr *DeliveryError, resume ResumeFunc, onExhausted ExhaustedFunc) bool {
	policy := policyFor(derr.Kind, derr.Retryable, s.defaultPolicy)
	if policy.MaxAttempts == 0 {
		return false
	}

	s.mu.Lock()
	if prev, ok := s.pending[orderID]; ok {
		prev.stopTimer()
	}
	state := &retryState{attempt: 1, policy: policy}
	s.pending[orderID] = state
	s.mu.Unlock()

	s.arm(orderID, state, derr, resume, onExhausted)
	return true
}

// Cancel clears any pending retry for the order and resets its attempt
// counter. Safe to call for orders with nothing scheduled.
func (s *Scheduler) Cancel(orderID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if state, ok := s.pending[orderID]; ok {
		state.stopTimer()
		delete(s.pending, orderID)
	}
}

// Pending reports whether the order has a retry scheduled.
func (s *Scheduler) Pending(orderID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[orderID]
	return ok
}

func (s *Scheduler) arm(orderID string, state *retryState, derr *DeliveryError, resume ResumeFunc, onExhausted ExhaustedFunc) {
	delay := state.policy.DelayFor(state.attempt)

	s.logger.Info("Retry scheduled", map[string]interface{}{
		"order_id":     orderID,
		"error_kind":   derr.Kind,
		"attempt":      state.attempt,
		"max_attempts": state.policy.MaxAttempts,
		"delay_ms":     delay.Milliseconds(),
	})

	timer := s.newTimer(delay, func() {
		s.fire(orderID, state, derr, resume, onExhausted)
	})

	s.mu.Lock()
	state.timer = timer
	s.mu.Unlock()
}

func (s *Scheduler) fire(orderID string, state *retryState, derr *DeliveryError, resume ResumeFunc, onExhausted ExhaustedFunc) {
	s.mu.Lock()
	if s.pending[orderID] != state {
		// Cancelled or superseded between firing and running.
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	err := resume(context.Background())
	if err == nil {
		s.Cancel(orderID)
		s.logger.Info("Retry succeeded", map[string]interface{}{
			"order_id": orderID,
			"attempt":  state.attempt,
		})
		return
	}

	next := Classify(err)
	s.logger.Warn("Retry attempt failed", map[string]interface{}{
		"order_id":   orderID,
		"attempt":    state.attempt,
		"error_kind": next.Kind,
		"error":      err.Error(),
	})

	if !next.Retryable || state.attempt >= state.policy.MaxAttempts {
		s.Cancel(orderID)
		onExhausted(next)
		return
	}

	state.attempt++
	s.arm(orderID, state, next, resume, onExhausted)
}

package recovery

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"remit/pkg/errors"
	"remit/pkg/logger"
)

// fakeClock captures timer registrations so tests can fire retries
// deterministically without waiting out the backoff.
type fakeClock struct {
	delays []time.Duration
	fns    []func()
}

func (f *fakeClock) newTimer(d time.Duration, fn func()) *time.Timer {
	f.delays = append(f.delays, d)
	f.fns = append(f.fns, fn)
	t := time.NewTimer(time.Hour)
	t.Stop()
	return t
}

// fire runs the most recently armed timer.
func (f *fakeClock) fire() {
	fn := f.fns[len(f.fns)-1]
	fn()
}

func newTestScheduler() (*Scheduler, *fakeClock) {
	s := NewScheduler(logger.NewNop())
	clock := &fakeClock{}
	s.newTimer = clock.newTimer
	return s, clock
}

func TestScheduler_ZeroDelayTimerFiringInsideArm(t *testing.T) {
	s, _ := newTestScheduler()
	// time.AfterFunc with a zero delay may run the callback before the timer
	// handle is stored; running it inline reproduces that interleaving.
	s.newTimer = func(d time.Duration, fn func()) *time.Timer {
		fn()
		timer := time.NewTimer(time.Hour)
		timer.Stop()
		return timer
	}

	derr := Classify(errors.NewCoded("RATE_EXPIRED", "stale quote"))
	attempts := 0
	scheduled := s.Schedule("RMT-1", derr,
		func(ctx context.Context) error { attempts++; return nil },
		func(*DeliveryError) {})

	assert.True(t, scheduled)
	assert.Equal(t, 1, attempts)
	assert.False(t, s.Pending("RMT-1"))

	// Cancel after the inline firing must also be a no-op.
	s.Cancel("RMT-1")
}

func TestScheduler_ConfiguredDefaultPolicy(t *testing.T) {
	s := NewSchedulerWithPolicy(RetryPolicy{
		MaxAttempts:  2,
		InitialDelay: time.Second,
		Multiplier:   3,
		MaxDelay:     time.Minute,
	}, logger.NewNop())
	clock := &fakeClock{}
	s.newTimer = clock.newTimer

	derr := Classify(errors.NewCoded("ECONNREFUSED", "anchor unreachable"))
	attempts := 0
	exhausted := false
	s.Schedule("RMT-1", derr,
		func(ctx context.Context) error {
			attempts++
			return errors.NewCoded("ECONNREFUSED", "anchor still unreachable")
		},
		func(*DeliveryError) { exhausted = true })

	clock.fire()
	clock.fire()

	assert.Equal(t, 2, attempts)
	assert.True(t, exhausted)
	assert.Equal(t, []time.Duration{time.Second, 3 * time.Second}, clock.delays)
}

func TestScheduler_NonRetryableSchedulesNothing(t *testing.T) {
	s, clock := newTestScheduler()
	derr := Classify(fmt.Errorf("transfer blocked by compliance screening"))

	scheduled := s.Schedule("RMT-1", derr,
		func(ctx context.Context) error { return nil },
		func(*DeliveryError) {})

	assert.False(t, scheduled)
	assert.False(t, s.Pending("RMT-1"))
	assert.Empty(t, clock.fns)
}

func TestScheduler_RateExpiredSingleImmediateAttempt(t *testing.T) {
	s, clock := newTestScheduler()
	derr := Classify(errors.NewCoded("RATE_EXPIRED", "stale quote"))

	attempts := 0
	exhausted := false
	scheduled := s.Schedule("RMT-1", derr,
		func(ctx context.Context) error {
			attempts++
			return errors.NewCoded("RATE_EXPIRED", "still stale")
		},
		func(*DeliveryError) { exhausted = true })

	assert.True(t, scheduled)
	assert.Equal(t, []time.Duration{0}, clock.delays)

	clock.fire()

	assert.Equal(t, 1, attempts)
	assert.True(t, exhausted)
	assert.False(t, s.Pending("RMT-1"))
}

func TestScheduler_DefaultBackoffAndExhaustion(t *testing.T) {
	s, clock := newTestScheduler()
	derr := Classify(errors.NewCoded("ECONNREFUSED", "anchor unreachable"))

	attempts := 0
	var lastErr *DeliveryError
	s.Schedule("RMT-1", derr,
		func(ctx context.Context) error {
			attempts++
			return errors.NewCoded("ECONNREFUSED", "anchor still unreachable")
		},
		func(e *DeliveryError) { lastErr = e })

	clock.fire()
	clock.fire()
	clock.fire()

	assert.Equal(t, 3, attempts)
	assert.Equal(t, []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second}, clock.delays)
	assert.NotNil(t, lastErr)
	assert.Equal(t, KindAnchorUnavailable, lastErr.Kind)
	assert.False(t, s.Pending("RMT-1"))
}

func TestScheduler_SuccessStopsRetrying(t *testing.T) {
	s, clock := newTestScheduler()
	derr := Classify(errors.NewCoded("ETIMEDOUT", "bridge timeout"))

	attempts := 0
	exhausted := false
	s.Schedule("RMT-1", derr,
		func(ctx context.Context) error {
			attempts++
			if attempts == 2 {
				return nil
			}
			return errors.NewCoded("ETIMEDOUT", "bridge timeout")
		},
		func(*DeliveryError) { exhausted = true })

	clock.fire()
	clock.fire()

	assert.Equal(t, 2, attempts)
	assert.False(t, exhausted)
	assert.False(t, s.Pending("RMT-1"))
	assert.Len(t, clock.fns, 2)
}

func TestScheduler_NonRetryableFailureDuringRetryExhausts(t *testing.T) {
	s, clock := newTestScheduler()
	derr := Classify(errors.NewCoded("ECONNREFUSED", "anchor unreachable"))

	var lastErr *DeliveryError
	s.Schedule("RMT-1", derr,
		func(ctx context.Context) error {
			return errors.NewCoded("NEEDS_INFO", "KYC required for recipient")
		},
		func(e *DeliveryError) { lastErr = e })

	clock.fire()

	assert.NotNil(t, lastErr)
	assert.Equal(t, KindKycRequired, lastErr.Kind)
	assert.False(t, s.Pending("RMT-1"))
	assert.Len(t, clock.fns, 1)
}

func TestScheduler_CancelClearsPendingRetry(t *testing.T) {
	s, clock := newTestScheduler()
	derr := Classify(errors.NewCoded("ECONNREFUSED", "anchor unreachable"))

	attempts := 0
	s.Schedule("RMT-1", derr,
		func(ctx context.Context) error { attempts++; return nil },
		func(*DeliveryError) {})

	s.Cancel("RMT-1")
	assert.False(t, s.Pending("RMT-1"))

	// A late firing of the cancelled timer must not run the resume.
	clock.fire()
	assert.Equal(t, 0, attempts)
}

// Package circuitbreaker stops hammering an unreachable chain endpoint. It opens after a run of
// consecutive connection failures and lets a probe through once the cooldown has passed.
package circuitbreaker

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourorg/auroraswap-apr/internal/model"
)

// State represents the current state of the circuit breaker
type State int

// Circuit breaker states
const (
	StateClosed   State = iota // Normal operation
	StateOpen                  // Tripped, runs are rejected
	StateHalfOpen              // Probing whether the endpoint recovered
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Thresholds defines when the circuit breaker trips
type Thresholds struct {
	// Consecutive connection failures before opening
	MaxFailures int `json:"max_failures"`
}

// CircuitBreaker guards pipeline runs against an endpoint that keeps refusing connections.
// Only ConnectionError failures count; any other outcome proves the endpoint answers.
type CircuitBreaker struct {
	thresholds Thresholds

	state    State
	lastTrip time.Time

	// Duration before a probe is let through
	resetDelay time.Duration

	mu sync.RWMutex

	failures int

	// Count of consecutive successful runs in HalfOpen state
	successCount int

	// Number of successful runs required to close circuit
	successThreshold int

	// Set while a HalfOpen probe run has been admitted and not yet recorded
	probeInFlight bool

	lastGood   *model.APRResult
	lastGoodAt time.Time

	onTripCallback func(reason string)
}

// New creates a new CircuitBreaker with the provided thresholds
func New(t Thresholds) *CircuitBreaker {
	if t.MaxFailures < 1 {
		t.MaxFailures = 1
	}
	return &CircuitBreaker{
		thresholds:       t,
		state:            StateClosed,
		resetDelay:       30 * time.Second,
		successThreshold: 1,
	}
}

// WithResetDelay sets a custom reset delay and returns the circuit breaker
func (cb *CircuitBreaker) WithResetDelay(delay time.Duration) *CircuitBreaker {
	cb.resetDelay = delay
	return cb
}

// WithSuccessThreshold sets the number of successful runs needed to close the circuit
func (cb *CircuitBreaker) WithSuccessThreshold(threshold int) *CircuitBreaker {
	cb.successThreshold = threshold
	return cb
}

// WithTripCallback sets a callback function that is called when the circuit trips
func (cb *CircuitBreaker) WithTripCallback(callback func(reason string)) *CircuitBreaker {
	cb.onTripCallback = callback
	return cb
}

// Allow reports whether a run may proceed. While open it returns a ConnectionError
// so callers surface the same kind the tripping failures had. In HalfOpen state only
// one probe run is admitted at a time; its Record decides the next state.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		sinceTrip := time.Since(cb.lastTrip)
		if sinceTrip <= cb.resetDelay {
			retryIn := cb.resetDelay - sinceTrip
			return model.Errorf(model.KindConnection, "circuit breaker",
				"chain endpoint marked unreachable, retry in %s", retryIn.Round(time.Second))
		}
		cb.transitionToHalfOpen()
		cb.probeInFlight = true
		return nil
	case StateHalfOpen:
		if cb.probeInFlight {
			return model.Errorf(model.KindConnection, "circuit breaker",
				"chain endpoint is being probed, retry shortly")
		}
		cb.probeInFlight = true
		return nil
	default:
		return nil
	}
}

// Record feeds the outcome of a run back into the breaker.
func (cb *CircuitBreaker) Record(result model.APRResult, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.probeInFlight = false

	if err != nil && model.KindOf(err) == model.KindConnection {
		cb.failures++
		if cb.state == StateHalfOpen {
			cb.trip(fmt.Sprintf("probe failed: %v", err))
			return
		}
		if cb.state == StateClosed && cb.failures >= cb.thresholds.MaxFailures {
			cb.trip(fmt.Sprintf("%d consecutive connection failures, last: %v", cb.failures, err))
		}
		return
	}

	cb.failures = 0
	if err == nil {
		r := result
		cb.lastGood = &r
		cb.lastGoodAt = time.Now()
	}

	if cb.state == StateHalfOpen {
		cb.successCount++
		if cb.successCount >= cb.successThreshold {
			cb.state = StateClosed
			cb.successCount = 0
			logrus.Info("Circuit breaker closed: chain endpoint has recovered")
		}
	}
}

// GetState returns the current state of the circuit breaker
func (cb *CircuitBreaker) GetState() State {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// Failures returns the current run of consecutive connection failures
func (cb *CircuitBreaker) Failures() int {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.failures
}

// Reset forcibly resets the circuit breaker to closed state
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.failures = 0
	cb.successCount = 0
	cb.probeInFlight = false
	logrus.Info("Circuit breaker manually reset to closed state")
}

// LastGood returns the most recent successful result and when it was recorded
func (cb *CircuitBreaker) LastGood() (model.APRResult, time.Time, bool) {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	if cb.lastGood == nil {
		return model.APRResult{}, time.Time{}, false
	}
	return *cb.lastGood, cb.lastGoodAt, true
}

// transitionToHalfOpen changes the circuit state to half-open for testing recovery.
// Caller holds the lock.
func (cb *CircuitBreaker) transitionToHalfOpen() {
	cb.state = StateHalfOpen
	cb.successCount = 0
	logrus.Info("Circuit breaker half-open: probing chain endpoint")
}

// trip sets the circuit breaker to open state. Caller holds the lock.
func (cb *CircuitBreaker) trip(reason string) {
	cb.state = StateOpen
	cb.lastTrip = time.Now()
	cb.successCount = 0
	cb.probeInFlight = false
	logrus.Warnf("Circuit breaker tripped: %s", reason)

	if cb.onTripCallback != nil {
		go cb.onTripCallback(reason)
	}
}

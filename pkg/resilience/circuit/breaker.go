// Package circuit provides per-backend circuit breakers with automatic
// recovery probing.
package circuit

import (
	"fmt"
	"sync"
	"time"
)

// State represents the current state of a circuit breaker.
type State int

// Circuit breaker states for managing backend failure patterns.
const (
	Closed   State = iota // Normal operation
	Open                  // Failing, reject requests
	HalfOpen              // Testing if backend recovered
)

func (s State) String() string {
	switch s {
	case Closed:
		return "CLOSED"
	case Open:
		return "OPEN"
	case HalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Classifier decides whether an error counts toward breaker thresholds.
// Unrelated caller bugs (bad prompts, auth) must not trip the breaker.
type Classifier func(error) bool

// Config defines circuit breaker behavior.
//
//nolint:govet // Logical field grouping preferred over memory alignment
type Config struct {
	FailureThreshold int               `json:"failure_threshold"`   // Consecutive failures before opening
	SuccessThreshold int               `json:"success_threshold"`   // Consecutive half-open successes to close
	RecoveryTimeout  time.Duration     `json:"recovery_timeout"`    // Wait before probing recovery
	HalfOpenMaxCalls int               `json:"half_open_max_calls"` // Concurrent probe cap while half-open
	IsFailure        Classifier        `json:"-"`                   // nil counts every error
	Fallback         func(error) error `json:"-"`                   // Invoked with the rejection error when the breaker refuses a call
}

// DefaultConfig provides reasonable defaults for circuit breaker behavior.
//
//nolint:gochecknoglobals // Sensible default config pattern
var DefaultConfig = Config{
	FailureThreshold: 5,
	SuccessThreshold: 3,
	RecoveryTimeout:  30 * time.Second,
	HalfOpenMaxCalls: 2,
}

// Error is returned when the breaker rejects a call without invoking it.
type Error struct {
	Name  string
	State State
}

func (e *Error) Error() string {
	return fmt.Sprintf("circuit breaker %q is %s", e.Name, e.State)
}

// Metrics is a point-in-time snapshot of one breaker's counters.
type Metrics struct {
	Successes            int64         `json:"successes"`
	Failures             int64         `json:"failures"`
	Rejections           int64         `json:"rejections"`
	ConsecutiveFailures  int           `json:"consecutive_failures"`
	ConsecutiveSuccesses int           `json:"consecutive_successes"`
	AvgResponseTime      time.Duration `json:"avg_response_time"`
}

// Breaker guards calls to one backend.
type Breaker interface {
	// Allow checks whether a call may proceed. A nil return reserves a
	// half-open probe slot when applicable; the caller must follow up with
	// exactly one Record.
	Allow() error

	// Record records the outcome of an allowed call.
	Record(err error, elapsed time.Duration)

	// Execute runs op under the breaker, rejecting immediately when open.
	// A configured Fallback handles the rejection instead.
	Execute(op func() error) error

	// GetState returns the current circuit breaker state.
	GetState() State

	// GetMetrics returns a snapshot of the breaker's counters.
	GetMetrics() Metrics

	// Reset manually resets the circuit breaker to closed state.
	Reset()
}

// Window size for the rolling response time average.
const responseTimeWindow = 32

//nolint:govet // Logical field grouping preferred over memory alignment
type breaker struct {
	name   string
	config Config

	mu               sync.Mutex
	state            State
	failureStreak    int
	successStreak    int
	halfOpenInFlight int
	lastFailureTime  time.Time

	successes     int64
	failures      int64
	rejections    int64
	responseTimes [responseTimeWindow]time.Duration
	responseIdx   int
	responseCount int
}

// New creates a circuit breaker with the given name and configuration.
func New(name string, config Config) Breaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = DefaultConfig.FailureThreshold
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = DefaultConfig.SuccessThreshold
	}
	if config.RecoveryTimeout <= 0 {
		config.RecoveryTimeout = DefaultConfig.RecoveryTimeout
	}
	if config.HalfOpenMaxCalls <= 0 {
		config.HalfOpenMaxCalls = DefaultConfig.HalfOpenMaxCalls
	}
	return &breaker{
		name:   name,
		config: config,
		state:  Closed,
	}
}

// Allow checks whether a call may proceed and reserves the half-open probe
// slot under the same lock, so the probe cap cannot be raced past.
func (b *breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return nil

	case Open:
		if time.Since(b.lastFailureTime) >= b.config.RecoveryTimeout {
			b.transition(HalfOpen)
			b.halfOpenInFlight = 1
			return nil
		}
		b.rejections++
		return &Error{Name: b.name, State: Open}

	case HalfOpen:
		if b.halfOpenInFlight >= b.config.HalfOpenMaxCalls {
			b.rejections++
			return &Error{Name: b.name, State: HalfOpen}
		}
		b.halfOpenInFlight++
		return nil

	default:
		b.rejections++
		return &Error{Name: b.name, State: b.state}
	}
}

// Record records the outcome of a call previously admitted by Allow.
func (b *breaker) Record(err error, elapsed time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.halfOpenInFlight > 0 {
		b.halfOpenInFlight--
	}

	b.responseTimes[b.responseIdx] = elapsed
	b.responseIdx = (b.responseIdx + 1) % responseTimeWindow
	if b.responseCount < responseTimeWindow {
		b.responseCount++
	}

	if err == nil {
		b.onSuccess()
		return
	}
	if b.config.IsFailure != nil && !b.config.IsFailure(err) {
		// Caller-side errors leave breaker state untouched
		return
	}
	b.onFailure()
}

// Execute runs op under the breaker. When the breaker rejects the call and a
// Fallback is configured, the fallback's result is returned in place of the
// rejection error; op is never invoked on rejection either way.
func (b *breaker) Execute(op func() error) error {
	if err := b.Allow(); err != nil {
		if b.config.Fallback != nil {
			return b.config.Fallback(err)
		}
		return err
	}
	start := time.Now()
	err := op()
	b.Record(err, time.Since(start))
	return err
}

// GetState returns the current circuit breaker state.
func (b *breaker) GetState() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// GetMetrics returns a snapshot of the breaker's counters.
func (b *breaker) GetMetrics() Metrics {
	b.mu.Lock()
	defer b.mu.Unlock()

	var total time.Duration
	for i := 0; i < b.responseCount; i++ {
		total += b.responseTimes[i]
	}
	var avg time.Duration
	if b.responseCount > 0 {
		avg = total / time.Duration(b.responseCount)
	}

	return Metrics{
		Successes:            b.successes,
		Failures:             b.failures,
		Rejections:           b.rejections,
		ConsecutiveFailures:  b.failureStreak,
		ConsecutiveSuccesses: b.successStreak,
		AvgResponseTime:      avg,
	}
}

// Reset manually resets the circuit breaker to closed state.
func (b *breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.transition(Closed)
	b.failureStreak = 0
	b.successStreak = 0
	b.halfOpenInFlight = 0
}

// onSuccess handles a successful call. Caller holds the lock.
func (b *breaker) onSuccess() {
	b.successes++
	b.successStreak++
	b.failureStreak = 0

	if b.state == HalfOpen && b.successStreak >= b.config.SuccessThreshold {
		b.transition(Closed)
	}
}

// onFailure handles a failed call. Caller holds the lock.
func (b *breaker) onFailure() {
	b.failures++
	b.failureStreak++
	b.successStreak = 0
	b.lastFailureTime = time.Now()

	switch b.state {
	case Closed:
		if b.failureStreak >= b.config.FailureThreshold {
			b.transition(Open)
		}
	case HalfOpen:
		// Any failure during a probe reopens the circuit
		b.transition(Open)
	}
}

// transition moves to a new state, resetting streaks relevant to it.
// Caller holds the lock.
func (b *breaker) transition(next State) {
	if b.state == next {
		return
	}
	b.state = next
	switch next {
	case Closed:
		b.failureStreak = 0
		b.successStreak = 0
		b.halfOpenInFlight = 0
	case HalfOpen:
		b.successStreak = 0
		b.halfOpenInFlight = 0
	case Open:
		b.halfOpenInFlight = 0
	}
}

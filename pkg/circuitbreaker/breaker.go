package circuitbreaker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// State represents the breaker state
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// OpenError is returned when a call is rejected because the circuit is open.
type OpenError struct {
	Name       string
	RetryAfter time.Duration
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit breaker %q is open, retry after %s", e.Name, e.RetryAfter.Round(time.Second))
}

// IsOpenError reports whether err is a circuit rejection.
func IsOpenError(err error) bool {
	_, ok := err.(*OpenError)
	return ok
}

// Config holds breaker tuning
type Config struct {
	// Consecutive failures before opening the circuit
	FailureThreshold int64 `json:"failure_threshold"`

	// Consecutive successes needed to close from half-open
	SuccessThreshold int64 `json:"success_threshold"`

	// Cooldown before the first half-open probe
	Cooldown time.Duration `json:"cooldown"`

	// Upper bound for the exponential cooldown
	MaxCooldown time.Duration `json:"max_cooldown"`

	// Whether repeated trips lengthen the cooldown
	ExponentialBackoff bool `json:"exponential_backoff"`
}

// DefaultConfig returns breaker settings tuned for analysis collaborators:
// slow external services where a short outage should not take every stage
// request down with it.
func DefaultConfig() Config {
	return Config{
		FailureThreshold:   5,
		SuccessThreshold:   2,
		Cooldown:           30 * time.Second,
		MaxCooldown:        5 * time.Minute,
		ExponentialBackoff: true,
	}
}

// Stats is a point-in-time snapshot of breaker counters
type Stats struct {
	TotalRequests    int64     `json:"total_requests"`
	Successes        int64     `json:"successes"`
	Failures         int64     `json:"failures"`
	Rejected         int64     `json:"rejected"`
	StateTransitions int64     `json:"state_transitions"`
	LastFailure      time.Time `json:"last_failure"`
	LastSuccess      time.Time `json:"last_success"`
}

// Breaker guards calls to one external collaborator. Failures past the
// threshold open the circuit; after a cooldown a single probe is let through
// and its outcome decides whether the circuit closes again.
type Breaker struct {
	name   string
	logger *logrus.Entry
	config Config

	mutex                sync.Mutex
	state                State
	consecutiveFailures  int64
	consecutiveSuccesses int64
	trips                int64
	nextProbe            time.Time
	stats                Stats
}

// New creates a breaker with the given name
func New(name string, config Config, logger *logrus.Logger) *Breaker {
	if config.FailureThreshold <= 0 {
		config = DefaultConfig()
	}

	return &Breaker{
		name:   name,
		logger: logger.WithField("circuit_breaker", name),
		config: config,
		state:  StateClosed,
	}
}

// Do runs fn under circuit protection
func (b *Breaker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.allow(); err != nil {
		return err
	}

	err := fn(ctx)
	if err != nil {
		// A canceled caller says nothing about collaborator health.
		if ctx.Err() != nil {
			return err
		}
		b.recordFailure(err)
		return err
	}

	b.recordSuccess()
	return nil
}

func (b *Breaker) allow() error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	switch b.state {
	case StateClosed, StateHalfOpen:
		return nil
	case StateOpen:
		now := time.Now()
		if now.After(b.nextProbe) {
			b.setState(StateHalfOpen)
			return nil
		}
		b.stats.Rejected++
		return &OpenError{Name: b.name, RetryAfter: b.nextProbe.Sub(now)}
	default:
		return &OpenError{Name: b.name}
	}
}

func (b *Breaker) recordSuccess() {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.consecutiveFailures = 0
	b.consecutiveSuccesses++
	b.stats.TotalRequests++
	b.stats.Successes++
	b.stats.LastSuccess = time.Now()

	if b.state == StateHalfOpen && b.consecutiveSuccesses >= b.config.SuccessThreshold {
		b.trips = 0
		b.setState(StateClosed)
	}
}

func (b *Breaker) recordFailure(err error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.consecutiveFailures++
	b.consecutiveSuccesses = 0
	b.stats.TotalRequests++
	b.stats.Failures++
	b.stats.LastFailure = time.Now()

	if b.state == StateHalfOpen || b.consecutiveFailures >= b.config.FailureThreshold {
		b.trip()
	}

	b.logger.WithError(err).WithFields(logrus.Fields{
		"consecutive_failures": b.consecutiveFailures,
		"state":                b.state.String(),
	}).Debug("Circuit breaker recorded failure")
}

// trip opens the circuit and schedules the next probe. Callers hold the mutex.
func (b *Breaker) trip() {
	cooldown := b.config.Cooldown
	if b.config.ExponentialBackoff && b.trips > 0 {
		cooldown = b.config.Cooldown << min(b.trips, 10)
		if cooldown > b.config.MaxCooldown {
			cooldown = b.config.MaxCooldown
		}
	}

	b.trips++
	b.nextProbe = time.Now().Add(cooldown)
	b.setState(StateOpen)
}

// setState transitions the breaker. Callers hold the mutex.
func (b *Breaker) setState(next State) {
	if b.state == next {
		return
	}

	prev := b.state
	b.state = next
	b.stats.StateTransitions++

	if next == StateClosed {
		b.nextProbe = time.Time{}
	}
	if next == StateHalfOpen {
		b.consecutiveSuccesses = 0
	}

	b.logger.WithFields(logrus.Fields{
		"from_state": prev.String(),
		"to_state":   next.String(),
	}).Info("Circuit breaker state changed")
}

// State returns the current state
func (b *Breaker) State() State {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.state
}

// Name returns the breaker name
func (b *Breaker) Name() string {
	return b.name
}

// Snapshot returns a copy of the breaker counters
func (b *Breaker) Snapshot() Stats {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.stats
}

// Reset closes the circuit and clears all counters
func (b *Breaker) Reset() {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.setState(StateClosed)
	b.consecutiveFailures = 0
	b.consecutiveSuccesses = 0
	b.trips = 0
	b.nextProbe = time.Time{}
	b.stats = Stats{}
}

func min(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

package resilience

import (
	"errors"
	"sync"
	"time"
)

var (
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrTooManyRequests = errors.New("too many requests")
)

// State represents the circuit breaker state
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

// String returns the string representation of the state
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

// Settings configures the circuit breaker behavior
type Settings struct {
	// MaxRequests is the number of trial deliveries allowed while half-open
	MaxRequests uint32
	// Interval clears the closed-state counts periodically
	Interval time.Duration
	// Timeout is how long the breaker stays open before a trial
	Timeout time.Duration
	// ReadyToTrip decides, after a failure, whether to open
	ReadyToTrip func(counts Counts) bool
	// OnStateChange observes transitions
	OnStateChange func(name string, from State, to State)
	// Clock overrides time.Now
	Clock func() time.Time
}

// Counts holds the statistics for the current generation
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// Breaker stops calling a failing outbound sink until it has had time to
// recover. Sinks are best effort, so a rejected call is simply skipped.
type Breaker struct {
	name     string
	settings Settings

	mu         sync.Mutex
	state      State
	generation uint64
	counts     Counts
	expiry     time.Time
}

// New creates a new circuit breaker with the given settings
func New(name string, settings Settings) *Breaker {
	if settings.MaxRequests == 0 {
		settings.MaxRequests = 1
	}
	if settings.Interval == 0 {
		settings.Interval = 60 * time.Second
	}
	if settings.Timeout == 0 {
		settings.Timeout = 30 * time.Second
	}
	if settings.ReadyToTrip == nil {
		settings.ReadyToTrip = func(counts Counts) bool {
			return counts.ConsecutiveFailures >= 5
		}
	}
	if settings.Clock == nil {
		settings.Clock = time.Now
	}

	b := &Breaker{name: name, settings: settings}
	b.expiry = settings.Clock().Add(settings.Interval)
	return b
}

// Name returns the name of the circuit breaker
func (b *Breaker) Name() string {
	return b.name
}

// State returns the current state of the circuit breaker
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.currentLocked(b.settings.Clock())
}

// Counts returns a copy of the internal counts
func (b *Breaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.counts
}

// Do runs fn if the breaker admits it and records the outcome. A panic in
// fn counts as a failure and is re-raised.
func (b *Breaker) Do(fn func() error) error {
	generation, err := b.admit()
	if err != nil {
		return err
	}

	defer func() {
		if e := recover(); e != nil {
			b.record(generation, false)
			panic(e)
		}
	}()

	err = fn()
	b.record(generation, err == nil)
	return err
}

func (b *Breaker) admit() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.currentLocked(b.settings.Clock()) {
	case StateOpen:
		return b.generation, ErrCircuitOpen
	case StateHalfOpen:
		if b.counts.Requests >= b.settings.MaxRequests {
			return b.generation, ErrTooManyRequests
		}
	}
	b.counts.Requests++
	return b.generation, nil
}

func (b *Breaker) record(generation uint64, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.settings.Clock()
	state := b.currentLocked(now)
	if generation != b.generation {
		// Outcome of a request admitted under an earlier state
		return
	}

	if success {
		b.counts.TotalSuccesses++
		b.counts.ConsecutiveSuccesses++
		b.counts.ConsecutiveFailures = 0
		if state == StateHalfOpen && b.counts.ConsecutiveSuccesses >= b.settings.MaxRequests {
			b.setLocked(StateClosed, now)
		}
		return
	}

	b.counts.TotalFailures++
	b.counts.ConsecutiveFailures++
	b.counts.ConsecutiveSuccesses = 0
	if state == StateHalfOpen || b.settings.ReadyToTrip(b.counts) {
		b.setLocked(StateOpen, now)
	}
}

func (b *Breaker) currentLocked(now time.Time) State {
	switch b.state {
	case StateClosed:
		if now.After(b.expiry) {
			b.newGenerationLocked(now.Add(b.settings.Interval))
		}
	case StateOpen:
		if now.After(b.expiry) {
			b.setLocked(StateHalfOpen, now)
		}
	}
	return b.state
}

func (b *Breaker) setLocked(state State, now time.Time) {
	if b.state == state {
		return
	}
	prev := b.state
	b.state = state

	var expiry time.Time
	switch state {
	case StateClosed:
		expiry = now.Add(b.settings.Interval)
	case StateOpen:
		expiry = now.Add(b.settings.Timeout)
	}
	b.newGenerationLocked(expiry)

	if b.settings.OnStateChange != nil {
		b.settings.OnStateChange(b.name, prev, state)
	}
}

func (b *Breaker) newGenerationLocked(expiry time.Time) {
	b.generation++
	b.counts = Counts{}
	b.expiry = expiry
}

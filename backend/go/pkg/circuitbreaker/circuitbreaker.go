package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State represents the state of the circuit breaker.
type State int

const (
	// Closed is the initial state where requests are allowed.
	Closed State = iota
	// Open state is when the circuit has tripped and requests are blocked.
	Open
	// HalfOpen allows a single trial request at a time to test recovery.
	HalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case Closed:
		return "Closed"
	case Open:
		return "Open"
	case HalfOpen:
		return "Half-Open"
	default:
		return "Unknown"
	}
}

var (
	// ErrCircuitOpen is returned when the circuit breaker is in the Open state.
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrTooManyProbes is returned in HalfOpen while a trial request is already in flight.
	ErrTooManyProbes = errors.New("circuit breaker is probing")
)

// CircuitBreaker is the interface for the circuit breaker pattern.
type CircuitBreaker interface {
	// Execute runs the given request if the circuit breaker is closed or half-open.
	Execute(req func() (interface{}, error)) (interface{}, error)
	// State returns the current state of the circuit breaker.
	State() State
}

// Option customises a breaker built by New.
type Option func(*breaker)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(b *breaker) { b.now = now }
}

// WithFailurePredicate decides which errors count against the circuit.
// By default context cancellation is the caller's fault and is not counted.
func WithFailurePredicate(isFailure func(error) bool) Option {
	return func(b *breaker) { b.isFailure = isFailure }
}

// WithStateChange registers a callback fired (outside the lock) on every transition.
func WithStateChange(fn func(from, to State)) Option {
	return func(b *breaker) { b.onChange = fn }
}

type breaker struct {
	failureThreshold     uint32
	successThreshold     uint32
	timeout              time.Duration
	consecutiveSuccesses uint32
	consecutiveFailures  uint32
	openedAt             time.Time
	probing              bool
	state                State
	now                  func() time.Time
	isFailure            func(error) bool
	onChange             func(from, to State)
	mutex                sync.Mutex
}

// New creates a breaker that opens after failureThreshold consecutive failures,
// waits timeout, then closes again after successThreshold successful probes.
func New(failureThreshold, successThreshold uint32, timeout time.Duration, opts ...Option) CircuitBreaker {
	b := &breaker{
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		timeout:          timeout,
		state:            Closed,
		now:              time.Now,
		isFailure:        defaultIsFailure,
	}
	if b.failureThreshold == 0 {
		b.failureThreshold = 1
	}
	if b.successThreshold == 0 {
		b.successThreshold = 1
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func defaultIsFailure(err error) bool {
	return !errors.Is(err, context.Canceled)
}

// State returns the current state of the circuit breaker.
func (b *breaker) State() State {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if b.state == Open && b.now().Sub(b.openedAt) >= b.timeout {
		return HalfOpen
	}
	return b.state
}

// Execute wraps the execution of a function with the circuit breaker logic.
func (b *breaker) Execute(req func() (interface{}, error)) (interface{}, error) {
	if err := b.before(); err != nil {
		return nil, err
	}
	res, err := req()
	b.after(err)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (b *breaker) before() error {
	b.mutex.Lock()
	var from, to State
	changed := false
	if b.state == Open && b.now().Sub(b.openedAt) >= b.timeout {
		from, to, changed = b.state, HalfOpen, true
		b.state = HalfOpen
		b.consecutiveSuccesses = 0
	}
	var err error
	switch b.state {
	case Open:
		err = ErrCircuitOpen
	case HalfOpen:
		if b.probing {
			err = ErrTooManyProbes
		} else {
			b.probing = true
		}
	}
	b.mutex.Unlock()
	if changed {
		b.notify(from, to)
	}
	return err
}

func (b *breaker) after(err error) {
	b.mutex.Lock()
	from := b.state
	if b.state == HalfOpen {
		b.probing = false
	}
	if err != nil && b.isFailure(err) {
		b.onFailure()
	} else {
		b.onSuccess()
	}
	to := b.state
	b.mutex.Unlock()
	if from != to {
		b.notify(from, to)
	}
}

func (b *breaker) onSuccess() {
	switch b.state {
	case HalfOpen:
		b.consecutiveSuccesses++
		if b.consecutiveSuccesses >= b.successThreshold {
			b.state = Closed
			b.consecutiveFailures = 0
			b.consecutiveSuccesses = 0
		}
	case Closed:
		b.consecutiveFailures = 0
	}
}

func (b *breaker) onFailure() {
	switch b.state {
	case HalfOpen:
		b.trip()
	case Closed:
		b.consecutiveFailures++
		if b.consecutiveFailures >= b.failureThreshold {
			b.trip()
		}
	}
}

func (b *breaker) trip() {
	b.state = Open
	b.openedAt = b.now()
	b.consecutiveFailures = 0
	b.consecutiveSuccesses = 0
}

func (b *breaker) notify(from, to State) {
	if b.onChange != nil {
		b.onChange(from, to)
	}
}

// Do is a typed wrapper around Execute. A nil breaker runs fn directly.
func Do[T any](cb CircuitBreaker, fn func() (T, error)) (T, error) {
	if cb == nil {
		return fn()
	}
	var zero T
	res, err := cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	return res.(T), nil
}

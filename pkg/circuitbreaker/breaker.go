package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

var ErrOpen = errors.New("circuit breaker is open")

// CircuitBreaker защищает хранилище от шторма запросов при отказе.
// Ошибки, для которых Ignore возвращает true (бизнес-ошибки вроде
// not found или duplicate), не считаются отказами.
type CircuitBreaker struct {
	maxFailures  int
	resetTimeout time.Duration
	ignore       func(error) bool
	onChange     func(from, to State)
	failures     int
	lastFailTime time.Time
	state        State
	mu           sync.Mutex
}

func New(maxFailures int, resetTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		state:        StateClosed,
	}
}

// WithIgnore задаёт классификатор ошибок, не считающихся отказом бэкенда.
func (cb *CircuitBreaker) WithIgnore(fn func(error) bool) *CircuitBreaker {
	cb.ignore = fn
	return cb
}

// WithOnChange вызывает fn при каждой смене состояния. fn выполняется под
// мьютексом: не делать в нём вызовов обратно в breaker.
func (cb *CircuitBreaker) WithOnChange(fn func(from, to State)) *CircuitBreaker {
	cb.onChange = fn
	return cb
}

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) Call(fn func() error) error {
	cb.mu.Lock()

	if cb.state == StateOpen {
		if time.Since(cb.lastFailTime) > cb.resetTimeout {
			cb.setState(StateHalfOpen)
		} else {
			cb.mu.Unlock()
			return ErrOpen
		}
	}

	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil && (cb.ignore == nil || !cb.ignore(err)) {
		cb.failures++
		cb.lastFailTime = time.Now()

		if cb.failures >= cb.maxFailures {
			cb.setState(StateOpen)
		}
		return err
	}

	if cb.state == StateHalfOpen {
		cb.setState(StateClosed)
	}
	cb.failures = 0
	return err
}

// setState вызывается только под cb.mu.
func (cb *CircuitBreaker) setState(to State) {
	if cb.state == to {
		return
	}
	from := cb.state
	cb.state = to
	if cb.onChange != nil {
		cb.onChange(from, to)
	}
}

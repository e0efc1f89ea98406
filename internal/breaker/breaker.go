package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"layai/searchservice/internal/domain"
)

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
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

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "closed":
		*s = StateClosed
	case "open":
		*s = StateOpen
	case "half-open":
		*s = StateHalfOpen
	default:
		return fmt.Errorf("unknown breaker state %q", text)
	}
	return nil
}

type Config struct {
	FailureThreshold int           `json:"failureThreshold" yaml:"failureThreshold"`
	ResetTimeout     time.Duration `json:"resetTimeout" yaml:"resetTimeout"`
	MonitoringPeriod time.Duration `json:"monitoringPeriod" yaml:"monitoringPeriod"`
}

func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		ResetTimeout:     60 * time.Second,
		MonitoringPeriod: 2 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = def.FailureThreshold
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = def.ResetTimeout
	}
	if c.MonitoringPeriod <= 0 {
		c.MonitoringPeriod = def.MonitoringPeriod
	}
	return c
}

type Stats struct {
	Name             string     `json:"name"`
	State            State      `json:"state"`
	FailureCount     int        `json:"failureCount"`
	SuccessCount     int        `json:"successCount"`
	LastFailureTime  *time.Time `json:"lastFailureTime,omitempty"`
	TotalRequests    int64      `json:"totalRequests"`
	RejectedRequests int64      `json:"rejectedRequests"`
	Config           Config     `json:"config"`
}

// OpenError is returned when a call is rejected without running the operation.
type OpenError struct {
	Name    string
	RetryAt time.Time
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit breaker %q is open until %s", e.Name, e.RetryAt.Format(time.RFC3339))
}

func (e *OpenError) Is(target error) bool {
	return target == domain.ErrBreakerOpen
}

// StateChangeFunc observes transitions. cause is the failure that triggered
// the transition, nil for recoveries and resets.
type StateChangeFunc func(name string, from, to State, cause error)

type Option func(*CircuitBreaker)

func WithClock(now func() time.Time) Option {
	return func(cb *CircuitBreaker) {
		if now != nil {
			cb.now = now
		}
	}
}

func WithStateChange(fn StateChangeFunc) Option {
	return func(cb *CircuitBreaker) {
		cb.onStateChange = fn
	}
}

// CircuitBreaker guards one logical external dependency.
type CircuitBreaker struct {
	name          string
	cfg           Config
	now           func() time.Time
	onStateChange StateChangeFunc

	mu               sync.Mutex
	state            State
	failureCount     int
	successCount     int
	lastFailure      time.Time
	totalRequests    int64
	rejectedRequests int64
	probing          bool
}

type transition struct {
	from, to State
	cause    error
}

func New(name string, cfg Config, opts ...Option) *CircuitBreaker {
	cb := &CircuitBreaker{
		name:  name,
		cfg:   cfg.withDefaults(),
		now:   time.Now,
		state: StateClosed,
	}
	for _, opt := range opts {
		opt(cb)
	}
	return cb
}

func (cb *CircuitBreaker) Name() string { return cb.name }

func (cb *CircuitBreaker) Config() Config { return cb.cfg }

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Execute runs op unless the breaker is open. When fallback is non-nil it
// replaces both rejections and op failures; cause is the rejection
// (*OpenError) or op's error.
func (cb *CircuitBreaker) Execute(ctx context.Context, op func(context.Context) error, fallback func(context.Context, error) error) error {
	return cb.run(ctx, 0, op, fallback)
}

// ExecuteWithTimeout is Execute with op bound to a deadline. When the
// deadline wins, op's context is cancelled and the call counts as a failure.
func (cb *CircuitBreaker) ExecuteWithTimeout(ctx context.Context, timeout time.Duration, op func(context.Context) error, fallback func(context.Context, error) error) error {
	return cb.run(ctx, timeout, op, fallback)
}

func (cb *CircuitBreaker) run(ctx context.Context, timeout time.Duration, op func(context.Context) error, fallback func(context.Context, error) error) error {
	probe, changed, rejectErr := cb.admit()
	cb.notify(changed)
	if rejectErr != nil {
		if fallback != nil {
			return fallback(ctx, rejectErr)
		}
		return rejectErr
	}

	err := invoke(ctx, timeout, op)

	// A caller that gave up says nothing about the dependency's health.
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		cb.release(probe)
	} else {
		cb.notify(cb.record(probe, err))
	}

	if err != nil && fallback != nil {
		return fallback(ctx, err)
	}
	return err
}

func invoke(ctx context.Context, timeout time.Duration, op func(context.Context) error) error {
	if timeout <= 0 {
		return op(ctx)
	}

	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- op(opCtx)
	}()

	select {
	case err := <-done:
		return err
	case <-opCtx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("operation timed out after %s: %w", timeout, context.DeadlineExceeded)
	}
}

func (cb *CircuitBreaker) admit() (bool, *transition, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.totalRequests++
	now := cb.now()

	switch cb.state {
	case StateOpen:
		if now.Sub(cb.lastFailure) < cb.cfg.ResetTimeout {
			cb.rejectedRequests++
			return false, nil, cb.openErrorLocked()
		}
		cb.state = StateHalfOpen
		cb.successCount = 0
		cb.probing = true
		return true, &transition{from: StateOpen, to: StateHalfOpen}, nil
	case StateHalfOpen:
		if cb.probing {
			cb.rejectedRequests++
			return false, nil, cb.openErrorLocked()
		}
		cb.probing = true
		return true, nil, nil
	default:
		if cb.failureCount > 0 && now.Sub(cb.lastFailure) > cb.cfg.MonitoringPeriod {
			cb.failureCount = 0
		}
		return false, nil, nil
	}
}

func (cb *CircuitBreaker) openErrorLocked() *OpenError {
	return &OpenError{Name: cb.name, RetryAt: cb.lastFailure.Add(cb.cfg.ResetTimeout)}
}

func (cb *CircuitBreaker) record(probe bool, err error) *transition {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if probe {
		cb.probing = false
	} else if cb.state == StateHalfOpen {
		// Only the probe decides the outcome of a half-open breaker.
		return nil
	}

	if err == nil {
		cb.successCount++
		if cb.state == StateHalfOpen {
			cb.state = StateClosed
			cb.failureCount = 0
			return &transition{from: StateHalfOpen, to: StateClosed}
		}
		return nil
	}

	switch cb.state {
	case StateHalfOpen:
		cb.lastFailure = cb.now()
		cb.state = StateOpen
		return &transition{from: StateHalfOpen, to: StateOpen, cause: err}
	case StateClosed:
		cb.lastFailure = cb.now()
		cb.failureCount++
		if cb.failureCount >= cb.cfg.FailureThreshold {
			cb.state = StateOpen
			return &transition{from: StateClosed, to: StateOpen, cause: err}
		}
	}
	return nil
}

func (cb *CircuitBreaker) release(probe bool) {
	if !probe {
		return
	}
	cb.mu.Lock()
	cb.probing = false
	cb.mu.Unlock()
}

func (cb *CircuitBreaker) notify(t *transition) {
	if t == nil || cb.onStateChange == nil {
		return
	}
	cb.onStateChange(cb.name, t.from, t.to, t.cause)
}

func (cb *CircuitBreaker) Stats() Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	stats := Stats{
		Name:             cb.name,
		State:            cb.state,
		FailureCount:     cb.failureCount,
		SuccessCount:     cb.successCount,
		TotalRequests:    cb.totalRequests,
		RejectedRequests: cb.rejectedRequests,
		Config:           cb.cfg,
	}
	if !cb.lastFailure.IsZero() {
		lastFailure := cb.lastFailure
		stats.LastFailureTime = &lastFailure
	}
	return stats
}

// Reset forces the breaker closed and clears its counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	from := cb.state
	cb.state = StateClosed
	cb.failureCount = 0
	cb.successCount = 0
	cb.probing = false
	cb.lastFailure = time.Time{}
	cb.mu.Unlock()

	if from != StateClosed {
		cb.notify(&transition{from: from, to: StateClosed})
	}
}

package breaker

import (
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

// Dependency classes with their own failure profiles. Breaker names are
// "<class>:<instance>", e.g. "scraping-actor:instagram".
const (
	ClassWebSearch     = "web-search"
	ClassScrapingActor = "scraping-actor"
	ClassVerification  = "verification"
)

func DefaultPresets() map[string]Config {
	return map[string]Config{
		ClassWebSearch: {
			FailureThreshold: 5,
			ResetTimeout:     30 * time.Second,
			MonitoringPeriod: 60 * time.Second,
		},
		ClassScrapingActor: {
			FailureThreshold: 3,
			ResetTimeout:     2 * time.Minute,
			MonitoringPeriod: 5 * time.Minute,
		},
		ClassVerification: {
			FailureThreshold: 3,
			ResetTimeout:     time.Minute,
			MonitoringPeriod: 2 * time.Minute,
		},
	}
}

func Name(class, instance string) string {
	instance = strings.ToLower(strings.TrimSpace(instance))
	if instance == "" {
		return class
	}
	return class + ":" + instance
}

type RegistryOption func(*Registry)

func WithPresets(presets map[string]Config) RegistryOption {
	return func(r *Registry) {
		for class, cfg := range presets {
			r.presets[class] = cfg
		}
	}
}

func WithRegistryClock(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

func WithLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithObserver adds a transition observer shared by every breaker of the registry.
func WithObserver(fn StateChangeFunc) RegistryOption {
	return func(r *Registry) {
		if fn != nil {
			r.observers = append(r.observers, fn)
		}
	}
}

// Registry hands out one breaker per logical service name.
type Registry struct {
	mu        sync.Mutex
	breakers  map[string]*CircuitBreaker
	presets   map[string]Config
	now       func() time.Time
	logger    *slog.Logger
	observers []StateChangeFunc
}

func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		breakers: make(map[string]*CircuitBreaker),
		presets:  DefaultPresets(),
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get returns the breaker registered under name, creating it on first use.
// cfg only applies on creation; nil selects the preset for the name's class.
func (r *Registry) Get(name string, cfg *Config) *CircuitBreaker {
	name = strings.ToLower(strings.TrimSpace(name))

	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[name]; ok {
		return cb
	}

	var effective Config
	if cfg != nil {
		effective = *cfg
	} else {
		effective = r.presetFor(name)
	}
	cb := New(name, effective, WithClock(r.now), WithStateChange(r.stateChanged))
	r.breakers[name] = cb
	return cb
}

func (r *Registry) presetFor(name string) Config {
	class, _, _ := strings.Cut(name, ":")
	if cfg, ok := r.presets[class]; ok {
		return cfg
	}
	return DefaultConfig()
}

func (r *Registry) stateChanged(name string, from, to State, cause error) {
	attrs := []any{
		slog.String("breaker", name),
		slog.String("from", from.String()),
		slog.String("to", to.String()),
	}
	if cause != nil {
		attrs = append(attrs, slog.String("error", cause.Error()))
	}
	if to == StateOpen {
		r.logger.Warn("circuit breaker opened", attrs...)
	} else {
		r.logger.Info("circuit breaker state changed", attrs...)
	}
	for _, fn := range r.observers {
		fn(name, from, to, cause)
	}
}

func (r *Registry) Stats() []Stats {
	r.mu.Lock()
	items := make([]*CircuitBreaker, 0, len(r.breakers))
	for _, cb := range r.breakers {
		items = append(items, cb)
	}
	r.mu.Unlock()

	stats := make([]Stats, 0, len(items))
	for _, cb := range items {
		stats = append(stats, cb.Stats())
	}
	sort.Slice(stats, func(i, j int) bool {
		return stats[i].Name < stats[j].Name
	})
	return stats
}

func (r *Registry) ResetAll() {
	r.mu.Lock()
	items := make([]*CircuitBreaker, 0, len(r.breakers))
	for _, cb := range r.breakers {
		items = append(items, cb)
	}
	r.mu.Unlock()

	for _, cb := range items {
		cb.Reset()
	}
}

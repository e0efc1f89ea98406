package search

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"layai/searchservice/internal/breaker"
	"layai/searchservice/internal/domain"
	"layai/searchservice/internal/prioritize"
	"layai/searchservice/internal/quality"
	"layai/searchservice/internal/retry"
	"layai/searchservice/internal/scraping"
)

var ErrNoSearchers = errors.New("no web search providers configured")

// WebSearcher is a web-search provider used for discovery.
type WebSearcher interface {
	Name() string
	Search(ctx context.Context, query string, limit int) ([]domain.WebResult, error)
}

// VettedStore is the read-only curated profile dataset.
type VettedStore interface {
	Query(ctx context.Context, filter domain.VettedFilter) ([]domain.Profile, error)
}

// Verifier confirms that a profile URL belongs to a real, matching account.
type Verifier interface {
	Verify(ctx context.Context, profileURL string, platform domain.Platform, threshold int) (domain.Verification, error)
}

type Service struct {
	searchers  []WebSearcher
	scraping   *scraping.Manager
	breakers   *breaker.Registry
	cache      *ResultCache
	prioritize *prioritize.Prioritizer
	scorer     *quality.Scorer
	modes      scraping.ModeTable
	vetted     VettedStore
	verifier   Verifier
	history    *searchHistory
	logger     *slog.Logger
	tracer     trace.Tracer
	now        func() time.Time

	defaultMode      domain.ScrapingMode
	cacheDisabled    bool
	retryPolicy      retry.Policy
	discoveryTimeout time.Duration
	searchTimeout    time.Duration
	verifyTop        int
	verifyThreshold  int
	verifyTimeout    time.Duration
	rejectConfidence int
	historySize      int
}

type ServiceOption func(*Service)

func WithCache(cache *ResultCache) ServiceOption {
	return func(s *Service) {
		if cache != nil {
			s.cache = cache
		}
	}
}

func WithCacheDisabled(disabled bool) ServiceOption {
	return func(s *Service) {
		s.cacheDisabled = disabled
	}
}

func WithPrioritizer(p *prioritize.Prioritizer) ServiceOption {
	return func(s *Service) {
		if p != nil {
			s.prioritize = p
		}
	}
}

func WithScorer(scorer *quality.Scorer) ServiceOption {
	return func(s *Service) {
		if scorer != nil {
			s.scorer = scorer
		}
	}
}

func WithModes(modes scraping.ModeTable) ServiceOption {
	return func(s *Service) {
		if len(modes) > 0 {
			s.modes = modes
		}
	}
}

func WithDefaultMode(mode domain.ScrapingMode) ServiceOption {
	return func(s *Service) {
		s.defaultMode = domain.NormalizeScrapingMode(string(mode), domain.ModeBalanced)
	}
}

func WithVettedStore(store VettedStore) ServiceOption {
	return func(s *Service) {
		s.vetted = store
	}
}

// WithVerifier enables verification of the top n results.
func WithVerifier(v Verifier, topN, threshold int) ServiceOption {
	return func(s *Service) {
		s.verifier = v
		if topN > 0 {
			s.verifyTop = topN
		}
		if threshold > 0 {
			s.verifyThreshold = threshold
		}
	}
}

func WithRetryPolicy(policy retry.Policy) ServiceOption {
	return func(s *Service) {
		s.retryPolicy = policy
	}
}

func WithTimeouts(discovery, search time.Duration) ServiceOption {
	return func(s *Service) {
		if discovery > 0 {
			s.discoveryTimeout = discovery
		}
		if search > 0 {
			s.searchTimeout = search
		}
	}
}

func WithHistorySize(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.historySize = n
		}
	}
}

func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService wires the orchestrator. Searchers are consulted in the given
// order; earlier ones win when two report the same profile.
func NewService(searchers []WebSearcher, manager *scraping.Manager, breakers *breaker.Registry, opts ...ServiceOption) *Service {
	registered := make([]WebSearcher, 0, len(searchers))
	seen := make(map[string]struct{}, len(searchers))
	for _, searcher := range searchers {
		if searcher == nil {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(searcher.Name()))
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		registered = append(registered, searcher)
	}

	s := &Service{
		searchers:        registered,
		scraping:         manager,
		breakers:         breakers,
		modes:            scraping.DefaultModes(),
		logger:           slog.Default(),
		tracer:           otel.Tracer("searchservice/search"),
		now:              time.Now,
		defaultMode:      domain.ModeBalanced,
		retryPolicy:      retry.DefaultPolicy(),
		discoveryTimeout: defaultDiscoveryTimeout,
		searchTimeout:    2 * time.Minute,
		verifyTop:        5,
		verifyThreshold:  70,
		verifyTimeout:    20 * time.Second,
		rejectConfidence: 60,
		historySize:      500,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.breakers == nil {
		s.breakers = breaker.NewRegistry(breaker.WithLogger(s.logger))
	}
	if s.cache == nil {
		s.cache = NewResultCache(WithCacheLogger(s.logger), WithCacheClock(s.now))
	}
	if s.prioritize == nil {
		s.prioritize = prioritize.New(prioritize.DefaultTables())
	}
	if s.scorer == nil {
		s.scorer = quality.New(quality.WithLogger(s.logger))
	}
	if s.scraping == nil {
		s.scraping = scraping.NewManager(nil, s.breakers, scraping.WithLogger(s.logger))
	}
	s.history = newSearchHistory(s.historySize)
	return s
}

// StartBackground launches the cache sweeper.
func (s *Service) StartBackground(ctx context.Context) {
	s.cache.StartSweeper(ctx)
}

func (s *Service) Searchers() []string {
	names := make([]string, 0, len(s.searchers))
	for _, searcher := range s.searchers {
		names = append(names, strings.ToLower(strings.TrimSpace(searcher.Name())))
	}
	return names
}

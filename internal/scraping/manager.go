// Package scraping spends a per-search scraping budget on the best
// discovered candidates, one platform batch at a time.
package scraping

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"layai/searchservice/internal/breaker"
	"layai/searchservice/internal/domain"
	"layai/searchservice/internal/metrics"
	"layai/searchservice/internal/prioritize"
	"layai/searchservice/internal/retry"
)

// ErrNoScraper is reported for every batch when no scraping actor is configured.
var ErrNoScraper = errors.New("no scraping actor configured")

type ScrapeRequest struct {
	Platform     domain.Platform
	URLs         []string
	ResultsLimit int
}

// Scraper is the scraping-actor collaborator. Implementations should return
// *domain.HTTPStatusError for upstream status failures.
type Scraper interface {
	Scrape(ctx context.Context, req ScrapeRequest) ([]domain.Profile, error)
}

type Stats struct {
	TotalFound   int           `json:"totalFound"`
	Qualified    int           `json:"qualified"`
	Planned      int           `json:"planned"`
	TotalScraped int           `json:"totalScraped"`
	Estimated    int           `json:"estimated"`
	APICalls     int           `json:"apiCalls"`
	TimeSpent    time.Duration `json:"timeSpent"`
	SuccessRate  float64       `json:"successRate"`
	QualityScore float64       `json:"qualityScore"`
}

type PlatformOutcome struct {
	Platform  domain.Platform  `json:"platform"`
	Requested int              `json:"requested"`
	Scraped   int              `json:"scraped"`
	Estimated int              `json:"estimated"`
	Attempts  int              `json:"attempts"`
	Error     string           `json:"error,omitempty"`
	ErrorKind domain.ErrorKind `json:"errorKind,omitempty"`
}

type Result struct {
	Profiles        []domain.Profile  `json:"profiles"`
	Stats           Stats             `json:"stats"`
	Platforms       []PlatformOutcome `json:"platforms"`
	Recommendations []string          `json:"recommendations"`
}

type Option func(*Manager)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithPlatformRate limits actor calls per platform.
func WithPlatformRate(limit rate.Limit, burst int) Option {
	return func(m *Manager) {
		if limit > 0 {
			m.rateLimit = limit
		}
		if burst > 0 {
			m.rateBurst = burst
		}
	}
}

// WithRetryDelay sets the base backoff between batch retries.
func WithRetryDelay(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.retryDelay = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

type Manager struct {
	scraper    Scraper
	breakers   *breaker.Registry
	logger     *slog.Logger
	retryDelay time.Duration
	rateLimit  rate.Limit
	rateBurst  int
	now        func() time.Time

	limitersMu sync.Mutex
	limiters   map[domain.Platform]*rate.Limiter
}

func NewManager(scraper Scraper, breakers *breaker.Registry, opts ...Option) *Manager {
	m := &Manager{
		scraper:    scraper,
		breakers:   breakers,
		logger:     slog.Default(),
		retryDelay: time.Second,
		rateLimit:  rate.Every(2 * time.Second),
		rateBurst:  2,
		now:        time.Now,
		limiters:   make(map[domain.Platform]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.breakers == nil {
		m.breakers = breaker.NewRegistry(breaker.WithLogger(m.logger))
	}
	return m
}

type Batch struct {
	Platform   domain.Platform
	Candidates []domain.CandidateProfile
}

type batchResult struct {
	profiles []domain.Profile
	outcome  PlatformOutcome
	apiCalls int
}

// Plan filters candidates by threshold and splits them into per-platform
// batches that together never exceed cfg.MaxProfiles.
func Plan(cfg domain.ScrapingConfig, candidates []domain.CandidateProfile) []Batch {
	qualified := prioritize.Filter(candidates, cfg.PriorityThreshold)

	groups := make(map[domain.Platform][]domain.CandidateProfile)
	for _, c := range qualified {
		groups[c.Platform] = append(groups[c.Platform], c)
	}
	platforms := make([]domain.Platform, 0, len(groups))
	for platform, items := range groups {
		sort.SliceStable(items, func(i, j int) bool {
			return items[i].PriorityScore > items[j].PriorityScore
		})
		platforms = append(platforms, platform)
	}
	sort.Slice(platforms, func(i, j int) bool {
		bi, bj := groups[platforms[i]][0].PriorityScore, groups[platforms[j]][0].PriorityScore
		if bi != bj {
			return bi > bj
		}
		return platforms[i] < platforms[j]
	})

	remaining := cfg.MaxProfiles
	batches := make([]Batch, 0, len(platforms))
	for _, platform := range platforms {
		if remaining <= 0 {
			break
		}
		items := groups[platform]
		if len(items) > remaining {
			items = items[:remaining]
		}
		remaining -= len(items)
		batches = append(batches, Batch{Platform: platform, Candidates: items})
	}
	return batches
}

// Run spends the budget described by cfg on candidates. It never fails:
// exhausted batches either become estimated profiles or are reported in
// Platforms.
func (m *Manager) Run(ctx context.Context, cfg domain.ScrapingConfig, candidates []domain.CandidateProfile) Result {
	started := m.now()
	batches := Plan(cfg, candidates)

	planned := 0
	for _, b := range batches {
		planned += len(b.Candidates)
	}

	results := make([]batchResult, len(batches))
	if cfg.Parallel && len(batches) > 1 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(len(batches))
		for i, b := range batches {
			g.Go(func() error {
				results[i] = m.runBatch(gctx, cfg, b)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i, b := range batches {
			results[i] = m.runBatch(ctx, cfg, b)
		}
	}

	out := Result{
		Profiles:  make([]domain.Profile, 0, planned),
		Platforms: make([]PlatformOutcome, 0, len(results)),
	}
	out.Stats.TotalFound = len(candidates)
	out.Stats.Qualified = len(prioritize.Filter(candidates, cfg.PriorityThreshold))
	out.Stats.Planned = planned
	for _, r := range results {
		out.Profiles = append(out.Profiles, r.profiles...)
		out.Platforms = append(out.Platforms, r.outcome)
		out.Stats.TotalScraped += r.outcome.Scraped
		out.Stats.Estimated += r.outcome.Estimated
		out.Stats.APICalls += r.apiCalls
	}
	out.Stats.TimeSpent = m.now().Sub(started)

	denominator := min(out.Stats.TotalFound, cfg.MaxProfiles)
	if denominator > 0 {
		out.Stats.SuccessRate = math.Min(1, float64(out.Stats.TotalScraped)/float64(denominator))
	}
	if len(out.Profiles) > 0 {
		sum := 0
		for _, p := range out.Profiles {
			sum += p.QualityScore
		}
		out.Stats.QualityScore = float64(sum) / float64(len(out.Profiles))
	}
	out.Recommendations = Recommend(cfg, out.Stats)

	m.logger.Info("scraping budget spent",
		slog.String("mode", string(cfg.Mode)),
		slog.Int("found", out.Stats.TotalFound),
		slog.Int("qualified", out.Stats.Qualified),
		slog.Int("planned", planned),
		slog.Int("scraped", out.Stats.TotalScraped),
		slog.Int("estimated", out.Stats.Estimated),
		slog.Int("apiCalls", out.Stats.APICalls),
		slog.Duration("elapsed", out.Stats.TimeSpent),
	)
	return out
}

func (m *Manager) runBatch(ctx context.Context, cfg domain.ScrapingConfig, b Batch) batchResult {
	result := batchResult{outcome: PlatformOutcome{Platform: b.Platform, Requested: len(b.Candidates)}}
	cb := m.breakers.Get(breaker.Name(breaker.ClassScrapingActor, string(b.Platform)), nil)

	req := ScrapeRequest{
		Platform:     b.Platform,
		URLs:         make([]string, 0, len(b.Candidates)),
		ResultsLimit: len(b.Candidates),
	}
	for _, c := range b.Candidates {
		req.URLs = append(req.URLs, c.URL)
	}

	policy := retry.Policy{
		Attempts:  uint(1 + max(cfg.RetryAttempts, 0)),
		BaseDelay: m.retryDelay,
		Logger:    m.logger,
	}
	service := cb.Name()
	if m.scraper == nil {
		policy.Attempts = 1
	}
	profiles, err := retry.Do(ctx, service, policy, func(ctx context.Context) ([]domain.Profile, error) {
		if m.scraper == nil {
			return nil, ErrNoScraper
		}
		result.outcome.Attempts++
		if err := m.waitLimiter(ctx, b.Platform); err != nil {
			return nil, err
		}

		var scraped []domain.Profile
		started := m.now()
		err := cb.ExecuteWithTimeout(ctx, cfg.Timeout, func(ctx context.Context) error {
			items, err := m.scraper.Scrape(ctx, req)
			if err != nil {
				return err
			}
			scraped = items
			return nil
		}, nil)
		if errors.Is(err, domain.ErrBreakerOpen) {
			metrics.ProviderRequestsTotal.WithLabelValues(service, "rejected").Inc()
			return nil, err
		}
		result.apiCalls++
		metrics.ProviderRequestDuration.WithLabelValues(service).Observe(m.now().Sub(started).Seconds())
		if err != nil {
			metrics.ProviderRequestsTotal.WithLabelValues(service, string(retry.Classify(err))).Inc()
			return nil, err
		}
		metrics.ProviderRequestsTotal.WithLabelValues(service, "ok").Inc()
		return scraped, nil
	})

	if err == nil {
		result.profiles = tagScraped(b.Candidates, profiles)
		result.outcome.Scraped = len(result.profiles)
		metrics.ScrapedProfilesTotal.WithLabelValues(string(b.Platform), string(domain.SourceScraped)).Add(float64(len(result.profiles)))
		return result
	}

	result.outcome.Error = err.Error()
	result.outcome.ErrorKind = retry.Classify(err)
	m.logger.Warn("scraping batch failed",
		slog.String("platform", string(b.Platform)),
		slog.Int("attempts", result.outcome.Attempts),
		slog.String("kind", string(result.outcome.ErrorKind)),
		slog.String("error", err.Error()),
	)

	if !cfg.FallbackEnabled || ctx.Err() != nil {
		return result
	}
	result.profiles = make([]domain.Profile, 0, len(b.Candidates))
	for _, c := range b.Candidates {
		result.profiles = append(result.profiles, Estimate(c))
	}
	result.outcome.Estimated = len(result.profiles)
	metrics.ScrapedProfilesTotal.WithLabelValues(string(b.Platform), string(domain.SourceEstimated)).Add(float64(len(result.profiles)))
	return result
}

func (m *Manager) waitLimiter(ctx context.Context, platform domain.Platform) error {
	m.limitersMu.Lock()
	limiter, ok := m.limiters[platform]
	if !ok {
		limiter = rate.NewLimiter(m.rateLimit, m.rateBurst)
		m.limiters[platform] = limiter
	}
	m.limitersMu.Unlock()
	return limiter.Wait(ctx)
}

// tagScraped carries each candidate's scores onto the scraped profile for the
// same URL or handle.
func tagScraped(candidates []domain.CandidateProfile, profiles []domain.Profile) []domain.Profile {
	byKey := make(map[string]domain.CandidateProfile, len(candidates)*2)
	for _, c := range candidates {
		byKey[profileKey(c.URL)] = c
		if c.Handle != "" {
			byKey[strings.ToLower(c.Handle)] = c
		}
	}

	out := make([]domain.Profile, 0, len(profiles))
	for _, p := range profiles {
		c, ok := byKey[profileKey(p.URL)]
		if !ok {
			c, ok = byKey[strings.ToLower(strings.TrimPrefix(p.Username, "@"))]
		}
		if ok {
			p.PriorityScore = c.PriorityScore
			p.QualityScore = c.QualityScore
			p.Relevance = c.EstimatedRelevance
			if p.Provenance == "" {
				p.Provenance = c.Provenance
			}
			if p.URL == "" {
				p.URL = c.URL
			}
			if p.Platform == domain.PlatformUnknown {
				p.Platform = c.Platform
			}
		}
		if p.DataSource == "" {
			p.DataSource = domain.SourceScraped
		}
		p.IsFallback = !p.DataSource.Authoritative()
		out = append(out, p)
	}
	return out
}

func profileKey(rawURL string) string {
	value := strings.ToLower(strings.TrimSpace(rawURL))
	value = strings.TrimPrefix(value, "https://")
	value = strings.TrimPrefix(value, "http://")
	value = strings.TrimPrefix(value, "www.")
	return strings.TrimRight(value, "/")
}

// Estimate synthesizes a placeholder profile from the candidate's own scores.
// The numbers are deterministic and never presented as observed data.
func Estimate(c domain.CandidateProfile) domain.Profile {
	return domain.Profile{
		URL:            c.URL,
		Platform:       c.Platform,
		Username:       c.Handle,
		Followers:      EstimatedFollowers(c.QualityScore),
		EngagementRate: EstimatedEngagement(c.PriorityScore),
		DataSource:     domain.SourceEstimated,
		IsFallback:     true,
		Provenance:     c.Provenance,
		PriorityScore:  c.PriorityScore,
		QualityScore:   c.QualityScore,
		Relevance:      c.EstimatedRelevance,
	}
}

func EstimatedFollowers(quality int) int64 {
	q := int64(quality)
	return 1000 + q*q*50
}

// EstimatedEngagement is a percentage.
func EstimatedEngagement(priority int) float64 {
	return 1.0 + float64(priority)/25
}

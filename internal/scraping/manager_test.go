package scraping

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"layai/searchservice/internal/breaker"
	"layai/searchservice/internal/domain"
)

type fakeScraper struct {
	mu       sync.Mutex
	requests []ScrapeRequest
	scrape   func(ScrapeRequest) ([]domain.Profile, error)
}

func (f *fakeScraper) Scrape(ctx context.Context, req ScrapeRequest) ([]domain.Profile, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f.scrape(req)
}

func (f *fakeScraper) calls() []ScrapeRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ScrapeRequest(nil), f.requests...)
}

func echoScraper() *fakeScraper {
	return &fakeScraper{scrape: func(req ScrapeRequest) ([]domain.Profile, error) {
		out := make([]domain.Profile, 0, len(req.URLs))
		for _, u := range req.URLs {
			out = append(out, domain.Profile{URL: u, Platform: req.Platform, Followers: 5000})
		}
		return out, nil
	}}
}

func failingScraper() *fakeScraper {
	return &fakeScraper{scrape: func(ScrapeRequest) ([]domain.Profile, error) {
		return nil, &domain.HTTPStatusError{Service: "apify", StatusCode: http.StatusServiceUnavailable}
	}}
}

func newTestManager(s Scraper) *Manager {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewManager(s, breaker.NewRegistry(breaker.WithLogger(logger)),
		WithLogger(logger),
		WithRetryDelay(time.Millisecond),
		WithPlatformRate(rate.Inf, 1),
	)
}

func makeCandidates(platform domain.Platform, scores ...int) []domain.CandidateProfile {
	out := make([]domain.CandidateProfile, 0, len(scores))
	for i, score := range scores {
		handle := fmt.Sprintf("%s_creator_%02d", platform, i)
		out = append(out, domain.CandidateProfile{
			URL:                "https://" + string(platform) + ".com/" + handle,
			Platform:           platform,
			Handle:             handle,
			PriorityScore:      score,
			QualityScore:       score - 10,
			EstimatedRelevance: 60,
			Provenance:         "serper",
		})
	}
	return out
}

// 20 candidates, 8 of them at or above the economy threshold of 70.
func economyCandidates() []domain.CandidateProfile {
	var out []domain.CandidateProfile
	out = append(out, makeCandidates(domain.PlatformInstagram, 95, 88, 71, 70, 40, 20, 69)...)
	out = append(out, makeCandidates(domain.PlatformTikTok, 90, 80, 75, 55, 50, 30, 10)...)
	out = append(out, makeCandidates(domain.PlatformYouTube, 72, 65, 60, 45, 35, 15)...)
	return out
}

// ---------------------------------------------------------------------------
// Planning
// ---------------------------------------------------------------------------

func TestPlan_RespectsThresholdAndBudget(t *testing.T) {
	cfg := DefaultModes().Config(domain.ModeEconomy)
	batches := Plan(cfg, economyCandidates())

	total := 0
	for _, b := range batches {
		for i, c := range b.Candidates {
			if c.PriorityScore < cfg.PriorityThreshold {
				t.Fatalf("candidate below threshold planned: %+v", c)
			}
			if c.Platform != b.Platform {
				t.Fatalf("candidate in wrong batch: %+v", c)
			}
			if i > 0 && b.Candidates[i-1].PriorityScore < c.PriorityScore {
				t.Fatalf("batch %s not sorted by priority", b.Platform)
			}
		}
		total += len(b.Candidates)
	}
	if total != 8 {
		t.Fatalf("expected exactly 8 planned, got %d", total)
	}
	if batches[0].Platform != domain.PlatformInstagram {
		t.Fatalf("expected platform with best candidate first, got %s", batches[0].Platform)
	}
}

func TestPlan_StopsWhenBudgetExhausted(t *testing.T) {
	cfg := domain.ScrapingConfig{MaxProfiles: 3, PriorityThreshold: 50}
	batches := Plan(cfg, economyCandidates())

	total := 0
	for _, b := range batches {
		total += len(b.Candidates)
	}
	if total != 3 {
		t.Fatalf("expected budget of 3, got %d", total)
	}
	// instagram leads with 95 and holds 4 qualifying candidates, so the whole
	// budget is spent there.
	if len(batches) != 1 || batches[0].Platform != domain.PlatformInstagram {
		t.Fatalf("unexpected batches: %+v", batches)
	}
}

// ---------------------------------------------------------------------------
// Execution
// ---------------------------------------------------------------------------

func TestRun_EconomyFallbackEstimatesAllQualifiedCandidates(t *testing.T) {
	scraper := failingScraper()
	m := newTestManager(scraper)
	cfg := DefaultModes().Config(domain.ModeEconomy)

	result := m.Run(context.Background(), cfg, economyCandidates())

	if len(result.Profiles) != 8 {
		t.Fatalf("expected 8 profiles, got %d", len(result.Profiles))
	}
	for _, p := range result.Profiles {
		if !p.IsFallback || p.DataSource != domain.SourceEstimated {
			t.Fatalf("expected estimated fallback profile, got %+v", p)
		}
		if p.Followers != EstimatedFollowers(p.QualityScore) {
			t.Fatalf("expected deterministic followers for quality %d, got %d", p.QualityScore, p.Followers)
		}
	}
	if result.Stats.Planned > cfg.MaxProfiles {
		t.Fatalf("budget exceeded: %d", result.Stats.Planned)
	}
	if result.Stats.TotalScraped != 0 || result.Stats.Estimated != 8 || result.Stats.SuccessRate != 0 {
		t.Fatalf("unexpected stats: %+v", result.Stats)
	}

	// 3 platform batches, 1 call + 1 retry each.
	if got := len(scraper.calls()); got != 6 {
		t.Fatalf("expected 6 scraper calls, got %d", got)
	}
	for _, outcome := range result.Platforms {
		if outcome.Attempts != 2 || outcome.ErrorKind != domain.KindNetwork {
			t.Fatalf("unexpected outcome: %+v", outcome)
		}
	}
	if len(result.Recommendations) == 0 {
		t.Fatal("expected recommendations for a failed run")
	}
}

func TestRun_UnlimitedDoesNotMaskFailures(t *testing.T) {
	m := newTestManager(failingScraper())
	cfg := DefaultModes().Config(domain.ModeUnlimited)
	cfg.RetryAttempts = 0

	result := m.Run(context.Background(), cfg, economyCandidates())
	if len(result.Profiles) != 0 {
		t.Fatalf("unlimited mode must not synthesize profiles, got %d", len(result.Profiles))
	}
	for _, outcome := range result.Platforms {
		if outcome.Error == "" {
			t.Fatalf("expected failure to be reported: %+v", outcome)
		}
	}
}

func TestRun_TagsScrapedProfilesWithCandidateScores(t *testing.T) {
	m := newTestManager(echoScraper())
	cfg := DefaultModes().Config(domain.ModeBalanced)

	result := m.Run(context.Background(), cfg, economyCandidates())
	if result.Stats.Estimated != 0 || result.Stats.TotalScraped != result.Stats.Planned {
		t.Fatalf("unexpected stats: %+v", result.Stats)
	}
	for _, p := range result.Profiles {
		if p.DataSource != domain.SourceScraped || p.IsFallback {
			t.Fatalf("expected scraped profile, got %+v", p)
		}
		if p.PriorityScore < cfg.PriorityThreshold || p.Provenance != "serper" {
			t.Fatalf("expected candidate scores carried over, got %+v", p)
		}
	}
	wantRate := float64(result.Stats.TotalScraped) / float64(min(result.Stats.TotalFound, cfg.MaxProfiles))
	if result.Stats.SuccessRate != wantRate {
		t.Fatalf("expected success rate %v, got %v", wantRate, result.Stats.SuccessRate)
	}
}

func TestRun_RetriesThenSucceeds(t *testing.T) {
	var mu sync.Mutex
	failures := map[domain.Platform]int{}
	scraper := &fakeScraper{scrape: func(req ScrapeRequest) ([]domain.Profile, error) {
		mu.Lock()
		defer mu.Unlock()
		if failures[req.Platform] == 0 {
			failures[req.Platform]++
			return nil, errors.New("connection reset by peer")
		}
		return echoScraper().scrape(req)
	}}
	m := newTestManager(scraper)

	result := m.Run(context.Background(), DefaultModes().Config(domain.ModeEconomy), economyCandidates())
	if result.Stats.Estimated != 0 || result.Stats.TotalScraped != 8 {
		t.Fatalf("expected retry to recover all batches, got %+v", result.Stats)
	}
	if result.Stats.APICalls != 6 {
		t.Fatalf("expected 6 api calls, got %d", result.Stats.APICalls)
	}
}

func TestRun_NonRetryableErrorSkipsRetries(t *testing.T) {
	scraper := &fakeScraper{scrape: func(ScrapeRequest) ([]domain.Profile, error) {
		return nil, &domain.HTTPStatusError{Service: "apify", StatusCode: http.StatusUnauthorized}
	}}
	m := newTestManager(scraper)

	result := m.Run(context.Background(), DefaultModes().Config(domain.ModeComprehensive), makeCandidates(domain.PlatformInstagram, 90, 80))
	if got := len(scraper.calls()); got != 1 {
		t.Fatalf("expected a single call for auth failure, got %d", got)
	}
	if result.Platforms[0].ErrorKind != domain.KindAuth {
		t.Fatalf("expected auth kind, got %+v", result.Platforms[0])
	}
	if result.Stats.Estimated != 2 {
		t.Fatalf("expected fallback estimates, got %+v", result.Stats)
	}
}

func TestRun_OpenBreakerStopsRetryingAndEstimates(t *testing.T) {
	scraper := failingScraper()
	m := newTestManager(scraper)
	cb := m.breakers.Get(breaker.Name(breaker.ClassScrapingActor, "instagram"), nil)
	for i := 0; i < cb.Config().FailureThreshold; i++ {
		_ = cb.Execute(context.Background(), func(context.Context) error { return errors.New("down") }, nil)
	}

	result := m.Run(context.Background(), DefaultModes().Config(domain.ModeComprehensive), makeCandidates(domain.PlatformInstagram, 90))
	if got := len(scraper.calls()); got != 0 {
		t.Fatalf("open breaker must short-circuit the scraper, got %d calls", got)
	}
	if result.Platforms[0].ErrorKind != domain.KindBreakerOpen || result.Platforms[0].Attempts != 1 {
		t.Fatalf("unexpected outcome: %+v", result.Platforms[0])
	}
	if result.Stats.APICalls != 0 || result.Stats.Estimated != 1 {
		t.Fatalf("unexpected stats: %+v", result.Stats)
	}
}

func TestRun_TimeoutCountsAsFailure(t *testing.T) {
	scraper := &fakeScraper{scrape: func(ScrapeRequest) ([]domain.Profile, error) {
		time.Sleep(50 * time.Millisecond)
		return nil, nil
	}}
	m := newTestManager(scraper)
	cfg := DefaultModes().Config(domain.ModeEconomy)
	cfg.Timeout = 5 * time.Millisecond
	cfg.RetryAttempts = 0

	result := m.Run(context.Background(), cfg, makeCandidates(domain.PlatformTikTok, 99))
	if result.Platforms[0].ErrorKind != domain.KindTimeout {
		t.Fatalf("expected timeout, got %+v", result.Platforms[0])
	}
	stats := m.breakers.Get("scraping-actor:tiktok", nil).Stats()
	if stats.FailureCount != 1 {
		t.Fatalf("expected breaker to count timeout, got %+v", stats)
	}
}

func TestEstimate(t *testing.T) {
	c := domain.CandidateProfile{URL: "u", Platform: domain.PlatformTikTok, Handle: "h", PriorityScore: 75, QualityScore: 60}
	p := Estimate(c)
	if p.Followers != 1000+60*60*50 {
		t.Fatalf("unexpected followers: %d", p.Followers)
	}
	if p.EngagementRate != 4.0 {
		t.Fatalf("unexpected engagement: %v", p.EngagementRate)
	}
	if p.DisplayName != "" {
		t.Fatal("estimates must not invent display names")
	}
}

func TestModeTable(t *testing.T) {
	modes := DefaultModes()
	economy := modes.Config(domain.ModeEconomy)
	if economy.MaxProfiles != 15 || economy.PriorityThreshold != 70 || economy.Parallel || economy.RetryAttempts != 1 {
		t.Fatalf("unexpected economy preset: %+v", economy)
	}
	if modes.Config(domain.ModeUnlimited).FallbackEnabled {
		t.Fatal("unlimited must not enable fallback")
	}
	if modes.Config("bogus").Mode != domain.ModeBalanced {
		t.Fatal("unknown modes should resolve to balanced")
	}

	merged := modes.Merge(ModeTable{
		"Unlimited": {MaxProfiles: 200, FallbackEnabled: true, Parallel: true},
	})
	unlimited := merged.Config(domain.ModeUnlimited)
	if unlimited.MaxProfiles != 200 || unlimited.FallbackEnabled {
		t.Fatalf("unexpected merged unlimited preset: %+v", unlimited)
	}
}

func TestRecommend(t *testing.T) {
	cfg := DefaultModes().Config(domain.ModeEconomy)
	recs := Recommend(cfg, Stats{TotalFound: 10, Qualified: 0})
	if len(recs) == 0 || !strings.Contains(recs[0], "less restrictive") {
		t.Fatalf("expected threshold advice, got %v", recs)
	}

	balanced := DefaultModes().Config(domain.ModeBalanced)
	recs = Recommend(balanced, Stats{TotalFound: 30, Qualified: 30, Planned: 30, TotalScraped: 30, SuccessRate: 1, QualityScore: 80, TimeSpent: 2 * time.Minute})
	if len(recs) != 1 || !strings.Contains(recs[0], "economy") {
		t.Fatalf("expected only slow-run advice, got %v", recs)
	}
}

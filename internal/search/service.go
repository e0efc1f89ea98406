package search

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"layai/searchservice/internal/breaker"
	"layai/searchservice/internal/domain"
	"layai/searchservice/internal/metrics"
	"layai/searchservice/internal/quality"
	"layai/searchservice/internal/scraping"
)

const (
	improvementBreakers     = "circuit-breakers"
	improvementPriority     = "candidate-prioritization"
	improvementScraping     = "budgeted-scraping"
	improvementQuality      = "quality-scoring"
	improvementCache        = "result-cache"
	improvementVetted       = "vetted-dataset"
	improvementVerification = "verification"
	improvementFallback     = "fallback"

	maxVerifyConcurrency = 3
)

var strategyMessages = map[string]string{
	StrategyCached:       "Live sources are unavailable, so these results come from a recent similar search.",
	StrategySingleSource: "Only one search provider answered; these profiles carry search-snippet data, not scraped metrics.",
	StrategyVetted:       "Live search is unavailable; these profiles come from our curated dataset.",
}

// searchRun carries per-search state between the fallback strategies and
// response assembly. Strategies run one at a time.
type searchRun struct {
	svc          *Service
	params       domain.SearchParams
	config       domain.ScrapingConfig
	candidates   []domain.CandidateProfile
	scrape       *scraping.Result
	vettedMerged int
	warnings     []string
}

// Search runs one influencer search. Only invalid parameters produce an
// error; dependency failures are reported inside the response.
func (s *Service) Search(ctx context.Context, request domain.SearchRequest) (domain.SearchResponse, error) {
	params := request.Params.Normalize()
	mode := domain.NormalizeScrapingMode(string(request.Mode), s.defaultMode)
	if err := params.Validate(); err != nil {
		metrics.SearchesTotal.WithLabelValues(string(mode), "invalid").Inc()
		return domain.SearchResponse{}, err
	}

	ctx, span := s.tracer.Start(ctx, "search.Search", trace.WithAttributes(
		attribute.String("search.mode", string(mode)),
		attribute.StringSlice("search.platforms", platformNames(params.Platforms)),
		attribute.Int("search.max_results", params.MaxResults),
	))
	defer span.End()

	started := s.now()
	searchID := uuid.NewString()

	if !s.cacheDisabled && !request.NoCache {
		if entry, ok := s.cache.Get(ctx, params); ok {
			response := entry.Payload
			response.SearchID = searchID
			response.Cached = true
			response.Summary.ProcessingTimeMS = s.now().Sub(started).Milliseconds()
			response.Summary.ImprovementsUsed = appendUnique(response.Summary.ImprovementsUsed, improvementCache)
			s.history.add(searchID, params.BrandName, response.Results)

			span.SetAttributes(attribute.Bool("search.cached", true))
			metrics.SearchesTotal.WithLabelValues(string(mode), "cached").Inc()
			s.logger.Info("search served from cache",
				slog.String("searchId", searchID),
				slog.String("sourceStrategy", entry.SourceStrategy),
				slog.Int64("hitCount", entry.HitCount),
			)
			return response, nil
		}
	}

	runCtx := ctx
	if s.searchTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.searchTimeout)
		defer cancel()
	}

	run := &searchRun{svc: s, params: params, config: s.modes.Config(mode)}
	chain := NewFallbackChain(run.strategies(), WithFallbackRetry(s.retryPolicy), WithFallbackLogger(s.logger))
	outcome := chain.Execute(runCtx, params)

	response := s.assemble(runCtx, run, outcome)
	response.SearchID = searchID
	response.Summary.ProcessingTimeMS = s.now().Sub(started).Milliseconds()

	if response.Success && !s.cacheDisabled && outcome.Strategy != StrategyCached {
		s.cache.Put(ctx, params, response, outcome.Strategy)
	}
	s.history.add(searchID, params.BrandName, response.Results)

	result := "success"
	if !response.Success {
		result = "failed"
		span.SetStatus(codes.Error, "no results")
	}
	span.SetAttributes(
		attribute.String("search.strategy", outcome.Strategy),
		attribute.Int("search.results", len(response.Results)),
	)
	metrics.SearchesTotal.WithLabelValues(string(mode), result).Inc()
	s.logger.Info("search finished",
		slog.String("searchId", searchID),
		slog.String("mode", string(mode)),
		slog.String("strategy", outcome.Strategy),
		slog.Bool("success", response.Success),
		slog.Int("results", len(response.Results)),
		slog.Int64("elapsedMs", response.Summary.ProcessingTimeMS),
	)
	return response, nil
}

func (r *searchRun) strategies() []Strategy {
	return []Strategy{
		{Name: StrategyPrimary, Tier: domain.TierHigh, Run: r.primary},
		{Name: StrategyCached, Tier: domain.TierMedium, Message: strategyMessages[StrategyCached], Run: r.cached},
		{Name: StrategySingleSource, Tier: domain.TierMedium, Message: strategyMessages[StrategySingleSource], Run: r.singleSource},
		{Name: StrategyVetted, Tier: domain.TierLow, Message: strategyMessages[StrategyVetted], Run: r.vettedOnly},
	}
}

// primary is discovery across every searcher, prioritization, the budgeted
// scrape and, for located searches, a merge with the vetted dataset.
func (r *searchRun) primary(ctx context.Context, params domain.SearchParams) ([]domain.Profile, error) {
	s := r.svc
	r.candidates = nil
	r.scrape = nil
	r.vettedMerged = 0
	if len(s.searchers) == 0 {
		r.warn("No web search provider is configured.")
		return nil, nil
	}

	dctx, span := s.tracer.Start(ctx, "search.discover")
	found := s.discover(dctx, s.searchers, params)
	span.SetAttributes(attribute.Int("discovery.candidates", len(found.Candidates)))
	span.End()
	if found.allFailed() {
		return nil, found.firstError()
	}
	if err := found.firstError(); err != nil {
		r.warn(fmt.Sprintf("Some web searches failed (%s); results may be incomplete.", describeDiscoveryFailure(found.Statuses)))
	}

	r.candidates = s.prioritize.Rank(found.Candidates, params)

	sctx, span := s.tracer.Start(ctx, "search.scrape", trace.WithAttributes(attribute.String("scraping.mode", string(r.config.Mode))))
	result := s.scraping.Run(sctx, r.config, r.candidates)
	span.SetAttributes(
		attribute.Int("scraping.scraped", result.Stats.TotalScraped),
		attribute.Int("scraping.estimated", result.Stats.Estimated),
	)
	span.End()
	r.scrape = &result

	profiles := append([]domain.Profile(nil), result.Profiles...)
	if s.vetted != nil && params.Location != "" {
		vetted, err := s.vetted.Query(ctx, domain.VettedFilterFor(params))
		if err != nil {
			s.logger.Warn("vetted dataset query failed", slog.String("error", err.Error()))
		} else {
			before := len(profiles)
			profiles = mergeProfiles(profiles, vetted)
			r.vettedMerged = len(profiles) - before
		}
	}
	return profiles, nil
}

func (r *searchRun) cached(_ context.Context, params domain.SearchParams) ([]domain.Profile, error) {
	if r.svc.cacheDisabled {
		return nil, nil
	}
	entry, ok := r.svc.cache.FindRelated(params)
	if !ok {
		return nil, nil
	}
	profiles := make([]domain.Profile, 0, len(entry.Payload.Results))
	for _, item := range entry.Payload.Results {
		profiles = append(profiles, item.Profile)
	}
	return profiles, nil
}

// singleSource falls back to one healthy searcher and returns its hits as
// snippet-backed profiles without scraping.
func (r *searchRun) singleSource(ctx context.Context, params domain.SearchParams) ([]domain.Profile, error) {
	s := r.svc
	var chosen WebSearcher
	for _, searcher := range s.searchers {
		cb := s.breakers.Get(breaker.Name(breaker.ClassWebSearch, searcher.Name()), nil)
		if cb.State() != breaker.StateOpen {
			chosen = searcher
			break
		}
	}
	if chosen == nil {
		return nil, nil
	}

	var candidates []domain.CandidateProfile
	for _, c := range r.candidates {
		if c.Provenance == chosen.Name() {
			candidates = append(candidates, c)
		}
	}
	if len(candidates) == 0 {
		found := s.discover(ctx, []WebSearcher{chosen}, params)
		if found.allFailed() {
			return nil, found.firstError()
		}
		candidates = s.prioritize.Rank(found.Candidates, params)
	}

	profiles := make([]domain.Profile, 0, len(candidates))
	for _, c := range candidates {
		profiles = append(profiles, snippetProfile(c))
	}
	metrics.ScrapedProfilesTotal.WithLabelValues("all", string(domain.SourceSearchSnippet)).Add(float64(len(profiles)))
	return profiles, nil
}

func (r *searchRun) vettedOnly(ctx context.Context, params domain.SearchParams) ([]domain.Profile, error) {
	if r.svc.vetted == nil {
		return nil, nil
	}
	return r.svc.vetted.Query(ctx, domain.VettedFilterFor(params))
}

func (r *searchRun) warn(message string) {
	r.warnings = append(r.warnings, message)
}

// assemble scores, filters, ranks and verifies the profiles the fallback
// chain produced and builds the response around them.
func (s *Service) assemble(ctx context.Context, run *searchRun, outcome FallbackResult) domain.SearchResponse {
	response := domain.SearchResponse{
		Success:     outcome.Success,
		Source:      outcome.Strategy,
		QualityTier: outcome.Tier,
		Results:     []domain.RankedCandidate{},
		Attempts:    outcome.Attempts,
		Warnings:    append(append([]string(nil), run.warnings...), outcome.Warnings...),
	}
	improvements := []string{improvementBreakers}

	if run.scrape != nil {
		response.Recommendations = append(response.Recommendations, run.scrape.Recommendations...)
		response.Summary.TotalScraped = run.scrape.Stats.TotalScraped
		improvements = append(improvements, improvementPriority, improvementScraping+":"+string(run.config.Mode))
	}
	response.Summary.TotalFound = len(run.candidates)
	if response.Summary.TotalFound == 0 {
		response.Summary.TotalFound = len(outcome.Profiles)
	}

	if !outcome.Success {
		response.Recommendations = append(response.Recommendations, outcome.Message)
		response.Summary.ImprovementsUsed = improvements
		return response
	}

	if outcome.Message != "" {
		response.Recommendations = append(response.Recommendations, outcome.Message)
	}
	if outcome.Strategy != StrategyPrimary {
		improvements = append(improvements, improvementFallback+":"+outcome.Strategy)
	}
	if run.vettedMerged > 0 || outcome.Strategy == StrategyVetted {
		improvements = append(improvements, improvementVetted)
	}

	ranked, filtered := s.rankProfiles(run.params, outcome.Profiles)
	improvements = append(improvements, improvementQuality)
	response.Recommendations = append(response.Recommendations, filtered.recommendations()...)

	verified, attempted := s.verify(ctx, ranked)
	if attempted > 0 {
		improvements = append(improvements, improvementVerification)
	}

	response.Results = ranked
	response.Success = len(ranked) > 0
	if !response.Success {
		response.Recommendations = append(response.Recommendations, "Every profile found was filtered out; widen the follower range or relax the demographic filters.")
	}
	response.Summary.TotalReturned = len(ranked)
	response.Summary.Verified = verified
	response.Summary.AverageScore = averageScore(ranked)
	response.Summary.ImprovementsUsed = improvements
	return response
}

type filterCounts struct {
	notInfluencer int
	followers     int
	demographics  int
}

func (f filterCounts) recommendations() []string {
	var out []string
	if f.notInfluencer > 0 {
		out = append(out, fmt.Sprintf("%d accounts looked like brands or inactive pages and were left out.", f.notInfluencer))
	}
	if f.followers > 0 {
		out = append(out, fmt.Sprintf("%d profiles were outside the requested follower range.", f.followers))
	}
	if f.demographics > 0 {
		out = append(out, fmt.Sprintf("%d profiles did not match the gender or age filters.", f.demographics))
	}
	return out
}

// rankProfiles classifies every profile, drops confident non-influencers and
// out-of-range profiles, and orders the rest by ranking score. Estimated and
// snippet data is never dropped on metrics it does not really have.
func (s *Service) rankProfiles(params domain.SearchParams, profiles []domain.Profile) ([]domain.RankedCandidate, filterCounts) {
	var counts filterCounts
	scorerCtx := quality.Context{BrandName: params.BrandName}
	results := make([]domain.RankedCandidate, 0, len(profiles))

	for _, p := range dedupeProfiles(profiles) {
		if p.PriorityScore == 0 && p.QualityScore == 0 {
			score := s.prioritize.Score(domain.CandidateProfile{
				URL:      p.URL,
				Platform: p.Platform,
				Handle:   p.Username,
				Title:    p.DisplayName,
				Snippet:  p.Bio,
			}, params)
			p.PriorityScore, p.QualityScore, p.Relevance = score.Priority, score.Quality, score.Relevance
		}

		decision := s.scorer.Decide(p, scorerCtx)
		if p.DataSource.Authoritative() {
			if decision.Category != domain.CategoryInfluencer && decision.Confidence >= s.rejectConfidence {
				counts.notInfluencer++
				continue
			}
			if !params.FollowersInRange(p.Followers) {
				counts.followers++
				continue
			}
		}
		if !demographicsMatch(p, params) {
			counts.demographics++
			continue
		}

		results = append(results, domain.RankedCandidate{
			Profile:  p,
			Score:    rankingScore(p, decision),
			Decision: decision,
			Reasons:  rankingReasons(p, decision),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].Followers != results[j].Followers {
			return results[i].Followers > results[j].Followers
		}
		return results[i].URL < results[j].URL
	})
	if len(results) > params.MaxResults {
		results = results[:params.MaxResults]
	}
	for i := range results {
		results[i].Rank = i + 1
	}
	return results, counts
}

func rankingScore(p domain.Profile, d domain.Decision) int {
	score := 0.35*float64(p.PriorityScore) +
		0.25*float64(p.QualityScore) +
		0.2*float64(p.Relevance) +
		0.2*d.Scores[domain.CategoryInfluencer]
	switch p.DataSource {
	case domain.SourceSearchSnippet:
		score *= 0.85
	case domain.SourceEstimated:
		score *= 0.75
	}
	return int(math.Round(math.Max(0, math.Min(100, score))))
}

func rankingReasons(p domain.Profile, d domain.Decision) []string {
	reasons := []string{d.Reason}
	switch p.DataSource {
	case domain.SourceEstimated:
		reasons = append(reasons, "metrics are estimated from discovery signals")
	case domain.SourceSearchSnippet:
		reasons = append(reasons, "metrics come from a search snippet")
	case domain.SourceVetted:
		reasons = append(reasons, "profile is part of the curated dataset")
	}
	return reasons
}

func demographicsMatch(p domain.Profile, params domain.SearchParams) bool {
	if params.Gender != "" && p.Gender != "" && !strings.EqualFold(params.Gender, p.Gender) {
		return false
	}
	if params.AgeRange != nil && p.Age > 0 {
		if p.Age < params.AgeRange.Min {
			return false
		}
		if params.AgeRange.Max > 0 && p.Age > params.AgeRange.Max {
			return false
		}
	}
	return true
}

// verify checks the top results through the verification breaker and returns
// how many were confirmed and how many were attempted.
func (s *Service) verify(ctx context.Context, results []domain.RankedCandidate) (int, int) {
	if s.verifier == nil || len(results) == 0 {
		return 0, 0
	}
	n := min(s.verifyTop, len(results))
	cb := s.breakers.Get(breaker.Name(breaker.ClassVerification, ""), nil)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxVerifyConcurrency)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			var verdict domain.Verification
			err := cb.ExecuteWithTimeout(gctx, s.verifyTimeout, func(ctx context.Context) error {
				var err error
				verdict, err = s.verifier.Verify(ctx, results[i].URL, results[i].Platform, s.verifyThreshold)
				return err
			}, nil)
			if err != nil {
				s.logger.Debug("verification skipped",
					slog.String("url", results[i].URL),
					slog.String("error", err.Error()),
				)
				return nil
			}
			ok := verdict.Verified
			results[i].Verified = &ok
			if verdict.Reason != "" {
				results[i].Reasons = append(results[i].Reasons, "verification: "+verdict.Reason)
			}
			return nil
		})
	}
	_ = g.Wait()

	verified := 0
	for i := 0; i < n; i++ {
		if results[i].Verified != nil && *results[i].Verified {
			verified++
		}
	}
	return verified, n
}

// Feedback applies a user correction to the candidate as it was returned by
// searchID.
func (s *Service) Feedback(ctx context.Context, searchID string, record domain.FeedbackRecord) error {
	actual, ok := domain.ParseCategory(string(record.ActualCategory))
	if !ok {
		return fmt.Errorf("%w: actualCategory must be influencer, brand or generic", domain.ErrInvalidParams)
	}
	result, brandName, err := s.history.lookup(strings.TrimSpace(searchID), record.Candidate)
	if err != nil {
		return err
	}

	record.Candidate = result.Profile
	record.BrandName = brandName
	record.SystemDecision = result.Decision
	record.ActualCategory = actual
	s.scorer.Feedback(record)

	s.logger.Info("feedback recorded",
		slog.String("searchId", searchID),
		slog.String("url", result.URL),
		slog.String("predicted", string(result.Decision.Category)),
		slog.String("actual", string(actual)),
		slog.Bool("userCorrected", record.UserCorrected),
	)
	return nil
}

func (s *Service) Breakers() []breaker.Stats {
	return s.breakers.Stats()
}

func (s *Service) ResetBreakers() {
	s.breakers.ResetAll()
}

func (s *Service) CacheStats() CacheStats {
	return s.cache.Stats()
}

func (s *Service) InvalidateCache(ctx context.Context, criteria string) int {
	return s.cache.Invalidate(ctx, criteria)
}

func (s *Service) ScorerSnapshot() quality.Snapshot {
	return s.scorer.Snapshot()
}

// mergeProfiles appends extra profiles whose URL is not already present.
func mergeProfiles(base, extra []domain.Profile) []domain.Profile {
	seen := make(map[string]struct{}, len(base))
	for _, p := range base {
		seen[profileIdentity(p)] = struct{}{}
	}
	for _, p := range extra {
		key := profileIdentity(p)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		base = append(base, p)
	}
	return base
}

func dedupeProfiles(profiles []domain.Profile) []domain.Profile {
	return mergeProfiles(nil, profiles)
}

func profileIdentity(p domain.Profile) string {
	if _, handle, _, ok := ParseProfileURL(p.URL); ok {
		return string(p.Platform) + ":" + strings.ToLower(handle)
	}
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(p.URL)), "/")
}

func averageScore(results []domain.RankedCandidate) float64 {
	if len(results) == 0 {
		return 0
	}
	sum := 0
	for _, r := range results {
		sum += r.Score
	}
	return math.Round(float64(sum)/float64(len(results))*10) / 10
}

func platformNames(platforms []domain.Platform) []string {
	out := make([]string, 0, len(platforms))
	for _, p := range platforms {
		out = append(out, string(p))
	}
	return out
}

func appendUnique(values []string, value string) []string {
	for _, v := range values {
		if v == value {
			return values
		}
	}
	return append(values, value)
}

package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"layai/searchservice/internal/breaker"
	"layai/searchservice/internal/domain"
	"layai/searchservice/internal/metrics"
	"layai/searchservice/internal/retry"
)

const (
	maxConcurrentQueries    = 8
	defaultDiscoveryLimit   = 20
	maxDiscoveryLimit       = 100
	defaultDiscoveryTimeout = 15 * time.Second
)

var siteFilters = map[domain.Platform]string{
	domain.PlatformInstagram: "instagram.com",
	domain.PlatformTikTok:    "tiktok.com",
	domain.PlatformYouTube:   "youtube.com",
	domain.PlatformTwitter:   "twitter.com",
	domain.PlatformFacebook:  "facebook.com",
	domain.PlatformLinkedIn:  "linkedin.com/in",
	domain.PlatformTwitch:    "twitch.tv",
}

// BuildQuery renders the site-restricted web query for one platform.
func BuildQuery(platform domain.Platform, params domain.SearchParams) string {
	parts := []string{"site:" + siteFilters[platform]}
	if params.UserQuery != "" {
		parts = append(parts, params.UserQuery)
	}
	parts = append(parts, params.Niches...)
	if params.Location != "" {
		parts = append(parts, params.Location)
	}
	if params.BrandName != "" {
		parts = append(parts, strconv.Quote(params.BrandName))
	}
	parts = append(parts, "influencer")
	return strings.Join(parts, " ")
}

func discoveryLimit(params domain.SearchParams) int {
	limit := params.MaxResults * 2
	if limit < defaultDiscoveryLimit {
		limit = defaultDiscoveryLimit
	}
	if limit > maxDiscoveryLimit {
		limit = maxDiscoveryLimit
	}
	return limit
}

var reservedPaths = map[domain.Platform]map[string]struct{}{
	domain.PlatformInstagram: set("p", "reel", "reels", "explore", "stories", "tv", "accounts", "direct", "about", "legal"),
	domain.PlatformTwitter:   set("i", "home", "search", "hashtag", "intent", "share", "explore", "settings", "login", "tos", "privacy"),
	domain.PlatformFacebook:  set("groups", "events", "watch", "share", "sharer", "marketplace", "login", "help", "hashtag", "photo", "photos", "permalink.php", "story.php"),
	domain.PlatformTwitch:    set("directory", "videos", "p", "search", "settings", "downloads", "jobs"),
	domain.PlatformYouTube:   set("watch", "shorts", "results", "playlist", "feed", "embed", "hashtag"),
}

func set(values ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(values))
	for _, v := range values {
		out[v] = struct{}{}
	}
	return out
}

var handlePattern = regexp.MustCompile(`^[A-Za-z0-9._\-]{1,64}$`)

// ParseProfileURL recognizes profile URLs and returns their platform, handle
// and canonical form. Posts, videos and navigation pages are rejected.
func ParseProfileURL(raw string) (domain.Platform, string, string, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return domain.PlatformUnknown, "", "", false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	host = strings.TrimPrefix(host, "m.")
	segments := strings.FieldsFunc(u.Path, func(r rune) bool { return r == '/' })

	var platform domain.Platform
	switch host {
	case "instagram.com":
		platform = domain.PlatformInstagram
	case "tiktok.com":
		platform = domain.PlatformTikTok
	case "youtube.com":
		platform = domain.PlatformYouTube
	case "twitter.com", "x.com":
		platform = domain.PlatformTwitter
	case "facebook.com":
		platform = domain.PlatformFacebook
	case "linkedin.com":
		platform = domain.PlatformLinkedIn
	case "twitch.tv":
		platform = domain.PlatformTwitch
	default:
		if strings.HasSuffix(host, ".linkedin.com") {
			platform = domain.PlatformLinkedIn
			break
		}
		return domain.PlatformUnknown, "", "", false
	}
	if len(segments) == 0 {
		return domain.PlatformUnknown, "", "", false
	}

	first := segments[0]
	handle := ""
	switch platform {
	case domain.PlatformTikTok:
		if !strings.HasPrefix(first, "@") {
			return domain.PlatformUnknown, "", "", false
		}
		handle = strings.TrimPrefix(first, "@")
	case domain.PlatformYouTube:
		switch {
		case strings.HasPrefix(first, "@"):
			handle = strings.TrimPrefix(first, "@")
		case (first == "c" || first == "user" || first == "channel") && len(segments) > 1:
			handle = segments[1]
		default:
			if _, reserved := reservedPaths[platform][strings.ToLower(first)]; reserved {
				return domain.PlatformUnknown, "", "", false
			}
			handle = first
		}
	case domain.PlatformLinkedIn:
		if first != "in" || len(segments) < 2 {
			return domain.PlatformUnknown, "", "", false
		}
		handle = segments[1]
	case domain.PlatformFacebook:
		if first == "profile.php" {
			handle = u.Query().Get("id")
			break
		}
		if first == "pages" && len(segments) > 1 {
			handle = segments[1]
			break
		}
		fallthrough
	default:
		if _, reserved := reservedPaths[platform][strings.ToLower(first)]; reserved {
			return domain.PlatformUnknown, "", "", false
		}
		handle = first
	}

	handle = strings.TrimPrefix(handle, "@")
	if !handlePattern.MatchString(handle) {
		return domain.PlatformUnknown, "", "", false
	}
	return platform, handle, CanonicalURL(platform, handle), true
}

// CanonicalURL is the stable profile URL for a platform handle.
func CanonicalURL(platform domain.Platform, handle string) string {
	switch platform {
	case domain.PlatformInstagram:
		return "https://www.instagram.com/" + handle
	case domain.PlatformTikTok:
		return "https://www.tiktok.com/@" + handle
	case domain.PlatformYouTube:
		return "https://www.youtube.com/@" + handle
	case domain.PlatformTwitter:
		return "https://x.com/" + handle
	case domain.PlatformFacebook:
		return "https://www.facebook.com/" + handle
	case domain.PlatformLinkedIn:
		return "https://www.linkedin.com/in/" + handle
	case domain.PlatformTwitch:
		return "https://www.twitch.tv/" + handle
	default:
		return ""
	}
}

var snippetFollowersPattern = regexp.MustCompile(`(?i)([0-9][0-9.,]*)\s*([KkMm]?)\+?\s+(followers|seguidores|subscribers|suscriptores|abonnés)`)

// ParseSnippetFollowers reads counts such as "12.5K Followers" from a search
// snippet. It returns 0 when none is present.
func ParseSnippetFollowers(snippet string) int64 {
	m := snippetFollowersPattern.FindStringSubmatch(snippet)
	if m == nil {
		return 0
	}
	number := m[1]
	suffix := strings.ToLower(m[2])
	if suffix == "" {
		number = strings.NewReplacer(",", "", ".", "").Replace(number)
	} else {
		number = strings.ReplaceAll(number, ",", ".")
	}
	value, err := strconv.ParseFloat(number, 64)
	if err != nil {
		return 0
	}
	switch suffix {
	case "k":
		value *= 1_000
	case "m":
		value *= 1_000_000
	}
	return int64(math.Round(value))
}

type discoveryStatus struct {
	Provider string
	Platform domain.Platform
	Count    int
	Err      error
}

type discoveryResult struct {
	Candidates []domain.CandidateProfile
	Statuses   []discoveryStatus
}

func (r discoveryResult) allFailed() bool {
	if len(r.Statuses) == 0 {
		return false
	}
	for _, status := range r.Statuses {
		if status.Err == nil {
			return false
		}
	}
	return true
}

func (r discoveryResult) firstError() error {
	for _, status := range r.Statuses {
		if status.Err != nil {
			return status.Err
		}
	}
	return nil
}

// discover runs every (searcher, platform) query concurrently, each through
// the searcher's web-search breaker, and merges the hits in searcher order so
// earlier searchers win duplicates.
func (s *Service) discover(ctx context.Context, searchers []WebSearcher, params domain.SearchParams) discoveryResult {
	platforms := params.Platforms
	hits := make([][][]domain.WebResult, len(searchers))
	statuses := make([]discoveryStatus, 0, len(searchers)*len(platforms))
	statusIndex := make([][]int, len(searchers))
	for i, searcher := range searchers {
		hits[i] = make([][]domain.WebResult, len(platforms))
		statusIndex[i] = make([]int, len(platforms))
		for j, platform := range platforms {
			statusIndex[i][j] = len(statuses)
			statuses = append(statuses, discoveryStatus{Provider: searcher.Name(), Platform: platform})
		}
	}

	limit := discoveryLimit(params)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentQueries)
	for i, searcher := range searchers {
		name := strings.ToLower(strings.TrimSpace(searcher.Name()))
		cb := s.breakers.Get(breaker.Name(breaker.ClassWebSearch, name), nil)
		for j, platform := range platforms {
			query := BuildQuery(platform, params)
			g.Go(func() error {
				var results []domain.WebResult
				started := time.Now()
				err := cb.ExecuteWithTimeout(gctx, s.discoveryTimeout, func(ctx context.Context) error {
					var err error
					results, err = searcher.Search(ctx, query, limit)
					return err
				}, nil)
				switch {
				case errors.Is(err, domain.ErrBreakerOpen):
					metrics.ProviderRequestsTotal.WithLabelValues(name, "rejected").Inc()
				case err != nil:
					metrics.ProviderRequestDuration.WithLabelValues(name).Observe(time.Since(started).Seconds())
					metrics.ProviderRequestsTotal.WithLabelValues(name, string(retry.Classify(err))).Inc()
				default:
					metrics.ProviderRequestDuration.WithLabelValues(name).Observe(time.Since(started).Seconds())
					metrics.ProviderRequestsTotal.WithLabelValues(name, "ok").Inc()
				}
				if err != nil {
					err = retry.Wrap(name, err, 1)
				}
				hits[i][j] = results
				statuses[statusIndex[i][j]].Count = len(results)
				statuses[statusIndex[i][j]].Err = err
				return nil
			})
		}
	}
	_ = g.Wait()

	seen := make(map[string]struct{})
	var candidates []domain.CandidateProfile
	for i, searcher := range searchers {
		for j := range platforms {
			for _, hit := range hits[i][j] {
				platform, handle, canonical, ok := ParseProfileURL(hit.Link)
				if !ok || !params.HasPlatform(platform) {
					continue
				}
				key := string(platform) + ":" + strings.ToLower(handle)
				if _, dup := seen[key]; dup {
					continue
				}
				seen[key] = struct{}{}
				candidates = append(candidates, domain.CandidateProfile{
					URL:        canonical,
					Platform:   platform,
					Handle:     handle,
					Title:      hit.Title,
					Snippet:    hit.Snippet,
					Provenance: searcher.Name(),
				})
			}
		}
	}

	for _, status := range statuses {
		if status.Err != nil {
			s.logger.Warn("discovery query failed",
				slog.String("provider", status.Provider),
				slog.String("platform", string(status.Platform)),
				slog.String("kind", string(retry.Classify(status.Err))),
				slog.String("error", status.Err.Error()),
			)
		}
	}
	s.logger.Debug("discovery finished",
		slog.Int("searchers", len(searchers)),
		slog.Int("platforms", len(platforms)),
		slog.Int("candidates", len(candidates)),
	)
	return discoveryResult{Candidates: candidates, Statuses: statuses}
}

// snippetProfile turns an unscraped candidate into a profile backed only by
// what the search snippet says.
func snippetProfile(c domain.CandidateProfile) domain.Profile {
	return domain.Profile{
		URL:           c.URL,
		Platform:      c.Platform,
		Username:      c.Handle,
		Bio:           c.Snippet,
		Followers:     ParseSnippetFollowers(c.Snippet + " " + c.Title),
		DataSource:    domain.SourceSearchSnippet,
		IsFallback:    true,
		Provenance:    c.Provenance,
		PriorityScore: c.PriorityScore,
		QualityScore:  c.QualityScore,
		Relevance:     c.EstimatedRelevance,
	}
}

func describeDiscoveryFailure(statuses []discoveryStatus) string {
	failed := 0
	for _, status := range statuses {
		if status.Err != nil {
			failed++
		}
	}
	return fmt.Sprintf("%d of %d discovery queries failed", failed, len(statuses))
}

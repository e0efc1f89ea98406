// Package apify runs Apify profile-scraper actors synchronously. It serves
// both budgeted scraping and single-profile verification.
package apify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"layai/searchservice/internal/domain"
	"layai/searchservice/internal/providers/common"
	"layai/searchservice/internal/scraping"
	"layai/searchservice/internal/search"
)

const defaultBaseURL = "https://api.apify.com/v2"

var (
	ErrMissingToken = errors.New("apify token not configured")
	ErrNoActor      = errors.New("no apify actor configured for platform")
)

// DefaultActors maps platforms to public profile-scraper actors.
func DefaultActors() map[domain.Platform]string {
	return map[domain.Platform]string{
		domain.PlatformInstagram: "apify~instagram-profile-scraper",
		domain.PlatformTikTok:    "clockworks~tiktok-profile-scraper",
		domain.PlatformYouTube:   "streamers~youtube-channel-scraper",
		domain.PlatformTwitter:   "apidojo~twitter-user-scraper",
		domain.PlatformLinkedIn:  "dev_fusion~linkedin-profile-scraper",
		domain.PlatformFacebook:  "apify~facebook-pages-scraper",
	}
}

type Config struct {
	Token   string
	BaseURL string
	Actors  map[domain.Platform]string
	Client  *http.Client
	Logger  *slog.Logger
}

type Client struct {
	token   string
	baseURL string
	actors  map[domain.Platform]string
	http    *http.Client
	logger  *slog.Logger
}

var (
	_ scraping.Scraper = (*Client)(nil)
	_ search.Verifier  = (*Client)(nil)
)

// actorInput carries every input shape the supported actors understand;
// each actor ignores the fields it does not know.
type actorInput struct {
	Usernames    []string   `json:"usernames,omitempty"`
	Profiles     []string   `json:"profiles,omitempty"`
	StartURLs    []startURL `json:"startUrls"`
	ResultsLimit int        `json:"resultsLimit,omitempty"`
	MaxItems     int        `json:"maxItems,omitempty"`
}

type startURL struct {
	URL string `json:"url"`
}

func NewClient(cfg Config) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	actors := DefaultActors()
	for platform, actor := range cfg.Actors {
		actor = strings.TrimSpace(actor)
		if actor == "" {
			delete(actors, platform)
			continue
		}
		actors[platform] = actor
	}
	httpClient := cfg.Client
	if httpClient == nil {
		httpClient = common.NewHTTPClient(2 * time.Minute)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		token:   strings.TrimSpace(cfg.Token),
		baseURL: baseURL,
		actors:  actors,
		http:    httpClient,
		logger:  logger,
	}
}

func (c *Client) Enabled() bool {
	return c.token != ""
}

// Scrape runs the platform's actor over req.URLs and maps the dataset items
// to profiles. Items the mapper cannot identify are dropped.
func (c *Client) Scrape(ctx context.Context, req scraping.ScrapeRequest) ([]domain.Profile, error) {
	if !c.Enabled() {
		return nil, ErrMissingToken
	}
	actor, ok := c.actors[req.Platform]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoActor, req.Platform)
	}
	if len(req.URLs) == 0 {
		return nil, nil
	}

	input := actorInput{StartURLs: make([]startURL, 0, len(req.URLs))}
	for _, raw := range req.URLs {
		input.StartURLs = append(input.StartURLs, startURL{URL: raw})
		if _, handle, _, ok := search.ParseProfileURL(raw); ok {
			input.Usernames = append(input.Usernames, handle)
		}
	}
	input.Profiles = input.Usernames
	input.ResultsLimit = max(req.ResultsLimit, len(req.URLs))
	input.MaxItems = input.ResultsLimit

	endpoint := c.runURL(ctx, actor)
	httpReq, err := common.NewJSONRequest(ctx, http.MethodPost, endpoint, input)
	if err != nil {
		return nil, err
	}

	var items []map[string]any
	if err := common.DoJSON(c.http, "apify", httpReq, &items); err != nil {
		return nil, err
	}

	profiles := make([]domain.Profile, 0, len(items))
	for _, item := range items {
		profile, ok := mapProfile(req.Platform, item)
		if !ok {
			continue
		}
		profiles = append(profiles, profile)
	}
	c.logger.Debug("apify actor finished",
		slog.String("actor", actor),
		slog.String("platform", string(req.Platform)),
		slog.Int("requested", len(req.URLs)),
		slog.Int("items", len(items)),
		slog.Int("profiles", len(profiles)),
	)
	return profiles, nil
}

// runURL passes the remaining context budget to Apify so the run stops
// server-side when the caller gives up.
func (c *Client) runURL(ctx context.Context, actor string) string {
	params := url.Values{"token": {c.token}}
	if deadline, ok := ctx.Deadline(); ok {
		if secs := int(time.Until(deadline).Seconds()); secs > 0 {
			params.Set("timeout", strconv.Itoa(secs))
		}
	}
	return c.baseURL + "/acts/" + url.PathEscape(actor) + "/run-sync-get-dataset-items?" + params.Encode()
}

// Verify scrapes a single profile and scores how well it matches the URL.
// The profile counts as verified when the confidence reaches threshold.
func (c *Client) Verify(ctx context.Context, profileURL string, platform domain.Platform, threshold int) (domain.Verification, error) {
	out := domain.Verification{URL: profileURL, Platform: platform}
	profiles, err := c.Scrape(ctx, scraping.ScrapeRequest{Platform: platform, URLs: []string{profileURL}, ResultsLimit: 1})
	if err != nil {
		return out, err
	}
	if len(profiles) == 0 {
		out.Reason = "profile not found"
		return out, nil
	}

	_, wantHandle, _, _ := search.ParseProfileURL(profileURL)
	best := profiles[0]
	confidence, reason := verificationConfidence(best, wantHandle)
	out.Confidence = confidence
	out.Reason = reason
	out.Verified = confidence >= threshold
	out.Profile = &best
	return out, nil
}

func verificationConfidence(p domain.Profile, wantHandle string) (int, string) {
	confidence := 0
	var signals []string
	if wantHandle != "" && strings.EqualFold(strings.TrimPrefix(p.Username, "@"), wantHandle) {
		confidence += 60
		signals = append(signals, "handle matches")
	}
	if p.Followers > 0 {
		confidence += 20
		signals = append(signals, "has audience")
	}
	if strings.TrimSpace(p.DisplayName) != "" || strings.TrimSpace(p.Bio) != "" {
		confidence += 20
		signals = append(signals, "has profile details")
	}
	if len(signals) == 0 {
		return 0, "profile returned without usable data"
	}
	return confidence, strings.Join(signals, ", ")
}

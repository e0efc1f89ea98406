// Package serper is the Serper.dev Google search adapter used for profile
// discovery.
package serper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"layai/searchservice/internal/domain"
	"layai/searchservice/internal/providers/common"
)

const (
	defaultEndpoint = "https://google.serper.dev/search"
	redisKeyPrefix  = "influencer:serper:"
	maxResults      = 100
)

var ErrMissingAPIKey = errors.New("serper api key not configured")

type Config struct {
	APIKey   string
	Endpoint string
	Country  string
	Language string
	Client   *http.Client
	Redis    *redis.Client
	CacheTTL time.Duration
	Logger   *slog.Logger
}

type Client struct {
	apiKey   string
	endpoint string
	country  string
	language string
	http     *http.Client
	redis    *redis.Client
	cacheTTL time.Duration
	logger   *slog.Logger
}

type searchRequest struct {
	Query    string `json:"q"`
	Num      int    `json:"num,omitempty"`
	Country  string `json:"gl,omitempty"`
	Language string `json:"hl,omitempty"`
}

type organicItem struct {
	Title    string `json:"title"`
	Link     string `json:"link"`
	Snippet  string `json:"snippet"`
	Position int    `json:"position"`
}

type searchResponse struct {
	Organic []organicItem `json:"organic"`
}

func NewClient(cfg Config) *Client {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	httpClient := cfg.Client
	if httpClient == nil {
		httpClient = common.NewHTTPClient(15 * time.Second)
	}
	cacheTTL := cfg.CacheTTL
	if cacheTTL <= 0 {
		cacheTTL = 6 * time.Hour
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		apiKey:   strings.TrimSpace(cfg.APIKey),
		endpoint: endpoint,
		country:  strings.ToLower(strings.TrimSpace(cfg.Country)),
		language: strings.ToLower(strings.TrimSpace(cfg.Language)),
		http:     httpClient,
		redis:    cfg.Redis,
		cacheTTL: cacheTTL,
		logger:   logger,
	}
}

func (c *Client) Name() string {
	return "serper"
}

func (c *Client) Enabled() bool {
	return c.apiKey != ""
}

func (c *Client) Search(ctx context.Context, query string, limit int) ([]domain.WebResult, error) {
	if !c.Enabled() {
		return nil, ErrMissingAPIKey
	}
	query = strings.TrimSpace(query)
	if limit <= 0 || limit > maxResults {
		limit = maxResults
	}

	cacheKey := redisKeyPrefix + fmt.Sprintf("%d:%s", limit, strings.ToLower(query))
	if cached, ok := c.cached(ctx, cacheKey); ok {
		return cached, nil
	}

	req, err := common.NewJSONRequest(ctx, http.MethodPost, c.endpoint, searchRequest{
		Query:    query,
		Num:      limit,
		Country:  c.country,
		Language: c.language,
	})
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-API-KEY", c.apiKey)

	var response searchResponse
	if err := common.DoJSON(c.http, c.Name(), req, &response); err != nil {
		return nil, err
	}

	results := make([]domain.WebResult, 0, len(response.Organic))
	for _, item := range response.Organic {
		link := strings.TrimSpace(item.Link)
		if link == "" {
			continue
		}
		results = append(results, domain.WebResult{
			Title:   common.CleanHTMLText(item.Title),
			Link:    link,
			Snippet: common.CleanHTMLText(item.Snippet),
		})
		if len(results) >= limit {
			break
		}
	}

	c.store(ctx, cacheKey, results)
	return results, nil
}

func (c *Client) cached(ctx context.Context, key string) ([]domain.WebResult, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Debug("serper cache read failed", slog.String("error", err.Error()))
		}
		return nil, false
	}
	var results []domain.WebResult
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, false
	}
	return results, true
}

func (c *Client) store(ctx context.Context, key string, results []domain.WebResult) {
	if c.redis == nil || len(results) == 0 {
		return
	}
	data, err := json.Marshal(results)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, key, data, c.cacheTTL).Err(); err != nil {
		c.logger.Debug("serper cache write failed", slog.String("error", err.Error()))
	}
}

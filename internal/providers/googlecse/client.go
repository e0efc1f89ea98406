// Package googlecse adapts the Google Custom Search JSON API for discovery.
package googlecse

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"layai/searchservice/internal/domain"
	"layai/searchservice/internal/providers/common"
)

const (
	defaultEndpoint = "https://www.googleapis.com/customsearch/v1"
	pageSize        = 10
	// The API refuses start+num beyond 100.
	maxResults = 100
)

var ErrNotConfigured = errors.New("google custom search requires an api key and engine id")

type Config struct {
	APIKey   string
	EngineID string
	Endpoint string
	Client   *http.Client
}

type Client struct {
	apiKey   string
	engineID string
	endpoint string
	http     *http.Client
}

type item struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

type response struct {
	Items   []item `json:"items"`
	Queries struct {
		NextPage []struct {
			StartIndex int `json:"startIndex"`
		} `json:"nextPage"`
	} `json:"queries"`
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
	return &Client{
		apiKey:   strings.TrimSpace(cfg.APIKey),
		engineID: strings.TrimSpace(cfg.EngineID),
		endpoint: endpoint,
		http:     httpClient,
	}
}

func (c *Client) Name() string {
	return "google-cse"
}

func (c *Client) Enabled() bool {
	return c.apiKey != "" && c.engineID != ""
}

// Search pages through results ten at a time until limit is reached or the
// API reports no next page.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]domain.WebResult, error) {
	if !c.Enabled() {
		return nil, ErrNotConfigured
	}
	if limit <= 0 || limit > maxResults {
		limit = maxResults
	}

	results := make([]domain.WebResult, 0, limit)
	start := 1
	for len(results) < limit && start <= maxResults-pageSize+1 {
		page, next, err := c.fetch(ctx, strings.TrimSpace(query), start, min(pageSize, limit-len(results)))
		if err != nil {
			if len(results) > 0 {
				// Keep what earlier pages returned.
				return results, nil
			}
			return nil, err
		}
		results = append(results, page...)
		if next == 0 || len(page) == 0 {
			break
		}
		start = next
	}
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (c *Client) fetch(ctx context.Context, query string, start, num int) ([]domain.WebResult, int, error) {
	params := url.Values{
		"key":   {c.apiKey},
		"cx":    {c.engineID},
		"q":     {query},
		"num":   {strconv.Itoa(num)},
		"start": {strconv.Itoa(start)},
	}
	req, err := common.NewJSONRequest(ctx, http.MethodGet, c.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, 0, err
	}

	var payload response
	if err := common.DoJSON(c.http, c.Name(), req, &payload); err != nil {
		return nil, 0, err
	}

	out := make([]domain.WebResult, 0, len(payload.Items))
	for _, it := range payload.Items {
		if strings.TrimSpace(it.Link) == "" {
			continue
		}
		out = append(out, domain.WebResult{
			Title:   common.CleanHTMLText(it.Title),
			Link:    strings.TrimSpace(it.Link),
			Snippet: common.CleanHTMLText(it.Snippet),
		})
	}
	next := 0
	if len(payload.Queries.NextPage) > 0 {
		next = payload.Queries.NextPage[0].StartIndex
	}
	return out, next, nil
}

package apify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"layai/searchservice/internal/domain"
	"layai/searchservice/internal/scraping"
)

// ---------------------------------------------------------------------------
// Scrape
// ---------------------------------------------------------------------------

func TestScrapeRunsPlatformActor(t *testing.T) {
	var gotInput actorInput
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/acts/apify~instagram-profile-scraper/run-sync-get-dataset-items") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("token") != "tok" {
			t.Errorf("missing token")
		}
		if r.URL.Query().Get("timeout") == "" {
			t.Errorf("expected the context deadline to be forwarded")
		}
		if err := json.NewDecoder(r.Body).Decode(&gotInput); err != nil {
			t.Errorf("decode input: %v", err)
		}
		_, _ = w.Write([]byte(`[
			{"username":"laura.runs","fullName":"Laura Runner","biography":"Running coach","followersCount":25000,"followsCount":400,"postsCount":310,"verified":true,"isBusinessAccount":false,"url":"https://www.instagram.com/laura.runs/"},
			{"error":"not_found","inputUrl":""}
		]`))
	}))
	defer server.Close()

	client := NewClient(Config{Token: "tok", BaseURL: server.URL, Client: server.Client()})
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	profiles, err := client.Scrape(ctx, scraping.ScrapeRequest{
		Platform:     domain.PlatformInstagram,
		URLs:         []string{"https://www.instagram.com/laura.runs", "https://www.instagram.com/ghost.account"},
		ResultsLimit: 2,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff([]string{"laura.runs", "ghost.account"}, gotInput.Usernames); diff != "" {
		t.Fatalf("usernames mismatch (-want +got):\n%s", diff)
	}
	want := []domain.Profile{{
		URL:         "https://www.instagram.com/laura.runs",
		Platform:    domain.PlatformInstagram,
		Username:    "laura.runs",
		DisplayName: "Laura Runner",
		Bio:         "Running coach",
		Followers:   25000,
		Following:   400,
		Posts:       310,
		Verified:    true,
		DataSource:  domain.SourceScraped,
	}}
	if diff := cmp.Diff(want, profiles); diff != "" {
		t.Fatalf("profiles mismatch (-want +got):\n%s", diff)
	}
}

func TestScrapeMapsStatusErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
	}))
	defer server.Close()

	client := NewClient(Config{Token: "secret-apify-token", BaseURL: server.URL, Client: server.Client()})
	_, err := client.Scrape(context.Background(), scraping.ScrapeRequest{Platform: domain.PlatformTikTok, URLs: []string{"https://www.tiktok.com/@marta"}})
	var statusErr *domain.HTTPStatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusPaymentRequired {
		t.Fatalf("expected 402 status error, got %v", err)
	}
	if strings.Contains(statusErr.Error(), "secret-apify-token") {
		t.Fatal("token leaked into the error message")
	}
}

func TestScrapeWithoutActor(t *testing.T) {
	client := NewClient(Config{Token: "tok", Actors: map[domain.Platform]string{domain.PlatformInstagram: ""}})
	_, err := client.Scrape(context.Background(), scraping.ScrapeRequest{Platform: domain.PlatformInstagram, URLs: []string{"https://www.instagram.com/a"}})
	if !errors.Is(err, ErrNoActor) {
		t.Fatalf("expected ErrNoActor, got %v", err)
	}
	if _, err := NewClient(Config{}).Scrape(context.Background(), scraping.ScrapeRequest{}); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected ErrMissingToken, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Verify
// ---------------------------------------------------------------------------

func TestVerify(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		threshold int
		verified  bool
		conf      int
	}{
		{"full match", `[{"username":"laura.runs","fullName":"Laura","followersCount":100}]`, 70, true, 100},
		{"wrong handle", `[{"username":"someone","fullName":"Laura","followersCount":100}]`, 70, false, 40},
		{"empty dataset", `[]`, 70, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := NewClient(Config{Token: "tok", BaseURL: server.URL, Client: server.Client()})
			got, err := client.Verify(context.Background(), "https://www.instagram.com/laura.runs", domain.PlatformInstagram, tt.threshold)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Verified != tt.verified || got.Confidence != tt.conf {
				t.Fatalf("unexpected verification: %+v", got)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// mapProfile
// ---------------------------------------------------------------------------

func TestMapProfileTikTokAuthorMeta(t *testing.T) {
	item := map[string]any{
		"authorMeta": map[string]any{
			"name":      "marta.fit",
			"nickName":  "Marta",
			"signature": "Fitness creator",
			"fans":      float64(150000),
			"following": float64(300),
			"video":     float64(90),
			"verified":  false,
		},
		"engagementRate": 0.052,
	}
	p, ok := mapProfile(domain.PlatformTikTok, item)
	if !ok {
		t.Fatal("expected a profile")
	}
	if p.Followers != 150000 || p.Bio != "Fitness creator" || p.EngagementRate != 5.2 {
		t.Fatalf("unexpected profile: %+v", p)
	}
	if p.URL != "https://www.tiktok.com/@marta.fit" {
		t.Fatalf("expected a canonical url from the username, got %q", p.URL)
	}
}

func TestMapProfileHumanCounts(t *testing.T) {
	p, ok := mapProfile(domain.PlatformYouTube, map[string]any{
		"channelUrl":          "https://www.youtube.com/@RunWithMe",
		"channelName":         "Run With Me",
		"numberOfSubscribers": "1.2M",
	})
	if !ok || p.Followers != 1_200_000 || p.Username != "RunWithMe" {
		t.Fatalf("unexpected profile: %+v (ok=%v)", p, ok)
	}
	if _, ok := mapProfile(domain.PlatformYouTube, map[string]any{"error": "x"}); ok {
		t.Fatal("items without identity must be rejected")
	}
}

package search

import (
	"context"
	"net/http"
	"testing"

	"layai/searchservice/internal/domain"
)

func TestParseProfileURL(t *testing.T) {
	tests := []struct {
		raw       string
		platform  domain.Platform
		handle    string
		canonical string
		ok        bool
	}{
		{"https://www.instagram.com/laura.runs/", domain.PlatformInstagram, "laura.runs", "https://www.instagram.com/laura.runs", true},
		{"https://instagram.com/laura.runs?hl=es", domain.PlatformInstagram, "laura.runs", "https://www.instagram.com/laura.runs", true},
		{"https://www.instagram.com/p/Cx12345/", "", "", "", false},
		{"https://www.instagram.com/reel/Cx12345/", "", "", "", false},
		{"https://www.tiktok.com/@marta.fit", domain.PlatformTikTok, "marta.fit", "https://www.tiktok.com/@marta.fit", true},
		{"https://www.tiktok.com/tag/fitness", "", "", "", false},
		{"https://m.youtube.com/@RunWithMe", domain.PlatformYouTube, "RunWithMe", "https://www.youtube.com/@RunWithMe", true},
		{"https://www.youtube.com/c/RunWithMe/videos", domain.PlatformYouTube, "RunWithMe", "https://www.youtube.com/@RunWithMe", true},
		{"https://www.youtube.com/watch?v=abc", "", "", "", false},
		{"https://x.com/laura_runs", domain.PlatformTwitter, "laura_runs", "https://x.com/laura_runs", true},
		{"https://twitter.com/search?q=run", "", "", "", false},
		{"https://es.linkedin.com/in/laura-garcia", domain.PlatformLinkedIn, "laura-garcia", "https://www.linkedin.com/in/laura-garcia", true},
		{"https://www.linkedin.com/company/nike", "", "", "", false},
		{"https://www.facebook.com/pages/RunClub", domain.PlatformFacebook, "RunClub", "https://www.facebook.com/RunClub", true},
		{"https://www.facebook.com/groups/runners", "", "", "", false},
		{"https://www.twitch.tv/speedrunner", domain.PlatformTwitch, "speedrunner", "https://www.twitch.tv/speedrunner", true},
		{"https://example.com/laura", "", "", "", false},
		{"not a url", "", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			platform, handle, canonical, ok := ParseProfileURL(tt.raw)
			if ok != tt.ok || platform != tt.platform || handle != tt.handle || canonical != tt.canonical {
				t.Fatalf("ParseProfileURL(%q) = %q, %q, %q, %v", tt.raw, platform, handle, canonical, ok)
			}
		})
	}
}

func TestParseSnippetFollowers(t *testing.T) {
	tests := []struct {
		snippet string
		want    int64
	}{
		{"12.5K Followers, 300 Following, 420 Posts", 12500},
		{"1.2M followers · Fitness", 1_200_000},
		{"15,3 mil... 2,4K seguidores", 2400},
		{"Tiene 1.234 seguidores", 1234},
		{"890 subscribers", 890},
		{"no counts here", 0},
	}
	for _, tt := range tests {
		if got := ParseSnippetFollowers(tt.snippet); got != tt.want {
			t.Fatalf("ParseSnippetFollowers(%q) = %d, want %d", tt.snippet, got, tt.want)
		}
	}
}

func TestBuildQuery(t *testing.T) {
	params := domain.SearchParams{
		Niches:    []string{"Running", "fitness"},
		Location:  "Madrid",
		BrandName: "Nike",
		UserQuery: "marathon",
	}.Normalize()

	got := BuildQuery(domain.PlatformInstagram, params)
	want := `site:instagram.com marathon fitness running Madrid "Nike" influencer`
	if got != want {
		t.Fatalf("unexpected query:\n got: %s\nwant: %s", got, want)
	}
	if got := BuildQuery(domain.PlatformLinkedIn, domain.SearchParams{Niches: []string{"yoga"}}); got != "site:linkedin.com/in yoga influencer" {
		t.Fatalf("unexpected linkedin query: %s", got)
	}
}

func TestDiscoveryLimit(t *testing.T) {
	for _, tt := range []struct{ maxResults, want int }{{5, 20}, {30, 60}, {80, 100}} {
		if got := discoveryLimit(domain.SearchParams{MaxResults: tt.maxResults}); got != tt.want {
			t.Fatalf("discoveryLimit(%d) = %d, want %d", tt.maxResults, got, tt.want)
		}
	}
}

func TestDiscover_PartialFailureKeepsHealthyResults(t *testing.T) {
	good := profileSearcher("google", 3)
	bad := failingSearcher("serper", http.StatusTooManyRequests)
	svc, _ := newTestService([]WebSearcher{bad, good}, echoActor())
	params := instagramRequest(domain.ModeBalanced).Params.Normalize()

	found := svc.discover(context.Background(), svc.searchers, params)
	if found.allFailed() {
		t.Fatal("one healthy searcher is not a total failure")
	}
	if len(found.Candidates) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(found.Candidates))
	}
	for _, c := range found.Candidates {
		if c.Provenance != "google" || c.Platform != domain.PlatformInstagram {
			t.Fatalf("unexpected candidate: %+v", c)
		}
	}
	if err := found.firstError(); err == nil {
		t.Fatal("expected the failing provider to be reported")
	}
}

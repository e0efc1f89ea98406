package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"layai/searchservice/internal/breaker"
	"layai/searchservice/internal/domain"
	"layai/searchservice/internal/scraping"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, key := range []string{"HTTP_ADDR", "SCRAPING_MODE", "SEARCH_CACHE_DISABLED", "SCRAPE_RATE_PER_SECOND", "SERPER_API_KEY"} {
		t.Setenv(key, "")
	}
	cfg := LoadConfig()
	if cfg.HTTPAddr != ":8095" || cfg.DefaultMode != "balanced" || cfg.CacheDisabled {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.ScrapeRate != 2 || cfg.SearchTimeout != 2*time.Minute || cfg.SerperCacheTTL != 6*time.Hour {
		t.Fatalf("unexpected timing defaults: %+v", cfg)
	}
	if cfg.SerperAPIKey != "" {
		t.Fatal("api key must default to empty")
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9000")
	t.Setenv("SCRAPING_MODE", "Economy")
	t.Setenv("SEARCH_CACHE_DISABLED", "yes")
	t.Setenv("SCRAPE_RATE_PER_SECOND", "0.5")
	t.Setenv("VERIFY_TOP_N", "-3")
	t.Setenv("SERPER_API_KEY", "  secret  ")

	cfg := LoadConfig()
	if cfg.HTTPAddr != ":9000" || cfg.DefaultMode != "economy" || !cfg.CacheDisabled {
		t.Fatalf("env not applied: %+v", cfg)
	}
	if cfg.ScrapeRate != 0.5 {
		t.Fatalf("expected fractional rate, got %v", cfg.ScrapeRate)
	}
	if cfg.VerifyTopN != 5 {
		t.Fatalf("negative ints fall back to the default, got %d", cfg.VerifyTopN)
	}
	if cfg.SerperAPIKey != "secret" {
		t.Fatalf("expected trimmed key, got %q", cfg.SerperAPIKey)
	}
}

func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		raw      string
		fallback bool
		want     bool
	}{
		{"", true, true},
		{"on", false, true},
		{"0", true, false},
		{"maybe", true, true},
	}
	for _, tt := range tests {
		t.Setenv("FLAG", tt.raw)
		if got := getEnvBool("FLAG", tt.fallback); got != tt.want {
			t.Fatalf("getEnvBool(%q, %v) = %v", tt.raw, tt.fallback, got)
		}
	}
}

// ---------------------------------------------------------------------------
// Overrides
// ---------------------------------------------------------------------------

func TestLoadOverridesMissingFile(t *testing.T) {
	overrides, err := LoadOverrides(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("missing file must not fail: %v", err)
	}
	if diff := cmp.Diff(scraping.DefaultModes(), overrides.ModeTable()); diff != "" {
		t.Fatalf("expected default modes (-want +got):\n%s", diff)
	}
}

func TestParseOverrides(t *testing.T) {
	data := []byte(`
modes:
  balanced:
    maxProfiles: 40
  unlimited:
    fallbackEnabled: true
breakers:
  web-search:
    failureThreshold: 8
actors:
  ig: someone~instagram-scraper
prioritizer:
  placeholderWords: [test]
scorer:
  thresholds:
    influencer: 65
  weights:
    personalBio: 0.4
  learningRate: 0.1
`)
	overrides, err := ParseOverrides(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	modes := overrides.ModeTable()
	balanced := modes.Config(domain.ModeBalanced)
	if balanced.MaxProfiles != 40 || !balanced.Parallel || !balanced.FallbackEnabled || balanced.PriorityThreshold != 60 {
		t.Fatalf("partial mode override must keep other defaults: %+v", balanced)
	}
	if modes.Config(domain.ModeUnlimited).FallbackEnabled {
		t.Fatal("unlimited mode must never enable fallback data")
	}

	wantBreaker := breaker.DefaultPresets()[breaker.ClassWebSearch]
	wantBreaker.FailureThreshold = 8
	if diff := cmp.Diff(map[string]breaker.Config{breaker.ClassWebSearch: wantBreaker}, overrides.Breakers); diff != "" {
		t.Fatalf("breaker presets mismatch (-want +got):\n%s", diff)
	}
	if overrides.Actors[domain.PlatformInstagram] != "someone~instagram-scraper" {
		t.Fatalf("expected actor alias to resolve, got %v", overrides.Actors)
	}
	if got := overrides.PrioritizerTables().PlaceholderWords; len(got) != 1 || got[0] != "test" {
		t.Fatalf("unexpected placeholder words: %v", got)
	}
	if overrides.Scorer.Thresholds.Influencer != 65 || overrides.Scorer.Weights["personalBio"] != 0.4 {
		t.Fatalf("unexpected scorer overrides: %+v", overrides.Scorer)
	}
	if len(overrides.ScorerOptions()) != 2 {
		t.Fatalf("expected threshold and learning rate options")
	}
}

func TestParseOverridesRejectsUnknownKeys(t *testing.T) {
	for name, data := range map[string]string{
		"mode":     "modes:\n  turbo:\n    maxProfiles: 5\n",
		"breaker":  "breakers:\n  database:\n    failureThreshold: 2\n",
		"platform": "actors:\n  myspace: a/b\n",
		"yaml":     "modes: [",
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseOverrides([]byte(data)); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestLoadOverridesFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "overrides.yaml")
	if err := os.WriteFile(path, []byte("modes:\n  economy:\n    timeout: 10s\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	overrides, err := LoadOverrides(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := overrides.ModeTable().Config(domain.ModeEconomy).Timeout; got != 10*time.Second {
		t.Fatalf("expected 10s economy timeout, got %s", got)
	}
}

package vetted

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.mongodb.org/mongo-driver/bson"

	"layai/searchservice/internal/domain"
)

const seedYAML = `
profiles:
  - url: https://www.instagram.com/marta.fit
    platform: Instagram
    username: "@marta.fit"
    displayName: Marta Gómez
    country: ES
    location: Madrid, Spain
    gender: Female
    niches: [Fitness, Running]
    followers: 40000
  - url: https://www.tiktok.com/@pierre.cuisine
    platform: tiktok
    username: pierre.cuisine
    country: FR
    niches: [food]
    followers: 120000
  - url: https://www.instagram.com/laura.yoga
    platform: ig
    username: laura.yoga
    country: ES
    location: Barcelona
    niches: [yoga, fitness]
    followers: 9000
`

func seededStore(t *testing.T) *MemoryStore {
	t.Helper()
	profiles, err := ParseSeed([]byte(seedYAML))
	if err != nil {
		t.Fatalf("parse seed: %v", err)
	}
	return NewMemoryStore(profiles)
}

// ---------------------------------------------------------------------------
// Seed loading
// ---------------------------------------------------------------------------

func TestLoadSeedMissingFileIsEmpty(t *testing.T) {
	profiles, err := LoadSeed(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil || len(profiles) != 0 {
		t.Fatalf("expected empty dataset, got %d profiles, err=%v", len(profiles), err)
	}
}

func TestLoadSeedFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vetted.yaml")
	if err := os.WriteFile(path, []byte(seedYAML), 0o600); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	profiles, err := LoadSeed(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(profiles) != 3 || profiles[0].Username != "marta.fit" || profiles[2].Platform != domain.PlatformInstagram {
		t.Fatalf("unexpected profiles: %+v", profiles)
	}
}

func TestParseSeedRejectsUnknownPlatform(t *testing.T) {
	_, err := ParseSeed([]byte("profiles:\n  - url: https://myspace.com/x\n    platform: myspace\n"))
	if err == nil {
		t.Fatal("expected an error for an unknown platform")
	}
}

// ---------------------------------------------------------------------------
// MemoryStore
// ---------------------------------------------------------------------------

func TestMemoryStoreQuery(t *testing.T) {
	store := seededStore(t)
	tests := []struct {
		name   string
		filter domain.VettedFilter
		want   []string
	}{
		{"no filter sorts by audience", domain.VettedFilter{}, []string{"pierre.cuisine", "marta.fit", "laura.yoga"}},
		{"platform", domain.VettedFilter{Platforms: []domain.Platform{domain.PlatformInstagram}}, []string{"marta.fit", "laura.yoga"}},
		{"country code", domain.VettedFilter{Country: "es"}, []string{"marta.fit", "laura.yoga"}},
		{"country as location token", domain.VettedFilter{Country: "Paris, FR"}, []string{"pierre.cuisine"}},
		{"location substring", domain.VettedFilter{Country: "madrid"}, []string{"marta.fit"}},
		{"niche folded", domain.VettedFilter{Niches: []string{"FITNESS"}}, []string{"marta.fit", "laura.yoga"}},
		{"follower range", domain.VettedFilter{MinFollowers: 10000, MaxFollowers: 100000}, []string{"marta.fit"}},
		{"gender", domain.VettedFilter{Gender: "female"}, []string{"marta.fit"}},
		{"limit", domain.VettedFilter{Limit: 1}, []string{"pierre.cuisine"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profiles, err := store.Query(context.Background(), tt.filter)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			got := make([]string, 0, len(profiles))
			for _, p := range profiles {
				got = append(got, p.Username)
				if p.DataSource != domain.SourceVetted || p.IsFallback {
					t.Fatalf("vetted profiles must be tagged as vetted: %+v", p)
				}
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("query mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMemoryStoreHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := seededStore(t).Query(ctx, domain.VettedFilter{}); err == nil {
		t.Fatal("expected context error")
	}
}

// ---------------------------------------------------------------------------
// Mongo documents
// ---------------------------------------------------------------------------

func TestBuildQuery(t *testing.T) {
	got := buildQuery(domain.VettedFilter{
		Country:      "Madrid, ES",
		Platforms:    []domain.Platform{domain.PlatformInstagram},
		Niches:       []string{"Fitness"},
		Gender:       "Female",
		MinFollowers: 1000,
	})
	want := bson.M{
		"platform":  bson.M{"$in": []string{"instagram"}},
		"niches":    bson.M{"$in": []string{"fitness"}},
		"gender":    "female",
		"followers": bson.M{"$gte": int64(1000)},
		"$or": bson.A{
			bson.M{"countryKey": bson.M{"$in": []string{"madrid, es", "madrid", "es"}}},
			bson.M{"locationKey": bson.M{"$regex": "madrid, es"}},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("query mismatch (-want +got):\n%s", diff)
	}
}

func TestToDocFromDocRoundtrip(t *testing.T) {
	profile := prepare(domain.Profile{
		URL:            "https://www.instagram.com/marta.fit",
		Platform:       domain.PlatformInstagram,
		Username:       "Marta.Fit",
		DisplayName:    "Marta Gómez",
		Country:        "ES",
		Location:       "Madrid",
		Gender:         "female",
		Age:            29,
		Niches:         []string{"fitness"},
		Followers:      40000,
		Following:      500,
		Posts:          610,
		EngagementRate: 3.4,
		Verified:       true,
	})
	doc := toDoc(profile, 1700000000)
	if doc.ID != "instagram:marta.fit" || doc.CountryKey != "es" || doc.LocationKey != "madrid" {
		t.Fatalf("unexpected document keys: %+v", doc)
	}
	if diff := cmp.Diff(profile, fromDoc(doc)); diff != "" {
		t.Fatalf("roundtrip mismatch (-want +got):\n%s", diff)
	}
}

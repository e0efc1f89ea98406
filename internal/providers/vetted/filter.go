// Package vetted serves the curated influencer dataset used as a fallback and
// as enrichment for location-scoped searches.
package vetted

import (
	"sort"
	"strings"

	"layai/searchservice/internal/domain"
	"layai/searchservice/internal/textnorm"
)

const defaultLimit = 50

func queryLimit(filter domain.VettedFilter) int {
	if filter.Limit <= 0 {
		return defaultLimit
	}
	return filter.Limit
}

// matches applies filter to p the same way the Mongo query does.
func matches(p domain.Profile, filter domain.VettedFilter) bool {
	if len(filter.Platforms) > 0 && !containsPlatform(filter.Platforms, p.Platform) {
		return false
	}
	if filter.Country != "" && !locationMatches(p, filter.Country) {
		return false
	}
	if filter.Gender != "" && !strings.EqualFold(filter.Gender, p.Gender) {
		return false
	}
	if p.Followers < filter.MinFollowers {
		return false
	}
	if filter.MaxFollowers > 0 && p.Followers > filter.MaxFollowers {
		return false
	}
	if len(filter.Niches) > 0 && !sharesNiche(p.Niches, filter.Niches) {
		return false
	}
	return true
}

// locationMatches accepts an exact country, a country named as one token of
// the location ("Madrid, ES") or a profile location containing it.
func locationMatches(p domain.Profile, location string) bool {
	want := textnorm.Fold(location)
	if want == "" {
		return true
	}
	if country := textnorm.Fold(p.Country); country != "" {
		if country == want {
			return true
		}
		for _, token := range textnorm.Tokens(location) {
			if token == country {
				return true
			}
		}
	}
	return strings.Contains(textnorm.Fold(p.Location), want)
}

func sharesNiche(have, want []string) bool {
	set := make(map[string]struct{}, len(have))
	for _, niche := range textnorm.FoldAll(have) {
		set[niche] = struct{}{}
	}
	for _, niche := range textnorm.FoldAll(want) {
		if _, ok := set[niche]; ok {
			return true
		}
	}
	return false
}

func containsPlatform(platforms []domain.Platform, platform domain.Platform) bool {
	for _, item := range platforms {
		if item == platform {
			return true
		}
	}
	return false
}

// sortByAudience orders profiles by followers, then URL for stability.
func sortByAudience(profiles []domain.Profile) {
	sort.SliceStable(profiles, func(i, j int) bool {
		if profiles[i].Followers != profiles[j].Followers {
			return profiles[i].Followers > profiles[j].Followers
		}
		return profiles[i].URL < profiles[j].URL
	})
}

// prepare stamps the fields every dataset profile must carry.
func prepare(p domain.Profile) domain.Profile {
	p.Platform = domain.NormalizePlatform(string(p.Platform))
	p.Niches = textnorm.FoldAll(p.Niches)
	p.Gender = strings.ToLower(strings.TrimSpace(p.Gender))
	p.DataSource = domain.SourceVetted
	p.IsFallback = false
	p.Provenance = "vetted"
	return p
}

package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var ErrInvalidParams = errors.New("invalid search parameters")

type Platform string

const (
	PlatformInstagram Platform = "instagram"
	PlatformTikTok    Platform = "tiktok"
	PlatformYouTube   Platform = "youtube"
	PlatformTwitter   Platform = "twitter"
	PlatformFacebook  Platform = "facebook"
	PlatformLinkedIn  Platform = "linkedin"
	PlatformTwitch    Platform = "twitch"
	PlatformUnknown   Platform = ""
)

// KnownPlatforms lists every platform the discovery layer can parse profile URLs for.
var KnownPlatforms = []Platform{
	PlatformInstagram,
	PlatformTikTok,
	PlatformYouTube,
	PlatformTwitter,
	PlatformFacebook,
	PlatformLinkedIn,
	PlatformTwitch,
}

func NormalizePlatform(raw string) Platform {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "instagram", "ig", "insta":
		return PlatformInstagram
	case "tiktok", "tik tok", "tt":
		return PlatformTikTok
	case "youtube", "yt":
		return PlatformYouTube
	case "twitter", "x":
		return PlatformTwitter
	case "facebook", "fb":
		return PlatformFacebook
	case "linkedin":
		return PlatformLinkedIn
	case "twitch":
		return PlatformTwitch
	default:
		return PlatformUnknown
	}
}

type ScrapingMode string

const (
	ModeEconomy       ScrapingMode = "economy"
	ModeBalanced      ScrapingMode = "balanced"
	ModeComprehensive ScrapingMode = "comprehensive"
	ModeUnlimited     ScrapingMode = "unlimited"
)

func NormalizeScrapingMode(raw string, fallback ScrapingMode) ScrapingMode {
	switch ScrapingMode(strings.ToLower(strings.TrimSpace(raw))) {
	case ModeEconomy:
		return ModeEconomy
	case ModeBalanced:
		return ModeBalanced
	case ModeComprehensive:
		return ModeComprehensive
	case ModeUnlimited:
		return ModeUnlimited
	default:
		return fallback
	}
}

// ScrapingConfig is chosen once per search from the mode table and never mutated.
type ScrapingConfig struct {
	Mode              ScrapingMode  `json:"mode" yaml:"-"`
	MaxProfiles       int           `json:"maxProfiles" yaml:"maxProfiles"`
	PriorityThreshold int           `json:"priorityThreshold" yaml:"priorityThreshold"`
	Timeout           time.Duration `json:"timeout" yaml:"timeout"`
	RetryAttempts     int           `json:"retryAttempts" yaml:"retryAttempts"`
	Parallel          bool          `json:"parallel" yaml:"parallel"`
	FallbackEnabled   bool          `json:"fallbackEnabled" yaml:"fallbackEnabled"`
}

type AgeRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

type SearchParams struct {
	Platforms    []Platform `json:"platforms"`
	Niches       []string   `json:"niches"`
	MinFollowers int64      `json:"minFollowers"`
	MaxFollowers int64      `json:"maxFollowers"`
	Location     string     `json:"location,omitempty"`
	Gender       string     `json:"gender,omitempty"`
	AgeRange     *AgeRange  `json:"ageRange,omitempty"`
	BrandName    string     `json:"brandName,omitempty"`
	UserQuery    string     `json:"userQuery,omitempty"`
	MaxResults   int        `json:"maxResults"`
}

type SearchRequest struct {
	Params  SearchParams
	Mode    ScrapingMode
	NoCache bool
}

const (
	DefaultMaxResults = 20
	MaxMaxResults     = 100
)

// Normalize returns a copy with trimmed strings, canonical platforms, deduplicated
// lower-cased niches and a bounded result count. It never fails; Validate does.
func (p SearchParams) Normalize() SearchParams {
	out := p

	platforms := make([]Platform, 0, len(p.Platforms))
	seenPlatforms := make(map[Platform]struct{}, len(p.Platforms))
	for _, raw := range p.Platforms {
		platform := NormalizePlatform(string(raw))
		if platform == PlatformUnknown {
			continue
		}
		if _, ok := seenPlatforms[platform]; ok {
			continue
		}
		seenPlatforms[platform] = struct{}{}
		platforms = append(platforms, platform)
	}
	sort.Slice(platforms, func(i, j int) bool { return platforms[i] < platforms[j] })
	out.Platforms = platforms

	out.Niches = normalizeStrings(p.Niches)
	out.Location = strings.TrimSpace(p.Location)
	out.Gender = strings.ToLower(strings.TrimSpace(p.Gender))
	out.BrandName = strings.TrimSpace(p.BrandName)
	out.UserQuery = strings.TrimSpace(p.UserQuery)

	if out.MaxResults <= 0 {
		out.MaxResults = DefaultMaxResults
	}
	if out.MaxResults > MaxMaxResults {
		out.MaxResults = MaxMaxResults
	}
	if out.MinFollowers < 0 {
		out.MinFollowers = 0
	}
	if out.MaxFollowers < 0 {
		out.MaxFollowers = 0
	}
	if p.AgeRange != nil {
		ageRange := *p.AgeRange
		out.AgeRange = &ageRange
	}
	return out
}

func (p SearchParams) Validate() error {
	if len(p.Platforms) == 0 {
		return fmt.Errorf("%w: at least one supported platform is required", ErrInvalidParams)
	}
	if p.MaxFollowers > 0 && p.MinFollowers > p.MaxFollowers {
		return fmt.Errorf("%w: minFollowers exceeds maxFollowers", ErrInvalidParams)
	}
	if p.AgeRange != nil && p.AgeRange.Max > 0 && p.AgeRange.Min > p.AgeRange.Max {
		return fmt.Errorf("%w: ageRange min exceeds max", ErrInvalidParams)
	}
	if len(p.Niches) == 0 && p.BrandName == "" && p.UserQuery == "" {
		return fmt.Errorf("%w: provide niches, a brand name or a query", ErrInvalidParams)
	}
	return nil
}

// FollowersInRange reports whether n satisfies the requested follower bounds.
// A zero MaxFollowers means no upper bound.
func (p SearchParams) FollowersInRange(n int64) bool {
	if n < p.MinFollowers {
		return false
	}
	if p.MaxFollowers > 0 && n > p.MaxFollowers {
		return false
	}
	return true
}

func (p SearchParams) HasPlatform(platform Platform) bool {
	for _, item := range p.Platforms {
		if item == platform {
			return true
		}
	}
	return false
}

func normalizeStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, raw := range values {
		value := strings.ToLower(strings.TrimSpace(raw))
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	sort.Strings(out)
	return out
}

package apify

import (
	"math"
	"strconv"
	"strings"

	"layai/searchservice/internal/domain"
	"layai/searchservice/internal/providers/common"
	"layai/searchservice/internal/search"
)

// Field aliases across the supported actors, in order of preference.
var (
	urlFields        = []string{"url", "profileUrl", "inputUrl", "channelUrl", "pageUrl"}
	usernameFields   = []string{"username", "ownerUsername", "uniqueId", "userName", "channelUsername", "screen_name", "publicIdentifier"}
	nameFields       = []string{"fullName", "name", "nickname", "channelName", "nickName", "title"}
	bioFields        = []string{"biography", "bio", "signature", "description", "channelDescription", "headline", "about"}
	followerFields   = []string{"followersCount", "followers", "fans", "followerCount", "subscriberCount", "numberOfSubscribers", "likes"}
	followingFields  = []string{"followsCount", "following", "followingCount", "friends_count"}
	postFields       = []string{"postsCount", "videoCount", "video", "numberOfVideos", "statuses_count", "mediaCount"}
	engagementFields = []string{"engagementRate", "engagement_rate"}
	verifiedFields   = []string{"verified", "isVerified", "is_blue_verified"}
	businessFields   = []string{"isBusinessAccount", "is_business_account", "isBusiness"}
	locationFields   = []string{"location", "country", "addressLocality", "city"}
)

// mapProfile turns one dataset item into a profile. Items without a usable
// URL or username are rejected.
func mapProfile(platform domain.Platform, item map[string]any) (domain.Profile, bool) {
	if item == nil {
		return domain.Profile{}, false
	}
	if nested, ok := item["authorMeta"].(map[string]any); ok {
		merged := make(map[string]any, len(item)+len(nested))
		for k, v := range nested {
			merged[k] = v
		}
		// TikTok puts the handle under "name" and the display name under "nickName".
		if handle, ok := nested["name"].(string); ok {
			merged["uniqueId"] = handle
			delete(merged, "name")
		}
		for k, v := range item {
			if _, exists := merged[k]; !exists {
				merged[k] = v
			}
		}
		item = merged
	}

	p := domain.Profile{
		Platform:       platform,
		URL:            firstString(item, urlFields),
		Username:       strings.TrimPrefix(firstString(item, usernameFields), "@"),
		DisplayName:    firstString(item, nameFields),
		Bio:            firstString(item, bioFields),
		Location:       firstString(item, locationFields),
		Followers:      firstCount(item, followerFields),
		Following:      firstCount(item, followingFields),
		Posts:          firstCount(item, postFields),
		EngagementRate: firstFloat(item, engagementFields),
		Verified:       firstBool(item, verifiedFields),
		IsBusiness:     firstBool(item, businessFields) || firstString(item, []string{"businessCategoryName"}) != "",
		DataSource:     domain.SourceScraped,
	}

	if parsed, handle, canonical, ok := search.ParseProfileURL(p.URL); ok {
		p.Platform = parsed
		p.URL = canonical
		if p.Username == "" {
			p.Username = handle
		}
	}
	if p.URL == "" && p.Username != "" {
		p.URL = search.CanonicalURL(platform, p.Username)
	}
	if p.URL == "" && p.Username == "" {
		return domain.Profile{}, false
	}
	// Engagement is a percentage; some actors report a ratio.
	if p.EngagementRate > 0 && p.EngagementRate < 1 {
		p.EngagementRate = math.Round(p.EngagementRate*10000) / 100
	}
	return p, true
}

func firstString(item map[string]any, keys []string) string {
	for _, key := range keys {
		if value, ok := item[key].(string); ok {
			if value = strings.TrimSpace(value); value != "" {
				return value
			}
		}
	}
	return ""
}

func firstCount(item map[string]any, keys []string) int64 {
	for _, key := range keys {
		switch value := item[key].(type) {
		case float64:
			if value > 0 {
				return int64(value)
			}
		case string:
			if n := common.ParseHumanCount(value); n > 0 {
				return n
			}
		}
	}
	return 0
}

func firstFloat(item map[string]any, keys []string) float64 {
	for _, key := range keys {
		switch value := item[key].(type) {
		case float64:
			return value
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(value), "%"), 64); err == nil {
				return f
			}
		}
	}
	return 0
}

func firstBool(item map[string]any, keys []string) bool {
	for _, key := range keys {
		if value, ok := item[key].(bool); ok && value {
			return true
		}
	}
	return false
}

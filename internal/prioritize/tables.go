package prioritize

import "layai/searchservice/internal/domain"

// Tables holds the keyword data the sub-scores match against. The shipped
// values are small seeds; deployments override them from YAML.
type Tables struct {
	PlatformPreference map[domain.Platform]int `yaml:"platformPreference"`
	BrandKeywords      map[string][]string     `yaml:"brandKeywords"`
	NicheKeywords      map[string][]string     `yaml:"nicheKeywords"`
	LocationCodes      map[string][]string     `yaml:"locationCodes"`
	PlaceholderWords   []string                `yaml:"placeholderWords"`
	PositiveIndicators []string                `yaml:"positiveIndicators"`
	NegativeIndicators []string                `yaml:"negativeIndicators"`
}

func DefaultTables() Tables {
	return Tables{
		PlatformPreference: map[domain.Platform]int{
			domain.PlatformInstagram: 80,
			domain.PlatformTikTok:    75,
			domain.PlatformYouTube:   70,
			domain.PlatformTwitter:   55,
			domain.PlatformTwitch:    50,
			domain.PlatformFacebook:  45,
			domain.PlatformLinkedIn:  40,
		},
		BrandKeywords: map[string][]string{
			"nike":        {"nike", "justdoit", "running", "sneaker"},
			"adidas":      {"adidas", "originals", "running", "sneaker"},
			"ikea":        {"ikea", "home", "interior", "decor"},
			"zara":        {"zara", "fashion", "outfit", "style"},
			"sephora":     {"sephora", "makeup", "beauty", "skincare"},
			"red bull":    {"redbull", "extreme", "athlete", "energy"},
			"coca cola":   {"cocacola", "coke", "refresh"},
			"samsung":     {"samsung", "galaxy", "tech", "gadget"},
			"apple":       {"apple", "iphone", "mac", "tech"},
			"decathlon":   {"decathlon", "sport", "outdoor", "fitness"},
			"mercadona":   {"mercadona", "food", "recipe", "supermarket"},
			"loreal":      {"loreal", "beauty", "makeup", "hair"},
			"h&m":         {"hm", "fashion", "outfit"},
			"starbucks":   {"starbucks", "coffee", "latte"},
			"playstation": {"playstation", "ps5", "gaming", "gamer"},
		},
		NicheKeywords: map[string][]string{
			"fitness":   {"fitness", "fit", "gym", "workout", "training", "coach"},
			"fashion":   {"fashion", "style", "outfit", "ootd", "moda"},
			"beauty":    {"beauty", "makeup", "skincare", "belleza", "glow"},
			"food":      {"food", "foodie", "recipe", "chef", "cooking", "cocina"},
			"travel":    {"travel", "traveler", "wanderlust", "viajes", "trip"},
			"gaming":    {"gaming", "gamer", "esports", "twitch", "streamer"},
			"tech":      {"tech", "gadget", "review", "unboxing", "techie"},
			"lifestyle": {"lifestyle", "daily", "life", "vlog"},
			"sports":    {"sport", "sports", "athlete", "football", "futbol"},
			"running":   {"run", "running", "runner", "marathon"},
			"parenting": {"mom", "dad", "mama", "papa", "family", "parenting"},
			"music":     {"music", "singer", "musician", "dj", "producer"},
			"home":      {"home", "interior", "decor", "deco", "hogar"},
		},
		LocationCodes: map[string][]string{
			"spain":          {"spain", "espana", "es", "madrid", "barcelona", "valencia", "sevilla"},
			"mexico":         {"mexico", "mx", "cdmx", "guadalajara", "monterrey"},
			"united states":  {"usa", "us", "united states", "nyc", "los angeles", "miami"},
			"united kingdom": {"uk", "united kingdom", "london", "manchester"},
			"france":         {"france", "fr", "paris", "lyon"},
			"germany":        {"germany", "deutschland", "de", "berlin", "munich"},
			"italy":          {"italy", "italia", "it", "milan", "rome", "roma"},
			"argentina":      {"argentina", "ar", "buenos aires"},
			"colombia":       {"colombia", "co", "bogota", "medellin"},
		},
		PlaceholderWords: []string{
			"user", "test", "admin", "profile", "account", "null", "undefined",
			"default", "guest", "temp", "sample", "example", "unknown",
		},
		PositiveIndicators: []string{
			"official", "oficial", "verified", "creator", "influencer", "ambassador", "athlete",
		},
		NegativeIndicators: []string{
			"fake", "spam", "bot", "parody", "fanpage", "fan page", "giveaway", "followers for",
		},
	}
}

// Merge overlays non-empty fields of override on t.
func (t Tables) Merge(override Tables) Tables {
	out := t
	if len(override.PlatformPreference) > 0 {
		out.PlatformPreference = mergeInts(t.PlatformPreference, override.PlatformPreference)
	}
	if len(override.BrandKeywords) > 0 {
		out.BrandKeywords = mergeLists(t.BrandKeywords, override.BrandKeywords)
	}
	if len(override.NicheKeywords) > 0 {
		out.NicheKeywords = mergeLists(t.NicheKeywords, override.NicheKeywords)
	}
	if len(override.LocationCodes) > 0 {
		out.LocationCodes = mergeLists(t.LocationCodes, override.LocationCodes)
	}
	if len(override.PlaceholderWords) > 0 {
		out.PlaceholderWords = override.PlaceholderWords
	}
	if len(override.PositiveIndicators) > 0 {
		out.PositiveIndicators = override.PositiveIndicators
	}
	if len(override.NegativeIndicators) > 0 {
		out.NegativeIndicators = override.NegativeIndicators
	}
	return out
}

func mergeInts(base, override map[domain.Platform]int) map[domain.Platform]int {
	out := make(map[domain.Platform]int, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[domain.NormalizePlatform(string(k))] = v
	}
	return out
}

func mergeLists(base, override map[string][]string) map[string][]string {
	out := make(map[string][]string, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}

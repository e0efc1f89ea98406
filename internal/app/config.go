package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr         string
	LogLevel         string
	LogFormat        string
	RequestTimeout   time.Duration
	DiscoveryTimeout time.Duration
	SearchTimeout    time.Duration

	SerperAPIKey   string
	SerperEndpoint string
	SerperCountry  string
	SerperLanguage string
	SerperCacheTTL time.Duration

	GoogleAPIKey   string
	GoogleEngineID string
	GoogleEndpoint string

	ApifyToken   string
	ApifyBaseURL string

	MongoURI        string
	MongoDatabase   string
	MongoCollection string
	VettedSeedPath  string

	RedisURL        string
	CacheDisabled   bool
	CacheMaxEntries int

	DefaultMode     string
	ScrapeRate      float64
	ScrapeBurst     int
	HTTPRateLimit   float64
	HTTPRateBurst   int
	VerifyTopN      int
	VerifyThreshold int
	HistorySize     int

	OverridesPath string
}

func LoadConfig() Config {
	return Config{
		HTTPAddr:         getEnv("HTTP_ADDR", ":8095"),
		LogLevel:         strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:        strings.ToLower(getEnv("LOG_FORMAT", "text")),
		RequestTimeout:   time.Duration(getEnvInt("PROVIDER_TIMEOUT_SECONDS", 30)) * time.Second,
		DiscoveryTimeout: time.Duration(getEnvInt("DISCOVERY_TIMEOUT_SECONDS", 20)) * time.Second,
		SearchTimeout:    time.Duration(getEnvInt("SEARCH_TIMEOUT_SECONDS", 120)) * time.Second,

		SerperAPIKey:   strings.TrimSpace(os.Getenv("SERPER_API_KEY")),
		SerperEndpoint: getEnv("SERPER_ENDPOINT", "https://google.serper.dev/search"),
		SerperCountry:  getEnv("SERPER_COUNTRY", ""),
		SerperLanguage: getEnv("SERPER_LANGUAGE", ""),
		SerperCacheTTL: time.Duration(getEnvInt("SERPER_CACHE_TTL_HOURS", 6)) * time.Hour,

		GoogleAPIKey:   strings.TrimSpace(os.Getenv("GOOGLE_CSE_API_KEY")),
		GoogleEngineID: strings.TrimSpace(os.Getenv("GOOGLE_CSE_ID")),
		GoogleEndpoint: getEnv("GOOGLE_CSE_ENDPOINT", "https://www.googleapis.com/customsearch/v1"),

		ApifyToken:   strings.TrimSpace(os.Getenv("APIFY_TOKEN")),
		ApifyBaseURL: getEnv("APIFY_BASE_URL", "https://api.apify.com/v2"),

		MongoURI:        getEnv("MONGO_URI", ""),
		MongoDatabase:   getEnv("MONGO_DATABASE", "influencers"),
		MongoCollection: getEnv("MONGO_VETTED_COLLECTION", "vetted_profiles"),
		VettedSeedPath:  getEnv("VETTED_SEED_PATH", "data/vetted.yaml"),

		RedisURL:        getEnv("REDIS_URL", ""),
		CacheDisabled:   getEnvBool("SEARCH_CACHE_DISABLED", false),
		CacheMaxEntries: getEnvInt("SEARCH_CACHE_MAX_ENTRIES", 100),

		DefaultMode:     strings.ToLower(getEnv("SCRAPING_MODE", "balanced")),
		ScrapeRate:      getEnvFloat("SCRAPE_RATE_PER_SECOND", 2),
		ScrapeBurst:     getEnvInt("SCRAPE_RATE_BURST", 2),
		HTTPRateLimit:   getEnvFloat("HTTP_RATE_LIMIT", 20),
		HTTPRateBurst:   getEnvInt("HTTP_RATE_BURST", 40),
		VerifyTopN:      getEnvInt("VERIFY_TOP_N", 5),
		VerifyThreshold: getEnvInt("VERIFY_THRESHOLD", 70),
		HistorySize:     getEnvInt("SEARCH_HISTORY_SIZE", 500),

		OverridesPath: getEnv("SEARCH_OVERRIDES_FILE", "config/overrides.yaml"),
	}
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

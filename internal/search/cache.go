package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"layai/searchservice/internal/domain"
	"layai/searchservice/internal/metrics"
	"layai/searchservice/internal/textnorm"
)

const (
	defaultCacheMaxEntries = 500
	defaultSweepInterval   = 5 * time.Minute

	defaultCacheTTL = 30 * time.Minute
	broadCacheTTL   = 2 * time.Hour
	narrowCacheTTL  = 15 * time.Minute

	broadMaxResults = 50
	narrowNiches    = 2
)

// CacheEntry is one stored search outcome. Params holds the normalized query.
type CacheEntry struct {
	QueryHash      string                `json:"queryHash"`
	Projection     string                `json:"projection"`
	Params         domain.SearchParams   `json:"params"`
	Payload        domain.SearchResponse `json:"payload"`
	CreatedAt      time.Time             `json:"createdAt"`
	TTL            time.Duration         `json:"ttl"`
	HitCount       int64                 `json:"hitCount"`
	LastAccessedAt time.Time             `json:"lastAccessedAt"`
	SourceStrategy string                `json:"sourceStrategy"`

	// accessOrder breaks LastAccessedAt ties when two touches share a clock tick.
	accessOrder uint64
}

func (e CacheEntry) ExpiresAt() time.Time {
	return e.CreatedAt.Add(e.TTL)
}

func (e CacheEntry) expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt())
}

type CacheStats struct {
	Entries     int     `json:"entries"`
	MaxEntries  int     `json:"maxEntries"`
	Hits        int64   `json:"hits"`
	Misses      int64   `json:"misses"`
	HitRate     float64 `json:"hitRate"`
	Evictions   int64   `json:"evictions"`
	Expirations int64   `json:"expirations"`
	Redis       bool    `json:"redis"`
}

type CacheOption func(*ResultCache)

func WithCacheMaxEntries(n int) CacheOption {
	return func(c *ResultCache) {
		if n > 0 {
			c.maxEntries = n
		}
	}
}

func WithCacheClock(now func() time.Time) CacheOption {
	return func(c *ResultCache) {
		if now != nil {
			c.now = now
		}
	}
}

func WithCacheRedis(backend *RedisCacheBackend) CacheOption {
	return func(c *ResultCache) {
		c.redis = backend
	}
}

func WithCacheLogger(logger *slog.Logger) CacheOption {
	return func(c *ResultCache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithSweepInterval(interval time.Duration) CacheOption {
	return func(c *ResultCache) {
		if interval > 0 {
			c.sweepInterval = interval
		}
	}
}

// ResultCache keeps search responses keyed by a hash of the normalized
// parameters. Memory is authoritative for the process; Redis, when set, is a
// shared second level that refills memory on a miss.
type ResultCache struct {
	mu            sync.Mutex
	entries       map[string]*CacheEntry
	maxEntries    int
	sweepInterval time.Duration
	now           func() time.Time
	redis         *RedisCacheBackend
	logger        *slog.Logger
	accessSeq     uint64

	hits        int64
	misses      int64
	evictions   int64
	expirations int64
}

func NewResultCache(opts ...CacheOption) *ResultCache {
	c := &ResultCache{
		entries:       make(map[string]*CacheEntry),
		maxEntries:    defaultCacheMaxEntries,
		sweepInterval: defaultSweepInterval,
		now:           time.Now,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CacheTTL picks the lifetime for a query. Broad queries win over narrow ones
// when both apply.
func CacheTTL(params domain.SearchParams) time.Duration {
	if params.MaxResults > broadMaxResults || strings.TrimSpace(params.Location) != "" {
		return broadCacheTTL
	}
	if strings.TrimSpace(params.BrandName) != "" && len(params.Niches) > narrowNiches {
		return narrowCacheTTL
	}
	return defaultCacheTTL
}

// CacheKey returns the SHA-256 hash of the normalized projection of params and
// the projection itself. Case, diacritics and array order do not change the key.
func CacheKey(params domain.SearchParams) (string, string) {
	projection := cacheProjection(params.Normalize())
	sum := sha256.Sum256([]byte(projection))
	return hex.EncodeToString(sum[:]), projection
}

func cacheProjection(params domain.SearchParams) string {
	platforms := make([]string, 0, len(params.Platforms))
	for _, platform := range params.Platforms {
		platforms = append(platforms, string(platform))
	}
	niches := textnorm.FoldAll(params.Niches)
	sort.Strings(niches)

	age := ""
	if params.AgeRange != nil {
		age = strconv.Itoa(params.AgeRange.Min) + "-" + strconv.Itoa(params.AgeRange.Max)
	}
	return strings.Join([]string{
		"p=" + strings.Join(platforms, ","),
		"n=" + strings.Join(niches, ","),
		"min=" + strconv.FormatInt(params.MinFollowers, 10),
		"max=" + strconv.FormatInt(params.MaxFollowers, 10),
		"loc=" + textnorm.Fold(params.Location),
		"g=" + textnorm.Fold(params.Gender),
		"age=" + age,
		"b=" + textnorm.Fold(params.BrandName),
		"q=" + textnorm.Fold(params.UserQuery),
		"r=" + strconv.Itoa(params.MaxResults),
	}, "|")
}

// Get returns a live entry for params. A hit bumps HitCount and
// LastAccessedAt; an expired entry is removed on the way.
func (c *ResultCache) Get(ctx context.Context, params domain.SearchParams) (CacheEntry, bool) {
	key, _ := CacheKey(params)
	now := c.now()

	c.mu.Lock()
	if entry, ok := c.entries[key]; ok {
		if !entry.expired(now) {
			entry.HitCount++
			c.touchLocked(entry, now)
			c.hits++
			out := cloneCacheEntry(*entry)
			c.mu.Unlock()
			metrics.CacheHitsTotal.Inc()
			return out, true
		}
		c.removeLocked(key, "expired")
	}
	c.mu.Unlock()

	if c.redis != nil {
		entry, found, err := c.redis.Get(ctx, key)
		if err != nil {
			c.logger.Debug("redis cache lookup failed", slog.String("error", err.Error()))
		}
		if found && !entry.expired(now) {
			entry.HitCount++
			c.mu.Lock()
			stored := cloneCacheEntry(entry)
			c.touchLocked(&stored, now)
			entry.LastAccessedAt = now
			c.entries[key] = &stored
			c.hits++
			c.trimLocked(now)
			c.mu.Unlock()
			metrics.CacheHitsTotal.Inc()
			return cloneCacheEntry(entry), true
		}
	}

	c.mu.Lock()
	c.misses++
	c.mu.Unlock()
	metrics.CacheMissesTotal.Inc()
	return CacheEntry{}, false
}

// Put stores payload for params and returns the stored entry.
func (c *ResultCache) Put(ctx context.Context, params domain.SearchParams, payload domain.SearchResponse, sourceStrategy string) CacheEntry {
	normalized := params.Normalize()
	key, projection := CacheKey(normalized)
	now := c.now()
	entry := CacheEntry{
		QueryHash:      key,
		Projection:     projection,
		Params:         cloneParams(normalized),
		Payload:        domain.CloneSearchResponse(payload),
		CreatedAt:      now,
		TTL:            CacheTTL(normalized),
		LastAccessedAt: now,
		SourceStrategy: sourceStrategy,
	}

	c.mu.Lock()
	stored := cloneCacheEntry(entry)
	c.touchLocked(&stored, now)
	c.entries[key] = &stored
	c.trimLocked(now)
	c.mu.Unlock()

	if c.redis != nil {
		if err := c.redis.Set(ctx, key, entry, entry.TTL); err != nil {
			c.logger.Warn("redis cache store failed", slog.String("error", err.Error()))
		}
	}
	return entry
}

// FindRelated returns the freshest live entry that shares a platform with
// params and, when params names niches, at least one niche.
func (c *ResultCache) FindRelated(params domain.SearchParams) (CacheEntry, bool) {
	normalized := params.Normalize()
	wantNiches := textnorm.FoldAll(normalized.Niches)
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	var best *CacheEntry
	for key, entry := range c.entries {
		if entry.expired(now) {
			c.removeLocked(key, "expired")
			continue
		}
		if len(entry.Payload.Results) == 0 || !sharesPlatform(entry.Params, normalized) {
			continue
		}
		if len(wantNiches) > 0 && !sharesAny(textnorm.FoldAll(entry.Params.Niches), wantNiches) {
			continue
		}
		if best == nil || entry.CreatedAt.After(best.CreatedAt) {
			best = entry
		}
	}
	if best == nil {
		return CacheEntry{}, false
	}
	best.HitCount++
	c.touchLocked(best, now)
	return cloneCacheEntry(*best), true
}

func (c *ResultCache) touchLocked(entry *CacheEntry, now time.Time) {
	c.accessSeq++
	entry.LastAccessedAt = now
	entry.accessOrder = c.accessSeq
}

// Invalidate removes entries whose normalized projection contains criteria.
// Empty criteria clears the cache, including Redis.
func (c *ResultCache) Invalidate(ctx context.Context, criteria string) int {
	needle := textnorm.Fold(criteria)

	c.mu.Lock()
	var removed []string
	for key, entry := range c.entries {
		if needle == "" || strings.Contains(entry.Projection, needle) {
			removed = append(removed, key)
			c.removeLocked(key, "invalidated")
		}
	}
	c.mu.Unlock()

	count := len(removed)
	if c.redis != nil {
		if needle == "" {
			cleared, err := c.redis.Clear(ctx)
			if err != nil {
				c.logger.Warn("redis cache clear failed", slog.String("error", err.Error()))
			}
			count = max(count, cleared)
		} else if err := c.redis.Delete(ctx, removed...); err != nil {
			c.logger.Warn("redis cache invalidate failed", slog.String("error", err.Error()))
		}
	}
	c.logger.Info("result cache invalidated", slog.String("criteria", criteria), slog.Int("removed", count))
	return count
}

// Sweep drops expired entries and returns how many were removed.
func (c *ResultCache) Sweep() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for key, entry := range c.entries {
		if entry.expired(now) {
			c.removeLocked(key, "expired")
			removed++
		}
	}
	return removed
}

// StartSweeper runs Sweep on an interval until ctx is done.
func (c *ResultCache) StartSweeper(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(c.sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := c.Sweep(); n > 0 {
					c.logger.Debug("result cache sweep", slog.Int("expired", n))
				}
			}
		}
	}()
}

func (c *ResultCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	stats := CacheStats{
		Entries:     len(c.entries),
		MaxEntries:  c.maxEntries,
		Hits:        c.hits,
		Misses:      c.misses,
		Evictions:   c.evictions,
		Expirations: c.expirations,
		Redis:       c.redis != nil,
	}
	if total := c.hits + c.misses; total > 0 {
		stats.HitRate = float64(c.hits) / float64(total)
	}
	return stats
}

func (c *ResultCache) removeLocked(key, reason string) {
	if _, ok := c.entries[key]; !ok {
		return
	}
	delete(c.entries, key)
	if reason == "expired" {
		c.expirations++
	} else {
		c.evictions++
	}
	metrics.CacheEvictionsTotal.WithLabelValues(reason).Inc()
}

// trimLocked drops expired entries, then the least recently used ones until
// the cache fits.
func (c *ResultCache) trimLocked(now time.Time) {
	for key, entry := range c.entries {
		if entry.expired(now) {
			c.removeLocked(key, "expired")
		}
	}
	if len(c.entries) <= c.maxEntries {
		return
	}

	type pair struct {
		key   string
		entry *CacheEntry
	}
	items := make([]pair, 0, len(c.entries))
	for key, entry := range c.entries {
		items = append(items, pair{key: key, entry: entry})
	}
	sort.Slice(items, func(i, j int) bool {
		a, b := items[i].entry, items[j].entry
		if !a.LastAccessedAt.Equal(b.LastAccessedAt) {
			return a.LastAccessedAt.Before(b.LastAccessedAt)
		}
		return a.accessOrder < b.accessOrder
	})
	for i := 0; i < len(items)-c.maxEntries; i++ {
		c.removeLocked(items[i].key, "lru")
	}
}

func sharesPlatform(a, b domain.SearchParams) bool {
	for _, platform := range a.Platforms {
		if b.HasPlatform(platform) {
			return true
		}
	}
	return false
}

func sharesAny(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

func cloneCacheEntry(entry CacheEntry) CacheEntry {
	out := entry
	out.Params = cloneParams(entry.Params)
	out.Payload = domain.CloneSearchResponse(entry.Payload)
	return out
}

func cloneParams(params domain.SearchParams) domain.SearchParams {
	out := params
	out.Platforms = append([]domain.Platform(nil), params.Platforms...)
	out.Niches = append([]string(nil), params.Niches...)
	if params.AgeRange != nil {
		ageRange := *params.AgeRange
		out.AgeRange = &ageRange
	}
	return out
}

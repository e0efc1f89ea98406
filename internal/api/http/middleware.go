package apihttp

import (
	"context"
	"log/slog"
	"math"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"layai/searchservice/internal/metrics"
)

const (
	requestIDHeader   = "X-Request-ID"
	maxRequestIDLen   = 64
	limiterIdleTTL    = 10 * time.Minute
	maxTrackedClients = 10000
)

type requestIDKey struct{}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// statusRecorder remembers what was written so the access log and the
// request metrics can report it.
type statusRecorder struct {
	http.ResponseWriter
	status int
	size   int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.size += n
	return n, err
}

// requestIDMiddleware reuses a caller supplied X-Request-ID when it looks sane
// and mints one otherwise. The id is echoed back so a search can be traced
// from the client's logs to ours.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" || len(id) > maxRequestIDLen || strings.ContainsAny(id, " \t\r\n") {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

// observeMiddleware writes the access log line and the request metrics from
// one recorded response. /metrics scrapes are neither logged nor counted.
func observeMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		elapsed := time.Since(start)

		route := normalizeRoute(r.URL.Path)
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(elapsed.Seconds())

		attrs := []slog.Attr{
			slog.String("requestId", requestIDFrom(r.Context())),
			slog.String("method", r.Method),
			slog.String("route", route),
			slog.Int("status", rw.status),
			slog.Int("bytes", rw.size),
			slog.Int64("durationMs", elapsed.Milliseconds()),
			slog.String("clientIP", clientIP(r)),
		}
		if r.URL.RawQuery != "" {
			attrs = append(attrs, slog.String("query", truncate(r.URL.RawQuery, 180)))
		}
		logger.LogAttrs(r.Context(), requestLogLevel(route, rw.status), "http request", attrs...)
	})
}

func recoveryMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if recovered := recover(); recovered != nil {
				logger.Error("panic recovered",
					slog.Any("error", recovered),
					slog.String("requestId", requestIDFrom(r.Context())),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("stack", string(debug.Stack())),
				)
				writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

var knownRoutes = map[string]struct{}{
	"/health":        {},
	"/metrics":       {},
	"/search":        {},
	"/feedback":      {},
	"/search/cache":  {},
	"/search/scorer": {},
}

// normalizeRoute maps a request path onto a bounded label set.
func normalizeRoute(path string) string {
	if _, ok := knownRoutes[path]; ok {
		return path
	}
	if strings.HasPrefix(path, "/search/breakers") {
		return "/search/breakers"
	}
	return "/other"
}

func requestLogLevel(route string, status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	case route == "/health":
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

// clientIP prefers the first X-Forwarded-For hop; the service runs behind
// the gateway that sets it.
func clientIP(r *http.Request) string {
	if first, _, _ := strings.Cut(r.Header.Get("X-Forwarded-For"), ","); strings.TrimSpace(first) != "" {
		return strings.TrimSpace(first)
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	if host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr)); err == nil && host != "" {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}

func truncate(value string, limit int) string {
	if limit <= 0 || len(value) <= limit {
		return value
	}
	if limit <= 3 {
		return value[:limit]
	}
	return value[:limit-3] + "..."
}

// clientLimiter keeps one token bucket per client address so a single caller
// looping on /search cannot starve everyone else's scraping budget.
type clientLimiter struct {
	limit rate.Limit
	burst int
	now   func() time.Time

	mu        sync.Mutex
	buckets   map[string]*clientBucket
	lastSweep time.Time
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newClientLimiter(rps float64, burst int) *clientLimiter {
	if burst <= 0 {
		burst = int(math.Max(1, math.Ceil(rps)))
	}
	return &clientLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		now:     time.Now,
		buckets: make(map[string]*clientBucket),
	}
}

func (c *clientLimiter) allow(client string) bool {
	c.mu.Lock()
	now := c.now()
	if now.Sub(c.lastSweep) >= limiterIdleTTL || len(c.buckets) >= maxTrackedClients {
		c.sweepLocked(now)
	}
	b, ok := c.buckets[client]
	if !ok {
		b = &clientBucket{limiter: rate.NewLimiter(c.limit, c.burst)}
		c.buckets[client] = b
	}
	b.lastSeen = now
	c.mu.Unlock()
	return b.limiter.AllowN(now, 1)
}

// sweepLocked forgets clients idle for longer than limiterIdleTTL. An idle
// bucket has refilled anyway, so dropping it loses nothing.
func (c *clientLimiter) sweepLocked(now time.Time) {
	for client, b := range c.buckets {
		if now.Sub(b.lastSeen) >= limiterIdleTTL {
			delete(c.buckets, client)
		}
	}
	c.lastSweep = now
}

func (c *clientLimiter) tracked() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buckets)
}

// retryAfter is the whole number of seconds until one token refills.
func (c *clientLimiter) retryAfter() string {
	seconds := math.Ceil(1 / float64(c.limit))
	if seconds < 1 || math.IsInf(seconds, 0) || math.IsNaN(seconds) {
		seconds = 1
	}
	return strconv.Itoa(int(seconds))
}

// rateLimitMiddleware answers 429 once a client has used its bucket.
// Health checks and metric scrapes are never limited.
func rateLimitMiddleware(limiter *clientLimiter, logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}
		client := clientIP(r)
		if !limiter.allow(client) {
			logger.Debug("request rate limited",
				slog.String("clientIP", client),
				slog.String("route", normalizeRoute(r.URL.Path)),
			)
			w.Header().Set("Retry-After", limiter.retryAfter())
			writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

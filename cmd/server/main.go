package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"
	"golang.org/x/time/rate"

	apihttp "layai/searchservice/internal/api/http"
	"layai/searchservice/internal/app"
	"layai/searchservice/internal/breaker"
	"layai/searchservice/internal/domain"
	"layai/searchservice/internal/metrics"
	"layai/searchservice/internal/prioritize"
	"layai/searchservice/internal/providers/apify"
	"layai/searchservice/internal/providers/common"
	"layai/searchservice/internal/providers/googlecse"
	"layai/searchservice/internal/providers/serper"
	"layai/searchservice/internal/providers/vetted"
	"layai/searchservice/internal/quality"
	"layai/searchservice/internal/scraping"
	"layai/searchservice/internal/search"
	"layai/searchservice/internal/telemetry"
)

const serviceName = "influencer-search"

func main() {
	cfg := app.LoadConfig()
	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(context.Background(), serviceName, logger)
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	overrides, err := app.LoadOverrides(cfg.OverridesPath)
	if err != nil {
		logger.Warn("overrides file ignored", slog.String("path", cfg.OverridesPath), slog.String("error", err.Error()))
		overrides = app.Overrides{}
	}

	logger.Info("configuration loaded",
		slog.String("service", serviceName),
		slog.String("httpAddr", cfg.HTTPAddr),
		slog.String("logLevel", cfg.LogLevel),
		slog.String("logFormat", cfg.LogFormat),
		slog.String("defaultMode", cfg.DefaultMode),
		slog.Duration("searchTimeout", cfg.SearchTimeout),
		slog.Bool("hasSerperKey", cfg.SerperAPIKey != ""),
		slog.Bool("hasGoogleCSE", cfg.GoogleAPIKey != "" && cfg.GoogleEngineID != ""),
		slog.Bool("hasApifyToken", cfg.ApifyToken != ""),
		slog.Bool("hasMongo", strings.TrimSpace(cfg.MongoURI) != ""),
		slog.Bool("hasRedis", strings.TrimSpace(cfg.RedisURL) != ""),
		slog.Bool("cacheDisabled", cfg.CacheDisabled),
		slog.String("overrides", cfg.OverridesPath),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient := buildRedisClient(rootCtx, cfg, logger)
	httpClient := common.NewHTTPClient(cfg.RequestTimeout)

	searchers := buildSearchers(cfg, httpClient, redisClient, logger)
	if len(searchers) == 0 {
		logger.Warn("no web search provider configured; searches fall back to the vetted dataset")
	}

	registry := breaker.NewRegistry(
		breaker.WithLogger(logger),
		breaker.WithPresets(overrides.Breakers),
		breaker.WithObserver(func(name string, _, to breaker.State, _ error) {
			metrics.BreakerState.WithLabelValues(name).Set(float64(to))
			metrics.BreakerTransitionsTotal.WithLabelValues(name, to.String()).Inc()
		}),
	)

	apifyClient := apify.NewClient(apify.Config{
		Token:   cfg.ApifyToken,
		BaseURL: cfg.ApifyBaseURL,
		Actors:  overrides.Actors,
		Logger:  logger,
	})
	var scraper scraping.Scraper
	if apifyClient.Enabled() {
		scraper = apifyClient
	} else {
		logger.Warn("apify token not configured; profiles will be estimated")
	}
	manager := scraping.NewManager(scraper, registry,
		scraping.WithLogger(logger),
		scraping.WithPlatformRate(rate.Limit(cfg.ScrapeRate), cfg.ScrapeBurst),
	)

	scorer := quality.New(append(overrides.ScorerOptions(),
		quality.WithLogger(logger),
		quality.WithAccuracyObserver(func(accuracy float64) {
			metrics.ScorerAccuracy.Set(accuracy)
		}),
	)...)
	if len(overrides.Scorer.Weights) > 0 {
		if err := scorer.SetWeights(overrides.Scorer.Weights); err != nil {
			logger.Warn("scorer weight overrides ignored", slog.String("error", err.Error()))
		}
	}

	store, mongoClient := buildVettedStore(rootCtx, cfg, logger)

	cacheOpts := []search.CacheOption{
		search.WithCacheLogger(logger),
		search.WithCacheMaxEntries(cfg.CacheMaxEntries),
	}
	if redisClient != nil {
		cacheOpts = append(cacheOpts, search.WithCacheRedis(search.NewRedisCacheBackend(redisClient)))
	}

	serviceOpts := []search.ServiceOption{
		search.WithServiceLogger(logger),
		search.WithCache(search.NewResultCache(cacheOpts...)),
		search.WithCacheDisabled(cfg.CacheDisabled),
		search.WithModes(overrides.ModeTable()),
		search.WithDefaultMode(domain.NormalizeScrapingMode(cfg.DefaultMode, domain.ModeBalanced)),
		search.WithPrioritizer(prioritize.New(overrides.PrioritizerTables())),
		search.WithScorer(scorer),
		search.WithVettedStore(store),
		search.WithTimeouts(cfg.DiscoveryTimeout, cfg.SearchTimeout),
		search.WithHistorySize(cfg.HistorySize),
	}
	if apifyClient.Enabled() {
		serviceOpts = append(serviceOpts, search.WithVerifier(apifyClient, cfg.VerifyTopN, cfg.VerifyThreshold))
	}
	searchService := search.NewService(searchers, manager, registry, serviceOpts...)
	searchService.StartBackground(rootCtx)

	handler := apihttp.NewServer(searchService,
		apihttp.WithLogger(logger),
		apihttp.WithDiagnostics(searchService),
		apihttp.WithRateLimit(cfg.HTTPRateLimit, cfg.HTTPRateBurst),
	).Handler()
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// A comprehensive search can run for the whole search timeout.
		WriteTimeout: cfg.SearchTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	logger.Info("influencer search service started",
		slog.String("addr", cfg.HTTPAddr),
		slog.Any("searchers", searchService.Searchers()),
	)

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", slog.String("error", err.Error()))
	}
	if mongoClient != nil {
		if err := mongoClient.Disconnect(shutdownCtx); err != nil {
			logger.Warn("mongo disconnect error", slog.String("error", err.Error()))
		}
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
	logger.Info("influencer search service stopped")
}

func newLogger(levelRaw, formatRaw string) *slog.Logger {
	level := parseLogLevel(levelRaw)
	options := &slog.HandlerOptions{Level: level}
	format := strings.ToLower(strings.TrimSpace(formatRaw))
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, options))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, options))
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// buildRedisClient returns nil when Redis is not configured or unreachable;
// the service then keeps every cache in process.
func buildRedisClient(ctx context.Context, cfg app.Config, logger *slog.Logger) *redis.Client {
	redisURL := strings.TrimSpace(cfg.RedisURL)
	if redisURL == "" || cfg.CacheDisabled {
		return nil
	}
	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Warn("invalid redis url, using in-memory cache only", slog.String("error", err.Error()))
		return nil
	}
	client := redis.NewClient(redisOpts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis not reachable, using in-memory cache only", slog.String("error", err.Error()))
		_ = client.Close()
		return nil
	}
	logger.Info("redis connected", slog.String("addr", redisOpts.Addr))
	return client
}

func buildSearchers(cfg app.Config, httpClient *http.Client, redisClient *redis.Client, logger *slog.Logger) []search.WebSearcher {
	var searchers []search.WebSearcher

	serperClient := serper.NewClient(serper.Config{
		APIKey:   cfg.SerperAPIKey,
		Endpoint: cfg.SerperEndpoint,
		Country:  cfg.SerperCountry,
		Language: cfg.SerperLanguage,
		Client:   httpClient,
		Redis:    redisClient,
		CacheTTL: cfg.SerperCacheTTL,
		Logger:   logger,
	})
	if serperClient.Enabled() {
		searchers = append(searchers, serperClient)
	}

	googleClient := googlecse.NewClient(googlecse.Config{
		APIKey:   cfg.GoogleAPIKey,
		EngineID: cfg.GoogleEngineID,
		Endpoint: cfg.GoogleEndpoint,
		Client:   httpClient,
	})
	if googleClient.Enabled() {
		searchers = append(searchers, googleClient)
	}

	logger.Info("web search providers initialized",
		slog.Bool("serper", serperClient.Enabled()),
		slog.Bool("googleCSE", googleClient.Enabled()),
	)
	return searchers
}

// buildVettedStore prefers MongoDB and seeds an empty collection from the
// YAML dataset. Without Mongo, or when it is unreachable, the dataset is
// served from memory.
func buildVettedStore(ctx context.Context, cfg app.Config, logger *slog.Logger) (search.VettedStore, *mongo.Client) {
	seed, err := vetted.LoadSeed(cfg.VettedSeedPath)
	if err != nil {
		logger.Warn("vetted seed ignored", slog.String("path", cfg.VettedSeedPath), slog.String("error", err.Error()))
	}
	memory := vetted.NewMemoryStore(seed)

	if strings.TrimSpace(cfg.MongoURI) == "" {
		logger.Info("vetted dataset served from memory", slog.Int("profiles", memory.Len()))
		return memory, nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	client, err := vetted.Connect(connectCtx, cfg.MongoURI, options.Client().SetMonitor(otelmongo.NewMonitor()))
	if err != nil {
		logger.Warn("mongo connect failed, vetted dataset served from memory", slog.String("error", err.Error()))
		return memory, nil
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		logger.Warn("mongo ping failed, vetted dataset served from memory", slog.String("error", err.Error()))
		_ = client.Disconnect(context.Background())
		return memory, nil
	}

	store := vetted.NewMongoStore(client, cfg.MongoDatabase, cfg.MongoCollection)
	if err := store.EnsureIndexes(connectCtx); err != nil {
		logger.Warn("mongo ensure indexes failed", slog.String("error", err.Error()))
	}
	count, err := store.Count(connectCtx)
	if err != nil {
		logger.Warn("mongo count failed", slog.String("error", err.Error()))
	} else if count == 0 && len(seed) > 0 {
		upserted, err := store.Upsert(connectCtx, seed)
		if err != nil {
			logger.Warn("vetted seed import failed", slog.String("error", err.Error()))
		} else {
			logger.Info("vetted seed imported", slog.Int("profiles", upserted))
		}
	}
	logger.Info("vetted dataset served from mongo",
		slog.String("database", cfg.MongoDatabase),
		slog.String("collection", cfg.MongoCollection),
		slog.Int64("existing", count),
	)
	return store, client
}

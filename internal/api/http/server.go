package apihttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"layai/searchservice/internal/breaker"
	"layai/searchservice/internal/domain"
	"layai/searchservice/internal/quality"
	"layai/searchservice/internal/search"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type SearchService interface {
	Search(ctx context.Context, request domain.SearchRequest) (domain.SearchResponse, error)
	Feedback(ctx context.Context, searchID string, record domain.FeedbackRecord) error
}

// DiagnosticsService exposes the operational state of the search pipeline.
type DiagnosticsService interface {
	Breakers() []breaker.Stats
	ResetBreakers()
	CacheStats() search.CacheStats
	InvalidateCache(ctx context.Context, criteria string) int
	ScorerSnapshot() quality.Snapshot
}

type Server struct {
	search      SearchService
	diagnostics DiagnosticsService
	logger      *slog.Logger
	rateRPS     float64
	rateBurst   int
}

type searchBody struct {
	domain.SearchParams
	Mode    string `json:"mode"`
	NoCache bool   `json:"noCache"`
}

type feedbackBody struct {
	SearchID       string `json:"searchId"`
	CandidateURL   string `json:"candidateUrl"`
	Platform       string `json:"platform,omitempty"`
	Username       string `json:"username,omitempty"`
	ActualCategory string `json:"actualCategory"`
	UserCorrected  bool   `json:"userCorrected"`
}

const maxQueryLength = 500

type ServerOption func(*Server)

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

func WithDiagnostics(diagnostics DiagnosticsService) ServerOption {
	return func(s *Server) {
		s.diagnostics = diagnostics
	}
}

// WithRateLimit sets the global request budget. A non-positive rps disables
// limiting.
func WithRateLimit(rps float64, burst int) ServerOption {
	return func(s *Server) {
		s.rateRPS = rps
		s.rateBurst = burst
	}
}

func NewServer(searchService SearchService, options ...ServerOption) *Server {
	server := &Server{
		search:    searchService,
		logger:    slog.Default(),
		rateRPS:   20,
		rateBurst: 40,
	}
	for _, option := range options {
		if option != nil {
			option(server)
		}
	}
	if server.logger == nil {
		server.logger = slog.Default()
	}
	return server
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/search/breakers/reset", s.handleBreakersReset)
	mux.HandleFunc("/search/breakers", s.handleBreakers)
	mux.HandleFunc("/search/cache", s.handleCache)
	mux.HandleFunc("/search/scorer", s.handleScorer)
	mux.HandleFunc("/feedback", s.handleFeedback)
	mux.HandleFunc("/search", s.handleSearch)
	var handler http.Handler = otelhttp.NewHandler(mux, "influencer-search",
		otelhttp.WithFilter(func(r *http.Request) bool {
			p := r.URL.Path
			return p != "/metrics" && p != "/health"
		}),
	)
	if s.rateRPS > 0 {
		handler = rateLimitMiddleware(newClientLimiter(s.rateRPS, s.rateBurst), s.logger, handler)
	}
	handler = recoveryMiddleware(s.logger, handler)
	handler = observeMiddleware(s.logger, handler)
	return requestIDMiddleware(handler)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/search" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.search == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "search service is not configured")
		return
	}

	var body searchBody
	if err := decodeJSONBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if len(body.UserQuery) > maxQueryLength || len(body.BrandName) > maxQueryLength {
		writeError(w, http.StatusBadRequest, "invalid_request", "query too long (max 500 characters)")
		return
	}
	mode := domain.NormalizeScrapingMode(body.Mode, "")
	if strings.TrimSpace(body.Mode) != "" && mode == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "mode must be economy, balanced, comprehensive or unlimited")
		return
	}

	response, err := s.search.Search(r.Context(), domain.SearchRequest{
		Params:  body.SearchParams,
		Mode:    mode,
		NoCache: body.NoCache,
	})
	if err != nil {
		s.logger.Warn("search request failed",
			slog.Any("platforms", body.Platforms),
			slog.Any("niches", body.Niches),
			slog.String("error", err.Error()),
		)
		s.writeServiceError(w, err, "search failed")
		return
	}

	s.logger.Info("search completed",
		slog.String("searchId", response.SearchID),
		slog.Any("platforms", body.Platforms),
		slog.String("query", truncate(body.UserQuery, 80)),
		slog.Bool("success", response.Success),
		slog.Bool("cached", response.Cached),
		slog.Int("results", len(response.Results)),
		slog.Int64("elapsedMs", response.Summary.ProcessingTimeMS),
	)
	if len(response.Warnings) > 0 {
		s.logger.Warn("search degraded",
			slog.String("searchId", response.SearchID),
			slog.String("source", response.Source),
			slog.Any("warnings", response.Warnings),
		)
	}

	writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.search == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "search service is not configured")
		return
	}

	var body feedbackBody
	if err := decodeJSONBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	body.SearchID = strings.TrimSpace(body.SearchID)
	if body.SearchID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "searchId is required")
		return
	}
	if strings.TrimSpace(body.CandidateURL) == "" && strings.TrimSpace(body.Username) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "candidateUrl is required")
		return
	}

	record := domain.FeedbackRecord{
		Candidate: domain.Profile{
			URL:      strings.TrimSpace(body.CandidateURL),
			Username: strings.TrimSpace(body.Username),
			Platform: domain.NormalizePlatform(body.Platform),
		},
		ActualCategory: domain.Category(body.ActualCategory),
		UserCorrected:  body.UserCorrected,
	}
	if err := s.search.Feedback(r.Context(), body.SearchID, record); err != nil {
		s.writeServiceError(w, err, "feedback failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "recorded"})
}

func (s *Server) handleBreakers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !s.requireDiagnostics(w) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": s.diagnostics.Breakers()})
}

func (s *Server) handleBreakersReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !s.requireDiagnostics(w) {
		return
	}
	s.diagnostics.ResetBreakers()
	s.logger.Info("circuit breakers reset", slog.String("remote", clientIP(r)))
	writeJSON(w, http.StatusOK, map[string]any{"items": s.diagnostics.Breakers()})
}

func (s *Server) handleCache(w http.ResponseWriter, r *http.Request) {
	if !s.requireDiagnostics(w) {
		return
	}
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.diagnostics.CacheStats())
	case http.MethodDelete:
		criteria := strings.TrimSpace(r.URL.Query().Get("match"))
		removed := s.diagnostics.InvalidateCache(r.Context(), criteria)
		writeJSON(w, http.StatusOK, map[string]any{
			"match":   criteria,
			"removed": removed,
		})
	default:
		w.Header().Set("Allow", "GET, DELETE")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleScorer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !s.requireDiagnostics(w) {
		return
	}
	writeJSON(w, http.StatusOK, s.diagnostics.ScorerSnapshot())
}

func (s *Server) requireDiagnostics(w http.ResponseWriter) bool {
	if s.diagnostics == nil {
		writeError(w, http.StatusServiceUnavailable, "service_unavailable", "diagnostics are not configured")
		return false
	}
	return true
}

func (s *Server) writeServiceError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, domain.ErrInvalidParams):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, domain.ErrUnknownSearch), errors.Is(err, domain.ErrNoCandidate):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "timeout", domain.UserMessageFor(domain.KindTimeout))
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", fallback)
	}
}

func decodeJSONBody(r *http.Request, dest any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read request body: %w", err)
	}
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}

	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid json body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}

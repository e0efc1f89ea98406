package search

import (
	"context"
	"fmt"
	"log/slog"

	"layai/searchservice/internal/domain"
	"layai/searchservice/internal/metrics"
	"layai/searchservice/internal/retry"
)

const (
	StrategyPrimary      = "primary"
	StrategyCached       = "cached"
	StrategySingleSource = "single-source"
	StrategyVetted       = "vetted-dataset"
)

const totalFailureMessage = "We could not find influencers for this search right now. Please try again in a few minutes or broaden your criteria."

type StrategyFunc func(ctx context.Context, params domain.SearchParams) ([]domain.Profile, error)

// Strategy is one step of the fallback chain. Message is shown to the user
// when this strategy ends up serving the results.
type Strategy struct {
	Name    string
	Tier    domain.QualityTier
	Message string
	Run     StrategyFunc
}

type FallbackResult struct {
	Success  bool
	Strategy string
	Tier     domain.QualityTier
	Profiles []domain.Profile
	Warnings []string
	Attempts []domain.FallbackAttempt
	Message  string
}

type FallbackOption func(*FallbackChain)

func WithFallbackRetry(policy retry.Policy) FallbackOption {
	return func(c *FallbackChain) {
		c.policy = policy
	}
}

func WithFallbackLogger(logger *slog.Logger) FallbackOption {
	return func(c *FallbackChain) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// FallbackChain runs strategies strictly in order and stops at the first one
// that returns profiles.
type FallbackChain struct {
	strategies []Strategy
	policy     retry.Policy
	logger     *slog.Logger
}

func NewFallbackChain(strategies []Strategy, opts ...FallbackOption) *FallbackChain {
	c := &FallbackChain{
		policy: retry.DefaultPolicy(),
		logger: slog.Default(),
	}
	for _, s := range strategies {
		if s.Run != nil {
			c.strategies = append(c.strategies, s)
		}
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.policy.Logger == nil {
		c.policy.Logger = c.logger
	}
	return c
}

// Execute never returns an error. A chain where every strategy came back
// empty or failed yields Success=false and a message fit for end users.
func (c *FallbackChain) Execute(ctx context.Context, params domain.SearchParams) FallbackResult {
	var result FallbackResult

	for i, strategy := range c.strategies {
		if ctx.Err() != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("%s search was skipped because the request ended.", strategy.Name))
			break
		}

		attempt := domain.FallbackAttempt{
			Strategy:    strategy.Name,
			Order:       i + 1,
			QualityTier: strategy.Tier,
		}
		profiles, err := retry.Do(ctx, "fallback:"+strategy.Name, c.policy, func(ctx context.Context) ([]domain.Profile, error) {
			return strategy.Run(ctx, params)
		})

		switch {
		case err != nil:
			kind := retry.Classify(err)
			attempt.Outcome = domain.OutcomeError
			attempt.Warnings = []string{domain.UserMessageFor(kind)}
			result.Warnings = append(result.Warnings, fmt.Sprintf("%s search failed: %s", strategy.Name, domain.UserMessageFor(kind)))
			c.logger.Warn("fallback strategy failed",
				slog.String("strategy", strategy.Name),
				slog.String("kind", string(kind)),
				slog.String("error", err.Error()),
			)
		case len(profiles) == 0:
			attempt.Outcome = domain.OutcomeEmpty
			result.Warnings = append(result.Warnings, fmt.Sprintf("%s search returned no results.", strategy.Name))
			c.logger.Info("fallback strategy empty", slog.String("strategy", strategy.Name))
		default:
			attempt.Outcome = domain.OutcomeSuccess
		}

		metrics.FallbackStrategyTotal.WithLabelValues(strategy.Name, string(attempt.Outcome)).Inc()
		result.Attempts = append(result.Attempts, attempt)

		if attempt.Outcome == domain.OutcomeSuccess {
			result.Success = true
			result.Strategy = strategy.Name
			result.Tier = strategy.Tier
			result.Profiles = profiles
			result.Message = strategy.Message
			return result
		}
	}

	result.Message = totalFailureMessage
	return result
}

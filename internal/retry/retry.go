// Package retry classifies dependency errors and retries the transient ones
// with bounded exponential backoff.
package retry

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"strings"
	"time"

	retrygo "github.com/codeGROOVE-dev/retry"

	"layai/searchservice/internal/domain"
)

// Policy bounds a retried call. Attempts counts the initial call.
type Policy struct {
	Attempts  uint
	BaseDelay time.Duration
	MaxJitter time.Duration
	Logger    *slog.Logger
}

// DefaultPolicy is one call plus three retries spaced roughly 1s, 2s, 4s.
func DefaultPolicy() Policy {
	return Policy{
		Attempts:  4,
		BaseDelay: time.Second,
		MaxJitter: 250 * time.Millisecond,
	}
}

func (p Policy) normalized() Policy {
	if p.Attempts == 0 {
		p.Attempts = 1
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = time.Millisecond
	}
	if p.MaxJitter <= 0 {
		p.MaxJitter = p.BaseDelay / 4
		if p.MaxJitter <= 0 {
			p.MaxJitter = time.Microsecond
		}
	}
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
	return p
}

// Do runs fn until it succeeds, returns a non-retryable error, the attempts
// run out or ctx is done. Failures come back as *domain.ProviderError.
func Do[T any](ctx context.Context, service string, policy Policy, fn func(context.Context) (T, error)) (T, error) {
	policy = policy.normalized()

	var (
		lastErr  error
		attempts int
	)
	value, err := retrygo.DoWithData(
		func() (T, error) {
			attempts++
			v, err := fn(ctx)
			lastErr = err
			return v, err
		},
		retrygo.Context(ctx),
		retrygo.Attempts(policy.Attempts),
		retrygo.Delay(policy.BaseDelay),
		retrygo.MaxJitter(policy.MaxJitter),
		retrygo.RetryIf(IsRetryable),
		retrygo.OnRetry(func(n uint, err error) {
			policy.Logger.Debug("retrying dependency call",
				slog.String("service", service),
				slog.Int("attempt", int(n)+1),
				slog.String("kind", string(Classify(err))),
				slog.String("error", err.Error()),
			)
		}),
	)
	if err == nil {
		return value, nil
	}

	cause := lastErr
	if ctxErr := ctx.Err(); ctxErr != nil {
		cause = ctxErr
	} else if cause == nil {
		cause = err
	}

	var zero T
	return zero, Wrap(service, cause, attempts)
}

// Wrap classifies err as a *domain.ProviderError for service.
func Wrap(service string, err error, attempts int) error {
	if err == nil {
		return nil
	}
	var existing *domain.ProviderError
	if errors.As(err, &existing) && existing.Service == service {
		copied := *existing
		if copied.Attempts == 0 {
			copied.Attempts = attempts
		}
		return &copied
	}
	perr := &domain.ProviderError{
		Kind:     Classify(err),
		Service:  service,
		Attempts: attempts,
		Err:      err,
	}
	var statusErr *domain.HTTPStatusError
	if errors.As(err, &statusErr) {
		perr.StatusCode = statusErr.StatusCode
	}
	return perr
}

func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return Classify(err).Retryable()
}

// Classify maps an error onto the dependency error taxonomy.
func Classify(err error) domain.ErrorKind {
	if err == nil {
		return ""
	}
	if errors.Is(err, domain.ErrBreakerOpen) {
		return domain.KindBreakerOpen
	}
	if errors.Is(err, context.Canceled) {
		return domain.KindCanceled
	}

	var perr *domain.ProviderError
	if errors.As(err, &perr) && perr.Kind != "" {
		return perr.Kind
	}
	var statusErr *domain.HTTPStatusError
	if errors.As(err, &statusErr) {
		return domain.KindForStatus(statusErr.StatusCode)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return domain.KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return domain.KindTimeout
		}
		return domain.KindNetwork
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return domain.KindNetwork
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return domain.KindParsing
	}

	return classifyMessage(strings.ToLower(err.Error()))
}

func classifyMessage(msg string) domain.ErrorKind {
	switch {
	case containsAny(msg, "rate limit", "too many requests", "429"):
		return domain.KindRateLimit
	case containsAny(msg, "quota", "credits exhausted", "payment required"):
		return domain.KindQuotaExceeded
	case containsAny(msg, "unauthorized", "forbidden", "invalid api key", "authentication"):
		return domain.KindAuth
	case containsAny(msg, "timeout", "timed out", "deadline exceeded"):
		return domain.KindTimeout
	case containsAny(msg, "connection reset", "connection refused", "no such host", "tls", "eof", "broken pipe"):
		return domain.KindNetwork
	case containsAny(msg, "parse", "unmarshal", "invalid character", "malformed"):
		return domain.KindParsing
	default:
		return domain.KindUnknown
	}
}

func containsAny(value string, needles ...string) bool {
	for _, needle := range needles {
		if strings.Contains(value, needle) {
			return true
		}
	}
	return false
}

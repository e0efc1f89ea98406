package domain

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrBreakerOpen marks a call rejected by an open circuit breaker. It is a
	// control-flow signal, never the wrapped dependency's own error.
	ErrBreakerOpen   = errors.New("circuit breaker open")
	ErrUnknownSearch = errors.New("unknown search id")
	ErrNoCandidate   = errors.New("candidate not found in search")
)

type ErrorKind string

const (
	KindNetwork       ErrorKind = "network"
	KindTimeout       ErrorKind = "timeout"
	KindRateLimit     ErrorKind = "rate_limit"
	KindQuotaExceeded ErrorKind = "quota_exceeded"
	KindAuth          ErrorKind = "auth"
	KindParsing       ErrorKind = "parsing"
	KindClient        ErrorKind = "client"
	KindBreakerOpen   ErrorKind = "breaker_open"
	KindCanceled      ErrorKind = "canceled"
	KindUnknown       ErrorKind = "unknown"
)

func (k ErrorKind) Retryable() bool {
	switch k {
	case KindAuth, KindParsing, KindClient, KindBreakerOpen, KindCanceled:
		return false
	default:
		return true
	}
}

// HTTPStatusError is returned by provider adapters for non-2xx upstream replies.
type HTTPStatusError struct {
	Service    string
	StatusCode int
	URL        string
}

func (e *HTTPStatusError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("%s: unexpected status %d from %s", e.Service, e.StatusCode, e.URL)
	}
	return fmt.Sprintf("%s: unexpected status %d", e.Service, e.StatusCode)
}

// ProviderError is a classified dependency failure.
type ProviderError struct {
	Kind       ErrorKind
	Service    string
	StatusCode int
	Attempts   int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s error", e.Service, e.Kind)
	}
	return fmt.Sprintf("%s: %s error: %v", e.Service, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// UserMessage is safe to show to end users.
func (e *ProviderError) UserMessage() string {
	return UserMessageFor(e.Kind)
}

func UserMessageFor(kind ErrorKind) string {
	switch kind {
	case KindNetwork:
		return "A data source could not be reached. Please try again in a moment."
	case KindTimeout:
		return "A data source took too long to respond. Please try again shortly."
	case KindRateLimit:
		return "We are sending too many requests right now. Please wait a minute and retry."
	case KindQuotaExceeded:
		return "The search quota for a data source is used up. Results may be limited until it resets."
	case KindAuth:
		return "A data source rejected our credentials. The service operator has to fix the configuration."
	case KindParsing:
		return "A data source returned data we could not read."
	case KindClient:
		return "A data source rejected the request. Try simplifying your search."
	case KindBreakerOpen:
		return "A data source is temporarily paused after repeated failures."
	case KindCanceled:
		return "The search was cancelled."
	default:
		return "Something went wrong while searching. Please try again."
	}
}

// KindForStatus maps an upstream HTTP status code onto the error taxonomy.
func KindForStatus(status int) ErrorKind {
	switch {
	case status == http.StatusTooManyRequests:
		return KindRateLimit
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusPaymentRequired:
		return KindQuotaExceeded
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return KindTimeout
	case status >= 400 && status < 500:
		return KindClient
	case status >= 500:
		return KindNetwork
	default:
		return KindUnknown
	}
}

package provider

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	// MaxRetries is the maximum number of retries for API errors.
	MaxRetries = 3
	// RetryInitialInterval is the initial interval for exponential backoff.
	RetryInitialInterval = time.Second
	// RetryMaxInterval is the maximum interval for exponential backoff.
	RetryMaxInterval = 30 * time.Second
	// RetryMaxElapsedTime is the maximum total time for retries.
	RetryMaxElapsedTime = 2 * time.Minute
)

// Kind classifies provider failures for retry and surfacing decisions.
type Kind int

const (
	// KindTransient covers upstream 5xx, timeouts and connection failures.
	KindTransient Kind = iota
	// KindRateLimited covers 429/overloaded responses; retried like transient.
	KindRateLimited
	// KindAuthentication covers invalid or missing credentials.
	KindAuthentication
	// KindContextTooLarge means the request exceeded the model window.
	KindContextTooLarge
	// KindFatal covers malformed requests and anything else not worth
	// retrying.
	KindFatal
)

// String implements fmt.Stringer for log fields.
func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindRateLimited:
		return "rate_limited"
	case KindAuthentication:
		return "authentication"
	case KindContextTooLarge:
		return "context_too_large"
	default:
		return "fatal"
	}
}

// Retryable reports whether a failure of this kind should be retried.
func (k Kind) Retryable() bool {
	return k == KindTransient || k == KindRateLimited
}

// Classify maps a provider error to its Kind. SDK errors arrive as opaque
// wrapped strings, so classification sniffs status codes and well-known
// phrases across the Anthropic/OpenAI/Ark wire formats.
func Classify(err error) Kind {
	if err == nil {
		return KindFatal
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindFatal
	}

	msg := strings.ToLower(err.Error())

	switch {
	case containsAny(msg,
		"context length", "context_length_exceeded", "maximum context",
		"prompt is too long", "input is too long", "too many tokens",
		"exceeds the maximum number of tokens"):
		return KindContextTooLarge

	case containsAny(msg,
		"429", "rate limit", "rate_limit", "too many requests",
		"overloaded", "529"):
		return KindRateLimited

	case containsAny(msg,
		"401", "403", "unauthorized", "authentication", "forbidden",
		"invalid api key", "invalid x-api-key", "permission_error"):
		return KindAuthentication

	case containsAny(msg,
		"500", "502", "503", "504", "internal server error", "bad gateway",
		"service unavailable", "gateway timeout", "connection refused",
		"connection reset", "broken pipe", "unexpected eof",
		"i/o timeout", "tls handshake timeout", "no such host",
		"api_error", "temporarily unavailable"):
		return KindTransient

	default:
		return KindFatal
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// NewRetryBackOff creates an exponential backoff with jitter for API
// retries. Jitter avoids thundering-herd retry storms; the context bound
// lets an aborted turn stop waiting immediately.
func NewRetryBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = RetryInitialInterval
	b.MaxInterval = RetryMaxInterval
	b.MaxElapsedTime = RetryMaxElapsedTime
	b.RandomizationFactor = 0.5
	b.Multiplier = 2.0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, MaxRetries), ctx)
}

package ai

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrMissingCredential is returned when no API key is configured.
	ErrMissingCredential = errors.New("ai config: APIKey is required")

	// ErrUnauthorized indicates the provider rejected the configured credential.
	ErrUnauthorized = errors.New("ai provider rejected credentials")

	// ErrEmptyResponse indicates the provider returned no usable output.
	ErrEmptyResponse = errors.New("ai provider returned an empty response")

	// ErrDimensionMismatch indicates an embedding of unexpected length.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// QuotaError reports that a provider refused a call because of a quota or
// rate limit. RetryAfter is zero when the provider gave no hint.
type QuotaError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *QuotaError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("quota exhausted (retry after %s): %v", e.RetryAfter, e.Err)
	}
	return fmt.Sprintf("quota exhausted: %v", e.Err)
}

func (e *QuotaError) Unwrap() error {
	return e.Err
}

// IsQuota reports whether err carries a QuotaError and returns its retry hint.
func IsQuota(err error) (time.Duration, bool) {
	var qe *QuotaError
	if errors.As(err, &qe) {
		return qe.RetryAfter, true
	}
	return 0, false
}

var (
	quotaMarkers = []string{"rate limit", "ratelimit", "quota", "resource_exhausted", "resource exhausted", "too many requests"}
	authMarkers  = []string{"unauthorized", "invalid api key", "incorrect api key", "permission denied"}

	// Matches a status code only where a client reports one: "status code: 429",
	// "status 401", "HTTP 403", "HTTP/1.1 429" or a leading "429 Too Many Requests".
	statusPattern = regexp.MustCompile(`(?i)(?:\bstatus(?:[ _]?code)?\s*[:=]?\s*|\bhttp(?:/\d(?:\.\d)?)?\s*[:=]?\s*|^)(\d{3})\b`)

	// Matches `retryDelay":"37s"` (Gemini RetryInfo) and "retry in 37s" / "retry after 37 seconds".
	retryHintPattern = regexp.MustCompile(`(?i)(?:retrydelay"?\s*:\s*"?|retry (?:in|after)\s+)(\d+(?:\.\d+)?)\s*(s|sec|secs|seconds|ms)?`)
)

// ClassifyError maps a provider error to the package taxonomy by inspecting its
// message. Clients that expose typed HTTP errors should prefer
// ClassifyStatus. Returns err unchanged when nothing matches.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := IsQuota(err); ok || errors.Is(err, ErrUnauthorized) {
		return err
	}
	msg := strings.ToLower(err.Error())
	switch statusCode(msg) {
	case 429:
		return &QuotaError{RetryAfter: parseRetryHint(msg), Err: err}
	case 401, 403:
		return fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	for _, m := range quotaMarkers {
		if strings.Contains(msg, m) {
			return &QuotaError{RetryAfter: parseRetryHint(msg), Err: err}
		}
	}
	for _, m := range authMarkers {
		if strings.Contains(msg, m) {
			return fmt.Errorf("%w: %w", ErrUnauthorized, err)
		}
	}
	return err
}

// ClassifyStatus maps an HTTP status code and Retry-After header value to the
// package taxonomy.
func ClassifyStatus(status int, retryAfter string, err error) error {
	switch status {
	case 429:
		return &QuotaError{RetryAfter: ParseRetryAfter(retryAfter), Err: err}
	case 401, 403:
		return fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	return ClassifyError(err)
}

// ParseRetryAfter parses a Retry-After header given in seconds.
// HTTP-date values and garbage yield zero.
func ParseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}

// statusCode returns the first HTTP status reported in msg, or 0.
func statusCode(msg string) int {
	m := statusPattern.FindStringSubmatch(msg)
	if m == nil {
		return 0
	}
	code, _ := strconv.Atoi(m[1])
	return code
}

func parseRetryHint(msg string) time.Duration {
	m := retryHintPattern.FindStringSubmatch(msg)
	if m == nil {
		return 0
	}
	n, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	if m[2] == "ms" {
		return time.Duration(n * float64(time.Millisecond))
	}
	return time.Duration(n * float64(time.Second))
}

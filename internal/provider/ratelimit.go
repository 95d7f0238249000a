package provider

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Rate-limit headers returned by OpenAI-compatible APIs.
const (
	headerRemainingRequests = "x-ratelimit-remaining-requests"
	headerRemainingTokens   = "x-ratelimit-remaining-tokens"
	headerResetRequests     = "x-ratelimit-reset-requests"
	headerResetTokens       = "x-ratelimit-reset-tokens"
)

// RateLimits is the quota a response reported. Nil fields were absent or unparseable.
type RateLimits struct {
	RequestsRemaining *int
	TokensRemaining   *int
	// Resets are relative to the time the response was received.
	RequestsReset *time.Duration
	TokensReset   *time.Duration
}

// Empty reports whether no rate-limit header was present.
func (l RateLimits) Empty() bool {
	return l.RequestsRemaining == nil && l.TokensRemaining == nil && l.RequestsReset == nil && l.TokensReset == nil
}

// ParseRateLimits reads the rate-limit headers from h.
func ParseRateLimits(h http.Header) RateLimits {
	return RateLimits{
		RequestsRemaining: parseCount(h.Get(headerRemainingRequests)),
		TokensRemaining:   parseCount(h.Get(headerRemainingTokens)),
		RequestsReset:     parseReset(h.Get(headerResetRequests)),
		TokensReset:       parseReset(h.Get(headerResetTokens)),
	}
}

func parseCount(v string) *int {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return nil
	}
	return &n
}

// parseReset accepts Go-style durations ("6m0s", "20ms") and bare seconds ("12", "1.5").
func parseReset(v string) *time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	if d, err := time.ParseDuration(v); err == nil && d >= 0 {
		return &d
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil && secs >= 0 {
		d := time.Duration(secs * float64(time.Second))
		return &d
	}
	return nil
}

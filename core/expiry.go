package core

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

const (
	MinTokenLifetimeSeconds     int64 = 60
	MaxTokenLifetimeSeconds     int64 = 10 * 365 * 24 * 60 * 60
	DefaultTokenLifetimeSeconds int64 = 3600

	ExpiryPastWindow   = 365 * 24 * time.Hour
	ExpiryFutureWindow = time.Duration(MaxTokenLifetimeSeconds) * time.Second
)

// ExpiryMath bounds token lifetimes reported by token endpoints, which are
// treated as untrusted input.
type ExpiryMath struct {
	Now    func() time.Time
	Logger Logger
}

func NewExpiryMath(logger Logger) ExpiryMath {
	return ExpiryMath{Logger: logger}
}

func (m ExpiryMath) now() time.Time {
	if m.Now != nil {
		return m.Now().UTC()
	}
	return time.Now().UTC()
}

func (m ExpiryMath) warn(message string, args ...any) {
	logger := m.Logger
	if logger == nil {
		logger = glog.Nop()
	}
	logger.Warn(message, args...)
}

// ValidateLifetime clamps a relative lifetime into [60s, 10y]. Missing,
// non-numeric, NaN or negative input yields the 3600s default.
func (m ExpiryMath) ValidateLifetime(raw any) int64 {
	value, ok := numericLifetime(raw)
	if !ok || math.IsNaN(value) || math.IsInf(value, 0) {
		m.warn("invalid expires_in value, using default", "expires_in", raw, "default", DefaultTokenLifetimeSeconds)
		return DefaultTokenLifetimeSeconds
	}
	if value < 0 {
		m.warn("negative expires_in value, using default", "expires_in", raw, "default", DefaultTokenLifetimeSeconds)
		return DefaultTokenLifetimeSeconds
	}
	if value < float64(MinTokenLifetimeSeconds) {
		m.warn("expires_in too small, using minimum", "expires_in", raw, "minimum", MinTokenLifetimeSeconds)
		return MinTokenLifetimeSeconds
	}
	if value > float64(MaxTokenLifetimeSeconds) {
		m.warn("expires_in too large, using maximum", "expires_in", raw, "maximum", MaxTokenLifetimeSeconds)
		return MaxTokenLifetimeSeconds
	}
	return int64(math.Floor(value))
}

// ComputeExpiry returns now plus the validated lifetime, falling back to now
// plus the default lifetime if the absolute instant is out of bounds.
func (m ExpiryMath) ComputeExpiry(raw any) time.Time {
	now := m.now()
	lifetime := m.ValidateLifetime(raw)
	expiresAt := now.Add(time.Duration(lifetime) * time.Second)
	if expiresAt.Before(now) || expiresAt.After(now.Add(ExpiryFutureWindow)) {
		m.warn("computed expiry out of bounds, using default", "expires_at", expiresAt)
		return now.Add(time.Duration(DefaultTokenLifetimeSeconds) * time.Second)
	}
	return expiresAt
}

// IsValidExpiry reports whether t lies within [now-1y, now+10y].
func (m ExpiryMath) IsValidExpiry(t time.Time) bool {
	if t.IsZero() {
		return false
	}
	now := m.now()
	return !t.Before(now.Add(-ExpiryPastWindow)) && !t.After(now.Add(ExpiryFutureWindow))
}

// ClampExpiry replaces an out-of-window absolute expiry with now plus the
// default lifetime.
func (m ExpiryMath) ClampExpiry(t time.Time) time.Time {
	if m.IsValidExpiry(t) {
		return t.UTC()
	}
	m.warn("expires_at out of bounds, using default", "expires_at", t)
	return m.now().Add(time.Duration(DefaultTokenLifetimeSeconds) * time.Second)
}

// ResolveExpiry prefers a provider-supplied absolute expires_at (unix seconds
// or RFC3339) when it is inside the valid window, otherwise derives one from
// expires_in.
func (m ExpiryMath) ResolveExpiry(resp TokenResponse) time.Time {
	if raw, ok := resp.Raw["expires_at"]; ok && raw != nil {
		if absolute, parsed := parseAbsoluteExpiry(raw); parsed && m.IsValidExpiry(absolute) {
			return absolute.UTC()
		}
	}
	return m.ComputeExpiry(resp.ExpiresIn)
}

func ValidateLifetime(raw any) int64 {
	return ExpiryMath{}.ValidateLifetime(raw)
}

func ComputeExpiry(raw any) time.Time {
	return ExpiryMath{}.ComputeExpiry(raw)
}

func IsValidExpiry(t time.Time) bool {
	return ExpiryMath{}.IsValidExpiry(t)
}

func numericLifetime(raw any) (float64, bool) {
	switch typed := raw.(type) {
	case nil:
		return 0, false
	case int:
		return float64(typed), true
	case int8:
		return float64(typed), true
	case int16:
		return float64(typed), true
	case int32:
		return float64(typed), true
	case int64:
		return float64(typed), true
	case uint:
		return float64(typed), true
	case uint8:
		return float64(typed), true
	case uint16:
		return float64(typed), true
	case uint32:
		return float64(typed), true
	case uint64:
		return float64(typed), true
	case float32:
		return float64(typed), true
	case float64:
		return typed, true
	case json.Number:
		value, err := typed.Float64()
		return value, err == nil
	case string:
		trimmed := strings.TrimSpace(typed)
		if trimmed == "" {
			return 0, false
		}
		value, err := strconv.ParseFloat(trimmed, 64)
		return value, err == nil
	default:
		return 0, false
	}
}

func parseAbsoluteExpiry(raw any) (time.Time, bool) {
	if text, ok := raw.(string); ok {
		if parsed, err := time.Parse(time.RFC3339, strings.TrimSpace(text)); err == nil {
			return parsed, true
		}
	}
	seconds, ok := numericLifetime(raw)
	if !ok || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return time.Time{}, false
	}
	return time.Unix(int64(seconds), 0).UTC(), true
}

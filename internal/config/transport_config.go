package config

import "time"

type TransportConfig interface {
	GetMaxRetries() int
	GetRetryWaitMin() time.Duration
	GetRetryWaitMax() time.Duration
	GetRateLimit() float64
	GetRateBurst() int
	GetClientTimeout() time.Duration
	GetTracingEnabled() bool
}

type Transport struct{}

var _ TransportConfig = Transport{}

func (Transport) GetMaxRetries() int {
	return getInt("DASH_MAX_RETRIES", 2)
}

func (Transport) GetRetryWaitMin() time.Duration {
	return getDuration("DASH_RETRY_WAIT_MIN", 500*time.Millisecond)
}

func (Transport) GetRetryWaitMax() time.Duration {
	return getDuration("DASH_RETRY_WAIT_MAX", 5*time.Second)
}

// GetRateLimit is requests per second. Zero disables limiting.
func (Transport) GetRateLimit() float64 {
	return float64(getInt("DASH_RATE_LIMIT", 0))
}

func (Transport) GetRateBurst() int {
	return getInt("DASH_RATE_BURST", 1)
}

// GetClientTimeout is zero by default so refresh and switch calls are unbounded
// unless a caller context says otherwise.
func (Transport) GetClientTimeout() time.Duration {
	return getDuration("DASH_CLIENT_TIMEOUT", 0)
}

func (Transport) GetTracingEnabled() bool {
	return getBool("DASH_TRACING", true)
}

package config

import "time"

type SessionConfig interface {
	GetRefreshInterval() time.Duration
	GetExpiringWindow() time.Duration
	GetClaimsCacheSize() int
}

type Session struct{}

var _ SessionConfig = Session{}

func (Session) GetRefreshInterval() time.Duration {
	return getDuration("DASH_REFRESH_INTERVAL", time.Minute)
}

func (Session) GetExpiringWindow() time.Duration {
	return getDuration("DASH_EXPIRING_WINDOW", 5*time.Minute)
}

func (Session) GetClaimsCacheSize() int {
	return getInt("DASH_CLAIMS_CACHE_SIZE", 64)
}

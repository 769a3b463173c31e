package config

import "time"

type OAuthConfig interface {
	GetGoogleClientID() string
	GetGoogleIssuer() string
	GetGitHubClientID() string
	GetGitHubScopes() []string
	GetRedirectPort() int
	GetCallbackTimeout() time.Duration
}

type OAuth struct{}

var _ OAuthConfig = OAuth{}

func (OAuth) GetGoogleClientID() string {
	return GetEnv("DASH_GOOGLE_CLIENT_ID", "")
}

func (OAuth) GetGoogleIssuer() string {
	return GetEnv("DASH_GOOGLE_ISSUER", "https://accounts.google.com")
}

func (OAuth) GetGitHubClientID() string {
	return GetEnv("DASH_GITHUB_CLIENT_ID", "")
}

func (OAuth) GetGitHubScopes() []string {
	return []string{"read:user", "user:email"}
}

// GetRedirectPort is the loopback port for the login callback. Zero picks a free port.
func (OAuth) GetRedirectPort() int {
	return getInt("DASH_OAUTH_REDIRECT_PORT", 0)
}

func (OAuth) GetCallbackTimeout() time.Duration {
	return getDuration("DASH_OAUTH_CALLBACK_TIMEOUT", 5*time.Minute)
}

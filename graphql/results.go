package graphql

import "github.com/jrsteele09/go-tenant-session/token"

// TokenResult is the {success, data, error} envelope returned by refresh,
// switchTenants and the login mutations.
type TokenResult struct {
	Success bool        `json:"success"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
	Data    *TokenData  `json:"data,omitempty"`
	User    *UserRecord `json:"user,omitempty"`

	// Some login responses put the tokens at the top level.
	AccessToken  string `json:"accessToken,omitempty"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

type TokenData struct {
	AccessToken  string      `json:"accessToken"`
	RefreshToken string      `json:"refreshToken,omitempty"`
	User         *UserRecord `json:"user,omitempty"`
}

// UserRecord is the user object some login responses include.
type UserRecord struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	ProfileImage string `json:"profileImage"`
}

// Pair returns the tokens wherever the response placed them.
func (r *TokenResult) Pair() token.Pair {
	if r == nil {
		return token.Pair{}
	}
	p := token.Pair{AccessToken: r.AccessToken, RefreshToken: r.RefreshToken}
	if r.Data != nil {
		if r.Data.AccessToken != "" {
			p.AccessToken = r.Data.AccessToken
		}
		if r.Data.RefreshToken != "" {
			p.RefreshToken = r.Data.RefreshToken
		}
	}
	return p
}

// UserRecord returns the user object wherever the response placed it.
func (r *TokenResult) UserRecord() *UserRecord {
	if r == nil {
		return nil
	}
	if r.Data != nil && r.Data.User != nil {
		return r.Data.User
	}
	return r.User
}

// ErrorMessage returns the server supplied failure text, or fallback.
func (r *TokenResult) ErrorMessage(fallback string) string {
	if r != nil && r.Error != "" {
		return r.Error
	}
	if r != nil && r.Message != "" {
		return r.Message
	}
	return fallback
}

// ProjectDetails is the projectDetails query result.
type ProjectDetails struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	RepoLink      string `json:"repoLink"`
	ProjectType   string `json:"projectType"`
	DefaultBranch string `json:"defaultBranch"`
}

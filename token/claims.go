package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jrsteele09/go-tenant-session/internal/errors"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

const (
	DefaultExpiringWindow = 5 * time.Minute
	defaultCacheSize      = 64
)

// Pair is the access/refresh token pair issued by the backend.
type Pair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// Claims is the client-side view of an access token payload. It drives UI
// state only; nothing here is trusted for authorization.
type Claims struct {
	SubjectID string
	Name      string
	Email     string
	IsAdmin   bool
	TenantID  string
	ExpiresAt int64 // epoch seconds, zero when the token carries no exp
}

// Expiry returns the expiry time, or the zero time when there is none.
func (c *Claims) Expiry() time.Time {
	if c == nil || c.ExpiresAt == 0 {
		return time.Time{}
	}
	return time.Unix(c.ExpiresAt, 0)
}

// Decoder reads access token payloads without verifying signatures.
// Decoded claims are memoised per raw token.
type Decoder struct {
	parser         *jwt.Parser
	cache          *lru.Cache[string, *Claims]
	expiringWindow time.Duration
	now            func() time.Time
}

type DecoderOption func(*Decoder)

func WithExpiringWindow(d time.Duration) DecoderOption {
	return func(dec *Decoder) {
		if d > 0 {
			dec.expiringWindow = d
		}
	}
}

func WithNowFunc(fn func() time.Time) DecoderOption {
	return func(dec *Decoder) {
		dec.now = fn
	}
}

func WithCacheSize(size int) DecoderOption {
	return func(dec *Decoder) {
		if size > 0 {
			dec.cache, _ = lru.New[string, *Claims](size)
		}
	}
}

func NewDecoder(opts ...DecoderOption) *Decoder {
	cache, _ := lru.New[string, *Claims](defaultCacheSize)
	dec := &Decoder{
		parser:         jwt.NewParser(),
		cache:          cache,
		expiringWindow: DefaultExpiringWindow,
	}
	for _, opt := range opts {
		opt(dec)
	}
	return dec
}

var defaultDecoder = NewDecoder()

// Decode decodes raw with the package default decoder.
func Decode(raw string) (*Claims, error) {
	return defaultDecoder.Decode(raw)
}

// Decode parses the payload of a compact JWS. Malformed input returns an error
// wrapping errors.ErrDecode. The returned Claims must not be modified.
func (d *Decoder) Decode(raw string) (*Claims, error) {
	if raw == "" {
		return nil, errors.Wrapf(errors.ErrDecode, "empty token")
	}
	if c, ok := d.cache.Get(raw); ok {
		return c, nil
	}

	mc := jwt.MapClaims{}
	if _, _, err := d.parser.ParseUnverified(raw, mc); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrDecode, err)
	}

	c := &Claims{
		SubjectID: stringClaim(mc, "userId"),
		Name:      stringClaim(mc, "name"),
		Email:     stringClaim(mc, "email"),
		TenantID:  stringClaim(mc, "tid"),
	}
	if c.SubjectID == "" {
		c.SubjectID = stringClaim(mc, "sub")
	}
	if admin, ok := mc["isAdmin"].(bool); ok {
		c.IsAdmin = admin
	}
	exp, err := mc.GetExpirationTime()
	if err != nil {
		return nil, fmt.Errorf("%w: exp: %v", errors.ErrDecode, err)
	}
	if exp != nil {
		c.ExpiresAt = exp.Unix()
	}

	d.cache.Add(raw, c)
	return c, nil
}

// IsExpired reports whether raw is past its expiry. Undecodable tokens are expired.
func (d *Decoder) IsExpired(raw string) bool {
	c, err := d.Decode(raw)
	if err != nil {
		return true
	}
	if c.ExpiresAt == 0 {
		return false
	}
	return c.ExpiresAt*1000 <= d.nowFunc()().UnixMilli()
}

// IsExpiringSoon reports whether less than the expiring window remains.
// Undecodable tokens are expiring.
func (d *Decoder) IsExpiringSoon(raw string) bool {
	c, err := d.Decode(raw)
	if err != nil {
		return true
	}
	if c.ExpiresAt == 0 {
		return false
	}
	remaining := time.Unix(c.ExpiresAt, 0).Sub(d.nowFunc()())
	return remaining < d.expiringWindow
}

func (d *Decoder) nowFunc() func() time.Time {
	if d.now != nil {
		return d.now
	}
	return NowTimeFunc
}

func stringClaim(mc jwt.MapClaims, key string) string {
	switch v := mc[key].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	default:
		return ""
	}
}

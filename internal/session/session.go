// Package session issues and reads the signed session token that carries a
// visitor's member id, guest token and demo flag between requests.
package session

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// CookieName is the session cookie set on every visitor.
const CookieName = "soulart_session"

// DefaultTTL is how long an issued session stays valid.
const DefaultTTL = 30 * 24 * time.Hour

// ErrNoSession is returned when the request carries no session token.
var ErrNoSession = errors.New("session: no token")

// Claims is the session payload.
type Claims struct {
	GuestToken string     `json:"gid,omitempty"`
	Demo       bool       `json:"demo,omitempty"`
	DemoAt     *time.Time `json:"demo_at,omitempty"`
	jwt.RegisteredClaims
}

// MemberID returns the member id carried in the subject claim, if any.
func (c *Claims) MemberID() string {
	return c.Subject
}

// Manager signs and verifies session tokens with a shared HMAC secret.
type Manager struct {
	secret []byte
	ttl    time.Duration
	secure bool
	now    func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithSecureCookie marks issued cookies Secure.
func WithSecureCookie(secure bool) Option {
	return func(m *Manager) { m.secure = secure }
}

// WithClock replaces time.Now, used by tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager returns a manager signing with secret.
func NewManager(secret string, opts ...Option) (*Manager, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("session: secret is required")
	}
	m := &Manager{secret: []byte(secret), ttl: DefaultTTL, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// NewGuest returns fresh claims for an anonymous visitor.
func (m *Manager) NewGuest() *Claims {
	return &Claims{GuestToken: uuid.NewString()}
}

// ForMember returns fresh claims for a signed-in member.
func (m *Manager) ForMember(memberID string) *Claims {
	c := m.NewGuest()
	c.Subject = memberID
	return c
}

// Sign mints a token for c, refreshing its issue and expiry times.
func (m *Manager) Sign(c *Claims) (string, error) {
	now := m.now()
	c.IssuedAt = jwt.NewNumericDate(now)
	c.ExpiresAt = jwt.NewNumericDate(now.Add(m.ttl))
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("session: sign: %w", err)
	}
	return signed, nil
}

// Parse verifies a token and returns its claims.
func (m *Manager) Parse(tokenStr string) (*Claims, error) {
	t, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, fmt.Errorf("session: parse: %w", err)
	}
	if c, ok := t.Claims.(*Claims); ok && t.Valid {
		return c, nil
	}
	return nil, jwt.ErrTokenInvalidClaims
}

// FromRequest reads the session from the Authorization bearer header or the
// session cookie, in that order.
func (m *Manager) FromRequest(r *http.Request) (*Claims, error) {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok && strings.TrimSpace(token) != "" {
			return m.Parse(strings.TrimSpace(token))
		}
	}
	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return nil, ErrNoSession
	}
	return m.Parse(cookie.Value)
}

// Write signs c and sets it as the session cookie.
func (m *Manager) Write(w http.ResponseWriter, c *Claims) error {
	signed, err := m.Sign(c)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    signed,
		Path:     "/",
		Expires:  m.now().Add(m.ttl),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

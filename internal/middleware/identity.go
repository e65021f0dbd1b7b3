package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/soulart-temple/backend/internal/entitlement"
	"github.com/soulart-temple/backend/internal/logger"
	"github.com/soulart-temple/backend/internal/models"
	"github.com/soulart-temple/backend/internal/session"
	"github.com/soulart-temple/backend/internal/store"
)

// MemberLoader loads a member record by id.
type MemberLoader interface {
	GetMember(ctx context.Context, id string) (*models.Member, error)
}

type ctxKey int

const (
	identityKey ctxKey = iota
	demoKey
	claimsKey
)

// Identity resolves every request to a member or guest identity. Members are
// loaded fresh from the store on each request. A visitor without a valid
// session gets a new guest session cookie, and a session whose member no
// longer exists degrades to that session's guest token.
func Identity(sessions *session.Manager, members MemberLoader, log *logger.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = logger.Nop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := sessions.FromRequest(r)
			dirty := false
			if err != nil {
				if !errors.Is(err, session.ErrNoSession) {
					log.Debugf("[session] discarding invalid session: %v", err)
				}
				claims = sessions.NewGuest()
				dirty = true
			}
			if claims.GuestToken == "" {
				claims.GuestToken = sessions.NewGuest().GuestToken
				dirty = true
			}

			identity := models.GuestIdentity(claims.GuestToken)
			if id := claims.MemberID(); id != "" {
				member, err := members.GetMember(r.Context(), id)
				switch {
				case errors.Is(err, store.ErrMemberNotFound):
					log.Warnf("[session] member %s no longer exists, continuing as guest", id)
					claims.Subject = ""
					dirty = true
				case err != nil:
					log.Errorf("[session] load member %s: %v", id, err)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_, _ = w.Write([]byte(`{"error":"failed to load member"}`))
					return
				default:
					identity = models.MemberIdentity(member)
				}
			}

			if dirty {
				if err := sessions.Write(w, claims); err != nil {
					log.Errorf("[session] write cookie: %v", err)
				}
			}

			ctx := context.WithValue(r.Context(), identityKey, identity)
			ctx = context.WithValue(ctx, demoKey, demoFromClaims(claims))
			ctx = context.WithValue(ctx, claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func demoFromClaims(c *session.Claims) entitlement.DemoOverride {
	if !c.Demo {
		return entitlement.NoDemo
	}
	d := entitlement.DemoOverride{Active: true, Source: "session"}
	if c.DemoAt != nil {
		d.ActivatedAt = *c.DemoAt
	}
	return d
}

// IdentityFrom returns the identity resolved for the request. Requests that
// did not pass through Identity are anonymous guests with no token.
func IdentityFrom(ctx context.Context) models.Identity {
	if id, ok := ctx.Value(identityKey).(models.Identity); ok {
		return id
	}
	return models.GuestIdentity("")
}

// DemoFrom returns the request's demo override.
func DemoFrom(ctx context.Context) entitlement.DemoOverride {
	if d, ok := ctx.Value(demoKey).(entitlement.DemoOverride); ok {
		return d
	}
	return entitlement.NoDemo
}

// ClaimsFrom returns the session claims attached by Identity.
func ClaimsFrom(ctx context.Context) (*session.Claims, bool) {
	c, ok := ctx.Value(claimsKey).(*session.Claims)
	return c, ok
}

// WithIdentity attaches identity and demo to ctx. Used by tests and tools
// that bypass session handling.
func WithIdentity(ctx context.Context, identity models.Identity, demo entitlement.DemoOverride) context.Context {
	ctx = context.WithValue(ctx, identityKey, identity)
	return context.WithValue(ctx, demoKey, demo)
}

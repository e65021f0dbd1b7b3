package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/soulart-temple/backend/internal/entitlement"
	"github.com/soulart-temple/backend/internal/models"
	"github.com/soulart-temple/backend/internal/session"
	"github.com/soulart-temple/backend/internal/store"
)

type fakeMembers struct {
	members map[string]*models.Member
	err     error
}

func (f *fakeMembers) GetMember(ctx context.Context, id string) (*models.Member, error) {
	if f.err != nil {
		return nil, f.err
	}
	m, ok := f.members[id]
	if !ok {
		return nil, store.ErrMemberNotFound
	}
	cp := *m
	return &cp, nil
}

func newSessions(t *testing.T) *session.Manager {
	t.Helper()
	m, err := session.NewManager("middleware-secret")
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

type captured struct {
	identity models.Identity
	demo     entitlement.DemoOverride
}

func captureHandler(c *captured) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.identity = IdentityFrom(r.Context())
		c.demo = DemoFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestIdentityMintsGuestSession(t *testing.T) {
	sessions := newSessions(t)
	var got captured
	h := Identity(sessions, &fakeMembers{}, nil)(captureHandler(&got))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/entitlements", nil))

	if !got.identity.IsGuest() || got.identity.GuestToken == "" {
		t.Fatalf("expected guest with token, got %+v", got.identity)
	}
	if got.demo.Active {
		t.Fatal("demo must be off by default")
	}
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != session.CookieName {
		t.Fatalf("expected session cookie, got %+v", cookies)
	}

	// The same cookie keeps the same guest token and is not rewritten.
	req := httptest.NewRequest(http.MethodGet, "/api/entitlements", nil)
	req.AddCookie(cookies[0])
	rec2 := httptest.NewRecorder()
	token := got.identity.GuestToken
	h.ServeHTTP(rec2, req)
	if got.identity.GuestToken != token {
		t.Fatalf("guest token changed: %s -> %s", token, got.identity.GuestToken)
	}
	if len(rec2.Result().Cookies()) != 0 {
		t.Fatal("unchanged session should not be rewritten")
	}
}

func TestIdentityLoadsMemberFresh(t *testing.T) {
	sessions := newSessions(t)
	members := &fakeMembers{members: map[string]*models.Member{
		"m-1": {ID: "m-1", Tier: models.TierPremium},
	}}
	var got captured
	h := Identity(sessions, members, nil)(captureHandler(&got))

	claims := sessions.ForMember("m-1")
	now := time.Now().UTC()
	claims.Demo = true
	claims.DemoAt = &now
	token, err := sessions.Sign(claims)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	h.ServeHTTP(httptest.NewRecorder(), req)
	if got.identity.IsGuest() || got.identity.Member.Tier != models.TierPremium {
		t.Fatalf("expected premium member, got %+v", got.identity)
	}
	if !got.demo.Active || got.demo.Source != "session" {
		t.Fatalf("expected demo override from session, got %+v", got.demo)
	}

	// Tier changes are visible on the next request.
	members.members["m-1"].Tier = models.TierFree
	h.ServeHTTP(httptest.NewRecorder(), req)
	if got.identity.Member.Tier != models.TierFree {
		t.Fatalf("expected fresh tier, got %s", got.identity.Member.Tier)
	}
}

func TestIdentityDegradesMissingMemberToGuest(t *testing.T) {
	sessions := newSessions(t)
	var got captured
	h := Identity(sessions, &fakeMembers{}, nil)(captureHandler(&got))

	claims := sessions.ForMember("gone")
	token, _ := sessions.Sign(claims)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if !got.identity.IsGuest() || got.identity.GuestToken != claims.GuestToken {
		t.Fatalf("expected guest with session token, got %+v", got.identity)
	}
	if len(rec.Result().Cookies()) != 1 {
		t.Fatal("expected rewritten session cookie")
	}
}

func TestIdentityStoreFailure(t *testing.T) {
	sessions := newSessions(t)
	var got captured
	h := Identity(sessions, &fakeMembers{err: errors.New("db down")}, nil)(captureHandler(&got))

	token, _ := sessions.Sign(sessions.ForMember("m-1"))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestRateLimitPerIdentity(t *testing.T) {
	rl := NewRateLimiter(0.001, 1)
	h := RateLimit(rl)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	serve := func(id models.Identity) int {
		req := httptest.NewRequest(http.MethodPost, "/api/guide/chat", nil)
		req = req.WithContext(WithIdentity(req.Context(), id, entitlement.NoDemo))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	alice := models.GuestIdentity("alice")
	if code := serve(alice); code != http.StatusOK {
		t.Fatalf("first request: %d", code)
	}
	if code := serve(alice); code != http.StatusTooManyRequests {
		t.Fatalf("second request: expected 429, got %d", code)
	}
	if code := serve(models.GuestIdentity("bob")); code != http.StatusOK {
		t.Fatalf("other identity should not be limited, got %d", code)
	}
}

func TestRequestTrackerPassesStatus(t *testing.T) {
	router := chi.NewRouter()
	router.Use(NewRequestTracker(nil).Middleware())
	router.Get("/things/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/things/1", nil))
	if rec.Code != http.StatusTeapot || rec.Body.String() != "short and stout" {
		t.Fatalf("unexpected response: %d %q", rec.Code, rec.Body.String())
	}
}

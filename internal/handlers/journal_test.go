package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/soulart-temple/backend/internal/entitlement"
	"github.com/soulart-temple/backend/internal/logger"
	"github.com/soulart-temple/backend/internal/models"
	"github.com/soulart-temple/backend/internal/store"
)

type fakeJournal struct {
	mu      sync.Mutex
	entries []models.JournalEntry
	next    int64
	err     error
}

func (f *fakeJournal) ListJournalEntries(_ context.Context, memberID string) ([]models.JournalEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := []models.JournalEntry{}
	for _, e := range f.entries {
		if e.MemberID == memberID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (f *fakeJournal) CreateJournalEntry(_ context.Context, e *models.JournalEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.next++
	e.ID = f.next
	e.CreatedAt = time.Now().UTC()
	f.entries = append(f.entries, *e)
	return nil
}

func (f *fakeJournal) DeleteJournalEntry(_ context.Context, memberID string, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, e := range f.entries {
		if e.ID == id && e.MemberID == memberID {
			f.entries = append(f.entries[:i], f.entries[i+1:]...)
			return nil
		}
	}
	return store.ErrEntryNotFound
}

func newJournalRouter(entries *fakeJournal) (*JournalHandler, http.Handler) {
	h := NewJournalHandler(entries, newEvaluator(), nil, logger.Nop())
	h.Now = func() time.Time { return time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC) }
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return h, r
}

func serveAs(router http.Handler, r *http.Request, identity models.Identity, demo entitlement.DemoOverride) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, withIdentity(r, identity, demo))
	return rr
}

func TestJournalDeniesGuests(t *testing.T) {
	entries := &fakeJournal{}
	_, router := newJournalRouter(entries)
	guest := models.GuestIdentity("g-1")

	requests := []*http.Request{
		httptest.NewRequest(http.MethodGet, "/api/journal/entries", nil),
		postJSON("/api/journal/entries", `{"affirmation":"I am calm"}`),
		httptest.NewRequest(http.MethodDelete, "/api/journal/entries/1", nil),
		postJSON("/api/journal/save-doodle", `{"image":"data:image/png;base64,AA"}`),
	}
	for _, req := range requests {
		rr := serveAs(router, req, guest, entitlement.NoDemo)
		if rr.Code != http.StatusForbidden {
			t.Fatalf("%s %s: expected 403 got %d", req.Method, req.URL.Path, rr.Code)
		}
		body := decodeBody(t, rr)
		if body["upgrade_required"] != true || body["reason"] != entitlement.ReasonMembersOnly || body["required_tier"] != "free" {
			t.Fatalf("%s %s: unexpected denial: %v", req.Method, req.URL.Path, body)
		}
	}
	if len(entries.entries) != 0 {
		t.Fatalf("guest requests must not store entries: %v", entries.entries)
	}
}

func TestJournalFreeMemberLifecycle(t *testing.T) {
	entries := &fakeJournal{}
	_, router := newJournalRouter(entries)
	free := member("m-1", models.TierFree)

	rr := serveAs(router, postJSON("/api/journal/entries", `{"affirmation":"I am calm","feelings":"light","emotion_selected":"peace"}`), free, entitlement.NoDemo)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: expected 201 got %d: %s", rr.Code, rr.Body.String())
	}
	created := decodeBody(t, rr)
	if created["id"] != float64(1) || created["affirmation"] != "I am calm" || created["feelings"] != "light" {
		t.Fatalf("unexpected created entry: %v", created)
	}

	rr = serveAs(router, httptest.NewRequest(http.MethodGet, "/api/journal/entries", nil), free, entitlement.NoDemo)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"I am calm"`) {
		t.Fatalf("list: unexpected %d %s", rr.Code, rr.Body.String())
	}

	other := member("m-2", models.TierPremium)
	rr = serveAs(router, httptest.NewRequest(http.MethodDelete, "/api/journal/entries/1", nil), other, entitlement.NoDemo)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("delete by another member: expected 404 got %d", rr.Code)
	}

	rr = serveAs(router, httptest.NewRequest(http.MethodDelete, "/api/journal/entries/1", nil), free, entitlement.NoDemo)
	if rr.Code != http.StatusOK {
		t.Fatalf("delete: expected 200 got %d", rr.Code)
	}
	if body := decodeBody(t, rr); body["message"] != "Entry deleted successfully" {
		t.Fatalf("unexpected delete body: %v", body)
	}

	rr = serveAs(router, httptest.NewRequest(http.MethodDelete, "/api/journal/entries/abc", nil), free, entitlement.NoDemo)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("delete bad id: expected 404 got %d", rr.Code)
	}
}

func TestSaveDoodle(t *testing.T) {
	entries := &fakeJournal{}
	_, router := newJournalRouter(entries)
	basic := member("m-1", models.TierBasic)

	rr := serveAs(router, postJSON("/api/journal/save-doodle", `{"image":""}`), basic, entitlement.NoDemo)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
	if body := decodeBody(t, rr); body["success"] != false || body["error"] != "No image data provided" {
		t.Fatalf("unexpected body: %v", body)
	}

	rr = serveAs(router, postJSON("/api/journal/save-doodle", `{"image":"data:image/png;base64,AA","note":"gold spirals"}`), basic, entitlement.NoDemo)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", rr.Code, rr.Body.String())
	}
	if body := decodeBody(t, rr); body["success"] != true || body["entry_id"] != float64(1) {
		t.Fatalf("unexpected body: %v", body)
	}

	saved := entries.entries[0]
	if saved.Affirmation != "Art Meditation - Monday, January 01, 2024\n\ngold spirals" {
		t.Fatalf("unexpected affirmation: %q", saved.Affirmation)
	}
	if saved.DoodleImage == nil || saved.GeneralReflection == nil || *saved.GeneralReflection != "gold spirals" {
		t.Fatalf("unexpected doodle entry: %+v", saved)
	}
}

func TestJournalDemoGuest(t *testing.T) {
	entries := &fakeJournal{}
	_, router := newJournalRouter(entries)
	guest := models.GuestIdentity("g-1")
	demo := entitlement.DemoOverride{Active: true}

	rr := serveAs(router, httptest.NewRequest(http.MethodGet, "/api/journal/entries", nil), guest, demo)
	if rr.Code != http.StatusOK || strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Fatalf("demo list: unexpected %d %s", rr.Code, rr.Body.String())
	}

	rr = serveAs(router, postJSON("/api/journal/entries", `{"affirmation":"I am calm"}`), guest, demo)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("demo create without account: expected 401 got %d", rr.Code)
	}
}

func TestJournalEvaluationFailure(t *testing.T) {
	h := NewJournalHandler(&fakeJournal{}, brokenEntitlements{Evaluator: newEvaluator(), err: errors.New("ledger down")}, nil, logger.Nop())
	rr := httptest.NewRecorder()
	h.List().ServeHTTP(rr, withIdentity(httptest.NewRequest(http.MethodGet, "/api/journal/entries", nil), member("m-1", models.TierFree), entitlement.NoDemo))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", rr.Code)
	}
}

func TestJournalStoreFailure(t *testing.T) {
	_, router := newJournalRouter(&fakeJournal{err: errors.New("db down")})
	rr := serveAs(router, httptest.NewRequest(http.MethodGet, "/api/journal/entries", nil), member("m-1", models.TierFree), entitlement.NoDemo)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", rr.Code)
	}
}

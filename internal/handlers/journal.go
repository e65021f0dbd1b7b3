package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/soulart-temple/backend/internal/logger"
	"github.com/soulart-temple/backend/internal/middleware"
	"github.com/soulart-temple/backend/internal/models"
	"github.com/soulart-temple/backend/internal/store"
	"github.com/soulart-temple/backend/internal/validator"
)

const maxDoodleBody = 8 << 20

// JournalStore persists member journal entries.
type JournalStore interface {
	ListJournalEntries(ctx context.Context, memberID string) ([]models.JournalEntry, error)
	CreateJournalEntry(ctx context.Context, e *models.JournalEntry) error
	DeleteJournalEntry(ctx context.Context, memberID string, id int64) error
}

// JournalHandler serves the members-only journal and doodle routes.
type JournalHandler struct {
	Entries      JournalStore
	Entitlements Entitlements
	Validator    *validator.Validator
	Log          *logger.Logger
	Now          func() time.Time
}

// NewJournalHandler creates a JournalHandler.
func NewJournalHandler(entries JournalStore, ev Entitlements, v *validator.Validator, log *logger.Logger) *JournalHandler {
	if log == nil {
		log = logger.Nop()
	}
	if v == nil {
		v = validator.New()
	}
	return &JournalHandler{
		Entries:      entries,
		Entitlements: ev,
		Validator:    v,
		Log:          log,
		Now:          time.Now,
	}
}

// RegisterRoutes mounts the journal routes.
func (h *JournalHandler) RegisterRoutes(router chi.Router) {
	router.Route("/api/journal", func(r chi.Router) {
		r.Get("/entries", h.List())
		r.Post("/entries", h.Create())
		r.Delete("/entries/{id}", h.Delete())
		r.Post("/save-doodle", h.SaveDoodle())
	})
}

// allow evaluates feature for the caller and writes the denial when access is
// refused.
func (h *JournalHandler) allow(w http.ResponseWriter, r *http.Request, feature models.Feature) (models.Identity, bool) {
	identity := middleware.IdentityFrom(r.Context())
	d, err := h.Entitlements.Evaluate(r.Context(), identity, feature, middleware.DemoFrom(r.Context()))
	if err != nil {
		h.Log.Errorf("[journal] evaluate %s for %s: %v", feature, identity.LedgerKey(), err)
		writeError(w, http.StatusInternalServerError, "failed to evaluate entitlement")
		return identity, false
	}
	if !d.Allowed {
		msg := "Sign in or create a free account to keep a journal."
		if feature == models.FeatureDoodle {
			msg = "Sign in or create a free account to save your art meditations."
		}
		writeDenied(w, http.StatusForbidden, d, msg)
		return identity, false
	}
	return identity, true
}

// List returns the member's entries, newest first. A demo guest has no
// entries.
func (h *JournalHandler) List() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := h.allow(w, r, models.FeatureJournal)
		if !ok {
			return
		}
		if identity.IsGuest() {
			writeJSON(w, http.StatusOK, []models.JournalEntry{})
			return
		}

		entries, err := h.Entries.ListJournalEntries(r.Context(), identity.Member.ID)
		if err != nil {
			h.Log.Errorf("[journal] list entries for %s: %v", identity.Member.ID, err)
			writeError(w, http.StatusInternalServerError, "failed to load journal entries")
			return
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

// Create stores a new entry for the member.
func (h *JournalHandler) Create() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := h.allow(w, r, models.FeatureJournal); !ok {
			return
		}
		member, ok := requireMember(w, r)
		if !ok {
			return
		}

		var req models.JournalEntryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON payload")
			return
		}
		if errs := h.Validator.Validate(req); len(errs) > 0 {
			writeValidationErrors(w, errs)
			return
		}

		entry := &models.JournalEntry{
			MemberID:          member.ID,
			Affirmation:       req.Affirmation,
			GeneralReflection: req.GeneralReflection,
			Feelings:          req.Feelings,
			EmotionsReleased:  req.EmotionsReleased,
			WhatCameUp:        req.WhatCameUp,
			NextSteps:         req.NextSteps,
			EmotionSelected:   req.EmotionSelected,
			FrequencyTag:      req.FrequencyTag,
			VibrationWord:     req.VibrationWord,
			PromptUsed:        req.PromptUsed,
		}
		if err := h.Entries.CreateJournalEntry(r.Context(), entry); err != nil {
			h.Log.Errorf("[journal] create entry for %s: %v", member.ID, err)
			writeError(w, http.StatusInternalServerError, "failed to save journal entry")
			return
		}
		writeJSON(w, http.StatusCreated, entry)
	}
}

// Delete removes one of the member's entries. Entries of other members are
// reported as missing.
func (h *JournalHandler) Delete() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := h.allow(w, r, models.FeatureJournal); !ok {
			return
		}
		member, ok := requireMember(w, r)
		if !ok {
			return
		}

		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil || id <= 0 {
			writeError(w, http.StatusNotFound, "Entry not found")
			return
		}

		err = h.Entries.DeleteJournalEntry(r.Context(), member.ID, id)
		switch {
		case errors.Is(err, store.ErrEntryNotFound):
			writeError(w, http.StatusNotFound, "Entry not found")
			return
		case err != nil:
			h.Log.Errorf("[journal] delete entry %d for %s: %v", id, member.ID, err)
			writeError(w, http.StatusInternalServerError, "failed to delete journal entry")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "Entry deleted successfully"})
	}
}

// SaveDoodle stores a drawing as a dated art meditation entry.
func (h *JournalHandler) SaveDoodle() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := h.allow(w, r, models.FeatureDoodle); !ok {
			return
		}
		member, ok := requireMember(w, r)
		if !ok {
			return
		}

		var req models.DoodleRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxDoodleBody)).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "invalid JSON payload"})
			return
		}
		if req.Image == "" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "No image data provided"})
			return
		}

		entry := &models.JournalEntry{
			MemberID:    member.ID,
			Affirmation: doodleAffirmation(h.Now(), req.Note),
			DoodleImage: &req.Image,
		}
		if req.Note != "" {
			note := req.Note
			entry.GeneralReflection = &note
		}
		if err := h.Entries.CreateJournalEntry(r.Context(), entry); err != nil {
			h.Log.Errorf("[journal] save doodle for %s: %v", member.ID, err)
			writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": "failed to save doodle"})
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"success": true, "entry_id": entry.ID})
	}
}

func doodleAffirmation(now time.Time, note string) string {
	title := "Art Meditation - " + now.Format("Monday, January 02, 2006")
	if note == "" {
		return title
	}
	return title + "\n\n" + note
}

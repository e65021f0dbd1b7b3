package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/soulart-temple/backend/internal/logger"
	"github.com/soulart-temple/backend/internal/middleware"
	"github.com/soulart-temple/backend/internal/models"
	"github.com/soulart-temple/backend/internal/session"
	"github.com/soulart-temple/backend/internal/store"
	"github.com/soulart-temple/backend/internal/validator"
)

const errInvalidLogin = "Invalid email or password"

// Accounts stores member login credentials and profiles.
type Accounts interface {
	CreateAccount(ctx context.Context, acct models.NewAccount) (*models.Member, error)
	GetCredentials(ctx context.Context, email string) (models.Credentials, error)
	GetProfile(ctx context.Context, id string) (*models.Profile, error)
}

// AuthHandler serves password signup and login on top of the session cookie.
type AuthHandler struct {
	Accounts  Accounts
	Sessions  *session.Manager
	Validator *validator.Validator
	Log       *logger.Logger
	HashCost  int
}

// NewAuthHandler creates an AuthHandler hashing with bcrypt.DefaultCost.
func NewAuthHandler(accounts Accounts, sessions *session.Manager, v *validator.Validator, log *logger.Logger) *AuthHandler {
	if log == nil {
		log = logger.Nop()
	}
	if v == nil {
		v = validator.New()
	}
	return &AuthHandler{
		Accounts:  accounts,
		Sessions:  sessions,
		Validator: v,
		Log:       log,
		HashCost:  bcrypt.DefaultCost,
	}
}

// RegisterRoutes mounts the account routes.
func (h *AuthHandler) RegisterRoutes(router chi.Router) {
	router.Route("/api/auth", func(r chi.Router) {
		r.Get("/check", h.Check())
		r.Post("/register", h.Register())
		r.Post("/login", h.Login())
		r.Post("/logout", h.Logout())
	})
}

// Register creates a free member with a bcrypt password hash and signs the
// visitor in as that member.
func (h *AuthHandler) Register() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req models.RegisterRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON payload")
			return
		}
		req.Email = models.NormalizeEmail(req.Email)
		if errs := h.Validator.Validate(req); len(errs) > 0 {
			writeValidationErrors(w, errs)
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), h.HashCost)
		if err != nil {
			h.Log.Errorf("[auth] hash password: %v", err)
			writeError(w, http.StatusInternalServerError, "failed to create account")
			return
		}

		m, err := h.Accounts.CreateAccount(r.Context(), models.NewAccount{
			Email:        req.Email,
			PasswordHash: string(hash),
			FirstName:    req.FirstName,
			LastName:     req.LastName,
		})
		switch {
		case errors.Is(err, store.ErrEmailTaken):
			writeError(w, http.StatusBadRequest, "An account with this email already exists")
			return
		case err != nil:
			h.Log.Errorf("[auth] create account: %v", err)
			writeError(w, http.StatusInternalServerError, "failed to create account")
			return
		}

		if err := h.signIn(w, r, m.ID); err != nil {
			h.Log.Errorf("[auth] write session for new member %s: %v", m.ID, err)
			writeError(w, http.StatusInternalServerError, "failed to sign in")
			return
		}
		h.Log.Infof("[auth] registered member=%s", m.ID)
		writeJSON(w, http.StatusCreated, map[string]any{
			"message": "Account created successfully",
			"user_id": m.ID,
		})
	}
}

// Login verifies a password and binds the session to the member.
func (h *AuthHandler) Login() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req models.LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON payload")
			return
		}
		req.Email = models.NormalizeEmail(req.Email)
		if errs := h.Validator.Validate(req); len(errs) > 0 {
			writeValidationErrors(w, errs)
			return
		}

		creds, err := h.Accounts.GetCredentials(r.Context(), req.Email)
		switch {
		case errors.Is(err, store.ErrMemberNotFound):
			writeError(w, http.StatusUnauthorized, errInvalidLogin)
			return
		case err != nil:
			h.Log.Errorf("[auth] load credentials: %v", err)
			writeError(w, http.StatusInternalServerError, "failed to sign in")
			return
		}
		if creds.PasswordHash == "" ||
			bcrypt.CompareHashAndPassword([]byte(creds.PasswordHash), []byte(req.Password)) != nil {
			writeError(w, http.StatusUnauthorized, errInvalidLogin)
			return
		}

		if err := h.signIn(w, r, creds.MemberID); err != nil {
			h.Log.Errorf("[auth] write session for member %s: %v", creds.MemberID, err)
			writeError(w, http.StatusInternalServerError, "failed to sign in")
			return
		}
		h.Log.Infof("[auth] login member=%s", creds.MemberID)
		writeJSON(w, http.StatusOK, map[string]any{
			"message": "Login successful",
			"user": map[string]any{
				"id":         creds.MemberID,
				"email":      creds.Email,
				"first_name": creds.FirstName,
				"last_name":  creds.LastName,
			},
		})
	}
}

// Logout replaces the session with a fresh guest session. An active demo
// override survives.
func (h *AuthHandler) Logout() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := h.Sessions.NewGuest()
		if prev, ok := middleware.ClaimsFrom(r.Context()); ok {
			claims.Demo = prev.Demo
			claims.DemoAt = prev.DemoAt
		}
		if err := h.Sessions.Write(w, claims); err != nil {
			h.Log.Errorf("[auth] write guest session: %v", err)
			writeError(w, http.StatusInternalServerError, "failed to sign out")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
	}
}

// Check reports who the session belongs to. A demo session without a member
// is reported as a premium demo user.
func (h *AuthHandler) Check() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := middleware.IdentityFrom(r.Context())
		demo := middleware.DemoFrom(r.Context())

		if !identity.IsGuest() {
			p, err := h.Accounts.GetProfile(r.Context(), identity.Member.ID)
			if err != nil {
				h.Log.Errorf("[auth] load profile %s: %v", identity.Member.ID, err)
				writeError(w, http.StatusInternalServerError, "failed to load profile")
				return
			}
			user := map[string]any{
				"id":                p.ID,
				"email":             p.Email,
				"first_name":        p.FirstName,
				"last_name":         p.LastName,
				"name":              p.DisplayName(),
				"profile_image_url": p.ProfileImageURL,
				"membership_tier":   p.Tier,
			}
			if demo.Active {
				user["demo_mode"] = true
			}
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": true, "user": user})
			return
		}

		if demo.Active {
			writeJSON(w, http.StatusOK, map[string]any{
				"authenticated": true,
				"user": map[string]any{
					"id":                "demo",
					"email":             "demo@soulart.temple",
					"first_name":        "Demo",
					"last_name":         "User",
					"name":              "Demo User",
					"profile_image_url": nil,
					"membership_tier":   models.TierPremium,
					"demo_mode":         true,
				},
			})
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
	}
}

// signIn issues a member session, carrying over the demo flag.
func (h *AuthHandler) signIn(w http.ResponseWriter, r *http.Request, memberID string) error {
	claims := h.Sessions.ForMember(memberID)
	if prev, ok := middleware.ClaimsFrom(r.Context()); ok {
		claims.Demo = prev.Demo
		claims.DemoAt = prev.DemoAt
	}
	return h.Sessions.Write(w, claims)
}

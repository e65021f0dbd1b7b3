package handlers

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/soulart-temple/backend/internal/logger"
	"github.com/soulart-temple/backend/internal/middleware"
	"github.com/soulart-temple/backend/internal/session"
)

const demoActivatedPage = `<!DOCTYPE html>
<html>
<head>
  <title>Demo Mode Activated - SoulArt Temple</title>
  <style>
    body { font-family: 'Segoe UI', sans-serif; background: #F5F3EE; color: #1F1F2E;
           display: flex; justify-content: center; align-items: center; min-height: 100vh; margin: 0; }
    .container { text-align: center; padding: 40px; background: white; border-radius: 16px;
                 box-shadow: 0 4px 20px rgba(0,0,0,0.1); max-width: 500px; }
    h1 { color: #C8963E; }
    .btn { display: inline-block; background: #C8963E; color: white; padding: 15px 30px;
           border-radius: 8px; text-decoration: none; margin-top: 20px; font-weight: 600; }
    .note { font-size: 0.9em; color: #888; margin-top: 20px; }
  </style>
</head>
<body>
  <div class="container">
    <h1>Demo Mode Activated</h1>
    <p>You now have full Premium access to explore every SoulArt Temple feature.</p>
    <a href="/members-dashboard.html" class="btn">Start Exploring</a>
    <p class="note">Demo access is valid for this browser session only.</p>
  </div>
</body>
</html>
`

// ActivateDemo turns on the demo override for the caller's session when the
// path token matches the configured demo token. An empty configured token
// disables activation.
func ActivateDemo(token string, sessions *session.Manager, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		given := chi.URLParam(r, "token")
		if token == "" || subtle.ConstantTimeCompare([]byte(given), []byte(token)) != 1 {
			log.Warnf("[demo] rejected demo activation from %s", r.RemoteAddr)
			http.Error(w, "Invalid demo token", http.StatusForbidden)
			return
		}

		claims, ok := middleware.ClaimsFrom(r.Context())
		if !ok {
			claims = sessions.NewGuest()
		}
		now := time.Now().UTC()
		claims.Demo = true
		claims.DemoAt = &now
		if err := sessions.Write(w, claims); err != nil {
			log.Errorf("[demo] write session: %v", err)
			http.Error(w, "failed to activate demo mode", http.StatusInternalServerError)
			return
		}

		log.WithFields(map[string]interface{}{
			"remote_addr":  r.RemoteAddr,
			"identity":     middleware.IdentityFrom(r.Context()).LedgerKey(),
			"activated_at": now.Format(time.RFC3339),
		}).Info("[demo] demo mode activated")

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(demoActivatedPage))
	}
}

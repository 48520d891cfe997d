package middleware

import (
	"net/http"

	"github.com/tcche/orderbump/internal/config"
	"github.com/tcche/orderbump/internal/session"
	"go.uber.org/zap"
)

// SessionMiddleware attaches a checkout session to every request. A
// missing or empty cookie gets a fresh token; the session's anti-forgery
// nonce is issued alongside and exposed in a response header so the
// storefront can echo it on cart mutations.
type SessionMiddleware struct {
	cfg    config.SessionConfig
	nonces session.Nonces
	logger *zap.Logger
}

func NewSessionMiddleware(cfg config.SessionConfig, nonces session.Nonces, logger *zap.Logger) *SessionMiddleware {
	return &SessionMiddleware{cfg: cfg, nonces: nonces, logger: logger}
}

func (sm *SessionMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := &session.Session{}

		if c, err := r.Cookie(sm.cfg.CookieName); err == nil && c.Value != "" {
			s.ID = c.Value
		} else {
			s.ID = session.NewID()
			s.New = true
			http.SetCookie(w, &http.Cookie{
				Name:     sm.cfg.CookieName,
				Value:    s.ID,
				Path:     "/",
				MaxAge:   int(sm.cfg.TTL.Seconds()),
				HttpOnly: true,
				Secure:   sm.cfg.Secure,
				SameSite: http.SameSiteLaxMode,
			})
		}

		nonce, err := sm.nonces.Issue(r.Context(), s.ID)
		if err != nil {
			// The request proceeds without a nonce; mutation endpoints
			// will reject it, read endpoints still work.
			sm.logger.Warn("failed to issue session nonce", zap.Error(err))
		} else {
			s.Nonce = nonce
			w.Header().Set(sm.cfg.NonceName, nonce)
		}

		next.ServeHTTP(w, r.WithContext(session.WithSession(r.Context(), s)))
	})
}

// RequireNonce gates cart-mutating endpoints on the session nonce echoed
// in the request header.
func (sm *SessionMiddleware) RequireNonce(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := session.FromContext(r.Context())
		if s == nil {
			sm.forbidden(w, "no session")
			return
		}
		ok, err := sm.nonces.Check(r.Context(), s.ID, r.Header.Get(sm.cfg.NonceName))
		if err != nil {
			sm.logger.Warn("failed to check session nonce", zap.Error(err))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"error":"internal server error"}`))
			return
		}
		if !ok {
			sm.forbidden(w, "invalid or missing nonce")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (sm *SessionMiddleware) forbidden(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	w.Write([]byte(`{"error":"` + message + `"}`))
}

package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"llm_console/internal/auth"
	"llm_console/internal/utils"
)

// ContextKey defines the type for context keys to avoid conflicts
type ContextKey string

const (
	// OperatorKey holds the authenticated operator name
	OperatorKey ContextKey = "operator"

	SessionCookieName = "llm_console_session"
	SessionTTL        = 12 * time.Hour
	operatorSubject   = "operator"
)

// Sessions issues and checks the signed operator session cookie. When
// disabled every request is treated as authenticated.
type Sessions struct {
	signer  *auth.Signer
	enabled bool
	secure  bool
}

// NewSessions creates a session manager. enabled is false when no operator
// password is configured.
func NewSessions(signer *auth.Signer, enabled bool) *Sessions {
	return &Sessions{signer: signer, enabled: enabled}
}

// Enabled reports whether login is required.
func (s *Sessions) Enabled() bool {
	return s.enabled
}

// SetSecure marks issued cookies Secure.
func (s *Sessions) SetSecure(secure bool) {
	s.secure = secure
}

// Issue sets a fresh session cookie on w.
func (s *Sessions) Issue(w http.ResponseWriter) error {
	token, err := s.signer.Sign(operatorSubject, nil, SessionTTL)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(SessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Clear expires the session cookie.
func (s *Sessions) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Operator returns the operator named by a valid session cookie on r.
func (s *Sessions) Operator(r *http.Request) (string, bool) {
	if !s.enabled {
		return operatorSubject, true
	}
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	claims, err := s.signer.Parse(cookie.Value)
	if err != nil || claims.Subject != operatorSubject {
		return "", false
	}
	return claims.Subject, true
}

// RequireOperator rejects requests without a valid session. Page requests are
// redirected to /login, API and JSON callers get 401.
func (s *Sessions) RequireOperator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name, ok := s.Operator(r)
		if !ok {
			if wantsJSON(r) {
				utils.RespondWithError(w, http.StatusUnauthorized, "Authentication required")
				return
			}
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}

		ctx := context.WithValue(r.Context(), OperatorKey, name)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetOperator retrieves the operator name from the request context
func GetOperator(ctx context.Context) (string, bool) {
	name, ok := ctx.Value(OperatorKey).(string)
	return name, ok
}

func wantsJSON(r *http.Request) bool {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

package session

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// CookieName is the name of the session cookie.
const CookieName = "auth-token"

// SecureMode decides when the cookie carries the Secure attribute.
type SecureMode string

const (
	// SecureAuto marks the cookie Secure iff the request arrived over TLS,
	// directly or through a proxy setting X-Forwarded-Proto.
	SecureAuto   SecureMode = "auto"
	SecureAlways SecureMode = "always"
	SecureNever  SecureMode = "never"
)

// ParseSecureMode converts a configuration value into a SecureMode.
func ParseSecureMode(s string) (SecureMode, error) {
	switch m := SecureMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return SecureAuto, nil
	case SecureAuto, SecureAlways, SecureNever:
		return m, nil
	default:
		return "", fmt.Errorf("unknown cookie secure mode %q", s)
	}
}

func (m SecureMode) secure(r *http.Request) bool {
	switch m {
	case SecureAlways:
		return true
	case SecureNever:
		return false
	default:
		return r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
	}
}

// SetCookie attaches token to the response as the session cookie.
// Only code holding the response writer of a request in flight can mutate
// the cookie.
func SetCookie(w http.ResponseWriter, r *http.Request, token Token, mode SecureMode) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token.Value,
		Path:     "/",
		MaxAge:   int(TTL / time.Second),
		HttpOnly: true,
		Secure:   mode.secure(r),
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie expires the session cookie immediately.
func ClearCookie(w http.ResponseWriter, r *http.Request, mode SecureMode) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   mode.secure(r),
		SameSite: http.SameSiteLaxMode,
	})
}

// TokenFromRequest returns the raw session token carried by r, if any.
func TokenFromRequest(r *http.Request) (string, bool) {
	c, err := r.Cookie(CookieName)
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}

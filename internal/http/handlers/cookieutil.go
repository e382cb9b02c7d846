package handlers

import (
	"net/http"
	"time"
)

// Cookie names for the two signed credentials.
const (
	AuthCookieName    = "auth_token"
	RefreshCookieName = "refresh_token"
)

// CookieConfig controls how credentials are set in cookie mode.
type CookieConfig struct {
	Domain string
	Secure bool
}

func setCredentialCookie(w http.ResponseWriter, cfg CookieConfig, name, value string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   cfg.Domain,
		MaxAge:   int(ttl / time.Second),
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearCredentialCookie(w http.ResponseWriter, cfg CookieConfig, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   cfg.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// SetAuthCookies writes both credential cookies.
func SetAuthCookies(w http.ResponseWriter, cfg CookieConfig, access, refresh string, accessTTL, refreshTTL time.Duration) {
	setCredentialCookie(w, cfg, AuthCookieName, access, accessTTL)
	setCredentialCookie(w, cfg, RefreshCookieName, refresh, refreshTTL)
}

// ClearAuthCookies expires both credential cookies.
func ClearAuthCookies(w http.ResponseWriter, cfg CookieConfig) {
	clearCredentialCookie(w, cfg, AuthCookieName)
	clearCredentialCookie(w, cfg, RefreshCookieName)
}

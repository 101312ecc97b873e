package handler

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"zonecounter/internal/config"
	"zonecounter/internal/httputil"
	"zonecounter/internal/logger"
	"zonecounter/internal/middleware"
)

// LoginHandler handles POST /auth/login by validating the operator password
// and issuing the session cookie. Browsers are redirected to the player, JSON
// clients get {"status":"ok"}.
func LoginHandler(config *config.Config, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			httputil.MethodNotAllowed(w)
			return
		}

		password := r.FormValue("password")
		if subtle.ConstantTimeCompare([]byte(password), []byte(config.Password)) != 1 {
			logger.Warning("Failed login from %s", r.RemoteAddr)
			httputil.WriteJSONError(w, http.StatusUnauthorized, "invalid password")
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     middleware.AuthCookieName,
			Value:    "true",
			Path:     "/",
			MaxAge:   middleware.AuthCookieMaxAge,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
		if wantsJSON(r) {
			httputil.WriteJSONOK(w, map[string]string{"status": "ok"})
			return
		}
		http.Redirect(w, r, "/", http.StatusSeeOther)
	}
}

// LogoutHandler clears the session cookie and redirects to the login page.
func LogoutHandler(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:   middleware.AuthCookieName,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"zonecounter/internal/httputil"
)

const (
	// AuthCookieName is set by /auth/login for the operator session.
	AuthCookieName = "authenticated"
	// AuthCookieMaxAge keeps the operator logged in for 30 days.
	AuthCookieMaxAge = 30 * 24 * 60 * 60
)

// publicPaths are reachable without the auth cookie: the login page and the
// Prometheus scrape target.
var publicPaths = map[string]bool{
	"/login":      true,
	"/Login.html": true,
	"/auth/login": true,
	"/metrics":    true,
}

// pushPaths also accept the shared push token instead of the cookie.
var pushPaths = map[string]bool{
	"/save_zones": true,
	"/log_counts": true,
}

var publicPrefixes = []string{"/css/", "/js/", "/static/"}

func isPublic(path string) bool {
	if publicPaths[path] {
		return true
	}
	for _, prefix := range publicPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func validPushToken(r *http.Request, pushToken string) bool {
	if pushToken == "" || !pushPaths[r.URL.Path] {
		return false
	}
	got := r.Header.Get(httputil.PushTokenHeader)
	return subtle.ConstantTimeCompare([]byte(got), []byte(pushToken)) == 1
}

// AuthMiddleware sprawdza, czy użytkownik jest zalogowany (ma cookie 'authenticated=true').
// Remote counters may push with pushToken instead; an empty token disables that.
func AuthMiddleware(next http.Handler, pushToken string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublic(r.URL.Path) || validPushToken(r, pushToken) {
			next.ServeHTTP(w, r)
			return
		}

		cookie, err := r.Cookie(AuthCookieName)
		if err != nil || cookie.Value != "true" {
			// Zapytania AJAX/API dostają 401
			if r.Header.Get("X-Requested-With") == "XMLHttpRequest" ||
				r.Header.Get("Content-Type") == "application/json" ||
				strings.HasPrefix(r.URL.Path, "/api/") || pushPaths[r.URL.Path] {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			// Dla zwykłych żądań przekieruj na login
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

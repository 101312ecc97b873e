package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"zonecounter/internal/httputil"

	"github.com/stretchr/testify/assert"
)

func TestAuthMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	h := AuthMiddleware(ok, "s3cret")

	tests := []struct {
		name   string
		path   string
		cookie bool
		header map[string]string
		want   int
	}{
		{"login page", "/login", false, nil, http.StatusTeapot},
		{"login post", "/auth/login", false, nil, http.StatusTeapot},
		{"push without token", "/log_counts", false, nil, http.StatusUnauthorized},
		{"push with wrong token", "/save_zones", false, map[string]string{httputil.PushTokenHeader: "guess"}, http.StatusUnauthorized},
		{"push with token", "/save_zones", false, map[string]string{httputil.PushTokenHeader: "s3cret"}, http.StatusTeapot},
		{"token only opens push endpoints", "/api/zones", false, map[string]string{httputil.PushTokenHeader: "s3cret"}, http.StatusUnauthorized},
		{"push with cookie", "/log_counts", true, nil, http.StatusTeapot},
		{"static asset", "/static/app.js", false, nil, http.StatusTeapot},
		{"metrics", "/metrics", false, nil, http.StatusTeapot},
		{"page redirects", "/", false, nil, http.StatusSeeOther},
		{"api unauthorized", "/api/zones", false, nil, http.StatusUnauthorized},
		{"ajax unauthorized", "/videos", false, map[string]string{"X-Requested-With": "XMLHttpRequest"}, http.StatusUnauthorized},
		{"authenticated", "/api/zones", true, nil, http.StatusTeapot},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			if tt.cookie {
				req.AddCookie(&http.Cookie{Name: "authenticated", Value: "true"})
			}
			rec := httptest.NewRecorder()

			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestAuthMiddleware_EmptyTokenKeepsPushBehindLogin(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	h := AuthMiddleware(ok, "")

	req := httptest.NewRequest(http.MethodPost, "/save_zones", nil)
	req.Header.Set(httputil.PushTokenHeader, "")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

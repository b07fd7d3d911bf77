package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/codr1/Fitclub/internal/api/authz"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestWithContentType(t *testing.T) {
	tests := []struct {
		name        string
		method      string
		contentType string
		body        string
		status      int
	}{
		{"json body", http.MethodPost, "application/json; charset=utf-8", `{}`, http.StatusOK},
		{"multipart body", http.MethodPost, "multipart/form-data; boundary=x", `--x--`, http.StatusOK},
		{"form body", http.MethodPost, "application/x-www-form-urlencoded", `a=b`, http.StatusUnsupportedMediaType},
		{"empty post", http.MethodPost, "", ``, http.StatusOK},
		{"get ignores type", http.MethodGet, "text/plain", ``, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/v1/x", strings.NewReader(tt.body))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			rec := httptest.NewRecorder()
			WithContentType(okHandler()).ServeHTTP(rec, req)
			if rec.Code != tt.status {
				t.Fatalf("expected status %d, got %d", tt.status, rec.Code)
			}
		})
	}
}

func TestWithRequestID(t *testing.T) {
	var seen string
	handler := WithRequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "not-a-uuid")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if seen == "" || seen == "not-a-uuid" {
		t.Fatalf("expected a generated request id, got %q", seen)
	}
	if rec.Header().Get("X-Request-ID") != seen {
		t.Fatalf("response header %q does not match %q", rec.Header().Get("X-Request-ID"), seen)
	}

	const incoming = "3f2504e0-4f89-11d3-9a0c-0305e82c3301"
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", incoming)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if seen != incoming {
		t.Fatalf("expected incoming id kept, got %q", seen)
	}
}

func TestWithRole(t *testing.T) {
	tests := []struct {
		name   string
		user   *authz.AuthUser
		status int
	}{
		{"anonymous", nil, http.StatusUnauthorized},
		{"member", &authz.AuthUser{ID: 1, Role: authz.RoleMember}, http.StatusForbidden},
		{"coach", &authz.AuthUser{ID: 2, Role: authz.RoleCoach}, http.StatusOK},
		{"admin", &authz.AuthUser{ID: 3, Role: authz.RoleAdmin}, http.StatusOK},
	}

	handler := WithRole(authz.RoleCoach)(okHandler())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/coach/classes", nil)
			if tt.user != nil {
				req = req.WithContext(authz.ContextWithUser(req.Context(), tt.user))
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tt.status {
				t.Fatalf("expected status %d, got %d", tt.status, rec.Code)
			}
		})
	}
}

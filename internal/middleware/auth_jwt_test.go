package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

const testSecret = "test-secret"

func TestIssueAndVerifySessionToken(t *testing.T) {
	token, err := IssueSessionToken(testSecret, "s-1", time.Hour)
	if err != nil {
		t.Fatalf("IssueSessionToken: %v", err)
	}
	claims, err := VerifyJWT(testSecret, token)
	if err != nil {
		t.Fatalf("VerifyJWT: %v", err)
	}
	if claims.Sub != "s-1" || claims.Issuer != SessionTokenIssuer || claims.Exp <= claims.IssuedAt {
		t.Fatalf("claims = %+v", claims)
	}

	if _, err := VerifyJWT("other-secret", token); err == nil {
		t.Fatalf("token verified with wrong secret")
	}
	if _, err := VerifyJWT(testSecret, "a.b"); err == nil {
		t.Fatalf("malformed token verified")
	}
	expired, _ := SignJWT(testSecret, TokenClaims{Sub: "s-1", Exp: time.Now().Add(-time.Minute).Unix()})
	if _, err := VerifyJWT(testSecret, expired); err != errExpiredToken {
		t.Fatalf("expired err = %v", err)
	}
}

func TestAuthSession(t *testing.T) {
	r := chi.NewRouter()
	r.With(AuthSession(testSecret, "id")).Get("/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(SessionIDFromContext(r.Context())))
	})

	good, _ := IssueSessionToken(testSecret, "s-1", time.Hour)
	other, _ := IssueSessionToken(testSecret, "s-2", time.Hour)

	tests := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{name: "bearer", path: "/sessions/s-1", header: "Bearer " + good, want: http.StatusOK},
		{name: "query token", path: "/sessions/s-1?token=" + good, want: http.StatusOK},
		{name: "missing", path: "/sessions/s-1", want: http.StatusUnauthorized},
		{name: "wrong scheme", path: "/sessions/s-1", header: "Basic " + good, want: http.StatusUnauthorized},
		{name: "garbage", path: "/sessions/s-1", header: "Bearer nope", want: http.StatusUnauthorized},
		{name: "other session", path: "/sessions/s-1", header: "Bearer " + other, want: http.StatusForbidden},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tc.want, rec.Body.String())
			}
			if tc.want == http.StatusOK && rec.Body.String() != "s-1" {
				t.Fatalf("session in context = %q", rec.Body.String())
			}
			if tc.want != http.StatusOK && !strings.Contains(rec.Body.String(), `"error"`) {
				t.Fatalf("missing error envelope: %s", rec.Body.String())
			}
		})
	}
}

func TestCORS(t *testing.T) {
	h := CORS([]string{"http://localhost:5173/"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodOptions, "/v1/sessions", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent || rec.Header().Get("Access-Control-Allow-Origin") != "http://localhost:5173" {
		t.Fatalf("preflight = %d %v", rec.Code, rec.Header())
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusTeapot || rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("foreign origin = %d %v", rec.Code, rec.Header())
	}
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if seen != "abc" || rec.Header().Get("X-Request-ID") != "abc" {
		t.Fatalf("request id = %q / %q", seen, rec.Header().Get("X-Request-ID"))
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", strings.Repeat("x", 500))
	h.ServeHTTP(httptest.NewRecorder(), req)
	if len(seen) != 36 {
		t.Fatalf("oversized id not replaced: %d chars", len(seen))
	}
}

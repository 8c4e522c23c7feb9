package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/support-agent/pkg/logger"
)

const (
	secret   = "test-secret"
	tenantID = "6f1c1d2e-8a4b-4c3d-9e5f-0a1b2c3d4e5f"
	threadID = "0b9e3c7a-1d2e-4f5a-8b6c-7d8e9f0a1b2c"
)

func sign(t *testing.T, claims Claims, key string) string {
	t.Helper()
	if claims.ExpiresAt == nil {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(time.Hour))
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	require.NoError(t, err)
	return tok
}

// threadRouter mounts auth and thread checks in front of a handler that
// echoes the trusted tenant.
func threadRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(Auth(secret))
	r.With(ThreadAccess).Get("/threads/{threadID}", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(GetTenantID(r.Context())))
	})
	r.With(RequireScope(ScopeResolve)).Post("/resolve", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return r
}

func TestAuth(t *testing.T) {
	good := sign(t, Claims{TenantID: tenantID}, secret)

	tests := []struct {
		name   string
		target string
		header string
		want   int
	}{
		{"bearer header", "/threads/" + threadID, "Bearer " + good, http.StatusOK},
		{"query token", "/threads/" + threadID + "?token=" + good, "", http.StatusOK},
		{"missing", "/threads/" + threadID, "", http.StatusUnauthorized},
		{"wrong scheme", "/threads/" + threadID, "Basic " + good, http.StatusUnauthorized},
		{"wrong key", "/threads/" + threadID, "Bearer " + sign(t, Claims{TenantID: tenantID}, "other"), http.StatusUnauthorized},
		{"no tenant", "/threads/" + threadID, "Bearer " + sign(t, Claims{}, secret), http.StatusUnauthorized},
		{"bad thread id", "/threads/not-a-uuid", "Bearer " + good, http.StatusBadRequest},
		{
			"bound to other thread",
			"/threads/" + threadID,
			"Bearer " + sign(t, Claims{TenantID: tenantID, ThreadID: "1c0f4d8b-2e3f-4a6b-9c7d-8e9f0a1b2c3d"}, secret),
			http.StatusForbidden,
		},
		{
			"bound to this thread",
			"/threads/" + threadID,
			"Bearer " + sign(t, Claims{TenantID: tenantID, ThreadID: threadID}, secret),
			http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			threadRouter().ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusOK {
				assert.Equal(t, tenantID, rec.Body.String())
			}
		})
	}
}

func TestRequireScope(t *testing.T) {
	for _, tc := range []struct {
		scopes []string
		want   int
	}{
		{nil, http.StatusForbidden},
		{[]string{"chat"}, http.StatusForbidden},
		{[]string{"chat", ScopeResolve}, http.StatusNoContent},
	} {
		req := httptest.NewRequest(http.MethodPost, "/resolve", nil)
		req.Header.Set("Authorization", "Bearer "+sign(t, Claims{TenantID: tenantID, Scopes: tc.scopes}, secret))
		rec := httptest.NewRecorder()
		threadRouter().ServeHTTP(rec, req)
		assert.Equal(t, tc.want, rec.Code, "scopes %v", tc.scopes)
	}
}

func TestLogging_CorrelationID(t *testing.T) {
	var seen string
	h := Logging(logger.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetCorrelationID(r.Context())
		_, ok := w.(http.Flusher)
		assert.True(t, ok, "wrapper must support streaming")
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Correlation-ID", "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "abc-123", seen)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Correlation-ID"))
	assert.Equal(t, http.StatusTeapot, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, rec.Header().Get("X-Correlation-ID"))
}

func TestRateLimit_PerTenant(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Auth(secret))
	r.Use(RateLimit(2, time.Minute))
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {})

	call := func(tenant string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+sign(t, Claims{TenantID: tenant}, secret))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, call(tenantID))
	assert.Equal(t, http.StatusOK, call(tenantID))
	assert.Equal(t, http.StatusTooManyRequests, call(tenantID))
	assert.Equal(t, http.StatusOK, call("7a2d2e3f-9b5c-4d4e-8f60-1b2c3d4e5f60"))
}

func TestThreadRateLimit(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Auth(secret))
	r.With(ThreadRateLimit(1, time.Minute)).Post("/threads/{threadID}/messages", func(w http.ResponseWriter, r *http.Request) {})

	call := func(thread string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/threads/"+thread+"/messages", nil)
		req.Header.Set("Authorization", "Bearer "+sign(t, Claims{TenantID: tenantID}, secret))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, call(threadID).Code)
	limited := call(threadID)
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.Equal(t, "60", limited.Header().Get("Retry-After"))
	assert.Equal(t, http.StatusOK, call("1c0f4d8b-2e3f-4a6b-9c7d-8e9f0a1b2c3d").Code)
}

func TestCORS(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	preflight := func(h http.Handler, origin string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodOptions, "/api/v1/threads", nil)
		req.Header.Set("Origin", origin)
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	open := CORS(nil)(ok)
	rec := preflight(open, "https://anywhere.example.com")
	assert.Equal(t, "https://anywhere.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))

	strict := CORS([]string{"https://app.example.com"})(ok)
	rec = preflight(strict, "https://app.example.com")
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	rec = preflight(strict, "https://evil.example.com")
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func corsRequest(method, origin string, preflight bool) *http.Request {
	r := httptest.NewRequest(method, "/api/v1/auth/login", nil)
	if origin != "" {
		r.Header.Set("Origin", origin)
	}
	if preflight {
		r.Header.Set("Access-Control-Request-Method", http.MethodPost)
	}
	return r
}

func TestCORS_ListedOriginEchoed(t *testing.T) {
	h := CORS(CORSConfig{AllowedOrigins: []string{"https://app.example.com/"}})(okHandler)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, corsRequest(http.MethodGet, "https://app.example.com", false))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Values("Vary"), "Origin")
}

func TestCORS_UnlistedOriginGetsNoHeaders(t *testing.T) {
	h := CORS(CORSConfig{AllowedOrigins: []string{"https://app.example.com"}})(okHandler)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, corsRequest(http.MethodGet, "https://evil.example", false))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_UnlistedPreflightForbidden(t *testing.T) {
	h := CORS(CORSConfig{AllowedOrigins: []string{"https://app.example.com"}})(okHandler)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, corsRequest(http.MethodOptions, "https://evil.example", true))

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCORS_Wildcard(t *testing.T) {
	h := CORS(CORSConfig{AllowedOrigins: []string{"*"}})(okHandler)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, corsRequest(http.MethodGet, "https://anything.example", false))

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORS_WildcardWithCredentialsEchoesOrigin(t *testing.T) {
	h := CORS(CORSConfig{AllowedOrigins: []string{"*"}, AllowCredentials: true})(okHandler)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, corsRequest(http.MethodGet, "https://anything.example", false))

	assert.Equal(t, "https://anything.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORS_Preflight(t *testing.T) {
	h := CORS(CORSConfig{AllowedOrigins: []string{"https://app.example.com"}, ExposedHeaders: []string{"Retry-After"}})(okHandler)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, corsRequest(http.MethodOptions, "https://app.example.com", true))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "GET, POST, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), CorrelationHeader)
	assert.Equal(t, "3600", rec.Header().Get("Access-Control-Max-Age"))
	assert.Equal(t, "Retry-After", rec.Header().Get("Access-Control-Expose-Headers"))
}

func TestCORS_NoOriginPassesThrough(t *testing.T) {
	h := CORS(CORSConfig{AllowedOrigins: []string{"https://app.example.com"}})(okHandler)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, corsRequest(http.MethodGet, "", false))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

package httpserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loggedRouter(buf *bytes.Buffer) http.Handler {
	m := chi.NewRouter()
	m.Use(Metrics)
	m.Use(Logger(zerolog.New(buf)))
	m.Get("/v1/brands", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(`[]`)) })
	m.Get("/v1/broken", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusServiceUnavailable) })
	return m
}

func lastLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &out))
	return out
}

func TestLogger_RouteQueryAndLevel(t *testing.T) {
	var buf bytes.Buffer
	h := loggedRouter(&buf)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/brands?brand=A&rating=5", nil))
	line := lastLine(t, &buf)
	assert.Equal(t, "info", line["level"])
	assert.Equal(t, "/v1/brands", line["route"])
	assert.Equal(t, "brand=A&rating=5", line["query"])
	assert.Equal(t, float64(2), line["bytes"])

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/broken", nil))
	line = lastLine(t, &buf)
	assert.Equal(t, "error", line["level"])
	assert.Equal(t, float64(503), line["status"])

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/nope/123", nil))
	line = lastLine(t, &buf)
	assert.Equal(t, "warn", line["level"])
	assert.Equal(t, "unmatched", line["route"])
}

func TestRemoteIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.9:4567"
	assert.Equal(t, "10.0.0.9", remoteIP(r))

	r.Header.Set("X-Real-IP", "10.1.1.1")
	assert.Equal(t, "10.1.1.1", remoteIP(r))

	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.1.1.1")
	assert.Equal(t, "203.0.113.7", remoteIP(r))
}

package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/unclebandit/storecast-backend/internal/metrics"
	"github.com/unclebandit/storecast-backend/internal/scheduler"
)

const callbackURL = "https://app.example.com/api/broadcast/execute"

func echoBody(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		claims, ok := CallbackClaims(r.Context())
		require.True(t, ok)
		assert.Equal(t, callbackURL, claims.Subject)
		w.Write(body)
	})
}

func TestVerifySignature_PassesSignedRequest(t *testing.T) {
	body := `{"job_id":"job-1"}`
	sig, err := scheduler.NewSigner("current", time.Minute).Sign(callbackURL, []byte(body))
	require.NoError(t, err)

	h := VerifySignature(scheduler.NewVerifier("current", "next", callbackURL), zap.NewNop())(echoBody(t))
	req := httptest.NewRequest(http.MethodPost, "/api/broadcast/execute", strings.NewReader(body))
	req.Header.Set(scheduler.SignatureHeader, sig)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, body, rec.Body.String())
}

func TestVerifySignature_Rejects(t *testing.T) {
	signed, err := scheduler.NewSigner("current", time.Minute).Sign(callbackURL, []byte(`{"job_id":"job-1"}`))
	require.NoError(t, err)

	tests := []struct {
		name string
		sig  string
		body string
	}{
		{"missing", "", `{"job_id":"job-1"}`},
		{"garbage", "not-a-jwt", `{"job_id":"job-1"}`},
		{"tampered body", signed, `{"job_id":"job-2"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })
			h := VerifySignature(scheduler.NewVerifier("current", "", callbackURL), zap.NewNop())(next)

			req := httptest.NewRequest(http.MethodPost, "/api/broadcast/execute", strings.NewReader(tt.body))
			if tt.sig != "" {
				req.Header.Set(scheduler.SignatureHeader, tt.sig)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.JSONEq(t, `{"error":"Invalid signature"}`, rec.Body.String())
			assert.False(t, called)
		})
	}
}

func TestMetrics_UsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Metrics)
	r.Get("/api/stores/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	before := testutil.ToFloat64(metrics.HTTPRequests.WithLabelValues("GET", "/api/stores/{id}", "404"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stores/abc", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	after := testutil.ToFloat64(metrics.HTTPRequests.WithLabelValues("GET", "/api/stores/{id}", "404"))
	assert.Equal(t, before+1, after)
}

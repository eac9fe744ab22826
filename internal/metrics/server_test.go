package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type checkFunc func(ctx context.Context) error

func (f checkFunc) Ready(ctx context.Context) error { return f(ctx) }

func TestServer_Healthz(t *testing.T) {
	srv := NewServer(":0", "1.2.3", nil)

	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body healthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "1.2.3", body.Version)
}

func TestServer_Readyz_ReportsDegradedBackend(t *testing.T) {
	// Given: one healthy and one failing dependency
	srv := NewServer(":0", "dev", map[string]ReadinessChecker{
		"store":    checkFunc(func(context.Context) error { return nil }),
		"fulltext": checkFunc(func(context.Context) error { return errors.New("connection refused") }),
	})

	// When: probing readiness
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	// Then: status is degraded with per-check detail
	var body healthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "ok", body.Checks["store"])
	assert.True(t, strings.HasPrefix(body.Checks["fulltext"], "fail:"))
}

func TestServer_MetricsExposesCollectors(t *testing.T) {
	SearchTotal.WithLabelValues("lexicon").Inc()

	rec := httptest.NewRecorder()
	NewServer(":0", "dev", nil).Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "thedocs_search_total")
}

func TestServer_RunStopsOnCancel(t *testing.T) {
	srv := NewServer("127.0.0.1:0", "dev", nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()
	cancel()

	assert.NoError(t, <-done)
}

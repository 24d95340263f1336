package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func get(t *testing.T, h http.Handler, path string) (int, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return rec.Code, string(body)
}

func TestHealthz(t *testing.T) {
	ok := HealthCheck{Name: "postgres", Check: func(context.Context) error { return nil }}
	down := HealthCheck{Name: "redis", Check: func(context.Context) error { return errors.New("connection refused") }}

	code, body := get(t, Handler(prometheus.NewRegistry(), ok), "/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body)

	code, body = get(t, Handler(prometheus.NewRegistry(), ok, down), "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, body, "redis")
}

func TestMetricsUsesGatherer(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "wallet_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()

	code, body := get(t, Handler(reg), "/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "wallet_test_total 1")
}

package ops

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iop-labs/profiled/pkg/metrics"
)

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	s := New(Config{Port: 0, Version: "test"})
	rec := get(t, s.Handler(), "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}

func TestVersion(t *testing.T) {
	s := New(Config{Port: 0, Version: "1.2.3"})
	rec := get(t, s.Handler(), "/version")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "1.2.3")
}

func TestReadyz(t *testing.T) {
	t.Run("NoCheckIsReady", func(t *testing.T) {
		s := New(Config{Port: 0})
		rec := get(t, s.Handler(), "/readyz")
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("FailingCheck", func(t *testing.T) {
		s := New(Config{Port: 0, Ready: func(context.Context) error {
			return errors.New("database gone")
		}})
		rec := get(t, s.Handler(), "/readyz")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), "database gone")
	})
}

func TestMetricsEndpoint(t *testing.T) {
	metrics.ResetForTesting()
	t.Cleanup(metrics.ResetForTesting)

	t.Run("AbsentWhenDisabled", func(t *testing.T) {
		s := New(Config{Port: 0})
		rec := get(t, s.Handler(), "/metrics")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("ServedWhenEnabled", func(t *testing.T) {
		metrics.InitRegistry()
		s := New(Config{Port: 0})
		rec := get(t, s.Handler(), "/metrics")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "go_goroutines")
	})
}

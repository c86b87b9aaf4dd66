package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddleware_CountsByRoutePattern(t *testing.T) {
	m := New()

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/api/applications/{number}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, number := range []string{"APP000001", "APP000002"} {
		req := httptest.NewRequest(http.MethodGet, "/api/applications/"+number, nil)
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		require.Equal(t, http.StatusNotFound, rr.Code)
	}

	got := testutil.ToFloat64(m.HTTPRequests.WithLabelValues(http.MethodGet, "/api/applications/{number}", "404"))
	assert.Equal(t, float64(2), got)
}

func TestHandler_ExposesCollectors(t *testing.T) {
	m := New()
	m.StatusTransitions.WithLabelValues("SUBMITTED", "IN_QUEUE").Inc()
	m.QueueSize.Set(3)

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	body, err := io.ReadAll(rr.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `housing_status_transitions_total{from="SUBMITTED",to="IN_QUEUE"} 1`)
	assert.Contains(t, string(body), "housing_queue_size 3")
}

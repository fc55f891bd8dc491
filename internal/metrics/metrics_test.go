package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imalyk/deepscan/pkg/job"
)

func TestHandlerExposesWorkerCounters(t *testing.T) {
	Verdicts.WithLabelValues(job.PredictionFake).Inc()
	JobFailures.Inc()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "deepscan_verdicts_total")
	assert.Contains(t, body, "deepscan_job_failures_total")
}

func TestHandlerServesOnlyMetricsPath(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/other", nil)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

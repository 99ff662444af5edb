package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectors(t *testing.T) {
	before := testutil.ToFloat64(RecordsPublished.WithLabelValues("TEST", "created"))
	RecordsPublished.WithLabelValues("TEST", "created").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(RecordsPublished.WithLabelValues("TEST", "created")))

	ActiveTriggers.WithLabelValues("TEST").Set(3)
	assert.Equal(t, float64(3), testutil.ToFloat64(ActiveTriggers.WithLabelValues("TEST")))
}

func TestHandler(t *testing.T) {
	ProcessingErrors.WithLabelValues("input").Inc()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "harvester_errors_total")
}

func TestTimer(t *testing.T) {
	timer := NewTimer()
	assert.GreaterOrEqual(t, int64(timer.Stop()), int64(0))
}

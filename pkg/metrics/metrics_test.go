package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.MessageReceived("osc")
	m.MessageSent("osc")
	m.MessageDropped("osc", ReasonDecode)
	m.IncPushes()
	m.SetNodes(3)
}

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.MessageReceived("osc")
	m.MessageReceived("osc")
	m.MessageSent("minuit")
	m.MessageDropped("osc", ReasonNotFound)
	m.IncPushes()
	m.SetNodes(4)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.received.WithLabelValues("osc")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sent.WithLabelValues("minuit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dropped.WithLabelValues("osc", ReasonNotFound)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.pushes))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.nodes))
}

func TestDoubleRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)
	_, err = New(reg)
	assert.Error(t, err)
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)
	m.IncPushes()

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "paramtree_pushes_total 1"))
}

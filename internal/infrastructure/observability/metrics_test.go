package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNewMetrics_RegistersOnGivenRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("storepay", reg)

	m.ReconciliationOutcomes.WithLabelValues("stripe", "applied").Inc()
	m.ReconciliationOutcomes.WithLabelValues("stripe", "applied").Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ReconciliationOutcomes.WithLabelValues("stripe", "applied")))
	assert.Panics(t, func() { NewMetrics("storepay", reg) }, "duplicate registration")
}

func TestBreakerStateValue(t *testing.T) {
	assert.Equal(t, 0.0, BreakerStateValue("closed"))
	assert.Equal(t, 1.0, BreakerStateValue("half-open"))
	assert.Equal(t, 2.0, BreakerStateValue("open"))
}

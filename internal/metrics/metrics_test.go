package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister_Idempotent(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, Register(reg, nil))
	require.NoError(t, Register(reg, nil))
}

func TestReconcileCompleted(t *testing.T) {
	before := testutil.ToFloat64(reconcileFlipsTotal.WithLabelValues("deactivated"))
	ReconcileCompleted(2, 3, 1, time.Second)
	after := testutil.ToFloat64(reconcileFlipsTotal.WithLabelValues("deactivated"))
	assert.Equal(t, 3.0, after-before)
}

func TestMailAttempt(t *testing.T) {
	before := testutil.ToFloat64(mailDispatchTotal.WithLabelValues("smtp", "failure"))
	MailAttempt("smtp", false)
	assert.Equal(t, 1.0, testutil.ToFloat64(mailDispatchTotal.WithLabelValues("smtp", "failure"))-before)
}

func TestStatusLabel(t *testing.T) {
	assert.Equal(t, "2xx", statusLabel(200))
	assert.Equal(t, "4xx", statusLabel(404))
	assert.Equal(t, "5xx", statusLabel(503))
}

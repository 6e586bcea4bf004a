package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	require.NoError(t, m.Track("payments:sweep").End(nil))
	boom := errors.New("boom")
	require.ErrorIs(t, m.Track("payments:sweep").End(boom), boom)

	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("payments:sweep", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("payments:sweep", "failure")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("payments:sweep")))
}

func TestAddItems(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.AddItems("periods:cutoff", "created", 3)
	m.AddItems("periods:cutoff", "created", 0)
	require.Equal(t, 3.0, testutil.ToFloat64(m.items.WithLabelValues("periods:cutoff", "created")))

	var nilMetrics *Metrics
	nilMetrics.AddItems("x", "y", 1)
	require.NoError(t, nilMetrics.Track("x").End(nil))
}

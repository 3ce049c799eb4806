package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRecordSourceFailure(t *testing.T) {
	Init()
	Init()

	before := testutil.ToFloat64(sourceFailures.WithLabelValues("metricsdb", "missing"))
	RecordSourceFailure("metricsdb", "missing")
	require.Equal(t, before+1, testutil.ToFloat64(sourceFailures.WithLabelValues("metricsdb", "missing")))
}

func TestRecordSnapshotDegraded(t *testing.T) {
	before := testutil.ToFloat64(degradedSnapshots)
	RecordSnapshot(time.Second, false)
	RecordSnapshot(time.Second, true)
	require.Equal(t, before+1, testutil.ToFloat64(degradedSnapshots))
}

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorder(t *testing.T) {
	r := NewWithRegisterer(prometheus.NewRegistry())

	r.RecordInstrument("ok")
	r.RecordInstrument("ok")
	r.RecordInstrument("failed")
	r.RecordEvents("long", 4)
	r.RecordIssue("degenerate_range")
	r.RecordLatency("backtest", 2*time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.instruments.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.instruments.WithLabelValues("failed")))
	assert.Equal(t, 4.0, testutil.ToFloat64(r.events.WithLabelValues("long")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.issues.WithLabelValues("degenerate_range")))
	assert.Positive(t, testutil.ToFloat64(r.lastRun))
}

package logger

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	mu      sync.Mutex
	batches [][]AggregatedEntry
}

func (p *capturePublisher) PublishDigest(_ context.Context, entries []AggregatedEntry) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.batches = append(p.batches, entries)
	return nil
}

func TestLogCollector_FoldsRepeatedWarnings(t *testing.T) {
	pub := &capturePublisher{}
	var buf bytes.Buffer
	l := NewWriter(&buf, zerolog.DebugLevel)
	l.AttachCollector(NewLogCollector(CollectorConfig{FlushInterval: time.Hour, Publisher: pub}))

	for i := 0; i < 5; i++ {
		l.Warn("degenerate range, day skipped", String("instrument", "7203"))
	}
	l.Error("load failed", Error(errors.New("eof")))
	l.Info("not collected")
	l.DetachCollector()

	require.Len(t, pub.batches, 1)
	batch := pub.batches[0]
	require.Len(t, batch, 2)
	assert.Equal(t, "degenerate range, day skipped", batch[0].Message)
	assert.Equal(t, 5, batch[0].Count)
	assert.Equal(t, "7203", batch[0].Sample["instrument"])
	assert.Equal(t, "error", batch[1].Level)

	assert.Contains(t, buf.String(), `"message":"not collected"`)
}

func TestLogCollector_FlushesAtThreshold(t *testing.T) {
	pub := &capturePublisher{}
	c := NewLogCollector(CollectorConfig{FlushInterval: time.Hour, CountThreshold: 2, Publisher: pub})
	defer c.Close()

	c.Add("warn", "a", nil, "x.go:1")
	c.Add("warn", "b", nil, "x.go:2")

	pub.mu.Lock()
	defer pub.mu.Unlock()
	require.Len(t, pub.batches, 1)
	assert.Len(t, pub.batches[0], 2)
}

func TestLogger_WithAddsFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf, zerolog.InfoLevel).With(String("instrument", "9984"))
	l.Info("done", Int("events", 3), Float64("mean", 0.25))

	out := buf.String()
	assert.Contains(t, out, `"instrument":"9984"`)
	assert.Contains(t, out, `"events":3`)
	assert.Contains(t, out, `"mean":0.25`)
}

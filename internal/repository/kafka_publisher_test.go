package repository

import (
	"context"
	"testing"

	pkgkafka "RangeBreak/pkg/kafka"
	"RangeBreak/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type topicCapture map[string][]pkgkafka.Message

func (c topicCapture) PublishBatch(_ context.Context, topic string, messages []pkgkafka.Message) error {
	c[topic] = append(c[topic], messages...)
	return nil
}

func TestKafkaPublisher(t *testing.T) {
	got := topicCapture{}
	p := &KafkaPublisher{producer: got, topics: KafkaTopics{Events: "ev", Reports: "rep", Logs: "logs"}}

	require.NoError(t, p.Write(context.Background(), sampleStoredRun()))
	require.Len(t, got["ev"], 1)
	assert.Equal(t, []byte("7203"), got["ev"][0].Key)

	require.Len(t, got["rep"], 1)
	summary, ok := got["rep"][0].Value.(reportMessage)
	require.True(t, ok)
	assert.Equal(t, "run-1", summary.RunID)
	assert.Len(t, summary.Significant, 1)

	require.NoError(t, p.PublishDigest(context.Background(), []logger.AggregatedEntry{{Level: "warn", Message: "anchor day skipped", Count: 12}}))
	require.Len(t, got["logs"], 1)
	assert.Equal(t, []byte("warn:anchor day skipped"), got["logs"][0].Key)
}

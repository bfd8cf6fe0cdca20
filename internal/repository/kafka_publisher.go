package repository

import (
	"context"
	"time"

	"RangeBreak/internal/domain/models"
	domrepo "RangeBreak/internal/domain/repository"
	pkgkafka "RangeBreak/pkg/kafka"
	applogger "RangeBreak/pkg/logger"
)

// batchPublisher is the part of *pkgkafka.Producer the publisher needs.
type batchPublisher interface {
	PublishBatch(ctx context.Context, topic string, messages []pkgkafka.Message) error
}

// KafkaTopics names the topics a KafkaPublisher writes to.
type KafkaTopics struct {
	Events  string
	Reports string
	Logs    string
}

// KafkaPublisher streams events and the report summary of a run, and ships
// log digests from the logger's collector.
type KafkaPublisher struct {
	producer batchPublisher
	topics   KafkaTopics
}

var (
	_ domrepo.RunSink     = (*KafkaPublisher)(nil)
	_ applogger.Publisher = (*KafkaPublisher)(nil)
)

// NewKafkaPublisher creates Kafka publisher.
func NewKafkaPublisher(producer *pkgkafka.Producer, topics KafkaTopics) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topics: topics}
}

func (p *KafkaPublisher) Name() string { return "kafka" }

type eventMessage struct {
	RunID string `json:"run_id"`
	models.BreakoutEvent
}

type reportMessage struct {
	RunID       string              `json:"run_id"`
	GeneratedAt time.Time           `json:"generated_at"`
	From        time.Time           `json:"from"`
	To          time.Time           `json:"to"`
	Events      int                 `json:"events"`
	Failed      int                 `json:"failed"`
	Unlabeled   int                 `json:"unlabeled"`
	OutOfBand   int                 `json:"out_of_band"`
	Significant []models.BucketStat `json:"significant"`
}

// Write publishes each event keyed by instrument, then one report summary
// keyed by run ID carrying only the significant buckets.
func (p *KafkaPublisher) Write(ctx context.Context, run *models.Run) error {
	events := make([]pkgkafka.Message, len(run.Result.Events))
	for i, ev := range run.Result.Events {
		events[i] = pkgkafka.Message{
			Key:   []byte(ev.Instrument),
			Value: eventMessage{RunID: run.ID, BreakoutEvent: ev},
		}
	}
	if err := p.producer.PublishBatch(ctx, p.topics.Events, events); err != nil {
		return err
	}

	summary := reportMessage{
		RunID:       run.ID,
		GeneratedAt: run.Report.GeneratedAt,
		From:        run.Report.From,
		To:          run.Report.To,
		Events:      run.Report.Events,
		Failed:      len(run.Result.Failed),
		Unlabeled:   run.Report.Unlabeled,
		OutOfBand:   run.Report.OutOfBand,
	}
	for _, b := range run.Report.Buckets {
		if b.Significant {
			summary.Significant = append(summary.Significant, b)
		}
	}
	return p.producer.PublishBatch(ctx, p.topics.Reports, []pkgkafka.Message{{Key: []byte(run.ID), Value: summary}})
}

// PublishDigest implements logger.Publisher.
func (p *KafkaPublisher) PublishDigest(ctx context.Context, entries []applogger.AggregatedEntry) error {
	msgs := make([]pkgkafka.Message, len(entries))
	for i, e := range entries {
		msgs[i] = pkgkafka.Message{Key: []byte(e.Level + ":" + e.Message), Value: e}
	}
	return p.producer.PublishBatch(ctx, p.topics.Logs, msgs)
}

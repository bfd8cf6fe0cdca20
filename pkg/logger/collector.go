package logger

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Publisher ships a digest of aggregated entries somewhere durable (Kafka in production).
type Publisher interface {
	PublishDigest(ctx context.Context, entries []AggregatedEntry) error
}

type CollectorConfig struct {
	FlushInterval  time.Duration // periodic flush, e.g. 30s
	CountThreshold int           // distinct entries before an early flush
	Publisher      Publisher
	OnError        func(error)
}

// AggregatedEntry counts repeated log lines that share level, message and caller.
type AggregatedEntry struct {
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Caller    string                 `json:"caller"`
	Count     int                    `json:"count"`
	Sample    map[string]interface{} `json:"sample"`
	FirstSeen time.Time              `json:"first_seen"`
	LastSeen  time.Time              `json:"last_seen"`
}

type entryKey struct {
	level, message, caller string
}

// LogCollector folds repeated warnings (one per skipped day, say) into counted
// entries so a run with thousands of data-quality skips ships a short digest.
type LogCollector struct {
	cfg CollectorConfig
	now func() time.Time

	mu      sync.Mutex
	entries map[entryKey]*AggregatedEntry

	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

func NewLogCollector(cfg CollectorConfig) *LogCollector {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 30 * time.Second
	}
	if cfg.CountThreshold <= 0 {
		cfg.CountThreshold = 100
	}

	c := &LogCollector{
		cfg:     cfg,
		now:     time.Now,
		entries: make(map[entryKey]*AggregatedEntry),
		stop:    make(chan struct{}),
	}
	c.wg.Add(1)
	go c.loop()
	return c
}

func (c *LogCollector) Add(level, message string, fields map[string]interface{}, caller string) {
	now := c.now()
	key := entryKey{level: level, message: message, caller: caller}

	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		e.Count++
		e.LastSeen = now
	} else {
		c.entries[key] = &AggregatedEntry{
			Level:     level,
			Message:   message,
			Caller:    caller,
			Count:     1,
			Sample:    fields,
			FirstSeen: now,
			LastSeen:  now,
		}
	}
	var batch []AggregatedEntry
	if len(c.entries) >= c.cfg.CountThreshold {
		batch = c.drainLocked()
	}
	c.mu.Unlock()

	if batch != nil {
		c.publish(batch)
	}
}

// Flush publishes whatever is pending.
func (c *LogCollector) Flush() {
	c.mu.Lock()
	batch := c.drainLocked()
	c.mu.Unlock()
	if len(batch) > 0 {
		c.publish(batch)
	}
}

// Close stops the flush loop after a final flush.
func (c *LogCollector) Close() {
	c.once.Do(func() {
		close(c.stop)
		c.wg.Wait()
	})
}

func (c *LogCollector) loop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Flush()
		case <-c.stop:
			c.Flush()
			return
		}
	}
}

func (c *LogCollector) drainLocked() []AggregatedEntry {
	if len(c.entries) == 0 {
		return nil
	}
	out := make([]AggregatedEntry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, *e)
	}
	c.entries = make(map[entryKey]*AggregatedEntry)

	sort.Slice(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out
}

func (c *LogCollector) publish(batch []AggregatedEntry) {
	if c.cfg.Publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.cfg.Publisher.PublishDigest(ctx, batch); err != nil && c.cfg.OnError != nil {
		c.cfg.OnError(err)
	}
}

package logger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"
)

// Publisher ships aggregated log summaries, typically to Kafka.
type Publisher interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
}

type AggregatorConfig struct {
	FlushInterval  time.Duration // periodic flush
	CountThreshold int           // flush once this many distinct lines are held
	Topic          string
	Publisher      Publisher
}

// LogSummary is one distinct warn/error line with its repeat count.
type LogSummary struct {
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields"`
	Caller    string                 `json:"caller"`
	Count     int                    `json:"count"`
	FirstSeen time.Time              `json:"first_seen"`
	LastSeen  time.Time              `json:"last_seen"`
}

// Aggregator deduplicates repeated log lines (for example one Collatz
// exclusion warning per prime across a long scan) and publishes batches.
type Aggregator struct {
	cfg     AggregatorConfig
	mu      sync.Mutex
	entries map[string]*LogSummary
	publish func([]LogSummary)
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewAggregator(cfg *AggregatorConfig) *Aggregator {
	c := *cfg
	if c.FlushInterval <= 0 {
		c.FlushInterval = 30 * time.Second
	}
	if c.CountThreshold <= 0 {
		c.CountThreshold = 100
	}

	ctx, cancel := context.WithCancel(context.Background())
	a := &Aggregator{
		cfg:     c,
		entries: make(map[string]*LogSummary),
		cancel:  cancel,
	}
	a.publish = a.send

	a.wg.Add(1)
	go a.loop(ctx)
	return a
}

func (a *Aggregator) Add(level, message string, fields map[string]interface{}, caller string) {
	now := time.Now()
	key := summaryKey(level, message, fields, caller)

	a.mu.Lock()
	defer a.mu.Unlock()

	if e, ok := a.entries[key]; ok {
		e.Count++
		e.LastSeen = now
	} else {
		a.entries[key] = &LogSummary{
			Level:     level,
			Message:   message,
			Fields:    fields,
			Caller:    caller,
			Count:     1,
			FirstSeen: now,
			LastSeen:  now,
		}
	}

	if len(a.entries) >= a.cfg.CountThreshold {
		a.flushLocked()
	}
}

// Pending returns the number of distinct lines waiting to be flushed.
func (a *Aggregator) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}

func summaryKey(level, message string, fields map[string]interface{}, caller string) string {
	raw, _ := json.Marshal(struct {
		L string                 `json:"l"`
		M string                 `json:"m"`
		F map[string]interface{} `json:"f"`
		C string                 `json:"c"`
	}{level, message, fields, caller})
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

func (a *Aggregator) loop(ctx context.Context) {
	defer a.wg.Done()

	ticker := time.NewTicker(a.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.mu.Lock()
			a.flushLocked()
			a.mu.Unlock()
		case <-ctx.Done():
			a.mu.Lock()
			a.flushLocked()
			a.mu.Unlock()
			return
		}
	}
}

func (a *Aggregator) flushLocked() {
	if len(a.entries) == 0 {
		return
	}
	batch := make([]LogSummary, 0, len(a.entries))
	for _, e := range a.entries {
		batch = append(batch, *e)
	}
	sort.Slice(batch, func(i, j int) bool { return batch[i].FirstSeen.Before(batch[j].FirstSeen) })
	a.entries = make(map[string]*LogSummary)

	go a.publish(batch)
}

func (a *Aggregator) send(batch []LogSummary) {
	if a.cfg.Publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := a.cfg.Publisher.Publish(ctx, a.cfg.Topic, nil, batch); err != nil {
		fmt.Fprintf(os.Stderr, "log aggregator: publish %d summaries: %v\n", len(batch), err)
	}
}

// Close performs a final flush and stops the background loop.
func (a *Aggregator) Close() {
	a.cancel()
	a.wg.Wait()
}

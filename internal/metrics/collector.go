package metrics

import (
	"context"
	"encoding/json"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	bolt "go.etcd.io/bbolt"

	"github.com/foxzi/broadcaster/internal/storage"
)

// StateStats is a snapshot of application state for gauges
type StateStats struct {
	Contacts int
	Selected int
	Lists    int
}

// StateStatsProvider reports application state for metrics
type StateStatsProvider interface {
	Stats(ctx context.Context) (*StateStats, error)
}

var (
	bucketMetrics = []byte("metrics")
	keyCounters   = []byte("counters")
)

// ShadowCounters stores counter values for persistence
type ShadowCounters struct {
	MessagesSent   float64            `json:"messages_sent"`
	MessagesFailed float64            `json:"messages_failed"`
	Broadcasts     map[string]float64 `json:"broadcasts"`
	SessionEvents  map[string]float64 `json:"session_events"`
	EventsDropped  float64            `json:"session_events_dropped"`
	APIRequests    map[string]float64 `json:"api_requests"`
	APIErrors      map[string]float64 `json:"api_errors"`
}

// Collector restores counters across restarts and refreshes gauges.
// Counter values are read back from the metrics themselves, so code only
// has to increment the live metrics.
type Collector struct {
	db            *bolt.DB
	metrics       *Metrics
	state         StateStatsProvider
	flushInterval time.Duration
	startTime     time.Time

	mu     sync.Mutex
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewCollector creates a new metrics collector and restores saved counters
func NewCollector(db *bolt.DB, m *Metrics, state StateStatsProvider, flushInterval time.Duration) (*Collector, error) {
	if flushInterval == 0 {
		flushInterval = 10 * time.Second
	}

	if err := storage.EnsureBuckets(db, bucketMetrics); err != nil {
		return nil, err
	}

	c := &Collector{
		db:            db,
		metrics:       m,
		state:         state,
		flushInterval: flushInterval,
		startTime:     time.Now(),
		stopCh:        make(chan struct{}),
	}

	if err := c.loadCounters(); err != nil {
		return nil, err
	}
	return c, nil
}

// Start begins the collector background tasks
func (c *Collector) Start(ctx context.Context) {
	c.wg.Add(2)
	go c.persistLoop(ctx)
	go c.updateSystemMetrics(ctx)
}

// Stop stops the collector and persists final values
func (c *Collector) Stop() error {
	close(c.stopCh)
	c.wg.Wait()
	return c.persistCounters()
}

// Snapshot reads the current counter values
func (c *Collector) Snapshot() ShadowCounters {
	m := c.metrics
	return ShadowCounters{
		MessagesSent:   sumCounters(m.MessagesSentTotal),
		MessagesFailed: sumCounters(m.MessagesFailedTotal),
		Broadcasts:     collectCounters(m.BroadcastsTotal),
		SessionEvents:  collectCounters(m.SessionEventsTotal),
		EventsDropped:  sumCounters(m.SessionEventsDroppedTotal),
		APIRequests:    collectCounters(m.APIRequestsTotal),
		APIErrors:      collectCounters(m.APIErrorsTotal),
	}
}

func (c *Collector) loadCounters() error {
	return c.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketMetrics).Get(keyCounters)
		if data == nil {
			return nil
		}

		var shadow ShadowCounters
		if err := json.Unmarshal(data, &shadow); err != nil {
			return nil // Skip invalid data
		}

		m := c.metrics
		m.MessagesSentTotal.Add(shadow.MessagesSent)
		m.MessagesFailedTotal.Add(shadow.MessagesFailed)
		m.SessionEventsDroppedTotal.Add(shadow.EventsDropped)
		restoreVec(m.BroadcastsTotal, shadow.Broadcasts, 1)
		restoreVec(m.SessionEventsTotal, shadow.SessionEvents, 1)
		restoreVec(m.APIRequestsTotal, shadow.APIRequests, 3)
		restoreVec(m.APIErrorsTotal, shadow.APIErrors, 1)
		return nil
	})
}

func (c *Collector) persistCounters() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := json.Marshal(c.Snapshot())
	if err != nil {
		return err
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMetrics).Put(keyCounters, data)
	})
}

func (c *Collector) persistLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.persistCounters()
		}
	}
}

func (c *Collector) updateSystemMetrics(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.collectSystemMetrics(ctx)
		}
	}
}

// collectSystemMetrics refreshes process and application gauges
func (c *Collector) collectSystemMetrics(ctx context.Context) {
	c.metrics.UptimeSeconds.Set(time.Since(c.startTime).Seconds())
	c.metrics.Goroutines.Set(float64(runtime.NumGoroutine()))

	c.metrics.StorageUsedBytes.Set(float64(storage.Size(c.db)))

	if c.state != nil {
		stats, err := c.state.Stats(ctx)
		if err == nil {
			c.metrics.ContactsLoaded.Set(float64(stats.Contacts))
			c.metrics.ContactsSelected.Set(float64(stats.Selected))
			c.metrics.ListsTotal.Set(float64(stats.Lists))
		}
	}
}

// collectCounters reads every child of a counter vector keyed by its
// label values joined with "|", in label name order
func collectCounters(col prometheus.Collector) map[string]float64 {
	ch := make(chan prometheus.Metric, 16)
	go func() {
		col.Collect(ch)
		close(ch)
	}()

	result := make(map[string]float64)
	for metric := range ch {
		var pb dto.Metric
		if err := metric.Write(&pb); err != nil || pb.Counter == nil {
			continue
		}
		values := make([]string, 0, len(pb.Label))
		for _, lp := range pb.Label {
			values = append(values, lp.GetValue())
		}
		result[strings.Join(values, "|")] += pb.GetCounter().GetValue()
	}
	return result
}

func sumCounters(col prometheus.Collector) float64 {
	var total float64
	for _, v := range collectCounters(col) {
		total += v
	}
	return total
}

func restoreVec(vec *prometheus.CounterVec, values map[string]float64, labels int) {
	for key, v := range values {
		parts := strings.SplitN(key, "|", labels)
		if len(parts) != labels {
			continue
		}
		vec.WithLabelValues(parts...).Add(v)
	}
}

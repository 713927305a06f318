package metrics

import (
	"context"
	"sync"
	"time"
)

// Snapshot represents the current delivery state of the webhook system.
type Snapshot struct {
	// Attempts is the total number of delivery attempts made
	Attempts int64 `json:"attempts"`

	// Delivered is the number of delivery sequences that ended in success
	Delivered int64 `json:"delivered"`

	// Exhausted is the number of delivery sequences that ran out of retries
	Exhausted int64 `json:"exhausted"`

	// Endpoints maps endpoint id to its per-endpoint stats
	Endpoints map[string]EndpointStats `json:"endpoints"`

	// Timestamp when the snapshot was taken
	Timestamp time.Time `json:"timestamp"`
}

// EndpointStats aggregates outcomes for a single endpoint.
type EndpointStats struct {
	Attempts  int64 `json:"attempts"`
	Delivered int64 `json:"delivered"`
	Exhausted int64 `json:"exhausted"`
}

// Collector exposes a point-in-time view of delivery activity,
// consumed by the admin stats endpoint.
type Collector interface {
	Collect(ctx context.Context) (Snapshot, error)
}

// counters is the in-process state behind Collect. The OTel
// instruments in the exporter observe the same events independently.
type counters struct {
	mu        sync.Mutex
	attempts  int64
	delivered int64
	exhausted int64
	endpoints map[string]EndpointStats
}

func newCounters() *counters {
	return &counters{
		endpoints: make(map[string]EndpointStats),
	}
}

func (c *counters) addAttempt(endpointID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts++
	stats := c.endpoints[endpointID]
	stats.Attempts++
	c.endpoints[endpointID] = stats
}

func (c *counters) addOutcome(endpointID string, success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	stats := c.endpoints[endpointID]
	if success {
		c.delivered++
		stats.Delivered++
	} else {
		c.exhausted++
		stats.Exhausted++
	}
	c.endpoints[endpointID] = stats
}

func (c *counters) snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	endpoints := make(map[string]EndpointStats, len(c.endpoints))
	for id, stats := range c.endpoints {
		endpoints[id] = stats
	}
	return Snapshot{
		Attempts:  c.attempts,
		Delivered: c.delivered,
		Exhausted: c.exhausted,
		Endpoints: endpoints,
		Timestamp: time.Now().UTC(),
	}
}

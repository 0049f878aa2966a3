package metrics

import (
	"sync/atomic"
	"time"
)

// Collector tracks sink throughput and failure counters. All fields use
// atomic operations so the hot write path never takes a lock.
type Collector struct {
	recordsReceived atomic.Int64
	operationsBuilt atomic.Int64
	chunksSubmitted atomic.Int64
	chunksFailed    atomic.Int64
	itemFailures    atomic.Int64
	writes          atomic.Int64
	writeErrors     atomic.Int64
	writeNanos      atomic.Int64
	lastWriteUnixMS atomic.Int64
}

// New creates an empty collector.
func New() *Collector {
	return &Collector{}
}

func (c *Collector) AddRecords(n int)      { c.recordsReceived.Add(int64(n)) }
func (c *Collector) AddOperations(n int)   { c.operationsBuilt.Add(int64(n)) }
func (c *Collector) AddChunks(n int)       { c.chunksSubmitted.Add(int64(n)) }
func (c *Collector) AddChunkFailure()      { c.chunksFailed.Add(1) }
func (c *Collector) AddItemFailures(n int) { c.itemFailures.Add(int64(n)) }

// ObserveWrite records one completed write call.
func (c *Collector) ObserveWrite(d time.Duration, err error) {
	c.writes.Add(1)
	c.writeNanos.Add(int64(d))
	c.lastWriteUnixMS.Store(time.Now().UnixMilli())
	if err != nil {
		c.writeErrors.Add(1)
	}
}

// Snapshot returns the current counter values for the admin endpoints.
func (c *Collector) Snapshot() map[string]interface{} {
	writes := c.writes.Load()
	var avgWriteMS float64
	if writes > 0 {
		avgWriteMS = float64(c.writeNanos.Load()) / float64(writes) / 1e6
	}

	return map[string]interface{}{
		"records_received":   c.recordsReceived.Load(),
		"operations_built":   c.operationsBuilt.Load(),
		"chunks_submitted":   c.chunksSubmitted.Load(),
		"chunks_failed":      c.chunksFailed.Load(),
		"item_failures":      c.itemFailures.Load(),
		"writes":             writes,
		"write_errors":       c.writeErrors.Load(),
		"avg_write_ms":       avgWriteMS,
		"last_write_unix_ms": c.lastWriteUnixMS.Load(),
	}
}

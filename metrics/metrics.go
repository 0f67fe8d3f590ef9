// Package metrics exports a Queue's stats counters as Prometheus gauges.
// It is purely additive instrumentation: bplib.Queue has no dependency on
// this package, only the reverse.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jphickey/bplib"
)

// Collector refreshes a fixed set of gauges from a Queue's Stats/GetCount
// whenever Prometheus scrapes it.
type Collector struct {
	queue *bplib.Queue

	freeBlocks  prometheus.Gauge
	usedBlocks  prometheus.Gauge
	badBlocks   prometheus.Gauge
	errorCount  prometheus.Gauge
	objectCount *prometheus.GaugeVec
	handles     []bplib.Handle
}

// NewCollector builds a Collector for queue. handles lists the store
// handles to report per-store object counts for; pass nil if there are
// none worth tracking yet (handles can be extended later by constructing a
// new Collector).
func NewCollector(queue *bplib.Queue, handles []bplib.Handle) *Collector {
	return &Collector{
		queue:   queue,
		handles: handles,
		freeBlocks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "flash_free_blocks",
			Help: "Number of blocks currently on the free list.",
		}),
		usedBlocks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "flash_used_blocks",
			Help: "Number of blocks currently allocated into a store's chain.",
		}),
		badBlocks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "flash_bad_blocks",
			Help: "Number of blocks classified bad for the session.",
		}),
		errorCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "flash_error_count",
			Help: "Number of driver I/O errors observed since the last stats reset.",
		}),
		objectCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "flash_object_count",
			Help: "Number of live objects in a store, by handle.",
		}, []string{"handle"}),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.freeBlocks.Describe(ch)
	c.usedBlocks.Describe(ch)
	c.badBlocks.Describe(ch)
	c.errorCount.Describe(ch)
	c.objectCount.Describe(ch)
}

// Collect implements prometheus.Collector, refreshing every gauge from the
// underlying Queue before emitting them.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.queue.Stats(false, false)
	c.freeBlocks.Set(float64(snap.FreeBlocks))
	c.usedBlocks.Set(float64(snap.UsedBlocks))
	c.badBlocks.Set(float64(snap.BadBlocks))
	c.errorCount.Set(float64(snap.ErrorCount))

	for _, h := range c.handles {
		if count, err := c.queue.GetCount(h); err == nil {
			c.objectCount.WithLabelValues(strconv.Itoa(int(h))).Set(float64(count))
		}
	}

	c.freeBlocks.Collect(ch)
	c.usedBlocks.Collect(ch)
	c.badBlocks.Collect(ch)
	c.errorCount.Collect(ch)
	c.objectCount.Collect(ch)
}

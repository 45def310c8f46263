package resgo

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// Example Prometheus integration:
//
//	type PrometheusCollector struct {
//	    createCounter prometheus.Counter
//	    evictBytes    prometheus.Counter
//	}
//
//	func (p *PrometheusCollector) RecordCreate(duration time.Duration, err error) {
//	    p.createCounter.Inc()
//	    // ... record error state, duration, etc.
//	}
type MetricsCollector interface {
	// RecordCreate is called after each create or adopt operation.
	// duration is the total time taken, err is nil if successful.
	RecordCreate(duration time.Duration, err error)

	// RecordDelete is called after each delete. deleted is false when the
	// handle was absent or the delete was refused.
	RecordDelete(duration time.Duration, deleted bool)

	// RecordCollect is called after each garbage collection pass.
	RecordCollect(collected int, freed int64, duration time.Duration)

	// RecordEvict is called after each eviction to the cache pool.
	// bytes is the in-memory footprint that was written out.
	RecordEvict(bytes int64, duration time.Duration, err error)

	// RecordRestore is called after each restore from the cache pool.
	RecordRestore(duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordCreate(time.Duration, error)       {}
func (NoopMetricsCollector) RecordDelete(time.Duration, bool)        {}
func (NoopMetricsCollector) RecordCollect(int, int64, time.Duration) {}
func (NoopMetricsCollector) RecordEvict(int64, time.Duration, error) {}
func (NoopMetricsCollector) RecordRestore(time.Duration, error)      {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	CreateCount       atomic.Int64
	CreateErrors      atomic.Int64
	CreateTotalNanos  atomic.Int64
	DeleteCount       atomic.Int64
	DeleteRefused     atomic.Int64
	CollectCount      atomic.Int64
	CollectedItems    atomic.Int64
	CollectedBytes    atomic.Int64
	EvictCount        atomic.Int64
	EvictErrors       atomic.Int64
	EvictBytes        atomic.Int64
	EvictTotalNanos   atomic.Int64
	RestoreCount      atomic.Int64
	RestoreErrors     atomic.Int64
	RestoreTotalNanos atomic.Int64
}

// RecordCreate implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCreate(duration time.Duration, err error) {
	b.CreateCount.Add(1)
	b.CreateTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.CreateErrors.Add(1)
	}
}

// RecordDelete implements MetricsCollector.
func (b *BasicMetricsCollector) RecordDelete(duration time.Duration, deleted bool) {
	b.DeleteCount.Add(1)
	if !deleted {
		b.DeleteRefused.Add(1)
	}
}

// RecordCollect implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCollect(collected int, freed int64, duration time.Duration) {
	b.CollectCount.Add(1)
	b.CollectedItems.Add(int64(collected))
	b.CollectedBytes.Add(freed)
}

// RecordEvict implements MetricsCollector.
func (b *BasicMetricsCollector) RecordEvict(bytes int64, duration time.Duration, err error) {
	b.EvictCount.Add(1)
	b.EvictTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.EvictErrors.Add(1)
		return
	}
	b.EvictBytes.Add(bytes)
}

// RecordRestore implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRestore(duration time.Duration, err error) {
	b.RestoreCount.Add(1)
	b.RestoreTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.RestoreErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		CreateCount:     b.CreateCount.Load(),
		CreateErrors:    b.CreateErrors.Load(),
		CreateAvgNanos:  avg(b.CreateTotalNanos.Load(), b.CreateCount.Load()),
		DeleteCount:     b.DeleteCount.Load(),
		DeleteRefused:   b.DeleteRefused.Load(),
		CollectCount:    b.CollectCount.Load(),
		CollectedItems:  b.CollectedItems.Load(),
		CollectedBytes:  b.CollectedBytes.Load(),
		EvictCount:      b.EvictCount.Load(),
		EvictErrors:     b.EvictErrors.Load(),
		EvictBytes:      b.EvictBytes.Load(),
		EvictAvgNanos:   avg(b.EvictTotalNanos.Load(), b.EvictCount.Load()),
		RestoreCount:    b.RestoreCount.Load(),
		RestoreErrors:   b.RestoreErrors.Load(),
		RestoreAvgNanos: avg(b.RestoreTotalNanos.Load(), b.RestoreCount.Load()),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	CreateCount     int64
	CreateErrors    int64
	CreateAvgNanos  int64
	DeleteCount     int64
	DeleteRefused   int64
	CollectCount    int64
	CollectedItems  int64
	CollectedBytes  int64
	EvictCount      int64
	EvictErrors     int64
	EvictBytes      int64
	EvictAvgNanos   int64
	RestoreCount    int64
	RestoreErrors   int64
	RestoreAvgNanos int64
}

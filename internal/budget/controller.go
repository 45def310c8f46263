package budget

import (
	"context"
	"errors"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ErrMemoryLimitExceeded is returned when a reservation would cross the
// memory limit.
var ErrMemoryLimitExceeded = errors.New("memory limit exceeded")

// Config holds budget limits. Zero disables a limit.
type Config struct {
	// MemoryLimitBytes bounds the payload bytes of loaded resources.
	MemoryLimitBytes int64
	// IOLimitBytesPerSec bounds cache file throughput.
	IOLimitBytesPerSec int64
}

// Controller accounts loaded memory and cache IO. A nil *Controller
// accounts nothing.
type Controller struct {
	limit int64
	used  atomic.Int64
	sem   *semaphore.Weighted

	io      atomic.Int64
	limiter *rate.Limiter
}

// NewController returns a controller enforcing cfg.
func NewController(cfg Config) *Controller {
	c := &Controller{limit: max(cfg.MemoryLimitBytes, 0)}
	if c.limit > 0 {
		c.sem = semaphore.NewWeighted(c.limit)
	}
	if bps := cfg.IOLimitBytesPerSec; bps > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(bps), int(bps))
	}
	return c
}

// AcquireMemory reserves n bytes. It never blocks; when the limit would be
// crossed it returns ErrMemoryLimitExceeded and the caller may evict and
// retry.
func (c *Controller) AcquireMemory(n int64) error {
	if c == nil || n <= 0 {
		return nil
	}
	if c.sem != nil && !c.sem.TryAcquire(n) {
		return ErrMemoryLimitExceeded
	}
	c.used.Add(n)
	return nil
}

// ReleaseMemory returns n reserved bytes.
func (c *Controller) ReleaseMemory(n int64) {
	if c == nil || n <= 0 {
		return
	}
	c.used.Add(-n)
	if c.sem != nil {
		c.sem.Release(n)
	}
}

// MemoryUsage reports the reserved bytes.
func (c *Controller) MemoryUsage() int64 {
	if c == nil {
		return 0
	}
	return c.used.Load()
}

// MemoryLimit reports the limit, 0 when unlimited.
func (c *Controller) MemoryLimit() int64 {
	if c == nil {
		return 0
	}
	return c.limit
}

// AcquireIO charges n bytes of cache IO and waits for the rate limit.
// Requests larger than one second of budget wait in slices.
func (c *Controller) AcquireIO(ctx context.Context, n int) error {
	if c == nil || n <= 0 {
		return nil
	}
	c.io.Add(int64(n))
	if c.limiter == nil {
		return nil
	}
	for burst := c.limiter.Burst(); n > 0; n -= burst {
		if err := c.limiter.WaitN(ctx, min(n, burst)); err != nil {
			return err
		}
	}
	return nil
}

// IOBytes reports the bytes charged through AcquireIO.
func (c *Controller) IOBytes() int64 {
	if c == nil {
		return 0
	}
	return c.io.Load()
}

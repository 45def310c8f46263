// Package budget tracks the in-memory byte budget of resource tables and
// throttles cache file IO.
//
// # Memory
//
// AcquireMemory is fail-fast: it returns ErrMemoryLimitExceeded immediately
// when the reservation would cross the configured limit. Tables react by
// evicting other resources to cache files and retrying:
//
//	ctl := budget.NewController(budget.Config{MemoryLimitBytes: 512 << 20})
//	if err := ctl.AcquireMemory(n); errors.Is(err, budget.ErrMemoryLimitExceeded) {
//	    // evict, then retry
//	}
//	defer ctl.ReleaseMemory(n)
//
// # IO
//
// A token bucket limits bytes written to and read from cache files:
//
//	w := ctl.Writer(ctx, file)
//
// # Nil Safety
//
// All methods handle a nil Controller gracefully, they become no-ops.
package budget

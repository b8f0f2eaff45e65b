// Package utils holds test support shared by the transport, client and
// relay packages.
package utils

import (
	"runtime"
	"time"
)

// Reporter is the subset of testing.TB the detector needs.
type Reporter interface {
	Helper()
	Logf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// GoroutineLeakDetector fails a test when goroutines started during it are
// still running once it ends. Spawned transports, read loops and relay
// producers must all be gone after Stop/Close.
type GoroutineLeakDetector struct {
	r             Reporter
	initialCount  int
	allowedGrowth int
	pollInterval  time.Duration
	settleTimeout time.Duration
}

// NewGoroutineLeakDetector creates a new goroutine leak detector
func NewGoroutineLeakDetector(r Reporter) *GoroutineLeakDetector {
	return &GoroutineLeakDetector{
		r:             r,
		pollInterval:  20 * time.Millisecond,
		settleTimeout: 2 * time.Second,
	}
}

// SetAllowedGrowth sets the number of goroutines allowed to grow
func (d *GoroutineLeakDetector) SetAllowedGrowth(n int) *GoroutineLeakDetector {
	d.allowedGrowth = n
	return d
}

// SetSettleTimeout bounds how long Check waits for goroutines to exit.
func (d *GoroutineLeakDetector) SetSettleTimeout(timeout time.Duration) *GoroutineLeakDetector {
	d.settleTimeout = timeout
	return d
}

// Start records the initial goroutine count
func (d *GoroutineLeakDetector) Start() {
	d.initialCount = runtime.NumGoroutine()
}

// Check polls until the goroutine count is back within the allowed growth
// or the settle timeout expires, in which case it reports a leak with the
// stacks of every goroutine.
func (d *GoroutineLeakDetector) Check() {
	d.r.Helper()

	deadline := time.Now().Add(d.settleTimeout)
	count := runtime.NumGoroutine()
	for count-d.initialCount > d.allowedGrowth && time.Now().Before(deadline) {
		time.Sleep(d.pollInterval)
		count = runtime.NumGoroutine()
	}

	leaked := count - d.initialCount
	if leaked <= d.allowedGrowth {
		return
	}

	buf := make([]byte, 1<<20)
	n := runtime.Stack(buf, true)
	d.r.Errorf("goroutine leak: started with %d, ended with %d (allowed growth %d)",
		d.initialCount, count, d.allowedGrowth)
	d.r.Logf("goroutine stacks:\n%s", buf[:n])
}

package utils

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type recordingReporter struct {
	errors []string
}

func (r *recordingReporter) Helper()                                {}
func (r *recordingReporter) Logf(format string, args ...interface{}) {}
func (r *recordingReporter) Errorf(format string, args ...interface{}) {
	r.errors = append(r.errors, fmt.Sprintf(format, args...))
}

func TestGoroutineLeakDetectorNoLeak(t *testing.T) {
	detector := NewGoroutineLeakDetector(t)
	detector.Start()

	done := make(chan struct{})
	go func() {
		time.Sleep(10 * time.Millisecond)
		close(done)
	}()
	<-done

	detector.Check()
}

func TestGoroutineLeakDetectorReportsLeak(t *testing.T) {
	rep := &recordingReporter{}
	detector := NewGoroutineLeakDetector(rep).SetSettleTimeout(100 * time.Millisecond)
	detector.Start()

	stop := make(chan struct{})
	defer close(stop)
	go func() { <-stop }()

	detector.Check()
	assert.Len(t, rep.errors, 1)
	assert.Contains(t, rep.errors[0], "goroutine leak")
}

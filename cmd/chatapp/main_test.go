package main

import (
	"runtime"
	"testing"
	"time"
)

// The root context must only react to interrupt and termination signals. The
// Go runtime delivers SIGURG to its own threads during preemption, so a
// context that relays every signal cancels spontaneously under CPU load.
func TestRootContextSurvivesRuntimePreemption(t *testing.T) {
	ctx, stop := rootContext()
	defer stop()

	done := make(chan struct{})
	for i := 0; i < runtime.NumCPU(); i++ {
		go func() {
			n := 0
			for {
				select {
				case <-done:
					return
				default:
					n++
				}
			}
		}()
	}

	select {
	case <-ctx.Done():
		close(done)
		t.Fatalf("root context cancelled without a shutdown signal: %v", ctx.Err())
	case <-time.After(200 * time.Millisecond):
	}
	close(done)
}

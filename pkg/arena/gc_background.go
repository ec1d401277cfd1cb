package arena

import (
	"time"

	"github.com/sindarin-lang/rtarena/internal/xsync"
)

// backgroundGC tracks the single goroutine running a periodic GC loop
// against a root, so StartGC is idempotent and StopGC knows how to ask it
// to stop.
type backgroundGC struct {
	stop chan struct{}
	done chan struct{}
}

var bg xsync.Map[*Arena, *backgroundGC]

// StartGC launches a goroutine that calls [GC] against root at the given
// interval (100ms when interval is zero or negative, otherwise clamped to a
// minimum of 1ms). Calling StartGC again on a root that already has a
// background collector running is a no-op.
func StartGC(root *Arena, interval time.Duration) {
	root = root.root
	if interval <= 0 {
		interval = 100 * time.Millisecond
	} else if interval < time.Millisecond {
		interval = time.Millisecond
	}

	g := &backgroundGC{stop: make(chan struct{}), done: make(chan struct{})}
	actual, loaded := bg.LoadOrStore(root, func() *backgroundGC { return g })
	if loaded {
		return
	}
	g = actual

	go func() {
		defer close(g.done)
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-g.stop:
				GC(root) // final cycle to drain the condemned queue
				return
			case <-t.C:
				GC(root)
			}
		}
	}()
}

// StopGC signals root's background collector to stop, waits for it to
// perform one final cycle (to drain anything condemned since its last
// tick), and returns. Calling StopGC on a root with no background
// collector is a no-op.
func StopGC(root *Arena) {
	root = root.root

	g, ok := bg.LoadAndDelete(root)
	if !ok {
		return
	}

	close(g.stop)
	<-g.done
}

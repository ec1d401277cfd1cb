package arena

import (
	"fmt"
	"os"

	"github.com/sindarin-lang/rtarena/internal/debug"
)

// arenaStats is the mutable bookkeeping kept alongside an arena, updated as
// allocations and GC cycles happen.
type arenaStats struct {
	handles     int
	bytes       int
	deadHandles int
	deadBytes   int
	gcRuns      uint64
	lastFreed   int
	lastBytes   int
	lastArenas  uint64
}

func (s *arenaStats) onAlloc(n int) {
	s.handles++
	s.bytes += n
}

// HandleCounts breaks a count down by locality, mirroring the distilled
// spec's {local, children, total} metric shape.
type HandleCounts struct {
	Local, Children, Total int
}

// Stats is a point-in-time snapshot of an arena's bookkeeping.
type Stats struct {
	Handles          HandleCounts
	Bytes            HandleCounts
	DeadHandles      int
	DeadBytes        int
	BlockCapacity    int
	BlockUsed        int
	GCRuns           uint64
	LastHandlesFreed int
	LastBytesFreed   int
	LastArenasFreed  uint64
	Fragmentation    float64
}

// Stats recomputes a's snapshot on demand by walking its children.
func (a *Arena) Stats() Stats {
	a.mu.Lock()
	local := a.stats.handles
	localBytes := a.stats.bytes
	dead := a.stats.deadHandles
	deadBytes := a.stats.deadBytes
	gcRuns := a.stats.gcRuns
	lastFreed := a.stats.lastFreed
	lastBytes := a.stats.lastBytes
	lastArenas := a.stats.lastArenas
	children := a.firstChild
	a.mu.Unlock()

	childHandles, childBytes := 0, 0
	for c := children; c != nil; c = c.nextSibling {
		s := c.Stats()
		childHandles += s.Handles.Total
		childBytes += s.Bytes.Total
	}

	return Stats{
		Handles:          HandleCounts{local, childHandles, local + childHandles},
		Bytes:            HandleCounts{localBytes, childBytes, localBytes + childBytes},
		DeadHandles:      dead,
		DeadBytes:        deadBytes,
		GCRuns:           gcRuns,
		LastHandlesFreed: lastFreed,
		LastBytesFreed:   lastBytes,
		LastArenasFreed:  lastArenas,
		Fragmentation:    0, // no bump space to fragment: storage is per-allocation
	}
}

// PrintStats writes a human-readable summary of a's snapshot to stderr.
func (a *Arena) PrintStats() {
	s := a.Stats()
	fmt.Fprintf(os.Stderr,
		"arena %q: handles=%d(+%d children) bytes=%d(+%d children) dead=%d/%db gc_runs=%d last_freed=%d/%db\n",
		a.name, s.Handles.Local, s.Handles.Children, s.Bytes.Local, s.Bytes.Children,
		s.DeadHandles, s.DeadBytes, s.GCRuns, s.LastHandlesFreed, s.LastBytesFreed)
}

// gcLogLine writes the one-line-per-cycle summary used when gc logging is
// enabled on a's root.
func gcLogLine(root *Arena, r GCResult) {
	if !root.gcLogging || !debug.Enabled() {
		return
	}
	fmt.Fprintf(os.Stderr,
		"[gc] root=%q handles_freed=%d bytes_freed=%d arenas_freed=%d arena_bytes_freed=%d calls=%d skips=%d\n",
		root.name, r.HandlesFreed, r.BytesFreed, r.ArenasFreed, r.ArenaBytesFreed, r.GCCalls, r.GCSkips)
}

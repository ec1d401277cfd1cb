package arena

import (
	"sync/atomic"
	"unsafe"

	"github.com/sindarin-lang/rtarena/pkg/arena/swiss"
	"github.com/sindarin-lang/rtarena/pkg/xunsafe"
	"github.com/sindarin-lang/rtarena/pkg/xunsafe/layout"
)

// gcState holds the fields only meaningful on a root arena: the condemned
// queue and the re-entrancy guard that serializes GC cycles against
// themselves (but not against cycles on a different, unrelated root).
type gcState struct {
	condemnedHead unsafe.Pointer // *Arena, CAS-updated LIFO head
	running       atomic.Bool
	calls         atomic.Uint64
	skips         atomic.Uint64
}

func (a *Arena) loadCondemned() *Arena {
	return (*Arena)(atomic.LoadPointer(&a.gc.condemnedHead))
}

func (a *Arena) casCondemned(old, new *Arena) bool {
	return atomic.CompareAndSwapPointer(&a.gc.condemnedHead, unsafe.Pointer(old), unsafe.Pointer(new))
}

func gcRunningOn(root *Arena) bool {
	return root.gc.running.Load()
}

// GCResult reports what a single [GC] cycle reclaimed.
type GCResult struct {
	HandlesFreed    uint64
	BytesFreed      uint64
	ArenasFreed     uint64
	ArenaBytesFreed uint64
	GCCalls         uint64
	GCSkips         uint64
}

// GC runs one stop-the-world collection cycle against root's tree.
//
// A cycle has two phases: first, the condemned-arena queue is drained and
// each arena's cleanup callbacks fire (but not yet its handle free
// callbacks, since cross-arena references from live arenas would be
// invalidated too early); second, the live tree is walked to find and
// reclaim dead handles, using a conservative pointer scan and reference
// counting to rescue handles still reachable from live data and to cascade
// collection into children that are reachable only through dead handles.
// Finally, the condemned arenas from phase one are finalized: their handle
// data and structs are freed, their arena structs are freed, and any
// surviving children are orphaned to be condemned on their own.
//
// GC is safe to call concurrently with itself on the same root: a
// concurrent caller that finds a cycle already running returns immediately
// and is counted as a skip rather than blocking.
func GC(root *Arena) GCResult {
	root = root.root

	if !root.gc.running.CompareAndSwap(false, true) {
		root.gc.skips.Add(1)
		return GCResult{GCSkips: root.gc.skips.Load(), GCCalls: root.gc.calls.Load()}
	}
	defer root.gc.running.Store(false)

	root.gc.calls.Add(1)

	popRedirectForGC()
	defer restoreRedirectAfterGC()

	var result GCResult

	condemned := drainCondemned(root)
	for _, a := range condemned {
		a.runCleanup()
	}

	liveFreed, liveBytes := sweepLiveHandles(root)
	result.HandlesFreed = liveFreed
	result.BytesFreed = liveBytes

	for _, a := range condemned {
		hFreed, bFreed := finalizeArena(a)
		result.HandlesFreed += hFreed
		result.BytesFreed += bFreed
		result.ArenasFreed++
		result.ArenaBytesFreed += bFreed
	}

	result.GCCalls = root.gc.calls.Load()
	result.GCSkips = root.gc.skips.Load()

	root.mu.Lock()
	root.stats.gcRuns++
	root.stats.lastFreed = int(result.HandlesFreed)
	root.stats.lastBytes = int(result.BytesFreed)
	root.stats.lastArenas = result.ArenasFreed
	root.mu.Unlock()

	gcLogLine(root, result)

	return result
}

// GCRunning reports whether a GC cycle is currently running against root's
// tree.
func GCRunning(root *Arena) bool {
	return gcRunningOn(root.root)
}

// drainCondemned atomically swaps out root's condemned queue and returns it
// as a slice, in LIFO order.
func drainCondemned(root *Arena) []*Arena {
	var out []*Arena
	for {
		head := root.loadCondemned()
		if root.casCondemned(head, nil) {
			for a := head; a != nil; a = a.condemnedNext {
				out = append(out, a)
			}
			return out
		}
	}
}

// sweepLiveHandles implements phase 2 of the cycle: unlink dead handles
// from every live arena in root's tree, build a handle-address set and a
// reference-count table, rescue handles still referenced by live data, and
// cascade-free handles reachable only through dead handles.
func sweepLiveHandles(root *Arena) (handlesFreed, bytesFreed uint64) {
	var dead []*Handle
	var live []*Handle

	collectDead(root, &dead, &live)

	if len(dead) == 0 {
		return 0, 0
	}

	addrs := swiss.NewMap[uintptr, *Handle](uint32(len(dead) + len(live)))
	for _, h := range live {
		if a := h.addr(); a != 0 {
			addrs.Put(a, h)
		}
	}
	for _, h := range dead {
		if a := h.addr(); a != 0 {
			addrs.Put(a, h)
		}
	}

	refs := swiss.NewMap[uintptr, uint32](uint32(len(dead) + len(live)))
	for _, h := range live {
		scanWords(h.data, addrs, refs)
	}

	rescued := make(map[*Handle]bool)
	for _, h := range dead {
		if n, ok := refs.Get(h.addr()); ok && n > 0 {
			rescued[h] = true
		}
	}

	var truelyDead []*Handle
	for _, h := range dead {
		if rescued[h] {
			h.flags &^= FlagDead
			if a := h.arena; a != nil {
				a.mu.Lock()
				link(a, h)
				a.mu.Unlock()
			}
			continue
		}
		truelyDead = append(truelyDead, h)
	}

	cascadeFree(&truelyDead, addrs, refs, rescued)

	for _, h := range truelyDead {
		if h.freeFn != nil {
			h.freeFn(h)
		}
		handlesFreed++
		bytesFreed += uint64(len(h.data))
		releaseHandle(h)
	}

	return handlesFreed, bytesFreed
}

// collectDead walks a's tree (skipping nothing: a live arena may still
// have dead handles in it, e.g. from explicit Free calls), unlinking dead
// handles into *dead and appending live ones into *live. Each arena's
// children are snapshotted and released before recursing, so the tree walk
// never holds a parent lock while taking a child lock.
func collectDead(a *Arena, dead, live *[]*Handle) {
	a.mu.Lock()
	var remaining *Handle
	h := a.handlesHead
	for h != nil {
		next := h.next
		if h.flags&FlagDead != 0 && h.flags&FlagRoot == 0 {
			h.prev, h.next = nil, nil
			*dead = append(*dead, h)
			a.stats.deadHandles++
			a.stats.deadBytes += len(h.data)
		} else {
			h.prev, h.next = nil, remaining
			if remaining != nil {
				remaining.prev = h
			}
			remaining = h
			*live = append(*live, h)
		}
		h = next
	}
	a.handlesHead = remaining
	children := a.firstChild
	a.mu.Unlock()

	for c := children; c != nil; c = c.nextSibling {
		collectDead(c, dead, live)
	}
}

// forEachPointerWord treats data as a sequence of pointer-sized words (a
// conservative scan: it does not know which words are really pointers) and
// invokes fn for every word that names a known handle address.
func forEachPointerWord(data []byte, addrs *swiss.Map[uintptr, *Handle], fn func(*Handle)) {
	wordSize := layout.Size[uintptr]()
	for i := 0; i+wordSize <= len(data); i += wordSize {
		word := xunsafe.ByteLoad[uintptr](&data[0], i)
		if word == 0 {
			continue
		}
		if h, ok := addrs.Get(word); ok {
			fn(h)
		}
	}
}

// scanWords increments refs for every known handle address found in data.
func scanWords(data []byte, addrs *swiss.Map[uintptr, *Handle], refs *swiss.Map[uintptr, uint32]) {
	forEachPointerWord(data, addrs, func(h *Handle) {
		n, _ := refs.Get(h.addr())
		refs.Put(h.addr(), n+1)
	})
}

// cascadeFree walks the truly-dead set looking for handles embedded inside
// other dead handles' data. refs was built by scanning only originally-live
// handles, so it already counts every reference that does not run through a
// dead handle; a target whose count is zero has no such surviving reference
// and is only reachable through the handle that is about to be freed, so it
// is marked dead and queued for the same treatment.
//
// A handle discovered this way (pulled out of the live set) had its own
// outgoing references counted in refs during that original scan, so once it
// is marked dead those contributions are backed out before its targets are
// tested, keeping the fixed point exact for longer chains. A handle that was
// already dead before cascadeFree started never contributed to refs in the
// first place, so its outgoing words are inspected without any decrement.
func cascadeFree(dead *[]*Handle, addrs *swiss.Map[uintptr, *Handle], refs *swiss.Map[uintptr, uint32], rescued map[*Handle]bool) {
	type pending struct {
		h       *Handle
		wasLive bool
	}

	inDead := make(map[*Handle]bool, len(*dead))
	queue := make([]pending, 0, len(*dead))
	for _, h := range *dead {
		inDead[h] = true
		queue = append(queue, pending{h: h})
	}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		forEachPointerWord(cur.h.data, addrs, func(target *Handle) {
			if target == cur.h || inDead[target] || rescued[target] || target.flags&FlagRoot != 0 {
				return
			}

			n, _ := refs.Get(target.addr())
			if cur.wasLive {
				if n > 0 {
					n--
				}
				refs.Put(target.addr(), n)
			}
			if n != 0 {
				return
			}

			target.flags |= FlagDead
			inDead[target] = true
			*dead = append(*dead, target)
			queue = append(queue, pending{h: target, wasLive: true})

			if a := target.arena; a != nil {
				a.mu.Lock()
				unlink(a, target)
				a.stats.deadHandles++
				a.stats.deadBytes += len(target.data)
				a.mu.Unlock()
			}
		})
	}
}

// finalizeArena implements phase 3 for one condemned arena: free all of
// its handle data and structs (except Extern) and its own struct, and
// orphan any children that outlived it.
func finalizeArena(a *Arena) (handlesFreed, bytesFreed uint64) {
	a.mu.Lock()
	h := a.handlesHead
	a.handlesHead = nil
	children := a.firstChild
	a.firstChild = nil
	a.mu.Unlock()

	if p := a.parent; p != nil {
		p.mu.Lock()
		unlinkChild(p, a)
		p.mu.Unlock()
		a.parent = nil
	}

	for h != nil {
		next := h.next
		if h.freeFn != nil {
			h.freeFn(h)
		}
		if h.flags&FlagExtern == 0 {
			bytesFreed += uint64(len(h.data))
		}
		handlesFreed++
		releaseHandle(h)
		h = next
	}

	for c := children; c != nil; {
		next := c.nextSibling
		c.parent = nil
		c.nextSibling = nil
		c = next
	}

	return handlesFreed, bytesFreed
}

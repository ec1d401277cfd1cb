package arena

import "github.com/sindarin-lang/rtarena/internal/xsync"

// handlePool recycles *Handle structs across GC cycles. Unlike the
// reference allocator's size-class free lists (which recycled raw memory
// blocks in a bump arena), this pool only recycles the bookkeeping struct
// itself: the backing []byte still comes fresh from make() on every
// allocation, since handle data sizes vary arbitrarily and the collector
// already owns reclaiming it.
var handlePool = xsync.Pool[Handle]{
	Reset: func(h *Handle) {
		h.data = nil
		h.arena = nil
		h.flags = FlagNone
		h.copyFn = nil
		h.freeFn = nil
		h.prev, h.next = nil, nil
		h.owner = 0
		h.depth = 0
	},
}

func newHandle(data []byte) *Handle {
	h := handlePool.Get()
	h.data = data
	return h
}

func releaseHandle(h *Handle) {
	handlePool.Put(h)
}

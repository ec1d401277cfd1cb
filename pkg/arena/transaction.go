package arena

// BeginTransaction acquires scoped access to h's data. Every read or write
// through a handle's bytes must occur between a BeginTransaction/
// EndTransaction pair.
//
// Transactions are re-entrant: the same goroutine may call BeginTransaction
// on the same handle multiple times without deadlocking, and the handle is
// released only once the matching number of EndTransaction calls have been
// made. This is a deliberate correction of the distilled spec's note that
// the reference implementation only took a plain mutex lock per call
// (see the design notes for why re-entrant nesting is the documented, and
// now actual, contract).
func (h *Handle) BeginTransaction() []byte {
	id := CurrentID()

	h.mu.Lock()
	if h.owner == id {
		h.depth++
		h.mu.Unlock()
		return h.data
	}
	h.mu.Unlock()

	// Not already held by this goroutine: block for real ownership of the
	// transaction. This must not be the same mutex used for the owner/depth
	// probe above, since that one is released immediately after every probe
	// while this one stays held for the whole transaction.
	h.txn.Lock()

	h.mu.Lock()
	h.owner = id
	h.depth = 1
	h.mu.Unlock()

	return h.data
}

// EndTransaction releases one level of nesting acquired by
// BeginTransaction. The underlying lock is released only when the nesting
// count returns to zero.
func (h *Handle) EndTransaction() {
	h.mu.Lock()
	h.depth--
	done := h.depth <= 0
	if done {
		h.owner = 0
		h.depth = 0
	}
	h.mu.Unlock()

	if done {
		h.txn.Unlock()
	}
}

// RenewTransaction extends the current transaction without changing its
// nesting depth; present for parity with callers that periodically refresh
// a long-held transaction (e.g. around a blocking syscall) rather than
// fully releasing it.
func (h *Handle) RenewTransaction() {
	// No timeout bookkeeping is kept in this implementation: Go's mutex has
	// no notion of lease expiry, so renewal is a no-op kept for API parity.
}

// WithHandle runs fn with h's data under a transaction, releasing it
// afterward even if fn panics. This is the preferred entry point for Go
// code; BeginTransaction/EndTransaction exist for callers (such as
// generated code) that cannot structure access as a closure.
func WithHandle(h *Handle, fn func(data []byte)) {
	data := h.BeginTransaction()
	defer h.EndTransaction()
	fn(data)
}

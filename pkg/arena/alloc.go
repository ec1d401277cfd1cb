package arena

// Alloc allocates n bytes in a and returns a handle owning them. Storage is
// per-allocation (a plain []byte), not carved out of a bump region, so the
// arena never needs a separate "grow" step and individual handles can be
// freed and collected independently of their siblings.
func (a *Arena) Alloc(n int) (*Handle, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.budget != 0 && a.allocated+n > a.budget {
		return nil, &OutOfMemoryError{Arena: a.name, Requested: n}
	}

	h := newHandle(make([]byte, n))
	link(a, h)
	a.allocated += n
	a.stats.onAlloc(n)

	a.Log("alloc", "%d bytes -> %p", n, h)

	return h, nil
}

// Calloc allocates count*size zeroed bytes; Go's make already zeroes, so
// this is equivalent to Alloc(count*size).
func (a *Arena) Calloc(count, size int) (*Handle, error) {
	return a.Alloc(count * size)
}

// Realloc allocates a new handle of newSize bytes, copies
// min(old.Size(), newSize) bytes from old, marks old dead, and returns the
// new handle.
func (a *Arena) Realloc(old *Handle, newSize int) (*Handle, error) {
	h, err := a.Alloc(newSize)
	if err != nil {
		return nil, err
	}
	if old != nil {
		copy(h.data, old.data)
		old.MarkDead()
	}
	return h, nil
}

// Strdup allocates a copy of s's bytes in a.
func (a *Arena) Strdup(s string) (*Handle, error) {
	h, err := a.Alloc(len(s))
	if err != nil {
		return nil, err
	}
	copy(h.data, s)
	return h, nil
}

// Free marks h dead. Idempotent and nil-safe; it does not unlink h from its
// arena's list or release its storage, which is the collector's job.
func (h *Handle) Free() {
	h.MarkDead()
}

// Bytes returns h's backing storage directly, bypassing the transaction
// contract. Present for callers (tests, trusted internal code) that do not
// need the re-entrant locking [Handle.BeginTransaction] provides; generated
// code should go through [WithHandle] or a BeginTransaction/EndTransaction
// pair instead.
func (h *Handle) Bytes() []byte {
	return h.data
}

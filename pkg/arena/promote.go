package arena

// Clone allocates a handle of h's size in dest, copies its bytes, and, if h
// has a copy callback, invokes it with (dest, h, newHandle) so the callback
// can deep-copy any nested handle graph (arrays of strings, structs with
// handle fields, and so on) into dest as well.
//
// Clone either succeeds entirely — a fully constructed new graph — or
// returns an error and leaves h untouched; a partial graph is never
// returned.
func Clone(dest *Arena, h *Handle) (*Handle, error) {
	if h == nil {
		return nil, nil
	}

	nh, err := dest.Alloc(len(h.data))
	if err != nil {
		return nil, err
	}
	copy(nh.data, h.data)
	nh.copyFn = h.copyFn
	nh.freeFn = h.freeFn

	if h.copyFn != nil {
		h.copyFn(dest, h, nh)
	}

	return nh, nil
}

// Promote is Clone followed by marking h dead; used at function return and
// at goroutine sync, where the source arena is about to be condemned
// anyway.
func Promote(dest *Arena, h *Handle) (*Handle, error) {
	nh, err := Clone(dest, h)
	if err != nil {
		return nil, err
	}
	h.MarkDead()
	return nh, nil
}

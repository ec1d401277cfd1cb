package arena

import (
	"unsafe"

	"github.com/timandy/routine"

	"github.com/sindarin-lang/rtarena/pkg/arena/swiss"
	"github.com/sindarin-lang/rtarena/pkg/xerrors"
)

// maxRedirectDepth bounds the goroutine-local redirect stack, mirroring the
// fixed-depth stack used by the reference allocator hooks.
const maxRedirectDepth = 16

type redirectState struct {
	stack  [maxRedirectDepth]*Arena
	depth  int
	ptrToH *swiss.Map[uintptr, *Handle]
}

var redirectTLS = routine.NewThreadLocal[*redirectState]()

func currentRedirectState() *redirectState {
	s := redirectTLS.Get()
	if s == nil {
		s = &redirectState{}
		redirectTLS.Set(s)
	}
	return s
}

// PushRedirect registers arena as the allocation target for [Malloc],
// [Free], and [Realloc] calls made by the current goroutine. Up to
// maxRedirectDepth arenas may be nested; PushRedirect beyond that depth is
// a silent no-op, matching the soft-fail policy used elsewhere in this
// package.
func PushRedirect(a *Arena) {
	s := currentRedirectState()
	if s.depth >= maxRedirectDepth {
		return
	}
	if s.ptrToH == nil {
		s.ptrToH = swiss.NewMap[uintptr, *Handle](16)
	}
	s.stack[s.depth] = a
	s.depth++
}

// PopRedirect removes the innermost redirect arena registered by
// [PushRedirect]. Popping an empty stack is a no-op.
func PopRedirect() {
	s := currentRedirectState()
	if s.depth == 0 {
		return
	}
	s.depth--
	s.stack[s.depth] = nil
}

// CurrentRedirect returns the arena that [Malloc]/[Free]/[Realloc] would
// currently target, or nil if no redirect is active on this goroutine.
func CurrentRedirect() *Arena {
	s := currentRedirectState()
	if s.depth == 0 {
		return nil
	}
	return s.stack[s.depth-1]
}

// Malloc allocates n bytes in the current goroutine's redirect arena and
// returns a raw pointer to the start of the allocation, recording the
// ptr->handle mapping so [Free] and [Realloc] can find it again. Panics if
// no redirect arena is active, matching the contract that a caller must
// push a redirect before invoking native allocation.
func Malloc(n int) unsafe.Pointer {
	s := currentRedirectState()
	a := CurrentRedirect()
	if a == nil {
		panic(&MisuseError{Op: "Malloc", Reason: "no redirect arena active"})
	}

	h, err := a.Alloc(n)
	if err != nil {
		if oom, ok := xerrors.AsA[*OutOfMemoryError](err); ok {
			a.Log("Malloc", "out of memory allocating %d bytes in %q", oom.Requested, oom.Arena)
		}
		return nil
	}
	var p unsafe.Pointer
	if len(h.data) > 0 {
		p = unsafe.Pointer(&h.data[0])
	}
	s.ptrToH.Put(uintptr(p), h)
	return p
}

// Free marks the handle backing ptr dead, if ptr was obtained from
// [Malloc] on this goroutine's current redirect map. An unmapped pointer
// is a silent no-op, since there is no external allocator to defer to for
// memory Go's runtime already owns.
func Free(p unsafe.Pointer) {
	if p == nil {
		return
	}
	s := currentRedirectState()
	if s.ptrToH == nil {
		return
	}
	if h, ok := s.ptrToH.Get(uintptr(p)); ok {
		s.ptrToH.Delete(uintptr(p))
		h.MarkDead()
	}
}

// Realloc resizes the allocation backing ptr. Realloc(nil, n) behaves like
// Malloc(n); Realloc(ptr, 0) behaves like Free(ptr).
func Realloc(p unsafe.Pointer, n int) unsafe.Pointer {
	if p == nil {
		return Malloc(n)
	}
	if n == 0 {
		Free(p)
		return nil
	}

	s := currentRedirectState()
	a := CurrentRedirect()
	if a == nil {
		panic(&MisuseError{Op: "Realloc", Reason: "no redirect arena active"})
	}

	old, ok := s.ptrToH.Get(uintptr(p))
	if !ok {
		return Malloc(n)
	}

	nh, err := a.Realloc(old, n)
	if err != nil {
		if oom, ok := xerrors.AsA[*OutOfMemoryError](err); ok {
			a.Log("Realloc", "out of memory growing to %d bytes in %q", oom.Requested, oom.Arena)
		}
		return nil
	}
	s.ptrToH.Delete(uintptr(p))

	var np unsafe.Pointer
	if len(nh.data) > 0 {
		np = unsafe.Pointer(&nh.data[0])
	}
	s.ptrToH.Put(uintptr(np), nh)
	return np
}

// TeardownRedirect drains any remaining map entries to dead and clears the
// stack. Called by the goroutine runtime (package rtthread) before a
// spawned goroutine returns, since Go has no goroutine-exit destructor to
// hook the way the reference allocator hooks thread exit.
func TeardownRedirect() {
	s := redirectTLS.Get()
	if s == nil {
		return
	}
	if s.ptrToH != nil {
		for _, h := range s.ptrToH.Iter() {
			h.MarkDead()
		}
	}
	*s = redirectState{}
	redirectTLS.Set(nil)
}

// gcSavedRedirect stashes the calling goroutine's redirect state so GC's own
// internal allocations are not attributed to whatever arena that goroutine
// had redirected into, then clears it for the duration of the cycle.
var gcSavedRedirect = routine.NewThreadLocal[*redirectState]()

func popRedirectForGC() {
	gcSavedRedirect.Set(redirectTLS.Get())
	redirectTLS.Set(nil)
}

func restoreRedirectAfterGC() {
	redirectTLS.Set(gcSavedRedirect.Get())
	gcSavedRedirect.Set(nil)
}

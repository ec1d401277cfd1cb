// Package rtthread implements the goroutine lifecycle that generated code
// spawns against: creation, synchronization with result promotion, and
// fire-and-forget disposal, each tied to an [arena.Arena]'s lifetime.
//
// A Goroutine's arena mode decides what happens to its memory once the
// worker finishes: Default and Private goroutines get their own arena
// (child and orphan, respectively) which is condemned at Sync/Dispose time;
// Shared goroutines work directly in the caller's arena and never condemn
// anything of their own.
package rtthread

import (
	"fmt"
	"os"
	"sync"

	"github.com/timandy/routine"

	"github.com/sindarin-lang/rtarena/internal/debug"
	"github.com/sindarin-lang/rtarena/pkg/arena"
)

// Mode mirrors arena.Mode, naming how a goroutine's memory relates to its
// caller's.
type Mode = arena.Mode

const (
	Default = arena.Default
	Shared  = arena.Shared
	Private = arena.Private
)

// Goroutine is a runtime-managed unit of concurrent work associated with its
// caller's arena. The record itself is an ordinary Go heap value; it is not
// allocated in any arena.
type Goroutine struct {
	mu   sync.Mutex
	cond *sync.Cond

	id     uint64
	mode   Mode
	caller *arena.Arena
	own    *arena.Arena // nil for Shared

	result *arena.Handle
	panic  string
	hasPanic bool

	done     bool
	disposed bool
}

// currentGoroutine is a goroutine-local cell used by [Panic] to find the
// Goroutine record (if any) that should capture the calling goroutine's
// panic, mirroring the reference runtime's thread-local "current thread"
// cell.
var currentGoroutine = routine.NewThreadLocal[*Goroutine]()

// Create allocates a goroutine record associated with callerArena. For
// [Default], a fresh child arena is created under callerArena; for
// [Shared], the goroutine works directly in callerArena; for [Private], it
// gets a fresh orphan arena with no parent.
func Create(callerArena *arena.Arena, mode Mode) *Goroutine {
	g := &Goroutine{mode: mode, caller: callerArena, id: arena.AllocateID()}
	g.cond = sync.NewCond(&g.mu)

	switch mode {
	case Shared:
		g.own = callerArena
	case Private:
		g.own = arena.NewArena(nil, Default, "goroutine-private")
	default:
		g.own = arena.NewArena(callerArena, Default, "goroutine")
	}

	return g
}

// Arena returns the arena the goroutine's user function should allocate
// into.
func (g *Goroutine) Arena() *arena.Arena { return g.own }

// SetResult records h as the value [Sync] should promote back to the
// caller's arena.
func (g *Goroutine) SetResult(h *arena.Handle) {
	g.mu.Lock()
	g.result = h
	g.mu.Unlock()
}

// SignalDone marks the goroutine's work complete and wakes any goroutine
// blocked in [Sync] or [SyncAll].
func (g *Goroutine) SignalDone() {
	g.mu.Lock()
	g.done = true
	g.cond.Broadcast()
	g.mu.Unlock()
}

// Start runs wrapper on a new goroutine, with the goroutine's id and
// current-goroutine cell installed first so [arena.CurrentID] and [Panic]
// work correctly inside it. wrapper is responsible for unpacking its
// arguments, running the user function on g.Arena(), calling
// [Goroutine.SetResult], and calling [Goroutine.SignalDone] — but Start
// guarantees SignalDone is called even if wrapper panics without capturing
// it itself.
func (g *Goroutine) Start(wrapper func(*Goroutine)) {
	go func() {
		arena.SetCurrentID(g.id)
		currentGoroutine.Set(g)
		defer currentGoroutine.Set(nil)
		defer arena.TeardownRedirect()

		defer func() {
			if r := recover(); r != nil {
				g.mu.Lock()
				if !g.done {
					g.panic = fmt.Sprint(r)
					g.hasPanic = true
					g.done = true
					g.cond.Broadcast()
				}
				g.mu.Unlock()
			}
		}()

		wrapper(g)
	}()
}

// Sync blocks until g's worker signals done, then promotes its result into
// the caller's arena (invoking the result's copy callback to deep-copy any
// nested handle graph) and disposes of g. If the worker panicked, Sync
// re-raises it in the caller.
//
// Calling Sync a second time on the same Goroutine is a no-op that returns
// nil, matching this package's soft-fail policy for caller misuse.
func (g *Goroutine) Sync() *arena.Handle {
	g.mu.Lock()
	for !g.done {
		g.cond.Wait()
	}
	if g.disposed {
		g.mu.Unlock()
		return nil
	}
	result, panicMsg, hasPanic := g.result, g.panic, g.hasPanic
	g.disposed = true
	g.mu.Unlock()

	if hasPanic {
		g.teardown()
		panic(panicMsg)
	}

	var promoted *arena.Handle
	if result != nil {
		promoted, _ = arena.Promote(g.caller, result)
	}

	g.teardown()

	return promoted
}

// SyncAll blocks until every goroutine in gs has signaled done, disposing
// of each. It is meant for void-returning goroutine sets, where no result
// promotion is needed.
func SyncAll(gs []*Goroutine) {
	for _, g := range gs {
		g.Sync()
	}
}

// Dispose is the fire-and-forget path: it signals done (if not already),
// condemns g's own arena (unless Shared), and marks g disposed. Idempotent.
func (g *Goroutine) Dispose() {
	g.mu.Lock()
	if g.disposed {
		g.mu.Unlock()
		return
	}
	g.disposed = true
	g.done = true
	g.cond.Broadcast()
	g.mu.Unlock()

	g.teardown()
}

func (g *Goroutine) teardown() {
	if g.mode != Shared && g.own != nil {
		g.own.Condemn()
	}
}

// Panic records msg on the calling goroutine's Goroutine record, if one is
// registered via [Create]/[Start], and unwinds to it without continuing
// past this call. If no Goroutine is registered (this is the top-level
// goroutine), Panic prints "panic: " and msg to stderr and terminates the
// process with exit status 1.
func Panic(msg string) {
	if g := currentGoroutine.Get(); g != nil {
		g.mu.Lock()
		g.panic = msg
		g.hasPanic = true
		g.mu.Unlock()
		panic(msg)
	}

	debug.Log(nil, "panic", "%s", msg)
	fmt.Fprintf(os.Stderr, "panic: %s\n", msg)
	os.Exit(1)
}

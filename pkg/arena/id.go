package arena

import (
	"sync/atomic"

	"github.com/timandy/routine"
)

// idCounter is the process-wide source of monotonic goroutine identities.
// IDs begin at 1; 0 means "unassigned."
var idCounter atomic.Uint64

// currentID is a goroutine-local cell holding the calling goroutine's
// identity. It is lazily populated on first read, so the goroutine running
// main (which nothing ever explicitly assigns an id to) still gets one.
var currentID = routine.NewThreadLocal[uint64]()

// AllocateID hands out a fresh, process-wide unique id.
func AllocateID() uint64 {
	return idCounter.Add(1)
}

// CurrentID returns the calling goroutine's id, lazily allocating one on
// first use.
func CurrentID() uint64 {
	if id := currentID.Get(); id != 0 {
		return id
	}
	id := AllocateID()
	currentID.Set(id)
	return id
}

// SetCurrentID installs id as the calling goroutine's identity. Used by the
// goroutine runtime to assign an id to a worker before its user function
// runs.
func SetCurrentID(id uint64) {
	currentID.Set(id)
}

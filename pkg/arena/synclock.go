package arena

import (
	"fmt"
	"os"
	"sync"

	"github.com/sindarin-lang/rtarena/pkg/arena/swiss"
)

// lockTableCapacity bounds the sync-lock table. Lock becomes a no-op past
// this many distinct addresses (see Open Question Q1 in the design notes:
// soft-failure was chosen over aborting the program).
const lockTableCapacity = 4096

var (
	lockTableMu sync.Mutex
	lockTable   *swiss.Map[uintptr, *sync.Mutex]
)

func lockTableFor() *swiss.Map[uintptr, *sync.Mutex] {
	lockTableMu.Lock()
	defer lockTableMu.Unlock()
	if lockTable == nil {
		lockTable = swiss.NewMap[uintptr, *sync.Mutex](lockTableCapacity / 4)
	}
	return lockTable
}

// Lock acquires the mutex associated with addr, creating one if this is the
// first time addr has been locked. Used to implement source-level
// `lock(var) { ... }` blocks over arbitrary addresses.
//
// Once the table's fixed capacity is exhausted, Lock becomes a no-op,
// writes an *LockTableFullError to stderr and returns it; callers that ignore the error get the
// same non-blocking behavior the distilled design calls for.
func Lock(addr uintptr) error {
	t := lockTableFor()
	lockTableMu.Lock()
	m, ok := t.Get(addr)
	if !ok {
		if t.Count() >= lockTableCapacity {
			lockTableMu.Unlock()
			err := &LockTableFullError{Capacity: lockTableCapacity}
			fmt.Fprintln(os.Stderr, err)
			return err
		}
		m = &sync.Mutex{}
		t.Put(addr, m)
	}
	lockTableMu.Unlock()

	m.Lock()
	return nil
}

// Unlock releases the mutex associated with addr. Unlocking an address
// that was never locked (or whose entry the table refused to create) is a
// no-op.
func Unlock(addr uintptr) {
	t := lockTableFor()
	lockTableMu.Lock()
	m, ok := t.Get(addr)
	lockTableMu.Unlock()

	if ok {
		m.Unlock()
	}
}

// Package sync provides the interrupt-masking critical section used while
// the kernel bootstraps itself.
package sync

import (
	"sync/atomic"

	"github.com/Newlifer/metta/kernel"
	"github.com/Newlifer/metta/kernel/cpu"
	"github.com/Newlifer/metta/kernel/kfmt"
)

var (
	// nesting counts the active EnterCriticalSection calls. Interrupts are
	// disabled iff nesting is non-zero. It is shared by the whole kernel
	// and lives for as long as the kernel does.
	//
	// The counter only protects against re-entrant interrupt handlers on
	// a single CPU. SMP support needs a per-CPU counter or a real lock.
	nesting uint32

	// The following functions are replaced by tests.
	disableInterruptsFn = cpu.DisableInterrupts
	enableInterruptsFn  = cpu.EnableInterrupts
	panicFn             = kfmt.Panic

	errUnbalancedCriticalSection = &kernel.Error{Module: "sync", Message: "unbalanced critical section"}
)

// EnterCriticalSection disables interrupts if this is the outermost critical
// section and increments the nesting depth. Calls may be nested; each one
// must be paired with a call to LeaveCriticalSection.
func EnterCriticalSection() {
	if atomic.LoadUint32(&nesting) == 0 {
		disableInterruptsFn()
	}
	atomic.AddUint32(&nesting, 1)
}

// LeaveCriticalSection decrements the nesting depth and re-enables
// interrupts once the outermost critical section is left. Calling it
// without a matching EnterCriticalSection is a fatal error.
func LeaveCriticalSection() {
	if atomic.LoadUint32(&nesting) == 0 {
		panicFn(errUnbalancedCriticalSection)
		return
	}

	if atomic.AddUint32(&nesting, ^uint32(0)) == 0 {
		enableInterruptsFn()
	}
}

// CriticalSectionDepth returns the current nesting depth.
func CriticalSectionDepth() uint32 {
	return atomic.LoadUint32(&nesting)
}

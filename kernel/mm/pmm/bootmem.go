// Package pmm implements the physical page allocator used while the kernel
// bootstraps paging.
package pmm

import (
	"github.com/Newlifer/metta/kernel"
	"github.com/Newlifer/metta/kernel/mm"
)

var (
	// ErrBootAllocOutOfMemory is returned by AllocFrame when the cursor
	// has reached the top of the address space.
	ErrBootAllocOutOfMemory = &kernel.Error{Module: "boot_mem_alloc", Message: "out of memory"}
)

// BootAllocator is a bump allocator over physically contiguous memory. It
// hands out pages by advancing a cursor and never reuses or frees them;
// once the kernel's memory manager is up, every page below AllocedStart is
// considered in use.
//
// BootAllocator is not re-entrant. Callers that may race with interrupt
// handlers must hold a critical section while allocating.
type BootAllocator struct {
	// allocedStart is the page-aligned physical address returned by the
	// next allocation.
	allocedStart uintptr

	// exhausted is set once AllocFrame has returned the topmost page.
	exhausted bool
}

// Init positions the allocation cursor at start, rounded up to a page.
func (alloc *BootAllocator) Init(start uintptr) {
	alloc.allocedStart = mm.AlignUp(start)
	alloc.exhausted = false
}

// AllocNextPage returns the physical address of the next free page and
// advances the cursor past it.
func (alloc *BootAllocator) AllocNextPage() uintptr {
	addr := alloc.allocedStart
	alloc.allocedStart += mm.PageSize
	return addr
}

// AllocFrame is the frame-typed counterpart of AllocNextPage. Once the
// last page of the address space has been handed out, it fails instead of
// wrapping around.
func (alloc *BootAllocator) AllocFrame() (mm.Frame, *kernel.Error) {
	if alloc.exhausted {
		return mm.InvalidFrame, ErrBootAllocOutOfMemory
	}

	addr := alloc.AllocNextPage()
	alloc.exhausted = alloc.allocedStart < addr
	return mm.FrameFromAddress(addr), nil
}

// AdjustAllocedStart moves the cursor forward to newStart (rounded up to a
// page) so that memory already claimed by someone else, such as the loaded
// kernel image, is never handed out. The cursor never moves backwards.
func (alloc *BootAllocator) AdjustAllocedStart(newStart uintptr) {
	if newStart > alloc.allocedStart {
		alloc.allocedStart = newStart
	}
	alloc.allocedStart = mm.AlignUp(alloc.allocedStart)
}

// AllocedStart returns the address of the next page to be allocated.
func (alloc *BootAllocator) AllocedStart() uintptr {
	return alloc.allocedStart
}

// Package vmm builds the page tables that the kernel uses while it
// bootstraps paging.
package vmm

import (
	"unsafe"

	"github.com/Newlifer/metta/kernel"
	"github.com/Newlifer/metta/kernel/cpu"
	"github.com/Newlifer/metta/kernel/kfmt"
	"github.com/Newlifer/metta/kernel/mm"
)

const (
	// LowHalfLimit is the exclusive upper bound of the virtual addresses
	// served by the low page table.
	LowHalfLimit = uintptr(256 * mm.Mb)

	// HighHalfStart is the exclusive lower bound of the virtual addresses
	// served by the high page table. Addresses in
	// [LowHalfLimit, HighHalfStart] cannot be mapped during bootstrap.
	HighHalfStart = uintptr(768 * mm.Mb)

	// pdeShift converts a virtual address to a page directory slot; each
	// slot covers 4M.
	pdeShift = 22

	// highTableSlot is the page directory slot where the high table is
	// installed.
	highTableSlot = HighHalfStart >> pdeShift

	// tableCoverage is the size of the virtual range covered by a single
	// page table.
	tableCoverage = entriesPerTable * mm.PageSize

	// maxPhysAddr is the highest physical address a 32-bit entry can hold.
	maxPhysAddr = uint64(0xffffffff)
)

var (
	// tablePtrFn returns a pointer to the page table stored at the supplied
	// physical address. The bootstrap tables are identity-mapped so the
	// physical address can be dereferenced both before and after paging
	// is enabled. Tests replace it to back tables with Go memory.
	tablePtrFn = func(physAddr uintptr) *pageTable {
		return (*pageTable)(unsafe.Pointer(physAddr))
	}

	// The following functions are replaced by tests.
	switchPDTFn    = cpu.SwitchPDT
	enablePagingFn = cpu.EnablePaging
	panicFn        = kfmt.Panic

	errInvalidVirtAddr = &kernel.Error{Module: "boot_vmm", Message: "virtual address outside the bootstrap halves"}
	errUncoveredAddr   = &kernel.Error{Module: "boot_vmm", Message: "virtual address not covered by the bootstrap page tables"}
	errInvalidPhysAddr = &kernel.Error{Module: "boot_vmm", Message: "physical address does not fit in a page table entry"}
)

// PageAllocator hands out physical frames for BootPageTables.
type PageAllocator interface {
	// AllocFrame reserves a fresh physical frame.
	AllocFrame() (mm.Frame, *kernel.Error)
}

// MappingVisitor is invoked by VisitMappings for each contiguous run of
// mapped pages. Returning false stops the walk.
type MappingVisitor func(virtAddr, physAddr uintptr, size mm.Size) bool

// BootPageTables owns the three page tables used to switch the CPU into
// paged mode: a page directory, a table for the low half of the virtual
// address space (installed at directory slot 0) and a table for the high
// half (installed at the slot of HighHalfStart). All three pages are
// identity-mapped so they stay reachable once paging is enabled.
//
// None of the methods are re-entrant; callers must hold a critical section
// if interrupt handlers may also touch the tables or the allocator.
type BootPageTables struct {
	alloc PageAllocator

	pageDir   uintptr
	lowTable  uintptr
	highTable uintptr
}

// Setup allocates and clears the page directory, low table and high table
// (in that order), identity-maps them and marks virtual page 0 as invalid
// so that nil pointer dereferences fault. Running out of frames is fatal.
func (bt *BootPageTables) Setup(alloc PageAllocator) {
	bt.alloc = alloc
	for _, table := range [...]*uintptr{&bt.pageDir, &bt.lowTable, &bt.highTable} {
		paddr, ok := bt.allocFrame()
		if !ok {
			return
		}
		*table = paddr
	}

	for _, table := range [...]uintptr{bt.pageDir, bt.lowTable, bt.highTable} {
		*tablePtrFn(table) = pageTable{}
	}

	bt.MappingEnter(bt.pageDir, bt.pageDir)
	bt.MappingEnter(bt.lowTable, bt.lowTable)
	bt.MappingEnter(bt.highTable, bt.highTable)

	tablePtrFn(bt.lowTable)[0] = 0
}

// StartPaging installs the low and high tables in the page directory, loads
// the directory into the CPU and enables paged addressing. There is no way
// back: every memory access after this call is translated and touching an
// unmapped address faults.
func (bt *BootPageTables) StartPaging() {
	dir := tablePtrFn(bt.pageDir)
	setEntry(&dir[0], bt.lowTable)
	setEntry(&dir[highTableSlot], bt.highTable)

	switchPDTFn(bt.pageDir)
	enablePagingFn()

	kfmt.Printf("[boot_vmm] enabled paging\n")
}

// PageDirectory returns the physical address of the page directory.
func (bt *BootPageTables) PageDirectory() uintptr { return bt.pageDir }

// LowTable returns the physical address of the low page table.
func (bt *BootPageTables) LowTable() uintptr { return bt.lowTable }

// HighTable returns the physical address of the high page table.
func (bt *BootPageTables) HighTable() uintptr { return bt.highTable }

// SelectPageTable returns the physical address of the table responsible for
// vaddr. Addresses between LowHalfLimit and HighHalfStart (inclusive) are a
// fatal error; in that case SelectPageTable returns 0 if the fatal handler
// returns.
func (bt *BootPageTables) SelectPageTable(vaddr uintptr) uintptr {
	table, _ := bt.selectPageTable(vaddr)
	return table
}

// MappingEnter maps the page containing vaddr to the physical page at
// paddr with present and writable permissions.
func (bt *BootPageTables) MappingEnter(vaddr, paddr uintptr) {
	pte := bt.entryFor(vaddr)
	if pte == nil {
		return
	}

	if uint64(paddr) > maxPhysAddr {
		kfmt.Printf("[boot_vmm] cannot map vaddr 0x%x to paddr 0x%x\n", vaddr, paddr)
		panicFn(errInvalidPhysAddr)
		return
	}

	setEntry(pte, paddr)
}

// MappingEntered returns true if the page containing vaddr is already
// mapped.
func (bt *BootPageTables) MappingEntered(vaddr uintptr) bool {
	pte := bt.entryFor(vaddr)
	return pte != nil && *pte != 0
}

// AllocPage allocates the next physical page and maps it at vaddr. It
// returns the physical address of the allocated page or 0 if the allocator
// is exhausted.
func (bt *BootPageTables) AllocPage(vaddr uintptr) uintptr {
	paddr, ok := bt.allocFrame()
	if !ok {
		return 0
	}

	bt.MappingEnter(vaddr, paddr)
	return paddr
}

// VisitMappings reports every present mapping in the low and then the high
// table, coalescing pages that are contiguous both virtually and
// physically into a single run.
func (bt *BootPageTables) VisitMappings(visitor MappingVisitor) {
	if bt.pageDir == 0 {
		return
	}

	if visitTable(tablePtrFn(bt.lowTable), 0, visitor) {
		visitTable(tablePtrFn(bt.highTable), HighHalfStart, visitor)
	}
}

// allocFrame returns the physical address of a fresh frame. An allocator
// error is fatal.
func (bt *BootPageTables) allocFrame() (uintptr, bool) {
	frame, err := bt.alloc.AllocFrame()
	if err != nil {
		kfmt.Printf("[boot_vmm] unable to allocate a page table frame\n")
		panicFn(err)
		return 0, false
	}

	return frame.Address(), true
}

// selectPageTable returns the physical address of the table serving vaddr
// and the first virtual address covered by that table.
func (bt *BootPageTables) selectPageTable(vaddr uintptr) (uintptr, uintptr) {
	switch {
	case vaddr < LowHalfLimit:
		return bt.lowTable, 0
	case vaddr > HighHalfStart:
		return bt.highTable, HighHalfStart
	}

	kfmt.Printf("[boot_vmm] invalid vaddr 0x%x in select_pagetable\n", vaddr)
	panicFn(errInvalidVirtAddr)
	return 0, 0
}

// entryFor returns a pointer to the table entry for vaddr or nil if vaddr
// cannot be mapped by the bootstrap tables.
func (bt *BootPageTables) entryFor(vaddr uintptr) *pageTableEntry {
	table, base := bt.selectPageTable(vaddr)
	if table == 0 {
		return nil
	}

	if vaddr-base >= tableCoverage {
		kfmt.Printf("[boot_vmm] vaddr 0x%x is beyond the 4M covered by its table\n", vaddr)
		panicFn(errUncoveredAddr)
		return nil
	}

	return &tablePtrFn(table)[(vaddr-base)>>mm.PageShift]
}

// setEntry points pte to the page at physAddr with present and writable
// permissions.
func setEntry(pte *pageTableEntry, physAddr uintptr) {
	*pte = 0
	pte.SetFrame(mm.FrameFromAddress(physAddr))
	pte.SetFlags(FlagPresent | FlagRW)
}

func visitTable(table *pageTable, base uintptr, visitor MappingVisitor) bool {
	var runVirt, runPhys, runLen uintptr

	for index, pte := range table {
		present := pte.HasFlags(FlagPresent)
		phys := pte.Frame().Address()

		if present && runLen != 0 && runPhys+runLen == phys {
			runLen += mm.PageSize
			continue
		}

		if runLen != 0 {
			if !visitor(runVirt, runPhys, mm.Size(runLen)) {
				return false
			}
			runLen = 0
		}

		if present {
			runVirt, runPhys, runLen = base+uintptr(index)<<mm.PageShift, phys, mm.PageSize
		}
	}

	if runLen != 0 {
		return visitor(runVirt, runPhys, mm.Size(runLen))
	}

	return true
}

package vmm

import "github.com/Newlifer/metta/kernel/mm"

// PageTableEntryFlag describes a flag that can be applied to a page table
// or page directory entry.
type PageTableEntryFlag uint32

const (
	// FlagPresent is set when the entry points to a valid page or table.
	FlagPresent PageTableEntryFlag = 1 << iota

	// FlagRW allows writes to the page(s) covered by the entry.
	FlagRW
)

const (
	// ptePhysPageMask selects the frame address bits of an entry.
	ptePhysPageMask = pageTableEntry(0xfffff000)

	// entriesPerTable is the number of 4-byte entries in a 4K page table.
	entriesPerTable = 1024
)

// pageTableEntry is a 32-bit x86 page directory or page table entry. Bits
// 12-31 hold the physical frame address and bits 0-11 hold flags.
type pageTableEntry uint32

// pageTable is the in-memory layout of a page directory or page table.
type pageTable [entriesPerTable]pageTableEntry

// HasFlags returns true if this entry has all the input flags set.
func (pte pageTableEntry) HasFlags(flags PageTableEntryFlag) bool {
	return (uint32(pte) & uint32(flags)) == uint32(flags)
}

// SetFlags sets the input list of flags to the page table entry.
func (pte *pageTableEntry) SetFlags(flags PageTableEntryFlag) {
	*pte = pageTableEntry(uint32(*pte) | uint32(flags))
}

// Frame returns the physical page frame that this entry points to.
func (pte pageTableEntry) Frame() mm.Frame {
	return mm.FrameFromAddress(uintptr(pte & ptePhysPageMask))
}

// SetFrame updates the entry to point to the given physical frame.
func (pte *pageTableEntry) SetFrame(frame mm.Frame) {
	*pte = (*pte &^ ptePhysPageMask) | (pageTableEntry(frame.Address()) & ptePhysPageMask)
}

// Package multiboot reads the information block that a multiboot2 compliant
// boot loader passes to the kernel.
package multiboot

import "unsafe"

var infoData uintptr

type tagType uint32

// nolint
const (
	tagMbSectionEnd tagType = iota
	tagBootCmdLine
	tagBootLoaderName
	tagModules
	tagBasicMemoryInfo
	tagBiosBootDevice
	tagMemoryMap
)

// info describes the multiboot info section header.
type info struct {
	// Total size of multiboot info section.
	totalSize uint32

	// Always set to zero; reserved for future use
	reserved uint32
}

// tagHeader describes the header the preceedes each tag.
type tagHeader struct {
	// The type of the tag
	tagType tagType

	// The size of the tag including the header but *not* including any
	// padding. According to the multiboot2 specification, each tag starts at a 8-byte aligned
	// address.
	size uint32
}

// mmapHeader describes the header for a memory map specification.
type mmapHeader struct {
	// The size of each entry.
	entrySize uint32

	// The version of the entries that follow.
	entryVersion uint32
}

// moduleHeader describes the fixed part of a module tag. It is followed by
// the NULL-terminated module command line.
type moduleHeader struct {
	modStart uint32
	modEnd   uint32
}

// MemoryEntryType defines the type of a MemoryMapEntry.
type MemoryEntryType uint32

const (
	// MemAvailable indicates that the memory region is available for use.
	MemAvailable MemoryEntryType = iota + 1

	// MemReserved indicates that the memory region is not available for use.
	MemReserved

	// MemAcpiReclaimable indicates a memory region that holds ACPI info that
	// can be reused by the OS.
	MemAcpiReclaimable

	// MemNvs indicates memory that must be preserved when hibernating.
	MemNvs

	// Any value >= memUnknown will be mapped to MemReserved.
	memUnknown
)

// MemoryMapEntry describes a memory region entry, namely its physical address,
// its length and its type.
type MemoryMapEntry struct {
	// The physical address for this memory region.
	PhysAddress uint64

	// The length of the memory region.
	Length uint64

	// The type of this entry.
	Type MemoryEntryType
}

// MemRegionVisitor defies a visitor function that gets invoked by VisitMemRegions
// for each memory region provided by the boot loader. The visitor must return true
// to continue or false to abort the scan.
type MemRegionVisitor func(*MemoryMapEntry) bool

// ModuleEntry describes a module loaded by the boot loader.
type ModuleEntry struct {
	// Physical address range [Start, End) occupied by the module.
	Start, End uintptr

	// The module command line. It points into the multiboot info block.
	CmdLine string
}

// ModuleVisitor is invoked by VisitModules for each loaded module. The
// visitor must return true to continue or false to abort the scan.
type ModuleVisitor func(*ModuleEntry) bool

// SetInfoPtr updates the internal multiboot information pointer to the given
// value. This function must be invoked before invoking any other function
// exported by this package.
func SetInfoPtr(ptr uintptr) {
	infoData = ptr
}

// InfoSize returns the total size of the multiboot info block, including
// its header.
func InfoSize() uint32 {
	if infoData == 0 {
		return 0
	}
	return (*info)(unsafe.Pointer(infoData)).totalSize
}

// VisitMemRegions will invoke the supplied visitor for each memory region that
// is defined by the multiboot info data that we received from the bootloader.
func VisitMemRegions(visitor MemRegionVisitor) {
	curPtr, size := findTagByType(tagMemoryMap)
	if size == 0 {
		return
	}

	// curPtr points to the memory map header (2 dwords long)
	ptrMapHeader := (*mmapHeader)(unsafe.Pointer(curPtr))
	endPtr := curPtr + uintptr(size)
	curPtr += 8

	var entry MemoryMapEntry
	for ; curPtr < endPtr; curPtr += uintptr(ptrMapHeader.entrySize) {
		entry = *(*MemoryMapEntry)(unsafe.Pointer(curPtr))

		// Mark unknown entry types as reserved
		if entry.Type == 0 || entry.Type >= memUnknown {
			entry.Type = MemReserved
		}

		if !visitor(&entry) {
			return
		}
	}
}

// VisitModules invokes the supplied visitor for each module loaded by the
// boot loader, in the order the modules appear in the info block.
func VisitModules(visitor ModuleVisitor) {
	var entry ModuleEntry

	visitTags(tagModules, func(curPtr uintptr, size uint32) bool {
		if size < uint32(unsafe.Sizeof(moduleHeader{})) {
			return true
		}

		hdr := (*moduleHeader)(unsafe.Pointer(curPtr))
		entry.Start = uintptr(hdr.modStart)
		entry.End = uintptr(hdr.modEnd)
		entry.CmdLine = cString(curPtr+8, size-8)

		return visitor(&entry)
	})
}

// CmdLine returns the kernel command line passed by the boot loader or an
// empty string if none was supplied. The returned string points into the
// multiboot info block.
func CmdLine() string {
	curPtr, size := findTagByType(tagBootCmdLine)
	return cString(curPtr, size)
}

// BootLoaderName returns the name of the boot loader that loaded the kernel.
func BootLoaderName() string {
	curPtr, size := findTagByType(tagBootLoaderName)
	return cString(curPtr, size)
}

// cString returns a string view over the NULL-terminated string stored in
// the maxLen bytes at ptr.
func cString(ptr uintptr, maxLen uint32) string {
	if ptr == 0 || maxLen == 0 {
		return ""
	}

	var n uint32
	for ; n < maxLen && *(*byte)(unsafe.Pointer(ptr + uintptr(n))) != 0; n++ {
	}

	return unsafe.String((*byte)(unsafe.Pointer(ptr)), int(n))
}

// findTagByType scans the multiboot info data looking for the first tag of
// the specified type. It returns a pointer to the tag contents start offset
// and the content length exluding the tag header.
//
// If the tag is not present in the multiboot info, findTagSection will return
// back (0,0).
func findTagByType(tagType tagType) (uintptr, uint32) {
	var foundPtr uintptr
	var foundSize uint32

	visitTags(tagType, func(curPtr uintptr, size uint32) bool {
		foundPtr, foundSize = curPtr, size
		return false
	})

	return foundPtr, foundSize
}

// visitTags invokes fn with the contents offset and length of each tag of
// the given type until fn returns false.
func visitTags(tagType tagType, fn func(uintptr, uint32) bool) {
	if infoData == 0 {
		return
	}

	var ptrTagHeader *tagHeader

	curPtr := infoData + 8
	for ptrTagHeader = (*tagHeader)(unsafe.Pointer(curPtr)); ptrTagHeader.tagType != tagMbSectionEnd; ptrTagHeader = (*tagHeader)(unsafe.Pointer(curPtr)) {
		if ptrTagHeader.tagType == tagType && !fn(curPtr+8, ptrTagHeader.size-8) {
			return
		}

		// Tags are aligned at 8-byte aligned addresses
		curPtr += uintptr(int32(ptrTagHeader.size+7) & ^7)
	}
}

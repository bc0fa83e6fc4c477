// Package mm contains the page and frame primitives shared by the bootstrap
// memory code.
package mm

// Frame describes a physical memory page index.
type Frame uintptr

const (
	// InvalidFrame is returned by page allocators when they fail to
	// reserve the requested frame.
	InvalidFrame = ^Frame(0)
)

// Valid returns true if this is a valid frame.
func (f Frame) Valid() bool {
	return f != InvalidFrame
}

// Address returns the physical memory address pointed to by this Frame.
func (f Frame) Address() uintptr {
	return uintptr(f) << PageShift
}

// FrameFromAddress returns the Frame that contains physAddr.
func FrameFromAddress(physAddr uintptr) Frame {
	return Frame((physAddr &^ (PageSize - 1)) >> PageShift)
}

// AlignUp rounds addr up to the next page boundary. Page-aligned addresses
// are returned unchanged.
func AlignUp(addr uintptr) uintptr {
	return (addr + PageSize - 1) &^ (PageSize - 1)
}

// AlignDown rounds addr down to the page boundary that contains it.
func AlignDown(addr uintptr) uintptr {
	return addr &^ (PageSize - 1)
}

// IsAligned returns true if addr is a multiple of PageSize.
func IsAligned(addr uintptr) bool {
	return addr&(PageSize-1) == 0
}

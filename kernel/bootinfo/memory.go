package bootinfo

import (
	"github.com/Newlifer/metta/kernel"
	"github.com/Newlifer/metta/kernel/mm"
)

// highMemStart is the lowest address returned by FindHighMemRangeOfAtLeast.
// Memory below it holds the real-mode structures and the bootinfo page.
const highMemStart = uint64(1 * mm.Mb)

// ErrNoCoveringEntry is returned by UseMemory when no single free memory
// map entry contains the requested range.
var ErrNoCoveringEntry = &kernel.Error{Module: "bootinfo", Message: "no free memory map entry covers the requested range"}

// FindTopMemoryAddress returns the end address of the highest free memory
// region or 0 if the page records no free memory.
func (p *Page) FindTopMemoryAddress() uint64 {
	var top uint64
	for it := p.MmapBegin(); ; {
		rec, ok := it.Next()
		if !ok {
			return top
		}
		if rec.Type() == MemFree && rec.End() > top {
			top = rec.End()
		}
	}
}

// FindHighMemRangeOfAtLeast returns the page-aligned start of the first
// free range of at least size bytes located above the first megabyte. It
// returns 0 if no free region is large enough.
func (p *Page) FindHighMemRangeOfAtLeast(size uint64) uint64 {
	const pageMask = uint64(mm.PageSize - 1)

	for it := p.MmapBegin(); ; {
		rec, ok := it.Next()
		if !ok {
			return 0
		}
		if rec.Type() != MemFree {
			continue
		}

		start := rec.Start()
		if start < highMemStart {
			start = highMemStart
		}
		start = (start + pageMask) &^ pageMask

		if end := rec.End(); start < end && end-start >= size {
			return start
		}
	}
}

// UseMemory removes [start, start+size) from the free memory recorded in
// the page. The range must lie within a single free entry, which is
// updated in place:
//   - a range matching the whole entry turns it into MemUsed
//   - a range at either edge of the entry shrinks it
//   - a range in the middle shrinks the entry to the part before the range
//     and appends a new free entry for the part after it
//
// The used range itself is only recorded in the exact match case. Records
// cannot be deleted from the page, so a fully used entry is retyped rather
// than dropped. The other cases never record the used range because a used
// record in the middle of an entry would cost a second extra record.
// Consumers must treat any address not covered by a MemFree entry as
// unavailable.
//
// On failure the page is left unmodified.
func (p *Page) UseMemory(start, size uint64) *kernel.Error {
	if !p.Valid() {
		return ErrInvalidPage
	}

	end := start + size
	if size == 0 || end < start {
		return ErrNoCoveringEntry
	}

	for it := p.MmapBegin(); ; {
		rec, ok := it.Next()
		if !ok {
			return ErrNoCoveringEntry
		}
		if rec.Type() != MemFree || start < rec.Start() || end > rec.End() {
			continue
		}

		entryStart, entryEnd := rec.Start(), rec.End()
		switch {
		case start == entryStart && end == entryEnd:
			rec.SetType(MemUsed)
		case start == entryStart:
			rec.Set(MemoryMapEntry{Start: end, Size: entryEnd - end, Type: MemFree})
		case end == entryEnd:
			rec.Set(MemoryMapEntry{Start: entryStart, Size: start - entryStart, Type: MemFree})
		default:
			if p.WillOverflow(mmapRecordSize) {
				return ErrNoSpace
			}
			rec.Set(MemoryMapEntry{Start: entryStart, Size: start - entryStart, Type: MemFree})
			return p.AppendMmap(MemoryMapEntry{Start: end, Size: entryEnd - end, Type: MemFree})
		}

		return nil
	}
}

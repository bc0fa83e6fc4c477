package bootinfo

import "encoding/binary"

// cursor walks the records of a single family. It skips records belonging
// to other families using the length stored in each record frame.
type cursor struct {
	page *Page
	tag  recordTag

	// off is the arena offset of the current record; it equals end once
	// the cursor is exhausted.
	off, end int
}

func (p *Page) begin(tag recordTag) cursor {
	if !p.Valid() {
		return cursor{page: p, tag: tag}
	}

	c := cursor{page: p, tag: tag, off: headerSize, end: p.Size()}
	c.seek()
	return c
}

func (p *Page) end(tag recordTag) cursor {
	c := cursor{page: p, tag: tag}
	if p.Valid() {
		c.off, c.end = p.Size(), p.Size()
	}
	return c
}

// seek advances off until it points at a record of the cursor's family or
// reaches the end of the arena. A malformed frame terminates the walk.
func (c *cursor) seek() {
	for c.off < c.end {
		tag, size := c.frame()
		if size < frameSize || c.off+size > c.end {
			c.off = c.end
			return
		}

		if tag == c.tag {
			return
		}
		c.off += size
	}
}

func (c *cursor) frame() (recordTag, int) {
	if c.off+frameSize > c.end {
		return 0, 0
	}
	record := c.page.buf[c.off:]
	return recordTag(binary.LittleEndian.Uint16(record[0:])), int(binary.LittleEndian.Uint16(record[2:]))
}

// next returns the payload of the current record and moves the cursor to
// the next record of the same family.
func (c *cursor) next() ([]byte, bool) {
	if c.off >= c.end {
		return nil, false
	}

	_, size := c.frame()
	payload := c.page.buf[c.off+frameSize : c.off+size]

	c.off += size
	c.seek()
	return payload, true
}

// MmapIterator is a forward-only cursor over the memory map entries of a
// page.
type MmapIterator struct {
	c cursor
}

// MmapBegin returns an iterator positioned at the first memory map entry.
func (p *Page) MmapBegin() MmapIterator { return MmapIterator{p.begin(tagMmap)} }

// MmapEnd returns an iterator positioned past the last memory map entry.
func (p *Page) MmapEnd() MmapIterator { return MmapIterator{p.end(tagMmap)} }

// Next returns the current entry and advances the iterator. It returns
// false once the iterator is exhausted.
func (it *MmapIterator) Next() (MemoryMapRecord, bool) {
	payload, ok := it.c.next()
	if !ok || len(payload) < mmapRecordSize-frameSize {
		return MemoryMapRecord{}, false
	}
	return MemoryMapRecord{payload}, true
}

// Equal returns true if both iterators point at the same position.
func (it MmapIterator) Equal(other MmapIterator) bool { return it.c.off == other.c.off }

// VmapIterator is a forward-only cursor over the virtual mappings of a
// page.
type VmapIterator struct {
	c cursor
}

// VmapBegin returns an iterator positioned at the first mapping.
func (p *Page) VmapBegin() VmapIterator { return VmapIterator{p.begin(tagVmap)} }

// VmapEnd returns an iterator positioned past the last mapping.
func (p *Page) VmapEnd() VmapIterator { return VmapIterator{p.end(tagVmap)} }

// Next returns the current mapping and advances the iterator.
func (it *VmapIterator) Next() (Mapping, bool) {
	payload, ok := it.c.next()
	if !ok || len(payload) < vmapRecordSize-frameSize {
		return Mapping{}, false
	}

	return Mapping{
		VirtStart: binary.LittleEndian.Uint64(payload[0:]),
		PhysStart: binary.LittleEndian.Uint64(payload[8:]),
		Size:      binary.LittleEndian.Uint64(payload[16:]),
	}, true
}

// Equal returns true if both iterators point at the same position.
func (it VmapIterator) Equal(other VmapIterator) bool { return it.c.off == other.c.off }

// ModuleIterator is a forward-only cursor over the modules of a page.
type ModuleIterator struct {
	c cursor
}

// ModuleBegin returns an iterator positioned at the first module.
func (p *Page) ModuleBegin() ModuleIterator { return ModuleIterator{p.begin(tagModule)} }

// ModuleEnd returns an iterator positioned past the last module.
func (p *Page) ModuleEnd() ModuleIterator { return ModuleIterator{p.end(tagModule)} }

// Next returns the current module and advances the iterator.
func (it *ModuleIterator) Next() (Module, bool) {
	payload, ok := it.c.next()
	if !ok || len(payload) < moduleHeaderSize-frameSize+1 {
		return Module{}, false
	}

	return Module{
		Start: binary.LittleEndian.Uint64(payload[0:]),
		End:   binary.LittleEndian.Uint64(payload[8:]),
		Name:  bytesToString(payload[16 : len(payload)-1]),
	}, true
}

// Equal returns true if both iterators point at the same position.
func (it ModuleIterator) Equal(other ModuleIterator) bool { return it.c.off == other.c.off }

// Module returns the module with the given sequence number.
func (p *Page) Module(number uint32) (Module, bool) {
	it := p.ModuleBegin()
	for n := uint32(0); ; n++ {
		mod, ok := it.Next()
		if !ok {
			return Module{}, false
		}
		if n == number {
			return mod, true
		}
	}
}

// ModuleCount returns the number of modules stored in the page.
func (p *Page) ModuleCount() uint32 {
	var count uint32
	for it := p.ModuleBegin(); ; count++ {
		if _, ok := it.Next(); !ok {
			return count
		}
	}
}

// CmdLine returns the kernel command line as a view over the page
// contents. The second result is false if no command line was recorded.
func (p *Page) CmdLine() (string, bool) {
	c := p.begin(tagCmdLine)
	payload, ok := c.next()
	if !ok || len(payload) == 0 {
		return "", false
	}
	return bytesToString(payload[:len(payload)-1]), true
}

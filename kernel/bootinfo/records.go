package bootinfo

import (
	"encoding/binary"

	"github.com/Newlifer/metta/kernel"
	"github.com/Newlifer/metta/kernel/mm"
)

// recordTag identifies the family a record belongs to.
type recordTag uint16

const (
	tagMmap recordTag = iota + 1
	tagVmap
	tagModule
	tagCmdLine
)

const (
	// frameSize is the size of the tag and length fields preceding every
	// record payload.
	frameSize = 4

	mmapRecordSize   = frameSize + 20
	vmapRecordSize   = frameSize + 24
	moduleHeaderSize = frameSize + 16

	// maxRecordSize is the largest length representable in a record frame.
	maxRecordSize = 0xffff
)

var (
	// ErrCmdLineExists is returned when a command line is appended to a
	// page that already holds one.
	ErrCmdLineExists = &kernel.Error{Module: "bootinfo", Message: "command line already recorded"}

	// ErrModuleUnaligned is returned when a module does not start at a
	// page boundary.
	ErrModuleUnaligned = &kernel.Error{Module: "bootinfo", Message: "module start address is not page aligned"}

	// ErrModuleRange is returned when a module ends before it starts.
	ErrModuleRange = &kernel.Error{Module: "bootinfo", Message: "module end address precedes its start address"}

	// ErrModuleOverlap is returned when a module starts below the end of the
	// previously appended module.
	ErrModuleOverlap = &kernel.Error{Module: "bootinfo", Message: "module overlaps a previously recorded module"}

	// ErrModuleNumber is returned by AppendModuleNumber when modules are not
	// appended in sequence.
	ErrModuleNumber = &kernel.Error{Module: "bootinfo", Message: "module number out of sequence"}
)

// MemoryType describes the state of a physical memory region.
type MemoryType uint32

const (
	// MemFree marks memory available for use by the kernel.
	MemFree MemoryType = iota + 1

	// MemReserved marks memory that must not be used.
	MemReserved

	// MemACPIReclaimable marks memory holding ACPI tables that can be
	// reused once they have been parsed.
	MemACPIReclaimable

	// MemNVS marks memory that must be preserved across sleep states.
	MemNVS

	// MemUsed marks free memory that has since been claimed.
	MemUsed
)

var memoryTypeNames = [...]string{
	"unknown",
	"available",
	"reserved",
	"ACPI (reclaimable)",
	"NVS",
	"used",
}

// String implements fmt.Stringer for MemoryType.
func (t MemoryType) String() string {
	if int(t) >= len(memoryTypeNames) {
		return memoryTypeNames[0]
	}
	return memoryTypeNames[t]
}

// MemoryMapEntry describes a physical memory region.
type MemoryMapEntry struct {
	Start uint64
	Size  uint64
	Type  MemoryType
}

// End returns the first address past the region.
func (e MemoryMapEntry) End() uint64 {
	return e.Start + e.Size
}

// Mapping describes a virtual to physical mapping set up during bootstrap.
type Mapping struct {
	VirtStart uint64
	PhysStart uint64
	Size      uint64
}

// ModuleInfo describes a module loaded by the boot loader.
type ModuleInfo struct {
	Start   uint64
	End     uint64
	CmdLine string
}

// Module is a module record read back from the page. Its Name is a view
// over the page contents and remains valid as long as the page does.
type Module struct {
	Start uint64
	End   uint64
	Name  string
}

// AppendMmap appends a physical memory map entry.
func (p *Page) AppendMmap(entry MemoryMapEntry) *kernel.Error {
	payload, err := p.reserve(tagMmap, mmapRecordSize)
	if err != nil {
		return err
	}

	MemoryMapRecord{payload}.Set(entry)
	return nil
}

// AppendVmap appends a virtual memory mapping entry.
func (p *Page) AppendVmap(virtStart, physStart, size uint64) *kernel.Error {
	payload, err := p.reserve(tagVmap, vmapRecordSize)
	if err != nil {
		return err
	}

	binary.LittleEndian.PutUint64(payload[0:], virtStart)
	binary.LittleEndian.PutUint64(payload[8:], physStart)
	binary.LittleEndian.PutUint64(payload[16:], size)
	return nil
}

// AppendModule appends a module named name covering [info.Start, info.End).
// The name is copied into the page. Modules must be page aligned and must
// be appended in increasing address order.
func (p *Page) AppendModule(name string, info ModuleInfo) *kernel.Error {
	if !p.Valid() {
		return ErrInvalidPage
	}

	switch {
	case info.Start&uint64(mm.PageSize-1) != 0:
		return ErrModuleUnaligned
	case info.End < info.Start:
		return ErrModuleRange
	case info.Start < p.LastModuleAddress():
		return ErrModuleOverlap
	}

	payload, err := p.reserve(tagModule, moduleHeaderSize+len(name)+1)
	if err != nil {
		return err
	}

	binary.LittleEndian.PutUint64(payload[0:], info.Start)
	binary.LittleEndian.PutUint64(payload[8:], info.End)
	copy(payload[16:], name)
	payload[len(payload)-1] = 0

	p.setLastModuleAddress(info.End)
	return nil
}

// AppendModuleNumber appends the module with the given sequence number,
// using its command line as the module name. Numbers must start at 0 and
// increase by one with every call.
func (p *Page) AppendModuleNumber(number uint32, info ModuleInfo) *kernel.Error {
	if !p.Valid() {
		return ErrInvalidPage
	}

	if number != p.ModuleCount() {
		return ErrModuleNumber
	}

	return p.AppendModule(info.CmdLine, info)
}

// AppendCmdLine records the kernel command line. A page holds at most one
// command line.
func (p *Page) AppendCmdLine(cmdLine string) *kernel.Error {
	if !p.Valid() {
		return ErrInvalidPage
	}

	if _, exists := p.CmdLine(); exists {
		return ErrCmdLineExists
	}

	payload, err := p.reserve(tagCmdLine, frameSize+len(cmdLine)+1)
	if err != nil {
		return err
	}

	copy(payload, cmdLine)
	payload[len(payload)-1] = 0
	return nil
}

// reserve writes the frame of a recordSize-byte record at the end of the
// arena, advances the free cursor and returns the record payload. Nothing
// is written if the record does not fit.
func (p *Page) reserve(tag recordTag, recordSize int) ([]byte, *kernel.Error) {
	if !p.Valid() {
		return nil, ErrInvalidPage
	}

	if recordSize > maxRecordSize || p.WillOverflow(recordSize) {
		return nil, ErrNoSpace
	}

	off := p.Size()
	record := p.buf[off : off+recordSize]
	binary.LittleEndian.PutUint16(record[0:], uint16(tag))
	binary.LittleEndian.PutUint16(record[2:], uint16(recordSize))
	p.setFree(off + recordSize)

	return record[frameSize:], nil
}

// MemoryMapRecord is a view of a memory map entry stored in the page.
// Updates made through it are written to the page in place.
type MemoryMapRecord struct {
	payload []byte
}

// Start returns the first address of the region.
func (r MemoryMapRecord) Start() uint64 {
	return binary.LittleEndian.Uint64(r.payload[0:])
}

// Size returns the region size in bytes.
func (r MemoryMapRecord) Size() uint64 {
	return binary.LittleEndian.Uint64(r.payload[8:])
}

// End returns the first address past the region.
func (r MemoryMapRecord) End() uint64 {
	return r.Start() + r.Size()
}

// Type returns the region type.
func (r MemoryMapRecord) Type() MemoryType {
	return MemoryType(binary.LittleEndian.Uint32(r.payload[16:]))
}

// Entry returns a copy of the record contents.
func (r MemoryMapRecord) Entry() MemoryMapEntry {
	return MemoryMapEntry{Start: r.Start(), Size: r.Size(), Type: r.Type()}
}

// Set overwrites the record with entry.
func (r MemoryMapRecord) Set(entry MemoryMapEntry) {
	binary.LittleEndian.PutUint64(r.payload[0:], entry.Start)
	binary.LittleEndian.PutUint64(r.payload[8:], entry.Size)
	r.SetType(entry.Type)
}

// SetType changes the region type.
func (r MemoryMapRecord) SetType(t MemoryType) {
	binary.LittleEndian.PutUint32(r.payload[16:], uint32(t))
}

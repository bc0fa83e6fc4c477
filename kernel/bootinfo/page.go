// Package bootinfo implements the bootinfo page: a single page of memory,
// written once by the bootstrap code and read by the kernel proper, that
// records the physical memory map, the virtual mappings established during
// bootstrap, the loaded boot modules and the kernel command line.
//
// The page starts with a fixed header followed by an append-only arena of
// records. Each record is framed by a 16-bit tag and a 16-bit total length
// so that any family of records can be walked by skipping over the others.
// All fields are stored in little endian byte order.
//
// A Page is not safe for concurrent use. Mutating calls must run inside a
// critical section when interrupt handlers may touch the same page, and only
// one live Page may exist at a time.
package bootinfo

import (
	"encoding/binary"
	"unsafe"

	"github.com/Newlifer/metta/kernel"
	"github.com/Newlifer/metta/kernel/mm"
)

const (
	// PageAddr is the physical address where the bootstrap code builds the
	// bootinfo page.
	PageAddr = uintptr(0x8000)

	// PageSize is the size of the bootinfo page in bytes.
	PageSize = int(mm.PageSize)

	// Magic identifies a valid bootinfo page.
	Magic = uint32(0xbeefdea1)

	// Header layout.
	magicOffset      = 0
	freeOffset       = 8
	lastModuleOffset = 16
	headerSize       = 24
)

var (
	// ErrBadPageSize is returned when the buffer backing a page is not
	// exactly PageSize bytes long.
	ErrBadPageSize = &kernel.Error{Module: "bootinfo", Message: "buffer size does not match the bootinfo page size"}

	// ErrInvalidPage is returned when operating on a page whose header
	// fails validation.
	ErrInvalidPage = &kernel.Error{Module: "bootinfo", Message: "invalid bootinfo page"}

	// ErrNoSpace is returned when a record does not fit in the page.
	ErrNoSpace = &kernel.Error{Module: "bootinfo", Message: "not enough space in bootinfo page"}
)

// Page provides access to a bootinfo page stored in a PageSize buffer.
type Page struct {
	buf []byte
}

// Init attaches the page to buf. If createNew is true the buffer is zeroed
// and a fresh, empty header is written; otherwise buf is left untouched and
// callers should check Valid before trusting its contents.
func (p *Page) Init(buf []byte, createNew bool) *kernel.Error {
	if len(buf) != PageSize {
		return ErrBadPageSize
	}

	p.buf = buf
	if createNew {
		for i := range p.buf {
			p.buf[i] = 0
		}
		binary.LittleEndian.PutUint32(p.buf[magicOffset:], Magic)
		p.setFree(headerSize)
	}

	return nil
}

// InitAt is equivalent to Init for the page starting at physical address
// addr. The address must be mapped and PageSize bytes must be accessible.
func (p *Page) InitAt(addr uintptr, createNew bool) *kernel.Error {
	return p.Init(unsafe.Slice((*byte)(unsafe.Pointer(addr)), PageSize), createNew)
}

// Attach opens an existing page stored in buf and rejects it with
// ErrInvalidPage if its header is not valid.
func (p *Page) Attach(buf []byte) *kernel.Error {
	if err := p.Init(buf, false); err != nil {
		return err
	}

	if !p.Valid() {
		p.buf = nil
		return ErrInvalidPage
	}

	return nil
}

// Valid returns true if the page carries the bootinfo magic and its free
// cursor lies between the end of the header and the end of the page.
func (p *Page) Valid() bool {
	if len(p.buf) != PageSize {
		return false
	}

	size := p.free()
	return binary.LittleEndian.Uint32(p.buf[magicOffset:]) == Magic &&
		size >= headerSize && size <= uint64(PageSize)
}

// Size returns the number of bytes in use, including the header. It returns
// 0 for a page that is not attached to a buffer.
func (p *Page) Size() int {
	if len(p.buf) != PageSize {
		return 0
	}
	return int(p.free())
}

// WillOverflow returns true if appending n more bytes would grow the page
// past PageSize.
func (p *Page) WillOverflow(n int) bool {
	return n < 0 || n > PageSize-p.Size()
}

// LastModuleAddress returns the end address of the most recently appended
// module. Modules must be appended in increasing address order.
func (p *Page) LastModuleAddress() uint64 {
	if len(p.buf) != PageSize {
		return 0
	}
	return binary.LittleEndian.Uint64(p.buf[lastModuleOffset:])
}

func (p *Page) free() uint64 {
	return binary.LittleEndian.Uint64(p.buf[freeOffset:])
}

func (p *Page) setFree(off int) {
	binary.LittleEndian.PutUint64(p.buf[freeOffset:], uint64(off))
}

func (p *Page) setLastModuleAddress(addr uint64) {
	binary.LittleEndian.PutUint64(p.buf[lastModuleOffset:], addr)
}

// bytesToString returns a string view over b without copying it.
func bytesToString(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return unsafe.String(&b[0], len(b))
}

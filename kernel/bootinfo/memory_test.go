package bootinfo

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// pcMemoryMap is the memory map reported by a 128M PC.
var pcMemoryMap = []MemoryMapEntry{
	{Start: 0, Size: 0x9fc00, Type: MemFree},
	{Start: 0x9fc00, Size: 0x400, Type: MemReserved},
	{Start: 0xf0000, Size: 0x10000, Type: MemReserved},
	{Start: 0x100000, Size: 0x7ee0000, Type: MemFree},
	{Start: 0x7fe0000, Size: 0x20000, Type: MemReserved},
	{Start: 0xfffc0000, Size: 0x40000, Type: MemReserved},
}

func newPageWithMmap(t *testing.T, entries []MemoryMapEntry) *Page {
	t.Helper()

	p := newPage(t)
	for _, entry := range entries {
		mustAppend(t, p.AppendMmap(entry))
	}
	return p
}

func TestFindTopMemoryAddress(t *testing.T) {
	specs := []struct {
		entries []MemoryMapEntry
		exp     uint64
	}{
		{nil, 0},
		{pcMemoryMap, 0x7fe0000},
		{[]MemoryMapEntry{{Start: 0x100000, Size: 0x1000, Type: MemReserved}}, 0},
		{[]MemoryMapEntry{
			{Start: 0x200000, Size: 0x1000, Type: MemFree},
			{Start: 0x100000, Size: 0x1000, Type: MemFree},
		}, 0x201000},
	}

	for specIndex, spec := range specs {
		p := newPageWithMmap(t, spec.entries)
		if got := p.FindTopMemoryAddress(); got != spec.exp {
			t.Errorf("[spec %d] expected top address 0x%x; got 0x%x", specIndex, spec.exp, got)
		}
	}
}

func TestFindHighMemRangeOfAtLeast(t *testing.T) {
	specs := []struct {
		entries []MemoryMapEntry
		size    uint64
		exp     uint64
	}{
		{pcMemoryMap, 0x1000, 0x100000},
		{pcMemoryMap, 0x7ee0000, 0x100000},
		{pcMemoryMap, 0x7ee0001, 0},
		// Low memory is skipped even if large enough.
		{[]MemoryMapEntry{{Start: 0, Size: 0x200000, Type: MemFree}}, 0x80000, 0x100000},
		{[]MemoryMapEntry{{Start: 0, Size: 0x100800, Type: MemFree}}, 0x1000, 0},
		// Starts are rounded up to a page.
		{[]MemoryMapEntry{{Start: 0x200010, Size: 0x3000, Type: MemFree}}, 0x2000, 0x201000},
		{[]MemoryMapEntry{{Start: 0x200010, Size: 0x2000, Type: MemFree}}, 0x2000, 0},
		{[]MemoryMapEntry{
			{Start: 0x200000, Size: 0x1000, Type: MemUsed},
			{Start: 0x400000, Size: 0x1000, Type: MemFree},
		}, 0x1000, 0x400000},
		{nil, 1, 0},
	}

	for specIndex, spec := range specs {
		p := newPageWithMmap(t, spec.entries)
		if got := p.FindHighMemRangeOfAtLeast(spec.size); got != spec.exp {
			t.Errorf("[spec %d] expected range at 0x%x; got 0x%x", specIndex, spec.exp, got)
		}
	}
}

func TestUseMemory(t *testing.T) {
	base := []MemoryMapEntry{
		{Start: 0, Size: 0x9fc00, Type: MemFree},
		{Start: 0x9fc00, Size: 0x400, Type: MemReserved},
		{Start: 0x100000, Size: 0x100000, Type: MemFree},
	}

	specs := []struct {
		descr       string
		start, size uint64
		exp         []MemoryMapEntry
	}{
		{
			"exact match",
			0x100000, 0x100000,
			[]MemoryMapEntry{base[0], base[1], {Start: 0x100000, Size: 0x100000, Type: MemUsed}},
		},
		{
			"prefix",
			0x100000, 0x3000,
			[]MemoryMapEntry{base[0], base[1], {Start: 0x103000, Size: 0xfd000, Type: MemFree}},
		},
		{
			"suffix",
			0x1ff000, 0x1000,
			[]MemoryMapEntry{base[0], base[1], {Start: 0x100000, Size: 0xff000, Type: MemFree}},
		},
		{
			"interior",
			0x110000, 0x2000,
			[]MemoryMapEntry{
				base[0], base[1],
				{Start: 0x100000, Size: 0x10000, Type: MemFree},
				{Start: 0x112000, Size: 0xee000, Type: MemFree},
			},
		},
		{
			"first entry prefix",
			0, 0x1000,
			[]MemoryMapEntry{{Start: 0x1000, Size: 0x9ec00, Type: MemFree}, base[1], base[2]},
		},
	}

	for specIndex, spec := range specs {
		p := newPageWithMmap(t, base)

		if err := p.UseMemory(spec.start, spec.size); err != nil {
			t.Errorf("[spec %d] %s: unexpected error: %v", specIndex, spec.descr, err)
			continue
		}

		if diff := cmp.Diff(spec.exp, collectMmap(p)); diff != "" {
			t.Errorf("[spec %d] %s: unexpected memory map (-want +got):\n%s", specIndex, spec.descr, diff)
		}
	}
}

func TestUseMemoryRemovesRangeFromFreeMap(t *testing.T) {
	entry := MemoryMapEntry{Start: 100, Size: 100, Type: MemFree}

	specs := []struct {
		descr       string
		start, size uint64
	}{
		{"exact match", 100, 100},
		{"prefix", 100, 30},
		{"suffix", 170, 30},
		{"interior", 120, 30},
	}

	for specIndex, spec := range specs {
		p := newPageWithMmap(t, []MemoryMapEntry{entry})

		mustAppend(t, p.UseMemory(spec.start, spec.size))

		got := collectMmap(p)
		if len(got) > 2 {
			t.Errorf("[spec %d] %s: expected at most one extra record; got %v", specIndex, spec.descr, got)
		}

		var freeBytes uint64
		for _, rec := range got {
			if rec.Type != MemFree {
				continue
			}
			freeBytes += rec.Size
			if rec.Start < spec.start+spec.size && spec.start < rec.End() {
				t.Errorf("[spec %d] %s: free entry %v overlaps the used range", specIndex, spec.descr, rec)
			}
		}

		if exp := entry.Size - spec.size; freeBytes != exp {
			t.Errorf("[spec %d] %s: expected %d free bytes; got %d", specIndex, spec.descr, exp, freeBytes)
		}

		if err := p.UseMemory(spec.start, 1); err != ErrNoCoveringEntry {
			t.Errorf("[spec %d] %s: expected used range to be unavailable; got %v", specIndex, spec.descr, err)
		}
	}
}

func TestUseMemoryFailure(t *testing.T) {
	base := []MemoryMapEntry{
		{Start: 0x100000, Size: 0x100000, Type: MemFree},
		{Start: 0x200000, Size: 0x100000, Type: MemFree},
		{Start: 0x400000, Size: 0x100000, Type: MemReserved},
	}

	specs := []struct {
		descr       string
		start, size uint64
	}{
		{"zero size", 0x100000, 0},
		{"below all entries", 0, 0x1000},
		{"spans two entries", 0x1ff000, 0x2000},
		{"reserved entry", 0x400000, 0x1000},
		{"gap between entries", 0x300000, 0x1000},
		{"past the end", 0x2ff000, 0x2000},
		{"address wrap", 0x100000, ^uint64(0)},
	}

	for specIndex, spec := range specs {
		p := newPageWithMmap(t, base)
		before := append([]byte(nil), p.buf...)

		if err := p.UseMemory(spec.start, spec.size); err != ErrNoCoveringEntry {
			t.Errorf("[spec %d] %s: expected ErrNoCoveringEntry; got %v", specIndex, spec.descr, err)
		}

		if !bytes.Equal(before, p.buf) {
			t.Errorf("[spec %d] %s: expected page to be unchanged", specIndex, spec.descr)
		}
	}
}

func TestUseMemoryTwice(t *testing.T) {
	p := newPageWithMmap(t, []MemoryMapEntry{{Start: 0x100000, Size: 0x2000, Type: MemFree}})

	mustAppend(t, p.UseMemory(0x100000, 0x2000))
	if err := p.UseMemory(0x100000, 0x1000); err != ErrNoCoveringEntry {
		t.Fatalf("expected used memory to no longer be available; got %v", err)
	}
}

func TestUseMemoryInteriorSplitNoSpace(t *testing.T) {
	p := newPageWithMmap(t, []MemoryMapEntry{{Start: 0x100000, Size: 0x100000, Type: MemFree}})

	for !p.WillOverflow(vmapRecordSize) {
		mustAppend(t, p.AppendVmap(0, 0, 0x1000))
	}
	if !p.WillOverflow(mmapRecordSize) {
		t.Fatalf("expected less than %d bytes to remain; page size is %d", mmapRecordSize, p.Size())
	}

	before := append([]byte(nil), p.buf...)

	if err := p.UseMemory(0x110000, 0x1000); err != ErrNoSpace {
		t.Fatalf("expected ErrNoSpace; got %v", err)
	}

	if !bytes.Equal(before, p.buf) {
		t.Fatal("expected failed split to leave the page unchanged")
	}

	// Edge carve-outs need no extra record and still succeed.
	mustAppend(t, p.UseMemory(0x100000, 0x1000))
}

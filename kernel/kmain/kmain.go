// Package kmain contains the Go entrypoint of the kernel. It switches the
// CPU to paged mode using the bootstrap page tables and records the boot
// environment into the bootinfo page for the rest of the kernel.
package kmain

import (
	"github.com/Newlifer/metta/kernel"
	"github.com/Newlifer/metta/kernel/bootinfo"
	"github.com/Newlifer/metta/kernel/hal/multiboot"
	"github.com/Newlifer/metta/kernel/kfmt"
	"github.com/Newlifer/metta/kernel/mm"
	"github.com/Newlifer/metta/kernel/mm/pmm"
	"github.com/Newlifer/metta/kernel/mm/vmm"
	"github.com/Newlifer/metta/kernel/sync"
)

var (
	// The bootstrap state lives in globals as nothing can be allocated
	// on the heap at this stage.
	bootAlloc  pmm.BootAllocator
	bootTables vmm.BootPageTables
	bootInfo   bootinfo.Page

	memMapWriter = kfmt.PrefixWriter{Prefix: []byte("[bootinfo] ")}

	// The following functions are replaced by tests.
	enterCriticalSectionFn = sync.EnterCriticalSection
	leaveCriticalSectionFn = sync.LeaveCriticalSection
	panicFn                = kfmt.Panic

	errKmainReturned = &kernel.Error{Module: "kmain", Message: "Kmain returned"}
)

// pageTables is implemented by vmm.BootPageTables.
type pageTables interface {
	Setup(alloc vmm.PageAllocator)
	MappingEnter(vaddr, paddr uintptr)
	StartPaging()
	VisitMappings(visitor vmm.MappingVisitor)
}

// Kmain is the only Go symbol that is visible (exported) from the rt0 initialization
// code. This function is invoked by the rt0 assembly code after setting up the GDT
// and setting up a a minimal g0 struct that allows Go code using the 4K stack
// allocated by the assembly code.
//
// The rt0 code passes the address of the multiboot info payload provided by the
// bootloader as well as the physical addresses for the kernel start/end.
//
// Kmain is not expected to return. If it does, the rt0 code will halt the CPU.
//
//go:noinline
func Kmain(multibootInfoPtr, kernelStart, kernelEnd uintptr) {
	multiboot.SetInfoPtr(multibootInfoPtr)
	kfmt.Printf("[kmain] loaded by %s\n", multiboot.BootLoaderName())

	bootstrapPaging(&bootAlloc, &bootTables, multibootInfoPtr, uintptr(multiboot.InfoSize()), kernelStart, kernelEnd)

	if err := bootInfo.InitAt(bootinfo.PageAddr, true); err != nil {
		panicFn(err)
	}

	if err := populateBootInfo(&bootInfo, &bootTables); err != nil {
		panicFn(err)
	}

	reserveBootMemory(&bootInfo, kernelStart, kernelEnd, bootAlloc.AllocedStart())
	printMemoryMap(&bootInfo)

	// Use panicFn instead of panic to prevent the compiler from
	// treating kfmt.Panic as dead-code and eliminating it.
	panicFn(errKmainReturned)
}

// bootstrapPaging builds the bootstrap page tables out of the memory that
// follows the kernel image and enables paging. The kernel image, the
// bootinfo page and the multiboot info block are identity-mapped so they
// remain accessible once paging is on.
func bootstrapPaging(alloc *pmm.BootAllocator, tables pageTables, infoPtr, infoSize, kernelStart, kernelEnd uintptr) {
	enterCriticalSectionFn()

	alloc.Init(kernelEnd)
	tables.Setup(alloc)

	identityMap(tables, kernelStart, kernelEnd)
	identityMap(tables, bootinfo.PageAddr, bootinfo.PageAddr+uintptr(bootinfo.PageSize))
	identityMap(tables, infoPtr, infoPtr+infoSize)

	tables.StartPaging()

	leaveCriticalSectionFn()
}

// identityMap maps every page overlapping [start, end) to itself.
func identityMap(tables pageTables, start, end uintptr) {
	for page := mm.AlignDown(start); page < end; page += mm.PageSize {
		tables.MappingEnter(page, page)
	}
}

// populateBootInfo records the command line, the memory map, the loaded
// modules and the bootstrap mappings into info.
func populateBootInfo(info *bootinfo.Page, tables pageTables) *kernel.Error {
	var (
		err       *kernel.Error
		moduleNum uint32
	)

	if err = info.AppendCmdLine(multiboot.CmdLine()); err != nil {
		return err
	}

	multiboot.VisitMemRegions(func(region *multiboot.MemoryMapEntry) bool {
		err = info.AppendMmap(bootinfo.MemoryMapEntry{
			Start: region.PhysAddress,
			Size:  region.Length,
			Type:  bootinfo.MemoryType(region.Type),
		})
		return err == nil
	})
	if err != nil {
		return err
	}

	multiboot.VisitModules(func(mod *multiboot.ModuleEntry) bool {
		err = info.AppendModuleNumber(moduleNum, bootinfo.ModuleInfo{
			Start:   uint64(mod.Start),
			End:     uint64(mod.End),
			CmdLine: mod.CmdLine,
		})
		if err != nil {
			kfmt.Printf("[kmain] rejected module %d at 0x%x-0x%x\n", moduleNum, mod.Start, mod.End)
			return false
		}
		moduleNum++
		return true
	})
	if err != nil {
		return err
	}

	tables.VisitMappings(func(virtAddr, physAddr uintptr, size mm.Size) bool {
		err = info.AppendVmap(uint64(virtAddr), uint64(physAddr), uint64(size))
		return err == nil
	})

	return err
}

// reserveBootMemory removes the bootinfo page, the kernel image and the
// pages handed out by the bootstrap allocator from the free memory map.
// Failures are reported but are not fatal.
func reserveBootMemory(info *bootinfo.Page, kernelStart, kernelEnd, allocEnd uintptr) {
	imageStart, imageEnd := mm.AlignDown(kernelStart), mm.AlignUp(kernelEnd)

	reserve(info, "bootinfo", bootinfo.PageAddr, bootinfo.PageAddr+uintptr(bootinfo.PageSize))
	reserve(info, "kernel image", imageStart, imageEnd)
	reserve(info, "bootstrap tables", imageEnd, allocEnd)
}

func reserve(info *bootinfo.Page, what string, start, end uintptr) {
	if end <= start {
		return
	}

	if err := info.UseMemory(uint64(start), uint64(end-start)); err != nil {
		kfmt.Printf("[kmain] unable to reserve %s at 0x%x-0x%x: %s\n", what, start, end, err.Message)
	}
}

// printMemoryMap dumps the memory map stored in info.
func printMemoryMap(info *bootinfo.Page) {
	w := &memMapWriter
	w.Sink = kfmt.GetOutputSink()

	kfmt.Fprintf(w, "system memory map:\n")
	var total uint64
	for it := info.MmapBegin(); ; {
		rec, ok := it.Next()
		if !ok {
			break
		}

		kfmt.Fprintf(w, "  [0x%10x - 0x%10x], size: %10d, type: %s\n", rec.Start(), rec.End(), rec.Size(), rec.Type().String())
		if rec.Type() == bootinfo.MemFree {
			total += rec.Size()
		}
	}
	kfmt.Fprintf(w, "available memory: %dKb\n", total/uint64(mm.Kb))

	if cmdLine, ok := info.CmdLine(); ok && cmdLine != "" {
		kfmt.Fprintf(w, "command line: %s\n", cmdLine)
	}
	kfmt.Fprintf(w, "modules: %d, bootinfo size: %d bytes\n", info.ModuleCount(), info.Size())
}

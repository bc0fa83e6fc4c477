package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/Newlifer/metta/kernel/bootinfo"
	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"
)

// dumpCmd implements subcommands.Command for the "dump" command.
type dumpCmd struct{}

// Name implements subcommands.Command.Name.
func (*dumpCmd) Name() string {
	return "dump"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*dumpCmd) Synopsis() string {
	return "print the contents of a bootinfo page image"
}

// Usage implements subcommands.Command.Usage.
func (*dumpCmd) Usage() string {
	return `dump <page.bin> - validate a page image and print its records.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (*dumpCmd) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (*dumpCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}

	image, err := os.ReadFile(f.Arg(0))
	if err != nil {
		logrus.WithError(err).Error("reading page image")
		return subcommands.ExitFailure
	}

	var page bootinfo.Page
	if err := page.Attach(image); err != nil {
		logrus.WithError(err).WithField("path", f.Arg(0)).Error("rejecting page image")
		return subcommands.ExitFailure
	}

	dumpPage(os.Stdout, &page)
	return subcommands.ExitSuccess
}

// dumpPage writes a human readable listing of page to w.
func dumpPage(w io.Writer, page *bootinfo.Page) {
	fmt.Fprintf(w, "bootinfo page: %d/%d bytes used, last module ends at %#x\n", page.Size(), bootinfo.PageSize, page.LastModuleAddress())

	if cmdLine, ok := page.CmdLine(); ok {
		fmt.Fprintf(w, "command line: %q\n", cmdLine)
	}

	fmt.Fprintln(w, "memory map:")
	for it := page.MmapBegin(); ; {
		rec, ok := it.Next()
		if !ok {
			break
		}
		fmt.Fprintf(w, "  [0x%08x - 0x%08x] %10d bytes %s\n", rec.Start(), rec.End(), rec.Size(), rec.Type())
	}

	fmt.Fprintln(w, "mappings:")
	for it := page.VmapBegin(); ; {
		m, ok := it.Next()
		if !ok {
			break
		}
		fmt.Fprintf(w, "  virt 0x%08x -> phys 0x%08x %10d bytes\n", m.VirtStart, m.PhysStart, m.Size)
	}

	fmt.Fprintln(w, "modules:")
	for it, n := page.ModuleBegin(), 0; ; n++ {
		mod, ok := it.Next()
		if !ok {
			break
		}
		fmt.Fprintf(w, "  %d: [0x%08x - 0x%08x] %s\n", n, mod.Start, mod.End, mod.Name)
	}
}

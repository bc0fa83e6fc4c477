package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/Newlifer/metta/kernel/bootinfo"
	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// reserveCmd implements subcommands.Command for the "reserve" command.
type reserveCmd struct {
	start uint64
	size  uint64
}

// Name implements subcommands.Command.Name.
func (*reserveCmd) Name() string {
	return "reserve"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*reserveCmd) Synopsis() string {
	return "mark a physical memory range as used in a bootinfo page image"
}

// Usage implements subcommands.Command.Usage.
func (*reserveCmd) Usage() string {
	return `reserve -start <addr> -size <bytes> <page.bin> - remove a range from the free memory map.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (c *reserveCmd) SetFlags(f *flag.FlagSet) {
	f.Uint64Var(&c.start, "start", 0, "physical start address of the range")
	f.Uint64Var(&c.size, "size", 0, "size of the range in bytes")
}

// Execute implements subcommands.Command.Execute.
func (c *reserveCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 || c.size == 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}

	if err := reserveInFile(f.Arg(0), c.start, c.size); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"start": fmt.Sprintf("%#x", c.start),
			"size":  c.size,
		}).Error("reserving memory")
		return subcommands.ExitFailure
	}

	return subcommands.ExitSuccess
}

// reserveInFile maps the page image at path and removes [start, start+size)
// from its free memory map in place.
func reserveInFile(path string, start, size uint64) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return err
	}
	if fi.Size() != int64(bootinfo.PageSize) {
		return fmt.Errorf("%s: image is %d bytes; expected %d", path, fi.Size(), bootinfo.PageSize)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, bootinfo.PageSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("mapping %s: %w", path, err)
	}
	defer func() {
		if err := unix.Munmap(data); err != nil {
			logrus.WithError(err).Warn("unmapping page image")
		}
	}()

	var page bootinfo.Page
	if err := page.Attach(data); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	if err := page.UseMemory(start, size); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	logrus.WithFields(logrus.Fields{
		"path":  path,
		"start": fmt.Sprintf("%#x", start),
		"size":  size,
	}).Debug("reserved memory")

	return unix.Msync(data, unix.MS_SYNC)
}

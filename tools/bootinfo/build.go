package main

import (
	"context"
	"flag"
	"os"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"
)

// buildCmd implements subcommands.Command for the "build" command.
type buildCmd struct {
	config string
	output string
}

// Name implements subcommands.Command.Name.
func (*buildCmd) Name() string {
	return "build"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*buildCmd) Synopsis() string {
	return "build a bootinfo page image from a layout file"
}

// Usage implements subcommands.Command.Usage.
func (*buildCmd) Usage() string {
	return `build -config <layout.toml|layout.yaml> -o <page.bin> - write a new bootinfo page image.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (c *buildCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.config, "config", "", "path to the layout file")
	f.StringVar(&c.output, "o", "bootinfo.bin", "path of the page image to write")
}

// Execute implements subcommands.Command.Execute.
func (c *buildCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.config == "" || f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}

	l, err := loadLayout(c.config)
	if err != nil {
		logrus.WithError(err).Error("loading layout")
		return subcommands.ExitFailure
	}

	image, err := buildPage(l)
	if err != nil {
		logrus.WithError(err).Error("building bootinfo page")
		return subcommands.ExitFailure
	}

	if err := os.WriteFile(c.output, image, 0644); err != nil {
		logrus.WithError(err).Error("writing page image")
		return subcommands.ExitFailure
	}

	logrus.WithField("path", c.output).Info("wrote bootinfo page")
	return subcommands.ExitSuccess
}

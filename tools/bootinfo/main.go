// Command bootinfo builds, inspects and edits bootinfo page images on the
// host. Images produced by the build command can be loaded at the bootinfo
// page address by an emulator or a test harness in place of a live boot.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"
)

var debug = flag.Bool("debug", false, "enable debug logging")

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(new(buildCmd), "")
	subcommands.Register(new(dumpCmd), "")
	subcommands.Register(new(reserveCmd), "")

	flag.Parse()

	logrus.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	if *debug {
		logrus.SetLevel(logrus.DebugLevel)
	}

	os.Exit(int(subcommands.Execute(context.Background())))
}

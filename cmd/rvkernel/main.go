// Command rvkernel is the entrypoint for booting and inspecting the
// simulated kernel core: a small CLI wrapping pkg/kernel/proc.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/google/subcommands"

	"github.com/rvos/rvkernel/cmd/rvkernel/cmd"
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")

	subcommands.Register(new(cmd.Boot), "")
	subcommands.Register(new(cmd.State), "")

	flag.Parse()
	os.Exit(int(subcommands.Execute(context.Background())))
}

// Package cmd holds rvkernel's subcommands.Command implementations.
package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"github.com/rvos/rvkernel/internal/config"
	"github.com/rvos/rvkernel/pkg/kernel/demo"
)

// Boot implements subcommands.Command for the "boot" command: bring up a
// kernel per the resolved config and run one named demo scenario to
// completion.
type Boot struct {
	configPath string
	numCPU     int
}

// Name implements subcommands.Command.Name.
func (*Boot) Name() string { return "boot" }

// Synopsis implements subcommands.Command.Synopsis.
func (*Boot) Synopsis() string { return "boot the kernel and run a named scenario" }

// Usage implements subcommands.Command.Usage.
func (*Boot) Usage() string {
	return "boot [flags] <scenario> - run a scenario from pkg/kernel/demo to completion\n"
}

// SetFlags implements subcommands.Command.SetFlags.
func (b *Boot) SetFlags(f *flag.FlagSet) {
	f.StringVar(&b.configPath, "config", "", "path to a kernel.toml, overriding RVKERNEL_CONFIG")
	f.IntVar(&b.numCPU, "num-cpu", 0, "override the number of harts (0 keeps the config value)")
}

// Execute implements subcommands.Command.Execute.
func (b *Boot) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	name := f.Arg(0)

	scenario, ok := demo.Lookup(name)
	if !ok {
		fmt.Fprintf(os.Stderr, "rvkernel: unknown scenario %q\n", name)
		return subcommands.ExitFailure
	}

	cfg, err := resolveConfig(b.configPath, b.numCPU)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rvkernel: %v\n", err)
		return subcommands.ExitFailure
	}

	result, err := scenario.Run(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rvkernel: scenario %q failed: %v\n", name, err)
		return subcommands.ExitFailure
	}
	fmt.Fprintln(os.Stdout, result)
	return subcommands.ExitSuccess
}

// resolveConfig loads configPath (or RVKERNEL_CONFIG, or the built-in
// default) and applies any non-zero flag overrides on top, mirroring
// internal/config.RegisterFlags's flag-over-file precedence.
func resolveConfig(configPath string, numCPU int) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.Load(configPath)
	} else {
		cfg, err = config.LoadFromEnv()
	}
	if err != nil {
		return nil, err
	}
	if numCPU > 0 {
		cfg.NumCPU = numCPU
	}
	return cfg, nil
}

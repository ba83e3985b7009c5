package cmd

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"github.com/rvos/rvkernel/internal/config"
	"github.com/rvos/rvkernel/pkg/kernel/demo"
)

// State implements subcommands.Command for the "state" command: run a
// named scenario and dump its outcome, plus the config it ran under, as
// JSON on stdout.
type State struct {
	configPath string
	numCPU     int
}

// Name implements subcommands.Command.Name.
func (*State) Name() string { return "state" }

// Synopsis implements subcommands.Command.Synopsis.
func (*State) Synopsis() string { return "run a scenario and report its resulting state" }

// Usage implements subcommands.Command.Usage.
func (*State) Usage() string {
	return "state [flags] <scenario> - run a scenario and dump its outcome as JSON\n"
}

// SetFlags implements subcommands.Command.SetFlags.
func (s *State) SetFlags(f *flag.FlagSet) {
	f.StringVar(&s.configPath, "config", "", "path to a kernel.toml, overriding RVKERNEL_CONFIG")
	f.IntVar(&s.numCPU, "num-cpu", 0, "override the number of harts (0 keeps the config value)")
}

// dump is the JSON shape written to stdout.
type dump struct {
	Scenario    string         `json:"scenario"`
	Description string         `json:"description"`
	Config      *config.Config `json:"config"`
	Result      string         `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// Execute implements subcommands.Command.Execute.
func (s *State) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
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

	cfg, err := resolveConfig(s.configPath, s.numCPU)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rvkernel: %v\n", err)
		return subcommands.ExitFailure
	}

	d := dump{Scenario: scenario.Name, Description: scenario.Description, Config: cfg}
	if result, runErr := scenario.Run(cfg); runErr != nil {
		d.Error = runErr.Error()
	} else {
		d.Result = result
	}

	b, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "rvkernel: marshaling state: %v\n", err)
		return subcommands.ExitFailure
	}
	if _, err := os.Stdout.Write(append(b, '\n')); err != nil {
		fmt.Fprintf(os.Stderr, "rvkernel: writing state: %v\n", err)
		return subcommands.ExitFailure
	}
	if d.Error != "" {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

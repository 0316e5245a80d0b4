package cmd

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/nanoplex/cli/render"
	"github.com/pithecene-io/nanoplex/toolchain"
	"github.com/pithecene-io/nanoplex/types"
)

// ProbeResponse is the response for the probe command.
type ProbeResponse struct {
	Source       string `json:"source" yaml:"source"`
	Version      string `json:"version,omitempty" yaml:"version,omitempty"`
	Compatible   bool   `json:"compatible" yaml:"compatible"`
	SequenceFlag string `json:"sequence_flag,omitempty" yaml:"sequence_flag,omitempty"`
	Error        string `json:"error,omitempty" yaml:"error,omitempty"`
}

// ProbeCommand returns the probe command.
func ProbeCommand() *cli.Command {
	return newProbeCommand(toolchain.NewExecRunner())
}

func newProbeCommand(runner toolchain.Runner) *cli.Command {
	return &cli.Command{
		Name:  "probe",
		Usage: "Resolve the demultiplexer capability profile",
		Flags: append(ReadOnlyFlags(),
			&cli.StringFlag{
				Name:  "help-file",
				Usage: "Resolve from saved demux help text instead of the installed tool",
			},
			&cli.StringFlag{
				Name:  "basecaller",
				Usage: "Basecaller executable",
				Value: types.DefaultToolPaths().Basecaller,
			},
		),
		Action: func(c *cli.Context) error { return probeAction(c, runner) },
	}
}

// probeAction renders the resolved profile. An incompatible tool is
// reported and exits 1.
func probeAction(c *cli.Context, runner toolchain.Runner) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitFailure)
	}
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for probe command", exitFailure)
	}

	var (
		resp    ProbeResponse
		profile toolchain.Profile
	)
	if path := c.String("help-file"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cli.Exit(err.Error(), exitFailure)
		}
		resp.Source = path
		profile, err = toolchain.ResolveCapabilities(string(data))
		if err != nil {
			resp.Error = err.Error()
		}
	} else {
		tool := c.String("basecaller")
		resp.Source = tool
		resp.Version = toolchain.ToolVersion(c.Context, runner, "basecaller", tool)
		profile, err = toolchain.NewProber(runner, tool).Profile(c.Context)
		if err != nil {
			resp.Error = err.Error()
		}
	}
	resp.Compatible = resp.Error == ""
	resp.SequenceFlag = profile.SequenceFlag

	if err := r.Render(resp); err != nil {
		return err
	}
	if !resp.Compatible {
		return cli.Exit(fmt.Sprintf("demultiplexer is not compatible: %s", resp.Error), exitFailure)
	}
	return nil
}

package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/nanoplex/cli/render"
	"github.com/pithecene-io/nanoplex/types"
)

// VersionResponse is the response for the version command.
type VersionResponse struct {
	Version       string `json:"version" yaml:"version"`
	Commit        string `json:"commit" yaml:"commit"`
	ReportVersion string `json:"report_format_version" yaml:"report_format_version"`
}

// VersionCommand returns the version command.
// It never touches the toolchain.
func VersionCommand(commit string) *cli.Command {
	return &cli.Command{
		Name:   "version",
		Usage:  "Show version information",
		Flags:  ReadOnlyFlags(),
		Action: versionAction(commit),
	}
}

func versionAction(commit string) cli.ActionFunc {
	return func(c *cli.Context) error {
		r, err := render.NewRenderer(c)
		if err != nil {
			return cli.Exit(err.Error(), 1)
		}

		if c.Bool("tui") {
			return cli.Exit("--tui is not supported for version command", 1)
		}

		return r.Render(VersionResponse{
			Version:       types.Version,
			Commit:        commit,
			ReportVersion: types.ReportFormatVersion,
		})
	}
}

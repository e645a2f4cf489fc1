package cmd

import (
	"runtime"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/ipcpipe/cli/render"
	"github.com/pithecene-io/ipcpipe/types"
)

// VersionResponse is the response for the version command.
type VersionResponse struct {
	Version  string `json:"version"`
	Protocol int    `json:"protocol"`
	Commit   string `json:"commit"`
	Go       string `json:"go"`
}

// VersionCommand returns the version command. Both ends of a split
// pipeline must report the same protocol.
func VersionCommand(commit string) *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Show version information",
		Flags: ReadOnlyFlags(),
		Action: func(c *cli.Context) error {
			r, err := render.NewRenderer(c)
			if err != nil {
				return usageError("%v", err)
			}
			return r.Render(VersionResponse{
				Version:  types.Version,
				Protocol: types.ProtocolVersion,
				Commit:   commit,
				Go:       runtime.Version(),
			})
		},
	}
}

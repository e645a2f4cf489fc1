// Package main provides the ipcpipe CLI entrypoint.
//
// ipcpipe runs the two halves of a split pipeline in separate processes
// and reports how the conversation between them went.
//
// Usage:
//
//	ipcpipe <command> [options]
//
// Exit codes:
//   - 0: success
//   - 1: usage or configuration error
//   - 2: peer crash
//   - 3: protocol or communication failure
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/ipcpipe/cli/cmd"
	"github.com/pithecene-io/ipcpipe/peer"
	"github.com/pithecene-io/ipcpipe/types"
)

// Commit is set via ldflags at build time.
var commit = "unknown"

func main() {
	app := &cli.App{
		Name:           "ipcpipe",
		Usage:          "Split pipeline communication test harness",
		Version:        fmt.Sprintf("%s (protocol %d, commit: %s)", types.Version, types.ProtocolVersion, commit),
		ExitErrHandler: exitErrHandler,
		Commands: []*cli.Command{
			cmd.RunCommand(),
			cmd.PeerCommand(),
			cmd.DecodeCommand(),
			cmd.InspectCommand(),
			cmd.HistoryCommand(),
			cmd.VersionCommand(commit),
		},
	}

	if err := app.Run(os.Args); err != nil {
		// Errors that reach here were not ExitCoders.
		os.Exit(peer.ExitCodeUsage)
	}
}

// exitErrHandler prints err and exits with its code.
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}
	code, msg := exitStatus(err)
	if msg != "" {
		fmt.Fprintln(os.Stderr, msg)
	}
	os.Exit(code)
}

// exitStatus returns the exit code for err and the message worth
// printing, if any.
func exitStatus(err error) (int, string) {
	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()
		// cli.Exit("", N).Error() is "exit status N".
		if msg == fmt.Sprintf("exit status %d", code) {
			msg = ""
		}
		return code, msg
	}
	return peer.ExitCodeUsage, "Error: " + err.Error()
}

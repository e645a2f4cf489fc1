package cmd

import (
	"strconv"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/ipcpipe/adapter"
	"github.com/pithecene-io/ipcpipe/cli/config"
	"github.com/pithecene-io/ipcpipe/cli/render"
	"github.com/pithecene-io/ipcpipe/history"
	"github.com/pithecene-io/ipcpipe/peer"
)

// RunList renders history records one row per run.
type RunList []*adapter.RunCompletedEvent

// TableHeaders implements render.Table.
func (l RunList) TableHeaders() []string {
	return []string{"RUN ID", "TIME", "OUTCOME", "EXIT", "PEER", "BUFFERS", "BYTES", "EOS", "DURATION"}
}

// TableRows implements render.Table.
func (l RunList) TableRows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, r := range l {
		rows = append(rows, []string{
			r.RunID,
			r.Timestamp,
			r.Outcome,
			strconv.Itoa(r.ExitCode),
			strconv.Itoa(r.PeerExitCode),
			strconv.Itoa(r.Buffers),
			strconv.FormatInt(r.Bytes, 10),
			strconv.FormatBool(r.EOS),
			(time.Duration(r.DurationMs) * time.Millisecond).String(),
		})
	}
	return rows
}

// HistoryCommand returns the history command.
func HistoryCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "List past runs from the history dataset",
		Flags: append(ReadOnlyFlags(),
			ConfigFlag,
			&cli.StringFlag{
				Name:  "path",
				Usage: "Read the dataset under this directory",
			},
			&cli.StringFlag{
				Name:  "s3",
				Usage: "Read the dataset from S3 (bucket/prefix)",
			},
			&cli.StringFlag{
				Name:  "dataset",
				Usage: "Dataset ID (default: " + history.DefaultDataset + ")",
			},
			&cli.StringFlag{
				Name:  "run-id",
				Usage: "Only this run",
			},
			&cli.StringFlag{
				Name:  "outcome",
				Usage: "Only runs with this outcome",
			},
			&cli.StringFlag{
				Name:  "day",
				Usage: "Only runs on this UTC day (YYYY-MM-DD)",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Show at most this many runs (0 for all)",
				Value: 20,
			},
		),
		Action: historyAction,
	}
}

func historyAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	r, err := render.NewRenderer(c)
	if err != nil {
		return usageError("%v", err)
	}

	h := cfg.History
	if d := c.String("dataset"); d != "" {
		h.Dataset = d
	}
	switch {
	case c.String("path") != "" && c.String("s3") != "":
		return usageError("--path and --s3 are exclusive")
	case c.String("path") != "":
		h.Path, h.S3 = c.String("path"), nil
	case c.String("s3") != "":
		bucket, prefix := history.ParseS3Path(c.String("s3"))
		h.Path, h.S3 = "", &config.S3Config{Bucket: bucket, Prefix: prefix}
	}
	if !h.Enabled() {
		return usageError("no history dataset: set history in the config file, --path or --s3")
	}

	store, err := openHistory(c.Context, h)
	if err != nil {
		return usageError("%v", err)
	}
	runs, err := store.Query(c.Context, history.Filter{
		RunID:   c.String("run-id"),
		Outcome: c.String("outcome"),
		Day:     c.String("day"),
		Limit:   c.Int("limit"),
	})
	if err != nil {
		return cli.Exit(err.Error(), peer.ExitCodeProtocol)
	}
	if runs == nil {
		runs = []*adapter.RunCompletedEvent{}
	}
	return r.Render(RunList(runs))
}

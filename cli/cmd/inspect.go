package cmd

import (
	"strconv"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/ipcpipe/capture"
	"github.com/pithecene-io/ipcpipe/cli/render"
	"github.com/pithecene-io/ipcpipe/ipc"
	"github.com/pithecene-io/ipcpipe/peer"
)

// RecordRow is one captured frame.
type RecordRow struct {
	Seq       uint64    `json:"seq"`
	Time      time.Time `json:"time"`
	Endpoint  string    `json:"endpoint"`
	Direction string    `json:"direction"`
	Type      string    `json:"type"`
	ID        uint32    `json:"id"`
	Length    int       `json:"length"`
	Summary   string    `json:"summary"`
	Error     string    `json:"error,omitempty"`
}

// RecordList renders as one row per record.
type RecordList []RecordRow

// TableHeaders implements render.Table.
func (l RecordList) TableHeaders() []string {
	return []string{"SEQ", "TIME", "ENDPOINT", "DIR", "TYPE", "ID", "LENGTH", "SUMMARY"}
}

// TableRows implements render.Table.
func (l RecordList) TableRows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, r := range l {
		summary := r.Summary
		if r.Error != "" {
			summary = "error: " + r.Error
		}
		rows = append(rows, []string{
			strconv.FormatUint(r.Seq, 10),
			r.Time.Format("15:04:05.000000"),
			r.Endpoint,
			r.Direction,
			r.Type,
			strconv.FormatUint(uint64(r.ID), 10),
			strconv.Itoa(r.Length),
			summary,
		})
	}
	return rows
}

// InspectCommand returns the inspect command.
func InspectCommand() *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "Show the frames recorded in a capture file",
		ArgsUsage: "<capture-file>",
		Flags: append(ReadOnlyFlags(),
			&cli.StringSliceFlag{
				Name:  "type",
				Usage: "Only show records of these frame types",
			},
			&cli.StringFlag{
				Name:  "direction",
				Usage: "Only show records in this direction: in or out",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Also write the selected records to a new capture file",
			},
		),
		Action: inspectAction,
	}
}

func inspectAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return usageError("inspect takes exactly one capture file")
	}
	r, err := render.NewRenderer(c)
	if err != nil {
		return usageError("%v", err)
	}
	filter, err := typeFilter(c.StringSlice("type"))
	if err != nil {
		return usageError("%v", err)
	}
	direction := c.String("direction")
	switch direction {
	case "", "in", "out":
	default:
		return usageError("--direction must be in or out, got %q", direction)
	}

	records, readErr := capture.ReadFile(c.Args().First())
	if readErr != nil && len(records) == 0 {
		return usageError("%v", readErr)
	}

	var selected []*capture.Record
	rows := RecordList{}
	for _, rec := range records {
		if len(filter) > 0 && !filter[ipc.DataType(rec.Type)] {
			continue
		}
		if direction != "" && rec.Direction() != direction {
			continue
		}
		selected = append(selected, rec)

		f := rec.Frame()
		row := RecordRow{
			Seq:       rec.Seq,
			Time:      rec.Time,
			Endpoint:  rec.Endpoint,
			Direction: rec.Direction(),
			Type:      f.Type.String(),
			ID:        rec.ID,
			Length:    len(rec.Payload),
		}
		if row.Summary, err = ipc.Describe(f); err != nil {
			row.Error = err.Error()
		}
		rows = append(rows, row)
	}

	if path := c.String("output"); path != "" {
		if err := writeRecords(path, selected); err != nil {
			return cli.Exit(err.Error(), peer.ExitCodeUsage)
		}
	}
	if err := r.Render(rows); err != nil {
		return err
	}
	if readErr != nil {
		return cli.Exit("inspect: capture truncated: "+readErr.Error(), peer.ExitCodeProtocol)
	}
	return nil
}

// writeRecords re-encodes records, keeping their sequence numbers.
func writeRecords(path string, records []*capture.Record) error {
	w, err := capture.Create(path, "")
	if err != nil {
		return err
	}
	for _, rec := range records {
		if err := w.Write(rec); err != nil {
			_ = w.Close()
			return err
		}
	}
	return w.Close()
}

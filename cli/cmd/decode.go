package cmd

import (
	"bufio"
	"errors"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/ipcpipe/cli/render"
	"github.com/pithecene-io/ipcpipe/iox"
	"github.com/pithecene-io/ipcpipe/ipc"
	"github.com/pithecene-io/ipcpipe/peer"
)

// FrameRow is one decoded frame.
type FrameRow struct {
	Index   int    `json:"index"`
	Offset  int64  `json:"offset"`
	Type    string `json:"type"`
	ID      uint32 `json:"id"`
	Length  uint32 `json:"length"`
	Summary string `json:"summary"`
	Error   string `json:"error,omitempty"`
}

// FrameList renders as one row per frame.
type FrameList []FrameRow

// TableHeaders implements render.Table.
func (l FrameList) TableHeaders() []string {
	return []string{"#", "OFFSET", "TYPE", "ID", "LENGTH", "SUMMARY"}
}

// TableRows implements render.Table.
func (l FrameList) TableRows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, f := range l {
		summary := f.Summary
		if f.Error != "" {
			summary = "error: " + f.Error
		}
		rows = append(rows, []string{
			strconv.Itoa(f.Index),
			strconv.FormatInt(f.Offset, 10),
			f.Type,
			strconv.FormatUint(uint64(f.ID), 10),
			strconv.FormatUint(uint64(f.Length), 10),
			summary,
		})
	}
	return rows
}

// DecodeCommand returns the decode command.
func DecodeCommand() *cli.Command {
	return &cli.Command{
		Name:      "decode",
		Usage:     "Decode a raw wire byte stream, one row per frame",
		ArgsUsage: "<file|->",
		Flags: append(ReadOnlyFlags(),
			&cli.StringSliceFlag{
				Name:  "type",
				Usage: "Only show frames of these types (e.g. BUFFER, EVENT)",
			},
		),
		Action: decodeAction,
	}
}

func decodeAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return usageError("decode takes exactly one file argument, or - for stdin")
	}
	r, err := render.NewRenderer(c)
	if err != nil {
		return usageError("%v", err)
	}
	filter, err := typeFilter(c.StringSlice("type"))
	if err != nil {
		return usageError("%v", err)
	}

	var in io.Reader = os.Stdin
	if path := c.Args().First(); path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return usageError("open %s: %v", path, err)
		}
		defer iox.DiscardClose(f)
		in = f
	}

	frames, streamErr := decodeStream(bufio.NewReader(in), filter)
	if err := r.Render(frames); err != nil {
		return err
	}
	if streamErr != nil {
		return cli.Exit("decode: "+streamErr.Error(), peer.ExitCodeProtocol)
	}
	for _, f := range frames {
		if f.Error != "" {
			return cli.Exit("decode: malformed frames in stream", peer.ExitCodeProtocol)
		}
	}
	return nil
}

// decodeStream reads frames until the end of r. Payload errors are kept
// on their row; a framing error ends the stream and is returned.
func decodeStream(r io.Reader, filter map[ipc.DataType]bool) (FrameList, error) {
	frames := FrameList{}
	dec := ipc.NewFrameDecoder(r)
	var offset int64
	for index := 0; ; index++ {
		f, err := dec.ReadFrame()
		if errors.Is(err, io.EOF) {
			return frames, nil
		}
		if err != nil {
			return frames, err
		}

		row := FrameRow{
			Index:  index,
			Offset: offset,
			Type:   f.Type.String(),
			ID:     f.ID,
			Length: f.Length,
		}
		offset += ipc.HeaderSize + int64(f.Length)
		if len(filter) > 0 && !filter[f.Type] {
			continue
		}
		if row.Summary, err = ipc.Describe(f); err != nil {
			row.Error = err.Error()
		}
		frames = append(frames, row)
	}
}

// typeFilter parses frame type names.
func typeFilter(names []string) (map[ipc.DataType]bool, error) {
	if len(names) == 0 {
		return nil, nil
	}
	byName := make(map[string]ipc.DataType)
	for t := ipc.DataTypeAck; t.Valid(); t++ {
		byName[t.String()] = t
	}
	filter := make(map[ipc.DataType]bool, len(names))
	for _, name := range names {
		t, ok := byName[strings.ToUpper(strings.TrimSpace(name))]
		if !ok {
			return nil, errors.New("unknown frame type " + strconv.Quote(name))
		}
		filter[t] = true
	}
	return filter, nil
}

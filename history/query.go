package history

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/ipcpipe/adapter"
)

// Filter selects runs. Empty fields match everything.
type Filter struct {
	RunID   string
	Outcome string
	Day     string
	// Limit caps the result. Zero means no limit.
	Limit int
}

func (f Filter) match(ev *adapter.RunCompletedEvent, day string) bool {
	return (f.RunID == "" || ev.RunID == f.RunID) &&
		(f.Outcome == "" || ev.Outcome == f.Outcome) &&
		(f.Day == "" || day == f.Day)
}

// Query returns matching runs, most recent first.
func (s *Store) Query(ctx context.Context, f Filter) ([]*adapter.RunCompletedEvent, error) {
	snapshots, err := s.dataset.Snapshots(ctx)
	if err != nil {
		err = wrap("read", s.name, err)
		if errors.Is(err, ErrNotFound) {
			// Nothing written yet.
			return nil, nil
		}
		return nil, err
	}

	var runs []*adapter.RunCompletedEvent
	seen := make(map[string]bool)
	for i := len(snapshots) - 1; i >= 0; i-- {
		snap := snapshots[i]
		// Partition paths are a coarse filter; record fields decide.
		if !snapshotMatches(snap, "outcome", f.Outcome) || !snapshotMatches(snap, "day", f.Day) {
			continue
		}

		data, err := s.dataset.Read(ctx, snap.ID)
		if err != nil {
			return nil, wrap("read", s.name, err)
		}
		for j := len(data) - 1; j >= 0; j-- {
			record, ok := data[j].(map[string]any)
			if !ok || record["record_kind"] != RecordKindRun {
				continue
			}
			ev, err := fromRecord(record)
			if err != nil {
				continue
			}
			key := ev.RunID + "|" + ev.Timestamp
			if seen[key] {
				continue
			}
			seen[key] = true

			day, _ := record["day"].(string)
			if !f.match(ev, day) {
				continue
			}
			runs = append(runs, ev)
			if f.Limit > 0 && len(runs) == f.Limit {
				return runs, nil
			}
		}
	}
	return runs, nil
}

func fromRecord(record map[string]any) (*adapter.RunCompletedEvent, error) {
	b, err := json.Marshal(record)
	if err != nil {
		return nil, err
	}
	var ev adapter.RunCompletedEvent
	if err := json.Unmarshal(b, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

// snapshotMatches reports whether any file of snap lies in the key=value
// partition. An empty value matches.
func snapshotMatches(snap *lode.DatasetSnapshot, key, value string) bool {
	if value == "" {
		return true
	}
	for _, f := range snap.Manifest.Files {
		if hasPartition(f.Path, key, value) {
			return true
		}
	}
	return false
}

// hasPartition matches whole path segments, so run-1 does not match
// run-10.
func hasPartition(path, key, value string) bool {
	segment := key + "=" + value
	for _, part := range strings.Split(path, "/") {
		if part == segment {
			return true
		}
	}
	return false
}

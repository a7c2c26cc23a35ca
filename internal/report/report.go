// Package report renders the final state of a run for headless mode.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"text/tabwriter"
	"time"

	"github.com/doridoridoriand/latcheck/internal/config"
	"github.com/doridoridoriand/latcheck/internal/events"
	"github.com/doridoridoriand/latcheck/internal/state"
)

// Result is the folded outcome of one run.
type Result struct {
	RunID     string
	Cancelled bool
	Targets   []state.Snapshot
}

// Collect folds drained events into a Result. Targets keep their configured
// order; a target that never reported keeps an empty snapshot.
func Collect(targets []config.Target, evs []events.Event) Result {
	res := Result{Targets: make([]state.Snapshot, len(targets))}
	index := make(map[string]int, len(targets))
	for i, tgt := range targets {
		res.Targets[i] = state.Snapshot{TargetID: tgt.ID, Address: tgt.Address}
		index[tgt.ID] = i
	}

	for _, ev := range evs {
		switch e := ev.(type) {
		case events.RunStarted:
			res.RunID = e.RunID
			for i := range res.Targets {
				res.Targets[i].ProbeCount = e.ProbeCount
			}
		case events.TargetUpdated:
			if i, ok := index[e.TargetID]; ok {
				res.Targets[i] = e.Stats
			}
		case events.TargetFinished:
			if i, ok := index[e.TargetID]; ok {
				res.Targets[i] = e.Stats
			}
		case events.RunCompleted:
			res.Cancelled = e.Cancelled
		}
	}
	return res
}

// WriteText prints an aligned table.
func WriteText(w io.Writer, res Result) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "LOCATION\tHOST\tPROGRESS\tMIN\tAVG\tMAX\tLOSS")
	for _, s := range res.Targets {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			s.TargetID, s.Address, s.Progress(), s.Min, s.Avg, s.Max, s.Loss())
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if res.Cancelled {
		_, err := fmt.Fprintln(w, "run stopped before completion")
		return err
	}
	return nil
}

type jsonTarget struct {
	ID         string     `json:"id"`
	Address    string     `json:"address"`
	Probes     int        `json:"probes"`
	Attempted  int        `json:"attempted"`
	Succeeded  int        `json:"succeeded"`
	MinMs      *float64   `json:"min_ms"`
	AvgMs      *float64   `json:"avg_ms"`
	MaxMs      *float64   `json:"max_ms"`
	LossPct    *int       `json:"loss_pct"`
	Error      string     `json:"error,omitempty"`
	LastUpdate *time.Time `json:"last_update,omitempty"`
}

type jsonReport struct {
	RunID     string       `json:"run_id"`
	Cancelled bool         `json:"cancelled"`
	Targets   []jsonTarget `json:"targets"`
}

// WriteJSON prints the result as one indented JSON document. Absent latencies
// and the loss of unprobed targets are null.
func WriteJSON(w io.Writer, res Result) error {
	out := jsonReport{RunID: res.RunID, Cancelled: res.Cancelled, Targets: make([]jsonTarget, 0, len(res.Targets))}
	for _, s := range res.Targets {
		jt := jsonTarget{
			ID:        s.TargetID,
			Address:   s.Address,
			Probes:    s.ProbeCount,
			Attempted: s.Attempted,
			Succeeded: s.Succeeded,
			MinMs:     millis(s.Min),
			AvgMs:     millis(s.Avg),
			MaxMs:     millis(s.Max),
			Error:     s.Fault,
		}
		if s.Attempted > 0 && !s.Faulted() {
			loss := s.LossPct
			jt.LossPct = &loss
		}
		if !s.LastUpdate.IsZero() {
			ts := s.LastUpdate
			jt.LastUpdate = &ts
		}
		out.Targets = append(out.Targets, jt)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func millis(m state.Millis) *float64 {
	if !m.Valid {
		return nil
	}
	v := math.Round(m.Value*10) / 10
	return &v
}

package ui

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/doridoridoriand/latcheck/internal/config"
	"github.com/doridoridoriand/latcheck/internal/events"
	"github.com/doridoridoriand/latcheck/internal/state"
)

type column int

const (
	colLocation column = iota
	colHost
	colProgress
	colMin
	colAvg
	colMax
	colLoss
	colLastCheck
	numColumns
)

var columnTitles = [numColumns]string{
	"Location", "Host", "Progress", "Min (ms)", "Avg (ms)", "Max (ms)", "Packet Loss", "Last Check",
}

// Minimum widths; Location, Host and Last Check absorb spare space.
var columnWidths = [numColumns]int{18, 28, 9, 9, 9, 9, 12, 20}

type row struct {
	target    config.Target
	stats     state.Snapshot
	lastCheck time.Time
}

// table is the consumer-side view model. Only the UI goroutine touches it.
type table struct {
	rows  []*row
	index map[string]*row
}

func newTable(targets []config.Target) *table {
	t := &table{index: make(map[string]*row, len(targets))}
	for _, tgt := range targets {
		r := &row{target: tgt}
		t.rows = append(t.rows, r)
		t.index[tgt.ID] = r
	}
	return t
}

// apply folds one event into the table.
func (t *table) apply(ev events.Event) {
	switch e := ev.(type) {
	case events.RunStarted:
		for _, r := range t.rows {
			r.stats = state.Snapshot{TargetID: r.target.ID, Address: r.target.Address, ProbeCount: e.ProbeCount}
		}
	case events.TargetUpdated:
		t.update(e.TargetID, e.Stats)
	case events.TargetFinished:
		t.update(e.TargetID, e.Stats)
	}
}

func (t *table) update(id string, snap state.Snapshot) {
	r, ok := t.index[id]
	if !ok {
		return
	}
	r.stats = snap
	if !snap.LastUpdate.IsZero() {
		r.lastCheck = snap.LastUpdate
	}
}

func (t *table) sortBy(col column, asc bool) {
	sort.SliceStable(t.rows, func(i, j int) bool {
		less := compareCells(t.rows[i], t.rows[j], col)
		if asc {
			return less < 0
		}
		return less > 0
	})
}

// compareCells orders numeric columns numerically with absent values lowest,
// and text columns case-insensitively.
func compareCells(a, b *row, col column) int {
	ka, numA := sortKey(a, col)
	kb, numB := sortKey(b, col)
	if numA && numB {
		switch {
		case ka < kb:
			return -1
		case ka > kb:
			return 1
		}
		return 0
	}
	return strings.Compare(strings.ToLower(cell(a, col)), strings.ToLower(cell(b, col)))
}

func sortKey(r *row, col column) (float64, bool) {
	s := r.stats
	switch col {
	case colProgress:
		return float64(s.Attempted), true
	case colMin:
		return optionalKey(s.Min), true
	case colAvg:
		return optionalKey(s.Avg), true
	case colMax:
		return optionalKey(s.Max), true
	case colLoss:
		if s.Faulted() {
			return math.Inf(1), true
		}
		if s.Attempted == 0 {
			return math.Inf(-1), true
		}
		return float64(s.LossPct), true
	case colLastCheck:
		if r.lastCheck.IsZero() {
			return math.Inf(-1), true
		}
		return float64(r.lastCheck.UnixNano()), true
	}
	return 0, false
}

func optionalKey(m state.Millis) float64 {
	if !m.Valid {
		return math.Inf(-1)
	}
	return m.Value
}

func cell(r *row, col column) string {
	s := r.stats
	switch col {
	case colLocation:
		return r.target.ID
	case colHost:
		return r.target.Address
	case colProgress:
		if s.ProbeCount == 0 {
			return "-"
		}
		return s.Progress()
	case colMin:
		return s.Min.String()
	case colAvg:
		return s.Avg.String()
	case colMax:
		return s.Max.String()
	case colLoss:
		return s.Loss()
	case colLastCheck:
		if r.lastCheck.IsZero() {
			return "Not checked"
		}
		return r.lastCheck.Format("2006-01-02 15:04:05")
	}
	return ""
}

// layoutColumns spreads spare width over the stretchable columns.
func layoutColumns(width int) [numColumns]int {
	widths := columnWidths
	used := 0
	for _, w := range widths {
		used += w + 1
	}
	spare := width - used
	if spare <= 0 {
		return widths
	}
	stretch := []column{colLocation, colHost, colLastCheck}
	for i, col := range stretch {
		share := spare / (len(stretch) - i)
		widths[col] += share
		spare -= share
	}
	return widths
}

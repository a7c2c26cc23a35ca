package state

import (
	"fmt"
	"math"
	"time"

	"github.com/doridoridoriand/latcheck/internal/ping"
)

// Millis is an optional latency in milliseconds.
type Millis struct {
	Value float64
	Valid bool
}

// Ms returns a present latency.
func Ms(v float64) Millis {
	return Millis{Value: v, Valid: true}
}

// String renders the value rounded half to even to whole milliseconds, or
// "-" when absent.
func (m Millis) String() string {
	if !m.Valid {
		return "-"
	}
	return fmt.Sprintf("%.0f", math.RoundToEven(m.Value))
}

// Snapshot is an immutable copy of a target's statistics.
type Snapshot struct {
	TargetID   string
	Address    string
	ProbeCount int
	Attempted  int
	Succeeded  int
	Min        Millis
	Avg        Millis
	Max        Millis
	LossPct    int
	LastUpdate time.Time
	// Fault is set when probing stopped on an unexpected error.
	Fault string
}

// Faulted reports whether the target stopped on an error.
func (s Snapshot) Faulted() bool {
	return s.Fault != ""
}

// Progress renders "attempted/probeCount".
func (s Snapshot) Progress() string {
	return fmt.Sprintf("%d/%d", s.Attempted, s.ProbeCount)
}

// Loss renders the loss column, "error" for faulted targets.
func (s Snapshot) Loss() string {
	if s.Faulted() {
		return "error"
	}
	if s.Attempted == 0 {
		return "-"
	}
	return fmt.Sprintf("%d%%", s.LossPct)
}

// TargetStats accumulates running statistics for one target.
// It is not safe for concurrent use; the owning runner is the only writer and
// everyone else sees Snapshot copies.
type TargetStats struct {
	id         string
	address    string
	probeCount int

	attempted  int
	succeeded  int
	sum        float64
	min        float64
	max        float64
	lastUpdate time.Time
	fault      string

	now func() time.Time
}

// NewTargetStats creates empty statistics for a target.
func NewTargetStats(id, address string, probeCount int) *TargetStats {
	return &TargetStats{
		id:         id,
		address:    address,
		probeCount: probeCount,
		now:        time.Now,
	}
}

// Record adds one probe outcome and returns the updated snapshot.
func (t *TargetStats) Record(sample ping.Sample) Snapshot {
	t.attempted++
	if sample.Received {
		ms := sample.Milliseconds()
		if t.succeeded == 0 || ms < t.min {
			t.min = ms
		}
		if t.succeeded == 0 || ms > t.max {
			t.max = ms
		}
		t.sum += ms
		t.succeeded++
	}
	t.lastUpdate = t.now()
	return t.Snapshot()
}

// Fail marks the target as stopped by err and returns the updated snapshot.
func (t *TargetStats) Fail(err error) Snapshot {
	if err != nil {
		t.fault = err.Error()
	} else {
		t.fault = "unknown error"
	}
	t.lastUpdate = t.now()
	return t.Snapshot()
}

// Attempted returns the number of probes recorded so far.
func (t *TargetStats) Attempted() int {
	return t.attempted
}

// Snapshot returns a read-only copy of the current statistics.
func (t *TargetStats) Snapshot() Snapshot {
	snap := Snapshot{
		TargetID:   t.id,
		Address:    t.address,
		ProbeCount: t.probeCount,
		Attempted:  t.attempted,
		Succeeded:  t.succeeded,
		LossPct:    LossPercent(t.attempted, t.succeeded),
		LastUpdate: t.lastUpdate,
		Fault:      t.fault,
	}
	if t.succeeded > 0 {
		// The running sum can drift by an ulp; keep min <= avg <= max.
		avg := math.Min(math.Max(t.sum/float64(t.succeeded), t.min), t.max)
		snap.Min = Ms(t.min)
		snap.Avg = Ms(avg)
		snap.Max = Ms(t.max)
	}
	return snap
}

// LossPercent is the share of lost probes among those issued so far, rounded
// half to even (1 of 8 lost is 12%).
func LossPercent(attempted, succeeded int) int {
	if attempted <= 0 {
		return 0
	}
	return int(math.RoundToEven(float64((attempted-succeeded)*100) / float64(attempted)))
}

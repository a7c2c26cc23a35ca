package scheduler

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/doridoridoriand/latcheck/internal/config"
	"github.com/doridoridoriand/latcheck/internal/events"
	"github.com/doridoridoriand/latcheck/internal/log"
	"github.com/doridoridoriand/latcheck/internal/ping"
	"github.com/doridoridoriand/latcheck/internal/state"
)

// runner probes one target up to probeCount times. It is the only writer of
// its TargetStats; everything it publishes is a snapshot copy.
type runner struct {
	target     config.Target
	probeCount int
	run        *state.RunState
	pinger     ping.Pinger
	bus        *events.Bus
	logger     *log.Logger
	timeout    time.Duration
	stats      *state.TargetStats
}

func newRunner(
	target config.Target,
	probeCount int,
	run *state.RunState,
	pinger ping.Pinger,
	bus *events.Bus,
	logger *log.Logger,
	timeout time.Duration,
) *runner {
	return &runner{
		target:     target,
		probeCount: probeCount,
		run:        run,
		pinger:     pinger,
		bus:        bus,
		logger:     logger,
		timeout:    timeout,
		stats:      state.NewTargetStats(target.ID, target.Address, probeCount),
	}
}

func (r *runner) loop() {
	r.logger.Info("starting ping test", r.fields(map[string]interface{}{"probes": r.probeCount}))
	r.bus.Publish(events.TargetUpdated{TargetID: r.target.ID, Stats: r.stats.Snapshot()})

	// Cancellation is checked between probes only; a probe in flight runs
	// until its own timeout.
	for r.stats.Attempted() < r.probeCount && !r.run.CancelRequested() {
		sample, err := r.probeOnce()
		if err != nil {
			snap := r.stats.Fail(err)
			r.logger.Error("ping test failed", r.fields(map[string]interface{}{
				"error":     err.Error(),
				"attempted": snap.Attempted,
			}))
			r.bus.Publish(events.TargetFinished{TargetID: r.target.ID, Stats: snap})
			return
		}
		snap := r.stats.Record(sample)
		r.logger.Debug("probe recorded", r.fields(map[string]interface{}{
			"received": sample.Received,
			"rtt_ms":   sample.Milliseconds(),
			"progress": snap.Progress(),
		}))
		r.bus.Publish(events.TargetUpdated{TargetID: r.target.ID, Stats: snap})
	}

	snap := r.stats.Snapshot()
	r.logResult(snap)
	r.bus.Publish(events.TargetFinished{TargetID: r.target.ID, Stats: snap})
}

// probeOnce turns a panicking pinger into an error so one target cannot take
// down the pool.
func (r *runner) probeOnce() (sample ping.Sample, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			sample, err = ping.Lost, fmt.Errorf("probe panicked: %v", rec)
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	return r.pinger.Probe(ctx, r.target.Address, r.timeout)
}

func (r *runner) logResult(snap state.Snapshot) {
	switch {
	case snap.Attempted < r.probeCount:
		r.logger.Info("ping test stopped", r.fields(map[string]interface{}{
			"progress": snap.Progress(),
		}))
	case snap.Succeeded == 0:
		r.logger.Warn("no response", r.fields(nil))
	default:
		r.logger.Info("ping test completed", r.fields(map[string]interface{}{
			"min_ms":   round1(snap.Min.Value),
			"avg_ms":   round1(snap.Avg.Value),
			"max_ms":   round1(snap.Max.Value),
			"loss_pct": snap.LossPct,
		}))
	}
}

func (r *runner) fields(extra map[string]interface{}) map[string]interface{} {
	fields := map[string]interface{}{
		"run_id":  r.run.ID(),
		"target":  r.target.ID,
		"address": r.target.Address,
	}
	for k, v := range extra {
		fields[k] = v
	}
	return fields
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

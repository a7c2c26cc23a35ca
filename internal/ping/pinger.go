package ping

import (
	"context"
	"time"
)

// Sample captures the outcome of a single probe.
// Received is false when no usable round-trip time came back.
type Sample struct {
	RTT      time.Duration
	Received bool
}

// Milliseconds returns the RTT as fractional milliseconds.
func (s Sample) Milliseconds() float64 {
	return float64(s.RTT) / float64(time.Millisecond)
}

// Lost is the absent sample.
var Lost = Sample{}

// Reply wraps a measured round-trip time.
func Reply(rtt time.Duration) Sample {
	return Sample{RTT: rtt, Received: true}
}

// Pinger sends a single probe and returns the sample.
// Timeouts and unreachable hosts yield Lost with a nil error; a non-nil error
// means the probe could not be issued at all (bad address, permissions).
type Pinger interface {
	Probe(ctx context.Context, addr string, timeout time.Duration) (Sample, error)
}

// Func adapts a plain function to the Pinger interface.
type Func func(ctx context.Context, addr string, timeout time.Duration) (Sample, error)

// Probe calls f.
func (f Func) Probe(ctx context.Context, addr string, timeout time.Duration) (Sample, error) {
	return f(ctx, addr, timeout)
}

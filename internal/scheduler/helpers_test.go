package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/doridoridoriand/latcheck/internal/config"
	"github.com/doridoridoriand/latcheck/internal/events"
	"github.com/doridoridoriand/latcheck/internal/ping"
	"github.com/doridoridoriand/latcheck/internal/state"
)

const runDeadline = 5 * time.Second

func twoTargets() []config.Target {
	return []config.Target{
		{ID: "A", Address: "192.0.2.1"},
		{ID: "B", Address: "192.0.2.2"},
	}
}

func waitDone(t *testing.T, s *Impl) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(runDeadline):
		t.Fatalf("run did not complete within %v", runDeadline)
	}
}

type runLog struct {
	started   []events.RunStarted
	updates   map[string][]state.Snapshot
	finals    map[string]state.Snapshot
	finishes  map[string]int
	completed []events.RunCompleted
}

func collect(evs []events.Event) runLog {
	log := runLog{
		updates:  make(map[string][]state.Snapshot),
		finals:   make(map[string]state.Snapshot),
		finishes: make(map[string]int),
	}
	for _, ev := range evs {
		switch e := ev.(type) {
		case events.RunStarted:
			log.started = append(log.started, e)
		case events.TargetUpdated:
			log.updates[e.TargetID] = append(log.updates[e.TargetID], e.Stats)
		case events.TargetFinished:
			log.finals[e.TargetID] = e.Stats
			log.finishes[e.TargetID]++
		case events.RunCompleted:
			log.completed = append(log.completed, e)
		}
	}
	return log
}

// gatePinger answers the first probe per address immediately and holds every
// later probe until release is closed.
type gatePinger struct {
	mu      sync.Mutex
	calls   map[string]int
	release chan struct{}
}

func newGatePinger() *gatePinger {
	return &gatePinger{calls: make(map[string]int), release: make(chan struct{})}
}

func (p *gatePinger) Probe(ctx context.Context, addr string, timeout time.Duration) (ping.Sample, error) {
	p.mu.Lock()
	p.calls[addr]++
	n := p.calls[addr]
	p.mu.Unlock()
	if n > 1 {
		<-p.release
	}
	return ping.Reply(time.Millisecond), nil
}

func (p *gatePinger) count(addr string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[addr]
}

func (p *gatePinger) waitFor(t *testing.T, addr string, count int) {
	t.Helper()
	deadline := time.After(runDeadline)
	for p.count(addr) < count {
		select {
		case <-deadline:
			t.Fatalf("timeout waiting for %d probes of %s", count, addr)
		case <-time.After(time.Millisecond):
		}
	}
}

// concurrencyPinger tracks the peak number of probes in flight.
type concurrencyPinger struct {
	inFlight int32
	max      int32
	delay    time.Duration
}

func (p *concurrencyPinger) Probe(ctx context.Context, addr string, timeout time.Duration) (ping.Sample, error) {
	current := atomic.AddInt32(&p.inFlight, 1)
	defer atomic.AddInt32(&p.inFlight, -1)

	for {
		max := atomic.LoadInt32(&p.max)
		if current <= max {
			break
		}
		if atomic.CompareAndSwapInt32(&p.max, max, current) {
			break
		}
	}

	time.Sleep(p.delay)
	return ping.Reply(p.delay), nil
}

package ping

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"runtime"
	"strconv"
	"time"
)

// Matches "time=12.5 ms" (Linux, macOS) and "time=12ms" / "time<1ms" (Windows).
var timePattern = regexp.MustCompile(`time[=<]([0-9.]+)\s*ms`)

// ExternalPinger invokes the system ping command for environments without raw socket access.
type ExternalPinger struct {
	goos    string
	command func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewExternalPinger returns a ping implementation that shells out to ping.
func NewExternalPinger() *ExternalPinger {
	return &ExternalPinger{goos: runtime.GOOS, command: runCommand}
}

// Probe runs the system ping command and parses the RTT from stdout.
// A non-zero exit or output without a time field is a lost probe; failing to
// start the command at all is an error.
func (p *ExternalPinger) Probe(ctx context.Context, addr string, timeout time.Duration) (Sample, error) {
	if ctx.Err() != nil {
		return Lost, nil
	}
	out, err := p.command(ctx, "ping", pingArgs(p.goos, addr, timeout)...)
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) || ctx.Err() != nil {
			return Lost, nil
		}
		return Lost, fmt.Errorf("external ping failed: %w", err)
	}

	rtt, ok := parseRTT(out)
	if !ok {
		return Lost, nil
	}
	return Reply(rtt), nil
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

func pingArgs(goos string, addr string, timeout time.Duration) []string {
	switch goos {
	case "windows":
		timeoutMs := maxInt(1, int(timeout.Milliseconds()))
		return []string{"-n", "1", "-w", strconv.Itoa(timeoutMs), addr}
	case "darwin":
		timeoutMs := maxInt(100, int(timeout.Milliseconds()))
		return []string{"-n", "-c", "1", "-W", strconv.Itoa(timeoutMs), addr}
	default:
		timeoutSec := maxInt(1, int(timeout.Seconds()+0.5))
		return []string{"-n", "-c", "1", "-W", strconv.Itoa(timeoutSec), addr}
	}
}

func parseRTT(output []byte) (time.Duration, bool) {
	matches := timePattern.FindSubmatch(output)
	if len(matches) < 2 {
		return 0, false
	}
	value, err := strconv.ParseFloat(string(matches[1]), 64)
	if err != nil {
		return 0, false
	}
	return time.Duration(value * float64(time.Millisecond)), true
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

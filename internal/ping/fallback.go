package ping

import (
	"context"
	"errors"
	"os"
	"strings"
	"syscall"
	"time"
)

// FallbackPinger delegates to primary, then secondary when permission errors occur.
type FallbackPinger struct {
	primary   Pinger
	secondary Pinger
}

// NewFallbackPinger wraps primary with a secondary fallback.
func NewFallbackPinger(primary, secondary Pinger) *FallbackPinger {
	return &FallbackPinger{primary: primary, secondary: secondary}
}

// Probe uses the primary pinger and falls back on permission-related errors.
func (p *FallbackPinger) Probe(ctx context.Context, addr string, timeout time.Duration) (Sample, error) {
	sample, err := p.primary.Probe(ctx, addr, timeout)
	if err == nil || !isPermissionError(err) {
		return sample, err
	}
	return p.secondary.Probe(ctx, addr, timeout)
}

func isPermissionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, os.ErrPermission) || errors.Is(err, syscall.EPERM) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "operation not permitted") || strings.Contains(msg, "permission denied")
}

// NewDefault returns the pinger used by the command: raw ICMP with a
// fallback to the system ping binary.
func NewDefault() Pinger {
	icmpPinger, err := NewICMPPinger()
	if err != nil {
		return NewExternalPinger()
	}
	return NewFallbackPinger(icmpPinger, NewExternalPinger())
}

package ping

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

const echoData = "latcheck"

// ICMPPinger sends ICMP echo requests using raw sockets.
type ICMPPinger struct {
	id       int
	seq      uint32
	resolver *resolver
}

// NewICMPPinger initializes a pinger with a process-scoped identifier.
func NewICMPPinger() (*ICMPPinger, error) {
	return &ICMPPinger{
		id:       os.Getpid() & 0xffff,
		resolver: newResolver(defaultResolveTTL),
	}, nil
}

// Probe sends one ICMP echo request and waits for the matching reply.
func (p *ICMPPinger) Probe(ctx context.Context, addr string, timeout time.Duration) (Sample, error) {
	if err := ctx.Err(); err != nil {
		return Lost, nil
	}

	ip, err := p.resolver.resolve(ctx, addr)
	if err != nil {
		return Lost, err
	}

	network, protocol, requestType, replyType := icmpSettings(ip.IP)
	conn, err := icmp.ListenPacket(network, "")
	if err != nil {
		return Lost, fmt.Errorf("open icmp socket: %w", err)
	}
	defer conn.Close()

	seq := int(atomic.AddUint32(&p.seq, 1) & 0xffff)
	msg := icmp.Message{
		Type: requestType,
		Code: 0,
		Body: &icmp.Echo{
			ID:   p.id,
			Seq:  seq,
			Data: []byte(echoData),
		},
	}

	payload, err := msg.Marshal(nil)
	if err != nil {
		return Lost, err
	}

	deadline := effectiveDeadline(ctx, timeout)
	if err := conn.SetDeadline(deadline); err != nil {
		return Lost, err
	}

	start := time.Now()
	if _, err := conn.WriteTo(payload, ip); err != nil {
		if isUnreachable(err) {
			return Lost, nil
		}
		return Lost, err
	}

	buf := make([]byte, 1500)
	for {
		if ctx.Err() != nil {
			return Lost, nil
		}

		n, peer, err := conn.ReadFrom(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return Lost, nil
			}
			return Lost, err
		}
		if peer == nil {
			continue
		}

		reply, err := icmp.ParseMessage(protocol, buf[:n])
		if err != nil {
			continue
		}
		if reply.Type != replyType {
			continue
		}
		body, ok := reply.Body.(*icmp.Echo)
		if !ok {
			continue
		}
		if body.ID != p.id || body.Seq != seq {
			continue
		}

		return Reply(time.Since(start)), nil
	}
}

func icmpSettings(ip net.IP) (network string, protocol int, requestType icmp.Type, replyType icmp.Type) {
	if ip.To4() != nil {
		return "ip4:icmp", ipv4.ICMPTypeEcho.Protocol(), ipv4.ICMPTypeEcho, ipv4.ICMPTypeEchoReply
	}
	return "ip6:ipv6-icmp", ipv6.ICMPTypeEchoRequest.Protocol(), ipv6.ICMPTypeEchoRequest, ipv6.ICMPTypeEchoReply
}

func effectiveDeadline(ctx context.Context, timeout time.Duration) time.Time {
	deadline := time.Now().Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		return ctxDeadline
	}
	return deadline
}

// isUnreachable reports send failures that mean "no route" rather than a
// broken probe, so they count as loss.
func isUnreachable(err error) bool {
	return errors.Is(err, syscall.ENETUNREACH) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.EHOSTDOWN)
}

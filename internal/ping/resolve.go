package ping

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

const defaultResolveTTL = 5 * time.Minute

// resolver caches address lookups so repeated probes of one host skip DNS.
type resolver struct {
	cache  *ttlcache.Cache[string, *net.IPAddr]
	lookup func(ctx context.Context, host string) ([]net.IPAddr, error)
}

func newResolver(ttl time.Duration) *resolver {
	if ttl <= 0 {
		ttl = defaultResolveTTL
	}
	return &resolver{
		cache: ttlcache.New(
			ttlcache.WithTTL[string, *net.IPAddr](ttl),
			ttlcache.WithDisableTouchOnHit[string, *net.IPAddr](),
		),
		lookup: net.DefaultResolver.LookupIPAddr,
	}
}

func (r *resolver) resolve(ctx context.Context, addr string) (*net.IPAddr, error) {
	if item := r.cache.Get(addr); item != nil {
		return item.Value(), nil
	}

	var ipAddr *net.IPAddr
	if ip := net.ParseIP(addr); ip != nil {
		ipAddr = &net.IPAddr{IP: ip}
	} else {
		addrs, err := r.lookup(ctx, addr)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", addr, err)
		}
		if len(addrs) == 0 || addrs[0].IP == nil {
			return nil, fmt.Errorf("invalid IP address: %s", addr)
		}
		ipAddr = &addrs[0]
	}
	r.cache.Set(addr, ipAddr, ttlcache.DefaultTTL)
	return ipAddr, nil
}

func (r *resolver) len() int {
	return r.cache.Len()
}

package validate

import (
	"context"
	"net"
	"time"
)

// NewNetResolver returns a resolver for MX lookups. When nameserver is set
// (host:port) queries go to it directly using the pure Go resolver.
func NewNetResolver(nameserver string, dialTimeout time.Duration) *net.Resolver {
	if nameserver == "" {
		return &net.Resolver{}
	}
	if dialTimeout <= 0 {
		dialTimeout = 10 * time.Second
	}

	return &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, _ string) (net.Conn, error) {
			d := net.Dialer{Timeout: dialTimeout}
			return d.DialContext(ctx, network, nameserver)
		},
	}
}

package saw

import (
	"context"
	"net"
	"strconv"
)

// Address is a resolved network address: an IP plus port, the portable
// value type behind the Listen/Connect/Datagram surface.
type Address struct {
	IP   net.IP
	Port uint16
	Zone string
}

func (a Address) String() string {
	host := a.IP.String()
	if a.Zone != "" {
		host += "%" + a.Zone
	}
	return net.JoinHostPort(host, strconv.Itoa(int(a.Port)))
}

// Network reports the address family ("tcp"/"tcp6") Listen/Connect should
// use for a.
func (a Address) Network() string {
	if a.IP.To4() == nil {
		return "tcp6"
	}
	return "tcp"
}

// ResolveAddress resolves host to an [Address], using portHint when host
// does not itself encode a port (e.g. it came from a config file as a bare
// hostname). DNS lookups block, so resolution runs on a dedicated
// goroutine; the result is posted back onto loop via
// [Loop.PostFromAnyGoroutine], preserving the invariant that conveyor
// mutation only ever happens on the loop's own goroutine.
func ResolveAddress(loop *Loop, host string, portHint uint16) *Conveyor[Address] {
	conv, feeder := NewOneTimeConveyorAndFeeder[Address](loop)
	resolveHost, resolvePort := host, portHint
	if h, p, err := net.SplitHostPort(host); err == nil {
		resolveHost = h
		if n, perr := strconv.Atoi(p); perr == nil {
			resolvePort = uint16(n)
		}
	}
	loop.BeginAsyncWork()
	go func() {
		ips, err := net.DefaultResolver.LookupIPAddr(context.Background(), resolveHost)
		loop.PostFromAnyGoroutine(func() {
			if err != nil {
				feeder.Fail(CriticalErrorf("saw: resolving %q: %v", host, err))
				return
			}
			if len(ips) == 0 {
				feeder.Fail(CriticalErrorf("saw: no addresses found for %q", host))
				return
			}
			feeder.Feed(Address{IP: ips[0].IP, Port: resolvePort, Zone: ips[0].Zone})
		})
	}()
	return conv
}

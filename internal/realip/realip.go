// Package realip resolves the IP address an announce should be attributed
// to, replacing the teacher's i2p/Lokinet-specific network package with
// the X-Forwarded-For/trust_proxy logic this tracker's HTTP front-end
// actually needs.
package realip

import (
	"net"
	"net/http"
	"strings"
)

var disallowedRanges = mustParseCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"127.0.0.0/8",
	"169.254.0.0/16",
	"::1/128",
	"fc00::/7",
	"fe80::/10",
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic("realip: invalid CIDR literal: " + err.Error())
		}
		nets = append(nets, n)
	}
	return nets
}

// Disallowed reports whether ip falls in a private, loopback, or
// link-local range. A client-supplied `ip` query parameter naming such an
// address is rejected when trust_proxy is off, per spec 4.4.
func Disallowed(ip net.IP) bool {
	for _, n := range disallowedRanges {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// FromRequest resolves the address to attribute a request to: the
// socket's remote address, or, when trustProxy is set, the rightmost hop
// of X-Forwarded-For (the entry the nearest reverse proxy appended).
func FromRequest(r *http.Request, trustProxy bool) net.IP {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			if ip := rightmostHop(xff); ip != nil {
				return ip
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return net.ParseIP(host)
}

func rightmostHop(xff string) net.IP {
	parts := strings.Split(xff, ",")
	last := strings.TrimSpace(parts[len(parts)-1])
	return net.ParseIP(last)
}

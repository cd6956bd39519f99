package realip

import (
	"net"
	"net/http"
	"testing"
)

func TestFromRequestSocketAddr(t *testing.T) {
	r := &http.Request{RemoteAddr: "203.0.113.7:4444", Header: http.Header{}}
	ip := FromRequest(r, false)
	if ip.String() != "203.0.113.7" {
		t.Fatalf("got %s", ip)
	}
}

func TestFromRequestTrustsXFFRightmostHop(t *testing.T) {
	r := &http.Request{RemoteAddr: "10.0.0.1:4444", Header: http.Header{}}
	r.Header.Set("X-Forwarded-For", "198.51.100.9, 203.0.113.7")
	ip := FromRequest(r, true)
	if ip.String() != "203.0.113.7" {
		t.Fatalf("expected rightmost hop 203.0.113.7, got %s", ip)
	}
}

func TestFromRequestIgnoresXFFWithoutTrustProxy(t *testing.T) {
	r := &http.Request{RemoteAddr: "203.0.113.7:4444", Header: http.Header{}}
	r.Header.Set("X-Forwarded-For", "198.51.100.9")
	ip := FromRequest(r, false)
	if ip.String() != "203.0.113.7" {
		t.Fatalf("expected socket addr when trust_proxy is off, got %s", ip)
	}
}

func TestDisallowed(t *testing.T) {
	cases := []struct {
		ip   string
		want bool
	}{
		{"10.1.2.3", true},
		{"192.168.1.1", true},
		{"127.0.0.1", true},
		{"8.8.8.8", false},
		{"203.0.113.7", false},
	}
	for _, c := range cases {
		got := Disallowed(net.ParseIP(c.ip))
		if got != c.want {
			t.Errorf("Disallowed(%s) = %v, want %v", c.ip, got, c.want)
		}
	}
}

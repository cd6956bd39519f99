package udp

import (
	"net"
	"testing"
	"time"
)

func TestConnectionIDsIssueAndValidate(t *testing.T) {
	c := newConnectionIDs(time.Minute)
	addr := &net.UDPAddr{IP: net.ParseIP("198.51.100.1"), Port: 6881}

	id := c.issue(addr)
	if !c.valid(id, addr) {
		t.Fatal("expected freshly issued connection id to validate")
	}
}

func TestConnectionIDsRejectsWrongAddr(t *testing.T) {
	c := newConnectionIDs(time.Minute)
	addr := &net.UDPAddr{IP: net.ParseIP("198.51.100.1"), Port: 6881}
	other := &net.UDPAddr{IP: net.ParseIP("198.51.100.2"), Port: 6881}

	id := c.issue(addr)
	if c.valid(id, other) {
		t.Fatal("expected connection id bound to a different address to be rejected")
	}
}

func TestConnectionIDsExpire(t *testing.T) {
	c := newConnectionIDs(time.Millisecond)
	addr := &net.UDPAddr{IP: net.ParseIP("198.51.100.1"), Port: 6881}

	id := c.issue(addr)
	time.Sleep(5 * time.Millisecond)
	if c.valid(id, addr) {
		t.Fatal("expected expired connection id to be rejected")
	}
}

func TestConnectionIDsSweepRemovesExpired(t *testing.T) {
	c := newConnectionIDs(time.Millisecond)
	addr := &net.UDPAddr{IP: net.ParseIP("198.51.100.1"), Port: 6881}

	c.issue(addr)
	time.Sleep(5 * time.Millisecond)
	c.sweep()

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) != 0 {
		t.Fatalf("expected sweep to remove expired entries, got %d remaining", len(c.entries))
	}
}

// Copyright 2015 The Chihaya Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

package bittorrent

import (
	"net"
	"testing"
)

func TestInfoHashFromBytes(t *testing.T) {
	if _, err := InfoHashFromBytes(make([]byte, 19)); err == nil {
		t.Fatal("expected error for short info_hash")
	}
	if _, err := InfoHashFromBytes(make([]byte, 21)); err == nil {
		t.Fatal("expected error for long info_hash")
	}

	raw := make([]byte, InfoHashLen)
	for i := range raw {
		raw[i] = 0xAA
	}
	ih, err := InfoHashFromBytes(raw)
	if err != nil {
		t.Fatalf("InfoHashFromBytes: %s", err)
	}
	if ih.RawString() != string(raw) {
		t.Fatal("RawString did not round-trip")
	}
}

func TestPeerIDClientID(t *testing.T) {
	cases := []struct {
		id   string
		want string
	}{
		{"-TR2940-k8hj0wgej6ch", "TR2940"},
		{"M1-2-3--abcdefghijkl", "M1-2-3"},
	}

	for _, c := range cases {
		var raw [PeerIDLen]byte
		copy(raw[:], c.id)
		id, err := PeerIDFromBytes(raw[:])
		if err != nil {
			t.Fatalf("PeerIDFromBytes: %s", err)
		}
		if got := id.ClientID(); got != c.want {
			t.Errorf("ClientID(%q) = %q, want %q", c.id, got, c.want)
		}
	}
}

func TestSanitizeAnnounce(t *testing.T) {
	r := &AnnounceRequest{}
	SanitizeAnnounce(r, 100, 50, false)
	if r.NumWant != 50 {
		t.Errorf("expected fallback 50, got %d", r.NumWant)
	}

	r = &AnnounceRequest{NumWant: 9000}
	SanitizeAnnounce(r, 100, 50, true)
	if r.NumWant != 100 {
		t.Errorf("expected clamp to 100, got %d", r.NumWant)
	}

	r = &AnnounceRequest{NumWant: 10}
	SanitizeAnnounce(r, 100, 50, true)
	if r.NumWant != 10 {
		t.Errorf("expected untouched 10, got %d", r.NumWant)
	}
}

func TestPeerCompactV4(t *testing.T) {
	p := Peer{
		IP:   IP{IP: net.ParseIP("10.0.0.1").To4(), AddressFamily: IPv4},
		Port: 6881,
	}
	b := p.CompactV4()
	want := [6]byte{10, 0, 0, 1, 0x1A, 0xE1}
	if b != want {
		t.Errorf("CompactV4() = %v, want %v", b, want)
	}
}

func TestEventRoundTrip(t *testing.T) {
	for _, s := range []string{"", "started", "stopped", "completed", "paused"} {
		e, err := NewEvent(s)
		if err != nil {
			t.Fatalf("NewEvent(%q): %s", s, err)
		}
		if got := e.String(); got != s {
			t.Errorf("NewEvent(%q).String() = %q, want %q", s, got, s)
		}
	}
	if _, err := NewEvent("bogus"); err == nil {
		t.Fatal("expected error for unknown event")
	}
}

// Copyright 2015 The Chihaya Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

package bittorrent

import "net"

// IP wraps a net.IP with the address family it was announced under, so
// dual-stacked peers can be routed into the correct compact stream even
// after the IP has been through a dual-stack socket.
type IP struct {
	net.IP
	AddressFamily AddressFamily
}

// Peer represents a participant in a BitTorrent swarm.
type Peer struct {
	ID   PeerID
	IP   IP
	Port uint16

	// Key is an opaque per-client secret echoed on re-announce, used to
	// harden against a different endpoint spoofing this peer's identity.
	Key string

	Uploaded   uint64
	Downloaded uint64
	Left       uint64

	// Paused peers are retained in the swarm table (still counted toward
	// seeder/leecher aggregates) but are never advertised to other peers.
	Paused bool

	// UserID is set by the authenticator's pre-hook when the announce
	// carried a resolved identity; zero for anonymous/public-tracker
	// peers. Carried through to PeerDiff so a diff consumer can attribute
	// an eviction or expiry to the user it belonged to.
	UserID uint64
}

// Seeding reports whether a peer has completed the download it is
// swarming, per the protocol's definition (left == 0).
func (p Peer) Seeding() bool { return p.Left == 0 }

// Equal reports whether two peers represent the same swarm participant,
// i.e. same peer ID at the same network endpoint.
func (p Peer) Equal(other Peer) bool {
	return p.ID == other.ID && p.Port == other.Port && p.IP.Equal(other.IP.IP)
}

// CompactV4 renders the peer as the 6-byte compact record BEP 23
// specifies: 4-byte IPv4 address, 2-byte big-endian port.
func (p Peer) CompactV4() [6]byte {
	var b [6]byte
	ip4 := p.IP.To4()
	copy(b[:4], ip4)
	b[4] = byte(p.Port >> 8)
	b[5] = byte(p.Port & 0xff)
	return b
}

// CompactV6 renders the peer as the 18-byte compact record used for the
// `peers6` field: 16-byte IPv6 address, 2-byte big-endian port.
func (p Peer) CompactV6() [18]byte {
	var b [18]byte
	ip6 := p.IP.To16()
	copy(b[:16], ip6)
	b[16] = byte(p.Port >> 8)
	b[17] = byte(p.Port & 0xff)
	return b
}

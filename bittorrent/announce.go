// Copyright 2015 The Chihaya Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

package bittorrent

// AnnounceRequest is the normalized form of an announce, built by every
// front-end from its own wire format before being handed to the swarm
// registry and the middleware chain.
type AnnounceRequest struct {
	InfoHash InfoHash
	Peer     Peer
	Event    Event

	Compact bool
	NumWant uint32

	// AuthToken is the opaque per-user credential resolved by the
	// authenticator; empty on a public tracker that received none.
	AuthToken string

	// TrackerID is echoed back verbatim if the client supplied one.
	TrackerID string

	// Params carries any BEP 41 optional parameters the client attached.
	Params Params
}

// HasIPv6 reports whether the announcing peer's address is IPv6.
func (r AnnounceRequest) HasIPv6() bool { return r.Peer.IP.AddressFamily == IPv6 }

// AnnounceResponse is the normalized result of an announce, encoded by the
// front-end that produced the request into its own wire format.
type AnnounceResponse struct {
	Interval    int
	MinInterval int
	TrackerID   string

	Complete   int
	Incomplete int

	Compact bool

	IPv4Peers []Peer
	IPv6Peers []Peer
}

// DiffKind classifies how a peer's presence in a swarm changed as the
// result of an announce, a time-wheel sweep, or an LRU eviction. Consumers
// that don't own the swarm registry (the credit engine, the stats
// aggregator) use it to keep their own bookkeeping in sync without
// re-deriving it from the raw announce.
type DiffKind uint8

const (
	// DiffJoined is emitted the first time a peer appears in a swarm.
	DiffJoined DiffKind = iota
	// DiffUpdated is emitted for a re-announce from an existing peer.
	DiffUpdated
	// DiffCompleted is emitted exactly once, when a peer transitions from
	// leeching to seeding.
	DiffCompleted
	// DiffLeft is emitted when a peer announces "stopped".
	DiffLeft
	// DiffExpired is emitted by the time wheel when a peer's TTL lapses
	// without a "stopped" announce.
	DiffExpired
	// DiffEvicted is emitted when a swarm at its peer cap evicts its
	// least-recently-announced peer to make room for a new one.
	DiffEvicted
)

// PeerDiff describes a single change to a swarm's peer table, produced by
// the swarm registry's announce handling, the time wheel, or LRU eviction,
// and consumed by the credit engine and the stats aggregator.
type PeerDiff struct {
	InfoHash InfoHash
	Peer     Peer
	Kind     DiffKind

	// UserID is set when the peer's announce carried a resolved identity;
	// it is zero for anonymous/public-tracker peers.
	UserID uint64
}

// SanitizeAnnounce clamps and defaults an AnnounceRequest's NumWant in
// place, per spec: default to fallback, cap at max, reject negative values
// (callers parse NumWant as unsigned already, so only the cap applies).
func SanitizeAnnounce(r *AnnounceRequest, max, fallback uint32, numWantProvided bool) {
	if !numWantProvided {
		r.NumWant = fallback
		return
	}
	if r.NumWant > max {
		r.NumWant = max
	}
}

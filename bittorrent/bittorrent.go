// Copyright 2015 The Chihaya Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

// Package bittorrent implements the protocol-agnostic types shared by every
// tracker front-end: info hashes, peer IDs, peers, and the normalized
// announce/scrape request and response values that the HTTP, UDP, and
// WebSocket dispatchers translate to and from.
package bittorrent

import (
	"encoding/hex"
	"fmt"
)

// ClientError represents an error that should be exposed to the client, as
// it was a mistake on their part (malformed request, bad parameter, etc).
type ClientError string

func (e ClientError) Error() string { return string(e) }

// NotFoundError represents an error caused by a missing resource
// (unknown torrent, unknown info hash on a private tracker).
type NotFoundError string

func (e NotFoundError) Error() string { return string(e) }

// ProtocolError represents a wire-format protocol violation.
type ProtocolError string

func (e ProtocolError) Error() string { return string(e) }

// Common errors surfaced by the codec and request-building layer.
var (
	ErrMalformedRequest    = ClientError("malformed request")
	ErrMalformedInfoHash   = ClientError("malformed info_hash")
	ErrMalformedPeerID     = ClientError("malformed peer_id")
	ErrInvalidNumWant      = ClientError("numwant must be non-negative")
	ErrTrackerFull         = ClientError("tracker full")
	ErrTorrentUnapproved   = ClientError("unapproved info_hash")
	ErrUserBanned          = ClientError("user is banned")
	ErrInvalidToken        = ClientError("invalid or expired auth_token")
	ErrTorrentDoesNotExist = NotFoundError("torrent does not exist")
)

// IsPublicError reports whether err should be exposed to the client as a
// protocol-level failure, rather than logged as an internal server error.
func IsPublicError(err error) bool {
	switch err.(type) {
	case ClientError, NotFoundError, ProtocolError:
		return true
	default:
		return false
	}
}

// InfoHashLen is the length, in bytes, of a torrent info hash (SHA-1).
const InfoHashLen = 20

// InfoHash identifies a torrent swarm.
type InfoHash [InfoHashLen]byte

// InfoHashFromBytes builds an InfoHash from a byte slice. The slice must be
// exactly InfoHashLen bytes; shorter or longer slices return an error.
func InfoHashFromBytes(b []byte) (InfoHash, error) {
	var ih InfoHash
	if len(b) != InfoHashLen {
		return ih, ErrMalformedInfoHash
	}
	copy(ih[:], b)
	return ih, nil
}

func (ih InfoHash) String() string { return hex.EncodeToString(ih[:]) }

// RawString returns the info hash as the raw 20-byte string BitTorrent
// wire formats expect (bencoded dictionary keys, compact scrape records).
func (ih InfoHash) RawString() string { return string(ih[:]) }

// PeerIDLen is the length, in bytes, of a peer ID.
const PeerIDLen = 20

// PeerID self-identifies a client instance within a swarm.
type PeerID [PeerIDLen]byte

// PeerIDFromBytes builds a PeerID from a byte slice of exactly PeerIDLen bytes.
func PeerIDFromBytes(b []byte) (PeerID, error) {
	var id PeerID
	if len(b) != PeerIDLen {
		return id, ErrMalformedPeerID
	}
	copy(id[:], b)
	return id, nil
}

func (id PeerID) String() string { return hex.EncodeToString(id[:]) }

// ClientID returns the part of a PeerID that identifies the client
// software, following the Azureus-style ("-XX1234-...") and Shadow-style
// conventions in common use.
func (id PeerID) ClientID() string {
	s := string(id[:])
	if len(s) >= 7 && s[0] == '-' {
		return s[1:7]
	}
	if len(s) >= 6 {
		return s[:6]
	}
	return ""
}

// AddressFamily distinguishes an IPv4 peer from an IPv6 peer, since the two
// are advertised in separate compact streams (`peers` vs `peers6`).
type AddressFamily uint8

const (
	// Unknown is used for a zero-valued or unset address family.
	Unknown AddressFamily = iota
	IPv4
	IPv6
)

func (af AddressFamily) String() string {
	switch af {
	case IPv4:
		return "IPv4"
	case IPv6:
		return "IPv6"
	default:
		return "unknown"
	}
}

// Event represents an event sent to the tracker by a client on an announce.
type Event uint8

// Events sanctioned by BEP 3 plus the "paused" extension some private
// trackers use to keep a torrent's slot without advertising it.
const (
	None Event = iota
	Started
	Stopped
	Completed
	Paused
)

var eventNames = [...]string{"", "started", "stopped", "completed", "paused"}

func (e Event) String() string {
	if int(e) < len(eventNames) {
		return eventNames[e]
	}
	return "unknown"
}

// NewEvent parses the string form of an event as it arrives on the wire.
// An empty string is treated as None ("update"), matching BEP 3.
func NewEvent(s string) (Event, error) {
	switch s {
	case "", "update":
		return None, nil
	case "started":
		return Started, nil
	case "stopped":
		return Stopped, nil
	case "completed":
		return Completed, nil
	case "paused":
		return Paused, nil
	default:
		return None, fmt.Errorf("bittorrent: unknown event %q", s)
	}
}

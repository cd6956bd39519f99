// Package storage defines the swarm registry contract every tracker
// front-end and middleware hook programs against: the mapping from info
// hash to swarm, and the atomic peer-table operations a BitTorrent
// announce needs.
package storage

import (
	"errors"

	"github.com/opentrackr/chihaya/bittorrent"
)

// ErrResourceDoesNotExist is returned when a lookup or delete targets a
// swarm or peer that is not present.
var ErrResourceDoesNotExist = errors.New("storage: resource does not exist")

// ErrTrackerFull is returned by PutSeeder/PutLeecher when the process-wide
// swarm count is capped and already at that cap.
var ErrTrackerFull = errors.New("storage: tracker full")

// PeerStore is the swarm registry's public contract. Every mutation on a
// given info hash is atomic with respect to AnnouncePeers/ScrapeSwarm
// reads of that same info hash; no ordering is guaranteed across distinct
// info hashes.
type PeerStore interface {
	// PutSeeder marks p as a seeder on ih, inserting it if new.
	PutSeeder(ih bittorrent.InfoHash, p bittorrent.Peer) (bittorrent.PeerDiff, error)
	// PutLeecher marks p as a leecher on ih, inserting it if new.
	PutLeecher(ih bittorrent.InfoHash, p bittorrent.Peer) (bittorrent.PeerDiff, error)
	// GraduateLeecher transitions p from leecher to seeder on ih. It is a
	// no-op on the seeder/leecher aggregate if called a second time for a
	// peer that already graduated (announce(completed) is idempotent).
	GraduateLeecher(ih bittorrent.InfoHash, p bittorrent.Peer) (bittorrent.PeerDiff, error)
	// DeleteSeeder removes p from ih's seeder table.
	DeleteSeeder(ih bittorrent.InfoHash, p bittorrent.Peer) error
	// DeleteLeecher removes p from ih's leecher table.
	DeleteLeecher(ih bittorrent.InfoHash, p bittorrent.Peer) error
	// AnnouncePeers returns up to numWant peers to hand back to announcer,
	// excluding announcer itself, weighted per spec (seeders are offered
	// leechers; leechers are offered a seeder-first mix).
	AnnouncePeers(ih bittorrent.InfoHash, seeding bool, numWant int, announcer bittorrent.Peer) ([]bittorrent.Peer, error)
	// ScrapeSwarm returns the aggregate counters for ih. It is pure: it
	// never mutates the peer table.
	ScrapeSwarm(ih bittorrent.InfoHash) bittorrent.Scrape
	// Touch refreshes an existing peer's last-seen time and raw counters
	// without changing seeder/leecher membership. It never inserts: a peer
	// not already present yields ErrResourceDoesNotExist.
	Touch(ih bittorrent.InfoHash, p bittorrent.Peer) error
	// Diffs returns the channel on which PeerDiff events are published,
	// for consumers that need to react to swarm membership changes without
	// taking the per-swarm lock themselves. The stats aggregator is the
	// only consumer in this module; the credit engine does not read it.
	Diffs() <-chan bittorrent.PeerDiff
	// Stats reports process-wide aggregate counters.
	Stats() AggregateStats
	// Stop shuts down any background goroutines (the time wheel) and
	// releases resources. It does not block on in-flight announces.
	Stop() error
}

// AggregateStats is a snapshot of the registry's process-wide counters.
type AggregateStats struct {
	Torrents       int
	ActiveTorrents int
	Seeders        int
	Leechers       int
}

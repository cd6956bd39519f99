// Package memory implements storage.PeerStore keeping all swarm state in
// process memory. Peer state never touches durable storage: the registry
// is rebuilt entirely from client announces after a restart.
package memory

import (
	"container/list"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/opentrackr/chihaya/bittorrent"
	"github.com/opentrackr/chihaya/storage"
)

// Config tunes a memory.PeerStore.
type Config struct {
	// MaxSwarmSize is the per-swarm peer cap; inserting past it evicts the
	// least-recently-announced peer. Zero or negative selects the default
	// of 1000 (see Validate).
	MaxSwarmSize int
	// MaxSwarms is the process-wide swarm cap. Zero means unlimited.
	MaxSwarms int
	// GCInterval is how often the time wheel sweeps for expired peers.
	GCInterval time.Duration
	// PeerLifetime is the TTL a peer is evicted after if it doesn't
	// re-announce.
	PeerLifetime time.Duration
	// DiffBufferSize sizes the channel PeerDiff events are published on.
	DiffBufferSize int
}

// Validate fills in defaults for anything left unset, matching the
// teacher's memory store's Validate-with-fallback pattern.
func (cfg Config) Validate() Config {
	valid := cfg
	if cfg.GCInterval <= 0 {
		valid.GCInterval = 60 * time.Second
	}
	if cfg.PeerLifetime <= 0 {
		valid.PeerLifetime = 1200 * time.Second
	}
	if cfg.MaxSwarmSize <= 0 {
		valid.MaxSwarmSize = 1000
	}
	return valid
}

type peerEntry struct {
	peer     bittorrent.Peer
	userID   uint64
	lastSeen time.Time
}

// swarm is the peer table for a single info hash. Every mutation takes mu;
// reads for scrape use an RLock. peers/lru stay in sync: peers maps a peer
// ID to its *list.Element whose Value is a *peerEntry, and lru keeps
// elements ordered most-recently-announced-first so both LRU eviction and
// TTL expiry can stop at the first live/most-stale entry instead of
// scanning the whole table.
type swarm struct {
	mu          sync.RWMutex
	peers       map[bittorrent.PeerID]*list.Element
	lru         *list.List
	numSeeders  int
	numLeechers int
	completions map[bittorrent.PeerID]bool
	snatches    uint64
	emptySince  time.Time
}

func newSwarm() *swarm {
	return &swarm{
		peers:       make(map[bittorrent.PeerID]*list.Element),
		lru:         list.New(),
		completions: make(map[bittorrent.PeerID]bool),
	}
}

func (s *swarm) size() int { return s.numSeeders + s.numLeechers }

type peerStore struct {
	cfg Config

	mu     sync.RWMutex
	swarms map[bittorrent.InfoHash]*swarm

	diffs  chan bittorrent.PeerDiff
	closed chan struct{}
	wg     sync.WaitGroup
}

// New creates a PeerStore backed by memory, grounded on the sharded
// garbage-collecting store chihaya's own in-memory driver uses, simplified
// to a single map guarded by per-swarm locks per the registry contract's
// concurrency requirements.
func New(cfg Config) storage.PeerStore {
	cfg = cfg.Validate()
	ps := &peerStore{
		cfg:    cfg,
		swarms: make(map[bittorrent.InfoHash]*swarm),
		diffs:  make(chan bittorrent.PeerDiff, cfg.DiffBufferSize),
		closed: make(chan struct{}),
	}

	ps.wg.Add(1)
	go ps.expireLoop()

	return ps
}

var _ storage.PeerStore = (*peerStore)(nil)

func (ps *peerStore) Diffs() <-chan bittorrent.PeerDiff { return ps.diffs }

func (ps *peerStore) publish(diff bittorrent.PeerDiff) {
	select {
	case ps.diffs <- diff:
	default:
		glog.Warningf("storage/memory: diff channel full, dropping %v event for %s", diff.Kind, diff.InfoHash)
	}
}

// swarmFor returns the swarm for ih, creating it if absent. Creation takes
// the registry's exclusive lock only briefly; the returned swarm's own
// lock serializes the actual peer-table mutation.
func (ps *peerStore) swarmFor(ih bittorrent.InfoHash) (*swarm, error) {
	ps.mu.RLock()
	s, ok := ps.swarms[ih]
	ps.mu.RUnlock()
	if ok {
		return s, nil
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()
	if s, ok = ps.swarms[ih]; ok {
		return s, nil
	}
	if ps.cfg.MaxSwarms > 0 && len(ps.swarms) >= ps.cfg.MaxSwarms {
		return nil, storage.ErrTrackerFull
	}
	s = newSwarm()
	ps.swarms[ih] = s
	return s, nil
}

func (ps *peerStore) dropIfEmpty(ih bittorrent.InfoHash, s *swarm) {
	s.mu.RLock()
	empty := s.size() == 0
	s.mu.RUnlock()
	if !empty {
		return
	}
	ps.mu.Lock()
	if cur, ok := ps.swarms[ih]; ok && cur == s {
		cur.mu.RLock()
		stillEmpty := cur.size() == 0
		cur.mu.RUnlock()
		if stillEmpty {
			delete(ps.swarms, ih)
		}
	}
	ps.mu.Unlock()
}

// put inserts or updates a peer in the given pool ("seeders" or
// "leechers"), evicting the LRU tail if the swarm is at cap, enforcing the
// per-peer-ID key-spoofing guard, and returning the diff describing what
// happened.
func (ps *peerStore) put(ih bittorrent.InfoHash, p bittorrent.Peer, seeding bool) (bittorrent.PeerDiff, error) {
	s, err := ps.swarmFor(ih)
	if err != nil {
		return bittorrent.PeerDiff{}, err
	}

	s.mu.Lock()

	if elem, ok := s.peers[p.ID]; ok {
		existing := elem.Value.(*peerEntry)
		if existing.peer.Key != "" && p.Key != "" && existing.peer.Key != p.Key && !existing.peer.IP.Equal(p.IP.IP) {
			s.mu.Unlock()
			return bittorrent.PeerDiff{}, bittorrent.ClientError("key mismatch: possible spoofing")
		}

		wasSeeder := existing.peer.Seeding()
		existing.peer = p
		existing.userID = p.UserID
		existing.lastSeen = time.Now()
		s.lru.MoveToFront(elem)

		nowSeeder := seeding
		if wasSeeder != nowSeeder {
			if nowSeeder {
				s.numLeechers--
				s.numSeeders++
			} else {
				s.numSeeders--
				s.numLeechers++
			}
		}

		s.mu.Unlock()
		diff := bittorrent.PeerDiff{InfoHash: ih, Peer: p, Kind: bittorrent.DiffUpdated, UserID: p.UserID}
		ps.publish(diff)
		return diff, nil
	}

	var evicted *bittorrent.PeerDiff
	if ps.cfg.MaxSwarmSize > 0 && s.size() >= ps.cfg.MaxSwarmSize {
		if back := s.lru.Back(); back != nil {
			ev := back.Value.(*peerEntry)
			s.removeLocked(ev.peer.ID)
			diff := bittorrent.PeerDiff{InfoHash: ih, Peer: ev.peer, Kind: bittorrent.DiffEvicted, UserID: ev.userID}
			evicted = &diff
		}
	}

	entry := &peerEntry{peer: p, userID: p.UserID, lastSeen: time.Now()}
	elem := s.lru.PushFront(entry)
	s.peers[p.ID] = elem
	if seeding {
		s.numSeeders++
	} else {
		s.numLeechers++
	}

	s.mu.Unlock()

	if evicted != nil {
		ps.publish(*evicted)
	}
	diff := bittorrent.PeerDiff{InfoHash: ih, Peer: p, Kind: bittorrent.DiffJoined, UserID: p.UserID}
	ps.publish(diff)
	return diff, nil
}

func (ps *peerStore) PutSeeder(ih bittorrent.InfoHash, p bittorrent.Peer) (bittorrent.PeerDiff, error) {
	return ps.put(ih, p, true)
}

func (ps *peerStore) PutLeecher(ih bittorrent.InfoHash, p bittorrent.Peer) (bittorrent.PeerDiff, error) {
	return ps.put(ih, p, false)
}

func (ps *peerStore) GraduateLeecher(ih bittorrent.InfoHash, p bittorrent.Peer) (bittorrent.PeerDiff, error) {
	s, err := ps.swarmFor(ih)
	if err != nil {
		return bittorrent.PeerDiff{}, err
	}

	s.mu.Lock()
	elem, ok := s.peers[p.ID]
	if !ok {
		s.mu.Unlock()
		return ps.put(ih, p, true)
	}

	entry := elem.Value.(*peerEntry)
	alreadySeeder := entry.peer.Seeding() && s.completions[p.ID]
	if alreadySeeder {
		// Idempotent: a second "completed" for the same session does not
		// double-count. Still refresh last-seen/counters.
		entry.peer = p
		entry.userID = p.UserID
		entry.lastSeen = time.Now()
		s.lru.MoveToFront(elem)
		s.mu.Unlock()
		diff := bittorrent.PeerDiff{InfoHash: ih, Peer: p, Kind: bittorrent.DiffUpdated, UserID: p.UserID}
		ps.publish(diff)
		return diff, nil
	}

	wasLeecher := !entry.peer.Seeding()
	entry.peer = p
	entry.userID = p.UserID
	entry.lastSeen = time.Now()
	s.lru.MoveToFront(elem)
	if wasLeecher {
		s.numLeechers--
		s.numSeeders++
	}
	s.completions[p.ID] = true
	s.snatches++
	s.mu.Unlock()

	diff := bittorrent.PeerDiff{InfoHash: ih, Peer: p, Kind: bittorrent.DiffCompleted, UserID: p.UserID}
	ps.publish(diff)
	return diff, nil
}

func (s *swarm) removeLocked(id bittorrent.PeerID) (peerEntry, bool) {
	elem, ok := s.peers[id]
	if !ok {
		return peerEntry{}, false
	}
	entry := elem.Value.(*peerEntry)
	if entry.peer.Seeding() {
		s.numSeeders--
	} else {
		s.numLeechers--
	}
	delete(s.peers, id)
	delete(s.completions, id)
	s.lru.Remove(elem)
	return *entry, true
}

func (ps *peerStore) delete(ih bittorrent.InfoHash, p bittorrent.Peer) error {
	ps.mu.RLock()
	s, ok := ps.swarms[ih]
	ps.mu.RUnlock()
	if !ok {
		return storage.ErrResourceDoesNotExist
	}

	s.mu.Lock()
	removed, existed := s.removeLocked(p.ID)
	s.mu.Unlock()

	if !existed {
		return storage.ErrResourceDoesNotExist
	}

	ps.publish(bittorrent.PeerDiff{InfoHash: ih, Peer: removed.peer, Kind: bittorrent.DiffLeft, UserID: removed.userID})
	ps.dropIfEmpty(ih, s)
	return nil
}

func (ps *peerStore) DeleteSeeder(ih bittorrent.InfoHash, p bittorrent.Peer) error {
	return ps.delete(ih, p)
}

func (ps *peerStore) DeleteLeecher(ih bittorrent.InfoHash, p bittorrent.Peer) error {
	return ps.delete(ih, p)
}

func (ps *peerStore) Touch(ih bittorrent.InfoHash, p bittorrent.Peer) error {
	ps.mu.RLock()
	s, ok := ps.swarms[ih]
	ps.mu.RUnlock()
	if !ok {
		return storage.ErrResourceDoesNotExist
	}

	s.mu.Lock()
	elem, ok := s.peers[p.ID]
	if !ok {
		s.mu.Unlock()
		return storage.ErrResourceDoesNotExist
	}
	entry := elem.Value.(*peerEntry)
	entry.peer.Uploaded = p.Uploaded
	entry.peer.Downloaded = p.Downloaded
	entry.peer.Left = p.Left
	entry.lastSeen = time.Now()
	s.lru.MoveToFront(elem)
	s.mu.Unlock()
	return nil
}

func (ps *peerStore) AnnouncePeers(ih bittorrent.InfoHash, seeding bool, numWant int, announcer bittorrent.Peer) ([]bittorrent.Peer, error) {
	ps.mu.RLock()
	s, ok := ps.swarms[ih]
	ps.mu.RUnlock()
	if !ok {
		return nil, storage.ErrResourceDoesNotExist
	}
	if numWant <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var peers []bittorrent.Peer
	take := func(wantSeeder bool) {
		for elem := s.lru.Front(); elem != nil && len(peers) < numWant; elem = elem.Next() {
			entry := elem.Value.(*peerEntry)
			if entry.peer.Paused || entry.peer.ID == announcer.ID {
				continue
			}
			if entry.peer.Seeding() != wantSeeder {
				continue
			}
			peers = append(peers, entry.peer)
		}
	}

	if seeding {
		// A seeder gains nothing from other seeders.
		take(false)
	} else {
		take(true)
		if len(peers) < numWant {
			take(false)
		}
	}

	return peers, nil
}

func (ps *peerStore) ScrapeSwarm(ih bittorrent.InfoHash) bittorrent.Scrape {
	ps.mu.RLock()
	s, ok := ps.swarms[ih]
	ps.mu.RUnlock()
	if !ok {
		return bittorrent.Scrape{InfoHash: ih}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return bittorrent.Scrape{
		InfoHash:   ih,
		Complete:   s.numSeeders,
		Incomplete: s.numLeechers,
		Downloaded: s.snatches,
	}
}

func (ps *peerStore) Stats() storage.AggregateStats {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	stats := storage.AggregateStats{Torrents: len(ps.swarms)}
	for _, s := range ps.swarms {
		s.mu.RLock()
		if s.size() > 0 {
			stats.ActiveTorrents++
		}
		stats.Seeders += s.numSeeders
		stats.Leechers += s.numLeechers
		s.mu.RUnlock()
	}
	return stats
}

// expireLoop is the time wheel: it wakes on GCInterval and, for every
// swarm, walks the LRU tail evicting peers whose lastSeen predates the
// cutoff. Because the LRU list is already ordered by lastSeen, the walk
// stops at the first live peer instead of visiting every peer in every
// swarm on each tick.
func (ps *peerStore) expireLoop() {
	defer ps.wg.Done()

	ticker := time.NewTicker(ps.cfg.GCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ps.closed:
			return
		case <-ticker.C:
			ps.sweep(time.Now().Add(-ps.cfg.PeerLifetime))
		}
	}
}

func (ps *peerStore) sweep(cutoff time.Time) {
	ps.mu.RLock()
	infohashes := make([]bittorrent.InfoHash, 0, len(ps.swarms))
	swarms := make([]*swarm, 0, len(ps.swarms))
	for ih, s := range ps.swarms {
		infohashes = append(infohashes, ih)
		swarms = append(swarms, s)
	}
	ps.mu.RUnlock()

	for i, s := range swarms {
		ih := infohashes[i]
		var expired []bittorrent.PeerDiff

		s.mu.Lock()
		for {
			back := s.lru.Back()
			if back == nil {
				break
			}
			entry := back.Value.(*peerEntry)
			if entry.lastSeen.After(cutoff) {
				break
			}
			ev, _ := s.removeLocked(entry.peer.ID)
			expired = append(expired, bittorrent.PeerDiff{InfoHash: ih, Peer: ev.peer, Kind: bittorrent.DiffExpired, UserID: ev.userID})
		}
		s.mu.Unlock()

		for _, diff := range expired {
			ps.publish(diff)
		}
		if len(expired) > 0 {
			ps.dropIfEmpty(ih, s)
		}
	}
}

func (ps *peerStore) Stop() error {
	close(ps.closed)
	ps.wg.Wait()
	close(ps.diffs)
	return nil
}

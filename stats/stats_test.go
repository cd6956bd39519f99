package stats

import (
	"testing"
	"time"

	"github.com/opentrackr/chihaya/bittorrent"
	"github.com/opentrackr/chihaya/config"
	"github.com/opentrackr/chihaya/storage"
)

func newTestStats() *Stats {
	return New(config.StatsConfig{BufferSize: 16})
}

func TestRecordEventCounters(t *testing.T) {
	s := newTestStats()
	defer s.Close()

	s.RecordEvent(Announce)
	s.RecordEvent(AnnounceHTTP)
	s.RecordEvent(Scrape)
	time.Sleep(20 * time.Millisecond)

	if s.Announces != 1 || s.ProtocolHTTP != 1 || s.Scrapes != 1 {
		t.Fatalf("unexpected counters: announces=%d http=%d scrapes=%d", s.Announces, s.ProtocolHTTP, s.Scrapes)
	}
}

func TestWatchDiffsUpdatesPeerCounts(t *testing.T) {
	s := newTestStats()
	defer s.Close()

	diffs := make(chan bittorrent.PeerDiff, 4)
	s.WatchDiffs(diffs)

	var ih bittorrent.InfoHash
	diffs <- bittorrent.PeerDiff{InfoHash: ih, Peer: bittorrent.Peer{Left: 5}, Kind: bittorrent.DiffJoined}
	close(diffs)
	time.Sleep(20 * time.Millisecond)

	if s.Peers.Current != 1 {
		t.Fatalf("expected 1 current peer, got %+v", s.Peers)
	}
}

func TestSyncRegistry(t *testing.T) {
	s := newTestStats()
	defer s.Close()

	s.SyncRegistry(storage.AggregateStats{Torrents: 3, ActiveTorrents: 2, Seeders: 1, Leechers: 4})
	time.Sleep(20 * time.Millisecond)

	if s.Torrents != 3 || s.ActiveTorrents != 2 {
		t.Fatalf("expected torrents=3 active=2, got torrents=%d active=%d", s.Torrents, s.ActiveTorrents)
	}
}

package middleware

import (
	"context"
	"net"
	"testing"

	"github.com/opentrackr/chihaya/bittorrent"
	"github.com/opentrackr/chihaya/storage/memory"
)

func peer(id byte, left uint64) bittorrent.Peer {
	var pid bittorrent.PeerID
	pid[0] = id
	return bittorrent.Peer{
		ID:   pid,
		IP:   bittorrent.IP{IP: net.ParseIP("10.0.0.1").To4(), AddressFamily: bittorrent.IPv4},
		Port: 6881,
		Left: left,
	}
}

func TestLogicAnnounceLifecycle(t *testing.T) {
	store := memory.New(memory.Config{})
	defer store.Stop()

	logic := NewLogic(store, nil, nil)
	var ih bittorrent.InfoHash
	ih[0] = 0xAA

	ctx := context.Background()
	req := &bittorrent.AnnounceRequest{InfoHash: ih, Peer: peer(1, 10), Event: bittorrent.Started, NumWant: 50}
	resp, err := logic.HandleAnnounce(ctx, req)
	if err != nil {
		t.Fatalf("HandleAnnounce: %s", err)
	}
	if resp.Incomplete != 1 {
		t.Fatalf("expected 1 leecher after first announce, got %d", resp.Incomplete)
	}

	req2 := &bittorrent.AnnounceRequest{InfoHash: ih, Peer: peer(2, 0), Event: bittorrent.Started, NumWant: 50}
	resp2, err := logic.HandleAnnounce(ctx, req2)
	if err != nil {
		t.Fatalf("HandleAnnounce: %s", err)
	}
	if resp2.Complete != 1 || resp2.Incomplete != 1 {
		t.Fatalf("expected 1 seeder + 1 leecher, got complete=%d incomplete=%d", resp2.Complete, resp2.Incomplete)
	}
	if len(resp2.IPv4Peers) != 1 || resp2.IPv4Peers[0].ID != peer(1, 10).ID {
		t.Fatalf("expected the first peer back, got %+v", resp2.IPv4Peers)
	}

	stopReq := &bittorrent.AnnounceRequest{InfoHash: ih, Peer: peer(1, 10), Event: bittorrent.Stopped}
	if _, err := logic.HandleAnnounce(ctx, stopReq); err != nil {
		t.Fatalf("HandleAnnounce(stopped): %s", err)
	}

	scrape := store.ScrapeSwarm(ih)
	if scrape.Incomplete != 0 {
		t.Fatalf("expected peer 1 removed after stop, incomplete=%d", scrape.Incomplete)
	}

	// A second "stopped" for the same peer must be a no-op, not an error:
	// the registry has already forgotten it.
	if _, err := logic.HandleAnnounce(ctx, stopReq); err != nil {
		t.Fatalf("HandleAnnounce(stopped again): expected no-op, got %s", err)
	}
}

func TestLogicAnnounceStoppedUnknownPeerIsNoop(t *testing.T) {
	store := memory.New(memory.Config{})
	defer store.Stop()

	logic := NewLogic(store, nil, nil)
	var ih bittorrent.InfoHash
	ih[0] = 0xCC

	ctx := context.Background()
	stopReq := &bittorrent.AnnounceRequest{InfoHash: ih, Peer: peer(1, 10), Event: bittorrent.Stopped}
	if _, err := logic.HandleAnnounce(ctx, stopReq); err != nil {
		t.Fatalf("HandleAnnounce(stopped) for a peer the registry never saw: expected no-op, got %s", err)
	}
}

func TestLogicAnnouncePublishesLifecycleDiffs(t *testing.T) {
	store := memory.New(memory.Config{DiffBufferSize: 8})
	defer store.Stop()

	logic := NewLogic(store, nil, nil)
	var ih bittorrent.InfoHash
	ih[0] = 0xDD

	ctx := context.Background()
	diffs := store.Diffs()

	if _, err := logic.HandleAnnounce(ctx, &bittorrent.AnnounceRequest{InfoHash: ih, Peer: peer(1, 10), Event: bittorrent.Started}); err != nil {
		t.Fatalf("HandleAnnounce(started): %s", err)
	}
	if d := <-diffs; d.Kind != bittorrent.DiffJoined {
		t.Fatalf("expected DiffJoined, got %v", d.Kind)
	}

	if _, err := logic.HandleAnnounce(ctx, &bittorrent.AnnounceRequest{InfoHash: ih, Peer: peer(1, 0), Event: bittorrent.Completed}); err != nil {
		t.Fatalf("HandleAnnounce(completed): %s", err)
	}
	if d := <-diffs; d.Kind != bittorrent.DiffCompleted {
		t.Fatalf("expected DiffCompleted, got %v", d.Kind)
	}

	if _, err := logic.HandleAnnounce(ctx, &bittorrent.AnnounceRequest{InfoHash: ih, Peer: peer(1, 0), Event: bittorrent.Stopped}); err != nil {
		t.Fatalf("HandleAnnounce(stopped): %s", err)
	}
	if d := <-diffs; d.Kind != bittorrent.DiffLeft {
		t.Fatalf("expected DiffLeft, got %v", d.Kind)
	}
}

func TestLogicScrape(t *testing.T) {
	store := memory.New(memory.Config{})
	defer store.Stop()

	logic := NewLogic(store, nil, nil)
	var ih bittorrent.InfoHash
	ih[0] = 0xBB

	ctx := context.Background()
	if _, err := logic.HandleAnnounce(ctx, &bittorrent.AnnounceRequest{InfoHash: ih, Peer: peer(9, 0), Event: bittorrent.Started}); err != nil {
		t.Fatalf("HandleAnnounce: %s", err)
	}

	resp, err := logic.HandleScrape(ctx, &bittorrent.ScrapeRequest{InfoHashes: []bittorrent.InfoHash{ih}})
	if err != nil {
		t.Fatalf("HandleScrape: %s", err)
	}
	if resp.Files[ih].Complete != 1 {
		t.Fatalf("expected 1 seeder in scrape, got %+v", resp.Files[ih])
	}
}

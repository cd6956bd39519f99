package middleware

import (
	"context"

	"github.com/opentrackr/chihaya/bittorrent"
	"github.com/opentrackr/chihaya/storage"
)

// responseHook is the built-in Hook that fills in the peer list and
// complete/incomplete counters on a response, reading from the swarm
// registry after swarmInteractionHook has applied the announce's effect.
// It always runs last among the post-hooks.
type responseHook struct {
	store storage.PeerStore
}

// NewResponseHook builds the hook responsible for populating the
// announce/scrape response from the registry.
func NewResponseHook(store storage.PeerStore) Hook {
	return &responseHook{store: store}
}

func (h *responseHook) HandleAnnounce(ctx context.Context, req *bittorrent.AnnounceRequest, resp *bittorrent.AnnounceResponse) (context.Context, error) {
	if responseHookSkipped(ctx) {
		return ctx, nil
	}

	scrape := h.store.ScrapeSwarm(req.InfoHash)
	resp.Complete = scrape.Complete
	resp.Incomplete = scrape.Incomplete

	if req.Event == bittorrent.Stopped {
		return ctx, nil
	}

	numWant := int(req.NumWant)
	peers, err := h.store.AnnouncePeers(req.InfoHash, req.Peer.Seeding(), numWant, req.Peer)
	if err != nil && err != storage.ErrResourceDoesNotExist {
		return ctx, err
	}

	for _, p := range peers {
		if p.IP.AddressFamily == bittorrent.IPv6 {
			resp.IPv6Peers = append(resp.IPv6Peers, p)
		} else {
			resp.IPv4Peers = append(resp.IPv4Peers, p)
		}
	}

	return ctx, nil
}

func (h *responseHook) HandleScrape(ctx context.Context, req *bittorrent.ScrapeRequest, resp *bittorrent.ScrapeResponse) (context.Context, error) {
	if resp.Files == nil {
		resp.Files = make(map[bittorrent.InfoHash]bittorrent.Scrape, len(req.InfoHashes))
	}
	for _, ih := range req.InfoHashes {
		resp.Files[ih] = h.store.ScrapeSwarm(ih)
	}
	return ctx, nil
}

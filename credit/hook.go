package credit

import (
	"context"

	"github.com/opentrackr/chihaya/auth"
	"github.com/opentrackr/chihaya/bittorrent"
	"github.com/opentrackr/chihaya/storage"
)

// Hook adapts an Engine into a middleware.Hook, recording a credited
// transaction for every announce from an authenticated user. It is meant
// to run as a post-hook, after the swarm interaction hook has applied the
// announce so the swarm-size heuristic sees the post-announce state.
type Hook struct {
	engine *Engine
	store  storage.PeerStore
}

// NewHook builds the credit post-hook.
func NewHook(engine *Engine, store storage.PeerStore) *Hook {
	return &Hook{engine: engine, store: store}
}

func (h *Hook) HandleAnnounce(ctx context.Context, req *bittorrent.AnnounceRequest, _ *bittorrent.AnnounceResponse) (context.Context, error) {
	user, ok := auth.UserFromContext(ctx)
	if !ok {
		return ctx, nil
	}

	scrape := h.store.ScrapeSwarm(req.InfoHash)
	swarmSize := scrape.Complete + scrape.Incomplete

	h.engine.Record(ctx, user.ID, req.InfoHash, user.DownloadMultiplier, req.Peer, req.Event == bittorrent.Completed, swarmSize)
	return ctx, nil
}

func (h *Hook) HandleScrape(ctx context.Context, _ *bittorrent.ScrapeRequest, _ *bittorrent.ScrapeResponse) (context.Context, error) {
	return ctx, nil
}

package middleware

import (
	"context"

	"github.com/opentrackr/chihaya/bittorrent"
	"github.com/opentrackr/chihaya/storage"
)

// Logic is the full announce/scrape processing chain: a caller-supplied
// set of pre-hooks (auth, private-tracker gating, abuse checks), the
// built-in swarm interaction, a caller-supplied set of post-hooks (credit
// accounting, stats), and the built-in response filler.
type Logic struct {
	preHooks  []Hook
	postHooks []Hook
}

// NewLogic wires preHooks and postHooks around the registry-driven
// built-in hooks, matching the order every front-end expects: caller
// pre-hooks run first and may bail out via SkipSwarmInteration/
// SkipResponseHook, then the swarm is mutated, then caller post-hooks run,
// then the response is filled in.
func NewLogic(store storage.PeerStore, preHooks, postHooks []Hook) *Logic {
	return &Logic{
		preHooks:  append(append([]Hook{}, preHooks...), NewSwarmInteractionHook(store)),
		postHooks: append(append([]Hook{}, postHooks...), NewResponseHook(store)),
	}
}

// HandleAnnounce runs req through the full chain and returns the filled
// response. A ClientError/NotFoundError/ProtocolError returned here is
// safe to expose to the client as-is; anything else is an internal error.
func (l *Logic) HandleAnnounce(ctx context.Context, req *bittorrent.AnnounceRequest) (*bittorrent.AnnounceResponse, error) {
	resp := &bittorrent.AnnounceResponse{Compact: req.Compact, TrackerID: req.TrackerID}

	var err error
	for _, h := range l.preHooks {
		if ctx, err = h.HandleAnnounce(ctx, req, resp); err != nil {
			return nil, err
		}
	}
	for _, h := range l.postHooks {
		if ctx, err = h.HandleAnnounce(ctx, req, resp); err != nil {
			return nil, err
		}
	}
	_ = ctx
	return resp, nil
}

// HandleScrape runs req through the chain and returns the filled
// response. Scrapes never touch the swarm interaction hook since they
// never mutate the registry.
func (l *Logic) HandleScrape(ctx context.Context, req *bittorrent.ScrapeRequest) (*bittorrent.ScrapeResponse, error) {
	resp := &bittorrent.ScrapeResponse{Files: make(map[bittorrent.InfoHash]bittorrent.Scrape, len(req.InfoHashes))}

	var err error
	for _, h := range l.preHooks {
		if ctx, err = h.HandleScrape(ctx, req, resp); err != nil {
			return nil, err
		}
	}
	for _, h := range l.postHooks {
		if ctx, err = h.HandleScrape(ctx, req, resp); err != nil {
			return nil, err
		}
	}
	_ = ctx
	return resp, nil
}

package middleware

import (
	"context"

	"github.com/opentrackr/chihaya/bittorrent"
	"github.com/opentrackr/chihaya/storage"
)

// swarmInteractionHook is the built-in Hook that translates an announce's
// event into the swarm registry calls it implies. It is always the last
// of the pre-hooks run, so auth and private-tracker gating hooks have a
// chance to reject the request (via SkipSwarmInteraction) before the
// registry is touched.
type swarmInteractionHook struct {
	store storage.PeerStore
}

// NewSwarmInteractionHook builds the hook responsible for announce ->
// registry translation.
func NewSwarmInteractionHook(store storage.PeerStore) Hook {
	return &swarmInteractionHook{store: store}
}

func (h *swarmInteractionHook) HandleAnnounce(ctx context.Context, req *bittorrent.AnnounceRequest, resp *bittorrent.AnnounceResponse) (context.Context, error) {
	if swarmInteractionSkipped(ctx) {
		return ctx, nil
	}

	peer := req.Peer
	peer.Paused = req.Event == bittorrent.Paused

	var err error
	switch req.Event {
	case bittorrent.Stopped:
		err = h.remove(req.InfoHash, peer)
	case bittorrent.Completed:
		_, err = h.store.GraduateLeecher(req.InfoHash, peer)
	default: // Started, None/update, Paused
		if peer.Seeding() {
			_, err = h.store.PutSeeder(req.InfoHash, peer)
		} else {
			_, err = h.store.PutLeecher(req.InfoHash, peer)
		}
	}
	if err != nil {
		return ctx, err
	}

	return ctx, nil
}

// remove deletes a stopping peer from whichever pool it was last in,
// tolerating the case where the caller's notion of "seeding" has drifted
// from the registry's (a client can report left=0 on the same announce
// that stops it, after never announcing a completion). A second "stopped"
// for a peer the registry has already forgotten - expired, evicted, or
// simply never seen - is a no-op, not an error: invariant #3 requires a
// redundant stop to succeed silently.
func (h *swarmInteractionHook) remove(ih bittorrent.InfoHash, p bittorrent.Peer) error {
	var err error
	if p.Seeding() {
		err = h.store.DeleteSeeder(ih, p)
	} else {
		err = h.store.DeleteLeecher(ih, p)
	}
	if err == storage.ErrResourceDoesNotExist {
		if p.Seeding() {
			err = h.store.DeleteLeecher(ih, p)
		} else {
			err = h.store.DeleteSeeder(ih, p)
		}
	}
	if err == storage.ErrResourceDoesNotExist {
		return nil
	}
	return err
}

func (h *swarmInteractionHook) HandleScrape(ctx context.Context, _ *bittorrent.ScrapeRequest, _ *bittorrent.ScrapeResponse) (context.Context, error) {
	return ctx, nil
}

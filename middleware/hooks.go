// Package middleware composes the swarm registry, the auth and credit
// layers, and the stats aggregator into the Hook chain every front-end
// drives an announce or scrape through.
package middleware

import (
	"context"

	"github.com/opentrackr/chihaya/bittorrent"
)

// Hook is a single link in the processing chain an announce or scrape
// passes through. A Hook may inspect and mutate the request/response in
// place and carry state forward via the returned context.
type Hook interface {
	HandleAnnounce(ctx context.Context, req *bittorrent.AnnounceRequest, resp *bittorrent.AnnounceResponse) (context.Context, error)
	HandleScrape(ctx context.Context, req *bittorrent.ScrapeRequest, resp *bittorrent.ScrapeResponse) (context.Context, error)
}

type ctxKey uint8

const (
	// skipSwarmInteractionKey, when set truthy in the context, tells the
	// built-in swarm interaction hook to leave the registry untouched —
	// used by private-tracker gating that rejects a request before it
	// ever reaches the swarm.
	skipSwarmInteractionKey ctxKey = iota
	skipResponseHookKey
)

// SkipSwarmInteraction returns a context that tells the chain not to
// mutate the swarm registry for this request.
func SkipSwarmInteraction(ctx context.Context) context.Context {
	return context.WithValue(ctx, skipSwarmInteractionKey, true)
}

func swarmInteractionSkipped(ctx context.Context) bool {
	skip, _ := ctx.Value(skipSwarmInteractionKey).(bool)
	return skip
}

// SkipResponseHook returns a context that tells the chain not to fill the
// response's peer lists and counters — used when a pre-hook has already
// produced a terminal error response.
func SkipResponseHook(ctx context.Context) context.Context {
	return context.WithValue(ctx, skipResponseHookKey, true)
}

func responseHookSkipped(ctx context.Context) bool {
	skip, _ := ctx.Value(skipResponseHookKey).(bool)
	return skip
}

// noopHook implements Hook as a passthrough; embedding it lets a Hook
// implementation satisfy the interface while only overriding one method.
type noopHook struct{}

func (noopHook) HandleAnnounce(ctx context.Context, _ *bittorrent.AnnounceRequest, _ *bittorrent.AnnounceResponse) (context.Context, error) {
	return ctx, nil
}

func (noopHook) HandleScrape(ctx context.Context, _ *bittorrent.ScrapeRequest, _ *bittorrent.ScrapeResponse) (context.Context, error) {
	return ctx, nil
}

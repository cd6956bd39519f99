// Package repo defines the torrent repository contract the authenticator
// and announce gating consult to decide whether a swarm may be announced
// to or scraped. No implementation lives in this module: repo.TorrentRepo
// is backed by whatever external store a deployment wires in.
package repo

import (
	"context"
	"errors"

	"github.com/opentrackr/chihaya/bittorrent"
)

// ErrTorrentDoesNotExist is returned by Lookup for an info hash the
// repository has never seen.
var ErrTorrentDoesNotExist = errors.New("repo: torrent does not exist")

// Torrent is the subset of a torrent record the tracker core needs to
// gate an announce or scrape.
type Torrent struct {
	// IsActive is false for a torrent the repository has deactivated
	// (e.g. taken down); announces to it are rejected.
	IsActive bool
	// IsPrivate requires a valid, non-banned auth_token to announce or
	// be included in a scrape.
	IsPrivate bool
	// OwnerID is the uploader's user ID, for the observability layer;
	// zero if unknown.
	OwnerID uint64
}

// TorrentRepo resolves a torrent's gating metadata by info hash.
type TorrentRepo interface {
	Lookup(ctx context.Context, ih bittorrent.InfoHash) (Torrent, error)
}

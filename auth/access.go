package auth

import (
	"context"

	"github.com/opentrackr/chihaya/bittorrent"
	"github.com/opentrackr/chihaya/middleware"
	"github.com/opentrackr/chihaya/repo"
)

type ctxKey uint8

const userCtxKey ctxKey = 0

// WithUser attaches a resolved User to ctx for downstream hooks (the
// credit engine, in particular) to read.
func WithUser(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, userCtxKey, u)
}

// UserFromContext returns the User a prior AccessHook resolved, if any.
func UserFromContext(ctx context.Context) (User, bool) {
	u, ok := ctx.Value(userCtxKey).(User)
	return u, ok
}

// AccessHook is the first pre-hook in the chain: it resolves the
// announcing/scraping client's identity and rejects the request before
// the swarm registry or any other hook ever sees it, per spec 4.5's
// "banned users are rejected" and "unauthenticated requests to private
// torrents are rejected".
type AccessHook struct {
	Authn    *Authenticator
	Torrents repo.TorrentRepo
	// CreateOnAnnounce allows an announce for an info hash the repository
	// has never seen to proceed as a new, public, active torrent instead
	// of being rejected.
	CreateOnAnnounce bool
}

func reject(ctx context.Context, err error) (context.Context, error) {
	ctx = middleware.SkipSwarmInteraction(ctx)
	ctx = middleware.SkipResponseHook(ctx)
	return ctx, err
}

func (h *AccessHook) resolveTorrent(ctx context.Context, ih bittorrent.InfoHash) (repo.Torrent, error) {
	t, err := h.Torrents.Lookup(ctx, ih)
	if err == repo.ErrTorrentDoesNotExist && h.CreateOnAnnounce {
		return repo.Torrent{IsActive: true}, nil
	}
	return t, err
}

func (h *AccessHook) HandleAnnounce(ctx context.Context, req *bittorrent.AnnounceRequest, _ *bittorrent.AnnounceResponse) (context.Context, error) {
	user, authErr := h.Authn.Resolve(ctx, req.AuthToken)
	authed := authErr == nil

	torrent, err := h.resolveTorrent(ctx, req.InfoHash)
	if err != nil {
		if err == repo.ErrTorrentDoesNotExist {
			return reject(ctx, bittorrent.ErrTorrentDoesNotExist)
		}
		return ctx, err
	}
	if !torrent.IsActive {
		return reject(ctx, bittorrent.ErrTorrentUnapproved)
	}
	if torrent.IsPrivate && !authed {
		return reject(ctx, bittorrent.ErrInvalidToken)
	}
	if authed && user.Banned {
		return reject(ctx, bittorrent.ErrUserBanned)
	}

	if authed {
		ctx = WithUser(ctx, user)
		req.Peer.UserID = user.ID
	}
	return ctx, nil
}

func (h *AccessHook) HandleScrape(ctx context.Context, req *bittorrent.ScrapeRequest, resp *bittorrent.ScrapeResponse) (context.Context, error) {
	user, authErr := h.Authn.Resolve(ctx, req.AuthToken)
	authed := authErr == nil
	if authed {
		ctx = WithUser(ctx, user)
	}

	// Private torrents the caller may not see, inactive torrents, and
	// torrents the repository cannot resolve are silently dropped from a
	// multi-info_hash scrape rather than failing the whole request.
	allowed := req.InfoHashes[:0]
	for _, ih := range req.InfoHashes {
		torrent, err := h.Torrents.Lookup(ctx, ih)
		if err != nil || !torrent.IsActive {
			continue
		}
		if torrent.IsPrivate && (!authed || user.Banned) {
			continue
		}
		allowed = append(allowed, ih)
	}
	req.InfoHashes = allowed

	return ctx, nil
}

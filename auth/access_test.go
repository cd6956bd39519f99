package auth

import (
	"context"
	"testing"
	"time"

	"github.com/opentrackr/chihaya/bittorrent"
	"github.com/opentrackr/chihaya/repo"
)

type fakeTorrentRepo struct {
	torrents map[bittorrent.InfoHash]repo.Torrent
}

func (f *fakeTorrentRepo) Lookup(_ context.Context, ih bittorrent.InfoHash) (repo.Torrent, error) {
	t, ok := f.torrents[ih]
	if !ok {
		return repo.Torrent{}, repo.ErrTorrentDoesNotExist
	}
	return t, nil
}

func TestAccessHookRejectsPrivateWithoutToken(t *testing.T) {
	var ih bittorrent.InfoHash
	ih[0] = 1

	h := &AccessHook{
		Authn:    NewAuthenticator(&fakeRepo{users: map[string]User{}}, time.Minute),
		Torrents: &fakeTorrentRepo{torrents: map[bittorrent.InfoHash]repo.Torrent{ih: {IsActive: true, IsPrivate: true}}},
	}
	defer h.Authn.Stop()

	req := &bittorrent.AnnounceRequest{InfoHash: ih}
	if _, err := h.HandleAnnounce(context.Background(), req, &bittorrent.AnnounceResponse{}); err != bittorrent.ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestAccessHookRejectsBannedUser(t *testing.T) {
	var ih bittorrent.InfoHash
	ih[0] = 2

	h := &AccessHook{
		Authn:    NewAuthenticator(&fakeRepo{users: map[string]User{"tok": {ID: 1, Banned: true}}}, time.Minute),
		Torrents: &fakeTorrentRepo{torrents: map[bittorrent.InfoHash]repo.Torrent{ih: {IsActive: true}}},
	}
	defer h.Authn.Stop()

	req := &bittorrent.AnnounceRequest{InfoHash: ih, AuthToken: "tok"}
	if _, err := h.HandleAnnounce(context.Background(), req, &bittorrent.AnnounceResponse{}); err != bittorrent.ErrUserBanned {
		t.Fatalf("expected ErrUserBanned, got %v", err)
	}
}

func TestAccessHookUnknownTorrentRejectedByDefault(t *testing.T) {
	var ih bittorrent.InfoHash
	ih[0] = 3

	h := &AccessHook{
		Authn:    NewAuthenticator(&fakeRepo{users: map[string]User{}}, time.Minute),
		Torrents: &fakeTorrentRepo{torrents: map[bittorrent.InfoHash]repo.Torrent{}},
	}
	defer h.Authn.Stop()

	req := &bittorrent.AnnounceRequest{InfoHash: ih}
	if _, err := h.HandleAnnounce(context.Background(), req, &bittorrent.AnnounceResponse{}); err != bittorrent.ErrTorrentDoesNotExist {
		t.Fatalf("expected ErrTorrentDoesNotExist, got %v", err)
	}
}

func TestAccessHookCreateOnAnnounce(t *testing.T) {
	var ih bittorrent.InfoHash
	ih[0] = 4

	h := &AccessHook{
		Authn:            NewAuthenticator(&fakeRepo{users: map[string]User{}}, time.Minute),
		Torrents:         &fakeTorrentRepo{torrents: map[bittorrent.InfoHash]repo.Torrent{}},
		CreateOnAnnounce: true,
	}
	defer h.Authn.Stop()

	req := &bittorrent.AnnounceRequest{InfoHash: ih}
	if _, err := h.HandleAnnounce(context.Background(), req, &bittorrent.AnnounceResponse{}); err != nil {
		t.Fatalf("expected announce to proceed, got %v", err)
	}
}

func TestAccessHookStampsPeerUserID(t *testing.T) {
	var ih bittorrent.InfoHash
	ih[0] = 7

	h := &AccessHook{
		Authn:    NewAuthenticator(&fakeRepo{users: map[string]User{"tok": {ID: 42}}}, time.Minute),
		Torrents: &fakeTorrentRepo{torrents: map[bittorrent.InfoHash]repo.Torrent{ih: {IsActive: true}}},
	}
	defer h.Authn.Stop()

	req := &bittorrent.AnnounceRequest{InfoHash: ih, AuthToken: "tok"}
	if _, err := h.HandleAnnounce(context.Background(), req, &bittorrent.AnnounceResponse{}); err != nil {
		t.Fatalf("HandleAnnounce: %s", err)
	}
	if req.Peer.UserID != 42 {
		t.Fatalf("expected the resolved user's ID stamped onto the peer, got %d", req.Peer.UserID)
	}
}

func TestAccessHookScrapeDropsPrivateTorrents(t *testing.T) {
	var public, private bittorrent.InfoHash
	public[0] = 5
	private[0] = 6

	h := &AccessHook{
		Authn: NewAuthenticator(&fakeRepo{users: map[string]User{}}, time.Minute),
		Torrents: &fakeTorrentRepo{torrents: map[bittorrent.InfoHash]repo.Torrent{
			public:  {IsActive: true},
			private: {IsActive: true, IsPrivate: true},
		}},
	}
	defer h.Authn.Stop()

	req := &bittorrent.ScrapeRequest{InfoHashes: []bittorrent.InfoHash{public, private}}
	if _, err := h.HandleScrape(context.Background(), req, &bittorrent.ScrapeResponse{}); err != nil {
		t.Fatalf("HandleScrape: %s", err)
	}
	if len(req.InfoHashes) != 1 || req.InfoHashes[0] != public {
		t.Fatalf("expected only the public info hash to remain, got %v", req.InfoHashes)
	}
}

// Package repotest provides in-memory fakes of the tracker's external
// repository contracts (auth.UserRepo, repo.TorrentRepo, credit.Ledger,
// credit.Observability). cmd/trackerd wires them in as its standalone
// fallback when no real repository backend is configured, and other
// packages' tests may use them; a real deployment supplies its own
// repositories talking to whatever user/torrent database and accounting
// ledger it already runs.
package repotest

import (
	"context"
	"sync"

	"github.com/opentrackr/chihaya/auth"
	"github.com/opentrackr/chihaya/bittorrent"
	"github.com/opentrackr/chihaya/credit"
	"github.com/opentrackr/chihaya/repo"
)

// UserRepo is a fixed, in-memory auth.UserRepo keyed by token.
type UserRepo struct {
	mu    sync.Mutex
	users map[string]auth.User
	Calls int
}

// NewUserRepo builds a UserRepo pre-populated with the given token/user
// pairs.
func NewUserRepo(users map[string]auth.User) *UserRepo {
	return &UserRepo{users: users}
}

func (r *UserRepo) Resolve(ctx context.Context, token string) (auth.User, error) {
	r.mu.Lock()
	r.Calls++
	u, ok := r.users[token]
	r.mu.Unlock()
	if !ok {
		return auth.User{}, bittorrent.ErrInvalidToken
	}
	return u, nil
}

// TorrentRepo is a fixed, in-memory repo.TorrentRepo keyed by info hash.
type TorrentRepo struct {
	mu       sync.Mutex
	torrents map[bittorrent.InfoHash]repo.Torrent
}

// NewTorrentRepo builds a TorrentRepo pre-populated with the given
// torrents.
func NewTorrentRepo(torrents map[bittorrent.InfoHash]repo.Torrent) *TorrentRepo {
	return &TorrentRepo{torrents: torrents}
}

func (r *TorrentRepo) Lookup(ctx context.Context, ih bittorrent.InfoHash) (repo.Torrent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.torrents[ih]
	if !ok {
		return repo.Torrent{}, repo.ErrTorrentDoesNotExist
	}
	return t, nil
}

// Set inserts or replaces a torrent record.
func (r *TorrentRepo) Set(ih bittorrent.InfoHash, t repo.Torrent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.torrents[ih] = t
}

// Ledger records every transaction it is asked to write, in order.
type Ledger struct {
	mu           sync.Mutex
	Transactions []credit.Transaction
}

func NewLedger() *Ledger { return &Ledger{} }

func (l *Ledger) WriteTransaction(ctx context.Context, tx credit.Transaction) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Transactions = append(l.Transactions, tx)
	return nil
}

func (l *Ledger) All() []credit.Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]credit.Transaction(nil), l.Transactions...)
}

// Observer records every suspicion it is asked to report.
type Observer struct {
	mu         sync.Mutex
	Suspicions []credit.Suspicion
}

func NewObserver() *Observer { return &Observer{} }

func (o *Observer) ReportSuspicion(ctx context.Context, s credit.Suspicion) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Suspicions = append(o.Suspicions, s)
}

func (o *Observer) All() []credit.Suspicion {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]credit.Suspicion(nil), o.Suspicions...)
}

// Package credit tracks upload/download deltas per (user, torrent)
// session, converts them into ledger transactions at the announcing
// user's class multiplier, and flags announces that look like cheating
// without ever blocking them.
package credit

import (
	"context"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/opentrackr/chihaya/bittorrent"
)

// Transaction is a single credited delta, ready to be written to the
// ledger.
type Transaction struct {
	UserID     uint64
	InfoHash   bittorrent.InfoHash
	Uploaded   uint64 // bytes, after the upload reward rate is applied
	Downloaded uint64 // bytes, after the user's class multiplier is applied
	Snatched   bool
	At         time.Time
}

// Ledger persists credited transactions. It is an external interface:
// this module never implements it. Writes are fire-and-forget from the
// announce's perspective — a Ledger failure is logged, retried up to a
// bounded count, and never fails the announce itself.
type Ledger interface {
	WriteTransaction(ctx context.Context, tx Transaction) error
}

// SuspicionKind classifies a cheating heuristic's trigger.
type SuspicionKind uint8

const (
	// SuspicionSwarmTooSmall fires when a peer reports upload bytes no
	// other swarm member could plausibly have received.
	SuspicionSwarmTooSmall SuspicionKind = iota
	// SuspicionLinkCapacityExceeded fires when a peer's reported upload
	// rate exceeds the configured link capacity ceiling.
	SuspicionLinkCapacityExceeded
)

// Suspicion is a single cheating-heuristic trigger, reported but never
// enforced.
type Suspicion struct {
	Kind     SuspicionKind
	UserID   uint64
	InfoHash bittorrent.InfoHash
	Detail   string
}

// Observability receives suspicion events. It is an external interface;
// a deployment might fan these out to a queue, a log index, or nothing.
type Observability interface {
	ReportSuspicion(ctx context.Context, s Suspicion)
}

// Session is the credited state for one (user, torrent) pair.
type Session struct {
	LastUploaded   uint64
	LastDownloaded uint64
	LastAnnounce   time.Time
}

type sessionKey struct {
	userID uint64
	ih     bittorrent.InfoHash
}

// Config tunes the engine's session and cheating-heuristic behavior.
type Config struct {
	// SessionResetThreshold is how long a (user, torrent) pair may go
	// without an announce before the next one starts a fresh session
	// (zero delta) instead of continuing the old one.
	SessionResetThreshold time.Duration
	// UploadRewardRate scales the upload side of a delta; the download
	// side is scaled by the user's own class multiplier instead.
	UploadRewardRate float64
	// LinkCapacityBytesSec is the cheating-heuristic ceiling on upload
	// rate; zero disables the check.
	LinkCapacityBytesSec float64
	// LedgerRetries bounds how many times a failed ledger write is
	// retried before being logged and dropped.
	LedgerRetries int
}

// Engine computes credited deltas from swarm membership and announce
// counters, grounded on the delta math real-world chihaya forks apply at
// announce time, generalized here to resolve the multiplier from the
// announcing user's class rather than a fixed per-torrent rate.
type Engine struct {
	cfg     Config
	ledger  Ledger
	observe Observability

	mu       sync.Mutex
	sessions map[sessionKey]*Session
}

// NewEngine builds a credit Engine. observe may be nil to disable
// cheating-heuristic reporting.
func NewEngine(cfg Config, ledger Ledger, observe Observability) *Engine {
	return &Engine{
		cfg:      cfg,
		ledger:   ledger,
		observe:  observe,
		sessions: make(map[sessionKey]*Session),
	}
}

// Record computes the credited delta for an announce from userID, class
// multiplier downMultiplier, and the peer's current counters, updates the
// session, runs the cheating heuristics against swarmSize, and writes the
// resulting transaction through the ledger. It never returns an error: a
// ledger failure is logged and swallowed, matching the tracker's
// correctness floor being peer coordination, not accounting.
func (e *Engine) Record(ctx context.Context, userID uint64, ih bittorrent.InfoHash, downMultiplier float64, peer bittorrent.Peer, snatched bool, swarmSize int) {
	if userID == 0 {
		return
	}

	key := sessionKey{userID: userID, ih: ih}
	now := time.Now()

	e.mu.Lock()
	sess, ok := e.sessions[key]
	isNew := !ok || (e.cfg.SessionResetThreshold > 0 && now.Sub(sess.LastAnnounce) > e.cfg.SessionResetThreshold)
	if isNew {
		sess = &Session{}
		e.sessions[key] = sess
	}

	var rawUp, rawDown uint64
	if isNew {
		// A fresh session baselines to this announce's counters instead of
		// zero, so the client's cumulative total isn't credited as if it
		// all happened in this one interval.
		sess.LastUploaded = peer.Uploaded
		sess.LastDownloaded = peer.Downloaded
	} else {
		rawUp = diff(peer.Uploaded, sess.LastUploaded)
		rawDown = diff(peer.Downloaded, sess.LastDownloaded)
		sess.LastUploaded = peer.Uploaded
		sess.LastDownloaded = peer.Downloaded
	}
	elapsed := now.Sub(sess.LastAnnounce)
	sess.LastAnnounce = now
	e.mu.Unlock()

	if rawUp == 0 && rawDown == 0 && !snatched {
		return
	}

	e.checkSuspicion(ctx, userID, ih, rawUp, elapsed, swarmSize)

	tx := Transaction{
		UserID:     userID,
		InfoHash:   ih,
		Uploaded:   scale(rawUp, e.cfg.UploadRewardRate),
		Downloaded: scale(rawDown, downMultiplier),
		Snatched:   snatched,
		At:         now,
	}
	e.write(ctx, tx)
}

// diff is the reset-on-decrease delta: a counter that goes backwards
// means the client restarted and lost its prior session state, so the
// delta for this announce is zero rather than negative.
func diff(current, last uint64) uint64 {
	if current < last {
		return 0
	}
	return current - last
}

func scale(raw uint64, multiplier float64) uint64 {
	if multiplier <= 0 {
		return 0
	}
	return uint64(float64(raw) * multiplier)
}

func (e *Engine) checkSuspicion(ctx context.Context, userID uint64, ih bittorrent.InfoHash, rawUp uint64, elapsed time.Duration, swarmSize int) {
	if e.observe == nil || rawUp == 0 {
		return
	}

	if swarmSize <= 1 {
		e.observe.ReportSuspicion(ctx, Suspicion{
			Kind: SuspicionSwarmTooSmall, UserID: userID, InfoHash: ih,
			Detail: "upload reported with no other swarm member to receive it",
		})
	}

	if e.cfg.LinkCapacityBytesSec > 0 && elapsed > 0 {
		rate := float64(rawUp) / elapsed.Seconds()
		if rate > e.cfg.LinkCapacityBytesSec {
			e.observe.ReportSuspicion(ctx, Suspicion{
				Kind: SuspicionLinkCapacityExceeded, UserID: userID, InfoHash: ih,
				Detail: "upload rate exceeds configured link capacity",
			})
		}
	}
}

func (e *Engine) write(ctx context.Context, tx Transaction) {
	retries := e.cfg.LedgerRetries
	if retries < 0 {
		retries = 0
	}

	var err error
	for attempt := 0; attempt <= retries; attempt++ {
		if err = e.ledger.WriteTransaction(ctx, tx); err == nil {
			return
		}
	}
	glog.Errorf("credit: dropping transaction for user %d / %s after %d attempts: %s", tx.UserID, tx.InfoHash, retries+1, err)
}

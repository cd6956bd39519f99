package credit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/opentrackr/chihaya/bittorrent"
)

type fakeLedger struct {
	mu  sync.Mutex
	txs []Transaction
	err error
}

func (f *fakeLedger) WriteTransaction(_ context.Context, tx Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.txs = append(f.txs, tx)
	return nil
}

type fakeObserver struct {
	mu         sync.Mutex
	suspicions []Suspicion
}

func (f *fakeObserver) ReportSuspicion(_ context.Context, s Suspicion) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.suspicions = append(f.suspicions, s)
}

func TestEngineFirstAnnounceOfSessionCreditsNothing(t *testing.T) {
	ledger := &fakeLedger{}
	e := NewEngine(Config{UploadRewardRate: 1, SessionResetThreshold: time.Hour}, ledger, nil)

	var ih bittorrent.InfoHash
	ih[0] = 1

	// A client's first announce in a session reports its full cumulative
	// counters; the session baselines to them instead of crediting the
	// whole history as if it happened in this one interval.
	e.Record(context.Background(), 7, ih, 2.0, bittorrent.Peer{Uploaded: 100, Downloaded: 200}, false, 2)
	if len(ledger.txs) != 0 {
		t.Fatalf("expected no transaction on session bootstrap, got %+v", ledger.txs)
	}
}

func TestEngineRecordsDelta(t *testing.T) {
	ledger := &fakeLedger{}
	e := NewEngine(Config{UploadRewardRate: 1, SessionResetThreshold: time.Hour}, ledger, nil)

	var ih bittorrent.InfoHash
	ih[0] = 1

	e.Record(context.Background(), 7, ih, 2.0, bittorrent.Peer{Uploaded: 100, Downloaded: 200}, false, 2)
	if len(ledger.txs) != 0 {
		t.Fatalf("expected no transaction on session bootstrap, got %+v", ledger.txs)
	}

	e.Record(context.Background(), 7, ih, 2.0, bittorrent.Peer{Uploaded: 150, Downloaded: 250}, false, 2)
	if len(ledger.txs) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(ledger.txs))
	}
	tx := ledger.txs[0]
	if tx.Uploaded != 50 || tx.Downloaded != 100 {
		t.Fatalf("expected incremental delta uploaded=50 downloaded=100 (2x multiplier), got %+v", tx)
	}
}

func TestEngineResetsOnCounterDecrease(t *testing.T) {
	ledger := &fakeLedger{}
	e := NewEngine(Config{UploadRewardRate: 1, SessionResetThreshold: time.Hour}, ledger, nil)

	var ih bittorrent.InfoHash
	ih[0] = 2

	e.Record(context.Background(), 9, ih, 1.0, bittorrent.Peer{Uploaded: 1000, Downloaded: 1000}, false, 2)
	e.Record(context.Background(), 9, ih, 1.0, bittorrent.Peer{Uploaded: 1200, Downloaded: 1100}, false, 2)
	if len(ledger.txs) != 1 {
		t.Fatalf("expected 1 transaction after the first real delta, got %d", len(ledger.txs))
	}
	if tx := ledger.txs[0]; tx.Uploaded != 200 || tx.Downloaded != 100 {
		t.Fatalf("expected uploaded=200 downloaded=100, got %+v", tx)
	}

	// The client restarts and its counters drop below their last-seen
	// values; the delta for this announce must be zero, not negative.
	e.Record(context.Background(), 9, ih, 1.0, bittorrent.Peer{Uploaded: 10, Downloaded: 10}, false, 2)
	if len(ledger.txs) != 1 {
		t.Fatalf("expected no additional transaction after counter decrease, got %+v", ledger.txs)
	}
}

func TestEngineFlagsSwarmTooSmall(t *testing.T) {
	ledger := &fakeLedger{}
	observer := &fakeObserver{}
	e := NewEngine(Config{UploadRewardRate: 1}, ledger, observer)

	var ih bittorrent.InfoHash
	ih[0] = 3

	e.Record(context.Background(), 1, ih, 1.0, bittorrent.Peer{Uploaded: 0}, false, 1)
	e.Record(context.Background(), 1, ih, 1.0, bittorrent.Peer{Uploaded: 500}, false, 1)
	if len(observer.suspicions) != 1 || observer.suspicions[0].Kind != SuspicionSwarmTooSmall {
		t.Fatalf("expected a swarm-too-small suspicion, got %+v", observer.suspicions)
	}
}

func TestEngineSkipsAnonymousUsers(t *testing.T) {
	ledger := &fakeLedger{}
	e := NewEngine(Config{UploadRewardRate: 1}, ledger, nil)

	var ih bittorrent.InfoHash
	e.Record(context.Background(), 0, ih, 1.0, bittorrent.Peer{Uploaded: 500}, false, 2)
	if len(ledger.txs) != 0 {
		t.Fatalf("expected no transaction for anonymous user, got %d", len(ledger.txs))
	}
}

// Package chihaya wires together the swarm registry, the auth and credit
// layers, and the HTTP/UDP/WebSocket front-ends into a running tracker
// process, and supervises them until a shutdown signal arrives.
package chihaya

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/golang/glog"

	"github.com/opentrackr/chihaya/auth"
	"github.com/opentrackr/chihaya/storage"
)

// Frontend is the contract every tracker listener satisfies: Serve blocks
// until Stop is called or the listener fails outright.
type Frontend interface {
	Serve() error
	Stop()
}

// Tracker owns the registry and the authenticator's background
// goroutines, and supervises every configured front-end's accept loop.
type Tracker struct {
	store     storage.PeerStore
	authn     *auth.Authenticator
	frontends []Frontend
}

// NewTracker assembles a Tracker from an already-constructed swarm
// registry, authenticator, and set of front-ends.
func NewTracker(store storage.PeerStore, authn *auth.Authenticator, frontends ...Frontend) *Tracker {
	return &Tracker{store: store, authn: authn, frontends: frontends}
}

// Boot starts every front-end's accept loop, retrying a front-end whose
// Serve call returns early until a shutdown signal is received, then
// shuts everything down in dependency order: front-ends first (so no new
// announces arrive), then the swarm registry, then the authenticator.
func (t *Tracker) Boot() {
	defer glog.Flush()

	var wg sync.WaitGroup
	stopping := make(chan struct{})

	for _, fe := range t.frontends {
		wg.Add(1)
		go func(fe Frontend) {
			defer wg.Done()
			for {
				select {
				case <-stopping:
					return
				default:
				}
				if err := fe.Serve(); err != nil {
					glog.Errorf("chihaya: front-end failed: %s", err)
				}
				select {
				case <-stopping:
					return
				case <-time.After(time.Second):
				}
			}
		}(fe)
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	<-shutdown
	glog.Info("chihaya: shutting down")
	close(stopping)

	for _, fe := range t.frontends {
		fe.Stop()
	}
	wg.Wait()

	if err := t.store.Stop(); err != nil {
		glog.Errorf("chihaya: failed to stop swarm registry cleanly: %s", err)
	}
	if t.authn != nil {
		t.authn.Stop()
	}
}

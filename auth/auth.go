// Package auth resolves the opaque auth_token a client attaches to an
// announce or scrape into the resolved identity the credit engine and
// private-tracker gating need, caching each lookup's result (a failed one
// included) for a short TTL so every announce doesn't hit the user
// repository.
package auth

import (
	"context"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/opentrackr/chihaya/bittorrent"
)

// User is the identity and billing class a token resolves to.
type User struct {
	ID uint64
	// Class is a human-readable label ("newbie", "elite", ...) for logs
	// and the stats aggregator; the multiplier is what credit accounting
	// actually applies.
	Class string
	// DownloadMultiplier scales the download side of a credit delta;
	// published by the user repository per spec, not hardcoded here, so
	// a deployment can change its class table without a tracker restart.
	DownloadMultiplier float64
	Banned             bool
}

// UserRepo resolves an auth_token to a User. It is an external interface:
// this module never implements it.
type UserRepo interface {
	Resolve(ctx context.Context, token string) (User, error)
}

type cacheEntry struct {
	user    User
	err     error
	expires time.Time
}

// Authenticator wraps a UserRepo with a short-TTL cache. Entries are
// bounded in age, not in number: expired ones are removed by a periodic
// sweep.
type Authenticator struct {
	repo UserRepo
	ttl  time.Duration

	mu    sync.RWMutex
	cache map[string]cacheEntry

	closed chan struct{}
	wg     sync.WaitGroup
}

// NewAuthenticator builds an Authenticator caching resolutions for ttl.
// A zero or negative ttl disables caching.
func NewAuthenticator(repo UserRepo, ttl time.Duration) *Authenticator {
	a := &Authenticator{
		repo:   repo,
		ttl:    ttl,
		cache:  make(map[string]cacheEntry),
		closed: make(chan struct{}),
	}
	if ttl > 0 {
		a.wg.Add(1)
		go a.sweepLoop()
	}
	return a
}

// Resolve returns the User for token, consulting the cache before the
// repository. An empty token always misses as bittorrent.ErrInvalidToken
// without touching the repository.
func (a *Authenticator) Resolve(ctx context.Context, token string) (User, error) {
	if token == "" {
		return User{}, bittorrent.ErrInvalidToken
	}

	if a.ttl > 0 {
		a.mu.RLock()
		entry, ok := a.cache[token]
		a.mu.RUnlock()
		if ok && time.Now().Before(entry.expires) {
			return entry.user, entry.err
		}
	}

	user, err := a.repo.Resolve(ctx, token)
	if err != nil {
		glog.V(2).Infof("auth: resolve %s failed: %s", maskToken(token), err)
		err = bittorrent.ErrInvalidToken
	}

	if a.ttl > 0 {
		a.mu.Lock()
		a.cache[token] = cacheEntry{user: user, err: err, expires: time.Now().Add(a.ttl)}
		a.mu.Unlock()
	}

	return user, err
}

func (a *Authenticator) sweepLoop() {
	defer a.wg.Done()
	ticker := time.NewTicker(a.ttl)
	defer ticker.Stop()
	for {
		select {
		case <-a.closed:
			return
		case <-ticker.C:
			a.sweep()
		}
	}
}

func (a *Authenticator) sweep() {
	now := time.Now()
	a.mu.Lock()
	defer a.mu.Unlock()
	for token, entry := range a.cache {
		if now.After(entry.expires) {
			delete(a.cache, token)
		}
	}
}

// Stop ends the cache sweep goroutine.
func (a *Authenticator) Stop() {
	if a.ttl > 0 {
		close(a.closed)
		a.wg.Wait()
	}
}

// maskToken returns a token prefix safe to log; the full value is a
// credential and must never appear in a log line.
func maskToken(token string) string {
	if len(token) <= 4 {
		return "****"
	}
	return token[:4] + "****"
}

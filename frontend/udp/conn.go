package udp

import (
	"crypto/rand"
	"encoding/binary"
	"net"
	"sync"
	"time"
)

// initialConnectionID is the magic value BEP 15 requires a client's first
// connect request to carry.
var initialConnectionID = uint64(0x41727101980)

type connEntry struct {
	addr    string
	expires time.Time
}

// connectionIDs tracks the connection IDs this tracker has issued, so a
// subsequent announce/scrape can be validated without a client round trip
// carrying any more state than the 8-byte ID itself.
type connectionIDs struct {
	lifetime time.Duration

	mu      sync.Mutex
	entries map[uint64]connEntry
}

func newConnectionIDs(lifetime time.Duration) *connectionIDs {
	return &connectionIDs{lifetime: lifetime, entries: make(map[uint64]connEntry)}
}

// issue generates a fresh connection ID bound to addr.
func (c *connectionIDs) issue(addr net.Addr) uint64 {
	var b [8]byte
	for {
		if _, err := rand.Read(b[:]); err != nil {
			// crypto/rand failing is catastrophic for the process; a
			// timestamp-derived fallback keeps the tracker serving.
			binary.BigEndian.PutUint64(b[:], uint64(time.Now().UnixNano()))
		}
		id := binary.BigEndian.Uint64(b[:])
		if id == 0 {
			continue
		}

		c.mu.Lock()
		if _, exists := c.entries[id]; !exists {
			c.entries[id] = connEntry{addr: addr.String(), expires: time.Now().Add(c.lifetime)}
			c.mu.Unlock()
			return id
		}
		c.mu.Unlock()
	}
}

// valid reports whether id was issued to addr and has not expired.
func (c *connectionIDs) valid(id uint64, addr net.Addr) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[id]
	if !ok {
		return false
	}
	if time.Now().After(entry.expires) {
		delete(c.entries, id)
		return false
	}
	return entry.addr == addr.String()
}

func (c *connectionIDs) sweep() {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, entry := range c.entries {
		if now.After(entry.expires) {
			delete(c.entries, id)
		}
	}
}

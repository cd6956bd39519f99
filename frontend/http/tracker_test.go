package http

import (
	"net/http/httptest"
	"testing"

	"github.com/opentrackr/chihaya/bittorrent"
)

func rawTwentyBytes(fill byte) string {
	b := make([]byte, 20)
	for i := range b {
		b[i] = fill
	}
	return string(b)
}

func TestParseAnnounceBasic(t *testing.T) {
	q := "info_hash=" + urlEscape(rawTwentyBytes(0xAB)) +
		"&peer_id=" + urlEscape(rawTwentyBytes(0xCD)) +
		"&port=6881&uploaded=10&downloaded=20&left=30&compact=1"

	r := httptest.NewRequest("GET", "/announce?"+q, nil)
	r.RemoteAddr = "203.0.113.7:5555"

	req, err := ParseAnnounce(r, false, 100, 50)
	if err != nil {
		t.Fatalf("ParseAnnounce: %s", err)
	}
	if req.Peer.Port != 6881 || req.Peer.Uploaded != 10 || req.Peer.Left != 30 {
		t.Fatalf("unexpected peer: %+v", req.Peer)
	}
	if !req.Compact {
		t.Fatal("expected compact=true")
	}
	if req.NumWant != 50 {
		t.Fatalf("expected fallback numwant 50, got %d", req.NumWant)
	}
	if req.Peer.IP.String() != "203.0.113.7" {
		t.Fatalf("expected socket IP, got %s", req.Peer.IP)
	}
}

func TestParseAnnounceRejectsShortInfoHash(t *testing.T) {
	r := httptest.NewRequest("GET", "/announce?info_hash=abc&peer_id="+urlEscape(rawTwentyBytes(1))+"&port=1", nil)
	if _, err := ParseAnnounce(r, false, 100, 50); err != bittorrent.ErrMalformedInfoHash {
		t.Fatalf("expected ErrMalformedInfoHash, got %v", err)
	}
}

func TestParseScrapeRequiresInfoHashByDefault(t *testing.T) {
	r := httptest.NewRequest("GET", "/scrape", nil)
	if _, err := ParseScrape(r, false); err == nil {
		t.Fatal("expected error for scrape with no info_hash and full scrape disallowed")
	}
}

func TestParseScrapeAllowsFullScrape(t *testing.T) {
	r := httptest.NewRequest("GET", "/scrape", nil)
	req, err := ParseScrape(r, true)
	if err != nil {
		t.Fatalf("ParseScrape: %s", err)
	}
	if len(req.InfoHashes) != 0 {
		t.Fatalf("expected empty info hash list, got %d", len(req.InfoHashes))
	}
}

func urlEscape(raw string) string {
	const hex = "0123456789ABCDEF"
	out := make([]byte, 0, len(raw)*3)
	for i := 0; i < len(raw); i++ {
		out = append(out, '%', hex[raw[i]>>4], hex[raw[i]&0xf])
	}
	return string(out)
}

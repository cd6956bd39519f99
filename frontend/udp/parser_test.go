package udp

import (
	"encoding/binary"
	"net"
	"testing"

	"github.com/opentrackr/chihaya/bittorrent"
)

func announceBody(event uint32, numWant int32) []byte {
	b := make([]byte, announceRequestLen)
	for i := 0; i < 20; i++ {
		b[i] = 0xAB
		b[20+i] = 0xCD
	}
	binary.BigEndian.PutUint64(b[40:48], 100)  // downloaded
	binary.BigEndian.PutUint64(b[48:56], 0)    // left
	binary.BigEndian.PutUint64(b[56:64], 200)  // uploaded
	binary.BigEndian.PutUint32(b[64:68], event)
	binary.BigEndian.PutUint32(b[68:72], 0) // ip: use sender
	binary.BigEndian.PutUint32(b[72:76], 0xDEADBEEF)
	binary.BigEndian.PutUint32(b[76:80], uint32(numWant))
	binary.BigEndian.PutUint16(b[80:82], 6881)
	return b
}

func TestParseAnnounceRequestBasic(t *testing.T) {
	body := announceBody(2, -1) // BEP15 event 2 == started
	remote := net.ParseIP("198.51.100.9")

	req, err := parseAnnounceRequest(body, remote, false)
	if err != nil {
		t.Fatalf("parseAnnounceRequest: %s", err)
	}
	if req.Event != bittorrent.Started {
		t.Fatalf("expected Started, got %s", req.Event)
	}
	if req.Peer.Left != 0 || req.Peer.Uploaded != 200 {
		t.Fatalf("unexpected peer: %+v", req.Peer)
	}
	if req.Peer.Port != 6881 {
		t.Fatalf("unexpected port: %d", req.Peer.Port)
	}
	if req.Peer.IP.String() != remote.String() {
		t.Fatalf("expected sender IP %s, got %s", remote, req.Peer.IP)
	}
	if req.NumWant != 0 {
		t.Fatalf("numwant=-1 should leave NumWant unset, got %d", req.NumWant)
	}
}

func TestParseAnnounceRequestEventTranslation(t *testing.T) {
	cases := []struct {
		wire uint32
		want bittorrent.Event
	}{
		{0, bittorrent.None},
		{1, bittorrent.Completed},
		{2, bittorrent.Started},
		{3, bittorrent.Stopped},
	}
	for _, c := range cases {
		req, err := parseAnnounceRequest(announceBody(c.wire, -1), net.ParseIP("127.0.0.1"), false)
		if err != nil {
			t.Fatalf("parseAnnounceRequest(%d): %s", c.wire, err)
		}
		if req.Event != c.want {
			t.Fatalf("wire event %d: expected %s, got %s", c.wire, c.want, req.Event)
		}
	}
}

func TestParseAnnounceRequestTooShort(t *testing.T) {
	if _, err := parseAnnounceRequest(make([]byte, 10), net.ParseIP("127.0.0.1"), false); err == nil {
		t.Fatal("expected error for short body")
	}
}

func TestParseScrapeRequest(t *testing.T) {
	var ih1, ih2 [20]byte
	for i := range ih1 {
		ih1[i] = 0x11
		ih2[i] = 0x22
	}
	body := append(append([]byte{}, ih1[:]...), ih2[:]...)

	req, err := parseScrapeRequest(body)
	if err != nil {
		t.Fatalf("parseScrapeRequest: %s", err)
	}
	if len(req.InfoHashes) != 2 {
		t.Fatalf("expected 2 info hashes, got %d", len(req.InfoHashes))
	}
}

func TestParseScrapeRequestRejectsPartialHash(t *testing.T) {
	if _, err := parseScrapeRequest(make([]byte, 25)); err == nil {
		t.Fatal("expected error for non-multiple-of-20 body")
	}
}

func TestWriteAnnounceResponseRoundTrip(t *testing.T) {
	resp := &bittorrent.AnnounceResponse{
		Interval:   1800,
		Complete:   3,
		Incomplete: 1,
		IPv4Peers: []bittorrent.Peer{
			{IP: bittorrent.IP{IP: net.ParseIP("203.0.113.5").To4(), AddressFamily: bittorrent.IPv4}, Port: 6881},
		},
	}
	b := writeAnnounceResponse(42, resp)
	if binary.BigEndian.Uint32(b[0:4]) != announceActionID {
		t.Fatalf("unexpected action id")
	}
	if binary.BigEndian.Uint32(b[4:8]) != 42 {
		t.Fatalf("unexpected transaction id")
	}
	if len(b) != 20+6 {
		t.Fatalf("unexpected response length %d", len(b))
	}
}

func TestWriteScrapeResponseOrdersByRequest(t *testing.T) {
	ih, _ := bittorrent.InfoHashFromBytes(make([]byte, 20))
	resp := &bittorrent.ScrapeResponse{
		Files: map[bittorrent.InfoHash]bittorrent.Scrape{
			ih: {Complete: 5, Incomplete: 2, Downloaded: 9},
		},
	}
	b := writeScrapeResponse(7, []bittorrent.InfoHash{ih}, resp)
	if len(b) != 8+12 {
		t.Fatalf("unexpected length %d", len(b))
	}
	if binary.BigEndian.Uint32(b[8:12]) != 5 {
		t.Fatalf("expected seeders 5")
	}
}

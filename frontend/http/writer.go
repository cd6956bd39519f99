package http

import (
	"net/http"

	"github.com/chihaya/bencode"
	"github.com/pushrax/bufferpool"

	"github.com/opentrackr/chihaya/bittorrent"
)

// compactBuffers pools the []byte buffers built up while concatenating
// compact peer records, avoiding an allocation per announce response on
// the hot path.
var compactBuffers = bufferpool.New()

// WriteError communicates an error to a BitTorrent client over HTTP. Per
// spec 4.4, this is always a 200 with a bencoded failure reason — a
// non-200 status causes some clients to back off far more aggressively
// than the protocol intends.
func WriteError(w http.ResponseWriter, err error) error {
	message := "internal server error"
	if bittorrent.IsPublicError(err) {
		message = err.Error()
	}

	w.WriteHeader(http.StatusOK)
	return bencode.NewEncoder(w).Encode(bencode.Dict{
		"failure reason": message,
	})
}

// WriteAnnounceResponse encodes an AnnounceResponse in the client's
// requested form (compact or dictionary).
func WriteAnnounceResponse(w http.ResponseWriter, resp *bittorrent.AnnounceResponse) error {
	bdict := bencode.Dict{
		"complete":     resp.Complete,
		"incomplete":   resp.Incomplete,
		"interval":     resp.Interval,
		"min interval": resp.MinInterval,
	}
	if resp.TrackerID != "" {
		bdict["tracker id"] = resp.TrackerID
	}

	if resp.Compact {
		v4 := compactBuffers.Get()
		defer compactBuffers.Put(v4)
		for _, peer := range resp.IPv4Peers {
			b := peer.CompactV4()
			v4.Write(b[:])
		}
		if v4.Len() > 0 {
			bdict["peers"] = append([]byte(nil), v4.Bytes()...)
		}

		v6 := compactBuffers.Get()
		defer compactBuffers.Put(v6)
		for _, peer := range resp.IPv6Peers {
			b := peer.CompactV6()
			v6.Write(b[:])
		}
		if v6.Len() > 0 {
			bdict["peers6"] = append([]byte(nil), v6.Bytes()...)
		}

		return bencode.NewEncoder(w).Encode(bdict)
	}

	var peers []bencode.Dict
	for _, peer := range append(append([]bittorrent.Peer{}, resp.IPv4Peers...), resp.IPv6Peers...) {
		peers = append(peers, bencode.Dict{
			"peer id": string(peer.ID[:]),
			"ip":      peer.IP.String(),
			"port":    peer.Port,
		})
	}
	bdict["peers"] = peers

	return bencode.NewEncoder(w).Encode(bdict)
}

// WriteScrapeResponse encodes a ScrapeResponse.
func WriteScrapeResponse(w http.ResponseWriter, resp *bittorrent.ScrapeResponse) error {
	files := bencode.NewDict()
	for ih, scrape := range resp.Files {
		files[ih.RawString()] = bencode.Dict{
			"complete":   scrape.Complete,
			"incomplete": scrape.Incomplete,
			"downloaded": scrape.Downloaded,
		}
	}

	return bencode.NewEncoder(w).Encode(bencode.Dict{
		"files": files,
	})
}

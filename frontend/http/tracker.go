package http

import (
	"net"
	"net/http"
	"net/url"
	"strconv"

	"github.com/opentrackr/chihaya/bittorrent"
	"github.com/opentrackr/chihaya/internal/realip"
)

// ParseAnnounce builds a normalized AnnounceRequest from an HTTP request,
// per spec 4.4: info_hash and peer_id arrive URL-percent-encoded as raw
// 20-byte values, all integer fields are non-negative, and the peer's
// address is resolved via trust_proxy/X-Forwarded-For or the socket.
func ParseAnnounce(r *http.Request, trustProxy bool, maxNumWant, fallbackNumWant uint32) (*bittorrent.AnnounceRequest, error) {
	q, err := url.ParseQuery(r.URL.RawQuery)
	if err != nil {
		return nil, bittorrent.ErrMalformedRequest
	}

	ih, err := bittorrent.InfoHashFromBytes([]byte(q.Get("info_hash")))
	if err != nil {
		return nil, err
	}
	id, err := bittorrent.PeerIDFromBytes([]byte(q.Get("peer_id")))
	if err != nil {
		return nil, err
	}

	port, err := strconv.ParseUint(q.Get("port"), 10, 16)
	if err != nil {
		return nil, bittorrent.ErrMalformedRequest
	}

	uploaded, err := parseUint64(q.Get("uploaded"))
	if err != nil {
		return nil, bittorrent.ErrMalformedRequest
	}
	downloaded, err := parseUint64(q.Get("downloaded"))
	if err != nil {
		return nil, bittorrent.ErrMalformedRequest
	}
	left, err := parseUint64(q.Get("left"))
	if err != nil {
		return nil, bittorrent.ErrMalformedRequest
	}

	event, err := bittorrent.NewEvent(q.Get("event"))
	if err != nil {
		return nil, bittorrent.ErrMalformedRequest
	}

	ip, err := resolveIP(r, q, trustProxy)
	if err != nil {
		return nil, err
	}

	req := &bittorrent.AnnounceRequest{
		InfoHash: ih,
		Peer: bittorrent.Peer{
			ID:         id,
			IP:         ip,
			Port:       uint16(port),
			Key:        q.Get("key"),
			Uploaded:   uploaded,
			Downloaded: downloaded,
			Left:       left,
		},
		Event:     event,
		Compact:   q.Get("compact") != "0",
		AuthToken: q.Get("auth_token"),
		TrackerID: q.Get("trackerid"),
		Params:    bittorrent.NewParams(q),
	}

	_, numWantProvided := q["numwant"]
	if numWantProvided {
		n, err := parseUint64(q.Get("numwant"))
		if err != nil {
			return nil, bittorrent.ErrInvalidNumWant
		}
		req.NumWant = uint32(n)
	}
	bittorrent.SanitizeAnnounce(req, maxNumWant, fallbackNumWant, numWantProvided)

	return req, nil
}

// ParseScrape builds a normalized ScrapeRequest from an HTTP request.
// allowFullScrape controls whether an absent info_hash list is permitted
// or rejected outright. A permitted empty list produces a response with
// no files: the registry is not enumerated.
func ParseScrape(r *http.Request, allowFullScrape bool) (*bittorrent.ScrapeRequest, error) {
	q, err := url.ParseQuery(r.URL.RawQuery)
	if err != nil {
		return nil, bittorrent.ErrMalformedRequest
	}

	raw := q["info_hash"]
	if len(raw) == 0 && !allowFullScrape {
		return nil, bittorrent.ErrMalformedRequest
	}

	hashes := make([]bittorrent.InfoHash, 0, len(raw))
	for _, s := range raw {
		ih, err := bittorrent.InfoHashFromBytes([]byte(s))
		if err != nil {
			return nil, err
		}
		hashes = append(hashes, ih)
	}

	return &bittorrent.ScrapeRequest{
		InfoHashes: hashes,
		AuthToken:  q.Get("auth_token"),
	}, nil
}

func parseUint64(s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseUint(s, 10, 64)
}

func resolveIP(r *http.Request, q url.Values, trustProxy bool) (bittorrent.IP, error) {
	var ip net.IP

	if trustProxy {
		ip = realip.FromRequest(r, true)
	} else {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		ip = net.ParseIP(host)

		if explicit := q.Get("ip"); explicit != "" {
			if parsed := net.ParseIP(explicit); parsed != nil && !realip.Disallowed(parsed) {
				ip = parsed
			}
		}
	}

	if ip == nil {
		return bittorrent.IP{}, bittorrent.ErrMalformedRequest
	}

	af := bittorrent.IPv4
	v4 := ip.To4()
	if v4 == nil {
		af = bittorrent.IPv6
	} else {
		ip = v4
	}

	return bittorrent.IP{IP: ip, AddressFamily: af}, nil
}

package udp

import (
	"encoding/binary"

	"github.com/opentrackr/chihaya/bittorrent"
)

// writeConnectResponse encodes a 16-byte connect response.
func writeConnectResponse(transactionID uint32, connID uint64) []byte {
	b := make([]byte, 16)
	binary.BigEndian.PutUint32(b[0:4], connectActionID)
	binary.BigEndian.PutUint32(b[4:8], transactionID)
	binary.BigEndian.PutUint64(b[8:16], connID)
	return b
}

// writeAnnounceResponse encodes an announce response: the 20-byte header
// (action, transaction_id, interval, leechers, seeders) followed by a
// compact peer list. IPv6 peers are carried in the same stream as IPv4
// ones since BEP 15 doesn't define a separate v6 announce response.
func writeAnnounceResponse(transactionID uint32, resp *bittorrent.AnnounceResponse) []byte {
	b := make([]byte, 20, 20+len(resp.IPv4Peers)*6+len(resp.IPv6Peers)*18)
	binary.BigEndian.PutUint32(b[0:4], announceActionID)
	binary.BigEndian.PutUint32(b[4:8], transactionID)
	binary.BigEndian.PutUint32(b[8:12], uint32(resp.Interval))
	binary.BigEndian.PutUint32(b[12:16], uint32(resp.Incomplete))
	binary.BigEndian.PutUint32(b[16:20], uint32(resp.Complete))

	for _, p := range resp.IPv4Peers {
		rec := p.CompactV4()
		b = append(b, rec[:]...)
	}
	for _, p := range resp.IPv6Peers {
		rec := p.CompactV6()
		b = append(b, rec[:]...)
	}
	return b
}

// writeScrapeResponse encodes a scrape response: one 12-byte
// (seeders, completed, leechers) record per info hash, in the order the
// request named them.
func writeScrapeResponse(transactionID uint32, order []bittorrent.InfoHash, resp *bittorrent.ScrapeResponse) []byte {
	b := make([]byte, 8, 8+len(order)*12)
	binary.BigEndian.PutUint32(b[0:4], scrapeActionID)
	binary.BigEndian.PutUint32(b[4:8], transactionID)

	for _, ih := range order {
		scrape := resp.Files[ih]
		rec := make([]byte, 12)
		binary.BigEndian.PutUint32(rec[0:4], uint32(scrape.Complete))
		binary.BigEndian.PutUint32(rec[4:8], uint32(scrape.Downloaded))
		binary.BigEndian.PutUint32(rec[8:12], uint32(scrape.Incomplete))
		b = append(b, rec...)
	}
	return b
}

// writeError encodes an error response: action, transaction_id, then the
// message as a raw (unprefixed) string filling the rest of the packet.
func writeError(transactionID uint32, message string) []byte {
	b := make([]byte, 8, 8+len(message))
	binary.BigEndian.PutUint32(b[0:4], errorActionID)
	binary.BigEndian.PutUint32(b[4:8], transactionID)
	return append(b, message...)
}

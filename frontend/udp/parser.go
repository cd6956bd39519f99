package udp

import (
	"encoding/binary"
	"net"

	"github.com/opentrackr/chihaya/bittorrent"
)

// Action IDs, per BEP 15.
const (
	connectActionID uint32 = iota
	announceActionID
	scrapeActionID
	errorActionID
	announceV6ActionID
)

// Optional-parameter types, per BEP 41/45.
const (
	optionEndOfOptions uint8 = 0x0
	optionNOP          uint8 = 0x1
	optionURLData      uint8 = 0x2
)

// udpEventIDs translates BEP 15's wire event IDs to this package's
// bittorrent.Event values. The two orderings differ (BEP 15 puts
// "completed" before "started"), so this must be a table, not a cast.
var udpEventIDs = [...]bittorrent.Event{
	bittorrent.None,
	bittorrent.Completed,
	bittorrent.Started,
	bittorrent.Stopped,
}

const (
	// announceRequestLen is the length of an announce request's body, not
	// counting the 16-byte connection_id/action/transaction_id header the
	// caller strips before calling parseAnnounceRequest. 16+82 = 98, the
	// fixed announce request size BEP 15 specifies.
	announceRequestLen = 82
	infoHashLen        = bittorrent.InfoHashLen
)

// parseAnnounceRequest decodes the 82-byte fixed announce body that
// follows the 16-byte connection_id/action/transaction_id header already
// consumed by the caller. remoteIP is used verbatim unless the packet's
// own IP field is non-zero and IP spoofing is allowed by configuration.
func parseAnnounceRequest(b []byte, remoteIP net.IP, allowIPSpoofing bool) (*bittorrent.AnnounceRequest, error) {
	if len(b) < announceRequestLen {
		return nil, errMalformedPacket
	}

	ih, err := bittorrent.InfoHashFromBytes(b[0:20])
	if err != nil {
		return nil, err
	}
	id, err := bittorrent.PeerIDFromBytes(b[20:40])
	if err != nil {
		return nil, err
	}

	downloaded := binary.BigEndian.Uint64(b[40:48])
	left := binary.BigEndian.Uint64(b[48:56])
	uploaded := binary.BigEndian.Uint64(b[56:64])

	eventID := binary.BigEndian.Uint32(b[64:68])
	if int(eventID) >= len(udpEventIDs) {
		return nil, errMalformedPacket
	}
	event := udpEventIDs[eventID]

	ip := remoteIP
	if packetIP := binary.BigEndian.Uint32(b[68:72]); packetIP != 0 && allowIPSpoofing {
		v4 := make(net.IP, net.IPv4len)
		binary.BigEndian.PutUint32(v4, packetIP)
		ip = v4
	}

	key := binary.BigEndian.Uint32(b[72:76])
	numWant := int32(binary.BigEndian.Uint32(b[76:80]))
	port := binary.BigEndian.Uint16(b[80:82])

	af := bittorrent.IPv4
	if v4 := ip.To4(); v4 != nil {
		ip = v4
	} else {
		af = bittorrent.IPv6
	}

	req := &bittorrent.AnnounceRequest{
		InfoHash: ih,
		Peer: bittorrent.Peer{
			ID:         id,
			IP:         bittorrent.IP{IP: ip, AddressFamily: af},
			Port:       port,
			Key:        formatKey(key),
			Uploaded:   uploaded,
			Downloaded: downloaded,
			Left:       left,
		},
		Event:   event,
		Compact: true,
	}

	if numWant >= 0 {
		req.NumWant = uint32(numWant)
	}

	if len(b) > announceRequestLen {
		params, err := parseOptionalParameters(b[announceRequestLen:])
		if err == nil {
			req.Params = params
		}
	}

	return req, nil
}

// parseOptionalParameters walks the BEP 41 optional-parameter stream that
// may trail an announce request: a sequence of (type byte, ...) entries
// terminated by optionEndOfOptions or the end of the packet.
func parseOptionalParameters(b []byte) (bittorrent.Params, error) {
	for len(b) > 0 {
		switch b[0] {
		case optionEndOfOptions:
			return bittorrent.Params{}, nil
		case optionNOP:
			b = b[1:]
		case optionURLData:
			if len(b) < 2 {
				return bittorrent.Params{}, errMalformedPacket
			}
			n := int(b[1])
			if len(b) < 2+n {
				return bittorrent.Params{}, errMalformedPacket
			}
			return bittorrent.ParseURLData(string(b[2 : 2+n]))
		default:
			return bittorrent.Params{}, errMalformedPacket
		}
	}
	return bittorrent.Params{}, nil
}

// parseScrapeRequest decodes the list of 20-byte info hashes that follows
// a scrape packet's 16-byte header.
func parseScrapeRequest(b []byte) (*bittorrent.ScrapeRequest, error) {
	if len(b)%infoHashLen != 0 {
		return nil, errMalformedPacket
	}

	hashes := make([]bittorrent.InfoHash, 0, len(b)/infoHashLen)
	for len(b) > 0 {
		ih, err := bittorrent.InfoHashFromBytes(b[:infoHashLen])
		if err != nil {
			return nil, err
		}
		hashes = append(hashes, ih)
		b = b[infoHashLen:]
	}

	return &bittorrent.ScrapeRequest{InfoHashes: hashes}, nil
}

func formatKey(k uint32) string {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, k)
	return string(b)
}

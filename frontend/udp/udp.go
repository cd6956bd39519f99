// Package udp implements the UDP tracker front-end described by BEP 15:
// a connect/announce/scrape exchange built around a short-lived
// connection ID that replaces a TCP handshake's spoofing resistance.
package udp

import (
	"context"
	"encoding/binary"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/opentrackr/chihaya/bittorrent"
	"github.com/opentrackr/chihaya/config"
	"github.com/opentrackr/chihaya/middleware"
	"github.com/opentrackr/chihaya/stats"
)

var errMalformedPacket = bittorrent.ErrMalformedRequest

var errBadConnectionID = bittorrent.ClientError("bad connection id")
var errUnknownAction = bittorrent.ClientError("unknown action")

const defaultConnIDLifetime = 2 * time.Minute

// Server is the UDP tracker front-end.
type Server struct {
	cfg   config.UDPConfig
	track config.TrackerConfig
	logic *middleware.Logic
	stats *stats.Stats

	conns *connectionIDs

	socket  *net.UDPConn
	closing chan struct{}
	wg      sync.WaitGroup
}

// New builds a UDP Server. Call Serve to start accepting packets.
func New(cfg config.UDPConfig, track config.TrackerConfig, logic *middleware.Logic, st *stats.Stats) *Server {
	lifetime := cfg.ConnIDLifetime.Duration
	if lifetime <= 0 {
		lifetime = defaultConnIDLifetime
	}
	return &Server{
		cfg:     cfg,
		track:   track,
		logic:   logic,
		stats:   st,
		conns:   newConnectionIDs(lifetime),
		closing: make(chan struct{}),
	}
}

// Serve starts accepting and handling UDP packets until Stop is called.
// It blocks until the socket closes.
func (s *Server) Serve() error {
	addr, err := net.ResolveUDPAddr("udp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	socket, err := net.ListenUDP("udp", addr)
	if err != nil {
		return err
	}
	s.socket = socket
	if s.cfg.ReadBufferSize > 0 {
		if err := socket.SetReadBuffer(s.cfg.ReadBufferSize); err != nil {
			glog.Warningf("udp: failed to set read buffer size: %s", err)
		}
	}

	go s.sweepLoop()

	glog.Infof("udp: listening on %s", s.cfg.ListenAddr)

	buf := make([]byte, 2048)
	for {
		n, remote, err := socket.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-s.closing:
				s.wg.Wait()
				return nil
			default:
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			return err
		}
		if n == 0 {
			continue
		}

		packet := make([]byte, n)
		copy(packet, buf[:n])

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handlePacket(packet, remote)
		}()
	}
}

// Stop closes the UDP socket, waiting for in-flight packets to finish
// processing.
func (s *Server) Stop() {
	close(s.closing)
	if s.socket != nil {
		s.socket.SetReadDeadline(time.Now())
		s.socket.Close()
	}
	s.wg.Wait()
}

func (s *Server) sweepLoop() {
	t := time.NewTicker(s.conns.lifetime)
	defer t.Stop()
	for {
		select {
		case <-s.closing:
			return
		case <-t.C:
			s.conns.sweep()
		}
	}
}

func (s *Server) handlePacket(packet []byte, remote *net.UDPAddr) {
	if len(packet) < 16 {
		return
	}

	connID := binary.BigEndian.Uint64(packet[0:8])
	actionID := binary.BigEndian.Uint32(packet[8:12])
	transactionID := binary.BigEndian.Uint32(packet[12:16])
	body := packet[16:]

	if actionID != connectActionID && !s.conns.valid(connID, remote) {
		s.writeTo(remote, writeError(transactionID, string(errBadConnectionID)))
		return
	}

	switch actionID {
	case connectActionID:
		if connID != initialConnectionID {
			return
		}
		issued := s.conns.issue(remote)
		s.writeTo(remote, writeConnectResponse(transactionID, issued))

	case announceActionID, announceV6ActionID:
		s.handleAnnounce(transactionID, body, remote)

	case scrapeActionID:
		s.handleScrape(transactionID, body, remote)

	default:
		s.writeTo(remote, writeError(transactionID, string(errUnknownAction)))
	}
}

func (s *Server) handleAnnounce(transactionID uint32, body []byte, remote *net.UDPAddr) {
	s.stats.RecordEvent(stats.AnnounceUDP)

	req, err := parseAnnounceRequest(body, remote.IP, s.track.AllowIPSpoofing)
	if err != nil {
		s.stats.RecordEvent(stats.ClientError)
		s.writeTo(remote, writeError(transactionID, publicMessage(err)))
		return
	}
	// A negative num_want (BEP 15 clients send -1) asks for the default.
	numWantProvided := int32(binary.BigEndian.Uint32(body[76:80])) >= 0
	bittorrent.SanitizeAnnounce(req, uint32(s.track.MaxNumWant), uint32(s.track.NumWantFallback), numWantProvided)

	resp, err := s.logic.HandleAnnounce(context.Background(), req)
	if err != nil {
		if bittorrent.IsPublicError(err) {
			s.stats.RecordEvent(stats.ClientError)
		} else {
			glog.Errorf("udp: announce failed: %s", err)
			s.stats.RecordEvent(stats.ErroredRequest)
		}
		s.writeTo(remote, writeError(transactionID, publicMessage(err)))
		return
	}

	resp.Interval = int(s.track.Announce.Duration / time.Second)
	resp.MinInterval = int(s.track.MinAnnounce.Duration / time.Second)

	s.writeTo(remote, writeAnnounceResponse(transactionID, resp))
	s.stats.RecordEvent(stats.HandledRequest)
}

func (s *Server) handleScrape(transactionID uint32, body []byte, remote *net.UDPAddr) {
	req, err := parseScrapeRequest(body)
	if err != nil {
		s.stats.RecordEvent(stats.ClientError)
		s.writeTo(remote, writeError(transactionID, publicMessage(err)))
		return
	}
	bittorrent.SanitizeScrape(req, bittorrent.MaxScrapeInfoHashes)

	resp, err := s.logic.HandleScrape(context.Background(), req)
	if err != nil {
		if bittorrent.IsPublicError(err) {
			s.stats.RecordEvent(stats.ClientError)
		} else {
			glog.Errorf("udp: scrape failed: %s", err)
			s.stats.RecordEvent(stats.ErroredRequest)
		}
		s.writeTo(remote, writeError(transactionID, publicMessage(err)))
		return
	}

	s.writeTo(remote, writeScrapeResponse(transactionID, req.InfoHashes, resp))
	s.stats.RecordEvent(stats.HandledRequest)
}

func (s *Server) writeTo(remote *net.UDPAddr, b []byte) {
	if _, err := s.socket.WriteToUDP(b, remote); err != nil {
		glog.V(2).Infof("udp: write to %s failed: %s", remote, err)
	}
}

func publicMessage(err error) string {
	if bittorrent.IsPublicError(err) {
		return err.Error()
	}
	return "internal server error"
}

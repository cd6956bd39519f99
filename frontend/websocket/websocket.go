// Package websocket implements the WebTorrent tracker front-end: clients
// upgrade a GET /announce request to a WebSocket and exchange JSON
// messages carrying opaque WebRTC offer/answer payloads that the tracker
// relays by peer_id without inspecting.
package websocket

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"

	"github.com/opentrackr/chihaya/bittorrent"
	"github.com/opentrackr/chihaya/config"
	"github.com/opentrackr/chihaya/middleware"
	"github.com/opentrackr/chihaya/stats"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// message is the WebTorrent wire schema: a JSON object carrying an
// announce or scrape request inbound, or an announce reply (interval and
// swarm counters, no peer list) or a relayed offer/answer outbound. Offers
// and the answer are passed through verbatim;
// the tracker never parses the SDP they carry.
type message struct {
	Action string `json:"action"`

	InfoHash string `json:"info_hash"`
	PeerID   string `json:"peer_id"`

	NumWant    int    `json:"numwant,omitempty"`
	Uploaded   uint64 `json:"uploaded,omitempty"`
	Downloaded uint64 `json:"downloaded,omitempty"`
	Left       uint64 `json:"left,omitempty"`
	Event      string `json:"event,omitempty"`

	Offers []offer         `json:"offers,omitempty"`
	Offer  json.RawMessage `json:"offer,omitempty"`
	Answer json.RawMessage `json:"answer,omitempty"`

	OfferID  string `json:"offer_id,omitempty"`
	ToPeerID string `json:"to_peer_id,omitempty"`

	Interval   int    `json:"interval,omitempty"`
	Complete   int    `json:"complete,omitempty"`
	Incomplete int    `json:"incomplete,omitempty"`
	Failure    string `json:"failure reason,omitempty"`
}

type offer struct {
	OfferID string          `json:"offer_id"`
	Offer   json.RawMessage `json:"offer"`
}

// conn wraps a single client's socket; gorilla/websocket requires writes
// to be serialized, so every send to this peer goes through writeMu.
type conn struct {
	socket  *websocket.Conn
	writeMu sync.Mutex
}

func (c *conn) send(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.socket.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.socket.WriteJSON(v)
}

// peerKey scopes a live connection to the swarm it was last seen
// announcing in, since an offer/answer relay never needs to cross swarms.
type peerKey struct {
	ih bittorrent.InfoHash
	id bittorrent.PeerID
}

// Server is the WebSocket tracker front-end.
type Server struct {
	cfg   config.WebSocketConfig
	track config.TrackerConfig
	logic *middleware.Logic
	stats *stats.Stats

	mu    sync.Mutex
	conns map[peerKey]*conn

	httpServer *http.Server
}

// New builds a WebSocket Server. Call Serve to start accepting
// connections.
func New(cfg config.WebSocketConfig, track config.TrackerConfig, logic *middleware.Logic, st *stats.Stats) *Server {
	return &Server{
		cfg:   cfg,
		track: track,
		logic: logic,
		stats: st,
		conns: make(map[peerKey]*conn),
	}
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/announce", s.handleUpgrade)
	return mux
}

// Serve starts accepting WebSocket connections until Stop is called.
func (s *Server) Serve() error {
	s.httpServer = &http.Server{Addr: s.cfg.ListenAddr, Handler: s.routes()}
	glog.Infof("websocket: listening on %s", s.cfg.ListenAddr)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop gracefully shuts the WebSocket server down.
func (s *Server) Stop() {
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.httpServer.Shutdown(ctx)
	}
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	socket, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		glog.V(2).Infof("websocket: upgrade failed: %s", err)
		return
	}
	s.stats.RecordEvent(stats.AnnounceWebSocket)

	c := &conn{socket: socket}
	idle := s.cfg.IdleTimeout.Duration
	if idle <= 0 {
		idle = 30 * time.Second
	}

	defer socket.Close()
	var registered []peerKey

	defer func() {
		s.mu.Lock()
		for _, k := range registered {
			if s.conns[k] == c {
				delete(s.conns, k)
			}
		}
		s.mu.Unlock()
	}()

	for {
		socket.SetReadDeadline(time.Now().Add(idle))
		var in message
		if err := socket.ReadJSON(&in); err != nil {
			return
		}

		key, err := s.handleMessage(r.Context(), c, in)
		if err != nil {
			c.send(message{Action: in.Action, Failure: publicMessage(err)})
			continue
		}
		if key != nil {
			registered = append(registered, *key)
		}
	}
}

func (s *Server) handleMessage(ctx context.Context, c *conn, in message) (*peerKey, error) {
	ih, err := infoHashFromHex(in.InfoHash)
	if err != nil {
		return nil, err
	}

	switch in.Action {
	case "announce":
		return s.handleAnnounce(ctx, c, ih, in)
	case "scrape":
		return nil, s.handleScrape(ctx, ih, in)
	default:
		return nil, bittorrent.ErrMalformedRequest
	}
}

func (s *Server) handleAnnounce(ctx context.Context, c *conn, ih bittorrent.InfoHash, in message) (*peerKey, error) {
	s.stats.RecordEvent(stats.AnnounceWebSocket)

	id, err := peerIDFromHex(in.PeerID)
	if err != nil {
		return nil, err
	}
	event, err := bittorrent.NewEvent(in.Event)
	if err != nil {
		return nil, err
	}

	key := peerKey{ih: ih, id: id}
	s.mu.Lock()
	s.conns[key] = c
	s.mu.Unlock()

	req := &bittorrent.AnnounceRequest{
		InfoHash: ih,
		Peer: bittorrent.Peer{
			ID:         id,
			Uploaded:   in.Uploaded,
			Downloaded: in.Downloaded,
			Left:       in.Left,
		},
		Event:   event,
		NumWant: uint32(in.NumWant),
	}
	bittorrent.SanitizeAnnounce(req, uint32(s.track.MaxNumWant), uint32(s.track.NumWantFallback), true)

	resp, err := s.logic.HandleAnnounce(ctx, req)
	if err != nil {
		if !bittorrent.IsPublicError(err) {
			glog.Errorf("websocket: announce failed: %s", err)
			s.stats.RecordEvent(stats.ErroredRequest)
		} else {
			s.stats.RecordEvent(stats.ClientError)
		}
		return &key, err
	}

	resp.Interval = int(s.track.Announce.Duration / time.Second)

	out := message{
		Action:     "announce",
		InfoHash:   in.InfoHash,
		Interval:   resp.Interval,
		Complete:   resp.Complete,
		Incomplete: resp.Incomplete,
	}
	if err := c.send(out); err != nil {
		s.stats.RecordEvent(stats.ErroredRequest)
		return &key, nil
	}

	s.relayOffers(ih, id, in)
	s.relayAnswer(ih, in)

	s.stats.RecordEvent(stats.HandledRequest)
	return &key, nil
}

func (s *Server) handleScrape(ctx context.Context, ih bittorrent.InfoHash, in message) error {
	req := &bittorrent.ScrapeRequest{InfoHashes: []bittorrent.InfoHash{ih}}
	resp, err := s.logic.HandleScrape(ctx, req)
	if err != nil {
		return err
	}
	s.stats.RecordEvent(stats.HandledRequest)
	_ = resp
	return nil
}

// relayOffers forwards each of the announcing peer's offers to a selected
// (distinct, already-connected) peer in the same swarm, capped by the
// server's configured MaxOffers. The SDP payload each offer carries is
// never parsed; it is copied through as a json.RawMessage.
func (s *Server) relayOffers(ih bittorrent.InfoHash, from bittorrent.PeerID, in message) {
	max := s.cfg.MaxOffers
	if max <= 0 || max > len(in.Offers) {
		max = len(in.Offers)
	}

	targets := s.relayTargets(ih, from, max)

	for i, target := range targets {
		if i >= len(in.Offers) {
			break
		}
		out := message{
			Action:   "announce",
			InfoHash: in.InfoHash,
			PeerID:   hex.EncodeToString(from[:]),
			Offer:    in.Offers[i].Offer,
			OfferID:  in.Offers[i].OfferID,
		}
		if err := target.send(out); err != nil {
			glog.V(2).Infof("websocket: failed relaying offer: %s", err)
		}
	}
}

// relayTargets collects up to max live connections in swarm ih, skipping
// from's own connection.
func (s *Server) relayTargets(ih bittorrent.InfoHash, from bittorrent.PeerID, max int) []*conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	targets := make([]*conn, 0, max)
	for key, c := range s.conns {
		if key.ih != ih || key.id == from {
			continue
		}
		targets = append(targets, c)
		if len(targets) == max {
			break
		}
	}
	return targets
}

// relayAnswer routes a client's answer back to the peer named by
// to_peer_id, passing the offer_id the client echoed through unchanged.
func (s *Server) relayAnswer(ih bittorrent.InfoHash, in message) {
	if len(in.Answer) == 0 || in.ToPeerID == "" {
		return
	}
	to, err := peerIDFromHex(in.ToPeerID)
	if err != nil {
		return
	}

	s.mu.Lock()
	target := s.conns[peerKey{ih: ih, id: to}]
	s.mu.Unlock()
	if target == nil {
		return
	}

	out := message{
		Action:   "announce",
		InfoHash: in.InfoHash,
		PeerID:   in.PeerID,
		Answer:   in.Answer,
		OfferID:  in.OfferID,
	}
	if err := target.send(out); err != nil {
		glog.V(2).Infof("websocket: failed relaying answer: %s", err)
	}
}

func infoHashFromHex(s string) (bittorrent.InfoHash, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return bittorrent.InfoHash{}, bittorrent.ErrMalformedInfoHash
	}
	return bittorrent.InfoHashFromBytes(b)
}

func peerIDFromHex(s string) (bittorrent.PeerID, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return bittorrent.PeerID{}, bittorrent.ErrMalformedPeerID
	}
	return bittorrent.PeerIDFromBytes(b)
}

func publicMessage(err error) string {
	if bittorrent.IsPublicError(err) {
		return err.Error()
	}
	return "internal server error"
}

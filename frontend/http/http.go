// Package http implements the HTTP tracker front-end: GET /announce,
// /scrape, and /stats, encoded as bencode per BEP 3.
package http

import (
	"net"
	"net/http"
	"time"

	"github.com/golang/glog"
	"github.com/julienschmidt/httprouter"
	"github.com/tylerb/graceful"
	"golang.org/x/net/netutil"

	"github.com/opentrackr/chihaya/bittorrent"
	"github.com/opentrackr/chihaya/config"
	"github.com/opentrackr/chihaya/middleware"
	"github.com/opentrackr/chihaya/stats"
)

// Server is the HTTP tracker front-end.
type Server struct {
	cfg   config.HTTPConfig
	track config.TrackerConfig
	logic *middleware.Logic
	stats *stats.Stats

	grace *graceful.Server
}

// New builds an HTTP Server. Call Serve to start accepting connections.
func New(cfg config.HTTPConfig, track config.TrackerConfig, logic *middleware.Logic, st *stats.Stats) *Server {
	return &Server{cfg: cfg, track: track, logic: logic, stats: st}
}

func (s *Server) routes() *httprouter.Router {
	r := httprouter.New()
	r.GET("/announce", s.announceHandler)
	r.GET("/scrape", s.scrapeHandler)
	r.GET("/stats", s.statsHandler)
	return r
}

// Serve starts accepting and handling HTTP connections until Stop is
// called. It blocks until the listener closes.
func (s *Server) Serve() error {
	srv := &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s.routes(),
		ReadTimeout:  s.cfg.ReadTimeout.Duration,
		WriteTimeout: s.cfg.WriteTimeout.Duration,
	}

	s.grace = &graceful.Server{
		Timeout: 10 * time.Second,
		Server:  srv,
	}

	listener, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	if s.cfg.ListenLimit > 0 {
		listener = netutil.LimitListener(listener, s.cfg.ListenLimit)
	}

	glog.Infof("http: listening on %s", s.cfg.ListenAddr)
	return s.grace.Serve(listener)
}

// Stop gracefully shuts down the HTTP server, waiting for in-flight
// requests to complete.
func (s *Server) Stop() {
	if s.grace != nil {
		s.grace.Stop(10 * time.Second)
	}
}

func (s *Server) announceHandler(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s.stats.RecordEvent(stats.AnnounceHTTP)
	s.stats.RecordEvent(stats.Announce)

	req, err := ParseAnnounce(r, s.track.TrustProxy, uint32(s.track.MaxNumWant), uint32(s.track.NumWantFallback))
	if err != nil {
		s.stats.RecordEvent(stats.ClientError)
		WriteError(w, err)
		return
	}

	resp, err := s.logic.HandleAnnounce(r.Context(), req)
	if err != nil {
		if bittorrent.IsPublicError(err) {
			s.stats.RecordEvent(stats.ClientError)
		} else {
			glog.Errorf("http: announce failed: %s", err)
			s.stats.RecordEvent(stats.ErroredRequest)
		}
		WriteError(w, err)
		return
	}

	resp.Interval = int(s.track.Announce.Duration / time.Second)
	resp.MinInterval = int(s.track.MinAnnounce.Duration / time.Second)

	if err := WriteAnnounceResponse(w, resp); err != nil {
		glog.Errorf("http: failed writing announce response: %s", err)
		s.stats.RecordEvent(stats.ErroredRequest)
		return
	}
	s.stats.RecordEvent(stats.HandledRequest)
}

func (s *Server) scrapeHandler(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s.stats.RecordEvent(stats.Scrape)

	req, err := ParseScrape(r, s.track.AllowFullScrape)
	if err != nil {
		s.stats.RecordEvent(stats.ClientError)
		WriteError(w, err)
		return
	}
	bittorrent.SanitizeScrape(req, bittorrent.MaxScrapeInfoHashes)

	resp, err := s.logic.HandleScrape(r.Context(), req)
	if err != nil {
		if bittorrent.IsPublicError(err) {
			s.stats.RecordEvent(stats.ClientError)
		} else {
			glog.Errorf("http: scrape failed: %s", err)
			s.stats.RecordEvent(stats.ErroredRequest)
		}
		WriteError(w, err)
		return
	}

	if err := WriteScrapeResponse(w, resp); err != nil {
		glog.Errorf("http: failed writing scrape response: %s", err)
		s.stats.RecordEvent(stats.ErroredRequest)
		return
	}
	s.stats.RecordEvent(stats.HandledRequest)
}

func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if accept := r.Header.Get("Accept"); accept == "text/plain" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		for k, v := range s.stats.Flat() {
			w.Write([]byte(k))
			w.Write([]byte(": "))
			w.Write([]byte(v))
			w.Write([]byte("\n"))
		}
		return
	}

	body, err := s.stats.JSON()
	if err != nil {
		glog.Errorf("http: failed marshaling stats: %s", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}

// Copyright 2015 The Chihaya Authors. All rights reserved.
// Use of this source code is governed by the BSD 2-Clause license,
// which can be found in the LICENSE file.

// Package config implements the configuration for a BitTorrent tracker.
package config

import (
	"encoding/json"
	"errors"
	"io"
	"os"
	"time"
)

// ErrMissingRequiredParam is used by drivers to indicate that an entry required
// to be within a config's Params map is not present.
var ErrMissingRequiredParam = errors.New("a parameter required by a driver is not present")

// Duration wraps a time.Duration and adds JSON marshalling.
type Duration struct{ time.Duration }

// MarshalJSON transforms a duration into JSON.
func (d *Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON transform JSON into a Duration.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var str string
	err := json.Unmarshal(b, &str)
	if err != nil {
		return err
	}
	d.Duration, err = time.ParseDuration(str)
	return err
}

// NetConfig is the configuration used to tune networking behaviour.
type NetConfig struct {
	AllowIPSpoofing  bool   `json:"allowIPSpoofing"`
	DualStackedPeers bool   `json:"dualStackedPeers"`
	TrustProxy       bool   `json:"trustProxy"`
	RealIPHeader     string `json:"realIPHeader"`
	RespectAF        bool   `json:"respectAF"`
	NumListeners     int    `json:"listeners"`
}

// StatsConfig is the configuration used to record runtime statistics.
type StatsConfig struct {
	BufferSize        int      `json:"statsBufferSize"`
	IncludeMem        bool     `json:"includeMemStats"`
	VerboseMem        bool     `json:"verboseMemStats"`
	MemUpdateInterval Duration `json:"memStatsInterval"`
}

// StorageConfig tunes the in-memory swarm registry.
type StorageConfig struct {
	ShardCount   int      `json:"shardCount"`
	MaxSwarmSize int      `json:"maxSwarmSize"`
	MaxSwarms    int      `json:"maxSwarms"` // 0 == unbounded
	GCInterval   Duration `json:"gcInterval"`
	PeerLifetime Duration `json:"peerLifetime"`
}

// AuthConfig tunes the authenticator's token-resolution cache.
type AuthConfig struct {
	TokenCacheTTL Duration `json:"tokenCacheTTL"`
}

// CreditConfig tunes the per-(user, torrent) accounting engine.
type CreditConfig struct {
	SessionResetThreshold Duration `json:"sessionResetThreshold"`
	UploadRewardRate      float64  `json:"uploadRewardRate"`
	LinkCapacityBytesSec  uint64   `json:"linkCapacityBytesSec"` // 0 == heuristic disabled
	LedgerRetries         int      `json:"ledgerRetries"`
}

// TrackerConfig is the configuration for tracker functionality.
type TrackerConfig struct {
	CreateOnAnnounce bool     `json:"createOnAnnounce"`
	PrivateEnabled   bool     `json:"privateEnabled"`
	AllowFullScrape  bool     `json:"allowFullScrape"`
	Announce         Duration `json:"announce"`
	MinAnnounce      Duration `json:"minAnnounce"`
	NumWantFallback  int      `json:"defaultNumWant"`
	MaxNumWant       int      `json:"maxNumWant"`

	NetConfig
}

// HTTPConfig is the configuration for the HTTP protocol.
type HTTPConfig struct {
	ListenAddr     string   `json:"httpListenAddr"`
	RequestTimeout Duration `json:"httpRequestTimeout"`
	ReadTimeout    Duration `json:"httpReadTimeout"`
	WriteTimeout   Duration `json:"httpWriteTimeout"`
	ListenLimit    int      `json:"httpListenLimit"`
}

// UDPConfig is the configuration for the UDP protocol.
type UDPConfig struct {
	ListenAddr     string   `json:"udpListenAddr"`
	ReadBufferSize int      `json:"udpReadBufferSize"`
	RequestTimeout Duration `json:"udpRequestTimeout"`
	ConnIDLifetime Duration `json:"udpConnIDLifetime"`
}

// WebSocketConfig is the configuration for the WebTorrent WebSocket protocol.
type WebSocketConfig struct {
	ListenAddr  string   `json:"wsListenAddr"`
	IdleTimeout Duration `json:"wsIdleTimeout"`
	MaxOffers   int      `json:"wsMaxOffers"`
}

// Config is the global configuration for an instance of the tracker.
type Config struct {
	TrackerConfig
	HTTPConfig
	UDPConfig
	WebSocketConfig
	StorageConfig
	AuthConfig
	CreditConfig
	StatsConfig
}

// DefaultConfig is a configuration that can be used as a fallback value.
var DefaultConfig = Config{
	TrackerConfig: TrackerConfig{
		CreateOnAnnounce: true,
		PrivateEnabled:   false,
		AllowFullScrape:  false,
		Announce:         Duration{30 * time.Minute},
		MinAnnounce:      Duration{15 * time.Minute},
		NumWantFallback:  50,
		MaxNumWant:       100,

		NetConfig: NetConfig{
			AllowIPSpoofing:  false,
			DualStackedPeers: true,
			TrustProxy:       false,
			RespectAF:        true,
			NumListeners:     8,
		},
	},

	HTTPConfig: HTTPConfig{
		ListenAddr:     "localhost:6881",
		RequestTimeout: Duration{10 * time.Second},
		ReadTimeout:    Duration{10 * time.Second},
		WriteTimeout:   Duration{10 * time.Second},
	},

	UDPConfig: UDPConfig{
		ListenAddr:     "localhost:6881",
		ReadBufferSize: 2048,
		RequestTimeout: Duration{15 * time.Second},
		ConnIDLifetime: Duration{120 * time.Second},
	},

	WebSocketConfig: WebSocketConfig{
		ListenAddr:  "localhost:6883",
		IdleTimeout: Duration{30 * time.Second},
		MaxOffers:   10,
	},

	StorageConfig: StorageConfig{
		ShardCount:   32,
		MaxSwarmSize: 1000,
		MaxSwarms:    0,
		GCInterval:   Duration{60 * time.Second},
		PeerLifetime: Duration{1200 * time.Second},
	},

	AuthConfig: AuthConfig{
		TokenCacheTTL: Duration{30 * time.Second},
	},

	CreditConfig: CreditConfig{
		SessionResetThreshold: Duration{30 * time.Minute},
		UploadRewardRate:      1.0,
		LinkCapacityBytesSec:  0,
		LedgerRetries:         3,
	},

	StatsConfig: StatsConfig{
		BufferSize: 0,
		IncludeMem: true,
		VerboseMem: false,

		MemUpdateInterval: Duration{5 * time.Second},
	},
}

// Open is a shortcut to open a file, read it, and generate a Config.
// It supports relative and absolute paths. Given "", it returns DefaultConfig.
func Open(path string) (*Config, error) {
	if path == "" {
		return &DefaultConfig, nil
	}

	f, err := os.Open(os.ExpandEnv(path))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	conf, err := Decode(f)
	if err != nil {
		return nil, err
	}
	return conf, nil
}

// Decode casts an io.Reader into a JSONDecoder and decodes it into a *Config.
func Decode(r io.Reader) (*Config, error) {
	conf := DefaultConfig
	err := json.NewDecoder(r).Decode(&conf)
	return &conf, err
}

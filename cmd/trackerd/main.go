// Command trackerd boots the tracker: it loads configuration, wires the
// swarm registry, auth, credit, and stats layers into the middleware
// chain, and serves the HTTP, UDP, and WebSocket front-ends until a
// shutdown signal arrives.
package main

import (
	"flag"
	"runtime"
	"time"

	"github.com/golang/glog"

	chihaya "github.com/opentrackr/chihaya"
	"github.com/opentrackr/chihaya/auth"
	"github.com/opentrackr/chihaya/bittorrent"
	"github.com/opentrackr/chihaya/config"
	"github.com/opentrackr/chihaya/credit"
	httpfrontend "github.com/opentrackr/chihaya/frontend/http"
	udpfrontend "github.com/opentrackr/chihaya/frontend/udp"
	wsfrontend "github.com/opentrackr/chihaya/frontend/websocket"
	"github.com/opentrackr/chihaya/internal/repotest"
	"github.com/opentrackr/chihaya/middleware"
	"github.com/opentrackr/chihaya/repo"
	"github.com/opentrackr/chihaya/stats"
	"github.com/opentrackr/chihaya/storage"
	"github.com/opentrackr/chihaya/storage/memory"
)

var (
	maxProcs   int
	configPath string
)

func init() {
	flag.IntVar(&maxProcs, "maxprocs", runtime.NumCPU(), "maximum parallel threads")
	flag.StringVar(&configPath, "config", "", "path to the configuration file")
}

func main() {
	defer glog.Flush()
	flag.Parse()
	runtime.GOMAXPROCS(maxProcs)

	cfg, err := config.Open(configPath)
	if err != nil {
		glog.Fatalf("trackerd: failed to parse configuration file: %s", err)
	}

	st := stats.New(cfg.StatsConfig)

	store := memory.New(memory.Config{
		MaxSwarmSize: cfg.StorageConfig.MaxSwarmSize,
		MaxSwarms:    cfg.StorageConfig.MaxSwarms,
		GCInterval:   cfg.StorageConfig.GCInterval.Duration,
		PeerLifetime: cfg.StorageConfig.PeerLifetime.Duration,
	}.Validate())
	st.WatchDiffs(store.Diffs())
	go syncRegistryLoop(store, st)

	// The user/torrent repositories and the accounting ledger are owned by
	// whatever site runs this tracker; this binary only talks to them
	// through the auth.UserRepo, repo.TorrentRepo, credit.Ledger, and
	// credit.Observability interfaces. Lacking a real deployment's wiring,
	// fall back to in-memory fakes so the tracker still boots standalone,
	// mirroring the teacher's own noop-backend fallback.
	glog.Warning("trackerd: no repository backend configured, falling back to in-memory fakes")
	userRepo := repotest.NewUserRepo(map[string]auth.User{})
	torrentRepo := repotest.NewTorrentRepo(map[bittorrent.InfoHash]repo.Torrent{})
	ledger := repotest.NewLedger()
	observer := repotest.NewObserver()

	authn := auth.NewAuthenticator(userRepo, cfg.AuthConfig.TokenCacheTTL.Duration)
	accessHook := &auth.AccessHook{
		Authn:            authn,
		Torrents:         torrentRepo,
		CreateOnAnnounce: cfg.TrackerConfig.CreateOnAnnounce,
	}

	creditEngine := credit.NewEngine(credit.Config{
		SessionResetThreshold: cfg.CreditConfig.SessionResetThreshold.Duration,
		UploadRewardRate:      cfg.CreditConfig.UploadRewardRate,
		LinkCapacityBytesSec:  float64(cfg.CreditConfig.LinkCapacityBytesSec),
		LedgerRetries:         cfg.CreditConfig.LedgerRetries,
	}, ledger, observer)
	creditHook := credit.NewHook(creditEngine, store)

	logic := middleware.NewLogic(store, []middleware.Hook{accessHook}, []middleware.Hook{creditHook})

	var frontends []chihaya.Frontend
	if cfg.HTTPConfig.ListenAddr != "" {
		frontends = append(frontends, httpfrontend.New(cfg.HTTPConfig, cfg.TrackerConfig, logic, st))
	}
	if cfg.UDPConfig.ListenAddr != "" {
		frontends = append(frontends, udpfrontend.New(cfg.UDPConfig, cfg.TrackerConfig, logic, st))
	}
	if cfg.WebSocketConfig.ListenAddr != "" {
		frontends = append(frontends, wsfrontend.New(cfg.WebSocketConfig, cfg.TrackerConfig, logic, st))
	}

	tracker := chihaya.NewTracker(store, authn, frontends...)
	tracker.Boot()
}

// syncRegistryLoop periodically reconciles the stats aggregator's
// torrent counts against the registry's own, since an individual
// PeerDiff only describes a single peer and can't tell the aggregator
// whether a swarm as a whole just emptied out.
func syncRegistryLoop(store interface{ Stats() storage.AggregateStats }, st *stats.Stats) {
	t := time.NewTicker(30 * time.Second)
	defer t.Stop()
	for range t.C {
		st.SyncRegistry(store.Stats())
	}
}

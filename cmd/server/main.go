package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"voxelstore.ai/internal/logx"
	"voxelstore.ai/internal/sim/tuning"
	"voxelstore.ai/internal/sim/world/terrain/store"
)

func main() {
	var (
		configPath  = flag.String("config", envString("VS_CONFIG", "./configs/voxelstore.yaml"), "config yaml (empty for built-in defaults)")
		worldPath   = flag.String("world", "", "world file path (overrides world.path)")
		journalPath = flag.String("journal", "", "sqlite save journal path (overrides journal.path)")
		seed        = flag.Int64("seed", 0, "generator seed (overrides gen.seed when non-zero)")
		metricsAddr = flag.String("metrics_addr", "", "http listen address for /metrics (overrides metrics.addr)")
		focusX      = flag.Int("focus_cx", 0, "chunk x kept loaded")
		focusZ      = flag.Int("focus_cz", 0, "chunk z kept loaded")
		disableDB   = flag.Bool("disable_db", false, "disable the sqlite save journal")
	)
	flag.Parse()

	cfg, err := tuning.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	if *worldPath != "" {
		cfg.World.Path = *worldPath
	}
	if *journalPath != "" {
		cfg.Journal.Path = *journalPath
	}
	if *disableDB {
		cfg.Journal.Path = ""
	}
	if *seed != 0 {
		cfg.Gen.Seed = *seed
	}
	if *metricsAddr != "" {
		cfg.Metrics.Addr = *metricsAddr
	}

	logger, logCloser, err := logx.New(logx.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Dir:    cfg.Log.Dir,
		Prefix: "server",
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer logCloser.Close()

	n, err := openNode(cfg, &logger)
	if err != nil {
		logger.Error().Err(err).Msg("open node")
		os.Exit(1)
	}

	ctx, cancel := signalContext()
	defer cancel()

	focus := store.ChunkKey{CX: int32(*focusX), CZ: int32(*focusZ)}
	start := time.Now()
	if err := n.chunks.Prefetch(ctx, store.KeysAround(focus.CX, focus.CZ, cfg.Chunks.SpawnRadius)); err != nil {
		logger.Error().Err(err).Msg("prefetch spawn chunks")
	}
	logger.Info().
		Int("chunks", n.chunks.Stats().Loaded).
		Dur("took", time.Since(start)).
		Int32("focus_cx", focus.CX).Int32("focus_cz", focus.CZ).
		Msg("spawn area ready")

	var srv *http.Server
	if cfg.Metrics.Addr != "" {
		srv = serveHTTP(ctx, cfg.Metrics.Addr, n)
	}

	n.run(ctx, focus)

	logger.Info().Msg("shutting down")
	if srv != nil {
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(ctx2)
		cancel2()
	}
	if err := n.Close(); err != nil {
		logger.Error().Err(err).Msg("close node")
		os.Exit(1)
	}
}

func serveHTTP(ctx context.Context, addr string, n *node) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		if ctx.Err() != nil {
			rw.WriteHeader(http.StatusServiceUnavailable)
			_, _ = rw.Write([]byte("stopping"))
			return
		}
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(n.reg, promhttp.HandlerOpts{}))
	if envBool("VS_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	} else {
		n.log.Debug().Msg("pprof endpoints disabled (VS_ENABLE_PPROF_HTTP=false)")
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		n.log.Info().Str("addr", addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			n.log.Error().Err(err).Msg("ListenAndServe")
		}
	}()
	return srv
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

package main

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"voxelstore.ai/internal/persistence/indexdb"
	"voxelstore.ai/internal/persistence/r2s3"
	"voxelstore.ai/internal/persistence/worldfile"
	"voxelstore.ai/internal/sim/blocks"
	"voxelstore.ai/internal/sim/tuning"
	"voxelstore.ai/internal/sim/world/terrain/chunkrec"
	"voxelstore.ai/internal/sim/world/terrain/gen"
	"voxelstore.ai/internal/sim/world/terrain/store"
)

const statusInterval = time.Minute

// node owns everything the server opens, in dependency order.
type node struct {
	cfg tuning.Tuning
	log zerolog.Logger
	reg *prometheus.Registry

	blocksDigest string

	codec   *chunkrec.Codec
	journal *indexdb.Journal
	file    *worldfile.Store
	chunks  *store.Manager
	mirror  *r2s3.Mirror
}

func openNode(cfg tuning.Tuning, logger *zerolog.Logger) (_ *node, err error) {
	n := &node{cfg: cfg, log: *logger, reg: newRegistry()}
	defer func() {
		if err != nil {
			n.closeFiles()
		}
	}()

	cat := blocks.DefaultCatalog()
	if cfg.Blocks.Catalog != "" {
		if cat, err = blocks.LoadCatalog(cfg.Blocks.Catalog); err != nil {
			return nil, err
		}
	}
	terrain, err := gen.NewTerrain(cfg.Gen, cat, cfg.SectionOptions())
	if err != nil {
		return nil, err
	}
	n.blocksDigest = cat.Digest
	if n.mirror, err = buildMirror(cfg.Backup, logger); err != nil {
		return nil, err
	}

	if n.codec, err = chunkrec.NewCodec(cfg.CodecConfig()); err != nil {
		return nil, err
	}

	opts := worldfile.Options{
		Codec:   n.codec,
		Sync:    cfg.World.Sync,
		Logger:  logger,
		Metrics: worldfile.NewMetrics(n.reg),
	}
	if cfg.Journal.Path != "" {
		n.journal, err = indexdb.OpenJournal(cfg.Journal.Path, indexdb.Options{
			WorldPath: cfg.World.Path,
			Logger:    logger,
		})
		if err != nil {
			return nil, errors.Wrap(err, "open journal")
		}
		opts.Observer = n.journal
	}
	if n.file, err = worldfile.Open(cfg.World.Path, opts); err != nil {
		return nil, errors.Wrap(err, "open world file")
	}

	n.chunks = store.NewManager(n.file, terrain, store.Config{
		PrefetchWorkers: cfg.Chunks.PrefetchWorkers,
		BoundaryR:       cfg.Chunks.BoundaryR,
		Logger:          logger,
	})
	registerNodeMetrics(n.reg, n)

	ev := n.log.Info().
		Str("world", cfg.World.Path).
		Int64("seed", cfg.Gen.Seed).
		Str("blocks_digest", cat.Digest).
		Str("compression", cfg.World.Compression)
	if n.journal != nil {
		ev = ev.Str("journal", cfg.Journal.Path).Str("session", n.journal.Session())
	}
	ev.Msg("world opened")
	n.logStatus()
	return n, nil
}

// run drives eviction and periodic saves until ctx is done.
func (n *node) run(ctx context.Context, focus store.ChunkKey) {
	unload := time.NewTicker(n.cfg.Chunks.UnloadInterval())
	defer unload.Stop()
	save := time.NewTicker(n.cfg.Chunks.SaveInterval())
	defer save.Stop()
	status := time.NewTicker(statusInterval)
	defer status.Stop()
	var backups <-chan time.Time
	if n.cfg.Backup.Dir != "" {
		t := time.NewTicker(n.cfg.Backup.Interval())
		defer t.Stop()
		backups = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-unload.C:
			evicted, err := n.chunks.UnloadFar(focus.CX, focus.CZ, n.cfg.Chunks.ViewRadius)
			if err != nil {
				n.log.Warn().Err(err).Msg("unload far chunks")
			}
			if evicted > 0 {
				n.log.Debug().Int("evicted", evicted).Msg("unloaded")
			}
		case <-save.C:
			saved, err := n.chunks.SaveAll()
			if err != nil {
				n.log.Warn().Err(err).Msg("periodic save")
			}
			if saved > 0 {
				n.log.Debug().Int("saved", saved).Msg("saved dirty chunks")
			}
		case <-status.C:
			n.logStatus()
		case <-backups:
			n.backup()
		}
	}
}

func (n *node) logStatus() {
	st, err := n.file.Stats()
	if err != nil {
		n.log.Warn().Err(err).Msg("world file stats")
		return
	}
	cs := n.chunks.Stats()
	n.log.Info().
		Str("file", humanize.IBytes(uint64(st.FileSize))).
		Str("live", humanize.IBytes(uint64(st.LiveBytes))).
		Str("orphaned", humanize.IBytes(uint64(st.OrphanedBytes))).
		Str("records", humanize.Comma(int64(st.Records))).
		Int("loaded", cs.Loaded).
		Int64("generated", cs.Generations).
		Int64("saves", cs.Saves).
		Int64("save_errors", cs.SaveErrors).
		Msg("status")
}

// Close saves every dirty chunk, then closes the journal and the world file.
func (n *node) Close() error {
	var err error
	if n.chunks != nil {
		err = n.chunks.Close()
	}
	if n.journal != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if ferr := n.journal.Flush(ctx); ferr != nil {
			err = errors.CombineErrors(err, errors.Wrap(ferr, "flush journal"))
		}
		cancel()
		js := n.journal.Stats()
		n.log.Info().Int64("written", js.Written).Int64("dropped", js.Dropped).Msg("journal flushed")
	}
	if n.file != nil {
		n.logStatus()
	}
	return errors.CombineErrors(err, n.closeFiles())
}

func (n *node) closeFiles() error {
	var err error
	if n.mirror != nil {
		n.mirror.Close()
		n.mirror = nil
	}
	if n.file != nil {
		err = n.file.Close()
		n.file = nil
	}
	if n.journal != nil {
		err = errors.CombineErrors(err, n.journal.Close())
		n.journal = nil
	}
	if n.codec != nil {
		n.codec.Close()
		n.codec = nil
	}
	return err
}

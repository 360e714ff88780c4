package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"voxelstore.ai/internal/persistence/archive"
	"voxelstore.ai/internal/persistence/snapshot"
	"voxelstore.ai/internal/sim/tuning"
	"voxelstore.ai/internal/sim/world/terrain/section"
	"voxelstore.ai/internal/sim/world/terrain/store"
)

func testConfig(t *testing.T) tuning.Tuning {
	t.Helper()
	cfg := tuning.Defaults()
	dir := t.TempDir()
	cfg.World.Path = filepath.Join(dir, "world.wvld")
	cfg.Journal.Path = filepath.Join(dir, "journal.sqlite")
	return cfg
}

func TestNodePersistsAcrossRestart(t *testing.T) {
	cfg := testConfig(t)
	log := zerolog.Nop()
	ctx := context.Background()

	n, err := openNode(cfg, &log)
	require.NoError(t, err)
	require.NoError(t, n.chunks.Prefetch(ctx, store.KeysAround(0, 0, 1)))
	require.Equal(t, 9, n.chunks.Stats().Loaded)
	require.NoError(t, n.chunks.SetBlock(5, 100, -3, section.BlockID(7)))
	require.NoError(t, n.Close())

	n2, err := openNode(cfg, &log)
	require.NoError(t, err)
	defer n2.Close()
	id, err := n2.chunks.GetBlock(5, 100, -3)
	require.NoError(t, err)
	require.Equal(t, section.BlockID(7), id)
	st := n2.chunks.Stats()
	require.Equal(t, int64(1), st.Loads)
	require.Zero(t, st.Generations)

	hist, err := n2.journal.History(ctx, 0, -1, 0)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	sessions, err := n2.journal.Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
}

func TestNodeMetricsRegistered(t *testing.T) {
	cfg := testConfig(t)
	log := zerolog.Nop()
	n, err := openNode(cfg, &log)
	require.NoError(t, err)
	defer n.Close()
	_, err = n.chunks.GetChunk(2, 2)
	require.NoError(t, err)

	mfs, err := n.reg.Gather()
	require.NoError(t, err)
	got := map[string]float64{}
	for _, mf := range mfs {
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetGauge() != nil:
				got[mf.GetName()] = m.GetGauge().GetValue()
			case m.GetCounter() != nil:
				got[mf.GetName()] += m.GetCounter().GetValue()
			}
		}
	}
	require.Equal(t, 1.0, got["voxelstore_chunks_loaded"])
	require.Equal(t, 1.0, got["voxelstore_chunks_generations_total"])
	require.Equal(t, 1.0, got["voxelstore_worldfile_saves_total"])
	require.Contains(t, got, "voxelstore_journal_queue_depth")
}

func TestNodeWithoutJournal(t *testing.T) {
	cfg := testConfig(t)
	cfg.Journal.Path = ""
	log := zerolog.Nop()
	n, err := openNode(cfg, &log)
	require.NoError(t, err)
	require.Nil(t, n.journal)
	require.NoError(t, n.Close())
}

func TestNodeBackup(t *testing.T) {
	cfg := testConfig(t)
	cfg.Backup.Dir = filepath.Join(t.TempDir(), "backups")
	cfg.Backup.Keep = 2
	log := zerolog.Nop()
	n, err := openNode(cfg, &log)
	require.NoError(t, err)
	defer n.Close()
	require.Nil(t, n.mirror)
	require.NoError(t, n.chunks.Prefetch(context.Background(), store.KeysAround(0, 0, 1)))

	n.backup()
	paths, err := archive.List(cfg.Backup.Dir)
	require.NoError(t, err)
	require.Len(t, paths, 1)
	hdr, err := snapshot.ReadHeader(paths[0])
	require.NoError(t, err)
	require.Equal(t, 9, hdr.Records)
	require.Equal(t, cfg.Gen.Seed, hdr.Seed)
	require.Equal(t, n.blocksDigest, hdr.BlocksDigest)
}

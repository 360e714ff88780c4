package archive

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"voxelstore.ai/internal/persistence/snapshot"
	"voxelstore.ai/internal/persistence/worldfile"
)

func TestTakeAndPrune(t *testing.T) {
	s, err := worldfile.Open(filepath.Join(t.TempDir(), "world.wvld"), worldfile.Options{})
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.SaveChunk(1, 2, []byte("blob")))

	dir := filepath.Join(t.TempDir(), "backups")
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	var paths []string
	for i := 0; i < 5; i++ {
		p, hdr, err := Take(dir, s, snapshot.Meta{Now: base.Add(time.Duration(i) * time.Hour)}, 3)
		require.NoError(t, err)
		require.Equal(t, 1, hdr.Records)
		paths = append(paths, p)
	}

	// An unrelated file is left alone.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), nil, 0o644))

	got, err := List(dir)
	require.NoError(t, err)
	require.Equal(t, paths[2:], got)
	latest, err := Latest(dir)
	require.NoError(t, err)
	require.Equal(t, paths[4], latest)
	require.Equal(t, "world-20260501T160000Z.wvld.zst", filepath.Base(latest))

	removed, err := Prune(dir, 1)
	require.NoError(t, err)
	require.Len(t, removed, 2)
	_, err = os.Stat(filepath.Join(dir, "notes.txt"))
	require.NoError(t, err)
}

func TestListMissingDir(t *testing.T) {
	got, err := List(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	require.Empty(t, got)
	latest, err := Latest(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	require.Empty(t, latest)
}

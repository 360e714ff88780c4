package snapshot

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"

	"voxelstore.ai/internal/persistence/worldfile"
)

func seededStore(t *testing.T) *worldfile.Store {
	t.Helper()
	s, err := worldfile.Open(filepath.Join(t.TempDir(), "world.wvld"), worldfile.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 30; i++ {
		b := make([]byte, 1+rng.Intn(4000))
		rng.Read(b)
		require.NoError(t, s.SaveChunk(int32(i%10), -1, b))
	}
	return s
}

func TestWriteRestoreRoundTrip(t *testing.T) {
	s := seededStore(t)
	want, err := s.Entries()
	require.NoError(t, err)

	dir := t.TempDir()
	snap := filepath.Join(dir, "world.wvld.zst")
	at := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	hdr, err := Write(snap, s, Meta{Seed: 42, BlocksDigest: "abc", Now: at})
	require.NoError(t, err)
	require.Equal(t, Format, hdr.Format)
	require.Equal(t, 10, hdr.Records)
	require.Equal(t, int64(42), hdr.Seed)

	got, err := ReadHeader(snap)
	require.NoError(t, err)
	require.Equal(t, hdr, got)
	require.Equal(t, at.Format(time.RFC3339Nano), got.CreatedAt)
	_, err = os.Stat(snap + ".tmp")
	require.True(t, os.IsNotExist(err))

	dst := filepath.Join(dir, "restored", "world.wvld")
	_, err = Restore(snap, dst)
	require.NoError(t, err)
	r, err := worldfile.Open(dst, worldfile.Options{})
	require.NoError(t, err)
	defer r.Close()
	entries, err := r.Entries()
	require.NoError(t, err)
	require.Equal(t, want, entries)
	for _, e := range want {
		a, _, err := s.ReadBlob(e.CX, e.CZ)
		require.NoError(t, err)
		b, _, err := r.ReadBlob(e.CX, e.CZ)
		require.NoError(t, err)
		require.Equal(t, a, b)
	}
}

func TestReadHeaderRejectsOtherFiles(t *testing.T) {
	dir := t.TempDir()
	plain := filepath.Join(dir, "plain")
	require.NoError(t, os.WriteFile(plain, []byte("hello\n"), 0o644))
	_, err := ReadHeader(plain)
	require.True(t, errors.Is(err, ErrBadSnapshot), "%v", err)

	_, err = Restore(plain, filepath.Join(dir, "out.wvld"))
	require.Error(t, err)
	_, err = os.Stat(filepath.Join(dir, "out.wvld"))
	require.True(t, os.IsNotExist(err))
}

func TestRestoreTruncatedSnapshot(t *testing.T) {
	s := seededStore(t)
	dir := t.TempDir()
	snap := filepath.Join(dir, "w.zst")
	_, err := Write(snap, s, Meta{})
	require.NoError(t, err)

	// Chop the compressed stream; the body can no longer match the header.
	raw, err := os.ReadFile(snap)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(snap, raw[:len(raw)/2], 0o644))

	dst := filepath.Join(dir, "w.wvld")
	_, err = Restore(snap, dst)
	require.Error(t, err)
	_, statErr := os.Stat(dst)
	require.True(t, os.IsNotExist(statErr))
}

package store

import (
	"context"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"voxelstore.ai/internal/persistence/worldfile"
	"voxelstore.ai/internal/sim/world/terrain/chunkrec"
	"voxelstore.ai/internal/sim/world/terrain/section"
)

const testHeight = 32

type countingGen struct {
	calls atomic.Int64
	delay time.Duration
}

func (g *countingGen) Generate(cx, cz int32) (*chunkrec.Column, error) {
	g.calls.Inc()
	if g.delay > 0 {
		time.Sleep(g.delay)
	}
	col, err := chunkrec.NewColumn(cx, cz, testHeight, 0, section.Options{})
	if err != nil {
		return nil, err
	}
	// Stone floor so generated chunks differ from the zero column.
	for z := 0; z < section.Size; z++ {
		for x := 0; x < section.Size; x++ {
			if err := col.FillColumn(x, z, 0, 4, 2); err != nil {
				return nil, err
			}
		}
	}
	return col, nil
}

func openFile(t *testing.T) (*worldfile.Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "world.wvld")
	f, err := worldfile.Open(path, worldfile.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return f, path
}

func TestGeneratedChunkIsPersistedOnce(t *testing.T) {
	f, _ := openFile(t)
	gen := &countingGen{}
	m := NewManager(f, gen, Config{})

	ch, err := m.GetChunk(3, -2)
	require.NoError(t, err)
	require.False(t, ch.Dirty())
	require.Equal(t, ChunkKey{CX: 3, CZ: -2}, ch.Key())
	again, err := m.GetChunk(3, -2)
	require.NoError(t, err)
	require.Same(t, ch, again)
	ok, err := f.Has(3, -2)
	require.NoError(t, err)
	require.True(t, ok)

	// A second session reads the record instead of generating.
	m2 := NewManager(f, gen, Config{})
	ch2, err := m2.GetChunk(3, -2)
	require.NoError(t, err)
	require.Equal(t, int64(1), gen.calls.Load())
	require.Equal(t, ch.Column().Dense(), ch2.Column().Dense())
	st := m2.Stats()
	require.Equal(t, int64(1), st.Loads)
	require.Zero(t, st.Generations)
}

func TestConcurrentGetChunkSharesOneLoad(t *testing.T) {
	f, _ := openFile(t)
	gen := &countingGen{delay: 20 * time.Millisecond}
	m := NewManager(f, gen, Config{})

	var wg sync.WaitGroup
	got := make([]*Chunk, 16)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ch, err := m.GetChunk(1, 1)
			if err != nil {
				t.Error(err)
				return
			}
			got[i] = ch
		}(i)
	}
	wg.Wait()
	require.Equal(t, int64(1), gen.calls.Load())
	for _, ch := range got {
		require.Same(t, got[0], ch)
	}
}

func TestSetBlockWorldCoordinates(t *testing.T) {
	f, _ := openFile(t)
	m := NewManager(f, &countingGen{}, Config{})

	require.NoError(t, m.SetBlock(-1, 5, -17, 7))
	ch, ok := m.Loaded(-1, -2)
	require.True(t, ok)
	require.True(t, ch.Dirty())
	id, err := ch.Get(15, 5, 15)
	require.NoError(t, err)
	require.Equal(t, section.BlockID(7), id)

	// Writing the same value does not dirty a clean chunk.
	n, err := m.SaveAll()
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.False(t, ch.Dirty())
	require.NoError(t, m.SetBlock(-1, 5, -17, 7))
	require.False(t, ch.Dirty())

	m2 := NewManager(f, &countingGen{}, Config{})
	id, err = m2.GetBlock(-1, 5, -17)
	require.NoError(t, err)
	require.Equal(t, section.BlockID(7), id)
	id, err = m2.GetBlock(-1, 0, -17)
	require.NoError(t, err)
	require.Equal(t, section.BlockID(2), id)

	_, err = m2.GetBlock(0, testHeight, 0)
	require.True(t, errors.Is(err, section.ErrOutOfRange))
}

func TestUnloadFarSavesBeforeEvicting(t *testing.T) {
	f, _ := openFile(t)
	m := NewManager(f, &countingGen{}, Config{})
	require.NoError(t, m.Prefetch(context.Background(), KeysAround(0, 0, 3)))
	require.Len(t, m.LoadedChunkKeys(), 49)

	far, ok := m.Loaded(3, -3)
	require.True(t, ok)
	require.NoError(t, far.Set(0, 10, 0, 9))
	near, ok := m.Loaded(1, 1)
	require.True(t, ok)
	require.NoError(t, near.Set(0, 10, 0, 9))

	evicted, err := m.UnloadFar(0, 0, 1)
	require.NoError(t, err)
	require.Equal(t, 40, evicted)
	require.Len(t, m.LoadedChunkKeys(), 9)
	_, ok = m.Loaded(3, -3)
	require.False(t, ok)
	require.True(t, near.Dirty())

	col, ok, err := f.LoadChunk(3, -3)
	require.NoError(t, err)
	require.True(t, ok)
	id, err := col.Get(0, 10, 0)
	require.NoError(t, err)
	require.Equal(t, section.BlockID(9), id)
	require.Equal(t, int64(40), m.Stats().Evictions)
}

func TestFailedFirstSaveKeepsChunkDirty(t *testing.T) {
	f, _ := openFile(t)
	m := NewManager(f, &countingGen{}, Config{})

	// The file store refuses this coordinate pair, so every save fails.
	_, err := m.GetChunk(math.MinInt32, math.MinInt32)
	require.True(t, errors.Is(err, worldfile.ErrInvalidArgument), "%v", err)
	ch, ok := m.Loaded(math.MinInt32, math.MinInt32)
	require.True(t, ok)
	require.True(t, ch.Dirty())

	evicted, err := m.UnloadFar(0, 0, 0)
	require.Error(t, err)
	require.Zero(t, evicted)
	_, ok = m.Loaded(math.MinInt32, math.MinInt32)
	require.True(t, ok)

	n, err := m.SaveAll()
	require.Error(t, err)
	require.Zero(t, n)
	require.Equal(t, int64(3), m.Stats().SaveErrors)
}

func TestGeneratorErrors(t *testing.T) {
	f, _ := openFile(t)
	boom := errors.New("boom")
	m := NewManager(f, GeneratorFunc(func(cx, cz int32) (*chunkrec.Column, error) {
		return nil, boom
	}), Config{})
	_, err := m.GetChunk(0, 0)
	require.True(t, errors.Is(err, boom))
	require.Empty(t, m.LoadedChunkKeys())

	wrong := NewManager(f, GeneratorFunc(func(cx, cz int32) (*chunkrec.Column, error) {
		return chunkrec.NewColumn(cx+1, cz, testHeight, 0, section.Options{})
	}), Config{})
	_, err = wrong.GetChunk(0, 0)
	require.Error(t, err)

	empty := NewManager(f, GeneratorFunc(func(cx, cz int32) (*chunkrec.Column, error) {
		return nil, nil
	}), Config{})
	_, err = empty.GetChunk(1, 1)
	require.ErrorContains(t, err, "no chunk")
	require.Empty(t, empty.LoadedChunkKeys())
}

func TestCorruptRecordIsSurfaced(t *testing.T) {
	f, _ := openFile(t)
	gen := &countingGen{}
	col, err := gen.Generate(9, 9)
	require.NoError(t, err)
	blob, err := f.Codec().Encode(col)
	require.NoError(t, err)
	require.NoError(t, f.SaveChunk(8, 8, blob))

	m := NewManager(f, gen, Config{})
	_, err = m.GetChunk(8, 8)
	require.True(t, errors.Is(err, worldfile.ErrCorruptRecord))
	require.Equal(t, int64(1), gen.calls.Load())
}

func TestPrefetchStopsOnCancel(t *testing.T) {
	f, _ := openFile(t)
	m := NewManager(f, &countingGen{}, Config{PrefetchWorkers: 2})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := m.Prefetch(ctx, KeysAround(0, 0, 2))
	require.True(t, errors.Is(err, context.Canceled))
	require.Empty(t, m.LoadedChunkKeys())
}

func TestKeysAround(t *testing.T) {
	keys := KeysAround(5, -5, 2)
	require.Len(t, keys, 25)
	require.Equal(t, ChunkKey{CX: 5, CZ: -5}, keys[0])
	seen := map[ChunkKey]bool{}
	for _, k := range keys {
		require.False(t, seen[k])
		seen[k] = true
	}
	require.Nil(t, KeysAround(0, 0, -1))
}

func TestBoundary(t *testing.T) {
	f, _ := openFile(t)
	m := NewManager(f, &countingGen{}, Config{BoundaryR: 20})
	require.NoError(t, m.SetBlock(20, 1, -20, 3))
	err := m.SetBlock(21, 1, 0, 3)
	require.True(t, errors.Is(err, section.ErrOutOfRange))
}

func TestCloseFlushes(t *testing.T) {
	f, _ := openFile(t)
	m := NewManager(f, &countingGen{}, Config{})
	require.NoError(t, m.SetBlock(2, 2, 2, 5))
	require.NoError(t, m.Close())
	require.Empty(t, m.LoadedChunkKeys())
	col, ok, err := f.LoadChunk(0, 0)
	require.NoError(t, err)
	require.True(t, ok)
	id, err := col.Get(2, 2, 2)
	require.NoError(t, err)
	require.Equal(t, section.BlockID(5), id)
}

// Package store keeps the loaded chunk table and moves chunks between it, the
// world file and the terrain generator.
//
// A chunk is loaded from the world file when it has a record and generated
// otherwise; a freshly generated chunk is saved immediately so it is never
// generated twice. Edits mark a chunk dirty. UnloadFar saves dirty chunks
// before evicting them, and SaveAll saves every dirty chunk in place.
package store

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"voxelstore.ai/internal/persistence/worldfile"
	"voxelstore.ai/internal/sim/world/logic/mathx"
	"voxelstore.ai/internal/sim/world/terrain/chunkrec"
)

const defaultPrefetchWorkers = 4

type Config struct {
	// PrefetchWorkers bounds concurrent loads in Prefetch. Zero means 4.
	PrefetchWorkers int
	// BoundaryR limits block access to |x|,|z| <= BoundaryR. Zero means unbounded.
	BoundaryR int
	Logger    *zerolog.Logger
}

type Stats struct {
	Loaded      int
	Loads       int64
	Generations int64
	Saves       int64
	SaveErrors  int64
	Evictions   int64
}

type counters struct {
	loads       atomic.Int64
	generations atomic.Int64
	saves       atomic.Int64
	saveErrors  atomic.Int64
	evictions   atomic.Int64
}

type Manager struct {
	file      *worldfile.Store
	codec     *chunkrec.Codec
	gen       Generator
	log       zerolog.Logger
	workers   int
	boundaryR int

	mu     sync.RWMutex
	chunks map[ChunkKey]*Chunk
	flight singleflight.Group

	stats counters
}

// NewManager returns a manager that persists through file and fills gaps with
// gen. The manager does not own file.
func NewManager(file *worldfile.Store, gen Generator, cfg Config) *Manager {
	m := &Manager{
		file:      file,
		codec:     file.Codec(),
		gen:       gen,
		log:       zerolog.Nop(),
		workers:   cfg.PrefetchWorkers,
		boundaryR: cfg.BoundaryR,
		chunks:    map[ChunkKey]*Chunk{},
	}
	if m.workers <= 0 {
		m.workers = defaultPrefetchWorkers
	}
	if cfg.Logger != nil {
		m.log = cfg.Logger.With().Str("component", "chunks").Logger()
	}
	return m
}

func (m *Manager) lookup(k ChunkKey) (*Chunk, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ch, ok := m.chunks[k]
	return ch, ok
}

// Loaded returns the chunk at (cx, cz) if it is in the table, without
// loading or generating it.
func (m *Manager) Loaded(cx, cz int32) (*Chunk, bool) {
	return m.lookup(ChunkKey{CX: cx, CZ: cz})
}

// GetChunk returns the chunk at (cx, cz), loading or generating it on a miss.
// It may block on file I/O and generation. Concurrent callers for the same
// chunk share one load.
//
// If a freshly generated chunk cannot be saved it is still kept, dirty, in
// the table and the save error is returned; a later SaveAll retries it.
func (m *Manager) GetChunk(cx, cz int32) (*Chunk, error) {
	k := ChunkKey{CX: cx, CZ: cz}
	if ch, ok := m.lookup(k); ok {
		return ch, nil
	}
	v, err, _ := m.flight.Do(flightKey(k), func() (interface{}, error) {
		if ch, ok := m.lookup(k); ok {
			return ch, nil
		}
		return m.loadOrGenerate(k)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Chunk), nil
}

func flightKey(k ChunkKey) string {
	return strconv.FormatInt(int64(k.CX), 10) + "," + strconv.FormatInt(int64(k.CZ), 10)
}

func (m *Manager) loadOrGenerate(k ChunkKey) (*Chunk, error) {
	col, ok, err := m.file.LoadChunk(k.CX, k.CZ)
	if err != nil {
		m.log.Error().Err(err).Int32("cx", k.CX).Int32("cz", k.CZ).Msg("load chunk")
		return nil, err
	}
	if ok {
		ch := newChunk(col, false)
		m.insert(ch)
		m.stats.loads.Inc()
		return ch, nil
	}

	col, err = m.gen.Generate(k.CX, k.CZ)
	if err != nil {
		return nil, errors.Wrapf(err, "generate chunk (%d,%d)", k.CX, k.CZ)
	}
	if col == nil {
		return nil, errors.Newf("generator returned no chunk for (%d,%d)", k.CX, k.CZ)
	}
	if col.CX != k.CX || col.CZ != k.CZ {
		return nil, errors.Newf("generator returned chunk (%d,%d) for (%d,%d)", col.CX, col.CZ, k.CX, k.CZ)
	}
	ch := newChunk(col, true)
	m.insert(ch)
	m.stats.generations.Inc()
	m.log.Debug().Int32("cx", k.CX).Int32("cz", k.CZ).Msg("generated chunk")
	if err := m.save(ch); err != nil {
		return nil, err
	}
	return ch, nil
}

func (m *Manager) insert(ch *Chunk) {
	m.mu.Lock()
	m.chunks[ch.key] = ch
	m.mu.Unlock()
}

func (m *Manager) save(ch *Chunk) error {
	blob, version, err := ch.encode(m.codec)
	if err == nil {
		err = m.file.SaveChunk(ch.key.CX, ch.key.CZ, blob)
	}
	if err != nil {
		m.stats.saveErrors.Inc()
		m.log.Error().Err(err).Int32("cx", ch.key.CX).Int32("cz", ch.key.CZ).Msg("save chunk")
		return errors.Wrapf(err, "save chunk (%d,%d)", ch.key.CX, ch.key.CZ)
	}
	ch.markSaved(version)
	m.stats.saves.Inc()
	return nil
}

func (m *Manager) snapshot() []*Chunk {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Chunk, 0, len(m.chunks))
	for _, ch := range m.chunks {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return keyLess(out[i].key, out[j].key) })
	return out
}

// SaveAll saves every dirty chunk and keeps them all loaded. It returns the
// number saved; failures are combined into the error and leave their chunks
// dirty.
func (m *Manager) SaveAll() (int, error) {
	var (
		n    int
		errs error
	)
	for _, ch := range m.snapshot() {
		if !ch.Dirty() {
			continue
		}
		if err := m.save(ch); err != nil {
			errs = errors.CombineErrors(errs, err)
			continue
		}
		n++
	}
	return n, errs
}

// UnloadFar evicts every chunk farther than radius chunks (chessboard
// distance) from (cx, cz). Dirty chunks are saved first; a chunk whose save
// fails stays loaded and dirty. It returns the number evicted.
func (m *Manager) UnloadFar(cx, cz int32, radius int) (int, error) {
	var (
		evicted int
		errs    error
	)
	for _, ch := range m.snapshot() {
		if mathx.Chebyshev(int(ch.key.CX), int(ch.key.CZ), int(cx), int(cz)) <= radius {
			continue
		}
		if ch.Dirty() {
			if err := m.save(ch); err != nil {
				errs = errors.CombineErrors(errs, err)
				continue
			}
		}
		if m.evict(ch) {
			evicted++
		}
	}
	if evicted > 0 {
		m.log.Debug().Int("evicted", evicted).Int32("cx", cx).Int32("cz", cz).Int("radius", radius).Msg("unloaded far chunks")
	}
	return evicted, errs
}

// evict drops ch unless it was replaced or dirtied after its save.
func (m *Manager) evict(ch *Chunk) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.chunks[ch.key] != ch || ch.Dirty() {
		return false
	}
	delete(m.chunks, ch.key)
	m.stats.evictions.Inc()
	return true
}

// Prefetch loads keys on a bounded pool so later GetChunk calls hit the
// table. It stops early when ctx is done.
func (m *Manager) Prefetch(ctx context.Context, keys []ChunkKey) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers)
	for _, k := range keys {
		if gctx.Err() != nil {
			break
		}
		k := k
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			_, err := m.GetChunk(k.CX, k.CZ)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// Close saves every dirty chunk and drops the clean ones from the table.
// Chunks whose save failed stay loaded.
func (m *Manager) Close() error {
	_, err := m.SaveAll()
	m.mu.Lock()
	for k, ch := range m.chunks {
		if !ch.Dirty() {
			delete(m.chunks, k)
		}
	}
	m.mu.Unlock()
	return err
}

func (m *Manager) Stats() Stats {
	m.mu.RLock()
	loaded := len(m.chunks)
	m.mu.RUnlock()
	return Stats{
		Loaded:      loaded,
		Loads:       m.stats.loads.Load(),
		Generations: m.stats.generations.Load(),
		Saves:       m.stats.saves.Load(),
		SaveErrors:  m.stats.saveErrors.Load(),
		Evictions:   m.stats.evictions.Load(),
	}
}

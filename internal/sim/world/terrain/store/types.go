package store

import (
	"sync"

	"voxelstore.ai/internal/sim/world/terrain/chunkrec"
	"voxelstore.ai/internal/sim/world/terrain/section"
)

type ChunkKey struct {
	CX int32
	CZ int32
}

// Generator builds a chunk that has never been saved.
type Generator interface {
	Generate(cx, cz int32) (*chunkrec.Column, error)
}

type GeneratorFunc func(cx, cz int32) (*chunkrec.Column, error)

func (f GeneratorFunc) Generate(cx, cz int32) (*chunkrec.Column, error) { return f(cx, cz) }

// Chunk is a loaded column plus its dirty state. Local coordinates are x,z in
// [0,16) and y in [0, Height()).
type Chunk struct {
	key ChunkKey

	mu      sync.RWMutex
	col     *chunkrec.Column
	dirty   bool
	version uint64 // bumped on every change, so a save can tell if it is stale
}

func newChunk(col *chunkrec.Column, dirty bool) *Chunk {
	return &Chunk{key: ChunkKey{CX: col.CX, CZ: col.CZ}, col: col, dirty: dirty}
}

func (c *Chunk) Key() ChunkKey { return c.key }

func (c *Chunk) Height() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.col.Height()
}

func (c *Chunk) Dirty() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dirty
}

func (c *Chunk) Get(x, y, z int) (section.BlockID, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.col.Get(x, y, z)
}

func (c *Chunk) Set(x, y, z int, id section.BlockID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cur, err := c.col.Get(x, y, z)
	if err != nil {
		return err
	}
	if cur == id {
		return nil
	}
	if err := c.col.Set(x, y, z, id); err != nil {
		return err
	}
	c.touchLocked()
	return nil
}

func (c *Chunk) FillColumn(x, z, y0, y1 int, id section.BlockID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.col.FillColumn(x, z, y0, y1, id); err != nil {
		return err
	}
	if y0 < y1 {
		c.touchLocked()
	}
	return nil
}

// Column returns a deep copy of the chunk's data.
func (c *Chunk) Column() *chunkrec.Column {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.col.Clone()
}

func (c *Chunk) touchLocked() {
	c.dirty = true
	c.version++
}

func (c *Chunk) encode(codec *chunkrec.Codec) ([]byte, uint64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	blob, err := codec.Encode(c.col)
	return blob, c.version, err
}

// markSaved clears the dirty flag unless the chunk changed after version was
// encoded.
func (c *Chunk) markSaved(version uint64) {
	c.mu.Lock()
	if c.version == version {
		c.dirty = false
	}
	c.mu.Unlock()
}

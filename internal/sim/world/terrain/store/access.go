package store

import (
	"sort"

	"github.com/cockroachdb/errors"

	"voxelstore.ai/internal/sim/world/logic/mathx"
	"voxelstore.ai/internal/sim/world/terrain/section"
)

func (m *Manager) InBounds(x, z int) bool {
	if m.boundaryR > 0 {
		if x < -m.boundaryR || x > m.boundaryR || z < -m.boundaryR || z > m.boundaryR {
			return false
		}
	}
	return true
}

func keyLess(a, b ChunkKey) bool {
	if a.CX != b.CX {
		return a.CX < b.CX
	}
	return a.CZ < b.CZ
}

func (m *Manager) LoadedChunkKeys() []ChunkKey {
	m.mu.RLock()
	keys := make([]ChunkKey, 0, len(m.chunks))
	for k := range m.chunks {
		keys = append(keys, k)
	}
	m.mu.RUnlock()
	sort.Slice(keys, func(i, j int) bool { return keyLess(keys[i], keys[j]) })
	return keys
}

// KeysAround lists the chunks within radius (chessboard distance) of
// (cx, cz), nearest rings first.
func KeysAround(cx, cz int32, radius int) []ChunkKey {
	if radius < 0 {
		return nil
	}
	keys := make([]ChunkKey, 0, (2*radius+1)*(2*radius+1))
	for r := 0; r <= radius; r++ {
		for dz := -r; dz <= r; dz++ {
			for dx := -r; dx <= r; dx++ {
				if mathx.AbsInt(dx) != r && mathx.AbsInt(dz) != r {
					continue
				}
				keys = append(keys, ChunkKey{CX: cx + int32(dx), CZ: cz + int32(dz)})
			}
		}
	}
	return keys
}

func (m *Manager) chunkAt(x, z int) (*Chunk, int, int, error) {
	if !m.InBounds(x, z) {
		return nil, 0, 0, errors.Wrapf(section.ErrOutOfRange, "block (%d,%d) outside boundary %d", x, z, m.boundaryR)
	}
	cx, lx := mathx.Split(x, section.Size)
	cz, lz := mathx.Split(z, section.Size)
	ch, err := m.GetChunk(int32(cx), int32(cz))
	if err != nil {
		return nil, 0, 0, err
	}
	return ch, lx, lz, nil
}

// GetBlock reads the block at world coordinates, loading its chunk if needed.
func (m *Manager) GetBlock(x, y, z int) (section.BlockID, error) {
	ch, lx, lz, err := m.chunkAt(x, z)
	if err != nil {
		return 0, err
	}
	return ch.Get(lx, y, lz)
}

// SetBlock writes the block at world coordinates and marks its chunk dirty
// when the value changes.
func (m *Manager) SetBlock(x, y, z int, id section.BlockID) error {
	ch, lx, lz, err := m.chunkAt(x, z)
	if err != nil {
		return err
	}
	return ch.Set(lx, y, lz, id)
}

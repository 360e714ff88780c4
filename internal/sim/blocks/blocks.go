// Package blocks gives meaning to the raw block ids stored in sections.
//
// An id packs a block type into the low TypeBits and an optional state
// (orientation, half, growth stage) into the StateBits above it. Storage code
// never looks inside an id; only generation and tooling do.
package blocks

import (
	"github.com/cockroachdb/errors"

	"voxelstore.ai/internal/sim/world/terrain/section"
)

const (
	TypeBits  = 12
	StateBits = 8

	MaxType  = 1<<TypeBits - 1
	MaxState = 1<<StateBits - 1
)

// Axis states for pillar-like blocks (logs).
const (
	AxisY uint8 = iota
	AxisX
	AxisZ
)

func Make(typ int, state uint8) (section.BlockID, error) {
	if typ < 0 || typ > MaxType {
		return 0, errors.Wrapf(section.ErrInvalidArgument, "block type %d outside [0,%d]", typ, MaxType)
	}
	return section.BlockID(int32(state)<<TypeBits | int32(typ)), nil
}

func MustMake(typ int, state uint8) section.BlockID {
	id, err := Make(typ, state)
	if err != nil {
		panic(err)
	}
	return id
}

func TypeID(id section.BlockID) int { return int(id) & MaxType }

func State(id section.BlockID) uint8 { return uint8(int(id) >> TypeBits & MaxState) }

// WithState replaces the state bits of id.
func WithState(id section.BlockID, state uint8) section.BlockID {
	return section.BlockID(int32(state)<<TypeBits | int32(TypeID(id)))
}

// Package section implements the adaptive bit-packed storage of a 16x16x16
// cuboid of block ids.
//
// A section starts in palette mode: every distinct id it has seen gets a
// compact index and the packed words hold indices. When the palette needs more
// bits than the configured ceiling the whole section is rewritten once into
// direct mode, where the words hold raw ids. The transition is one-way.
package section

import (
	"math/bits"

	"github.com/cockroachdb/errors"
)

const (
	Size   = 16
	Volume = Size * Size * Size

	MinPaletteBits        uint8 = 4
	DefaultMaxPaletteBits uint8 = 24
	DirectBits            uint8 = 32

	// maxPaletteEntries is bounded by the u16 palette count of the encoding.
	maxPaletteEntries = 1<<16 - 1
	maxDirectID       = uint64(1)<<DirectBits - 1
)

// BlockID is an opaque non-negative block identifier.
type BlockID int32

type Mode uint8

const (
	ModePalette Mode = 0
	ModeDirect  Mode = 1
)

func (m Mode) String() string {
	switch m {
	case ModePalette:
		return "palette"
	case ModeDirect:
		return "direct"
	default:
		return "unknown"
	}
}

type Options struct {
	// MaxPaletteBits is the widest palette index before the section switches
	// to direct mode. Zero means DefaultMaxPaletteBits.
	MaxPaletteBits uint8
}

func (o Options) maxBits() uint8 {
	b := o.MaxPaletteBits
	if b == 0 {
		b = DefaultMaxPaletteBits
	}
	if b < MinPaletteBits {
		b = MinPaletteBits
	}
	if b >= DirectBits {
		b = DirectBits - 1
	}
	return b
}

type Section struct {
	mode    Mode
	maxBits uint8
	data    packed

	// palette mode only: palette[i] is the id for index i, lookup is its inverse.
	palette []BlockID
	lookup  map[BlockID]uint32
}

// New returns a palette-mode section with every voxel set to def.
func New(def BlockID, opts Options) (*Section, error) {
	if err := checkID(def); err != nil {
		return nil, err
	}
	return &Section{
		mode:    ModePalette,
		maxBits: opts.maxBits(),
		data:    newPacked(MinPaletteBits),
		palette: []BlockID{def},
		lookup:  map[BlockID]uint32{def: 0},
	}, nil
}

func (s *Section) Mode() Mode          { return s.mode }
func (s *Section) BitsPerEntry() uint8 { return s.data.bits }

// Palette returns a copy of the palette table; nil in direct mode.
func (s *Section) Palette() []BlockID {
	if s.mode == ModeDirect {
		return nil
	}
	return append([]BlockID(nil), s.palette...)
}

// IsUniform reports whether the section holds a single id in palette mode,
// which is the case right after Fill.
func (s *Section) IsUniform() bool {
	return s.mode == ModePalette && len(s.palette) == 1
}

func (s *Section) Get(x, y, z int) (BlockID, error) {
	i, err := index(x, y, z)
	if err != nil {
		return 0, err
	}
	return s.at(i), nil
}

func (s *Section) at(i int) BlockID {
	v := s.data.get(i)
	if s.mode == ModeDirect {
		return BlockID(v)
	}
	return s.palette[v]
}

func (s *Section) Set(x, y, z int, id BlockID) error {
	i, err := index(x, y, z)
	if err != nil {
		return err
	}
	if err := checkID(id); err != nil {
		return err
	}
	s.data.set(i, s.fieldFor(id))
	return nil
}

// Fill sets every voxel to id and makes id palette index 0. In palette mode
// the width is kept so BitsPerEntry never decreases.
func (s *Section) Fill(id BlockID) error {
	if err := checkID(id); err != nil {
		return err
	}
	if s.mode == ModeDirect {
		for i := 0; i < Volume; i++ {
			s.data.set(i, uint32(id))
		}
		return nil
	}
	s.palette = append(s.palette[:0], id)
	s.lookup = map[BlockID]uint32{id: 0}
	s.data.reset()
	return nil
}

// FillColumn sets the voxels (x, y, z) for y in [y0, y1) to id.
func (s *Section) FillColumn(x, z, y0, y1 int, id BlockID) error {
	if x < 0 || x >= Size || z < 0 || z >= Size {
		return errors.Wrapf(ErrOutOfRange, "column (%d,%d)", x, z)
	}
	if y0 < 0 || y1 > Size || y0 > y1 {
		return errors.Wrapf(ErrOutOfRange, "run [%d,%d)", y0, y1)
	}
	if err := checkID(id); err != nil {
		return err
	}
	if y0 == y1 {
		return nil
	}
	v := s.fieldFor(id)
	for y := y0; y < y1; y++ {
		s.data.set(x|z<<4|y<<8, v)
	}
	return nil
}

// Clone returns a deep copy.
func (s *Section) Clone() *Section {
	out := &Section{
		mode:    s.mode,
		maxBits: s.maxBits,
		data:    s.data.clone(),
	}
	if s.mode == ModePalette {
		out.palette = append([]BlockID(nil), s.palette...)
		out.lookup = make(map[BlockID]uint32, len(s.lookup))
		for id, p := range s.lookup {
			out.lookup[id] = p
		}
	}
	return out
}

// fieldFor returns the packed value that represents id, registering it in the
// palette and growing or converting the storage when needed.
func (s *Section) fieldFor(id BlockID) uint32 {
	if s.mode == ModeDirect {
		return uint32(id)
	}
	if p, ok := s.lookup[id]; ok {
		return p
	}
	size := len(s.palette) + 1
	need := paletteBits(size)
	if need > s.maxBits || size > maxPaletteEntries {
		s.toDirect()
		return uint32(id)
	}
	if need > s.data.bits {
		s.data = s.data.repack(need, func(v uint32) uint32 { return v })
	}
	p := uint32(len(s.palette))
	s.palette = append(s.palette, id)
	s.lookup[id] = p
	return p
}

func (s *Section) toDirect() {
	pal := s.palette
	s.data = s.data.repack(DirectBits, func(v uint32) uint32 { return uint32(pal[v]) })
	s.mode = ModeDirect
	s.palette = nil
	s.lookup = nil
}

// paletteBits is max(MinPaletteBits, ceil(log2(n))).
func paletteBits(n int) uint8 {
	b := uint8(bits.Len(uint(n - 1)))
	if b < MinPaletteBits {
		b = MinPaletteBits
	}
	return b
}

func index(x, y, z int) (int, error) {
	if x < 0 || x >= Size || y < 0 || y >= Size || z < 0 || z >= Size {
		return 0, errors.Wrapf(ErrOutOfRange, "local position (%d,%d,%d)", x, y, z)
	}
	return x | z<<4 | y<<8, nil
}

func checkID(id BlockID) error {
	if id < 0 {
		return errors.Wrapf(ErrInvalidArgument, "negative block id %d", id)
	}
	if uint64(id) > maxDirectID {
		return errors.Wrapf(ErrInvalidArgument, "block id %d exceeds %d bits", id, DirectBits)
	}
	return nil
}

// Package chunkrec turns one chunk column into a self-describing compressed
// blob and back.
package chunkrec

import (
	"github.com/cockroachdb/errors"

	"voxelstore.ai/internal/sim/world/terrain/section"
)

// Column is a vertical stack of sections addressed by chunk coordinates.
// Local coordinates are x,z in [0,16) and y in [0, Height()).
type Column struct {
	CX, CZ   int32
	Sections []*section.Section
}

// NewColumn returns a column of the given height filled with def. Height must
// be a positive multiple of section.Size.
func NewColumn(cx, cz int32, height int, def section.BlockID, opts section.Options) (*Column, error) {
	if height <= 0 || height%section.Size != 0 {
		return nil, errors.Wrapf(section.ErrInvalidArgument, "column height %d", height)
	}
	c := &Column{CX: cx, CZ: cz, Sections: make([]*section.Section, height/section.Size)}
	for i := range c.Sections {
		s, err := section.New(def, opts)
		if err != nil {
			return nil, err
		}
		c.Sections[i] = s
	}
	return c, nil
}

// FromDense builds a column from a dense id array laid out x fastest, then z,
// then y.
func FromDense(cx, cz int32, height int, blocks []section.BlockID, opts section.Options) (*Column, error) {
	if len(blocks) != height*section.Size*section.Size {
		return nil, errors.Wrapf(section.ErrInvalidArgument, "dense length %d for height %d", len(blocks), height)
	}
	c, err := NewColumn(cx, cz, height, 0, opts)
	if err != nil {
		return nil, err
	}
	for i, id := range blocks {
		x := i % section.Size
		z := (i / section.Size) % section.Size
		y := i / (section.Size * section.Size)
		if err := c.Set(x, y, z, id); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Column) Height() int { return len(c.Sections) * section.Size }

func (c *Column) Get(x, y, z int) (section.BlockID, error) {
	s, ly, err := c.sectionAt(y)
	if err != nil {
		return 0, err
	}
	return s.Get(x, ly, z)
}

func (c *Column) Set(x, y, z int, id section.BlockID) error {
	s, ly, err := c.sectionAt(y)
	if err != nil {
		return err
	}
	return s.Set(x, ly, z, id)
}

// FillColumn sets (x, y, z) for y in [y0, y1) to id, splitting the run across
// sections.
func (c *Column) FillColumn(x, z, y0, y1 int, id section.BlockID) error {
	if y0 < 0 || y1 > c.Height() || y0 > y1 {
		return errors.Wrapf(section.ErrOutOfRange, "run [%d,%d) in height %d", y0, y1, c.Height())
	}
	for y0 < y1 {
		si := y0 / section.Size
		lo := y0 % section.Size
		hi := section.Size
		if end := y1 - si*section.Size; end < hi {
			hi = end
		}
		if err := c.Sections[si].FillColumn(x, z, lo, hi, id); err != nil {
			return err
		}
		y0 = si*section.Size + hi
	}
	return nil
}

// Dense returns every id in FromDense order.
func (c *Column) Dense() []section.BlockID {
	out := make([]section.BlockID, 0, c.Height()*section.Size*section.Size)
	for y := 0; y < c.Height(); y++ {
		for z := 0; z < section.Size; z++ {
			for x := 0; x < section.Size; x++ {
				id, _ := c.Get(x, y, z)
				out = append(out, id)
			}
		}
	}
	return out
}

func (c *Column) Clone() *Column {
	out := &Column{CX: c.CX, CZ: c.CZ, Sections: make([]*section.Section, len(c.Sections))}
	for i, s := range c.Sections {
		out.Sections[i] = s.Clone()
	}
	return out
}

func (c *Column) sectionAt(y int) (*section.Section, int, error) {
	if y < 0 || y >= c.Height() {
		return nil, 0, errors.Wrapf(section.ErrOutOfRange, "y=%d in height %d", y, c.Height())
	}
	return c.Sections[y/section.Size], y % section.Size, nil
}

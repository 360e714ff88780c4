package section

import (
	"encoding/binary"
)

// FormatVersion tags every encoded section.
const FormatVersion = 1

// Encoded layout, little-endian:
//
//	u8  version
//	u8  mode (0 palette, 1 direct)
//	u8  bitsPerEntry
//	u16 paletteSize (0 in direct mode)
//	i32 palette[paletteSize]
//	i32 wordCount
//	u64 words[wordCount]
const fixedHeaderLen = 1 + 1 + 1 + 2

// EncodedLen is the exact size AppendBinary adds.
func (s *Section) EncodedLen() int {
	n := len(s.palette)
	if s.mode == ModeDirect {
		n = 0
	}
	return fixedHeaderLen + 4*n + 4 + 8*len(s.data.words)
}

func (s *Section) MarshalBinary() ([]byte, error) {
	return s.AppendBinary(make([]byte, 0, s.EncodedLen())), nil
}

func (s *Section) AppendBinary(dst []byte) []byte {
	dst = append(dst, FormatVersion, byte(s.mode), s.data.bits)
	if s.mode == ModeDirect {
		dst = binary.LittleEndian.AppendUint16(dst, 0)
	} else {
		dst = binary.LittleEndian.AppendUint16(dst, uint16(len(s.palette)))
		for _, id := range s.palette {
			dst = binary.LittleEndian.AppendUint32(dst, uint32(id))
		}
	}
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(s.data.words)))
	for _, w := range s.data.words {
		dst = binary.LittleEndian.AppendUint64(dst, w)
	}
	return dst
}

// Decode parses one section from the front of data and returns it along with
// the number of bytes consumed.
func Decode(data []byte, opts Options) (*Section, int, error) {
	if len(data) < fixedHeaderLen {
		return nil, 0, malformedf("section: short header (%d bytes)", len(data))
	}
	if data[0] != FormatVersion {
		return nil, 0, malformedf("section: unsupported version %d", data[0])
	}
	mode := Mode(data[1])
	width := data[2]
	palLen := int(binary.LittleEndian.Uint16(data[3:5]))
	off := fixedHeaderLen

	s := &Section{mode: mode, maxBits: opts.maxBits()}
	switch mode {
	case ModeDirect:
		if width != DirectBits {
			return nil, 0, malformedf("section: direct mode with %d bits", width)
		}
		if palLen != 0 {
			return nil, 0, malformedf("section: direct mode with palette of %d", palLen)
		}
	case ModePalette:
		if width < MinPaletteBits || width >= DirectBits {
			return nil, 0, malformedf("section: palette mode with %d bits", width)
		}
		if palLen == 0 || uint64(palLen) > uint64(1)<<width {
			return nil, 0, malformedf("section: palette size %d at %d bits", palLen, width)
		}
		if len(data) < off+4*palLen {
			return nil, 0, malformedf("section: palette truncated")
		}
		s.palette = make([]BlockID, palLen)
		s.lookup = make(map[BlockID]uint32, palLen)
		for i := range s.palette {
			id := BlockID(int32(binary.LittleEndian.Uint32(data[off:])))
			off += 4
			if id < 0 {
				return nil, 0, malformedf("section: negative palette id %d", id)
			}
			if _, dup := s.lookup[id]; dup {
				return nil, 0, malformedf("section: duplicate palette id %d", id)
			}
			s.palette[i] = id
			s.lookup[id] = uint32(i)
		}
	default:
		return nil, 0, malformedf("section: unknown mode %d", mode)
	}

	if len(data) < off+4 {
		return nil, 0, malformedf("section: word count truncated")
	}
	words := int(int32(binary.LittleEndian.Uint32(data[off:])))
	off += 4
	if words != wordCount(width) {
		return nil, 0, malformedf("section: %d words, want %d for %d bits", words, wordCount(width), width)
	}
	if len(data) < off+8*words {
		return nil, 0, malformedf("section: words truncated")
	}
	s.data = newPacked(width)
	for i := range s.data.words {
		s.data.words[i] = binary.LittleEndian.Uint64(data[off:])
		off += 8
	}
	for i := 0; i < Volume; i++ {
		v := s.data.get(i)
		if mode == ModePalette && int(v) >= palLen {
			return nil, 0, malformedf("section: palette index %d out of %d", v, palLen)
		}
		if mode == ModeDirect && int32(v) < 0 {
			return nil, 0, malformedf("section: direct id %d out of range", v)
		}
	}
	return s, off, nil
}

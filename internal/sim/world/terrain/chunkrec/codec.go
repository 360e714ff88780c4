package chunkrec

import (
	"encoding/binary"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/klauspost/compress/zstd"

	"voxelstore.ai/internal/sim/world/terrain/section"
)

// FormatVersion tags the uncompressed column payload.
const FormatVersion = 1

// Uncompressed payload, little-endian:
//
//	u8  version
//	i32 cx
//	i32 cz
//	u16 sectionCount
//	repeat sectionCount: u32 len, section bytes (see package section)
const headerLen = 1 + 4 + 4 + 2

// maxDecodedSize bounds a single decompressed column.
const maxDecodedSize = 64 << 20

type CodecConfig struct {
	// Level is one of fastest, default, better, best. Empty means default.
	Level   string
	Section section.Options
}

// Codec encodes and decodes column blobs. It is safe for concurrent use.
type Codec struct {
	enc  *zstd.Encoder
	dec  *zstd.Decoder
	opts section.Options
}

func NewCodec(cfg CodecConfig) (*Codec, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(level), zstd.WithEncoderConcurrency(1))
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxDecodedSize))
	if err != nil {
		_ = enc.Close()
		return nil, err
	}
	return &Codec{enc: enc, dec: dec, opts: cfg.Section}, nil
}

func ParseLevel(s string) (zstd.EncoderLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "default":
		return zstd.SpeedDefault, nil
	case "fastest":
		return zstd.SpeedFastest, nil
	case "better":
		return zstd.SpeedBetterCompression, nil
	case "best":
		return zstd.SpeedBestCompression, nil
	default:
		return zstd.SpeedDefault, errors.Newf("unknown compression level %q", s)
	}
}

func (c *Codec) Close() {
	_ = c.enc.Close()
	c.dec.Close()
}

// Marshal returns the uncompressed payload of col.
func Marshal(col *Column) []byte {
	n := headerLen
	for _, s := range col.Sections {
		n += 4 + s.EncodedLen()
	}
	buf := make([]byte, 0, n)
	buf = append(buf, FormatVersion)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(col.CX))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(col.CZ))
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(col.Sections)))
	for _, s := range col.Sections {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(s.EncodedLen()))
		buf = s.AppendBinary(buf)
	}
	return buf
}

// Unmarshal parses an uncompressed payload.
func Unmarshal(raw []byte, opts section.Options) (*Column, error) {
	if len(raw) < headerLen {
		return nil, errors.Mark(errors.Newf("chunkrec: short payload (%d bytes)", len(raw)), section.ErrMalformed)
	}
	if raw[0] != FormatVersion {
		return nil, errors.Mark(errors.Newf("chunkrec: unsupported version %d", raw[0]), section.ErrMalformed)
	}
	col := &Column{
		CX: int32(binary.LittleEndian.Uint32(raw[1:5])),
		CZ: int32(binary.LittleEndian.Uint32(raw[5:9])),
	}
	count := int(binary.LittleEndian.Uint16(raw[9:11]))
	if count == 0 {
		return nil, errors.Mark(errors.New("chunkrec: column without sections"), section.ErrMalformed)
	}
	col.Sections = make([]*section.Section, count)
	off := headerLen
	for i := range col.Sections {
		if len(raw) < off+4 {
			return nil, errors.Mark(errors.Newf("chunkrec: section %d length truncated", i), section.ErrMalformed)
		}
		n := int(binary.LittleEndian.Uint32(raw[off:]))
		off += 4
		if n < 0 || len(raw) < off+n {
			return nil, errors.Mark(errors.Newf("chunkrec: section %d truncated", i), section.ErrMalformed)
		}
		s, used, err := section.Decode(raw[off:off+n], opts)
		if err != nil {
			return nil, errors.Wrapf(err, "chunkrec: section %d", i)
		}
		if used != n {
			return nil, errors.Mark(errors.Newf("chunkrec: section %d has %d trailing bytes", i, n-used), section.ErrMalformed)
		}
		col.Sections[i] = s
		off += n
	}
	if off != len(raw) {
		return nil, errors.Mark(errors.Newf("chunkrec: %d trailing bytes", len(raw)-off), section.ErrMalformed)
	}
	return col, nil
}

// Encode serializes and compresses col.
func (c *Codec) Encode(col *Column) ([]byte, error) {
	if len(col.Sections) == 0 || len(col.Sections) > 0xFFFF {
		return nil, errors.Wrapf(section.ErrInvalidArgument, "column with %d sections", len(col.Sections))
	}
	return c.enc.EncodeAll(Marshal(col), nil), nil
}

// Decode decompresses and parses a blob produced by Encode.
func (c *Codec) Decode(blob []byte) (*Column, error) {
	raw, err := c.dec.DecodeAll(blob, nil)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "chunkrec: decompress"), section.ErrMalformed)
	}
	return Unmarshal(raw, c.opts)
}

package worldfile

import (
	"encoding/binary"
	"math"

	"github.com/cockroachdb/errors"
)

// File layout, little-endian:
//
//	offset 0:  [4]byte magic "WVLD"
//	offset 4:  i32 version
//	offset 8:  i64 reserved
//	offset 16: records until EOF
//
// Record:
//
//	i32 cx | i32 cz | i32 len | len bytes of blob
//
// A len <= 0 ends the scan. A record with cx == cz == math.MinInt32 is a free
// slot: the unused tail left behind by an in-place shrink.
const (
	Magic            = "WVLD"
	Version          = 1
	HeaderSize       = 16
	RecordHeaderSize = 12

	freeCoord = math.MinInt32
)

type fileHeader struct {
	Magic    [4]byte
	Version  int32
	Reserved int64
}

func encodeHeader(h fileHeader) []byte {
	buf := make([]byte, HeaderSize)
	copy(buf[0:4], h.Magic[:])
	binary.LittleEndian.PutUint32(buf[4:8], uint32(h.Version))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(h.Reserved))
	return buf
}

func decodeHeader(buf []byte) (fileHeader, error) {
	var h fileHeader
	if len(buf) < HeaderSize {
		return h, errors.Wrapf(ErrHeaderMismatch, "header is %d bytes", len(buf))
	}
	copy(h.Magic[:], buf[0:4])
	h.Version = int32(binary.LittleEndian.Uint32(buf[4:8]))
	h.Reserved = int64(binary.LittleEndian.Uint64(buf[8:16]))
	if string(h.Magic[:]) != Magic {
		return h, errors.Wrapf(ErrHeaderMismatch, "magic %q", h.Magic[:])
	}
	if h.Version != Version {
		return h, errors.Wrapf(ErrHeaderMismatch, "version %d, want %d", h.Version, Version)
	}
	return h, nil
}

func newHeader() fileHeader {
	var h fileHeader
	copy(h.Magic[:], Magic)
	h.Version = Version
	return h
}

type recordHeader struct {
	CX, CZ int32
	Len    int32
}

func (r recordHeader) free() bool { return r.CX == freeCoord && r.CZ == freeCoord }

func appendRecordHeader(dst []byte, r recordHeader) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, uint32(r.CX))
	dst = binary.LittleEndian.AppendUint32(dst, uint32(r.CZ))
	return binary.LittleEndian.AppendUint32(dst, uint32(r.Len))
}

func decodeRecordHeader(buf []byte) recordHeader {
	return recordHeader{
		CX:  int32(binary.LittleEndian.Uint32(buf[0:4])),
		CZ:  int32(binary.LittleEndian.Uint32(buf[4:8])),
		Len: int32(binary.LittleEndian.Uint32(buf[8:12])),
	}
}

// Package encoding holds compact text encodings used by tooling exports.
package encoding

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"math"

	"github.com/cockroachdb/errors"

	"voxelstore.ai/internal/sim/world/terrain/section"
)

// EncodeRLE encodes a sequence of block ids into base64(varint pairs).
// The pairs are (block_id, run_len) repeated.
func EncodeRLE(ids []section.BlockID) string {
	var buf bytes.Buffer
	var tmp [binary.MaxVarintLen64]byte

	i := 0
	for i < len(ids) {
		b := ids[i]
		run := 1
		for j := i + 1; j < len(ids) && ids[j] == b && run < 1<<31; j++ {
			run++
		}

		n := binary.PutUvarint(tmp[:], uint64(uint32(b)))
		buf.Write(tmp[:n])
		n = binary.PutUvarint(tmp[:], uint64(run))
		buf.Write(tmp[:n])

		i += run
	}

	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

// DecodeRLE reverses EncodeRLE. It refuses to expand past maxLen ids; a
// maxLen <= 0 means no limit.
func DecodeRLE(b64 string, maxLen int) ([]section.BlockID, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, err
	}
	var out []section.BlockID
	for i := 0; i < len(raw); {
		b, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, errors.Newf("bad varint at %d", i)
		}
		i += n
		run, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, errors.Newf("bad varint at %d", i)
		}
		i += n
		if b > math.MaxInt32 {
			return nil, errors.Newf("block id too large: %d", b)
		}
		if run == 0 || (maxLen > 0 && uint64(len(out))+run > uint64(maxLen)) {
			return nil, errors.Newf("run of %d at %d exceeds limit %d", run, len(out), maxLen)
		}
		for k := uint64(0); k < run; k++ {
			out = append(out, section.BlockID(b))
		}
	}
	return out, nil
}

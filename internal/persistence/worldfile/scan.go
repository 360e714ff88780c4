package worldfile

import (
	"io"

	"github.com/cockroachdb/errors"
)

func (s *Store) ensureIndexLocked() error {
	if s.index != nil {
		return nil
	}
	return s.scanLocked()
}

// scanLocked walks every record from the header to the first record that does
// not fit in the file. Later records for the same coordinates replace earlier
// ones. A free slot directly after a live record widens that record's
// capacity. The scan never writes: bytes past the last valid record are
// counted as unreachable and left for the first append to judge.
func (s *Store) scanLocked() error {
	fi, err := s.f.Stat()
	if err != nil {
		return err
	}
	size := fi.Size()

	index := make(map[Key]slot)
	var (
		orphaned int64
		prev     Key
		havePrev bool
		hdr      [RecordHeaderSize]byte
		torn     = true
	)
	pos := int64(HeaderSize)
	for pos+RecordHeaderSize <= size {
		if _, err := s.f.ReadAt(hdr[:], pos); err != nil && !errors.Is(err, io.EOF) {
			return errors.Wrapf(err, "worldfile: read record header at %d", pos)
		}
		h := decodeRecordHeader(hdr[:])
		if h.Len <= 0 {
			torn = false
			break
		}
		if pos+RecordHeaderSize+int64(h.Len) > size {
			break
		}
		span := RecordHeaderSize + int64(h.Len)

		if h.free() {
			if p, ok := index[prev]; havePrev && ok && p.offset+RecordHeaderSize+int64(p.capacity) == pos {
				p.capacity += int32(span)
				index[prev] = p
			} else {
				orphaned += span
			}
			pos += span
			continue
		}

		k := Key{CX: h.CX, CZ: h.CZ}
		if old, ok := index[k]; ok {
			orphaned += RecordHeaderSize + int64(old.capacity)
		}
		index[k] = slot{offset: pos, length: h.Len, capacity: h.Len}
		prev, havePrev = k, true
		pos += span
	}

	s.index = index
	s.end = pos
	s.orphaned = orphaned
	s.unreachable = size - pos
	s.tornTail = s.unreachable > 0 && torn
	s.metrics.orphaned(orphaned)
	if s.unreachable > 0 {
		s.log.Warn().Int64("valid_end", pos).Int64("file_size", size).Bool("torn_tail", s.tornTail).Msg("bytes past the last valid record")
	}
	s.log.Debug().Int("records", len(index)).Int64("end", pos).Int64("orphaned", orphaned).Msg("scanned world file")
	return nil
}

// reclaimTailLocked makes s.end the end of the file before an append. A torn
// tail (a short header, or a record whose declared length runs past EOF) is
// what an interrupted append leaves and is cut off. Anything else past s.end
// may hide later records, so the append is refused.
func (s *Store) reclaimTailLocked() error {
	if s.unreachable == 0 {
		return nil
	}
	if !s.tornTail {
		return errors.Wrapf(ErrCorruptRecord, "%d unreadable bytes at %d; refusing to append over them", s.unreachable, s.end)
	}
	s.log.Warn().Int64("valid_end", s.end).Int64("torn_bytes", s.unreachable).Msg("truncating torn tail")
	if err := s.f.Truncate(s.end); err != nil {
		return errors.Wrapf(err, "worldfile: truncate to %d", s.end)
	}
	if err := s.syncLocked(); err != nil {
		return err
	}
	s.unreachable, s.tornTail = 0, false
	return nil
}

// Package worldfile persists chunk blobs in a single append-structured file.
//
// The file holds a fixed header followed by length-prefixed records. An
// in-memory index from chunk coordinates to the newest record is built by a
// full scan on first use. A save overwrites the existing record when the new
// blob fits in its slot and appends a new record otherwise; superseded bytes
// stay in the file and are never reclaimed.
//
// A shrink by 1 to RecordHeaderSize bytes appends even though the blob fits:
// the spare bytes cannot hold a free-slot record, and a rescan needs every
// byte of a slot accounted for.
//
// Reads never modify the file. Bytes after the last valid record are
// reported in Stats.UnreachableBytes; the first append cuts them off only
// when they look like an interrupted append and fails with ErrCorruptRecord
// otherwise.
package worldfile

import (
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	"voxelstore.ai/internal/sim/world/terrain/chunkrec"
)

type Key struct {
	CX, CZ int32
}

// Entry is one index entry: the newest record for a coordinate pair.
type Entry struct {
	CX, CZ int32
	Offset int64
	Length int32
}

type SaveMode string

const (
	SaveInPlace SaveMode = "inplace"
	SaveAppend  SaveMode = "append"
)

// SaveEvent describes a completed save.
type SaveEvent struct {
	CX, CZ int32
	Offset int64
	Length int32
	Mode   SaveMode
	At     time.Time
}

// SaveObserver is told about every successful save, outside the store lock.
type SaveObserver interface {
	RecordSave(ev SaveEvent)
}

type Options struct {
	// Codec decodes blobs in LoadChunk. Nil means a default codec owned by the store.
	Codec *chunkrec.Codec
	// Sync fsyncs the file after every save.
	Sync bool
	// ReadOnly opens an existing file without write access. Saves fail with
	// ErrReadOnly and a missing file is an error rather than a new world.
	ReadOnly bool
	Logger     *zerolog.Logger
	Metrics  *Metrics
	Observer SaveObserver
}

type Stats struct {
	FileSize      int64
	Records       int
	LiveBytes     int64
	OrphanedBytes int64
	// UnreachableBytes follow the last record the scan could read.
	UnreachableBytes int64
}

// slot is where a record lives. capacity >= length; the difference is
// covered by a free-slot record written right after the blob.
type slot struct {
	offset   int64
	length   int32
	capacity int32
}

type Store struct {
	path      string
	codec     *chunkrec.Codec
	ownsCodec bool
	sync      bool
	readOnly  bool
	log       zerolog.Logger
	metrics   *Metrics
	observer  SaveObserver

	mu       sync.Mutex
	f        *os.File
	index    map[Key]slot // nil until the first scan
	end      int64        // end of the last valid record
	orphaned int64

	unreachable int64 // bytes past end
	tornTail    bool  // unreachable bytes are an interrupted append
}

// Open opens or creates the world file at path. A new file gets a header
// immediately; an existing one must carry our magic and version.
func Open(path string, opts Options) (*Store, error) {
	var (
		f   *os.File
		err error
	)
	if opts.ReadOnly {
		f, err = os.Open(path)
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
		f, err = os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	}
	if err != nil {
		return nil, err
	}
	s := &Store{
		path:     path,
		codec:    opts.Codec,
		sync:     opts.Sync,
		readOnly: opts.ReadOnly,
		log:      zerolog.Nop(),
		metrics:  opts.Metrics,
		observer: opts.Observer,
		f:        f,
	}
	if opts.Logger != nil {
		s.log = opts.Logger.With().Str("component", "worldfile").Str("path", path).Logger()
	}
	if err := s.initHeader(); err != nil {
		_ = f.Close()
		return nil, err
	}
	if s.codec == nil {
		c, err := chunkrec.NewCodec(chunkrec.CodecConfig{})
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		s.codec = c
		s.ownsCodec = true
	}
	return s, nil
}

func (s *Store) initHeader() error {
	fi, err := s.f.Stat()
	if err != nil {
		return err
	}
	if fi.Size() == 0 && !s.readOnly {
		if _, err := s.f.WriteAt(encodeHeader(newHeader()), 0); err != nil {
			return errors.Wrap(err, "worldfile: write header")
		}
		s.log.Info().Msg("created world file")
		return s.syncLocked()
	}
	buf := make([]byte, HeaderSize)
	if fi.Size() < HeaderSize {
		return errors.Wrapf(ErrHeaderMismatch, "file is %d bytes", fi.Size())
	}
	if _, err := s.f.ReadAt(buf, 0); err != nil {
		return errors.Wrap(err, "worldfile: read header")
	}
	_, err = decodeHeader(buf)
	return err
}

func (s *Store) Path() string { return s.path }

// Codec returns the codec used to decode blobs.
func (s *Store) Codec() *chunkrec.Codec { return s.codec }

// SaveChunk stores blob as the newest record for (cx, cz).
func (s *Store) SaveChunk(cx, cz int32, blob []byte) error {
	if len(blob) == 0 {
		return errors.Wrapf(ErrInvalidArgument, "empty blob for (%d,%d)", cx, cz)
	}
	if int64(len(blob)) > math.MaxInt32-2*RecordHeaderSize {
		return errors.Wrapf(ErrInvalidArgument, "blob of %d bytes for (%d,%d)", len(blob), cx, cz)
	}
	if cx == freeCoord && cz == freeCoord {
		return errors.Wrapf(ErrInvalidArgument, "coordinates (%d,%d) are reserved", cx, cz)
	}

	s.mu.Lock()
	ev, err := s.saveLocked(cx, cz, blob)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	if s.observer != nil {
		s.observer.RecordSave(ev)
	}
	return nil
}

func (s *Store) saveLocked(cx, cz int32, blob []byte) (SaveEvent, error) {
	if s.f == nil {
		return SaveEvent{}, ErrClosed
	}
	if s.readOnly {
		return SaveEvent{}, ErrReadOnly
	}
	if err := s.ensureIndexLocked(); err != nil {
		return SaveEvent{}, err
	}
	k := Key{CX: cx, CZ: cz}
	n := int32(len(blob))
	ev := SaveEvent{CX: cx, CZ: cz, Length: n, At: time.Now().UTC()}

	old, ok := s.index[k]
	gap := int64(-1)
	if ok {
		gap = int64(old.capacity) - int64(n)
	}
	if gap == 0 || gap > RecordHeaderSize {
		buf := make([]byte, 0, RecordHeaderSize+len(blob)+RecordHeaderSize)
		buf = appendRecordHeader(buf, recordHeader{CX: cx, CZ: cz, Len: n})
		buf = append(buf, blob...)
		if gap > 0 {
			buf = appendRecordHeader(buf, recordHeader{CX: freeCoord, CZ: freeCoord, Len: int32(gap - RecordHeaderSize)})
		}
		if _, err := s.f.WriteAt(buf, old.offset); err != nil {
			return SaveEvent{}, errors.Wrapf(err, "worldfile: overwrite (%d,%d) at %d", cx, cz, old.offset)
		}
		if err := s.syncLocked(); err != nil {
			return SaveEvent{}, err
		}
		s.index[k] = slot{offset: old.offset, length: n, capacity: old.capacity}
		ev.Offset, ev.Mode = old.offset, SaveInPlace
		s.metrics.save(SaveInPlace, 0)
		s.log.Debug().Int32("cx", cx).Int32("cz", cz).Int64("offset", old.offset).Int32("len", n).Msg("overwrote record")
		return ev, nil
	}

	if err := s.reclaimTailLocked(); err != nil {
		return SaveEvent{}, err
	}
	off := s.end
	buf := make([]byte, 0, RecordHeaderSize+len(blob))
	buf = appendRecordHeader(buf, recordHeader{CX: cx, CZ: cz, Len: n})
	buf = append(buf, blob...)
	if _, err := s.f.WriteAt(buf, off); err != nil {
		return SaveEvent{}, errors.Wrapf(err, "worldfile: append (%d,%d) at %d", cx, cz, off)
	}
	if err := s.syncLocked(); err != nil {
		return SaveEvent{}, err
	}
	if ok {
		s.orphaned += RecordHeaderSize + int64(old.capacity)
		s.metrics.orphaned(s.orphaned)
	}
	s.index[k] = slot{offset: off, length: n, capacity: n}
	s.end = off + int64(len(buf))
	ev.Offset, ev.Mode = off, SaveAppend
	s.metrics.save(SaveAppend, len(buf))
	s.log.Debug().Int32("cx", cx).Int32("cz", cz).Int64("offset", off).Int32("len", n).Bool("superseded", ok).Msg("appended record")
	return ev, nil
}

// ReadBlob returns the raw blob of the newest record for (cx, cz).
func (s *Store) ReadBlob(cx, cz int32) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil, false, ErrClosed
	}
	if err := s.ensureIndexLocked(); err != nil {
		return nil, false, err
	}
	sl, ok := s.index[Key{CX: cx, CZ: cz}]
	if !ok {
		return nil, false, nil
	}
	buf := make([]byte, RecordHeaderSize+int(sl.length))
	if _, err := s.f.ReadAt(buf, sl.offset); err != nil {
		return nil, false, errors.Wrapf(err, "worldfile: read (%d,%d) at %d", cx, cz, sl.offset)
	}
	h := decodeRecordHeader(buf)
	if h.CX != cx || h.CZ != cz || h.Len != sl.length {
		return nil, false, errors.Wrapf(ErrCorruptRecord,
			"record at %d is (%d,%d) len %d, index has (%d,%d) len %d", sl.offset, h.CX, h.CZ, h.Len, cx, cz, sl.length)
	}
	return buf[RecordHeaderSize:], true, nil
}

// LoadChunk reads and decodes the record for (cx, cz). The bool is false when
// no record exists. A blob that decodes to other coordinates, or does not
// decode at all, is reported as ErrCorruptRecord.
func (s *Store) LoadChunk(cx, cz int32) (*chunkrec.Column, bool, error) {
	blob, ok, err := s.ReadBlob(cx, cz)
	if err != nil {
		if errors.Is(err, ErrCorruptRecord) {
			s.metrics.load("corrupt")
		}
		return nil, false, err
	}
	if !ok {
		s.metrics.load("miss")
		return nil, false, nil
	}
	col, err := s.codec.Decode(blob)
	if err != nil {
		s.metrics.load("corrupt")
		return nil, false, errors.Mark(errors.Wrapf(err, "worldfile: decode (%d,%d)", cx, cz), ErrCorruptRecord)
	}
	if col.CX != cx || col.CZ != cz {
		s.metrics.load("corrupt")
		s.log.Error().Int32("cx", cx).Int32("cz", cz).Int32("blob_cx", col.CX).Int32("blob_cz", col.CZ).Msg("record coordinates mismatch")
		return nil, false, errors.Wrapf(ErrCorruptRecord, "blob for (%d,%d) decodes as (%d,%d)", cx, cz, col.CX, col.CZ)
	}
	s.metrics.load("hit")
	return col, true, nil
}

// Has reports whether (cx, cz) has a record.
func (s *Store) Has(cx, cz int32) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return false, ErrClosed
	}
	if err := s.ensureIndexLocked(); err != nil {
		return false, err
	}
	_, ok := s.index[Key{CX: cx, CZ: cz}]
	return ok, nil
}

// RebuildIndex drops the in-memory index and rescans the file.
func (s *Store) RebuildIndex() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return ErrClosed
	}
	s.index = nil
	return s.ensureIndexLocked()
}

// Entries returns the index sorted by (CX, CZ).
func (s *Store) Entries() ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil, ErrClosed
	}
	if err := s.ensureIndexLocked(); err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(s.index))
	for k, sl := range s.index {
		out = append(out, Entry{CX: k.CX, CZ: k.CZ, Offset: sl.offset, Length: sl.length})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CX != out[j].CX {
			return out[i].CX < out[j].CX
		}
		return out[i].CZ < out[j].CZ
	})
	return out, nil
}

func (s *Store) Stats() (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return Stats{}, ErrClosed
	}
	if err := s.ensureIndexLocked(); err != nil {
		return Stats{}, err
	}
	return s.statsLocked()
}

func (s *Store) statsLocked() (Stats, error) {
	fi, err := s.f.Stat()
	if err != nil {
		return Stats{}, err
	}
	st := Stats{
		FileSize:         fi.Size(),
		Records:          len(s.index),
		OrphanedBytes:    s.orphaned,
		UnreachableBytes: s.unreachable,
	}
	for _, sl := range s.index {
		st.LiveBytes += RecordHeaderSize + int64(sl.length)
	}
	return st, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	s.index = nil
	if s.ownsCodec {
		s.codec.Close()
	}
	return err
}

func (s *Store) syncLocked() error {
	if !s.sync {
		return nil
	}
	start := time.Now()
	if err := s.f.Sync(); err != nil {
		return errors.Wrap(err, "worldfile: fsync")
	}
	if s.metrics != nil {
		s.metrics.FsyncLatency.Observe(time.Since(start).Seconds())
	}
	return nil
}

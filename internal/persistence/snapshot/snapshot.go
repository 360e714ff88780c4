// Package snapshot writes point-in-time copies of a world file. A snapshot is
// one zstd stream: a JSON header line followed by the raw world file bytes.
package snapshot

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/klauspost/compress/zstd"

	"voxelstore.ai/internal/persistence/worldfile"
)

const (
	Format  = "voxelstore.world.snapshot"
	Version = 1
)

var ErrBadSnapshot = errors.New("snapshot: not a world snapshot")

type Header struct {
	Format        string `json:"format"`
	Version       int    `json:"version"`
	WorldPath     string `json:"world_path"`
	Records       int    `json:"records"`
	FileSize      int64  `json:"file_size"`
	OrphanedBytes int64  `json:"orphaned_bytes"`
	CreatedAt     string `json:"created_at"`
	Seed          int64  `json:"seed,omitempty"`
	BlocksDigest  string `json:"blocks_digest,omitempty"`
}

// Meta is caller supplied context copied into the header.
type Meta struct {
	Seed         int64
	BlocksDigest string
	Now          time.Time
}

// Source is a world file that can hand out a consistent view of its bytes.
type Source interface {
	Path() string
	Export(fn func(st worldfile.Stats, r io.Reader) error) error
}

// Write snapshots src into path. The file is written next to path and renamed
// into place, so path either holds a complete snapshot or is left untouched.
func Write(path string, src Source, meta Meta) (Header, error) {
	var hdr Header
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return hdr, err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return hdr, err
	}
	defer func() {
		if f != nil {
			_ = f.Close()
			_ = os.Remove(tmp)
		}
	}()

	now := meta.Now
	if now.IsZero() {
		now = time.Now()
	}
	err = src.Export(func(st worldfile.Stats, r io.Reader) error {
		hdr = Header{
			Format:        Format,
			Version:       Version,
			WorldPath:     src.Path(),
			Records:       st.Records,
			FileSize:      st.FileSize,
			OrphanedBytes: st.OrphanedBytes,
			CreatedAt:     now.UTC().Format(time.RFC3339Nano),
			Seed:          meta.Seed,
			BlocksDigest:  meta.BlocksDigest,
		}
		return writeStream(f, hdr, r)
	})
	if err != nil {
		return hdr, err
	}
	if err := f.Sync(); err != nil {
		return hdr, err
	}
	if err := f.Close(); err != nil {
		return hdr, err
	}
	f = nil
	return hdr, os.Rename(tmp, path)
}

func writeStream(w io.Writer, hdr Header, r io.Reader) error {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	if err := writeBody(enc, hdr, r); err != nil {
		_ = enc.Close()
		return err
	}
	return enc.Close()
}

func writeBody(w io.Writer, hdr Header, r io.Reader) error {
	bw := bufio.NewWriterSize(w, 256*1024)
	hb, _ := json.Marshal(hdr)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	n, err := io.Copy(bw, r)
	if err != nil {
		return errors.Wrap(err, "snapshot: copy world bytes")
	}
	if n != hdr.FileSize {
		return errors.Newf("snapshot: copied %d bytes, expected %d", n, hdr.FileSize)
	}
	return bw.Flush()
}

type reader struct {
	f   *os.File
	dec *zstd.Decoder
	br  *bufio.Reader
	hdr Header
}

func open(path string) (*reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	r := &reader{f: f, dec: dec, br: bufio.NewReaderSize(dec, 256*1024)}
	line, err := r.br.ReadBytes('\n')
	if err != nil {
		r.close()
		return nil, errors.Mark(errors.Wrapf(err, "snapshot: %s header", path), ErrBadSnapshot)
	}
	if err := json.Unmarshal(line, &r.hdr); err != nil || r.hdr.Format != Format {
		r.close()
		return nil, errors.Wrapf(ErrBadSnapshot, "%s", path)
	}
	if r.hdr.Version != Version {
		r.close()
		return nil, errors.Wrapf(ErrBadSnapshot, "%s: version %d", path, r.hdr.Version)
	}
	return r, nil
}

func (r *reader) close() {
	r.dec.Close()
	_ = r.f.Close()
}

// ReadHeader returns the header of the snapshot at path.
func ReadHeader(path string) (Header, error) {
	r, err := open(path)
	if err != nil {
		return Header{}, err
	}
	defer r.close()
	return r.hdr, nil
}

// Restore expands the snapshot at path into a world file at dst. An existing
// dst is only replaced once the full body has been written.
func Restore(path, dst string) (Header, error) {
	r, err := open(path)
	if err != nil {
		return Header{}, err
	}
	defer r.close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return r.hdr, err
	}
	tmp := dst + ".restore"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return r.hdr, err
	}
	n, err := io.Copy(out, r.br)
	if err == nil && n != r.hdr.FileSize {
		err = errors.Wrapf(ErrBadSnapshot, "%s: body is %d bytes, header says %d", path, n, r.hdr.FileSize)
	}
	if err == nil {
		err = out.Sync()
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return r.hdr, err
	}
	return r.hdr, os.Rename(tmp, dst)
}

// Package archive keeps a directory of timestamped world snapshots and prunes
// the oldest ones.
package archive

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"voxelstore.ai/internal/persistence/snapshot"
)

const (
	prefix = "world-"
	suffix = ".wvld.zst"
	layout = "20060102T150405Z"
)

// Name returns the snapshot file name for t. Names sort in time order.
func Name(t time.Time) string {
	return prefix + t.UTC().Format(layout) + suffix
}

// List returns the snapshot paths in dir, oldest first. A missing dir is empty.
func List(dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range ents {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, suffix) {
			continue
		}
		if _, err := time.Parse(layout, strings.TrimSuffix(strings.TrimPrefix(name, prefix), suffix)); err != nil {
			continue
		}
		out = append(out, filepath.Join(dir, name))
	}
	sort.Strings(out)
	return out, nil
}

// Latest returns the newest snapshot in dir, or "" when there is none.
func Latest(dir string) (string, error) {
	all, err := List(dir)
	if err != nil || len(all) == 0 {
		return "", err
	}
	return all[len(all)-1], nil
}

// Prune removes all but the newest keep snapshots. keep <= 0 keeps everything.
func Prune(dir string, keep int) ([]string, error) {
	if keep <= 0 {
		return nil, nil
	}
	all, err := List(dir)
	if err != nil {
		return nil, err
	}
	if len(all) <= keep {
		return nil, nil
	}
	old := all[:len(all)-keep]
	for _, p := range old {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}
	return old, nil
}

// Take writes a snapshot of src into dir and prunes down to keep snapshots.
func Take(dir string, src snapshot.Source, meta snapshot.Meta, keep int) (string, snapshot.Header, error) {
	if meta.Now.IsZero() {
		meta.Now = time.Now()
	}
	path := filepath.Join(dir, Name(meta.Now))
	hdr, err := snapshot.Write(path, src, meta)
	if err != nil {
		return "", hdr, err
	}
	if _, err := Prune(dir, keep); err != nil {
		return path, hdr, errors.Wrap(err, "archive: prune")
	}
	return path, hdr, nil
}

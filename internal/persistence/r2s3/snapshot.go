package r2s3

import (
	"strconv"

	"github.com/cockroachdb/errors"

	"voxelstore.ai/internal/persistence/snapshot"
)

const contentTypeSnapshot = "application/zstd"

// SnapshotObject describes the snapshot at localPath as an upload under key.
// The snapshot header becomes object metadata; a file that is not a snapshot
// is an error wrapping snapshot.ErrBadSnapshot.
func SnapshotObject(key, localPath string) (Object, snapshot.Header, error) {
	hdr, err := snapshot.ReadHeader(localPath)
	if err != nil {
		return Object{}, snapshot.Header{}, errors.Wrapf(err, "r2s3: read snapshot header of %s", localPath)
	}
	meta := map[string]string{
		"snapshot-format":  hdr.Format,
		"snapshot-version": strconv.Itoa(hdr.Version),
		"world-records":    strconv.Itoa(hdr.Records),
		"world-bytes":      strconv.FormatInt(hdr.FileSize, 10),
		"world-orphaned":   strconv.FormatInt(hdr.OrphanedBytes, 10),
		"created-at":       hdr.CreatedAt,
	}
	if hdr.Seed != 0 {
		meta["world-seed"] = strconv.FormatInt(hdr.Seed, 10)
	}
	if hdr.BlocksDigest != "" {
		meta["blocks-digest"] = hdr.BlocksDigest
	}
	return Object{
		Key:         key,
		Path:        localPath,
		ContentType: contentTypeSnapshot,
		Metadata:    meta,
	}, hdr, nil
}

package main

import (
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"voxelstore.ai/internal/persistence/archive"
	"voxelstore.ai/internal/persistence/r2s3"
	"voxelstore.ai/internal/persistence/snapshot"
	"voxelstore.ai/internal/sim/tuning"
)

// buildMirror returns nil unless VS_R2_MIRROR is set. Credentials only come
// from the environment.
func buildMirror(cfg tuning.Backup, logger *zerolog.Logger) (*r2s3.Mirror, error) {
	if !envBool("VS_R2_MIRROR", false) {
		return nil, nil
	}
	if cfg.Dir == "" {
		return nil, errors.New("VS_R2_MIRROR=true but backup.dir is empty")
	}
	endpoint := strings.TrimSpace(os.Getenv("VS_R2_ENDPOINT"))
	bucket := strings.TrimSpace(os.Getenv("VS_R2_BUCKET"))
	accessKeyID := strings.TrimSpace(os.Getenv("VS_R2_ACCESS_KEY_ID"))
	secretAccessKey := strings.TrimSpace(os.Getenv("VS_R2_SECRET_ACCESS_KEY"))
	if endpoint == "" || bucket == "" || accessKeyID == "" || secretAccessKey == "" {
		return nil, errors.New("VS_R2_MIRROR=true but VS_R2_ENDPOINT/VS_R2_BUCKET/VS_R2_ACCESS_KEY_ID/VS_R2_SECRET_ACCESS_KEY are not fully set")
	}
	client, err := r2s3.New(endpoint, bucket, os.Getenv("VS_R2_REGION"), accessKeyID, secretAccessKey)
	if err != nil {
		return nil, err
	}
	return r2s3.NewMirror(client, r2s3.MirrorOptions{
		BaseDir: cfg.Dir,
		Prefix:  cfg.MirrorPrefix,
		Workers: envInt("VS_R2_UPLOAD_WORKERS", 1),
		Logger:  logger,
	}), nil
}

// backup snapshots the world file into the backup dir and hands the result
// to the mirror. Saves wait while the file is copied.
func (n *node) backup() {
	path, hdr, err := archive.Take(n.cfg.Backup.Dir, n.file, snapshot.Meta{
		Seed:         n.cfg.Gen.Seed,
		BlocksDigest: n.blocksDigest,
	}, n.cfg.Backup.Keep)
	if err != nil {
		n.log.Error().Err(err).Msg("backup")
		if path == "" {
			return
		}
	}
	n.log.Info().
		Str("path", path).
		Int("records", hdr.Records).
		Str("world_size", humanize.IBytes(uint64(hdr.FileSize))).
		Msg("backup written")
	n.mirror.Enqueue(path)
}

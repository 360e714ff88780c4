package r2s3

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"go.uber.org/atomic"
)

type Stats struct {
	QueueDepth          int
	QueueCapacity       int
	EnqueuedTotal       uint64
	QueueSaturatedTotal uint64
	DroppedTotal        uint64
	UploadSuccessTotal  uint64
	UploadFailTotal     uint64
	LastSuccessUnix     int64
	LastErrorUnix       int64
}

type MirrorOptions struct {
	// BaseDir is stripped from local paths to build object keys.
	BaseDir string
	// Prefix is prepended to every object key.
	Prefix        string
	Workers       int
	QueueCapacity int
	// EnqueueWait bounds how long Enqueue blocks on a full queue.
	EnqueueWait time.Duration
	Logger      *zerolog.Logger
}

type uploader interface {
	Put(ctx context.Context, obj Object) (PutResult, error)
}

// Mirror uploads snapshots in the background. Uploads are retried a few
// times; a file that still fails is logged and counted, never re-queued.
// Files that are not snapshots are skipped.
type Mirror struct {
	client  uploader
	baseDir string
	prefix  string
	log     zerolog.Logger
	backoff time.Duration

	jobs        chan string
	enqueueWait time.Duration
	wg          sync.WaitGroup
	closeOnce   sync.Once

	enqueuedTotal       atomic.Uint64
	queueSaturatedTotal atomic.Uint64
	droppedTotal        atomic.Uint64
	uploadSuccessTotal  atomic.Uint64
	uploadFailTotal     atomic.Uint64
	lastSuccessUnix     atomic.Int64
	lastErrorUnix       atomic.Int64
}

func NewMirror(client *Client, opts MirrorOptions) *Mirror {
	return newMirror(client, opts)
}

func newMirror(client uploader, opts MirrorOptions) *Mirror {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.QueueCapacity <= 0 {
		opts.QueueCapacity = 256
	}
	if opts.EnqueueWait <= 0 {
		opts.EnqueueWait = 25 * time.Millisecond
	}
	m := &Mirror{
		client:      client,
		baseDir:     opts.BaseDir,
		prefix:      strings.Trim(strings.ReplaceAll(opts.Prefix, "\\", "/"), "/"),
		log:         zerolog.Nop(),
		backoff:     200 * time.Millisecond,
		jobs:        make(chan string, opts.QueueCapacity),
		enqueueWait: opts.EnqueueWait,
	}
	if opts.Logger != nil {
		m.log = opts.Logger.With().Str("component", "mirror").Logger()
	}
	for i := 0; i < opts.Workers; i++ {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			for localPath := range m.jobs {
				m.uploadOne(localPath)
			}
		}()
	}
	return m
}

func (m *Mirror) Enqueue(localPath string) {
	if m == nil || m.client == nil {
		return
	}
	m.enqueuedTotal.Inc()

	select {
	case m.jobs <- localPath:
		return
	default:
	}

	m.queueSaturatedTotal.Inc()
	timer := time.NewTimer(m.enqueueWait)
	defer timer.Stop()
	select {
	case m.jobs <- localPath:
		return
	case <-timer.C:
		dropped := m.droppedTotal.Inc()
		m.log.Warn().Str("local", localPath).Dur("waited", m.enqueueWait).Uint64("dropped_total", dropped).Msg("mirror queue saturated, dropping upload")
	}
}

// Close waits for queued uploads to finish.
func (m *Mirror) Close() {
	if m == nil {
		return
	}
	m.closeOnce.Do(func() {
		close(m.jobs)
		m.wg.Wait()
	})
}

func (m *Mirror) Stats() Stats {
	if m == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:          len(m.jobs),
		QueueCapacity:       cap(m.jobs),
		EnqueuedTotal:       m.enqueuedTotal.Load(),
		QueueSaturatedTotal: m.queueSaturatedTotal.Load(),
		DroppedTotal:        m.droppedTotal.Load(),
		UploadSuccessTotal:  m.uploadSuccessTotal.Load(),
		UploadFailTotal:     m.uploadFailTotal.Load(),
		LastSuccessUnix:     m.lastSuccessUnix.Load(),
		LastErrorUnix:       m.lastErrorUnix.Load(),
	}
}

func (m *Mirror) uploadOne(localPath string) {
	key, err := m.objectKey(localPath)
	if err != nil {
		m.uploadFailTotal.Inc()
		m.log.Warn().Err(err).Str("local", localPath).Msg("mirror skip")
		return
	}

	obj, hdr, err := SnapshotObject(key, localPath)
	if err != nil {
		m.uploadFailTotal.Inc()
		m.log.Warn().Err(err).Str("local", localPath).Msg("mirror skip")
		return
	}

	res, err := m.uploadWithRetry(obj)
	if err != nil {
		m.uploadFailTotal.Inc()
		m.lastErrorUnix.Store(time.Now().UTC().Unix())
		m.log.Error().Err(err).Str("key", key).Str("local", localPath).Msg("mirror upload failed")
		return
	}
	m.uploadSuccessTotal.Inc()
	m.lastSuccessUnix.Store(time.Now().UTC().Unix())
	m.log.Info().
		Str("key", res.Key).
		Int64("bytes", res.Size).
		Int("records", hdr.Records).
		Str("created_at", hdr.CreatedAt).
		Str("sha256", res.SHA256).
		Msg("mirror uploaded snapshot")
}

func (m *Mirror) uploadWithRetry(obj Object) (PutResult, error) {
	const maxAttempts = 4
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		res, err := m.client.Put(ctx, obj)
		cancel()
		if err == nil {
			return res, nil
		}
		lastErr = err
		if attempt < maxAttempts {
			time.Sleep(time.Duration(attempt*attempt) * m.backoff)
		}
	}
	return PutResult{}, lastErr
}

func (m *Mirror) objectKey(localPath string) (string, error) {
	if localPath == "" {
		return "", errors.New("r2s3: empty local path")
	}
	if _, err := os.Stat(localPath); err != nil {
		return "", err
	}

	absBase, err := filepath.Abs(m.baseDir)
	if err != nil {
		return "", err
	}
	absLocal, err := filepath.Abs(localPath)
	if err != nil {
		return "", err
	}

	rel, err := filepath.Rel(absBase, absLocal)
	if err != nil {
		return "", err
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || strings.HasPrefix(rel, "../") {
		return "", errors.Newf("r2s3: %s is outside %s", absLocal, absBase)
	}

	key := rel
	if m.prefix != "" {
		key = path.Join(m.prefix, key)
	}
	return key, nil
}

// Package indexdb keeps a queryable sqlite journal of chunk saves next to the
// world file. The world file stays the source of truth; the journal only
// answers "when and where was this chunk written" for tooling.
package indexdb

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.uber.org/atomic"
	_ "modernc.org/sqlite"

	"voxelstore.ai/internal/persistence/worldfile"
)

const defaultQueueSize = 65536

type Options struct {
	// WorldPath is recorded with the session row.
	WorldPath string
	// SessionID defaults to a random UUID.
	SessionID string
	QueueSize int
	Logger    *zerolog.Logger
	// ReadOnly opens the journal for queries only: no session row, no writer.
	ReadOnly bool
}

// SaveRow is one journaled save.
type SaveRow struct {
	ID      int64
	Session string
	CX, CZ  int32
	Offset  int64
	Length  int32
	Mode    string
	SavedAt time.Time
	// Saves counts every journaled save of the chunk; only set by Latest.
	Saves int64
}

type JournalStats struct {
	Written       int64
	Dropped       int64
	QueueDepth    int
	QueueCapacity int
}

// Journal records world file saves asynchronously. It implements
// worldfile.SaveObserver; RecordSave never blocks the saving goroutine and
// drops rows when the writer falls behind.
type Journal struct {
	db       *sql.DB
	session  string
	log      zerolog.Logger
	readOnly bool

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed  atomic.Bool
	written atomic.Int64
	dropped atomic.Int64
}

var _ worldfile.SaveObserver = (*Journal)(nil)

type reqKind int

const (
	reqSave reqKind = iota + 1
	reqFlush
)

type req struct {
	kind reqKind
	save worldfile.SaveEvent
	done chan struct{}
}

func OpenJournal(path string, opts Options) (*Journal, error) {
	if path == "" {
		return nil, errors.New("indexdb: empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	if opts.ReadOnly {
		j := &Journal{db: db, log: zerolog.Nop(), readOnly: true, ch: make(chan req)}
		j.closed.Store(true)
		return j, nil
	}

	session := opts.SessionID
	if session == "" {
		session = uuid.NewString()
	}
	if _, err := db.Exec(`INSERT OR REPLACE INTO sessions(id, world_path, started_at) VALUES(?,?,?)`,
		session, opts.WorldPath, time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "indexdb: record session")
	}

	size := opts.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	j := &Journal{
		db:      db,
		session: session,
		log:     zerolog.Nop(),
		ch:      make(chan req, size),
	}
	if opts.Logger != nil {
		j.log = opts.Logger.With().Str("component", "journal").Str("session", session).Logger()
	}
	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		j.loop()
	}()
	return j, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			world_path TEXT NOT NULL,
			started_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS chunk_saves (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session TEXT NOT NULL,
			cx INTEGER NOT NULL,
			cz INTEGER NOT NULL,
			file_offset INTEGER NOT NULL,
			length INTEGER NOT NULL,
			mode TEXT NOT NULL,
			saved_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_chunk_saves_pos ON chunk_saves(cx, cz, id);`,
		`CREATE TABLE IF NOT EXISTS chunk_latest (
			cx INTEGER NOT NULL,
			cz INTEGER NOT NULL,
			session TEXT NOT NULL,
			file_offset INTEGER NOT NULL,
			length INTEGER NOT NULL,
			mode TEXT NOT NULL,
			saved_at TEXT NOT NULL,
			saves INTEGER NOT NULL,
			PRIMARY KEY (cx, cz)
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (j *Journal) Session() string { return j.session }

// RecordSave queues ev for the writer goroutine.
func (j *Journal) RecordSave(ev worldfile.SaveEvent) {
	if j == nil || j.closed.Load() {
		return
	}
	select {
	case j.ch <- req{kind: reqSave, save: ev}:
	default:
		// The world file already has the data; only the journal row is lost.
		j.dropped.Inc()
	}
}

// Flush waits until every row queued before the call is committed.
func (j *Journal) Flush(ctx context.Context) error {
	if j.readOnly {
		return nil
	}
	if j.closed.Load() {
		return errors.New("indexdb: journal closed")
	}
	done := make(chan struct{})
	select {
	case j.ch <- req{kind: reqFlush, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (j *Journal) Stats() JournalStats {
	return JournalStats{
		Written:       j.written.Load(),
		Dropped:       j.dropped.Load(),
		QueueDepth:    len(j.ch),
		QueueCapacity: cap(j.ch),
	}
}

func (j *Journal) Close() error {
	var err error
	j.once.Do(func() {
		j.closed.Store(true)
		close(j.ch)
		j.wg.Wait()
		err = j.db.Close()
	})
	return err
}

func (j *Journal) loop() {
	ctx := context.Background()

	insertSave, err := j.db.Prepare(`INSERT INTO chunk_saves(session,cx,cz,file_offset,length,mode,saved_at) VALUES(?,?,?,?,?,?,?)`)
	if err != nil {
		j.log.Error().Err(err).Msg("prepare insert")
	}
	upsertLatest, err := j.db.Prepare(`INSERT INTO chunk_latest(cx,cz,session,file_offset,length,mode,saved_at,saves) VALUES(?,?,?,?,?,?,?,1)
		ON CONFLICT(cx,cz) DO UPDATE SET
			session=excluded.session,
			file_offset=excluded.file_offset,
			length=excluded.length,
			mode=excluded.mode,
			saved_at=excluded.saved_at,
			saves=chunk_latest.saves+1`)
	if err != nil {
		j.log.Error().Err(err).Msg("prepare upsert")
	}
	defer func() {
		if insertSave != nil {
			_ = insertSave.Close()
		}
		if upsertLatest != nil {
			_ = upsertLatest.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		pending       int64
		commitEvery   = 500
		commitMaxWait = time.Second
	)
	ticker := time.NewTicker(commitMaxWait)
	defer ticker.Stop()

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := j.db.BeginTx(ctx, nil)
		if err != nil {
			j.log.Error().Err(err).Msg("begin")
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
	}
	commit := func() {
		if tx == nil {
			return
		}
		if err := tx.Commit(); err != nil {
			j.log.Error().Err(err).Msg("commit")
		} else {
			j.written.Add(pending)
		}
		tx = nil
		opCount = 0
		pending = 0
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		j.dropped.Add(pending)
		tx = nil
		opCount = 0
		pending = 0
	}

	for {
		select {
		case r, ok := <-j.ch:
			if !ok {
				commit()
				return
			}
			switch r.kind {
			case reqFlush:
				commit()
				close(r.done)
				continue
			case reqSave:
				begin()
				if tx == nil || insertSave == nil || upsertLatest == nil {
					j.dropped.Inc()
					continue
				}
				ev := r.save
				at := ev.At
				if at.IsZero() {
					at = time.Now().UTC()
				}
				ts := at.Format(time.RFC3339Nano)
				if _, err := tx.Stmt(insertSave).Exec(j.session, ev.CX, ev.CZ, ev.Offset, ev.Length, string(ev.Mode), ts); err != nil {
					j.log.Error().Err(err).Int32("cx", ev.CX).Int32("cz", ev.CZ).Msg("insert save")
					j.dropped.Inc()
					rollback()
					continue
				}
				if _, err := tx.Stmt(upsertLatest).Exec(ev.CX, ev.CZ, j.session, ev.Offset, ev.Length, string(ev.Mode), ts); err != nil {
					j.log.Error().Err(err).Int32("cx", ev.CX).Int32("cz", ev.CZ).Msg("upsert latest")
					j.dropped.Inc()
					rollback()
					continue
				}
				opCount++
				pending++
				if opCount >= commitEvery {
					commit()
				}
			}
		case <-ticker.C:
			commit()
		}
	}
}

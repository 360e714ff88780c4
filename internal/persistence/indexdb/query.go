package indexdb

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"
)

type Session struct {
	ID        string
	WorldPath string
	StartedAt time.Time
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

// History returns the journaled saves of (cx, cz), newest first. A limit <= 0
// returns every row.
func (j *Journal) History(ctx context.Context, cx, cz int32, limit int) ([]SaveRow, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := j.db.QueryContext(ctx, `SELECT id, session, cx, cz, file_offset, length, mode, saved_at
		FROM chunk_saves WHERE cx = ? AND cz = ? ORDER BY id DESC LIMIT ?`, cx, cz, limit)
	if err != nil {
		return nil, errors.Wrap(err, "indexdb: history")
	}
	defer rows.Close()
	var out []SaveRow
	for rows.Next() {
		var (
			r  SaveRow
			ts string
		)
		if err := rows.Scan(&r.ID, &r.Session, &r.CX, &r.CZ, &r.Offset, &r.Length, &r.Mode, &ts); err != nil {
			return nil, err
		}
		r.SavedAt = parseTime(ts)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Latest returns the newest journaled save of (cx, cz).
func (j *Journal) Latest(ctx context.Context, cx, cz int32) (SaveRow, bool, error) {
	var (
		r  = SaveRow{CX: cx, CZ: cz}
		ts string
	)
	err := j.db.QueryRowContext(ctx, `SELECT session, file_offset, length, mode, saved_at, saves
		FROM chunk_latest WHERE cx = ? AND cz = ?`, cx, cz).
		Scan(&r.Session, &r.Offset, &r.Length, &r.Mode, &ts, &r.Saves)
	if errors.Is(err, sql.ErrNoRows) {
		return SaveRow{}, false, nil
	}
	if err != nil {
		return SaveRow{}, false, errors.Wrap(err, "indexdb: latest")
	}
	r.SavedAt = parseTime(ts)
	return r, true, nil
}

func (j *Journal) Sessions(ctx context.Context) ([]Session, error) {
	rows, err := j.db.QueryContext(ctx, `SELECT id, world_path, started_at FROM sessions ORDER BY started_at`)
	if err != nil {
		return nil, errors.Wrap(err, "indexdb: sessions")
	}
	defer rows.Close()
	var out []Session
	for rows.Next() {
		var (
			s  Session
			ts string
		)
		if err := rows.Scan(&s.ID, &s.WorldPath, &ts); err != nil {
			return nil, err
		}
		s.StartedAt = parseTime(ts)
		out = append(out, s)
	}
	return out, rows.Err()
}

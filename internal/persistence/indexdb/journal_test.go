package indexdb

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"voxelstore.ai/internal/persistence/worldfile"
)

func openJournal(t *testing.T, opts Options) *Journal {
	t.Helper()
	j, err := OpenJournal(filepath.Join(t.TempDir(), "journal.sqlite"), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestJournalRecordsSaves(t *testing.T) {
	j := openJournal(t, Options{WorldPath: "world.wvld"})
	_, err := uuid.Parse(j.Session())
	require.NoError(t, err)

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	j.RecordSave(worldfile.SaveEvent{CX: 3, CZ: -2, Offset: 16, Length: 500, Mode: worldfile.SaveAppend, At: at})
	j.RecordSave(worldfile.SaveEvent{CX: 3, CZ: -2, Offset: 528, Length: 50000, Mode: worldfile.SaveAppend, At: at.Add(time.Second)})
	j.RecordSave(worldfile.SaveEvent{CX: 3, CZ: -2, Offset: 528, Length: 400, Mode: worldfile.SaveInPlace, At: at.Add(2 * time.Second)})
	j.RecordSave(worldfile.SaveEvent{CX: 0, CZ: 0, Offset: 50540, Length: 10, Mode: worldfile.SaveAppend, At: at})
	require.NoError(t, j.Flush(context.Background()))

	ctx := context.Background()
	hist, err := j.History(ctx, 3, -2, 0)
	require.NoError(t, err)
	require.Len(t, hist, 3)
	require.Equal(t, "inplace", hist[0].Mode)
	require.Equal(t, int32(400), hist[0].Length)
	require.Equal(t, at.Add(2*time.Second), hist[0].SavedAt)
	require.Equal(t, j.Session(), hist[0].Session)

	hist, err = j.History(ctx, 3, -2, 1)
	require.NoError(t, err)
	require.Len(t, hist, 1)

	latest, ok, err := j.Latest(ctx, 3, -2)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(528), latest.Offset)
	require.Equal(t, int64(3), latest.Saves)

	_, ok, err = j.Latest(ctx, 9, 9)
	require.NoError(t, err)
	require.False(t, ok)

	sessions, err := j.Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.Equal(t, "world.wvld", sessions[0].WorldPath)
	require.Equal(t, int64(4), j.Stats().Written)
}

func TestJournalAsSaveObserver(t *testing.T) {
	dir := t.TempDir()
	j, err := OpenJournal(filepath.Join(dir, "journal.sqlite"), Options{SessionID: "s1"})
	require.NoError(t, err)
	defer j.Close()

	f, err := worldfile.Open(filepath.Join(dir, "world.wvld"), worldfile.Options{Observer: j})
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, f.SaveChunk(1, 1, make([]byte, 100)))
	require.NoError(t, f.SaveChunk(1, 1, make([]byte, 50)))
	require.NoError(t, j.Flush(context.Background()))

	hist, err := j.History(context.Background(), 1, 1, 0)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	require.Equal(t, "inplace", hist[0].Mode)
	require.Equal(t, int64(worldfile.HeaderSize), hist[0].Offset)
	require.Equal(t, "s1", hist[1].Session)
}

func TestJournalDropsWhenQueueFull(t *testing.T) {
	j := &Journal{ch: make(chan req, 1)}
	j.RecordSave(worldfile.SaveEvent{CX: 1})
	j.RecordSave(worldfile.SaveEvent{CX: 2})
	st := j.Stats()
	require.Equal(t, int64(1), st.Dropped)
	require.Equal(t, 1, st.QueueDepth)
	require.Equal(t, 1, st.QueueCapacity)
}

func TestJournalSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.sqlite")
	j, err := OpenJournal(path, Options{SessionID: "a"})
	require.NoError(t, err)
	j.RecordSave(worldfile.SaveEvent{CX: 5, CZ: 5, Offset: 16, Length: 1, Mode: worldfile.SaveAppend})
	require.NoError(t, j.Close())

	j2, err := OpenJournal(path, Options{SessionID: "b"})
	require.NoError(t, err)
	defer j2.Close()
	hist, err := j2.History(context.Background(), 5, 5, 0)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	require.Equal(t, "a", hist[0].Session)
	sessions, err := j2.Sessions(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 2)
}

func TestReadOnlyJournal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.sqlite")
	w, err := OpenJournal(path, Options{WorldPath: "w"})
	require.NoError(t, err)
	w.RecordSave(worldfile.SaveEvent{CX: 1, CZ: 1, Offset: 16, Length: 9, Mode: worldfile.SaveAppend, At: time.Now()})
	require.NoError(t, w.Close())

	r, err := OpenJournal(path, Options{ReadOnly: true})
	require.NoError(t, err)
	defer r.Close()
	r.RecordSave(worldfile.SaveEvent{CX: 2, CZ: 2, Offset: 16, Length: 9, Mode: worldfile.SaveAppend, At: time.Now()})
	require.NoError(t, r.Flush(context.Background()))

	ctx := context.Background()
	sessions, err := r.Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	hist, err := r.History(ctx, 1, 1, 0)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	hist, err = r.History(ctx, 2, 2, 0)
	require.NoError(t, err)
	require.Empty(t, hist)
}

package log

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/require"
)

func readZstd(t *testing.T, path string) string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	dec, err := zstd.NewReader(f)
	require.NoError(t, err)
	defer dec.Close()
	var buf bytes.Buffer
	_, err = io.Copy(&buf, dec)
	require.NoError(t, err)
	return buf.String()
}

func TestWriterRotatesHourly(t *testing.T) {
	dir := t.TempDir()
	w := NewJSONLZstdWriter(dir, "server")
	now := time.Date(2026, 3, 1, 10, 59, 0, 0, time.UTC)
	w.now = func() time.Time { return now }

	_, err := w.Write([]byte(`{"a":1}` + "\n"))
	require.NoError(t, err)
	_, err = w.Write([]byte(`{"a":2}`))
	require.NoError(t, err)
	now = now.Add(2 * time.Minute)
	_, err = w.Write([]byte(`{"a":3}` + "\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	first := readZstd(t, filepath.Join(dir, "server-2026-03-01-10.jsonl.zst"))
	require.Equal(t, "{\"a\":1}\n{\"a\":2}\n", first)
	second := readZstd(t, filepath.Join(dir, "server-2026-03-01-11.jsonl.zst"))
	require.Equal(t, "{\"a\":3}\n", second)
}

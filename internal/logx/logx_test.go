package logx

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	l, c, err := New(Config{Level: "warn", Format: "json", Out: &buf})
	require.NoError(t, err)
	defer c.Close()

	l.Info().Msg("hidden")
	l.Warn().Int32("cx", 3).Msg("shown")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec))
	require.Equal(t, "shown", rec["message"])
	require.Equal(t, float64(3), rec["cx"])
	require.Equal(t, "warn", rec["level"])
}

func TestFileTee(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	l, c, err := New(Config{Format: "console", Dir: dir, Prefix: "test", Out: &buf})
	require.NoError(t, err)
	l.Info().Msg("hello")
	require.NoError(t, c.Close())
	require.Contains(t, buf.String(), "hello")

	matches, err := filepath.Glob(filepath.Join(dir, "test-*.jsonl.zst"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	fi, err := os.Stat(matches[0])
	require.NoError(t, err)
	require.Greater(t, fi.Size(), int64(0))
}

func TestBadConfig(t *testing.T) {
	_, _, err := New(Config{Level: "loud"})
	require.Error(t, err)
	_, _, err = New(Config{Format: "xml"})
	require.Error(t, err)
}

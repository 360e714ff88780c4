package tuning

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "voxelstore.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoadSampleConfig(t *testing.T) {
	cfg, err := Load("../../../configs/voxelstore.yaml")
	require.NoError(t, err)
	require.Equal(t, int64(1337), cfg.Gen.Seed)
	require.Equal(t, 128, cfg.Gen.Height)
	require.Equal(t, "data/world.wvld", cfg.World.Path)
	require.Equal(t, uint8(24), cfg.SectionOptions().MaxPaletteBits)
	require.Equal(t, "data/backups", cfg.Backup.Dir)
	require.Equal(t, 24, cfg.Backup.Keep)
}

func TestLoadEmptyPathGivesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Defaults().World, cfg.World)
	require.Equal(t, 4, cfg.Chunks.PrefetchWorkers)
}

func TestPartialFileKeepsDefaults(t *testing.T) {
	cfg, err := Load(writeYAML(t, "gen:\n  seed: 9\nlog:\n  level: DEBUG\n"))
	require.NoError(t, err)
	require.Equal(t, int64(9), cfg.Gen.Seed)
	require.Equal(t, Defaults().Gen.Height, cfg.Gen.Height)
	require.Equal(t, "debug", cfg.Log.Level)
	require.Equal(t, Defaults().Chunks.SaveInterval(), cfg.Chunks.SaveInterval())
}

func TestSchemaRejects(t *testing.T) {
	cases := map[string]string{
		"unknown key":     "world:\n  paht: x\n",
		"bad height":      "gen:\n  height: 20\n",
		"bad compression": "world:\n  compression: ultra\n",
		"bad type":        "chunks:\n  view_radius: far\n",
		"palette bits":    "world:\n  max_palette_bits: 40\n",
		"backup interval": "backup:\n  interval_ms: 5\n",
	}
	for name, body := range cases {
		_, err := Load(writeYAML(t, body))
		require.Error(t, err, name)
	}
}

func TestValidateCrossFieldRules(t *testing.T) {
	cfg := Defaults()
	cfg.Chunks.SpawnRadius = cfg.Chunks.ViewRadius + 1
	require.Error(t, cfg.Validate())

	cfg = Defaults()
	cfg.Gen.BaseHeight = cfg.Gen.Height
	require.Error(t, cfg.Validate())

	cfg = Defaults()
	cfg.World.Path = ""
	require.Error(t, cfg.Validate())

	cfg = Defaults()
	cfg.Backup.Dir = "b"
	cfg.Backup.IntervalMs = 0
	require.Error(t, cfg.Validate())
}

func TestEmptyDocumentIsValid(t *testing.T) {
	require.NoError(t, ValidateDocument([]byte("")))
	require.NoError(t, ValidateDocument([]byte("world:\n  sync: true\n")))
}

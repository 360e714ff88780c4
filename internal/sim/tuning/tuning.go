// Package tuning loads the voxelstore YAML configuration.
package tuning

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"voxelstore.ai/internal/sim/world/terrain/chunkrec"
	"voxelstore.ai/internal/sim/world/terrain/gen"
	"voxelstore.ai/internal/sim/world/terrain/section"
)

//go:embed schema.json
var schemaJSON []byte

const schemaURL = "voxelstore.schema.json"

type Tuning struct {
	World   World      `yaml:"world"`
	Gen     gen.Params `yaml:"gen"`
	Blocks  Blocks     `yaml:"blocks"`
	Chunks  Chunks     `yaml:"chunks"`
	Journal Journal    `yaml:"journal"`
	Backup  Backup     `yaml:"backup"`
	Log     Log        `yaml:"log"`
	Metrics Metrics    `yaml:"metrics"`
}

type World struct {
	Path           string `yaml:"path"`
	Sync           bool   `yaml:"sync"`
	Compression    string `yaml:"compression"`
	MaxPaletteBits int    `yaml:"max_palette_bits"`
}

type Blocks struct {
	// Catalog is a JSON block list; empty means the built-in one.
	Catalog string `yaml:"catalog"`
}

type Chunks struct {
	PrefetchWorkers  int `yaml:"prefetch_workers"`
	BoundaryR        int `yaml:"boundary_r"`
	ViewRadius       int `yaml:"view_radius"`
	SpawnRadius      int `yaml:"spawn_radius"`
	UnloadIntervalMs int `yaml:"unload_interval_ms"`
	SaveIntervalMs   int `yaml:"save_interval_ms"`
}

type Journal struct {
	// Path of the sqlite save journal; empty disables it.
	Path string `yaml:"path"`
}

// Backup configures periodic world snapshots. An empty Dir disables them.
type Backup struct {
	Dir        string `yaml:"dir"`
	IntervalMs int    `yaml:"interval_ms"`
	// Keep is how many snapshots stay in Dir; 0 keeps all of them.
	Keep int `yaml:"keep"`
	// MirrorPrefix is the object key prefix used when uploads are enabled.
	MirrorPrefix string `yaml:"mirror_prefix"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	// Dir additionally writes hourly zstd JSONL files when set.
	Dir string `yaml:"dir"`
}

type Metrics struct {
	// Addr serves /metrics when set.
	Addr string `yaml:"addr"`
}

func Defaults() Tuning {
	return Tuning{
		World: World{
			Path:           "data/world.wvld",
			Compression:    "default",
			MaxPaletteBits: int(section.DefaultMaxPaletteBits),
		},
		Gen: gen.DefaultParams(),
		Chunks: Chunks{
			PrefetchWorkers:  4,
			ViewRadius:       8,
			SpawnRadius:      4,
			UnloadIntervalMs: 1000,
			SaveIntervalMs:   5000,
		},
		Journal: Journal{Path: "data/journal.sqlite"},
		Backup:  Backup{IntervalMs: 3600000, Keep: 24},
		Log:     Log{Level: "info", Format: "console"},
		Metrics: Metrics{Addr: ":9108"},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Tuning, error) {
	t := Defaults()
	if strings.TrimSpace(path) == "" {
		t.Normalize()
		return t, t.Validate()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := ValidateDocument(raw); err != nil {
		return t, errors.Wrapf(err, "%s", path)
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, errors.Wrapf(err, "%s", path)
	}
	t.Normalize()
	if err := t.Validate(); err != nil {
		return t, errors.Wrapf(err, "%s", path)
	}
	return t, nil
}

var schema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
		return nil, err
	}
	return c.Compile(schemaURL)
})

// ValidateDocument checks a raw YAML document against the embedded schema.
func ValidateDocument(raw []byte) error {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return err
	}
	if doc == nil {
		return nil
	}
	// The validator wants JSON-shaped values.
	js, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(js))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return err
	}
	s, err := schema()
	if err != nil {
		return err
	}
	return s.Validate(v)
}

func (t *Tuning) Normalize() {
	if t == nil {
		return
	}
	t.World.Path = strings.TrimSpace(t.World.Path)
	t.World.Compression = strings.ToLower(strings.TrimSpace(t.World.Compression))
	if t.World.MaxPaletteBits == 0 {
		t.World.MaxPaletteBits = int(section.DefaultMaxPaletteBits)
	}
	if t.Chunks.PrefetchWorkers <= 0 {
		t.Chunks.PrefetchWorkers = 4
	}
	if t.Gen.NoiseCell <= 0 {
		t.Gen.NoiseCell = 1
	}
	t.Log.Level = strings.ToLower(strings.TrimSpace(t.Log.Level))
	if t.Log.Level == "" {
		t.Log.Level = "info"
	}
	if t.Log.Format == "" {
		t.Log.Format = "console"
	}
	t.Journal.Path = strings.TrimSpace(t.Journal.Path)
	t.Backup.Dir = strings.TrimSpace(t.Backup.Dir)
}

func (t Tuning) Validate() error {
	if t.World.Path == "" {
		return errors.New("world.path is required")
	}
	if _, err := chunkrec.ParseLevel(t.World.Compression); err != nil {
		return err
	}
	if lo, hi := int(section.MinPaletteBits), int(section.DirectBits); t.World.MaxPaletteBits < lo || t.World.MaxPaletteBits >= hi {
		return errors.Newf("world.max_palette_bits %d outside [%d,%d)", t.World.MaxPaletteBits, lo, hi)
	}
	if err := t.Gen.Validate(); err != nil {
		return err
	}
	if t.Chunks.ViewRadius < t.Chunks.SpawnRadius {
		return errors.Newf("chunks.view_radius %d is smaller than spawn_radius %d", t.Chunks.ViewRadius, t.Chunks.SpawnRadius)
	}
	if t.Chunks.UnloadIntervalMs <= 0 || t.Chunks.SaveIntervalMs <= 0 {
		return errors.New("chunks intervals must be positive")
	}
	if t.Backup.Dir != "" && t.Backup.IntervalMs <= 0 {
		return errors.New("backup.interval_ms must be positive")
	}
	if t.Backup.Keep < 0 {
		return errors.Newf("backup.keep %d is negative", t.Backup.Keep)
	}
	switch t.Log.Format {
	case "console", "json":
	default:
		return errors.Newf("log.format %q", t.Log.Format)
	}
	return nil
}

func (t Tuning) SectionOptions() section.Options {
	return section.Options{MaxPaletteBits: uint8(t.World.MaxPaletteBits)}
}

func (t Tuning) CodecConfig() chunkrec.CodecConfig {
	return chunkrec.CodecConfig{Level: t.World.Compression, Section: t.SectionOptions()}
}

func (c Chunks) UnloadInterval() time.Duration {
	return time.Duration(c.UnloadIntervalMs) * time.Millisecond
}

func (b Backup) Interval() time.Duration {
	return time.Duration(b.IntervalMs) * time.Millisecond
}

func (c Chunks) SaveInterval() time.Duration {
	return time.Duration(c.SaveIntervalMs) * time.Millisecond
}

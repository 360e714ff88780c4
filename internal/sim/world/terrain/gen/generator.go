package gen

import (
	"github.com/cockroachdb/errors"

	"voxelstore.ai/internal/sim/blocks"
	"voxelstore.ai/internal/sim/world/terrain/chunkrec"
	"voxelstore.ai/internal/sim/world/terrain/section"
)

type Params struct {
	Seed   int64 `yaml:"seed" json:"seed"`
	Height int   `yaml:"height" json:"height"`

	SeaLevel   int `yaml:"sea_level" json:"sea_level"`
	BaseHeight int `yaml:"base_height" json:"base_height"`
	// Relief is the maximum distance of the surface from BaseHeight.
	Relief    int `yaml:"relief" json:"relief"`
	NoiseCell int `yaml:"noise_cell" json:"noise_cell"`

	BiomeRegionSize             int `yaml:"biome_region_size" json:"biome_region_size"`
	SpawnClearRadius            int `yaml:"spawn_clear_radius" json:"spawn_clear_radius"`
	OreClusterProbScalePermille int `yaml:"ore_cluster_prob_scale_permille" json:"ore_cluster_prob_scale_permille"`
	TreePermille                int `yaml:"tree_permille" json:"tree_permille"`
}

func DefaultParams() Params {
	return Params{
		Seed:                        1,
		Height:                      128,
		SeaLevel:                    40,
		BaseHeight:                  48,
		Relief:                      20,
		NoiseCell:                   32,
		BiomeRegionSize:             256,
		SpawnClearRadius:            8,
		OreClusterProbScalePermille: 1000,
		TreePermille:                20,
	}
}

func (p Params) Validate() error {
	if p.Height < section.Size || p.Height%section.Size != 0 {
		return errors.Newf("gen: height %d is not a positive multiple of %d", p.Height, section.Size)
	}
	if p.BaseHeight < 2 || p.BaseHeight >= p.Height {
		return errors.Newf("gen: base_height %d outside [2,%d)", p.BaseHeight, p.Height)
	}
	if p.SeaLevel < 0 || p.SeaLevel >= p.Height {
		return errors.Newf("gen: sea_level %d outside [0,%d)", p.SeaLevel, p.Height)
	}
	if p.Relief < 0 {
		return errors.Newf("gen: relief %d is negative", p.Relief)
	}
	return nil
}

type ore struct {
	seed   int64
	grid   int
	radius int
	prob   uint64
	id     section.BlockID
}

// Terrain is a seeded heightmap generator with biomes, ore pockets and trees.
// It is safe for concurrent use.
type Terrain struct {
	p    Params
	opts section.Options

	air, bedrock, stone, dirt, grass, sand, gravel, water, log, leaves section.BlockID

	ores []ore
}

// NewTerrain resolves block names through cat (nil means the built-in
// catalog) and checks p.
func NewTerrain(p Params, cat *blocks.Catalog, opts section.Options) (*Terrain, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if cat == nil {
		cat = blocks.DefaultCatalog()
	}
	var missing []string
	id := func(name string) section.BlockID {
		v, ok := cat.ID(name)
		if !ok {
			missing = append(missing, name)
		}
		return v
	}
	t := &Terrain{
		p:       p,
		opts:    opts,
		air:     id("AIR"),
		bedrock: id("BEDROCK"),
		stone:   id("STONE"),
		dirt:    id("DIRT"),
		grass:   id("GRASS"),
		sand:    id("SAND"),
		gravel:  id("GRAVEL"),
		water:   id("WATER"),
		log:     id("LOG"),
		leaves:  id("LEAVES"),
	}
	scale := p.OreClusterProbScalePermille
	t.ores = []ore{
		{seed: p.Seed + 101, grid: 96, radius: 2, prob: ScalePermille(200, scale), id: id("CRYSTAL_ORE")},
		{seed: p.Seed + 102, grid: 48, radius: 3, prob: ScalePermille(450, scale), id: id("IRON_ORE")},
		{seed: p.Seed + 103, grid: 48, radius: 3, prob: ScalePermille(450, scale), id: id("COPPER_ORE")},
		{seed: p.Seed + 104, grid: 32, radius: 4, prob: ScalePermille(650, scale), id: id("COAL_ORE")},
	}
	if len(missing) > 0 {
		return nil, errors.Newf("gen: catalog lacks %v", missing)
	}
	t.log = blocks.WithState(t.log, blocks.AxisY)
	return t, nil
}

func (t *Terrain) Params() Params { return t.p }

// SurfaceAt returns the number of solid blocks in the world column (wx, wz);
// the top solid block sits at SurfaceAt-1.
func (t *Terrain) SurfaceAt(wx, wz int) int {
	if WithinSpawnClear(wx, wz, t.p.SpawnClearRadius) {
		return t.p.BaseHeight
	}
	n := ValueNoise(t.p.Seed+7, wx, wz, t.p.NoiseCell)
	h := t.p.BaseHeight + (n-500)*t.p.Relief/500
	if h < 2 {
		h = 2
	}
	if h > t.p.Height-1 {
		h = t.p.Height - 1
	}
	return h
}

type colWriter struct {
	col *chunkrec.Column
	err error
}

func (w *colWriter) fill(x, z, y0, y1 int, id section.BlockID) {
	if w.err != nil || y0 >= y1 {
		return
	}
	w.err = w.col.FillColumn(x, z, y0, y1, id)
}

func (w *colWriter) setIf(x, y, z int, want, id section.BlockID) {
	if w.err != nil {
		return
	}
	cur, err := w.col.Get(x, y, z)
	if err != nil {
		w.err = err
		return
	}
	if cur == want {
		w.err = w.col.Set(x, y, z, id)
	}
}

// Generate builds the column at chunk (cx, cz).
func (t *Terrain) Generate(cx, cz int32) (*chunkrec.Column, error) {
	col, err := chunkrec.NewColumn(cx, cz, t.p.Height, t.air, t.opts)
	if err != nil {
		return nil, err
	}
	w := &colWriter{col: col}
	var surface [section.Size * section.Size]int

	for z := 0; z < section.Size; z++ {
		for x := 0; x < section.Size; x++ {
			wx := int(cx)*section.Size + x
			wz := int(cz)*section.Size + z
			h := t.SurfaceAt(wx, wz)
			surface[x+z*section.Size] = h
			biome := BiomeAt(t.p.Seed, wx, wz, t.p.BiomeRegionSize)

			top, sub := t.grass, t.dirt
			switch {
			case biome == Desert:
				top, sub = t.sand, t.sand
			case h <= t.p.SeaLevel:
				top = t.gravel
			}
			stoneTop := h - 3
			if stoneTop < 1 {
				stoneTop = 1
			}

			w.fill(x, z, 0, 1, t.bedrock)
			w.fill(x, z, 1, stoneTop, t.stone)
			w.fill(x, z, stoneTop, h-1, sub)
			w.fill(x, z, h-1, h, top)
			if h < t.p.SeaLevel {
				w.fill(x, z, h, t.p.SeaLevel, t.water)
			}

			if WithinSpawnClear(wx, wz, t.p.SpawnClearRadius) || stoneTop <= 2 {
				continue
			}
			for _, o := range t.ores {
				hsh, ok := ClusterCenter(o.seed, wx, wz, o.grid, o.radius, o.prob)
				if !ok {
					continue
				}
				y0 := 1 + int((hsh>>32)%uint64(stoneTop-1))
				y1 := y0 + 3
				if y1 > stoneTop {
					y1 = stoneTop
				}
				w.fill(x, z, y0, y1, o.id)
				break
			}
		}
	}

	// Trees go in a second pass so neighbouring columns cannot overwrite
	// their leaves. Trunks stay one block away from the chunk edge.
	for z := 1; z < section.Size-1; z++ {
		for x := 1; x < section.Size-1; x++ {
			wx := int(cx)*section.Size + x
			wz := int(cz)*section.Size + z
			h := surface[x+z*section.Size]
			if h+6 > t.p.Height || h < t.p.SeaLevel || WithinSpawnClear(wx, wz, t.p.SpawnClearRadius) {
				continue
			}
			if BiomeAt(t.p.Seed, wx, wz, t.p.BiomeRegionSize) != Forest {
				continue
			}
			if Hash2(t.p.Seed+999, wx, wz)%1000 >= uint64(ClampPermille(t.p.TreePermille)) {
				continue
			}
			w.fill(x, z, h, h+4, t.log)
			w.fill(x, z, h+4, h+6, t.leaves)
			for _, d := range [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
				for y := h + 2; y < h+5; y++ {
					w.setIf(x+d[0], y, z+d[1], t.air, t.leaves)
				}
			}
		}
	}
	if w.err != nil {
		return nil, errors.Wrapf(w.err, "gen: chunk (%d,%d)", cx, cz)
	}
	return col, nil
}

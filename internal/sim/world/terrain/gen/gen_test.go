package gen

import (
	"testing"

	"github.com/stretchr/testify/require"

	"voxelstore.ai/internal/sim/blocks"
	"voxelstore.ai/internal/sim/world/terrain/section"
)

func TestValueNoiseRange(t *testing.T) {
	for x := -100; x < 100; x += 7 {
		for z := -100; z < 100; z += 11 {
			n := ValueNoise(3, x, z, 16)
			require.GreaterOrEqual(t, n, 0)
			require.LessOrEqual(t, n, 1000)
		}
	}
	// Lattice points carry the raw hash value.
	require.Equal(t, int(Hash2(3, 2, -1)%1001), ValueNoise(3, 32, -16, 16))
}

func TestBiomeAtIsRegional(t *testing.T) {
	b := BiomeAt(5, 0, 0, 64)
	for x := 0; x < 64; x += 9 {
		require.Equal(t, b, BiomeAt(5, x, 63-x, 64))
	}
	require.Equal(t, "DESERT", Desert.String())
}

func TestScalePermille(t *testing.T) {
	require.Equal(t, uint64(450), ScalePermille(450, 0))
	require.Equal(t, uint64(225), ScalePermille(450, 500))
	require.Equal(t, uint64(1000), ScalePermille(900, 2000))
	require.Equal(t, 0, ClampPermille(-3))
}

func TestParamsValidate(t *testing.T) {
	require.NoError(t, DefaultParams().Validate())
	p := DefaultParams()
	p.Height = 100
	require.Error(t, p.Validate())
	p = DefaultParams()
	p.BaseHeight = p.Height
	require.Error(t, p.Validate())
	p = DefaultParams()
	p.Relief = -1
	require.Error(t, p.Validate())
}

func TestGenerateDeterministic(t *testing.T) {
	p := DefaultParams()
	p.Height = 64
	p.BaseHeight = 30
	p.SeaLevel = 24
	p.Relief = 12
	p.TreePermille = 300
	tr, err := NewTerrain(p, nil, section.Options{})
	require.NoError(t, err)

	a, err := tr.Generate(4, -7)
	require.NoError(t, err)
	b, err := tr.Generate(4, -7)
	require.NoError(t, err)
	require.Equal(t, int32(4), a.CX)
	require.Equal(t, int32(-7), a.CZ)
	require.Equal(t, a.Dense(), b.Dense())

	cat := blocks.DefaultCatalog()
	for z := 0; z < 16; z++ {
		for x := 0; x < 16; x++ {
			id, err := a.Get(x, 0, z)
			require.NoError(t, err)
			require.Equal(t, "BEDROCK", cat.Name(id))
			top, err := a.Get(x, p.Height-1, z)
			require.NoError(t, err)
			require.Equal(t, "AIR", cat.Name(top))
		}
	}
}

func TestSpawnAreaIsFlat(t *testing.T) {
	p := DefaultParams()
	tr, err := NewTerrain(p, nil, section.Options{})
	require.NoError(t, err)
	col, err := tr.Generate(0, 0)
	require.NoError(t, err)
	cat := blocks.DefaultCatalog()
	for x := 0; x < 4; x++ {
		require.Equal(t, p.BaseHeight, tr.SurfaceAt(x, x))
		id, err := col.Get(x, p.BaseHeight, x)
		require.NoError(t, err)
		require.Equal(t, "AIR", cat.Name(id))
		id, err = col.Get(x, p.BaseHeight-1, x)
		require.NoError(t, err)
		require.NotEqual(t, "AIR", cat.Name(id))
	}
}

func TestNewTerrainNeedsBlocks(t *testing.T) {
	cat, err := blocks.ParseCatalog([]byte(`[{"id":"AIR"},{"id":"STONE"}]`))
	require.NoError(t, err)
	_, err = NewTerrain(DefaultParams(), cat, section.Options{})
	require.Error(t, err)
}

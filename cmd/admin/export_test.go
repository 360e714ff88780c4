package main

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"voxelstore.ai/internal/sim/blocks"
	"voxelstore.ai/internal/sim/world/terrain/gen"
	"voxelstore.ai/internal/sim/world/terrain/section"
)

func TestExportImportRoundTrip(t *testing.T) {
	cat := blocks.DefaultCatalog()
	p := gen.DefaultParams()
	p.Height = 64
	p.SeaLevel = 20
	p.BaseHeight = 24
	terrain, err := gen.NewTerrain(p, cat, section.Options{})
	require.NoError(t, err)
	col, err := terrain.Generate(-3, 5)
	require.NoError(t, err)

	exp := exportChunk(col, cat)
	require.Equal(t, int32(-3), exp.CX)
	require.Equal(t, 64, exp.Height)
	require.Len(t, exp.Sections, 4)
	require.Equal(t, section.Size*section.Size, exp.Counts["BEDROCK"])
	total := 0
	for _, n := range exp.Counts {
		total += n
	}
	require.Equal(t, 64*section.Size*section.Size, total)

	raw, err := json.Marshal(exp)
	require.NoError(t, err)
	var back chunkExport
	require.NoError(t, json.Unmarshal(raw, &back))

	got, err := importChunk(back, section.Options{})
	require.NoError(t, err)
	require.Equal(t, col.Dense(), got.Dense())
	require.Equal(t, col.CX, got.CX)
	require.Equal(t, col.CZ, got.CZ)
}

func TestImportRejectsShortRLE(t *testing.T) {
	_, err := importChunk(chunkExport{Height: 16, RLE: ""}, section.Options{})
	require.Error(t, err)
}

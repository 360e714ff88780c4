package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"voxelstore.ai/internal/sim/blocks"
	"voxelstore.ai/internal/sim/encoding"
	"voxelstore.ai/internal/sim/world/terrain/chunkrec"
	"voxelstore.ai/internal/sim/world/terrain/section"
)

type paletteEntry struct {
	ID    section.BlockID `json:"id"`
	Name  string          `json:"name"`
	State uint8           `json:"state,omitempty"`
}

type sectionExport struct {
	Y       int            `json:"y"`
	Mode    string         `json:"mode"`
	Bits    uint8          `json:"bits"`
	Palette []paletteEntry `json:"palette,omitempty"`
}

type chunkExport struct {
	CX           int32           `json:"cx"`
	CZ           int32           `json:"cz"`
	Height       int             `json:"height"`
	BlocksDigest string          `json:"blocks_digest"`
	Sections     []sectionExport `json:"sections"`
	Counts       map[string]int  `json:"counts"`
	// RLE holds every id, x fastest, then z, then y.
	RLE string `json:"rle"`
}

func catalogFor(path string) *blocks.Catalog {
	if path == "" {
		return blocks.DefaultCatalog()
	}
	cat, err := blocks.LoadCatalog(path)
	if err != nil {
		fail("blocks", err)
	}
	return cat
}

func exportChunk(col *chunkrec.Column, cat *blocks.Catalog) chunkExport {
	out := chunkExport{
		CX:           col.CX,
		CZ:           col.CZ,
		Height:       col.Height(),
		BlocksDigest: cat.Digest,
		Counts:       map[string]int{},
	}
	for i, s := range col.Sections {
		se := sectionExport{Y: i * section.Size, Mode: s.Mode().String(), Bits: s.BitsPerEntry()}
		for _, id := range s.Palette() {
			se.Palette = append(se.Palette, paletteEntry{ID: id, Name: cat.Name(id), State: blocks.State(id)})
		}
		out.Sections = append(out.Sections, se)
	}
	dense := col.Dense()
	for _, id := range dense {
		out.Counts[cat.Name(id)]++
	}
	out.RLE = encoding.EncodeRLE(dense)
	return out
}

func exportCmd(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	c := commonFlags(fs)
	cx := fs.Int("cx", 0, "chunk x")
	cz := fs.Int("cz", 0, "chunk z")
	outPath := fs.String("out", "", "output file (default stdout)")
	_ = fs.Parse(args)

	cfg := c.tuning()
	cat := catalogFor(cfg.Blocks.Catalog)
	s := openWorld(cfg, true)
	defer s.Close()

	col, ok, err := s.LoadChunk(int32(*cx), int32(*cz))
	if err != nil {
		fail("load", err)
	}
	if !ok {
		fmt.Fprintf(os.Stderr, "chunk %d,%d not in %s\n", *cx, *cz, s.Path())
		os.Exit(2)
	}

	out := os.Stdout
	if *outPath != "" {
		f, err := os.Create(*outPath)
		if err != nil {
			fail("create", err)
		}
		defer f.Close()
		out = f
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(exportChunk(col, cat)); err != nil {
		fail("encode", err)
	}
}

func importCmd(args []string) {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	c := commonFlags(fs)
	inPath := fs.String("in", "", "exported chunk JSON (required)")
	relocate := fs.Bool("relocate", false, "store at -cx/-cz instead of the exported coordinates")
	cx := fs.Int("cx", 0, "target chunk x (with -relocate)")
	cz := fs.Int("cz", 0, "target chunk z (with -relocate)")
	_ = fs.Parse(args)

	if *inPath == "" {
		fmt.Fprintln(os.Stderr, "missing -in")
		os.Exit(2)
	}
	raw, err := os.ReadFile(*inPath)
	if err != nil {
		fail("read", err)
	}
	var in chunkExport
	if err := json.Unmarshal(raw, &in); err != nil {
		fail("decode", err)
	}

	cfg := c.tuning()
	if cat := catalogFor(cfg.Blocks.Catalog); in.BlocksDigest != "" && in.BlocksDigest != cat.Digest {
		fmt.Fprintf(os.Stderr, "block catalog digest %s does not match export %s\n", cat.Digest, in.BlocksDigest)
		os.Exit(2)
	}
	if *relocate {
		in.CX, in.CZ = int32(*cx), int32(*cz)
	}
	col, err := importChunk(in, cfg.SectionOptions())
	if err != nil {
		fail("import", err)
	}

	s := openWorld(cfg, false)
	defer s.Close()
	blob, err := s.Codec().Encode(col)
	if err != nil {
		failClose(s, "encode", err)
	}
	if err := s.SaveChunk(col.CX, col.CZ, blob); err != nil {
		failClose(s, "save", err)
	}
	fmt.Printf("imported %d,%d (%d bytes)\n", col.CX, col.CZ, len(blob))
}

func importChunk(in chunkExport, opts section.Options) (*chunkrec.Column, error) {
	n := in.Height * section.Size * section.Size
	dense, err := encoding.DecodeRLE(in.RLE, n)
	if err != nil {
		return nil, err
	}
	return chunkrec.FromDense(in.CX, in.CZ, in.Height, dense, opts)
}

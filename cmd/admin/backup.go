package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"

	"voxelstore.ai/internal/persistence/archive"
	"voxelstore.ai/internal/persistence/snapshot"
)

func backupCmd(args []string) {
	fs := flag.NewFlagSet("backup", flag.ExitOnError)
	c := commonFlags(fs)
	out := fs.String("out", "", "snapshot path (default: a new file in backup.dir)")
	_ = fs.Parse(args)

	cfg := c.tuning()
	meta := snapshot.Meta{Seed: cfg.Gen.Seed, BlocksDigest: catalogFor(cfg.Blocks.Catalog).Digest}
	s := openWorld(cfg, true)
	defer s.Close()

	var (
		path string
		hdr  snapshot.Header
		err  error
	)
	switch {
	case *out != "":
		path = *out
		hdr, err = snapshot.Write(path, s, meta)
	case cfg.Backup.Dir != "":
		path, hdr, err = archive.Take(cfg.Backup.Dir, s, meta, cfg.Backup.Keep)
	default:
		fmt.Fprintln(os.Stderr, "missing -out and backup.dir")
		os.Exit(2)
	}
	if err != nil {
		fail("backup", err)
	}
	fmt.Printf("%s\t%d records\t%s\n", path, hdr.Records, humanize.IBytes(uint64(hdr.FileSize)))
}

func restoreCmd(args []string) {
	fs := flag.NewFlagSet("restore", flag.ExitOnError)
	c := commonFlags(fs)
	in := fs.String("in", "", "snapshot path (default: newest in backup.dir)")
	force := fs.Bool("force", false, "replace an existing world file")
	_ = fs.Parse(args)

	cfg := c.tuning()
	src := *in
	if src == "" && cfg.Backup.Dir != "" {
		latest, err := archive.Latest(cfg.Backup.Dir)
		if err != nil {
			fail("list backups", err)
		}
		src = latest
	}
	if src == "" {
		fmt.Fprintln(os.Stderr, "no snapshot to restore (set -in or backup.dir)")
		os.Exit(2)
	}
	if _, err := os.Stat(cfg.World.Path); err == nil && !*force {
		fmt.Fprintf(os.Stderr, "%s exists; pass -force to replace it\n", cfg.World.Path)
		os.Exit(2)
	}

	hdr, err := snapshot.Restore(src, cfg.World.Path)
	if err != nil {
		fail("restore", err)
	}
	if want := catalogFor(cfg.Blocks.Catalog).Digest; hdr.BlocksDigest != "" && hdr.BlocksDigest != want {
		fmt.Fprintf(os.Stderr, "warning: snapshot block catalog %s differs from configured %s\n", hdr.BlocksDigest, want)
	}

	s := openWorld(cfg, true)
	defer s.Close()
	st, err := s.Stats()
	if err != nil {
		fail("verify restored file", err)
	}
	fmt.Printf("restored %s from %s (%s, %d records)\n", cfg.World.Path, src, hdr.CreatedAt, st.Records)
}

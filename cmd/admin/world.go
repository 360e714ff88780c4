package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
)

func indexCmd(args []string) {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	c := commonFlags(fs)
	asJSON := fs.Bool("json", false, "print JSON lines")
	_ = fs.Parse(args)

	s := openWorld(c.tuning(), true)
	defer s.Close()
	entries, err := s.Entries()
	if err != nil {
		fail("index", err)
	}
	enc := json.NewEncoder(os.Stdout)
	for _, e := range entries {
		if *asJSON {
			_ = enc.Encode(map[string]any{"cx": e.CX, "cz": e.CZ, "offset": e.Offset, "length": e.Length})
			continue
		}
		fmt.Printf("%d\t%d\t%d\t%d\n", e.CX, e.CZ, e.Offset, e.Length)
	}
}

func statsCmd(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	c := commonFlags(fs)
	_ = fs.Parse(args)

	s := openWorld(c.tuning(), true)
	defer s.Close()
	st, err := s.Stats()
	if err != nil {
		fail("stats", err)
	}
	waste := 0.0
	if st.FileSize > 0 {
		waste = 100 * float64(st.OrphanedBytes) / float64(st.FileSize)
	}
	fmt.Printf("path\t%s\n", s.Path())
	fmt.Printf("records\t%s\n", humanize.Comma(int64(st.Records)))
	fmt.Printf("file\t%s\n", humanize.IBytes(uint64(st.FileSize)))
	fmt.Printf("live\t%s\n", humanize.IBytes(uint64(st.LiveBytes)))
	fmt.Printf("orphaned\t%s (%.1f%%)\n", humanize.IBytes(uint64(st.OrphanedBytes)), waste)
	if st.UnreachableBytes > 0 {
		fmt.Printf("unreachable\t%s\n", humanize.IBytes(uint64(st.UnreachableBytes)))
	}
}

func verifyCmd(args []string) {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	c := commonFlags(fs)
	quiet := fs.Bool("q", false, "only print failures")
	_ = fs.Parse(args)

	s := openWorld(c.tuning(), true)
	defer s.Close()
	entries, err := s.Entries()
	if err != nil {
		fail("index", err)
	}
	bad := 0
	for _, e := range entries {
		col, ok, err := s.LoadChunk(e.CX, e.CZ)
		switch {
		case err != nil:
			bad++
			fmt.Printf("BAD\t%d\t%d\t%v\n", e.CX, e.CZ, err)
		case !ok:
			bad++
			fmt.Printf("MISSING\t%d\t%d\n", e.CX, e.CZ)
		case !*quiet:
			fmt.Printf("ok\t%d\t%d\theight=%d\n", e.CX, e.CZ, col.Height())
		}
	}
	st, err := s.Stats()
	if err != nil {
		fail("stats", err)
	}
	if st.UnreachableBytes > 0 {
		bad++
		fmt.Printf("UNREACHABLE\t%d bytes after the last readable record\n", st.UnreachableBytes)
	}
	fmt.Printf("%d records, %d bad\n", len(entries), bad)
	if bad > 0 {
		_ = s.Close()
		os.Exit(1)
	}
}

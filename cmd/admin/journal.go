package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"voxelstore.ai/internal/persistence/indexdb"
	"voxelstore.ai/internal/sim/tuning"
)

func openJournal(cfg tuning.Tuning) *indexdb.Journal {
	if cfg.Journal.Path == "" {
		fmt.Fprintln(os.Stderr, "no journal configured (set -db or journal.path)")
		os.Exit(2)
	}
	if _, err := os.Stat(cfg.Journal.Path); err != nil {
		fmt.Fprintln(os.Stderr, "journal:", err)
		os.Exit(2)
	}
	j, err := indexdb.OpenJournal(cfg.Journal.Path, indexdb.Options{ReadOnly: true})
	if err != nil {
		fail("open journal", err)
	}
	return j
}

func historyCmd(args []string) {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	c := commonFlags(fs)
	cx := fs.Int("cx", 0, "chunk x")
	cz := fs.Int("cz", 0, "chunk z")
	limit := fs.Int("limit", 20, "result limit (0 for all)")
	_ = fs.Parse(args)

	j := openJournal(c.tuning())
	defer j.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	rows, err := j.History(ctx, int32(*cx), int32(*cz), *limit)
	if err != nil {
		fail("history", err)
	}
	for _, r := range rows {
		fmt.Printf("%s\t%s\t%d\t%d\t%s\n", r.SavedAt.Format(time.RFC3339Nano), r.Mode, r.Offset, r.Length, r.Session)
	}
	if latest, ok, err := j.Latest(ctx, int32(*cx), int32(*cz)); err == nil && ok {
		fmt.Printf("# %d saves total\n", latest.Saves)
	}
}

func sessionsCmd(args []string) {
	fs := flag.NewFlagSet("sessions", flag.ExitOnError)
	c := commonFlags(fs)
	_ = fs.Parse(args)

	j := openJournal(c.tuning())
	defer j.Close()
	ss, err := j.Sessions(context.Background())
	if err != nil {
		fail("sessions", err)
	}
	for _, s := range ss {
		fmt.Printf("%s\t%s\t%s\n", s.StartedAt.Format(time.RFC3339), s.ID, s.WorldPath)
	}
}

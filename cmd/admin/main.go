package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"voxelstore.ai/internal/persistence/worldfile"
	"voxelstore.ai/internal/sim/tuning"
	"voxelstore.ai/internal/sim/world/terrain/chunkrec"
)

const usage = `usage: admin <command> [flags]

commands:
  index     list the records of a world file (default)
  stats     file size, live and orphaned bytes
  verify    decode every record
  export    dump one chunk as JSON
  import    write a chunk exported by "export"
  history   journaled saves of one chunk
  sessions  server sessions recorded in the journal
  backup    snapshot the world file
  restore   replace the world file with a snapshot`

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "index":
			indexCmd(os.Args[2:])
			return
		case "stats":
			statsCmd(os.Args[2:])
			return
		case "verify":
			verifyCmd(os.Args[2:])
			return
		case "export":
			exportCmd(os.Args[2:])
			return
		case "import":
			importCmd(os.Args[2:])
			return
		case "history":
			historyCmd(os.Args[2:])
			return
		case "sessions":
			sessionsCmd(os.Args[2:])
			return
		case "backup":
			backupCmd(os.Args[2:])
			return
		case "restore":
			restoreCmd(os.Args[2:])
			return
		case "help", "-h", "-help", "--help":
			fmt.Println(usage)
			return
		}
	}
	indexCmd(os.Args[1:])
}

// common holds the flags every command shares.
type common struct {
	config  *string
	world   *string
	journal *string
}

func commonFlags(fs *flag.FlagSet) *common {
	return &common{
		config:  fs.String("config", "", "config yaml (optional)"),
		world:   fs.String("world", "", "world file path (overrides world.path)"),
		journal: fs.String("db", "", "sqlite journal path (overrides journal.path)"),
	}
}

func (c *common) tuning() tuning.Tuning {
	cfg, err := tuning.Load(*c.config)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	if p := strings.TrimSpace(*c.world); p != "" {
		cfg.World.Path = p
	}
	if p := strings.TrimSpace(*c.journal); p != "" {
		cfg.Journal.Path = p
	}
	return cfg
}

// openWorld opens an existing world file. Commands that only read pass
// readOnly so a damaged file is never rewritten. Writers need the server to
// be stopped: the store assumes a single writer.
func openWorld(cfg tuning.Tuning, readOnly bool) *worldfile.Store {
	if _, err := os.Stat(cfg.World.Path); err != nil {
		fmt.Fprintln(os.Stderr, "world:", err)
		os.Exit(2)
	}
	codec, err := chunkrec.NewCodec(cfg.CodecConfig())
	if err != nil {
		fmt.Fprintln(os.Stderr, "codec:", err)
		os.Exit(1)
	}
	s, err := worldfile.Open(cfg.World.Path, worldfile.Options{Codec: codec, ReadOnly: readOnly})
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	return s
}

func fail(what string, err error) {
	fmt.Fprintln(os.Stderr, what+":", err)
	os.Exit(1)
}

// failClose is fail for a store opened for writing; os.Exit skips defers.
func failClose(s *worldfile.Store, what string, err error) {
	_ = s.Close()
	fail(what, err)
}

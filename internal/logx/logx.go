// Package logx builds the process logger.
package logx

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	plog "voxelstore.ai/internal/persistence/log"
)

type Config struct {
	Level  string // trace, debug, info, warn, error
	Format string // console or json
	// Dir, when set, also receives JSON lines in hourly zstd files.
	Dir    string
	Prefix string
	Out    io.Writer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New returns a logger and a closer for any files it opened.
func New(cfg Config) (zerolog.Logger, io.Closer, error) {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		l, err := zerolog.ParseLevel(cfg.Level)
		if err != nil {
			return zerolog.Nop(), nil, errors.Wrapf(err, "log level %q", cfg.Level)
		}
		level = l
	}
	out := cfg.Out
	if out == nil {
		out = os.Stderr
	}

	var console io.Writer
	switch cfg.Format {
	case "", "console":
		zerolog.CallerMarshalFunc = shortCaller
		console = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	case "json":
		console = out
	default:
		return zerolog.Nop(), nil, errors.Newf("log format %q", cfg.Format)
	}

	var closer io.Closer = nopCloser{}
	w := console
	if cfg.Dir != "" {
		prefix := cfg.Prefix
		if prefix == "" {
			prefix = "voxelstore"
		}
		files := plog.NewJSONLZstdWriter(cfg.Dir, prefix)
		w = zerolog.MultiLevelWriter(console, files)
		closer = files
	}
	logger := zerolog.New(w).Level(level).With().Timestamp().Caller().Logger()
	return logger, closer, nil
}

func shortCaller(pc uintptr, file string, line int) string {
	short := file
	for i := len(file) - 1; i > 0; i-- {
		if file[i] == '/' {
			short = file[i+1:]
			break
		}
	}
	return fmt.Sprintf("%-24s", fmt.Sprintf("%s:%d", short, line))
}

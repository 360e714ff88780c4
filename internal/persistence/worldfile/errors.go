package worldfile

import (
	"github.com/cockroachdb/errors"

	"voxelstore.ai/internal/sim/world/terrain/section"
)

var (
	// ErrHeaderMismatch reports a file whose magic or version is not ours.
	ErrHeaderMismatch = errors.New("worldfile: header mismatch")
	// ErrCorruptRecord reports a record that does not match its index entry.
	ErrCorruptRecord = errors.New("worldfile: corrupt record")
	// ErrInvalidArgument is shared with the section codec.
	ErrInvalidArgument = section.ErrInvalidArgument
	ErrClosed          = errors.New("worldfile: store closed")
	ErrReadOnly        = errors.New("worldfile: store opened read-only")
)

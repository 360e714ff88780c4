package section

import "github.com/cockroachdb/errors"

var (
	// ErrOutOfRange reports local coordinates outside [0, Size).
	ErrOutOfRange = errors.New("section: coordinate out of range")
	// ErrInvalidArgument reports a block id the section cannot store.
	ErrInvalidArgument = errors.New("section: invalid argument")
	// ErrMalformed reports a serialized section that cannot be decoded.
	ErrMalformed = errors.New("section: malformed encoding")
)

func malformedf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrMalformed)
}

package score

import (
	"errors"
	"fmt"
)

// ErrInvalidMIDI is matched by every ParseError.
var ErrInvalidMIDI = errors.New("invalid MIDI data")

// ErrUnsupportedFormat is returned for SMF type 2 files and SMPTE time division.
var ErrUnsupportedFormat = errors.New("unsupported MIDI format")

// ParseError reports a structurally unusable MIDI byte stream.
// No partial score is returned alongside it.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", ErrInvalidMIDI, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", ErrInvalidMIDI, e.Reason)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrInvalidMIDI) succeed for any ParseError.
func (e *ParseError) Is(target error) bool {
	return target == ErrInvalidMIDI
}

package rsap

import "errors"

var (
	// ErrMalformedFrame covers every decode failure: unknown ids, truncated
	// values, missing padding, trailing bytes and frames over the size limit.
	ErrMalformedFrame = errors.New("rsap: malformed frame")
	// ErrNotApplicable is returned when a frame carries no command APDU.
	ErrNotApplicable = errors.New("rsap: frame carries no command APDU")
	// ErrInvalidFrame is returned by Encode for frames that cannot be represented.
	ErrInvalidFrame = errors.New("rsap: frame cannot be encoded")
)

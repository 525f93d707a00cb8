package common

import "errors"

var (
	ErrEndOfInput      = errors.New("end of input")
	ErrTruncated       = errors.New("archive truncated")
	ErrInvalidOctal    = errors.New("invalid octal digit")
	ErrOctalOverflow   = errors.New("octal value overflows uint64")
	ErrCorruptHeader   = errors.New("corrupt header")
	ErrUnsupportedType = errors.New("unhandled entry type")
	ErrLinkTarget      = errors.New("link target failed to extract")
	ErrUnknownSource   = errors.New("unsupported archive source")
	ErrDestinationBusy = errors.New("destination is locked by another extraction")
)

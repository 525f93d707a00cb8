package ustar

import (
	"bytes"
	"fmt"

	"github.com/beam-cloud/untar/pkg/common"
)

// ParseOctal decodes a numeric header field. Leading spaces are skipped, the
// digit run ends at the first NUL or space, and a field without a terminator
// is read in full. An empty digit run decodes to 0.
func ParseOctal(field []byte) (uint64, error) {
	field = bytes.TrimLeft(field, " ")
	if end := bytes.IndexAny(field, "\x00 "); end >= 0 {
		field = field[:end]
	}

	var n uint64
	for _, c := range field {
		if c < '0' || c > '7' {
			return 0, fmt.Errorf("%w %q", common.ErrInvalidOctal, c)
		}
		if n > (1<<64-1)>>3 {
			return 0, common.ErrOctalOverflow
		}
		n = n<<3 | uint64(c-'0')
	}

	return n, nil
}

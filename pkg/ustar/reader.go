package ustar

import (
	"errors"
	"fmt"
	"io"

	"github.com/beam-cloud/untar/pkg/common"
)

// BlockReader is a forward-only cursor over a tar stream. Every read either
// returns exactly the requested number of bytes or reports
// common.ErrEndOfInput; any other error comes from the underlying stream.
type BlockReader struct {
	r      io.Reader
	offset int64
}

func NewBlockReader(r io.Reader) *BlockReader {
	return &BlockReader{r: r}
}

// Offset returns the number of bytes consumed so far.
func (br *BlockReader) Offset() int64 {
	return br.offset
}

// ReadBlock fills b with the next BlockSize bytes.
func (br *BlockReader) ReadBlock(b *Block) error {
	n, err := io.ReadFull(br.r, b[:])
	br.offset += int64(n)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return common.ErrEndOfInput
	default:
		return fmt.Errorf("read block at offset %d: %w", br.offset, err)
	}
}

// CopyN copies exactly n bytes of payload into w. The writer must not fail;
// any error returned is a stream error.
func (br *BlockReader) CopyN(w io.Writer, n int64) (int64, error) {
	written, err := io.CopyN(w, br.r, n)
	br.offset += written

	switch {
	case err == nil:
		return written, nil
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return written, common.ErrEndOfInput
	default:
		return written, fmt.Errorf("read payload at offset %d: %w", br.offset, err)
	}
}

// Skip discards n bytes.
func (br *BlockReader) Skip(n int64) error {
	if n <= 0 {
		return nil
	}
	_, err := br.CopyN(io.Discard, n)
	return err
}

// SkipPayload discards a payload of the given size together with its padding.
func (br *BlockReader) SkipPayload(size int64) error {
	return br.Skip(RoundUp(size))
}

package extract

import (
	"errors"
	"fmt"
	"io"

	"github.com/beam-cloud/untar/pkg/common"
	"github.com/beam-cloud/untar/pkg/ustar"
)

type EndReason int

const (
	EndNone      EndReason = iota
	EndMarker              // two consecutive zero-tag blocks
	EndOfStream            // input ran out on a block boundary
	EndTruncated           // input ran out inside a header, payload or padding
)

func (r EndReason) String() string {
	switch r {
	case EndMarker:
		return "end-of-archive marker"
	case EndOfStream:
		return "end of stream"
	case EndTruncated:
		return "truncated stream"
	default:
		return "none"
	}
}

// Scanner walks the headers of a tar stream. Payload bytes the caller does not
// consume are skipped on the next call to Next.
type Scanner struct {
	br      *ustar.BlockReader
	block   ustar.Block
	zeros   int
	offset  int64
	pending int64
	payload int64
	end     EndReason
}

func NewScanner(r io.Reader) *Scanner {
	return &Scanner{br: ustar.NewBlockReader(r)}
}

// Next advances to the next entry header and returns io.EOF once the archive
// has ended. When some numeric fields fail to decode the header is returned
// together with a *ustar.HeaderError.
func (s *Scanner) Next() (*ustar.Header, error) {
	if s.end != EndNone {
		return nil, io.EOF
	}

	if err := s.br.Skip(s.pending); err != nil {
		return nil, s.fail(err)
	}
	s.pending, s.payload = 0, 0

	for s.zeros < 2 {
		s.offset = s.br.Offset()
		if err := s.br.ReadBlock(&s.block); err != nil {
			if errors.Is(err, common.ErrEndOfInput) && s.br.Offset() == s.offset {
				s.end = EndOfStream
				return nil, io.EOF
			}
			return nil, s.fail(err)
		}

		if s.block.IsEndMarker() {
			s.zeros++
			continue
		}
		s.zeros = 0

		hdr, err := ustar.DecodeHeader(&s.block)
		var herr *ustar.HeaderError
		if !(errors.As(err, &herr) && herr.Has(ustar.FieldSize)) {
			s.payload = hdr.PayloadSize()
			s.pending = ustar.RoundUp(s.payload)
		}
		return hdr, err
	}

	s.end = EndMarker
	return nil, io.EOF
}

// WritePayload copies the current entry's payload into w and skips the block
// padding after it. w must not return write errors.
func (s *Scanner) WritePayload(w io.Writer) (int64, error) {
	n, err := s.br.CopyN(w, s.payload)
	s.pending -= n
	if err != nil {
		return n, s.fail(err)
	}

	if err := s.br.Skip(s.pending); err != nil {
		return n, s.fail(err)
	}
	s.pending = 0
	return n, nil
}

// Offset returns the stream offset of the current header block.
func (s *Scanner) Offset() int64 {
	return s.offset
}

// Consumed returns the total number of bytes read from the stream.
func (s *Scanner) Consumed() int64 {
	return s.br.Offset()
}

func (s *Scanner) End() EndReason {
	return s.end
}

func (s *Scanner) fail(err error) error {
	if errors.Is(err, common.ErrEndOfInput) {
		s.end = EndTruncated
		return fmt.Errorf("%w at offset %d", common.ErrTruncated, s.br.Offset())
	}
	return err
}

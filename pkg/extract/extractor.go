package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/beam-cloud/untar/pkg/common"
	"github.com/beam-cloud/untar/pkg/metrics"
	"github.com/beam-cloud/untar/pkg/ustar"
	"github.com/rs/zerolog/log"
)

type ExtractorOpts struct {
	FS      Filesystem
	Metrics *metrics.Metrics
}

// Extractor applies the entries of a ustar stream to a Filesystem, one header
// at a time.
type Extractor struct {
	fs      Filesystem
	metrics *metrics.Metrics
}

func NewExtractor(opts ExtractorOpts) *Extractor {
	if opts.Metrics == nil {
		opts.Metrics = metrics.GlobalMetrics
	}
	return &Extractor{
		fs:      opts.FS,
		metrics: opts.Metrics,
	}
}

// Extract processes r until the end-of-archive marker or the end of the
// stream. Entry failures are collected in the returned report; an error is
// returned only when the stream itself cannot be read or a header makes the
// stream position unknowable.
func (e *Extractor) Extract(ctx context.Context, r io.Reader) (*Report, error) {
	start := time.Now()
	report := NewReport()
	scanner := NewScanner(r)

	defer func() {
		report.End = scanner.End()
		report.Consumed = scanner.Consumed()
		e.metrics.RecordRun(report.Consumed, time.Since(start))
	}()

	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		hdr, err := scanner.Next()
		if errors.Is(err, io.EOF) {
			return report, nil
		}
		if errors.Is(err, common.ErrTruncated) {
			log.Warn().Int64("offset", scanner.Consumed()).Msg("archive ended inside an entry")
			return report, nil
		}

		var herr *ustar.HeaderError
		if err != nil && !errors.As(err, &herr) {
			return report, err
		}

		outcome, err := e.dispatch(scanner, report, hdr, herr)
		if outcome != nil {
			e.record(report, outcome)
		}
		if errors.Is(err, common.ErrTruncated) {
			log.Warn().Str("name", hdr.Path()).Int64("offset", scanner.Consumed()).Msg("archive ended inside an entry")
			return report, nil
		}
		if err != nil {
			return report, err
		}
	}
}

func (e *Extractor) dispatch(s *Scanner, report *Report, hdr *ustar.Header, herr *ustar.HeaderError) (*Outcome, error) {
	name := hdr.Path()
	outcome := &Outcome{
		Name:   name,
		Type:   hdr.Type,
		Offset: s.Offset(),
	}

	if herr != nil {
		if hdr.Type == ustar.TypeRegular && herr.Has(ustar.FieldSize) {
			return nil, fmt.Errorf("%w %q at offset %d: %v", common.ErrCorruptHeader, name, s.Offset(), herr)
		}

		if herr.Has(ustar.FieldMode) && (hdr.Type == ustar.TypeRegular || hdr.Type == ustar.TypeDirectory) {
			outcome.Op = OpDecode
			outcome.Err = e.entryError(outcome, herr)
			return outcome, nil
		}

		log.Debug().Err(herr).Str("name", name).Msg("ignoring malformed header fields")
	}

	if !hdr.IsUstar() {
		log.Debug().Str("name", name).Str("magic", hdr.Magic).Msg("header magic is not ustar")
	}

	var err error
	switch hdr.Type {
	case ustar.TypeRegular:
		outcome.Op = OpWrite
		return e.extractFile(s, hdr, outcome)
	case ustar.TypeHardLink:
		outcome.Op = OpLink
		if err = e.fs.Link(hdr.Linkname, name); err != nil {
			if prev, ok := report.Lookup(hdr.Linkname); ok && !prev.OK() {
				err = fmt.Errorf("%w at offset %d: %w", common.ErrLinkTarget, prev.Offset, err)
			}
		}
	case ustar.TypeSymlink:
		outcome.Op = OpSymlink
		err = e.fs.Symlink(hdr.Linkname, name)
	case ustar.TypeDirectory:
		outcome.Op = OpMkdir
		err = e.fs.Mkdir(name, hdr.Perm())
	case ustar.TypeCharDevice, ustar.TypeBlockDevice, ustar.TypeUnsupported:
		outcome.Op = OpSkip
		err = fmt.Errorf("%w %q", common.ErrUnsupportedType, hdr.Typeflag)
	}

	if err != nil {
		outcome.Err = e.entryError(outcome, err)
	}
	return outcome, nil
}

// extractFile creates the entry and streams its payload into it. The payload
// is consumed even when the file cannot be created or written so the next
// header stays on a block boundary.
func (e *Extractor) extractFile(s *Scanner, hdr *ustar.Header, outcome *Outcome) (*Outcome, error) {
	f, err := e.fs.CreateFile(outcome.Name, hdr.Perm())
	if err != nil {
		f = nil
		outcome.Op = OpCreate
		outcome.Err = e.entryError(outcome, err)
	}

	sink := &sinkWriter{w: f}
	n, streamErr := s.WritePayload(sink)
	outcome.Size = n

	if f != nil {
		if err := f.Close(); err != nil && sink.err == nil {
			sink.err = err
		}
	}

	switch {
	case outcome.Err != nil:
	case streamErr != nil && n < hdr.PayloadSize():
		outcome.Err = e.entryError(outcome, streamErr)
	case sink.err != nil:
		outcome.Err = e.entryError(outcome, sink.err)
	}

	return outcome, streamErr
}

func (e *Extractor) entryError(o *Outcome, err error) *EntryError {
	return &EntryError{Name: o.Name, Op: o.Op, Offset: o.Offset, Err: err}
}

func (e *Extractor) record(report *Report, o *Outcome) {
	report.add(o)

	switch {
	case o.Skipped():
		e.metrics.RecordSkipped()
		log.Warn().Str("name", o.Name).Str("type", o.Type.String()).Msgf("skipping entry: %v", o.Err)
	case !o.OK():
		e.metrics.RecordEntry(o.Type.String(), o.Size, true)
		log.Error().Err(o.Err).Str("name", o.Name).Str("op", string(o.Op)).Msg("failed to extract entry")
	default:
		e.metrics.RecordEntry(o.Type.String(), o.Size, false)
		log.Debug().Str("name", o.Name).Str("type", o.Type.String()).Int64("size", o.Size).Int64("offset", o.Offset).Msg("extracted entry")
	}
}

// sinkWriter forwards writes until the first failure and then discards the
// rest, so payload copying only ever fails on the read side.
type sinkWriter struct {
	w   io.Writer
	err error
}

func (s *sinkWriter) Write(p []byte) (int, error) {
	if s.w == nil || s.err != nil {
		return len(p), nil
	}

	n, err := s.w.Write(p)
	if err == nil && n < len(p) {
		err = io.ErrShortWrite
	}
	if err != nil {
		s.err = err
	}
	return len(p), nil
}

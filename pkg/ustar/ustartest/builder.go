// Package ustartest builds synthetic ustar streams for tests.
package ustartest

import (
	"bytes"
	"fmt"

	"github.com/beam-cloud/untar/pkg/ustar"
)

type Entry struct {
	Name     string
	Prefix   string
	Linkname string
	Typeflag byte
	Mode     int64
	Uid      int64
	Gid      int64
	Mtime    int64
	Body     []byte

	// Size overrides the encoded size field when non-zero.
	Size int64
}

// Builder accumulates header blocks, payloads and raw bytes into one stream.
type Builder struct {
	buf bytes.Buffer
}

func NewBuilder() *Builder {
	return &Builder{}
}

// Add appends the entry header followed by its body and block padding.
func (b *Builder) Add(e Entry) *Builder {
	block := HeaderBlock(e)
	b.buf.Write(block[:])
	if len(e.Body) > 0 {
		b.buf.Write(e.Body)
		b.buf.Write(make([]byte, ustar.Padding(int64(len(e.Body)))))
	}
	return b
}

// Raw appends bytes verbatim.
func (b *Builder) Raw(p []byte) *Builder {
	b.buf.Write(p)
	return b
}

// ZeroBlocks appends n all-zero blocks.
func (b *Builder) ZeroBlocks(n int) *Builder {
	b.buf.Write(make([]byte, n*ustar.BlockSize))
	return b
}

// Close appends the end-of-archive marker and returns the stream.
func (b *Builder) Close() []byte {
	b.ZeroBlocks(2)
	return b.Bytes()
}

func (b *Builder) Bytes() []byte {
	return append([]byte(nil), b.buf.Bytes()...)
}

// HeaderBlock encodes a single header block.
func HeaderBlock(e Entry) ustar.Block {
	var blk ustar.Block

	size := e.Size
	if size == 0 {
		size = int64(len(e.Body))
	}

	put(&blk, ustar.FieldName, []byte(e.Name))
	putOctal(&blk, ustar.FieldMode, e.Mode)
	putOctal(&blk, ustar.FieldUid, e.Uid)
	putOctal(&blk, ustar.FieldGid, e.Gid)
	putOctal(&blk, ustar.FieldSize, size)
	putOctal(&blk, ustar.FieldMtime, e.Mtime)
	blk[ustar.FieldType.Offset] = e.Typeflag
	put(&blk, ustar.FieldLinkname, []byte(e.Linkname))
	put(&blk, ustar.FieldMagic, []byte("ustar\x00"))
	put(&blk, ustar.FieldVersion, []byte("00"))
	put(&blk, ustar.FieldPrefix, []byte(e.Prefix))

	put(&blk, ustar.FieldChecksum, []byte("        "))
	var sum int64
	for _, c := range blk {
		sum += int64(c)
	}
	put(&blk, ustar.FieldChecksum, []byte(fmt.Sprintf("%06o\x00 ", sum)))

	return blk
}

// EncodeOctal renders v as a NUL terminated, zero padded octal field of the given width.
func EncodeOctal(v int64, width int) []byte {
	return []byte(fmt.Sprintf("%0*o\x00", width-1, v))
}

func putOctal(blk *ustar.Block, f ustar.Field, v int64) {
	put(blk, f, EncodeOctal(v, f.Width))
}

func put(blk *ustar.Block, f ustar.Field, v []byte) {
	copy(blk[f.Offset:f.Offset+f.Width], v)
}

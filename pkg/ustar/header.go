package ustar

import (
	"bytes"
	"fmt"
	"io/fs"
	"strings"
	"time"
)

// Block is one raw 512-byte unit of a tar stream.
type Block [BlockSize]byte

// Typeflag returns the raw type tag byte.
func (b *Block) Typeflag() byte {
	return b[FieldType.Offset]
}

// IsEndMarker reports whether the block carries the zero type tag that
// terminates an archive when seen twice in a row.
func (b *Block) IsEndMarker() bool {
	return b.Typeflag() == 0
}

type EntryType int

const (
	TypeUnsupported EntryType = iota
	TypeRegular
	TypeHardLink
	TypeSymlink
	TypeCharDevice
	TypeBlockDevice
	TypeDirectory
)

// TypeOf maps a header tag byte onto the closed set of entry types.
func TypeOf(flag byte) EntryType {
	switch flag {
	case '0':
		return TypeRegular
	case '1':
		return TypeHardLink
	case '2':
		return TypeSymlink
	case '3':
		return TypeCharDevice
	case '4':
		return TypeBlockDevice
	case '5':
		return TypeDirectory
	default:
		return TypeUnsupported
	}
}

func (t EntryType) String() string {
	switch t {
	case TypeRegular:
		return "file"
	case TypeHardLink:
		return "hardlink"
	case TypeSymlink:
		return "symlink"
	case TypeCharDevice:
		return "chardev"
	case TypeBlockDevice:
		return "blockdev"
	case TypeDirectory:
		return "dir"
	default:
		return "unsupported"
	}
}

// Header is the decoded form of a header block.
type Header struct {
	Name     string
	Mode     uint64
	Uid      uint64
	Gid      uint64
	Size     uint64
	Mtime    uint64
	Typeflag byte
	Type     EntryType
	Linkname string
	Magic    string
	Version  string
	Uname    string
	Gname    string
	Prefix   string
}

// Path returns the full entry path, joining the ustar name prefix when present.
func (h *Header) Path() string {
	if h.Prefix == "" {
		return h.Name
	}
	return h.Prefix + "/" + h.Name
}

// Perm converts the decoded mode into permission and special bits.
func (h *Header) Perm() fs.FileMode {
	mode := fs.FileMode(h.Mode & 0o777)
	if h.Mode&0o4000 != 0 {
		mode |= fs.ModeSetuid
	}
	if h.Mode&0o2000 != 0 {
		mode |= fs.ModeSetgid
	}
	if h.Mode&0o1000 != 0 {
		mode |= fs.ModeSticky
	}
	return mode
}

func (h *Header) ModTime() time.Time {
	return time.Unix(int64(h.Mtime), 0)
}

// PayloadSize is the number of payload bytes following the header. Only
// regular files carry a payload.
func (h *Header) PayloadSize() int64 {
	if h.Type != TypeRegular {
		return 0
	}
	return int64(h.Size)
}

// IsUstar reports whether the magic field identifies a POSIX ustar header.
func (h *Header) IsUstar() bool {
	return h.Magic == "ustar"
}

type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("field %s: %v", e.Field, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// HeaderError collects every numeric field of a header that failed to decode.
type HeaderError struct {
	Fields []*FieldError
}

func (e *HeaderError) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Error())
	}
	return "malformed header: " + strings.Join(msgs, "; ")
}

func (e *HeaderError) Unwrap() []error {
	errs := make([]error, 0, len(e.Fields))
	for _, f := range e.Fields {
		errs = append(errs, f)
	}
	return errs
}

// Has reports whether the named field failed to decode.
func (e *HeaderError) Has(field Field) bool {
	for _, f := range e.Fields {
		if f.Field == field.Name {
			return true
		}
	}
	return false
}

// DecodeHeader decodes every field of a header block. Numeric fields that fail
// to decode are left at zero and reported together in a *HeaderError; the
// returned header is always usable for the fields that did decode.
func DecodeHeader(b *Block) (*Header, error) {
	h := &Header{
		Name:     cstring(FieldName.bytes(b)),
		Typeflag: b.Typeflag(),
		Linkname: cstring(FieldLinkname.bytes(b)),
		Magic:    cstring(FieldMagic.bytes(b)),
		Version:  string(FieldVersion.bytes(b)),
		Uname:    cstring(FieldUname.bytes(b)),
		Gname:    cstring(FieldGname.bytes(b)),
		Prefix:   cstring(FieldPrefix.bytes(b)),
	}
	h.Type = TypeOf(h.Typeflag)

	var herr HeaderError
	numeric := []struct {
		field Field
		dst   *uint64
	}{
		{FieldMode, &h.Mode},
		{FieldUid, &h.Uid},
		{FieldGid, &h.Gid},
		{FieldSize, &h.Size},
		{FieldMtime, &h.Mtime},
	}
	for _, n := range numeric {
		v, err := ParseOctal(n.field.bytes(b))
		if err != nil {
			herr.Fields = append(herr.Fields, &FieldError{Field: n.field.Name, Err: err})
			continue
		}
		*n.dst = v
	}

	if len(herr.Fields) > 0 {
		return h, &herr
	}
	return h, nil
}

func cstring(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

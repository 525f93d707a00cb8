package ustar

// BlockSize is the granularity of a tar stream: every header occupies one
// block and every payload is padded to a multiple of it.
const BlockSize = 512

type Encoding int

const (
	EncodingString Encoding = iota // NUL padded text
	EncodingOctal                  // NUL or space terminated octal ASCII
	EncodingTag                    // single discriminant byte
	EncodingRaw                    // carried verbatim, not interpreted
)

// Field locates one sub-field inside a header block.
type Field struct {
	Name     string
	Offset   int
	Width    int
	Encoding Encoding
}

func (f Field) bytes(b *Block) []byte {
	return b[f.Offset : f.Offset+f.Width]
}

var (
	FieldName     = Field{"name", 0, 100, EncodingString}
	FieldMode     = Field{"mode", 100, 8, EncodingOctal}
	FieldUid      = Field{"uid", 108, 8, EncodingOctal}
	FieldGid      = Field{"gid", 116, 8, EncodingOctal}
	FieldSize     = Field{"size", 124, 12, EncodingOctal}
	FieldMtime    = Field{"mtime", 136, 12, EncodingOctal}
	FieldChecksum = Field{"checksum", 148, 8, EncodingRaw}
	FieldType     = Field{"type", 156, 1, EncodingTag}
	FieldLinkname = Field{"linkname", 157, 100, EncodingString}
	FieldMagic    = Field{"magic", 257, 6, EncodingRaw}
	FieldVersion  = Field{"version", 263, 2, EncodingRaw}
	FieldUname    = Field{"user_name", 265, 32, EncodingString}
	FieldGname    = Field{"group_name", 297, 32, EncodingString}
	FieldDevMajor = Field{"device_major", 329, 8, EncodingRaw}
	FieldDevMinor = Field{"device_minor", 337, 8, EncodingRaw}
	FieldPrefix   = Field{"name_prefix", 345, 155, EncodingString}
	FieldPadding  = Field{"padding", 500, 12, EncodingRaw}
)

// Layout lists every header field in on-disk order. The widths sum to BlockSize.
var Layout = []Field{
	FieldName,
	FieldMode,
	FieldUid,
	FieldGid,
	FieldSize,
	FieldMtime,
	FieldChecksum,
	FieldType,
	FieldLinkname,
	FieldMagic,
	FieldVersion,
	FieldUname,
	FieldGname,
	FieldDevMajor,
	FieldDevMinor,
	FieldPrefix,
	FieldPadding,
}

// RoundUp returns size rounded up to the next multiple of BlockSize.
func RoundUp(size int64) int64 {
	return (size + BlockSize - 1) &^ (BlockSize - 1)
}

// Padding returns the number of filler bytes that follow a payload of the given size.
func Padding(size int64) int64 {
	return RoundUp(size) - size
}

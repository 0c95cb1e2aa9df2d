package packfile

import (
	"fmt"
	"io"

	kerrors "github.com/PolarWolf314/strongbox/internal/errors"
	"github.com/PolarWolf314/strongbox/internal/git/object"
)

// Signature is the pack magic.
const Signature = "PACK"

// Version is the pack version this package writes.
const Version = 2

// Object type codes stored in bits 6-4 of an entry's first header byte.
const (
	CodeCommit   byte = 1
	CodeTree     byte = 2
	CodeBlob     byte = 3
	CodeTag      byte = 4
	CodeOfsDelta byte = 6
	CodeRefDelta byte = 7
)

// CodeForType maps an object type to its pack type code.
func CodeForType(t object.Type) (byte, error) {
	switch t {
	case object.TypeCommit:
		return CodeCommit, nil
	case object.TypeTree:
		return CodeTree, nil
	case object.TypeBlob:
		return CodeBlob, nil
	case object.TypeTag:
		return CodeTag, nil
	}
	return 0, fmt.Errorf("%w: no pack code for type %q", kerrors.ErrInvalidObject, t)
}

// TypeForCode maps a pack type code to its object type. Delta codes yield
// ErrUnsupportedDelta.
func TypeForCode(code byte) (object.Type, error) {
	switch code {
	case CodeCommit:
		return object.TypeCommit, nil
	case CodeTree:
		return object.TypeTree, nil
	case CodeBlob:
		return object.TypeBlob, nil
	case CodeTag:
		return object.TypeTag, nil
	case CodeOfsDelta, CodeRefDelta:
		return "", kerrors.ErrUnsupportedDelta
	}
	return "", fmt.Errorf("%w: unknown type code %d", kerrors.ErrInvalidPackfile, code)
}

// AppendEntryHeader appends an entry header: the first byte carries a
// continuation bit, the type code and the low four bits of size; further
// bytes carry seven bits each, least significant first.
func AppendEntryHeader(dst []byte, code byte, size int64) []byte {
	b := code<<4 | byte(size&0x0f)
	size >>= 4
	for size > 0 {
		dst = append(dst, b|0x80)
		b = byte(size & 0x7f)
		size >>= 7
	}
	return append(dst, b)
}

// ReadEntryHeader is the inverse of AppendEntryHeader.
func ReadEntryHeader(r io.ByteReader) (code byte, size int64, err error) {
	c, err := r.ReadByte()
	if err != nil {
		return 0, 0, err
	}
	code = (c >> 4) & 0x07
	size = int64(c & 0x0f)
	shift := uint(4)
	for c&0x80 != 0 {
		if shift > 57 {
			return 0, 0, fmt.Errorf("%w: entry size overflows", kerrors.ErrInvalidPackfile)
		}
		if c, err = r.ReadByte(); err != nil {
			return 0, 0, err
		}
		size |= int64(c&0x7f) << shift
		shift += 7
	}
	return code, size, nil
}

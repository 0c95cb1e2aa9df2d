package object

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strconv"

	kerrors "github.com/PolarWolf314/strongbox/internal/errors"
)

// Type names an object kind.
type Type string

const (
	TypeBlob   Type = "blob"
	TypeTree   Type = "tree"
	TypeCommit Type = "commit"
	TypeTag    Type = "tag"
)

// ParseType validates a type name read from an object header.
func ParseType(s string) (Type, error) {
	switch t := Type(s); t {
	case TypeBlob, TypeTree, TypeCommit, TypeTag:
		return t, nil
	}
	return "", fmt.Errorf("%w: unknown type %q", kerrors.ErrInvalidObject, s)
}

// Header returns the "<type> <len>\x00" frame prefix.
func Header(t Type, size int) []byte {
	h := make([]byte, 0, len(t)+12)
	h = append(h, t...)
	h = append(h, ' ')
	h = strconv.AppendInt(h, int64(size), 10)
	return append(h, 0)
}

// Hash returns the oid of (t, data) without materializing the framed buffer.
func Hash(t Type, data []byte) Oid {
	h := sha1.New()
	h.Write(Header(t, len(data)))
	h.Write(data)
	return Oid(hex.EncodeToString(h.Sum(nil)))
}

// Wrap frames data with its header and returns the framed buffer's oid.
func Wrap(t Type, data []byte) (Oid, []byte) {
	header := Header(t, len(data))
	buf := make([]byte, 0, len(header)+len(data))
	buf = append(buf, header...)
	buf = append(buf, data...)
	sum := sha1.Sum(buf)
	return Oid(hex.EncodeToString(sum[:])), buf
}

// Unwrap parses a framed buffer. When oid is non-empty the buffer must hash
// to it.
func Unwrap(oid Oid, buf []byte) (Type, []byte, error) {
	if oid != "" {
		sum := sha1.Sum(buf)
		if got := Oid(hex.EncodeToString(sum[:])); got != oid {
			return "", nil, fmt.Errorf("%w: expected %s, got %s", kerrors.ErrHashMismatch, oid, got)
		}
	}

	space := bytes.IndexByte(buf, ' ')
	nul := bytes.IndexByte(buf, 0)
	if space < 0 || nul < 0 || space > nul {
		return "", nil, fmt.Errorf("%w: missing object header", kerrors.ErrInvalidObject)
	}

	t, err := ParseType(string(buf[:space]))
	if err != nil {
		return "", nil, err
	}
	length, err := strconv.Atoi(string(buf[space+1 : nul]))
	if err != nil || length < 0 {
		return "", nil, fmt.Errorf("%w: bad length %q", kerrors.ErrInvalidObject, buf[space+1:nul])
	}

	data := buf[nul+1:]
	if length != len(data) {
		return "", nil, fmt.Errorf("%w: header says %d, payload has %d", kerrors.ErrLengthMismatch, length, len(data))
	}
	return t, data, nil
}

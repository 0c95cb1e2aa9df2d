package object

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"

	kerrors "github.com/PolarWolf314/strongbox/internal/errors"
)

// OidHexSize is the length of a hex encoded oid.
const OidHexSize = 40

// Oid is the 40 character lowercase hex SHA-1 content address of an object.
type Oid string

// ZeroOid is used on the wire where a ref has no target.
const ZeroOid Oid = "0000000000000000000000000000000000000000"

// IsValid reports whether o is 40 lowercase hex characters.
func (o Oid) IsValid() bool {
	return IsOid(string(o))
}

func (o Oid) String() string {
	return string(o)
}

// Bytes returns the 20 raw digest bytes.
func (o Oid) Bytes() ([]byte, error) {
	if !o.IsValid() {
		return nil, fmt.Errorf("%w: %q", kerrors.ErrInvalidOid, string(o))
	}
	return hex.DecodeString(string(o))
}

// IsOid reports whether s is 40 lowercase hex characters.
func IsOid(s string) bool {
	if len(s) != OidHexSize {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// ParseOid validates s and returns it as an Oid.
func ParseOid(s string) (Oid, error) {
	if !IsOid(s) {
		return "", fmt.Errorf("%w: %q", kerrors.ErrInvalidOid, s)
	}
	return Oid(s), nil
}

// OidFromBytes converts 20 raw digest bytes to an Oid.
func OidFromBytes(b []byte) (Oid, error) {
	if len(b) != sha1.Size {
		return "", fmt.Errorf("%w: %d raw bytes", kerrors.ErrInvalidOid, len(b))
	}
	return Oid(hex.EncodeToString(b)), nil
}

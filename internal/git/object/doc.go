// Package object implements content addressing and the canonical byte layout
// of the objects strongbox keeps in a vault's history.
//
// Every object is a (type, bytes) pair. Its oid is the lowercase hex SHA-1 of
// the framed buffer
//
//	"<type> <byteLength>\x00" + bytes
//
// Wrap produces that buffer and the oid; Unwrap verifies and strips it.
//
// Blobs are opaque. Trees and commits have codecs built from named
// constructors: TreeFromBytes / NewTree and CommitFromBytes / NewCommit, and
// each renders back to canonical bytes with Bytes.
package object

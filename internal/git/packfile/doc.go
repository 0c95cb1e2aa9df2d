// Package packfile reads and writes the pack format used to move a vault's
// history between nodes.
//
// A pack is the magic "PACK", a big-endian version (2) and object count,
// then per object a variable-length type+size header followed by the
// zlib-deflated object bytes, and finally a SHA-1 over everything before it.
//
// The Encoder walks commit -> tree -> blob graphs reachable from refs and
// serializes them. The Decoder parses a pack stream object by object and is
// used to index packs received from peers. Delta representations are not
// produced and are rejected when read.
package packfile

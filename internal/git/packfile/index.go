package packfile

import (
	"bytes"
	"crypto/sha1"
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	kerrors "github.com/PolarWolf314/strongbox/internal/errors"
	"github.com/PolarWolf314/strongbox/internal/git/object"
)

var idxMagic = []byte{0xff, 't', 'O', 'c'}

const idxVersion = 2

// IndexEntry locates one object inside a pack.
type IndexEntry struct {
	Oid    object.Oid
	Offset int64
	CRC32  uint32
}

// Index is a version 2 pack index: the offset of every object in one pack.
type Index struct {
	// PackChecksum is the trailer of the pack this index describes.
	PackChecksum []byte

	offsets map[object.Oid]int64
	entries []IndexEntry
}

// NewIndex builds an index from entries in any order.
func NewIndex(entries []IndexEntry, packChecksum []byte) *Index {
	sorted := append([]IndexEntry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Oid < sorted[j].Oid })
	idx := &Index{
		PackChecksum: append([]byte(nil), packChecksum...),
		offsets:      make(map[object.Oid]int64, len(sorted)),
		entries:      sorted,
	}
	for _, e := range sorted {
		idx.offsets[e.Oid] = e.Offset
	}
	return idx
}

// Offset returns where oid starts in the pack.
func (idx *Index) Offset(oid object.Oid) (int64, bool) {
	off, ok := idx.offsets[oid]
	return off, ok
}

// Contains reports whether the pack holds oid.
func (idx *Index) Contains(oid object.Oid) bool {
	_, ok := idx.offsets[oid]
	return ok
}

// Entries returns the index entries sorted by oid.
func (idx *Index) Entries() []IndexEntry {
	return idx.entries
}

// Len returns the number of indexed objects.
func (idx *Index) Len() int {
	return len(idx.entries)
}

// WriteTo serializes the index in the version 2 layout.
func (idx *Index) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer
	buf.Write(idxMagic)
	binary.Write(&buf, binary.BigEndian, uint32(idxVersion))

	var fanout [256]uint32
	for _, e := range idx.entries {
		raw, err := e.Oid.Bytes()
		if err != nil {
			return 0, err
		}
		fanout[raw[0]]++
	}
	for i := 1; i < 256; i++ {
		fanout[i] += fanout[i-1]
	}
	for _, n := range fanout {
		binary.Write(&buf, binary.BigEndian, n)
	}

	for _, e := range idx.entries {
		raw, _ := e.Oid.Bytes()
		buf.Write(raw)
	}
	for _, e := range idx.entries {
		binary.Write(&buf, binary.BigEndian, e.CRC32)
	}

	var large []uint64
	for _, e := range idx.entries {
		if e.Offset < 0x80000000 {
			binary.Write(&buf, binary.BigEndian, uint32(e.Offset))
			continue
		}
		binary.Write(&buf, binary.BigEndian, uint32(0x80000000|len(large)))
		large = append(large, uint64(e.Offset))
	}
	for _, off := range large {
		binary.Write(&buf, binary.BigEndian, off)
	}

	buf.Write(idx.PackChecksum)
	sum := sha1.Sum(buf.Bytes())
	buf.Write(sum[:])

	n, err := w.Write(buf.Bytes())
	return int64(n), err
}

// ReadIndex parses a version 2 pack index and verifies its checksum.
func ReadIndex(r io.Reader) (*Index, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	const headerSize = 8 + 256*4
	if len(data) < headerSize+2*sha1.Size {
		return nil, fmt.Errorf("%w: too short", kerrors.ErrInvalidPackIndex)
	}
	if !bytes.Equal(data[:4], idxMagic) || binary.BigEndian.Uint32(data[4:8]) != idxVersion {
		return nil, fmt.Errorf("%w: unsupported header", kerrors.ErrInvalidPackIndex)
	}
	body := data[:len(data)-sha1.Size]
	if sum := sha1.Sum(body); !bytes.Equal(sum[:], data[len(data)-sha1.Size:]) {
		return nil, fmt.Errorf("%w: checksum mismatch", kerrors.ErrInvalidPackIndex)
	}

	count := int(binary.BigEndian.Uint32(data[8+255*4 : headerSize]))
	oidsAt := headerSize
	crcAt := oidsAt + count*sha1.Size
	offAt := crcAt + count*4
	largeAt := offAt + count*4
	if largeAt+2*sha1.Size > len(data) {
		return nil, fmt.Errorf("%w: truncated tables", kerrors.ErrInvalidPackIndex)
	}

	entries := make([]IndexEntry, count)
	for i := 0; i < count; i++ {
		oid, err := object.OidFromBytes(data[oidsAt+i*sha1.Size : oidsAt+(i+1)*sha1.Size])
		if err != nil {
			return nil, err
		}
		off := int64(binary.BigEndian.Uint32(data[offAt+i*4:]))
		if off&0x80000000 != 0 {
			at := largeAt + int(off&0x7fffffff)*8
			if at+8 > len(data)-2*sha1.Size {
				return nil, fmt.Errorf("%w: bad large offset", kerrors.ErrInvalidPackIndex)
			}
			off = int64(binary.BigEndian.Uint64(data[at:]))
		}
		entries[i] = IndexEntry{
			Oid:    oid,
			CRC32:  binary.BigEndian.Uint32(data[crcAt+i*4:]),
			Offset: off,
		}
	}

	packSum := data[len(data)-2*sha1.Size : len(data)-sha1.Size]
	return NewIndex(entries, packSum), nil
}

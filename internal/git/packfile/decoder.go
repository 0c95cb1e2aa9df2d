package packfile

import (
	"bufio"
	"bytes"
	"compress/zlib"
	"crypto/sha1"
	"encoding/binary"
	"fmt"
	"hash"
	"hash/crc32"
	"io"

	kerrors "github.com/PolarWolf314/strongbox/internal/errors"
	"github.com/PolarWolf314/strongbox/internal/git/object"
)

// Entry is one object decoded from a pack stream.
type Entry struct {
	Oid    object.Oid
	Type   object.Type
	Data   []byte
	Offset int64
	CRC32  uint32
}

// countingReader tracks exactly how many pack bytes the decoder consumed.
// It implements io.ByteReader so the inflater never reads past an entry.
type countingReader struct {
	r    *bufio.Reader
	n    int64
	sum  hash.Hash
	crc  hash.Hash32
	sink io.Writer
	err  error
	one  [1]byte
}

func (c *countingReader) consume(p []byte) {
	c.n += int64(len(p))
	c.sum.Write(p)
	c.crc.Write(p)
	if c.sink != nil && c.err == nil {
		_, c.err = c.sink.Write(p)
	}
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.consume(p[:n])
	return n, err
}

func (c *countingReader) ReadByte() (byte, error) {
	b, err := c.r.ReadByte()
	if err != nil {
		return 0, err
	}
	c.one[0] = b
	c.consume(c.one[:])
	return b, nil
}

// Decoder parses a pack stream.
type Decoder struct {
	cr *countingReader
}

// NewDecoder reads a pack from r. When sink is non-nil it receives every
// byte that belongs to the pack, trailer included, and nothing after it.
func NewDecoder(r io.Reader, sink io.Writer) *Decoder {
	return &Decoder{cr: &countingReader{
		r:    bufio.NewReader(r),
		sum:  sha1.New(),
		crc:  crc32.NewIEEE(),
		sink: sink,
	}}
}

// Decode calls fn for each object in pack order, then verifies the trailer
// and returns it.
func (d *Decoder) Decode(fn func(Entry) error) ([]byte, error) {
	cr := d.cr

	var header [12]byte
	if _, err := io.ReadFull(cr, header[:]); err != nil {
		return nil, fmt.Errorf("%w: reading header: %v", kerrors.ErrInvalidPackfile, err)
	}
	if string(header[:4]) != Signature {
		return nil, fmt.Errorf("%w: bad signature %q", kerrors.ErrInvalidPackfile, header[:4])
	}
	if v := binary.BigEndian.Uint32(header[4:8]); v != 2 && v != 3 {
		return nil, fmt.Errorf("%w: unsupported version %d", kerrors.ErrInvalidPackfile, v)
	}
	count := binary.BigEndian.Uint32(header[8:12])

	for i := uint32(0); i < count; i++ {
		entry, err := d.next()
		if err != nil {
			return nil, fmt.Errorf("object %d of %d: %w", i+1, count, err)
		}
		if err := fn(entry); err != nil {
			return nil, err
		}
	}

	want := cr.sum.Sum(nil)
	trailer := make([]byte, sha1.Size)
	if _, err := io.ReadFull(cr, trailer); err != nil {
		return nil, fmt.Errorf("%w: reading trailer: %v", kerrors.ErrInvalidPackfile, err)
	}
	if !bytes.Equal(want, trailer) {
		return nil, kerrors.ErrPackChecksum
	}
	if cr.err != nil {
		return nil, cr.err
	}
	return trailer, nil
}

func (d *Decoder) next() (Entry, error) {
	cr := d.cr
	offset := cr.n
	cr.crc.Reset()

	code, size, err := ReadEntryHeader(cr)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: entry header: %v", kerrors.ErrInvalidPackfile, err)
	}
	typ, err := TypeForCode(code)
	if err != nil {
		return Entry{}, err
	}
	data, err := inflate(cr, size)
	if err != nil {
		return Entry{}, err
	}

	return Entry{
		Oid:    object.Hash(typ, data),
		Type:   typ,
		Data:   data,
		Offset: offset,
		CRC32:  cr.crc.Sum32(),
	}, nil
}

// inflate reads one zlib stream that must expand to exactly size bytes.
func inflate(r io.Reader, size int64) ([]byte, error) {
	zr, err := zlib.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", kerrors.ErrInvalidPackfile, err)
	}
	defer zr.Close()

	data := make([]byte, size)
	if _, err := io.ReadFull(zr, data); err != nil {
		return nil, fmt.Errorf("%w: inflating: %v", kerrors.ErrInvalidPackfile, err)
	}
	var probe [1]byte
	if n, err := io.ReadFull(zr, probe[:]); n != 0 || err != io.EOF {
		return nil, fmt.Errorf("%w: entry inflates past its declared size", kerrors.ErrLengthMismatch)
	}
	return data, nil
}

// ReadObjectAt decodes the object stored at offset in a fully loaded pack.
func ReadObjectAt(pack []byte, offset int64) (object.Type, []byte, error) {
	if offset < 12 || offset >= int64(len(pack)) {
		return "", nil, fmt.Errorf("%w: offset %d out of range", kerrors.ErrInvalidPackfile, offset)
	}
	r := bytes.NewReader(pack[offset:])
	code, size, err := ReadEntryHeader(r)
	if err != nil {
		return "", nil, fmt.Errorf("%w: entry header: %v", kerrors.ErrInvalidPackfile, err)
	}
	typ, err := TypeForCode(code)
	if err != nil {
		return "", nil, err
	}
	data, err := inflate(r, size)
	if err != nil {
		return "", nil, err
	}
	return typ, data, nil
}

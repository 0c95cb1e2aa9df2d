package protocol

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	kerrors "github.com/PolarWolf314/strongbox/internal/errors"
)

const (
	// MaxPayload is the largest payload a single pkt-line can carry.
	MaxPayload = 65516

	lengthSize = 4
	maxFrame   = MaxPayload + lengthSize
)

var flushPkt = []byte("0000")

// Encode frames payload as a pkt-line.
func Encode(payload []byte) ([]byte, error) {
	if len(payload) > MaxPayload {
		return nil, fmt.Errorf("%w: %d bytes", kerrors.ErrPayloadTooLarge, len(payload))
	}
	frame := make([]byte, lengthSize, lengthSize+len(payload))
	copy(frame, fmt.Sprintf("%04x", len(payload)+lengthSize))
	return append(frame, payload...), nil
}

// EncodeString frames a text line. The caller supplies any trailing newline.
func EncodeString(format string, args ...any) ([]byte, error) {
	return Encode([]byte(fmt.Sprintf(format, args...)))
}

// Flush returns a flush-pkt.
func Flush() []byte {
	return append([]byte(nil), flushPkt...)
}

// Packet is one frame read by a Reader.
type Packet struct {
	Payload []byte
	Flush   bool
}

// Reader reads pkt-lines from a stream without reading past the frame it
// returns.
type Reader struct {
	r      io.Reader
	header [lengthSize]byte
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// Next returns the next frame. It returns io.EOF when the stream ends
// cleanly between frames.
func (pr *Reader) Next() (Packet, error) {
	if _, err := io.ReadFull(pr.r, pr.header[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return Packet{}, io.EOF
		}
		return Packet{}, fmt.Errorf("%w: reading length: %v", kerrors.ErrMalformedPktLine, err)
	}

	length, err := strconv.ParseUint(string(pr.header[:]), 16, 16)
	if err != nil {
		return Packet{}, fmt.Errorf("%w: bad length %q", kerrors.ErrMalformedPktLine, pr.header[:])
	}
	if length == 0 {
		return Packet{Flush: true}, nil
	}
	if length < lengthSize || length > maxFrame {
		return Packet{}, fmt.Errorf("%w: length %d out of range", kerrors.ErrMalformedPktLine, length)
	}

	payload := make([]byte, length-lengthSize)
	if _, err := io.ReadFull(pr.r, payload); err != nil {
		return Packet{}, fmt.Errorf("%w: reading %d byte payload: %v", kerrors.ErrMalformedPktLine, len(payload), err)
	}
	return Packet{Payload: payload}, nil
}

// ReadUntilFlush returns the payloads up to the next flush-pkt or the end of
// the stream.
func (pr *Reader) ReadUntilFlush() ([][]byte, error) {
	var lines [][]byte
	for {
		pkt, err := pr.Next()
		if errors.Is(err, io.EOF) || pkt.Flush {
			return lines, nil
		}
		if err != nil {
			return lines, err
		}
		lines = append(lines, pkt.Payload)
	}
}

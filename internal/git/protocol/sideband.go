package protocol

import (
	"context"
	"errors"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"

	kerrors "github.com/PolarWolf314/strongbox/internal/errors"
)

// Variant is a side-band capability.
type Variant string

const (
	SideBand    Variant = "side-band"
	SideBand64k Variant = "side-band-64k"
)

// Band bytes.
const (
	BandPack     byte = 1
	BandProgress byte = 2
	BandError    byte = 3
)

// ChunkSize is the most data one side-band frame carries for a variant:
// the frame limit minus the length prefix and the band byte.
func (v Variant) ChunkSize() int {
	if v == SideBand {
		return 1000 - lengthSize - 1
	}
	return MaxPayload - 1
}

func bandFrame(band byte, data []byte) ([]byte, error) {
	payload := make([]byte, 0, len(data)+1)
	payload = append(payload, band)
	return Encode(append(payload, data...))
}

// Mux writes pack and progress to w as side-band frames, in whatever order
// the two sources produce data. It returns once both sources reach EOF. If
// any pack data was sent, a flush-pkt follows the last frame. Either source
// may be nil.
//
// A read error on the pack source is reported to the peer on the error band
// before Mux returns it.
func Mux(ctx context.Context, w io.Writer, variant Variant, pack, progress io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	frames := make(chan []byte)
	packSent := make(chan struct{}, 1)

	send := func(frame []byte) error {
		select {
		case frames <- frame:
			return nil
		case <-gctx.Done():
			return gctx.Err()
		}
	}

	pump := func(band byte, r io.Reader) func() error {
		return func() error {
			buf := make([]byte, variant.ChunkSize())
			for {
				n, err := r.Read(buf)
				if n > 0 {
					frame, ferr := bandFrame(band, buf[:n])
					if ferr != nil {
						return ferr
					}
					if serr := send(frame); serr != nil {
						return serr
					}
					if band == BandPack {
						select {
						case packSent <- struct{}{}:
						default:
						}
					}
				}
				if errors.Is(err, io.EOF) {
					return nil
				}
				if err != nil {
					if band == BandPack {
						msg := err.Error()
						if len(msg) > variant.ChunkSize() {
							msg = msg[:variant.ChunkSize()]
						}
						if frame, ferr := bandFrame(BandError, []byte(msg)); ferr == nil {
							send(frame)
						}
					}
					return err
				}
			}
		}
	}

	if pack != nil {
		g.Go(pump(BandPack, pack))
	}
	if progress != nil {
		g.Go(pump(BandProgress, progress))
	}

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
		close(frames)
	}()

	var writeErr error
	for frame := range frames {
		if writeErr != nil {
			continue
		}
		if _, err := w.Write(frame); err != nil {
			writeErr = err
			cancel()
		}
	}
	err := <-done
	if writeErr != nil {
		return writeErr
	}
	if err != nil {
		return err
	}

	select {
	case <-packSent:
		_, err = w.Write(flushPkt)
		return err
	default:
		return nil
	}
}

// Demuxer reads the pack band of a side-band stream. Progress text is
// copied to Progress as it arrives; an error band frame ends the stream
// with a *errors.RemoteError.
type Demuxer struct {
	r        *Reader
	progress io.Writer
	pending  []byte
	err      error
}

// NewDemuxer reads side-band frames from r. progress may be nil.
func NewDemuxer(r *Reader, progress io.Writer) *Demuxer {
	if progress == nil {
		progress = io.Discard
	}
	return &Demuxer{r: r, progress: progress}
}

func (d *Demuxer) Read(p []byte) (int, error) {
	for len(d.pending) == 0 {
		if d.err != nil {
			return 0, d.err
		}
		pkt, err := d.r.Next()
		if err != nil {
			d.err = err
			continue
		}
		if pkt.Flush || len(pkt.Payload) == 0 {
			continue
		}

		band, data := pkt.Payload[0], pkt.Payload[1:]
		switch band {
		case BandPack:
			d.pending = data
		case BandProgress:
			d.progress.Write(data)
		case BandError:
			d.err = &kerrors.RemoteError{Message: string(data)}
		default:
			d.err = fmt.Errorf("%w: unknown band %d", kerrors.ErrMalformedPktLine, band)
		}
	}

	n := copy(p, d.pending)
	d.pending = d.pending[n:]
	return n, nil
}

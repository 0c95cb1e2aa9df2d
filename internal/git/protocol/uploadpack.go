package protocol

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	kerrors "github.com/PolarWolf314/strongbox/internal/errors"
	"github.com/PolarWolf314/strongbox/internal/git/object"
)

// WantRequest is a parsed upload-pack request.
type WantRequest struct {
	Want         object.Oid
	Capabilities []string
	Haves        []object.Oid
}

// Variant returns the side-band variant the client asked for.
func (r *WantRequest) Variant() Variant {
	for _, c := range r.Capabilities {
		if c == string(SideBand64k) {
			return SideBand64k
		}
	}
	for _, c := range r.Capabilities {
		if c == string(SideBand) {
			return SideBand
		}
	}
	return SideBand64k
}

// WriteWantRequest writes a request for want. The want line carries caps;
// haves follow the flush-pkt and "done" ends the request.
func WriteWantRequest(w io.Writer, want object.Oid, caps []string, haves []object.Oid) error {
	var buf bytes.Buffer
	line := "want " + string(want)
	if len(caps) > 0 {
		line += " " + strings.Join(caps, " ")
	}
	frame, err := Encode([]byte(line + "\n"))
	if err != nil {
		return err
	}
	buf.Write(frame)
	buf.Write(flushPkt)
	for _, have := range haves {
		frame, err := Encode([]byte("have " + string(have) + "\n"))
		if err != nil {
			return err
		}
		buf.Write(frame)
	}
	frame, err = Encode([]byte("done\n"))
	if err != nil {
		return err
	}
	buf.Write(frame)
	_, err = w.Write(buf.Bytes())
	return err
}

// ParseWantRequest reads an upload-pack request body. Only the first want
// is honoured: "want" must sit at byte offset 4 and the oid at offset 9.
// Have lines are picked up on a best-effort basis; anything unparsable
// after the want line is ignored.
func ParseWantRequest(body []byte) (*WantRequest, error) {
	if len(body) < 49 || string(body[4:8]) != "want" {
		return nil, fmt.Errorf("%w: missing want line", kerrors.ErrInvalidWantRequest)
	}
	want, err := object.ParseOid(string(body[9:49]))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", kerrors.ErrInvalidWantRequest, err)
	}
	req := &WantRequest{Want: want}

	pr := NewReader(bytes.NewReader(body))
	first, err := pr.Next()
	if err != nil {
		return req, nil
	}
	fields := strings.Fields(string(first.Payload))
	if len(fields) > 2 {
		req.Capabilities = fields[2:]
	}
	for {
		pkt, err := pr.Next()
		if err != nil {
			break
		}
		if pkt.Flush {
			continue
		}
		line := strings.TrimSpace(string(pkt.Payload))
		if line == "done" {
			break
		}
		if have, ok := strings.CutPrefix(line, "have "); ok && object.IsOid(have) {
			req.Haves = append(req.Haves, object.Oid(have))
		}
	}
	return req, nil
}

// ServePack answers a want request: a NAK line, then pack and progress
// multiplexed on the side-band.
func ServePack(ctx context.Context, w io.Writer, variant Variant, pack, progress io.Reader) error {
	nak, err := Encode([]byte("NAK\n"))
	if err != nil {
		return err
	}
	if _, err := w.Write(nak); err != nil {
		return err
	}
	return Mux(ctx, w, variant, pack, progress)
}

// ReadPackResponse consumes the acknowledgement lines of an upload-pack
// response and returns a reader over the pack band.
func ReadPackResponse(r io.Reader, progress io.Writer) (*Demuxer, error) {
	pr := NewReader(r)
	for {
		pkt, err := pr.Next()
		if err != nil {
			return nil, fmt.Errorf("reading acknowledgement: %w", err)
		}
		if pkt.Flush {
			continue
		}
		line := strings.TrimSpace(string(pkt.Payload))
		if line == "NAK" {
			break
		}
		if strings.HasPrefix(line, "ACK ") {
			continue
		}
		if msg, ok := strings.CutPrefix(line, "ERR "); ok {
			return nil, &kerrors.RemoteError{Message: msg}
		}
		return nil, fmt.Errorf("%w: unexpected line %q", kerrors.ErrMalformedPktLine, line)
	}
	return NewDemuxer(pr, progress), nil
}

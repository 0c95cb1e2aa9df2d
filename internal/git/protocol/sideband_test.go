package protocol

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math/rand"
	"testing"

	"github.com/go-git/go-git/v5/plumbing/protocol/packp/sideband"

	kerrors "github.com/PolarWolf314/strongbox/internal/errors"
)

func randomBytes(n int) []byte {
	b := make([]byte, n)
	rand.New(rand.NewSource(int64(n))).Read(b)
	return b
}

func TestMuxDemuxRoundTrip(t *testing.T) {
	for _, variant := range []Variant{SideBand, SideBand64k} {
		t.Run(string(variant), func(t *testing.T) {
			pack := randomBytes(200_000)
			progress := []byte("Counting objects: 3\nCompressing objects: 100%\n")

			var wire bytes.Buffer
			err := Mux(context.Background(), &wire, variant, bytes.NewReader(pack), bytes.NewReader(progress))
			if err != nil {
				t.Fatalf("Failed to mux: %v", err)
			}
			if !bytes.HasSuffix(wire.Bytes(), []byte("0000")) {
				t.Errorf("Expected a flush-pkt after the pack data")
			}

			var gotProgress bytes.Buffer
			got, err := io.ReadAll(NewDemuxer(NewReader(&wire), &gotProgress))
			if err != nil {
				t.Fatalf("Failed to demux: %v", err)
			}
			if !bytes.Equal(got, pack) {
				t.Errorf("Pack data changed through mux/demux (%d vs %d bytes)", len(got), len(pack))
			}
			if !bytes.Equal(gotProgress.Bytes(), progress) {
				t.Errorf("Expected progress %q, got %q", progress, gotProgress.Bytes())
			}
		})
	}
}

func TestMuxFrameSizes(t *testing.T) {
	var wire bytes.Buffer
	if err := Mux(context.Background(), &wire, SideBand, bytes.NewReader(randomBytes(5000)), nil); err != nil {
		t.Fatalf("Failed to mux: %v", err)
	}
	r := NewReader(&wire)
	for {
		pkt, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Failed to read frame: %v", err)
		}
		if len(pkt.Payload)+4 > 1000 {
			t.Errorf("side-band frame of %d bytes exceeds 1000", len(pkt.Payload)+4)
		}
	}
}

func TestMuxWithoutPackHasNoFlush(t *testing.T) {
	var wire bytes.Buffer
	if err := Mux(context.Background(), &wire, SideBand64k, nil, bytes.NewReader([]byte("hi\n"))); err != nil {
		t.Fatalf("Failed to mux: %v", err)
	}
	if bytes.HasSuffix(wire.Bytes(), []byte("0000")) {
		t.Errorf("Expected no flush-pkt when no pack data was sent")
	}
}

func TestMuxReadableByGoGit(t *testing.T) {
	pack := randomBytes(150_000)
	var wire bytes.Buffer
	if err := Mux(context.Background(), &wire, SideBand64k, bytes.NewReader(pack), bytes.NewReader([]byte("progress\n"))); err != nil {
		t.Fatalf("Failed to mux: %v", err)
	}

	var progress bytes.Buffer
	demux := sideband.NewDemuxer(sideband.Sideband64k, &wire)
	demux.Progress = &progress
	got, err := io.ReadAll(demux)
	if err != nil {
		t.Fatalf("go-git demuxer failed: %v", err)
	}
	if !bytes.Equal(got, pack) {
		t.Errorf("go-git recovered %d bytes, expected %d", len(got), len(pack))
	}
	if progress.String() != "progress\n" {
		t.Errorf("Expected progress text, got %q", progress.String())
	}
}

type failingReader struct{ err error }

func (f failingReader) Read([]byte) (int, error) { return 0, f.err }

func TestMuxReportsPackErrorOnErrorBand(t *testing.T) {
	var wire bytes.Buffer
	boom := errors.New("object store exploded")
	err := Mux(context.Background(), &wire, SideBand64k, io.MultiReader(bytes.NewReader([]byte("PACK")), failingReader{boom}), nil)
	if !errors.Is(err, boom) {
		t.Fatalf("Expected mux to return the pack error, got %v", err)
	}

	_, err = io.ReadAll(NewDemuxer(NewReader(&wire), nil))
	var remote *kerrors.RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("Expected a RemoteError, got %v", err)
	}
	if remote.Message != boom.Error() {
		t.Errorf("Expected message %q, got %q", boom.Error(), remote.Message)
	}
	if !errors.Is(err, kerrors.ErrRemote) {
		t.Errorf("Expected RemoteError to unwrap to ErrRemote")
	}
}

type failingWriter struct{ n int }

func (w *failingWriter) Write(p []byte) (int, error) {
	if w.n == 0 {
		return 0, io.ErrClosedPipe
	}
	w.n--
	return len(p), nil
}

func TestMuxStopsOnWriteError(t *testing.T) {
	err := Mux(context.Background(), &failingWriter{n: 2}, SideBand, bytes.NewReader(randomBytes(100_000)), nil)
	if !errors.Is(err, io.ErrClosedPipe) {
		t.Errorf("Expected the write error, got %v", err)
	}
}

func TestDemuxerRejectsUnknownBand(t *testing.T) {
	frame, _ := Encode([]byte{9, 'x'})
	_, err := io.ReadAll(NewDemuxer(NewReader(bytes.NewReader(frame)), nil))
	if !errors.Is(err, kerrors.ErrMalformedPktLine) {
		t.Errorf("Expected ErrMalformedPktLine, got %v", err)
	}
}

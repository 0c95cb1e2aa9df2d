package packfile

import (
	"bytes"
	"context"
	"crypto/sha1"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
	gitpack "github.com/go-git/go-git/v5/plumbing/format/packfile"
	"github.com/go-git/go-git/v5/storage/memory"

	kerrors "github.com/PolarWolf314/strongbox/internal/errors"
	"github.com/PolarWolf314/strongbox/internal/git/object"
	logger "github.com/PolarWolf314/strongbox/internal/logging"
)

type memObjects map[object.Oid][]byte

func (m memObjects) put(t object.Type, data []byte) object.Oid {
	oid, wrapped := object.Wrap(t, data)
	m[oid] = wrapped
	return oid
}

func (m memObjects) ReadObject(oid object.Oid) (object.Type, []byte, error) {
	wrapped, ok := m[oid]
	if !ok {
		return "", nil, fmt.Errorf("%w: %s", kerrors.ErrReadObject, oid)
	}
	return object.Unwrap(oid, wrapped)
}

type memRefs map[string]object.Oid

func (m memRefs) Resolve(ref string) (string, error) {
	if object.IsOid(ref) {
		return ref, nil
	}
	oid, ok := m[ref]
	if !ok {
		return "", kerrors.ErrRefNotFound
	}
	return string(oid), nil
}

// buildHistory writes n commits, each adding one secret file.
func buildHistory(t *testing.T, objs memObjects, n int) []object.Oid {
	t.Helper()
	var commits []object.Oid
	var entries []object.TreeEntry
	base := time.Unix(1700000000, 0).UTC()
	for i := 0; i < n; i++ {
		blob := objs.put(object.TypeBlob, []byte(fmt.Sprintf("secret value %d", i)))
		entries = append(entries, object.TreeEntry{Mode: object.ModeFile, Path: fmt.Sprintf("secret-%d", i), Oid: blob})
		sub, err := object.NewTree([]object.TreeEntry{{Mode: object.ModeFile, Path: "nested", Oid: blob}})
		if err != nil {
			t.Fatalf("Failed to build subtree: %v", err)
		}
		subData, err := sub.Bytes()
		if err != nil {
			t.Fatalf("Failed to render subtree: %v", err)
		}
		subOid := objs.put(object.TypeTree, subData)
		all := append(append([]object.TreeEntry(nil), entries...), object.TreeEntry{Mode: object.ModeTree, Path: "dir", Oid: subOid})
		tree, err := object.NewTree(all)
		if err != nil {
			t.Fatalf("Failed to build tree: %v", err)
		}
		treeData, err := tree.Bytes()
		if err != nil {
			t.Fatalf("Failed to render tree: %v", err)
		}
		treeOid := objs.put(object.TypeTree, treeData)

		sig := object.NewSignature("Node A", "a@example.com", base.Add(time.Duration(i)*time.Minute))
		fields := object.CommitFields{Tree: treeOid, Author: sig, Message: fmt.Sprintf("Add secret: secret-%d\n", i)}
		if len(commits) > 0 {
			fields.Parents = []object.Oid{commits[len(commits)-1]}
		}
		commit, err := object.NewCommit(fields)
		if err != nil {
			t.Fatalf("Failed to build commit: %v", err)
		}
		commits = append(commits, objs.put(object.TypeCommit, commit.Bytes()))
	}
	return commits
}

func encode(t *testing.T, objs memObjects, refs memRefs, opts Options) ([]byte, *Plan) {
	t.Helper()
	enc := NewEncoder(objs, refs, logger.Logger{})
	plan, err := enc.Plan(opts)
	if err != nil {
		t.Fatalf("Failed to plan pack: %v", err)
	}
	var buf bytes.Buffer
	if err := enc.Write(context.Background(), &buf, plan.Objects); err != nil {
		t.Fatalf("Failed to write pack: %v", err)
	}
	return buf.Bytes(), plan
}

func TestEntryHeaderRoundTrip(t *testing.T) {
	sizes := []int64{0, 1, 15, 16, 127, 128, 4095, 4096, 1 << 20, 1<<35 + 3}
	for _, size := range sizes {
		for _, code := range []byte{CodeCommit, CodeTree, CodeBlob, CodeTag} {
			buf := AppendEntryHeader(nil, code, size)
			gotCode, gotSize, err := ReadEntryHeader(bytes.NewReader(buf))
			if err != nil {
				t.Fatalf("Failed to read header for size %d: %v", size, err)
			}
			if gotCode != code || gotSize != size {
				t.Errorf("Header round trip (%d, %d) = (%d, %d)", code, size, gotCode, gotSize)
			}
		}
	}

	// 4 low bits in the first byte, then 7 per continuation byte.
	if got := AppendEntryHeader(nil, CodeBlob, 15); !bytes.Equal(got, []byte{0x3f}) {
		t.Errorf("Expected single byte header 0x3f, got %x", got)
	}
	if got := AppendEntryHeader(nil, CodeBlob, 16); !bytes.Equal(got, []byte{0xb0, 0x01}) {
		t.Errorf("Expected header b001, got %x", got)
	}
}

func TestTypeForCodeRejectsDeltas(t *testing.T) {
	for _, code := range []byte{CodeOfsDelta, CodeRefDelta} {
		if _, err := TypeForCode(code); !errors.Is(err, kerrors.ErrUnsupportedDelta) {
			t.Errorf("Expected ErrUnsupportedDelta for code %d, got %v", code, err)
		}
	}
}

func TestPackTrailerIsChecksum(t *testing.T) {
	objs := memObjects{}
	commits := buildHistory(t, objs, 3)
	pack, _ := encode(t, objs, memRefs{"refs/heads/master": commits[2]}, Options{Refs: []string{"refs/heads/master"}})

	if string(pack[:4]) != Signature {
		t.Fatalf("Expected PACK signature, got %q", pack[:4])
	}
	body, trailer := pack[:len(pack)-sha1.Size], pack[len(pack)-sha1.Size:]
	sum := sha1.Sum(body)
	if !bytes.Equal(sum[:], trailer) {
		t.Errorf("Trailer %x does not match SHA-1 of body %x", trailer, sum)
	}
}

func TestPackDecodesWithGoGit(t *testing.T) {
	objs := memObjects{}
	commits := buildHistory(t, objs, 4)
	pack, plan := encode(t, objs, memRefs{"refs/heads/master": commits[3]}, Options{Refs: []string{"refs/heads/master"}})

	if len(plan.Objects) != len(objs) {
		t.Fatalf("Expected every stored object to be packed, got %d of %d", len(plan.Objects), len(objs))
	}

	storage := memory.NewStorage()
	if err := gitpack.UpdateObjectStorage(storage, bytes.NewReader(pack)); err != nil {
		t.Fatalf("Failed to decode pack with go-git: %v", err)
	}

	for oid, wrapped := range objs {
		typ, want, _ := object.Unwrap(oid, wrapped)
		got, err := storage.EncodedObject(plumbing.AnyObject, plumbing.NewHash(string(oid)))
		if err != nil {
			t.Fatalf("go-git is missing %s (%s): %v", oid, typ, err)
		}
		if got.Type().String() != string(typ) {
			t.Errorf("Object %s: expected type %s, got %s", oid, typ, got.Type())
		}
		r, err := got.Reader()
		if err != nil {
			t.Fatalf("Failed to open %s: %v", oid, err)
		}
		data, err := io.ReadAll(r)
		r.Close()
		if err != nil {
			t.Fatalf("Failed to read %s: %v", oid, err)
		}
		if !bytes.Equal(data, want) {
			t.Errorf("Object %s differs after go-git decode", oid)
		}
	}
}

func TestDecoderRoundTrip(t *testing.T) {
	objs := memObjects{}
	commits := buildHistory(t, objs, 3)
	pack, plan := encode(t, objs, memRefs{"refs/heads/master": commits[2]}, Options{Refs: []string{"refs/heads/master"}})

	// Trailing bytes after the pack must not reach the sink.
	var sink bytes.Buffer
	dec := NewDecoder(io.MultiReader(bytes.NewReader(pack), bytes.NewReader([]byte("extra"))), &sink)

	var entries []Entry
	checksum, err := dec.Decode(func(e Entry) error {
		entries = append(entries, e)
		return nil
	})
	if err != nil {
		t.Fatalf("Failed to decode pack: %v", err)
	}
	if !bytes.Equal(checksum, pack[len(pack)-sha1.Size:]) {
		t.Errorf("Decoder returned checksum %x, want trailer", checksum)
	}
	if !bytes.Equal(sink.Bytes(), pack) {
		t.Errorf("Sink received %d bytes, expected exactly the %d pack bytes", sink.Len(), len(pack))
	}
	if len(entries) != len(plan.Objects) {
		t.Fatalf("Expected %d entries, got %d", len(plan.Objects), len(entries))
	}
	for i, e := range entries {
		if e.Oid != plan.Objects[i] {
			t.Errorf("Entry %d: expected %s, got %s", i, plan.Objects[i], e.Oid)
		}
		typ, data, err := ReadObjectAt(pack, e.Offset)
		if err != nil {
			t.Fatalf("Failed to read entry at %d: %v", e.Offset, err)
		}
		if typ != e.Type || !bytes.Equal(data, e.Data) {
			t.Errorf("ReadObjectAt(%d) disagrees with the decoded entry", e.Offset)
		}
	}
}

func TestDecoderDetectsCorruptTrailer(t *testing.T) {
	objs := memObjects{}
	commits := buildHistory(t, objs, 1)
	pack, _ := encode(t, objs, memRefs{"refs/heads/master": commits[0]}, Options{Refs: []string{"refs/heads/master"}})
	pack[len(pack)-1] ^= 0xff

	_, err := NewDecoder(bytes.NewReader(pack), nil).Decode(func(Entry) error { return nil })
	if !errors.Is(err, kerrors.ErrPackChecksum) {
		t.Errorf("Expected ErrPackChecksum, got %v", err)
	}
}

func TestListCommitsStopsAtHaves(t *testing.T) {
	objs := memObjects{}
	commits := buildHistory(t, objs, 5)
	enc := NewEncoder(objs, memRefs{"refs/heads/master": commits[4]}, logger.Logger{})

	plan, err := enc.ListCommits(Options{Refs: []string{"refs/heads/master"}, Haves: []object.Oid{commits[2]}})
	if err != nil {
		t.Fatalf("Failed to list commits: %v", err)
	}
	want := []object.Oid{commits[4], commits[3]}
	if fmt.Sprint(plan.Commits) != fmt.Sprint(want) {
		t.Errorf("Expected commits %v, got %v", want, plan.Commits)
	}
	if len(plan.Acks) != 1 || plan.Acks[0] != commits[2] {
		t.Errorf("Expected %s to be acked, got %v", commits[2], plan.Acks)
	}
}

func TestListCommitsDepthMarksShallow(t *testing.T) {
	objs := memObjects{}
	commits := buildHistory(t, objs, 5)
	enc := NewEncoder(objs, memRefs{"refs/heads/master": commits[4]}, logger.Logger{})

	plan, err := enc.ListCommits(Options{Refs: []string{"refs/heads/master"}, Depth: 2})
	if err != nil {
		t.Fatalf("Failed to list commits: %v", err)
	}
	if len(plan.Commits) != 2 {
		t.Fatalf("Expected 2 commits, got %d", len(plan.Commits))
	}
	if len(plan.Shallow) != 1 || plan.Shallow[0] != commits[3] {
		t.Errorf("Expected %s to be shallow, got %v", commits[3], plan.Shallow)
	}
}

func TestListCommitsSince(t *testing.T) {
	objs := memObjects{}
	commits := buildHistory(t, objs, 5)
	enc := NewEncoder(objs, memRefs{"refs/heads/master": commits[4]}, logger.Logger{})

	// Commits are one minute apart starting at 1700000000.
	since := time.Unix(1700000000, 0).Add(150 * time.Second)
	plan, err := enc.ListCommits(Options{Refs: []string{"refs/heads/master"}, Since: since})
	if err != nil {
		t.Fatalf("Failed to list commits: %v", err)
	}
	want := []object.Oid{commits[4], commits[3]}
	if fmt.Sprint(plan.Commits) != fmt.Sprint(want) {
		t.Errorf("Expected commits %v, got %v", want, plan.Commits)
	}
	if len(plan.Shallow) != 1 || plan.Shallow[0] != commits[3] {
		t.Errorf("Expected %s to be shallow, got %v", commits[3], plan.Shallow)
	}
}

func TestStreamMatchesWrite(t *testing.T) {
	objs := memObjects{}
	commits := buildHistory(t, objs, 3)
	refs := memRefs{"refs/heads/master": commits[2]}
	pack, plan := encode(t, objs, refs, Options{Refs: []string{"refs/heads/master"}})

	enc := NewEncoder(objs, refs, logger.Logger{})
	stream := enc.Stream(context.Background(), plan.Objects)
	defer stream.Close()
	got, err := io.ReadAll(stream)
	if err != nil {
		t.Fatalf("Failed to read stream: %v", err)
	}
	if !bytes.Equal(got, pack) {
		t.Errorf("Streamed pack differs from written pack")
	}
}

func TestStreamStopsWhenReaderCloses(t *testing.T) {
	objs := memObjects{}
	commits := buildHistory(t, objs, 3)
	enc := NewEncoder(objs, memRefs{}, logger.Logger{})

	stream := enc.Stream(context.Background(), commits)
	buf := make([]byte, 4)
	if _, err := io.ReadFull(stream, buf); err != nil {
		t.Fatalf("Failed to read pack signature: %v", err)
	}
	if err := stream.Close(); err != nil {
		t.Fatalf("Failed to close stream: %v", err)
	}
	if _, err := stream.Read(buf); err == nil {
		t.Errorf("Expected read after close to fail")
	}
}

func TestIndexRoundTrip(t *testing.T) {
	entries := []IndexEntry{
		{Oid: object.Hash(object.TypeBlob, []byte("b")), Offset: 12, CRC32: 0xdeadbeef},
		{Oid: object.Hash(object.TypeBlob, []byte("a")), Offset: 1 << 33, CRC32: 7},
		{Oid: object.Hash(object.TypeBlob, []byte("c")), Offset: 300, CRC32: 9},
	}
	checksum := bytes.Repeat([]byte{0xab}, sha1.Size)
	idx := NewIndex(entries, checksum)

	var buf bytes.Buffer
	if _, err := idx.WriteTo(&buf); err != nil {
		t.Fatalf("Failed to write index: %v", err)
	}
	got, err := ReadIndex(&buf)
	if err != nil {
		t.Fatalf("Failed to read index: %v", err)
	}
	if got.Len() != len(entries) {
		t.Fatalf("Expected %d entries, got %d", len(entries), got.Len())
	}
	for _, e := range entries {
		off, ok := got.Offset(e.Oid)
		if !ok || off != e.Offset {
			t.Errorf("Offset(%s) = %d, %v; want %d", e.Oid, off, ok, e.Offset)
		}
	}
	if !bytes.Equal(got.PackChecksum, checksum) {
		t.Errorf("Pack checksum not preserved")
	}
}

package object

import (
	"bytes"
	"errors"
	"testing"
	"time"

	kerrors "github.com/PolarWolf314/strongbox/internal/errors"

	"github.com/go-git/go-git/v5/plumbing"
)

func TestWrapUnwrapRoundTrip(t *testing.T) {
	payloads := [][]byte{
		{},
		[]byte("hunter2"),
		[]byte("line one\nline two\n"),
		{0x00, 0xff, 0x10, 0x00},
		bytes.Repeat([]byte("x"), 70000),
	}

	for _, typ := range []Type{TypeBlob, TypeTree, TypeCommit, TypeTag} {
		for _, payload := range payloads {
			oid, buf := Wrap(typ, payload)
			gotType, gotData, err := Unwrap(oid, buf)
			if err != nil {
				t.Fatalf("Unwrap(%s, %d bytes) failed: %v", typ, len(payload), err)
			}
			if gotType != typ {
				t.Errorf("expected type %s, got %s", typ, gotType)
			}
			if !bytes.Equal(gotData, payload) {
				t.Errorf("payload for %s changed after round trip", typ)
			}
		}
	}
}

func TestHashMatchesGit(t *testing.T) {
	content := []byte("db-pass=hunter2\n")

	oid, _ := Wrap(TypeBlob, content)
	want := plumbing.ComputeHash(plumbing.BlobObject, content).String()
	if string(oid) != want {
		t.Fatalf("expected oid %s, got %s", want, oid)
	}
	if Hash(TypeBlob, content) != oid {
		t.Errorf("Hash and Wrap disagree")
	}
	if got := Hash(TypeBlob, nil); got != "e69de29bb2d1d6434b8b29ae775ad8c2e48c5391" {
		t.Errorf("unexpected empty blob oid %s", got)
	}
}

func TestOidChangesWithContent(t *testing.T) {
	a := Hash(TypeBlob, []byte("hunter2"))
	b := Hash(TypeBlob, []byte("hunter3"))
	if a == b {
		t.Fatal("changing one byte must change the oid")
	}
	if Hash(TypeBlob, []byte("hunter2")) != a {
		t.Error("oid must be a pure function of type and bytes")
	}
	if Hash(TypeTree, []byte("hunter2")) == a {
		t.Error("oid must depend on the type")
	}
}

func TestUnwrapErrors(t *testing.T) {
	oid, buf := Wrap(TypeBlob, []byte("hunter2"))

	t.Run("hash mismatch", func(t *testing.T) {
		corrupt := append([]byte(nil), buf...)
		corrupt[len(corrupt)-1] ^= 1
		if _, _, err := Unwrap(oid, corrupt); !errors.Is(err, kerrors.ErrHashMismatch) {
			t.Fatalf("expected ErrHashMismatch, got %v", err)
		}
	})

	t.Run("length mismatch", func(t *testing.T) {
		bad := []byte("blob 9\x00hunter2")
		if _, _, err := Unwrap("", bad); !errors.Is(err, kerrors.ErrLengthMismatch) {
			t.Fatalf("expected ErrLengthMismatch, got %v", err)
		}
	})

	t.Run("missing header", func(t *testing.T) {
		if _, _, err := Unwrap("", []byte("hunter2")); !errors.Is(err, kerrors.ErrInvalidObject) {
			t.Fatalf("expected ErrInvalidObject, got %v", err)
		}
	})

	t.Run("unknown type", func(t *testing.T) {
		if _, _, err := Unwrap("", []byte("note 1\x00x")); !errors.Is(err, kerrors.ErrInvalidObject) {
			t.Fatalf("expected ErrInvalidObject, got %v", err)
		}
	})
}

func TestParseOid(t *testing.T) {
	if _, err := ParseOid("e69de29bb2d1d6434b8b29ae775ad8c2e48c5391"); err != nil {
		t.Errorf("valid oid rejected: %v", err)
	}
	for _, bad := range []string{"", "HEAD", "E69DE29BB2D1D6434B8B29AE775AD8C2E48C5391", "e69de29bb2d1d6434b8b29ae775ad8c2e48c539"} {
		if _, err := ParseOid(bad); !errors.Is(err, kerrors.ErrInvalidOid) {
			t.Errorf("ParseOid(%q) expected ErrInvalidOid, got %v", bad, err)
		}
	}
}

func TestNormalizeMode(t *testing.T) {
	tests := map[string]string{
		"40000":  ModeTree,
		"040000": ModeTree,
		"100644": ModeFile,
		"100664": ModeFile,
		"100600": ModeFile,
		"100755": ModeExecutable,
		"100744": ModeExecutable,
		"120000": ModeSymlink,
		"160000": ModeSubmodule,
	}
	for in, want := range tests {
		got, err := NormalizeMode(in)
		if err != nil {
			t.Errorf("NormalizeMode(%q) failed: %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("NormalizeMode(%q) = %q, want %q", in, got, want)
		}
	}
	if _, err := NormalizeMode("777"); err == nil {
		t.Error("expected error for mode without a file type")
	}
	if _, err := NormalizeMode("abc"); err == nil {
		t.Error("expected error for non-octal mode")
	}
}

func TestTreeRoundTrip(t *testing.T) {
	blob := Hash(TypeBlob, []byte("hunter2"))
	sub := Hash(TypeTree, nil)

	tree, err := NewTree([]TreeEntry{
		{Mode: "100644", Path: "db-pass", Oid: blob},
		{Mode: "40000", Path: "db", Oid: sub},
		{Mode: "100755", Path: "db.sh", Oid: blob},
	})
	if err != nil {
		t.Fatalf("NewTree failed: %v", err)
	}

	// "db" is a tree and so sorts as "db/", after "db-pass" and "db.sh".
	wantOrder := []string{"db-pass", "db.sh", "db"}
	for i, e := range tree.Entries {
		if e.Path != wantOrder[i] {
			t.Fatalf("entry %d: expected %s, got %s", i, wantOrder[i], e.Path)
		}
	}
	if tree.Entries[2].Type != TypeTree || tree.Entries[0].Type != TypeBlob {
		t.Errorf("entry types not derived from modes: %+v", tree.Entries)
	}

	data, err := tree.Bytes()
	if err != nil {
		t.Fatalf("Tree.Bytes failed: %v", err)
	}
	parsed, err := TreeFromBytes(data)
	if err != nil {
		t.Fatalf("TreeFromBytes failed: %v", err)
	}
	if len(parsed.Entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(parsed.Entries))
	}
	for i := range parsed.Entries {
		if parsed.Entries[i] != tree.Entries[i] {
			t.Errorf("entry %d changed: %+v != %+v", i, parsed.Entries[i], tree.Entries[i])
		}
	}
	if !bytes.Contains(data, []byte("40000 db\x00")) {
		t.Error("directory mode must be written without its leading zero")
	}
}

func TestTreeBytesRejectsBadOid(t *testing.T) {
	tree := &Tree{Entries: []TreeEntry{{Mode: ModeFile, Path: "db-pass", Oid: "not-a-hash"}}}
	if _, err := tree.Bytes(); !errors.Is(err, kerrors.ErrInvalidOid) {
		t.Fatalf("expected ErrInvalidOid, got %v", err)
	}
}

func TestTreeFromBytesTruncated(t *testing.T) {
	if _, err := TreeFromBytes([]byte("100644 db-pass\x00abc")); !errors.Is(err, kerrors.ErrInvalidObject) {
		t.Fatalf("expected ErrInvalidObject, got %v", err)
	}
}

func TestCommitRoundTrip(t *testing.T) {
	when := time.Date(2024, 3, 1, 12, 0, 0, 0, time.FixedZone("", -(5*60+30)*60))
	author := NewSignature("Ada Lovelace", "ada@example.com", when)
	if author.TimezoneOffset != -330 {
		t.Fatalf("expected offset -330, got %d", author.TimezoneOffset)
	}

	commit, err := NewCommit(CommitFields{
		Tree:    Hash(TypeTree, nil),
		Parents: []Oid{Hash(TypeCommit, []byte("p1")), Hash(TypeCommit, []byte("p2"))},
		Author:  author,
		Message: "Add secret: db-pass\n",
	})
	if err != nil {
		t.Fatalf("NewCommit failed: %v", err)
	}
	commit.Extra = []ExtraHeader{{Key: "encoding", Value: "UTF-8"}}
	commit.GPGSig = "-----BEGIN SIGNATURE-----\nabc\n\n-----END SIGNATURE-----"

	data := commit.Bytes()
	if !bytes.Contains(data, []byte("author Ada Lovelace <ada@example.com> 1709314200 -0530\n")) {
		t.Errorf("unexpected author line in:\n%s", data)
	}

	parsed, err := CommitFromBytes(data)
	if err != nil {
		t.Fatalf("CommitFromBytes failed: %v", err)
	}
	if !bytes.Equal(parsed.Bytes(), data) {
		t.Errorf("re-rendered commit differs:\n%s\n---\n%s", parsed.Bytes(), data)
	}
	if parsed.Committer != author {
		t.Errorf("committer should default to author, got %+v", parsed.Committer)
	}
	if len(parsed.Parents) != 2 || parsed.Message != "Add secret: db-pass\n" {
		t.Errorf("unexpected parsed commit %+v", parsed)
	}
	if len(parsed.Extra) != 1 || parsed.Extra[0] != (ExtraHeader{Key: "encoding", Value: "UTF-8"}) {
		t.Errorf("unexpected extra headers %+v", parsed.Extra)
	}
	if parsed.GPGSig != commit.GPGSig {
		t.Errorf("signature changed: %q", parsed.GPGSig)
	}
	if bytes.Contains(parsed.PayloadBytes(), []byte("gpgsig")) {
		t.Error("payload must exclude the signature")
	}
}

func TestCommitFromBytesRequiresTree(t *testing.T) {
	_, err := CommitFromBytes([]byte("author a <a@b> 1 +0000\n\nmsg"))
	if !errors.Is(err, kerrors.ErrInvalidObject) {
		t.Fatalf("expected ErrInvalidObject, got %v", err)
	}
}

package repo

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"

	kerrors "github.com/PolarWolf314/strongbox/internal/errors"
	"github.com/PolarWolf314/strongbox/internal/git/object"
	"github.com/PolarWolf314/strongbox/internal/git/protocol"
	logger "github.com/PolarWolf314/strongbox/internal/logging"
)

var author = object.NewSignature("Node A", "a@example.com", time.Unix(1700000000, 0))

func initRepo(t *testing.T) *Repository {
	t.Helper()
	r, err := Init(memfs.New(), logger.Logger{})
	if err != nil {
		t.Fatalf("Failed to init repository: %v", err)
	}
	if _, err := r.Commit(CommitOptions{Message: "Initialize vault", Author: author}); err != nil {
		t.Fatalf("Failed to make initial commit: %v", err)
	}
	return r
}

func writeAndCommit(t *testing.T, r *Repository, name, content, message string) object.Oid {
	t.Helper()
	fs := r.Worktree()
	if dir := strings.TrimSuffix(name[:strings.LastIndex(name, "/")+1], "/"); dir != "" {
		fs.MkdirAll(dir, 0o700)
	}
	if err := util.WriteFile(fs, name, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
	if err := r.Add(name); err != nil {
		t.Fatalf("Failed to stage %s: %v", name, err)
	}
	oid, err := r.Commit(CommitOptions{Message: message, Author: author})
	if err != nil {
		t.Fatalf("Failed to commit: %v", err)
	}
	return oid
}

func TestInitAndOpen(t *testing.T) {
	fs := memfs.New()
	if _, err := Init(fs, logger.Logger{}); err != nil {
		t.Fatalf("Failed to init: %v", err)
	}
	if _, err := Init(fs, logger.Logger{}); err == nil {
		t.Errorf("Expected a second init to fail")
	}
	r, err := Open(fs, logger.Logger{})
	if err != nil {
		t.Fatalf("Failed to open: %v", err)
	}
	if _, err := r.Head(); !errors.Is(err, kerrors.ErrRefNotFound) {
		t.Errorf("Expected ErrRefNotFound before the first commit, got %v", err)
	}
	if _, err := Open(memfs.New(), logger.Logger{}); err == nil {
		t.Errorf("Expected opening an empty filesystem to fail")
	}
}

func TestCommitAndLog(t *testing.T) {
	r := initRepo(t)
	oid := writeAndCommit(t, r, "db-pass", "hunter2", "Add secret: db-pass")

	head, err := r.Head()
	if err != nil || head != oid {
		t.Fatalf("Expected HEAD %s, got %s, %v", oid, head, err)
	}
	log, err := r.Log(0)
	if err != nil {
		t.Fatalf("Failed to read log: %v", err)
	}
	if len(log) != 2 {
		t.Fatalf("Expected 2 commits, got %d", len(log))
	}
	if log[0].Commit.Message != "Add secret: db-pass\n" {
		t.Errorf("Unexpected message %q", log[0].Commit.Message)
	}
	if len(log[1].Commit.Parents) != 0 {
		t.Errorf("Expected the initial commit to have no parents")
	}
	if limited, _ := r.Log(1); len(limited) != 1 {
		t.Errorf("Expected limit to apply, got %d entries", len(limited))
	}

	data, err := r.ReadFile(head, "db-pass")
	if err != nil || string(data) != "hunter2" {
		t.Errorf("Expected hunter2, got %q, %v", data, err)
	}
}

func TestNestedPaths(t *testing.T) {
	r := initRepo(t)
	writeAndCommit(t, r, "prod/db/password", "p1", "Add secret: prod/db/password")
	head := writeAndCommit(t, r, "prod/api-key", "k1", "Add secret: prod/api-key")

	files, err := r.Files(head)
	if err != nil {
		t.Fatalf("Failed to list files: %v", err)
	}
	if strings.Join(files, ",") != "prod/api-key,prod/db/password" {
		t.Errorf("Unexpected files %v", files)
	}
	data, err := r.ReadFile(head, "prod/db/password")
	if err != nil || string(data) != "p1" {
		t.Errorf("Expected p1, got %q, %v", data, err)
	}
	if _, err := r.ReadFile(head, "prod/missing"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected ErrNotExist, got %v", err)
	}
}

func TestRemoveAndNothingToCommit(t *testing.T) {
	r := initRepo(t)
	writeAndCommit(t, r, "db-pass", "hunter2", "Add secret: db-pass")

	if err := r.Remove("db-pass"); err != nil {
		t.Fatalf("Failed to remove: %v", err)
	}
	head, err := r.Commit(CommitOptions{Message: "Remove secret: db-pass", Author: author})
	if err != nil {
		t.Fatalf("Failed to commit removal: %v", err)
	}
	files, _ := r.Files(head)
	if len(files) != 0 {
		t.Errorf("Expected no files after removal, got %v", files)
	}
	if _, err := r.Worktree().Stat("db-pass"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected the worktree file to be gone, got %v", err)
	}

	if _, err := r.Commit(CommitOptions{Message: "noop", Author: author}); !errors.Is(err, kerrors.ErrNothingToCommit) {
		t.Errorf("Expected ErrNothingToCommit, got %v", err)
	}
}

func TestNothingToCommitKeepsStaged(t *testing.T) {
	r := initRepo(t)
	first := writeAndCommit(t, r, "db-pass", "hunter2", "Add secret: db-pass")

	if err := r.Add("db-pass"); err != nil {
		t.Fatalf("Failed to stage: %v", err)
	}
	if _, err := r.Commit(CommitOptions{Message: "noop", Author: author}); !errors.Is(err, kerrors.ErrNothingToCommit) {
		t.Fatalf("Expected ErrNothingToCommit, got %v", err)
	}
	r.mu.Lock()
	_, ok := r.staged["db-pass"]
	r.mu.Unlock()
	if !ok {
		t.Fatal("Expected db-pass to stay staged")
	}

	second, err := r.Commit(CommitOptions{Message: "Update secret: db-pass", Author: author, AllowEmpty: true})
	if err != nil {
		t.Fatalf("Failed to commit: %v", err)
	}
	c, err := r.ReadCommit(second)
	if err != nil {
		t.Fatalf("Failed to read commit: %v", err)
	}
	if len(c.Parents) != 1 || c.Parents[0] != first {
		t.Errorf("Expected parent %s, got %v", first, c.Parents)
	}
}

type fakeSigner struct{}

func (fakeSigner) Sign(payload []byte) ([]byte, error) {
	return []byte("-----BEGIN SIGNATURE-----\n" + object.Hash(object.TypeBlob, payload).String() + "\n-----END SIGNATURE-----\n"), nil
}

func TestSignedCommit(t *testing.T) {
	r := initRepo(t)
	util.WriteFile(r.Worktree(), "k", []byte("v"), 0o600)
	r.Add("k")
	oid, err := r.Commit(CommitOptions{Message: "Add secret: k", Author: author, Signer: fakeSigner{}})
	if err != nil {
		t.Fatalf("Failed to commit: %v", err)
	}
	c, err := r.ReadCommit(oid)
	if err != nil {
		t.Fatalf("Failed to read commit: %v", err)
	}
	if !strings.HasPrefix(c.GPGSig, "-----BEGIN SIGNATURE-----") {
		t.Errorf("Expected a gpgsig header, got %q", c.GPGSig)
	}
	want, _ := fakeSigner{}.Sign(c.PayloadBytes())
	if c.GPGSig+"\n" != string(want) {
		t.Errorf("Signature does not cover the unsigned payload")
	}
}

type repoResolver map[string]*Repository

func (m repoResolver) Repository(vault string) (protocol.Repository, error) {
	r, ok := m[vault]
	if !ok {
		return nil, kerrors.ErrVaultNotFound
	}
	return r, nil
}

func remoteFor(r *Repository) *protocol.Remote {
	srv := protocol.NewServer(repoResolver{"secrets-1": r}, protocol.ServerOptions{}, logger.Logger{})
	client := protocol.NewClient(&protocol.HandlerTransport{Handler: srv}, "http://node-a", "node-b", logger.Logger{})
	return client.Remote("secrets-1")
}

func TestCloneAndPull(t *testing.T) {
	origin := initRepo(t)
	writeAndCommit(t, origin, "db-pass", "hunter2", "Add secret: db-pass")
	remote := remoteFor(origin)

	var progress bytes.Buffer
	fs := memfs.New()
	clone, err := Clone(context.Background(), fs, remote, &progress, logger.Logger{})
	if err != nil {
		t.Fatalf("Failed to clone: %v", err)
	}
	originHead, _ := origin.Head()
	cloneHead, err := clone.Head()
	if err != nil || cloneHead != originHead {
		t.Fatalf("Expected clone HEAD %s, got %s, %v", originHead, cloneHead, err)
	}
	if data, err := util.ReadFile(fs, "db-pass"); err != nil || string(data) != "hunter2" {
		t.Errorf("Expected checked out db-pass, got %q, %v", data, err)
	}
	if progress.Len() == 0 {
		t.Errorf("Expected progress output during clone")
	}

	// Up to date: nothing moves.
	moved, err := clone.Pull(context.Background(), remote, nil)
	if err != nil || moved {
		t.Errorf("Expected no-op pull, got %v, %v", moved, err)
	}

	origin.Remove("db-pass")
	origin.Commit(CommitOptions{Message: "Remove secret: db-pass", Author: author})
	writeAndCommit(t, origin, "api-key", "k1", "Add secret: api-key")

	moved, err = clone.Pull(context.Background(), remote, nil)
	if err != nil || !moved {
		t.Fatalf("Expected pull to fast-forward, got %v, %v", moved, err)
	}
	if _, err := fs.Stat("db-pass"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected db-pass to be removed by the pull, got %v", err)
	}
	if data, err := util.ReadFile(fs, "api-key"); err != nil || string(data) != "k1" {
		t.Errorf("Expected api-key after pull, got %q, %v", data, err)
	}
	log, _ := clone.Log(0)
	if len(log) != 4 {
		t.Errorf("Expected 4 commits after pull, got %d", len(log))
	}
}

func TestPullRejectsDivergedHistory(t *testing.T) {
	origin := initRepo(t)
	remote := remoteFor(origin)
	clone, err := Clone(context.Background(), memfs.New(), remote, io.Discard, logger.Logger{})
	if err != nil {
		t.Fatalf("Failed to clone: %v", err)
	}

	writeAndCommit(t, origin, "a", "1", "Add secret: a")
	writeAndCommit(t, clone, "b", "2", "Add secret: b")

	if _, err := clone.Pull(context.Background(), remote, nil); !errors.Is(err, kerrors.ErrNonFastForward) {
		t.Errorf("Expected ErrNonFastForward, got %v", err)
	}
}

func TestAdvertisedRefs(t *testing.T) {
	r := initRepo(t)
	refs, symrefs, err := r.AdvertisedRefs()
	if err != nil {
		t.Fatalf("Failed to list refs: %v", err)
	}
	if len(refs) != 2 || refs[0].Name != "HEAD" || refs[1].Name != "refs/heads/master" {
		t.Errorf("Unexpected refs %v", refs)
	}
	if symrefs["HEAD"] != "refs/heads/master" {
		t.Errorf("Expected HEAD symref, got %v", symrefs)
	}

	empty, err := Init(memfs.New(), logger.Logger{})
	if err != nil {
		t.Fatalf("Failed to init: %v", err)
	}
	refs, _, err = empty.AdvertisedRefs()
	if err != nil || len(refs) != 0 {
		t.Errorf("Expected no refs before the first commit, got %v, %v", refs, err)
	}
}


package packfile

import (
	"compress/zlib"
	"container/heap"
	"context"
	"crypto/sha1"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	kerrors "github.com/PolarWolf314/strongbox/internal/errors"
	"github.com/PolarWolf314/strongbox/internal/git/object"
	logger "github.com/PolarWolf314/strongbox/internal/logging"
)

// ObjectReader returns the type and content of a stored object.
type ObjectReader interface {
	ReadObject(oid object.Oid) (object.Type, []byte, error)
}

// RefResolver resolves a ref name, or an oid, to an oid.
type RefResolver interface {
	Resolve(ref string) (string, error)
}

// Options selects what goes into a pack.
type Options struct {
	// Refs are ref names or oids whose history is packed.
	Refs []string

	// Depth limits how many commits are walked per ref. Zero is unbounded.
	Depth int

	// Since excludes commits committed before it. The zero time disables it.
	Since time.Time

	// Haves are commits the receiver already has. The walk stops at them.
	Haves []object.Oid
}

// Plan is the result of walking history for a set of options.
type Plan struct {
	// Commits in walk order, newest first.
	Commits []object.Oid

	// Objects holds every oid to pack: each commit followed by the
	// trees and blobs it introduces.
	Objects []object.Oid

	// Acks lists the haves the walk ran into.
	Acks []object.Oid

	// Shallow lists commits whose parents were cut off.
	Shallow []object.Oid
}

// Encoder walks a repository's history and serializes packs.
type Encoder struct {
	objects ObjectReader
	refs    RefResolver
	log     logger.Logger
}

func NewEncoder(objects ObjectReader, refs RefResolver, log logger.Logger) *Encoder {
	return &Encoder{objects: objects, refs: refs, log: log}
}

type pendingCommit struct {
	oid    object.Oid
	commit *object.Commit
	depth  int
	tip    bool
}

// commitQueue pops the most recently committed commit first.
type commitQueue []*pendingCommit

func (q commitQueue) Len() int { return len(q) }
func (q commitQueue) Less(i, j int) bool {
	return q[i].commit.Committer.Timestamp > q[j].commit.Committer.Timestamp
}
func (q commitQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *commitQueue) Push(x any)   { *q = append(*q, x.(*pendingCommit)) }
func (q *commitQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

func (e *Encoder) readCommit(oid object.Oid) (*object.Commit, error) {
	typ, data, err := e.objects.ReadObject(oid)
	if err != nil {
		return nil, err
	}
	if typ != object.TypeCommit {
		return nil, fmt.Errorf("%w: %s is a %s, not a commit", kerrors.ErrInvalidObject, oid, typ)
	}
	return object.CommitFromBytes(data)
}

// ListCommits walks the commit chain of every ref in opts, newest first.
func (e *Encoder) ListCommits(opts Options) (*Plan, error) {
	haves := make(map[object.Oid]bool, len(opts.Haves))
	for _, h := range opts.Haves {
		haves[h] = true
	}

	plan := &Plan{}
	seen := make(map[object.Oid]bool)
	acked := make(map[object.Oid]bool)
	shallow := make(map[object.Oid]bool)
	queue := &commitQueue{}

	for _, ref := range opts.Refs {
		resolved, err := e.refs.Resolve(ref)
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", ref, err)
		}
		oid, err := object.ParseOid(resolved)
		if err != nil {
			return nil, err
		}
		commit, err := e.readCommit(oid)
		if err != nil {
			return nil, fmt.Errorf("reading tip of %s: %w", ref, err)
		}
		heap.Push(queue, &pendingCommit{oid: oid, commit: commit, depth: 1, tip: true})
	}

	markShallow := func(oid object.Oid) {
		if !shallow[oid] {
			shallow[oid] = true
			plan.Shallow = append(plan.Shallow, oid)
		}
	}

	for queue.Len() > 0 {
		p := heap.Pop(queue).(*pendingCommit)
		if haves[p.oid] {
			if !acked[p.oid] {
				acked[p.oid] = true
				plan.Acks = append(plan.Acks, p.oid)
			}
			continue
		}
		if seen[p.oid] {
			continue
		}
		seen[p.oid] = true
		plan.Commits = append(plan.Commits, p.oid)

		if opts.Depth > 0 && p.depth >= opts.Depth {
			if len(p.commit.Parents) > 0 {
				markShallow(p.oid)
			}
			continue
		}
		for _, parent := range p.commit.Parents {
			if seen[parent] {
				continue
			}
			if haves[parent] {
				heap.Push(queue, &pendingCommit{oid: parent, commit: p.commit, depth: p.depth + 1})
				continue
			}
			pc, err := e.readCommit(parent)
			if errors.Is(err, kerrors.ErrReadShallowObject) {
				markShallow(p.oid)
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("reading parent of %s: %w", p.oid, err)
			}
			if !opts.Since.IsZero() && pc.Committer.Time().Before(opts.Since) {
				markShallow(p.oid)
				continue
			}
			heap.Push(queue, &pendingCommit{oid: parent, commit: pc, depth: p.depth + 1})
		}
	}

	e.log.Debugf("Walked %d commits (%d acked, %d shallow)", len(plan.Commits), len(plan.Acks), len(plan.Shallow))
	return plan, nil
}

// ListObjects returns each commit followed by the trees and blobs reachable
// from it that have not been listed yet.
func (e *Encoder) ListObjects(commits []object.Oid) ([]object.Oid, error) {
	var out []object.Oid
	seen := make(map[object.Oid]bool)

	for _, oid := range commits {
		if seen[oid] {
			continue
		}
		seen[oid] = true
		out = append(out, oid)

		commit, err := e.readCommit(oid)
		if err != nil {
			return nil, err
		}

		stack := []object.Oid{commit.Tree}
		for len(stack) > 0 {
			treeOid := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if seen[treeOid] {
				continue
			}
			seen[treeOid] = true
			out = append(out, treeOid)

			typ, data, err := e.objects.ReadObject(treeOid)
			if err != nil {
				return nil, err
			}
			if typ != object.TypeTree {
				return nil, fmt.Errorf("%w: %s is a %s, not a tree", kerrors.ErrInvalidObject, treeOid, typ)
			}
			tree, err := object.TreeFromBytes(data)
			if err != nil {
				return nil, err
			}
			for _, entry := range tree.Entries {
				switch entry.Type {
				case object.TypeTree:
					stack = append(stack, entry.Oid)
				case object.TypeBlob:
					if !seen[entry.Oid] {
						seen[entry.Oid] = true
						out = append(out, entry.Oid)
					}
				}
				// Submodule commits live in another repository.
			}
		}
	}
	return out, nil
}

// Plan walks history and collects every object to pack.
func (e *Encoder) Plan(opts Options) (*Plan, error) {
	plan, err := e.ListCommits(opts)
	if err != nil {
		return nil, err
	}
	plan.Objects, err = e.ListObjects(plan.Commits)
	if err != nil {
		return nil, err
	}
	return plan, nil
}

// Write serializes the objects as a version 2 pack. Every byte goes
// through a running SHA-1 whose sum is appended as the trailer.
func (e *Encoder) Write(ctx context.Context, w io.Writer, oids []object.Oid) error {
	sum := sha1.New()
	out := io.MultiWriter(w, sum)

	var header [12]byte
	copy(header[:4], Signature)
	binary.BigEndian.PutUint32(header[4:8], Version)
	binary.BigEndian.PutUint32(header[8:12], uint32(len(oids)))
	if _, err := out.Write(header[:]); err != nil {
		return err
	}

	var scratch []byte
	for _, oid := range oids {
		if err := ctx.Err(); err != nil {
			return err
		}
		typ, data, err := e.objects.ReadObject(oid)
		if err != nil {
			return fmt.Errorf("packing %s: %w", oid, err)
		}
		code, err := CodeForType(typ)
		if err != nil {
			return err
		}
		scratch = AppendEntryHeader(scratch[:0], code, int64(len(data)))
		if _, err := out.Write(scratch); err != nil {
			return err
		}
		zw := zlib.NewWriter(out)
		if _, err := zw.Write(data); err != nil {
			return err
		}
		if err := zw.Close(); err != nil {
			return err
		}
	}

	_, err := w.Write(sum.Sum(nil))
	return err
}

// Stream serializes the objects on a goroutine and returns the read side of
// a pipe. The encoder blocks until the reader drains each write. Closing the
// reader stops the encoder.
func (e *Encoder) Stream(ctx context.Context, oids []object.Oid) io.ReadCloser {
	pr, pw := io.Pipe()
	go func() {
		err := e.Write(ctx, pw, oids)
		if err != nil {
			e.log.Debugf("Pack stream ended early: %v", err)
		}
		pw.CloseWithError(err)
	}()
	return pr
}

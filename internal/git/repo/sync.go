package repo

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/go-git/go-billy/v5"

	kerrors "github.com/PolarWolf314/strongbox/internal/errors"
	"github.com/PolarWolf314/strongbox/internal/git/object"
	"github.com/PolarWolf314/strongbox/internal/git/packfile"
	"github.com/PolarWolf314/strongbox/internal/git/protocol"
	"github.com/PolarWolf314/strongbox/internal/git/refs"
	logger "github.com/PolarWolf314/strongbox/internal/logging"
)

// Remote is a peer's copy of a repository. *protocol.Remote implements it.
type Remote interface {
	ListRefs(ctx context.Context) (*protocol.Advertisement, error)
	FetchPack(ctx context.Context, want object.Oid, haves []object.Oid, progress io.Writer) (io.ReadCloser, error)
}

// Fetch downloads the peer's master history into the object store and
// returns the peer's tip. Nothing is transferred when the tip is already
// present locally.
func (r *Repository) Fetch(ctx context.Context, remote Remote, progress io.Writer) (object.Oid, error) {
	adv, err := remote.ListRefs(ctx)
	if err != nil {
		return "", err
	}
	tip, ok := adv.Lookup(refs.Master)
	if !ok {
		if tip, ok = adv.Head(); !ok {
			return "", fmt.Errorf("%w: peer advertised no master", kerrors.ErrRefNotFound)
		}
	}
	if r.Objects.Has(tip) {
		r.log.Debugf("Already have %s", tip)
		return tip, nil
	}

	var haves []object.Oid
	head, err := r.headOrZero()
	if err != nil {
		return "", err
	}
	if head != "" {
		haves = append(haves, head)
	}

	pack, err := remote.FetchPack(ctx, tip, haves, progress)
	if err != nil {
		return "", err
	}
	defer pack.Close()
	idx, err := r.Objects.WritePack(pack)
	if err != nil {
		return "", fmt.Errorf("storing pack: %w", err)
	}
	// Trailing progress and error frames follow the pack.
	if _, err := io.Copy(io.Discard, pack); err != nil {
		return "", err
	}
	if !r.Objects.Has(tip) {
		return "", fmt.Errorf("%w: pack did not contain %s", kerrors.ErrReadObject, tip)
	}
	r.log.Infof("Fetched %d objects up to %s", idx.Len(), tip)
	return tip, nil
}

// Pull fetches the peer's history and fast-forwards master onto it. It
// reports whether HEAD moved.
func (r *Repository) Pull(ctx context.Context, remote Remote, progress io.Writer) (bool, error) {
	tip, err := r.Fetch(ctx, remote, progress)
	if err != nil {
		return false, err
	}
	head, err := r.headOrZero()
	if err != nil {
		return false, err
	}
	if head == tip {
		return false, nil
	}
	if head != "" {
		ok, err := r.IsAncestor(tip, head)
		if err != nil {
			return false, err
		}
		if ok {
			// The peer is behind us.
			return false, nil
		}
		if ok, err = r.IsAncestor(head, tip); err != nil {
			return false, err
		}
		if !ok {
			return false, fmt.Errorf("%w: %s does not descend from %s", kerrors.ErrNonFastForward, tip, head)
		}
	}

	if err := r.Refs.Write(refs.Master, tip); err != nil {
		return false, err
	}
	if err := r.Checkout(head); err != nil {
		return false, err
	}
	return true, nil
}

// IsAncestor reports whether ancestor is reachable from descendant.
func (r *Repository) IsAncestor(ancestor, descendant object.Oid) (bool, error) {
	seen := map[object.Oid]bool{}
	queue := []object.Oid{descendant}
	for len(queue) > 0 {
		oid := queue[0]
		queue = queue[1:]
		if oid == ancestor {
			return true, nil
		}
		if seen[oid] {
			continue
		}
		seen[oid] = true
		c, err := r.ReadCommit(oid)
		if errors.Is(err, kerrors.ErrReadShallowObject) || errors.Is(err, kerrors.ErrReadObject) {
			continue
		}
		if err != nil {
			return false, err
		}
		queue = append(queue, c.Parents...)
	}
	return false, nil
}

// Clone initializes a repository in fs and checks out the peer's master.
func Clone(ctx context.Context, fs billy.Filesystem, remote Remote, progress io.Writer, log logger.Logger) (*Repository, error) {
	r, err := Init(fs, log)
	if err != nil {
		return nil, err
	}
	tip, err := r.Fetch(ctx, remote, progress)
	if err != nil {
		return nil, err
	}
	if err := r.Refs.Write(refs.Master, tip); err != nil {
		return nil, err
	}
	if err := r.Checkout(""); err != nil {
		return nil, err
	}
	return r, nil
}

// AdvertisedRefs lists HEAD and every ref for a protocol.Server.
func (r *Repository) AdvertisedRefs() ([]protocol.Ref, map[string]string, error) {
	var out []protocol.Ref
	symrefs := map[string]string{}

	head, err := r.headOrZero()
	if err != nil {
		return nil, nil, err
	}
	if head != "" {
		out = append(out, protocol.Ref{Name: refs.HEAD, Oid: head})
		if target, err := r.Refs.ResolveDepth(refs.HEAD, 1); err == nil && !object.IsOid(target) {
			symrefs[refs.HEAD] = target
		}
	}

	list, err := r.Refs.List("")
	if err != nil {
		return nil, nil, err
	}
	for _, ref := range list {
		out = append(out, protocol.Ref{Name: ref.Name, Oid: ref.Oid})
	}
	return out, symrefs, nil
}

// Pack streams a pack holding the history of req.Want minus what the
// haves already cover.
func (r *Repository) Pack(ctx context.Context, req *protocol.WantRequest) (io.ReadCloser, int, error) {
	var haves []object.Oid
	for _, h := range req.Haves {
		if r.Objects.Has(h) {
			haves = append(haves, h)
		}
	}
	enc := packfile.NewEncoder(r.Objects, r.Refs, r.log)
	plan, err := enc.Plan(packfile.Options{Refs: []string{string(req.Want)}, Haves: haves})
	if err != nil {
		return nil, 0, err
	}
	return enc.Stream(ctx, plan.Objects), len(plan.Objects), nil
}

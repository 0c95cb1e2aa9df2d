package protocol

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"

	kerrors "github.com/PolarWolf314/strongbox/internal/errors"
	"github.com/PolarWolf314/strongbox/internal/git/object"
)

// ServiceUploadPack is the only service vaults expose.
const ServiceUploadPack = "git-upload-pack"

// Capabilities advertised by Server, preferred first.
var Capabilities = []string{string(SideBand64k), string(SideBand)}

// Ref is one advertised ref.
type Ref struct {
	Name string
	Oid  object.Oid
}

// Advertisement is a parsed ref advertisement.
type Advertisement struct {
	Refs         []Ref
	Capabilities []string
	// Symrefs maps a symbolic ref to its target, e.g. HEAD to refs/heads/master.
	Symrefs map[string]string
}

// Head returns the oid HEAD points at.
func (a *Advertisement) Head() (object.Oid, bool) {
	return a.Lookup("HEAD")
}

// Lookup returns the oid advertised for name.
func (a *Advertisement) Lookup(name string) (object.Oid, bool) {
	for _, r := range a.Refs {
		if r.Name == name {
			return r.Oid, true
		}
	}
	return "", false
}

// Supports reports whether the peer advertised capability.
func (a *Advertisement) Supports(capability string) bool {
	for _, c := range a.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

// WriteAdvertisement writes refs, HEAD first, followed by a flush-pkt. The
// first line carries the capability list and one symref=<from>:<to> entry
// per symbolic ref.
func WriteAdvertisement(w io.Writer, refs []Ref, symrefs map[string]string, caps []string) error {
	ordered := make([]Ref, 0, len(refs))
	for _, r := range refs {
		if r.Name == "HEAD" {
			ordered = append(ordered, r)
		}
	}
	for _, r := range refs {
		if r.Name != "HEAD" {
			ordered = append(ordered, r)
		}
	}

	froms := make([]string, 0, len(symrefs))
	for from := range symrefs {
		froms = append(froms, from)
	}
	sort.Strings(froms)
	capLine := append([]string(nil), caps...)
	for _, from := range froms {
		capLine = append(capLine, "symref="+from+":"+symrefs[from])
	}

	var buf bytes.Buffer
	for i, r := range ordered {
		line := string(r.Oid) + " " + r.Name
		if i == 0 {
			line += "\x00" + strings.Join(capLine, " ")
		}
		frame, err := Encode([]byte(line + "\n"))
		if err != nil {
			return err
		}
		buf.Write(frame)
	}
	buf.Write(flushPkt)
	_, err := w.Write(buf.Bytes())
	return err
}

// WriteInfoRefs writes the body of an info/refs response: the service
// announcement, a flush-pkt and the advertisement.
func WriteInfoRefs(w io.Writer, refs []Ref, symrefs map[string]string, caps []string) error {
	frame, err := EncodeString("# service=%s\n", ServiceUploadPack)
	if err != nil {
		return err
	}
	if _, err := w.Write(append(frame, flushPkt...)); err != nil {
		return err
	}
	return WriteAdvertisement(w, refs, symrefs, caps)
}

// ReadInfoRefs parses an info/refs response body.
func ReadInfoRefs(r io.Reader) (*Advertisement, error) {
	pr := NewReader(r)
	first, err := pr.Next()
	if err != nil {
		return nil, fmt.Errorf("reading service line: %w", err)
	}
	if !first.Flush && strings.HasPrefix(string(first.Payload), "# service=") {
		if _, err := pr.ReadUntilFlush(); err != nil {
			return nil, err
		}
		return ReadAdvertisement(pr)
	}
	// No service announcement: the first frame already belongs to the refs.
	adv := &Advertisement{Symrefs: map[string]string{}}
	if first.Flush {
		return adv, nil
	}
	if err := adv.addLine(first.Payload, true); err != nil {
		return nil, err
	}
	return adv, adv.readRest(pr)
}

// ReadAdvertisement parses refs up to the next flush-pkt.
func ReadAdvertisement(pr *Reader) (*Advertisement, error) {
	adv := &Advertisement{Symrefs: map[string]string{}}
	return adv, adv.readRest(pr)
}

func (a *Advertisement) readRest(pr *Reader) error {
	lines, err := pr.ReadUntilFlush()
	if err != nil {
		return err
	}
	for _, line := range lines {
		if err := a.addLine(line, len(a.Refs) == 0 && a.Capabilities == nil); err != nil {
			return err
		}
	}
	return nil
}

func (a *Advertisement) addLine(line []byte, first bool) error {
	text := strings.TrimSuffix(string(line), "\n")
	text, capText, hasCaps := strings.Cut(text, "\x00")
	if hasCaps && first {
		for _, c := range strings.Fields(capText) {
			if sym, ok := strings.CutPrefix(c, "symref="); ok {
				if from, to, ok := strings.Cut(sym, ":"); ok {
					a.Symrefs[from] = to
				}
				continue
			}
			a.Capabilities = append(a.Capabilities, c)
		}
	}

	oid, name, ok := strings.Cut(text, " ")
	if !ok || !object.IsOid(oid) {
		return fmt.Errorf("%w: bad advertisement line %q", kerrors.ErrMalformedPktLine, text)
	}
	// An empty repository advertises its capabilities on a placeholder.
	if name == "capabilities^{}" {
		return nil
	}
	a.Refs = append(a.Refs, Ref{Name: name, Oid: object.Oid(oid)})
	return nil
}

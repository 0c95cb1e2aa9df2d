package object

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	kerrors "github.com/PolarWolf314/strongbox/internal/errors"
)

// Signature identifies an author or committer at a point in time.
type Signature struct {
	Name  string
	Email string
	// Timestamp is seconds since the Unix epoch.
	Timestamp int64
	// TimezoneOffset is minutes east of UTC.
	TimezoneOffset int
}

// NewSignature stamps name and email with t.
func NewSignature(name, email string, t time.Time) Signature {
	_, offset := t.Zone()
	return Signature{Name: name, Email: email, Timestamp: t.Unix(), TimezoneOffset: offset / 60}
}

// Time returns the signature's instant in its own zone.
func (s Signature) Time() time.Time {
	return time.Unix(s.Timestamp, 0).In(time.FixedZone("", s.TimezoneOffset*60))
}

func (s Signature) String() string {
	sign := '+'
	offset := s.TimezoneOffset
	if offset < 0 {
		sign = '-'
		offset = -offset
	}
	return fmt.Sprintf("%s <%s> %d %c%02d%02d", s.Name, s.Email, s.Timestamp, sign, offset/60, offset%60)
}

func parseSignature(line string) (Signature, error) {
	lt := strings.LastIndexByte(line, '<')
	gt := strings.LastIndexByte(line, '>')
	if lt < 0 || gt < lt {
		return Signature{}, fmt.Errorf("%w: signature %q", kerrors.ErrInvalidObject, line)
	}
	fields := strings.Fields(line[gt+1:])
	if len(fields) != 2 {
		return Signature{}, fmt.Errorf("%w: signature %q", kerrors.ErrInvalidObject, line)
	}
	ts, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return Signature{}, fmt.Errorf("%w: signature timestamp %q", kerrors.ErrInvalidObject, fields[0])
	}
	tz := fields[1]
	if len(tz) != 5 || (tz[0] != '+' && tz[0] != '-') {
		return Signature{}, fmt.Errorf("%w: signature timezone %q", kerrors.ErrInvalidObject, tz)
	}
	hours, err1 := strconv.Atoi(tz[1:3])
	minutes, err2 := strconv.Atoi(tz[3:5])
	if err1 != nil || err2 != nil {
		return Signature{}, fmt.Errorf("%w: signature timezone %q", kerrors.ErrInvalidObject, tz)
	}
	offset := hours*60 + minutes
	if tz[0] == '-' {
		offset = -offset
	}
	return Signature{
		Name:           strings.TrimSpace(line[:lt]),
		Email:          line[lt+1 : gt],
		Timestamp:      ts,
		TimezoneOffset: offset,
	}, nil
}

// ExtraHeader is a commit header line the codec does not interpret.
type ExtraHeader struct {
	Key   string
	Value string
}

// Commit is a snapshot of a tree plus its ancestry and metadata.
type Commit struct {
	Tree      Oid
	Parents   []Oid
	Author    Signature
	Committer Signature
	Message   string
	// GPGSig is the detached signature over PayloadBytes, if any.
	GPGSig string
	Extra  []ExtraHeader
}

// CommitFields are the inputs to NewCommit.
type CommitFields struct {
	Tree      Oid
	Parents   []Oid
	Author    Signature
	Committer Signature
	Message   string
}

// NewCommit builds an unsigned commit from fields. A zero committer defaults
// to the author.
func NewCommit(f CommitFields) (*Commit, error) {
	if !f.Tree.IsValid() {
		return nil, fmt.Errorf("%w: commit tree %q", kerrors.ErrInvalidOid, f.Tree)
	}
	for _, p := range f.Parents {
		if !p.IsValid() {
			return nil, fmt.Errorf("%w: commit parent %q", kerrors.ErrInvalidOid, p)
		}
	}
	committer := f.Committer
	if committer == (Signature{}) {
		committer = f.Author
	}
	return &Commit{
		Tree:      f.Tree,
		Parents:   append([]Oid(nil), f.Parents...),
		Author:    f.Author,
		Committer: committer,
		Message:   f.Message,
	}, nil
}

// CommitFromBytes parses a commit's content bytes.
func CommitFromBytes(data []byte) (*Commit, error) {
	headerEnd := bytes.Index(data, []byte("\n\n"))
	var head, message []byte
	if headerEnd < 0 {
		head = bytes.TrimSuffix(data, []byte("\n"))
	} else {
		head = data[:headerEnd]
		message = data[headerEnd+2:]
	}

	c := &Commit{Message: string(message)}
	var keys, values []string
	for _, line := range strings.Split(string(head), "\n") {
		if strings.HasPrefix(line, " ") && len(keys) > 0 {
			values[len(values)-1] += "\n" + line[1:]
			continue
		}
		key, value, _ := strings.Cut(line, " ")
		keys = append(keys, key)
		values = append(values, value)
	}

	var err error
	for i, key := range keys {
		value := values[i]
		switch key {
		case "tree":
			if c.Tree, err = ParseOid(value); err != nil {
				return nil, err
			}
		case "parent":
			p, err := ParseOid(value)
			if err != nil {
				return nil, err
			}
			c.Parents = append(c.Parents, p)
		case "author":
			if c.Author, err = parseSignature(value); err != nil {
				return nil, err
			}
		case "committer":
			if c.Committer, err = parseSignature(value); err != nil {
				return nil, err
			}
		case "gpgsig":
			c.GPGSig = value
		default:
			c.Extra = append(c.Extra, ExtraHeader{Key: key, Value: value})
		}
	}

	if c.Tree == "" {
		return nil, fmt.Errorf("%w: commit has no tree", kerrors.ErrInvalidObject)
	}
	return c, nil
}

func writeHeader(buf *bytes.Buffer, key, value string) {
	buf.WriteString(key)
	buf.WriteByte(' ')
	buf.WriteString(strings.ReplaceAll(value, "\n", "\n "))
	buf.WriteByte('\n')
}

func (c *Commit) render(withSig bool) []byte {
	var buf bytes.Buffer
	writeHeader(&buf, "tree", string(c.Tree))
	for _, p := range c.Parents {
		writeHeader(&buf, "parent", string(p))
	}
	writeHeader(&buf, "author", c.Author.String())
	writeHeader(&buf, "committer", c.Committer.String())
	for _, h := range c.Extra {
		writeHeader(&buf, h.Key, h.Value)
	}
	if withSig && c.GPGSig != "" {
		writeHeader(&buf, "gpgsig", c.GPGSig)
	}
	buf.WriteByte('\n')
	buf.WriteString(c.Message)
	return buf.Bytes()
}

// Bytes renders the commit's canonical content bytes.
func (c *Commit) Bytes() []byte {
	return c.render(true)
}

// PayloadBytes renders the commit without its signature; this is what a
// signer signs.
func (c *Commit) PayloadBytes() []byte {
	return c.render(false)
}

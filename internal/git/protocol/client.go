package protocol

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/url"
	"strings"

	kerrors "github.com/PolarWolf314/strongbox/internal/errors"
	"github.com/PolarWolf314/strongbox/internal/git/object"
	logger "github.com/PolarWolf314/strongbox/internal/logging"
)

// Client talks to one peer node.
type Client struct {
	transport Transport
	baseURL   string
	node      string
	log       logger.Logger
}

// NewClient returns a client for the peer at baseURL. node is sent in
// NodeHeader so the peer can tell callers apart.
func NewClient(transport Transport, baseURL, node string, log logger.Logger) *Client {
	return &Client{
		transport: transport,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		node:      node,
		log:       log,
	}
}

// Remote returns a handle on one vault of the peer.
func (c *Client) Remote(vault string) *Remote {
	return &Remote{client: c, vault: vault}
}

func (c *Client) do(ctx context.Context, method, u string, body io.Reader, contentType string) (*Response, error) {
	headers := http.Header{}
	if c.node != "" {
		headers.Set(NodeHeader, c.node)
	}
	if contentType != "" {
		headers.Set("Content-Type", contentType)
	}
	resp, err := c.transport.Do(ctx, &Request{URL: u, Method: method, Headers: headers, Body: body})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		msg := drain(resp.Body)
		return nil, fmt.Errorf("%w: %s %s: %d %s", kerrors.ErrUnexpectedStatus, method, u, resp.StatusCode, strings.TrimSpace(msg))
	}
	return resp, nil
}

func drain(body iter.Seq2[[]byte, error]) string {
	var buf bytes.Buffer
	for chunk, err := range body {
		if err != nil || buf.Len() > 4096 {
			break
		}
		buf.Write(chunk)
	}
	return buf.String()
}

// Remote is one vault on a peer.
type Remote struct {
	client *Client
	vault  string
}

func (r *Remote) url(suffix string) string {
	return r.client.baseURL + "/" + url.PathEscape(r.vault) + suffix
}

// ListRefs fetches the peer's ref advertisement for the vault. A peer that
// does not hold the vault advertises no refs.
func (r *Remote) ListRefs(ctx context.Context) (*Advertisement, error) {
	resp, err := r.client.do(ctx, http.MethodGet, r.url("/info/refs?service="+ServiceUploadPack), nil, "")
	if err != nil {
		return nil, err
	}
	body := resp.Reader()
	defer body.Close()

	adv, err := ReadInfoRefs(body)
	if err != nil {
		return nil, fmt.Errorf("reading refs of %s: %w", r.vault, err)
	}
	r.client.log.Debugf("Peer advertised %d refs for %s", len(adv.Refs), r.vault)
	return adv, nil
}

// FetchPack asks the peer for the history of want, telling it about haves.
// The returned reader yields the raw pack; progress text goes to progress.
func (r *Remote) FetchPack(ctx context.Context, want object.Oid, haves []object.Oid, progress io.Writer) (io.ReadCloser, error) {
	var req bytes.Buffer
	if err := WriteWantRequest(&req, want, []string{string(SideBand64k)}, haves); err != nil {
		return nil, err
	}
	resp, err := r.client.do(ctx, http.MethodPost, r.url("/"+ServiceUploadPack), &req, "application/x-"+ServiceUploadPack+"-request")
	if err != nil {
		return nil, err
	}

	body := resp.Reader()
	demux, err := ReadPackResponse(body, progress)
	if err != nil {
		body.Close()
		return nil, err
	}
	return &packReader{Demuxer: demux, body: body}, nil
}

type packReader struct {
	*Demuxer
	body *SeqReader
}

func (p *packReader) Close() error {
	return p.body.Close()
}

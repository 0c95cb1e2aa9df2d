package protocol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	logger "github.com/PolarWolf314/strongbox/internal/logging"
)

const bodyChunkSize = 32 * 1024

// Request is one call to a peer.
type Request struct {
	URL     string
	Method  string
	Headers http.Header
	Body    io.Reader
}

// Response is a peer's answer. Body yields chunks only as the consumer
// pulls them.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       iter.Seq2[[]byte, error]

	// closer releases the underlying stream when Body is abandoned before
	// it runs.
	closer io.Closer
}

// Reader streams Body. Closing it releases the underlying stream even when
// nothing was read.
func (r *Response) Reader() *SeqReader {
	s := NewSeqReader(r.Body)
	s.closer = r.closer
	return s
}

// Transport carries requests to a peer.
type Transport interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}

// ReaderSeq turns r into a pull sequence of chunks. r is closed when the
// sequence finishes or the consumer stops early, if it is an io.Closer.
func ReaderSeq(r io.Reader) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		if c, ok := r.(io.Closer); ok {
			defer c.Close()
		}
		for {
			buf := make([]byte, bodyChunkSize)
			n, err := r.Read(buf)
			if n > 0 && !yield(buf[:n], nil) {
				return
			}
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
		}
	}
}

// SeqReader reads a pull sequence as a stream.
type SeqReader struct {
	next    func() ([]byte, error, bool)
	stop    func()
	closer  io.Closer
	pending []byte
	err     error
}

// NewSeqReader pulls chunks from seq as Read needs them. Close releases
// the sequence.
func NewSeqReader(seq iter.Seq2[[]byte, error]) *SeqReader {
	next, stop := iter.Pull2(seq)
	return &SeqReader{next: next, stop: stop}
}

func (s *SeqReader) Read(p []byte) (int, error) {
	for len(s.pending) == 0 {
		if s.err != nil {
			return 0, s.err
		}
		chunk, err, ok := s.next()
		switch {
		case !ok:
			s.err = io.EOF
		case err != nil:
			s.err = err
		default:
			s.pending = chunk
		}
	}
	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

func (s *SeqReader) Close() error {
	s.stop()
	if s.err == nil {
		s.err = io.ErrClosedPipe
	}
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

// HTTPTransport sends requests over HTTP, retrying failed connections and
// 5xx responses.
type HTTPTransport struct {
	client *retryablehttp.Client
}

func NewHTTPTransport(log logger.Logger) *HTTPTransport {
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.RetryWaitMin = 200 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.Logger = nil
	client.RequestLogHook = func(_ retryablehttp.Logger, req *http.Request, attempt int) {
		if attempt > 0 {
			log.Debugf("Retrying %s %s (attempt %d)", req.Method, req.URL, attempt+1)
		}
	}
	return &HTTPTransport{client: client}
}

func (t *HTTPTransport) Do(ctx context.Context, req *Request) (*Response, error) {
	var body any
	if req.Body != nil {
		body = req.Body
	}
	httpReq, err := retryablehttp.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, err
	}
	for k, vs := range req.Headers {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL, err)
	}
	return &Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       ReaderSeq(resp.Body),
		closer:     resp.Body,
	}, nil
}

// HandlerTransport serves requests with an in-process handler. The handler
// runs on its own goroutine and its output is streamed through a pipe.
type HandlerTransport struct {
	Handler http.Handler

	// RemoteAddr is reported to the handler as the caller's address.
	RemoteAddr string
}

func (t *HandlerTransport) Do(ctx context.Context, req *Request) (*Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, req.Body)
	if err != nil {
		return nil, err
	}
	for k, vs := range req.Headers {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	httpReq.RemoteAddr = t.RemoteAddr
	if httpReq.RemoteAddr == "" {
		httpReq.RemoteAddr = "127.0.0.1:0"
	}

	pr, pw := io.Pipe()
	rw := &pipeResponseWriter{
		header:  make(http.Header),
		pipe:    pw,
		started: make(chan struct{}),
	}
	go func() {
		defer func() {
			rw.start(http.StatusOK)
			pw.Close()
		}()
		t.Handler.ServeHTTP(rw, httpReq)
	}()

	select {
	case <-rw.started:
	case <-ctx.Done():
		pr.CloseWithError(ctx.Err())
		return nil, ctx.Err()
	}
	return &Response{
		StatusCode: rw.status,
		Headers:    rw.snapshot,
		Body:       ReaderSeq(pr),
		closer:     pr,
	}, nil
}

type pipeResponseWriter struct {
	header   http.Header
	snapshot http.Header
	status   int
	pipe     *io.PipeWriter
	once     sync.Once
	started  chan struct{}
}

func (w *pipeResponseWriter) Header() http.Header {
	return w.header
}

func (w *pipeResponseWriter) start(status int) {
	w.once.Do(func() {
		w.status = status
		w.snapshot = w.header.Clone()
		close(w.started)
	})
}

func (w *pipeResponseWriter) WriteHeader(status int) {
	w.start(status)
}

func (w *pipeResponseWriter) Write(p []byte) (int, error) {
	w.start(http.StatusOK)
	return w.pipe.Write(p)
}

func (w *pipeResponseWriter) Flush() {}

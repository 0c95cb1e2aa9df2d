package protocol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	kerrors "github.com/PolarWolf314/strongbox/internal/errors"
	logger "github.com/PolarWolf314/strongbox/internal/logging"
)

// NodeHeader identifies the calling node. Rate limits are keyed by it when
// present.
const NodeHeader = "X-Strongbox-Node"

const maxRequestBody = 1 << 20

// Repository is what the server needs from one vault.
type Repository interface {
	// AdvertisedRefs returns the refs to advertise and the symbolic ones
	// among them.
	AdvertisedRefs() ([]Ref, map[string]string, error)

	// Pack starts streaming a pack for req. count is the number of objects
	// the pack will hold.
	Pack(ctx context.Context, req *WantRequest) (pack io.ReadCloser, count int, err error)
}

// Resolver finds the repository of a vault. It returns
// errors.ErrVaultNotFound for vaults this node does not hold.
type Resolver interface {
	Repository(vault string) (Repository, error)
}

// Access decides whether a peer may read a vault.
type Access interface {
	PeerCanAccess(vault, peer string) bool
}

// Server serves vault repositories over smart HTTP.
type Server struct {
	mux      *http.ServeMux
	resolver Resolver
	access   Access
	limiter  *multiLimiter
	log      logger.Logger
}

// ServerOptions configures NewServer.
type ServerOptions struct {
	// RatePerMinute limits requests per peer. Zero disables limiting.
	RatePerMinute int
	Burst         int

	// Access is consulted before serving a vault. Nil allows every peer.
	Access Access
}

func NewServer(resolver Resolver, opts ServerOptions, log logger.Logger) *Server {
	s := &Server{
		mux:      http.NewServeMux(),
		resolver: resolver,
		access:   opts.Access,
		log:      log,
	}
	if opts.RatePerMinute > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = opts.RatePerMinute
		}
		s.limiter = newMultiLimiter(rate.Limit(float64(opts.RatePerMinute)/60), burst, 10*time.Minute)
	}
	s.mux.HandleFunc("GET /{vault}/info/refs", s.handleInfoRefs)
	s.mux.HandleFunc("POST /{vault}/"+ServiceUploadPack, s.handleUploadPack)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.limiter != nil && !s.limiter.allow(peerKey(r)) {
		s.log.Warnf("Rate limit exceeded for %s", peerKey(r))
		http.Error(w, "too many requests", http.StatusTooManyRequests)
		return
	}
	s.mux.ServeHTTP(w, r)
}

func (s *Server) repository(w http.ResponseWriter, r *http.Request) (Repository, bool) {
	vault := r.PathValue("vault")
	peer := peerKey(r)
	if s.access != nil && !s.access.PeerCanAccess(vault, peer) {
		s.log.Warnf("Peer %s denied access to vault %s", peer, vault)
		http.Error(w, "forbidden", http.StatusForbidden)
		return nil, false
	}
	repo, err := s.resolver.Repository(vault)
	if errors.Is(err, kerrors.ErrVaultNotFound) {
		return nil, true
	}
	if err != nil {
		s.log.Errorf("Opening vault %s: %v", vault, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return nil, false
	}
	return repo, true
}

func (s *Server) handleInfoRefs(w http.ResponseWriter, r *http.Request) {
	if service := r.URL.Query().Get("service"); service != ServiceUploadPack {
		http.Error(w, fmt.Sprintf("unsupported service %q", service), http.StatusForbidden)
		return
	}
	repo, ok := s.repository(w, r)
	if !ok {
		return
	}

	var refs []Ref
	var symrefs map[string]string
	if repo != nil {
		var err error
		refs, symrefs, err = repo.AdvertisedRefs()
		if err != nil {
			s.log.Errorf("Listing refs of %s: %v", r.PathValue("vault"), err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
	}

	w.Header().Set("Content-Type", "application/x-"+ServiceUploadPack+"-advertisement")
	w.Header().Set("Cache-Control", "no-cache")
	if err := WriteInfoRefs(w, refs, symrefs, Capabilities); err != nil {
		s.log.Debugf("Writing advertisement: %v", err)
	}
	s.log.Debugf("Advertised %d refs of %s to %s", len(refs), r.PathValue("vault"), peerKey(r))
}

func (s *Server) handleUploadPack(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		http.Error(w, "reading request", http.StatusBadRequest)
		return
	}
	req, err := ParseWantRequest(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	repo, ok := s.repository(w, r)
	if !ok {
		return
	}
	if repo == nil {
		http.Error(w, kerrors.ErrVaultNotFound.Error(), http.StatusNotFound)
		return
	}

	pack, count, err := repo.Pack(r.Context(), req)
	if err != nil {
		s.log.Warnf("Packing %s for %s: %v", req.Want, peerKey(r), err)
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	defer pack.Close()

	w.Header().Set("Content-Type", "application/x-"+ServiceUploadPack+"-result")
	w.Header().Set("Cache-Control", "no-cache")
	progress := strings.NewReader(fmt.Sprintf("Enumerating objects: %d, done.\n", count))
	if err := ServePack(r.Context(), w, req.Variant(), pack, progress); err != nil {
		s.log.Warnf("Serving pack of %s to %s: %v", r.PathValue("vault"), peerKey(r), err)
		return
	}
	s.log.Infof("Sent %d objects of %s to %s", count, r.PathValue("vault"), peerKey(r))
}

func peerKey(r *http.Request) string {
	if node := strings.TrimSpace(r.Header.Get(NodeHeader)); node != "" {
		return node
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}

type multiLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	ttl     time.Duration
	entries map[string]*limBucket
}

type limBucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func newMultiLimiter(limit rate.Limit, burst int, ttl time.Duration) *multiLimiter {
	return &multiLimiter{
		limit:   limit,
		burst:   burst,
		ttl:     ttl,
		entries: make(map[string]*limBucket),
	}
}

func (m *multiLimiter) allow(key string) bool {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.entries[key]
	if b == nil {
		b = &limBucket{lim: rate.NewLimiter(m.limit, m.burst), lastSeen: now}
		m.entries[key] = b
	}
	b.lastSeen = now

	for k, v := range m.entries {
		if now.Sub(v.lastSeen) > m.ttl {
			delete(m.entries, k)
		}
	}
	return b.lim.Allow()
}

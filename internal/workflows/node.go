package workflows

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-git/go-billy/v5/osfs"

	"github.com/PolarWolf314/strongbox/internal/audit"
	"github.com/PolarWolf314/strongbox/internal/configs"
	kerrors "github.com/PolarWolf314/strongbox/internal/errors"
	"github.com/PolarWolf314/strongbox/internal/git/protocol"
	"github.com/PolarWolf314/strongbox/internal/keys"
	logger "github.com/PolarWolf314/strongbox/internal/logging"
	"github.com/PolarWolf314/strongbox/internal/utils"
	"github.com/PolarWolf314/strongbox/internal/vaults"
)

// Node is a loaded node: its configuration, identity and vaults.
type Node struct {
	Config *configs.NodeConfig
	Keys   *keys.Manager
	Vaults *vaults.Manager
	Log    logger.Logger

	// Transport reaches peers. It defaults to HTTP.
	Transport protocol.Transport
}

// LoadOptions configures LoadNode.
type LoadOptions struct {
	// Passphrase unlocks a protected private key.
	Passphrase []byte

	Log logger.Logger
}

// LoadNode loads this node's configuration, private key and vault
// registry.
//
// Returns ErrNodeNotInitialized if no private key exists yet.
// Returns ErrPassphraseRequired if the key is protected and no passphrase
// was given.
func LoadNode(ctx context.Context, opts LoadOptions) (*Node, error) {
	settings := configs.StrongboxSettings

	config, err := configs.LoadNodeConfig()
	if err != nil {
		return nil, err
	}

	privateKey, err := keys.LoadPrivateKey(settings.PrivateKeyPath(), opts.Passphrase)
	if errors.Is(err, os.ErrNotExist) {
		return nil, kerrors.ErrNodeNotInitialized
	}
	if err != nil {
		return nil, fmt.Errorf("loading private key: %w", err)
	}

	return newNode(config, privateKey, settings.DataPath, opts.Log)
}

func newNode(config *configs.NodeConfig, privateKey *rsa.PrivateKey, dataPath string, log logger.Logger) (*Node, error) {
	if err := os.MkdirAll(dataPath, 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	km := keys.NewManager(privateKey)
	manager, err := vaults.NewManager(osfs.New(dataPath), km, vaults.Options{
		Name:   config.Node.Name,
		Email:  config.Node.Email,
		Signer: km,
		Log:    log,
	})
	if err != nil {
		return nil, fmt.Errorf("loading vault registry: %w", err)
	}

	log.Debugf("Loaded node %s with %d vaults", config.Node.Name, len(manager.ListVaults()))
	return &Node{
		Config:    config,
		Keys:      km,
		Vaults:    manager,
		Log:       log,
		Transport: protocol.NewHTTPTransport(log),
	}, nil
}

// Remote returns the wire client for vault on peer. peer is a name from
// the [peers] table or a base URL.
func (n *Node) Remote(peer, vault string) (*protocol.Remote, error) {
	base, ok := n.Config.PeerURL(peer)
	if !ok {
		return nil, fmt.Errorf("%w: %s", kerrors.ErrUnknownPeer, peer)
	}
	id := n.Config.Node.UUID
	if id == "" {
		id = n.Config.Node.Name
	}
	return protocol.NewClient(n.Transport, base, id, n.Log).Remote(vault), nil
}

// InitNodeOptions configures InitNode.
type InitNodeOptions struct {
	// Name defaults to one derived from the hostname.
	Name  string
	Email string

	// Force replaces an existing key pair.
	Force bool
}

// InitNodeResult contains the outcome of InitNode.
type InitNodeResult struct {
	Name          string
	UUID          string
	Fingerprint   string
	PublicKeyPath string
}

// InitNode generates this node's key pair and writes its configuration.
//
// Returns ErrNodeAlreadyInitialized if a key pair exists and Force is not
// set. Returns ErrInvalidEmail for a malformed email.
func InitNode(ctx context.Context, opts InitNodeOptions) (*InitNodeResult, error) {
	settings := configs.StrongboxSettings

	if opts.Email != "" && !utils.IsValidEmail(opts.Email) {
		return nil, fmt.Errorf("%w: %s", kerrors.ErrInvalidEmail, opts.Email)
	}
	if _, err := os.Stat(settings.PrivateKeyPath()); err == nil && !opts.Force {
		return nil, kerrors.ErrNodeAlreadyInitialized
	}

	config, err := configs.EnsureNodeConfig()
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		name = config.Node.Name
	}
	if name == "" {
		name = utils.DefaultNodeName()
	}
	config.Node.Name = utils.SanitizeNodeName(name)
	if opts.Email != "" {
		config.Node.Email = opts.Email
	}
	if err := configs.SaveNodeConfig(config); err != nil {
		return nil, err
	}

	privateKey, err := keys.GenerateRSAKeyPair(settings.PrivateKeyPath(), settings.PublicKeyPath())
	if err != nil {
		return nil, err
	}
	fp, err := keys.Fingerprint(&privateKey.PublicKey)
	if err != nil {
		return nil, err
	}

	entry := audit.LogWithNode(audit.OpNodeInit)
	entry.Fingerprint = fp
	audit.Log(entry)

	return &InitNodeResult{
		Name:          config.Node.Name,
		UUID:          config.Node.UUID,
		Fingerprint:   fp,
		PublicKeyPath: settings.PublicKeyPath(),
	}, nil
}

// NodeInfo describes this node for display.
type NodeInfo struct {
	Name        string
	Email       string
	UUID        string
	Fingerprint string
	PublicKey   string
	Vaults      []string
	Peers       map[string]string
}

// ShowNode describes a loaded node.
func ShowNode(ctx context.Context, n *Node) (*NodeInfo, error) {
	pub := n.Keys.PublicKey()
	fp, err := keys.Fingerprint(pub)
	if err != nil {
		return nil, err
	}
	pem, err := keys.MarshalPublicKey(pub)
	if err != nil {
		return nil, err
	}
	return &NodeInfo{
		Name:        n.Config.Node.Name,
		Email:       n.Config.Node.Email,
		UUID:        n.Config.Node.UUID,
		Fingerprint: fp,
		PublicKey:   string(pem),
		Vaults:      n.Vaults.ListVaults(),
		Peers:       n.Config.Peers,
	}, nil
}

// AddPeer records a short name for a peer's base URL.
func AddPeer(ctx context.Context, n *Node, name, url string) error {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return fmt.Errorf("%w: %s is not an http(s) URL", kerrors.ErrUnknownPeer, url)
	}
	n.Config.Peers[name] = strings.TrimSuffix(url, "/")
	return configs.SaveNodeConfig(n.Config)
}

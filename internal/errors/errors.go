package errors

import (
	"errors"
	"fmt"
)

// Object errors indicate missing, truncated or corrupt objects.
var (
	// ErrReadObject indicates the object is neither loose, packed nor shallow.
	ErrReadObject = errors.New("failed to read object")

	// ErrReadShallowObject indicates the object lies beyond a shallow history boundary.
	ErrReadShallowObject = errors.New("failed to read object beyond shallow boundary")

	// ErrHashMismatch indicates an object's content does not hash to its oid.
	ErrHashMismatch = errors.New("object hash mismatch")

	// ErrLengthMismatch indicates an object's declared length differs from its payload.
	ErrLengthMismatch = errors.New("object length mismatch")

	// ErrInvalidOid indicates a string is not a 40 character hex digest.
	ErrInvalidOid = errors.New("invalid object id")

	// ErrInvalidObject indicates an object's bytes could not be parsed.
	ErrInvalidObject = errors.New("invalid object")

	// ErrUnsupportedDelta indicates a packed object is stored as a delta.
	ErrUnsupportedDelta = errors.New("delta objects are not supported")
)

// Ref errors indicate references that cannot be resolved.
var (
	// ErrRefNotFound indicates every candidate path for a ref was exhausted.
	ErrRefNotFound = errors.New("ref not found")

	// ErrRefLoop indicates a chain of symbolic refs that never reaches an oid.
	ErrRefLoop = errors.New("symbolic ref loop")
)

// Pack errors indicate malformed packfiles or pack indexes.
var (
	// ErrInvalidPackfile indicates the pack stream is malformed.
	ErrInvalidPackfile = errors.New("invalid packfile")

	// ErrPackChecksum indicates the pack trailer does not match its content.
	ErrPackChecksum = errors.New("packfile checksum mismatch")

	// ErrInvalidPackIndex indicates the pack index is malformed.
	ErrInvalidPackIndex = errors.New("invalid pack index")
)

// Wire errors indicate malformed frames or failures reported by a peer.
var (
	// ErrMalformedPktLine indicates a pkt-line frame could not be decoded.
	ErrMalformedPktLine = errors.New("malformed pkt-line")

	// ErrPayloadTooLarge indicates a pkt-line payload exceeds the protocol maximum.
	ErrPayloadTooLarge = errors.New("pkt-line payload too large")

	// ErrInvalidWantRequest indicates a pack request without a well-formed want line.
	ErrInvalidWantRequest = errors.New("invalid want request")

	// ErrRemote indicates the peer reported a fatal error on the error side-band.
	ErrRemote = errors.New("remote error")

	// ErrUnexpectedStatus indicates the transport returned a non-success status.
	ErrUnexpectedStatus = errors.New("unexpected response status")

	// ErrPeerNoVault indicates the peer advertised no refs for the requested vault.
	ErrPeerNoVault = errors.New("peer does not have vault")
)

// Repository errors indicate history operations that cannot proceed.
var (
	// ErrNonFastForward indicates local and remote histories have diverged.
	ErrNonFastForward = errors.New("histories have diverged and cannot be fast-forwarded")

	// ErrNothingToCommit indicates a commit was requested with nothing staged.
	ErrNothingToCommit = errors.New("nothing to commit")
)

// Vault errors indicate vault and secret precondition violations.
var (
	// ErrVaultExists indicates a vault with this name already exists.
	ErrVaultExists = errors.New("vault already exists")

	// ErrVaultNotFound indicates the vault does not exist.
	ErrVaultNotFound = errors.New("vault does not exist")

	// ErrVaultNotRemoved indicates a destroyed vault's directory is still present.
	ErrVaultNotRemoved = errors.New("vault directory was not removed")

	// ErrInvalidVaultName indicates the vault name cannot be used as a directory name.
	ErrInvalidVaultName = errors.New("invalid vault name")

	// ErrSecretExists indicates a secret with this name already exists.
	ErrSecretExists = errors.New("secret already exists")

	// ErrSecretNotFound indicates the secret does not exist.
	ErrSecretNotFound = errors.New("secret does not exist")

	// ErrInvalidSecretName indicates the secret name is empty or escapes the vault.
	ErrInvalidSecretName = errors.New("invalid secret name")

	// ErrKeyAlreadyShared indicates the public key is already in the share set.
	ErrKeyAlreadyShared = errors.New("vault is already shared with this key")

	// ErrKeyNotShared indicates the public key is not in the share set.
	ErrKeyNotShared = errors.New("vault is not shared with this key")
)

// Cryptographic errors indicate key or decryption failures.
var (
	// ErrInvalidKeyLength indicates a symmetric key has an unexpected length.
	ErrInvalidKeyLength = errors.New("invalid symmetric key length")

	// ErrDecryptFailed indicates ciphertext could not be authenticated or decrypted.
	ErrDecryptFailed = errors.New("failed to decrypt data")

	// ErrInvalidPrivateKey indicates the private key is malformed or unsupported.
	ErrInvalidPrivateKey = errors.New("invalid or unsupported private key format")

	// ErrPassphraseRequired indicates the private key is passphrase protected.
	ErrPassphraseRequired = errors.New("private key is passphrase protected")

	// ErrSignatureInvalid indicates a signature does not verify.
	ErrSignatureInvalid = errors.New("signature verification failed")

	// ErrNodeNotInitialized indicates the node has no identity keys yet.
	ErrNodeNotInitialized = errors.New("node has not been initialized")
)

// Node errors indicate problems with this node's setup.
var (
	// ErrNodeAlreadyInitialized indicates the node already has identity keys.
	ErrNodeAlreadyInitialized = errors.New("node is already initialized")

	// ErrUnknownPeer indicates a peer name that is neither configured nor a URL.
	ErrUnknownPeer = errors.New("unknown peer")

	// ErrInvalidEmail indicates the node contact address is malformed.
	ErrInvalidEmail = errors.New("invalid email address")
)

// RemoteError carries the text a peer sent on the error side-band.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s", ErrRemote, e.Message)
}

func (e *RemoteError) Unwrap() error {
	return ErrRemote
}

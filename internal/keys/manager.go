package keys

import (
	"crypto/rsa"
)

// Manager performs cryptography with one node's identity.
type Manager struct {
	private *rsa.PrivateKey
}

func NewManager(privateKey *rsa.PrivateKey) *Manager {
	return &Manager{private: privateKey}
}

// PublicKey returns the node's public key.
func (m *Manager) PublicKey() *rsa.PublicKey {
	return &m.private.PublicKey
}

// Encrypt seals data for recipient. A nil recipient means this node.
func (m *Manager) Encrypt(data []byte, recipient *rsa.PublicKey) ([]byte, error) {
	if recipient == nil {
		recipient = m.PublicKey()
	}
	return Encrypt(data, recipient)
}

// Decrypt opens data sealed for this node.
func (m *Manager) Decrypt(data []byte) ([]byte, error) {
	return Decrypt(data, m.private)
}

// Sign signs data with the node's private key. It satisfies repo.Signer.
func (m *Manager) Sign(data []byte) ([]byte, error) {
	return Sign(data, m.private)
}

// Verify checks signature against publicKey, or this node's key when nil.
func (m *Manager) Verify(data, signature []byte, publicKey *rsa.PublicKey) error {
	if publicKey == nil {
		publicKey = m.PublicKey()
	}
	return Verify(data, signature, publicKey)
}

// GenerateSymmetricKey returns a vault key, see the package function.
func (m *Manager) GenerateSymmetricKey(name, passphrase string) ([]byte, error) {
	return GenerateSymmetricKey(name, passphrase)
}

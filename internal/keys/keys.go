package keys

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh"

	kerrors "github.com/PolarWolf314/strongbox/internal/errors"
)

// KeyBits is the size of generated RSA keys.
const KeyBits = 2048

// LoadPrivateKey loads an RSA private key from disk. passphrase is only
// consulted for protected OpenSSH keys.
func LoadPrivateKey(path string, passphrase []byte) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParsePrivateKey(data, passphrase)
}

// ParsePrivateKey parses PKCS#1, PKCS#8 and OpenSSH RSA private keys.
func ParsePrivateKey(data, passphrase []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block found", kerrors.ErrInvalidPrivateKey)
	}
	switch block.Type {
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("%w: not an RSA key", kerrors.ErrInvalidPrivateKey)
		}
		return rsaKey, nil
	case "OPENSSH PRIVATE KEY":
		return parseOpenSSHPrivateKey(data, passphrase)
	}
	return nil, fmt.Errorf("%w: unexpected PEM type %q", kerrors.ErrInvalidPrivateKey, block.Type)
}

func parseOpenSSHPrivateKey(data, passphrase []byte) (*rsa.PrivateKey, error) {
	var (
		raw any
		err error
	)
	if len(passphrase) > 0 {
		raw, err = ssh.ParseRawPrivateKeyWithPassphrase(data, passphrase)
	} else {
		raw, err = ssh.ParseRawPrivateKey(data)
	}
	if err != nil {
		var missing *ssh.PassphraseMissingError
		if errors.As(err, &missing) {
			return nil, kerrors.ErrPassphraseRequired
		}
		return nil, fmt.Errorf("%w: %v", kerrors.ErrInvalidPrivateKey, err)
	}

	switch key := raw.(type) {
	case *rsa.PrivateKey:
		return key, nil
	default:
		return nil, fmt.Errorf("%w: unsupported key type %T", kerrors.ErrInvalidPrivateKey, raw)
	}
}

// LoadPublicKey loads an RSA public key from disk.
func LoadPublicKey(path string) (*rsa.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParsePublicKey(data)
}

// ParsePublicKey parses a PKIX PEM block or an OpenSSH authorized_keys line.
func ParsePublicKey(data []byte) (*rsa.PublicKey, error) {
	if strings.HasPrefix(strings.TrimSpace(string(data)), "ssh-") {
		parsed, _, _, _, err := ssh.ParseAuthorizedKey(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse OpenSSH public key: %w", err)
		}
		crypto, ok := parsed.(ssh.CryptoPublicKey)
		if !ok {
			return nil, fmt.Errorf("unsupported OpenSSH public key")
		}
		rsaPub, ok := crypto.CryptoPublicKey().(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("not an RSA public key")
		}
		return rsaPub, nil
	}

	block, _ := pem.Decode(data)
	if block == nil || block.Type != "PUBLIC KEY" {
		return nil, fmt.Errorf("failed to decode PEM block containing public key")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("not an RSA public key")
	}
	return rsaPub, nil
}

// MarshalPublicKey encodes pub as a PKIX PEM block.
func MarshalPublicKey(pub *rsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal public key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

// Fingerprint returns the OpenSSH SHA256 fingerprint of pub.
func Fingerprint(pub *rsa.PublicKey) (string, error) {
	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		return "", err
	}
	return ssh.FingerprintSHA256(sshPub), nil
}

// GenerateRSAKeyPair creates a new RSA key pair and saves it to disk.
func GenerateRSAKeyPair(privatePath, publicPath string) (*rsa.PrivateKey, error) {
	privateKey, err := rsa.GenerateKey(rand.Reader, KeyBits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate RSA key pair: %w", err)
	}

	for _, dir := range []string{filepath.Dir(privatePath), filepath.Dir(publicPath)} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create key directory %s: %w", dir, err)
		}
	}

	privPem := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(privateKey),
	})
	if err := os.WriteFile(privatePath, privPem, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write private key to %s: %w", privatePath, err)
	}

	pubPem, err := MarshalPublicKey(&privateKey.PublicKey)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(publicPath, pubPem, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write public key to %s: %w", publicPath, err)
	}
	return privateKey, nil
}

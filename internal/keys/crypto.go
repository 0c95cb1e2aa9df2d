package keys

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/binary"
	"encoding/pem"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/nacl/secretbox"

	kerrors "github.com/PolarWolf314/strongbox/internal/errors"
)

// SymmetricKeySize is the length of vault keys.
const SymmetricKeySize = 32

const signatureBlockType = "STRONGBOX SIGNATURE"

// Argon2id parameters for passphrase derived vault keys.
const (
	argonTime    = 3
	argonMemory  = 64 * 1024
	argonThreads = 4
)

// CreateSymmetricKey generates a new random symmetric key.
func CreateSymmetricKey() ([]byte, error) {
	key := make([]byte, SymmetricKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

// GenerateSymmetricKey returns a key for the vault called name. An empty
// passphrase yields a random key.
func GenerateSymmetricKey(name, passphrase string) ([]byte, error) {
	if passphrase == "" {
		return CreateSymmetricKey()
	}
	salt := sha256.Sum256([]byte("strongbox vault " + name))
	return argon2.IDKey([]byte(passphrase), salt[:], argonTime, argonMemory, argonThreads, SymmetricKeySize), nil
}

// Encrypt seals plaintext so that only the holder of recipient's private
// key can open it. The layout is a 2 byte length, the RSA wrapped data key,
// a 24 byte nonce and the secretbox.
func Encrypt(plaintext []byte, recipient *rsa.PublicKey) ([]byte, error) {
	dataKey, err := CreateSymmetricKey()
	if err != nil {
		return nil, err
	}
	wrapped, err := rsa.EncryptPKCS1v15(rand.Reader, recipient, dataKey)
	if err != nil {
		return nil, fmt.Errorf("failed to wrap data key: %w", err)
	}

	var key [32]byte
	copy(key[:], dataKey)
	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	out := make([]byte, 2, 2+len(wrapped)+len(nonce)+secretbox.Overhead+len(plaintext))
	binary.BigEndian.PutUint16(out, uint16(len(wrapped)))
	out = append(out, wrapped...)
	out = append(out, nonce[:]...)
	return secretbox.Seal(out, plaintext, &nonce, &key), nil
}

// Decrypt opens data sealed by Encrypt.
func Decrypt(ciphertext []byte, privateKey *rsa.PrivateKey) ([]byte, error) {
	if len(ciphertext) < 2 {
		return nil, fmt.Errorf("%w: ciphertext too short", kerrors.ErrDecryptFailed)
	}
	n := int(binary.BigEndian.Uint16(ciphertext))
	rest := ciphertext[2:]
	if len(rest) < n+24+secretbox.Overhead {
		return nil, fmt.Errorf("%w: ciphertext too short", kerrors.ErrDecryptFailed)
	}

	dataKey, err := rsa.DecryptPKCS1v15(rand.Reader, privateKey, rest[:n])
	if err != nil || len(dataKey) != SymmetricKeySize {
		return nil, fmt.Errorf("%w: cannot unwrap data key", kerrors.ErrDecryptFailed)
	}
	var key [32]byte
	copy(key[:], dataKey)
	var nonce [24]byte
	copy(nonce[:], rest[n:n+24])

	plaintext, ok := secretbox.Open(nil, rest[n+24:], &nonce, &key)
	if !ok {
		return nil, fmt.Errorf("%w: failed to decrypt ciphertext with secretbox", kerrors.ErrDecryptFailed)
	}
	return plaintext, nil
}

// Sign returns an armored signature over data.
func Sign(data []byte, privateKey *rsa.PrivateKey) ([]byte, error) {
	digest := sha256.Sum256(data)
	sig, err := rsa.SignPKCS1v15(rand.Reader, privateKey, crypto.SHA256, digest[:])
	if err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: signatureBlockType, Bytes: sig}), nil
}

// Verify checks an armored signature produced by Sign.
func Verify(data, armored []byte, publicKey *rsa.PublicKey) error {
	block, _ := pem.Decode(armored)
	if block == nil || block.Type != signatureBlockType {
		return fmt.Errorf("%w: not an armored signature", kerrors.ErrSignatureInvalid)
	}
	digest := sha256.Sum256(data)
	if err := rsa.VerifyPKCS1v15(publicKey, crypto.SHA256, digest[:], block.Bytes); err != nil {
		return kerrors.ErrSignatureInvalid
	}
	return nil
}

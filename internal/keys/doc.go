// Package keys manages a node's identity and the cryptography around it.
//
// Every node has an RSA key pair. The private key is read from PEM (PKCS#1
// or PKCS#8) or OpenSSH format, optionally passphrase protected; the public
// key is exchanged as a PKIX PEM block or an OpenSSH authorized_keys line.
//
// # Encryption
//
// Encrypt seals data for a recipient's public key. A fresh 32 byte key is
// wrapped with RSA and the data itself is sealed with NaCl secretbox, so
// payloads of any size can be encrypted. The vault registry of a node is
// stored this way under the node's own public key.
//
// # Signing
//
// Sign produces an armored RSA PKCS#1 v1.5 signature over SHA-256. Vault
// commits carry it in their gpgsig header and Verify checks it against any
// public key.
//
// # Vault keys
//
// GenerateSymmetricKey returns the 32 byte key a vault's encrypted
// filesystem is sealed with. With a passphrase it is derived with Argon2id,
// salted by the vault name, so the same name and passphrase always yield
// the same key; without one it is random.
package keys

// Package efs provides a billy.Filesystem that encrypts file contents at
// rest.
//
// Every regular file on the underlying filesystem holds a random 24 byte
// nonce followed by the XChaCha20-Poly1305 sealed plaintext. The sealing key
// is derived from the vault key with HKDF-SHA256, so the raw vault key never
// touches file contents directly. Names, directory structure and symlink
// targets are not encrypted.
//
// Files are buffered in memory: reads decrypt the whole file on open and
// writes are sealed and stored when the file is closed. Vault secrets and
// repository objects are small, which keeps this simple and lets a partial
// write never leave a half-encrypted file behind.
package efs

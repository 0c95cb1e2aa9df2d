// Package vaults implements encrypted, version-controlled secret vaults.
//
// A Vault is a repository whose worktree and object database live inside an
// encrypted filesystem. Every secret is a file under secrets/ and every
// change to a secret is one commit, so a vault's history can be inspected,
// diffed and replicated to other nodes over the upload-pack protocol.
//
// Mutations (add, update, remove, pull) are serialized per vault. Reads go
// through an in-memory cache of secret contents that is only updated once
// the corresponding commit has been written.
//
// A Manager owns the vaults of one node. It keeps a registry mapping vault
// names to their symmetric keys, sealed with the node's public key, and
// serves its vaults to peers as a protocol.Resolver.
package vaults

// Package repo ties the object store, refs and wire protocol together into
// a repository with a worktree.
//
// The worktree is the root of a billy filesystem and the repository data
// lives in its .git directory. Vault repositories have a single branch,
// refs/heads/master, and HEAD always points at it.
//
// Changes are staged in memory with Add and Remove and recorded with
// Commit. Synchronization is fetch based: Fetch downloads the history a
// peer advertises, Pull fast-forwards onto it and Clone does both into an
// empty filesystem. Repository also implements protocol.Repository so a
// protocol.Server can serve it to other nodes.
package repo

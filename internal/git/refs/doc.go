// Package refs reads and writes the named pointers of a vault repository.
//
// A ref is either a loose file under the repository directory holding an
// oid or "ref: <other ref>", or a line in packed-refs. Loose files always
// win over packed entries of the same name.
//
// Resolve follows the same search order git uses for short names, so
// "master" finds refs/heads/master and "origin" finds
// refs/remotes/origin/HEAD. ResolveDepth stops after a number of symbolic
// hops, which is how callers learn that HEAD points at refs/heads/master
// without dereferencing further.
package refs

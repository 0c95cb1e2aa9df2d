// Package store is the content-addressable object database of a vault
// repository.
//
// Objects live either loose, one zlib file per object under
// objects/<2 hex>/<38 hex>, or in packs under objects/pack. Every pack has a
// version 2 index next to it; the index is loaded when the pack is first
// consulted, and the pack bytes only when an object is actually read out of
// it. Loaded packs stay resident for the lifetime of the Store.
//
// # Reading
//
// Read looks for an object loose first, then in each pack. When neither has
// it and the oid is listed in the repository's shallow file, the error is
// errors.ErrReadShallowObject so callers can tell a truncated history from a
// missing object. Anything else is errors.ErrReadObject.
//
// Every read is verified: the wrapped bytes must hash to the requested oid.
package store

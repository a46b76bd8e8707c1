// Package storage defines the object model and the backing-store contract
// of the catalog storage core.
//
// Objects are immutable, content-addressed records identified by an ObjId.
// References are named mutable pointers with optimistic-concurrency
// mutation rules. The Persist interface is the authoritative persistence
// contract; byte-oriented backends serialize objects through MarshalObj
// and UnmarshalObj. The caching facade in storage/cached wraps any Persist
// with the bounded cache from storage/objcache.
package storage

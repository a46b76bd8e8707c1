package storage

import (
	"context"
	"fmt"
	"time"
)

// DefaultHardObjectSizeLimit caps serialized object size for stores that
// do not impose a tighter limit of their own.
const DefaultHardObjectSizeLimit = 8 * 1024 * 1024

// StoreConfig carries the static configuration shared by Persist
// implementations.
type StoreConfig struct {
	// RepositoryID namespaces all objects and references of one catalog
	// repository within a shared backing store.
	RepositoryID string `json:"repositoryId"`
	// HardObjectSizeLimit is the maximum serialized object size in bytes.
	// Zero means DefaultHardObjectSizeLimit.
	HardObjectSizeLimit int `json:"hardObjectSizeLimit"`
	// NegativeTTL is the default lifetime of negative cache entries
	// handed to the caching facade.
	NegativeTTL time.Duration `json:"negativeTTL"`
}

// DefaultStoreConfig returns the configuration used when none is given.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		RepositoryID:        "main",
		HardObjectSizeLimit: DefaultHardObjectSizeLimit,
		NegativeTTL:         30 * time.Second,
	}
}

// Validate checks the configuration for usable values.
func (c StoreConfig) Validate() error {
	if c.RepositoryID == "" {
		return fmt.Errorf("repository id must not be empty")
	}
	if c.HardObjectSizeLimit < 0 {
		return fmt.Errorf("hard object size limit cannot be negative")
	}
	if c.NegativeTTL < 0 {
		return fmt.Errorf("negative TTL cannot be negative")
	}
	return nil
}

// EffectiveSizeLimit resolves the configured limit, applying the default
// when unset.
func (c StoreConfig) EffectiveSizeLimit() int {
	if c.HardObjectSizeLimit == 0 {
		return DefaultHardObjectSizeLimit
	}
	return c.HardObjectSizeLimit
}

// ObjIterator walks objects produced by a scan. The usual loop is
//
//	for it.Next() { obj := it.Obj(); ... }
//	if err := it.Err(); err != nil { ... }
//
// followed by Close.
type ObjIterator interface {
	Next() bool
	Obj() Obj
	Err() error
	Close() error
}

// Persist is the authoritative backing-store contract. Implementations
// are safe for concurrent use. Fetch operations signal absence with
// errors.ErrObjNotFound; batch fetches report absence as nil slots
// instead.
type Persist interface {
	// Name identifies the store implementation ("inmem", "natskv", ...).
	Name() string
	// Config returns the store's static configuration.
	Config() StoreConfig
	// HardObjectSizeLimit is the maximum serialized object size accepted
	// by StoreObj and UpdateObj.
	HardObjectSizeLimit() int

	// FetchObj retrieves the object with the given id.
	FetchObj(ctx context.Context, id ObjId) (Obj, error)
	// FetchTypedObj retrieves the object with the given id and verifies
	// that it has the expected type. A type mismatch is signaled exactly
	// like absence.
	FetchTypedObj(ctx context.Context, id ObjId, typ ObjType) (Obj, error)
	// FetchObjType retrieves only the type of the object with the given
	// id, without materializing the full object.
	FetchObjType(ctx context.Context, id ObjId) (ObjType, error)
	// FetchObjs retrieves many objects in one call. Zero-id slots are
	// skipped and stay nil in the result; absent ids yield nil slots.
	// The result has the same length and slot order as ids.
	FetchObjs(ctx context.Context, ids []ObjId) ([]Obj, error)

	// StoreObj persists the object if no object with its id exists yet.
	// It reports whether the object was newly stored.
	StoreObj(ctx context.Context, obj Obj) (bool, error)
	// StoreObjs persists many objects in one call, returning a per-slot
	// newly-stored flag aligned with objs.
	StoreObjs(ctx context.Context, objs []Obj) ([]bool, error)
	// UpdateObj unconditionally replaces the stored value at obj's id.
	UpdateObj(ctx context.Context, obj Obj) error
	// UpdateObjs replaces many stored values in one call.
	UpdateObjs(ctx context.Context, objs []Obj) error
	// DeleteObj removes the object with the given id. Deleting an absent
	// id is not an error.
	DeleteObj(ctx context.Context, id ObjId) error
	// DeleteObjs removes many objects in one call.
	DeleteObjs(ctx context.Context, ids []ObjId) error
	// Erase removes every object and reference in the repository.
	Erase(ctx context.Context) error
	// ScanAllObjects iterates all objects whose type is in types; an
	// empty types slice scans everything.
	ScanAllObjects(ctx context.Context, types []ObjType) (ObjIterator, error)

	// AddReference creates a reference. It fails with
	// errors.ErrRefAlreadyExists when a live reference with the same
	// name exists.
	AddReference(ctx context.Context, ref Reference) (Reference, error)
	// MarkReferenceAsDeleted sets the soft-delete marker on a reference.
	// The supplied ref must match the currently stored state.
	MarkReferenceAsDeleted(ctx context.Context, ref Reference) (Reference, error)
	// PurgeReference removes a soft-deleted reference. The supplied ref
	// must match the currently stored state.
	PurgeReference(ctx context.Context, ref Reference) error
	// UpdateReferencePointer moves a live reference to a new pointer.
	// The supplied ref must match the currently stored state.
	UpdateReferencePointer(ctx context.Context, ref Reference, newPointer ObjId) (Reference, error)
	// FetchReference retrieves a live reference by name.
	FetchReference(ctx context.Context, name string) (Reference, error)
	// FetchReferences retrieves many references in one call; absent or
	// soft-deleted names yield nil slots. The result has the same length
	// and slot order as names.
	FetchReferences(ctx context.Context, names []string) ([]*Reference, error)
}

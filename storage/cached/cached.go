package cached

import (
	"context"
	"fmt"

	"github.com/wuchunfu/nessie/errors"
	"github.com/wuchunfu/nessie/storage"
	"github.com/wuchunfu/nessie/storage/objcache"
)

// CachingPersist wraps a backing Persist with the object cache,
// preserving the full Persist contract. The cache only ever holds values
// known to currently match the backing store, or nothing; every mutation
// path drops the affected entries so the next read goes to the backend.
type CachingPersist struct {
	backing storage.Persist
	cache   objcache.Cache
}

var _ storage.Persist = (*CachingPersist)(nil)

// Wrap builds the caching facade around a backing store with an
// externally owned cache.
func Wrap(backing storage.Persist, cache objcache.Cache) *CachingPersist {
	return &CachingPersist{backing: backing, cache: cache}
}

// WrapWithConfig builds the cache from configuration. When caching is
// disabled the backing store is returned untouched.
func WrapWithConfig(backing storage.Persist, config objcache.Config, options ...objcache.Option) (storage.Persist, error) {
	if !config.Enabled {
		return backing, nil
	}
	cache, err := objcache.NewFromConfig(config, options...)
	if err != nil {
		return nil, errors.Wrap(err, "CachingPersist", "WrapWithConfig", "build object cache")
	}
	return Wrap(backing, cache), nil
}

// Cache returns the wrapped cache.
func (p *CachingPersist) Cache() objcache.Cache {
	return p.cache
}

// Name returns the backing store's name.
func (p *CachingPersist) Name() string {
	return p.backing.Name()
}

// Config returns the backing store's configuration.
func (p *CachingPersist) Config() storage.StoreConfig {
	return p.backing.Config()
}

// HardObjectSizeLimit returns the backing store's size limit.
func (p *CachingPersist) HardObjectSizeLimit() int {
	return p.backing.HardObjectSizeLimit()
}

// FetchObj serves the object from cache when possible. A backend
// not-found evicts any stale entry and records a negative marker before
// the failure propagates.
func (p *CachingPersist) FetchObj(ctx context.Context, id storage.ObjId) (storage.Obj, error) {
	obj, state := p.cache.Get(id)
	switch state {
	case objcache.StateHit:
		return obj, nil
	case objcache.StateNegative:
		return nil, notFound(id)
	}

	obj, err := p.backing.FetchObj(ctx, id)
	if err != nil {
		if errors.IsObjNotFound(err) {
			p.cache.Remove(id)
			p.cache.PutNegative(id)
		}
		return nil, err
	}
	p.cache.Put(obj)
	return obj, nil
}

// FetchTypedObj is FetchObj with a type expectation. A cached object of
// a different type is treated as absent without consulting the backend;
// the mismatch is authoritative evidence of caller error, not staleness.
func (p *CachingPersist) FetchTypedObj(ctx context.Context, id storage.ObjId, typ storage.ObjType) (storage.Obj, error) {
	obj, state := p.cache.Get(id)
	switch state {
	case objcache.StateHit:
		if obj.Type() != typ {
			return nil, notFound(id)
		}
		return obj, nil
	case objcache.StateNegative:
		return nil, notFound(id)
	}

	obj, err := p.backing.FetchTypedObj(ctx, id, typ)
	if err != nil {
		if errors.IsObjNotFound(err) {
			// No negative marker here: the backend cannot distinguish
			// absence from a type mismatch on an existing object.
			p.cache.Remove(id)
		}
		return nil, err
	}
	p.cache.Put(obj)
	return obj, nil
}

// FetchObjType answers from cache when the object is already present,
// otherwise delegates to the backend's lightweight type lookup. It never
// faults a full object into the cache.
func (p *CachingPersist) FetchObjType(ctx context.Context, id storage.ObjId) (storage.ObjType, error) {
	obj, state := p.cache.Get(id)
	switch state {
	case objcache.StateHit:
		return obj.Type(), nil
	case objcache.StateNegative:
		return "", notFound(id)
	}

	return p.backing.FetchObjType(ctx, id)
}

// FetchObjs resolves as many slots as possible from cache and issues at
// most one backend call for the rest, preserving slot order. Zero-id
// slots stay nil; ids the backend reports absent stay nil too.
func (p *CachingPersist) FetchObjs(ctx context.Context, ids []storage.ObjId) ([]storage.Obj, error) {
	result := make([]storage.Obj, len(ids))
	var backendIds []storage.ObjId

	for i, id := range ids {
		if id.IsZero() {
			continue
		}
		obj, state := p.cache.Get(id)
		switch state {
		case objcache.StateHit:
			result[i] = obj
		case objcache.StateNegative:
			// Known absent, slot stays nil.
		default:
			if backendIds == nil {
				backendIds = make([]storage.ObjId, len(ids))
			}
			backendIds[i] = id
		}
	}

	if backendIds == nil {
		return result, nil
	}

	fetched, err := p.backing.FetchObjs(ctx, backendIds)
	if err != nil {
		return nil, err
	}
	for i, obj := range fetched {
		if obj == nil {
			continue
		}
		p.cache.Put(obj)
		result[i] = obj
	}
	return result, nil
}

// StoreObj delegates to the backend and populates the cache only when
// the backend confirms the object was newly stored.
func (p *CachingPersist) StoreObj(ctx context.Context, obj storage.Obj) (bool, error) {
	stored, err := p.backing.StoreObj(ctx, obj)
	if err != nil {
		return false, err
	}
	if stored {
		p.cache.Put(obj)
	}
	return stored, nil
}

// StoreObjs delegates to the backend and populates the cache only for
// the slots the backend reports as newly stored.
func (p *CachingPersist) StoreObjs(ctx context.Context, objs []storage.Obj) ([]bool, error) {
	stored, err := p.backing.StoreObjs(ctx, objs)
	if err != nil {
		return nil, err
	}
	for i, ok := range stored {
		if ok && objs[i] != nil {
			p.cache.Put(objs[i])
		}
	}
	return stored, nil
}

// UpdateObj delegates to the backend and evicts the id regardless of the
// outcome; a failed update leaves backend state ambiguous.
func (p *CachingPersist) UpdateObj(ctx context.Context, obj storage.Obj) error {
	defer p.cache.Remove(obj.ID())
	return p.backing.UpdateObj(ctx, obj)
}

// UpdateObjs delegates to the backend and evicts every id regardless of
// the outcome.
func (p *CachingPersist) UpdateObjs(ctx context.Context, objs []storage.Obj) error {
	defer func() {
		for _, obj := range objs {
			if obj != nil {
				p.cache.Remove(obj.ID())
			}
		}
	}()
	return p.backing.UpdateObjs(ctx, objs)
}

// DeleteObj delegates to the backend and evicts the id unconditionally.
func (p *CachingPersist) DeleteObj(ctx context.Context, id storage.ObjId) error {
	defer p.cache.Remove(id)
	return p.backing.DeleteObj(ctx, id)
}

// DeleteObjs delegates to the backend and evicts every id
// unconditionally.
func (p *CachingPersist) DeleteObjs(ctx context.Context, ids []storage.ObjId) error {
	defer func() {
		for _, id := range ids {
			p.cache.Remove(id)
		}
	}()
	return p.backing.DeleteObjs(ctx, ids)
}

// Erase wipes the backing store and then the whole cache, even when the
// backend wipe fails partway.
func (p *CachingPersist) Erase(ctx context.Context) error {
	defer p.cache.Clear()
	return p.backing.Erase(ctx)
}

// ScanAllObjects passes through; scans are bulk cold-path reads.
func (p *CachingPersist) ScanAllObjects(ctx context.Context, types []storage.ObjType) (storage.ObjIterator, error) {
	return p.backing.ScanAllObjects(ctx, types)
}

// AddReference passes through; references carry their own optimistic
// concurrency that a cache would undermine.
func (p *CachingPersist) AddReference(ctx context.Context, ref storage.Reference) (storage.Reference, error) {
	return p.backing.AddReference(ctx, ref)
}

// MarkReferenceAsDeleted passes through.
func (p *CachingPersist) MarkReferenceAsDeleted(ctx context.Context, ref storage.Reference) (storage.Reference, error) {
	return p.backing.MarkReferenceAsDeleted(ctx, ref)
}

// PurgeReference passes through.
func (p *CachingPersist) PurgeReference(ctx context.Context, ref storage.Reference) error {
	return p.backing.PurgeReference(ctx, ref)
}

// UpdateReferencePointer passes through.
func (p *CachingPersist) UpdateReferencePointer(
	ctx context.Context, ref storage.Reference, newPointer storage.ObjId) (storage.Reference, error) {
	return p.backing.UpdateReferencePointer(ctx, ref, newPointer)
}

// FetchReference passes through.
func (p *CachingPersist) FetchReference(ctx context.Context, name string) (storage.Reference, error) {
	return p.backing.FetchReference(ctx, name)
}

// FetchReferences passes through.
func (p *CachingPersist) FetchReferences(ctx context.Context, names []string) ([]*storage.Reference, error) {
	return p.backing.FetchReferences(ctx, names)
}

func notFound(id storage.ObjId) error {
	return fmt.Errorf("%w: object %s", errors.ErrObjNotFound, id)
}

package cached

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wuchunfu/nessie/errors"
	"github.com/wuchunfu/nessie/storage"
	"github.com/wuchunfu/nessie/storage/objcache"
)

// fakeStore is an in-memory Persist that counts backend calls.
type fakeStore struct {
	mu    sync.Mutex
	objs  map[storage.ObjId]storage.Obj
	refs  map[string]storage.Reference
	calls map[string]int

	failUpdate bool
	failErase  bool

	lastBatchIds []storage.ObjId
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		objs:  make(map[storage.ObjId]storage.Obj),
		refs:  make(map[string]storage.Reference),
		calls: make(map[string]int),
	}
}

func (f *fakeStore) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *fakeStore) record(method string) {
	f.calls[method]++
}

func (f *fakeStore) Name() string                { return "fake" }
func (f *fakeStore) Config() storage.StoreConfig { return storage.DefaultStoreConfig() }
func (f *fakeStore) HardObjectSizeLimit() int    { return storage.DefaultHardObjectSizeLimit }

func (f *fakeStore) FetchObj(_ context.Context, id storage.ObjId) (storage.Obj, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("FetchObj")
	obj, ok := f.objs[id]
	if !ok {
		return nil, fmt.Errorf("%w: object %s", errors.ErrObjNotFound, id)
	}
	return obj, nil
}

func (f *fakeStore) FetchTypedObj(_ context.Context, id storage.ObjId, typ storage.ObjType) (storage.Obj, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("FetchTypedObj")
	obj, ok := f.objs[id]
	if !ok || obj.Type() != typ {
		return nil, fmt.Errorf("%w: object %s", errors.ErrObjNotFound, id)
	}
	return obj, nil
}

func (f *fakeStore) FetchObjType(_ context.Context, id storage.ObjId) (storage.ObjType, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("FetchObjType")
	obj, ok := f.objs[id]
	if !ok {
		return "", fmt.Errorf("%w: object %s", errors.ErrObjNotFound, id)
	}
	return obj.Type(), nil
}

func (f *fakeStore) FetchObjs(_ context.Context, ids []storage.ObjId) ([]storage.Obj, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("FetchObjs")
	f.lastBatchIds = append([]storage.ObjId(nil), ids...)

	result := make([]storage.Obj, len(ids))
	for i, id := range ids {
		if id.IsZero() {
			continue
		}
		if obj, ok := f.objs[id]; ok {
			result[i] = obj
		}
	}
	return result, nil
}

func (f *fakeStore) StoreObj(_ context.Context, obj storage.Obj) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("StoreObj")
	if _, exists := f.objs[obj.ID()]; exists {
		return false, nil
	}
	f.objs[obj.ID()] = obj
	return true, nil
}

func (f *fakeStore) StoreObjs(_ context.Context, objs []storage.Obj) ([]bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("StoreObjs")
	stored := make([]bool, len(objs))
	for i, obj := range objs {
		if obj == nil {
			continue
		}
		if _, exists := f.objs[obj.ID()]; exists {
			continue
		}
		f.objs[obj.ID()] = obj
		stored[i] = true
	}
	return stored, nil
}

func (f *fakeStore) UpdateObj(_ context.Context, obj storage.Obj) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("UpdateObj")
	if f.failUpdate {
		return errors.ErrStorageUnavailable
	}
	f.objs[obj.ID()] = obj
	return nil
}

func (f *fakeStore) UpdateObjs(_ context.Context, objs []storage.Obj) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("UpdateObjs")
	for _, obj := range objs {
		if obj != nil {
			f.objs[obj.ID()] = obj
		}
	}
	return nil
}

func (f *fakeStore) DeleteObj(_ context.Context, id storage.ObjId) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("DeleteObj")
	delete(f.objs, id)
	return nil
}

func (f *fakeStore) DeleteObjs(_ context.Context, ids []storage.ObjId) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("DeleteObjs")
	for _, id := range ids {
		delete(f.objs, id)
	}
	return nil
}

func (f *fakeStore) Erase(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("Erase")
	if f.failErase {
		return errors.ErrStorageUnavailable
	}
	f.objs = make(map[storage.ObjId]storage.Obj)
	f.refs = make(map[string]storage.Reference)
	return nil
}

func (f *fakeStore) ScanAllObjects(_ context.Context, _ []storage.ObjType) (storage.ObjIterator, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ScanAllObjects")
	objs := make([]storage.Obj, 0, len(f.objs))
	for _, obj := range f.objs {
		objs = append(objs, obj)
	}
	return &sliceIterator{objs: objs}, nil
}

func (f *fakeStore) AddReference(_ context.Context, ref storage.Reference) (storage.Reference, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("AddReference")
	if _, exists := f.refs[ref.Name]; exists {
		return storage.Reference{}, errors.ErrRefAlreadyExists
	}
	f.refs[ref.Name] = ref
	return ref, nil
}

func (f *fakeStore) MarkReferenceAsDeleted(_ context.Context, ref storage.Reference) (storage.Reference, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("MarkReferenceAsDeleted")
	deleted := ref.WithDeleted(true)
	f.refs[ref.Name] = deleted
	return deleted, nil
}

func (f *fakeStore) PurgeReference(_ context.Context, ref storage.Reference) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("PurgeReference")
	delete(f.refs, ref.Name)
	return nil
}

func (f *fakeStore) UpdateReferencePointer(
	_ context.Context, ref storage.Reference, newPointer storage.ObjId) (storage.Reference, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("UpdateReferencePointer")
	moved := ref.WithPointer(newPointer)
	f.refs[ref.Name] = moved
	return moved, nil
}

func (f *fakeStore) FetchReference(_ context.Context, name string) (storage.Reference, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("FetchReference")
	ref, ok := f.refs[name]
	if !ok || ref.Deleted {
		return storage.Reference{}, errors.ErrRefNotFound
	}
	return ref, nil
}

func (f *fakeStore) FetchReferences(_ context.Context, names []string) ([]*storage.Reference, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("FetchReferences")
	result := make([]*storage.Reference, len(names))
	for i, name := range names {
		if ref, ok := f.refs[name]; ok && !ref.Deleted {
			r := ref
			result[i] = &r
		}
	}
	return result, nil
}

type sliceIterator struct {
	objs []storage.Obj
	pos  int
}

func (it *sliceIterator) Next() bool {
	if it.pos >= len(it.objs) {
		return false
	}
	it.pos++
	return true
}

func (it *sliceIterator) Obj() storage.Obj { return it.objs[it.pos-1] }
func (it *sliceIterator) Err() error       { return nil }
func (it *sliceIterator) Close() error     { return nil }

func newCachingStore(t *testing.T) (*CachingPersist, *fakeStore) {
	t.Helper()
	backend := newFakeStore()
	cache, err := objcache.New(100, time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })
	return Wrap(backend, cache), backend
}

func tagObj(name string) storage.TagObj {
	return storage.TagObj{Id: storage.IdOf([]byte(name)), Message: name}
}

func TestFetchObj_ReadThrough(t *testing.T) {
	p, backend := newCachingStore(t)
	ctx := context.Background()
	obj := tagObj("o1")

	stored, err := p.StoreObj(ctx, obj)
	require.NoError(t, err)
	assert.True(t, stored)

	// Store populated the cache, so fetches never touch the backend.
	for i := 0; i < 2; i++ {
		got, err := p.FetchObj(ctx, obj.ID())
		require.NoError(t, err)
		assert.Equal(t, obj, got)
	}
	assert.Equal(t, 0, backend.count("FetchObj"))

	// An update drops the entry; the next fetch goes to the backend.
	updated := obj
	updated.Message = "updated"
	require.NoError(t, p.UpdateObj(ctx, updated))

	got, err := p.FetchObj(ctx, obj.ID())
	require.NoError(t, err)
	assert.Equal(t, updated, got)
	assert.Equal(t, 1, backend.count("FetchObj"))

	// And the fresh value is cached again.
	_, err = p.FetchObj(ctx, obj.ID())
	require.NoError(t, err)
	assert.Equal(t, 1, backend.count("FetchObj"))
}

func TestFetchObj_MissPopulatesCache(t *testing.T) {
	p, backend := newCachingStore(t)
	ctx := context.Background()
	obj := tagObj("direct")

	// Object exists at the backend but was never seen by the facade.
	_, err := backend.StoreObj(ctx, obj)
	require.NoError(t, err)

	got, err := p.FetchObj(ctx, obj.ID())
	require.NoError(t, err)
	assert.Equal(t, obj, got)
	assert.Equal(t, 1, backend.count("FetchObj"))

	_, err = p.FetchObj(ctx, obj.ID())
	require.NoError(t, err)
	assert.Equal(t, 1, backend.count("FetchObj"), "second fetch must be served from cache")
}

func TestFetchObj_NotFoundRecordsNegative(t *testing.T) {
	p, backend := newCachingStore(t)
	ctx := context.Background()
	obj := tagObj("absent")

	_, err := p.FetchObj(ctx, obj.ID())
	require.Error(t, err)
	assert.True(t, errors.IsObjNotFound(err))
	assert.Equal(t, 1, backend.count("FetchObj"))

	// The not-found left a negative marker: repeats skip the backend.
	_, err = p.FetchObj(ctx, obj.ID())
	require.Error(t, err)
	assert.True(t, errors.IsObjNotFound(err))
	assert.Equal(t, 1, backend.count("FetchObj"))

	// Storing the object clears the marker.
	stored, err := p.StoreObj(ctx, obj)
	require.NoError(t, err)
	assert.True(t, stored)

	got, err := p.FetchObj(ctx, obj.ID())
	require.NoError(t, err)
	assert.Equal(t, obj, got)
	assert.Equal(t, 1, backend.count("FetchObj"))
}

func TestFetchTypedObj(t *testing.T) {
	p, backend := newCachingStore(t)
	ctx := context.Background()
	obj := tagObj("typed")

	_, err := p.StoreObj(ctx, obj)
	require.NoError(t, err)

	got, err := p.FetchTypedObj(ctx, obj.ID(), storage.ObjTypeTag)
	require.NoError(t, err)
	assert.Equal(t, obj, got)

	// A cached type mismatch reads as not-found with zero backend calls.
	_, err = p.FetchTypedObj(ctx, obj.ID(), storage.ObjTypeCommit)
	require.Error(t, err)
	assert.True(t, errors.IsObjNotFound(err))
	assert.Equal(t, 0, backend.count("FetchTypedObj"))

	// The mismatch did not evict the entry.
	_, state := p.Cache().Get(obj.ID())
	assert.Equal(t, objcache.StateHit, state)
}

func TestFetchObjType_NeverPopulates(t *testing.T) {
	p, backend := newCachingStore(t)
	ctx := context.Background()
	obj := tagObj("type-only")

	_, err := backend.StoreObj(ctx, obj)
	require.NoError(t, err)

	typ, err := p.FetchObjType(ctx, obj.ID())
	require.NoError(t, err)
	assert.Equal(t, storage.ObjTypeTag, typ)
	assert.Equal(t, 1, backend.count("FetchObjType"))

	// The type-only lookup must not have faulted the object in.
	_, state := p.Cache().Get(obj.ID())
	assert.Equal(t, objcache.StateMiss, state)

	_, err = p.FetchObj(ctx, obj.ID())
	require.NoError(t, err)
	assert.Equal(t, 1, backend.count("FetchObj"), "full fetch still goes to the backend")

	// A cached full object answers type lookups for free afterwards.
	typ, err = p.FetchObjType(ctx, obj.ID())
	require.NoError(t, err)
	assert.Equal(t, storage.ObjTypeTag, typ)
	assert.Equal(t, 1, backend.count("FetchObjType"))
}

func TestFetchObjs_SlotPreservation(t *testing.T) {
	p, backend := newCachingStore(t)
	ctx := context.Background()

	a := tagObj("a")
	b := tagObj("b")

	_, err := p.StoreObj(ctx, a) // cached
	require.NoError(t, err)
	_, err = backend.StoreObj(ctx, b) // backend only
	require.NoError(t, err)

	ids := []storage.ObjId{a.ID(), {}, b.ID()}
	result, err := p.FetchObjs(ctx, ids)
	require.NoError(t, err)

	require.Len(t, result, 3)
	assert.Equal(t, a, result[0])
	assert.Nil(t, result[1])
	assert.Equal(t, b, result[2])

	// Exactly one backend call, requesting only the unresolved slot.
	assert.Equal(t, 1, backend.count("FetchObjs"))
	require.Len(t, backend.lastBatchIds, 3)
	assert.True(t, backend.lastBatchIds[0].IsZero())
	assert.True(t, backend.lastBatchIds[1].IsZero())
	assert.Equal(t, b.ID(), backend.lastBatchIds[2])

	// B is cached now; an all-cached batch needs no backend call.
	result, err = p.FetchObjs(ctx, ids)
	require.NoError(t, err)
	assert.Equal(t, b, result[2])
	assert.Equal(t, 1, backend.count("FetchObjs"))
}

func TestFetchObjs_AbsentSlotsStayNil(t *testing.T) {
	p, backend := newCachingStore(t)
	ctx := context.Background()

	missing := storage.IdOf([]byte("nope"))
	result, err := p.FetchObjs(ctx, []storage.ObjId{missing})
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Nil(t, result[0])
	assert.Equal(t, 1, backend.count("FetchObjs"))

	// Batch absence records no negative marker; the next batch asks again.
	_, err = p.FetchObjs(ctx, []storage.ObjId{missing})
	require.NoError(t, err)
	assert.Equal(t, 2, backend.count("FetchObjs"))
}

func TestStoreObj_OnlyCachesWhenStored(t *testing.T) {
	p, backend := newCachingStore(t)
	ctx := context.Background()
	obj := tagObj("dup")

	_, err := backend.StoreObj(ctx, obj)
	require.NoError(t, err)

	stored, err := p.StoreObj(ctx, obj)
	require.NoError(t, err)
	assert.False(t, stored)

	_, state := p.Cache().Get(obj.ID())
	assert.Equal(t, objcache.StateMiss, state, "unconfirmed store must not populate the cache")
}

func TestStoreObjs_ConfirmedSlotsOnly(t *testing.T) {
	p, backend := newCachingStore(t)
	ctx := context.Background()

	existing := tagObj("existing")
	fresh := tagObj("fresh")
	_, err := backend.StoreObj(ctx, existing)
	require.NoError(t, err)

	stored, err := p.StoreObjs(ctx, []storage.Obj{existing, fresh})
	require.NoError(t, err)
	require.Equal(t, []bool{false, true}, stored)

	_, state := p.Cache().Get(existing.ID())
	assert.Equal(t, objcache.StateMiss, state)
	_, state = p.Cache().Get(fresh.ID())
	assert.Equal(t, objcache.StateHit, state)
}

func TestUpdateObj_FailureStillEvicts(t *testing.T) {
	p, backend := newCachingStore(t)
	ctx := context.Background()
	obj := tagObj("ambiguous")

	_, err := p.StoreObj(ctx, obj)
	require.NoError(t, err)

	backend.failUpdate = true
	updated := obj
	updated.Message = "never lands"
	err = p.UpdateObj(ctx, updated)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrStorageUnavailable))

	_, state := p.Cache().Get(obj.ID())
	assert.Equal(t, objcache.StateMiss, state, "failed update must still drop the entry")
}

func TestDeleteObjs_Evicts(t *testing.T) {
	p, _ := newCachingStore(t)
	ctx := context.Background()

	a, b := tagObj("a"), tagObj("b")
	_, err := p.StoreObj(ctx, a)
	require.NoError(t, err)
	_, err = p.StoreObj(ctx, b)
	require.NoError(t, err)

	require.NoError(t, p.DeleteObjs(ctx, []storage.ObjId{a.ID(), b.ID()}))

	for _, id := range []storage.ObjId{a.ID(), b.ID()} {
		_, err := p.FetchObj(ctx, id)
		assert.True(t, errors.IsObjNotFound(err))
	}
}

func TestErase_ClearsCacheOnFailure(t *testing.T) {
	p, backend := newCachingStore(t)
	ctx := context.Background()
	obj := tagObj("doomed")

	_, err := p.StoreObj(ctx, obj)
	require.NoError(t, err)

	backend.failErase = true
	err = p.Erase(ctx)
	require.Error(t, err)

	_, state := p.Cache().Get(obj.ID())
	assert.Equal(t, objcache.StateMiss, state, "failed erase must still clear the cache")
}

func TestReferenceOps_PassThrough(t *testing.T) {
	p, backend := newCachingStore(t)
	ctx := context.Background()

	pointer := storage.IdOf([]byte("c1"))
	ref, err := p.AddReference(ctx, storage.NewReference("refs/heads/main", pointer))
	require.NoError(t, err)
	assert.Equal(t, 1, backend.count("AddReference"))

	moved, err := p.UpdateReferencePointer(ctx, ref, storage.IdOf([]byte("c2")))
	require.NoError(t, err)

	got, err := p.FetchReference(ctx, "refs/heads/main")
	require.NoError(t, err)
	assert.Equal(t, moved, got)

	refs, err := p.FetchReferences(ctx, []string{"refs/heads/main", "refs/heads/absent"})
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, moved, *refs[0])
	assert.Nil(t, refs[1])

	marked, err := p.MarkReferenceAsDeleted(ctx, moved)
	require.NoError(t, err)
	require.NoError(t, p.PurgeReference(ctx, marked))
	assert.Equal(t, 1, backend.count("PurgeReference"))
}

func TestWrapWithConfig(t *testing.T) {
	backend := newFakeStore()

	// Disabled caching hands back the backing store untouched.
	p, err := WrapWithConfig(backend, objcache.Config{Enabled: false})
	require.NoError(t, err)
	assert.Same(t, storage.Persist(backend), p)

	p, err = WrapWithConfig(backend, objcache.DefaultConfig())
	require.NoError(t, err)
	_, ok := p.(*CachingPersist)
	assert.True(t, ok)
	assert.Equal(t, "fake", p.Name())

	_, err = WrapWithConfig(backend, objcache.Config{Enabled: true, MaxSize: -1})
	require.Error(t, err)
}

func TestConcurrentAccess(t *testing.T) {
	p, _ := newCachingStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				obj := tagObj(fmt.Sprintf("g%d-i%d", g, i%20))
				switch i % 3 {
				case 0:
					_, _ = p.StoreObj(ctx, obj)
				case 1:
					_, _ = p.FetchObj(ctx, obj.ID())
				default:
					_ = p.DeleteObj(ctx, obj.ID())
				}
			}
		}(g)
	}
	wg.Wait()
}

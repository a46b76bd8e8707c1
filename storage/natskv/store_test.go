package natskv

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wuchunfu/nessie/errors"
	"github.com/wuchunfu/nessie/storage"
	"github.com/wuchunfu/nessie/testutil"
)

func TestConfigValidation(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "nessie-objects-main", cfg.objectsBucket())
	assert.Equal(t, "nessie-references-main", cfg.referencesBucket())

	cfg.ObjectsBucket = "custom-objects"
	assert.Equal(t, "custom-objects", cfg.objectsBucket())

	cfg.Replicas = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Store.RepositoryID = ""
	assert.Error(t, cfg.Validate())
}

func newTestStore(t *testing.T) *Store {
	t.Helper()

	client := testutil.StartNATS(t)

	cfg := DefaultConfig()
	cfg.Store.RepositoryID = "test"
	cfg.OperationTimeout = 10 * time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	store, err := New(ctx, client, cfg)
	require.NoError(t, err)
	return store
}

func TestObjectLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	commit := testutil.CommitObj("initial commit")

	// Absent before store
	_, err := store.FetchObj(ctx, commit.ID())
	assert.True(t, errors.IsObjNotFound(err))

	stored, err := store.StoreObj(ctx, commit)
	require.NoError(t, err)
	assert.True(t, stored)

	// Second store of the same id is a no-op
	stored, err = store.StoreObj(ctx, commit)
	require.NoError(t, err)
	assert.False(t, stored)

	got, err := store.FetchObj(ctx, commit.ID())
	require.NoError(t, err)
	assert.Equal(t, commit.ID(), got.ID())
	assert.Equal(t, storage.ObjTypeCommit, got.Type())

	typ, err := store.FetchObjType(ctx, commit.ID())
	require.NoError(t, err)
	assert.Equal(t, storage.ObjTypeCommit, typ)

	// Typed fetch with the wrong type looks like absence
	_, err = store.FetchTypedObj(ctx, commit.ID(), storage.ObjTypeTag)
	assert.True(t, errors.IsObjNotFound(err))

	// Update is an upsert
	updated := commit
	updated.Message = "amended commit"
	require.NoError(t, store.UpdateObj(ctx, updated))
	got, err = store.FetchObj(ctx, commit.ID())
	require.NoError(t, err)
	assert.Equal(t, "amended commit", got.(storage.CommitObj).Message)

	// Delete is idempotent
	require.NoError(t, store.DeleteObj(ctx, commit.ID()))
	require.NoError(t, store.DeleteObj(ctx, commit.ID()))
	_, err = store.FetchObj(ctx, commit.ID())
	assert.True(t, errors.IsObjNotFound(err))
}

func TestBatchOperations(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := testutil.CommitObj("batch a")
	b := testutil.TagObj("batch b")

	stored, err := store.StoreObjs(ctx, []storage.Obj{a, b, a, nil})
	require.NoError(t, err)
	assert.Equal(t, []bool{true, true, false, false}, stored)

	absent := testutil.RandomObjId()
	got, err := store.FetchObjs(ctx, []storage.ObjId{a.ID(), {}, b.ID(), absent})
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, a.ID(), got[0].ID())
	assert.Nil(t, got[1])
	assert.Equal(t, b.ID(), got[2].ID())
	assert.Nil(t, got[3])

	require.NoError(t, store.DeleteObjs(ctx, []storage.ObjId{a.ID(), b.ID()}))
	got, err = store.FetchObjs(ctx, []storage.ObjId{a.ID(), b.ID()})
	require.NoError(t, err)
	assert.Nil(t, got[0])
	assert.Nil(t, got[1])
}

func TestObjectSizeLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	huge := testutil.ContentValueObj(0, []byte(strings.Repeat("x", store.HardObjectSizeLimit())))
	_, err := store.StoreObj(ctx, huge)
	assert.True(t, errors.IsObjTooLarge(err))
}

func TestReferenceCAS(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	pointer := testutil.RandomObjId()
	ref := testutil.Reference(pointer)

	created, err := store.AddReference(ctx, ref)
	require.NoError(t, err)
	assert.False(t, created.Deleted)

	// Duplicate add fails
	_, err = store.AddReference(ctx, ref)
	assert.ErrorIs(t, err, errors.ErrRefAlreadyExists)

	fetched, err := store.FetchReference(ctx, ref.Name)
	require.NoError(t, err)
	assert.Equal(t, pointer, fetched.Pointer)

	// Pointer move requires the observed pointer
	stale := created.WithPointer(testutil.RandomObjId())
	_, err = store.UpdateReferencePointer(ctx, stale, testutil.RandomObjId())
	assert.ErrorIs(t, err, errors.ErrRefConditionFailed)

	newPointer := testutil.RandomObjId()
	moved, err := store.UpdateReferencePointer(ctx, created, newPointer)
	require.NoError(t, err)
	assert.Equal(t, newPointer, moved.Pointer)

	// Purge requires the soft-delete marker first
	err = store.PurgeReference(ctx, moved)
	assert.ErrorIs(t, err, errors.ErrRefConditionFailed)

	deleted, err := store.MarkReferenceAsDeleted(ctx, moved)
	require.NoError(t, err)
	assert.True(t, deleted.Deleted)

	// Soft-deleted references are invisible to fetch
	_, err = store.FetchReference(ctx, ref.Name)
	assert.ErrorIs(t, err, errors.ErrRefNotFound)

	// A soft-deleted record still blocks creation
	_, err = store.AddReference(ctx, ref)
	assert.ErrorIs(t, err, errors.ErrRefAlreadyExists)

	require.NoError(t, store.PurgeReference(ctx, deleted))
	_, err = store.FetchReference(ctx, ref.Name)
	assert.ErrorIs(t, err, errors.ErrRefNotFound)

	// After the purge the name is free again
	_, err = store.AddReference(ctx, ref)
	require.NoError(t, err)
}

func TestFetchReferences(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	live := testutil.Reference(testutil.RandomObjId())
	_, err := store.AddReference(ctx, live)
	require.NoError(t, err)

	gone := testutil.Reference(testutil.RandomObjId())
	created, err := store.AddReference(ctx, gone)
	require.NoError(t, err)
	_, err = store.MarkReferenceAsDeleted(ctx, created)
	require.NoError(t, err)

	refs, err := store.FetchReferences(ctx, []string{live.Name, "refs/heads/missing", gone.Name})
	require.NoError(t, err)
	require.Len(t, refs, 3)
	require.NotNil(t, refs[0])
	assert.Equal(t, live.Name, refs[0].Name)
	assert.Nil(t, refs[1])
	assert.Nil(t, refs[2])
}

func TestScanAllObjects(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	commits := []storage.Obj{
		testutil.CommitObj("scan one"),
		testutil.CommitObj("scan two"),
	}
	tag := testutil.TagObj("scan tag")

	_, err := store.StoreObjs(ctx, append(commits, tag))
	require.NoError(t, err)

	it, err := store.ScanAllObjects(ctx, []storage.ObjType{storage.ObjTypeCommit})
	require.NoError(t, err)
	defer it.Close()

	seen := map[storage.ObjId]bool{}
	for it.Next() {
		obj := it.Obj()
		assert.Equal(t, storage.ObjTypeCommit, obj.Type())
		seen[obj.ID()] = true
	}
	require.NoError(t, it.Err())
	assert.Len(t, seen, 2)
	assert.True(t, seen[commits[0].ID()])
	assert.True(t, seen[commits[1].ID()])
	assert.False(t, seen[tag.ID()])
}

func TestErase(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	commit := testutil.CommitObj("erase me")
	_, err := store.StoreObj(ctx, commit)
	require.NoError(t, err)
	ref := testutil.Reference(commit.ID())
	_, err = store.AddReference(ctx, ref)
	require.NoError(t, err)

	require.NoError(t, store.Erase(ctx))

	_, err = store.FetchObj(ctx, commit.ID())
	assert.True(t, errors.IsObjNotFound(err))
	_, err = store.FetchReference(ctx, ref.Name)
	assert.ErrorIs(t, err, errors.ErrRefNotFound)

	// The erased name can be reused
	_, err = store.AddReference(ctx, ref)
	require.NoError(t, err)
}

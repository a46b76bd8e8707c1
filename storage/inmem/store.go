package inmem

import (
	"context"
	"fmt"
	"sync"

	"github.com/wuchunfu/nessie/errors"
	"github.com/wuchunfu/nessie/storage"
)

// Store is the in-memory Persist implementation. It keeps objects in
// their serialized envelope form, so the wire codec is exercised exactly
// like a byte-oriented backend would. Safe for concurrent use.
type Store struct {
	cfg storage.StoreConfig

	mu   sync.RWMutex
	objs map[storage.ObjId][]byte
	refs map[string]storage.Reference
}

var _ storage.Persist = (*Store)(nil)

// New creates an empty in-memory store.
func New(cfg storage.StoreConfig) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.WrapInvalid(err, "inmem", "New", "config validation failed")
	}
	return &Store{
		cfg:  cfg,
		objs: make(map[storage.ObjId][]byte),
		refs: make(map[string]storage.Reference),
	}, nil
}

// NewDefault creates an in-memory store with default configuration.
func NewDefault() *Store {
	s, _ := New(storage.DefaultStoreConfig())
	return s
}

// Name returns "inmem".
func (s *Store) Name() string { return "inmem" }

// Config returns the store configuration.
func (s *Store) Config() storage.StoreConfig { return s.cfg }

// HardObjectSizeLimit returns the configured size limit.
func (s *Store) HardObjectSizeLimit() int { return s.cfg.EffectiveSizeLimit() }

// FetchObj retrieves and decodes the object with the given id.
func (s *Store) FetchObj(_ context.Context, id storage.ObjId) (storage.Obj, error) {
	s.mu.RLock()
	data, ok := s.objs[id]
	s.mu.RUnlock()

	if !ok {
		return nil, notFound(id)
	}
	return storage.UnmarshalObj(data)
}

// FetchTypedObj retrieves the object and verifies its type. A mismatch
// is signaled exactly like absence.
func (s *Store) FetchTypedObj(ctx context.Context, id storage.ObjId, typ storage.ObjType) (storage.Obj, error) {
	obj, err := s.FetchObj(ctx, id)
	if err != nil {
		return nil, err
	}
	if obj.Type() != typ {
		return nil, notFound(id)
	}
	return obj, nil
}

// FetchObjType decodes only the envelope's type tag.
func (s *Store) FetchObjType(_ context.Context, id storage.ObjId) (storage.ObjType, error) {
	s.mu.RLock()
	data, ok := s.objs[id]
	s.mu.RUnlock()

	if !ok {
		return "", notFound(id)
	}
	return storage.UnmarshalObjType(data)
}

// FetchObjs retrieves many objects; zero ids and absent ids stay nil.
func (s *Store) FetchObjs(_ context.Context, ids []storage.ObjId) ([]storage.Obj, error) {
	s.mu.RLock()
	raw := make([][]byte, len(ids))
	for i, id := range ids {
		if id.IsZero() {
			continue
		}
		raw[i] = s.objs[id]
	}
	s.mu.RUnlock()

	result := make([]storage.Obj, len(ids))
	for i, data := range raw {
		if data == nil {
			continue
		}
		obj, err := storage.UnmarshalObj(data)
		if err != nil {
			return nil, err
		}
		result[i] = obj
	}
	return result, nil
}

// StoreObj persists the object unless an object with its id exists.
func (s *Store) StoreObj(_ context.Context, obj storage.Obj) (bool, error) {
	data, err := s.encode(obj)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.objs[obj.ID()]; exists {
		return false, nil
	}
	s.objs[obj.ID()] = data
	return true, nil
}

// StoreObjs persists many objects, reporting per-slot newly-stored
// flags. Nil slots are skipped.
func (s *Store) StoreObjs(ctx context.Context, objs []storage.Obj) ([]bool, error) {
	stored := make([]bool, len(objs))
	for i, obj := range objs {
		if obj == nil {
			continue
		}
		ok, err := s.StoreObj(ctx, obj)
		if err != nil {
			return nil, err
		}
		stored[i] = ok
	}
	return stored, nil
}

// UpdateObj replaces the stored value at obj's id, creating it when
// absent.
func (s *Store) UpdateObj(_ context.Context, obj storage.Obj) error {
	data, err := s.encode(obj)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.objs[obj.ID()] = data
	s.mu.Unlock()
	return nil
}

// UpdateObjs replaces many stored values.
func (s *Store) UpdateObjs(ctx context.Context, objs []storage.Obj) error {
	for _, obj := range objs {
		if obj == nil {
			continue
		}
		if err := s.UpdateObj(ctx, obj); err != nil {
			return err
		}
	}
	return nil
}

// DeleteObj removes the object; deleting an absent id is not an error.
func (s *Store) DeleteObj(_ context.Context, id storage.ObjId) error {
	s.mu.Lock()
	delete(s.objs, id)
	s.mu.Unlock()
	return nil
}

// DeleteObjs removes many objects.
func (s *Store) DeleteObjs(_ context.Context, ids []storage.ObjId) error {
	s.mu.Lock()
	for _, id := range ids {
		delete(s.objs, id)
	}
	s.mu.Unlock()
	return nil
}

// Erase removes every object and reference.
func (s *Store) Erase(_ context.Context) error {
	s.mu.Lock()
	s.objs = make(map[storage.ObjId][]byte)
	s.refs = make(map[string]storage.Reference)
	s.mu.Unlock()
	return nil
}

// ScanAllObjects iterates a point-in-time snapshot of all objects whose
// type is in types; an empty slice scans everything.
func (s *Store) ScanAllObjects(_ context.Context, types []storage.ObjType) (storage.ObjIterator, error) {
	wanted := make(map[storage.ObjType]bool, len(types))
	for _, t := range types {
		wanted[t] = true
	}

	s.mu.RLock()
	snapshot := make([][]byte, 0, len(s.objs))
	for _, data := range s.objs {
		snapshot = append(snapshot, data)
	}
	s.mu.RUnlock()

	return &scanIterator{snapshot: snapshot, wanted: wanted}, nil
}

// AddReference creates a reference, failing when any record with the
// same name already exists.
func (s *Store) AddReference(_ context.Context, ref storage.Reference) (storage.Reference, error) {
	if ref.Name == "" {
		return storage.Reference{}, errors.WrapInvalid(errors.ErrInvalidData,
			"inmem", "AddReference", "reference name must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.refs[ref.Name]; exists {
		return storage.Reference{}, refExists(ref.Name)
	}
	created := ref.WithDeleted(false)
	s.refs[ref.Name] = created
	return created, nil
}

// MarkReferenceAsDeleted sets the soft-delete marker; the supplied ref
// must match the currently stored state.
func (s *Store) MarkReferenceAsDeleted(_ context.Context, ref storage.Reference) (storage.Reference, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.refs[ref.Name]
	if !exists {
		return storage.Reference{}, refNotFound(ref.Name)
	}
	if current.Deleted || current.Pointer != ref.Pointer {
		return storage.Reference{}, refConditionFailed(ref.Name)
	}

	deleted := current.WithDeleted(true)
	s.refs[ref.Name] = deleted
	return deleted, nil
}

// PurgeReference removes a soft-deleted reference; the supplied ref must
// match the currently stored state.
func (s *Store) PurgeReference(_ context.Context, ref storage.Reference) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.refs[ref.Name]
	if !exists {
		return refNotFound(ref.Name)
	}
	if !current.Deleted || current.Pointer != ref.Pointer {
		return refConditionFailed(ref.Name)
	}

	delete(s.refs, ref.Name)
	return nil
}

// UpdateReferencePointer moves a live reference; the supplied ref must
// match the currently stored state.
func (s *Store) UpdateReferencePointer(
	_ context.Context, ref storage.Reference, newPointer storage.ObjId) (storage.Reference, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.refs[ref.Name]
	if !exists {
		return storage.Reference{}, refNotFound(ref.Name)
	}
	if current.Deleted || current.Pointer != ref.Pointer {
		return storage.Reference{}, refConditionFailed(ref.Name)
	}

	moved := current.WithPointer(newPointer)
	s.refs[ref.Name] = moved
	return moved, nil
}

// FetchReference retrieves a live reference by name.
func (s *Store) FetchReference(_ context.Context, name string) (storage.Reference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ref, exists := s.refs[name]
	if !exists || ref.Deleted {
		return storage.Reference{}, refNotFound(name)
	}
	return ref, nil
}

// FetchReferences retrieves many references; absent or soft-deleted
// names yield nil slots.
func (s *Store) FetchReferences(_ context.Context, names []string) ([]*storage.Reference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*storage.Reference, len(names))
	for i, name := range names {
		if ref, exists := s.refs[name]; exists && !ref.Deleted {
			r := ref
			result[i] = &r
		}
	}
	return result, nil
}

func (s *Store) encode(obj storage.Obj) ([]byte, error) {
	if obj == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidData, "inmem", "encode", "nil object")
	}
	data, err := storage.MarshalObj(obj)
	if err != nil {
		return nil, err
	}
	if len(data) > s.HardObjectSizeLimit() {
		return nil, fmt.Errorf("%w: object %s is %d bytes, limit %d",
			errors.ErrObjTooLarge, obj.ID(), len(data), s.HardObjectSizeLimit())
	}
	return data, nil
}

// scanIterator walks a snapshot taken at scan time, decoding lazily.
type scanIterator struct {
	snapshot [][]byte
	wanted   map[storage.ObjType]bool
	pos      int
	current  storage.Obj
	err      error
	closed   bool
}

func (it *scanIterator) Next() bool {
	if it.closed || it.err != nil {
		return false
	}
	for it.pos < len(it.snapshot) {
		data := it.snapshot[it.pos]
		it.pos++

		obj, err := storage.UnmarshalObj(data)
		if err != nil {
			it.err = err
			return false
		}
		if len(it.wanted) > 0 && !it.wanted[obj.Type()] {
			continue
		}
		it.current = obj
		return true
	}
	return false
}

func (it *scanIterator) Obj() storage.Obj { return it.current }
func (it *scanIterator) Err() error       { return it.err }

func (it *scanIterator) Close() error {
	it.closed = true
	it.snapshot = nil
	return nil
}

func notFound(id storage.ObjId) error {
	return fmt.Errorf("%w: object %s", errors.ErrObjNotFound, id)
}

func refExists(name string) error {
	return fmt.Errorf("%w: reference %q", errors.ErrRefAlreadyExists, name)
}

func refNotFound(name string) error {
	return fmt.Errorf("%w: reference %q", errors.ErrRefNotFound, name)
}

func refConditionFailed(name string) error {
	return fmt.Errorf("%w: reference %q", errors.ErrRefConditionFailed, name)
}

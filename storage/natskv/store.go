package natskv

import (
	"context"
	"encoding/base64"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/wuchunfu/nessie/errors"
	"github.com/wuchunfu/nessie/metric"
	"github.com/wuchunfu/nessie/natsclient"
	"github.com/wuchunfu/nessie/storage"
)

// Store is the NATS JetStream Persist implementation. Objects live in
// one KV bucket keyed by their id, references in a second bucket keyed
// by their encoded name. Reference mutations use KV revisions for
// compare-and-set. Safe for concurrent use.
type Store struct {
	cfg     Config
	client  *natsclient.Client
	objs    *natsclient.KVStore
	refs    *natsclient.KVStore
	logger  *slog.Logger
	metrics *metric.Metrics
}

var _ storage.Persist = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithMetrics wires operation counters and durations into the given
// registry's core metrics.
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(s *Store) { s.metrics = registry.CoreMetrics() }
}

// New creates a Store over the given connected client, creating or
// binding both KV buckets.
func New(ctx context.Context, client *natsclient.Client, cfg Config, opts ...Option) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.WrapInvalid(err, "natskv", "New", "config validation")
	}
	if client == nil {
		return nil, errors.WrapInvalid(errors.ErrNoConnection, "natskv", "New", "client required")
	}

	s := &Store{
		cfg:    cfg,
		client: client,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	objsBucket, err := client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
		Bucket:       cfg.objectsBucket(),
		Description:  "serialized catalog objects",
		MaxValueSize: int32(cfg.Store.EffectiveSizeLimit()),
		Replicas:     cfg.Replicas,
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "natskv", "New", "objects bucket setup")
	}
	refsBucket, err := client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
		Bucket:      cfg.referencesBucket(),
		Description: "catalog reference records",
		Replicas:    cfg.Replicas,
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "natskv", "New", "references bucket setup")
	}

	timeout := func(o *natsclient.KVOptions) {
		o.Timeout = cfg.OperationTimeout
		o.MaxValueSize = cfg.Store.EffectiveSizeLimit()
	}
	s.objs = client.NewKVStore(objsBucket, timeout)
	s.refs = client.NewKVStore(refsBucket, timeout)

	s.logger.Info("natskv store ready",
		"repository", cfg.Store.RepositoryID,
		"objects_bucket", cfg.objectsBucket(),
		"references_bucket", cfg.referencesBucket())
	return s, nil
}

// Name returns "natskv".
func (s *Store) Name() string { return "natskv" }

// Config returns the backend-independent store configuration.
func (s *Store) Config() storage.StoreConfig { return s.cfg.Store }

// HardObjectSizeLimit returns the configured size limit.
func (s *Store) HardObjectSizeLimit() int { return s.cfg.Store.EffectiveSizeLimit() }

// FetchObj retrieves and decodes the object with the given id.
func (s *Store) FetchObj(ctx context.Context, id storage.ObjId) (storage.Obj, error) {
	defer s.observe("fetch_obj", time.Now())

	entry, err := s.objs.Get(ctx, id.String())
	if err != nil {
		if stderrors.Is(err, natsclient.ErrKVKeyNotFound) {
			return nil, notFound(id)
		}
		return nil, errors.WrapTransient(err, "natskv", "FetchObj", "kv get")
	}
	return storage.UnmarshalObj(entry.Value)
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
func (s *Store) FetchObjType(ctx context.Context, id storage.ObjId) (storage.ObjType, error) {
	defer s.observe("fetch_obj_type", time.Now())

	entry, err := s.objs.Get(ctx, id.String())
	if err != nil {
		if stderrors.Is(err, natsclient.ErrKVKeyNotFound) {
			return "", notFound(id)
		}
		return "", errors.WrapTransient(err, "natskv", "FetchObjType", "kv get")
	}
	return storage.UnmarshalObjType(entry.Value)
}

// FetchObjs retrieves many objects; zero ids and absent ids stay nil.
func (s *Store) FetchObjs(ctx context.Context, ids []storage.ObjId) ([]storage.Obj, error) {
	defer s.observe("fetch_objs", time.Now())

	result := make([]storage.Obj, len(ids))
	for i, id := range ids {
		if id.IsZero() {
			continue
		}
		obj, err := s.FetchObj(ctx, id)
		if err != nil {
			if errors.IsObjNotFound(err) {
				continue
			}
			return nil, err
		}
		result[i] = obj
	}
	return result, nil
}

// StoreObj persists the object unless an object with its id exists.
func (s *Store) StoreObj(ctx context.Context, obj storage.Obj) (bool, error) {
	defer s.observe("store_obj", time.Now())

	data, err := s.encode(obj)
	if err != nil {
		return false, err
	}

	_, err = s.objs.Create(ctx, obj.ID().String(), data)
	if err != nil {
		if stderrors.Is(err, natsclient.ErrKVKeyExists) {
			return false, nil
		}
		return false, errors.WrapTransient(err, "natskv", "StoreObj", "kv create")
	}
	if s.metrics != nil {
		s.metrics.RecordObjectBytes(s.Name(), string(obj.Type()), len(data))
	}
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
func (s *Store) UpdateObj(ctx context.Context, obj storage.Obj) error {
	defer s.observe("update_obj", time.Now())

	data, err := s.encode(obj)
	if err != nil {
		return err
	}
	if _, err := s.objs.Put(ctx, obj.ID().String(), data); err != nil {
		return errors.WrapTransient(err, "natskv", "UpdateObj", "kv put")
	}
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
func (s *Store) DeleteObj(ctx context.Context, id storage.ObjId) error {
	defer s.observe("delete_obj", time.Now())

	if err := s.objs.Purge(ctx, id.String()); err != nil {
		if natsclient.IsKVNotFoundError(err) {
			return nil
		}
		return errors.WrapTransient(err, "natskv", "DeleteObj", "kv purge")
	}
	return nil
}

// DeleteObjs removes many objects.
func (s *Store) DeleteObjs(ctx context.Context, ids []storage.ObjId) error {
	for _, id := range ids {
		if err := s.DeleteObj(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// Erase removes every object and reference in the repository.
func (s *Store) Erase(ctx context.Context) error {
	defer s.observe("erase", time.Now())

	for _, kv := range []*natsclient.KVStore{s.objs, s.refs} {
		keys, err := kv.Keys(ctx)
		if err != nil {
			return errors.WrapTransient(err, "natskv", "Erase", "list keys")
		}
		for _, key := range keys {
			if err := kv.Purge(ctx, key); err != nil {
				return errors.WrapTransient(err, "natskv", "Erase", "purge key")
			}
		}
	}
	return nil
}

// ScanAllObjects iterates all objects whose type is in types; an empty
// slice scans everything. Keys are snapshotted at call time, values are
// fetched lazily during iteration.
func (s *Store) ScanAllObjects(ctx context.Context, types []storage.ObjType) (storage.ObjIterator, error) {
	keys, err := s.objs.Keys(ctx)
	if err != nil {
		return nil, errors.WrapTransient(err, "natskv", "ScanAllObjects", "list keys")
	}

	wanted := make(map[storage.ObjType]bool, len(types))
	for _, t := range types {
		wanted[t] = true
	}
	return &scanIterator{ctx: ctx, objs: s.objs, keys: keys, wanted: wanted}, nil
}

// AddReference creates a reference, failing when any record with the
// same name already exists, soft-deleted records included.
func (s *Store) AddReference(ctx context.Context, ref storage.Reference) (storage.Reference, error) {
	defer s.observe("add_reference", time.Now())

	if ref.Name == "" {
		return storage.Reference{}, errors.WrapInvalid(errors.ErrInvalidData,
			"natskv", "AddReference", "reference name must not be empty")
	}

	created := ref.WithDeleted(false)
	data, err := json.Marshal(created)
	if err != nil {
		return storage.Reference{}, errors.WrapInvalid(err, "natskv", "AddReference", "encode reference")
	}

	if _, err := s.refs.Create(ctx, refKey(ref.Name), data); err != nil {
		if stderrors.Is(err, natsclient.ErrKVKeyExists) {
			return storage.Reference{}, refExists(ref.Name)
		}
		return storage.Reference{}, errors.WrapTransient(err, "natskv", "AddReference", "kv create")
	}
	s.recordRefOp("add")
	return created, nil
}

// MarkReferenceAsDeleted sets the soft-delete marker; the supplied ref
// must match the currently stored state.
func (s *Store) MarkReferenceAsDeleted(ctx context.Context, ref storage.Reference) (storage.Reference, error) {
	defer s.observe("mark_reference_deleted", time.Now())

	current, revision, err := s.loadRef(ctx, ref.Name)
	if err != nil {
		return storage.Reference{}, err
	}
	if current.Deleted || current.Pointer != ref.Pointer {
		return storage.Reference{}, refConditionFailed(ref.Name)
	}

	deleted := current.WithDeleted(true)
	if err := s.casPutRef(ctx, deleted, revision); err != nil {
		return storage.Reference{}, err
	}
	s.recordRefOp("mark_deleted")
	return deleted, nil
}

// PurgeReference removes a soft-deleted reference; the supplied ref must
// match the currently stored state.
func (s *Store) PurgeReference(ctx context.Context, ref storage.Reference) error {
	defer s.observe("purge_reference", time.Now())

	current, revision, err := s.loadRef(ctx, ref.Name)
	if err != nil {
		return err
	}
	if !current.Deleted || current.Pointer != ref.Pointer {
		return refConditionFailed(ref.Name)
	}

	if err := s.refs.DeleteRevision(ctx, refKey(ref.Name), revision); err != nil {
		if natsclient.IsKVConflictError(err) {
			return refConditionFailed(ref.Name)
		}
		if stderrors.Is(err, natsclient.ErrKVKeyNotFound) {
			return refNotFound(ref.Name)
		}
		return errors.WrapTransient(err, "natskv", "PurgeReference", "kv delete")
	}
	s.recordRefOp("purge")
	return nil
}

// UpdateReferencePointer moves a live reference; the supplied ref must
// match the currently stored state.
func (s *Store) UpdateReferencePointer(
	ctx context.Context, ref storage.Reference, newPointer storage.ObjId) (storage.Reference, error) {
	defer s.observe("update_reference_pointer", time.Now())

	current, revision, err := s.loadRef(ctx, ref.Name)
	if err != nil {
		return storage.Reference{}, err
	}
	if current.Deleted || current.Pointer != ref.Pointer {
		return storage.Reference{}, refConditionFailed(ref.Name)
	}

	moved := current.WithPointer(newPointer)
	if err := s.casPutRef(ctx, moved, revision); err != nil {
		return storage.Reference{}, err
	}
	s.recordRefOp("update_pointer")
	return moved, nil
}

// FetchReference retrieves a live reference by name.
func (s *Store) FetchReference(ctx context.Context, name string) (storage.Reference, error) {
	defer s.observe("fetch_reference", time.Now())

	ref, _, err := s.loadRef(ctx, name)
	if err != nil {
		return storage.Reference{}, err
	}
	if ref.Deleted {
		return storage.Reference{}, refNotFound(name)
	}
	return ref, nil
}

// FetchReferences retrieves many references; absent or soft-deleted
// names yield nil slots.
func (s *Store) FetchReferences(ctx context.Context, names []string) ([]*storage.Reference, error) {
	defer s.observe("fetch_references", time.Now())

	result := make([]*storage.Reference, len(names))
	for i, name := range names {
		ref, _, err := s.loadRef(ctx, name)
		if err != nil {
			if stderrors.Is(err, errors.ErrRefNotFound) {
				continue
			}
			return nil, err
		}
		if ref.Deleted {
			continue
		}
		r := ref
		result[i] = &r
	}
	return result, nil
}

// loadRef fetches the raw reference record and its KV revision.
func (s *Store) loadRef(ctx context.Context, name string) (storage.Reference, uint64, error) {
	entry, err := s.refs.Get(ctx, refKey(name))
	if err != nil {
		if stderrors.Is(err, natsclient.ErrKVKeyNotFound) {
			return storage.Reference{}, 0, refNotFound(name)
		}
		return storage.Reference{}, 0, errors.WrapTransient(err, "natskv", "loadRef", "kv get")
	}

	var ref storage.Reference
	if err := json.Unmarshal(entry.Value, &ref); err != nil {
		return storage.Reference{}, 0, errors.WrapInvalid(
			fmt.Errorf("%w: reference %q: %v", errors.ErrDataCorrupted, name, err),
			"natskv", "loadRef", "decode reference")
	}
	return ref, entry.Revision, nil
}

// casPutRef writes a reference record guarded by the revision its
// current state was read at.
func (s *Store) casPutRef(ctx context.Context, ref storage.Reference, revision uint64) error {
	data, err := json.Marshal(ref)
	if err != nil {
		return errors.WrapInvalid(err, "natskv", "casPutRef", "encode reference")
	}
	if _, err := s.refs.Update(ctx, refKey(ref.Name), data, revision); err != nil {
		if natsclient.IsKVConflictError(err) {
			return refConditionFailed(ref.Name)
		}
		return errors.WrapTransient(err, "natskv", "casPutRef", "kv update")
	}
	return nil
}

func (s *Store) encode(obj storage.Obj) ([]byte, error) {
	if obj == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidData, "natskv", "encode", "nil object")
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

func (s *Store) observe(op string, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordStorageOpDuration(s.Name(), op, time.Since(start))
}

func (s *Store) recordRefOp(op string) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordReferenceOp(s.Name(), op, "ok")
}

// refKey encodes a reference name into the KV key character set.
func refKey(name string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(name))
}

// scanIterator walks a key snapshot, fetching and decoding values
// lazily. Keys deleted after the snapshot are skipped.
type scanIterator struct {
	ctx     context.Context
	objs    *natsclient.KVStore
	keys    []string
	wanted  map[storage.ObjType]bool
	pos     int
	current storage.Obj
	err     error
	closed  bool
}

func (it *scanIterator) Next() bool {
	if it.closed || it.err != nil {
		return false
	}
	for it.pos < len(it.keys) {
		key := it.keys[it.pos]
		it.pos++

		entry, err := it.objs.Get(it.ctx, key)
		if err != nil {
			if stderrors.Is(err, natsclient.ErrKVKeyNotFound) {
				continue
			}
			it.err = errors.WrapTransient(err, "natskv", "scan", "kv get")
			return false
		}
		obj, err := storage.UnmarshalObj(entry.Value)
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
	it.keys = nil
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

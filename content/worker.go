package content

import (
	"encoding/json"
	"fmt"

	"github.com/wuchunfu/nessie/errors"
)

// GlobalStateSupplier lazily resolves the auxiliary global-state record
// for a content id. It is only invoked for legacy records that store
// their metadata location indirectly.
type GlobalStateSupplier func() ([]byte, error)

// envelope is the stored byte layout. Exactly one sub-record is
// populated; the populated slot is the sole type discriminant. The
// layout must keep decoding old records indefinitely, which is why the
// legacy metadata-pointer slot stays part of it.
type envelope struct {
	ID              string           `json:"id"`
	TableRefState   *tableRefState   `json:"table_ref_state,omitempty"`
	ViewState       *viewState       `json:"view_state,omitempty"`
	DeltaTable      *deltaTableState `json:"delta_table,omitempty"`
	Namespace       *namespaceState  `json:"namespace,omitempty"`
	MetadataPointer *metadataPointer `json:"metadata_pointer,omitempty"`
}

// tableRefState carries table metadata. MetadataLocation is a pointer:
// legacy records omitted the attribute entirely and resolved it through
// global state, so nil must stay distinguishable from empty.
type tableRefState struct {
	MetadataLocation *string `json:"metadata_location,omitempty"`
	SnapshotID       int64   `json:"snapshot_id"`
	SchemaID         int     `json:"schema_id"`
	SpecID           int     `json:"spec_id"`
	SortOrderID      int     `json:"sort_order_id"`
}

type viewState struct {
	MetadataLocation *string `json:"metadata_location,omitempty"`
	VersionID        int64   `json:"version_id"`
	SchemaID         int     `json:"schema_id"`
	Dialect          string  `json:"dialect"`
	SQLText          string  `json:"sql_text"`
}

type deltaTableState struct {
	MetadataLocationHistory   []string `json:"metadata_location_history,omitempty"`
	CheckpointLocationHistory []string `json:"checkpoint_location_history,omitempty"`
	LastCheckpoint            string   `json:"last_checkpoint,omitempty"`
}

type namespaceState struct {
	Elements   []string          `json:"elements,omitempty"`
	Properties map[string]string `json:"properties,omitempty"`
}

// metadataPointer is the legacy global-state record holding the
// metadata location for a table or view stored indirectly.
type metadataPointer struct {
	MetadataLocation string `json:"metadata_location"`
}

// EncodeRefState serializes a content value into its current-generation
// stored form with the metadata location embedded directly.
func EncodeRefState(c Content) ([]byte, error) {
	if c == nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: nil content", errors.ErrInvalidData),
			"content", "EncodeRefState", "validate content")
	}

	env := envelope{ID: c.ID()}
	switch v := c.(type) {
	case Table:
		loc := v.MetadataLocation
		env.TableRefState = &tableRefState{
			MetadataLocation: &loc,
			SnapshotID:       v.SnapshotID,
			SchemaID:         v.SchemaID,
			SpecID:           v.SpecID,
			SortOrderID:      v.SortOrderID,
		}
	case View:
		loc := v.MetadataLocation
		env.ViewState = &viewState{
			MetadataLocation: &loc,
			VersionID:        v.VersionID,
			SchemaID:         v.SchemaID,
			Dialect:          v.Dialect,
			SQLText:          v.SQLText,
		}
	case DeltaTable:
		env.DeltaTable = &deltaTableState{
			MetadataLocationHistory:   v.MetadataLocationHistory,
			CheckpointLocationHistory: v.CheckpointLocationHistory,
			LastCheckpoint:            v.LastCheckpoint,
		}
	case Namespace:
		env.Namespace = &namespaceState{
			Elements:   v.Elements,
			Properties: v.Properties,
		}
	default:
		return nil, unknownContent("EncodeRefState", c)
	}
	return marshalEnvelope("EncodeRefState", env)
}

// EncodeGlobalState serializes the auxiliary global-state record for a
// table or view. Other kinds never used global state and are rejected.
func EncodeGlobalState(c Content) ([]byte, error) {
	var location string
	switch v := c.(type) {
	case Table:
		location = v.MetadataLocation
	case View:
		location = v.MetadataLocation
	default:
		return nil, unknownContent("EncodeGlobalState", c)
	}

	env := envelope{
		ID:              c.ID(),
		MetadataPointer: &metadataPointer{MetadataLocation: location},
	}
	return marshalEnvelope("EncodeGlobalState", env)
}

// Decode reconstructs a content value from its stored form. For legacy
// table and view records that lack the direct metadata location, the
// supplier resolves the global-state record; a missing or pointer-less
// global state is a hard failure.
func Decode(data []byte, globalState GlobalStateSupplier) (Content, error) {
	env, err := parseEnvelope("Decode", data)
	if err != nil {
		return nil, err
	}

	resolvePointer := func() (string, error) {
		if globalState == nil {
			return "", noMetadataPointer(env.ID)
		}
		raw, err := globalState()
		if err != nil {
			return "", errors.Wrap(err, "content", "Decode", "resolve global state")
		}
		if raw == nil {
			return "", noMetadataPointer(env.ID)
		}
		global, err := parseEnvelope("Decode", raw)
		if err != nil {
			return "", err
		}
		if global.MetadataPointer == nil {
			return "", noMetadataPointer(env.ID)
		}
		return global.MetadataPointer.MetadataLocation, nil
	}

	switch {
	case env.TableRefState != nil:
		state := env.TableRefState
		location, err := resolveLocation(state.MetadataLocation, resolvePointer)
		if err != nil {
			return nil, err
		}
		return Table{
			Id:               env.ID,
			MetadataLocation: location,
			SnapshotID:       state.SnapshotID,
			SchemaID:         state.SchemaID,
			SpecID:           state.SpecID,
			SortOrderID:      state.SortOrderID,
		}, nil

	case env.ViewState != nil:
		state := env.ViewState
		location, err := resolveLocation(state.MetadataLocation, resolvePointer)
		if err != nil {
			return nil, err
		}
		return View{
			Id:               env.ID,
			MetadataLocation: location,
			VersionID:        state.VersionID,
			SchemaID:         state.SchemaID,
			Dialect:          state.Dialect,
			SQLText:          state.SQLText,
		}, nil

	case env.DeltaTable != nil:
		state := env.DeltaTable
		return DeltaTable{
			Id:                        env.ID,
			MetadataLocationHistory:   state.MetadataLocationHistory,
			CheckpointLocationHistory: state.CheckpointLocationHistory,
			LastCheckpoint:            state.LastCheckpoint,
		}, nil

	case env.Namespace != nil:
		state := env.Namespace
		return Namespace{
			Id:         env.ID,
			Elements:   state.Elements,
			Properties: state.Properties,
		}, nil

	default:
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: no content sub-record populated", errors.ErrParsingFailed),
			"content", "Decode", "discriminate content kind")
	}
}

func resolveLocation(direct *string, resolvePointer func() (string, error)) (string, error) {
	if direct != nil {
		return *direct, nil
	}
	return resolvePointer()
}

// RequiresGlobalState reports whether a live content value needs the
// global-state indirection. Current-generation values never do; tables
// and views only did so in their legacy stored form.
func RequiresGlobalState(Content) bool {
	return false
}

// RequiresGlobalStateBytes reports whether a stored record needs the
// global-state indirection to decode, without materializing it.
func RequiresGlobalStateBytes(data []byte) (bool, error) {
	env, err := parseEnvelope("RequiresGlobalStateBytes", data)
	if err != nil {
		return false, err
	}
	switch {
	case env.TableRefState != nil:
		return env.TableRefState.MetadataLocation == nil, nil
	case env.ViewState != nil:
		return env.ViewState.MetadataLocation == nil, nil
	default:
		return false, nil
	}
}

// ApplyID assigns an id to a content value that does not carry one yet.
// A value that already has an id is immutable and is rejected.
func ApplyID(c Content, id string) (Content, error) {
	if c == nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: nil content", errors.ErrInvalidData),
			"content", "ApplyID", "validate content")
	}
	if id == "" {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: id must not be empty", errors.ErrInvalidData),
			"content", "ApplyID", "validate id")
	}
	if c.ID() != "" {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: content already has id %q", errors.ErrInvalidData, c.ID()),
			"content", "ApplyID", "enforce id immutability")
	}

	switch v := c.(type) {
	case Table:
		v.Id = id
		return v, nil
	case View:
		v.Id = id
		return v, nil
	case DeltaTable:
		v.Id = id
		return v, nil
	case Namespace:
		v.Id = id
		return v, nil
	default:
		return nil, unknownContent("ApplyID", c)
	}
}

// TypeFromBytes determines the content kind of a stored record from the
// populated sub-record, without a separate type tag.
func TypeFromBytes(data []byte) (Type, error) {
	env, err := parseEnvelope("TypeFromBytes", data)
	if err != nil {
		return TypeUnknown, err
	}
	switch {
	case env.TableRefState != nil:
		return TypeTable, nil
	case env.ViewState != nil:
		return TypeView, nil
	case env.DeltaTable != nil:
		return TypeDeltaTable, nil
	case env.Namespace != nil:
		return TypeNamespace, nil
	default:
		return TypeUnknown, errors.WrapInvalid(
			fmt.Errorf("%w: no content sub-record populated", errors.ErrParsingFailed),
			"content", "TypeFromBytes", "discriminate content kind")
	}
}

// PayloadCode returns the stable on-disk ordinal of a content value.
func PayloadCode(c Content) (int, error) {
	switch c.(type) {
	case Table:
		return int(TypeTable), nil
	case DeltaTable:
		return int(TypeDeltaTable), nil
	case View:
		return int(TypeView), nil
	case Namespace:
		return int(TypeNamespace), nil
	default:
		return 0, unknownContent("PayloadCode", c)
	}
}

// TypeFromPayload maps a stored ordinal back to its content kind. An
// out-of-range ordinal is a hard failure.
func TypeFromPayload(payload int) (Type, error) {
	if payload < int(TypeTable) || payload > int(TypeNamespace) {
		return TypeUnknown, errors.WrapInvalid(
			fmt.Errorf("%w: payload %d does not exist", errors.ErrParsingFailed, payload),
			"content", "TypeFromPayload", "validate payload ordinal")
	}
	return Type(payload), nil
}

// IsNamespaceBytes reports whether a stored record is a namespace,
// absorbing parse failures into false.
func IsNamespaceBytes(data []byte) bool {
	typ, err := TypeFromBytes(data)
	return err == nil && typ == TypeNamespace
}

func marshalEnvelope(method string, env envelope) ([]byte, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, errors.WrapInvalid(err, "content", method, "encode content envelope")
	}
	return data, nil
}

func parseEnvelope(method string, data []byte) (envelope, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return envelope{}, errors.WrapInvalid(
			fmt.Errorf("%w: %v", errors.ErrParsingFailed, err),
			"content", method, "decode content envelope")
	}
	return env, nil
}

func noMetadataPointer(id string) error {
	return errors.WrapInvalid(
		fmt.Errorf("%w: content %q stored on reference requires global state, but has none",
			errors.ErrDataCorrupted, id),
		"content", "Decode", "resolve metadata pointer")
}

func unknownContent(method string, c Content) error {
	return errors.WrapInvalid(
		fmt.Errorf("%w: unknown content %T", errors.ErrInvalidData, c),
		"content", method, "dispatch content kind")
}

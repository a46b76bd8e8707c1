package storage

import (
	"encoding/json"
	"fmt"

	"github.com/wuchunfu/nessie/errors"
)

// objEnvelope is the tagged wire form used by byte-oriented backends.
// The type tag selects the concrete struct the obj payload decodes into.
type objEnvelope struct {
	Type ObjType         `json:"type"`
	Obj  json.RawMessage `json:"obj"`
}

// MarshalObj serializes an object into its tagged envelope.
func MarshalObj(obj Obj) ([]byte, error) {
	if obj == nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: nil object", errors.ErrInvalidData),
			"storage", "MarshalObj", "validate object")
	}
	payload, err := json.Marshal(obj)
	if err != nil {
		return nil, errors.WrapInvalid(err, "storage", "MarshalObj", "encode object payload")
	}
	data, err := json.Marshal(objEnvelope{Type: obj.Type(), Obj: payload})
	if err != nil {
		return nil, errors.WrapInvalid(err, "storage", "MarshalObj", "encode object envelope")
	}
	return data, nil
}

// UnmarshalObj deserializes a tagged envelope back into its concrete
// object type. Unknown type tags are a hard parsing failure.
func UnmarshalObj(data []byte) (Obj, error) {
	var env objEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %v", errors.ErrParsingFailed, err),
			"storage", "UnmarshalObj", "decode object envelope")
	}

	var obj Obj
	switch env.Type {
	case ObjTypeCommit:
		var o CommitObj
		if err := json.Unmarshal(env.Obj, &o); err != nil {
			return nil, wrapDecode(err, env.Type)
		}
		obj = o
	case ObjTypeValue:
		var o ContentValueObj
		if err := json.Unmarshal(env.Obj, &o); err != nil {
			return nil, wrapDecode(err, env.Type)
		}
		obj = o
	case ObjTypeIndexSegment:
		var o IndexSegmentObj
		if err := json.Unmarshal(env.Obj, &o); err != nil {
			return nil, wrapDecode(err, env.Type)
		}
		obj = o
	case ObjTypeTag:
		var o TagObj
		if err := json.Unmarshal(env.Obj, &o); err != nil {
			return nil, wrapDecode(err, env.Type)
		}
		obj = o
	case ObjTypeRef:
		var o RefObj
		if err := json.Unmarshal(env.Obj, &o); err != nil {
			return nil, wrapDecode(err, env.Type)
		}
		obj = o
	default:
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: unknown object type %q", errors.ErrParsingFailed, string(env.Type)),
			"storage", "UnmarshalObj", "discriminate object type")
	}
	return obj, nil
}

// UnmarshalObjType decodes only the type tag of a stored envelope.
func UnmarshalObjType(data []byte) (ObjType, error) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return "", errors.WrapInvalid(
			fmt.Errorf("%w: %v", errors.ErrParsingFailed, err),
			"storage", "UnmarshalObjType", "decode object envelope")
	}
	return ParseObjType(env.Type)
}

func wrapDecode(err error, typ ObjType) error {
	return errors.WrapInvalid(
		fmt.Errorf("%w: %v", errors.ErrParsingFailed, err),
		"storage", "UnmarshalObj", fmt.Sprintf("decode %s payload", typ))
}

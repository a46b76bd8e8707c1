package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/wuchunfu/nessie/errors"
)

// ObjId is the content-derived identity of a stored object. It is a
// comparable value type; the zero value means "no id" and marks skipped
// slots in batch operations.
type ObjId struct {
	hash [sha256.Size]byte
}

// IdOf computes the id for the given serialized object bytes.
func IdOf(data []byte) ObjId {
	return ObjId{hash: sha256.Sum256(data)}
}

// ParseObjId parses the hex form produced by String.
func ParseObjId(s string) (ObjId, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return ObjId{}, errors.WrapInvalid(err, "ObjId", "Parse", "decode hex id")
	}
	if len(raw) != sha256.Size {
		return ObjId{}, errors.WrapInvalid(
			fmt.Errorf("%w: id must be %d bytes, got %d", errors.ErrInvalidData, sha256.Size, len(raw)),
			"ObjId", "Parse", "validate id length")
	}
	var id ObjId
	copy(id.hash[:], raw)
	return id, nil
}

// IsZero reports whether the id is unset.
func (id ObjId) IsZero() bool {
	return id == ObjId{}
}

// String returns the lower-case hex form of the id.
func (id ObjId) String() string {
	return hex.EncodeToString(id.hash[:])
}

// MarshalText implements encoding.TextMarshaler so ids serialize as hex
// strings in JSON envelopes and KV keys. The zero id serializes as the
// empty string.
func (id ObjId) MarshalText() ([]byte, error) {
	if id.IsZero() {
		return nil, nil
	}
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ObjId) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*id = ObjId{}
		return nil
	}
	parsed, err := ParseObjId(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

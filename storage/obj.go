package storage

import (
	"fmt"

	"github.com/wuchunfu/nessie/errors"
)

// ObjType is the closed set of object kinds the store persists.
type ObjType string

const (
	// ObjTypeCommit is a commit in the version graph.
	ObjTypeCommit ObjType = "commit"
	// ObjTypeValue holds a serialized content record.
	ObjTypeValue ObjType = "value"
	// ObjTypeIndexSegment is a segment of a commit's key index.
	ObjTypeIndexSegment ObjType = "index-segment"
	// ObjTypeTag carries tag metadata (message, signature).
	ObjTypeTag ObjType = "tag"
	// ObjTypeRef records the creation point of a named reference.
	ObjTypeRef ObjType = "ref"
)

// AllObjTypes lists every known object type.
func AllObjTypes() []ObjType {
	return []ObjType{ObjTypeCommit, ObjTypeValue, ObjTypeIndexSegment, ObjTypeTag, ObjTypeRef}
}

// ParseObjType validates a type tag read from stored bytes.
func ParseObjType(s string) (ObjType, error) {
	switch t := ObjType(s); t {
	case ObjTypeCommit, ObjTypeValue, ObjTypeIndexSegment, ObjTypeTag, ObjTypeRef:
		return t, nil
	default:
		return "", errors.WrapInvalid(
			fmt.Errorf("%w: unknown object type %q", errors.ErrParsingFailed, s),
			"ObjType", "Parse", "validate type tag")
	}
}

// Obj is an immutable stored object. Implementations are value types;
// "updating" an object means replacing the stored value at its id.
type Obj interface {
	ID() ObjId
	Type() ObjType
}

// CommitObj is a commit in the version graph.
type CommitObj struct {
	Id      ObjId   `json:"id"`
	Seq     int64   `json:"seq"`
	Parents []ObjId `json:"parents,omitempty"`
	Index   ObjId   `json:"index"`
	Message string  `json:"message"`
	Created int64   `json:"created"`
}

// ID returns the object id.
func (o CommitObj) ID() ObjId { return o.Id }

// Type returns ObjTypeCommit.
func (o CommitObj) Type() ObjType { return ObjTypeCommit }

// ContentValueObj holds one serialized content record, addressed by the
// content id it belongs to and tagged with the content payload ordinal.
type ContentValueObj struct {
	Id        ObjId  `json:"id"`
	ContentID string `json:"content_id"`
	Payload   int    `json:"payload"`
	Data      []byte `json:"data"`
}

// ID returns the object id.
func (o ContentValueObj) ID() ObjId { return o.Id }

// Type returns ObjTypeValue.
func (o ContentValueObj) Type() ObjType { return ObjTypeValue }

// IndexSegmentObj is one segment of a commit's key index. FirstKey and
// LastKey bound the key range the segment covers.
type IndexSegmentObj struct {
	Id       ObjId  `json:"id"`
	FirstKey string `json:"first_key,omitempty"`
	LastKey  string `json:"last_key,omitempty"`
	Index    []byte `json:"index"`
}

// ID returns the object id.
func (o IndexSegmentObj) ID() ObjId { return o.Id }

// Type returns ObjTypeIndexSegment.
func (o IndexSegmentObj) Type() ObjType { return ObjTypeIndexSegment }

// TagObj carries the metadata of a tag reference.
type TagObj struct {
	Id        ObjId  `json:"id"`
	Message   string `json:"message,omitempty"`
	Signature []byte `json:"signature,omitempty"`
}

// ID returns the object id.
func (o TagObj) ID() ObjId { return o.Id }

// Type returns ObjTypeTag.
func (o TagObj) Type() ObjType { return ObjTypeTag }

// RefObj records the creation point of a named reference.
type RefObj struct {
	Id             ObjId  `json:"id"`
	Name           string `json:"name"`
	InitialPointer ObjId  `json:"initial_pointer"`
	CreatedAt      int64  `json:"created_at"`
}

// ID returns the object id.
func (o RefObj) ID() ObjId { return o.Id }

// Type returns ObjTypeRef.
func (o RefObj) Type() ObjType { return ObjTypeRef }

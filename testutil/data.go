package testutil

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wuchunfu/nessie/storage"
)

// CommitObj builds a commit with a deterministic id derived from its
// message.
func CommitObj(message string, parents ...storage.ObjId) storage.CommitObj {
	return storage.CommitObj{
		Id:      storage.IdOf([]byte("commit:" + message)),
		Seq:     int64(len(parents)) + 1,
		Parents: parents,
		Message: message,
		Created: time.Now().UnixMicro(),
	}
}

// ContentValueObj builds a content value record with a fresh random
// content id.
func ContentValueObj(payload int, data []byte) storage.ContentValueObj {
	contentID := uuid.NewString()
	return storage.ContentValueObj{
		Id:        storage.IdOf(append([]byte(contentID+":"), data...)),
		ContentID: contentID,
		Payload:   payload,
		Data:      data,
	}
}

// IndexSegmentObj builds an index segment covering the given key range.
func IndexSegmentObj(firstKey, lastKey string) storage.IndexSegmentObj {
	index := []byte(firstKey + ".." + lastKey)
	return storage.IndexSegmentObj{
		Id:       storage.IdOf(append([]byte("index:"), index...)),
		FirstKey: firstKey,
		LastKey:  lastKey,
		Index:    index,
	}
}

// TagObj builds a tag object from its message.
func TagObj(message string) storage.TagObj {
	return storage.TagObj{
		Id:      storage.IdOf([]byte("tag:" + message)),
		Message: message,
	}
}

// Reference builds a live reference with a unique branch-style name.
func Reference(pointer storage.ObjId) storage.Reference {
	return storage.NewReference(RefName(), pointer)
}

// RefName returns a unique branch-style reference name.
func RefName() string {
	return fmt.Sprintf("refs/heads/%s", uuid.NewString())
}

// RandomObjId returns an id derived from fresh random input, useful as
// an id that is known to be absent from a store.
func RandomObjId() storage.ObjId {
	return storage.IdOf([]byte(uuid.NewString()))
}

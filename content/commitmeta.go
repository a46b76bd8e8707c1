package content

import (
	"encoding/json"

	"github.com/wuchunfu/nessie/errors"
)

// CommitMeta is free-form commit metadata. It is diagnostic, not
// structural: nothing in the store derives state from it.
type CommitMeta struct {
	Hash        string            `json:"hash,omitempty"`
	Committer   string            `json:"committer,omitempty"`
	Author      string            `json:"author,omitempty"`
	SignedOffBy string            `json:"signed_off_by,omitempty"`
	Message     string            `json:"message"`
	CommitTime  int64             `json:"commit_time,omitempty"`
	AuthorTime  int64             `json:"author_time,omitempty"`
	Properties  map[string]string `json:"properties,omitempty"`
}

// MetaSerializer encodes and decodes commit metadata.
type MetaSerializer struct{}

// ToBytes serializes commit metadata; encoding failures propagate.
func (MetaSerializer) ToBytes(meta CommitMeta) ([]byte, error) {
	data, err := json.Marshal(meta)
	if err != nil {
		return nil, errors.WrapInvalid(err, "content", "MetaSerializer.ToBytes", "encode commit meta")
	}
	return data, nil
}

// FromBytes deserializes commit metadata. Parse failures are absorbed
// into a placeholder value because commit metadata is diagnostic; a
// broken record must not make its commit unreadable.
func (MetaSerializer) FromBytes(data []byte) CommitMeta {
	var meta CommitMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return CommitMeta{
			Message:   "unknown",
			Committer: "unknown",
			Hash:      "unknown",
		}
	}
	return meta
}

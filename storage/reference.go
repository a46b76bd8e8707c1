package storage

// Reference is a named mutable pointer into the object graph. Every
// mutation of a reference supplies the previously observed Reference
// value; the store rejects the mutation when its current state differs.
type Reference struct {
	Name    string `json:"name"`
	Pointer ObjId  `json:"pointer"`
	Deleted bool   `json:"deleted"`
}

// NewReference creates a live reference pointing at the given object.
func NewReference(name string, pointer ObjId) Reference {
	return Reference{Name: name, Pointer: pointer}
}

// WithPointer returns a copy of the reference moved to a new pointer.
func (r Reference) WithPointer(pointer ObjId) Reference {
	r.Pointer = pointer
	return r
}

// WithDeleted returns a copy of the reference with the soft-delete
// marker set.
func (r Reference) WithDeleted(deleted bool) Reference {
	r.Deleted = deleted
	return r
}

package content

// Type identifies a content kind. The zero value means unknown; the
// remaining values double as the stable on-disk payload ordinals.
type Type int

const (
	// TypeUnknown is the zero, invalid content type.
	TypeUnknown Type = iota
	// TypeTable is a table backed by a metadata document.
	TypeTable
	// TypeDeltaTable is a delta-style table tracked by location history.
	TypeDeltaTable
	// TypeView is a SQL view backed by a metadata document.
	TypeView
	// TypeNamespace groups content under a common prefix.
	TypeNamespace
)

// String returns the lowercase name of the content type.
func (t Type) String() string {
	switch t {
	case TypeTable:
		return "table"
	case TypeDeltaTable:
		return "delta-table"
	case TypeView:
		return "view"
	case TypeNamespace:
		return "namespace"
	default:
		return "unknown"
	}
}

// Content is the closed set of domain content values. The set is
// sealed: every implementation lives in this package and serializer
// dispatch over it is exhaustive.
type Content interface {
	// ID returns the content id, empty until assigned via ApplyID.
	ID() string
	// Type returns the content kind.
	Type() Type

	isContent()
}

// Table is table metadata: the location of the current metadata
// document plus the identifiers pinning the snapshot it describes.
type Table struct {
	Id               string
	MetadataLocation string
	SnapshotID       int64
	SchemaID         int
	SpecID           int
	SortOrderID      int
}

// ID returns the content id.
func (t Table) ID() string { return t.Id }

// Type returns TypeTable.
func (t Table) Type() Type { return TypeTable }

func (Table) isContent() {}

// View is view metadata: the location of the current metadata document
// plus the SQL definition it was created from.
type View struct {
	Id               string
	MetadataLocation string
	VersionID        int64
	SchemaID         int
	Dialect          string
	SQLText          string
}

// ID returns the content id.
func (v View) ID() string { return v.Id }

// Type returns TypeView.
func (v View) Type() Type { return TypeView }

func (View) isContent() {}

// DeltaTable is delta-style table metadata tracked as location
// histories.
type DeltaTable struct {
	Id                        string
	MetadataLocationHistory   []string
	CheckpointLocationHistory []string
	LastCheckpoint            string
}

// ID returns the content id.
func (d DeltaTable) ID() string { return d.Id }

// Type returns TypeDeltaTable.
func (d DeltaTable) Type() Type { return TypeDeltaTable }

func (DeltaTable) isContent() {}

// Namespace groups content under a common element path.
type Namespace struct {
	Id         string
	Elements   []string
	Properties map[string]string
}

// ID returns the content id.
func (n Namespace) ID() string { return n.Id }

// Type returns TypeNamespace.
func (n Namespace) Type() Type { return TypeNamespace }

func (Namespace) isContent() {}

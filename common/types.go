package common

// Kind identifies the data type carried by a map field or a standalone
// data type resource.
type Kind string

const (
	// KindUnknown is returned when a wire field name carries no known suffix.
	KindUnknown Kind = ""
	// KindRegister is a last-write-wins string value inside a map.
	KindRegister Kind = "register"
	// KindFlag is an enable/disable boolean inside a map.
	KindFlag Kind = "flag"
	// KindCounter is a PN-counter.
	KindCounter Kind = "counter"
	// KindMap is an OR-map of named fields.
	KindMap Kind = "map"
	// KindSet is an OR-set of strings.
	KindSet Kind = "set"
)

// Kinds lists every kind that may appear as a field suffix.
var Kinds = []Kind{KindRegister, KindFlag, KindCounter, KindMap, KindSet}

// Valid reports whether k is one of the known field kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindRegister, KindFlag, KindCounter, KindMap, KindSet:
		return true
	}
	return false
}

// String returns the wire tag of the kind.
func (k Kind) String() string {
	return string(k)
}

// ParseKind converts a wire tag into a Kind.
func ParseKind(tag string) (Kind, bool) {
	k := Kind(tag)
	return k, k.Valid()
}

// Default bucket-type namespaces for the standalone data types.
const (
	DefaultCounterNamespace = "counters"
	DefaultSetNamespace     = "sets"
	DefaultMapNamespace     = "maps"

	// LegacyNamespace selects the pre-bucket-type counter resource
	// (/buckets/{bucket}/counters/{key}).
	LegacyNamespace = ""
)

// Flag literals used on the wire.
const (
	FlagEnable  = "enable"
	FlagDisable = "disable"
)

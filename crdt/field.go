package crdt

import (
	"strings"

	"riakdt/common"
)

// fieldSeparator joins a field's logical name and its kind tag.
const fieldSeparator = "_"

// Encode returns the wire name of a map field: name + "_" + kind tag.
func Encode(name string, kind common.Kind) string {
	return name + fieldSeparator + kind.String()
}

// Decode splits a wire field name at its last underscore. ok is false when
// there is no underscore or the suffix is not a known kind; name is then
// the whole input or the part before the suffix respectively.
func Decode(wire string) (name string, kind common.Kind, ok bool) {
	i := strings.LastIndex(wire, fieldSeparator)
	if i < 0 {
		return wire, common.KindUnknown, false
	}
	kind, ok = common.ParseKind(wire[i+len(fieldSeparator):])
	if !ok {
		return wire[:i], common.KindUnknown, false
	}
	return wire[:i], kind, true
}

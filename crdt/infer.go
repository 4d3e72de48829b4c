package crdt

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"

	"riakdt/common"
)

// classification maps a plain value to the field kind it is stored as.
// Rules are tried in order; a value matching none becomes a register.
//
//	bool                      -> flag ("enable" / "disable")
//	any number, json.Number   -> register holding the decimal string
//	slice or array            -> set of every element, stringified
//	map with string keys      -> map, classified recursively
//	anything else             -> register holding fmt.Sprint(value)
var classification = []struct {
	kind  common.Kind
	match func(v any, rv reflect.Value) bool
}{
	{common.KindFlag, func(v any, rv reflect.Value) bool {
		return rv.Kind() == reflect.Bool
	}},
	{common.KindRegister, func(v any, rv reflect.Value) bool {
		_, ok := numberString(v, rv)
		return ok
	}},
	{common.KindSet, func(v any, rv reflect.Value) bool {
		if _, isBytes := v.([]byte); isBytes {
			return false
		}
		return rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array
	}},
	{common.KindMap, func(v any, rv reflect.Value) bool {
		return rv.Kind() == reflect.Map && rv.Type().Key().Kind() == reflect.String
	}},
}

// classify returns the field kind for a plain value.
func classify(v any) common.Kind {
	rv := reflect.ValueOf(v)
	for _, rule := range classification {
		if rule.match(v, rv) {
			return rule.kind
		}
	}
	return common.KindRegister
}

// defineLocked stages obj's entries as fields of m. The caller holds the
// tree lock.
func (m *Map) defineLocked(obj map[string]any) {
	for field, v := range obj {
		rv := reflect.ValueOf(v)
		switch classify(v) {
		case common.KindFlag:
			m.stageScalarLocked(field, common.KindFlag, flagValue(rv.Bool()))
		case common.KindRegister:
			m.stageScalarLocked(field, common.KindRegister, registerString(v, rv))
		case common.KindSet:
			s := m.setLocked(field)
			elements := make([]string, 0, rv.Len())
			for i := 0; i < rv.Len(); i++ {
				elements = append(elements, fmt.Sprint(rv.Index(i).Interface()))
			}
			if len(elements) > 0 {
				s.stageLocked("set add", &s.adds, elements)
			}
		case common.KindMap:
			child := m.mapLocked(field)
			child.defineLocked(plainMap(rv))
		case common.KindCounter, common.KindUnknown:
		}
	}
}

func registerString(v any, rv reflect.Value) string {
	if s, ok := numberString(v, rv); ok {
		return s
	}
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case []byte:
		return string(s)
	}
	return fmt.Sprint(v)
}

func numberString(v any, rv reflect.Value) (string, bool) {
	if n, ok := v.(json.Number); ok {
		return n.String(), true
	}
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(rv.Uint(), 10), true
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 64), true
	}
	return "", false
}

func plainMap(rv reflect.Value) map[string]any {
	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}
	return out
}

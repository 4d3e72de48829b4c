package fakestore

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"riakdt/common"
)

// storeError is a rejection with the status the real store would answer.
type storeError struct {
	status  int
	message string
}

func (e *storeError) Error() string {
	return e.message
}

func badRequest(format string, args ...any) error {
	return &storeError{status: http.StatusBadRequest, message: fmt.Sprintf(format, args...)}
}

// document is one stored data type value.
type document struct {
	kind    common.Kind
	counter int64
	set     []string
	fields  map[string]any
}

func newDocument(kind common.Kind) *document {
	d := &document{kind: kind}
	if kind == common.KindMap {
		d.fields = make(map[string]any)
	}
	return d
}

func (d *document) clone() *document {
	c := &document{kind: d.kind, counter: d.counter}
	c.set = append([]string(nil), d.set...)
	if d.fields != nil {
		c.fields = cloneFields(d.fields)
	}
	return c
}

func cloneFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		switch v := v.(type) {
		case []string:
			out[k] = append([]string(nil), v...)
		case map[string]any:
			out[k] = cloneFields(v)
		default:
			out[k] = v
		}
	}
	return out
}

// apply runs one update document against d.
func (d *document) apply(op map[string]any) error {
	switch d.kind {
	case common.KindCounter:
		n, err := integer(op["increment"])
		if err != nil {
			return badRequest("counter update: %v", err)
		}
		d.counter += n
		return nil
	case common.KindSet:
		set, err := applySet(d.set, op)
		if err != nil {
			return err
		}
		d.set = set
		return nil
	case common.KindMap:
		return applyMap(d.fields, op)
	}
	return badRequest("unsupported data type %q", d.kind)
}

// value renders d the way a fetch returns it.
func (d *document) value() any {
	switch d.kind {
	case common.KindCounter:
		return d.counter
	case common.KindSet:
		return nonNil(d.set)
	default:
		return renderFields(d.fields)
	}
}

func renderFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		switch v := v.(type) {
		case []string:
			out[k] = nonNil(v)
		case map[string]any:
			out[k] = renderFields(v)
		default:
			out[k] = v
		}
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func applySet(current []string, op map[string]any) ([]string, error) {
	adds, err := elements(op, "add", "add_all")
	if err != nil {
		return nil, err
	}
	removes, err := elements(op, "remove", "remove_all")
	if err != nil {
		return nil, err
	}

	members := make(map[string]struct{}, len(current)+len(adds))
	for _, e := range current {
		members[e] = struct{}{}
	}
	for _, e := range removes {
		if _, ok := members[e]; !ok {
			return nil, &storeError{status: http.StatusPreconditionFailed, message: "precondition failed: " + e + " is not a member"}
		}
		delete(members, e)
	}
	for _, e := range adds {
		members[e] = struct{}{}
	}

	out := make([]string, 0, len(members))
	for e := range members {
		out = append(out, e)
	}
	sort.Strings(out)
	return out, nil
}

func elements(op map[string]any, single, all string) ([]string, error) {
	var out []string
	if v, ok := op[single]; ok {
		s, ok := v.(string)
		if !ok {
			return nil, badRequest("%s must be a string", single)
		}
		out = append(out, s)
	}
	if v, ok := op[all]; ok {
		list, ok := v.([]any)
		if !ok {
			return nil, badRequest("%s must be an array", all)
		}
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, badRequest("%s must hold strings", all)
			}
			out = append(out, s)
		}
	}
	return out, nil
}

func applyMap(fields map[string]any, op map[string]any) error {
	if raw, ok := op["remove"]; ok {
		list, ok := raw.([]any)
		if !ok {
			return badRequest("map remove must be an array")
		}
		for _, item := range list {
			name, ok := item.(string)
			if !ok {
				return badRequest("map remove must hold field names")
			}
			delete(fields, name)
		}
	}

	raw, ok := op["update"]
	if !ok {
		return nil
	}
	update, ok := raw.(map[string]any)
	if !ok {
		return badRequest("map update must be an object")
	}

	for field, v := range update {
		kind := fieldKind(field)
		switch kind {
		case common.KindRegister:
			s, ok := v.(string)
			if !ok {
				return badRequest("register %s must be a string", field)
			}
			fields[field] = s
		case common.KindFlag:
			switch v {
			case common.FlagEnable:
				fields[field] = true
			case common.FlagDisable:
				fields[field] = false
			default:
				return badRequest("flag %s must be enable or disable", field)
			}
		case common.KindCounter:
			n, err := integer(v)
			if err != nil {
				return badRequest("counter %s: %v", field, err)
			}
			current, _ := fields[field].(int64)
			fields[field] = current + n
		case common.KindSet:
			sub, ok := v.(map[string]any)
			if !ok {
				return badRequest("set %s must be an object", field)
			}
			current, _ := fields[field].([]string)
			set, err := applySet(current, sub)
			if err != nil {
				return err
			}
			fields[field] = set
		case common.KindMap:
			sub, ok := v.(map[string]any)
			if !ok {
				return badRequest("map %s must be an object", field)
			}
			current, ok := fields[field].(map[string]any)
			if !ok {
				current = make(map[string]any)
			}
			if err := applyMap(current, sub); err != nil {
				return err
			}
			fields[field] = current
		default:
			return badRequest("field %s has no known type suffix", field)
		}
	}
	return nil
}

func fieldKind(field string) common.Kind {
	i := strings.LastIndexByte(field, '_')
	if i < 0 {
		return common.KindUnknown
	}
	kind, _ := common.ParseKind(field[i+1:])
	return kind
}

func integer(v any) (int64, error) {
	switch n := v.(type) {
	case json.Number:
		return n.Int64()
	case nil:
		return 0, fmt.Errorf("missing integer")
	}
	return 0, fmt.Errorf("not an integer: %v", v)
}

// inferKind guesses the data type of an untyped bucket type from its first
// update.
func inferKind(op map[string]any) common.Kind {
	if _, ok := op["increment"]; ok {
		return common.KindCounter
	}
	if _, ok := op["update"]; ok {
		return common.KindMap
	}
	return common.KindSet
}

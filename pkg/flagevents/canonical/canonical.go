// Package canonical produces a deterministic JSON rendering of value trees.
//
// Two trees render identically iff they are deeply equal, comparing object
// keys unordered and array elements in order. Object keys are emitted sorted.
// Values that have no JSON form (functions, channels, and so on) are dropped
// from objects and rendered as null inside arrays.
package canonical

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"reflect"
	"sort"
	"strings"
)

// ErrCycle is returned when a tree contains a reference back to one of its
// own ancestors.
var ErrCycle = errors.New("canonical: cycle detected")

// Canonicalize renders v as canonical JSON. It fails with ErrCycle on cyclic
// input rather than truncating.
func Canonicalize(v any) (string, error) {
	var b strings.Builder
	ok, err := write(&b, v, nil)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", &json.UnsupportedValueError{Value: reflect.ValueOf(v), Str: "value has no JSON form"}
	}
	return b.String(), nil
}

// write appends the rendering of v to b. It reports false when v has no JSON
// form, in which case nothing was written.
func write(b *strings.Builder, v any, ancestors []uintptr) (bool, error) {
	switch val := normalize(v).(type) {
	case nil:
		b.WriteString("null")
		return true, nil
	case map[string]any:
		if val == nil {
			b.WriteString("null")
			return true, nil
		}
		id := reflect.ValueOf(val).Pointer()
		if contains(ancestors, id) {
			return false, ErrCycle
		}
		return true, writeObject(b, val, append(ancestors[:len(ancestors):len(ancestors)], id))
	case []any:
		if val == nil {
			b.WriteString("null")
			return true, nil
		}
		var id uintptr
		if len(val) > 0 {
			id = reflect.ValueOf(val).Pointer()
			if contains(ancestors, id) {
				return false, ErrCycle
			}
		}
		return true, writeArray(b, val, append(ancestors[:len(ancestors):len(ancestors)], id))
	case json.RawMessage:
		// Re-decode so raw fragments are canonicalized like everything else.
		var decoded any
		if err := json.Unmarshal(val, &decoded); err != nil {
			return false, err
		}
		return write(b, decoded, ancestors)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Func, reflect.Chan, reflect.UnsafePointer, reflect.Complex64, reflect.Complex128:
		return false, nil
	case reflect.Float32, reflect.Float64:
		// NaN and Inf render as null, matching JSON.stringify.
		if f := rv.Float(); math.IsNaN(f) || math.IsInf(f, 0) {
			b.WriteString("null")
			return true, nil
		}
	}

	data, err := marshal(v)
	if err != nil {
		return false, err
	}
	b.Write(data)
	return true, nil
}

var (
	objectType = reflect.TypeOf(map[string]any(nil))
	arrayType  = reflect.TypeOf([]any(nil))
)

// normalize converts named object and array types (such as a Context type
// defined as map[string]any) to their plain forms so they are traversed,
// not handed to encoding/json.
func normalize(v any) any {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type() != objectType && rv.Type().ConvertibleTo(objectType) {
			return rv.Convert(objectType).Interface()
		}
	case reflect.Slice:
		if rv.Type() != arrayType && rv.Type().ConvertibleTo(arrayType) {
			return rv.Convert(arrayType).Interface()
		}
	}
	return v
}

func writeObject(b *strings.Builder, obj map[string]any, ancestors []uintptr) error {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	b.WriteByte('{')
	first := true
	for _, k := range keys {
		var member strings.Builder
		ok, err := write(&member, obj[k], ancestors)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if !first {
			b.WriteByte(',')
		}
		first = false
		writeString(b, k)
		b.WriteByte(':')
		b.WriteString(member.String())
	}
	b.WriteByte('}')
	return nil
}

func writeArray(b *strings.Builder, arr []any, ancestors []uintptr) error {
	b.WriteByte('[')
	for i, item := range arr {
		if i > 0 {
			b.WriteByte(',')
		}
		var elem strings.Builder
		ok, err := write(&elem, item, ancestors)
		if err != nil {
			return err
		}
		if !ok {
			b.WriteString("null")
			continue
		}
		b.WriteString(elem.String())
	}
	b.WriteByte(']')
	return nil
}

func writeString(b *strings.Builder, s string) {
	data, _ := marshal(s)
	b.Write(data)
}

// marshal encodes v without HTML escaping so strings render the way
// JSON.stringify renders them.
func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func contains(ids []uintptr, id uintptr) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

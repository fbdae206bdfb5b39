package jinja

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"
)

// maxValueDepth bounds FromGo recursion. Context trees are acyclic by
// contract; anything deeper than this is treated as a cycle.
const maxValueDepth = 100

// ErrContextTooDeep is returned by FromGo when the input nests deeper than
// maxValueDepth levels, which in practice means it contains a cycle.
var ErrContextTooDeep = errors.New("context nests too deeply (cycle?)")

var (
	valueType    = reflect.TypeOf(Value{})
	timeType     = reflect.TypeOf(time.Time{})
	stringerType = reflect.TypeOf((*fmt.Stringer)(nil)).Elem()
)

// FromGo normalises plain Go data into a context Value. It is the only place
// in the package that inspects Go types; the renderer itself works on the
// tagged Value union alone.
//
// Maps with string keys become mappings with sorted keys, slices and arrays
// become sequences, structs become mappings of their exported fields in
// declaration order (a `jinja:"name"` tag renames a field, `jinja:"-"`
// skips it), nil becomes undefined. A struct or pointer whose value or
// pointer type implements fmt.Stringer becomes its String() instead;
// time.Time and *time.Time render as RFC 3339.
func FromGo(v interface{}) (Value, error) {
	return fromReflect(reflect.ValueOf(v), 0)
}

// MustFromGo is like FromGo but panics on error.
func MustFromGo(v interface{}) Value {
	val, err := FromGo(v)
	if err != nil {
		panic(err)
	}
	return val
}

func fromReflect(rv reflect.Value, depth int) (Value, error) {
	if depth > maxValueDepth {
		return Value{}, ErrContextTooDeep
	}
	if !rv.IsValid() {
		return Value{}, nil
	}
	if rv.Type() == valueType {
		return rv.Interface().(Value), nil
	}

	switch rv.Kind() {
	case reflect.Interface, reflect.Pointer:
		if rv.IsNil() {
			return Value{}, nil
		}
		if rv.Kind() == reflect.Pointer && rv.Type().Elem() != timeType && rv.Type().Implements(stringerType) {
			return String(rv.Interface().(fmt.Stringer).String()), nil
		}
		return fromReflect(rv.Elem(), depth+1)
	}

	if rv.Type() == timeType {
		t := rv.Interface().(time.Time)
		return String(t.Format(time.RFC3339)), nil
	}

	switch rv.Kind() {
	case reflect.String:
		return String(rv.String()), nil
	case reflect.Bool:
		return Bool(rv.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Int(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > 1<<63-1 {
			return Float(float64(u)), nil
		}
		return Int(int64(u)), nil
	case reflect.Float32, reflect.Float64:
		return Float(rv.Float()), nil
	case reflect.Slice:
		if rv.IsNil() {
			return Seq(), nil
		}
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return String(string(rv.Bytes())), nil
		}
		fallthrough
	case reflect.Array:
		items := make([]Value, rv.Len())
		for i := range items {
			item, err := fromReflect(rv.Index(i), depth+1)
			if err != nil {
				return Value{}, err
			}
			items[i] = item
		}
		return Value{kind: KindSequence, seq: items}, nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return Value{}, fmt.Errorf("unsupported map key type %s", rv.Type().Key())
		}
		keys := make([]string, 0, rv.Len())
		for _, k := range rv.MapKeys() {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		pairs := make([]Pair, len(keys))
		for i, k := range keys {
			item, err := fromReflect(rv.MapIndex(reflect.ValueOf(k).Convert(rv.Type().Key())), depth+1)
			if err != nil {
				return Value{}, err
			}
			pairs[i] = Pair{Name: k, Value: item}
		}
		return Map(pairs...), nil
	case reflect.Struct:
		if s, ok := asStringer(rv); ok {
			return String(s.String()), nil
		}
		return structToMapping(rv, depth)
	}
	return Value{}, fmt.Errorf("unsupported context type %s", rv.Type())
}

// asStringer returns rv as a fmt.Stringer when its type or a pointer to it
// implements the interface. Unaddressable values are copied first.
func asStringer(rv reflect.Value) (fmt.Stringer, bool) {
	if rv.Type().Implements(stringerType) {
		return rv.Interface().(fmt.Stringer), true
	}
	if !reflect.PointerTo(rv.Type()).Implements(stringerType) {
		return nil, false
	}
	if !rv.CanAddr() {
		cp := reflect.New(rv.Type()).Elem()
		cp.Set(rv)
		rv = cp
	}
	return rv.Addr().Interface().(fmt.Stringer), true
}

func structToMapping(rv reflect.Value, depth int) (Value, error) {
	rt := rv.Type()
	pairs := make([]Pair, 0, rt.NumField())
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		name := field.Name
		if tag, ok := field.Tag.Lookup("jinja"); ok {
			tag, _, _ = strings.Cut(tag, ",")
			if tag == "-" {
				continue
			}
			if tag != "" {
				name = tag
			}
		}
		item, err := fromReflect(rv.Field(i), depth+1)
		if err != nil {
			return Value{}, fmt.Errorf("field %s: %w", field.Name, err)
		}
		pairs = append(pairs, Pair{Name: name, Value: item})
	}
	return Map(pairs...), nil
}

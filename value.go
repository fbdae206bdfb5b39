package jinja

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind identifies which variant of the context union a Value holds.
type Kind int

// Enumerates the variants of Value. KindUndefined is the zero value and
// doubles as the "not found" outcome of a lookup.
const (
	KindUndefined Kind = iota
	KindString
	KindInt
	KindFloat
	KindBool
	KindSequence
	KindMapping
)

func (k Kind) String() string {
	switch k {
	case KindUndefined:
		return "undefined"
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindSequence:
		return "sequence"
	case KindMapping:
		return "mapping"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Value is an immutable node of the context tree a template is rendered
// against. The zero Value is undefined.
type Value struct {
	kind Kind
	str  string
	num  int64
	flt  float64
	seq  []Value
	m    *mapping
}

// mapping keeps insertion order next to an index for O(1) lookups.
type mapping struct {
	keys  []string
	index map[string]int
	vals  []Value
}

// Pair is one named entry of a mapping.
type Pair struct {
	Name  string
	Value Value
}

// Undefined returns the "not found" value.
func Undefined() Value { return Value{} }

// String returns a string scalar.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Int returns an integer scalar.
func Int(i int64) Value { return Value{kind: KindInt, num: i} }

// Float returns a floating point scalar.
func Float(f float64) Value { return Value{kind: KindFloat, flt: f} }

// Bool returns a boolean.
func Bool(b bool) Value {
	v := Value{kind: KindBool}
	if b {
		v.num = 1
	}
	return v
}

// Seq returns an ordered sequence holding items. The slice is copied.
func Seq(items ...Value) Value {
	cp := make([]Value, len(items))
	copy(cp, items)
	return Value{kind: KindSequence, seq: cp}
}

// Map returns a mapping with the given pairs in order. A repeated name
// replaces the earlier value but keeps its position.
func Map(pairs ...Pair) Value {
	m := &mapping{index: make(map[string]int, len(pairs))}
	for _, p := range pairs {
		m.set(p.Name, p.Value)
	}
	return Value{kind: KindMapping, m: m}
}

func (m *mapping) set(name string, v Value) {
	if i, ok := m.index[name]; ok {
		m.vals[i] = v
		return
	}
	m.index[name] = len(m.keys)
	m.keys = append(m.keys, name)
	m.vals = append(m.vals, v)
}

func (m *mapping) clone(extra int) *mapping {
	cp := &mapping{
		keys:  make([]string, len(m.keys), len(m.keys)+extra),
		index: make(map[string]int, len(m.keys)+extra),
		vals:  make([]Value, len(m.vals), len(m.vals)+extra),
	}
	copy(cp.keys, m.keys)
	copy(cp.vals, m.vals)
	for k, i := range m.index {
		cp.index[k] = i
	}
	return cp
}

// Kind reports the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// IsUndefined reports whether v is the "not found" value.
func (v Value) IsUndefined() bool { return v.kind == KindUndefined }

// Len returns the number of items of a sequence, the number of pairs of a
// mapping, the rune count of a string and 0 for everything else.
func (v Value) Len() int {
	switch v.kind {
	case KindSequence:
		return len(v.seq)
	case KindMapping:
		return len(v.m.keys)
	case KindString:
		return len([]rune(v.str))
	}
	return 0
}

// Index returns the i-th item of a sequence, or undefined when out of range
// or when v is not a sequence.
func (v Value) Index(i int) Value {
	if v.kind != KindSequence || i < 0 || i >= len(v.seq) {
		return Value{}
	}
	return v.seq[i]
}

// Items returns a copy of the items of a sequence.
func (v Value) Items() []Value {
	if v.kind != KindSequence {
		return nil
	}
	cp := make([]Value, len(v.seq))
	copy(cp, v.seq)
	return cp
}

// Get returns the value stored under name in a mapping.
func (v Value) Get(name string) (Value, bool) {
	if v.kind != KindMapping {
		return Value{}, false
	}
	i, ok := v.m.index[name]
	if !ok {
		return Value{}, false
	}
	return v.m.vals[i], true
}

// Keys returns the names of a mapping in order.
func (v Value) Keys() []string {
	if v.kind != KindMapping {
		return nil
	}
	cp := make([]string, len(v.m.keys))
	copy(cp, v.m.keys)
	return cp
}

// Pairs returns the entries of a mapping in order.
func (v Value) Pairs() []Pair {
	if v.kind != KindMapping {
		return nil
	}
	pairs := make([]Pair, len(v.m.keys))
	for i, k := range v.m.keys {
		pairs[i] = Pair{Name: k, Value: v.m.vals[i]}
	}
	return pairs
}

// Lookup resolves a dot-separated path such as "client.address.city".
// Every step must land on a mapping holding the next segment; anything else
// (missing key, a sequence or a scalar in the middle of the path) yields
// (undefined, false). Lookup never fails loudly.
func (v Value) Lookup(path string) (Value, bool) {
	if path == "" {
		return Value{}, false
	}
	cur := v
	for {
		seg := path
		rest := ""
		if i := strings.IndexByte(path, '.'); i >= 0 {
			seg, rest = path[:i], path[i+1:]
		}
		next, ok := cur.Get(seg)
		if !ok {
			return Value{}, false
		}
		if rest == "" {
			return next, true
		}
		cur, path = next, rest
	}
}

// With returns a copy of the mapping v with name bound to val. The receiver
// is left untouched; undefined receivers are treated as empty mappings.
func (v Value) With(name string, val Value) Value {
	var m *mapping
	switch v.kind {
	case KindMapping:
		m = v.m.clone(1)
	default:
		m = &mapping{index: make(map[string]int, 1)}
	}
	m.set(name, val)
	return Value{kind: KindMapping, m: m}
}

// extend binds several names at once, cloning the mapping a single time.
func (v Value) extend(pairs ...Pair) Value {
	var m *mapping
	if v.kind == KindMapping {
		m = v.m.clone(len(pairs))
	} else {
		m = &mapping{index: make(map[string]int, len(pairs))}
	}
	for _, p := range pairs {
		m.set(p.Name, p.Value)
	}
	return Value{kind: KindMapping, m: m}
}

// SetPath returns a copy of v with val stored at the dot-separated path,
// creating intermediate mappings as needed. It fails when a segment other
// than the last one holds something that is not a mapping.
func (v Value) SetPath(path string, val Value) (Value, error) {
	if !isDotPath(path) {
		return Value{}, fmt.Errorf("cannot set %q: not a dot path", path)
	}
	out, err := v.setPath(path, val)
	if err != nil {
		return Value{}, fmt.Errorf("cannot set %q: %w", path, err)
	}
	return out, nil
}

func (v Value) setPath(path string, val Value) (Value, error) {
	if v.kind != KindMapping && v.kind != KindUndefined {
		return Value{}, fmt.Errorf("found a %s where a mapping was expected", v.kind)
	}
	head, rest, nested := strings.Cut(path, ".")
	if !nested {
		return v.With(head, val), nil
	}
	child, _ := v.Get(head)
	updated, err := child.setPath(rest, val)
	if err != nil {
		return Value{}, err
	}
	return v.With(head, updated), nil
}

// Truthy reports the truth value used by if-blocks: false, zero, the empty
// string, empty sequences and mappings and undefined are falsy.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindString:
		return v.str != ""
	case KindInt, KindBool:
		return v.num != 0
	case KindFloat:
		return v.flt != 0
	case KindSequence:
		return len(v.seq) > 0
	case KindMapping:
		return len(v.m.keys) > 0
	}
	return false
}

// AsString returns the string held by a string scalar.
func (v Value) AsString() (string, bool) {
	return v.str, v.kind == KindString
}

// AsInt returns the integer held by an int scalar.
func (v Value) AsInt() (int64, bool) {
	return v.num, v.kind == KindInt
}

// AsFloat returns the numeric value of an int or float scalar.
func (v Value) AsFloat() (float64, bool) {
	switch v.kind {
	case KindInt:
		return float64(v.num), true
	case KindFloat:
		return v.flt, true
	}
	return 0, false
}

// AsBool returns the boolean held by a bool value.
func (v Value) AsBool() (bool, bool) {
	return v.num != 0, v.kind == KindBool
}

// isNumber reports whether v is an int or a float.
func (v Value) isNumber() bool {
	return v.kind == KindInt || v.kind == KindFloat
}

// String renders v the way it appears in a document: strings verbatim,
// booleans as True/False, undefined as the empty string and containers in
// their Jinja repr form.
func (v Value) String() string {
	switch v.kind {
	case KindUndefined:
		return ""
	case KindString:
		return v.str
	}
	var sb strings.Builder
	v.writeRepr(&sb)
	return sb.String()
}

func (v Value) writeRepr(sb *strings.Builder) {
	switch v.kind {
	case KindUndefined:
		sb.WriteString("None")
	case KindString:
		sb.WriteByte('\'')
		for _, r := range v.str {
			switch r {
			case '\'':
				sb.WriteString(`\'`)
			case '\\':
				sb.WriteString(`\\`)
			case '\n':
				sb.WriteString(`\n`)
			default:
				sb.WriteRune(r)
			}
		}
		sb.WriteByte('\'')
	case KindInt:
		sb.WriteString(strconv.FormatInt(v.num, 10))
	case KindFloat:
		sb.WriteString(formatFloat(v.flt))
	case KindBool:
		if v.num != 0 {
			sb.WriteString("True")
		} else {
			sb.WriteString("False")
		}
	case KindSequence:
		sb.WriteByte('[')
		for i, item := range v.seq {
			if i > 0 {
				sb.WriteString(", ")
			}
			item.writeRepr(sb)
		}
		sb.WriteByte(']')
	case KindMapping:
		sb.WriteByte('{')
		for i, k := range v.m.keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			String(k).writeRepr(sb)
			sb.WriteString(": ")
			v.m.vals[i].writeRepr(sb)
		}
		sb.WriteByte('}')
	}
}

// formatFloat prints the shortest representation of f, keeping a trailing
// ".0" on integral values so 2.0 does not read as an integer.
func formatFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	case math.IsNaN(f):
		return "nan"
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}

// Interface converts v back to plain Go values: string, int64, float64,
// bool, []interface{}, map[string]interface{} and nil for undefined.
func (v Value) Interface() interface{} {
	switch v.kind {
	case KindString:
		return v.str
	case KindInt:
		return v.num
	case KindFloat:
		return v.flt
	case KindBool:
		return v.num != 0
	case KindSequence:
		out := make([]interface{}, len(v.seq))
		for i, item := range v.seq {
			out[i] = item.Interface()
		}
		return out
	case KindMapping:
		out := make(map[string]interface{}, len(v.m.keys))
		for i, k := range v.m.keys {
			out[k] = v.m.vals[i].Interface()
		}
		return out
	}
	return nil
}

// Equal reports deep equality. Ints and floats compare numerically.
func (v Value) Equal(o Value) bool {
	if v.isNumber() && o.isNumber() {
		if v.kind == KindInt && o.kind == KindInt {
			return v.num == o.num
		}
		a, _ := v.AsFloat()
		b, _ := o.AsFloat()
		return a == b
	}
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindUndefined:
		return true
	case KindString:
		return v.str == o.str
	case KindBool:
		return v.num == o.num
	case KindSequence:
		if len(v.seq) != len(o.seq) {
			return false
		}
		for i := range v.seq {
			if !v.seq[i].Equal(o.seq[i]) {
				return false
			}
		}
		return true
	case KindMapping:
		if len(v.m.keys) != len(o.m.keys) {
			return false
		}
		for i, k := range v.m.keys {
			ov, ok := o.Get(k)
			if !ok || !v.m.vals[i].Equal(ov) {
				return false
			}
		}
		return true
	}
	return false
}

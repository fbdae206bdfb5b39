package jinja

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// FilterFunc defines the signature for a filter function.
// input is the value to be filtered.
// args are the arguments passed to the filter.
type FilterFunc func(input Value, args ...Value) (Value, error)

type filterDef struct {
	minArgs, maxArgs int
	fn               FilterFunc
}

func (s filterDef) arity() string {
	switch {
	case s.minArgs == s.maxArgs && s.minArgs == 1:
		return "1 argument"
	case s.minArgs == s.maxArgs:
		return fmt.Sprintf("%d arguments", s.minArgs)
	default:
		return fmt.Sprintf("%d to %d arguments", s.minArgs, s.maxArgs)
	}
}

// builtinFilters is the complete, fixed filter set. Names are resolved when
// an expression is parsed, so an unknown filter never reaches evaluation.
var builtinFilters = map[string]filterDef{
	"default":    {1, 2, defaultFilter},
	"join":       {0, 1, joinFilter},
	"upper":      {0, 0, upperFilter},
	"lower":      {0, 0, lowerFilter},
	"capitalize": {0, 0, capitalizeFilter},
	"title":      {0, 0, titleFilter},
	"replace":    {2, 3, replaceFilter},
	"trim":       {0, 1, trimFilter},
	"length":     {0, 0, lengthFilter},
	"list":       {0, 0, listFilter},
}

// FilterNames returns the names of the available filters, sorted.
func FilterNames() []string {
	names := make([]string, 0, len(builtinFilters))
	for name := range builtinFilters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// defaultFilter implements the 'default' Jinja filter.
// The fallback is used when the input is undefined, or, with a truthy second
// argument, whenever the input is falsy.
// Usage: {{ party.name | default('the Buyer') }}
func defaultFilter(input Value, args ...Value) (Value, error) {
	if input.IsUndefined() {
		return args[0], nil
	}
	if len(args) > 1 && args[1].Truthy() && !input.Truthy() {
		return args[0], nil
	}
	return input, nil
}

// joinFilter implements the 'join' Jinja filter.
// Usage: {{ ['a', 'b', 'c'] | join(', ') }} -> "a, b, c"
func joinFilter(input Value, args ...Value) (Value, error) {
	delimiter := ""
	if len(args) > 0 {
		s, ok := args[0].AsString()
		if !ok {
			return Value{}, fmt.Errorf("%w: delimiter must be a string, got %s", ErrTypeMismatch, args[0].Kind())
		}
		delimiter = s
	}

	switch input.Kind() {
	case KindUndefined:
		return String(""), nil
	case KindString:
		return input, nil
	case KindSequence:
		parts := make([]string, len(input.seq))
		for i, item := range input.seq {
			parts[i] = item.String()
		}
		return String(strings.Join(parts, delimiter)), nil
	}
	return Value{}, fmt.Errorf("%w: join needs a sequence, got %s", ErrTypeMismatch, input.Kind())
}

// upperFilter implements the 'upper' Jinja filter.
// Usage: {{ 'Hello' | upper }} -> "HELLO"
func upperFilter(input Value, _ ...Value) (Value, error) {
	return String(strings.ToUpper(input.String())), nil
}

// lowerFilter implements the 'lower' Jinja filter.
func lowerFilter(input Value, _ ...Value) (Value, error) {
	return String(strings.ToLower(input.String())), nil
}

// capitalizeFilter implements the 'capitalize' Jinja filter.
// It capitalizes the first character of a string and lowercases the rest.
// Usage: {{ 'hello WORLD' | capitalize }} -> "Hello world"
func capitalizeFilter(input Value, _ ...Value) (Value, error) {
	str := input.String()
	if str == "" {
		return String(""), nil
	}
	r, size := utf8.DecodeRuneInString(str)
	return String(string(unicode.ToUpper(r)) + strings.ToLower(str[size:])), nil
}

// titleFilter implements the 'title' Jinja filter: every word starts with an
// upper case letter, the rest is lower case.
// Usage: {{ 'jane DOE' | title }} -> "Jane Doe"
func titleFilter(input Value, _ ...Value) (Value, error) {
	str := input.String()
	var b strings.Builder
	b.Grow(len(str))
	atWordStart := true
	for _, r := range str {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if atWordStart {
				b.WriteRune(unicode.ToUpper(r))
			} else {
				b.WriteRune(unicode.ToLower(r))
			}
			atWordStart = false
			continue
		}
		b.WriteRune(r)
		atWordStart = true
	}
	return String(b.String()), nil
}

// replaceFilter implements the 'replace' Jinja filter. An optional third
// argument limits the number of replacements.
// Usage: {{ 'Hello World' | replace('Hello', 'Hi') }} -> "Hi World"
func replaceFilter(input Value, args ...Value) (Value, error) {
	old, ok1 := args[0].AsString()
	repl, ok2 := args[1].AsString()
	if !ok1 || !ok2 {
		return Value{}, fmt.Errorf("%w: replace arguments must be strings", ErrTypeMismatch)
	}

	count := -1 // default: replace all
	if len(args) > 2 {
		n, ok := args[2].AsInt()
		if !ok {
			return Value{}, fmt.Errorf("%w: replace count must be an integer", ErrTypeMismatch)
		}
		count = int(n)
	}

	return String(strings.Replace(input.String(), old, repl, count)), nil
}

// trimFilter implements the 'trim' Jinja filter.
// Usage: {{ '  Hello  ' | trim }} -> "Hello"
// Usage: {{ 'xxHixx' | trim('x') }} -> "Hi"
func trimFilter(input Value, args ...Value) (Value, error) {
	str := input.String()
	if len(args) == 0 {
		return String(strings.TrimSpace(str)), nil
	}
	cutset, ok := args[0].AsString()
	if !ok {
		return Value{}, fmt.Errorf("%w: trim cutset must be a string", ErrTypeMismatch)
	}
	return String(strings.Trim(str, cutset)), nil
}

// lengthFilter implements the 'length' Jinja filter for strings, sequences
// and mappings. Undefined has length 0.
func lengthFilter(input Value, _ ...Value) (Value, error) {
	switch input.Kind() {
	case KindUndefined, KindString, KindSequence, KindMapping:
		return Int(int64(input.Len())), nil
	}
	return Value{}, fmt.Errorf("%w: %s has no length", ErrTypeMismatch, input.Kind())
}

// listFilter implements the 'list' Jinja filter.
// Strings become a list of characters, mappings a list of their keys.
// Usage: {{ 'abc' | list }} -> ['a', 'b', 'c']
func listFilter(input Value, _ ...Value) (Value, error) {
	switch input.Kind() {
	case KindUndefined:
		return Seq(), nil
	case KindSequence:
		return input, nil
	case KindString:
		items := make([]Value, 0, len(input.str))
		for _, r := range input.str {
			items = append(items, String(string(r)))
		}
		return Value{kind: KindSequence, seq: items}, nil
	case KindMapping:
		items := make([]Value, len(input.m.keys))
		for i, k := range input.m.keys {
			items[i] = String(k)
		}
		return Value{kind: KindSequence, seq: items}, nil
	}
	return Value{kind: KindSequence, seq: []Value{input}}, nil
}

// Package contextfile reads and writes the structured context documents are
// rendered against. Files may be JSON or YAML; key order is preserved in
// both directions so saved contexts diff cleanly.
package contextfile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	jinja "github.com/AlexanderGrooff/legaldoc-jinja"
)

// maxDepth bounds nesting of decoded documents, including YAML aliases.
const maxDepth = 100

var errTooDeep = errors.New("document nests too deeply")

// Load reads the file at path and decodes it with Decode.
func Load(path string) (jinja.Value, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return jinja.Value{}, fmt.Errorf("contextfile: read %s: %w", path, err)
	}
	return Decode(data, path)
}

// Decode parses a JSON or YAML document whose root is a mapping. source is
// only used in error messages.
func Decode(data []byte, source string) (jinja.Value, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return jinja.Value{}, fmt.Errorf("contextfile: file %s is empty", source)
	}

	var (
		v   jinja.Value
		err error
	)
	// JSON first; a syntax error may still be a YAML flow mapping.
	var syntaxErr *json.SyntaxError
	if trimmed[0] == '{' {
		v, err = decodeJSON(trimmed)
	}
	if trimmed[0] != '{' || errors.As(err, &syntaxErr) {
		v, err = decodeYAML(data)
	}
	if err != nil {
		return jinja.Value{}, fmt.Errorf("contextfile: parse %s: %w", source, err)
	}
	if v.Kind() != jinja.KindMapping {
		return jinja.Value{}, fmt.Errorf("contextfile: parse %s: root must be a mapping, got %s", source, v.Kind())
	}
	return v, nil
}

func decodeJSON(data []byte) (jinja.Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := jsonValue(dec, 0)
	if err != nil {
		return jinja.Value{}, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return jinja.Value{}, errors.New("unexpected data after the top-level value")
	}
	return v, nil
}

func jsonValue(dec *json.Decoder, depth int) (jinja.Value, error) {
	if depth > maxDepth {
		return jinja.Value{}, errTooDeep
	}
	tok, err := dec.Token()
	if err != nil {
		return jinja.Value{}, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			var pairs []jinja.Pair
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return jinja.Value{}, err
				}
				key, _ := keyTok.(string)
				val, err := jsonValue(dec, depth+1)
				if err != nil {
					return jinja.Value{}, err
				}
				pairs = append(pairs, jinja.Pair{Name: key, Value: val})
			}
			if _, err := dec.Token(); err != nil {
				return jinja.Value{}, err
			}
			return jinja.Map(pairs...), nil
		case '[':
			var items []jinja.Value
			for dec.More() {
				val, err := jsonValue(dec, depth+1)
				if err != nil {
					return jinja.Value{}, err
				}
				items = append(items, val)
			}
			if _, err := dec.Token(); err != nil {
				return jinja.Value{}, err
			}
			return jinja.Seq(items...), nil
		}
		return jinja.Value{}, fmt.Errorf("unexpected %v", t)
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return jinja.Int(i), nil
		}
		f, err := t.Float64()
		if err != nil {
			return jinja.Value{}, fmt.Errorf("invalid number %s", t)
		}
		return jinja.Float(f), nil
	case string:
		return jinja.String(t), nil
	case bool:
		return jinja.Bool(t), nil
	case nil:
		return jinja.Undefined(), nil
	}
	return jinja.Value{}, fmt.Errorf("unexpected token %v", tok)
}

func decodeYAML(data []byte) (jinja.Value, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return jinja.Value{}, err
	}
	return yamlValue(&doc, 0)
}

func yamlValue(n *yaml.Node, depth int) (jinja.Value, error) {
	if depth > maxDepth {
		return jinja.Value{}, errTooDeep
	}
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return jinja.Undefined(), nil
		}
		return yamlValue(n.Content[0], depth)
	case yaml.AliasNode:
		return yamlValue(n.Alias, depth+1)
	case yaml.MappingNode:
		pairs := make([]jinja.Pair, 0, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			key, val := n.Content[i], n.Content[i+1]
			if key.Kind != yaml.ScalarNode {
				return jinja.Value{}, fmt.Errorf("line %d: mapping keys must be scalars", key.Line)
			}
			v, err := yamlValue(val, depth+1)
			if err != nil {
				return jinja.Value{}, err
			}
			pairs = append(pairs, jinja.Pair{Name: key.Value, Value: v})
		}
		return jinja.Map(pairs...), nil
	case yaml.SequenceNode:
		items := make([]jinja.Value, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := yamlValue(c, depth+1)
			if err != nil {
				return jinja.Value{}, err
			}
			items = append(items, v)
		}
		return jinja.Seq(items...), nil
	case yaml.ScalarNode:
		return yamlScalar(n)
	}
	return jinja.Value{}, fmt.Errorf("line %d: unsupported node", n.Line)
}

func yamlScalar(n *yaml.Node) (jinja.Value, error) {
	switch n.ShortTag() {
	case "!!null":
		return jinja.Undefined(), nil
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return jinja.Value{}, err
		}
		return jinja.Bool(b), nil
	case "!!int":
		var i int64
		if err := n.Decode(&i); err == nil {
			return jinja.Int(i), nil
		}
		var f float64
		if err := n.Decode(&f); err != nil {
			return jinja.Value{}, err
		}
		return jinja.Float(f), nil
	case "!!float":
		var f float64
		if err := n.Decode(&f); err != nil {
			return jinja.Value{}, err
		}
		return jinja.Float(f), nil
	}
	// Strings, timestamps and anything custom-tagged keep their source text.
	return jinja.String(n.Value), nil
}

// Marshal encodes v as YAML, keeping mapping order.
func Marshal(v jinja.Value) ([]byte, error) {
	if v.Kind() != jinja.KindMapping {
		return nil, fmt.Errorf("contextfile: root must be a mapping, got %s", v.Kind())
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(toNode(v)); err != nil {
		return nil, fmt.Errorf("contextfile: encode: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("contextfile: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// Save writes v to path as YAML.
func Save(path string, v jinja.Value) error {
	data, err := Marshal(v)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("contextfile: write %s: %w", path, err)
	}
	return nil
}

func toNode(v jinja.Value) *yaml.Node {
	switch v.Kind() {
	case jinja.KindMapping:
		n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		for _, p := range v.Pairs() {
			n.Content = append(n.Content, scalar("!!str", p.Name), toNode(p.Value))
		}
		return n
	case jinja.KindSequence:
		n := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, item := range v.Items() {
			n.Content = append(n.Content, toNode(item))
		}
		return n
	case jinja.KindString:
		s, _ := v.AsString()
		return scalar("!!str", s)
	case jinja.KindInt:
		i, _ := v.AsInt()
		return scalar("!!int", strconv.FormatInt(i, 10))
	case jinja.KindFloat:
		f, _ := v.AsFloat()
		return scalar("!!float", formatFloat(f))
	case jinja.KindBool:
		b, _ := v.AsBool()
		return scalar("!!bool", strconv.FormatBool(b))
	}
	return scalar("!!null", "null")
}

func scalar(tag, value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: value}
}

// formatFloat keeps a decimal point on integral values so they read back
// as floats.
func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return ".nan"
	case math.IsInf(f, 1):
		return ".inf"
	case math.IsInf(f, -1):
		return "-.inf"
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}

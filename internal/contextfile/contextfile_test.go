package contextfile

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	jinja "github.com/AlexanderGrooff/legaldoc-jinja"
)

func TestDecode(t *testing.T) {
	want := jinja.Map(
		jinja.Pair{Name: "seller", Value: jinja.Map(
			jinja.Pair{Name: "name", Value: jinja.String("ACME NV")},
			jinja.Pair{Name: "vat", Value: jinja.String("BE0123")},
		)},
		jinja.Pair{Name: "price", Value: jinja.Float(1250.5)},
		jinja.Pair{Name: "units", Value: jinja.Int(3)},
		jinja.Pair{Name: "signed", Value: jinja.Bool(true)},
		jinja.Pair{Name: "witness", Value: jinja.Undefined()},
		jinja.Pair{Name: "clauses", Value: jinja.Seq(jinja.String("a"), jinja.String("b"))},
	)

	tests := []struct {
		name string
		data string
	}{
		{
			name: "json",
			data: `{"seller": {"name": "ACME NV", "vat": "BE0123"}, "price": 1250.5, "units": 3,
				"signed": true, "witness": null, "clauses": ["a", "b"]}`,
		},
		{
			name: "yaml",
			data: `seller:
  name: ACME NV
  vat: BE0123
price: 1250.5
units: 3
signed: true
witness: ~
clauses:
  - a
  - b
`,
		},
		{
			name: "yaml flow",
			data: `{seller: {name: ACME NV, vat: BE0123}, price: 1250.5, units: 3, signed: true, witness: null, clauses: [a, b]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.data), tt.name)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if !got.Equal(want) {
				t.Errorf("Decode() = %s, want %s", got, want)
			}
			if diff := cmp.Diff(want.Keys(), got.Keys()); diff != "" {
				t.Errorf("key order mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecodeYAMLScalars(t *testing.T) {
	got, err := Decode([]byte("date: 2024-03-01\nquoted: \"42\"\nhex: 0x10\nbig: 1e3\nanchor: &a x\nref: *a\n"), "scalars")
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	want := map[string]jinja.Value{
		"date":   jinja.String("2024-03-01"),
		"quoted": jinja.String("42"),
		"hex":    jinja.Int(16),
		"big":    jinja.Float(1000),
		"anchor": jinja.String("x"),
		"ref":    jinja.String("x"),
	}
	for key, w := range want {
		v, ok := got.Get(key)
		if !ok || !v.Equal(w) || v.Kind() != w.Kind() {
			t.Errorf("%s = %s (%s), want %s (%s)", key, v, v.Kind(), w, w.Kind())
		}
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantMsg string
	}{
		{"empty", "  \n", "is empty"},
		{"sequence root", "- a\n- b\n", "root must be a mapping"},
		{"scalar root", "hello", "root must be a mapping"},
		{"broken json", `{"a": [1, }`, "contextfile: parse"},
		{"trailing json", `{"a": 1} {"b": 2}`, "unexpected data"},
		{"broken yaml", "a: [1, 2\n", "contextfile: parse"},
		{"complex key", "? [a, b]\n: c\n", "keys must be scalars"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.data), tt.name)
			if err == nil {
				t.Fatal("Decode() error = nil")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("Decode() error = %q, want it to contain %q", err, tt.wantMsg)
			}
		})
	}
}

func TestDecodeTooDeep(t *testing.T) {
	data := strings.Repeat(`{"a":`, maxDepth+5) + "1" + strings.Repeat("}", maxDepth+5)
	_, err := Decode([]byte(data), "deep")
	if !errors.Is(err, errTooDeep) {
		t.Errorf("Decode() error = %v, want %v", err, errTooDeep)
	}
}

func TestMarshal(t *testing.T) {
	v := jinja.Map(
		jinja.Pair{Name: "zeta", Value: jinja.String("true")},
		jinja.Pair{Name: "alpha", Value: jinja.Int(7)},
		jinja.Pair{Name: "ratio", Value: jinja.Float(2)},
		jinja.Pair{Name: "ok", Value: jinja.Bool(false)},
		jinja.Pair{Name: "none", Value: jinja.Undefined()},
		jinja.Pair{Name: "list", Value: jinja.Seq(jinja.String("x"))},
	)
	data, err := Marshal(v)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want := `zeta: "true"
alpha: 7
ratio: 2.0
ok: false
none: null
list:
  - x
`
	if diff := cmp.Diff(want, string(data)); diff != "" {
		t.Errorf("Marshal() mismatch (-want +got):\n%s", diff)
	}

	back, err := Decode(data, "marshalled")
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if !back.Equal(v) {
		t.Errorf("Decode(Marshal(v)) = %s, want %s", back, v)
	}
	if r, _ := back.Get("ratio"); r.Kind() != jinja.KindFloat {
		t.Errorf("ratio decoded as %s, want float", r.Kind())
	}
}

func TestMarshalRejectsNonMapping(t *testing.T) {
	if _, err := Marshal(jinja.Seq()); err == nil {
		t.Error("Marshal(sequence) error = nil")
	}
}

func TestLoadAndSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ctx.yaml")

	v := jinja.Map(jinja.Pair{Name: "client", Value: jinja.Map(jinja.Pair{Name: "name", Value: jinja.String("Jan")})})
	if err := Save(path, v); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !got.Equal(v) {
		t.Errorf("Load() = %s, want %s", got, v)
	}

	_, err = Load(filepath.Join(dir, "missing.json"))
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Load(missing) error = %v, want fs.ErrNotExist", err)
	}

	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load(empty) error = nil")
	}
}

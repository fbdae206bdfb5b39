package jinja

import (
	"testing"

	"github.com/flosch/pongo2/v6"
)

// conformanceCase is a template accepted by both engines. pongo2 spells
// loop metadata and filter arguments differently, so a case may carry a
// separate pongo2 rendition of the same template.
type conformanceCase struct {
	name     string
	template string
	pongo    string
	context  map[string]interface{}
}

func (c conformanceCase) pongoTemplate() string {
	if c.pongo != "" {
		return c.pongo
	}
	return c.template
}

var conformanceCases = []conformanceCase{
	{
		name:     "variable",
		template: "Hello, {{ name }}!",
		context:  map[string]interface{}{"name": "World"},
	},
	{
		name:     "nested path",
		template: "{{ client.address.city }}",
		context: map[string]interface{}{
			"client": map[string]interface{}{"address": map[string]interface{}{"city": "Antwerp"}},
		},
	},
	{
		name:     "missing variable",
		template: "[{{ missing }}]",
	},
	{
		name:     "integer",
		template: "{{ n }} items",
		context:  map[string]interface{}{"n": 7},
	},
	{
		name:     "if else",
		template: "{% if flag %}Yes{% else %}No{% endif %}",
		context:  map[string]interface{}{"flag": false},
	},
	{
		name:     "elif",
		template: "{% if n > 10 %}big{% elif n > 5 %}medium{% else %}small{% endif %}",
		context:  map[string]interface{}{"n": 7},
	},
	{
		name:     "logic",
		template: "{% if flag and n > 1 %}ok{% endif %}{% if not flag or n == 7 %}!{% endif %}",
		context:  map[string]interface{}{"flag": true, "n": 7},
	},
	{
		name:     "for",
		template: "{% for x in xs %}{{ x }},{% endfor %}",
		context:  map[string]interface{}{"xs": []interface{}{"a", "b", "c"}},
	},
	{
		name:     "loop metadata",
		template: "{% for x in xs %}{{ loop.index }}:{{ x }}{% if not loop.last %} {% endif %}{% endfor %}",
		pongo:    "{% for x in xs %}{{ forloop.Counter }}:{{ x }}{% if not forloop.Last %} {% endif %}{% endfor %}",
		context:  map[string]interface{}{"xs": []interface{}{"p", "q", "r"}},
	},
	{
		name:     "nested blocks",
		template: "{% for p in parties %}{% if p.signed %}{{ p.name }};{% endif %}{% endfor %}",
		context: map[string]interface{}{"parties": []interface{}{
			map[string]interface{}{"name": "Seller", "signed": true},
			map[string]interface{}{"name": "Buyer", "signed": false},
			map[string]interface{}{"name": "Notary", "signed": true},
		}},
	},
	{
		name:     "case filters",
		template: "{{ name | upper }} / {{ name | lower }} / {{ name | title }}",
		pongo:    "{{ name|upper }} / {{ name|lower }} / {{ name|title }}",
		context:  map[string]interface{}{"name": "jOHN smith"},
	},
	{
		name:     "join",
		template: "{{ xs | join(', ') }}",
		pongo:    `{{ xs|join:", " }}`,
		context:  map[string]interface{}{"xs": []interface{}{"a", "b"}},
	},
	{
		name:     "length",
		template: "{{ xs | length }}",
		pongo:    "{{ xs|length }}",
		context:  map[string]interface{}{"xs": []interface{}{"a", "b", "c"}},
	},
	{
		name:     "default on missing",
		template: "{{ missing | default('n/a') }}",
		pongo:    `{{ missing|default:"n/a" }}`,
	},
}

func TestPongo2Conformance(t *testing.T) {
	for _, tc := range conformanceCases {
		t.Run(tc.name, func(t *testing.T) {
			tpl, err := pongo2.FromString(tc.pongoTemplate())
			if err != nil {
				t.Fatalf("pongo2.FromString() error = %v", err)
			}
			want, err := tpl.Execute(pongo2.Context(tc.context))
			if err != nil {
				t.Fatalf("pongo2 Execute() error = %v", err)
			}

			got, err := TemplateString(tc.template, tc.context)
			if err != nil {
				t.Fatalf("TemplateString() error = %v", err)
			}
			if got != want {
				t.Errorf("TemplateString() = %q, pongo2 = %q", got, want)
			}
		})
	}
}

func BenchmarkRender(b *testing.B) {
	for _, tc := range conformanceCases {
		ctx := MustFromGo(tc.context)
		b.Run(tc.name, func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				if _, err := Render(tc.template, ctx); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkPongo2(b *testing.B) {
	for _, tc := range conformanceCases {
		tpl, err := pongo2.FromString(tc.pongoTemplate())
		if err != nil {
			b.Fatal(err)
		}
		b.Run(tc.name, func(b *testing.B) {
			for i := 0; i < b.N; i++ {
				if _, err := tpl.Execute(pongo2.Context(tc.context)); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

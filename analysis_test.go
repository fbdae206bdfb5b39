package jinja

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestVariables(t *testing.T) {
	tests := []struct {
		name     string
		template string
		want     []Variable
	}{
		{
			name:     "no tags",
			template: "plain",
			want:     nil,
		},
		{
			name:     "values in order of appearance",
			template: "{{ b }} {{ a.x }} {{ b }}",
			want: []Variable{
				{Path: "b", Usage: UsageValue},
				{Path: "a.x", Usage: UsageValue},
			},
		},
		{
			name:     "usages are merged",
			template: "{% if client.vip %}{{ client.vip }}{% endif %}",
			want: []Variable{
				{Path: "client.vip", Usage: UsageCondition | UsageValue},
			},
		},
		{
			name:     "loop variables are not free",
			template: "{% for p in parties %}{{ p.name }} {{ loop.index }} {{ total }}{% endfor %}{{ p }}",
			want: []Variable{
				{Path: "parties", Usage: UsageIteration},
				{Path: "total", Usage: UsageValue},
				{Path: "p", Usage: UsageValue},
			},
		},
		{
			name:     "for else does not see the loop variable",
			template: "{% for x in xs %}{{ x }}{% else %}{{ x }}{% endfor %}",
			want: []Variable{
				{Path: "xs", Usage: UsageIteration},
				{Path: "x", Usage: UsageValue},
			},
		},
		{
			name:     "all branches are inspected",
			template: "{% if a > 1 %}{{ b }}{% elif c %}{{ d | default(e) }}{% else %}{{ f }}{% endif %}",
			want: []Variable{
				{Path: "a", Usage: UsageCondition},
				{Path: "b", Usage: UsageValue},
				{Path: "c", Usage: UsageCondition},
				{Path: "d", Usage: UsageValue},
				{Path: "e", Usage: UsageValue},
				{Path: "f", Usage: UsageValue},
			},
		},
		{
			name:     "literals contribute nothing",
			template: "{{ 'x' | upper }}{% if true %}{% endif %}",
			want:     nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Variables(tt.template)
			if err != nil {
				t.Fatalf("Variables() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Variables() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestVariablesValidatesWholeTemplate(t *testing.T) {
	tests := []struct {
		template string
		wantErr  error
	}{
		{"{% if false %}{% for x %}{% endfor %}{% endif %}", ErrMalformedTag},
		{"{% if false %}{{ a + }}{% endif %}", ErrInvalidExpression},
		{"{% for x in xs %}{% else %}{{ }}{% endfor %}", ErrInvalidExpression},
		{"{% if a %}", ErrUnclosedBlock},
		{"{% endfor %}", ErrBlockMismatch},
		{"{{ a | nope }}", ErrUnknownFilter},
	}
	for _, tt := range tests {
		t.Run(tt.template, func(t *testing.T) {
			_, err := Variables(tt.template)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Variables() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestUsageString(t *testing.T) {
	if got := (UsageValue | UsageIteration).String(); got != "value|iteration" {
		t.Errorf("String() = %q", got)
	}
	if got := Usage(0).String(); got != "none" {
		t.Errorf("String() = %q", got)
	}
}

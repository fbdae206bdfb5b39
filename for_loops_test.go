package jinja

import (
	"strings"
	"testing"
)

func TestForLoop(t *testing.T) {
	tests := []struct {
		name     string
		template string
		context  map[string]interface{}
		want     string
		wantErr  bool
	}{
		{
			name:     "simple for loop over slice",
			template: "{% for item in items %}{{ item }},{% endfor %}",
			context: map[string]interface{}{
				"items": []interface{}{"a", "b", "c"},
			},
			want: "a,b,c,",
		},
		{
			name:     "for loop over empty list",
			template: "Items: {% for item in items %}{{ item }},{% endfor %}",
			context: map[string]interface{}{
				"items": []interface{}{},
			},
			want: "Items: ",
		},
		{
			name:     "for loop with loop variable",
			template: "{% for i in items %}{{ loop.index }}:{{ i }},{% endfor %}",
			context: map[string]interface{}{
				"items": []interface{}{10, 20, 30},
			},
			want: "1:10,2:20,3:30,",
		},
		{
			name:     "all loop fields",
			template: "{% for i in items %}[{{ loop.index0 }} {{ loop.first }} {{ loop.last }} {{ loop.length }} {{ loop.revindex }} {{ loop.revindex0 }}]{% endfor %}",
			context: map[string]interface{}{
				"items": []interface{}{"x", "y"},
			},
			want: "[0 True False 2 2 1][1 False True 2 1 0]",
		},
		{
			name:     "for loop with conditional",
			template: "{% for i in items %}{% if loop.index > 1 %},{% endif %}{{ i }}{% endfor %}",
			context: map[string]interface{}{
				"items": []interface{}{10, 20, 30},
			},
			want: "10,20,30",
		},
		{
			name:     "nested for loops",
			template: "{% for i in outer %}[{% for j in inner %}{{ i }}-{{ j }}{% if not loop.last %},{% endif %}{% endfor %}]{% endfor %}",
			context: map[string]interface{}{
				"outer": []interface{}{"a", "b"},
				"inner": []interface{}{1, 2, 3},
			},
			want: "[a-1,a-2,a-3][b-1,b-2,b-3]",
		},
		{
			name:     "inner loop shadows outer loop metadata",
			template: "{% for i in outer %}{% for j in inner %}{{ loop.length }}{% endfor %}{{ loop.length }};{% endfor %}",
			context: map[string]interface{}{
				"outer": []interface{}{"a", "b", "c"},
				"inner": []interface{}{1},
			},
			want: "13;13;13;",
		},
		{
			name:     "loop over nested path",
			template: "{% for line in invoice.lines %}{{ line.qty }}x {{ line.desc }}\n{% endfor %}",
			context: map[string]interface{}{
				"invoice": map[string]interface{}{
					"lines": []interface{}{
						map[string]interface{}{"qty": 2, "desc": "Widget"},
						map[string]interface{}{"qty": 1, "desc": "Gadget"},
					},
				},
			},
			want: "2x Widget\n1x Gadget\n",
		},
		{
			name:     "loop variable shadows context entry",
			template: "{% for name in names %}{{ name }}{% endfor %}/{{ name }}",
			context: map[string]interface{}{
				"name":  "outer",
				"names": []interface{}{"x", "y"},
			},
			want: "xy/outer",
		},
		{
			name:     "for else on empty sequence",
			template: "{% for c in clauses %}{{ c }}{% else %}No special clauses.{% endfor %}",
			context: map[string]interface{}{
				"clauses": []interface{}{},
			},
			want: "No special clauses.",
		},
		{
			name:     "for else is skipped when there are items",
			template: "{% for c in clauses %}{{ c }}{% else %}none{% endfor %}",
			context: map[string]interface{}{
				"clauses": []interface{}{"A"},
			},
			want: "A",
		},
		{
			name:     "iterable expression with filter",
			template: "{% for ch in word | list %}{{ ch }}.{% endfor %}",
			context: map[string]interface{}{
				"word": "abc",
			},
			want: "a.b.c.",
		},
		{
			name:     "sequence of sequences",
			template: "{% for row in rows %}{{ row | join('-') }};{% endfor %}",
			context: map[string]interface{}{
				"rows": [][]int{{1, 2}, {3}},
			},
			want: "1-2;3;",
		},
		{
			name:     "for loop over string is an error",
			template: "{% for char in text %}{{ char }}{% endfor %}",
			context: map[string]interface{}{
				"text": "abc",
			},
			wantErr: true,
		},
		{
			name:     "for loop over map is an error",
			template: "{% for value in user %}{{ value }}{% endfor %}",
			context: map[string]interface{}{
				"user": map[string]interface{}{"name": "Alice"},
			},
			wantErr: true,
		},
		{
			name:     "key value unpacking is not supported",
			template: "{% for k, v in user %}{% endfor %}",
			context: map[string]interface{}{
				"user": map[string]interface{}{"name": "Alice"},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := TemplateString(tt.template, tt.context)
			if (err != nil) != tt.wantErr {
				t.Fatalf("TemplateString() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("TemplateString() got = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestForLoopComplex(t *testing.T) {
	template := `Users:
{% for user in users %}
Username: {{ user.username }}
Email: {{ user.email }}
Roles: {% for role in user.permissions.roles %}{{ role }}{% if not loop.last %}, {% endif %}{% endfor %}
{% endfor %}`

	context := map[string]interface{}{
		"users": []interface{}{
			map[string]interface{}{
				"username": "admin",
				"email":    "admin@example.com",
				"permissions": map[string]interface{}{
					"roles": []interface{}{"admin", "editor"},
				},
			},
			map[string]interface{}{
				"username": "guest",
				"email":    "guest@example.com",
				"permissions": map[string]interface{}{
					"roles": []interface{}{"viewer"},
				},
			},
		},
	}

	want := `Users:

Username: admin
Email: admin@example.com
Roles: admin, editor

Username: guest
Email: guest@example.com
Roles: viewer
`

	got, err := TemplateString(template, context)
	if err != nil {
		t.Fatalf("TemplateString() error = %v", err)
	}
	if got != want {
		t.Errorf("TemplateString() mismatch\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestForLoopLarge(t *testing.T) {
	items := make([]int, 1000)
	for i := range items {
		items[i] = i
	}
	got, err := TemplateString("{% for i in items %}{% if loop.last %}{{ loop.index }}{% endif %}{% endfor %}", map[string]interface{}{"items": items})
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(got) != "1000" {
		t.Errorf("got %q, want 1000", got)
	}
}

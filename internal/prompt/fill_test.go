package prompt

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	jinja "github.com/AlexanderGrooff/legaldoc-jinja"
)

type fakeDriver struct {
	inputs    []string
	confirms  []bool
	textAreas []string
	err       error

	messages []string
}

func (f *fakeDriver) Input(_ context.Context, cfg InputConfig) (string, error) {
	f.messages = append(f.messages, "input:"+cfg.Message)
	if f.err != nil {
		return "", f.err
	}
	out := f.inputs[0]
	f.inputs = f.inputs[1:]
	return out, nil
}

func (f *fakeDriver) Confirm(_ context.Context, cfg ConfirmConfig) (bool, error) {
	f.messages = append(f.messages, "confirm:"+cfg.Message)
	if f.err != nil {
		return false, f.err
	}
	out := f.confirms[0]
	f.confirms = f.confirms[1:]
	return out, nil
}

func (f *fakeDriver) TextArea(_ context.Context, cfg TextAreaConfig) (string, error) {
	f.messages = append(f.messages, "textarea:"+cfg.Message)
	if f.err != nil {
		return "", f.err
	}
	out := f.textAreas[0]
	f.textAreas = f.textAreas[1:]
	return out, nil
}

const contract = "{{ client.name }} {% if vip %}VIP{% endif %}" +
	"{% for c in clauses %}[{{ c }}]{% endfor %} {{ price * 2 }}" +
	"{% if client %}.{% endif %}"

func TestFill(t *testing.T) {
	driver := &fakeDriver{
		inputs:    []string{"Jan"},
		confirms:  []bool{true},
		textAreas: []string{"a\n\n  b \n"},
	}
	f := &Filler{Driver: driver}
	data := jinja.Map(jinja.Pair{Name: "price", Value: jinja.Int(10)})

	got, asked, err := f.Fill(context.Background(), contract, data)
	if err != nil {
		t.Fatalf("Fill() error = %v", err)
	}
	if diff := cmp.Diff([]string{"client.name", "vip", "clauses"}, asked); diff != "" {
		t.Errorf("asked mismatch (-want +got):\n%s", diff)
	}
	wantPrompts := []string{
		"input:client.name",
		"confirm:vip?",
		"textarea:clauses (one item per line)",
	}
	if diff := cmp.Diff(wantPrompts, driver.messages); diff != "" {
		t.Errorf("prompts mismatch (-want +got):\n%s", diff)
	}

	out, err := jinja.New(jinja.WithUndefined(jinja.UndefinedStrict)).Render(contract, got)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if want := "Jan VIP[a][b] 20."; out != want {
		t.Errorf("Render() = %q, want %q", out, want)
	}

	if p, _ := data.Lookup("client.name"); !p.IsUndefined() {
		t.Error("Fill() modified its input")
	}
}

func TestFillNothingMissing(t *testing.T) {
	driver := &fakeDriver{}
	f := &Filler{Driver: driver}
	data := jinja.MustFromGo(map[string]interface{}{"name": "x"})

	got, asked, err := f.Fill(context.Background(), "{{ name }}", data)
	if err != nil {
		t.Fatalf("Fill() error = %v", err)
	}
	if len(asked) != 0 || len(driver.messages) != 0 {
		t.Errorf("Fill() asked %v via %v, want nothing", asked, driver.messages)
	}
	if !got.Equal(data) {
		t.Errorf("Fill() = %s, want %s", got, data)
	}
}

func TestFillErrors(t *testing.T) {
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name     string
		ctx      context.Context
		template string
		data     jinja.Value
		driver   *fakeDriver
		wantErr  error
	}{
		{
			name:     "aborted",
			ctx:      context.Background(),
			template: "{{ a }}",
			driver:   &fakeDriver{err: ErrAborted},
			wantErr:  ErrAborted,
		},
		{
			name:     "cancelled",
			ctx:      cancelled,
			template: "{{ a }}",
			driver:   &fakeDriver{},
			wantErr:  context.Canceled,
		},
		{
			name:     "broken template",
			ctx:      context.Background(),
			template: "{% if a %}",
			driver:   &fakeDriver{},
			wantErr:  jinja.ErrUnclosedBlock,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &Filler{Driver: tt.driver}
			_, _, err := f.Fill(tt.ctx, tt.template, tt.data)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Fill() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	f := &Filler{Driver: &fakeDriver{}}
	if _, _, err := f.Fill(context.Background(), "{{ a }}", jinja.Seq()); err == nil {
		t.Error("Fill(sequence) error = nil")
	}
}

func TestScalarFromInput(t *testing.T) {
	tests := []struct {
		in   string
		want jinja.Value
		kind jinja.Kind
	}{
		{"42", jinja.Int(42), jinja.KindInt},
		{" -7 ", jinja.Int(-7), jinja.KindInt},
		{"12.50", jinja.Float(12.5), jinja.KindFloat},
		{"0042", jinja.String("0042"), jinja.KindString},
		{"1e3", jinja.String("1e3"), jinja.KindString},
		{"BE 0123.456", jinja.String("BE 0123.456"), jinja.KindString},
		{"", jinja.String(""), jinja.KindString},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := scalarFromInput(tt.in)
			if got.Kind() != tt.kind || !got.Equal(tt.want) {
				t.Errorf("scalarFromInput(%q) = %s (%s), want %s", tt.in, got, got.Kind(), tt.want)
			}
		})
	}
}

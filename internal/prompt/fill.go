package prompt

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	jinja "github.com/AlexanderGrooff/legaldoc-jinja"
)

// Filler prompts for the free variables of a template that are missing
// from a context.
type Filler struct {
	Driver Driver
	Logger *slog.Logger
}

// Fill returns data extended with an answer for every missing variable of
// template, and the paths that were asked for, in template order.
//
// How a variable is asked for depends on how the template uses it: a pure
// condition is a yes/no question, an iterated variable takes one item per
// line and anything else is free text. A path that prefixes another free
// path is never asked for; answering the longer path creates it.
func (f *Filler) Fill(ctx context.Context, template string, data jinja.Value) (jinja.Value, []string, error) {
	if data.IsUndefined() {
		data = jinja.Map()
	}
	if data.Kind() != jinja.KindMapping {
		return jinja.Value{}, nil, fmt.Errorf("prompt: context is a %s, not a mapping", data.Kind())
	}
	vars, err := jinja.Variables(template)
	if err != nil {
		return jinja.Value{}, nil, err
	}

	var asked []string
	for _, v := range vars {
		if err := ctx.Err(); err != nil {
			return jinja.Value{}, nil, err
		}
		if _, ok := data.Lookup(v.Path); ok || isContainer(v.Path, vars) {
			continue
		}
		answer, err := f.ask(ctx, v)
		if err != nil {
			return jinja.Value{}, nil, fmt.Errorf("prompt: %s: %w", v.Path, err)
		}
		updated, err := data.SetPath(v.Path, answer)
		if err != nil {
			f.logger().Warn("cannot store answer", "path", v.Path, "error", err)
			continue
		}
		data = updated
		asked = append(asked, v.Path)
		f.logger().Debug("filled variable", "path", v.Path, "usage", v.Usage.String())
	}
	return data, asked, nil
}

func (f *Filler) ask(ctx context.Context, v jinja.Variable) (jinja.Value, error) {
	help := "used as " + v.Usage.String()
	switch {
	case v.Usage&jinja.UsageIteration != 0:
		text, err := f.Driver.TextArea(ctx, TextAreaConfig{
			Message: v.Path + " (one item per line)",
			Help:    help,
		})
		if err != nil {
			return jinja.Value{}, err
		}
		return splitLines(text), nil
	case v.Usage == jinja.UsageCondition:
		yes, err := f.Driver.Confirm(ctx, ConfirmConfig{Message: v.Path + "?", Help: help})
		if err != nil {
			return jinja.Value{}, err
		}
		return jinja.Bool(yes), nil
	}
	text, err := f.Driver.Input(ctx, InputConfig{Message: v.Path, Help: help})
	if err != nil {
		return jinja.Value{}, err
	}
	return scalarFromInput(text), nil
}

func (f *Filler) logger() *slog.Logger {
	if f.Logger != nil {
		return f.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func isContainer(path string, vars []jinja.Variable) bool {
	prefix := path + "."
	for _, v := range vars {
		if strings.HasPrefix(v.Path, prefix) {
			return true
		}
	}
	return false
}

func splitLines(text string) jinja.Value {
	var items []jinja.Value
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			items = append(items, jinja.String(line))
		}
	}
	return jinja.Seq(items...)
}

var decimalRe = regexp.MustCompile(`^-?(0|[1-9][0-9]*)\.[0-9]+$`)

// scalarFromInput reads canonical integers and decimals as numbers so
// templates can compute with them. Anything else, such as "0042" or
// "1e3", stays text.
func scalarFromInput(s string) jinja.Value {
	s = strings.TrimSpace(s)
	if i, err := strconv.ParseInt(s, 10, 64); err == nil && strconv.FormatInt(i, 10) == s {
		return jinja.Int(i)
	}
	if decimalRe.MatchString(s) {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return jinja.Float(f)
		}
	}
	return jinja.String(s)
}

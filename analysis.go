package jinja

import (
	"strings"
)

// Usage records how a template uses a context path.
type Usage uint8

// Usage flags. A path can be used in several ways at once.
const (
	UsageValue     Usage = 1 << iota // printed by {{ }}
	UsageCondition                   // tested by if/elif
	UsageIteration                   // iterated by for
)

func (u Usage) String() string {
	var parts []string
	if u&UsageValue != 0 {
		parts = append(parts, "value")
	}
	if u&UsageCondition != 0 {
		parts = append(parts, "condition")
	}
	if u&UsageIteration != 0 {
		parts = append(parts, "iteration")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// Variable is a context path referenced by a template.
type Variable struct {
	Path  string
	Usage Usage
}

// Variables lists the context paths a template reads, in order of first
// appearance. Paths rooted at a loop variable, or at loop inside a loop, are
// not listed. The whole template is checked, including branches that a given
// context would never render, so a nil error means the template is well
// formed.
func Variables(template string) ([]Variable, error) {
	a := &analyzer{src: template, index: make(map[string]int)}
	if err := a.walk(0, len(template), nil, 0); err != nil {
		return nil, err
	}
	return a.vars, nil
}

type analyzer struct {
	src   string
	vars  []Variable
	index map[string]int
}

func (a *analyzer) add(path string, usage Usage, bound []string) {
	root, _, _ := strings.Cut(path, ".")
	for _, name := range bound {
		if name == root {
			return
		}
	}
	if i, ok := a.index[path]; ok {
		a.vars[i].Usage |= usage
		return
	}
	a.index[path] = len(a.vars)
	a.vars = append(a.vars, Variable{Path: path, Usage: usage})
}

func (a *analyzer) expr(expr string, tag TagMatch, usage Usage, bound []string) error {
	node, err := ParseExpression(expr)
	if err != nil {
		return expressionError(a.src, tag, err)
	}
	walkPaths(node, func(path string) { a.add(path, usage, bound) })
	return nil
}

func (a *analyzer) walk(start, end int, bound []string, depth int) error {
	text := a.src[:end]
	scan := newTagScanner(text)
	pos := start
	for {
		tag, ok := scan.next(pos)
		if !ok {
			return nil
		}
		pos = tag.End

		if tag.Kind == TagInterp {
			if tag.Inner == "" {
				return newParseError(a.src, ErrInvalidExpression, tag, "empty expression")
			}
			if err := a.expr(tag.Inner, tag, UsageValue, bound); err != nil {
				return err
			}
			continue
		}

		kw := tag.Keyword()
		if err := checkKeyword(text, tag, kw); err != nil {
			return err
		}
		if !blockKinds[kw] {
			return strayTagError(text, tag, kw)
		}
		if depth >= DefaultMaxDepth {
			return newParseError(a.src, ErrTooDeep, tag, "more than %d nested blocks", DefaultMaxDepth)
		}

		closing, err := findBlockEnd(text, tag)
		if err != nil {
			return err
		}
		branches, err := splitBranches(text, tag, closing)
		if err != nil {
			return err
		}

		inner := bound
		if kw == "for" {
			item, iterable, err := parseForHeader(tag.Args())
			if err != nil {
				return newParseError(a.src, ErrMalformedTag, tag, "%v", err)
			}
			if err := a.expr(iterable, tag, UsageIteration, bound); err != nil {
				return err
			}
			inner = append(append([]string{}, bound...), item, "loop")
		}

		for i, b := range branches {
			scope := bound
			switch {
			case b.keyword == "if" || b.keyword == "elif":
				if b.header == "" {
					return newParseError(a.src, ErrMalformedTag, b.tag, "if requires a condition")
				}
				if err := a.expr(b.header, b.tag, UsageCondition, bound); err != nil {
					return err
				}
			case kw == "for" && i == 0:
				scope = inner
			}
			if err := a.walk(b.bodyStart, b.bodyEnd, scope, depth+1); err != nil {
				return err
			}
		}
		pos = closing.End
	}
}

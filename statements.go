package jinja

import (
	"fmt"
	"regexp"
	"strings"
)

// This file contains the logic for the control statements {% if %} and
// {% for %}: finding the tag that closes a block, splitting a block into its
// else/elif branches and evaluating both kinds of block.

// blockKinds lists the keywords that open a block. Each is closed by
// "end" + keyword.
var blockKinds = map[string]bool{
	"if":  true,
	"for": true,
}

// openBlock is an entry of the resolver stack.
type openBlock struct {
	kind string
	tag  TagMatch
}

// findBlockEnd returns the tag that closes the block opened by open. It keeps
// a stack of open blocks: openers push, an end tag must match the top of the
// stack and pops it. The block is closed once the stack is empty again.
//
// An end tag that does not match the innermost open block is a mismatch
// error. Running out of text reports the outermost block that is still open.
func findBlockEnd(text string, open TagMatch) (TagMatch, error) {
	stack := []openBlock{{kind: open.Keyword(), tag: open}}
	scan := newTagScanner(text)
	pos := open.End
	for {
		tag, ok := scan.nextBlock(pos)
		if !ok {
			outer := stack[0]
			return TagMatch{}, newParseError(text, ErrUnclosedBlock, outer.tag,
				"%s block opened at offset %d has no {%% end%s %%}", outer.kind, outer.tag.Start, outer.kind)
		}
		pos = tag.End

		kw, args := splitHeader(tag.Inner)
		switch {
		case blockKinds[kw]:
			stack = append(stack, openBlock{kind: kw, tag: tag})
		case strings.HasPrefix(kw, "end"):
			top := stack[len(stack)-1]
			if kw != "end"+top.kind {
				return TagMatch{}, newParseError(text, ErrBlockMismatch, tag,
					"expected {%% end%s %%} for the %s block opened at offset %d, found {%% %s %%}",
					top.kind, top.kind, top.tag.Start, kw)
			}
			if args != "" {
				return TagMatch{}, newParseError(text, ErrMalformedTag, tag, "%s takes no arguments", kw)
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return tag, nil
			}
		default:
			if err := checkKeyword(text, tag, kw); err != nil {
				return TagMatch{}, err
			}
		}
	}
}

// branch is one arm of a block: the opening header or an elif/else tag,
// followed by the body up to the next arm or the end tag.
type branch struct {
	keyword   string // "if", "elif", "else" or "for"
	header    string // condition or loop header, empty for else
	tag       TagMatch
	bodyStart int
	bodyEnd   int
}

// splitBranches divides the block between open and end into its branches.
// Only else/elif tags at nesting depth zero split the block; those inside
// nested blocks belong to them. for blocks accept a single else.
func splitBranches(text string, open, end TagMatch) ([]branch, error) {
	kind := open.Keyword()
	branches := []branch{{keyword: kind, header: open.Args(), tag: open, bodyStart: open.End}}

	depth := 0
	pos := open.End
	scan := newTagScanner(text[:end.Start])
	for {
		tag, ok := scan.nextBlock(pos)
		if !ok {
			break
		}
		pos = tag.End

		kw, args := splitHeader(tag.Inner)
		switch {
		case blockKinds[kw]:
			depth++
			continue
		case strings.HasPrefix(kw, "end"):
			depth--
			continue
		case depth > 0:
			continue
		}

		last := branches[len(branches)-1]
		switch kw {
		case "else":
			if last.keyword == "else" {
				return nil, newParseError(text, ErrMalformedTag, tag, "%s block has more than one else", kind)
			}
			if args != "" {
				return nil, newParseError(text, ErrMalformedTag, tag, "else takes no arguments")
			}
		case "elif":
			if kind != "if" {
				return nil, newParseError(text, ErrMalformedTag, tag, "elif is only allowed inside an if block")
			}
			if last.keyword == "else" {
				return nil, newParseError(text, ErrMalformedTag, tag, "elif after else")
			}
			if args == "" {
				return nil, newParseError(text, ErrMalformedTag, tag, "elif requires a condition")
			}
		default:
			continue
		}
		branches[len(branches)-1].bodyEnd = tag.Start
		branches = append(branches, branch{keyword: kw, header: args, tag: tag, bodyStart: tag.End})
	}
	branches[len(branches)-1].bodyEnd = end.Start
	return branches, nil
}

var forHeaderRe = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)\s+in\s+(\S.*)$`)

// parseForHeader splits "item in expression".
func parseForHeader(header string) (item, iterable string, err error) {
	m := forHeaderRe.FindStringSubmatch(header)
	if m == nil {
		return "", "", fmt.Errorf("expected 'for <name> in <expression>', got %q", "for "+header)
	}
	item, iterable = m[1], strings.TrimSpace(m[2])
	if keywords[item] {
		return "", "", fmt.Errorf("%q is a keyword and cannot be a loop variable", item)
	}
	if item == "loop" {
		return "", "", fmt.Errorf("'loop' is reserved for loop metadata")
	}
	return item, iterable, nil
}

// handleIfStatement renders the first branch of an if/elif/else chain whose
// condition holds. Every condition is parsed before any is evaluated so that
// a malformed elif fails regardless of the data.
func (r *renderer) handleIfStatement(sb *strings.Builder, ctx Value, open TagMatch, text string, depth int) (int, error) {
	end, err := findBlockEnd(text, open)
	if err != nil {
		return 0, err
	}
	branches, err := splitBranches(text, open, end)
	if err != nil {
		return 0, err
	}

	conds := make([]*ExprNode, len(branches))
	for i, b := range branches {
		if b.keyword == "else" {
			continue
		}
		if b.header == "" {
			return 0, newParseError(r.src, ErrMalformedTag, b.tag, "if requires a condition")
		}
		conds[i], err = r.parse(b.header, b.tag)
		if err != nil {
			return 0, err
		}
	}

	for i, b := range branches {
		if conds[i] != nil {
			v, err := r.eval(conds[i], ctx, b.header, b.tag)
			if err != nil {
				return 0, err
			}
			if !v.Truthy() {
				continue
			}
		}
		r.logger.Debug("if block", "offset", open.Start, "branch", i)
		return end.End, r.render(sb, ctx, b.bodyStart, b.bodyEnd, depth+1)
	}
	r.logger.Debug("if block", "offset", open.Start, "branch", -1)
	return end.End, nil
}

// handleForStatement renders the loop body once per item of the iterable,
// binding the item and the loop metadata. The else branch, if present, is
// rendered when the sequence is empty.
func (r *renderer) handleForStatement(sb *strings.Builder, ctx Value, open TagMatch, text string, depth int) (int, error) {
	end, err := findBlockEnd(text, open)
	if err != nil {
		return 0, err
	}
	branches, err := splitBranches(text, open, end)
	if err != nil {
		return 0, err
	}

	itemName, iterable, err := parseForHeader(open.Args())
	if err != nil {
		return 0, newParseError(r.src, ErrMalformedTag, open, "%v", err)
	}
	expr, err := r.parse(iterable, open)
	if err != nil {
		return 0, err
	}
	seq, err := r.eval(expr, ctx, iterable, open)
	if err != nil {
		return 0, err
	}
	if seq.Kind() != KindSequence {
		return 0, r.evalError(iterable, open, fmt.Errorf("%w: %q is %s", ErrNotIterable, iterable, describeKind(seq)))
	}

	body := branches[0]
	n := len(seq.seq)
	r.logger.Debug("for block", "offset", open.Start, "iterations", n)
	if n == 0 && len(branches) > 1 {
		return end.End, r.render(sb, ctx, branches[1].bodyStart, branches[1].bodyEnd, depth+1)
	}

	for i, item := range seq.seq {
		// index is 1-based, index0 0-based; revindex counts down to 1.
		loopInfo := Map(
			Pair{"index", Int(int64(i + 1))},
			Pair{"index0", Int(int64(i))},
			Pair{"first", Bool(i == 0)},
			Pair{"last", Bool(i == n-1)},
			Pair{"length", Int(int64(n))},
			Pair{"revindex", Int(int64(n - i))},
			Pair{"revindex0", Int(int64(n - i - 1))},
		)
		iterCtx := ctx.extend(Pair{itemName, item}, Pair{"loop", loopInfo})
		if err := r.render(sb, iterCtx, body.bodyStart, body.bodyEnd, depth+1); err != nil {
			return 0, err
		}
	}
	return end.End, nil
}

func describeKind(v Value) string {
	switch v.Kind() {
	case KindUndefined:
		return "undefined"
	case KindInt:
		return "an int"
	}
	return "a " + v.Kind().String()
}

// checkKeyword rejects block tags that are neither an opener, an end tag nor
// a branch tag.
func checkKeyword(text string, tag TagMatch, kw string) error {
	switch {
	case kw == "":
		return newParseError(text, ErrMalformedTag, tag, "empty block tag")
	case blockKinds[kw], kw == "else", kw == "elif", strings.HasPrefix(kw, "end"):
		return nil
	}
	return newParseError(text, ErrMalformedTag, tag, "unknown block tag %q", kw)
}

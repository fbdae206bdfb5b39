package jinja

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
)

// Sentinel causes carried by ParseError. Match them with errors.Is.
var (
	ErrUnclosedBlock     = errors.New("unclosed block")
	ErrBlockMismatch     = errors.New("mismatched block end")
	ErrMalformedTag      = errors.New("malformed tag")
	ErrInvalidExpression = errors.New("invalid expression")
	ErrTooDeep           = errors.New("nested too deeply")
	ErrUnknownFilter     = errors.New("unknown filter")
)

// Sentinel causes carried by EvaluationError.
var (
	ErrNotIterable       = errors.New("for loop over a non-sequence")
	ErrUndefined         = errors.New("undefined variable")
	ErrTypeMismatch      = errors.New("unsupported operand types")
	ErrDivisionByZero    = errors.New("division by zero")
	ErrContextNotMapping = errors.New("context must be a mapping")
)

// ErrInvalidUTF8 is returned by RenderFile for templates that are not UTF-8.
var ErrInvalidUTF8 = errors.New("template is not valid UTF-8")

// ParseError reports a structurally malformed template: an unclosed or
// mismatched block, a malformed block header or an expression that does not
// follow the grammar. It is never recovered from.
type ParseError struct {
	Kind   error  // one of the Err* parse sentinels
	Msg    string // human readable detail
	Tag    string // raw text of the offending tag, if any
	Offset int    // byte offset of the offending tag in the template
	Line   int
	Column int
}

func (e *ParseError) Error() string {
	var sb strings.Builder
	sb.WriteString("template parse error")
	if e.Line > 0 {
		fmt.Fprintf(&sb, " at line %d, column %d", e.Line, e.Column)
	}
	sb.WriteString(": ")
	if !strings.HasPrefix(e.Msg, e.Kind.Error()) {
		sb.WriteString(e.Kind.Error())
		if e.Msg != "" {
			sb.WriteString(": ")
		}
	}
	sb.WriteString(e.Msg)
	if e.Tag != "" {
		fmt.Fprintf(&sb, " (near %q)", e.Tag)
	}
	return sb.String()
}

func (e *ParseError) Unwrap() error { return e.Kind }

// EvaluationError reports a well-formed template that cannot be evaluated
// against the given context, such as a for loop over a scalar.
type EvaluationError struct {
	Expression string
	Offset     int
	Line       int
	Column     int
	Err        error
}

func (e *EvaluationError) Error() string {
	var sb strings.Builder
	sb.WriteString("template evaluation error")
	if e.Line > 0 {
		fmt.Fprintf(&sb, " at line %d, column %d", e.Line, e.Column)
	}
	if e.Expression != "" {
		fmt.Fprintf(&sb, " in %q", e.Expression)
	}
	fmt.Fprintf(&sb, ": %v", e.Err)
	return sb.String()
}

func (e *EvaluationError) Unwrap() error { return e.Err }

// FileNotFoundError is returned by RenderFile when the template path does
// not exist. It matches fs.ErrNotExist.
type FileNotFoundError struct {
	Path string
}

func (e *FileNotFoundError) Error() string {
	return fmt.Sprintf("template file not found: %s", e.Path)
}

func (e *FileNotFoundError) Is(target error) bool { return target == fs.ErrNotExist }

// IsParseError reports whether err is or wraps a *ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// IsEvaluationError reports whether err is or wraps an *EvaluationError.
func IsEvaluationError(err error) bool {
	var ee *EvaluationError
	return errors.As(err, &ee)
}

func newParseError(src string, kind error, tag TagMatch, format string, args ...interface{}) *ParseError {
	line, col := position(src, tag.Start)
	return &ParseError{
		Kind:   kind,
		Msg:    fmt.Sprintf(format, args...),
		Tag:    src[tag.Start:tag.End],
		Offset: tag.Start,
		Line:   line,
		Column: col,
	}
}

// position converts a byte offset into a 1-based line and column.
func position(src string, offset int) (line, col int) {
	if offset > len(src) {
		offset = len(src)
	}
	line = 1 + strings.Count(src[:offset], "\n")
	col = offset + 1
	if i := strings.LastIndexByte(src[:offset], '\n'); i >= 0 {
		col = offset - i
	}
	return line, col
}

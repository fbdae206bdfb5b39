package jinja

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"unicode/utf8"
)

// UndefinedBehavior controls what happens when a path does not resolve.
type UndefinedBehavior int

const (
	// UndefinedLenient renders missing values as the empty string and treats
	// them as false in conditions.
	UndefinedLenient UndefinedBehavior = iota
	// UndefinedStrict fails with ErrUndefined on any missing value that is
	// not absorbed by the default filter.
	UndefinedStrict
)

func (b UndefinedBehavior) String() string {
	if b == UndefinedStrict {
		return "strict"
	}
	return "lenient"
}

// DefaultMaxDepth is the default limit on nested blocks.
const DefaultMaxDepth = 100

// Engine renders templates. It holds configuration only, so one Engine can
// serve any number of concurrent Render calls.
type Engine struct {
	undefined UndefinedBehavior
	maxDepth  int
	logger    *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithUndefined selects lenient (default) or strict handling of missing
// values.
func WithUndefined(b UndefinedBehavior) Option {
	return func(e *Engine) { e.undefined = b }
}

// WithLogger sets the logger used for debug traces. A nil logger disables
// logging.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMaxDepth limits how deeply blocks may nest. Values below 1 keep the
// default.
func WithMaxDepth(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxDepth = n
		}
	}
}

// New returns an Engine configured by opts.
func New(opts ...Option) *Engine {
	e := &Engine{
		maxDepth: DefaultMaxDepth,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var defaultEngine = New()

// Render renders template against ctx with the default lenient engine.
func Render(template string, ctx Value) (string, error) {
	return defaultEngine.Render(template, ctx)
}

// RenderFile reads path as UTF-8 and renders it with the default engine.
func RenderFile(path string, ctx Value) (string, error) {
	return defaultEngine.RenderFile(path, ctx)
}

// TemplateString renders a template string using the provided context.
// The context is converted with FromGo first.
func TemplateString(template string, context map[string]interface{}) (string, error) {
	ctx, err := FromGo(context)
	if err != nil {
		return "", &EvaluationError{Err: err}
	}
	return defaultEngine.Render(template, ctx)
}

// Render renders template against ctx. ctx must be a mapping; undefined is
// accepted as the empty mapping. The call has no side effects and returns
// either the complete document or an error, never partial output.
func (e *Engine) Render(template string, ctx Value) (string, error) {
	switch ctx.Kind() {
	case KindUndefined:
		ctx = Map()
	case KindMapping:
	default:
		return "", &EvaluationError{Err: fmt.Errorf("%w, got %s", ErrContextNotMapping, describeKind(ctx))}
	}

	r := &renderer{
		src:      template,
		strict:   e.undefined == UndefinedStrict,
		maxDepth: e.maxDepth,
		logger:   e.logger,
		exprs:    make(map[int]*ExprNode),
	}
	var sb strings.Builder
	sb.Grow(len(template))
	if err := r.render(&sb, ctx, 0, len(template), 0); err != nil {
		e.logger.Debug("render failed", "error", err)
		return "", err
	}
	return sb.String(), nil
}

// RenderFile reads path and renders it. A missing file is reported as a
// *FileNotFoundError before anything is read.
func (e *Engine) RenderFile(path string, ctx Value) (string, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", &FileNotFoundError{Path: path}
		}
		return "", fmt.Errorf("stat template: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read template: %w", err)
	}
	return e.renderBytes(path, data, ctx)
}

// RenderFS is RenderFile for a file inside fsys.
func (e *Engine) RenderFS(fsys fs.FS, name string, ctx Value) (string, error) {
	if _, err := fs.Stat(fsys, name); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", &FileNotFoundError{Path: name}
		}
		return "", fmt.Errorf("stat template: %w", err)
	}
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return "", fmt.Errorf("read template: %w", err)
	}
	return e.renderBytes(name, data, ctx)
}

func (e *Engine) renderBytes(name string, data []byte, ctx Value) (string, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%s: %w", name, ErrInvalidUTF8)
	}
	e.logger.Debug("rendering template file", "path", name, "bytes", len(data))
	return e.Render(string(data), ctx)
}

// renderer holds the state of a single Render call. Offsets are always
// relative to src so errors can report positions in the whole template.
type renderer struct {
	src      string
	strict   bool
	maxDepth int
	logger   *slog.Logger
	exprs    map[int]*ExprNode // parsed expressions by tag offset
}

// render writes the output of src[start:end] to sb. Literal text before a
// block is interpolated first, then the block is expanded, then scanning
// resumes after its end tag.
func (r *renderer) render(sb *strings.Builder, ctx Value, start, end, depth int) error {
	text := r.src[:end]
	scan := newTagScanner(text)
	pos := start
	for {
		tag, ok := scan.nextBlock(pos)
		if !ok {
			return r.interpolate(sb, ctx, pos, end)
		}
		if err := r.interpolate(sb, ctx, pos, tag.Start); err != nil {
			return err
		}

		kw := tag.Keyword()
		if err := checkKeyword(text, tag, kw); err != nil {
			return err
		}
		if depth >= r.maxDepth && blockKinds[kw] {
			return newParseError(r.src, ErrTooDeep, tag, "more than %d nested blocks", r.maxDepth)
		}

		var next int
		var err error
		switch kw {
		case "if":
			next, err = r.handleIfStatement(sb, ctx, tag, text, depth)
		case "for":
			next, err = r.handleForStatement(sb, ctx, tag, text, depth)
		default:
			err = strayTagError(text, tag, kw)
		}
		if err != nil {
			return err
		}
		pos = next
	}
}

// strayTagError reports a branch or end tag found outside any block.
func strayTagError(text string, tag TagMatch, kw string) error {
	if kw == "else" || kw == "elif" {
		return newParseError(text, ErrMalformedTag, tag, "%s outside of an if or for block", kw)
	}
	return newParseError(text, ErrBlockMismatch, tag, "{%% %s %%} without an open block", kw)
}

// interpolate copies src[start:end] to sb, replacing every {{ }} tag with
// the value of its expression.
func (r *renderer) interpolate(sb *strings.Builder, ctx Value, start, end int) error {
	text := r.src[:end]
	scan := newTagScanner(text)
	pos := start
	for {
		tag, ok := scan.next(pos)
		if !ok {
			sb.WriteString(text[pos:])
			return nil
		}
		sb.WriteString(text[pos:tag.Start])
		pos = tag.End

		if tag.Kind != TagInterp {
			// Spans handed to interpolate never contain block tags.
			sb.WriteString(text[tag.Start:tag.End])
			continue
		}
		v, err := r.value(ctx, tag)
		if err != nil {
			return err
		}
		sb.WriteString(v.String())
	}
}

// value evaluates the expression of an interpolation tag. Plain dot paths
// are looked up directly.
func (r *renderer) value(ctx Value, tag TagMatch) (Value, error) {
	if tag.Inner == "" {
		return Value{}, newParseError(r.src, ErrInvalidExpression, tag, "empty expression")
	}
	if isDotPath(tag.Inner) {
		v, ok := ctx.Lookup(tag.Inner)
		if !ok && r.strict {
			return Value{}, r.evalError(tag.Inner, tag, fmt.Errorf("%w: %s", ErrUndefined, tag.Inner))
		}
		return v, nil
	}
	node, err := r.parse(tag.Inner, tag)
	if err != nil {
		return Value{}, err
	}
	return r.eval(node, ctx, tag.Inner, tag)
}

// parse parses expr, which belongs to tag. Results are kept for the rest of
// the call so loop bodies are parsed once.
func (r *renderer) parse(expr string, tag TagMatch) (*ExprNode, error) {
	if node, ok := r.exprs[tag.Start]; ok {
		return node, nil
	}
	node, err := ParseExpression(expr)
	if err != nil {
		return nil, expressionError(r.src, tag, err)
	}
	r.exprs[tag.Start] = node
	return node, nil
}

func (r *renderer) eval(node *ExprNode, ctx Value, expr string, tag TagMatch) (Value, error) {
	v, err := NewEvaluator(ctx, r.strict).Evaluate(node)
	if err != nil {
		return Value{}, r.evalError(expr, tag, err)
	}
	return v, nil
}

func (r *renderer) evalError(expr string, tag TagMatch, err error) *EvaluationError {
	line, col := position(r.src, tag.Start)
	return &EvaluationError{Expression: expr, Offset: tag.Start, Line: line, Column: col, Err: err}
}

// expressionError turns an expression syntax error into a *ParseError.
func expressionError(src string, tag TagMatch, err error) *ParseError {
	kind := ErrInvalidExpression
	switch {
	case errors.Is(err, ErrUnknownFilter):
		kind = ErrUnknownFilter
	case errors.Is(err, ErrTooDeep):
		kind = ErrTooDeep
	}
	return newParseError(src, kind, tag, "%v", err)
}

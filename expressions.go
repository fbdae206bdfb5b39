package jinja

/*
This file implements the expression language accepted inside {{ }} tags and
if/elif/for headers. It is deliberately small: dot paths, number, string and
boolean literals, the operators below, parentheses and a fixed filter set.
Nothing in a template can reach host-language code.

1. Lexical Analysis (Lexer): input string -> tokens.
2. Syntactic Analysis (ExprParser): precedence climbing into an ExprNode tree.
3. Evaluation (Evaluator): walks the tree against a context Value.
*/

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// TokenType represents different types of tokens in an expression.
type TokenType int

const (
	TokenLiteral TokenType = iota
	TokenIdentifier
	TokenOperator
	TokenLeftParen
	TokenRightParen
	TokenComma
	TokenDot
	TokenPipe
	TokenEOF
)

// Token represents a lexical token in an expression.
type Token struct {
	Type     TokenType
	Value    string
	Position int
}

// Operator precedence - higher number means higher precedence.
var operatorPrecedence = map[string]int{
	"or":  10,
	"and": 20,
	"not": 30,
	"==":  40, "!=": 40, ">=": 40, "<=": 40, ">": 40, "<": 40,
	"+": 50, "-": 50,
	"*": 60, "/": 60,
}

// unaryMinusPrecedence binds tighter than every binary operator.
const unaryMinusPrecedence = 70

// keywords that can never be variable names.
var keywords = map[string]bool{
	"and": true, "or": true, "not": true, "in": true,
	"true": true, "false": true, "True": true, "False": true,
}

// ExprNodeType represents the type of AST node.
type ExprNodeType int

const (
	NodeLiteral ExprNodeType = iota
	NodePath
	NodeUnaryOp
	NodeBinaryOp
	NodeFilter
)

// ExprNode represents a node in the expression AST.
type ExprNode struct {
	Type     ExprNodeType
	Value    Value       // NodeLiteral
	Path     string      // NodePath
	Operator string      // NodeUnaryOp, NodeBinaryOp; filter name for NodeFilter
	Children []*ExprNode // operands; for NodeFilter the input followed by the arguments

	height int // levels of operator and filter nodes below this one
}

// Lexer breaks an expression string into tokens.
type Lexer struct {
	input  string
	pos    int
	tokens []Token
}

// NewLexer creates a new lexer instance.
func NewLexer(input string) *Lexer {
	return &Lexer{input: input}
}

// Tokenize breaks the input string into tokens.
func (l *Lexer) Tokenize() ([]Token, error) {
	l.tokens = make([]Token, 0, len(l.input)/3+2)
	for l.pos < len(l.input) {
		c := l.input[l.pos]
		switch {
		case isWhitespace(c):
			l.pos++
		case c == '(':
			l.addToken(TokenLeftParen, "(")
		case c == ')':
			l.addToken(TokenRightParen, ")")
		case c == ',':
			l.addToken(TokenComma, ",")
		case c == '.':
			l.addToken(TokenDot, ".")
		case c == '|':
			l.addToken(TokenPipe, "|")
		case c == '\'' || c == '"':
			if err := l.tokenizeString(); err != nil {
				return nil, err
			}
		case isDigit(c):
			l.tokenizeNumber()
		case isAlpha(c) || c == '_':
			l.tokenizeIdentifierOrKeyword()
		default:
			if !l.tryTokenizeOperator() {
				return nil, fmt.Errorf("unexpected character %q at position %d", c, l.pos)
			}
		}
	}
	l.tokens = append(l.tokens, Token{Type: TokenEOF, Position: len(l.input)})
	return l.tokens, nil
}

func (l *Lexer) addToken(tokenType TokenType, value string) {
	l.tokens = append(l.tokens, Token{Type: tokenType, Value: value, Position: l.pos})
	l.pos += len(value)
}

// tokenizeString handles quoted string literals. The token keeps its quotes.
func (l *Lexer) tokenizeString() error {
	start := l.pos
	end := skipStringLiteral(l.input, start)
	if end < 0 {
		return fmt.Errorf("unterminated string literal at position %d", start)
	}
	l.tokens = append(l.tokens, Token{Type: TokenLiteral, Value: l.input[start:end], Position: start})
	l.pos = end
	return nil
}

func (l *Lexer) tokenizeNumber() {
	start := l.pos
	hasDot := false
	for l.pos < len(l.input) {
		c := l.input[l.pos]
		if c == '.' && !hasDot && l.pos+1 < len(l.input) && isDigit(l.input[l.pos+1]) {
			hasDot = true
		} else if !isDigit(c) && c != '_' {
			break
		}
		l.pos++
	}
	l.tokens = append(l.tokens, Token{Type: TokenLiteral, Value: l.input[start:l.pos], Position: start})
}

func (l *Lexer) tryTokenizeOperator() bool {
	if l.pos+2 <= len(l.input) {
		switch two := l.input[l.pos : l.pos+2]; two {
		case "==", "!=", ">=", "<=":
			l.addToken(TokenOperator, two)
			return true
		}
	}
	switch c := l.input[l.pos]; c {
	case '+', '-', '*', '/', '<', '>':
		l.addToken(TokenOperator, string(c))
		return true
	}
	return false
}

func (l *Lexer) tokenizeIdentifierOrKeyword() {
	start := l.pos
	for l.pos < len(l.input) && (isAlphaNumeric(l.input[l.pos]) || l.input[l.pos] == '_') {
		l.pos++
	}
	word := l.input[start:l.pos]
	switch word {
	case "and", "or", "not":
		l.tokens = append(l.tokens, Token{Type: TokenOperator, Value: word, Position: start})
	case "true", "false", "True", "False":
		l.tokens = append(l.tokens, Token{Type: TokenLiteral, Value: word, Position: start})
	default:
		l.tokens = append(l.tokens, Token{Type: TokenIdentifier, Value: word, Position: start})
	}
}

func isWhitespace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isAlpha(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isAlphaNumeric(c byte) bool {
	return isAlpha(c) || isDigit(c)
}

// isIdentifier reports whether s is a plain identifier that is not a keyword.
func isIdentifier(s string) bool {
	if s == "" || keywords[s] {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(isAlpha(c) || c == '_' || (i > 0 && isDigit(c))) {
			return false
		}
	}
	return true
}

// isDotPath reports whether s is IDENTIFIER ('.' IDENTIFIER)*.
func isDotPath(s string) bool {
	for {
		seg, rest, more := strings.Cut(s, ".")
		if !isIdentifier(seg) {
			return false
		}
		if !more {
			return true
		}
		s = rest
	}
}

// maxExprDepth bounds the height of an expression tree. Parentheses, unary
// operators, binary operators and filters each add a level.
const maxExprDepth = 100

func errExprTooDeep(pos int) error {
	return fmt.Errorf("%w: expression nests more than %d levels (position %d)", ErrTooDeep, maxExprDepth, pos)
}

// ExprParser turns a token stream into an ExprNode tree.
type ExprParser struct {
	tokens []Token
	pos    int
	depth  int // open parentheses and unary operators
}

// NewExprParser creates a parser over tokens produced by Lexer.Tokenize.
func NewExprParser(tokens []Token) *ExprParser {
	return &ExprParser{tokens: tokens}
}

// Parse parses a complete expression and requires all input to be consumed.
func (p *ExprParser) Parse() (*ExprNode, error) {
	node, err := p.parseExpression(0)
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.Type != TokenEOF {
		return nil, fmt.Errorf("unexpected %q at position %d", tok.Value, tok.Position)
	}
	return node, nil
}

func (p *ExprParser) peek() Token {
	if p.pos >= len(p.tokens) {
		return Token{Type: TokenEOF}
	}
	return p.tokens[p.pos]
}

func (p *ExprParser) next() Token {
	tok := p.peek()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return tok
}

// enter accounts for one more level of parser recursion; leave undoes it.
func (p *ExprParser) enter(tok Token) error {
	p.depth++
	if p.depth > maxExprDepth {
		return errExprTooDeep(tok.Position)
	}
	return nil
}

func (p *ExprParser) leave() { p.depth-- }

// newNode builds an operator or filter node over children.
func newNode(typ ExprNodeType, op string, tok Token, children ...*ExprNode) (*ExprNode, error) {
	n := &ExprNode{Type: typ, Operator: op, Children: children}
	for _, c := range children {
		if c.height >= n.height {
			n.height = c.height + 1
		}
	}
	if n.height > maxExprDepth {
		return nil, errExprTooDeep(tok.Position)
	}
	return n, nil
}

// parseFilter parses IDENT [ "(" args ")" ] after a "|" and applies the
// filter to input.
func (p *ExprParser) parseFilter(input *ExprNode) (*ExprNode, error) {
	nameTok := p.next()
	if nameTok.Type != TokenIdentifier {
		return nil, fmt.Errorf("expected filter name after '|' at position %d", nameTok.Position)
	}
	def, ok := builtinFilters[nameTok.Value]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownFilter, nameTok.Value)
	}
	children := []*ExprNode{input}
	if p.peek().Type == TokenLeftParen {
		p.next()
		if p.peek().Type != TokenRightParen {
			for {
				arg, err := p.parseExpression(0)
				if err != nil {
					return nil, err
				}
				children = append(children, arg)
				if p.peek().Type != TokenComma {
					break
				}
				p.next()
			}
		}
		if tok := p.next(); tok.Type != TokenRightParen {
			return nil, fmt.Errorf("expected ')' to close arguments of filter %q", nameTok.Value)
		}
	}
	if n := len(children) - 1; n < def.minArgs || n > def.maxArgs {
		return nil, fmt.Errorf("filter %q takes %s, got %d", nameTok.Value, def.arity(), n)
	}
	return newNode(NodeFilter, nameTok.Value, nameTok, children...)
}

// parseExpression parses an expression whose binary operators bind at least
// as tightly as precedence.
func (p *ExprParser) parseExpression(precedence int) (*ExprNode, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	compared := false
	for {
		tok := p.peek()
		if tok.Type != TokenOperator || tok.Value == "not" {
			return left, nil
		}
		opPrecedence := operatorPrecedence[tok.Value]
		if opPrecedence < precedence {
			return left, nil
		}
		if opPrecedence == operatorPrecedence["=="] {
			if compared {
				return nil, fmt.Errorf("comparisons cannot be chained (position %d)", tok.Position)
			}
			compared = true
		}
		p.next()

		// Parse the right-hand side with higher precedence (left associative).
		right, err := p.parseExpression(opPrecedence + 1)
		if err != nil {
			return nil, err
		}
		if left, err = newNode(NodeBinaryOp, tok.Value, tok, left, right); err != nil {
			return nil, err
		}
	}
}

func (p *ExprParser) parseUnary() (*ExprNode, error) {
	tok := p.peek()
	if tok.Type == TokenOperator {
		var prec int
		switch tok.Value {
		case "not":
			prec = operatorPrecedence["not"]
		case "-":
			prec = unaryMinusPrecedence
		default:
			return nil, fmt.Errorf("unexpected operator %q at position %d", tok.Value, tok.Position)
		}
		p.next()
		if err := p.enter(tok); err != nil {
			return nil, err
		}
		defer p.leave()
		operand, err := p.parseExpression(prec)
		if err != nil {
			return nil, err
		}
		return newNode(NodeUnaryOp, tok.Value, tok, operand)
	}
	return p.parsePrimary()
}

// parsePrimary parses an operand followed by any number of filters. Filters
// bind tighter than every operator, so "xs | length > 1" compares the length.
func (p *ExprParser) parsePrimary() (*ExprNode, error) {
	node, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	for p.peek().Type == TokenPipe {
		p.next()
		if node, err = p.parseFilter(node); err != nil {
			return nil, err
		}
	}
	return node, nil
}

func (p *ExprParser) parseOperand() (*ExprNode, error) {
	tok := p.next()
	switch tok.Type {
	case TokenLiteral:
		return parseLiteral(tok)
	case TokenIdentifier:
		return p.parsePath(tok)
	case TokenLeftParen:
		if err := p.enter(tok); err != nil {
			return nil, err
		}
		defer p.leave()
		inner, err := p.parseExpression(0)
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.Type != TokenRightParen {
			return nil, fmt.Errorf("expected ')' at position %d", closing.Position)
		}
		return inner, nil
	case TokenEOF:
		return nil, errors.New("unexpected end of expression")
	default:
		return nil, fmt.Errorf("unexpected %q at position %d", tok.Value, tok.Position)
	}
}

// parsePath consumes IDENT ('.' IDENT)*.
func (p *ExprParser) parsePath(first Token) (*ExprNode, error) {
	var sb strings.Builder
	sb.WriteString(first.Value)
	for p.peek().Type == TokenDot {
		p.next()
		seg := p.next()
		if seg.Type != TokenIdentifier {
			return nil, fmt.Errorf("expected attribute name after '.' at position %d", seg.Position)
		}
		sb.WriteByte('.')
		sb.WriteString(seg.Value)
	}
	return &ExprNode{Type: NodePath, Path: sb.String()}, nil
}

func parseLiteral(tok Token) (*ExprNode, error) {
	var v Value
	switch s := tok.Value; {
	case s == "true" || s == "True":
		v = Bool(true)
	case s == "false" || s == "False":
		v = Bool(false)
	case s[0] == '\'' || s[0] == '"':
		v = String(unescapeStringLiteral(s[1 : len(s)-1]))
	case strings.Contains(s, "."):
		f, err := strconv.ParseFloat(strings.ReplaceAll(s, "_", ""), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", s)
		}
		v = Float(f)
	default:
		i, err := strconv.ParseInt(strings.ReplaceAll(s, "_", ""), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", s)
		}
		v = Int(i)
	}
	return &ExprNode{Type: NodeLiteral, Value: v}, nil
}

// unescapeStringLiteral handles the usual backslash escapes.
func unescapeStringLiteral(s string) string {
	if !strings.Contains(s, "\\") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 >= len(s) {
			b.WriteByte(s[i])
			continue
		}
		i++
		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case '\'', '"', '\\':
			b.WriteByte(s[i])
		default:
			// Unknown escape sequence, keep the backslash and the character.
			b.WriteByte('\\')
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// ParseExpression parses an expression string into an AST.
func ParseExpression(expr string) (*ExprNode, error) {
	tokens, err := NewLexer(expr).Tokenize()
	if err != nil {
		return nil, err
	}
	return NewExprParser(tokens).Parse()
}

// Evaluator evaluates expression trees against a context.
type Evaluator struct {
	context Value
	strict  bool
}

// NewEvaluator creates an evaluator. In strict mode a path that does not
// resolve is an error instead of an undefined value.
func NewEvaluator(context Value, strict bool) *Evaluator {
	return &Evaluator{context: context, strict: strict}
}

// Evaluate evaluates an AST node.
func (e *Evaluator) Evaluate(node *ExprNode) (Value, error) {
	switch node.Type {
	case NodeLiteral:
		return node.Value, nil

	case NodePath:
		v, ok := e.context.Lookup(node.Path)
		if !ok && e.strict {
			return Value{}, fmt.Errorf("%w: %s", ErrUndefined, node.Path)
		}
		return v, nil

	case NodeUnaryOp:
		operand, err := e.Evaluate(node.Children[0])
		if err != nil {
			return Value{}, err
		}
		switch node.Operator {
		case "not":
			return Bool(!operand.Truthy()), nil
		case "-":
			return negate(operand)
		}
		return Value{}, fmt.Errorf("unknown unary operator %q", node.Operator)

	case NodeBinaryOp:
		left, err := e.Evaluate(node.Children[0])
		if err != nil {
			return Value{}, err
		}
		// Short-circuit evaluation for 'and' and 'or'.
		switch node.Operator {
		case "and":
			if !left.Truthy() {
				return left, nil
			}
			return e.Evaluate(node.Children[1])
		case "or":
			if left.Truthy() {
				return left, nil
			}
			return e.Evaluate(node.Children[1])
		}
		right, err := e.Evaluate(node.Children[1])
		if err != nil {
			return Value{}, err
		}
		return binaryOp(node.Operator, left, right)

	case NodeFilter:
		return e.evaluateFilter(node)
	}
	return Value{}, fmt.Errorf("unknown node type %d", node.Type)
}

func (e *Evaluator) evaluateFilter(node *ExprNode) (Value, error) {
	var input Value
	var err error
	if node.Operator == "default" && node.Children[0].Type == NodePath {
		// default exists to absorb missing values, even in strict mode.
		input, _ = e.context.Lookup(node.Children[0].Path)
	} else {
		input, err = e.Evaluate(node.Children[0])
		if err != nil {
			return Value{}, err
		}
	}
	args := make([]Value, 0, len(node.Children)-1)
	for _, child := range node.Children[1:] {
		arg, err := e.Evaluate(child)
		if err != nil {
			return Value{}, err
		}
		args = append(args, arg)
	}
	v, err := builtinFilters[node.Operator].fn(input, args...)
	if err != nil {
		return Value{}, fmt.Errorf("filter %s: %w", node.Operator, err)
	}
	return v, nil
}

// walkPaths calls fn for every path referenced by node.
func walkPaths(node *ExprNode, fn func(path string)) {
	if node == nil {
		return
	}
	if node.Type == NodePath {
		fn(node.Path)
	}
	for _, child := range node.Children {
		walkPaths(child, fn)
	}
}

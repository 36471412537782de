package filter

import (
	"errors"
	"reflect"
	"strings"
	"unicode"

	"github.com/nrjais/emquery/pkg/member"
	"github.com/nrjais/emquery/pkg/qerr"
)

// Checker vets every path a predicate references.
type Checker interface {
	CheckFilterable(p member.Path) error
}

type Option func(*options)

type options struct {
	checker Checker
}

// WithChecker rejects predicates over paths the checker refuses.
func WithChecker(c Checker) Option {
	return func(o *options) {
		o.checker = c
	}
}

func newOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Parse reads filter text into a predicate over t. Blank text yields a nil
// Node, meaning no filter.
//
// and binds tighter than or; both associate to the left.
func Parse(t reflect.Type, text string, opts ...Option) (Node, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	o := newOptions(opts)
	p := &parser{src: text, root: member.Elem(t)}

	n, err := p.parseOr()
	if err == nil {
		p.skipSpace()
		if !p.eof() {
			err = p.errorf("Could not parse filter from position %d", p.pos)
		}
	}
	if err == nil && o.checker != nil {
		err = checkPaths(n, o.checker)
	}
	if err != nil {
		var pe *qerr.ParseError
		if errors.As(err, &pe) {
			pe.Query = text
		}
		var po *qerr.PolicyError
		if errors.As(err, &po) {
			po.Query = text
		}
		return nil, err
	}
	return n, nil
}

func checkPaths(n Node, c Checker) error {
	for _, path := range Paths(n) {
		if err := c.CheckFilterable(path); err != nil {
			return err
		}
	}
	return nil
}

type parser struct {
	src  string
	pos  int
	root reflect.Type
}

func (p *parser) errorf(format string, args ...any) error {
	return qerr.Parse(p.src, format, args...)
}

func (p *parser) eof() bool {
	return p.pos >= len(p.src)
}

func (p *parser) peek() byte {
	if p.eof() {
		return 0
	}
	return p.src[p.pos]
}

func (p *parser) skipSpace() {
	for !p.eof() && unicode.IsSpace(rune(p.src[p.pos])) {
		p.pos++
	}
}

func (p *parser) consume(c byte) bool {
	if p.peek() == c {
		p.pos++
		return true
	}
	return false
}

// keyword consumes word if it is next, case-insensitively, on a word boundary.
func (p *parser) keyword(word string) bool {
	p.skipSpace()
	end := p.pos + len(word)
	if end > len(p.src) || !strings.EqualFold(p.src[p.pos:end], word) {
		return false
	}
	if end < len(p.src) && isIdentChar(p.src[end]) {
		return false
	}
	p.pos = end
	return true
}

func (p *parser) parseOr() (Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.keyword("or") {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &Logical{Op: OpOr, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Node, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for p.keyword("and") {
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = &Logical{Op: OpAnd, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseTerm() (Node, error) {
	p.skipSpace()
	if p.eof() {
		return nil, p.errorf("Unexpected end of filter at position %d", p.pos)
	}
	if p.consume('(') {
		n, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		p.skipSpace()
		if !p.consume(')') {
			return nil, p.errorf("Closing parenthesis not found")
		}
		return n, nil
	}

	start := p.pos
	ident := p.readPath()
	if ident == "" {
		return nil, p.errorf("Could not parse filter from position %d", start)
	}

	afterIdent := p.pos
	p.skipSpace()
	if !strings.Contains(ident, ".") && p.consume('(') {
		return p.parseCall(ident)
	}
	p.pos = afterIdent

	path, err := member.Resolve(p.root, ident)
	if err != nil {
		return nil, err
	}
	return p.parseComparison(path)
}

func (p *parser) parseComparison(path member.Path) (Node, error) {
	p.skipSpace()
	opStart := p.pos
	word := p.readWord()
	if word == "" || strings.EqualFold(word, "and") || strings.EqualFold(word, "or") {
		p.pos = opStart
		if path.Kind() != member.Bool {
			return nil, p.errorf("Expected operator after %s at position %d", path, opStart)
		}
		return &Member{Path: path}, nil
	}

	lower := strings.ToLower(word)
	if lower == "in" {
		return p.parseMembership(path)
	}
	for op, token := range opTokens {
		if token != lower {
			continue
		}
		lit, err := p.readLiteral()
		if err != nil {
			return nil, err
		}
		value, err := coerce(path, lit, p.src)
		if err != nil {
			return nil, err
		}
		if op.Ordering() && path.Kind() == member.Bool {
			return nil, p.errorf("Operator %s cannot be applied to boolean property %s", op, path)
		}
		return &Comparison{Op: op, Path: path, Value: value}, nil
	}
	return nil, p.errorf("Unknown operator %s", word)
}

// parseMembership reads the value list after "in"; the parentheses are optional.
func (p *parser) parseMembership(path member.Path) (Node, error) {
	p.skipSpace()
	paren := p.consume('(')
	m := &Membership{Path: path}
	for {
		lit, err := p.readLiteral()
		if err != nil {
			return nil, err
		}
		value, err := coerce(path, lit, p.src)
		if err != nil {
			return nil, err
		}
		m.Values = append(m.Values, value)
		p.skipSpace()
		if !p.consume(',') {
			break
		}
	}
	if paren && !p.consume(')') {
		return nil, p.errorf("Expected closing parenthesis at position %d", p.pos)
	}
	return m, nil
}

func (p *parser) parseCall(name string) (Node, error) {
	var fn Func
	switch strings.ToLower(name) {
	case "not":
		operand, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		p.skipSpace()
		if p.peek() == ',' {
			return nil, p.errorf("Expected 1 parameter for function '%s'.", name)
		}
		if !p.consume(')') {
			return nil, p.errorf("Closing parenthesis not found")
		}
		return &Negation{Operand: operand}, nil
	case "contains":
		fn = Contains
	case "startswith":
		fn = StartsWith
	case "endswith":
		fn = EndsWith
	default:
		return nil, p.errorf("Unknown function '%s'", name)
	}

	p.skipSpace()
	ident := p.readPath()
	if ident == "" {
		return nil, p.errorf("Expected property at position %d", p.pos)
	}
	path, err := member.Resolve(p.root, ident)
	if err != nil {
		return nil, err
	}
	if path.Kind() != member.String {
		return nil, p.errorf("Function '%s' requires a string property, %s is %s", name, path, member.TypeName(path.Type()))
	}
	p.skipSpace()
	if !p.consume(',') {
		return nil, p.errorf("Expected 2 parameters for function '%s'.", name)
	}
	lit, err := p.readLiteral()
	if err != nil {
		return nil, err
	}
	if lit.kind != litString {
		return nil, p.errorf("Could not parse string constant with value: %s", lit.raw)
	}
	value, err := coerce(path, lit, p.src)
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.peek() == ',' {
		return nil, p.errorf("Expected 2 parameters for function '%s'.", name)
	}
	if !p.consume(')') {
		return nil, p.errorf("Closing parenthesis not found")
	}
	return &StringFunc{Func: fn, Path: path, Value: value}, nil
}

// readPath reads a dotted identifier such as Related.Name.
func (p *parser) readPath() string {
	start := p.pos
	for {
		if p.eof() || !isIdentStart(p.peek()) {
			break
		}
		for !p.eof() && isIdentChar(p.peek()) {
			p.pos++
		}
		if p.peek() != '.' || p.pos+1 >= len(p.src) || !isIdentStart(p.src[p.pos+1]) {
			break
		}
		p.pos++
	}
	return p.src[start:p.pos]
}

func (p *parser) readWord() string {
	start := p.pos
	for !p.eof() && isIdentChar(p.peek()) {
		p.pos++
	}
	return p.src[start:p.pos]
}

func (p *parser) readLiteral() (literal, error) {
	p.skipSpace()
	start := p.pos
	switch c := p.peek(); {
	case c == '\'':
		return p.readString()
	case c == '-' || isDigit(c):
		p.pos++
		for !p.eof() && isDigit(p.peek()) {
			p.pos++
		}
		if p.peek() == '.' {
			p.pos++
			for !p.eof() && isDigit(p.peek()) {
				p.pos++
			}
		}
		text := p.src[start:p.pos]
		if text == "-" {
			return literal{}, p.errorf("Could not parse constant at position %d", start)
		}
		return literal{kind: litNumber, text: text, raw: text}, nil
	}

	word := p.readWord()
	switch strings.ToLower(word) {
	case "null":
		return literal{kind: litNull, raw: word}, nil
	case "true", "false":
		return literal{kind: litBool, text: strings.ToLower(word), raw: word}, nil
	}
	p.pos = start
	return literal{}, p.errorf("Could not parse constant at position %d", start)
}

// readString reads a quoted literal; '' inside the quotes is one quote.
func (p *parser) readString() (literal, error) {
	start := p.pos
	p.pos++
	var b strings.Builder
	for {
		if p.eof() {
			return literal{}, p.errorf("Unterminated string starting at position %d", start)
		}
		c := p.src[p.pos]
		p.pos++
		if c != '\'' {
			b.WriteByte(c)
			continue
		}
		if p.peek() == '\'' {
			b.WriteByte('\'')
			p.pos++
			continue
		}
		return literal{kind: litString, text: b.String(), raw: p.src[start:p.pos]}, nil
	}
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || isDigit(c)
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

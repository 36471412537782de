package projection

import (
	"regexp"
	"strings"

	"github.com/nrjais/emquery/pkg/qerr"
)

// Extend names an extension field to include, optionally narrowed to a
// subset of the related type's fields.
type Extend struct {
	Name       string
	Properties []Extend
}

var extendName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ParseExtend reads an extend forest such as aaa(bbb,ccc(ddd)),eee.
// Whitespace is ignored, a trailing comma is dropped and groups left open at
// the end of the text are closed.
func ParseExtend(text string) ([]Extend, error) {
	src := strings.Join(strings.Fields(text), "")
	if src == "" {
		return nil, nil
	}
	p := &extendParser{src: src, orig: text}
	forest, err := p.forest()
	if err != nil {
		return nil, err
	}
	if p.pos < len(p.src) {
		return nil, qerr.Parse(text, "Unexpected '%c' on position %d in extend %s", p.src[p.pos], p.pos, text)
	}
	return forest, nil
}

type extendParser struct {
	src  string
	orig string
	pos  int
}

func (p *extendParser) forest() ([]Extend, error) {
	var out []Extend
	for p.pos < len(p.src) {
		start := p.pos
		for p.pos < len(p.src) && !strings.ContainsRune("(),", rune(p.src[p.pos])) {
			p.pos++
		}
		name := p.src[start:p.pos]
		if name == "" {
			if p.pos == len(p.src) && len(out) > 0 {
				break
			}
			return nil, qerr.Parse(p.orig, "No field name found on position %d in extend %s", p.pos, p.orig)
		}
		if !extendName.MatchString(name) {
			return nil, qerr.Parse(p.orig, "Extension is invalid: %s", name)
		}

		node := Extend{Name: name}
		if p.pos < len(p.src) && p.src[p.pos] == '(' {
			p.pos++
			props, err := p.forest()
			if err != nil {
				return nil, err
			}
			node.Properties = props
			if p.pos < len(p.src) && p.src[p.pos] == ')' {
				p.pos++
			}
		}
		out = append(out, node)

		if p.pos >= len(p.src) {
			break
		}
		switch p.src[p.pos] {
		case ',':
			p.pos++
		case ')':
			return out, nil
		default:
			return nil, qerr.Parse(p.orig, "Unexpected '%c' on position %d in extend %s", p.src[p.pos], p.pos, p.orig)
		}
	}
	return out, nil
}

func FormatExtend(forest []Extend) string {
	var b strings.Builder
	writeExtend(&b, forest)
	return b.String()
}

func writeExtend(b *strings.Builder, forest []Extend) {
	for i, e := range forest {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(e.Name)
		if len(e.Properties) > 0 {
			b.WriteByte('(')
			writeExtend(b, e.Properties)
			b.WriteByte(')')
		}
	}
}

// Find returns the entry named name, compared case-insensitively.
func Find(forest []Extend, name string) (Extend, bool) {
	for _, e := range forest {
		if strings.EqualFold(e.Name, name) {
			return e, true
		}
	}
	return Extend{}, false
}

func CloneExtend(forest []Extend) []Extend {
	if forest == nil {
		return nil
	}
	out := make([]Extend, len(forest))
	for i, e := range forest {
		out[i] = Extend{Name: e.Name, Properties: CloneExtend(e.Properties)}
	}
	return out
}

// Package template renders status lines from editor context.
//
// A template is plain text mixed with placeholders and conditional groups:
//
//	[{projectName} | ]editing {folderName}/{fileName}
//
// A placeholder {name} is replaced with the context value for name, or the
// empty string when the value is absent. A conditional group [...] is dropped
// entirely (brackets included) when any placeholder it references is absent
// or empty; otherwise its content is kept without the brackets.
//
// Rendering is a pure function of the template and the context. Values are
// inserted verbatim and are never scanned for placeholders or brackets.
//
// # Brackets
//
// Groups do not nest. The outermost '[' is paired with its matching ']' and
// any brackets between them are kept as literal text inside the group. A
// '[' without a matching ']' and a stray ']' are literal text. Use [Lint]
// to surface these cases to the user.
package template

import "strings"

// Context maps field names to values. A missing key and an empty value are
// equivalent.
type Context map[string]string

// empty reports whether name resolves to nothing in c.
func (c Context) empty(name string) bool {
	return c[name] == ""
}

type tokenKind int

const (
	tokenLiteral tokenKind = iota
	tokenPlaceholder
	tokenGroup
)

type token struct {
	kind tokenKind
	// text holds literal text or the placeholder name.
	text string
	// children holds the content of a group. Children are never groups.
	children []token
}

// Template is a parsed status template. It is immutable and safe for
// concurrent use.
type Template struct {
	src    string
	tokens []token
}

// Parse tokenizes src. Parsing never fails: malformed brackets and braces
// degrade to literal text.
func Parse(src string) *Template {
	return &Template{src: src, tokens: parse(src)}
}

// Render parses src and renders it against ctx in one step.
func Render(src string, ctx Context) string {
	return Parse(src).Render(ctx)
}

// Source returns the text the template was parsed from.
func (t *Template) Source() string {
	return t.src
}

// Placeholders returns the distinct placeholder names referenced by the
// template, in order of first appearance.
func (t *Template) Placeholders() []string {
	seen := make(map[string]bool)
	var names []string
	var walk func([]token)
	walk = func(tokens []token) {
		for _, tok := range tokens {
			switch tok.kind {
			case tokenPlaceholder:
				if !seen[tok.text] {
					seen[tok.text] = true
					names = append(names, tok.text)
				}
			case tokenGroup:
				walk(tok.children)
			}
		}
	}
	walk(t.tokens)
	return names
}

// Render produces the status line for ctx.
//
// Groups are decided first, on raw context presence. Only then are the
// placeholders of surviving groups and of the top level substituted.
func (t *Template) Render(ctx Context) string {
	var sb strings.Builder
	for _, tok := range t.tokens {
		switch tok.kind {
		case tokenLiteral:
			sb.WriteString(tok.text)
		case tokenPlaceholder:
			sb.WriteString(ctx[tok.text])
		case tokenGroup:
			if !groupSurvives(tok, ctx) {
				continue
			}
			for _, child := range tok.children {
				if child.kind == tokenPlaceholder {
					sb.WriteString(ctx[child.text])
				} else {
					sb.WriteString(child.text)
				}
			}
		}
	}
	return sb.String()
}

func groupSurvives(group token, ctx Context) bool {
	for _, child := range group.children {
		if child.kind == tokenPlaceholder && ctx.empty(child.text) {
			return false
		}
	}
	return true
}

func parse(src string) []token {
	var tokens []token
	var lit strings.Builder

	flush := func() {
		if lit.Len() > 0 {
			tokens = append(tokens, token{kind: tokenLiteral, text: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(src); {
		switch src[i] {
		case '[':
			end := matchBracket(src, i)
			if end < 0 {
				lit.WriteByte('[')
				i++
				continue
			}
			flush()
			tokens = append(tokens, token{
				kind:     tokenGroup,
				children: parseGroupContent(src[i+1 : end]),
			})
			i = end + 1
		case '{':
			name, n := scanPlaceholder(src[i:])
			if n == 0 {
				lit.WriteByte('{')
				i++
				continue
			}
			flush()
			tokens = append(tokens, token{kind: tokenPlaceholder, text: name})
			i += n
		default:
			lit.WriteByte(src[i])
			i++
		}
	}
	flush()
	return tokens
}

// parseGroupContent tokenizes the inside of a group. Brackets are literal.
func parseGroupContent(content string) []token {
	var tokens []token
	var lit strings.Builder
	for i := 0; i < len(content); {
		if content[i] == '{' {
			if name, n := scanPlaceholder(content[i:]); n > 0 {
				if lit.Len() > 0 {
					tokens = append(tokens, token{kind: tokenLiteral, text: lit.String()})
					lit.Reset()
				}
				tokens = append(tokens, token{kind: tokenPlaceholder, text: name})
				i += n
				continue
			}
		}
		lit.WriteByte(content[i])
		i++
	}
	if lit.Len() > 0 {
		tokens = append(tokens, token{kind: tokenLiteral, text: lit.String()})
	}
	return tokens
}

// matchBracket returns the index of the ']' closing the '[' at open, or -1.
// Inner '[' ... ']' pairs are skipped so the outermost pair wins.
func matchBracket(src string, open int) int {
	depth := 0
	for i := open; i < len(src); i++ {
		switch src[i] {
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// scanPlaceholder recognizes "{name}" at the start of s, where name is one or
// more ASCII letters, digits or underscores. It returns the name and the
// number of bytes consumed, or 0 when s does not start with a placeholder.
func scanPlaceholder(s string) (string, int) {
	if len(s) < 3 || s[0] != '{' {
		return "", 0
	}
	i := 1
	for i < len(s) && isWordByte(s[i]) {
		i++
	}
	if i == 1 || i >= len(s) || s[i] != '}' {
		return "", 0
	}
	return s[1:i], i + 1
}

func isWordByte(b byte) bool {
	return b == '_' ||
		('a' <= b && b <= 'z') ||
		('A' <= b && b <= 'Z') ||
		('0' <= b && b <= '9')
}

package harness

import "strings"

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokNumber
	tokString
	tokPunct
)

type token struct {
	kind   tokenKind
	text   string
	indent int  // indentation of the line the token starts on
	first  bool // first token on its line
}

// tokenize splits source into identifiers, numbers, string literals and punctuation.
// Comments, whitespace and C++ preprocessor lines are dropped.
func tokenize(src string, lang Language) []token {
	var toks []token
	n := len(src)
	lineStart := true
	indent := 0

	for i := 0; i < n; {
		c := src[i]
		switch c {
		case '\n':
			lineStart = true
			indent = 0
			i++
			continue
		case ' ', '\t', '\r', '\f', '\v':
			if lineStart {
				if c == '\t' {
					indent += 4
				} else if c == ' ' {
					indent++
				}
			}
			i++
			continue
		}

		if lang == Python && c == '#' {
			i = skipLine(src, i)
			continue
		}
		if lang != Python && c == '/' && i+1 < n {
			if src[i+1] == '/' {
				i = skipLine(src, i)
				continue
			}
			if src[i+1] == '*' {
				end := strings.Index(src[i+2:], "*/")
				if end < 0 {
					i = n
				} else {
					i += end + 4
				}
				continue
			}
		}
		if lang == CPP && c == '#' && lineStart {
			for i < n && src[i] != '\n' {
				if src[i] == '\\' && i+1 < n && src[i+1] == '\n' {
					i += 2
					continue
				}
				i++
			}
			continue
		}

		tok := token{indent: indent, first: lineStart}
		lineStart = false
		switch {
		case isIdentStart(c):
			j := i + 1
			for j < n && isIdentPart(src[j]) {
				j++
			}
			tok.kind, tok.text = tokIdent, src[i:j]
			i = j
		case c >= '0' && c <= '9':
			j := i + 1
			for j < n && (isIdentPart(src[j]) || src[j] == '.') {
				j++
			}
			tok.kind, tok.text = tokNumber, src[i:j]
			i = j
		case c == '"' || c == '\'':
			j := skipString(src, i, lang)
			tok.kind, tok.text = tokString, src[i:j]
			i = j
		default:
			if i+1 < n && (src[i:i+2] == "::" || src[i:i+2] == "->") {
				tok.kind, tok.text = tokPunct, src[i:i+2]
				i += 2
			} else {
				tok.kind, tok.text = tokPunct, string(c)
				i++
			}
		}
		toks = append(toks, tok)
	}
	return toks
}

func skipLine(src string, i int) int {
	for i < len(src) && src[i] != '\n' {
		i++
	}
	return i
}

// skipString returns the index just past the literal starting at i.
// Triple quotes cover Python strings and Java text blocks.
func skipString(src string, i int, lang Language) int {
	n := len(src)
	q := src[i]
	if (lang == Python || q == '"') && i+2 < n && src[i+1] == q && src[i+2] == q {
		triple := src[i : i+3]
		end := strings.Index(src[i+3:], triple)
		if end < 0 {
			return n
		}
		return i + 3 + end + 3
	}
	for j := i + 1; j < n; j++ {
		switch src[j] {
		case '\\':
			j++
		case q:
			return j + 1
		case '\n':
			return j
		}
	}
	return n
}

func isIdentStart(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c >= 0x80
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

// matchParen returns the index of the ")" closing the "(" at open, or -1.
func matchParen(toks []token, open int) int {
	depth := 0
	for i := open; i < len(toks); i++ {
		if toks[i].kind != tokPunct {
			continue
		}
		switch toks[i].text {
		case "(":
			depth++
		case ")":
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// joinTokens renders tokens compactly, keeping a space only between words.
func joinTokens(toks []token) string {
	var b strings.Builder
	for i, t := range toks {
		if i > 0 && isWord(toks[i-1]) && isWord(t) {
			b.WriteByte(' ')
		}
		b.WriteString(t.text)
	}
	return b.String()
}

func isWord(t token) bool {
	return t.kind == tokIdent || t.kind == tokNumber
}

// splitTopLevel splits tokens on commas outside any bracket pair.
// Angle brackets count as brackets so template arguments stay together.
func splitTopLevel(toks []token, angles bool) [][]token {
	var (
		groups [][]token
		cur    []token
		depth  int
	)
	for _, t := range toks {
		if t.kind == tokPunct {
			switch t.text {
			case "(", "[", "{":
				depth++
			case ")", "]", "}":
				depth--
			case "<":
				if angles {
					depth++
				}
			case ">":
				if angles {
					depth--
				}
			case ",":
				if depth == 0 {
					groups = append(groups, cur)
					cur = nil
					continue
				}
			}
		}
		cur = append(cur, t)
	}
	if len(cur) > 0 {
		groups = append(groups, cur)
	}
	return groups
}

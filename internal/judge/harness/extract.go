package harness

import "strings"

// Param is one declared parameter of the candidate callable.
type Param struct {
	Name string
	Type string // declared type; empty for unannotated Python parameters
}

// Callable describes the function or method the harness invokes.
type Callable struct {
	Name       string
	Params     []Param
	ReturnType string
	// Receiver is the enclosing class name for methods, empty for free functions.
	Receiver string
	Static   bool
}

var cppNonCallable = map[string]bool{
	"if": true, "for": true, "while": true, "switch": true, "return": true, "catch": true,
	"sizeof": true, "decltype": true, "alignof": true, "static_assert": true, "new": true,
	"delete": true, "throw": true, "operator": true, "else": true, "do": true, "case": true,
	"main": true,
}

var cppTrailing = map[string]bool{"const": true, "noexcept": true, "override": true, "final": true}

var cppModifiers = map[string]bool{
	"static": true, "inline": true, "virtual": true, "constexpr": true, "explicit": true, "friend": true,
}

var javaNonCallable = map[string]bool{
	"if": true, "for": true, "while": true, "switch": true, "return": true, "catch": true,
	"new": true, "throw": true, "else": true, "do": true, "case": true, "synchronized": true,
	"main": true,
}

var javaModifiers = map[string]bool{
	"public": true, "private": true, "protected": true, "static": true, "final": true,
	"abstract": true, "synchronized": true, "native": true, "strictfp": true, "default": true,
}

// hasEntryPoint reports whether the source already declares a program entry point.
func hasEntryPoint(toks []token, lang Language) bool {
	for i, t := range toks {
		if t.kind != tokIdent {
			continue
		}
		switch lang {
		case Python:
			if t.text == "__name__" {
				return true
			}
		case CPP:
			if t.text == "main" && i+1 < len(toks) && toks[i+1].text == "(" && i > 0 && toks[i-1].text == "int" {
				return true
			}
		case Java:
			if t.text == "main" && i+1 < len(toks) && toks[i+1].text == "(" && i > 0 && toks[i-1].text == "void" {
				return true
			}
		}
	}
	return false
}

type classScope struct {
	name   string
	depth  int
	public bool
}

type candidate struct {
	Callable
	exported bool
}

// extractCpp finds free functions and class members defined with a body.
// A public member of Solution wins; otherwise the last free function does,
// since helpers have to be declared before the function that calls them.
func extractCpp(toks []token) (*Callable, bool) {
	var (
		depth        int
		scopes       []classScope
		pendingClass string
		pendingOpen  bool
		free         []Callable
		members      []candidate
	)
	for i := 0; i < len(toks); i++ {
		t := toks[i]
		if t.kind == tokPunct {
			switch t.text {
			case "{":
				depth++
				if pendingClass != "" {
					scopes = append(scopes, classScope{name: pendingClass, depth: depth, public: pendingOpen})
					pendingClass = ""
				}
			case "}":
				if len(scopes) > 0 && scopes[len(scopes)-1].depth == depth {
					scopes = scopes[:len(scopes)-1]
				}
				depth--
			case ";":
				pendingClass = ""
			case ":":
				if len(scopes) > 0 && scopes[len(scopes)-1].depth == depth && i > 0 {
					switch toks[i-1].text {
					case "public":
						scopes[len(scopes)-1].public = true
					case "private", "protected":
						scopes[len(scopes)-1].public = false
					}
				}
			}
			continue
		}
		if t.kind != tokIdent {
			continue
		}
		if (t.text == "class" || t.text == "struct") && i+1 < len(toks) && toks[i+1].kind == tokIdent {
			pendingClass = toks[i+1].text
			pendingOpen = t.text == "struct"
			i++
			continue
		}

		inClass := len(scopes) > 0 && scopes[len(scopes)-1].depth == depth
		if depth != 0 && !inClass {
			continue
		}
		if cppNonCallable[t.text] || i+1 >= len(toks) || toks[i+1].text != "(" || i == 0 || !cppTypeEnd(toks[i-1]) {
			continue
		}
		closing := matchParen(toks, i+1)
		if closing < 0 {
			continue
		}
		k := closing + 1
		for k < len(toks) && cppTrailing[toks[k].text] {
			k++
		}
		if k < len(toks) && toks[k].text == "->" {
			for k < len(toks) && toks[k].text != "{" && toks[k].text != ";" {
				k++
			}
		}
		if k >= len(toks) || toks[k].text != "{" {
			continue
		}

		c := Callable{
			Name:       t.text,
			Params:     typedParams(toks[i+2:closing], true),
			ReturnType: leadingType(toks, i, cppModifiers),
			Static:     hasModifier(toks, i, "static"),
		}
		if inClass {
			scope := scopes[len(scopes)-1]
			c.Receiver = scope.name
			members = append(members, candidate{Callable: c, exported: scope.public})
		} else {
			free = append(free, c)
		}
		i = k - 1
	}

	for _, m := range members {
		if m.Receiver == "Solution" && m.exported {
			c := m.Callable
			return &c, true
		}
	}
	if len(free) > 0 {
		c := free[len(free)-1]
		return &c, true
	}
	for _, m := range members {
		if m.exported {
			c := m.Callable
			return &c, true
		}
	}
	return nil, false
}

func cppTypeEnd(t token) bool {
	switch t.kind {
	case tokIdent:
		switch t.text {
		case "return", "else", "new", "delete", "throw", "case", "goto":
			return false
		}
		return true
	case tokPunct:
		return t.text == ">" || t.text == "*" || t.text == "&"
	}
	return false
}

// extractJava finds methods declared directly inside a class body.
// Prefers a public method of Solution, then any method of Solution,
// then the first method of the first class.
func extractJava(toks []token) (*Callable, bool) {
	var (
		depth        int
		scopes       []classScope
		pendingClass string
		found        []candidate
	)
	for i := 0; i < len(toks); i++ {
		t := toks[i]
		if t.kind == tokPunct {
			switch t.text {
			case "{":
				depth++
				if pendingClass != "" {
					scopes = append(scopes, classScope{name: pendingClass, depth: depth})
					pendingClass = ""
				}
			case "}":
				if len(scopes) > 0 && scopes[len(scopes)-1].depth == depth {
					scopes = scopes[:len(scopes)-1]
				}
				depth--
			}
			continue
		}
		if t.kind != tokIdent {
			continue
		}
		if (t.text == "class" || t.text == "interface" || t.text == "enum" || t.text == "record") &&
			i+1 < len(toks) && toks[i+1].kind == tokIdent {
			pendingClass = toks[i+1].text
			i++
			continue
		}
		if len(scopes) == 0 || scopes[len(scopes)-1].depth != depth {
			continue
		}
		scope := scopes[len(scopes)-1]
		if javaNonCallable[t.text] || t.text == scope.name || i+1 >= len(toks) || toks[i+1].text != "(" || i == 0 || !javaTypeEnd(toks[i-1]) {
			continue
		}
		closing := matchParen(toks, i+1)
		if closing < 0 {
			continue
		}
		k := closing + 1
		if k < len(toks) && toks[k].text == "throws" {
			for k < len(toks) && toks[k].text != "{" && toks[k].text != ";" {
				k++
			}
		}
		if k >= len(toks) || toks[k].text != "{" {
			continue
		}
		found = append(found, candidate{
			Callable: Callable{
				Name:       t.text,
				Params:     typedParams(toks[i+2:closing], true),
				ReturnType: leadingType(toks, i, javaModifiers),
				Receiver:   scope.name,
				Static:     hasModifier(toks, i, "static"),
			},
			exported: hasModifier(toks, i, "public"),
		})
		i = k - 1
	}

	for _, c := range found {
		if c.Receiver == "Solution" && c.exported {
			out := c.Callable
			return &out, true
		}
	}
	for _, c := range found {
		if c.Receiver == "Solution" {
			out := c.Callable
			return &out, true
		}
	}
	if len(found) > 0 {
		out := found[0].Callable
		return &out, true
	}
	return nil, false
}

func javaTypeEnd(t token) bool {
	switch t.kind {
	case tokIdent:
		switch t.text {
		case "return", "else", "new", "throw", "case":
			return false
		}
		return true
	case tokPunct:
		return t.text == ">" || t.text == "]"
	}
	return false
}

func hasJavaClass(toks []token) bool {
	for _, t := range toks {
		if t.kind == tokIdent && t.text == "class" {
			return true
		}
	}
	return false
}

type pyScope struct {
	class  string // empty for def scopes
	indent int
}

// pyDef is a top-level def and the token range of its body.
type pyDef struct {
	c          Callable
	start, end int
}

// extractPython finds def statements by indentation. A public method of class
// Solution wins; otherwise the first public top-level def that nothing outside its
// own body calls, so helpers may come before or after the entry function.
func extractPython(toks []token) (*Callable, bool) {
	var (
		scopes  []pyScope
		bracket int
		free    []pyDef
		methods []Callable
	)
	for i := 0; i < len(toks); i++ {
		t := toks[i]
		if t.first && bracket == 0 {
			for len(scopes) > 0 && t.indent <= scopes[len(scopes)-1].indent {
				scopes = scopes[:len(scopes)-1]
			}
		}
		if t.kind == tokPunct {
			switch t.text {
			case "(", "[", "{":
				bracket++
			case ")", "]", "}":
				bracket--
			}
			continue
		}
		if t.kind != tokIdent || bracket != 0 || !t.first || i+1 >= len(toks) || toks[i+1].kind != tokIdent {
			continue
		}
		switch t.text {
		case "class":
			scopes = append(scopes, pyScope{class: toks[i+1].text, indent: t.indent})
		case "def":
			if i+2 >= len(toks) || toks[i+2].text != "(" {
				continue
			}
			closing := matchParen(toks, i+2)
			if closing < 0 {
				continue
			}
			c := Callable{Name: toks[i+1].text, Params: pythonParams(toks[i+3 : closing])}
			for k := closing + 1; k < len(toks) && toks[k].text != ":"; k++ {
				if toks[k].text == "->" {
					end := k + 1
					for end < len(toks) && toks[end].text != ":" {
						end++
					}
					c.ReturnType = joinTokens(toks[k+1 : end])
					break
				}
			}
			switch {
			case len(scopes) == 0:
				free = append(free, pyDef{c: c, start: i, end: pyBlockEnd(toks, i)})
			case scopes[len(scopes)-1].class != "":
				c.Receiver = scopes[len(scopes)-1].class
				if len(c.Params) > 0 && (c.Params[0].Name == "self" || c.Params[0].Name == "cls") {
					c.Params = c.Params[1:]
				}
				methods = append(methods, c)
			}
			scopes = append(scopes, pyScope{indent: t.indent})
		}
	}

	for _, m := range methods {
		if m.Receiver == "Solution" && !strings.HasPrefix(m.Name, "_") {
			c := m
			return &c, true
		}
	}
	var fallback *Callable
	for _, d := range free {
		if strings.HasPrefix(d.c.Name, "_") {
			continue
		}
		c := d.c
		if !calledOutside(toks, c.Name, d.start, d.end) {
			return &c, true
		}
		if fallback == nil {
			fallback = &c
		}
	}
	return fallback, fallback != nil
}

// pyBlockEnd returns the index just past the block opened by the def at start.
func pyBlockEnd(toks []token, start int) int {
	indent := toks[start].indent
	bracket := 0
	for k := start + 1; k < len(toks); k++ {
		t := toks[k]
		if t.first && bracket == 0 && t.indent <= indent {
			return k
		}
		if t.kind == tokPunct {
			switch t.text {
			case "(", "[", "{":
				bracket++
			case ")", "]", "}":
				bracket--
			}
		}
	}
	return len(toks)
}

// calledOutside reports whether name(...) is called anywhere except toks[start:end].
func calledOutside(toks []token, name string, start, end int) bool {
	for k := 0; k+1 < len(toks); k++ {
		if k >= start && k < end {
			continue
		}
		if toks[k].kind == tokIdent && toks[k].text == name && toks[k+1].text == "(" &&
			(k == 0 || toks[k-1].text != "def") {
			return true
		}
	}
	return false
}

// typedParams parses "type name" groups, dropping default values.
func typedParams(toks []token, angles bool) []Param {
	var params []Param
	for _, group := range splitTopLevel(toks, angles) {
		for j, t := range group {
			if t.text == "=" {
				group = group[:j]
				break
			}
		}
		group = dropAnnotations(group)
		if len(group) == 0 || (len(group) == 1 && group[0].text == "void") {
			continue
		}
		nameIdx := -1
		for j := len(group) - 1; j >= 0; j-- {
			if group[j].kind == tokIdent {
				nameIdx = j
				break
			}
		}
		if nameIdx <= 0 {
			params = append(params, Param{Type: joinTokens(group)})
			continue
		}
		typ := append([]token{}, group[:nameIdx]...)
		typ = append(typ, group[nameIdx+1:]...) // C-style "int nums[]"
		params = append(params, Param{Name: group[nameIdx].text, Type: stripWord(joinTokens(typ), "final")})
	}
	return params
}

func pythonParams(toks []token) []Param {
	var params []Param
	for _, group := range splitTopLevel(toks, false) {
		if len(group) == 0 || group[0].kind != tokIdent {
			continue // *args, **kwargs and the "/" "*" markers
		}
		p := Param{Name: group[0].text}
		if len(group) > 2 && group[1].text == ":" {
			end := len(group)
			for j := 2; j < len(group); j++ {
				if group[j].text == "=" {
					end = j
					break
				}
			}
			p.Type = joinTokens(group[2:end])
		}
		params = append(params, p)
	}
	return params
}

// leadingType walks back from the callable name to the previous declaration boundary.
func leadingType(toks []token, nameIdx int, modifiers map[string]bool) string {
	start := nameIdx
	for start > 0 {
		prev := toks[start-1]
		if prev.kind == tokPunct && (prev.text == ";" || prev.text == "{" || prev.text == "}" || prev.text == ":") {
			break
		}
		start--
	}
	var typ []token
	for _, t := range dropAnnotations(toks[start:nameIdx]) {
		if t.kind == tokIdent && modifiers[t.text] {
			continue
		}
		typ = append(typ, t)
	}
	return joinTokens(typ)
}

func hasModifier(toks []token, nameIdx int, modifier string) bool {
	for i := nameIdx - 1; i >= 0; i-- {
		t := toks[i]
		if t.kind == tokPunct && (t.text == ";" || t.text == "{" || t.text == "}") {
			return false
		}
		if t.kind == tokIdent && t.text == modifier {
			return true
		}
	}
	return false
}

// dropAnnotations removes Java "@Name" and "@Name(...)" annotations.
func dropAnnotations(toks []token) []token {
	out := toks[:0:0]
	for i := 0; i < len(toks); i++ {
		if toks[i].text == "@" && i+1 < len(toks) && toks[i+1].kind == tokIdent {
			i++
			if i+1 < len(toks) && toks[i+1].text == "(" {
				if closing := matchParen(toks, i+1); closing > 0 {
					i = closing
				}
			}
			continue
		}
		out = append(out, toks[i])
	}
	return out
}

func stripWord(s, word string) string {
	fields := strings.Fields(s)
	out := fields[:0]
	for _, f := range fields {
		if f != word {
			out = append(out, f)
		}
	}
	return strings.Join(out, " ")
}

package harness

import (
	"fmt"
	"strings"
)

// HarnessError reports that no runnable program could be derived from the source.
type HarnessError struct {
	Language Language
	Reason   string
}

func (e *HarnessError) Error() string {
	return fmt.Sprintf("cannot build %s harness: %s", e.Language, e.Reason)
}

// Request is the input to Generate.
type Request struct {
	Source   string
	Language Language
	Tags     []string
}

// Program is the text sent to the judge.
type Program struct {
	Source string
	// Wrapped is false when the source already had its own entry point.
	Wrapped  bool
	Family   Family
	Callable *Callable
}

// Generate wraps candidate source in a stdin/stdout program for its language.
// Sources that declare their own entry point are returned unchanged.
// Output depends only on the request.
func Generate(req Request) (Program, error) {
	lang := req.Language
	if lang.JudgeID() == 0 {
		return Program{}, &HarnessError{Language: lang, Reason: "unsupported language"}
	}
	if strings.TrimSpace(req.Source) == "" {
		return Program{}, &HarnessError{Language: lang, Reason: "source is empty"}
	}

	toks := tokenize(req.Source, lang)
	if hasEntryPoint(toks, lang) {
		return Program{Source: req.Source, Family: FamilyForTags(req.Tags)}, nil
	}

	source := req.Source
	var (
		callable *Callable
		ok       bool
	)
	switch lang {
	case CPP:
		callable, ok = extractCpp(toks)
	case Java:
		if !hasJavaClass(toks) {
			source = wrapJavaClass(source)
			toks = tokenize(source, Java)
		}
		callable, ok = extractJava(toks)
	case Python:
		callable, ok = extractPython(toks)
	}
	if !ok {
		return Program{}, &HarnessError{Language: lang, Reason: "no function or method declaration found"}
	}

	family, err := selectFamily(req.Tags, callable)
	if err != nil {
		return Program{}, &HarnessError{Language: lang, Reason: err.Error()}
	}

	hasListNode := definesType(toks, "ListNode")
	var out string
	switch lang {
	case CPP:
		out, err = emitCpp(source, callable, family, hasListNode)
	case Java:
		out, err = emitJava(source, callable, family, hasListNode)
	case Python:
		out, err = emitPython(source, callable, family, hasListNode)
	}
	if err != nil {
		return Program{}, &HarnessError{Language: lang, Reason: err.Error()}
	}
	return Program{Source: out, Wrapped: true, Family: family, Callable: callable}, nil
}

func definesType(toks []token, name string) bool {
	for i := 0; i+1 < len(toks); i++ {
		switch toks[i].text {
		case "class", "struct":
			if toks[i+1].text == name {
				return true
			}
		}
	}
	return false
}

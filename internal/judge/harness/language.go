package harness

import "strings"

// Language identifies a supported submission language.
type Language string

const (
	CPP    Language = "cpp"
	Java   Language = "java"
	Python Language = "python"
)

// Judge0 CE language ids.
var judgeIDs = map[Language]int{
	CPP:    54, // C++ (GCC 9.2.0)
	Java:   62, // Java (OpenJDK 13.0.1)
	Python: 71, // Python (3.8.1)
}

var languageAliases = map[string]Language{
	"cpp":     CPP,
	"c++":     CPP,
	"java":    Java,
	"python":  Python,
	"python3": Python,
	"py":      Python,
}

// ParseLanguage resolves a user supplied language name.
func ParseLanguage(name string) (Language, bool) {
	lang, ok := languageAliases[strings.ToLower(strings.TrimSpace(name))]
	return lang, ok
}

// Languages lists the supported languages in a stable order.
func Languages() []Language {
	return []Language{CPP, Java, Python}
}

// LanguageNames lists the canonical names, for validation rules.
func LanguageNames() []interface{} {
	out := make([]interface{}, 0, len(judgeIDs))
	for _, l := range Languages() {
		out = append(out, string(l))
	}
	return out
}

// JudgeID returns the remote judge language id, or 0 for unknown languages.
func (l Language) JudgeID() int {
	return judgeIDs[l]
}

func (l Language) String() string {
	return string(l)
}

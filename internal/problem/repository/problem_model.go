package repository

import "time"

// Difficulty buckets problems for progress counters.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Difficulties lists valid difficulty values for validation rules.
func Difficulties() []interface{} {
	return []interface{}{string(DifficultyEasy), string(DifficultyMedium), string(DifficultyHard)}
}

// TestCase is one stored test. Hidden tests are never returned to users.
type TestCase struct {
	Ordinal        int    `json:"ordinal"`
	Input          string `json:"input"`
	ExpectedOutput string `json:"expectedOutput"`
	Explanation    string `json:"explanation,omitempty"`
	Hidden         bool   `json:"hidden"`
}

// ReferenceSolution is the author's solution in one language.
type ReferenceSolution struct {
	Language string `json:"language"`
	Source   string `json:"source"`
}

// Problem is the problem bank entity with its tests.
type Problem struct {
	ID           int64             `json:"id"`
	Slug         string            `json:"slug"`
	Title        string            `json:"title"`
	Description  string            `json:"description"`
	Difficulty   Difficulty        `json:"difficulty"`
	Tags         []string          `json:"tags"`
	StarterCode  map[string]string `json:"starterCode,omitempty"`
	AuthorID     int64             `json:"authorId"`
	VisibleTests []TestCase        `json:"visibleTests"`
	HiddenTests  []TestCase        `json:"hiddenTests"`
	CreatedAt    time.Time         `json:"createdAt"`
}

// AllTests returns visible then hidden tests.
func (p *Problem) AllTests() []TestCase {
	out := make([]TestCase, 0, len(p.VisibleTests)+len(p.HiddenTests))
	out = append(out, p.VisibleTests...)
	return append(out, p.HiddenTests...)
}

package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"codearena/internal/common/db"
	"codearena/internal/judge/harness"
	judgesvc "codearena/internal/judge/service"
	"codearena/internal/judge/verdict"
	"codearena/internal/problem/repository"
	appErr "codearena/pkg/errors"
	"codearena/pkg/utils/logger"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/gosimple/slug"
	"go.uber.org/zap"
)

// Judge runs a source against a batch of tests.
type Judge interface {
	Run(ctx context.Context, req judgesvc.RunRequest) (verdict.Verdict, error)
}

// Transactor opens a database transaction.
type Transactor interface {
	Transaction(ctx context.Context, fn func(tx db.Transaction) error) error
}

// ProblemService creates problems after validating their reference solutions.
type ProblemService struct {
	repo  repository.ProblemRepository
	tx    Transactor
	judge Judge
}

// NewProblemService creates a new ProblemService.
func NewProblemService(repo repository.ProblemRepository, tx Transactor, judge Judge) *ProblemService {
	return &ProblemService{repo: repo, tx: tx, judge: judge}
}

// TestInput is one test as supplied by an author.
type TestInput struct {
	Input          string `json:"input"`
	ExpectedOutput string `json:"expectedOutput"`
	Explanation    string `json:"explanation"`
}

// CreateInput represents input for problem creation.
type CreateInput struct {
	Title              string
	Description        string
	Difficulty         string
	Tags               []string
	StarterCode        map[string]string
	VisibleTests       []TestInput
	HiddenTests        []TestInput
	ReferenceSolutions map[string]string
	AuthorID           int64
}

func (in CreateInput) validate() error {
	err := validation.ValidateStruct(&in,
		validation.Field(&in.Title, validation.Required, validation.Length(3, 200)),
		validation.Field(&in.Description, validation.Required),
		validation.Field(&in.Difficulty, validation.Required, validation.In(repository.Difficulties()...)),
		validation.Field(&in.Tags, validation.Required),
		validation.Field(&in.HiddenTests, validation.Required),
		validation.Field(&in.ReferenceSolutions, validation.Required),
		validation.Field(&in.AuthorID, validation.Required),
	)
	if err != nil {
		return appErr.FromValidation(err)
	}
	for _, tag := range in.Tags {
		if !harness.IsKnownTag(tag) {
			return appErr.New(appErr.InvalidTag).WithMessagef("unknown tag %q", tag).WithDetail("tag", tag)
		}
	}
	if err := checkLanguages(in.StarterCode, "starter code"); err != nil {
		return err
	}
	if err := checkLanguages(in.ReferenceSolutions, "reference solution"); err != nil {
		return err
	}
	for lang, source := range in.ReferenceSolutions {
		if strings.TrimSpace(source) == "" {
			return appErr.New(appErr.ValidationFailed).WithMessagef("reference solution for %s is empty", lang)
		}
	}
	return nil
}

// checkLanguages rejects unsupported names and aliases naming the same language twice.
func checkLanguages(byName map[string]string, what string) error {
	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)
	seen := make(map[harness.Language]string, len(names))
	for _, name := range names {
		lang, ok := harness.ParseLanguage(name)
		if !ok {
			return appErr.New(appErr.LanguageNotSupported).WithMessagef("%s language %q is not supported", what, name)
		}
		if prev, dup := seen[lang]; dup {
			return appErr.New(appErr.ValidationFailed).
				WithMessagef("%s given twice for %s (%q and %q)", what, lang, prev, name).
				WithDetail("language", string(lang))
		}
		seen[lang] = name
	}
	return nil
}

// Create validates the problem, judges every reference solution against all tests and
// only then persists the problem. A failing reference solution leaves nothing behind.
func (s *ProblemService) Create(ctx context.Context, input CreateInput) (*repository.Problem, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	family := harness.FamilyForTags(input.Tags)
	visible, err := buildTests(family, input.VisibleTests, false)
	if err != nil {
		return nil, err
	}
	hidden, err := buildTests(family, input.HiddenTests, true)
	if err != nil {
		return nil, err
	}

	problem := &repository.Problem{
		Slug:         slug.Make(input.Title),
		Title:        strings.TrimSpace(input.Title),
		Description:  input.Description,
		Difficulty:   repository.Difficulty(input.Difficulty),
		Tags:         input.Tags,
		StarterCode:  canonicalStarter(input.StarterCode),
		AuthorID:     input.AuthorID,
		VisibleTests: visible,
		HiddenTests:  hidden,
	}
	refs := sortedReferences(input.ReferenceSolutions)

	if err := s.validateReferences(ctx, problem, refs); err != nil {
		return nil, err
	}

	err = s.tx.Transaction(ctx, func(tx db.Transaction) error {
		_, err := s.repo.Create(ctx, tx, problem, refs)
		return err
	})
	if err != nil {
		if errors.Is(err, repository.ErrSlugConflict) {
			return nil, appErr.New(appErr.ProblemSlugConflict).WithDetail("slug", problem.Slug)
		}
		return nil, appErr.Wrap(fmt.Errorf("create problem failed: %w", err), appErr.ProblemCreateFailed)
	}
	logger.Info(ctx, "problem created",
		zap.Int64("problem_id", problem.ID),
		zap.String("slug", problem.Slug),
		zap.Int("visible_tests", len(visible)),
		zap.Int("hidden_tests", len(hidden)),
	)
	return problem, nil
}

// validateReferences judges each reference solution in language-name order and fails on
// the first non-accepted test.
func (s *ProblemService) validateReferences(ctx context.Context, problem *repository.Problem, refs []repository.ReferenceSolution) error {
	tests := JudgeTests(problem.AllTests())
	for _, ref := range refs {
		lang, _ := harness.ParseLanguage(ref.Language)
		v, err := s.judge.Run(ctx, judgesvc.RunRequest{
			Purpose:  judgesvc.PurposeReference,
			Source:   ref.Source,
			Language: lang,
			Tags:     problem.Tags,
			Tests:    tests,
		})
		if err != nil {
			if appErr.GetCode(err) == appErr.HarnessGenerationFailed {
				return appErr.New(appErr.ReferenceSolutionFailed).
					WithMessagef("%s reference solution: %s", ref.Language, appErr.GetError(err).Message).
					WithDetail("language", ref.Language)
			}
			return err
		}
		if v.AllPassed {
			continue
		}
		failure := v.FirstError
		if failure == nil {
			return appErr.New(appErr.ReferenceSolutionFailed).WithDetail("language", ref.Language)
		}
		logger.Warn(ctx, "reference solution rejected",
			zap.String("language", ref.Language),
			zap.Int("test", failure.Index),
			zap.String("kind", string(failure.Kind)),
		)
		return appErr.New(appErr.ReferenceSolutionFailed).
			WithMessagef("%s reference solution failed test %d", ref.Language, failure.Index+1).
			WithDetail("language", ref.Language).
			WithDetail("test", failure.Index+1).
			WithDetail("kind", string(failure.Kind)).
			WithDetail("diagnostic", failure.Message)
	}
	return nil
}

// Get returns a problem with all tests. Callers decide what to expose.
func (s *ProblemService) Get(ctx context.Context, problemID int64) (*repository.Problem, error) {
	if problemID <= 0 {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("invalid problem id")
	}
	problem, err := s.repo.GetByID(ctx, nil, problemID)
	if err != nil {
		if errors.Is(err, repository.ErrProblemNotFound) {
			return nil, appErr.New(appErr.ProblemNotFound)
		}
		return nil, appErr.Wrap(fmt.Errorf("get problem failed: %w", err), appErr.DatabaseError)
	}
	return problem, nil
}

// JudgeTests converts stored tests into judge test cases, keeping order.
func JudgeTests(tests []repository.TestCase) []verdict.TestCase {
	out := make([]verdict.TestCase, 0, len(tests))
	for _, tc := range tests {
		out = append(out, verdict.TestCase{
			Input:          tc.Input,
			ExpectedOutput: tc.ExpectedOutput,
			Explanation:    tc.Explanation,
		})
	}
	return out
}

func buildTests(family harness.Family, in []TestInput, hidden bool) ([]repository.TestCase, error) {
	out := make([]repository.TestCase, 0, len(in))
	for i, tc := range in {
		input := strings.TrimSpace(tc.Input)
		if err := family.CheckInput(input); err != nil {
			kind := "visible"
			if hidden {
				kind = "hidden"
			}
			return nil, appErr.New(appErr.TestCaseInvalid).
				WithMessagef("%s test %d: %v", kind, i+1, err).
				WithDetail("family", family.String())
		}
		out = append(out, repository.TestCase{
			Ordinal:        i,
			Input:          input,
			ExpectedOutput: harness.CanonicalOutput(tc.ExpectedOutput),
			Explanation:    tc.Explanation,
			Hidden:         hidden,
		})
	}
	return out, nil
}

func sortedReferences(in map[string]string) []repository.ReferenceSolution {
	out := make([]repository.ReferenceSolution, 0, len(in))
	for name, source := range in {
		lang, _ := harness.ParseLanguage(name)
		out = append(out, repository.ReferenceSolution{Language: string(lang), Source: source})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Language < out[j].Language })
	return out
}

func canonicalStarter(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for name, code := range in {
		lang, _ := harness.ParseLanguage(name)
		out[string(lang)] = code
	}
	return out
}

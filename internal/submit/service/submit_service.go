package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"codearena/internal/common/cache"
	"codearena/internal/common/db"
	"codearena/internal/judge/harness"
	judgesvc "codearena/internal/judge/service"
	"codearena/internal/judge/verdict"
	problemRepo "codearena/internal/problem/repository"
	problemSvc "codearena/internal/problem/service"
	"codearena/internal/submit/repository"
	appErr "codearena/pkg/errors"
	"codearena/pkg/utils/logger"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	idempotencyKeyPrefix  = "arena:submit:idempotency:"
	processingMarker      = "processing"
	defaultIdempotencyTTL = 10 * time.Minute
	defaultMaxCodeBytes   = 64 * 1024
)

// Judge runs a source against a batch of tests.
type Judge interface {
	Run(ctx context.Context, req judgesvc.RunRequest) (verdict.Verdict, error)
}

// ProblemReader loads problems with their tests.
type ProblemReader interface {
	GetByID(ctx context.Context, tx db.Transaction, problemID int64) (*problemRepo.Problem, error)
}

// ProgressRecorder records judged submissions into user progress.
type ProgressRecorder interface {
	Record(ctx context.Context, ev SolveEvent) ([]string, error)
}

// TimeoutConfig holds timeout settings for external calls.
type TimeoutConfig struct {
	DB      time.Duration
	Cache   time.Duration
	MQ      time.Duration
	Storage time.Duration
}

// Config holds submit service dependencies and settings.
type Config struct {
	SubmissionRepo repository.SubmissionRepository
	Problems       ProblemReader
	Progress       ProgressRecorder
	Judge          Judge
	// Archive, Events and Cache are optional.
	Archive *SourceArchive
	Events  EventPublisher
	Cache   cache.Cache

	MaxCodeBytes   int
	IdempotencyTTL time.Duration
	Timeouts       TimeoutConfig
}

// SubmitService judges hidden-test submissions and visible-test runs.
type SubmitService struct {
	submissionRepo repository.SubmissionRepository
	problems       ProblemReader
	progress       ProgressRecorder
	judge          Judge
	archive        *SourceArchive
	events         EventPublisher
	cache          cache.Cache

	maxCodeBytes   int
	idempotencyTTL time.Duration
	timeouts       TimeoutConfig
	now            func() time.Time
}

// SubmitInput describes a hidden-test submission.
type SubmitInput struct {
	ProblemID      int64
	UserID         int64
	Language       string
	SourceCode     string
	IdempotencyKey string
}

// SubmitResult is a judged submission. Fault is set when a test failed.
type SubmitResult struct {
	Submission *repository.Submission `json:"submission"`
	Fault      *verdict.Failure       `json:"fault,omitempty"`
	Badges     []string               `json:"badges,omitempty"`
}

// RunInput describes a visible-test run.
type RunInput struct {
	ProblemID  int64
	UserID     int64
	Language   string
	SourceCode string
}

// NewSubmitService creates a new submit service.
func NewSubmitService(cfg Config) (*SubmitService, error) {
	if cfg.SubmissionRepo == nil {
		return nil, fmt.Errorf("submission repository is required")
	}
	if cfg.Problems == nil {
		return nil, fmt.Errorf("problem repository is required")
	}
	if cfg.Progress == nil {
		return nil, fmt.Errorf("progress recorder is required")
	}
	if cfg.Judge == nil {
		return nil, fmt.Errorf("judge is required")
	}
	if cfg.MaxCodeBytes <= 0 {
		cfg.MaxCodeBytes = defaultMaxCodeBytes
	}
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = defaultIdempotencyTTL
	}
	return &SubmitService{
		submissionRepo: cfg.SubmissionRepo,
		problems:       cfg.Problems,
		progress:       cfg.Progress,
		judge:          cfg.Judge,
		archive:        cfg.Archive,
		events:         cfg.Events,
		cache:          cfg.Cache,
		maxCodeBytes:   cfg.MaxCodeBytes,
		idempotencyTTL: cfg.IdempotencyTTL,
		timeouts:       cfg.Timeouts,
		now:            time.Now,
	}, nil
}

// Submit judges a source against the problem's hidden tests and records the outcome.
// A judge fault still moves the submission out of pending before the fault is returned.
func (s *SubmitService) Submit(ctx context.Context, input SubmitInput) (*SubmitResult, error) {
	lang, err := s.validateSource(input.ProblemID, input.UserID, input.Language, input.SourceCode)
	if err != nil {
		return nil, err
	}

	acquired, existingID, err := s.acquireIdempotency(ctx, input.UserID, input.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	if !acquired && existingID != "" {
		existing, err := s.GetSubmission(ctx, input.UserID, existingID)
		if err != nil {
			return nil, err
		}
		return &SubmitResult{Submission: existing}, nil
	}

	problem, err := s.loadProblem(ctx, input.ProblemID)
	if err != nil {
		s.releaseIdempotency(ctx, input.UserID, input.IdempotencyKey, acquired)
		return nil, err
	}

	submission := &repository.Submission{
		ID:         uuid.NewString(),
		ProblemID:  problem.ID,
		UserID:     input.UserID,
		Language:   string(lang),
		SourceCode: input.SourceCode,
		SourceHash: hashSource(input.SourceCode),
		Status:     repository.StatusPending,
		TestsTotal: len(problem.HiddenTests),
		CreatedAt:  s.now().UTC(),
	}
	if s.archive != nil {
		ctxStorage := withTimeout(ctx, s.timeouts.Storage)
		key, err := s.archive.Put(ctxStorage.ctx, submission.ID, submission.Language, input.SourceCode)
		ctxStorage.cancel()
		if err != nil {
			s.releaseIdempotency(ctx, input.UserID, input.IdempotencyKey, acquired)
			return nil, err
		}
		submission.SourceKey = key
	}
	if err := s.createSubmission(ctx, submission); err != nil {
		s.releaseIdempotency(ctx, input.UserID, input.IdempotencyKey, acquired)
		return nil, err
	}
	s.finalizeIdempotency(ctx, input.UserID, input.IdempotencyKey, submission.ID, acquired)

	v, judgeErr := s.judge.Run(ctx, judgesvc.RunRequest{
		Purpose:  judgesvc.PurposeSubmit,
		Source:   input.SourceCode,
		Language: lang,
		Tags:     problem.Tags,
		Tests:    problemSvc.JudgeTests(problem.HiddenTests),
	})

	// The caller may have given up; the terminal write must still land.
	finishCtx := context.WithoutCancel(ctx)
	outcome := outcomeFor(v, judgeErr, s.now().UTC())
	if err := s.finishSubmission(finishCtx, submission, outcome); err != nil {
		return nil, err
	}
	if judgeErr != nil {
		logger.Warn(ctx, "submission judge fault",
			zap.String("submission_id", submission.ID),
			zap.Int("code", int(appErr.GetCode(judgeErr))),
			zap.Error(judgeErr),
		)
		return nil, judgeErr
	}

	badges, err := s.progress.Record(finishCtx, SolveEvent{
		UserID:     submission.UserID,
		ProblemID:  submission.ProblemID,
		Difficulty: string(problem.Difficulty),
		Accepted:   submission.Status == repository.StatusAccepted,
		JudgedAt:   outcome.JudgedAt,
	})
	if err != nil {
		logger.Error(ctx, "record progress failed", zap.String("submission_id", submission.ID), zap.Error(err))
	}
	s.publishJudged(finishCtx, submission, badges)

	logger.Info(ctx, "submission judged",
		zap.String("submission_id", submission.ID),
		zap.Int64("problem_id", submission.ProblemID),
		zap.String("status", submission.Status),
		zap.Int("tests_passed", submission.TestsPassed),
		zap.Int("tests_total", submission.TestsTotal),
	)
	return &SubmitResult{Submission: submission, Fault: v.FirstError, Badges: badges}, nil
}

// Run judges a source against the visible tests without persisting anything.
func (s *SubmitService) Run(ctx context.Context, input RunInput) (verdict.Verdict, error) {
	lang, err := s.validateSource(input.ProblemID, input.UserID, input.Language, input.SourceCode)
	if err != nil {
		return verdict.Verdict{}, err
	}
	problem, err := s.loadProblem(ctx, input.ProblemID)
	if err != nil {
		return verdict.Verdict{}, err
	}
	return s.judge.Run(ctx, judgesvc.RunRequest{
		Purpose:  judgesvc.PurposeRun,
		Source:   input.SourceCode,
		Language: lang,
		Tags:     problem.Tags,
		Tests:    problemSvc.JudgeTests(problem.VisibleTests),
	})
}

// GetSubmission returns a submission owned by userID.
func (s *SubmitService) GetSubmission(ctx context.Context, userID int64, submissionID string) (*repository.Submission, error) {
	if strings.TrimSpace(submissionID) == "" {
		return nil, appErr.ValidationError("submission_id", "required")
	}
	ctxDB := withTimeout(ctx, s.timeouts.DB)
	defer ctxDB.cancel()
	submission, err := s.submissionRepo.GetByID(ctxDB.ctx, nil, submissionID)
	if err != nil {
		if errors.Is(err, repository.ErrSubmissionNotFound) {
			return nil, appErr.New(appErr.SubmissionNotFound)
		}
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "get submission failed")
	}
	if submission.UserID != userID {
		return nil, appErr.New(appErr.SubmissionNotFound)
	}
	return submission, nil
}

// GetArchivedSource returns the archived source of a submission owned by userID.
func (s *SubmitService) GetArchivedSource(ctx context.Context, userID int64, submissionID string) (string, error) {
	submission, err := s.GetSubmission(ctx, userID, submissionID)
	if err != nil {
		return "", err
	}
	if s.archive == nil || submission.SourceKey == "" {
		return submission.SourceCode, nil
	}
	ctxStorage := withTimeout(ctx, s.timeouts.Storage)
	defer ctxStorage.cancel()
	return s.archive.Get(ctxStorage.ctx, submission.SourceKey, submission.SourceHash)
}

func (s *SubmitService) validateSource(problemID, userID int64, language, source string) (harness.Language, error) {
	err := validation.Errors{
		"problem_id":  validation.Validate(problemID, validation.Required, validation.Min(int64(1))),
		"user_id":     validation.Validate(userID, validation.Required),
		"language":    validation.Validate(language, validation.Required),
		"source_code": validation.Validate(strings.TrimSpace(source), validation.Required),
	}.Filter()
	if err != nil {
		return "", appErr.FromValidation(err)
	}
	if len(source) > s.maxCodeBytes {
		return "", appErr.New(appErr.CodeTooLarge).WithDetail("max_bytes", s.maxCodeBytes)
	}
	lang, ok := harness.ParseLanguage(language)
	if !ok {
		return "", appErr.New(appErr.LanguageNotSupported).WithMessagef("language %q is not supported", language)
	}
	return lang, nil
}

func (s *SubmitService) loadProblem(ctx context.Context, problemID int64) (*problemRepo.Problem, error) {
	ctxDB := withTimeout(ctx, s.timeouts.DB)
	defer ctxDB.cancel()
	problem, err := s.problems.GetByID(ctxDB.ctx, nil, problemID)
	if err != nil {
		if errors.Is(err, problemRepo.ErrProblemNotFound) {
			return nil, appErr.New(appErr.ProblemNotFound)
		}
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "get problem failed")
	}
	return problem, nil
}

func (s *SubmitService) createSubmission(ctx context.Context, submission *repository.Submission) error {
	ctxDB := withTimeout(ctx, s.timeouts.DB)
	defer ctxDB.cancel()
	if err := s.submissionRepo.Create(ctxDB.ctx, nil, submission); err != nil {
		return appErr.Wrapf(err, appErr.SubmissionCreateFailed, "create submission failed")
	}
	return nil
}

func (s *SubmitService) finishSubmission(ctx context.Context, submission *repository.Submission, outcome repository.Outcome) error {
	ctxDB := withTimeout(ctx, s.timeouts.DB)
	defer ctxDB.cancel()
	if err := s.submissionRepo.Finish(ctxDB.ctx, nil, submission.ID, outcome); err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "finish submission failed")
	}
	submission.Status = outcome.Status
	submission.TestsPassed = outcome.TestsPassed
	submission.RuntimeMs = outcome.RuntimeMs
	submission.MemoryKB = outcome.MemoryKB
	submission.ErrorMessage = outcome.ErrorMessage
	judgedAt := outcome.JudgedAt
	submission.JudgedAt = &judgedAt
	return nil
}

func (s *SubmitService) publishJudged(ctx context.Context, submission *repository.Submission, badges []string) {
	if s.events == nil {
		return
	}
	ctxMQ := withTimeout(ctx, s.timeouts.MQ)
	defer ctxMQ.cancel()
	if err := s.events.PublishJudged(ctxMQ.ctx, judgedEventFrom(submission, badges)); err != nil {
		logger.Warn(ctx, "publish judged event failed", zap.String("submission_id", submission.ID), zap.Error(err))
	}
}

func outcomeFor(v verdict.Verdict, judgeErr error, at time.Time) repository.Outcome {
	if judgeErr != nil {
		return repository.Outcome{
			Status:       repository.StatusError,
			ErrorMessage: appErr.GetError(judgeErr).Error(),
			JudgedAt:     at,
		}
	}
	outcome := repository.Outcome{
		Status:      repository.StatusWrongAnswer,
		TestsPassed: v.TestsPassed,
		RuntimeMs:   v.RuntimeMs,
		MemoryKB:    v.MemoryKB,
		JudgedAt:    at,
	}
	if v.AllPassed {
		outcome.Status = repository.StatusAccepted
	}
	if v.FirstError != nil {
		outcome.ErrorMessage = v.FirstError.Message
	}
	return outcome
}

func idempotencyCacheKey(userID int64, key string) string {
	return idempotencyKeyPrefix + strconv.FormatInt(userID, 10) + ":" + strings.TrimSpace(key)
}

func (s *SubmitService) acquireIdempotency(ctx context.Context, userID int64, key string) (bool, string, error) {
	if s.cache == nil || strings.TrimSpace(key) == "" {
		return true, "", nil
	}
	cacheKey := idempotencyCacheKey(userID, key)
	ctxCache := withTimeout(ctx, s.timeouts.Cache)
	defer ctxCache.cancel()

	ok, err := s.cache.SetNX(ctxCache.ctx, cacheKey, processingMarker, s.idempotencyTTL)
	if err != nil {
		return false, "", appErr.Wrapf(err, appErr.CacheError, "reserve idempotency key failed")
	}
	if ok {
		return true, "", nil
	}
	existing, err := s.cache.Get(ctxCache.ctx, cacheKey)
	if err != nil {
		return false, "", appErr.Wrapf(err, appErr.CacheError, "read idempotency key failed")
	}
	if existing != "" && existing != processingMarker {
		return false, existing, nil
	}
	return false, "", appErr.New(appErr.DuplicateSubmission).WithMessage("request is processing")
}

func (s *SubmitService) finalizeIdempotency(ctx context.Context, userID int64, key, submissionID string, acquired bool) {
	if !acquired || s.cache == nil || strings.TrimSpace(key) == "" {
		return
	}
	ctxCache := withTimeout(ctx, s.timeouts.Cache)
	defer ctxCache.cancel()
	if err := s.cache.Set(ctxCache.ctx, idempotencyCacheKey(userID, key), submissionID, s.idempotencyTTL); err != nil {
		logger.Warn(ctx, "update idempotency key failed", zap.Error(err))
	}
}

func (s *SubmitService) releaseIdempotency(ctx context.Context, userID int64, key string, acquired bool) {
	if !acquired || s.cache == nil || strings.TrimSpace(key) == "" {
		return
	}
	ctxCache := withTimeout(ctx, s.timeouts.Cache)
	defer ctxCache.cancel()
	if err := s.cache.Del(ctxCache.ctx, idempotencyCacheKey(userID, key)); err != nil {
		logger.Warn(ctx, "release idempotency key failed", zap.Error(err))
	}
}

type timeoutCtx struct {
	ctx    context.Context
	cancel context.CancelFunc
}

func withTimeout(ctx context.Context, timeout time.Duration) timeoutCtx {
	if timeout <= 0 {
		return timeoutCtx{ctx: ctx, cancel: func() {}}
	}
	ctxTimeout, cancel := context.WithTimeout(ctx, timeout)
	return timeoutCtx{ctx: ctxTimeout, cancel: cancel}
}

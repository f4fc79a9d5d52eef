package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"codearena/internal/common/metrics"
	"codearena/internal/judge/harness"
	"codearena/internal/judge/judge0"
	"codearena/internal/judge/verdict"
	appErr "codearena/pkg/errors"
	"codearena/pkg/utils/logger"

	"go.uber.org/zap"
)

// Purposes label metrics and logs by call site.
const (
	PurposeSubmit      = "submit"
	PurposeRun         = "run"
	PurposeReference   = "reference"
	PurposeCompetition = "competition"
)

const defaultAcquireTimeout = 2 * time.Second

// Judge is the remote batch judge.
type Judge interface {
	SubmitBatch(ctx context.Context, items []judge0.BatchItem) ([]string, error)
	AwaitResults(ctx context.Context, tokens []string) ([]judge0.Result, error)
}

// Runner wraps source into a harness, judges it against a test batch and aggregates.
type Runner struct {
	judge          Judge
	metrics        *metrics.JudgeMetrics
	timeout        time.Duration
	acquireTimeout time.Duration
	sem            chan struct{}
}

// Config holds runner dependencies and settings.
type Config struct {
	Judge   Judge
	Metrics *metrics.JudgeMetrics
	// Timeout bounds one batch from submit to the last poll.
	Timeout        time.Duration
	MaxConcurrent  int
	AcquireTimeout time.Duration
}

// RunRequest is one judging job.
type RunRequest struct {
	Purpose  string
	Source   string
	Language harness.Language
	Tags     []string
	Tests    []verdict.TestCase
}

// NewRunner creates a judge runner.
func NewRunner(cfg Config) (*Runner, error) {
	if cfg.Judge == nil {
		return nil, fmt.Errorf("judge client is required")
	}
	poolSize := cfg.MaxConcurrent
	if poolSize <= 0 {
		poolSize = 1
	}
	acquireTimeout := cfg.AcquireTimeout
	if acquireTimeout <= 0 {
		acquireTimeout = defaultAcquireTimeout
	}
	return &Runner{
		judge:          cfg.Judge,
		metrics:        cfg.Metrics,
		timeout:        cfg.Timeout,
		acquireTimeout: acquireTimeout,
		sem:            make(chan struct{}, poolSize),
	}, nil
}

// Run judges one source against tests in order.
// Harness failures map to HarnessGenerationFailed; judge failures keep their
// JudgeUnavailable or JudgeTimeout code.
func (r *Runner) Run(ctx context.Context, req RunRequest) (verdict.Verdict, error) {
	if len(req.Tests) == 0 {
		return verdict.Verdict{}, appErr.New(appErr.TestCaseInvalid).WithMessage("no test cases to judge")
	}
	prog, err := harness.Generate(harness.Request{Source: req.Source, Language: req.Language, Tags: req.Tags})
	if err != nil {
		return verdict.Verdict{}, harnessError(err)
	}

	if err := r.acquireSlot(ctx); err != nil {
		return verdict.Verdict{}, err
	}
	defer r.releaseSlot()

	ctxJudge := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctxJudge, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	items := make([]judge0.BatchItem, 0, len(req.Tests))
	for _, tc := range req.Tests {
		items = append(items, judge0.BatchItem{
			SourceCode:     prog.Source,
			LanguageID:     req.Language.JudgeID(),
			Stdin:          tc.Input,
			ExpectedOutput: tc.ExpectedOutput,
		})
	}

	start := time.Now()
	if r.metrics != nil {
		r.metrics.InFlight.Inc()
		defer r.metrics.InFlight.Dec()
	}
	tokens, err := r.judge.SubmitBatch(ctxJudge, items)
	if err != nil {
		r.observeFailure(ctx, req, start, err)
		return verdict.Verdict{}, err
	}
	results, err := r.judge.AwaitResults(ctxJudge, tokens)
	if err != nil {
		r.observeFailure(ctx, req, start, err)
		return verdict.Verdict{}, err
	}

	v := verdict.Aggregate(results, req.Tests)
	r.metrics.ObserveBatch(req.Purpose, req.Language.String(), "ok", time.Since(start))
	r.metrics.ObserveVerdict(req.Purpose, v.AllPassed)
	logger.Debug(ctx, "judge batch finished",
		zap.String("purpose", req.Purpose),
		zap.String("language", req.Language.String()),
		zap.String("family", prog.Family.String()),
		zap.Int("tests_passed", v.TestsPassed),
		zap.Int("tests_total", v.TestsTotal),
		zap.Duration("elapsed", time.Since(start)),
	)
	return v, nil
}

func (r *Runner) observeFailure(ctx context.Context, req RunRequest, start time.Time, err error) {
	outcome := "unavailable"
	if appErr.Is(err, appErr.JudgeTimeout) {
		outcome = "timeout"
	}
	r.metrics.ObserveBatch(req.Purpose, req.Language.String(), outcome, time.Since(start))
	logger.Warn(ctx, "judge batch failed",
		zap.String("purpose", req.Purpose),
		zap.String("language", req.Language.String()),
		zap.Error(err),
	)
}

func (r *Runner) acquireSlot(ctx context.Context) error {
	timer := time.NewTimer(r.acquireTimeout)
	defer timer.Stop()
	select {
	case r.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return appErr.Wrapf(ctx.Err(), appErr.JudgeTimeout, "waiting for a judge slot was cancelled")
	case <-timer.C:
		return appErr.New(appErr.JudgeUnavailable).WithMessage("all judge slots are busy")
	}
}

func (r *Runner) releaseSlot() {
	select {
	case <-r.sem:
	default:
	}
}

func harnessError(err error) error {
	var herr *harness.HarnessError
	if errors.As(err, &herr) {
		return appErr.Wrapf(err, appErr.HarnessGenerationFailed, "%s", herr.Error()).
			WithDetail("language", herr.Language.String()).
			WithDetail("reason", herr.Reason)
	}
	return appErr.Wrapf(err, appErr.HarnessGenerationFailed, "generate harness failed")
}

// FaultCode maps a judge verdict failure to an error code for callers that
// surface it as an error.
func FaultCode(f *verdict.Failure) appErr.ErrorCode {
	if f == nil {
		return appErr.Success
	}
	switch f.Kind {
	case verdict.CompileFault:
		return appErr.CompilationError
	case verdict.RuntimeFault:
		return appErr.RuntimeError
	default:
		return appErr.WrongAnswer
	}
}

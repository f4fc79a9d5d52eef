package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"codearena/internal/common/cache"
	"codearena/internal/common/db"
	"codearena/internal/common/mq"
	judgesvc "codearena/internal/judge/service"
	"codearena/internal/judge/verdict"
	problemRepo "codearena/internal/problem/repository"
	"codearena/internal/submit/repository"
	appErr "codearena/pkg/errors"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type fakeSubmissionRepo struct {
	mu          sync.Mutex
	submissions map[string]*repository.Submission
}

func newFakeSubmissionRepo() *fakeSubmissionRepo {
	return &fakeSubmissionRepo{submissions: make(map[string]*repository.Submission)}
}

func (r *fakeSubmissionRepo) Create(ctx context.Context, tx db.Transaction, s *repository.Submission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.submissions[s.ID] = &cp
	return nil
}

func (r *fakeSubmissionRepo) Finish(ctx context.Context, tx db.Transaction, id string, o repository.Outcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.submissions[id]
	if !ok || s.Status != repository.StatusPending {
		return repository.ErrAlreadyJudged
	}
	s.Status = o.Status
	s.TestsPassed = o.TestsPassed
	s.RuntimeMs = o.RuntimeMs
	s.MemoryKB = o.MemoryKB
	s.ErrorMessage = o.ErrorMessage
	at := o.JudgedAt
	s.JudgedAt = &at
	return nil
}

func (r *fakeSubmissionRepo) GetByID(ctx context.Context, tx db.Transaction, id string) (*repository.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.submissions[id]
	if !ok {
		return nil, repository.ErrSubmissionNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *fakeSubmissionRepo) only(t *testing.T) *repository.Submission {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.submissions) != 1 {
		t.Fatalf("expected one submission, got %d", len(r.submissions))
	}
	for _, s := range r.submissions {
		return s
	}
	return nil
}

type fakeProblems map[int64]*problemRepo.Problem

func (f fakeProblems) GetByID(ctx context.Context, tx db.Transaction, id int64) (*problemRepo.Problem, error) {
	p, ok := f[id]
	if !ok {
		return nil, problemRepo.ErrProblemNotFound
	}
	return p, nil
}

type scriptedJudge struct {
	mu    sync.Mutex
	v     verdict.Verdict
	err   error
	calls []judgesvc.RunRequest
}

func (j *scriptedJudge) Run(ctx context.Context, req judgesvc.RunRequest) (verdict.Verdict, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.calls = append(j.calls, req)
	return j.v, j.err
}

type memoryQueue struct {
	mu   sync.Mutex
	msgs map[string][]*mq.Message
}

func (q *memoryQueue) Publish(ctx context.Context, topic string, m *mq.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.msgs == nil {
		q.msgs = make(map[string][]*mq.Message)
	}
	q.msgs[topic] = append(q.msgs[topic], m)
	return nil
}

func (q *memoryQueue) SubscribeWithOptions(ctx context.Context, topic string, h mq.HandlerFunc, opts *mq.SubscribeOptions) error {
	return nil
}
func (q *memoryQueue) Start() error                   { return nil }
func (q *memoryQueue) Stop() error                    { return nil }
func (q *memoryQueue) Ping(ctx context.Context) error { return nil }
func (q *memoryQueue) Close() error                   { return nil }

type memoryStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (s *memoryStorage) PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: %d != %d", len(data), size)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.objects == nil {
		s.objects = make(map[string][]byte)
	}
	s.objects[bucket+"/"+key] = data
	return nil
}

func (s *memoryStorage) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[bucket+"/"+key]
	if !ok {
		return nil, fmt.Errorf("object %s not found", key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

const sumSource = "int sum(vector<int>& nums){int s=0;for(int x:nums)s+=x;return s;}"

type harnessEnv struct {
	svc      *SubmitService
	subs     *fakeSubmissionRepo
	judge    *scriptedJudge
	progress *fakeProgressRepo
	queue    *memoryQueue
	storage  *memoryStorage
	cache    cache.Cache
}

func newEnv(t *testing.T, judge *scriptedJudge) *harnessEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	redisCache, err := cache.NewRedisCacheWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	t.Cleanup(func() { _ = redisCache.Close() })

	store := &memoryStorage{}
	archive, err := NewSourceArchive(store, "sources", "")
	if err != nil {
		t.Fatalf("new archive: %v", err)
	}
	queue := &memoryQueue{}
	subs := newFakeSubmissionRepo()
	progressRepo := newFakeProgressRepo()
	problems := fakeProblems{
		1: {
			ID:           1,
			Title:        "Sum",
			Difficulty:   problemRepo.DifficultyEasy,
			Tags:         []string{"array"},
			VisibleTests: []problemRepo.TestCase{{Input: "[1,2,3]", ExpectedOutput: "6"}},
			HiddenTests: []problemRepo.TestCase{
				{Input: "[4,5]", ExpectedOutput: "9", Hidden: true},
				{Input: "[]", ExpectedOutput: "0", Hidden: true},
			},
		},
	}
	svc, err := NewSubmitService(Config{
		SubmissionRepo: subs,
		Problems:       problems,
		Progress:       NewProgressService(progressRepo, fakeTx{}),
		Judge:          judge,
		Archive:        archive,
		Events:         NewJudgedEventPublisher(queue, ""),
		Cache:          redisCache,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return &harnessEnv{svc: svc, subs: subs, judge: judge, progress: progressRepo, queue: queue, storage: store, cache: redisCache}
}

func acceptedVerdict(n int) verdict.Verdict {
	return verdict.Verdict{AllPassed: true, TestsPassed: n, TestsTotal: n, RuntimeMs: 12, MemoryKB: 900}
}

func TestSubmitAccepted(t *testing.T) {
	env := newEnv(t, &scriptedJudge{v: acceptedVerdict(2)})
	ctx := context.Background()

	res, err := env.svc.Submit(ctx, SubmitInput{ProblemID: 1, UserID: 9, Language: "c++", SourceCode: sumSource})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if res.Submission.Status != repository.StatusAccepted || res.Submission.TestsTotal != 2 || res.Submission.TestsPassed != 2 {
		t.Fatalf("unexpected submission: %+v", res.Submission)
	}
	if len(res.Badges) != 1 || res.Badges[0] != BadgeFirstSolve {
		t.Fatalf("expected first-solve badge, got %v", res.Badges)
	}

	stored := env.subs.only(t)
	if stored.Status != repository.StatusAccepted || stored.JudgedAt == nil || stored.Language != "cpp" {
		t.Fatalf("stored row not terminal: %+v", stored)
	}

	call := env.judge.calls[0]
	if call.Purpose != judgesvc.PurposeSubmit || len(call.Tests) != 2 || call.Tests[0].Input != "[4,5]" {
		t.Fatalf("expected hidden tests only, got %+v", call)
	}

	msgs := env.queue.msgs[DefaultJudgedTopic]
	if len(msgs) != 1 {
		t.Fatalf("expected one judged event, got %d", len(msgs))
	}
	event, err := DecodeJudgedEvent(msgs[0])
	if err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if event.SubmissionID != stored.ID || event.Status != repository.StatusAccepted || msgs[0].Key != stored.ID {
		t.Fatalf("unexpected event: %+v", event)
	}

	source, err := env.svc.GetArchivedSource(ctx, 9, stored.ID)
	if err != nil {
		t.Fatalf("archived source: %v", err)
	}
	if source != sumSource {
		t.Fatalf("archive round trip mismatch: %q", source)
	}
	if !strings.HasSuffix(stored.SourceKey, ".zst") {
		t.Fatalf("unexpected source key %q", stored.SourceKey)
	}
}

func TestSubmitWrongAnswerKeepsFault(t *testing.T) {
	judge := &scriptedJudge{v: verdict.Verdict{
		TestsPassed: 1,
		TestsTotal:  2,
		FirstError:  &verdict.Failure{Index: 1, Kind: verdict.RuntimeFault, StatusID: 4, Message: "segfault"},
	}}
	env := newEnv(t, judge)

	res, err := env.svc.Submit(context.Background(), SubmitInput{ProblemID: 1, UserID: 9, Language: "cpp", SourceCode: sumSource})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if res.Submission.Status != repository.StatusWrongAnswer || res.Submission.ErrorMessage != "segfault" {
		t.Fatalf("unexpected submission: %+v", res.Submission)
	}
	if res.Fault == nil || res.Fault.Kind != verdict.RuntimeFault {
		t.Fatalf("expected runtime fault, got %+v", res.Fault)
	}
	stats := env.progress.stats[9]
	if stats.TotalSolved != 0 || stats.TotalSubmissions != 1 || stats.AcceptedSubmissions != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestSubmitJudgeFaultLeavesNoPendingRow(t *testing.T) {
	cases := []appErr.ErrorCode{appErr.JudgeUnavailable, appErr.JudgeTimeout, appErr.HarnessGenerationFailed}
	for _, code := range cases {
		t.Run(code.Message(), func(t *testing.T) {
			env := newEnv(t, &scriptedJudge{err: appErr.New(code)})
			_, err := env.svc.Submit(context.Background(), SubmitInput{ProblemID: 1, UserID: 9, Language: "cpp", SourceCode: sumSource})
			if appErr.GetCode(err) != code {
				t.Fatalf("expected code %d, got %v", code, err)
			}
			stored := env.subs.only(t)
			if stored.Status != repository.StatusError || stored.ErrorMessage != code.Message() {
				t.Fatalf("expected error status with fault message, got %+v", stored)
			}
			if len(env.queue.msgs[DefaultJudgedTopic]) != 0 {
				t.Fatalf("faulted submission must not publish a judged event")
			}
			if _, ok := env.progress.stats[9]; ok {
				t.Fatalf("faulted submission must not touch progress")
			}
		})
	}
}

func TestSubmitRejectsBeforeJudging(t *testing.T) {
	cases := []struct {
		name  string
		input SubmitInput
		code  appErr.ErrorCode
	}{
		{"missing problem", SubmitInput{UserID: 9, Language: "cpp", SourceCode: sumSource}, appErr.ValidationFailed},
		{"empty source", SubmitInput{ProblemID: 1, UserID: 9, Language: "cpp", SourceCode: "  "}, appErr.ValidationFailed},
		{"unknown language", SubmitInput{ProblemID: 1, UserID: 9, Language: "go", SourceCode: sumSource}, appErr.LanguageNotSupported},
		{"too large", SubmitInput{ProblemID: 1, UserID: 9, Language: "cpp", SourceCode: strings.Repeat("x", defaultMaxCodeBytes+1)}, appErr.CodeTooLarge},
		{"unknown problem", SubmitInput{ProblemID: 404, UserID: 9, Language: "cpp", SourceCode: sumSource}, appErr.ProblemNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newEnv(t, &scriptedJudge{v: acceptedVerdict(2)})
			_, err := env.svc.Submit(context.Background(), tc.input)
			if appErr.GetCode(err) != tc.code {
				t.Fatalf("expected code %d, got %v", tc.code, err)
			}
			if len(env.judge.calls) != 0 || len(env.subs.submissions) != 0 {
				t.Fatalf("rejected input must not reach the judge or the store")
			}
		})
	}
}

func TestSubmitIdempotencyKey(t *testing.T) {
	env := newEnv(t, &scriptedJudge{v: acceptedVerdict(2)})
	ctx := context.Background()
	in := SubmitInput{ProblemID: 1, UserID: 9, Language: "cpp", SourceCode: sumSource, IdempotencyKey: "k-1"}

	first, err := env.svc.Submit(ctx, in)
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}
	second, err := env.svc.Submit(ctx, in)
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if first.Submission.ID != second.Submission.ID {
		t.Fatalf("expected same submission, got %s and %s", first.Submission.ID, second.Submission.ID)
	}
	if len(env.judge.calls) != 1 {
		t.Fatalf("duplicate submit reached the judge %d times", len(env.judge.calls))
	}

	if err := env.cache.Set(ctx, idempotencyCacheKey(9, "k-2"), processingMarker, time.Minute); err != nil {
		t.Fatalf("seed cache: %v", err)
	}
	in.IdempotencyKey = "k-2"
	if _, err := env.svc.Submit(ctx, in); !appErr.Is(err, appErr.DuplicateSubmission) {
		t.Fatalf("expected DuplicateSubmission for in-flight key, got %v", err)
	}
}

func TestRunUsesVisibleTestsOnly(t *testing.T) {
	v := acceptedVerdict(1)
	v.Cases = []verdict.CaseResult{{Index: 0, Input: "[1,2,3]", Expected: "6", Actual: "6", Passed: true}}
	env := newEnv(t, &scriptedJudge{v: v})

	got, err := env.svc.Run(context.Background(), RunInput{ProblemID: 1, UserID: 9, Language: "cpp", SourceCode: sumSource})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !got.AllPassed || len(got.Cases) != 1 {
		t.Fatalf("unexpected verdict: %+v", got)
	}
	call := env.judge.calls[0]
	if call.Purpose != judgesvc.PurposeRun || len(call.Tests) != 1 || call.Tests[0].Input != "[1,2,3]" {
		t.Fatalf("expected visible tests, got %+v", call)
	}
	if len(env.subs.submissions) != 0 || len(env.progress.stats) != 0 {
		t.Fatalf("run must not persist anything")
	}
}

func TestGetSubmissionOwnership(t *testing.T) {
	env := newEnv(t, &scriptedJudge{v: acceptedVerdict(2)})
	ctx := context.Background()
	res, err := env.svc.Submit(ctx, SubmitInput{ProblemID: 1, UserID: 9, Language: "python", SourceCode: "def sum(nums):\n    return 0\n"})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if _, err := env.svc.GetSubmission(ctx, 9, res.Submission.ID); err != nil {
		t.Fatalf("owner lookup failed: %v", err)
	}
	if _, err := env.svc.GetSubmission(ctx, 10, res.Submission.ID); !appErr.Is(err, appErr.SubmissionNotFound) {
		t.Fatalf("expected SubmissionNotFound for another user, got %v", err)
	}
}

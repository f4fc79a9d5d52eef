package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"codearena/internal/common/cache"
	"codearena/internal/common/db"
)

const (
	defaultSubmissionCacheTTL      = 30 * time.Minute
	defaultSubmissionCacheEmptyTTL = 5 * time.Minute
	submissionCacheKeyPrefix       = "arena:submission:"
)

// Submission lifecycle states.
const (
	StatusPending     = "pending"
	StatusAccepted    = "accepted"
	StatusWrongAnswer = "wrong-answer"
	StatusError       = "error"
)

var (
	ErrSubmissionNotFound = errors.New("submission not found")
	ErrAlreadyJudged      = errors.New("submission already judged")
)

// Submission is a hidden-test attempt. Only the pending to terminal transition mutates it.
type Submission struct {
	ID           string     `json:"id"`
	ProblemID    int64      `json:"problemId"`
	UserID       int64      `json:"userId"`
	Language     string     `json:"language"`
	SourceCode   string     `json:"sourceCode"`
	SourceKey    string     `json:"sourceKey,omitempty"`
	SourceHash   string     `json:"sourceHash"`
	Status       string     `json:"status"`
	TestsPassed  int        `json:"testsPassed"`
	TestsTotal   int        `json:"testsTotal"`
	RuntimeMs    int64      `json:"runtimeMs"`
	MemoryKB     int64      `json:"memoryKb"`
	ErrorMessage string     `json:"errorMessage,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	JudgedAt     *time.Time `json:"judgedAt,omitempty"`
}

// Outcome is the terminal state written by Finish.
type Outcome struct {
	Status       string
	TestsPassed  int
	RuntimeMs    int64
	MemoryKB     int64
	ErrorMessage string
	JudgedAt     time.Time
}

// SubmissionRepository defines submission persistence interfaces.
type SubmissionRepository interface {
	Create(ctx context.Context, tx db.Transaction, submission *Submission) error
	Finish(ctx context.Context, tx db.Transaction, submissionID string, outcome Outcome) error
	GetByID(ctx context.Context, tx db.Transaction, submissionID string) (*Submission, error)
}

// MySQLSubmissionRepository implements SubmissionRepository with MySQL.
type MySQLSubmissionRepository struct {
	db       db.Database
	cache    cache.Cache
	ttl      time.Duration
	emptyTTL time.Duration
}

// NewSubmissionRepository creates a submission repository with defaults.
func NewSubmissionRepository(database db.Database, cacheClient cache.Cache) SubmissionRepository {
	return NewSubmissionRepositoryWithTTL(database, cacheClient, defaultSubmissionCacheTTL, defaultSubmissionCacheEmptyTTL)
}

// NewSubmissionRepositoryWithTTL creates a submission repository with custom TTL.
func NewSubmissionRepositoryWithTTL(database db.Database, cacheClient cache.Cache, ttl, emptyTTL time.Duration) SubmissionRepository {
	if ttl <= 0 {
		ttl = defaultSubmissionCacheTTL
	}
	if emptyTTL <= 0 {
		emptyTTL = defaultSubmissionCacheEmptyTTL
	}
	return &MySQLSubmissionRepository{
		db:       database,
		cache:    cacheClient,
		ttl:      ttl,
		emptyTTL: emptyTTL,
	}
}

const submissionColumns = "id, problem_id, user_id, language, source_code, source_key, source_hash, status, tests_passed, tests_total, runtime_ms, memory_kb, error_message, created_at, judged_at"

// Create inserts a pending submission record.
func (r *MySQLSubmissionRepository) Create(ctx context.Context, tx db.Transaction, submission *Submission) error {
	if submission == nil {
		return errors.New("submission is nil")
	}
	if submission.ID == "" {
		return errors.New("submission id is required")
	}
	if submission.ProblemID <= 0 {
		return errors.New("problemID is required")
	}
	if submission.UserID <= 0 {
		return errors.New("userID is required")
	}
	if submission.Language == "" {
		return errors.New("language is required")
	}
	if submission.Status == "" {
		submission.Status = StatusPending
	}

	query := `
		INSERT INTO submissions
		(id, problem_id, user_id, language, source_code, source_key, source_hash, status, tests_total, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := db.GetQuerier(r.db, tx).Exec(
		ctx,
		query,
		submission.ID,
		submission.ProblemID,
		submission.UserID,
		submission.Language,
		submission.SourceCode,
		submission.SourceKey,
		submission.SourceHash,
		submission.Status,
		submission.TestsTotal,
		submission.CreatedAt,
	)
	return err
}

// Finish moves a pending submission to its terminal state. A submission that already left
// pending is reported with ErrAlreadyJudged.
func (r *MySQLSubmissionRepository) Finish(ctx context.Context, tx db.Transaction, submissionID string, outcome Outcome) error {
	if submissionID == "" {
		return errors.New("submission id is required")
	}
	query := `
		UPDATE submissions
		SET status = ?, tests_passed = ?, runtime_ms = ?, memory_kb = ?, error_message = ?, judged_at = ?
		WHERE id = ? AND status = ?
	`
	result, err := db.GetQuerier(r.db, tx).Exec(
		ctx,
		query,
		outcome.Status,
		outcome.TestsPassed,
		outcome.RuntimeMs,
		outcome.MemoryKB,
		outcome.ErrorMessage,
		outcome.JudgedAt,
		submissionID,
		StatusPending,
	)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if r.cache != nil {
		_ = r.cache.Del(ctx, submissionCacheKey(submissionID))
	}
	if affected == 0 {
		return ErrAlreadyJudged
	}
	return nil
}

// GetByID retrieves a submission by id. Pending submissions are never cached.
func (r *MySQLSubmissionRepository) GetByID(ctx context.Context, tx db.Transaction, submissionID string) (*Submission, error) {
	if submissionID == "" {
		return nil, errors.New("submission id is required")
	}
	if r.cache == nil || tx != nil {
		return r.getByIDFromDB(ctx, tx, submissionID)
	}
	key := submissionCacheKey(submissionID)
	if cached, err := r.cache.Get(ctx, key); err == nil && cached != "" && cached != cache.NullCacheValue {
		if submission, err := unmarshalSubmission(cached); err == nil && submission != nil {
			return submission, nil
		}
	}
	submission, err := r.getByIDFromDB(ctx, nil, submissionID)
	if err != nil {
		return nil, err
	}
	if submission.Status != StatusPending {
		if payload := marshalSubmission(submission); payload != "" {
			_ = r.cache.Set(ctx, key, payload, cache.JitterTTL(r.ttl))
		}
	}
	return submission, nil
}

func (r *MySQLSubmissionRepository) getByIDFromDB(ctx context.Context, tx db.Transaction, submissionID string) (*Submission, error) {
	query := "SELECT " + submissionColumns + " FROM submissions WHERE id = ? LIMIT 1"
	row := db.GetQuerier(r.db, tx).QueryRow(ctx, query, submissionID)
	submission := &Submission{}
	var (
		sourceKey    *string
		errorMessage *string
		judgedAt     *time.Time
	)
	if err := row.Scan(
		&submission.ID,
		&submission.ProblemID,
		&submission.UserID,
		&submission.Language,
		&submission.SourceCode,
		&sourceKey,
		&submission.SourceHash,
		&submission.Status,
		&submission.TestsPassed,
		&submission.TestsTotal,
		&submission.RuntimeMs,
		&submission.MemoryKB,
		&errorMessage,
		&submission.CreatedAt,
		&judgedAt,
	); err != nil {
		if db.IsNoRows(err) {
			return nil, ErrSubmissionNotFound
		}
		return nil, err
	}
	if sourceKey != nil {
		submission.SourceKey = *sourceKey
	}
	if errorMessage != nil {
		submission.ErrorMessage = *errorMessage
	}
	submission.JudgedAt = judgedAt
	return submission, nil
}

func submissionCacheKey(submissionID string) string {
	return submissionCacheKeyPrefix + submissionID
}

func marshalSubmission(submission *Submission) string {
	if submission == nil {
		return ""
	}
	data, err := json.Marshal(submission)
	if err != nil {
		return ""
	}
	return string(data)
}

func unmarshalSubmission(data string) (*Submission, error) {
	if data == "" || data == cache.NullCacheValue {
		return nil, nil
	}
	var submission Submission
	if err := json.Unmarshal([]byte(data), &submission); err != nil {
		return nil, err
	}
	return &submission, nil
}

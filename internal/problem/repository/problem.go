package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"codearena/internal/common/cache"
	"codearena/internal/common/db"
)

const (
	defaultProblemCacheTTL      = 30 * time.Minute
	defaultProblemCacheEmptyTTL = 5 * time.Minute
	problemCacheKeyPrefix       = "arena:problem:"
)

var (
	ErrProblemNotFound = errors.New("problem not found")
	ErrSlugConflict    = errors.New("problem slug already exists")
)

// ProblemRepository persists problems with their tests and reference solutions.
type ProblemRepository interface {
	Create(ctx context.Context, tx db.Transaction, problem *Problem, refs []ReferenceSolution) (int64, error)
	GetByID(ctx context.Context, tx db.Transaction, problemID int64) (*Problem, error)
	RandomID(ctx context.Context) (int64, error)
}

// MySQLProblemRepository implements ProblemRepository on MySQL with a Redis read cache.
type MySQLProblemRepository struct {
	db       db.Database
	cache    cache.Cache
	ttl      time.Duration
	emptyTTL time.Duration
}

// NewProblemRepository creates a repository with default cache TTLs. cacheClient may be nil.
func NewProblemRepository(database db.Database, cacheClient cache.Cache) *MySQLProblemRepository {
	return NewProblemRepositoryWithTTL(database, cacheClient, defaultProblemCacheTTL, defaultProblemCacheEmptyTTL)
}

// NewProblemRepositoryWithTTL creates a repository with custom cache TTLs.
func NewProblemRepositoryWithTTL(database db.Database, cacheClient cache.Cache, ttl, emptyTTL time.Duration) *MySQLProblemRepository {
	if ttl <= 0 {
		ttl = defaultProblemCacheTTL
	}
	if emptyTTL <= 0 {
		emptyTTL = defaultProblemCacheEmptyTTL
	}
	return &MySQLProblemRepository{db: database, cache: cacheClient, ttl: ttl, emptyTTL: emptyTTL}
}

// Create inserts the problem, its tests and reference solutions using tx.
func (r *MySQLProblemRepository) Create(ctx context.Context, tx db.Transaction, problem *Problem, refs []ReferenceSolution) (int64, error) {
	if problem == nil {
		return 0, errors.New("problem is nil")
	}
	tags, err := json.Marshal(problem.Tags)
	if err != nil {
		return 0, fmt.Errorf("encode tags: %w", err)
	}
	starter, err := json.Marshal(problem.StarterCode)
	if err != nil {
		return 0, fmt.Errorf("encode starter code: %w", err)
	}

	q := db.GetQuerier(r.db, tx)
	result, err := q.Exec(ctx,
		`INSERT INTO problems (slug, title, description, difficulty, tags, starter_code, author_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		problem.Slug, problem.Title, problem.Description, string(problem.Difficulty), string(tags), string(starter), problem.AuthorID,
	)
	if err != nil {
		if _, dup := db.UniqueViolation(err); dup {
			return 0, ErrSlugConflict
		}
		return 0, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}

	for _, tc := range problem.AllTests() {
		if _, err := q.Exec(ctx,
			`INSERT INTO problem_test_cases (problem_id, ordinal, input, expected_output, explanation, hidden)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			id, tc.Ordinal, tc.Input, tc.ExpectedOutput, tc.Explanation, tc.Hidden,
		); err != nil {
			return 0, err
		}
	}
	for _, ref := range refs {
		if _, err := q.Exec(ctx,
			`INSERT INTO problem_reference_solutions (problem_id, language, source) VALUES (?, ?, ?)`,
			id, ref.Language, ref.Source,
		); err != nil {
			return 0, err
		}
	}
	problem.ID = id
	return id, nil
}

// GetByID loads a problem with all of its tests. Reads outside a transaction go through the cache.
func (r *MySQLProblemRepository) GetByID(ctx context.Context, tx db.Transaction, problemID int64) (*Problem, error) {
	if r.cache == nil || tx != nil {
		return r.getFromDB(ctx, tx, problemID)
	}
	problem, err := cache.GetWithCached[*Problem](
		ctx,
		r.cache,
		problemCacheKey(problemID),
		r.ttl,
		r.emptyTTL,
		func(p *Problem) bool { return p == nil },
		marshalProblem,
		unmarshalProblem,
		func(ctx context.Context) (*Problem, error) {
			p, err := r.getFromDB(ctx, nil, problemID)
			if errors.Is(err, ErrProblemNotFound) {
				return nil, nil
			}
			return p, err
		},
	)
	if err != nil {
		return nil, err
	}
	if problem == nil {
		return nil, ErrProblemNotFound
	}
	return problem, nil
}

// RandomID picks any problem id.
func (r *MySQLProblemRepository) RandomID(ctx context.Context) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, "SELECT id FROM problems ORDER BY RAND() LIMIT 1").Scan(&id)
	if err != nil {
		if db.IsNoRows(err) {
			return 0, ErrProblemNotFound
		}
		return 0, err
	}
	return id, nil
}

func (r *MySQLProblemRepository) getFromDB(ctx context.Context, tx db.Transaction, problemID int64) (*Problem, error) {
	q := db.GetQuerier(r.db, tx)
	var (
		p          Problem
		difficulty string
		tags       []byte
		starter    []byte
	)
	err := q.QueryRow(ctx,
		`SELECT id, slug, title, description, difficulty, tags, starter_code, author_id, created_at
		 FROM problems WHERE id = ?`, problemID,
	).Scan(&p.ID, &p.Slug, &p.Title, &p.Description, &difficulty, &tags, &starter, &p.AuthorID, &p.CreatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrProblemNotFound
		}
		return nil, err
	}
	p.Difficulty = Difficulty(difficulty)
	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &p.Tags); err != nil {
			return nil, fmt.Errorf("decode tags: %w", err)
		}
	}
	if len(starter) > 0 && string(starter) != "null" {
		if err := json.Unmarshal(starter, &p.StarterCode); err != nil {
			return nil, fmt.Errorf("decode starter code: %w", err)
		}
	}

	rows, err := q.Query(ctx,
		`SELECT ordinal, input, expected_output, explanation, hidden
		 FROM problem_test_cases WHERE problem_id = ? ORDER BY hidden, ordinal`, problemID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var tc TestCase
		if err := rows.Scan(&tc.Ordinal, &tc.Input, &tc.ExpectedOutput, &tc.Explanation, &tc.Hidden); err != nil {
			return nil, err
		}
		if tc.Hidden {
			p.HiddenTests = append(p.HiddenTests, tc)
		} else {
			p.VisibleTests = append(p.VisibleTests, tc)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &p, nil
}

func problemCacheKey(problemID int64) string {
	return problemCacheKeyPrefix + strconv.FormatInt(problemID, 10)
}

func marshalProblem(p *Problem) string {
	payload, err := json.Marshal(p)
	if err != nil {
		return ""
	}
	return string(payload)
}

func unmarshalProblem(data string) (*Problem, error) {
	if data == "" {
		return nil, nil
	}
	var p Problem
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"codearena/internal/common/db"
	"codearena/internal/submit/repository"
	appErr "codearena/pkg/errors"
	"codearena/pkg/utils/logger"

	"go.uber.org/zap"
)

// Badge names.
const (
	BadgeFirstSolve = "first-solve"
	BadgeSolved10   = "solved-10"
	BadgeSolved50   = "solved-50"
	BadgeSolved100  = "solved-100"
	BadgeStreak7    = "streak-7"
	BadgeStreak30   = "streak-30"
)

var solvedBadges = map[int]string{
	1:   BadgeFirstSolve,
	10:  BadgeSolved10,
	50:  BadgeSolved50,
	100: BadgeSolved100,
}

var streakBadges = map[int]string{
	7:  BadgeStreak7,
	30: BadgeStreak30,
}

// ApplySubmission counts one judged submission and recomputes the acceptance rate.
func ApplySubmission(stats *repository.UserStats, accepted bool) {
	stats.TotalSubmissions++
	if accepted {
		stats.AcceptedSubmissions++
	}
	stats.AcceptanceRate = AcceptanceRate(stats.AcceptedSubmissions, stats.TotalSubmissions)
}

// AcceptanceRate is accepted / total * 100 rounded to two decimals.
func AcceptanceRate(accepted, total int) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(accepted)*10000/float64(total)) / 100
}

// ApplySolve applies a first-time solve on the UTC day of at and returns the badges the
// new totals reach.
func ApplySolve(stats *repository.UserStats, difficulty string, at time.Time) []string {
	stats.TotalSolved++
	switch difficulty {
	case "easy":
		stats.EasySolved++
	case "medium":
		stats.MediumSolved++
	case "hard":
		stats.HardSolved++
	}

	today := utcDay(at)
	switch {
	case stats.LastSolvedDate != nil && utcDay(*stats.LastSolvedDate).Equal(today):
		stats.SolvedToday++
	case stats.LastSolvedDate != nil && utcDay(*stats.LastSolvedDate).AddDate(0, 0, 1).Equal(today):
		stats.CurrentStreak++
		stats.SolvedToday = 1
	default:
		stats.CurrentStreak = 1
		stats.SolvedToday = 1
	}
	if stats.CurrentStreak > stats.LongestStreak {
		stats.LongestStreak = stats.CurrentStreak
	}
	stats.LastSolvedDate = &today

	var badges []string
	if badge, ok := solvedBadges[stats.TotalSolved]; ok {
		badges = append(badges, badge)
	}
	if badge, ok := streakBadges[stats.CurrentStreak]; ok {
		badges = append(badges, badge)
	}
	return badges
}

// MonthKey is the YYYY-MM bucket of at in UTC.
func MonthKey(at time.Time) string {
	return at.UTC().Format("2006-01")
}

func utcDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Progress is a user's dashboard view.
type Progress struct {
	Stats   *repository.UserStats        `json:"stats"`
	Badges  []repository.Badge           `json:"badges"`
	Monthly []repository.MonthlyProgress `json:"monthly"`
}

// Transactor opens a database transaction.
type Transactor interface {
	Transaction(ctx context.Context, fn func(tx db.Transaction) error) error
}

// ProgressService records judged submissions into user progress.
type ProgressService struct {
	repo repository.ProgressRepository
	tx   Transactor
	now  func() time.Time
}

// NewProgressService creates a progress service.
func NewProgressService(repo repository.ProgressRepository, tx Transactor) *ProgressService {
	return &ProgressService{repo: repo, tx: tx, now: time.Now}
}

// SolveEvent describes one judged hidden-test submission.
type SolveEvent struct {
	UserID     int64
	ProblemID  int64
	Difficulty string
	Accepted   bool
	JudgedAt   time.Time
}

// Record updates counters for every judged submission. Solve side effects run only when
// the problem enters the solved set for the first time. Returns newly awarded badges.
func (s *ProgressService) Record(ctx context.Context, ev SolveEvent) ([]string, error) {
	at := ev.JudgedAt
	if at.IsZero() {
		at = s.now()
	}
	var awarded []string
	err := s.tx.Transaction(ctx, func(tx db.Transaction) error {
		awarded = nil
		stats, err := s.repo.LockStats(ctx, tx, ev.UserID)
		if err != nil {
			return fmt.Errorf("lock stats: %w", err)
		}
		ApplySubmission(stats, ev.Accepted)

		if ev.Accepted {
			first, err := s.repo.MarkSolved(ctx, tx, ev.UserID, ev.ProblemID, at)
			if err != nil {
				return fmt.Errorf("mark solved: %w", err)
			}
			if first {
				for _, badge := range ApplySolve(stats, ev.Difficulty, at) {
					added, err := s.repo.AwardBadge(ctx, tx, ev.UserID, badge, at)
					if err != nil {
						return fmt.Errorf("award badge %s: %w", badge, err)
					}
					if added {
						awarded = append(awarded, badge)
					}
				}
				if err := s.repo.IncrementMonthly(ctx, tx, ev.UserID, MonthKey(at)); err != nil {
					return fmt.Errorf("increment monthly: %w", err)
				}
			}
		}
		return s.repo.SaveStats(ctx, tx, stats)
	})
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "record progress failed")
	}
	if len(awarded) > 0 {
		logger.Info(ctx, "badges awarded", zap.Int64("user_id", ev.UserID), zap.Strings("badges", awarded))
	}
	return awarded, nil
}

// Get returns stats, badges and month buckets for a user.
func (s *ProgressService) Get(ctx context.Context, userID int64) (Progress, error) {
	if userID <= 0 {
		return Progress{}, appErr.ValidationError("user_id", "required")
	}
	stats, err := s.repo.GetStats(ctx, userID)
	if err != nil {
		return Progress{}, appErr.Wrapf(err, appErr.DatabaseError, "get stats failed")
	}
	badges, err := s.repo.ListBadges(ctx, userID)
	if err != nil {
		return Progress{}, appErr.Wrapf(err, appErr.DatabaseError, "list badges failed")
	}
	monthly, err := s.repo.ListMonthly(ctx, userID)
	if err != nil {
		return Progress{}, appErr.Wrapf(err, appErr.DatabaseError, "list monthly progress failed")
	}
	if badges == nil {
		badges = []repository.Badge{}
	}
	if monthly == nil {
		monthly = []repository.MonthlyProgress{}
	}
	return Progress{Stats: stats, Badges: badges, Monthly: monthly}, nil
}

package repository

import (
	"context"
	"errors"
	"time"

	"codearena/internal/common/db"
)

// UserStats is the per-user progress row.
type UserStats struct {
	UserID              int64      `json:"userId"`
	TotalSubmissions    int        `json:"totalSubmissions"`
	AcceptedSubmissions int        `json:"acceptedSubmissions"`
	AcceptanceRate      float64    `json:"acceptanceRate"`
	TotalSolved         int        `json:"totalSolved"`
	EasySolved          int        `json:"easySolved"`
	MediumSolved        int        `json:"mediumSolved"`
	HardSolved          int        `json:"hardSolved"`
	CurrentStreak       int        `json:"currentStreak"`
	LongestStreak       int        `json:"longestStreak"`
	SolvedToday         int        `json:"solvedToday"`
	LastSolvedDate      *time.Time `json:"lastSolvedDate,omitempty"`
}

// Badge is an awarded milestone.
type Badge struct {
	Name      string    `json:"name"`
	AwardedAt time.Time `json:"awardedAt"`
}

// MonthlyProgress counts first-time solves in one YYYY-MM bucket.
type MonthlyProgress struct {
	Month  string `json:"month"`
	Solved int    `json:"solved"`
}

// ProgressRepository persists user progress. Mutating calls expect a transaction.
type ProgressRepository interface {
	// LockStats returns the stats row for update, creating an empty one when absent.
	LockStats(ctx context.Context, tx db.Transaction, userID int64) (*UserStats, error)
	SaveStats(ctx context.Context, tx db.Transaction, stats *UserStats) error
	// MarkSolved reports whether the problem was newly added to the solved set.
	MarkSolved(ctx context.Context, tx db.Transaction, userID, problemID int64, solvedAt time.Time) (bool, error)
	IncrementMonthly(ctx context.Context, tx db.Transaction, userID int64, month string) error
	// AwardBadge reports whether the badge was newly awarded.
	AwardBadge(ctx context.Context, tx db.Transaction, userID int64, badge string, awardedAt time.Time) (bool, error)

	GetStats(ctx context.Context, userID int64) (*UserStats, error)
	ListBadges(ctx context.Context, userID int64) ([]Badge, error)
	ListMonthly(ctx context.Context, userID int64) ([]MonthlyProgress, error)
}

// MySQLProgressRepository implements ProgressRepository with MySQL.
type MySQLProgressRepository struct {
	db db.Database
}

// NewProgressRepository creates a progress repository.
func NewProgressRepository(database db.Database) *MySQLProgressRepository {
	return &MySQLProgressRepository{db: database}
}

const statsColumns = "user_id, total_submissions, accepted_submissions, acceptance_rate, total_solved, easy_solved, medium_solved, hard_solved, current_streak, longest_streak, solved_today, last_solved_date"

// LockStats creates the row if needed and locks it.
func (r *MySQLProgressRepository) LockStats(ctx context.Context, tx db.Transaction, userID int64) (*UserStats, error) {
	if tx == nil {
		return nil, errors.New("transaction is required")
	}
	if _, err := tx.Exec(ctx, "INSERT IGNORE INTO user_stats (user_id) VALUES (?)", userID); err != nil {
		return nil, err
	}
	return scanStats(tx.QueryRow(ctx, "SELECT "+statsColumns+" FROM user_stats WHERE user_id = ? FOR UPDATE", userID))
}

// SaveStats writes every counter of the row.
func (r *MySQLProgressRepository) SaveStats(ctx context.Context, tx db.Transaction, stats *UserStats) error {
	if stats == nil {
		return errors.New("stats is nil")
	}
	query := `
		UPDATE user_stats
		SET total_submissions = ?, accepted_submissions = ?, acceptance_rate = ?, total_solved = ?,
			easy_solved = ?, medium_solved = ?, hard_solved = ?, current_streak = ?, longest_streak = ?,
			solved_today = ?, last_solved_date = ?
		WHERE user_id = ?
	`
	_, err := db.GetQuerier(r.db, tx).Exec(ctx, query,
		stats.TotalSubmissions,
		stats.AcceptedSubmissions,
		stats.AcceptanceRate,
		stats.TotalSolved,
		stats.EasySolved,
		stats.MediumSolved,
		stats.HardSolved,
		stats.CurrentStreak,
		stats.LongestStreak,
		stats.SolvedToday,
		stats.LastSolvedDate,
		stats.UserID,
	)
	return err
}

// MarkSolved appends to the solved set with INSERT IGNORE.
func (r *MySQLProgressRepository) MarkSolved(ctx context.Context, tx db.Transaction, userID, problemID int64, solvedAt time.Time) (bool, error) {
	result, err := db.GetQuerier(r.db, tx).Exec(ctx,
		"INSERT IGNORE INTO user_solved_problems (user_id, problem_id, solved_at) VALUES (?, ?, ?)",
		userID, problemID, solvedAt,
	)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// IncrementMonthly bumps the month bucket.
func (r *MySQLProgressRepository) IncrementMonthly(ctx context.Context, tx db.Transaction, userID int64, month string) error {
	_, err := db.GetQuerier(r.db, tx).Exec(ctx,
		`INSERT INTO user_monthly_progress (user_id, month, solved) VALUES (?, ?, 1)
		 ON DUPLICATE KEY UPDATE solved = solved + 1`,
		userID, month,
	)
	return err
}

// AwardBadge inserts the badge once per user.
func (r *MySQLProgressRepository) AwardBadge(ctx context.Context, tx db.Transaction, userID int64, badge string, awardedAt time.Time) (bool, error) {
	result, err := db.GetQuerier(r.db, tx).Exec(ctx,
		"INSERT IGNORE INTO user_badges (user_id, badge, awarded_at) VALUES (?, ?, ?)",
		userID, badge, awardedAt,
	)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// GetStats returns the stats row, or empty stats for a user with no submissions.
func (r *MySQLProgressRepository) GetStats(ctx context.Context, userID int64) (*UserStats, error) {
	stats, err := scanStats(r.db.QueryRow(ctx, "SELECT "+statsColumns+" FROM user_stats WHERE user_id = ?", userID))
	if err != nil {
		if db.IsNoRows(err) {
			return &UserStats{UserID: userID}, nil
		}
		return nil, err
	}
	return stats, nil
}

// ListBadges returns badges in award order.
func (r *MySQLProgressRepository) ListBadges(ctx context.Context, userID int64) ([]Badge, error) {
	rows, err := r.db.Query(ctx, "SELECT badge, awarded_at FROM user_badges WHERE user_id = ? ORDER BY awarded_at, badge", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Badge
	for rows.Next() {
		var b Badge
		if err := rows.Scan(&b.Name, &b.AwardedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// ListMonthly returns month buckets, newest first.
func (r *MySQLProgressRepository) ListMonthly(ctx context.Context, userID int64) ([]MonthlyProgress, error) {
	rows, err := r.db.Query(ctx, "SELECT month, solved FROM user_monthly_progress WHERE user_id = ? ORDER BY month DESC", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []MonthlyProgress
	for rows.Next() {
		var m MonthlyProgress
		if err := rows.Scan(&m.Month, &m.Solved); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanStats(row db.Row) (*UserStats, error) {
	var s UserStats
	if err := row.Scan(
		&s.UserID,
		&s.TotalSubmissions,
		&s.AcceptedSubmissions,
		&s.AcceptanceRate,
		&s.TotalSolved,
		&s.EasySolved,
		&s.MediumSolved,
		&s.HardSolved,
		&s.CurrentStreak,
		&s.LongestStreak,
		&s.SolvedToday,
		&s.LastSolvedDate,
	); err != nil {
		return nil, err
	}
	return &s, nil
}

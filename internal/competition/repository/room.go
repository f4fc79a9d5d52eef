package repository

import (
	"context"
	"errors"
	"time"

	"codearena/internal/common/db"
)

var (
	ErrRoomNotFound = errors.New("room not found")
	ErrCodeConflict = errors.New("room code already exists")
	ErrNotJoined    = errors.New("user is not a participant")
)

// RoomRepository persists competition rooms and participants.
type RoomRepository interface {
	Create(ctx context.Context, tx db.Transaction, room *Room) error
	GetByCode(ctx context.Context, tx db.Transaction, code string, forUpdate bool) (*Room, error)
	AddParticipant(ctx context.Context, tx db.Transaction, roomID, userID int64, joinedAt time.Time) error
	Activate(ctx context.Context, tx db.Transaction, roomID int64, startedAt time.Time) error
	RecordAttempt(ctx context.Context, tx db.Transaction, roomID, userID int64, attempt Attempt) error
	// SetWinner completes the room only if it has no winner yet and reports whether this call set it.
	SetWinner(ctx context.Context, tx db.Transaction, roomID, userID int64, completedAt time.Time) (bool, error)
}

// MySQLRoomRepository implements RoomRepository with MySQL.
type MySQLRoomRepository struct {
	db db.Database
}

// NewRoomRepository creates a room repository.
func NewRoomRepository(database db.Database) *MySQLRoomRepository {
	return &MySQLRoomRepository{db: database}
}

const roomColumns = "id, code, problem_id, creator_id, status, max_participants, winner_id, created_at, started_at, completed_at"

// Create inserts the room and its creator as first participant.
func (r *MySQLRoomRepository) Create(ctx context.Context, tx db.Transaction, room *Room) error {
	if room == nil {
		return errors.New("room is nil")
	}
	q := db.GetQuerier(r.db, tx)
	result, err := q.Exec(ctx,
		`INSERT INTO competition_rooms (code, problem_id, creator_id, status, max_participants, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		room.Code, room.ProblemID, room.CreatorID, string(room.Status), room.MaxParticipants, room.CreatedAt,
	)
	if err != nil {
		if db.IsDuplicateOn(err, "code") {
			return ErrCodeConflict
		}
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	room.ID = id
	for _, p := range room.Participants {
		if err := r.AddParticipant(ctx, tx, id, p.UserID, p.JoinedAt); err != nil {
			return err
		}
	}
	return nil
}

// GetByCode loads a room with participants ordered by join time.
func (r *MySQLRoomRepository) GetByCode(ctx context.Context, tx db.Transaction, code string, forUpdate bool) (*Room, error) {
	q := db.GetQuerier(r.db, tx)
	query := "SELECT " + roomColumns + " FROM competition_rooms WHERE code = ?"
	if forUpdate {
		query += " FOR UPDATE"
	}
	var (
		room   Room
		status string
	)
	err := q.QueryRow(ctx, query, code).Scan(
		&room.ID,
		&room.Code,
		&room.ProblemID,
		&room.CreatorID,
		&status,
		&room.MaxParticipants,
		&room.WinnerID,
		&room.CreatedAt,
		&room.StartedAt,
		&room.CompletedAt,
	)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}
	room.Status = RoomStatus(status)

	rows, err := q.Query(ctx,
		`SELECT user_id, joined_at, submitted_at, language, source_code, is_correct, runtime_ms, tests_passed, attempts
		 FROM competition_participants WHERE room_id = ? ORDER BY joined_at, id`, room.ID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			p        Participant
			language *string
			source   *string
		)
		if err := rows.Scan(&p.UserID, &p.JoinedAt, &p.SubmittedAt, &language, &source, &p.IsCorrect, &p.RuntimeMs, &p.TestsPassed, &p.Attempts); err != nil {
			return nil, err
		}
		if language != nil {
			p.Language = *language
		}
		if source != nil {
			p.SourceCode = *source
		}
		room.Participants = append(room.Participants, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &room, nil
}

// AddParticipant inserts a participant row.
func (r *MySQLRoomRepository) AddParticipant(ctx context.Context, tx db.Transaction, roomID, userID int64, joinedAt time.Time) error {
	_, err := db.GetQuerier(r.db, tx).Exec(ctx,
		"INSERT INTO competition_participants (room_id, user_id, joined_at) VALUES (?, ?, ?)",
		roomID, userID, joinedAt,
	)
	return err
}

// Activate moves a waiting room to active.
func (r *MySQLRoomRepository) Activate(ctx context.Context, tx db.Transaction, roomID int64, startedAt time.Time) error {
	_, err := db.GetQuerier(r.db, tx).Exec(ctx,
		"UPDATE competition_rooms SET status = ?, started_at = ? WHERE id = ? AND status = ?",
		string(RoomActive), startedAt, roomID, string(RoomWaiting),
	)
	return err
}

// RecordAttempt overwrites the participant's attempt fields in place.
func (r *MySQLRoomRepository) RecordAttempt(ctx context.Context, tx db.Transaction, roomID, userID int64, attempt Attempt) error {
	result, err := db.GetQuerier(r.db, tx).Exec(ctx,
		`UPDATE competition_participants
		 SET submitted_at = ?, language = ?, source_code = ?, is_correct = ?, runtime_ms = ?, tests_passed = ?, attempts = attempts + 1
		 WHERE room_id = ? AND user_id = ?`,
		attempt.SubmittedAt, attempt.Language, attempt.SourceCode, attempt.IsCorrect, attempt.RuntimeMs, attempt.TestsPassed,
		roomID, userID,
	)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotJoined
	}
	return nil
}

// SetWinner is a compare-and-set on winner_id.
func (r *MySQLRoomRepository) SetWinner(ctx context.Context, tx db.Transaction, roomID, userID int64, completedAt time.Time) (bool, error) {
	result, err := db.GetQuerier(r.db, tx).Exec(ctx,
		`UPDATE competition_rooms SET status = ?, winner_id = ?, completed_at = ?
		 WHERE id = ? AND winner_id IS NULL`,
		string(RoomCompleted), userID, completedAt, roomID,
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

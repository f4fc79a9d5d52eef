package repository

import "time"

// RoomStatus is the competition lifecycle state.
type RoomStatus string

const (
	RoomWaiting   RoomStatus = "waiting"
	RoomActive    RoomStatus = "active"
	RoomCompleted RoomStatus = "completed"
)

// Participant is one competitor and their latest attempt.
type Participant struct {
	UserID      int64      `json:"userId"`
	JoinedAt    time.Time  `json:"joinedAt"`
	SubmittedAt *time.Time `json:"submittedAt,omitempty"`
	Language    string     `json:"language,omitempty"`
	SourceCode  string     `json:"-"`
	IsCorrect   bool       `json:"isCorrect"`
	RuntimeMs   int64      `json:"runtimeMs"`
	TestsPassed int        `json:"testsPassed"`
	Attempts    int        `json:"attempts"`
}

// Room is a head-to-head competition on one problem.
type Room struct {
	ID              int64         `json:"id"`
	Code            string        `json:"code"`
	ProblemID       int64         `json:"problemId"`
	CreatorID       int64         `json:"creatorId"`
	Status          RoomStatus    `json:"status"`
	MaxParticipants int           `json:"maxParticipants"`
	WinnerID        *int64        `json:"winnerId,omitempty"`
	CreatedAt       time.Time     `json:"createdAt"`
	StartedAt       *time.Time    `json:"startedAt,omitempty"`
	CompletedAt     *time.Time    `json:"completedAt,omitempty"`
	Participants    []Participant `json:"participants"`
}

// Participant returns the participant entry for userID.
func (r *Room) Participant(userID int64) (*Participant, bool) {
	for i := range r.Participants {
		if r.Participants[i].UserID == userID {
			return &r.Participants[i], true
		}
	}
	return nil, false
}

// Full reports whether the room reached capacity.
func (r *Room) Full() bool {
	return len(r.Participants) >= r.MaxParticipants
}

// Attempt is a judged competition submission written onto the participant row.
type Attempt struct {
	SubmittedAt time.Time
	Language    string
	SourceCode  string
	IsCorrect   bool
	RuntimeMs   int64
	TestsPassed int
}

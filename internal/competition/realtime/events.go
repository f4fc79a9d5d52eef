package realtime

import (
	"encoding/json"
	"time"
)

// Inbound events.
const (
	EventJoinRoom   = "join-room"
	EventCoding     = "coding"
	EventSubmission = "submission"
	EventLeaveRoom  = "leave-room"
)

// Outbound events.
const (
	EventRoomJoined         = "room-joined"
	EventParticipantJoined  = "participant-joined"
	EventOpponentCoding     = "opponent-coding"
	EventCompetitionStarted = "competition-started"
	EventSubmissionMade     = "submission-made"
	EventCompetitionEnded   = "competition-ended"
	EventParticipantLeft    = "participant-left"
	EventError              = "error"
)

// Envelope is the frame format in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// RoomRef is the payload of join-room, leave-room and coding.
type RoomRef struct {
	RoomID string `json:"roomId"`
	UserID int64  `json:"userId,omitempty"`
}

// SubmissionNotice is the inbound submission payload.
type SubmissionNotice struct {
	RoomID    string `json:"roomId"`
	UserID    int64  `json:"userId"`
	IsCorrect bool   `json:"isCorrect"`
}

type RoomJoined struct {
	RoomID string `json:"roomId"`
}

type ParticipantJoined struct {
	UserID           int64 `json:"userId"`
	ParticipantCount int   `json:"participantCount"`
}

type OpponentCoding struct {
	UserID int64 `json:"userId"`
}

type CompetitionStarted struct {
	StartedAt time.Time `json:"startedAt"`
}

type SubmissionMade struct {
	UserID    int64  `json:"userId"`
	IsCorrect bool   `json:"isCorrect"`
	Winner    *int64 `json:"winner"`
}

type CompetitionEnded struct {
	Winner      int64     `json:"winner"`
	CompletedAt time.Time `json:"completedAt"`
}

type ParticipantLeft struct {
	UserID int64 `json:"userId"`
}

type ErrorMessage struct {
	Message string `json:"message"`
}

// Encode builds a frame for event with data.
func Encode(event string, data interface{}) ([]byte, error) {
	env := Envelope{Event: event}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		env.Data = raw
	}
	return json.Marshal(env)
}

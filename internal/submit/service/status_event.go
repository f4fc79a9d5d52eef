package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"codearena/internal/common/mq"
	"codearena/internal/submit/repository"
	appErr "codearena/pkg/errors"

	"github.com/google/uuid"
)

// DefaultJudgedTopic carries one message per judged hidden-test submission.
const DefaultJudgedTopic = "submission.judged"

// JudgedEvent is the payload published after a submission reaches a terminal status.
type JudgedEvent struct {
	EventID      string    `json:"eventId"`
	SubmissionID string    `json:"submissionId"`
	UserID       int64     `json:"userId"`
	ProblemID    int64     `json:"problemId"`
	Language     string    `json:"language"`
	Status       string    `json:"status"`
	TestsPassed  int       `json:"testsPassed"`
	TestsTotal   int       `json:"testsTotal"`
	RuntimeMs    int64     `json:"runtimeMs"`
	MemoryKB     int64     `json:"memoryKb"`
	Badges       []string  `json:"badges,omitempty"`
	JudgedAt     time.Time `json:"judgedAt"`
}

// EventPublisher emits judged events.
type EventPublisher interface {
	PublishJudged(ctx context.Context, event JudgedEvent) error
}

// JudgedEventPublisher publishes judged events to the message queue.
type JudgedEventPublisher struct {
	mq    mq.MessageQueue
	topic string
}

// NewJudgedEventPublisher creates a publisher for topic.
func NewJudgedEventPublisher(queue mq.MessageQueue, topic string) *JudgedEventPublisher {
	if topic == "" {
		topic = DefaultJudgedTopic
	}
	return &JudgedEventPublisher{mq: queue, topic: topic}
}

// PublishJudged keys the message by submission id.
func (p *JudgedEventPublisher) PublishJudged(ctx context.Context, event JudgedEvent) error {
	if p == nil || p.mq == nil {
		return nil
	}
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	body, err := json.Marshal(event)
	if err != nil {
		return appErr.Wrapf(err, appErr.InternalServerError, "encode judged event failed")
	}
	msg := mq.NewMessage(body)
	msg.ID = event.EventID
	msg.Key = event.SubmissionID
	msg.SetHeader("event", "submission.judged")
	msg.SetHeader("status", event.Status)
	if err := p.mq.Publish(ctx, p.topic, msg); err != nil {
		return fmt.Errorf("publish judged event failed: %w", err)
	}
	return nil
}

// DecodeJudgedEvent parses a judged event message.
func DecodeJudgedEvent(msg *mq.Message) (JudgedEvent, error) {
	if msg == nil {
		return JudgedEvent{}, appErr.New(appErr.InvalidParams).WithMessage("message is nil")
	}
	var event JudgedEvent
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		return JudgedEvent{}, appErr.Wrapf(err, appErr.InvalidParams, "decode judged event failed")
	}
	if event.SubmissionID == "" {
		return JudgedEvent{}, appErr.ValidationError("submission_id", "required")
	}
	return event, nil
}

func judgedEventFrom(sub *repository.Submission, badges []string) JudgedEvent {
	event := JudgedEvent{
		SubmissionID: sub.ID,
		UserID:       sub.UserID,
		ProblemID:    sub.ProblemID,
		Language:     sub.Language,
		Status:       sub.Status,
		TestsPassed:  sub.TestsPassed,
		TestsTotal:   sub.TestsTotal,
		RuntimeMs:    sub.RuntimeMs,
		MemoryKB:     sub.MemoryKB,
		Badges:       badges,
	}
	if sub.JudgedAt != nil {
		event.JudgedAt = *sub.JudgedAt
	}
	return event
}

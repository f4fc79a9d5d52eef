package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"codearena/internal/common/db"
	"codearena/internal/competition/realtime"
	"codearena/internal/competition/repository"
	"codearena/internal/judge/harness"
	judgesvc "codearena/internal/judge/service"
	"codearena/internal/judge/verdict"
	problemRepo "codearena/internal/problem/repository"
	problemSvc "codearena/internal/problem/service"
	appErr "codearena/pkg/errors"
	"codearena/pkg/utils/logger"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"go.uber.org/zap"
)

const (
	codeAlphabet          = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	codeLength            = 6
	defaultCodeAttempts   = 5
	defaultCapacity       = 2
	minCapacity           = 2
	maxCapacity           = 8
	defaultMaxSourceBytes = 64 * 1024
	notifyTimeout         = 3 * time.Second
)

// Judge runs a source against a batch of tests.
type Judge interface {
	Run(ctx context.Context, req judgesvc.RunRequest) (verdict.Verdict, error)
}

// ProblemSource loads problems and picks random ones.
type ProblemSource interface {
	GetByID(ctx context.Context, tx db.Transaction, problemID int64) (*problemRepo.Problem, error)
	RandomID(ctx context.Context) (int64, error)
}

// Notifier delivers room events to connected clients.
type Notifier interface {
	Publish(ctx context.Context, room, event string, data interface{}) error
}

// Transactor opens a database transaction.
type Transactor interface {
	Transaction(ctx context.Context, fn func(tx db.Transaction) error) error
}

// Config holds room service dependencies.
type Config struct {
	Rooms    repository.RoomRepository
	Tx       Transactor
	Problems ProblemSource
	Judge    Judge
	Notifier Notifier

	CodeAttempts   int
	MaxSourceBytes int
}

// RoomService manages competition rooms.
type RoomService struct {
	rooms    repository.RoomRepository
	tx       Transactor
	problems ProblemSource
	judge    Judge
	notifier Notifier

	codeAttempts   int
	maxSourceBytes int
	newCode        func() (string, error)
	now            func() time.Time
}

// NewRoomService creates a room service.
func NewRoomService(cfg Config) (*RoomService, error) {
	if cfg.Rooms == nil {
		return nil, fmt.Errorf("room repository is required")
	}
	if cfg.Tx == nil {
		return nil, fmt.Errorf("transactor is required")
	}
	if cfg.Problems == nil {
		return nil, fmt.Errorf("problem source is required")
	}
	if cfg.Judge == nil {
		return nil, fmt.Errorf("judge is required")
	}
	if cfg.CodeAttempts <= 0 {
		cfg.CodeAttempts = defaultCodeAttempts
	}
	if cfg.MaxSourceBytes <= 0 {
		cfg.MaxSourceBytes = defaultMaxSourceBytes
	}
	return &RoomService{
		rooms:          cfg.Rooms,
		tx:             cfg.Tx,
		problems:       cfg.Problems,
		judge:          cfg.Judge,
		notifier:       cfg.Notifier,
		codeAttempts:   cfg.CodeAttempts,
		maxSourceBytes: cfg.MaxSourceBytes,
		newCode:        RoomCode,
		now:            time.Now,
	}, nil
}

// CreateInput describes a new room. Zero ProblemID picks a random problem and zero
// MaxParticipants uses the default capacity.
type CreateInput struct {
	CreatorID       int64
	ProblemID       int64
	MaxParticipants int
}

// SubmitInput is a competition submission.
type SubmitInput struct {
	Code       string
	UserID     int64
	Language   string
	SourceCode string
}

// SubmitResult reports the attempt and the room state after it.
type SubmitResult struct {
	Room        *repository.Room `json:"room"`
	IsCorrect   bool             `json:"isCorrect"`
	Won         bool             `json:"won"`
	TestsPassed int              `json:"testsPassed"`
	TestsTotal  int              `json:"testsTotal"`
	RuntimeMs   int64            `json:"runtimeMs"`
	Fault       *verdict.Failure `json:"fault,omitempty"`
}

// RoomCode draws a code from the unambiguous alphabet.
func RoomCode() (string, error) {
	var b strings.Builder
	limit := big.NewInt(int64(len(codeAlphabet)))
	for i := 0; i < codeLength; i++ {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		b.WriteByte(codeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// NormalizeCode upper-cases and trims a user supplied code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Create opens a waiting room with the creator as first participant.
func (s *RoomService) Create(ctx context.Context, input CreateInput) (*repository.Room, error) {
	if input.MaxParticipants == 0 {
		input.MaxParticipants = defaultCapacity
	}
	err := validation.ValidateStruct(&input,
		validation.Field(&input.CreatorID, validation.Required),
		validation.Field(&input.MaxParticipants, validation.Min(minCapacity), validation.Max(maxCapacity)),
		validation.Field(&input.ProblemID, validation.Min(int64(0))),
	)
	if err != nil {
		return nil, appErr.FromValidation(err)
	}

	problemID := input.ProblemID
	if problemID == 0 {
		problemID, err = s.problems.RandomID(ctx)
		if err != nil {
			if errors.Is(err, problemRepo.ErrProblemNotFound) {
				return nil, appErr.New(appErr.ProblemNotFound).WithMessage("no problems available")
			}
			return nil, appErr.Wrapf(err, appErr.DatabaseError, "pick random problem failed")
		}
	} else if _, err := s.problems.GetByID(ctx, nil, problemID); err != nil {
		if errors.Is(err, problemRepo.ErrProblemNotFound) {
			return nil, appErr.New(appErr.ProblemNotFound)
		}
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "get problem failed")
	}

	now := s.now().UTC()
	for attempt := 0; attempt < s.codeAttempts; attempt++ {
		code, err := s.newCode()
		if err != nil {
			return nil, appErr.Wrapf(err, appErr.RoomCreateFailed, "generate room code failed")
		}
		room := &repository.Room{
			Code:            code,
			ProblemID:       problemID,
			CreatorID:       input.CreatorID,
			Status:          repository.RoomWaiting,
			MaxParticipants: input.MaxParticipants,
			CreatedAt:       now,
			Participants:    []repository.Participant{{UserID: input.CreatorID, JoinedAt: now}},
		}
		err = s.tx.Transaction(ctx, func(tx db.Transaction) error {
			return s.rooms.Create(ctx, tx, room)
		})
		if err == nil {
			logger.Info(ctx, "competition room created",
				zap.String("room", room.Code),
				zap.Int64("problem_id", problemID),
				zap.Int("capacity", room.MaxParticipants),
			)
			return room, nil
		}
		if !errors.Is(err, repository.ErrCodeConflict) {
			return nil, appErr.Wrapf(err, appErr.RoomCreateFailed, "create room failed")
		}
		logger.Debug(ctx, "room code collision, retrying", zap.String("room", code))
	}
	return nil, appErr.New(appErr.RoomCreateFailed).WithMessage("could not allocate a unique room code")
}

// Join adds userID to the room. Joining twice returns the room unchanged.
func (s *RoomService) Join(ctx context.Context, code string, userID int64) (*repository.Room, error) {
	code = NormalizeCode(code)
	if code == "" || userID <= 0 {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("room code and user are required")
	}

	var (
		room      *repository.Room
		joined    bool
		activated bool
	)
	err := s.tx.Transaction(ctx, func(tx db.Transaction) error {
		joined, activated = false, false
		r, err := s.rooms.GetByCode(ctx, tx, code, true)
		if err != nil {
			return err
		}
		room = r
		if room.Status == repository.RoomCompleted {
			return appErr.New(appErr.RoomAlreadyCompleted)
		}
		if _, ok := room.Participant(userID); ok {
			return nil
		}
		if room.Full() {
			return appErr.New(appErr.RoomFull).WithDetail("capacity", room.MaxParticipants)
		}
		now := s.now().UTC()
		if err := s.rooms.AddParticipant(ctx, tx, room.ID, userID, now); err != nil {
			return err
		}
		room.Participants = append(room.Participants, repository.Participant{UserID: userID, JoinedAt: now})
		joined = true
		if room.Full() && room.Status == repository.RoomWaiting {
			if err := s.rooms.Activate(ctx, tx, room.ID, now); err != nil {
				return err
			}
			room.Status = repository.RoomActive
			room.StartedAt = &now
			activated = true
		}
		return nil
	})
	if err != nil {
		return nil, roomError(err, "join room failed")
	}

	if joined {
		s.notify(ctx, code, realtime.EventParticipantJoined, realtime.ParticipantJoined{
			UserID:           userID,
			ParticipantCount: len(room.Participants),
		})
	}
	if activated {
		s.notify(ctx, code, realtime.EventCompetitionStarted, realtime.CompetitionStarted{StartedAt: *room.StartedAt})
	}
	return room, nil
}

// Get returns the authoritative room state.
func (s *RoomService) Get(ctx context.Context, code string) (*repository.Room, error) {
	code = NormalizeCode(code)
	if code == "" {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("room code is required")
	}
	room, err := s.rooms.GetByCode(ctx, nil, code, false)
	if err != nil {
		return nil, roomError(err, "get room failed")
	}
	return room, nil
}

// IsParticipant reports whether userID is listed in the room.
func (s *RoomService) IsParticipant(ctx context.Context, code string, userID int64) (bool, error) {
	room, err := s.rooms.GetByCode(ctx, nil, NormalizeCode(code), false)
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			return false, nil
		}
		return false, err
	}
	_, ok := room.Participant(userID)
	return ok, nil
}

// Submit judges a participant's source on all tests and records the attempt. The first
// accepted attempt completes the room; later ones never replace the winner.
func (s *RoomService) Submit(ctx context.Context, input SubmitInput) (*SubmitResult, error) {
	code := NormalizeCode(input.Code)
	lang, ok := harness.ParseLanguage(input.Language)
	switch {
	case code == "" || input.UserID <= 0:
		return nil, appErr.New(appErr.InvalidParams).WithMessage("room code and user are required")
	case strings.TrimSpace(input.SourceCode) == "":
		return nil, appErr.ValidationError("source_code", "required")
	case len(input.SourceCode) > s.maxSourceBytes:
		return nil, appErr.New(appErr.CodeTooLarge).WithDetail("max_bytes", s.maxSourceBytes)
	case !ok:
		return nil, appErr.New(appErr.LanguageNotSupported).WithMessagef("language %q is not supported", input.Language)
	}

	room, err := s.rooms.GetByCode(ctx, nil, code, false)
	if err != nil {
		return nil, roomError(err, "get room failed")
	}
	if room.Status == repository.RoomCompleted {
		return nil, appErr.New(appErr.RoomAlreadyCompleted)
	}
	if _, ok := room.Participant(input.UserID); !ok {
		return nil, appErr.New(appErr.NotAParticipant)
	}
	problem, err := s.problems.GetByID(ctx, nil, room.ProblemID)
	if err != nil {
		if errors.Is(err, problemRepo.ErrProblemNotFound) {
			return nil, appErr.New(appErr.ProblemNotFound)
		}
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "get problem failed")
	}

	v, err := s.judge.Run(ctx, judgesvc.RunRequest{
		Purpose:  judgesvc.PurposeCompetition,
		Source:   input.SourceCode,
		Language: lang,
		Tags:     problem.Tags,
		Tests:    problemSvc.JudgeTests(problem.AllTests()),
	})
	if err != nil {
		return nil, err
	}

	persistCtx := context.WithoutCancel(ctx)
	now := s.now().UTC()
	attempt := repository.Attempt{
		SubmittedAt: now,
		Language:    string(lang),
		SourceCode:  input.SourceCode,
		IsCorrect:   v.AllPassed,
		RuntimeMs:   v.RuntimeMs,
		TestsPassed: v.TestsPassed,
	}
	if err := s.rooms.RecordAttempt(persistCtx, nil, room.ID, input.UserID, attempt); err != nil {
		return nil, roomError(err, "record attempt failed")
	}

	won := false
	if v.AllPassed {
		won, err = s.rooms.SetWinner(persistCtx, nil, room.ID, input.UserID, now)
		if err != nil {
			return nil, appErr.Wrapf(err, appErr.DatabaseError, "set winner failed")
		}
	}

	latest, err := s.rooms.GetByCode(persistCtx, nil, code, false)
	if err != nil {
		return nil, roomError(err, "reload room failed")
	}

	s.notify(ctx, code, realtime.EventSubmissionMade, realtime.SubmissionMade{
		UserID:    input.UserID,
		IsCorrect: v.AllPassed,
		Winner:    latest.WinnerID,
	})
	if won {
		s.notify(ctx, code, realtime.EventCompetitionEnded, realtime.CompetitionEnded{
			Winner:      input.UserID,
			CompletedAt: now,
		})
		logger.Info(ctx, "competition won", zap.String("room", code), zap.Int64("winner", input.UserID))
	}

	return &SubmitResult{
		Room:        latest,
		IsCorrect:   v.AllPassed,
		Won:         won,
		TestsPassed: v.TestsPassed,
		TestsTotal:  v.TestsTotal,
		RuntimeMs:   v.RuntimeMs,
		Fault:       v.FirstError,
	}, nil
}

func (s *RoomService) notify(ctx context.Context, room, event string, data interface{}) {
	if s.notifier == nil {
		return
	}
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	if err := s.notifier.Publish(notifyCtx, room, event, data); err != nil {
		logger.Warn(ctx, "room event not delivered", zap.String("room", room), zap.String("event", event), zap.Error(err))
	}
}

func roomError(err error, msg string) error {
	var coded *appErr.Error
	switch {
	case errors.As(err, &coded):
		return coded
	case errors.Is(err, repository.ErrRoomNotFound):
		return appErr.New(appErr.RoomNotFound)
	case errors.Is(err, repository.ErrNotJoined):
		return appErr.New(appErr.NotAParticipant)
	default:
		return appErr.Wrapf(err, appErr.DatabaseError, "%s", msg)
	}
}

package service

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"codearena/internal/common/db"
	"codearena/internal/competition/realtime"
	"codearena/internal/competition/repository"
	judgesvc "codearena/internal/judge/service"
	"codearena/internal/judge/verdict"
	problemRepo "codearena/internal/problem/repository"
	appErr "codearena/pkg/errors"
)

type fakeRooms struct {
	mu     sync.Mutex
	nextID int64
	byCode map[string]*repository.Room
}

func newFakeRooms() *fakeRooms {
	return &fakeRooms{byCode: make(map[string]*repository.Room)}
}

func cloneRoom(r *repository.Room) *repository.Room {
	cp := *r
	cp.Participants = append([]repository.Participant(nil), r.Participants...)
	return &cp
}

func (f *fakeRooms) byID(id int64) *repository.Room {
	for _, r := range f.byCode {
		if r.ID == id {
			return r
		}
	}
	return nil
}

func (f *fakeRooms) Create(ctx context.Context, tx db.Transaction, room *repository.Room) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byCode[room.Code]; ok {
		return repository.ErrCodeConflict
	}
	f.nextID++
	room.ID = f.nextID
	f.byCode[room.Code] = cloneRoom(room)
	return nil
}

func (f *fakeRooms) GetByCode(ctx context.Context, tx db.Transaction, code string, forUpdate bool) (*repository.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.byCode[code]
	if !ok {
		return nil, repository.ErrRoomNotFound
	}
	return cloneRoom(r), nil
}

func (f *fakeRooms) AddParticipant(ctx context.Context, tx db.Transaction, roomID, userID int64, joinedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.byID(roomID)
	r.Participants = append(r.Participants, repository.Participant{UserID: userID, JoinedAt: joinedAt})
	return nil
}

func (f *fakeRooms) Activate(ctx context.Context, tx db.Transaction, roomID int64, startedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.byID(roomID)
	if r.Status == repository.RoomWaiting {
		r.Status = repository.RoomActive
		r.StartedAt = &startedAt
	}
	return nil
}

func (f *fakeRooms) RecordAttempt(ctx context.Context, tx db.Transaction, roomID, userID int64, a repository.Attempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.byID(roomID)
	for i := range r.Participants {
		p := &r.Participants[i]
		if p.UserID == userID {
			at := a.SubmittedAt
			p.SubmittedAt = &at
			p.Language = a.Language
			p.SourceCode = a.SourceCode
			p.IsCorrect = a.IsCorrect
			p.RuntimeMs = a.RuntimeMs
			p.TestsPassed = a.TestsPassed
			p.Attempts++
			return nil
		}
	}
	return repository.ErrNotJoined
}

func (f *fakeRooms) SetWinner(ctx context.Context, tx db.Transaction, roomID, userID int64, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.byID(roomID)
	if r.WinnerID != nil {
		return false, nil
	}
	winner := userID
	r.WinnerID = &winner
	r.Status = repository.RoomCompleted
	r.CompletedAt = &at
	return true, nil
}

type fakeTx struct{}

func (fakeTx) Transaction(ctx context.Context, fn func(tx db.Transaction) error) error {
	return fn(nil)
}

type fakeProblems struct {
	problem *problemRepo.Problem
}

func (f fakeProblems) GetByID(ctx context.Context, tx db.Transaction, id int64) (*problemRepo.Problem, error) {
	if f.problem == nil || f.problem.ID != id {
		return nil, problemRepo.ErrProblemNotFound
	}
	return f.problem, nil
}

func (f fakeProblems) RandomID(ctx context.Context) (int64, error) {
	if f.problem == nil {
		return 0, problemRepo.ErrProblemNotFound
	}
	return f.problem.ID, nil
}

// userJudge accepts sources containing "ok"; onRun runs before the verdict is returned.
type userJudge struct {
	mu    sync.Mutex
	calls []judgesvc.RunRequest
	onRun func()
}

func (j *userJudge) Run(ctx context.Context, req judgesvc.RunRequest) (verdict.Verdict, error) {
	j.mu.Lock()
	j.calls = append(j.calls, req)
	hook := j.onRun
	j.mu.Unlock()
	if hook != nil {
		hook()
	}
	n := len(req.Tests)
	if strings.Contains(req.Source, "ok") {
		return verdict.Verdict{AllPassed: true, TestsPassed: n, TestsTotal: n, RuntimeMs: 5}, nil
	}
	return verdict.Verdict{
		TestsPassed: 0,
		TestsTotal:  n,
		FirstError:  &verdict.Failure{Index: 0, Kind: verdict.WrongAnswer, Message: "test 1: Wrong Answer"},
	}, nil
}

type sentEvent struct {
	room  string
	event string
	data  interface{}
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []sentEvent
}

func (n *recordingNotifier) Publish(ctx context.Context, room, event string, data interface{}) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, sentEvent{room: room, event: event, data: data})
	return nil
}

func (n *recordingNotifier) names() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.events))
	for _, e := range n.events {
		out = append(out, e.event)
	}
	return out
}

type roomEnv struct {
	svc      *RoomService
	rooms    *fakeRooms
	judge    *userJudge
	notifier *recordingNotifier
}

func newRoomEnv(t *testing.T) *roomEnv {
	t.Helper()
	rooms := newFakeRooms()
	judge := &userJudge{}
	notifier := &recordingNotifier{}
	problem := &problemRepo.Problem{
		ID:           11,
		Tags:         []string{"array", "hash-table"},
		VisibleTests: []problemRepo.TestCase{{Input: "[2,7,11,15],9", ExpectedOutput: "[0,1]"}},
		HiddenTests:  []problemRepo.TestCase{{Input: "[3,2,4],6", ExpectedOutput: "[1,2]", Hidden: true}},
	}
	svc, err := NewRoomService(Config{
		Rooms:    rooms,
		Tx:       fakeTx{},
		Problems: fakeProblems{problem: problem},
		Judge:    judge,
		Notifier: notifier,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return &roomEnv{svc: svc, rooms: rooms, judge: judge, notifier: notifier}
}

func TestRoomCapacityScenario(t *testing.T) {
	env := newRoomEnv(t)
	ctx := context.Background()

	room, err := env.svc.Create(ctx, CreateInput{CreatorID: 1, MaxParticipants: 2})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if room.Status != repository.RoomWaiting || len(room.Participants) != 1 || room.ProblemID != 11 {
		t.Fatalf("unexpected new room: %+v", room)
	}

	joined, err := env.svc.Join(ctx, strings.ToLower(room.Code), 2)
	if err != nil {
		t.Fatalf("join failed: %v", err)
	}
	if joined.Status != repository.RoomActive || joined.StartedAt == nil {
		t.Fatalf("expected active room with start time, got %+v", joined)
	}
	names := env.notifier.names()
	if len(names) != 2 || names[0] != realtime.EventParticipantJoined || names[1] != realtime.EventCompetitionStarted {
		t.Fatalf("unexpected events: %v", names)
	}
	if pj := env.notifier.events[0].data.(realtime.ParticipantJoined); pj.ParticipantCount != 2 || pj.UserID != 2 {
		t.Fatalf("unexpected participant-joined payload: %+v", pj)
	}

	if _, err := env.svc.Join(ctx, room.Code, 3); !appErr.Is(err, appErr.RoomFull) {
		t.Fatalf("expected RoomFull, got %v", err)
	}
	again, err := env.svc.Join(ctx, room.Code, 1)
	if err != nil || len(again.Participants) != 2 {
		t.Fatalf("rejoin should be a no-op: %v %+v", err, again)
	}
	if len(env.notifier.names()) != 2 {
		t.Fatalf("rejoin must not emit events")
	}
}

func TestRoomCreateValidation(t *testing.T) {
	env := newRoomEnv(t)
	ctx := context.Background()
	if _, err := env.svc.Create(ctx, CreateInput{CreatorID: 1, MaxParticipants: 9}); !appErr.Is(err, appErr.ValidationFailed) {
		t.Fatalf("expected ValidationFailed, got %v", err)
	}
	if _, err := env.svc.Create(ctx, CreateInput{CreatorID: 1, ProblemID: 99}); !appErr.Is(err, appErr.ProblemNotFound) {
		t.Fatalf("expected ProblemNotFound, got %v", err)
	}
	room, err := env.svc.Create(ctx, CreateInput{CreatorID: 1, ProblemID: 11})
	if err != nil || room.MaxParticipants != 2 {
		t.Fatalf("expected default capacity: %v %+v", err, room)
	}
}

func TestRoomCodeRetriesOnCollision(t *testing.T) {
	env := newRoomEnv(t)
	codes := []string{"AAAAAA", "AAAAAA", "BBBBBB"}
	env.svc.newCode = func() (string, error) {
		code := codes[0]
		codes = codes[1:]
		return code, nil
	}
	ctx := context.Background()
	first, err := env.svc.Create(ctx, CreateInput{CreatorID: 1})
	if err != nil || first.Code != "AAAAAA" {
		t.Fatalf("first create: %v %+v", err, first)
	}
	second, err := env.svc.Create(ctx, CreateInput{CreatorID: 2})
	if err != nil || second.Code != "BBBBBB" {
		t.Fatalf("expected retry to BBBBBB: %v %+v", err, second)
	}
}

func TestRoomCodeAlphabet(t *testing.T) {
	for i := 0; i < 50; i++ {
		code, err := RoomCode()
		if err != nil {
			t.Fatalf("room code: %v", err)
		}
		if len(code) != codeLength {
			t.Fatalf("unexpected length %q", code)
		}
		for _, ch := range code {
			if !strings.ContainsRune(codeAlphabet, ch) {
				t.Fatalf("code %q has ambiguous char %q", code, ch)
			}
		}
	}
}

func startedRoom(t *testing.T, env *roomEnv) string {
	t.Helper()
	ctx := context.Background()
	room, err := env.svc.Create(ctx, CreateInput{CreatorID: 1})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := env.svc.Join(ctx, room.Code, 2); err != nil {
		t.Fatalf("join: %v", err)
	}
	env.notifier.events = nil
	return room.Code
}

func TestSubmitWinnerLaw(t *testing.T) {
	env := newRoomEnv(t)
	code := startedRoom(t, env)
	ctx := context.Background()

	// User 1 completes the room while user 2's batch is being judged.
	env.judge.onRun = func() {
		env.judge.onRun = nil
		room, _ := env.rooms.GetByCode(ctx, nil, code, false)
		if _, err := env.rooms.SetWinner(ctx, nil, room.ID, 1, time.Now()); err != nil {
			t.Errorf("set winner: %v", err)
		}
	}
	res, err := env.svc.Submit(ctx, SubmitInput{Code: code, UserID: 2, Language: "python", SourceCode: "ok"})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if !res.IsCorrect || res.Won {
		t.Fatalf("late accepted submission must not win: %+v", res)
	}
	if res.Room.WinnerID == nil || *res.Room.WinnerID != 1 || res.Room.Status != repository.RoomCompleted {
		t.Fatalf("winner changed: %+v", res.Room)
	}
	if p, _ := res.Room.Participant(2); p.Attempts != 1 || !p.IsCorrect {
		t.Fatalf("attempt not recorded: %+v", p)
	}
	names := env.notifier.names()
	if len(names) != 1 || names[0] != realtime.EventSubmissionMade {
		t.Fatalf("expected only submission-made, got %v", names)
	}
	made := env.notifier.events[0].data.(realtime.SubmissionMade)
	if made.Winner == nil || *made.Winner != 1 || made.UserID != 2 {
		t.Fatalf("unexpected submission-made payload: %+v", made)
	}

	if _, err := env.svc.Submit(ctx, SubmitInput{Code: code, UserID: 2, Language: "python", SourceCode: "ok"}); !appErr.Is(err, appErr.RoomAlreadyCompleted) {
		t.Fatalf("expected RoomAlreadyCompleted, got %v", err)
	}
}

func TestSubmitFirstAcceptedWins(t *testing.T) {
	env := newRoomEnv(t)
	code := startedRoom(t, env)
	ctx := context.Background()

	res, err := env.svc.Submit(ctx, SubmitInput{Code: code, UserID: 2, Language: "cpp", SourceCode: "wrong"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.IsCorrect || res.Won || res.Room.WinnerID != nil || res.Fault == nil {
		t.Fatalf("wrong answer must not complete the room: %+v", res)
	}

	res, err = env.svc.Submit(ctx, SubmitInput{Code: code, UserID: 1, Language: "java", SourceCode: "ok"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !res.Won || res.Room.Status != repository.RoomCompleted || *res.Room.WinnerID != 1 {
		t.Fatalf("expected user 1 to win: %+v", res)
	}
	names := env.notifier.names()
	want := []string{realtime.EventSubmissionMade, realtime.EventSubmissionMade, realtime.EventCompetitionEnded}
	if len(names) != len(want) {
		t.Fatalf("unexpected events %v", names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("unexpected events %v", names)
		}
	}
	ended := env.notifier.events[2].data.(realtime.CompetitionEnded)
	if ended.Winner != 1 || ended.CompletedAt.IsZero() {
		t.Fatalf("unexpected competition-ended payload: %+v", ended)
	}
	if n := len(env.judge.calls[1].Tests); n != 2 {
		t.Fatalf("expected visible and hidden tests, got %d", n)
	}
	if env.judge.calls[1].Purpose != judgesvc.PurposeCompetition {
		t.Fatalf("unexpected purpose %q", env.judge.calls[1].Purpose)
	}
}

func TestSubmitPreconditionsSkipJudge(t *testing.T) {
	env := newRoomEnv(t)
	code := startedRoom(t, env)
	ctx := context.Background()

	cases := []struct {
		name  string
		input SubmitInput
		code  appErr.ErrorCode
	}{
		{"unknown room", SubmitInput{Code: "ZZZZZZ", UserID: 1, Language: "cpp", SourceCode: "ok"}, appErr.RoomNotFound},
		{"outsider", SubmitInput{Code: code, UserID: 3, Language: "cpp", SourceCode: "ok"}, appErr.NotAParticipant},
		{"bad language", SubmitInput{Code: code, UserID: 1, Language: "ruby", SourceCode: "ok"}, appErr.LanguageNotSupported},
		{"empty source", SubmitInput{Code: code, UserID: 1, Language: "cpp", SourceCode: " "}, appErr.ValidationFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.svc.Submit(ctx, tc.input)
			if appErr.GetCode(err) != tc.code {
				t.Fatalf("expected code %d, got %v", tc.code, err)
			}
		})
	}
	if len(env.judge.calls) != 0 {
		t.Fatalf("preconditions must be checked before judging, got %d judge calls", len(env.judge.calls))
	}
}

func TestIsParticipant(t *testing.T) {
	env := newRoomEnv(t)
	code := startedRoom(t, env)
	ctx := context.Background()
	for _, tc := range []struct {
		code string
		user int64
		want bool
	}{
		{code, 1, true},
		{strings.ToLower(code), 2, true},
		{code, 3, false},
		{"NOPE00", 1, false},
	} {
		got, err := env.svc.IsParticipant(ctx, tc.code, tc.user)
		if err != nil || got != tc.want {
			t.Fatalf("IsParticipant(%s,%d)=%v,%v want %v", tc.code, tc.user, got, err, tc.want)
		}
	}
}

func TestRoomJSONHidesSource(t *testing.T) {
	room := repository.Room{Participants: []repository.Participant{{UserID: 1, SourceCode: "secret"}}}
	payload, err := json.Marshal(room)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(payload), "secret") {
		t.Fatalf("participant source leaked: %s", payload)
	}
}

package repl

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"codearena/internal/cli/command"
	"codearena/internal/cli/state"
)

func TestParseParams(t *testing.T) {
	params, err := ParseParams([]string{"problem_id=3", "Lang=cpp", "note=a=b"})
	if err != nil {
		t.Fatalf("parse params: %v", err)
	}
	if params.Get("lang") != "cpp" || params.Get("note") != "a=b" {
		t.Fatalf("unexpected params: %v", params)
	}
	if _, err := ParseParams([]string{"oops"}); err == nil {
		t.Fatalf("expected error for bare token")
	}
}

func TestApplyFileShortcuts(t *testing.T) {
	registry := command.Registry()

	submit := registry["submit run"]
	params := command.Params{}
	params.Set("file", "./main.py")
	params.Canonicalize(submit.Fields)
	ApplyFileShortcuts(submit, params)
	if params.Get("source_code") != command.FileMarker {
		t.Fatalf("source_code should come from the file, got %q", params.Get("source_code"))
	}

	problem := registry["problem create"]
	params = command.Params{}
	params.Set("problem_file", "./p.json")
	ApplyFileShortcuts(problem, params)
	if params.Get("problem_json") != command.FileMarker {
		t.Fatalf("problem_json should come from the file, got %q", params.Get("problem_json"))
	}

	params = command.Params{}
	params.Set("source_code", "print(1)")
	ApplyFileShortcuts(submit, params)
	if params.Get("source_code") != "print(1)" {
		t.Fatalf("inline source must win")
	}
}

func TestRoomCodeFromResponse(t *testing.T) {
	cases := []struct {
		body string
		want string
		ok   bool
	}{
		{`{"code":10000,"data":{"code":"AB12CD","status":"waiting"}}`, "AB12CD", true},
		{`{"code":14001,"message":"Competition room is full"}`, "", false},
		{`not json`, "", false},
	}
	for _, tc := range cases {
		got, ok := RoomCodeFromResponse([]byte(tc.body))
		if got != tc.want || ok != tc.ok {
			t.Fatalf("RoomCodeFromResponse(%s) = %q,%v want %q,%v", tc.body, got, ok, tc.want, tc.ok)
		}
	}
}

func TestLogoutAndRoomsCommands(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cli_state.json")
	st := &state.TokenState{AccessToken: "tok"}
	var out bytes.Buffer
	s := &Session{tokenState: st, statePath: path, out: &out}

	s.rememberRoom(command.Command{Service: "room", Action: "join"}, []byte(`{"code":10000,"data":{"code":"ABC234"}}`))
	s.rememberRoom(command.Command{Service: "room", Action: "get"}, []byte(`{"code":10000,"data":{"code":"ZZZ999"}}`))

	if !s.handleSystemCommand(context.Background(), "rooms") {
		t.Fatal("rooms not handled")
	}
	if !strings.Contains(out.String(), "1. ABC234") || strings.Contains(out.String(), "ZZZ999") {
		t.Fatalf("rooms output = %q", out.String())
	}

	if !s.handleSystemCommand(context.Background(), "logout") {
		t.Fatal("logout not handled")
	}
	saved, err := state.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if saved.AccessToken != "" || saved.LastRoom != "ABC234" {
		t.Fatalf("saved state = %+v", saved)
	}
}

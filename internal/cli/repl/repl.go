package repl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"codearena/internal/cli/command"
	httpclient "codearena/internal/cli/http"
	"codearena/internal/cli/state"
	"codearena/internal/competition/realtime"
	pkgerrors "codearena/pkg/errors"

	"github.com/chzyer/readline"
	"github.com/google/shlex"
)

const prompt = "arena> "

// Session holds REPL state.
type Session struct {
	client        *httpclient.Client
	commands      map[string]command.Command
	tokenState    *state.TokenState
	statePath     string
	prettyJSON    bool
	watchDuration time.Duration
	rl            *readline.Instance
	out           io.Writer
}

// Options configures a Session.
type Options struct {
	StatePath     string
	HistoryPath   string
	PrettyJSON    bool
	WatchDuration time.Duration
}

func New(client *httpclient.Client, commands map[string]command.Command, tokenState *state.TokenState, opts Options) (*Session, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		HistoryFile:     opts.HistoryPath,
		AutoComplete:    completer(commands),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("init readline failed: %w", err)
	}
	return &Session{
		client:        client,
		commands:      commands,
		tokenState:    tokenState,
		statePath:     opts.StatePath,
		prettyJSON:    opts.PrettyJSON,
		watchDuration: opts.WatchDuration,
		rl:            rl,
		out:           rl.Stdout(),
	}, nil
}

func completer(commands map[string]command.Command) *readline.PrefixCompleter {
	actions := map[string][]readline.PrefixCompleterInterface{}
	for _, cmd := range commands {
		actions[cmd.Service] = append(actions[cmd.Service], readline.PcItem(cmd.Action))
	}
	items := []readline.PrefixCompleterInterface{
		readline.PcItem("help"),
		readline.PcItem("exit"),
		readline.PcItem("logout"),
		readline.PcItem("rooms"),
		readline.PcItem("watch"),
		readline.PcItem("set", readline.PcItem("base"), readline.PcItem("timeout"), readline.PcItem("token")),
		readline.PcItem("show", readline.PcItem("token"), readline.PcItem("config")),
	}
	for service, sub := range actions {
		items = append(items, readline.PcItem(service, sub...))
	}
	return readline.NewPrefixCompleter(items...)
}

func (s *Session) Run(ctx context.Context) {
	defer func() { _ = s.rl.Close() }()
	for {
		line, err := s.rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.printLine("read input failed: %v", err)
			}
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			s.printLine("bye")
			return
		}
		if s.handleSystemCommand(ctx, line) {
			continue
		}
		if err := s.handleCommand(ctx, line); err != nil {
			s.printLine("error: %v", err)
		}
	}
}

func (s *Session) handleSystemCommand(ctx context.Context, line string) bool {
	if line == "help" {
		s.printHelp()
		return true
	}
	if line == "logout" {
		s.tokenState.Logout()
		s.saveState()
		s.printLine("token cleared")
		return true
	}
	if line == "rooms" {
		if len(s.tokenState.Rooms) == 0 {
			s.printLine("no recent rooms")
			return true
		}
		for i, code := range s.tokenState.Rooms {
			s.printLine("%d. %s", i+1, code)
		}
		return true
	}
	if strings.HasPrefix(line, "set ") {
		s.handleSet(strings.TrimSpace(strings.TrimPrefix(line, "set ")))
		return true
	}
	if strings.HasPrefix(line, "show ") {
		s.handleShow(strings.TrimSpace(strings.TrimPrefix(line, "show ")))
		return true
	}
	if line == "watch" || strings.HasPrefix(line, "watch ") {
		if err := s.handleWatch(ctx, strings.Fields(line)[1:]); err != nil {
			s.printLine("error: %v", err)
		}
		return true
	}
	return false
}

func (s *Session) handleSet(args string) {
	parts := strings.Fields(args)
	if len(parts) == 0 {
		s.printLine("usage: set base|token|timeout")
		return
	}
	switch parts[0] {
	case "base":
		if len(parts) < 2 {
			s.printLine("usage: set base http://127.0.0.1:8080")
			return
		}
		s.client.SetBaseURL(parts[1])
		s.printLine("base set to %s", parts[1])
	case "timeout":
		if len(parts) < 2 {
			s.printLine("usage: set timeout 90s")
			return
		}
		dur, err := time.ParseDuration(parts[1])
		if err != nil {
			s.printLine("invalid duration: %v", err)
			return
		}
		s.client.SetTimeout(dur)
		s.printLine("timeout set to %s", dur)
	case "token":
		if len(parts) < 2 {
			s.printLine("usage: set token <access_token>")
			return
		}
		s.tokenState.AccessToken = parts[1]
		s.saveState()
		s.printLine("token updated")
	default:
		s.printLine("unknown set command")
	}
}

func (s *Session) handleShow(args string) {
	switch args {
	case "token":
		if s.tokenState.AccessToken == "" {
			s.printLine("token: <empty>")
			return
		}
		token := s.tokenState.AccessToken
		if len(token) > 12 {
			token = token[:6] + "..." + token[len(token)-4:]
		}
		s.printLine("token: %s", token)
	case "config":
		s.printLine("tokenStatePath: %s", s.statePath)
		s.printLine("lastRoom: %s", s.tokenState.LastRoom)
	default:
		s.printLine("usage: show token|config")
	}
}

// handleWatch streams room events until the duration passes or ^C is pressed.
func (s *Session) handleWatch(ctx context.Context, args []string) error {
	room := s.tokenState.LastRoom
	if len(args) > 0 {
		room = args[0]
	}
	if room == "" {
		return fmt.Errorf("usage: watch <room_code> [duration]")
	}
	if s.tokenState.AccessToken == "" {
		return httpclient.ErrNoToken
	}
	duration := s.watchDuration
	if len(args) > 1 {
		d, err := time.ParseDuration(args[1])
		if err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}
		duration = d
	}

	watchCtx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()
	watchCtx, stop := signal.NotifyContext(watchCtx, os.Interrupt)
	defer stop()

	s.printLine("watching room %s for %s (^C to stop)", strings.ToUpper(room), duration)
	return s.client.Watch(watchCtx, room, func(frame []byte) {
		var env realtime.Envelope
		if err := json.Unmarshal(frame, &env); err != nil {
			s.printLine("%s", string(frame))
			return
		}
		s.printLine("[%s] %s %s", time.Now().Format("15:04:05"), env.Event, string(env.Data))
	})
}

func (s *Session) handleCommand(ctx context.Context, line string) error {
	tokens, err := shlex.Split(line)
	if err != nil {
		return fmt.Errorf("parse command failed: %w", err)
	}
	if len(tokens) < 2 {
		return fmt.Errorf("invalid command, use: <service> <action> key=value ...")
	}
	key := fmt.Sprintf("%s %s", tokens[0], tokens[1])
	cmd, ok := s.commands[key]
	if !ok {
		return fmt.Errorf("unknown command: %s", key)
	}
	if cmd.RequiresAuth && s.tokenState.AccessToken == "" {
		return httpclient.ErrNoToken
	}
	params, err := ParseParams(tokens[2:])
	if err != nil {
		return err
	}
	params.Canonicalize(cmd.Fields)
	s.applyRoomDefault(cmd, params)
	ApplyFileShortcuts(cmd, params)
	if err := s.promptMissing(cmd, params); err != nil {
		return err
	}
	req, err := command.BuildRequest(cmd, params)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(ctx, req.Method, req.Path, req.Headers, req.Body)
	if err != nil {
		return err
	}
	s.renderResponse(resp)
	s.rememberRoom(cmd, resp.Body)
	return nil
}

// ParseParams turns key=value tokens into Params.
func ParseParams(tokens []string) (command.Params, error) {
	params := command.Params{}
	for _, token := range tokens {
		parts := strings.SplitN(token, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid param: %s", token)
		}
		params.Set(parts[0], parts[1])
	}
	return params, nil
}

// ApplyFileShortcuts marks a required value as coming from its paired *_file field.
func ApplyFileShortcuts(cmd command.Command, params command.Params) {
	for _, field := range cmd.Fields {
		if field.Type != command.FieldFile || params.Get(field.Name) == "" {
			continue
		}
		target := strings.TrimSuffix(field.Name, "_file")
		for _, candidate := range []string{target + "_code", target + "_json"} {
			if params.Get(candidate) == "" && hasField(cmd, candidate) {
				params.Set(candidate, command.FileMarker)
			}
		}
	}
}

func hasField(cmd command.Command, name string) bool {
	for _, field := range cmd.Fields {
		if field.Name == name {
			return true
		}
	}
	return false
}

func (s *Session) applyRoomDefault(cmd command.Command, params command.Params) {
	if cmd.Service == "room" && params.Get("code") == "" && s.tokenState.LastRoom != "" && hasField(cmd, "code") {
		params.Set("code", s.tokenState.LastRoom)
	}
}

func (s *Session) promptMissing(cmd command.Command, params command.Params) error {
	for _, field := range cmd.Fields {
		if !field.Required || params.Get(field.Name) != "" {
			continue
		}
		value, err := s.promptValue(field.Prompt)
		if err != nil {
			return err
		}
		params.Set(field.Name, value)
	}
	return nil
}

func (s *Session) promptValue(label string) (string, error) {
	s.rl.SetPrompt(label + ": ")
	defer s.rl.SetPrompt(prompt)
	line, err := s.rl.Readline()
	if err != nil {
		return "", fmt.Errorf("read input failed: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func (s *Session) renderResponse(resp httpclient.ResponseInfo) {
	s.printLine("HTTP %d (%s)", resp.StatusCode, resp.Duration)
	if len(resp.Body) == 0 {
		return
	}
	if s.prettyJSON {
		var raw interface{}
		if err := json.Unmarshal(resp.Body, &raw); err == nil {
			formatted, _ := json.MarshalIndent(raw, "", "  ")
			s.printLine("%s", string(formatted))
			return
		}
	}
	s.printLine("%s", string(resp.Body))
}

// rememberRoom keeps the code of a created or joined room so later room commands can omit it.
func (s *Session) rememberRoom(cmd command.Command, body []byte) {
	if cmd.Service != "room" || (cmd.Action != "create" && cmd.Action != "join") {
		return
	}
	code, ok := RoomCodeFromResponse(body)
	if !ok {
		return
	}
	s.tokenState.RememberRoom(code)
	s.saveState()
}

// RoomCodeFromResponse extracts data.code from a successful envelope.
func RoomCodeFromResponse(body []byte) (string, bool) {
	var resp struct {
		Code int `json:"code"`
		Data struct {
			Code string `json:"code"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", false
	}
	if resp.Code != int(pkgerrors.Success) || resp.Data.Code == "" {
		return "", false
	}
	return resp.Data.Code, true
}

func (s *Session) saveState() {
	if err := state.Save(s.statePath, *s.tokenState); err != nil {
		s.printLine("save state failed: %v", err)
	}
}

func (s *Session) printHelp() {
	s.printLine("usage: <service> <action> key=value ...")
	s.printLine("system: help | exit | logout | rooms | set base|timeout|token | show token|config | watch <room> [duration]")
	s.printLine("examples:")
	s.printLine("  problem get id=1")
	s.printLine("  problem create file=./two-sum.json")
	s.printLine("  submit run problem_id=1 lang=python file=./solution.py")
	s.printLine("  submit create problem_id=1 lang=cpp file=./main.cpp key=attempt-1")
	s.printLine("  room create max=2")
	s.printLine("  room submit lang=java file=./Solution.java")
}

func (s *Session) printLine(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(s.out, format+"\n", args...)
}

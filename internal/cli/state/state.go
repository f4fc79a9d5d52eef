package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// MaxRecentRooms bounds the room history kept between sessions.
const MaxRecentRooms = 5

// TokenState is what the CLI remembers between runs: the bearer token and
// the rooms the user recently created or joined, newest first.
type TokenState struct {
	AccessToken string   `json:"access_token"`
	LastRoom    string   `json:"last_room,omitempty"`
	Rooms       []string `json:"rooms,omitempty"`
}

// RememberRoom makes code the current room and moves it to the front of the history.
func (s *TokenState) RememberRoom(code string) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return
	}
	s.LastRoom = code
	rooms := make([]string, 0, MaxRecentRooms)
	rooms = append(rooms, code)
	for _, r := range s.Rooms {
		if r != code && len(rooms) < MaxRecentRooms {
			rooms = append(rooms, r)
		}
	}
	s.Rooms = rooms
}

// Logout drops the token but keeps the room history.
func (s *TokenState) Logout() {
	s.AccessToken = ""
}

func Load(path string) (TokenState, error) {
	var st TokenState
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return st, nil
		}
		return st, fmt.Errorf("read cli state failed: %w", err)
	}
	if len(data) == 0 {
		return st, nil
	}
	if err := json.Unmarshal(data, &st); err != nil {
		return st, fmt.Errorf("parse cli state failed: %w", err)
	}
	if st.LastRoom != "" && len(st.Rooms) == 0 {
		st.Rooms = []string{st.LastRoom}
	}
	return st, nil
}

// Save writes through a temp file so a crash never leaves a truncated token file.
func Save(path string, st TokenState) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cli state dir failed: %w", err)
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cli state failed: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".cli_state-*")
	if err != nil {
		return fmt.Errorf("create cli state temp file failed: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write cli state failed: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod cli state failed: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close cli state failed: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace cli state failed: %w", err)
	}
	return nil
}

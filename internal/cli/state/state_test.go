package state

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestLoadMissingFile(t *testing.T) {
	st, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if st.AccessToken != "" || st.LastRoom != "" || len(st.Rooms) != 0 {
		t.Fatalf("expected empty state, got %+v", st)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cli_state.json")
	st := TokenState{AccessToken: "tok"}
	st.RememberRoom("abc234")

	if err := Save(path, st); err != nil {
		t.Fatalf("Save: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("mode = %v, want 0600", info.Mode().Perm())
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(got, st) {
		t.Fatalf("round trip = %+v, want %+v", got, st)
	}
	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %d entries", len(entries))
	}
}

func TestLoadUpgradesLastRoomOnlyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cli_state.json")
	if err := os.WriteFile(path, []byte(`{"access_token":"t","last_room":"XYZ789"}`), 0o600); err != nil {
		t.Fatal(err)
	}
	st, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(st.Rooms, []string{"XYZ789"}) {
		t.Fatalf("rooms = %v", st.Rooms)
	}
}

func TestRememberRoom(t *testing.T) {
	var st TokenState
	for _, code := range []string{"AAA111", "BBB222", "CCC333", "DDD444", "EEE555", "FFF666"} {
		st.RememberRoom(code)
	}
	st.RememberRoom(" ccc333 ")
	st.RememberRoom("")

	want := []string{"CCC333", "FFF666", "EEE555", "DDD444", "BBB222"}
	if !reflect.DeepEqual(st.Rooms, want) {
		t.Fatalf("rooms = %v, want %v", st.Rooms, want)
	}
	if st.LastRoom != "CCC333" {
		t.Fatalf("last room = %q", st.LastRoom)
	}
}

func TestLogoutKeepsRooms(t *testing.T) {
	st := TokenState{AccessToken: "tok"}
	st.RememberRoom("AAA111")
	st.Logout()
	if st.AccessToken != "" || st.LastRoom != "AAA111" {
		t.Fatalf("after logout: %+v", st)
	}
}

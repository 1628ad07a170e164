package sessions

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "sessions"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store
}

func writeSessionFile(t *testing.T, store *Store, name string, modified time.Time) {
	t.Helper()
	path := filepath.Join(store.Dir(), name)
	if err := os.WriteFile(path, []byte("[]"), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	if err := os.Chtimes(path, modified, modified); err != nil {
		t.Fatalf("chtimes %s: %v", name, err)
	}
}

func TestValidID(t *testing.T) {
	valid := []string{"20240101_120000", "abc", "A-b_C9", strings.Repeat("x", 64)}
	for _, id := range valid {
		if !ValidID(id) {
			t.Errorf("ValidID(%q) = false, want true", id)
		}
	}

	invalid := []string{"", "../evil", "a/b", "a b", "sash!", strings.Repeat("x", 65), "dot.json"}
	for _, id := range invalid {
		if ValidID(id) {
			t.Errorf("ValidID(%q) = true, want false", id)
		}
	}
}

func TestPathRejectsTraversal(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.Path(1, "../../etc/passwd"); !errors.Is(err, ErrInvalidSessionID) {
		t.Fatalf("Path error = %v, want ErrInvalidSessionID", err)
	}

	path, err := store.Path(7, "20240101_120000")
	if err != nil {
		t.Fatalf("Path: %v", err)
	}
	want := filepath.Join(store.Dir(), "7_session_20240101_120000.json")
	if path != want {
		t.Errorf("Path = %q, want %q", path, want)
	}
}

func TestListFiltersAndSorts(t *testing.T) {
	store := newTestStore(t)
	base := time.Now().Add(-time.Hour).Truncate(time.Second)

	writeSessionFile(t, store, "7_session_old.json", base)
	writeSessionFile(t, store, "7_session_new.json", base.Add(10*time.Minute))
	writeSessionFile(t, store, "7_session_mid.json", base.Add(5*time.Minute))
	// Another user's session and a stray file must not show up.
	writeSessionFile(t, store, "8_session_other.json", base)
	writeSessionFile(t, store, "notes.txt", base)

	infos, err := store.List(7)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(infos) != 3 {
		t.Fatalf("len(infos) = %d, want 3", len(infos))
	}
	order := []string{infos[0].ID, infos[1].ID, infos[2].ID}
	want := []string{"new", "mid", "old"}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("infos[%d].ID = %q, want %q", i, order[i], want[i])
		}
	}
	if infos[0].Filename != "7_session_new.json" {
		t.Errorf("Filename = %q, want %q", infos[0].Filename, "7_session_new.json")
	}
}

func TestListEmptyForUnknownUser(t *testing.T) {
	store := newTestStore(t)

	infos, err := store.List(42)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(infos) != 0 {
		t.Fatalf("len(infos) = %d, want 0", len(infos))
	}
}

func TestExists(t *testing.T) {
	store := newTestStore(t)
	writeSessionFile(t, store, "1_session_abc.json", time.Now())

	if !store.Exists(1, "abc") {
		t.Error("Exists(1, abc) = false, want true")
	}
	if store.Exists(2, "abc") {
		t.Error("Exists(2, abc) = true, want false")
	}
	if store.Exists(1, "../abc") {
		t.Error("Exists with invalid id = true, want false")
	}
}

func TestDelete(t *testing.T) {
	store := newTestStore(t)
	writeSessionFile(t, store, "1_session_abc.json", time.Now())

	if err := store.Delete(1, "abc"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if store.Exists(1, "abc") {
		t.Error("session file still exists after Delete")
	}
	if err := store.Delete(1, "abc"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("second Delete error = %v, want ErrSessionNotFound", err)
	}
	if err := store.Delete(1, "../abc"); !errors.Is(err, ErrInvalidSessionID) {
		t.Errorf("Delete with invalid id error = %v, want ErrInvalidSessionID", err)
	}
}

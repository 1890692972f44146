package files

import (
	"errors"
	"os"
	"strings"
	"testing"
)

func TestStoreWritesAndResolvesBack(t *testing.T) {
	storage, err := NewDirStorage(t.TempDir())
	if err != nil {
		t.Fatalf("new storage: %v", err)
	}

	storedName, err := storage.Store([]byte("payload"), "report.pdf")
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if !strings.HasSuffix(storedName, "-report.pdf") {
		t.Fatalf("expected suggested name preserved as suffix, got %q", storedName)
	}

	path, err := storage.Resolve(storedName)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != "payload" {
		t.Fatalf("unexpected contents %q", data)
	}
}

func TestStoreWithoutSuggestedNameUsesGeneratedName(t *testing.T) {
	storage, err := NewDirStorage(t.TempDir())
	if err != nil {
		t.Fatalf("new storage: %v", err)
	}
	storedName, err := storage.Store([]byte("x"), "")
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if storedName == "" || strings.Contains(storedName, "/") {
		t.Fatalf("unexpected stored name %q", storedName)
	}
}

func TestStoredNamesNeverCollide(t *testing.T) {
	storage, err := NewDirStorage(t.TempDir())
	if err != nil {
		t.Fatalf("new storage: %v", err)
	}
	first, err := storage.Store([]byte("one"), "same.txt")
	if err != nil {
		t.Fatalf("store first: %v", err)
	}
	second, err := storage.Store([]byte("two"), "same.txt")
	if err != nil {
		t.Fatalf("store second: %v", err)
	}
	if first == second {
		t.Fatalf("same suggested name must not collide: %q", first)
	}
}

func TestStoreSanitizesHostileNames(t *testing.T) {
	storage, err := NewDirStorage(t.TempDir())
	if err != nil {
		t.Fatalf("new storage: %v", err)
	}
	storedName, err := storage.Store([]byte("x"), "../../etc/passwd")
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if strings.Contains(storedName, "..") || strings.Contains(storedName, "/") {
		t.Fatalf("hostile name leaked into stored name %q", storedName)
	}
}

func TestRemoveDeletesStoredFile(t *testing.T) {
	storage, err := NewDirStorage(t.TempDir())
	if err != nil {
		t.Fatalf("new storage: %v", err)
	}
	storedName, err := storage.Store([]byte("temp"), "temp.txt")
	if err != nil {
		t.Fatalf("store: %v", err)
	}

	if err := storage.Remove(storedName); err != nil {
		t.Fatalf("remove: %v", err)
	}
	path, err := storage.Resolve(storedName)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("file should be gone, stat returned %v", err)
	}

	// Removing an absent name is tolerated; traversal is not.
	if err := storage.Remove(storedName); err != nil {
		t.Fatalf("second remove: %v", err)
	}
	if err := storage.Remove("../secret"); !errors.Is(err, ErrUnsafeName) {
		t.Fatalf("Remove traversal = %v, want ErrUnsafeName", err)
	}
}

func TestResolveRejectsTraversal(t *testing.T) {
	storage, err := NewDirStorage(t.TempDir())
	if err != nil {
		t.Fatalf("new storage: %v", err)
	}
	for _, name := range []string{"", "../secret", "a/b", "../../etc/passwd"} {
		if _, err := storage.Resolve(name); !errors.Is(err, ErrUnsafeName) {
			t.Fatalf("Resolve(%q) = %v, want ErrUnsafeName", name, err)
		}
	}
}

// Package files implements the storage collaborator invoked after a
// file-domain create clears the admission pipeline.
package files

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrUnsafeName indicates a name that would escape the storage root.
var ErrUnsafeName = errors.New("files: unsafe file name")

// Storage persists uploaded file bytes under server-chosen names.
type Storage interface {
	Store(data []byte, suggestedName string) (string, error)
	Resolve(storedName string) (string, error)
	Remove(storedName string) error
}

// DirStorage writes files into a single directory, prefixing each name
// with a UUID so a suggested name can never collide or overwrite.
type DirStorage struct {
	root string
}

// NewDirStorage creates the storage root if needed.
func NewDirStorage(root string) (*DirStorage, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("files: storage root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &DirStorage{root: root}, nil
}

// Store writes the bytes and returns the stored name.
func (d *DirStorage) Store(data []byte, suggestedName string) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	storedName := id.String()
	if base := sanitizeName(suggestedName); base != "" {
		storedName = fmt.Sprintf("%s-%s", id.String(), base)
	}
	path, err := d.Resolve(storedName)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return storedName, nil
}

// Resolve maps a stored name to its absolute path, rejecting any name
// that would traverse outside the storage root.
func (d *DirStorage) Resolve(storedName string) (string, error) {
	if storedName == "" || storedName != filepath.Base(storedName) {
		return "", ErrUnsafeName
	}
	full := filepath.Join(d.root, storedName)
	if !strings.HasPrefix(full, filepath.Clean(d.root)+string(os.PathSeparator)) {
		return "", ErrUnsafeName
	}
	return full, nil
}

// Remove deletes a stored file. Removing a name that is already gone
// is not an error.
func (d *DirStorage) Remove(storedName string) error {
	path, err := d.Resolve(storedName)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func sanitizeName(name string) string {
	base := filepath.Base(strings.TrimSpace(name))
	if base == "." || base == string(os.PathSeparator) || base == ".." {
		return ""
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		}
		return '-'
	}, base)
}

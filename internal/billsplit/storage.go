package billsplit

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Storage keeps uploaded receipt images so a split can be regenerated.
type Storage interface {
	// Save writes data and returns the name to retrieve it by
	Save(filename string, data []byte) (string, error)

	Get(name string) ([]byte, error)

	Delete(name string) error
}

// LocalStorage implements Storage on a directory.
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates basePath if needed.
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}
	return &LocalStorage{basePath: basePath}, nil
}

// path resolves name inside basePath, refusing names that escape it.
func (l *LocalStorage) path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) {
		return "", fmt.Errorf("invalid file name %q", name)
	}
	return filepath.Join(l.basePath, name), nil
}

// Save writes data under filename.
func (l *LocalStorage) Save(filename string, data []byte) (string, error) {
	path, err := l.path(filename)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("writing file: %w", err)
	}
	return filename, nil
}

// Get reads a stored file.
func (l *LocalStorage) Get(name string) ([]byte, error) {
	path, err := l.path(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return data, nil
}

// Delete removes a stored file.
func (l *LocalStorage) Delete(name string) error {
	path, err := l.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("deleting file: %w", err)
	}
	return nil
}

var (
	unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	whitespace  = regexp.MustCompile(`\s+`)
)

const maxBaseLen = 50

// sanitizeFilename shortens phone-generated upload names to something safe
// to store. The extension is kept.
func sanitizeFilename(filename string) string {
	filename = filepath.Base(filename)
	ext := unsafeChars.ReplaceAllString(filepath.Ext(filename), "")
	if ext != "" {
		ext = "." + ext
	}
	base := strings.TrimSuffix(filename, filepath.Ext(filename))

	base = unsafeChars.ReplaceAllString(base, "")
	base = strings.TrimSpace(whitespace.ReplaceAllString(base, " "))
	if len(base) > maxBaseLen {
		base = strings.TrimSpace(base[:maxBaseLen])
	}
	if base == "" {
		base = "receipt"
	}
	return base + ext
}

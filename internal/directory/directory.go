// Package directory serves the public teacher directory kept in a JSON file.
package directory

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"qrattend/internal/model"
)

// Entry is one teacher listed in the directory. ID is the creation time in
// Unix milliseconds.
type Entry struct {
	ID      int64  `json:"id"`
	Name    string `json:"name" binding:"required,max=128"`
	Subject string `json:"subject" binding:"required,max=128"`
	Email   string `json:"email" binding:"required,email"`
}

// File is a directory backed by a single JSON array on disk. Writes are
// serialised within the process only.
type File struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

// NewFile uses path, which need not exist yet.
func NewFile(path string) *File {
	return &File{path: path, now: time.Now}
}

// List returns every entry in file order.
func (f *File) List() ([]Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.read()
}

// Add appends an entry and returns it with its assigned id.
func (f *File) Add(e Entry) (Entry, error) {
	if err := model.Validate(e); err != nil {
		return Entry{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := f.read()
	if err != nil {
		return Entry{}, err
	}
	e.ID = f.now().UnixMilli()
	if n := len(entries); n > 0 && e.ID <= entries[n-1].ID {
		e.ID = entries[n-1].ID + 1
	}
	entries = append(entries, e)
	if err := f.write(entries); err != nil {
		return Entry{}, err
	}
	return e, nil
}

func (f *File) read() ([]Entry, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return []Entry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read directory: %w", err)
	}
	entries := []Entry{}
	if len(data) == 0 {
		return entries, nil
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode directory %s: %w", f.path, err)
	}
	return entries, nil
}

// write replaces the file through a rename so readers never see a partial
// array.
func (f *File) write(entries []Entry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".teachers-*.json")
	if err != nil {
		return fmt.Errorf("write directory: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write directory: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write directory: %w", err)
	}
	return os.Rename(tmp.Name(), f.path)
}

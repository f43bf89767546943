package command

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Inbox holds at most one pending command.
type Inbox interface {
	// Consume hands the pending command (or the error reading it) to fn and
	// then clears the inbox. It does nothing when the inbox is empty.
	Consume(fn func(cmd Command, readErr error)) error
	Write(cmd Command) error
}

// FileInbox is a single JSON document on disk. An absent or blank file
// means no command is pending.
type FileInbox struct {
	Path string

	mu sync.Mutex
}

func NewFileInbox(path string) *FileInbox {
	return &FileInbox{Path: path}
}

// Read returns the pending command, or nil when there is none.
func (f *FileInbox) Read() (*Command, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.read()
}

func (f *FileInbox) read() (*Command, error) {
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read inbox: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	cmd, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return &cmd, nil
}

// Consume hands the pending command, or the error reading it, to fn and
// then clears the inbox. The clear runs even if fn panics, so a document
// is never delivered twice.
func (f *FileInbox) Consume(fn func(cmd Command, readErr error)) (err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	cmd, readErr := f.read()
	if cmd == nil && readErr == nil {
		return nil
	}
	defer func() {
		if cerr := f.clear(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	if cmd != nil {
		fn(*cmd, nil)
	} else {
		fn(Command{}, readErr)
	}
	return nil
}

// Write replaces any pending command. A zero timestamp is stamped with now.
func (f *FileInbox) Write(cmd Command) error {
	if cmd.Timestamp.IsZero() {
		cmd.Timestamp = time.Now()
	}
	data, err := json.MarshalIndent(cmd, "", "  ")
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	dir := filepath.Dir(f.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create inbox dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".command-*.json")
	if err != nil {
		return fmt.Errorf("write inbox: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("write inbox: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write inbox: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.Path); err != nil {
		return fmt.Errorf("write inbox: %w", err)
	}
	return nil
}

// Clear empties the inbox.
func (f *FileInbox) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clear()
}

func (f *FileInbox) clear() error {
	err := os.Truncate(f.Path, 0)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("clear inbox: %w", err)
	}
	return nil
}

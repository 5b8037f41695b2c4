package log

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// FileLogger appends events to a capture file. It is safe for concurrent
// use.
type FileLogger struct {
	path string

	mu     sync.Mutex
	file   *os.File
	enc    *cbor.Encoder
	events int
	err    error
	closed bool
}

// NewFileLogger opens the capture file at path for appending, creating it
// and its parent directories when missing. A new file gets the capture
// header.
func NewFileLogger(path string) (*FileLogger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create capture directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err == nil && info.Size() == 0 {
		_, err = f.Write(captureMagic)
	}
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("capture header %s: %w", path, err)
	}
	return &FileLogger{path: path, file: f, enc: NewEncoder(f)}, nil
}

// Path returns the capture file path.
func (l *FileLogger) Path() string { return l.path }

// Log appends event. After a write error, and after Close, events are
// dropped.
func (l *FileLogger) Log(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || l.err != nil {
		return
	}
	if err := l.enc.Encode(event); err != nil {
		l.err = err
		return
	}
	l.events++
}

// Events returns the number of events written by this logger.
func (l *FileLogger) Events() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.events
}

// Err returns the write error that stopped the capture, if any.
func (l *FileLogger) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Close closes the file. Further calls return nil.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.file.Close()
}

var _ Logger = (*FileLogger)(nil)

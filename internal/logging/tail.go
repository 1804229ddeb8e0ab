package logging

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// MaxTailLines caps the lines returned by one ReadNew call.
const MaxTailLines = 1000

// Tail reads the lines appended to a log file since the previous call.
type Tail struct {
	path string

	mu     sync.Mutex
	offset int64
}

// NewTail starts reading path from the beginning.
func NewTail(path string) *Tail {
	return &Tail{path: path}
}

// ReadNew returns the non-empty lines written since the last call, keeping
// only the newest MaxTailLines. A missing file yields no lines. When the
// file shrank it is read again from the start.
func (t *Tail) ReadNew() ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	f, err := os.Open(t.path)
	if os.IsNotExist(err) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat log file: %w", err)
	}
	if info.Size() < t.offset {
		t.offset = 0
	}
	if _, err := f.Seek(t.offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to seek log file: %w", err)
	}
	data, err := io.ReadAll(io.LimitReader(f, info.Size()-t.offset))
	if err != nil {
		return nil, fmt.Errorf("failed to read log file: %w", err)
	}

	// A trailing partial line is left for the next call.
	consumed := 0
	if i := bytes.LastIndexByte(data, '\n'); i >= 0 {
		consumed = i + 1
	}
	t.offset += int64(consumed)

	lines := []string{}
	for _, line := range strings.Split(string(data[:consumed]), "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) > MaxTailLines {
		lines = lines[len(lines)-MaxTailLines:]
	}
	return lines, nil
}

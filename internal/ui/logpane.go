package ui

import (
	"strings"
	"sync"
)

const defaultLogLines = 200

// LogBuffer keeps the most recent log lines for the log pane. It is an
// io.Writer so it can sit behind the logger.
type LogBuffer struct {
	mu      sync.Mutex
	lines   []string
	max     int
	partial string
}

// NewLogBuffer keeps at most max lines; max <= 0 uses a default.
func NewLogBuffer(max int) *LogBuffer {
	if max <= 0 {
		max = defaultLogLines
	}
	return &LogBuffer{max: max}
}

// Write splits p into lines. A trailing fragment without newline is held
// until the next write.
func (b *LogBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	text := b.partial + string(p)
	parts := strings.Split(text, "\n")
	b.partial = parts[len(parts)-1]
	for _, line := range parts[:len(parts)-1] {
		b.lines = append(b.lines, strings.TrimRight(line, "\r"))
	}
	if over := len(b.lines) - b.max; over > 0 {
		b.lines = append([]string(nil), b.lines[over:]...)
	}
	return len(p), nil
}

// Tail returns up to n of the most recent lines, oldest first.
func (b *LogBuffer) Tail(n int) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n <= 0 {
		return nil
	}
	start := len(b.lines) - n
	if start < 0 {
		start = 0
	}
	return append([]string(nil), b.lines[start:]...)
}

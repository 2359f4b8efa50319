package log

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var (
	mu       sync.Mutex
	logFile  *os.File
	buffered *bufio.Writer
)

// lockedWriter serializes writes with FlushLog so the buffer is never
// flushed halfway through a record.
type lockedWriter struct{}

func (lockedWriter) Write(p []byte) (int, error) {
	mu.Lock()
	defer mu.Unlock()
	if buffered == nil {
		return len(p), nil
	}
	return buffered.Write(p)
}

// NewLogger logs to stdout and to a timestamped file under dir. name prefixes
// the file name; an empty name gives "chakram".
func NewLogger(debug bool, dir, name string) (*slog.Logger, error) {
	if dir == "" {
		dir = "logs"
	}
	if name == "" {
		name = "chakram"
	}
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return nil, fmt.Errorf("error creating log directory: %w", err)
	}

	fileName := fmt.Sprintf("%s-%s.txt", name, time.Now().Format("2006-01-02-15-04-05"))
	f, err := os.OpenFile(filepath.Join(dir, fileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("error opening log file: %w", err)
	}

	mu.Lock()
	if buffered != nil {
		buffered.Flush()
	}
	if logFile != nil {
		logFile.Close()
	}
	logFile = f
	buffered = bufio.NewWriterSize(f, 32*1024)
	mu.Unlock()

	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(io.MultiWriter(os.Stdout, lockedWriter{}), &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.String(slog.TimeKey, a.Value.Time().Format("15:04:05.000"))
			}
			return a
		},
	})

	return slog.New(handler), nil
}

// FlushLog writes buffered records to disk.
func FlushLog() {
	mu.Lock()
	defer mu.Unlock()
	if buffered != nil {
		buffered.Flush()
	}
}

func FlushAndClose() {
	mu.Lock()
	defer mu.Unlock()
	if buffered != nil {
		buffered.Flush()
		buffered = nil
	}
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
}

package log

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewLoggerWritesFile(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLogger(true, dir, "test")
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	logger.Debug("Sector change", "from", "overhead", "to", "right")
	FlushAndClose()

	files, err := filepath.Glob(filepath.Join(dir, "test-*.txt"))
	if err != nil || len(files) != 1 {
		t.Fatalf("log files = %v, %v", files, err)
	}
	data, err := os.ReadFile(files[0])
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), "Sector change") || !strings.Contains(string(data), "to=right") {
		t.Errorf("log content = %q", data)
	}

	// Logging after close is dropped instead of failing.
	logger.Info("after close")
	FlushLog()
}

func TestInfoLevelHidesDebug(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLogger(false, dir, "")
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	logger.Debug("hidden")
	logger.Info("shown")
	FlushAndClose()

	files, _ := filepath.Glob(filepath.Join(dir, "chakram-*.txt"))
	if len(files) != 1 {
		t.Fatalf("log files = %v", files)
	}
	data, _ := os.ReadFile(files[0])
	if strings.Contains(string(data), "hidden") || !strings.Contains(string(data), "shown") {
		t.Errorf("log content = %q", data)
	}
}

package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestRotatingWriter(t *testing.T) {
	tempDir := t.TempDir()

	w, err := NewRotatingWriter(tempDir, 1, 1024*1024)
	if err != nil {
		t.Fatalf("Failed to create writer: %v", err)
	}

	expected := filepath.Join(tempDir, filePrefix+weekKey(time.Now())+".log")
	if _, err := os.Stat(expected); err != nil {
		t.Fatalf("Expected log file %s was not created: %v", expected, err)
	}

	if _, err := w.Write([]byte("Test log message\n")); err != nil {
		t.Fatalf("Failed to write to log: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Failed to close writer: %v", err)
	}

	content, err := os.ReadFile(expected)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	if !strings.Contains(string(content), "Test log message") {
		t.Errorf("Log file does not contain test message: %s", content)
	}
}

func TestWeekKey(t *testing.T) {
	tests := []struct {
		t    time.Time
		want string
	}{
		{time.Date(2025, 10, 7, 12, 0, 0, 0, time.UTC), "2025-W41"},
		{time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), "2026-W01"},
		{time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC), "2026-W53"},
	}

	for _, tt := range tests {
		if got := weekKey(tt.t); got != tt.want {
			t.Errorf("weekKey(%v) = %s, want %s", tt.t, got, tt.want)
		}
	}
}

func TestRotatingWriterSizeLimit(t *testing.T) {
	tempDir := t.TempDir()

	w, err := NewRotatingWriter(tempDir, 1, 64)
	if err != nil {
		t.Fatalf("Failed to create writer: %v", err)
	}
	defer w.Close()

	line := []byte(strings.Repeat("x", 40) + "\n")
	for i := 0; i < 3; i++ {
		if _, err := w.Write(line); err != nil {
			t.Fatalf("Write %d failed: %v", i, err)
		}
	}

	week := weekKey(time.Now())
	for _, name := range []string{w.fileName(week, 0), w.fileName(week, 1), w.fileName(week, 2)} {
		if _, err := os.Stat(filepath.Join(tempDir, name)); err != nil {
			t.Errorf("Expected continuation file %s: %v", name, err)
		}
	}
}

func TestRotatingWriterWeekChange(t *testing.T) {
	tempDir := t.TempDir()

	w, err := NewRotatingWriter(tempDir, 4, 1024*1024)
	if err != nil {
		t.Fatalf("Failed to create writer: %v", err)
	}
	defer w.Close()

	next := time.Now().Add(7 * 24 * time.Hour)
	w.mu.Lock()
	w.now = func() time.Time { return next }
	w.mu.Unlock()

	if _, err := w.Write([]byte("next week\n")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(tempDir, filePrefix+weekKey(next)+".log")); err != nil {
		t.Errorf("Expected a file for the new week: %v", err)
	}
}

func TestCleanupRemovesOldFiles(t *testing.T) {
	tempDir := t.TempDir()

	w, err := NewRotatingWriter(tempDir, 1, 1024*1024)
	if err != nil {
		t.Fatalf("Failed to create writer: %v", err)
	}
	defer w.Close()

	old := filepath.Join(tempDir, filePrefix+"2020-W01.log")
	unrelated := filepath.Join(tempDir, "other.log")
	for _, p := range []string{old, unrelated} {
		if err := os.WriteFile(p, []byte("old"), 0644); err != nil {
			t.Fatalf("Failed to create %s: %v", p, err)
		}
		past := time.Now().Add(-30 * 24 * time.Hour)
		if err := os.Chtimes(p, past, past); err != nil {
			t.Fatalf("Failed to age %s: %v", p, err)
		}
	}

	deleted, err := w.Cleanup()
	if err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("Expected 1 deleted file, got %d", deleted)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Error("Expected old log file to be removed")
	}
	if _, err := os.Stat(unrelated); err != nil {
		t.Error("Expected unrelated file to be kept")
	}
}

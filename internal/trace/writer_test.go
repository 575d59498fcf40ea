package trace

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/git-blame-dev/stream-sync-sub005/internal/core"
)

func readLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	return lines
}

func TestBatchFlush(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.jsonl")
	w := NewWriter(path, Options{BatchSize: 3})

	for i := 0; i < 2; i++ {
		if err := w.Write(Record{Timestamp: time.Now(), EventType: "chat"}); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("file written before the batch filled")
	}

	if err := w.Write(Record{Timestamp: time.Now(), EventType: "gift"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	lines := readLines(t, path)
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	var rec Record
	if err := json.Unmarshal([]byte(lines[2]), &rec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if rec.EventType != "gift" {
		t.Fatalf("eventType = %q", rec.EventType)
	}
}

func TestIntervalFlush(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.jsonl")
	w := NewWriter(path, Options{BatchSize: 100, FlushInterval: 30 * time.Millisecond})

	if err := w.Write(Record{Timestamp: time.Now(), EventType: "chat"}); err != nil {
		t.Fatalf("write: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(path); err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if lines := readLines(t, path); len(lines) != 1 {
		t.Fatalf("interval flush wrote %d lines", len(lines))
	}
}

func TestCloseFlushesRemainder(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.jsonl")
	w := NewWriter(path, Options{BatchSize: 100})

	if err := w.Write(Record{Timestamp: time.Now(), EventType: "raid"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if lines := readLines(t, path); len(lines) != 1 {
		t.Fatalf("close flushed %d lines", len(lines))
	}

	if err := w.Write(Record{}); err == nil {
		t.Fatal("write after close must fail")
	}
}

func TestRecorderDisabledIsNoop(t *testing.T) {
	dir := t.TempDir()
	r := NewRecorder(dir, false, nil)
	r.Trace(core.PlatformTwitch, "chat", map[string]string{"m": "hi"})
	r.Close()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("disabled recorder wrote %d files", len(entries))
	}
}

func TestRecorderCreatesMissingDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "captures", "traces")
	r := NewRecorder(dir, true, nil)
	r.Trace(core.PlatformTwitch, "chat", map[string]string{"m": "hi"})
	r.Close()

	lines := readLines(t, filepath.Join(dir, "twitch-events.jsonl"))
	if len(lines) != 1 {
		t.Fatalf("expected 1 trace line, got %d", len(lines))
	}
}

func TestRecorderUnknownCapture(t *testing.T) {
	dir := t.TempDir()
	r := NewRecorder(dir, false, nil)
	r.Unknown(core.PlatformTikTok, `{"type":"mystery"}`)

	lines := readLines(t, filepath.Join(dir, "tiktok-unknown-events.txt"))
	if len(lines) != 1 || !strings.Contains(lines[0], "mystery") {
		t.Fatalf("unknown capture wrong: %v", lines)
	}
}

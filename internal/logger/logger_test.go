package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

// syncBuffer makes bytes.Buffer safe for the recorder's flush goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestRecorderFlushesOnClose(t *testing.T) {
	buf := &syncBuffer{}
	sl := slog.New(slog.NewJSONHandler(buf, nil))

	rec, err := New(context.Background(), sl)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rec.Record(Event{
		RequestID:    "req-1",
		Kind:         "suggestions",
		Model:        "deepseek/deepseek-v3.1",
		Cache:        "miss",
		Status:       "ok",
		Duration:     120 * time.Millisecond,
		InputTokens:  10,
		OutputTokens: 200,
	})
	rec.Record(Event{RequestID: "req-2", Kind: "chat", Cache: "bypass", Status: "ok"})

	if err := rec.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("flushed %d lines, want 2: %q", len(lines), buf.String())
	}

	var entry struct {
		Msg        string `json:"msg"`
		RequestID  string `json:"request_id"`
		Kind       string `json:"kind"`
		Cache      string `json:"cache"`
		DurationMs int64  `json:"duration_ms"`
	}
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("parse log line: %v", err)
	}
	if entry.Msg != "query" || entry.RequestID != "req-1" || entry.Kind != "suggestions" {
		t.Errorf("unexpected entry: %+v", entry)
	}
	if entry.DurationMs != 120 {
		t.Errorf("duration_ms = %d, want 120", entry.DurationMs)
	}
}

func TestRecorderRequiresContext(t *testing.T) {
	if _, err := New(nil, nil); err == nil { //nolint:staticcheck
		t.Error("expected error for nil context")
	}
}

func TestRecordNeverBlocks(t *testing.T) {
	buf := &syncBuffer{}
	rec, err := New(context.Background(), slog.New(slog.NewJSONHandler(buf, nil)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer rec.Close()

	// Overfill the channel; extra events are dropped, not blocked on.
	for i := 0; i < channelBuffer*2; i++ {
		rec.Record(Event{RequestID: "x", Kind: "chat"})
	}
}

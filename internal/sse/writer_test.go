package sse

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewWriterSetsHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	if _, err := NewWriter(rec); err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}

	headers := map[string]string{
		"Content-Type":      "text/event-stream",
		"Cache-Control":     "no-cache",
		"Connection":        "keep-alive",
		"X-Accel-Buffering": "no",
	}
	for k, want := range headers {
		if got := rec.Header().Get(k); got != want {
			t.Errorf("header %s = %q, want %q", k, got, want)
		}
	}
}

func TestWriteJSONFormat(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewWriter(rec)
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}

	event := map[string]any{"type": "text", "content": "hello\nworld"}
	if err := w.WriteJSON(context.Background(), event); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}

	body := rec.Body.String()
	if !strings.HasPrefix(body, "data: ") {
		t.Errorf("event must start with data prefix: %q", body)
	}
	if !strings.HasSuffix(body, "\n\n") {
		t.Errorf("event must end with a blank line: %q", body)
	}
	// Embedded newlines are JSON-escaped, keeping the event on one line.
	payload := strings.TrimSuffix(strings.TrimPrefix(body, "data: "), "\n\n")
	if strings.Contains(payload, "\n") {
		t.Errorf("payload must be a single line: %q", payload)
	}

	var decoded map[string]any
	if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
		t.Fatalf("payload is not valid JSON: %v", err)
	}
	if decoded["content"] != "hello\nworld" {
		t.Errorf("content round trip = %q", decoded["content"])
	}
}

func TestWriteJSONMultipleEvents(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewWriter(rec)
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}

	for _, typ := range []string{"start", "text", "done"} {
		if err := w.WriteJSON(context.Background(), map[string]string{"type": typ}); err != nil {
			t.Fatalf("WriteJSON failed: %v", err)
		}
	}

	events := strings.Split(strings.TrimSuffix(rec.Body.String(), "\n\n"), "\n\n")
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
}

func TestWriteJSONCanceledContext(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewWriter(rec)
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := w.WriteJSON(ctx, map[string]string{"type": "text"}); err == nil {
		t.Fatal("expected error for canceled context")
	}
	if rec.Body.Len() != 0 {
		t.Errorf("nothing must be written after cancellation: %q", rec.Body.String())
	}
}

package app

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestPVHandlerFormat(t *testing.T) {
	var buf bytes.Buffer
	handler := &pvHandler{w: &buf, opID: "op-123"}

	r := slog.NewRecord(time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC), slog.LevelInfo, "content filtered", 0)
	r.AddAttrs(slog.String("path", "/home/ada/notes.txt"), slog.Int("count", 2))

	if err := handler.Handle(context.Background(), r); err != nil {
		t.Fatalf("Handle() unexpected error: %v", err)
	}

	got := buf.String()
	fields := strings.Split(strings.TrimSuffix(got, "\n"), "\t")
	if len(fields) != 6 {
		t.Fatalf("Handle() wrote %d fields, want 6: %q", len(fields), got)
	}
	if fields[0] != "2024-01-15T10:30:00Z" {
		t.Errorf("timestamp = %q", fields[0])
	}
	if fields[1] != "INFO" {
		t.Errorf("level = %q", fields[1])
	}
	if fields[2] != "op-123" {
		t.Errorf("opID = %q", fields[2])
	}
	if fields[3] != "content filtered" {
		t.Errorf("message = %q", fields[3])
	}
	if fields[4] != "path=/home/ada/notes.txt" || fields[5] != "count=2" {
		t.Errorf("attrs = %q, %q", fields[4], fields[5])
	}
}

func TestPVHandlerWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	base := &pvHandler{w: &buf, opID: "op-123"}
	handler := base.WithAttrs([]slog.Attr{slog.String("host", "h1")})

	r := slog.NewRecord(time.Now(), slog.LevelDebug, "msg", 0)
	if err := handler.Handle(context.Background(), r); err != nil {
		t.Fatalf("Handle() unexpected error: %v", err)
	}

	if !strings.Contains(buf.String(), "\thost=h1") {
		t.Errorf("Handle() output missing pre-set attr: %q", buf.String())
	}

	// The base handler is unchanged.
	buf.Reset()
	if err := base.Handle(context.Background(), r); err != nil {
		t.Fatalf("Handle() unexpected error: %v", err)
	}
	if strings.Contains(buf.String(), "host=h1") {
		t.Errorf("WithAttrs() mutated the base handler: %q", buf.String())
	}
}

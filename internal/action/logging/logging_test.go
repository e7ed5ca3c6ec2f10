package logging

import (
	"context"
	"log/slog"
	"testing"

	"github.com/gyaneshwarpardhi/probewire/internal/action"
	"github.com/gyaneshwarpardhi/probewire/internal/event"
	"github.com/gyaneshwarpardhi/probewire/internal/logtest"
	"github.com/gyaneshwarpardhi/probewire/internal/probe"
)

func TestLogAction(t *testing.T) {
	rec, logger := logtest.New()
	a := New(logger)

	if err := a.Validate(map[string]any{"level": "loud"}); err == nil {
		t.Error("expected error for unknown level")
	}
	if err := a.Validate(nil); err != nil {
		t.Errorf("level is optional: %v", err)
	}

	md, err := event.NewMetadata("osquery_result", "SN1")
	if err != nil {
		t.Fatal(err)
	}
	n := &action.Notification{
		Probe:   probe.MustCompile(probe.Definition{Name: "p"}),
		Event:   event.NewBaseEvent(md, nil),
		Subject: "subject line",
		Body:    "body text",
	}
	res, err := a.Execute(context.Background(), map[string]any{"level": "warn"}, n)
	if err != nil || !res.Success {
		t.Fatalf("Execute = %+v, %v", res, err)
	}

	entries := rec.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Level != slog.LevelWarn || e.Message != "subject line" {
		t.Errorf("unexpected entry %+v", e)
	}
	if e.Attrs["probe"] != "p" || e.Attrs["body"] != "body text" || e.Attrs["component"] != "log_action" {
		t.Errorf("unexpected attrs %v", e.Attrs)
	}
}

package logging

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gyaneshwarpardhi/probewire/internal/action"
)

var levels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// LogAction handles "log" actions: the rendered notification is written to
// the service log.
//
//	params:
//	  level: info   # debug, info, warn or error
type LogAction struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *LogAction {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogAction{logger: logger.With("component", "log_action")}
}

func (a *LogAction) Type() string { return "log" }

func (a *LogAction) Validate(params map[string]any) error {
	raw, ok := params["level"]
	if !ok {
		return nil
	}
	lvl, _ := raw.(string)
	if _, ok := levels[lvl]; !ok {
		return fmt.Errorf("log: level must be one of debug, info, warn, error, got %v", raw)
	}
	return nil
}

func (a *LogAction) Execute(ctx context.Context, params map[string]any, n *action.Notification) (*action.ActionResult, error) {
	level := slog.LevelInfo
	if lvl, ok := params["level"].(string); ok {
		level = levels[lvl]
	}
	md := n.Event.Metadata()
	a.logger.Log(ctx, level, n.Subject,
		"probe", n.Probe.Name,
		"event_type", n.Event.EventType(),
		"event_id", md.UUID,
		"machine_serial_number", md.MachineSerialNumber,
		"body", n.Body,
	)
	return &action.ActionResult{
		Probe:   n.Probe.Name,
		Type:    a.Type(),
		Success: true,
		Message: n.Subject,
	}, nil
}
